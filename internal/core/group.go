package core

import "strconv"

// GroupForUser names the group every connection of userID joins.
func GroupForUser(userID int64) string {
	return "user_" + strconv.FormatInt(userID, 10)
}

// GroupForSession names the group of all connections opened with one login session.
func GroupForSession(sessionID string) string {
	return "session_" + sessionID
}
