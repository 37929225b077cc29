package core

import "errors"

var (
	// ErrUnauthenticated is returned by Connect for a session without identity.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrSessionClosed is returned when joining after Disconnect.
	ErrSessionClosed = errors.New("session closed")
	// ErrSessionTerminated ends the session loop after a logout or account deletion notice.
	ErrSessionTerminated = errors.New("session terminated")
	// ErrSlowConsumer ends the session loop after an event was dropped on a full inbox.
	ErrSlowConsumer = errors.New("slow consumer")
	// ErrNotFriends is returned when sending to a user who is not a mutual friend.
	ErrNotFriends = errors.New("not friends")
	// ErrEmptyMessage is returned for content that is empty after trimming.
	ErrEmptyMessage = errors.New("empty message")
)
