package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vovakirdan/wirechat-dm/internal/service/chats"
	"github.com/vovakirdan/wirechat-dm/internal/store"
)

// UserResponse represents a user in API responses.
type UserResponse struct {
	UUID     string `json:"uuid"`
	Username string `json:"username"`
}

// MessageResponse represents a direct message in API responses.
type MessageResponse struct {
	ID            int64  `json:"id"`
	UUID          string `json:"uuid"`
	SenderUUID    string `json:"sender_uuid"`
	RecipientUUID string `json:"recipient_uuid"`
	Content       string `json:"content"`
	Read          bool   `json:"read"`
	CreatedAt     string `json:"created_at"`
}

// ChatResponse is one row of the recent chats list.
type ChatResponse struct {
	User        UserResponse    `json:"user"`
	LastMessage MessageResponse `json:"last_message"`
	Unread      int64           `json:"unread"`
}

func userToResponse(u *store.User) UserResponse {
	return UserResponse{UUID: u.UUID, Username: u.Username}
}

func usersToResponse(users []*store.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, userToResponse(u))
	}
	return out
}

// messageToResponse maps m; self and other are its two participants.
func messageToResponse(m *store.Message, self, other *store.User) MessageResponse {
	sender, recipient := self, other
	if m.SenderID == other.ID {
		sender, recipient = other, self
	}
	return MessageResponse{
		ID:            m.ID,
		UUID:          m.UUID,
		SenderUUID:    sender.UUID,
		RecipientUUID: recipient.UUID,
		Content:       m.Content,
		Read:          m.Read,
		CreatedAt:     m.CreatedAt.Format(time.RFC3339),
	}
}

func chatToResponse(s *chats.Summary, self *store.User) ChatResponse {
	return ChatResponse{
		User:        userToResponse(s.Counterpart),
		LastMessage: messageToResponse(s.Last, self, s.Counterpart),
		Unread:      s.Unread,
	}
}

var errBadUUID = errors.New("invalid user id")

// pathUser resolves the :uuid path parameter to a user. It writes the error response itself.
func pathUser(c *gin.Context, st store.UserStore) (*store.User, bool) {
	id, err := uuid.Parse(c.Param("uuid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: errBadUUID.Error()})
		return nil, false
	}
	u, err := st.GetUserByUUID(c.Request.Context(), id.String())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return nil, false
	}
	return u, true
}
