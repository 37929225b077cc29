package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-dm/internal/core"
	"github.com/vovakirdan/wirechat-dm/internal/service/chats"
	"github.com/vovakirdan/wirechat-dm/internal/store"
)

// ChatsHandlers serves conversation lists, history and the HTTP send fallback.
type ChatsHandlers struct {
	service *chats.Service
	store   store.Store
	log     *zerolog.Logger
}

// NewChatsHandlers creates a new chats handlers instance.
func NewChatsHandlers(svc *chats.Service, st store.Store, logger *zerolog.Logger) *ChatsHandlers {
	return &ChatsHandlers{service: svc, store: st, log: logger}
}

// SendMessageRequest is the body of a message sent over HTTP.
type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// RecentChats lists conversations, newest first.
// GET /api/chats
func (h *ChatsHandlers) RecentChats(c *gin.Context) {
	user := currentUser(c)

	list, err := h.service.RecentChats(c.Request.Context(), user.ID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to list chats")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	resp := make([]ChatResponse, 0, len(list))
	for _, s := range list {
		resp = append(resp, chatToResponse(s, user))
	}
	c.JSON(http.StatusOK, resp)
}

// History returns messages exchanged with :uuid, newest first.
// GET /api/chats/:uuid/messages?limit=50&before=123
func (h *ChatsHandlers) History(c *gin.Context) {
	user := currentUser(c)
	other, ok := pathUser(c, h.store)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	var beforeID *int64
	if raw := c.Query("before"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid before parameter"})
			return
		}
		beforeID = &id
	}

	msgs, err := h.service.History(c.Request.Context(), user.ID, other.ID, limit, beforeID)
	if err != nil {
		if errors.Is(err, chats.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to load history")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	resp := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		resp = append(resp, messageToResponse(m, user, other))
	}
	c.JSON(http.StatusOK, resp)
}

// Send delivers a message to :uuid.
// POST /api/chats/:uuid/messages
func (h *ChatsHandlers) Send(c *gin.Context) {
	user := currentUser(c)
	other, ok := pathUser(c, h.store)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, err := h.service.Send(c.Request.Context(), user.ID, other.ID, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrEmptyMessage):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "message is empty"})
		case errors.Is(err, core.ErrNotFriends):
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "not friends"})
		case errors.Is(err, chats.ErrUserNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
		default:
			h.log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to send message")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	c.JSON(http.StatusCreated, messageToResponse(msg, user, other))
}
