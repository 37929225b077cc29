package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-dm/internal/service/friends"
	"github.com/vovakirdan/wirechat-dm/internal/store"
)

// FriendsHandlers provides HTTP handlers for friend management endpoints.
type FriendsHandlers struct {
	service *friends.Service
	store   store.Store
	log     *zerolog.Logger
}

// NewFriendsHandlers creates a new friends handlers instance.
func NewFriendsHandlers(svc *friends.Service, st store.Store, logger *zerolog.Logger) *FriendsHandlers {
	return &FriendsHandlers{
		service: svc,
		store:   st,
		log:     logger,
	}
}

// SendFriendRequestRequest represents the request body for sending a friend request.
type SendFriendRequestRequest struct {
	Username string `json:"username" binding:"required"`
}

// OverviewResponse lists the three friends sections.
type OverviewResponse struct {
	Friends  []UserResponse `json:"friends"`
	Incoming []UserResponse `json:"incoming"`
	Outgoing []UserResponse `json:"outgoing"`
}

// Overview lists friends and pending requests.
// GET /api/friends
func (h *FriendsHandlers) Overview(c *gin.Context) {
	user := currentUser(c)

	ov, err := h.service.Overview(c.Request.Context(), user.ID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to list friends")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, OverviewResponse{
		Friends:  usersToResponse(ov.Friends),
		Incoming: usersToResponse(ov.Incoming),
		Outgoing: usersToResponse(ov.Outgoing),
	})
}

// SendRequest handles sending a friend request by username.
// POST /api/friends/requests
func (h *FriendsHandlers) SendRequest(c *gin.Context) {
	user := currentUser(c)

	var req SendFriendRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send friend request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if _, err := h.service.SendRequestByUsername(c.Request.Context(), user.ID, req.Username); err != nil {
		h.fail(c, err, user.ID, "failed to send friend request")
		return
	}

	c.Status(http.StatusCreated)
}

// AcceptRequest accepts the request sent by :uuid.
// POST /api/friends/requests/:uuid/accept
func (h *FriendsHandlers) AcceptRequest(c *gin.Context) {
	h.withOther(c, "failed to accept friend request", func(userID, otherID int64) error {
		return h.service.AcceptRequest(c.Request.Context(), userID, otherID)
	})
}

// RejectRequest rejects the request sent by :uuid.
// POST /api/friends/requests/:uuid/reject
func (h *FriendsHandlers) RejectRequest(c *gin.Context) {
	h.withOther(c, "failed to reject friend request", func(userID, otherID int64) error {
		return h.service.RejectRequest(c.Request.Context(), userID, otherID)
	})
}

// CancelRequest withdraws the request sent to :uuid.
// DELETE /api/friends/requests/:uuid
func (h *FriendsHandlers) CancelRequest(c *gin.Context) {
	h.withOther(c, "failed to cancel friend request", func(userID, otherID int64) error {
		return h.service.CancelRequest(c.Request.Context(), userID, otherID)
	})
}

// RemoveFriend ends the friendship with :uuid.
// DELETE /api/friends/:uuid
func (h *FriendsHandlers) RemoveFriend(c *gin.Context) {
	h.withOther(c, "failed to remove friend", func(userID, otherID int64) error {
		return h.service.RemoveFriend(c.Request.Context(), userID, otherID)
	})
}

func (h *FriendsHandlers) withOther(c *gin.Context, failMsg string, fn func(userID, otherID int64) error) {
	user := currentUser(c)
	other, ok := pathUser(c, h.store)
	if !ok {
		return
	}
	if err := fn(user.ID, other.ID); err != nil {
		h.fail(c, err, user.ID, failMsg)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *FriendsHandlers) fail(c *gin.Context, err error, userID int64, msg string) {
	switch {
	case errors.Is(err, friends.ErrCannotFriendSelf):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot send friend request to yourself"})
	case errors.Is(err, friends.ErrAlreadyFriends):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "already friends"})
	case errors.Is(err, friends.ErrRequestAlreadyExists):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "friend request already exists"})
	case errors.Is(err, friends.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
	case errors.Is(err, friends.ErrRequestNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "friend request not found"})
	case errors.Is(err, friends.ErrNotFriends):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not friends"})
	default:
		h.log.Error().Err(err).Int64("user_id", userID).Msg(msg)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
