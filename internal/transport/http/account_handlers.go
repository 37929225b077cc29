package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-dm/internal/service/accounts"
)

// AccountHandlers serves account lifecycle endpoints.
type AccountHandlers struct {
	service *accounts.Service
	log     *zerolog.Logger
}

// NewAccountHandlers creates a new account handlers instance.
func NewAccountHandlers(svc *accounts.Service, logger *zerolog.Logger) *AccountHandlers {
	return &AccountHandlers{service: svc, log: logger}
}

// DeleteAccount deletes the caller's account and closes its connections.
// DELETE /api/account
func (h *AccountHandlers) DeleteAccount(c *gin.Context) {
	user := currentUser(c)

	if err := h.service.DeleteAccount(c.Request.Context(), user.ID); err != nil {
		if errors.Is(err, accounts.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to delete account")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.SetCookie(tokenCookie, "", -1, "/", "", false, true)
	c.Status(http.StatusNoContent)
}
