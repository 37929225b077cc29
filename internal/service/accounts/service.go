package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-dm/internal/core"
	"github.com/vovakirdan/wirechat-dm/internal/store"
)

// ErrUserNotFound is returned when the account does not exist or is already deleted.
var ErrUserNotFound = errors.New("user not found")

// Notifier receives committed account deletions.
type Notifier interface {
	AccountDeleted(ctx context.Context, deleted *store.User, related []core.Related)
}

// Service manages account lifecycle.
type Service struct {
	store    store.Store
	notifier Notifier
	log      *zerolog.Logger
}

// New creates an accounts service.
func New(st store.Store, notifier Notifier, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{store: st, notifier: notifier, log: logger}
}

// DeleteAccount soft-deletes userID, drops its friendships and notifies every
// user that had it as a friend or pending request, then the account itself.
func (s *Service) DeleteAccount(ctx context.Context, userID int64) error {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("get user: %w", err)
	}
	if !user.Active {
		return ErrUserNotFound
	}

	rows, err := s.store.ListFriends(ctx, userID, nil)
	if err != nil {
		return fmt.Errorf("list friends: %w", err)
	}
	related := make([]core.Related, 0, len(rows))
	for _, f := range rows {
		otherID := f.OtherUserID(userID)
		related = append(related, core.Related{
			UserID:   otherID,
			Relation: store.RelationOf(f, otherID),
		})
	}

	if err := s.store.DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}

	s.log.Info().Int64("user_id", userID).Int("related", len(related)).Msg("account deleted")
	s.notifier.AccountDeleted(ctx, user, related)
	return nil
}
