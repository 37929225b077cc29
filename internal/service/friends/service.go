package friends

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-dm/internal/store"
)

// Common errors for friend operations.
var (
	ErrCannotFriendSelf     = errors.New("cannot send friend request to yourself")
	ErrAlreadyFriends       = errors.New("already friends")
	ErrRequestAlreadyExists = errors.New("friend request already exists")
	ErrRequestNotFound      = errors.New("friend request not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrNotFriends           = errors.New("not friends")
)

// Notifier receives friendship lifecycle changes after they are committed.
type Notifier interface {
	FriendRequestSent(ctx context.Context, requester, addressee *store.User)
	FriendRequestAccepted(ctx context.Context, requester, addressee *store.User)
	FriendRequestRejected(ctx context.Context, requester, addressee *store.User)
	FriendRequestCancelled(ctx context.Context, requester, addressee *store.User)
	FriendRemoved(ctx context.Context, remover, removed *store.User)
}

// Overview lists the users in each friends section of one user.
type Overview struct {
	Friends  []*store.User
	Incoming []*store.User
	Outgoing []*store.User
}

// Service provides friend management business logic.
type Service struct {
	store    store.Store
	notifier Notifier
	log      *zerolog.Logger
}

// New creates a new FriendService.
func New(st store.Store, notifier Notifier, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{
		store:    st,
		notifier: notifier,
		log:      logger,
	}
}

// SendRequest sends a friend request from one user to another.
func (s *Service) SendRequest(ctx context.Context, fromUserID, toUserID int64) (*store.Friend, error) {
	// Cannot friend yourself
	if fromUserID == toUserID {
		return nil, ErrCannotFriendSelf
	}

	from, to, err := s.pair(ctx, fromUserID, toUserID)
	if err != nil {
		return nil, err
	}

	// Check if friendship already exists
	existing, err := s.store.GetFriendship(ctx, fromUserID, toUserID)
	switch {
	case err == nil && existing.Status == store.FriendStatusAccepted:
		return nil, ErrAlreadyFriends
	case err == nil:
		return nil, ErrRequestAlreadyExists
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("get friendship: %w", err)
	}

	friend, err := s.store.CreateFriendRequest(ctx, fromUserID, toUserID)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			// a request or friendship appeared since the check above
			return nil, s.conflictReason(ctx, fromUserID, toUserID)
		}
		return nil, fmt.Errorf("create friend request: %w", err)
	}

	s.log.Info().Int64("from", fromUserID).Int64("to", toUserID).Msg("friend request sent")
	s.notifier.FriendRequestSent(ctx, from, to)
	return friend, nil
}

// SendRequestByUsername sends a friend request to the active user with the given username.
func (s *Service) SendRequestByUsername(ctx context.Context, fromUserID int64, username string) (*store.Friend, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrUserNotFound
	}
	to, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return s.SendRequest(ctx, fromUserID, to.ID)
}

// AcceptRequest accepts a pending friend request sent by fromUserID to userID.
func (s *Service) AcceptRequest(ctx context.Context, userID, fromUserID int64) error {
	existing, err := s.pendingRequest(ctx, fromUserID, userID)
	if err != nil {
		return err
	}

	err = s.store.UpdateFriendStatus(ctx, existing.UserID, existing.FriendID, store.FriendStatusAccepted)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrRequestNotFound
		}
		return fmt.Errorf("accept request: %w", err)
	}

	s.notify(ctx, fromUserID, userID, s.notifier.FriendRequestAccepted)
	return nil
}

// RejectRequest rejects a pending friend request sent by fromUserID to userID.
func (s *Service) RejectRequest(ctx context.Context, userID, fromUserID int64) error {
	existing, err := s.pendingRequest(ctx, fromUserID, userID)
	if err != nil {
		return err
	}

	if err := s.deleteRow(ctx, existing); err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			return err
		}
		return fmt.Errorf("reject request: %w", err)
	}

	s.notify(ctx, fromUserID, userID, s.notifier.FriendRequestRejected)
	return nil
}

// CancelRequest withdraws the pending request userID sent to toUserID.
func (s *Service) CancelRequest(ctx context.Context, userID, toUserID int64) error {
	existing, err := s.pendingRequest(ctx, userID, toUserID)
	if err != nil {
		return err
	}

	if err := s.deleteRow(ctx, existing); err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			return err
		}
		return fmt.Errorf("cancel request: %w", err)
	}

	s.notify(ctx, userID, toUserID, s.notifier.FriendRequestCancelled)
	return nil
}

// RemoveFriend ends an accepted friendship.
func (s *Service) RemoveFriend(ctx context.Context, userID, friendID int64) error {
	existing, err := s.store.GetFriendship(ctx, userID, friendID)
	if err != nil || existing.Status != store.FriendStatusAccepted {
		if err == nil || errors.Is(err, store.ErrNotFound) {
			return ErrNotFriends
		}
		return fmt.Errorf("get friendship: %w", err)
	}

	if err := s.store.DeleteFriendship(ctx, existing.UserID, existing.FriendID, store.FriendStatusAccepted); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFriends
		}
		return fmt.Errorf("remove friend: %w", err)
	}

	s.notify(ctx, userID, friendID, s.notifier.FriendRemoved)
	return nil
}

// Overview returns friends, incoming and outgoing requests of userID.
func (s *Service) Overview(ctx context.Context, userID int64) (*Overview, error) {
	rows, err := s.store.ListFriends(ctx, userID, nil)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}

	out := &Overview{}
	for _, f := range rows {
		other, err := s.store.GetUserByID(ctx, f.OtherUserID(userID))
		if err != nil {
			return nil, fmt.Errorf("get user: %w", err)
		}
		if !other.Active {
			continue
		}
		switch store.RelationOf(f, userID) {
		case store.RelationFriend:
			out.Friends = append(out.Friends, other)
		case store.RelationIncoming:
			out.Incoming = append(out.Incoming, other)
		case store.RelationOutgoing:
			out.Outgoing = append(out.Outgoing, other)
		}
	}
	return out, nil
}

// IsFriend checks if two users are friends (accepted status).
func (s *Service) IsFriend(ctx context.Context, userID, friendID int64) (bool, error) {
	return s.store.IsFriend(ctx, userID, friendID)
}

// pendingRequest returns the pending request sent by requesterID to addresseeID.
func (s *Service) pendingRequest(ctx context.Context, requesterID, addresseeID int64) (*store.Friend, error) {
	existing, err := s.store.GetFriendship(ctx, requesterID, addresseeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("get friendship: %w", err)
	}
	if existing.Status != store.FriendStatusPending || existing.UserID != requesterID {
		return nil, ErrRequestNotFound
	}
	return existing, nil
}

// deleteRow removes a pending request. It fails with ErrRequestNotFound when the
// request was accepted or removed in the meantime.
func (s *Service) deleteRow(ctx context.Context, f *store.Friend) error {
	err := s.store.DeleteFriendship(ctx, f.UserID, f.FriendID, store.FriendStatusPending)
	if errors.Is(err, store.ErrNotFound) {
		return ErrRequestNotFound
	}
	return err
}

// conflictReason reports which row blocked a new request between userID and otherID.
func (s *Service) conflictReason(ctx context.Context, userID, otherID int64) error {
	existing, err := s.store.GetFriendship(ctx, userID, otherID)
	if err == nil && existing.Status == store.FriendStatusAccepted {
		return ErrAlreadyFriends
	}
	return ErrRequestAlreadyExists
}

// pair loads both users; the target must be an active account.
func (s *Service) pair(ctx context.Context, userID, otherID int64) (*store.User, *store.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("get user: %w", err)
	}
	other, err := s.store.GetUserByID(ctx, otherID)
	if err != nil || !other.Active {
		if err == nil || errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, fmt.Errorf("get user: %w", err)
	}
	return user, other, nil
}

// notify loads both users and hands them to fn.
func (s *Service) notify(ctx context.Context, firstID, secondID int64, fn func(context.Context, *store.User, *store.User)) {
	first, err := s.store.GetUserByID(ctx, firstID)
	if err != nil {
		s.log.Warn().Err(err).Int64("user_id", firstID).Msg("skip friendship notification")
		return
	}
	second, err := s.store.GetUserByID(ctx, secondID)
	if err != nil {
		s.log.Warn().Err(err).Int64("user_id", secondID).Msg("skip friendship notification")
		return
	}
	fn(ctx, first, second)
}
