package chats

import (
	"context"
	"errors"
	"fmt"

	"github.com/vovakirdan/wirechat-dm/internal/core"
	"github.com/vovakirdan/wirechat-dm/internal/store"
)

// DefaultHistoryLimit caps History when no limit is configured.
const DefaultHistoryLimit = 50

// ErrUserNotFound is returned when the counterpart does not exist.
var ErrUserNotFound = errors.New("user not found")

// Sender persists and fans out a message.
type Sender interface {
	SendMessage(ctx context.Context, sender, recipient *store.User, content string) (*store.Message, error)
}

// Summary is one row of the recent chats list.
type Summary struct {
	Counterpart *store.User
	Last        *store.Message
	Unread      int64
}

// Service serves conversation lists and history over HTTP.
type Service struct {
	store        store.Store
	sender       Sender
	historyLimit int
}

// New creates a chats service.
func New(st store.Store, sender Sender, historyLimit int) *Service {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Service{store: st, sender: sender, historyLimit: historyLimit}
}

// RecentChats returns the latest message per counterpart, newest first.
func (s *Service) RecentChats(ctx context.Context, userID int64) ([]*Summary, error) {
	chats, err := s.store.ListRecentChats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list recent chats: %w", err)
	}

	out := make([]*Summary, 0, len(chats))
	for _, c := range chats {
		other, err := s.store.GetUserByID(ctx, c.CounterpartID)
		if err != nil {
			return nil, fmt.Errorf("get counterpart: %w", err)
		}
		last := c.LastMessage
		out = append(out, &Summary{Counterpart: other, Last: &last, Unread: c.UnreadCount})
	}
	return out, nil
}

// History returns up to limit messages exchanged with counterpartID, newest first.
func (s *Service) History(ctx context.Context, userID, counterpartID int64, limit int, beforeID *int64) ([]*store.Message, error) {
	if _, err := s.counterpart(ctx, counterpartID, false); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}
	msgs, err := s.store.ListConversation(ctx, userID, counterpartID, limit, beforeID)
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	return msgs, nil
}

// Send delivers content to counterpartID through the realtime path. The users must be friends.
func (s *Service) Send(ctx context.Context, userID, counterpartID int64, content string) (*store.Message, error) {
	if userID == counterpartID {
		return nil, ErrUserNotFound
	}
	sender, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get sender: %w", err)
	}
	recipient, err := s.counterpart(ctx, counterpartID, true)
	if err != nil {
		return nil, err
	}

	ok, err := s.store.IsFriend(ctx, userID, counterpartID)
	if err != nil {
		return nil, fmt.Errorf("check friendship: %w", err)
	}
	if !ok {
		return nil, core.ErrNotFriends
	}

	return s.sender.SendMessage(ctx, sender, recipient, content)
}

func (s *Service) counterpart(ctx context.Context, id int64, mustBeActive bool) (*store.User, error) {
	u, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get counterpart: %w", err)
	}
	if mustBeActive && !u.Active {
		return nil, ErrUserNotFound
	}
	return u, nil
}
