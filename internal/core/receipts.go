package core

import (
	"context"

	"github.com/vovakirdan/wirechat-dm/internal/event"
	"github.com/vovakirdan/wirechat-dm/internal/proto"
	"github.com/vovakirdan/wirechat-dm/internal/store"
)

// markMessageRead flips msg to read for the viewing recipient. Only the attempt that
// changes the row publishes message_read; a concurrent loser sees zero rows.
// It reports whether the message is now read.
func (s *Session) markMessageRead(ctx context.Context, msg *event.Message) bool {
	opCtx, cancel := s.core.opContext(ctx)
	defer cancel()

	n, err := s.core.store.MarkMessageRead(opCtx, msg.ID)
	if err != nil {
		s.log.Error().Err(err).Int64("message_id", msg.ID).Msg("mark message read")
		return false
	}
	msg.Read = true
	if n != 1 {
		return true
	}

	sender := &event.User{ID: msg.SenderID, UUID: msg.SenderUUID}
	read := *msg
	s.core.publishToBoth(ctx, event.Event{
		Kind:    event.KindMessageRead,
		Message: &read,
		From:    sender,
		To:      s.self,
	}, sender, s.self)
	return true
}

// markConversationRead marks every message other sent us as read and announces the count.
func (s *Session) markConversationRead(ctx context.Context, other *store.User) {
	n, err := s.core.store.MarkConversationRead(ctx, other.ID, s.self.ID)
	if err != nil {
		s.log.Error().Err(err).Int64("counterpart_id", other.ID).Msg("mark conversation read")
		return
	}
	if n == 0 {
		return
	}

	sender := event.UserFrom(other)
	s.core.publishToBoth(ctx, event.Event{
		Kind:  event.KindAllMessagesRead,
		From:  sender,
		To:    s.self,
		Count: n,
	}, sender, s.self)
}

func (s *Session) onMessageRead(ctx context.Context, ev *event.Event) {
	msg, other := ev.Message, ev.OtherUser
	if msg == nil || other == nil {
		return
	}
	action, ok := s.readAction(msg.SenderID == s.self.ID, s.viewing(other.ID))
	if !ok {
		return
	}
	s.emit(ctx, proto.NewMessageRead(other.UUID, msg.UUID, msg.RecipientUUID, action))
}

func (s *Session) onAllMessagesRead(ctx context.Context, ev *event.Event) {
	other, from, to := ev.OtherUser, ev.From, ev.To
	if other == nil || from == nil || to == nil {
		return
	}
	action, ok := s.readAction(from.ID == s.self.ID, s.viewing(other.ID))
	if !ok {
		return
	}
	s.emit(ctx, proto.NewAllMessagesRead(other.UUID, from.UUID, to.UUID, action, ev.Count))
}

// readAction decides what a read receipt changes for this connection: the sender
// looking at the chat updates its indicators, an off-screen recipient tab drops its
// unread badge.
func (s *Session) readAction(isSender, viewing bool) (proto.ReadAction, bool) {
	switch {
	case isSender && viewing:
		return proto.ActionReadIndicator, true
	case !isSender && !viewing:
		return proto.ActionDecrementUnread, true
	default:
		return "", false
	}
}
