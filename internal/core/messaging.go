package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vovakirdan/wirechat-dm/internal/event"
	"github.com/vovakirdan/wirechat-dm/internal/proto"
	"github.com/vovakirdan/wirechat-dm/internal/store"
)

// SendMessage persists content from sender to recipient and fans it out to both
// users. Friendship must already be established by the caller. Nothing is published
// when the write fails.
func (c *Core) SendMessage(ctx context.Context, sender, recipient *store.User, content string) (*store.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}

	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	msg, err := c.store.CreateMessage(opCtx, sender.ID, recipient.ID, content)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	c.publishToBoth(ctx, event.Event{
		Kind:    event.KindChatMessage,
		Message: event.MessageFrom(msg, sender, recipient),
		From:    event.UserFrom(sender),
		To:      event.UserFrom(recipient),
	}, event.UserFrom(sender), event.UserFrom(recipient))

	return msg, nil
}

func (s *Session) send(ctx context.Context, content string) {
	if s.location.Page != PageChat || s.counterpart == nil {
		s.log.Debug().Msg("send outside a chat")
		return
	}
	if !s.areFriends {
		s.log.Debug().Int64("counterpart_id", s.counterpart.ID).Msg("send to non-friend dropped")
		return
	}

	msg, err := s.core.SendMessage(ctx, s.identity.User, s.counterpart, content)
	if err != nil {
		if errors.Is(err, ErrEmptyMessage) {
			return
		}
		s.log.Error().Err(err).Msg("send message")
		return
	}
	s.log.Debug().Int64("message_id", msg.ID).Msg("message sent")
}

func (s *Session) onChatMessage(ctx context.Context, ev *event.Event) {
	msg, other := ev.Message, ev.OtherUser
	if msg == nil || other == nil {
		return
	}

	isRecipient := msg.RecipientID == s.self.ID
	viewing := s.viewing(other.ID)

	// A viewing recipient never gets an unread badge, even when the read flip fails;
	// the message stays unread in storage and is picked up by the next bulk read.
	delta := proto.UnreadNone
	switch {
	case isRecipient && !viewing:
		delta = proto.UnreadIncrement
	case isRecipient && s.markMessageRead(ctx, msg):
		delta = proto.UnreadRead
	}

	if html, err := s.core.render.RecentChatHTML(s.self.ID, other, msg); err != nil {
		s.log.Error().Err(err).Msg("render recent chat")
	} else {
		s.emit(ctx, proto.NewRecentChat(other.UUID, delta, s.core.render.Preview(msg.Content), html))
	}

	if !viewing {
		return
	}
	html, err := s.core.render.MessageHTML(s.self.ID, msg)
	if err != nil {
		s.log.Error().Err(err).Msg("render message")
		return
	}
	s.emit(ctx, proto.NewMessage(other.UUID, proto.MessageView{
		UUID:          msg.UUID,
		SenderUUID:    msg.SenderUUID,
		RecipientUUID: msg.RecipientUUID,
		Content:       msg.Content,
		CreatedAt:     msg.CreatedAt,
		Read:          msg.Read,
	}, html))
}
