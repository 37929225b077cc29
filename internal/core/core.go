// Package core implements the realtime direct-messaging sessions and their fan-out.
package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-dm/internal/event"
	"github.com/vovakirdan/wirechat-dm/internal/proto"
	"github.com/vovakirdan/wirechat-dm/internal/pubsub"
	"github.com/vovakirdan/wirechat-dm/internal/store"
)

const (
	DefaultOpTimeout  = 5 * time.Second
	DefaultSendBuffer = 64
)

// Store is the persistence the realtime core needs.
type Store interface {
	GetUserByUUID(ctx context.Context, uuid string) (*store.User, error)
	IsFriend(ctx context.Context, userID, friendID int64) (bool, error)
	CreateMessage(ctx context.Context, senderID, recipientID int64, content string) (*store.Message, error)
	MarkMessageRead(ctx context.Context, messageID int64) (int64, error)
	MarkConversationRead(ctx context.Context, senderID, recipientID int64) (int64, error)
}

// Renderer produces the HTML fragments sent to clients.
type Renderer interface {
	MessageHTML(viewerID int64, m *event.Message) (string, error)
	RecentChatHTML(viewerID int64, other *event.User, last *event.Message) (string, error)
	UserRowHTML(other *event.User, section proto.Section) (string, error)
	Preview(text string) string
}

// Options tunes sessions.
type Options struct {
	// OpTimeout bounds each storage call made while handling one command or event.
	OpTimeout time.Duration
	// SendBuffer is the capacity of a session's event inbox and outbound queue.
	SendBuffer int
}

// Core owns the collaborators shared by every session.
type Core struct {
	store  Store
	layer  pubsub.Layer
	render Renderer
	log    *zerolog.Logger
	opts   Options
}

// New wires a core. A nil logger disables logging.
func New(st Store, layer pubsub.Layer, r Renderer, logger *zerolog.Logger, opts Options) *Core {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = DefaultOpTimeout
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}
	return &Core{
		store:  st,
		layer:  layer,
		render: r,
		log:    logger,
		opts:   opts,
	}
}

func (c *Core) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opts.OpTimeout)
}

// publishToBoth publishes one copy of ev to each participant group with OtherUser
// set to the opposite participant.
func (c *Core) publishToBoth(ctx context.Context, ev event.Event, a, b *event.User) {
	forA := ev
	forA.OtherUser = b
	c.publish(ctx, GroupForUser(a.ID), &forA)

	forB := ev
	forB.OtherUser = a
	c.publish(ctx, GroupForUser(b.ID), &forB)
}

// publish runs after a committed write, so it outlives cancellation of ctx.
func (c *Core) publish(ctx context.Context, group string, ev *event.Event) {
	ctx, cancel := c.opContext(context.WithoutCancel(ctx))
	defer cancel()

	if err := c.layer.Publish(ctx, group, ev); err != nil {
		c.log.Error().Err(err).Str("group", group).Str("kind", string(ev.Kind)).Msg("publish failed")
	}
}
