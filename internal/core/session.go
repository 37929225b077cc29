package core

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-dm/internal/event"
	"github.com/vovakirdan/wirechat-dm/internal/proto"
	"github.com/vovakirdan/wirechat-dm/internal/store"
)

// Identity is the authenticated principal behind a connection.
type Identity struct {
	User      *store.User
	SessionID string
}

// Session is the per-connection state machine. It is driven by Run, which handles
// inbound frames and fan-out events one at a time on a single goroutine.
type Session struct {
	core     *Core
	id       string
	identity Identity
	self     *event.User
	log      zerolog.Logger

	events chan *event.Event
	out    chan proto.Outbound
	done   chan struct{}

	overflowOnce sync.Once
	overflow     chan struct{}

	mu     sync.Mutex
	joined []string
	closed bool

	// Owned by the Run goroutine.
	location    Location
	counterpart *store.User
	areFriends  bool
}

// NewSession creates a session for connection connID. identity may be empty.
func (c *Core) NewSession(connID string, identity Identity) *Session {
	logger := c.log.With().Str("conn_id", connID).Logger()
	if identity.User != nil {
		logger = logger.With().Int64("user_id", identity.User.ID).Logger()
	}
	return &Session{
		core:     c,
		id:       connID,
		identity: identity,
		self:     event.UserFrom(identity.User),
		log:      logger,
		events:   make(chan *event.Event, c.opts.SendBuffer),
		out:      make(chan proto.Outbound, c.opts.SendBuffer),
		done:     make(chan struct{}),
		overflow: make(chan struct{}),
	}
}

// ID implements pubsub.Subscriber.
func (s *Session) ID() string { return s.id }

// Deliver implements pubsub.Subscriber. It never blocks. A full inbox marks the
// session as overflowed and Run then stops with ErrSlowConsumer.
func (s *Session) Deliver(ev *event.Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	default:
		s.overflowOnce.Do(func() { close(s.overflow) })
		return false
	}
}

// Overflowed reports whether an event was dropped because the inbox was full.
func (s *Session) Overflowed() bool {
	select {
	case <-s.overflow:
		return true
	default:
		return false
	}
}

// Outbound is the queue of frames to write to the client.
func (s *Session) Outbound() <-chan proto.Outbound { return s.out }

// Done is closed once the session disconnects.
func (s *Session) Done() <-chan struct{} { return s.done }

// Location returns the current location. Call only from the Run goroutine.
func (s *Session) Location() Location { return s.location }

// Connect joins the user group and, when the login carries one, the session group.
func (s *Session) Connect(ctx context.Context) error {
	if s.identity.User == nil {
		return ErrUnauthenticated
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	groups := []string{GroupForUser(s.identity.User.ID)}
	if s.identity.SessionID != "" {
		groups = append(groups, GroupForSession(s.identity.SessionID))
	}
	for _, g := range groups {
		if err := s.core.layer.Join(g, s); err != nil {
			s.leaveLocked()
			return err
		}
		s.joined = append(s.joined, g)
	}

	s.log.Info().Strs("groups", s.joined).Msg("session connected")
	return nil
}

// Disconnect leaves every joined group. Safe to call more than once and before Connect.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	s.leaveLocked()
	s.log.Info().Msg("session disconnected")
}

func (s *Session) leaveLocked() {
	for _, g := range s.joined {
		if err := s.core.layer.Leave(g, s); err != nil {
			s.log.Warn().Err(err).Str("group", g).Msg("leave failed")
		}
	}
	s.joined = nil
}

// Run processes inbound frames and events until ctx is done, inbound is closed,
// the session disconnects, an event terminates it with ErrSessionTerminated or
// the inbox overflows with ErrSlowConsumer.
func (s *Session) Run(ctx context.Context, inbound <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case <-s.overflow:
			s.log.Warn().Msg("event inbox overflowed, closing session")
			return ErrSlowConsumer
		case raw, ok := <-inbound:
			if !ok {
				return nil
			}
			s.HandleInbound(ctx, raw)
		case ev := <-s.events:
			if err := s.HandleEvent(ctx, ev); err != nil {
				return err
			}
		}
	}
}

// HandleInbound applies one client frame. Malformed frames are dropped.
func (s *Session) HandleInbound(ctx context.Context, raw []byte) {
	msg, err := proto.DecodeInbound(raw)
	if err != nil {
		s.log.Debug().Err(err).Msg("dropping inbound frame")
		return
	}

	switch m := msg.(type) {
	case *proto.PageLoad:
		s.navigate(ctx, m.Path)
	case *proto.ChatLoad:
		s.openChat(ctx, m.Identity)
	case *proto.ChatUnload:
		s.clearLocation()
	case *proto.ChatSend:
		s.send(ctx, m.Content)
	}
}

// HandleEvent applies one fan-out event.
func (s *Session) HandleEvent(ctx context.Context, ev *event.Event) error {
	if ev == nil || s.self == nil {
		return nil
	}
	switch ev.Kind {
	case event.KindChatMessage:
		s.onChatMessage(ctx, ev)
	case event.KindMessageRead:
		s.onMessageRead(ctx, ev)
	case event.KindAllMessagesRead:
		s.onAllMessagesRead(ctx, ev)
	case event.KindFriendRequestSent,
		event.KindFriendRequestAccepted,
		event.KindFriendRequestRejected,
		event.KindFriendRequestCancelled,
		event.KindFriendRemoved:
		s.onSocial(ctx, ev)
	case event.KindAccountDeleted:
		return s.onAccountDeleted(ctx, ev)
	case event.KindSessionLoggedOut:
		s.emit(ctx, proto.NewSessionLoggedOut())
		return ErrSessionTerminated
	default:
		s.log.Debug().Str("kind", string(ev.Kind)).Msg("ignoring unknown event")
	}
	return nil
}

func (s *Session) navigate(ctx context.Context, rawPath string) {
	loc, ok := ResolvePath(rawPath)
	if !ok {
		s.log.Debug().Str("path", rawPath).Msg("unroutable path")
		s.clearLocation()
		return
	}
	if loc.Page == PageChat {
		s.openChat(ctx, loc.Identity)
		return
	}
	s.location = loc
	s.counterpart = nil
	s.areFriends = false
}

// openChat enters the direct-message view of the user with public id identity,
// then marks everything they sent to us as read.
func (s *Session) openChat(ctx context.Context, identity string) {
	id, err := uuid.Parse(identity)
	if err != nil {
		s.log.Debug().Str("identity", identity).Msg("invalid chat identity")
		s.clearLocation()
		return
	}

	opCtx, cancel := s.core.opContext(ctx)
	defer cancel()

	other, err := s.core.store.GetUserByUUID(opCtx, id.String())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.log.Debug().Str("identity", identity).Msg("chat counterpart not found")
		} else {
			s.log.Error().Err(err).Msg("load chat counterpart")
		}
		s.clearLocation()
		return
	}
	if other.ID == s.identity.User.ID || !other.Active {
		s.clearLocation()
		return
	}

	areFriends, err := s.core.store.IsFriend(opCtx, s.identity.User.ID, other.ID)
	if err != nil {
		s.log.Error().Err(err).Msg("check friendship")
		s.clearLocation()
		return
	}

	s.location = Location{Page: PageChat, Identity: other.UUID}
	s.counterpart = other
	s.areFriends = areFriends

	s.markConversationRead(opCtx, other)
}

func (s *Session) clearLocation() {
	s.location = Location{}
	s.counterpart = nil
	s.areFriends = false
}

// viewing reports whether the connection has the chat with userID open.
func (s *Session) viewing(userID int64) bool {
	return s.location.Page == PageChat && s.counterpart != nil && s.counterpart.ID == userID
}

func (s *Session) emit(ctx context.Context, o proto.Outbound) {
	select {
	case s.out <- o:
	case <-ctx.Done():
	case <-s.done:
	}
}
