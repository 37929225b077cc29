package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-dm/internal/event"
	"github.com/vovakirdan/wirechat-dm/internal/proto"
	"github.com/vovakirdan/wirechat-dm/internal/pubsub"
	"github.com/vovakirdan/wirechat-dm/internal/store"
)

// fakeStore keeps users, friendships and messages in memory with the same guarded
// read semantics as the sqlite store.
type fakeStore struct {
	mu       sync.Mutex
	users    map[int64]*store.User
	friends  map[[2]int64]bool
	messages map[int64]*store.Message
	nextID   int64

	createErr error
	markErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[int64]*store.User),
		friends:  make(map[[2]int64]bool),
		messages: make(map[int64]*store.Message),
	}
}

func (f *fakeStore) addUser(name string) *store.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	u := &store.User{ID: f.nextID, UUID: uuid.NewString(), Username: name, Active: true, CreatedAt: time.Now()}
	f.users[u.ID] = u
	return u
}

func pairKey(a, b int64) [2]int64 {
	if a > b {
		a, b = b, a
	}
	return [2]int64{a, b}
}

func (f *fakeStore) befriend(a, b *store.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.friends[pairKey(a.ID, b.ID)] = true
}

func (f *fakeStore) unfriend(a, b *store.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.friends, pairKey(a.ID, b.ID))
}

func (f *fakeStore) messageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *fakeStore) GetUserByUUID(_ context.Context, id string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.UUID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) IsFriend(_ context.Context, a, b int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.friends[pairKey(a, b)], nil
}

func (f *fakeStore) CreateMessage(_ context.Context, senderID, recipientID int64, content string) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	m := &store.Message{
		ID:          f.nextID,
		UUID:        uuid.NewString(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     content,
		CreatedAt:   time.Now(),
	}
	f.messages[m.ID] = m
	cp := *m
	return &cp, nil
}

func (f *fakeStore) MarkMessageRead(_ context.Context, id int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return 0, f.markErr
	}
	m, ok := f.messages[id]
	if !ok || m.Read {
		return 0, nil
	}
	m.Read = true
	return 1, nil
}

func (f *fakeStore) MarkConversationRead(_ context.Context, senderID, recipientID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, m := range f.messages {
		if m.SenderID == senderID && m.RecipientID == recipientID && !m.Read {
			m.Read = true
			n++
		}
	}
	return n, nil
}

// recordingLayer is a Memory layer that remembers every publish.
type recordingLayer struct {
	*pubsub.Memory

	mu        sync.Mutex
	published []published
}

type published struct {
	group string
	ev    *event.Event
}

func newRecordingLayer() *recordingLayer {
	return &recordingLayer{Memory: pubsub.NewMemory(nil)}
}

func (l *recordingLayer) Publish(ctx context.Context, group string, ev *event.Event) error {
	l.mu.Lock()
	l.published = append(l.published, published{group: group, ev: ev.Clone()})
	l.mu.Unlock()
	return l.Memory.Publish(ctx, group, ev)
}

func (l *recordingLayer) kinds(kind event.Kind) []published {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []published
	for _, p := range l.published {
		if p.ev.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

// stubRenderer renders recognisable strings.
type stubRenderer struct{}

func (stubRenderer) MessageHTML(viewerID int64, m *event.Message) (string, error) {
	return fmt.Sprintf("msg:%s:%s:read=%t", m.UUID, m.Content, m.Read), nil
}

func (stubRenderer) RecentChatHTML(_ int64, other *event.User, last *event.Message) (string, error) {
	return fmt.Sprintf("recent:%s:%s", other.UUID, stubRenderer{}.Preview(last.Content)), nil
}

func (stubRenderer) UserRowHTML(other *event.User, section proto.Section) (string, error) {
	return fmt.Sprintf("row:%s:%s", section, other.UUID), nil
}

func (stubRenderer) Preview(text string) string {
	r := []rune(text)
	if len(r) > 4 {
		return string(r[:4])
	}
	return text
}

type harness struct {
	t     *testing.T
	core  *Core
	store *fakeStore
	layer *recordingLayer
	conns int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := newFakeStore()
	layer := newRecordingLayer()
	t.Cleanup(func() { _ = layer.Close() })
	return &harness{
		t:     t,
		core:  New(st, layer, stubRenderer{}, nil, Options{OpTimeout: time.Second}),
		store: st,
		layer: layer,
	}
}

// connect opens a connected session for u.
func (h *harness) connect(u *store.User, sessionID string) *Session {
	h.t.Helper()
	h.conns++
	s := h.core.NewSession(fmt.Sprintf("conn-%d", h.conns), Identity{User: u, SessionID: sessionID})
	require.NoError(h.t, s.Connect(context.Background()))
	h.t.Cleanup(s.Disconnect)
	return s
}

func (h *harness) inbound(s *Session, raw string) {
	h.t.Helper()
	s.HandleInbound(context.Background(), []byte(raw))
}

func (h *harness) open(s *Session, other *store.User) {
	h.t.Helper()
	h.inbound(s, fmt.Sprintf(`{"type":"page_load","path":"/chat/%s/"}`, other.UUID))
	require.Equal(h.t, PageChat, s.location.Page)
}

// settle handles queued events on every session until all inboxes are empty.
// It returns the sessions that reported a terminating error.
func (h *harness) settle(sessions ...*Session) map[*Session]error {
	h.t.Helper()
	errs := make(map[*Session]error)
	for {
		progressed := false
		for _, s := range sessions {
			select {
			case ev := <-s.events:
				progressed = true
				if err := s.HandleEvent(context.Background(), ev); err != nil {
					errs[s] = err
				}
			default:
			}
		}
		if !progressed {
			return errs
		}
	}
}

func drain(s *Session) []proto.Outbound {
	var out []proto.Outbound
	for {
		select {
		case o := <-s.out:
			out = append(out, o)
		default:
			return out
		}
	}
}

func ofType(frames []proto.Outbound, typ string) []proto.Outbound {
	var out []proto.Outbound
	for _, f := range frames {
		if f.OutboundType() == typ {
			out = append(out, f)
		}
	}
	return out
}

var errBoom = errors.New("boom")
