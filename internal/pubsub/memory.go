package pubsub

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-dm/internal/event"
)

// Memory is an in-process Layer. Every subscriber of a group receives its own
// clone of a published event.
type Memory struct {
	mu     sync.RWMutex
	groups map[string]map[string]Subscriber
	closed bool
	log    *zerolog.Logger
}

// NewMemory constructs an empty in-process layer. A nil logger disables logging.
func NewMemory(logger *zerolog.Logger) *Memory {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Memory{
		groups: make(map[string]map[string]Subscriber),
		log:    logger,
	}
}

// Join inserts sub into group.
func (m *Memory) Join(group string, sub Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	members, ok := m.groups[group]
	if !ok {
		members = make(map[string]Subscriber)
		m.groups[group] = members
	}
	if _, exists := members[sub.ID()]; exists {
		return ErrAlreadyJoined
	}
	members[sub.ID()] = sub
	return nil
}

// Leave removes sub from group. Empty groups are dropped.
func (m *Memory) Leave(group string, sub Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, ok := m.groups[group]
	if !ok {
		return ErrNotJoined
	}
	if _, exists := members[sub.ID()]; !exists {
		return ErrNotJoined
	}
	delete(members, sub.ID())
	if len(members) == 0 {
		delete(m.groups, group)
	}
	return nil
}

// Publish delivers ev to the current members of group.
func (m *Memory) Publish(ctx context.Context, group string, ev *event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.deliver(group, ev)
	return nil
}

func (m *Memory) deliver(group string, ev *event.Event) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return
	}
	members := make([]Subscriber, 0, len(m.groups[group]))
	for _, sub := range m.groups[group] {
		members = append(members, sub)
	}
	m.mu.RUnlock()

	for _, sub := range members {
		if !sub.Deliver(ev.Clone()) {
			// Drop if slow consumer.
			m.log.Warn().
				Str("group", group).
				Str("subscriber", sub.ID()).
				Str("kind", string(ev.Kind)).
				Msg("event dropped")
		}
	}
}

// Members returns the number of subscribers joined to group.
func (m *Memory) Members(group string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.groups[group])
}

// Close stops all further delivery.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.groups = make(map[string]map[string]Subscriber)
	return nil
}
