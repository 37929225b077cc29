// Package pubsub is the group-addressable fan-out substrate used by the realtime core.
package pubsub

import (
	"context"
	"errors"

	"github.com/vovakirdan/wirechat-dm/internal/event"
)

var (
	ErrAlreadyJoined = errors.New("already joined")
	ErrNotJoined     = errors.New("not joined")
	ErrClosed        = errors.New("pubsub closed")
)

// Subscriber is a connection handle that can receive events.
type Subscriber interface {
	ID() string
	// Deliver hands the event to the subscriber without blocking.
	// It returns false when the event was dropped.
	Deliver(ev *event.Event) bool
}

// Layer joins subscribers to named groups and publishes events to them.
type Layer interface {
	Join(group string, sub Subscriber) error
	Leave(group string, sub Subscriber) error
	// Publish delivers ev to every subscriber currently joined to group.
	Publish(ctx context.Context, group string, ev *event.Event) error
	Close() error
}
