package pubsub

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/vovakirdan/wirechat-dm/internal/event"
)

// DefaultRedisPrefix namespaces group channels on a shared redis.
const DefaultRedisPrefix = "wirechat:"

// Redis is a Layer backed by redis PUBLISH/PSUBSCRIBE. Membership stays local to
// the process; events published by any process reach every local member once Run
// is active.
type Redis struct {
	client *redis.Client
	prefix string
	local  *Memory
	log    *zerolog.Logger
}

// NewRedis builds a redis layer on an existing client.
func NewRedis(client *redis.Client, prefix string, logger *zerolog.Logger) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Redis{
		client: client,
		prefix: prefix,
		local:  NewMemory(logger),
		log:    logger,
	}
}

// Join registers sub for events on group.
func (r *Redis) Join(group string, sub Subscriber) error {
	return r.local.Join(group, sub)
}

// Leave unregisters sub from group.
func (r *Redis) Leave(group string, sub Subscriber) error {
	return r.local.Leave(group, sub)
}

// Publish encodes ev and publishes it on the group channel.
func (r *Redis) Publish(ctx context.Context, group string, ev *event.Event) error {
	payload, err := msgpack.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := r.client.Publish(ctx, r.prefix+group, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Run subscribes to every group channel and delivers incoming events to local
// members until ctx is done.
func (r *Redis) Run(ctx context.Context) error {
	sub := r.client.PSubscribe(ctx, r.prefix+"*")
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	r.log.Info().Str("prefix", r.prefix).Msg("redis pubsub subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			group := strings.TrimPrefix(msg.Channel, r.prefix)
			var ev event.Event
			if err := msgpack.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.log.Warn().Err(err).Str("channel", msg.Channel).Msg("undecodable event")
				continue
			}
			r.local.deliver(group, &ev)
		}
	}
}

// Close drops local membership. The redis client is owned by the caller.
func (r *Redis) Close() error {
	return r.local.Close()
}
