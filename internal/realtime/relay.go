package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"marketplace_backend/platform/logger"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const relayPublishTimeout = 2 * time.Second

// envelope is one broadcast on the relay channel.
type envelope struct {
	Room  string          `json:"room"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Relay is a Broadcaster that publishes to a Redis channel so every instance
// subscribed to it delivers to its own members. Instances deliver only what
// they receive from the channel, including their own publishes.
type Relay struct {
	rdb     redis.UniversalClient
	channel string
	local   Broadcaster
	log     *logger.Logger

	readyOnce sync.Once
	ready     chan struct{}
}

// NewRelay creates a relay. A nil local broadcaster makes it publish-only,
// which is what out-of-process producers such as the scheduler worker use.
func NewRelay(rdb redis.UniversalClient, channel string, local Broadcaster, log *logger.Logger) *Relay {
	if log == nil {
		log = logger.Discard()
	}
	return &Relay{
		rdb:     rdb,
		channel: channel,
		local:   local,
		log:     log.WithComponent("realtime_relay"),
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the subscription is confirmed by Redis.
func (r *Relay) Ready() <-chan struct{} { return r.ready }

// Broadcast publishes the event. When Redis is unreachable the event is
// delivered to local members only.
func (r *Relay) Broadcast(room, event string, payload any) {
	if err := r.Publish(context.Background(), room, event, payload); err != nil {
		r.log.Warn("relay publish failed", "room", room, "event", event, "error", err)
		if r.local != nil {
			r.local.Broadcast(room, event, payload)
		}
	}
}

// Publish sends one broadcast to the relay channel.
func (r *Relay) Publish(ctx context.Context, room, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	msg, err := json.Marshal(envelope{Room: room, Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, relayPublishTimeout)
	defer cancel()
	return r.rdb.Publish(ctx, r.channel, msg).Err()
}

// Run subscribes to the relay channel and delivers every envelope to the
// local broadcaster until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	if r.local == nil {
		return nil
	}

	sub := r.rdb.Subscribe(ctx, r.channel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.readyOnce.Do(func() { close(r.ready) })
	r.log.Info("relay subscribed", "channel", r.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.log.Warn("relay dropped malformed envelope", "error", err)
				continue
			}
			if env.Room == "" || env.Event == "" {
				continue
			}
			r.local.Broadcast(env.Room, env.Event, env.Data)
		}
	}
}

var _ Broadcaster = (*Relay)(nil)
