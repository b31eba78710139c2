package ws

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// eventsChannel is the Redis pub/sub channel carrying fan-out envelopes
// between server instances.
const eventsChannel = "resale:events"

type envelope struct {
	Scope   string `json:"scope"` // "room", "user" or "all"
	Target  string `json:"target,omitempty"`
	Exclude string `json:"exclude,omitempty"`
	Event   Event  `json:"event"`
}

// RedisBridge fans events out across server instances. Publishing and
// delivery are split: Notifier calls only publish, and the subscription
// loop delivers to local connections — including our own publishes, so
// there is a single delivery path regardless of which instance originated
// the event.
type RedisBridge struct {
	rdb *redis.Client
	hub *Hub
	log zerolog.Logger
}

// NewRedisBridge wires hub broadcasts through Redis pub/sub.
func NewRedisBridge(rdb *redis.Client, hub *Hub, log zerolog.Logger) *RedisBridge {
	return &RedisBridge{
		rdb: rdb,
		hub: hub,
		log: log.With().Str("component", "ws-bridge").Logger(),
	}
}

// Run consumes the events channel until ctx is cancelled. Call it in its
// own goroutine.
func (b *RedisBridge) Run(ctx context.Context) {
	sub := b.rdb.Subscribe(ctx, eventsChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.log.Warn().Err(err).Msg("malformed event envelope")
				continue
			}
			b.deliver(env)
		}
	}
}

func (b *RedisBridge) deliver(env envelope) {
	switch env.Scope {
	case "room":
		b.hub.BroadcastExcept(env.Target, env.Exclude, env.Event)
	case "user":
		b.hub.SendToUser(env.Target, env.Event)
	case "all":
		b.hub.BroadcastAll(env.Event)
	}
}

func (b *RedisBridge) publish(env envelope) {
	raw, err := json.Marshal(env)
	if err != nil {
		b.log.Warn().Err(err).Str("event", env.Event.Event).Msg("marshal envelope failed")
		return
	}
	if err := b.rdb.Publish(context.Background(), eventsChannel, raw).Err(); err != nil {
		b.log.Warn().Err(err).Str("event", env.Event.Event).Msg("publish failed")
	}
}

// Broadcast publishes a room-scoped event.
func (b *RedisBridge) Broadcast(room string, evt Event) {
	b.publish(envelope{Scope: "room", Target: room, Event: evt})
}

// BroadcastExcept publishes a room-scoped event that skips excludeUID's
// connections on every instance.
func (b *RedisBridge) BroadcastExcept(room, excludeUID string, evt Event) {
	b.publish(envelope{Scope: "room", Target: room, Exclude: excludeUID, Event: evt})
}

// SendToUser publishes a user-scoped event.
func (b *RedisBridge) SendToUser(externalUID string, evt Event) {
	b.publish(envelope{Scope: "user", Target: externalUID, Event: evt})
}

// BroadcastAll publishes an event for every connection on every instance.
func (b *RedisBridge) BroadcastAll(evt Event) {
	b.publish(envelope{Scope: "all", Target: "", Event: evt})
}
