package redisbus

import (
	"context"
	"encoding/json"
	"time"

	auth "github.com/goliatone/go-dashboard-auth"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel session events travel on
const DefaultChannel = "hrm:auth:session-events"

// Broadcaster replays an event to local subscribers only
type Broadcaster interface {
	Broadcast(ctx context.Context, event auth.SessionEvent)
}

// Config configures a Bus
type Config struct {
	Channel string
	// Origin identifies this process, events it published are not replayed
	// back to it. Defaults to a random id.
	Origin string
}

type envelope struct {
	Origin string            `json:"origin"`
	Event  auth.SessionEvent `json:"event"`
	SentAt time.Time         `json:"sent_at"`
}

// Bus relays session change events between processes sharing one
// backend database, so a sign out in one process reaches the others.
type Bus struct {
	client  redis.UniversalClient
	channel string
	origin  string
	logger  auth.Logger
}

// New returns a bus publishing on cfg.Channel through client
func New(client redis.UniversalClient, cfg Config) *Bus {
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Origin == "" {
		cfg.Origin = uuid.NewString()
	}

	return &Bus{
		client:  client,
		channel: cfg.Channel,
		origin:  cfg.Origin,
		logger:  auth.ResolveLogger(nil),
	}
}

func (b *Bus) WithLogger(logger auth.Logger) *Bus {
	b.logger = auth.ResolveLogger(logger)
	return b
}

// Origin returns the id this bus tags its messages with
func (b *Bus) Origin() string {
	return b.origin
}

// Publish sends event to the other processes. Events that were
// themselves received from the bus are not sent again.
func (b *Bus) Publish(ctx context.Context, event auth.SessionEvent) error {
	if IsRemote(ctx) {
		return nil
	}

	payload, err := json.Marshal(envelope{
		Origin: b.origin,
		Event:  event,
		SentAt: time.Now().UTC(),
	})
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to encode session event")
	}

	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return errors.Wrap(err, errors.CategoryOperation, "failed to publish session event").
			WithMetadata(map[string]any{"channel": b.channel, "kind": event.Kind})
	}
	return nil
}

// Forward publishes every session change of backend until the returned
// function is called.
func (b *Bus) Forward(backend auth.Backend) (unsubscribe func()) {
	return backend.OnSessionChange(func(ctx context.Context, event auth.SessionEvent) {
		if err := b.Publish(ctx, event); err != nil {
			b.logger.Warn("session event not published", "kind", event.Kind, "error", err)
		}
	})
}

// Run replays events published by other processes into target until ctx
// is done.
func (b *Bus) Run(ctx context.Context, target Broadcaster) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer func() {
		if err := sub.Close(); err != nil {
			b.logger.Debug("session event subscription close failed", "error", err)
		}
	}()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return errors.Wrap(err, errors.CategoryOperation, "failed to subscribe to session events").
			WithMetadata(map[string]any{"channel": b.channel})
	}

	b.logger.Info("session event bus subscribed", "channel", b.channel, "origin", b.origin)

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			event, ok := b.decode(msg.Payload)
			if !ok {
				continue
			}
			target.Broadcast(WithRemote(ctx), event)
		}
	}
}

func (b *Bus) decode(payload string) (auth.SessionEvent, bool) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		b.logger.Warn("malformed session event dropped", "error", err)
		return auth.SessionEvent{}, false
	}

	if env.Origin == b.origin {
		return auth.SessionEvent{}, false
	}

	if env.Event.Kind == "" {
		b.logger.Debug("session event without kind dropped", "origin", env.Origin)
		return auth.SessionEvent{}, false
	}

	return env.Event, true
}

type remoteKey struct{}

// WithRemote marks ctx as carrying an event received from the bus
func WithRemote(ctx context.Context) context.Context {
	return context.WithValue(ctx, remoteKey{}, true)
}

// IsRemote reports whether ctx was marked by WithRemote
func IsRemote(ctx context.Context) bool {
	remote, _ := ctx.Value(remoteKey{}).(bool)
	return remote
}
