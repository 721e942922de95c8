package redisbus

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	auth "github.com/goliatone/go-dashboard-auth"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type recorder struct {
	mu     sync.Mutex
	events []auth.SessionEvent
	remote []bool
}

func (r *recorder) Broadcast(ctx context.Context, event auth.SessionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.remote = append(r.remote, IsRemote(ctx))
}

func (r *recorder) Events() []auth.SessionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]auth.SessionEvent(nil), r.events...)
}

func (r *recorder) Remote(i int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remote[i]
}

func encode(t *testing.T, env envelope) string {
	t.Helper()
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	return string(raw)
}

func TestNewDefaults(t *testing.T) {
	b := New(nil, Config{})
	assert.Equal(t, DefaultChannel, b.channel)
	assert.NotEmpty(t, b.Origin())

	other := New(nil, Config{})
	assert.NotEqual(t, b.Origin(), other.Origin())

	named := New(nil, Config{Channel: "custom", Origin: "node-a"})
	assert.Equal(t, "custom", named.channel)
	assert.Equal(t, "node-a", named.Origin())
}

func TestDecode(t *testing.T) {
	b := New(nil, Config{Origin: "node-a"}).WithLogger(nopLogger{})

	tests := []struct {
		name    string
		payload string
		want    auth.SessionEventKind
		ok      bool
	}{
		{
			name:    "event from another node",
			payload: encode(t, envelope{Origin: "node-b", Event: auth.SessionEvent{Kind: auth.SessionSignedOut}}),
			want:    auth.SessionSignedOut,
			ok:      true,
		},
		{
			name:    "own event is skipped",
			payload: encode(t, envelope{Origin: "node-a", Event: auth.SessionEvent{Kind: auth.SessionSignedOut}}),
		},
		{
			name:    "missing kind",
			payload: encode(t, envelope{Origin: "node-b"}),
		},
		{
			name:    "malformed payload",
			payload: "{not json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, ok := b.decode(tt.payload)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, event.Kind)
		})
	}
}

func TestDecodeKeepsSession(t *testing.T) {
	b := New(nil, Config{Origin: "node-a"})

	payload := encode(t, envelope{
		Origin: "node-b",
		Event: auth.SessionEvent{
			Kind:    auth.SessionSignedIn,
			Session: &auth.BackendSession{UserID: "u-1", Email: "a@example.com"},
		},
	})

	event, ok := b.decode(payload)
	require.True(t, ok)
	require.NotNil(t, event.Session)
	assert.Equal(t, "u-1", event.Session.UserID)
}

func TestPublishSkipsRemoteEvents(t *testing.T) {
	// a nil client would panic if the remote check did not short circuit
	b := New(nil, Config{})
	err := b.Publish(WithRemote(context.Background()), auth.SessionEvent{Kind: auth.SessionSignedOut})
	assert.NoError(t, err)
}

func TestRemoteMarker(t *testing.T) {
	ctx := context.Background()
	assert.False(t, IsRemote(ctx))
	assert.True(t, IsRemote(WithRemote(ctx)))
}

func testRedis(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis not available at %s: %v", addr, err)
	}

	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestBusRelaysBetweenNodes(t *testing.T) {
	client := testRedis(t)
	channel := "test:session-events:" + time.Now().Format("150405.000000")

	sender := New(client, Config{Channel: channel, Origin: "node-a"}).WithLogger(nopLogger{})
	receiver := New(client, Config{Channel: channel, Origin: "node-b"}).WithLogger(nopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	own := &recorder{}
	got := &recorder{}
	done := make(chan error, 2)
	go func() { done <- receiver.Run(ctx, got) }()
	go func() { done <- sender.Run(ctx, own) }()

	// retry until both subscriptions are live
	require.Eventually(t, func() bool {
		err := sender.Publish(ctx, auth.SessionEvent{Kind: auth.SessionSignedOut})
		return err == nil && len(got.Events()) > 0
	}, 5*time.Second, 50*time.Millisecond)

	events := got.Events()
	assert.Equal(t, auth.SessionSignedOut, events[0].Kind)
	assert.True(t, got.Remote(0))
	assert.Empty(t, own.Events())

	cancel()
	for i := 0; i < 2; i++ {
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("bus did not stop")
		}
	}
}
