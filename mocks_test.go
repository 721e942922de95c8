package auth_test

import (
	"context"
	"sync"

	auth "github.com/goliatone/go-dashboard-auth"
	"github.com/stretchr/testify/mock"
)

// MockBackend implements auth.Backend. Session change handlers are kept
// outside of the mock so tests can fire events with Emit.
type MockBackend struct {
	mock.Mock

	mu       sync.Mutex
	handlers map[int]auth.SessionChangeFunc
	nextID   int
}

func (m *MockBackend) SignInWithPassword(ctx context.Context, email, password string) (*auth.BackendSession, error) {
	args := m.Called(ctx, email, password)
	session, _ := args.Get(0).(*auth.BackendSession)
	return session, args.Error(1)
}

func (m *MockBackend) GetCurrentSession(ctx context.Context) (*auth.BackendSession, error) {
	args := m.Called(ctx)
	session, _ := args.Get(0).(*auth.BackendSession)
	return session, args.Error(1)
}

func (m *MockBackend) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockBackend) FetchProfileByID(ctx context.Context, id string) (*auth.Profile, error) {
	args := m.Called(ctx, id)
	profile, _ := args.Get(0).(*auth.Profile)
	return profile, args.Error(1)
}

func (m *MockBackend) OnSessionChange(fn auth.SessionChangeFunc) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handlers == nil {
		m.handlers = map[int]auth.SessionChangeFunc{}
	}
	id := m.nextID
	m.nextID++
	m.handlers[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.handlers, id)
	}
}

// Emit delivers event to every registered handler
func (m *MockBackend) Emit(ctx context.Context, event auth.SessionEvent) {
	m.mu.Lock()
	fns := make([]auth.SessionChangeFunc, 0, len(m.handlers))
	for _, fn := range m.handlers {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(ctx, event)
	}
}

// Handlers returns the number of registered handlers
func (m *MockBackend) Handlers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers)
}

// MockWritableBackend adds the optional profile and password capabilities
type MockWritableBackend struct {
	MockBackend
}

func (m *MockWritableBackend) UpdateProfile(ctx context.Context, userID string, patch auth.ProfilePatch) (*auth.Profile, error) {
	args := m.Called(ctx, userID, patch)
	profile, _ := args.Get(0).(*auth.Profile)
	return profile, args.Error(1)
}

func (m *MockWritableBackend) UpdatePassword(ctx context.Context, password string) error {
	args := m.Called(ctx, password)
	return args.Error(0)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (r *recordingSink) Record(_ context.Context, event auth.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingSink) Types() []auth.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

type recordingNavigator struct {
	mu           sync.Mutex
	destinations []string
}

func (n *recordingNavigator) Navigate(_ context.Context, destination string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.destinations = append(n.destinations, destination)
}

func (n *recordingNavigator) Destinations() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.destinations...)
}

func newTestStore(persister auth.Persister) *auth.SessionStore {
	opts := []auth.StoreOption{auth.WithStoreLogger(nopLogger{})}
	if persister != nil {
		opts = append(opts, auth.WithStorePersister(persister))
	}
	return auth.NewSessionStore(opts...)
}

func strPtr(s string) *string {
	return &s
}

func adminSession() *auth.BackendSession {
	return &auth.BackendSession{
		UserID:   "u-1",
		Email:    "admin@example.com",
		Metadata: map[string]any{"role": "admin"},
	}
}
