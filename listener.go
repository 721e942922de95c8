package auth

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/goliatone/go-errors"
)

// ErrListenerStarted is returned when Start is called twice
var ErrListenerStarted = errors.New("session listener already started", errors.CategoryConflict).
	WithTextCode("SESSION_LISTENER_STARTED").
	WithCode(errors.CodeConflict)

// SessionListener bootstraps the session store and keeps it in sync with
// backend session-change notifications until Close is called.
//
// SIGNED_OUT clears the store right away from the notification callback.
// SIGNED_IN re-resolves the identity on the listener worker, bursts of
// SIGNED_IN are coalesced into one resolution.
type SessionListener struct {
	service      *AuthService
	store        *SessionStore
	backend      Backend
	logger       Logger
	activitySink ActivitySink

	resolveCh chan struct{}
	ready     chan struct{}
	done      chan struct{}

	// mu guards the start/close handshake and the fields it hands over
	mu          sync.Mutex
	cancel      context.CancelFunc
	unsubscribe func()

	started   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewSessionListener returns a listener for the service store and backend
func NewSessionListener(service *AuthService, backend Backend) *SessionListener {
	return &SessionListener{
		service:      service,
		store:        service.Store(),
		backend:      backend,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		resolveCh:    make(chan struct{}, 1),
		ready:        make(chan struct{}),
		done:         make(chan struct{}),
	}
}

func (l *SessionListener) WithLogger(logger Logger) *SessionListener {
	l.logger = ResolveLogger(logger)
	return l
}

// WithActivitySink configures an ActivitySink for session events.
func (l *SessionListener) WithActivitySink(sink ActivitySink) *SessionListener {
	l.activitySink = normalizeActivitySink(sink)
	return l
}

// Start marks the store as loading, subscribes to session changes and
// resolves the current identity in the background. Ready is closed once
// that first resolution finished, whatever its outcome.
func (l *SessionListener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.started.CompareAndSwap(false, true) {
		return ErrListenerStarted
	}

	if l.closed.Load() {
		close(l.ready)
		close(l.done)
		return nil
	}

	l.store.SetLoading(true)

	workerCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.unsubscribe = l.backend.OnSessionChange(l.handle)

	go l.run(workerCtx)
	return nil
}

// Ready is closed after the bootstrap resolution completed.
func (l *SessionListener) Ready() <-chan struct{} {
	return l.ready
}

// Done is closed once the worker exited.
func (l *SessionListener) Done() <-chan struct{} {
	return l.done
}

// Close cancels the subscription and stops the worker. Only the first
// call has an effect.
func (l *SessionListener) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed.Store(true)
		started := l.started.Load()
		unsubscribe, cancel := l.unsubscribe, l.cancel
		l.mu.Unlock()

		if !started {
			return
		}

		if unsubscribe != nil {
			unsubscribe()
		}
		if cancel != nil {
			cancel()
		}
		<-l.done
		l.logger.Debug("session listener closed")
	})
	return nil
}

func (l *SessionListener) run(ctx context.Context) {
	defer close(l.done)

	l.bootstrap(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.resolveCh:
			if l.closed.Load() {
				return
			}
			if _, err := l.service.CurrentIdentity(ctx); err != nil {
				l.logger.Warn("session listener re-resolve failed", "error", err)
			}
		}
	}
}

func (l *SessionListener) bootstrap(ctx context.Context) {
	defer close(l.ready)
	defer l.store.SetLoading(false)

	identity, err := l.service.CurrentIdentity(ctx)
	if err != nil {
		l.logger.Warn("session bootstrap failed", "error", err)
		return
	}

	if identity == nil {
		l.logger.Debug("session bootstrap found no active session")
		return
	}

	l.logger.Info("session bootstrap restored identity", "user_id", identity.ID, "role", identity.Role)
}

func (l *SessionListener) handle(ctx context.Context, event SessionEvent) {
	if l.closed.Load() {
		return
	}

	switch event.Kind {
	case SessionSignedIn:
		if event.Session == nil {
			l.logger.Debug("session listener ignored SIGNED_IN without session")
			return
		}
		select {
		case l.resolveCh <- struct{}{}:
		default:
		}
	case SessionSignedOut:
		previous := l.store.Identity()
		if err := l.store.Clear(ctx); err != nil {
			l.logger.Warn("session listener could not clear store", "error", err)
			return
		}
		event := ActivityEvent{EventType: ActivityEventSessionCleared}
		if previous != nil {
			event.UserID = previous.ID
			event.Role = previous.Role
		}
		recordActivity(ctx, l.activitySink, l.logger, event)
	default:
		l.logger.Debug("session listener ignored event", "kind", event.Kind)
	}
}
