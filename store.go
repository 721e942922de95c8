package auth

import (
	"context"
	"sync"

	"github.com/goliatone/go-errors"
)

// StoreSnapshot is a point in time copy of the session store state.
// Revision increases on every accepted identity write, equal values
// included, and when Restore loads a different identity.
type StoreSnapshot struct {
	Identity  *Identity
	IsLoading bool
	Revision  uint64
}

// StoreOption customizes session store construction.
type StoreOption func(*SessionStore)

// WithStorePersister sets the durable backing for the identity.
func WithStorePersister(p Persister) StoreOption {
	return func(s *SessionStore) {
		s.persister = p
	}
}

// WithStoreLogger overrides the logger used for persistence failures.
func WithStoreLogger(logger Logger) StoreOption {
	return func(s *SessionStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// SessionStore holds the current identity and the loading flag.
//
// Writers are serialized and every effective identity write is persisted
// before subscribers are notified. Reads never wait on persistence.
type SessionStore struct {
	writeMu sync.Mutex

	mu       sync.RWMutex
	identity *Identity
	loading  bool
	revision uint64
	disposed bool

	subMu   sync.Mutex
	subs    map[uint64]func(StoreSnapshot)
	nextSub uint64

	persister Persister
	logger    Logger
}

// NewSessionStore returns an empty store. Call Restore to load the
// persisted identity.
func NewSessionStore(opts ...StoreOption) *SessionStore {
	s := &SessionStore{
		subs:   make(map[uint64]func(StoreSnapshot)),
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Restore reads the persisted identity once. The loading flag always
// starts as false.
func (s *SessionStore) Restore(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}

	s.writeMu.Lock()

	identity, err := s.persister.Load(ctx)
	if err != nil {
		s.writeMu.Unlock()
		return errors.Wrap(err, errors.CategoryInternal, "failed to restore session store")
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		s.writeMu.Unlock()
		return ErrStoreDisposed
	}
	changed := !s.identity.Equal(identity)
	s.identity = identity.Clone()
	s.loading = false
	if changed {
		s.revision++
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.writeMu.Unlock()

	if changed {
		s.notify(snap)
	}
	return nil
}

// Identity returns a copy of the current identity, nil when signed out.
func (s *SessionStore) Identity() *Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity.Clone()
}

// IsLoading reports the transient loading flag.
func (s *SessionStore) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Revision returns the identity revision.
func (s *SessionStore) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Snapshot returns the full state at once.
func (s *SessionStore) Snapshot() StoreSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// SetIdentity replaces the identity. Writing a value equal to the
// current one neither persists nor notifies, it only moves the revision.
func (s *SessionStore) SetIdentity(ctx context.Context, identity *Identity) error {
	_, err := s.write(ctx, func(current *Identity, _ uint64) (*Identity, bool) {
		return identity, true
	})
	return err
}

// SetIdentityAt replaces the identity only if no other identity write
// happened since revision rev was observed. It reports whether the
// value was applied.
func (s *SessionStore) SetIdentityAt(ctx context.Context, rev uint64, identity *Identity) (bool, error) {
	return s.write(ctx, func(current *Identity, currentRev uint64) (*Identity, bool) {
		if currentRev != rev {
			return nil, false
		}
		return identity, true
	})
}

// Clear removes the identity.
func (s *SessionStore) Clear(ctx context.Context) error {
	return s.SetIdentity(ctx, nil)
}

// MergeProfile updates only the profile of the current identity. It does
// nothing when no identity is set.
func (s *SessionStore) MergeProfile(ctx context.Context, patch ProfilePatch) error {
	_, err := s.write(ctx, func(current *Identity, _ uint64) (*Identity, bool) {
		if current == nil {
			return nil, false
		}
		next := current.Clone()
		next.Profile = patch.Apply(current.Profile)
		return next, true
	})
	return err
}

// SetLoading toggles the loading flag. It is never persisted.
func (s *SessionStore) SetLoading(loading bool) {
	s.mu.Lock()
	if s.disposed || s.loading == loading {
		s.mu.Unlock()
		return
	}
	s.loading = loading
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// Subscribe registers fn to be called after every state change. The
// returned function removes the subscription and is safe to call more
// than once.
func (s *SessionStore) Subscribe(fn func(StoreSnapshot)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

// Dispose tears the store down. Later writes are dropped.
func (s *SessionStore) Dispose() {
	s.mu.Lock()
	s.disposed = true
	s.mu.Unlock()

	s.subMu.Lock()
	s.subs = make(map[uint64]func(StoreSnapshot))
	s.subMu.Unlock()
}

// Disposed reports whether Dispose was called.
func (s *SessionStore) Disposed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disposed
}

func (s *SessionStore) write(ctx context.Context, next func(current *Identity, rev uint64) (*Identity, bool)) (bool, error) {
	s.writeMu.Lock()

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		s.writeMu.Unlock()
		s.logger.Warn("session store write after dispose ignored")
		return false, ErrStoreDisposed
	}

	identity, apply := next(s.identity, s.revision)
	if !apply {
		s.mu.Unlock()
		s.writeMu.Unlock()
		return false, nil
	}

	// accepted writes move the revision even when nothing changed
	s.revision++
	if s.identity.Equal(identity) {
		s.mu.Unlock()
		s.writeMu.Unlock()
		return true, nil
	}

	s.identity = identity.Clone()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	var err error
	if s.persister != nil {
		if perr := s.persister.Save(ctx, snap.Identity); perr != nil {
			s.logger.Error("session store persist failed", "error", perr, "revision", snap.Revision)
			err = errors.Wrap(perr, errors.CategoryInternal, "failed to persist session store")
		}
	}
	s.writeMu.Unlock()

	s.notify(snap)
	return true, err
}

func (s *SessionStore) snapshotLocked() StoreSnapshot {
	return StoreSnapshot{
		Identity:  s.identity.Clone(),
		IsLoading: s.loading,
		Revision:  s.revision,
	}
}

// notify runs outside the write lock so subscribers may read or write the
// store. Deliveries can interleave under concurrent writers, compare
// Revision when order matters.
func (s *SessionStore) notify(snap StoreSnapshot) {
	s.subMu.Lock()
	fns := make([]func(StoreSnapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(StoreSnapshot{
			Identity:  snap.Identity.Clone(),
			IsLoading: snap.IsLoading,
			Revision:  snap.Revision,
		})
	}
}

// MemoryPersister keeps the persisted identity in memory. Useful for
// tests and ephemeral processes.
type MemoryPersister struct {
	mu       sync.Mutex
	identity *Identity
	saves    int
}

// NewMemoryPersister returns a persister seeded with identity.
func NewMemoryPersister(identity *Identity) *MemoryPersister {
	return &MemoryPersister{identity: identity.Clone()}
}

func (m *MemoryPersister) Load(context.Context) (*Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity.Clone(), nil
}

func (m *MemoryPersister) Save(_ context.Context, identity *Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identity = identity.Clone()
	m.saves++
	return nil
}

// Stored returns the last saved identity.
func (m *MemoryPersister) Stored() *Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity.Clone()
}

// Saves returns the number of Save calls.
func (m *MemoryPersister) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
