package local

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	auth "github.com/goliatone/go-dashboard-auth"
	"github.com/goliatone/go-dashboard-auth/repository"
	"github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"golang.org/x/crypto/bcrypt"

	_ "github.com/mattn/go-sqlite3"
)

type quietLogger struct{}

func (quietLogger) Debug(string, ...any) {}
func (quietLogger) Info(string, ...any)  {}
func (quietLogger) Warn(string, ...any)  {}
func (quietLogger) Error(string, ...any) {}

type eventLog struct {
	mu    sync.Mutex
	kinds []auth.SessionEventKind
}

func (e *eventLog) record(_ context.Context, event auth.SessionEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.kinds = append(e.kinds, event.Kind)
}

func (e *eventLog) Kinds() []auth.SessionEventKind {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]auth.SessionEventKind(nil), e.kinds...)
}

func testConfig() Config {
	return Config{
		SigningKey: []byte("0123456789abcdef0123456789abcdef"),
		TokenTTL:   time.Hour,
		BcryptCost: bcrypt.MinCost,
	}
}

func setupProvider(t *testing.T) (*Provider, *repository.Manager, func()) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())
	repos := repository.NewManager(bunDB)
	require.NoError(t, repos.EnsureSchema(context.Background()))

	p, err := New(repos, testConfig())
	require.NoError(t, err)
	p.WithLogger(quietLogger{})

	cleanup := func() {
		_ = bunDB.Close()
		_ = db.Close()
	}
	return p, repos, cleanup
}

func register(t *testing.T, p *Provider, email string, role auth.UserRole, confirmed bool) *repository.UserRecord {
	t.Helper()
	user, err := p.Register(context.Background(), Registration{
		Email:       email,
		Password:    "correct-horse",
		Role:        role,
		DisplayName: "Test " + string(role),
		Confirmed:   confirmed,
	})
	require.NoError(t, err)
	return user
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(nil, testConfig())
	assert.Error(t, err)

	_, repos, cleanup := setupProvider(t)
	defer cleanup()

	_, err = New(repos, Config{SigningKey: []byte("short")})
	assert.Error(t, err)
}

func TestSignInAndCurrentSession(t *testing.T) {
	p, _, cleanup := setupProvider(t)
	defer cleanup()

	ctx := context.Background()
	user := register(t, p, "Mentor@Example.com", auth.RoleMentor, true)

	events := &eventLog{}
	unsubscribe := p.OnSessionChange(events.record)
	defer unsubscribe()

	session, err := p.SignInWithPassword(ctx, "mentor@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), session.UserID)
	assert.Equal(t, "mentor", session.Metadata["role"])
	assert.NotNil(t, session.EmailConfirmedAt)
	require.NotNil(t, session.ExpiresAt)

	current, err := p.GetCurrentSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, session.UserID, current.UserID)

	assert.Equal(t, []auth.SessionEventKind{auth.SessionSignedIn}, events.Kinds())
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	p, _, cleanup := setupProvider(t)
	defer cleanup()

	ctx := context.Background()
	register(t, p, "user@example.com", auth.RoleUser, false)

	_, err := p.SignInWithPassword(ctx, "user@example.com", "wrong-password")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))

	_, err = p.SignInWithPassword(ctx, "nobody@example.com", "correct-horse")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))

	current, err := p.GetCurrentSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestSessionSurvivesRestart(t *testing.T) {
	p, repos, cleanup := setupProvider(t)
	defer cleanup()

	ctx := context.Background()
	register(t, p, "admin@example.com", auth.RoleAdmin, true)

	_, err := p.SignInWithPassword(ctx, "admin@example.com", "correct-horse")
	require.NoError(t, err)

	restarted, err := New(repos, testConfig())
	require.NoError(t, err)
	restarted.WithLogger(quietLogger{})

	current, err := restarted.GetCurrentSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, "admin", current.Metadata["role"])
}

func TestExpiredSessionIsDiscarded(t *testing.T) {
	p, _, cleanup := setupProvider(t)
	defer cleanup()

	ctx := context.Background()
	register(t, p, "admin@example.com", auth.RoleAdmin, true)

	now := time.Now()
	p.WithClock(func() time.Time { return now })

	_, err := p.SignInWithPassword(ctx, "admin@example.com", "correct-horse")
	require.NoError(t, err)

	events := &eventLog{}
	p.OnSessionChange(events.record)

	now = now.Add(2 * time.Hour)

	current, err := p.GetCurrentSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, current)
	assert.Equal(t, []auth.SessionEventKind{auth.SessionSignedOut}, events.Kinds())

	current, err = p.GetCurrentSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, current)
	assert.Len(t, events.Kinds(), 1)
}

func TestSignOutAndRefresh(t *testing.T) {
	p, _, cleanup := setupProvider(t)
	defer cleanup()

	ctx := context.Background()
	register(t, p, "admin@example.com", auth.RoleAdmin, true)

	_, err := p.RefreshSession(ctx)
	assert.ErrorIs(t, err, auth.ErrNotSignedIn)

	_, err = p.SignInWithPassword(ctx, "admin@example.com", "correct-horse")
	require.NoError(t, err)

	events := &eventLog{}
	p.OnSessionChange(events.record)

	refreshed, err := p.RefreshSession(ctx)
	require.NoError(t, err)
	assert.NotNil(t, refreshed.ExpiresAt)

	require.NoError(t, p.SignOut(ctx))

	current, err := p.GetCurrentSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, current)

	assert.Equal(t, []auth.SessionEventKind{auth.SessionTokenRefreshed, auth.SessionSignedOut}, events.Kinds())
}

func TestRegister(t *testing.T) {
	p, _, cleanup := setupProvider(t)
	defer cleanup()

	ctx := context.Background()
	user := register(t, p, "user@example.com", "", false)
	assert.Equal(t, string(auth.RoleUser), user.Role)
	assert.Nil(t, user.EmailConfirmedAt)

	profile, err := p.FetchProfileByID(ctx, user.ID.String())
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "Test", profile.DisplayName)

	_, err = p.Register(ctx, Registration{Email: "USER@example.com", Password: "another-pass"})
	assert.True(t, errors.Is(err, ErrEmailTaken))

	_, err = p.Register(ctx, Registration{Email: "x@example.com", Password: "short"})
	assert.Error(t, err)

	_, err = p.Register(ctx, Registration{Email: "y@example.com", Password: "long-enough", Role: "owner"})
	assert.Error(t, err)
}

func TestFetchProfileUnknownUser(t *testing.T) {
	p, _, cleanup := setupProvider(t)
	defer cleanup()

	profile, err := p.FetchProfileByID(context.Background(), "2f1b2c0e-7d5e-4bde-9b0c-6c1f1e6f2a10")
	require.NoError(t, err)
	assert.Nil(t, profile)

	_, err = p.FetchProfileByID(context.Background(), "not-a-uuid")
	assert.Error(t, err)
}

func TestUpdateProfileAndPassword(t *testing.T) {
	p, _, cleanup := setupProvider(t)
	defer cleanup()

	ctx := context.Background()
	user := register(t, p, "user@example.com", auth.RoleUser, true)

	assert.ErrorIs(t, p.UpdatePassword(ctx, "new-password"), auth.ErrNotSignedIn)

	name := "Renamed"
	profile, err := p.UpdateProfile(ctx, user.ID.String(), auth.ProfilePatch{DisplayName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", profile.DisplayName)

	_, err = p.SignInWithPassword(ctx, "user@example.com", "correct-horse")
	require.NoError(t, err)
	require.NoError(t, p.UpdatePassword(ctx, "new-password"))

	_, err = p.SignInWithPassword(ctx, "user@example.com", "correct-horse")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))

	_, err = p.SignInWithPassword(ctx, "user@example.com", "new-password")
	assert.NoError(t, err)
}

func TestWithAuthService(t *testing.T) {
	p, repos, cleanup := setupProvider(t)
	defer cleanup()

	ctx := context.Background()
	register(t, p, "admin@example.com", auth.RoleAdmin, false)

	store := auth.NewSessionStore(
		auth.WithStorePersister(repository.NewIdentityPersister(repos.Records(), "")),
		auth.WithStoreLogger(quietLogger{}),
	)
	svc := auth.NewAuthService(p, store).WithLogger(quietLogger{})

	_, err := svc.SignIn(ctx, "admin@example.com", "nope-nope")
	require.Error(t, err)
	assert.True(t, auth.IsAuthenticationFailure(err))
	assert.Equal(t, "Invalid login credentials", auth.ErrorMessage(err))

	result, err := svc.SignIn(ctx, "admin@example.com", "correct-horse")
	require.NoError(t, err)
	assert.True(t, result.NeedsVerification)
	assert.Equal(t, auth.RoleAdmin, result.Identity.Role)
	require.NotNil(t, result.Identity.Profile)
	assert.Equal(t, "Test admin", result.Identity.Profile.DisplayName)
	assert.True(t, svc.CanAccessRoute(auth.RouteAdmin))

	name := "Boss"
	identity, err := svc.UpdateProfile(ctx, auth.ProfilePatch{DisplayName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Boss", identity.Profile.DisplayName)

	require.NoError(t, svc.SignOut(ctx))
	assert.Nil(t, store.Identity())

	identity, err = svc.CurrentIdentity(ctx)
	require.NoError(t, err)
	assert.Nil(t, identity)
}
