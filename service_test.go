package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	auth "github.com/goliatone/go-dashboard-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestService(backend auth.Backend, persister auth.Persister) (*auth.AuthService, *auth.SessionStore, *recordingSink) {
	store := newTestStore(persister)
	sink := &recordingSink{}
	svc := auth.NewAuthService(backend, store).
		WithLogger(nopLogger{}).
		WithActivitySink(sink)
	return svc, store, sink
}

func TestAuthService_SignIn(t *testing.T) {
	ctx := context.Background()
	backend := &MockBackend{}
	persister := auth.NewMemoryPersister(nil)
	svc, store, sink := newTestService(backend, persister)

	profile := &auth.Profile{DisplayName: "Ana"}
	backend.On("SignInWithPassword", mock.Anything, "admin@example.com", "secret").Return(adminSession(), nil)
	backend.On("FetchProfileByID", mock.Anything, "u-1").Return(profile, nil)

	result, err := svc.SignIn(ctx, " admin@example.com ", "secret")
	require.NoError(t, err)

	require.NotNil(t, result.Identity)
	assert.Equal(t, "u-1", result.Identity.ID)
	assert.Equal(t, auth.RoleAdmin, result.Identity.Role)
	assert.Equal(t, "Ana", result.Identity.Profile.DisplayName)
	assert.True(t, result.NeedsVerification)

	assert.True(t, result.Identity.Equal(store.Identity()))
	assert.True(t, result.Identity.Equal(persister.Stored()))
	assert.Contains(t, sink.Types(), auth.ActivityEventSignInSuccess)
	backend.AssertExpectations(t)
}

func TestAuthService_SignInConfirmedEmail(t *testing.T) {
	backend := &MockBackend{}
	svc, _, _ := newTestService(backend, nil)

	confirmed := time.Now()
	session := adminSession()
	session.EmailConfirmedAt = &confirmed

	backend.On("SignInWithPassword", mock.Anything, mock.Anything, mock.Anything).Return(session, nil)
	backend.On("FetchProfileByID", mock.Anything, "u-1").Return(nil, nil)

	result, err := svc.SignIn(context.Background(), "admin@example.com", "secret")
	require.NoError(t, err)
	assert.False(t, result.NeedsVerification)
	assert.Nil(t, result.Identity.Profile)
}

func TestAuthService_SignInValidation(t *testing.T) {
	backend := &MockBackend{}
	svc, store, _ := newTestService(backend, nil)

	_, err := svc.SignIn(context.Background(), "not-an-email", "secret")
	require.Error(t, err)
	assert.True(t, auth.IsValidationFailure(err))

	_, err = svc.SignIn(context.Background(), "a@example.com", "")
	require.Error(t, err)
	assert.True(t, auth.IsValidationFailure(err))

	assert.Nil(t, store.Identity())
	backend.AssertNotCalled(t, "SignInWithPassword", mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthService_SignInRejected(t *testing.T) {
	backend := &MockBackend{}
	svc, store, sink := newTestService(backend, nil)

	backend.On("SignInWithPassword", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("Invalid login credentials"))

	result, err := svc.SignIn(context.Background(), "admin@example.com", "wrong")
	require.Error(t, err)
	assert.Nil(t, result.Identity)
	assert.True(t, auth.IsAuthenticationFailure(err))
	assert.Equal(t, "Invalid login credentials", auth.ErrorMessage(err))
	assert.Nil(t, store.Identity())
	assert.Contains(t, sink.Types(), auth.ActivityEventSignInFailure)
}

func TestAuthService_SignInUnknownFailure(t *testing.T) {
	backend := &MockBackend{}
	svc, _, _ := newTestService(backend, nil)

	backend.On("SignInWithPassword", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New(""))

	_, err := svc.SignIn(context.Background(), "admin@example.com", "wrong")
	require.Error(t, err)
	assert.True(t, auth.IsUnknownFailure(err))
	assert.Equal(t, auth.UnknownFailureMessage, auth.ErrorMessage(err))
}

func TestAuthService_SignInProfileLookupIsBestEffort(t *testing.T) {
	backend := &MockBackend{}
	svc, store, _ := newTestService(backend, nil)

	session := adminSession()
	session.Metadata = nil

	backend.On("SignInWithPassword", mock.Anything, mock.Anything, mock.Anything).Return(session, nil)
	backend.On("FetchProfileByID", mock.Anything, "u-1").Return(nil, errors.New("permission denied"))

	result, err := svc.SignIn(context.Background(), "admin@example.com", "secret")
	require.NoError(t, err)
	assert.Nil(t, result.Identity.Profile)
	assert.Equal(t, auth.RoleUser, result.Identity.Role)
	assert.NotNil(t, store.Identity())
}

func TestAuthService_SignInRecoversPanics(t *testing.T) {
	backend := &MockBackend{}
	svc, store, _ := newTestService(backend, nil)

	backend.On("SignInWithPassword", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { panic("connection reset") })

	var err error
	assert.NotPanics(t, func() {
		_, err = svc.SignIn(context.Background(), "admin@example.com", "secret")
	})
	require.Error(t, err)
	assert.Equal(t, "connection reset", auth.ErrorMessage(err))
	assert.Nil(t, store.Identity())
}

func TestAuthService_UnknownRoleIsDenied(t *testing.T) {
	backend := &MockBackend{}
	svc, _, _ := newTestService(backend, nil)

	session := adminSession()
	session.Metadata = map[string]any{"role": "owner"}

	backend.On("SignInWithPassword", mock.Anything, mock.Anything, mock.Anything).Return(session, nil)
	backend.On("FetchProfileByID", mock.Anything, mock.Anything).Return(nil, nil)

	result, err := svc.SignIn(context.Background(), "admin@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleUnknown, result.Identity.Role)

	assert.True(t, svc.CanAccessRoute(auth.RoutePublic))
	assert.False(t, svc.CanAccessRoute(auth.RouteMentor))
	assert.False(t, svc.CanAccessRoute(auth.RouteAdmin))
}

func TestAuthService_CurrentIdentity(t *testing.T) {
	ctx := context.Background()
	backend := &MockBackend{}
	svc, store, sink := newTestService(backend, nil)

	backend.On("GetCurrentSession", mock.Anything).Return(adminSession(), nil).Once()
	backend.On("FetchProfileByID", mock.Anything, "u-1").Return(nil, nil)

	identity, err := svc.CurrentIdentity(ctx)
	require.NoError(t, err)
	require.NotNil(t, identity)
	assert.Equal(t, auth.RoleAdmin, identity.Role)
	assert.True(t, identity.Equal(store.Identity()))
	assert.Contains(t, sink.Types(), auth.ActivityEventSessionRestored)

	backend.On("GetCurrentSession", mock.Anything).Return(nil, nil).Once()

	identity, err = svc.CurrentIdentity(ctx)
	require.NoError(t, err)
	assert.Nil(t, identity)
	assert.Nil(t, store.Identity())
}

func TestAuthService_CurrentIdentityProfileLookupIsBestEffort(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*MockBackend)
	}{
		{"lookup error", func(b *MockBackend) {
			b.On("FetchProfileByID", mock.Anything, "u-1").Return(nil, errors.New("permission denied"))
		}},
		{"lookup panic", func(b *MockBackend) {
			b.On("FetchProfileByID", mock.Anything, "u-1").
				Run(func(mock.Arguments) { panic("row decode") })
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &MockBackend{}
			persister := auth.NewMemoryPersister(nil)
			svc, store, _ := newTestService(backend, persister)

			backend.On("GetCurrentSession", mock.Anything).Return(adminSession(), nil)
			tt.setup(backend)

			identity, err := svc.CurrentIdentity(context.Background())
			require.NoError(t, err)
			require.NotNil(t, identity)
			assert.Nil(t, identity.Profile)
			assert.Equal(t, auth.RoleAdmin, identity.Role)
			assert.True(t, identity.Equal(store.Identity()))
			assert.True(t, identity.Equal(persister.Stored()))
		})
	}
}

func TestAuthService_CurrentIdentityBackendError(t *testing.T) {
	backend := &MockBackend{}
	svc, store, _ := newTestService(backend, nil)

	existing := &auth.Identity{ID: "u-1", Role: auth.RoleAdmin}
	require.NoError(t, store.SetIdentity(context.Background(), existing))

	backend.On("GetCurrentSession", mock.Anything).Return(nil, errors.New("network down"))

	identity, err := svc.CurrentIdentity(context.Background())
	require.Error(t, err)
	assert.Nil(t, identity)
	assert.True(t, auth.IsAuthenticationFailure(err))
	assert.True(t, existing.Equal(store.Identity()), "store is untouched on backend errors")
}

func TestAuthService_CurrentIdentityDropsStaleResult(t *testing.T) {
	ctx := context.Background()
	backend := &MockBackend{}
	svc, store, _ := newTestService(backend, nil)

	require.NoError(t, store.SetIdentity(ctx, &auth.Identity{ID: "u-1", Role: auth.RoleAdmin}))

	// a sign out lands while the session lookup is in flight
	backend.On("GetCurrentSession", mock.Anything).
		Run(func(mock.Arguments) { require.NoError(t, store.Clear(ctx)) }).
		Return(adminSession(), nil)
	backend.On("FetchProfileByID", mock.Anything, "u-1").Return(nil, nil)

	identity, err := svc.CurrentIdentity(ctx)
	require.NoError(t, err)
	assert.Nil(t, identity)
	assert.Nil(t, store.Identity())
}

func TestAuthService_SignOut(t *testing.T) {
	ctx := context.Background()
	backend := &MockBackend{}
	persister := auth.NewMemoryPersister(nil)
	svc, store, sink := newTestService(backend, persister)

	require.NoError(t, store.SetIdentity(ctx, &auth.Identity{ID: "u-1", Role: auth.RoleAdmin}))

	backend.On("SignOut", mock.Anything).Return(errors.New("timeout")).Once()
	err := svc.SignOut(ctx)
	require.Error(t, err)
	assert.True(t, auth.IsAuthenticationFailure(err))
	assert.NotNil(t, store.Identity())

	backend.On("SignOut", mock.Anything).Return(nil).Once()
	require.NoError(t, svc.SignOut(ctx))
	assert.Nil(t, store.Identity())
	assert.Nil(t, persister.Stored())
	assert.Contains(t, sink.Types(), auth.ActivityEventSignOut)
}

func TestAuthService_CanAccessRoute(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(&MockBackend{}, nil)

	assert.True(t, svc.CanAccessRoute(auth.RoutePublic))
	assert.False(t, svc.CanAccessRoute(auth.RouteAdmin))

	require.NoError(t, store.SetIdentity(ctx, &auth.Identity{ID: "u-1", Role: auth.RoleMentor}))
	assert.True(t, svc.CanAccessRoute(auth.RouteMentor))
	assert.False(t, svc.CanAccessRoute(auth.RouteAdmin))

	require.NoError(t, store.SetIdentity(ctx, &auth.Identity{ID: "u-1", Role: auth.RoleSuperAdmin}))
	assert.True(t, svc.CanAccessRoute(auth.RouteAdmin))
}

func TestAuthService_UpdateProfile(t *testing.T) {
	ctx := context.Background()
	backend := &MockWritableBackend{}
	persister := auth.NewMemoryPersister(nil)
	svc, store, _ := newTestService(backend, persister)

	patch := auth.ProfilePatch{DisplayName: strPtr("Ana B"), Phone: strPtr("+14155552671")}

	_, err := svc.UpdateProfile(ctx, patch)
	assert.ErrorIs(t, err, auth.ErrNotSignedIn)

	require.NoError(t, store.SetIdentity(ctx, &auth.Identity{
		ID:      "u-1",
		Role:    auth.RoleMentor,
		Profile: &auth.Profile{DisplayName: "Ana", Gender: "female"},
	}))

	backend.On("UpdateProfile", mock.Anything, "u-1", patch).Return(&auth.Profile{DisplayName: "Ana B"}, nil)

	identity, err := svc.UpdateProfile(ctx, patch)
	require.NoError(t, err)
	assert.Equal(t, "Ana B", identity.Profile.DisplayName)
	assert.Equal(t, "female", identity.Profile.Gender)
	assert.Equal(t, "+14155552671", persister.Stored().Profile.Phone)
}

func TestAuthService_UpdateProfileValidation(t *testing.T) {
	ctx := context.Background()
	backend := &MockWritableBackend{}
	svc, store, _ := newTestService(backend, nil)
	require.NoError(t, store.SetIdentity(ctx, &auth.Identity{ID: "u-1", Role: auth.RoleUser}))

	_, err := svc.UpdateProfile(ctx, auth.ProfilePatch{Phone: strPtr("12")})
	require.Error(t, err)
	assert.True(t, auth.IsValidationFailure(err))

	_, err = svc.UpdateProfile(ctx, auth.ProfilePatch{Gender: strPtr("robot")})
	require.Error(t, err)
	assert.True(t, auth.IsValidationFailure(err))

	backend.AssertNotCalled(t, "UpdateProfile", mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthService_UpdateProfileUnsupported(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(&MockBackend{}, nil)
	require.NoError(t, store.SetIdentity(ctx, &auth.Identity{ID: "u-1", Role: auth.RoleUser}))

	_, err := svc.UpdateProfile(ctx, auth.ProfilePatch{DisplayName: strPtr("Ana")})
	assert.ErrorIs(t, err, auth.ErrUnsupported)

	err = svc.UpdatePassword(ctx, "a-long-password")
	assert.ErrorIs(t, err, auth.ErrUnsupported)
}

func TestAuthService_UpdatePassword(t *testing.T) {
	ctx := context.Background()
	backend := &MockWritableBackend{}
	svc, store, sink := newTestService(backend, nil)

	assert.ErrorIs(t, svc.UpdatePassword(ctx, "a-long-password"), auth.ErrNotSignedIn)

	require.NoError(t, store.SetIdentity(ctx, &auth.Identity{ID: "u-1", Role: auth.RoleUser}))

	err := svc.UpdatePassword(ctx, "short")
	require.Error(t, err)
	assert.True(t, auth.IsValidationFailure(err))

	backend.On("UpdatePassword", mock.Anything, "a-long-password").Return(nil)
	require.NoError(t, svc.UpdatePassword(ctx, "a-long-password"))
	assert.Contains(t, sink.Types(), auth.ActivityEventPasswordUpdated)
}
