package auth

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-errors"
	"golang.org/x/sync/singleflight"
)

const resolveKey = "current_identity"

// SignInResult is returned by a successful SignIn. NeedsVerification is
// set when the backend reports the email address as unconfirmed, callers
// decide how to react to it.
type SignInResult struct {
	Identity          *Identity
	NeedsVerification bool
}

// AuthService wraps the backend calls that read or change the session
// and keeps the session store in sync with their results.
//
// Every method returns its failure as an error value, backend panics
// included.
type AuthService struct {
	backend      Backend
	store        *SessionStore
	logger       Logger
	activitySink ActivitySink
	resolves     singleflight.Group
}

// NewAuthService returns a new AuthService
func NewAuthService(backend Backend, store *SessionStore) *AuthService {
	return &AuthService{
		backend:      backend,
		store:        store,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

func (s *AuthService) WithLogger(logger Logger) *AuthService {
	s.logger = ResolveLogger(logger)
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *AuthService) WithActivitySink(sink ActivitySink) *AuthService {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// Store returns the session store this service writes to
func (s *AuthService) Store() *SessionStore {
	return s.store
}

// SignIn authenticates with email and password. The profile lookup is
// best-effort: when it fails the identity is returned with no profile.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (result SignInResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoverToError(r)
			result = SignInResult{}
			s.logger.Error("SignIn recovered from panic", "error", err)
		}
	}()

	email = strings.TrimSpace(email)

	if err := validateCredentials(email, password); err != nil {
		s.emit(ctx, ActivityEventSignInFailure, nil, map[string]any{
			"email": email,
			"error": ErrorMessage(err),
		})
		return SignInResult{}, err
	}

	session, err := s.backend.SignInWithPassword(ctx, email, password)
	if err != nil {
		failure := authFailure(err)
		s.logger.Error("SignIn backend error", "email", email, "error", err)
		s.emit(ctx, ActivityEventSignInFailure, nil, map[string]any{
			"email": email,
			"error": failure.Message,
		})
		return SignInResult{}, failure
	}

	if session == nil {
		failure := unknownFailure(nil)
		s.logger.Error("SignIn backend returned no session", "email", email)
		s.emit(ctx, ActivityEventSignInFailure, nil, map[string]any{
			"email": email,
			"error": failure.Message,
		})
		return SignInResult{}, failure
	}

	identity := s.identityFromSession(ctx, session)

	if err := s.store.SetIdentity(ctx, identity); err != nil {
		s.logger.Warn("SignIn could not write session store", "error", err)
	}

	result = SignInResult{
		Identity:          identity,
		NeedsVerification: session.EmailConfirmedAt == nil,
	}

	s.emit(ctx, ActivityEventSignInSuccess, identity, map[string]any{
		"email":              email,
		"needs_verification": result.NeedsVerification,
	})

	return result, nil
}

// CurrentIdentity asks the backend for the active session. No session
// clears the store and returns nil with no error.
//
// Concurrent callers share one backend round trip. If the store identity
// changed while the call was in flight the stale result is dropped and
// the current store identity is returned instead.
func (s *AuthService) CurrentIdentity(ctx context.Context) (*Identity, error) {
	v, err, _ := s.resolves.Do(resolveKey, func() (any, error) {
		return s.resolveCurrent(ctx)
	})
	if err != nil {
		return nil, err
	}

	identity, _ := v.(*Identity)
	return identity.Clone(), nil
}

func (s *AuthService) resolveCurrent(ctx context.Context) (identity *Identity, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoverToError(r)
			identity = nil
			s.logger.Error("CurrentIdentity recovered from panic", "error", err)
		}
	}()

	rev := s.store.Revision()

	session, err := s.backend.GetCurrentSession(ctx)
	if err != nil {
		s.logger.Error("CurrentIdentity backend error", "error", err)
		return nil, authFailure(err)
	}

	if session == nil {
		applied, werr := s.store.SetIdentityAt(ctx, rev, nil)
		if werr != nil {
			s.logger.Warn("CurrentIdentity could not clear session store", "error", werr)
		}
		if !applied {
			s.logger.Debug("CurrentIdentity result superseded by a newer store write")
			return s.store.Identity(), nil
		}
		return nil, nil
	}

	identity = s.identityFromSession(ctx, session)

	applied, werr := s.store.SetIdentityAt(ctx, rev, identity)
	if werr != nil {
		s.logger.Warn("CurrentIdentity could not write session store", "error", werr)
	}
	if !applied {
		s.logger.Debug("CurrentIdentity result superseded by a newer store write", "user_id", identity.ID)
		return s.store.Identity(), nil
	}

	s.emit(ctx, ActivityEventSessionRestored, identity, nil)
	return identity, nil
}

// SignOut ends the backend session and clears the store.
func (s *AuthService) SignOut(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoverToError(r)
			s.logger.Error("SignOut recovered from panic", "error", err)
		}
	}()

	previous := s.store.Identity()

	if err := s.backend.SignOut(ctx); err != nil {
		s.logger.Error("SignOut backend error", "error", err)
		return authFailure(err)
	}

	if err := s.store.Clear(ctx); err != nil {
		s.logger.Warn("SignOut could not clear session store", "error", err)
	}

	s.emit(ctx, ActivityEventSignOut, previous, nil)
	return nil
}

// CanAccessRoute checks the stored identity against the route class.
// It never calls the backend.
func (s *AuthService) CanAccessRoute(class RouteClass) bool {
	return class.Allows(s.store.Identity())
}

// UpdateProfile writes patch through the backend and merges it into the
// stored identity.
func (s *AuthService) UpdateProfile(ctx context.Context, patch ProfilePatch) (identity *Identity, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoverToError(r)
			identity = nil
			s.logger.Error("UpdateProfile recovered from panic", "error", err)
		}
	}()

	current := s.store.Identity()
	if current == nil {
		return nil, ErrNotSignedIn
	}

	if patch.IsEmpty() {
		return current, nil
	}

	if err := patch.Validate(); err != nil {
		return nil, err
	}

	updater, ok := s.backend.(ProfileUpdater)
	if !ok {
		return nil, ErrUnsupported
	}

	if _, err := updater.UpdateProfile(ctx, current.ID, patch); err != nil {
		s.logger.Error("UpdateProfile backend error", "user_id", current.ID, "error", err)
		return nil, errors.Wrap(err, errors.CategoryOperation, ErrorMessage(err))
	}

	if err := s.store.MergeProfile(ctx, patch); err != nil {
		s.logger.Warn("UpdateProfile could not write session store", "error", err)
	}

	updated := s.store.Identity()
	s.emit(ctx, ActivityEventProfileUpdated, updated, nil)
	return updated, nil
}

// UpdatePassword changes the password of the signed in user.
func (s *AuthService) UpdatePassword(ctx context.Context, password string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoverToError(r)
			s.logger.Error("UpdatePassword recovered from panic", "error", err)
		}
	}()

	current := s.store.Identity()
	if current == nil {
		return ErrNotSignedIn
	}

	if err := validation.Validate(password, validation.Required, validation.Length(8, 72)); err != nil {
		return errors.Wrap(err, errors.CategoryBadInput, "invalid password").
			WithTextCode(TextCodeInvalidCredentials).
			WithCode(errors.CodeBadRequest)
	}

	updater, ok := s.backend.(PasswordUpdater)
	if !ok {
		return ErrUnsupported
	}

	if err := updater.UpdatePassword(ctx, password); err != nil {
		s.logger.Error("UpdatePassword backend error", "user_id", current.ID, "error", err)
		return errors.Wrap(err, errors.CategoryOperation, ErrorMessage(err))
	}

	s.emit(ctx, ActivityEventPasswordUpdated, current, nil)
	return nil
}

func (s *AuthService) identityFromSession(ctx context.Context, session *BackendSession) *Identity {
	identity := &Identity{
		ID:    session.UserID,
		Email: session.Email,
		Role:  RoleFromMetadata(session.Metadata),
	}

	identity.Profile = BestEffort(ctx, s.logger, "fetch_profile", func(ctx context.Context) (*Profile, error) {
		profile, err := s.backend.FetchProfileByID(ctx, session.UserID)
		if err != nil {
			return nil, profileLookupFailure(err, session.UserID)
		}
		return profile, nil
	}, nil)

	return identity
}

func (s *AuthService) emit(ctx context.Context, eventType ActivityEventType, identity *Identity, metadata map[string]any) {
	event := ActivityEvent{
		EventType: eventType,
		Metadata:  metadata,
	}
	if identity != nil {
		event.UserID = identity.ID
		event.Role = identity.Role
	}
	recordActivity(ctx, s.activitySink, s.logger, event)
}
