package local

import (
	"context"
	"database/sql"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	auth "github.com/goliatone/go-dashboard-auth"
	"github.com/goliatone/go-dashboard-auth/repository"
	"github.com/goliatone/go-errors"
	repo "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Provider is a self hosted auth backend. Accounts and profiles live in
// bun tables, the active session is a signed token kept in the record
// store so it survives process restarts.
type Provider struct {
	repos  *repository.Manager
	tokens *tokenIssuer
	cfg    Config
	hub    *hub
	logger auth.Logger
	now    func() time.Time
}

var (
	_ auth.Backend         = (*Provider)(nil)
	_ auth.ProfileUpdater  = (*Provider)(nil)
	_ auth.PasswordUpdater = (*Provider)(nil)
)

// New returns a provider backed by repos
func New(repos *repository.Manager, cfg Config) (*Provider, error) {
	if repos == nil {
		return nil, errors.New("local provider needs a repository manager", errors.CategoryInternal)
	}
	if err := repos.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "invalid repository manager")
	}

	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "invalid local provider config")
	}

	p := &Provider{
		repos:  repos,
		cfg:    cfg,
		logger: auth.ResolveLogger(nil),
		now:    time.Now,
	}
	p.hub = newHub(p.logger)
	p.tokens = &tokenIssuer{
		signingKey: cfg.SigningKey,
		issuer:     cfg.Issuer,
		ttl:        cfg.TokenTTL,
		now:        p.clock,
	}

	return p, nil
}

func (p *Provider) WithLogger(logger auth.Logger) *Provider {
	p.logger = auth.ResolveLogger(logger)
	p.hub.logger = p.logger
	return p
}

// WithClock overrides the time source, used for token issue and expiry.
func (p *Provider) WithClock(now func() time.Time) *Provider {
	if now != nil {
		p.now = now
	}
	return p
}

func (p *Provider) clock() time.Time {
	return p.now()
}

// SignInWithPassword checks the credentials and starts a new session
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*auth.BackendSession, error) {
	user, err := p.repos.Users().GetByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			p.logger.Debug("local sign in for unknown email", "email", repository.NormalizeEmail(email))
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load user")
	}

	if err := comparePassword(password, user.PasswordHash); err != nil {
		return nil, err
	}

	session, err := p.startSession(ctx, user)
	if err != nil {
		return nil, err
	}

	if err := p.repos.Users().TrackLogin(ctx, user.ID, p.now().UTC()); err != nil {
		p.logger.Warn("local sign in could not track login", "user_id", user.ID, "error", err)
	}

	p.hub.emit(ctx, auth.SessionEvent{Kind: auth.SessionSignedIn, Session: session})
	return session, nil
}

// GetCurrentSession returns the stored session. An expired, invalid or
// orphaned token is discarded and reported as no session.
func (p *Provider) GetCurrentSession(ctx context.Context) (*auth.BackendSession, error) {
	raw, err := p.repos.Records().Get(ctx, p.cfg.SessionRecord)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to read session")
	}
	if len(raw) == 0 {
		return nil, nil
	}

	claims, err := p.tokens.parse(string(raw))
	if err != nil {
		p.logger.Info("local session discarded", "reason", err)
		p.endSession(ctx)
		return nil, nil
	}

	user, err := p.repos.Users().GetByID(ctx, claims.Subject)
	if err != nil {
		if isNotFound(err) {
			p.logger.Info("local session user no longer exists", "user_id", claims.Subject)
			p.endSession(ctx)
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load session user")
	}

	return sessionFromUser(user, claims.ExpiresAt), nil
}

// SignOut drops the stored session
func (p *Provider) SignOut(ctx context.Context) error {
	if err := p.repos.Records().Delete(ctx, p.cfg.SessionRecord); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to delete session")
	}
	p.hub.emit(ctx, auth.SessionEvent{Kind: auth.SessionSignedOut})
	return nil
}

// RefreshSession issues a fresh token for the current session
func (p *Provider) RefreshSession(ctx context.Context) (*auth.BackendSession, error) {
	current, err := p.GetCurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, auth.ErrNotSignedIn
	}

	user, err := p.repos.Users().GetByID(ctx, current.UserID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load session user")
	}

	session, err := p.startSession(ctx, user)
	if err != nil {
		return nil, err
	}

	p.hub.emit(ctx, auth.SessionEvent{Kind: auth.SessionTokenRefreshed, Session: session})
	return session, nil
}

// OnSessionChange registers fn for session change events
func (p *Provider) OnSessionChange(fn auth.SessionChangeFunc) func() {
	return p.hub.subscribe(fn)
}

// Broadcast delivers event to local subscribers without touching the
// stored session. Bridges use it to replay events from other processes.
func (p *Provider) Broadcast(ctx context.Context, event auth.SessionEvent) {
	p.hub.emit(ctx, event)
}

// FetchProfileByID returns nil, nil when the user has no profile row
func (p *Provider) FetchProfileByID(ctx context.Context, id string) (*auth.Profile, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "invalid user id").
			WithMetadata(map[string]any{"user_id": id})
	}
	return p.repos.Profiles().FindByUserID(ctx, userID)
}

// UpdateProfile merges patch into the stored profile
func (p *Provider) UpdateProfile(ctx context.Context, userID string, patch auth.ProfilePatch) (*auth.Profile, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "invalid user id").
			WithMetadata(map[string]any{"user_id": userID})
	}

	current, err := p.repos.Profiles().FindByUserID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load profile")
	}

	profile, err := p.repos.Profiles().Upsert(ctx, id, patch.Apply(current))
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to save profile")
	}

	p.hub.emit(ctx, auth.SessionEvent{
		Kind:    auth.SessionUserUpdated,
		Session: &auth.BackendSession{UserID: userID},
	})
	return profile, nil
}

// UpdatePassword changes the password of the session user
func (p *Provider) UpdatePassword(ctx context.Context, password string) error {
	session, err := p.GetCurrentSession(ctx)
	if err != nil {
		return err
	}
	if session == nil {
		return auth.ErrNotSignedIn
	}

	id, err := uuid.Parse(session.UserID)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "invalid session user id")
	}

	hash, err := hashPassword(password, p.cfg.BcryptCost)
	if err != nil {
		return err
	}

	if err := p.repos.Users().UpdatePasswordHash(ctx, id, hash); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to update password")
	}

	p.hub.emit(ctx, auth.SessionEvent{Kind: auth.SessionUserUpdated, Session: session})
	return nil
}

// Registration describes a new local account
type Registration struct {
	Email       string        `yaml:"email" json:"email"`
	Password    string        `yaml:"password" json:"password"`
	Role        auth.UserRole `yaml:"role" json:"role"`
	DisplayName string        `yaml:"display_name" json:"display_name"`
	// Confirmed marks the email as verified
	Confirmed bool `yaml:"confirmed" json:"confirmed"`
}

func (r Registration) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 72)),
		validation.Field(&r.Role, validation.By(validRole)),
		validation.Field(&r.DisplayName, validation.Length(0, 120)),
	)
}

func validRole(value any) error {
	role, _ := value.(auth.UserRole)
	if role == auth.RoleUnknown || role.IsValid() {
		return nil
	}
	return errors.New("must be one of user, mentor, admin, superadmin", errors.CategoryValidation)
}

// Register creates an account and its profile. A missing role means
// auth.RoleUser.
func (p *Provider) Register(ctx context.Context, reg Registration) (*repository.UserRecord, error) {
	reg.Email = repository.NormalizeEmail(reg.Email)
	reg.DisplayName = strings.TrimSpace(reg.DisplayName)
	if parsed, ok := auth.ParseRole(string(reg.Role)); ok {
		reg.Role = parsed
	}

	if err := reg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "invalid registration").
			WithTextCode("INVALID_REGISTRATION").
			WithCode(errors.CodeBadRequest)
	}

	if reg.Role == auth.RoleUnknown {
		reg.Role = auth.RoleUser
	}

	if _, err := p.repos.Users().GetByEmail(ctx, reg.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !isNotFound(err) {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to check email")
	}

	hash, err := hashPassword(reg.Password, p.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	record := &repository.UserRecord{
		ID:           uuid.New(),
		Email:        reg.Email,
		PasswordHash: hash,
		Role:         string(reg.Role),
	}
	if reg.Confirmed {
		now := p.now().UTC()
		record.EmailConfirmedAt = &now
	}

	var created *repository.UserRecord
	err = p.repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		created, err = p.repos.Users().CreateTx(ctx, tx, record)
		if err != nil {
			return err
		}

		_, err = repository.NewProfileRepository(tx).Upsert(ctx, created.ID, &auth.Profile{
			DisplayName: reg.DisplayName,
		})
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to register user").
			WithMetadata(map[string]any{"email": reg.Email})
	}

	p.logger.Info("local user registered", "user_id", created.ID, "role", created.Role)
	return created, nil
}

// Subscribers returns the number of session change subscribers
func (p *Provider) Subscribers() int {
	return p.hub.size()
}

func (p *Provider) startSession(ctx context.Context, user *repository.UserRecord) (*auth.BackendSession, error) {
	token, claims, err := p.tokens.mint(user)
	if err != nil {
		return nil, err
	}

	if err := p.repos.Records().Put(ctx, p.cfg.SessionRecord, []byte(token)); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to store session")
	}

	return sessionFromUser(user, claims.ExpiresAt), nil
}

func (p *Provider) endSession(ctx context.Context) {
	if err := p.repos.Records().Delete(ctx, p.cfg.SessionRecord); err != nil {
		p.logger.Warn("local session could not be deleted", "error", err)
		return
	}
	p.hub.emit(ctx, auth.SessionEvent{Kind: auth.SessionSignedOut})
}

func sessionFromUser(user *repository.UserRecord, expiresAt *jwtDate) *auth.BackendSession {
	session := &auth.BackendSession{
		UserID:           user.ID.String(),
		Email:            user.Email,
		Metadata:         map[string]any{"role": user.Role},
		EmailConfirmedAt: user.EmailConfirmedAt,
	}
	if expiresAt != nil {
		exp := expiresAt.Time
		session.ExpiresAt = &exp
	}
	return session
}

func isNotFound(err error) bool {
	return repo.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows)
}
