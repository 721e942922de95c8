package repository

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRecord is a local backend account
type UserRecord struct {
	bun.BaseModel    `bun:"table:hrm_users,alias:usr"`
	ID               uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email            string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash     string     `bun:"password_hash,notnull" json:"-"`
	Role             string     `bun:"user_role,notnull" json:"user_role,omitempty"`
	EmailConfirmedAt *time.Time `bun:"email_confirmed_at,nullzero" json:"email_confirmed_at,omitempty"`
	LoggedInAt       *time.Time `bun:"loggedin_at,nullzero" json:"loggedin_at,omitempty"`
	CreatedAt        *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt        *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Users is the user repository
type Users interface {
	repository.Repository[*UserRecord]

	GetByEmail(ctx context.Context, email string) (*UserRecord, error)
	TrackLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
}

type users struct {
	repository.Repository[*UserRecord]
	db bun.IDB
}

var _ Users = (*users)(nil)

// NewUsersRepository returns the bun backed Users repository
func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*UserRecord](db, repository.ModelHandlers[*UserRecord]{
		NewRecord: func() *UserRecord { return &UserRecord{} },
		GetID: func(u *UserRecord) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *UserRecord, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

// NormalizeEmail is how emails are stored and looked up
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (u *users) GetByEmail(ctx context.Context, email string) (*UserRecord, error) {
	record := &UserRecord{}
	err := u.db.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", NormalizeEmail(email)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"email": NormalizeEmail(email)})
		}
		return nil, err
	}
	return record, nil
}

func (u *users) TrackLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := u.db.NewUpdate().
		Model((*UserRecord)(nil)).
		Set("loggedin_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (u *users) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	res, err := u.db.NewUpdate().
		Model((*UserRecord)(nil)).
		Set("password_hash = ?", hash).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}
	return nil
}
