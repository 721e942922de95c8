package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	auth "github.com/goliatone/go-dashboard-auth"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ProfileModel is the Bun model for dashboard profiles.
type ProfileModel struct {
	bun.BaseModel `bun:"table:hrm_profiles,alias:prf"`

	UserID      uuid.UUID  `bun:"user_id,pk,type:uuid"`
	DisplayName string     `bun:"display_name"`
	AvatarURL   string     `bun:"avatar_url"`
	Gender      string     `bun:"gender"`
	Phone       string     `bun:"phone_number"`
	Birthdate   *time.Time `bun:"birthdate,nullzero"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

// ProfileRepository reads and writes profiles using Bun.
type ProfileRepository struct {
	db bun.IDB
}

// NewProfileRepository creates a new repository.
func NewProfileRepository(db bun.IDB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// FindByUserID returns the profile of a user, nil when it has none.
func (r *ProfileRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*auth.Profile, error) {
	var model ProfileModel
	err := r.db.NewSelect().
		Model(&model).
		Where("user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return toProfile(&model), nil
}

// Upsert writes the full profile of a user.
func (r *ProfileRepository) Upsert(ctx context.Context, userID uuid.UUID, profile *auth.Profile) (*auth.Profile, error) {
	model := fromProfile(userID, profile)
	now := time.Now().UTC()
	model.UpdatedAt = now
	if model.CreatedAt.IsZero() {
		model.CreatedAt = now
	}

	_, err := r.db.NewInsert().
		Model(model).
		On("CONFLICT (user_id) DO UPDATE").
		Set("display_name = EXCLUDED.display_name").
		Set("avatar_url = EXCLUDED.avatar_url").
		Set("gender = EXCLUDED.gender").
		Set("phone_number = EXCLUDED.phone_number").
		Set("birthdate = EXCLUDED.birthdate").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return r.FindByUserID(ctx, userID)
}

func toProfile(m *ProfileModel) *auth.Profile {
	createdAt := m.CreatedAt
	updatedAt := m.UpdatedAt
	return &auth.Profile{
		DisplayName: m.DisplayName,
		AvatarURL:   m.AvatarURL,
		Gender:      m.Gender,
		Phone:       m.Phone,
		Birthdate:   m.Birthdate,
		CreatedAt:   &createdAt,
		UpdatedAt:   &updatedAt,
	}
}

func fromProfile(userID uuid.UUID, p *auth.Profile) *ProfileModel {
	model := &ProfileModel{UserID: userID}
	if p == nil {
		return model
	}

	model.DisplayName = p.DisplayName
	model.AvatarURL = p.AvatarURL
	model.Gender = p.Gender
	model.Phone = p.Phone
	model.Birthdate = p.Birthdate
	if p.CreatedAt != nil {
		model.CreatedAt = *p.CreatedAt
	}
	return model
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
