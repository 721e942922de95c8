package repository

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

// Manager groups the repositories sharing one database
type Manager struct {
	db       *bun.DB
	users    Users
	profiles *ProfileRepository
	records  *RecordStore
}

func NewManager(db *bun.DB) *Manager {
	return &Manager{
		db:       db,
		users:    NewUsersRepository(db),
		profiles: NewProfileRepository(db),
		records:  NewRecordStore(db),
	}
}

func (m *Manager) Validate() error {
	if m.db == nil {
		return errors.New("repository db should be initialized")
	}

	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.profiles == nil {
		return errors.New("repository profiles should be initialized")
	}

	if m.records == nil {
		return errors.New("repository records should be initialized")
	}

	return nil
}

func (m *Manager) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

// EnsureSchema creates the tables that do not exist yet
func (m *Manager) EnsureSchema(ctx context.Context) error {
	models := []any{
		(*UserRecord)(nil),
		(*ProfileModel)(nil),
		(*SessionRecord)(nil),
	}

	for _, model := range models {
		if _, err := m.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m *Manager) DB() *bun.DB {
	return m.db
}

func (m *Manager) Users() Users {
	return m.users
}

func (m *Manager) Profiles() *ProfileRepository {
	return m.profiles
}

func (m *Manager) Records() *RecordStore {
	return m.records
}
