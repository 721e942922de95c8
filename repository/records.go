package repository

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// SessionRecord is a named blob of session state. It backs both the
// dashboard session store and the local backend token.
type SessionRecord struct {
	bun.BaseModel `bun:"table:session_records,alias:rec"`

	Name      string    `bun:"name,pk"`
	Payload   string    `bun:"payload,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// RecordStore reads and writes SessionRecord rows
type RecordStore struct {
	db bun.IDB
}

// NewRecordStore creates a new record store.
func NewRecordStore(db bun.IDB) *RecordStore {
	return &RecordStore{db: db}
}

// Get returns the payload stored under name, nil when there is none.
func (r *RecordStore) Get(ctx context.Context, name string) ([]byte, error) {
	var model SessionRecord
	err := r.db.NewSelect().
		Model(&model).
		Where("name = ?", name).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return []byte(model.Payload), nil
}

// Put stores payload under name, replacing any previous value.
func (r *RecordStore) Put(ctx context.Context, name string, payload []byte) error {
	model := &SessionRecord{
		Name:      name,
		Payload:   string(payload),
		UpdatedAt: time.Now().UTC(),
	}

	_, err := r.db.NewInsert().
		Model(model).
		On("CONFLICT (name) DO UPDATE").
		Set("payload = EXCLUDED.payload").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// Delete removes the record. Deleting a missing record is not an error.
func (r *RecordStore) Delete(ctx context.Context, name string) error {
	_, err := r.db.NewDelete().
		Model((*SessionRecord)(nil)).
		Where("name = ?", name).
		Exec(ctx)
	return err
}
