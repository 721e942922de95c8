package repository

import (
	"context"
	"encoding/json"

	auth "github.com/goliatone/go-dashboard-auth"
	"github.com/goliatone/go-errors"
)

// DefaultStorageName is the record the dashboard session store lives in
const DefaultStorageName = "hrm-auth-storage"

type persistedState struct {
	Identity *auth.Identity `json:"identity"`
}

// IdentityPersister implements auth.Persister on top of a RecordStore.
// Only the identity is written, the loading flag never is.
type IdentityPersister struct {
	records *RecordStore
	name    string
}

var _ auth.Persister = (*IdentityPersister)(nil)

// NewIdentityPersister returns a persister writing to the record name.
func NewIdentityPersister(records *RecordStore, name string) *IdentityPersister {
	if name == "" {
		name = DefaultStorageName
	}
	return &IdentityPersister{records: records, name: name}
}

func (p *IdentityPersister) Load(ctx context.Context) (*auth.Identity, error) {
	raw, err := p.records.Get(ctx, p.name)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to read session record").
			WithMetadata(map[string]any{"record": p.name})
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var state persistedState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "corrupt session record").
			WithMetadata(map[string]any{"record": p.name})
	}
	return state.Identity, nil
}

func (p *IdentityPersister) Save(ctx context.Context, identity *auth.Identity) error {
	payload, err := json.Marshal(persistedState{Identity: identity})
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to encode session record")
	}
	return p.records.Put(ctx, p.name, payload)
}
