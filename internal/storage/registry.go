package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v3"
	"github.com/jonboulle/clockwork"

	"github.com/yndnr/wamesh-go/internal/core/domain"
)

// Registry stores session records under registry/<client_id>.
type Registry struct {
	engine *BadgerEngine
	clock  clockwork.Clock
}

// NewRegistry creates a Badger-backed registry.
func NewRegistry(engine *BadgerEngine, clock clockwork.Clock) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{engine: engine, clock: clock}
}

// List returns all records, oldest first.
//
// Rows that fail to decode are skipped; the readable records are still
// returned, together with an error naming every skipped key.
func (r *Registry) List(ctx context.Context) ([]*domain.SessionRecord, error) {
	var (
		records = []*domain.SessionRecord{}
		decErrs []error
	)
	err := r.engine.Scan(ctx, []byte(registryPrefix), func(key, value []byte) bool {
		rec := new(domain.SessionRecord)
		if err := json.Unmarshal(value, rec); err != nil {
			decErrs = append(decErrs, fmt.Errorf("decode %s: %w", key, err))
			return true
		}
		records = append(records, rec)
		return true
	})
	if err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ClientID < records[j].ClientID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	if len(decErrs) > 0 {
		return records, domain.ErrStorageError.WithCause(errors.Join(decErrs...))
	}
	return records, nil
}

// Get returns the record for clientID.
func (r *Registry) Get(ctx context.Context, clientID string) (*domain.SessionRecord, error) {
	value, err := r.engine.Get(ctx, registryKey(clientID))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, domain.ErrSessionNotFound.WithDetails(clientID)
		}
		return nil, domain.ErrStorageError.WithCause(err)
	}
	rec := new(domain.SessionRecord)
	if err := json.Unmarshal(value, rec); err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}
	return rec, nil
}

// Create inserts rec unless a record for the client id already exists.
func (r *Registry) Create(_ context.Context, rec *domain.SessionRecord) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := registryKey(rec.ClientID)
	err = r.engine.DB().Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, value)
	})
	// A conflicting transaction means a concurrent Create won the race.
	if err != nil && !errors.Is(err, badger.ErrConflict) {
		return domain.ErrStorageError.WithCause(err)
	}
	return nil
}

// Delete removes the record. Absent records are ignored.
func (r *Registry) Delete(ctx context.Context, clientID string) error {
	if err := r.engine.Delete(ctx, registryKey(clientID)); err != nil {
		return domain.ErrStorageError.WithCause(err)
	}
	return nil
}

// UpdateNumber sets the tenant's own number.
func (r *Registry) UpdateNumber(_ context.Context, clientID, number string) error {
	key := registryKey(clientID)
	err := r.engine.DB().Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		rec := new(domain.SessionRecord)
		if err := item.Value(func(v []byte) error { return json.Unmarshal(v, rec) }); err != nil {
			return err
		}
		rec.Number = number
		rec.UpdatedAt = r.clock.Now()
		value, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return txn.Set(key, value)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.ErrSessionNotFound.WithDetails(clientID)
	}
	if err != nil {
		return domain.ErrStorageError.WithCause(err)
	}
	return nil
}
