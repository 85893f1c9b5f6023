package memory

import (
	"context"
	"sort"

	"github.com/jonboulle/clockwork"

	"github.com/yndnr/wamesh-go/internal/core/domain"
	"github.com/yndnr/wamesh-go/pkg/cmap"
)

// Registry is an in-memory session registry.
type Registry struct {
	records *cmap.Map[domain.SessionRecord]
	clock   clockwork.Clock
}

// NewRegistry creates an empty registry.
func NewRegistry(clock clockwork.Clock) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{records: cmap.New[domain.SessionRecord](), clock: clock}
}

// List returns all records, oldest first.
func (r *Registry) List(context.Context) ([]*domain.SessionRecord, error) {
	out := make([]*domain.SessionRecord, 0, r.records.Count())
	r.records.Range(func(_ string, rec domain.SessionRecord) bool {
		out = append(out, &rec)
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ClientID < out[j].ClientID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Get returns the record for clientID.
func (r *Registry) Get(_ context.Context, clientID string) (*domain.SessionRecord, error) {
	rec, ok := r.records.Get(clientID)
	if !ok {
		return nil, domain.ErrSessionNotFound.WithDetails(clientID)
	}
	return &rec, nil
}

// Create inserts rec unless the client id is already present.
func (r *Registry) Create(_ context.Context, rec *domain.SessionRecord) error {
	r.records.SetIfAbsent(rec.ClientID, *rec)
	return nil
}

// Delete removes the record for clientID.
func (r *Registry) Delete(_ context.Context, clientID string) error {
	r.records.Delete(clientID)
	return nil
}

// UpdateNumber sets the tenant's own number.
func (r *Registry) UpdateNumber(_ context.Context, clientID, number string) error {
	now := r.clock.Now()
	ok := r.records.Update(clientID, func(rec domain.SessionRecord, exists bool) (domain.SessionRecord, bool) {
		if !exists {
			return rec, false
		}
		rec.Number = number
		rec.UpdatedAt = now
		return rec, true
	})
	if !ok {
		return domain.ErrSessionNotFound.WithDetails(clientID)
	}
	return nil
}
