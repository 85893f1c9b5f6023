package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yndnr/wamesh-go/internal/core/domain"
)

// recordColumns must match the Scan order in scanRecord.
const recordColumns = `id::text, client_id, number, created_at, updated_at`

// Registry is a session registry backed by the session_records table.
type Registry struct {
	pool *pgxpool.Pool
}

// NewRegistry creates a Registry on pool. Migrate must have run.
func NewRegistry(pool *pgxpool.Pool) *Registry {
	return &Registry{pool: pool}
}

func scanRecord(row pgx.Row) (*domain.SessionRecord, error) {
	rec := new(domain.SessionRecord)
	if err := row.Scan(&rec.ID, &rec.ClientID, &rec.Number, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns all records, oldest first.
func (r *Registry) List(ctx context.Context) ([]*domain.SessionRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+recordColumns+` FROM session_records ORDER BY created_at, client_id`)
	if err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}
	defer rows.Close()

	var out []*domain.SessionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, domain.ErrStorageError.WithCause(err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}
	return out, nil
}

// Get returns the record for clientID.
func (r *Registry) Get(ctx context.Context, clientID string) (*domain.SessionRecord, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM session_records WHERE client_id = $1`, clientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSessionNotFound.WithDetails(clientID)
	}
	if err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}
	return rec, nil
}

// Create inserts rec. An existing row for the client id is left as is.
// Record ids that are not UUIDs are replaced with a fresh one.
func (r *Registry) Create(ctx context.Context, rec *domain.SessionRecord) error {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		id = uuid.New()
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO session_records (id, client_id, number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (client_id) DO NOTHING
	`, id.String(), rec.ClientID, rec.Number, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return domain.ErrStorageError.WithCause(err)
	}
	return nil
}

// Delete removes the record for clientID.
func (r *Registry) Delete(ctx context.Context, clientID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM session_records WHERE client_id = $1`, clientID); err != nil {
		return domain.ErrStorageError.WithCause(err)
	}
	return nil
}

// UpdateNumber sets the tenant's own number.
func (r *Registry) UpdateNumber(ctx context.Context, clientID, number string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE session_records SET number = $2, updated_at = NOW()
		WHERE client_id = $1
	`, clientID, number)
	if err != nil {
		return domain.ErrStorageError.WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound.WithDetails(clientID)
	}
	return nil
}
