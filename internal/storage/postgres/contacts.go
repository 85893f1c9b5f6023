package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yndnr/wamesh-go/internal/core/domain"
)

// ContactLedger is a contact ledger backed by the contacts table.
type ContactLedger struct {
	pool *pgxpool.Pool
}

// NewContactLedger creates a ContactLedger on pool. Migrate must have run.
func NewContactLedger(pool *pgxpool.Pool) *ContactLedger {
	return &ContactLedger{pool: pool}
}

// RecordInbound upserts (clientID, peer).
func (l *ContactLedger) RecordInbound(ctx context.Context, clientID, peer string) error {
	chatID, err := domain.NormalizePeerID(peer)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, `
		INSERT INTO contacts (client_id, number, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (client_id, number) DO UPDATE SET updated_at = NOW()
	`, clientID, chatID)
	if err != nil {
		return domain.ErrStorageError.WithCause(err)
	}
	return nil
}

// IsKnownContact reports whether peer has messaged clientID.
func (l *ContactLedger) IsKnownContact(ctx context.Context, clientID, peer string) (bool, error) {
	chatID, err := domain.NormalizePeerID(peer)
	if err != nil {
		return false, err
	}
	var exists bool
	err = l.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM contacts WHERE client_id = $1 AND number = $2)`,
		clientID, chatID).Scan(&exists)
	if err != nil {
		return false, domain.ErrStorageError.WithCause(err)
	}
	return exists, nil
}

// DeleteClient drops every contact of clientID.
func (l *ContactLedger) DeleteClient(ctx context.Context, clientID string) error {
	if _, err := l.pool.Exec(ctx, `DELETE FROM contacts WHERE client_id = $1`, clientID); err != nil {
		return domain.ErrStorageError.WithCause(err)
	}
	return nil
}
