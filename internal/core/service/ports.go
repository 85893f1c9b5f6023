package service

import (
	"context"
	"io"

	"github.com/yndnr/wamesh-go/internal/core/domain"
)

// Registry is the durable table of known tenants used for
// restore-on-boot.
type Registry interface {
	// List returns every record. A non-nil slice alongside an error is a
	// partial listing: the records that could be read.
	List(ctx context.Context) ([]*domain.SessionRecord, error)

	// Get returns the record for clientID or domain.ErrSessionNotFound.
	Get(ctx context.Context, clientID string) (*domain.SessionRecord, error)

	// Create inserts rec. Creating an existing client id is not an error.
	Create(ctx context.Context, rec *domain.SessionRecord) error

	// Delete removes the record. Deleting an absent id is a no-op.
	Delete(ctx context.Context, clientID string) error

	// UpdateNumber records the tenant's own number.
	UpdateNumber(ctx context.Context, clientID, number string) error
}

// ContactLedger records which peers have messaged a tenant.
type ContactLedger interface {
	// RecordInbound upserts (clientID, peer).
	RecordInbound(ctx context.Context, clientID, peer string) error

	// IsKnownContact reports whether peer has messaged clientID.
	IsKnownContact(ctx context.Context, clientID, peer string) (bool, error)

	// DeleteClient drops every contact of clientID.
	DeleteClient(ctx context.Context, clientID string) error
}

// BlobStore keeps one opaque session blob per client id.
type BlobStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Save(ctx context.Context, key string, r io.Reader) error
	Load(ctx context.Context, key string, w io.Writer) error
	Delete(ctx context.Context, key string) error
}
