package domain

import (
	"time"
	"unicode"
)

// Client id constraints.
const (
	MaxClientIDLength = 128

	// PendingNumber is the registry number placeholder used until the
	// transport reports the tenant's own number.
	PendingNumber = "pending"
)

// SessionState is the bring-up state of a tenant session.
type SessionState int

const (
	// StatePending means the handle is constructed and bring-up is running.
	StatePending SessionState = iota
	// StateAuthenticating means a QR payload was emitted and awaits a scan.
	StateAuthenticating
	// StateReady means the tenant is authenticated and can send.
	StateReady
	// StateDestroyed is terminal.
	StateDestroyed
)

func (s SessionState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// SessionRecord is the durable registry row for one tenant.
// One row exists per active tenant; rows drive restore-on-boot.
type SessionRecord struct {
	// ID is the opaque row id (random UUID).
	ID string `json:"id"`

	// ClientID names the tenant session.
	ClientID string `json:"client_id"`

	// Number is the tenant's own number, PendingNumber until known.
	Number string `json:"number"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSessionRecord returns a pending record for clientID.
func NewSessionRecord(id, clientID string, now time.Time) *SessionRecord {
	return &SessionRecord{
		ID:        id,
		ClientID:  clientID,
		Number:    PendingNumber,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Status is a point-in-time snapshot of a session handle.
type Status struct {
	Ready        bool         `json:"is_ready"`
	HasTransport bool         `json:"has_client"`
	State        SessionState `json:"-"`
}

// ValidateClientID checks that id is usable as a tenant key.
func ValidateClientID(id string) error {
	if id == "" {
		return ErrInvalidArgument.WithDetails("client_id is required")
	}
	if len(id) > MaxClientIDLength {
		return ErrInvalidArgument.WithDetails("client_id exceeds 128 characters")
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return ErrInvalidArgument.WithDetails("client_id contains control characters")
		}
	}
	return nil
}
