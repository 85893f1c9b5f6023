package transport

import (
	"context"
	"io"
	"time"
)

// Kind names a transport event.
type Kind string

// Event kinds.
const (
	KindQR               Kind = "qr"
	KindReady            Kind = "ready"
	KindSessionPersisted Kind = "session_persisted"
	KindMessage          Kind = "message"
	KindDisconnected     Kind = "disconnected"
)

// Message is an inbound or outbound chat message.
type Message struct {
	ID        string
	From      string // chat id of the sender
	Body      string
	FromMe    bool // authored by the tenant itself
	Timestamp time.Time
}

// Event is delivered to subscribers. Only the fields relevant to Kind
// are set.
type Event struct {
	Kind       Kind
	QR         string
	SelfNumber string
	Message    *Message
	Reason     string
}

// Handler receives events. Handlers run on the transport's goroutine and
// must not block.
type Handler func(Event)

// Transport is one tenant's connection to the messaging network.
type Transport interface {
	// Start begins bring-up: resume from the stored session if present,
	// otherwise emit QR events until paired.
	Start(ctx context.Context) error

	// Subscribe registers fn for events of kind. The returned function
	// detaches it and is safe to call more than once.
	Subscribe(kind Kind, fn Handler) (unsubscribe func())

	// Send delivers text to chatID and returns the network message id.
	Send(ctx context.Context, chatID, text string) (string, error)

	// Destroy tears the connection down. The transport is unusable after.
	Destroy(ctx context.Context) error
}

// SessionStore is the durable blob store a transport uses to resume and
// persist its authenticated state, keyed by client id.
type SessionStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Save(ctx context.Context, key string, r io.Reader) error
	Load(ctx context.Context, key string, w io.Writer) error
	Delete(ctx context.Context, key string) error
}

// Factory builds a transport for clientID.
type Factory func(clientID string, store SessionStore) (Transport, error)
