package memory

import (
	"context"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/yndnr/wamesh-go/internal/core/domain"
	"github.com/yndnr/wamesh-go/pkg/cmap"
)

// keySep cannot appear in a normalised chat id or a valid client id.
const keySep = "\x00"

// ContactLedger is an in-memory contact ledger.
type ContactLedger struct {
	entries *cmap.Map[domain.ContactEntry]
	clock   clockwork.Clock
}

// NewContactLedger creates an empty ledger.
func NewContactLedger(clock clockwork.Clock) *ContactLedger {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ContactLedger{entries: cmap.New[domain.ContactEntry](), clock: clock}
}

func contactKey(clientID, chatID string) string {
	return clientID + keySep + chatID
}

// RecordInbound upserts (clientID, peer).
func (l *ContactLedger) RecordInbound(_ context.Context, clientID, peer string) error {
	chatID, err := domain.NormalizePeerID(peer)
	if err != nil {
		return err
	}
	now := l.clock.Now()
	l.entries.Update(contactKey(clientID, chatID), func(e domain.ContactEntry, exists bool) (domain.ContactEntry, bool) {
		if !exists {
			e = domain.ContactEntry{ClientID: clientID, PeerID: chatID, CreatedAt: now}
		}
		e.UpdatedAt = now
		return e, true
	})
	return nil
}

// IsKnownContact reports whether peer has messaged clientID.
func (l *ContactLedger) IsKnownContact(_ context.Context, clientID, peer string) (bool, error) {
	chatID, err := domain.NormalizePeerID(peer)
	if err != nil {
		return false, err
	}
	return l.entries.Has(contactKey(clientID, chatID)), nil
}

// DeleteClient drops every contact of clientID.
func (l *ContactLedger) DeleteClient(_ context.Context, clientID string) error {
	prefix := clientID + keySep
	l.entries.DeleteFunc(func(key string, _ domain.ContactEntry) bool {
		return strings.HasPrefix(key, prefix)
	})
	return nil
}
