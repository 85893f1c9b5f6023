package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v3"
	"github.com/jonboulle/clockwork"

	"github.com/yndnr/wamesh-go/internal/core/domain"
)

// ContactLedger stores contacts under contact/<client_id>/<peer>.
type ContactLedger struct {
	engine *BadgerEngine
	clock  clockwork.Clock
}

// NewContactLedger creates a Badger-backed contact ledger.
func NewContactLedger(engine *BadgerEngine, clock clockwork.Clock) *ContactLedger {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ContactLedger{engine: engine, clock: clock}
}

// RecordInbound upserts (clientID, peer), refreshing UpdatedAt.
func (l *ContactLedger) RecordInbound(_ context.Context, clientID, peer string) error {
	chatID, err := domain.NormalizePeerID(peer)
	if err != nil {
		return err
	}
	key := contactKey(clientID, chatID)
	now := l.clock.Now()

	err = l.engine.DB().Update(func(txn *badger.Txn) error {
		entry := domain.ContactEntry{ClientID: clientID, PeerID: chatID, CreatedAt: now}
		item, err := txn.Get(key)
		switch {
		case err == nil:
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &entry) }); err != nil {
				return err
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		entry.UpdatedAt = now
		value, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return txn.Set(key, value)
	})
	// Two inbound messages from the same peer raced; either write is fine.
	if err != nil && !errors.Is(err, badger.ErrConflict) {
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
	_, err = l.engine.Get(ctx, contactKey(clientID, chatID))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrKeyNotFound):
		return false, nil
	default:
		return false, domain.ErrStorageError.WithCause(err)
	}
}

// DeleteClient drops every contact of clientID.
func (l *ContactLedger) DeleteClient(ctx context.Context, clientID string) error {
	if _, err := l.engine.DeletePrefix(ctx, contactKeyPrefix(clientID)); err != nil {
		return domain.ErrStorageError.WithCause(err)
	}
	return nil
}

// Contacts lists the contacts of clientID.
func (l *ContactLedger) Contacts(ctx context.Context, clientID string) ([]domain.ContactEntry, error) {
	var (
		out    []domain.ContactEntry
		decErr error
	)
	err := l.engine.Scan(ctx, contactKeyPrefix(clientID), func(_, value []byte) bool {
		var e domain.ContactEntry
		if decErr = json.Unmarshal(value, &e); decErr != nil {
			return false
		}
		out = append(out, e)
		return true
	})
	if err == nil {
		err = decErr
	}
	if err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}
	return out, nil
}
