package redisstore

import (
	"context"
	"strconv"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yndnr/wamesh-go/internal/core/domain"
)

const keyPrefix = "wamesh:contacts:"

// ContactLedger keeps two hashes per tenant, keyed by chat id:
// first-seen and last-seen Unix milliseconds. The client id sits in a
// hash tag so both land on one cluster slot.
type ContactLedger struct {
	rdb   goredis.UniversalClient
	clock clockwork.Clock
}

// NewContactLedger creates a ledger on rdb.
func NewContactLedger(rdb goredis.UniversalClient, clock clockwork.Clock) *ContactLedger {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ContactLedger{rdb: rdb, clock: clock}
}

func createdKey(clientID string) string {
	return keyPrefix + "{" + clientID + "}:created"
}

func updatedKey(clientID string) string {
	return keyPrefix + "{" + clientID + "}:updated"
}

// RecordInbound upserts (clientID, peer).
func (l *ContactLedger) RecordInbound(ctx context.Context, clientID, peer string) error {
	chatID, err := domain.NormalizePeerID(peer)
	if err != nil {
		return err
	}
	now := strconv.FormatInt(l.clock.Now().UnixMilli(), 10)

	_, err = l.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.HSetNX(ctx, createdKey(clientID), chatID, now)
		p.HSet(ctx, updatedKey(clientID), chatID, now)
		return nil
	})
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
	ok, err := l.rdb.HExists(ctx, createdKey(clientID), chatID).Result()
	if err != nil {
		return false, domain.ErrStorageError.WithCause(err)
	}
	return ok, nil
}

// DeleteClient drops every contact of clientID.
func (l *ContactLedger) DeleteClient(ctx context.Context, clientID string) error {
	if err := l.rdb.Del(ctx, createdKey(clientID), updatedKey(clientID)).Err(); err != nil {
		return domain.ErrStorageError.WithCause(err)
	}
	return nil
}
