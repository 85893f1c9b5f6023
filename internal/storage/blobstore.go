package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dgraph-io/badger/v3"
	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"

	"github.com/yndnr/wamesh-go/internal/core/domain"
	"github.com/yndnr/wamesh-go/internal/telemetry/metric"
)

// DefaultMaxBlobSize caps a single session blob.
const DefaultMaxBlobSize = 64 << 20

// pruneAttempts bounds retries when a prune races another writer.
const pruneAttempts = 3

// BlobStore is a versioned blob store that keeps only the newest object
// per key.
//
// Every Save writes a fresh object under blob/<key>/<ulid>. Once that
// write has committed, all objects for the key are listed and every one
// except the newest by Badger commit timestamp is deleted. Concurrent
// saves on one key may interleave their prunes freely: a prune only ever
// deletes objects older than the newest it can see, so the most recently
// committed object always survives.
type BlobStore struct {
	engine  *BadgerEngine
	sealer  *Sealer
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *metric.Registry
	maxSize int64
}

// BlobOption configures a BlobStore.
type BlobOption func(*BlobStore)

// WithSealer encrypts payloads at rest.
func WithSealer(s *Sealer) BlobOption {
	return func(b *BlobStore) { b.sealer = s }
}

// WithBlobClock sets the clock used for envelope timestamps.
func WithBlobClock(c clockwork.Clock) BlobOption {
	return func(b *BlobStore) { b.clock = c }
}

// WithBlobLogger sets the logger.
func WithBlobLogger(l *slog.Logger) BlobOption {
	return func(b *BlobStore) { b.logger = l }
}

// WithBlobMetrics records save and prune counts.
func WithBlobMetrics(m *metric.Registry) BlobOption {
	return func(b *BlobStore) { b.metrics = m }
}

// WithMaxBlobSize overrides DefaultMaxBlobSize.
func WithMaxBlobSize(n int64) BlobOption {
	return func(b *BlobStore) { b.maxSize = n }
}

// NewBlobStore creates a blob store on engine.
func NewBlobStore(engine *BadgerEngine, opts ...BlobOption) *BlobStore {
	b := &BlobStore{
		engine:  engine,
		clock:   clockwork.NewRealClock(),
		logger:  slog.Default(),
		maxSize: DefaultMaxBlobSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.sealer == nil {
		b.sealer, _ = NewSealer("", CipherNone)
	}
	return b
}

// Exists reports whether any blob is stored for key.
func (b *BlobStore) Exists(_ context.Context, key string) (bool, error) {
	if err := checkKey(key); err != nil {
		return false, err
	}
	found := false
	err := b.engine.DB().View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = blobKeyPrefix(key)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		it.Rewind()
		found = it.Valid()
		return nil
	})
	if err != nil {
		return false, domain.ErrStorageError.WithCause(err)
	}
	return found, nil
}

// Save stores the contents of r as the newest blob for key and prunes
// older versions.
func (b *BlobStore) Save(ctx context.Context, key string, r io.Reader) error {
	if err := checkKey(key); err != nil {
		return err
	}

	data, err := io.ReadAll(io.LimitReader(r, b.maxSize+1))
	if err != nil {
		b.countSave("error")
		return domain.ErrStorageError.WithCause(fmt.Errorf("read blob: %w", err))
	}
	if int64(len(data)) > b.maxSize {
		b.countSave("error")
		return domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("session blob exceeds %d bytes", b.maxSize))
	}

	ct, payload, err := b.sealer.Seal(data, []byte(key))
	if err != nil {
		b.countSave("error")
		return domain.ErrStorageError.WithCause(err)
	}
	env := envelope{
		ClientID:  key,
		Cipher:    ct,
		SavedAtMs: b.clock.Now().UnixMilli(),
		Payload:   payload,
	}

	objKey := blobObjectKey(key, ulid.Make().String())
	if err := b.engine.DB().Update(func(txn *badger.Txn) error {
		return txn.Set(objKey, env.marshal())
	}); err != nil {
		b.countSave("error")
		return domain.ErrStorageError.WithCause(err)
	}
	b.countSave("ok")

	pruned, err := b.prune(ctx, key)
	if err != nil {
		// The new object is committed and Load always picks the newest,
		// so a failed prune only leaves garbage for the next save.
		b.logger.Warn("blob prune failed", "client_id", key, "error", err)
	}
	if pruned > 0 && b.metrics != nil {
		b.metrics.BlobPrunedTotal.Add(float64(pruned))
	}
	b.logger.Debug("session blob saved", "client_id", key, "bytes", len(data), "pruned", pruned)
	return nil
}

// prune deletes every object for key except the newest by commit
// timestamp.
func (b *BlobStore) prune(ctx context.Context, key string) (int, error) {
	var err error
	for attempt := 0; attempt < pruneAttempts; attempt++ {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		var pruned int
		err = b.engine.DB().Update(func(txn *badger.Txn) error {
			keys, newest := listObjects(txn, key)
			for _, k := range keys {
				if bytes.Equal(k, newest) {
					continue
				}
				if err := txn.Delete(k); err != nil {
					return err
				}
				pruned++
			}
			return nil
		})
		if err == nil {
			return pruned, nil
		}
		if !errors.Is(err, badger.ErrConflict) {
			return 0, err
		}
	}
	return 0, err
}

// listObjects returns all object keys for clientID and the key of the
// one with the highest commit timestamp.
func listObjects(txn *badger.Txn, clientID string) (keys [][]byte, newest []byte) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = blobKeyPrefix(clientID)
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var newestVersion uint64
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		k := item.KeyCopy(nil)
		keys = append(keys, k)
		// Ties cannot happen across commits; break them by key so the
		// choice is deterministic within one.
		if v := item.Version(); newest == nil || v > newestVersion ||
			(v == newestVersion && bytes.Compare(k, newest) > 0) {
			newest, newestVersion = k, v
		}
	}
	return keys, newest
}

// Load writes the newest blob for key to w.
func (b *BlobStore) Load(_ context.Context, key string, w io.Writer) error {
	if err := checkKey(key); err != nil {
		return err
	}

	var raw []byte
	err := b.engine.DB().View(func(txn *badger.Txn) error {
		_, newest := listObjects(txn, key)
		if newest == nil {
			return domain.ErrBlobNotFound.WithDetails(key)
		}
		item, err := txn.Get(newest)
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if domain.IsNotFound(err) {
			return err
		}
		if errors.Is(err, badger.ErrKeyNotFound) {
			// Pruned between listing and reading; only possible if a
			// newer object was committed, which a retry would find.
			return domain.ErrBlobNotFound.WithDetails(key)
		}
		return domain.ErrStorageError.WithCause(err)
	}

	var env envelope
	if err := env.unmarshal(raw); err != nil {
		return domain.ErrBlobCorrupted.WithCause(err)
	}
	if env.ClientID != key {
		return domain.ErrBlobCorrupted.WithDetails("envelope belongs to another client")
	}
	plain, err := b.sealer.Open(env.Cipher, env.Payload, []byte(key))
	if err != nil {
		return domain.ErrBlobCorrupted.WithCause(err)
	}

	if _, err := w.Write(plain); err != nil {
		return fmt.Errorf("write blob: %w", err)
	}
	return nil
}

// Delete removes every object for key. Deleting an absent key is a
// no-op.
func (b *BlobStore) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	n, err := b.engine.DeletePrefix(ctx, blobKeyPrefix(key))
	if err != nil {
		return domain.ErrStorageError.WithCause(err)
	}
	if n > 0 {
		b.logger.Debug("session blob deleted", "client_id", key, "objects", n)
	}
	return nil
}

func (b *BlobStore) objectCount(key string) (int, error) {
	var n int
	err := b.engine.DB().View(func(txn *badger.Txn) error {
		keys, _ := listObjects(txn, key)
		n = len(keys)
		return nil
	})
	return n, err
}

func (b *BlobStore) countSave(result string) {
	if b.metrics != nil {
		b.metrics.BlobSavesTotal.WithLabelValues(result).Inc()
	}
}

func checkKey(key string) error {
	if key == "" {
		return domain.ErrInvalidArgument.WithDetails("blob key is required")
	}
	return nil
}
