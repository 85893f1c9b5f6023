package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/wamesh-go/internal/core/domain"
	"github.com/yndnr/wamesh-go/internal/core/service"
)

var (
	_ service.Registry      = (*Registry)(nil)
	_ service.ContactLedger = (*ContactLedger)(nil)
)

func TestRegistry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRegistry(clock)
	ctx := context.Background()

	require.NoError(t, r.Create(ctx, domain.NewSessionRecord("1", "b", clock.Now())))
	clock.Advance(time.Second)
	require.NoError(t, r.Create(ctx, domain.NewSessionRecord("2", "a", clock.Now())))
	require.NoError(t, r.Create(ctx, domain.NewSessionRecord("3", "a", clock.Now())))

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ClientID)
	assert.Equal(t, "2", list[1].ID, "existing record is kept")

	require.NoError(t, r.UpdateNumber(ctx, "a", "62811"))
	rec, err := r.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "62811", rec.Number)

	assert.ErrorIs(t, r.UpdateNumber(ctx, "zzz", "1"), domain.ErrSessionNotFound)

	require.NoError(t, r.Delete(ctx, "a"))
	require.NoError(t, r.Delete(ctx, "a"))
	_, err = r.Get(ctx, "a")
	assert.True(t, domain.IsNotFound(err))
}

func TestRegistry_ConcurrentCreate(t *testing.T) {
	r := NewRegistry(nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Create(ctx, domain.NewSessionRecord("x", "shop-1", time.Now()))
		}()
	}
	wg.Wait()

	list, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestContactLedger(t *testing.T) {
	l := NewContactLedger(nil)
	ctx := context.Background()

	known, err := l.IsKnownContact(ctx, "shop-1", "6281")
	require.NoError(t, err)
	assert.False(t, known)

	require.NoError(t, l.RecordInbound(ctx, "shop-1", "6281@c.us"))
	require.NoError(t, l.RecordInbound(ctx, "shop-10", "6282@c.us"))

	known, err = l.IsKnownContact(ctx, "shop-1", "+6281")
	require.NoError(t, err)
	assert.True(t, known)

	require.NoError(t, l.DeleteClient(ctx, "shop-1"))
	known, _ = l.IsKnownContact(ctx, "shop-1", "6281")
	assert.False(t, known)
	known, _ = l.IsKnownContact(ctx, "shop-10", "6282")
	assert.True(t, known)

	_, err = l.IsKnownContact(ctx, "shop-1", "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
