package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/wamesh-go/internal/core/domain"
)

func TestContactLedger(t *testing.T) {
	l := NewContactLedger(newTestEngine(t), nil)
	ctx := context.Background()

	known, err := l.IsKnownContact(ctx, "shop-1", "+6281234")
	require.NoError(t, err)
	assert.False(t, known)

	require.NoError(t, l.RecordInbound(ctx, "shop-1", "6281234@c.us"))
	require.NoError(t, l.RecordInbound(ctx, "shop-1", "6281234@c.us"), "upsert is idempotent")

	for _, peer := range []string{"+6281234", "6281234", "6281234@c.us"} {
		known, err = l.IsKnownContact(ctx, "shop-1", peer)
		require.NoError(t, err)
		assert.True(t, known, peer)
	}

	known, err = l.IsKnownContact(ctx, "shop-2", "6281234")
	require.NoError(t, err)
	assert.False(t, known, "contacts are per tenant")

	contacts, err := l.Contacts(ctx, "shop-1")
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "6281234@c.us", contacts[0].PeerID)
	assert.False(t, contacts[0].CreatedAt.IsZero())
}

func TestContactLedger_DeleteClient(t *testing.T) {
	l := NewContactLedger(newTestEngine(t), nil)
	ctx := context.Background()

	require.NoError(t, l.RecordInbound(ctx, "shop-1", "111"))
	require.NoError(t, l.RecordInbound(ctx, "shop-1", "222"))
	require.NoError(t, l.RecordInbound(ctx, "shop-10", "111"))

	require.NoError(t, l.DeleteClient(ctx, "shop-1"))

	known, err := l.IsKnownContact(ctx, "shop-1", "111")
	require.NoError(t, err)
	assert.False(t, known)
	known, err = l.IsKnownContact(ctx, "shop-10", "111")
	require.NoError(t, err)
	assert.True(t, known, "prefix must not reach a tenant whose id merely starts the same")
}

func TestContactLedger_InvalidPeer(t *testing.T) {
	l := NewContactLedger(newTestEngine(t), nil)

	err := l.RecordInbound(context.Background(), "shop-1", " ")

	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
