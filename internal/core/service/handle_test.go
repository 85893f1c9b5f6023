package service

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/yndnr/wamesh-go/internal/core/domain"
	"github.com/yndnr/wamesh-go/internal/telemetry/logger"
	"github.com/yndnr/wamesh-go/internal/telemetry/metric"
)

const (
	timeoutShort = 2 * time.Second
	tick         = 5 * time.Millisecond
)

// handleSubscriptions is the number of event kinds a handle listens to.
const handleSubscriptions = 5

type handleFixture struct {
	h        *Handle
	ft       *fakeTransport
	ledger   *memLedger
	registry *memRegistry
	clock    *clockwork.FakeClock
	metrics  *metric.Registry
}

func newHandleFixture(t *testing.T) *handleFixture {
	t.Helper()
	f := &handleFixture{
		ft:       newFakeTransport(),
		ledger:   newMemLedger(),
		registry: newMemRegistry("shop-1"),
		clock:    clockwork.NewFakeClock(),
		metrics:  metric.NewRegistry(),
	}
	f.h = newHandle("shop-1", f.ft, handleDeps{
		ledger:   f.ledger,
		registry: f.registry,
		clock:    f.clock,
		limiter:  rate.NewLimiter(rate.Inf, 1),
		logger:   logger.NewNop(),
		metrics:  f.metrics,
	})
	t.Cleanup(func() { _ = f.h.Destroy(context.Background()) })
	return f
}

// learnContact delivers an inbound message and waits for the ledger write
// it triggers.
func (f *handleFixture) learnContact(t *testing.T, from string) {
	t.Helper()
	f.ft.emitMessage(from, "hello", false)
	require.Eventually(t, func() bool { return f.ledger.knows("shop-1", from) }, timeoutShort, tick)
}

// returnsPromptly fails the test if fn does not return within timeoutShort.
func returnsPromptly(t *testing.T, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(timeoutShort):
		t.Fatal("event handler blocked on a storage write")
	}
}

func TestHandle_InitialState(t *testing.T) {
	f := newHandleFixture(t)

	st := f.h.Status()
	assert.Equal(t, domain.StatePending, st.State)
	assert.False(t, st.Ready)
	assert.True(t, st.HasTransport)
	assert.Empty(t, f.h.QR())
	assert.Equal(t, handleSubscriptions, f.ft.subscriberCount())
}

func TestHandle_QRFlow(t *testing.T) {
	f := newHandleFixture(t)

	f.ft.emitQR("qr-1")
	assert.Equal(t, domain.StateAuthenticating, f.h.State())
	assert.Equal(t, "qr-1", f.h.QR())

	f.ft.emitQR("qr-2")
	assert.Equal(t, "qr-2", f.h.QR(), "a newer QR overwrites the previous one")

	f.ft.emitReady("628111222333")
	assert.Equal(t, domain.StateReady, f.h.State())
	assert.Empty(t, f.h.QR())
	assert.True(t, f.h.Status().Ready)

	assert.Eventually(t, func() bool { return f.registry.number("shop-1") == "628111222333" }, timeoutShort, tick)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SessionTransitions.WithLabelValues("authenticating")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SessionTransitions.WithLabelValues("ready")))
}

func TestHandle_QRIgnoredOnceReady(t *testing.T) {
	f := newHandleFixture(t)

	f.ft.emitReady("")
	f.ft.emitQR("late")

	assert.Equal(t, domain.StateReady, f.h.State())
	assert.Empty(t, f.h.QR())
}

func TestHandle_SessionPersistedMakesReady(t *testing.T) {
	f := newHandleFixture(t)

	f.ft.emitQR("qr-1")
	f.ft.Emit(transportEvent("session_persisted"))

	assert.Equal(t, domain.StateReady, f.h.State())
	assert.Empty(t, f.h.QR())
}

func TestHandle_RestorePathSkipsAuthenticating(t *testing.T) {
	f := newHandleFixture(t)

	f.ft.emitReady("")

	assert.Equal(t, domain.StateReady, f.h.State())
	assert.Zero(t, testutil.ToFloat64(f.metrics.SessionTransitions.WithLabelValues("authenticating")))
}

func TestHandle_Destroy(t *testing.T) {
	f := newHandleFixture(t)
	ctx := context.Background()

	f.ft.emitReady("")
	require.NoError(t, f.h.Destroy(ctx))

	st := f.h.Status()
	assert.Equal(t, domain.StateDestroyed, st.State)
	assert.False(t, st.HasTransport)
	assert.Zero(t, f.ft.subscriberCount())
	assert.EqualValues(t, 1, f.ft.destroyed.Load())

	_, err := f.h.Send(ctx, "628123", "hi", 0)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.ErrorIs(t, f.h.SendAsync(ctx, "628123", "hi", 0), domain.ErrSessionNotFound)

	// Events after destroy are no-ops.
	f.ft.emitReady("")
	f.ft.emitQR("qr")
	assert.Equal(t, domain.StateDestroyed, f.h.State())
	assert.Empty(t, f.h.QR())

	// Second destroy does not reach the transport again.
	require.NoError(t, f.h.Destroy(ctx))
	assert.EqualValues(t, 1, f.ft.destroyed.Load())
}

func TestHandle_DestroyTransportFailure(t *testing.T) {
	f := newHandleFixture(t)
	f.ft.destroyErr = errBoom

	err := f.h.Destroy(context.Background())

	assert.ErrorIs(t, err, domain.ErrTransportError)
	assert.Equal(t, domain.StateDestroyed, f.h.State())
}

func TestHandle_SendRequiresReady(t *testing.T) {
	f := newHandleFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ledger.RecordInbound(ctx, "shop-1", "628123"))

	_, err := f.h.Send(ctx, "628123", "hi", 0)
	assert.ErrorIs(t, err, domain.ErrSessionNotReady)

	f.ft.emitQR("qr")
	_, err = f.h.Send(ctx, "628123", "hi", 0)
	assert.ErrorIs(t, err, domain.ErrSessionNotReady)

	assert.ErrorIs(t, f.h.SendAsync(ctx, "628123", "hi", 0), domain.ErrSessionNotReady)
	assert.Empty(t, f.ft.Sent())
}

func TestHandle_SendAuthorizationGate(t *testing.T) {
	f := newHandleFixture(t)
	ctx := context.Background()
	f.ft.emitReady("")

	_, err := f.h.Send(ctx, "+628123", "hi", 0)
	assert.ErrorIs(t, err, domain.ErrContactNotAuthorized)

	// A message authored by the tenant does not make the peer known.
	f.ft.emitMessage("628123@c.us", "outgoing", true)
	_, err = f.h.Send(ctx, "+628123", "hi", 0)
	assert.ErrorIs(t, err, domain.ErrContactNotAuthorized)

	f.learnContact(t, "628123@c.us")
	id, err := f.h.Send(ctx, "+628123", "hi", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	assert.Equal(t, []sentMessage{{ChatID: "628123@c.us", Text: "hi"}}, f.ft.Sent())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SendsTotal.WithLabelValues("sync", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.SendsTotal.WithLabelValues("sync", "unauthorized")))
}

func TestHandle_SendTransportError(t *testing.T) {
	f := newHandleFixture(t)
	ctx := context.Background()
	f.ft.emitReady("")
	f.learnContact(t, "628123@c.us")
	f.ft.sendErr = errBoom

	_, err := f.h.Send(ctx, "628123", "hi", 0)

	assert.ErrorIs(t, err, domain.ErrTransportError)
	assert.ErrorIs(t, err, errBoom)
}

func TestHandle_SendWithDelay(t *testing.T) {
	f := newHandleFixture(t)
	ctx := context.Background()
	f.ft.emitReady("")
	f.learnContact(t, "628123@c.us")

	errc := make(chan error, 1)
	go func() {
		_, err := f.h.Send(ctx, "628123", "hi", 3*time.Second)
		errc <- err
	}()

	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	assert.Empty(t, f.ft.Sent(), "nothing is sent before the delay elapses")

	f.clock.Advance(3 * time.Second)
	require.NoError(t, <-errc)
	assert.Len(t, f.ft.Sent(), 1)
}

func TestHandle_SendDelayCancelled(t *testing.T) {
	f := newHandleFixture(t)
	f.ft.emitReady("")
	f.learnContact(t, "628123@c.us")

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := f.h.Send(ctx, "628123", "hi", time.Minute)
		errc <- err
	}()

	require.NoError(t, f.clock.BlockUntilContext(context.Background(), 1))
	cancel()

	assert.ErrorIs(t, <-errc, context.Canceled)
	assert.Empty(t, f.ft.Sent())
}

func TestHandle_SendAsync(t *testing.T) {
	f := newHandleFixture(t)
	ctx := context.Background()
	f.ft.emitReady("")
	f.learnContact(t, "628123@c.us")

	require.NoError(t, f.h.SendAsync(ctx, "628123", "hi", 0))

	assert.Eventually(t, func() bool { return len(f.ft.Sent()) == 1 }, timeoutShort, tick)
}

func TestHandle_SendAsyncUnknownContactOnlyLogged(t *testing.T) {
	f := newHandleFixture(t)
	ctx := context.Background()
	f.ft.emitReady("")

	require.NoError(t, f.h.SendAsync(ctx, "628999", "hi", 0))

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(f.metrics.SendsTotal.WithLabelValues("async", "unauthorized")) == 1
	}, timeoutShort, tick)
	assert.Empty(t, f.ft.Sent())
}

func TestHandle_SendAsyncCancelledByDestroy(t *testing.T) {
	f := newHandleFixture(t)
	ctx := context.Background()
	f.ft.emitReady("")
	f.learnContact(t, "628123@c.us")

	require.NoError(t, f.h.SendAsync(ctx, "628123", "hi", time.Hour))
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))

	require.NoError(t, f.h.Destroy(ctx))

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(f.metrics.SendsTotal.WithLabelValues("async", "error")) == 1
	}, timeoutShort, tick)
	assert.Empty(t, f.ft.Sent())
}

func TestHandle_WaitForFirstSignal_Immediate(t *testing.T) {
	f := newHandleFixture(t)
	f.ft.emitQR("qr-1")

	st := f.h.WaitForFirstSignal(context.Background(), 20*time.Second)

	assert.Equal(t, domain.StateAuthenticating, st.State)
	assert.Equal(t, handleSubscriptions, f.ft.subscriberCount())
}

func TestHandle_WaitForFirstSignal_QR(t *testing.T) {
	f := newHandleFixture(t)
	ctx := context.Background()

	done := make(chan domain.Status, 1)
	go func() { done <- f.h.WaitForFirstSignal(ctx, 20*time.Second) }()

	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	f.ft.emitQR("qr-1")

	st := <-done
	assert.Equal(t, domain.StateAuthenticating, st.State)
	assert.Equal(t, "qr-1", f.h.QR())
	assert.Equal(t, handleSubscriptions, f.ft.subscriberCount(), "wait listeners are detached")
}

func TestHandle_WaitForFirstSignal_Ready(t *testing.T) {
	f := newHandleFixture(t)
	ctx := context.Background()

	done := make(chan domain.Status, 1)
	go func() { done <- f.h.WaitForFirstSignal(ctx, 20*time.Second) }()

	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	f.ft.emitReady("")

	st := <-done
	assert.True(t, st.Ready)
	assert.Equal(t, handleSubscriptions, f.ft.subscriberCount())
}

func TestHandle_WaitForFirstSignal_Timeout(t *testing.T) {
	f := newHandleFixture(t)
	ctx := context.Background()

	done := make(chan domain.Status, 1)
	go func() { done <- f.h.WaitForFirstSignal(ctx, 20*time.Second) }()

	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	f.clock.Advance(20 * time.Second)

	st := <-done
	assert.Equal(t, domain.StatePending, st.State)
	assert.False(t, st.Ready)
	assert.Equal(t, handleSubscriptions, f.ft.subscriberCount())
	require.NoError(t, f.clock.BlockUntilContext(ctx, 0), "timer is released")
}

func TestHandle_WaitForFirstSignal_ContextCancelled(t *testing.T) {
	f := newHandleFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan domain.Status, 1)
	go func() { done <- f.h.WaitForFirstSignal(ctx, 20*time.Second) }()

	require.NoError(t, f.clock.BlockUntilContext(context.Background(), 1))
	cancel()

	st := <-done
	assert.Equal(t, domain.StatePending, st.State)
	assert.Equal(t, handleSubscriptions, f.ft.subscriberCount())
}

func TestHandle_WaitForFirstSignal_Destroyed(t *testing.T) {
	f := newHandleFixture(t)
	ctx := context.Background()

	done := make(chan domain.Status, 1)
	go func() { done <- f.h.WaitForFirstSignal(ctx, 20*time.Second) }()

	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	require.NoError(t, f.h.Destroy(ctx))

	st := <-done
	assert.Equal(t, domain.StateDestroyed, st.State)
	assert.Zero(t, f.ft.subscriberCount())
}

func TestHandle_ReadyDoesNotWaitForRegistry(t *testing.T) {
	f := newHandleFixture(t)
	f.registry.stall = make(chan struct{})

	returnsPromptly(t, func() { f.ft.emitReady("628111222333") })
	assert.Equal(t, domain.StateReady, f.h.State())
	assert.Equal(t, domain.PendingNumber, f.registry.number("shop-1"))

	close(f.registry.stall)
	assert.Eventually(t, func() bool { return f.registry.number("shop-1") == "628111222333" }, timeoutShort, tick)
}

func TestHandle_InboundDoesNotWaitForLedger(t *testing.T) {
	f := newHandleFixture(t)
	f.ledger.stall = make(chan struct{})
	f.ft.emitReady("")

	returnsPromptly(t, func() { f.ft.emitMessage("628123@c.us", "hello", false) })
	assert.False(t, f.ledger.knows("shop-1", "628123"))

	close(f.ledger.stall)
	assert.Eventually(t, func() bool { return f.ledger.knows("shop-1", "628123") }, timeoutShort, tick)
}

func TestHandle_DestroyAbandonsPendingLedgerWrite(t *testing.T) {
	f := newHandleFixture(t)
	f.ledger.stall = make(chan struct{})
	f.ft.emitReady("")

	f.ft.emitMessage("628123@c.us", "hello", false)
	require.NoError(t, f.h.Destroy(context.Background()))
	close(f.ledger.stall)

	assert.Never(t, func() bool { return f.ledger.knows("shop-1", "628123") }, 50*time.Millisecond, tick)
}

func TestHandle_DisconnectCounted(t *testing.T) {
	f := newHandleFixture(t)
	f.ft.emitReady("")

	f.ft.Emit(transportEvent("disconnected"))

	assert.Equal(t, domain.StateReady, f.h.State())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TransportDisconnects))
}

func TestJitter(t *testing.T) {
	assert.Zero(t, Jitter(0))
	assert.Zero(t, Jitter(-time.Second))

	for i := 0; i < 100; i++ {
		d := Jitter(5 * time.Second)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, 5*time.Second)
	}
}
