package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/yndnr/wamesh-go/internal/core/domain"
	"github.com/yndnr/wamesh-go/internal/telemetry/logger"
	"github.com/yndnr/wamesh-go/internal/telemetry/metric"
	"github.com/yndnr/wamesh-go/internal/transport"
)

// Send modes, used as the "mode" metric label.
const (
	modeSync  = "sync"
	modeAsync = "async"
)

// ledgerTimeout bounds ledger/registry writes made from event callbacks,
// which have no caller context.
const ledgerTimeout = 10 * time.Second

// Handle is one tenant's live session.
//
// A Handle is registered with the Manager as soon as it is constructed,
// so callers routinely observe it mid bring-up and must branch on Status.
type Handle struct {
	clientID  string
	transport transport.Transport
	ledger    ContactLedger
	registry  Registry
	clock     clockwork.Clock
	limiter   *rate.Limiter
	logger    logger.Logger
	metrics   *metric.Registry

	// life is cancelled on destroy; background work (bring-up, async
	// sends) runs under it.
	life   context.Context
	cancel context.CancelFunc

	mu           sync.RWMutex
	state        domain.SessionState
	qr           string
	hasTransport bool
	subs         []func()
	done         chan struct{}
}

type handleDeps struct {
	ledger   ContactLedger
	registry Registry
	clock    clockwork.Clock
	limiter  *rate.Limiter
	logger   logger.Logger
	metrics  *metric.Registry
}

func newHandle(clientID string, t transport.Transport, d handleDeps) *Handle {
	life, cancel := context.WithCancel(context.Background())
	h := &Handle{
		clientID:     clientID,
		transport:    t,
		ledger:       d.ledger,
		registry:     d.registry,
		clock:        d.clock,
		limiter:      d.limiter,
		logger:       d.logger.With("client_id", clientID),
		metrics:      d.metrics,
		life:         life,
		cancel:       cancel,
		state:        domain.StatePending,
		hasTransport: true,
		done:         make(chan struct{}),
	}

	h.subs = []func(){
		t.Subscribe(transport.KindQR, func(ev transport.Event) { h.onQR(ev.QR) }),
		t.Subscribe(transport.KindReady, func(ev transport.Event) { h.onReady(ev.SelfNumber) }),
		t.Subscribe(transport.KindSessionPersisted, func(transport.Event) { h.onSessionPersisted() }),
		t.Subscribe(transport.KindMessage, func(ev transport.Event) { h.onMessage(ev.Message) }),
		t.Subscribe(transport.KindDisconnected, func(ev transport.Event) { h.onDisconnected(ev.Reason) }),
	}
	h.metrics.SessionTransitions.WithLabelValues(domain.StatePending.String()).Inc()
	return h
}

// ClientID returns the tenant id.
func (h *Handle) ClientID() string {
	return h.clientID
}

// start runs the transport bring-up. Failures leave the handle Pending.
func (h *Handle) start() {
	h.logger.Info("session bring-up started")
	if err := h.transport.Start(h.life); err != nil {
		if h.life.Err() != nil {
			return
		}
		h.logger.Error("session bring-up failed", "error", err)
	}
}

// Status returns a point-in-time snapshot. It never blocks on I/O.
func (h *Handle) Status() domain.Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return domain.Status{
		Ready:        h.state == domain.StateReady,
		HasTransport: h.hasTransport,
		State:        h.state,
	}
}

// State returns the current state.
func (h *Handle) State() domain.SessionState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// QR returns the latest QR payload, or "" when none is pending.
func (h *Handle) QR() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.state != domain.StateAuthenticating {
		return ""
	}
	return h.qr
}

// WaitForFirstSignal blocks until a QR payload is available, the session
// is Ready, timeout elapses or ctx is done, then returns the status. It
// returns at once if a signal has already happened.
func (h *Handle) WaitForFirstSignal(ctx context.Context, timeout time.Duration) domain.Status {
	if h.signalled() {
		return h.Status()
	}

	fired := make(chan struct{}, 1)
	notify := func(transport.Event) {
		select {
		case fired <- struct{}{}:
		default:
		}
	}
	unsubQR := h.transport.Subscribe(transport.KindQR, notify)
	defer unsubQR()
	unsubReady := h.transport.Subscribe(transport.KindReady, notify)
	defer unsubReady()
	unsubPersisted := h.transport.Subscribe(transport.KindSessionPersisted, notify)
	defer unsubPersisted()

	timer := h.clock.NewTimer(timeout)
	defer timer.Stop()

	// A signal may have landed between the first check and subscribing.
	if h.signalled() {
		return h.Status()
	}

	select {
	case <-fired:
	case <-timer.Chan():
	case <-ctx.Done():
	case <-h.done:
	}
	return h.Status()
}

func (h *Handle) signalled() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state == domain.StateReady || h.state == domain.StateDestroyed ||
		(h.state == domain.StateAuthenticating && h.qr != "")
}

// Send delivers text to peer and returns the message id. The session
// must be Ready and peer must be a known contact. A positive delay is
// waited out before sending.
func (h *Handle) Send(ctx context.Context, peer, text string, delay time.Duration) (string, error) {
	if err := h.checkSendable(); err != nil {
		h.metrics.SendsTotal.WithLabelValues(modeSync, resultLabel(err)).Inc()
		return "", err
	}
	id, err := h.send(ctx, peer, text, delay)
	h.metrics.SendsTotal.WithLabelValues(modeSync, resultLabel(err)).Inc()
	return id, err
}

// SendAsync checks readiness, then sends in the background. Failures
// after the readiness check, including an unknown contact, are only
// logged.
func (h *Handle) SendAsync(ctx context.Context, peer, text string, delay time.Duration) error {
	if err := h.checkSendable(); err != nil {
		h.metrics.SendsTotal.WithLabelValues(modeAsync, resultLabel(err)).Inc()
		return err
	}

	// Detach from the request but keep its values (logger, client id).
	bg := context.WithoutCancel(ctx)
	go func() {
		sendCtx, cancel := context.WithCancel(bg)
		defer cancel()
		stop := context.AfterFunc(h.life, cancel)
		defer stop()

		id, err := h.send(sendCtx, peer, text, delay)
		h.metrics.SendsTotal.WithLabelValues(modeAsync, resultLabel(err)).Inc()
		if err != nil {
			h.logger.Warn("async send failed", "peer", peer, "error", err)
			return
		}
		h.logger.Debug("async send delivered", "peer", peer, "message_id", id)
	}()
	return nil
}

func (h *Handle) checkSendable() error {
	switch h.State() {
	case domain.StateReady:
		return nil
	case domain.StateDestroyed:
		return domain.ErrSessionNotFound.WithDetails(h.clientID)
	default:
		return domain.ErrSessionNotReady.WithDetails(h.clientID)
	}
}

func (h *Handle) send(ctx context.Context, peer, text string, delay time.Duration) (string, error) {
	chatID, err := domain.NormalizePeerID(peer)
	if err != nil {
		return "", err
	}

	known, err := h.ledger.IsKnownContact(ctx, h.clientID, chatID)
	if err != nil {
		return "", domain.ErrStorageError.WithCause(err)
	}
	if !known {
		return "", domain.ErrContactNotAuthorized.WithDetails(chatID)
	}

	if delay > 0 {
		timer := h.clock.NewTimer(delay)
		select {
		case <-timer.Chan():
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		}
		// The session may have gone away while we slept.
		if err := h.checkSendable(); err != nil {
			return "", err
		}
	}

	if err := h.limiter.Wait(ctx); err != nil {
		return "", err
	}

	id, err := h.transport.Send(ctx, chatID, text)
	if err != nil {
		return "", domain.ErrTransportError.WithCause(err)
	}
	return id, nil
}

// Destroy tears the transport down and moves the handle to Destroyed.
// The handle is Destroyed afterwards even if teardown fails.
func (h *Handle) Destroy(ctx context.Context) error {
	if h.State() == domain.StateDestroyed {
		return nil
	}

	var terr error
	if err := h.transport.Destroy(ctx); err != nil {
		terr = domain.ErrTransportError.WithCause(err)
	}
	h.onDestroy()
	return terr
}

func (h *Handle) onQR(payload string) {
	h.mu.Lock()
	switch h.state {
	case domain.StatePending, domain.StateAuthenticating:
	default:
		state := h.state
		h.mu.Unlock()
		h.logger.Debug("ignoring qr event", "state", state.String())
		return
	}
	changed := h.state != domain.StateAuthenticating
	h.state = domain.StateAuthenticating
	h.qr = payload
	h.mu.Unlock()

	if changed {
		h.transitioned(domain.StateAuthenticating)
	}
	h.logger.Info("qr received, waiting for scan")
}

func (h *Handle) onReady(selfNumber string) {
	h.mu.Lock()
	if h.state == domain.StateDestroyed {
		h.mu.Unlock()
		return
	}
	changed := h.state != domain.StateReady
	h.state = domain.StateReady
	h.qr = ""
	h.mu.Unlock()

	if changed {
		h.transitioned(domain.StateReady)
	}
	h.logger.Info("session ready", "number", selfNumber)

	if selfNumber == "" || h.registry == nil {
		return
	}
	h.inBackground(func(ctx context.Context) {
		if err := h.registry.UpdateNumber(ctx, h.clientID, selfNumber); err != nil && !domain.IsNotFound(err) {
			h.logger.Warn("failed to record own number", "error", err)
		}
	})
}

func (h *Handle) onSessionPersisted() {
	h.mu.Lock()
	switch h.state {
	case domain.StatePending, domain.StateAuthenticating:
	default:
		h.mu.Unlock()
		h.logger.Debug("session blob persisted")
		return
	}
	h.state = domain.StateReady
	h.qr = ""
	h.mu.Unlock()

	h.transitioned(domain.StateReady)
	h.logger.Info("session persisted, ready")
}

func (h *Handle) onMessage(msg *transport.Message) {
	if msg == nil || msg.FromMe || h.State() == domain.StateDestroyed {
		return
	}
	from := msg.From
	h.inBackground(func(ctx context.Context) {
		if err := h.ledger.RecordInbound(ctx, h.clientID, from); err != nil {
			h.logger.Error("failed to record inbound contact", "from", from, "error", err)
		}
	})
}

// inBackground runs fn off the transport's event goroutine, under the
// handle's life bounded by ledgerTimeout.
func (h *Handle) inBackground(fn func(ctx context.Context)) {
	go func() {
		ctx, cancel := context.WithTimeout(h.life, ledgerTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (h *Handle) onDisconnected(reason string) {
	if h.State() == domain.StateDestroyed {
		return
	}
	h.metrics.TransportDisconnects.Inc()
	h.logger.Warn("transport disconnected", "reason", reason)
}

// onDestroy is one-way; it detaches every subscription the handle owns.
func (h *Handle) onDestroy() {
	h.mu.Lock()
	if h.state == domain.StateDestroyed {
		h.mu.Unlock()
		return
	}
	h.state = domain.StateDestroyed
	h.qr = ""
	h.hasTransport = false
	subs := h.subs
	h.subs = nil
	close(h.done)
	h.mu.Unlock()

	for _, unsub := range subs {
		unsub()
	}
	h.cancel()
	h.transitioned(domain.StateDestroyed)
	h.logger.Info("session destroyed")
}

func (h *Handle) transitioned(to domain.SessionState) {
	h.metrics.SessionTransitions.WithLabelValues(to.String()).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrSessionNotReady), errors.Is(err, domain.ErrSessionNotFound):
		return "not_ready"
	case errors.Is(err, domain.ErrContactNotAuthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrTransportError):
		return "transport_error"
	default:
		return "error"
	}
}
