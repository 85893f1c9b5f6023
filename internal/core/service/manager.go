package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/yndnr/wamesh-go/internal/core/domain"
	"github.com/yndnr/wamesh-go/internal/telemetry/logger"
	"github.com/yndnr/wamesh-go/internal/telemetry/metric"
	"github.com/yndnr/wamesh-go/internal/transport"
)

// Config wires a Manager to its collaborators.
type Config struct {
	Registry     Registry
	Ledger       ContactLedger
	Store        BlobStore
	NewTransport transport.Factory

	// SendRate is the per-tenant outbound message rate (messages per
	// second). Zero or negative disables limiting.
	SendRate  float64
	SendBurst int

	// WaitTimeout bounds AwaitStatus. Defaults to DefaultWaitTimeout.
	WaitTimeout time.Duration

	// SyncJitterMax and AsyncJitterMax cap the random delay drawn for a
	// send that asks for jitter.
	SyncJitterMax  time.Duration
	AsyncJitterMax time.Duration

	// Optional.
	Clock   clockwork.Clock
	Logger  logger.Logger
	Metrics *metric.Registry
}

// SendOptions selects the send convention.
type SendOptions struct {
	// Async returns as soon as readiness is confirmed; the send itself
	// happens in the background and failures are only logged.
	Async bool

	// Delay is waited out before sending.
	Delay time.Duration

	// Jitter draws Delay at random up to the configured maximum for the
	// convention. An explicit Delay wins.
	Jitter bool
}

// DefaultWaitTimeout is how long AwaitStatus waits for a first signal.
const DefaultWaitTimeout = 20 * time.Second

// Manager owns the set of live sessions, at most one per client id.
type Manager struct {
	cfg     Config
	clock   clockwork.Clock
	logger  logger.Logger
	metrics *metric.Registry

	create singleflight.Group
	remove singleflight.Group

	mu       sync.Mutex
	sessions map[string]*Handle
	order    []string
	closed   bool
}

// NewManager creates a Manager.
func NewManager(cfg Config) (*Manager, error) {
	switch {
	case cfg.Registry == nil:
		return nil, errors.New("session manager: registry is required")
	case cfg.Ledger == nil:
		return nil, errors.New("session manager: contact ledger is required")
	case cfg.Store == nil:
		return nil, errors.New("session manager: blob store is required")
	case cfg.NewTransport == nil:
		return nil, errors.New("session manager: transport factory is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metric.NewRegistry()
	}
	if cfg.SendBurst <= 0 {
		cfg.SendBurst = 1
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = DefaultWaitTimeout
	}

	return &Manager{
		cfg:      cfg,
		clock:    cfg.Clock,
		logger:   cfg.Logger.With("component", "session_manager"),
		metrics:  cfg.Metrics,
		sessions: make(map[string]*Handle),
	}, nil
}

// CreateSession returns the live handle for id, creating it if needed.
//
// With persist set, the tenant is recorded in the registry before the
// handle exists; a registry failure aborts creation. The handle is
// registered immediately and its bring-up continues in the background.
// Concurrent calls for the same id share a single creation; a persisting
// caller that joins a non-persisting one writes the record afterwards.
func (m *Manager) CreateSession(ctx context.Context, id string, persist bool) (*Handle, error) {
	if err := domain.ValidateClientID(id); err != nil {
		return nil, err
	}
	if h, ok := m.lookup(id); ok {
		return h, nil
	}

	var led bool
	v, err, shared := m.create.Do(id, func() (any, error) {
		led = true
		if h, ok := m.lookup(id); ok {
			return h, nil
		}
		if m.isClosed() {
			return nil, domain.ErrShuttingDown
		}

		if persist {
			if err := m.ensureRecord(ctx, id); err != nil {
				return nil, err
			}
		}

		t, err := m.cfg.NewTransport(id, m.cfg.Store)
		if err != nil {
			return nil, domain.ErrTransportError.WithCause(err)
		}

		h := newHandle(id, t, handleDeps{
			ledger:   m.cfg.Ledger,
			registry: m.cfg.Registry,
			clock:    m.clock,
			limiter:  m.newLimiter(),
			logger:   m.cfg.Logger,
			metrics:  m.metrics,
		})

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			_ = h.Destroy(context.WithoutCancel(ctx))
			return nil, domain.ErrShuttingDown
		}
		m.sessions[id] = h
		m.order = append(m.order, id)
		m.metrics.SessionsActive.Set(float64(len(m.sessions)))
		m.mu.Unlock()

		m.logger.Info("session created", "client_id", id, "persist", persist)
		go h.start()
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	// A caller that joined someone else's creation still owes its own
	// registry record, written under its own ctx.
	if persist && shared && !led {
		if err := m.ensureRecord(ctx, id); err != nil {
			return nil, err
		}
	}
	return v.(*Handle), nil
}

func (m *Manager) ensureRecord(ctx context.Context, id string) error {
	_, err := m.cfg.Registry.Get(ctx, id)
	if err == nil {
		return nil
	}
	if !domain.IsNotFound(err) {
		return domain.ErrStorageError.WithCause(err)
	}

	rec := domain.NewSessionRecord(uuid.NewString(), id, m.clock.Now())
	if err := m.cfg.Registry.Create(ctx, rec); err != nil {
		return domain.ErrStorageError.WithCause(err)
	}
	return nil
}

func (m *Manager) newLimiter() *rate.Limiter {
	if m.cfg.SendRate <= 0 {
		return rate.NewLimiter(rate.Inf, m.cfg.SendBurst)
	}
	return rate.NewLimiter(rate.Limit(m.cfg.SendRate), m.cfg.SendBurst)
}

// RestoreAll recreates a handle for every registry record without
// writing to the registry. A record that fails is logged and skipped.
// It returns the number of sessions restored.
func (m *Manager) RestoreAll(ctx context.Context) (int, error) {
	records, err := m.cfg.Registry.List(ctx)
	if err != nil {
		if records == nil {
			return 0, domain.ErrStorageError.WithCause(err)
		}
		m.logger.Error("skipping unreadable registry records", "error", err)
	}

	restored := 0
	for _, rec := range records {
		if _, err := m.CreateSession(ctx, rec.ClientID, false); err != nil {
			m.logger.Error("failed to restore session", "client_id", rec.ClientID, "error", err)
			continue
		}
		restored++
	}

	m.logger.Info("sessions restored", "restored", restored, "records", len(records))
	return restored, nil
}

// GetSession returns the live handle for id.
func (m *Manager) GetSession(id string) (*Handle, error) {
	if h, ok := m.lookup(id); ok {
		return h, nil
	}
	return nil, domain.ErrSessionNotFound.WithDetails(id)
}

// ListSessionIDs returns live client ids in creation order.
func (m *Manager) ListSessionIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.order)
}

// StateCounts returns the number of live sessions per state name.
func (m *Manager) StateCounts() map[string]int {
	m.mu.Lock()
	handles := make([]*Handle, 0, len(m.sessions))
	for _, h := range m.sessions {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	counts := make(map[string]int)
	for _, h := range handles {
		counts[h.State().String()]++
	}
	return counts
}

// RemoveSession deletes the session blob, tears the transport down,
// drops the handle and deletes the registry record, in that order.
// Each step is best-effort: failures are logged and the next step still
// runs. Removing an unknown id is a no-op.
func (m *Manager) RemoveSession(ctx context.Context, id string) error {
	h, ok := m.lookup(id)
	if !ok {
		return nil
	}

	_, _, _ = m.remove.Do(id, func() (any, error) {
		log := m.logger.With("client_id", id)

		if err := m.cfg.Store.Delete(ctx, id); err != nil && !domain.IsNotFound(err) {
			log.Error("failed to delete session blob", "error", err)
		}

		if err := h.Destroy(ctx); err != nil {
			log.Error("failed to tear down transport", "error", err)
		}

		m.mu.Lock()
		if cur, ok := m.sessions[id]; ok && cur == h {
			delete(m.sessions, id)
			if i := slices.Index(m.order, id); i >= 0 {
				m.order = slices.Delete(m.order, i, i+1)
			}
		}
		m.metrics.SessionsActive.Set(float64(len(m.sessions)))
		m.mu.Unlock()

		if err := m.cfg.Registry.Delete(ctx, id); err != nil {
			log.Error("failed to delete registry record", "error", err)
		}

		log.Info("session removed")
		return nil, nil
	})
	return nil
}

// Send looks up id and sends through its handle.
func (m *Manager) Send(ctx context.Context, id, peer, text string, opts SendOptions) (string, error) {
	h, err := m.GetSession(id)
	if err != nil {
		return "", err
	}
	delay := opts.Delay
	if delay <= 0 && opts.Jitter {
		if opts.Async {
			delay = Jitter(m.cfg.AsyncJitterMax)
		} else {
			delay = Jitter(m.cfg.SyncJitterMax)
		}
	}
	if opts.Async {
		return "", h.SendAsync(ctx, peer, text, delay)
	}
	return h.Send(ctx, peer, text, delay)
}

// AwaitStatus looks up id and waits up to the configured WaitTimeout for
// its first QR or readiness signal.
func (m *Manager) AwaitStatus(ctx context.Context, id string) (domain.Status, error) {
	h, err := m.GetSession(id)
	if err != nil {
		return domain.Status{}, err
	}
	return h.WaitForFirstSignal(ctx, m.cfg.WaitTimeout), nil
}

// Shutdown tears down every transport and stops accepting new sessions.
// Registry records and blobs are left alone so sessions come back on the
// next boot.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	handles := make([]*Handle, 0, len(m.order))
	for _, id := range m.order {
		handles = append(handles, m.sessions[id])
	}
	m.sessions = make(map[string]*Handle)
	m.order = nil
	m.metrics.SessionsActive.Set(0)
	m.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if err := h.Destroy(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", h.ClientID(), err))
		}
	}

	m.logger.Info("session manager stopped", "sessions", len(handles))
	return errors.Join(errs...)
}

func (m *Manager) lookup(id string) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.sessions[id]
	return h, ok
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
