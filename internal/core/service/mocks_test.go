package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/wamesh-go/internal/core/domain"
	"github.com/yndnr/wamesh-go/internal/telemetry/logger"
	"github.com/yndnr/wamesh-go/internal/telemetry/metric"
	"github.com/yndnr/wamesh-go/internal/transport"
)

// fakeTransport lets tests drive events by hand.
type fakeTransport struct {
	*transport.Emitter

	startErr   error
	sendErr    error
	destroyErr error

	started   atomic.Int32
	destroyed atomic.Int32

	mu    sync.Mutex
	sends []sentMessage
}

type sentMessage struct {
	ChatID string
	Text   string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{Emitter: transport.NewEmitter()}
}

func (f *fakeTransport) Start(context.Context) error {
	f.started.Add(1)
	return f.startErr
}

func (f *fakeTransport) Send(_ context.Context, chatID, text string) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sentMessage{ChatID: chatID, Text: text})
	return fmt.Sprintf("msg-%d", len(f.sends)), nil
}

func (f *fakeTransport) Destroy(context.Context) error {
	f.destroyed.Add(1)
	return f.destroyErr
}

func (f *fakeTransport) Sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sends...)
}

func (f *fakeTransport) emitQR(qr string) {
	f.Emit(transport.Event{Kind: transport.KindQR, QR: qr})
}

func (f *fakeTransport) emitReady(number string) {
	f.Emit(transport.Event{Kind: transport.KindReady, SelfNumber: number})
}

func (f *fakeTransport) emitMessage(from, body string, fromMe bool) {
	f.Emit(transport.Event{Kind: transport.KindMessage, Message: &transport.Message{From: from, Body: body, FromMe: fromMe}})
}

// subscriberCount is the total across all kinds.
func (f *fakeTransport) subscriberCount() int {
	n := 0
	for _, k := range []transport.Kind{
		transport.KindQR, transport.KindReady, transport.KindSessionPersisted,
		transport.KindMessage, transport.KindDisconnected,
	} {
		n += f.Count(k)
	}
	return n
}

// fakeFactory records every transport it builds, keyed by client id.
type fakeFactory struct {
	mu         sync.Mutex
	transports map[string]*fakeTransport
	calls      atomic.Int32
	failFor    map[string]error
	configure  func(id string, t *fakeTransport)
	// gate, when set, holds New until it is closed.
	gate chan struct{}
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		transports: make(map[string]*fakeTransport),
		failFor:    make(map[string]error),
	}
}

func (f *fakeFactory) New(clientID string, _ transport.SessionStore) (transport.Transport, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if err := f.failFor[clientID]; err != nil {
		return nil, err
	}
	t := newFakeTransport()
	if f.configure != nil {
		f.configure(clientID, t)
	}
	f.mu.Lock()
	f.transports[clientID] = t
	f.mu.Unlock()
	return t, nil
}

func (f *fakeFactory) get(clientID string) *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transports[clientID]
}

// memRegistry is an in-memory Registry with call counting and failure
// injection.
type memRegistry struct {
	mu        sync.Mutex
	records   map[string]*domain.SessionRecord
	creates   int
	createErr error
	deleteErr error
	// listErr is returned alongside the records; listFail without them.
	listErr  error
	listFail error
	// stall, when set, holds UpdateNumber until it is closed or ctx ends.
	stall chan struct{}
}

func newMemRegistry(ids ...string) *memRegistry {
	r := &memRegistry{records: make(map[string]*domain.SessionRecord)}
	for _, id := range ids {
		r.records[id] = &domain.SessionRecord{ID: "row-" + id, ClientID: id, Number: domain.PendingNumber}
	}
	return r
}

func (r *memRegistry) List(context.Context) ([]*domain.SessionRecord, error) {
	if r.listFail != nil {
		return nil, r.listFail
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.SessionRecord, 0, len(r.records))
	for _, rec := range r.records {
		cp := *rec
		out = append(out, &cp)
	}
	return out, r.listErr
}

func (r *memRegistry) Get(_ context.Context, clientID string) (*domain.SessionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[clientID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *memRegistry) Create(_ context.Context, rec *domain.SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.creates++
	if _, ok := r.records[rec.ClientID]; !ok {
		cp := *rec
		r.records[rec.ClientID] = &cp
	}
	return nil
}

func (r *memRegistry) Delete(_ context.Context, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return r.deleteErr
	}
	delete(r.records, clientID)
	return nil
}

func (r *memRegistry) UpdateNumber(ctx context.Context, clientID, number string) error {
	if err := waitStall(ctx, r.stall); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[clientID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	rec.Number = number
	return nil
}

func (r *memRegistry) number(clientID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[clientID]; ok {
		return rec.Number
	}
	return ""
}

func (r *memRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func (r *memRegistry) createCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creates
}

type memLedger struct {
	mu       sync.Mutex
	contacts map[string]bool
	stall    chan struct{}
}

func newMemLedger() *memLedger {
	return &memLedger{contacts: make(map[string]bool)}
}

func (l *memLedger) RecordInbound(ctx context.Context, clientID, peer string) error {
	if err := waitStall(ctx, l.stall); err != nil {
		return err
	}
	chatID, err := domain.NormalizePeerID(peer)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.contacts[clientID+"|"+chatID] = true
	return nil
}

func (l *memLedger) IsKnownContact(_ context.Context, clientID, peer string) (bool, error) {
	chatID, err := domain.NormalizePeerID(peer)
	if err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.contacts[clientID+"|"+chatID], nil
}

func (l *memLedger) DeleteClient(context.Context, string) error { return nil }

func (l *memLedger) knows(clientID, peer string) bool {
	ok, _ := l.IsKnownContact(context.Background(), clientID, peer)
	return ok
}

// waitStall blocks while stall is open. A nil stall never blocks.
func waitStall(ctx context.Context, stall chan struct{}) error {
	if stall == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-stall:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type memStore struct {
	mu        sync.Mutex
	blobs     map[string][]byte
	deleteErr error
	deletes   int
}

func newMemStore() *memStore {
	return &memStore{blobs: make(map[string][]byte)}
}

func (s *memStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[key]
	return ok, nil
}

func (s *memStore) Save(_ context.Context, key string, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = b
	return nil
}

func (s *memStore) Load(_ context.Context, key string, w io.Writer) error {
	s.mu.Lock()
	b, ok := s.blobs[key]
	s.mu.Unlock()
	if !ok {
		return domain.ErrBlobNotFound
	}
	_, err := io.Copy(w, bytes.NewReader(b))
	return err
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.blobs, key)
	return nil
}

var errBoom = errors.New("boom")

type testEnv struct {
	mgr      *Manager
	registry *memRegistry
	ledger   *memLedger
	store    *memStore
	factory  *fakeFactory
	clock    *clockwork.FakeClock
	metrics  *metric.Registry
}

func newTestEnv(t *testing.T, registryIDs ...string) *testEnv {
	t.Helper()
	env := &testEnv{
		registry: newMemRegistry(registryIDs...),
		ledger:   newMemLedger(),
		store:    newMemStore(),
		factory:  newFakeFactory(),
		clock:    clockwork.NewFakeClock(),
		metrics:  metric.NewRegistry(),
	}
	mgr, err := NewManager(Config{
		Registry:     env.registry,
		Ledger:       env.ledger,
		Store:        env.store,
		NewTransport: env.factory.New,
		Clock:        env.clock,
		Logger:       logger.NewNop(),
		Metrics:      env.metrics,
	})
	require.NoError(t, err)
	env.mgr = mgr
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })
	return env
}

// waitStarted blocks until the handle's background bring-up has called
// Start on its transport.
func (e *testEnv) waitStarted(t *testing.T, id string) *fakeTransport {
	t.Helper()
	var ft *fakeTransport
	require.Eventually(t, func() bool {
		ft = e.factory.get(id)
		return ft != nil && ft.started.Load() > 0
	}, timeoutShort, tick)
	return ft
}

// learnContact delivers an inbound message on ft and waits for the ledger
// write it triggers.
func (e *testEnv) learnContact(t *testing.T, ft *fakeTransport, clientID, from string) {
	t.Helper()
	ft.emitMessage(from, "hello", false)
	require.Eventually(t, func() bool { return e.ledger.knows(clientID, from) }, timeoutShort, tick)
}

func transportEvent(kind string) transport.Event {
	return transport.Event{Kind: transport.Kind(kind), Reason: "test"}
}

func stringsReader(s string) io.Reader {
	return strings.NewReader(s)
}
