// Package loopback is an in-process transport for development and tests.
//
// It never touches a network. Start emits a QR payload, or goes straight
// to ready when a paired session is already stored. Pairing and inbound
// traffic are driven through Authenticate and Inbound.
package loopback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"

	"github.com/yndnr/wamesh-go/internal/transport"
)

var (
	ErrDestroyed = errors.New("loopback: transport destroyed")
	ErrNotPaired = errors.New("loopback: not paired")
)

// session is the blob the loopback transport persists once paired.
type session struct {
	ClientID string `json:"client_id"`
	Number   string `json:"number"`
	PairedAt int64  `json:"paired_at"`
}

// Sent is one outbound message accepted by Send.
type Sent struct {
	ID     string
	ChatID string
	Text   string
}

// Transport implements transport.Transport in memory.
type Transport struct {
	*transport.Emitter

	clientID string
	store    transport.SessionStore
	clock    clockwork.Clock

	mu        sync.Mutex
	number    string
	paired    bool
	destroyed bool
	sent      []Sent
}

var _ transport.Transport = (*Transport)(nil)

// New creates a loopback transport for clientID.
func New(clientID string, store transport.SessionStore, clock clockwork.Clock) *Transport {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Transport{
		Emitter:  transport.NewEmitter(),
		clientID: clientID,
		store:    store,
		clock:    clock,
	}
}

// Factory returns a transport.Factory producing loopback transports.
// Every transport created is also passed to track, when non-nil.
func Factory(clock clockwork.Clock, track func(*Transport)) transport.Factory {
	return func(clientID string, store transport.SessionStore) (transport.Transport, error) {
		t := New(clientID, store, clock)
		if track != nil {
			track(t)
		}
		return t, nil
	}
}

// Start resumes the stored session or emits a pairing QR.
func (t *Transport) Start(ctx context.Context) error {
	if t.isDestroyed() {
		return ErrDestroyed
	}

	ok, err := t.store.Exists(ctx, t.clientID)
	if err != nil {
		return fmt.Errorf("loopback: check session: %w", err)
	}
	if !ok {
		t.Emit(transport.Event{Kind: transport.KindQR, QR: t.qrPayload()})
		return nil
	}

	var buf bytes.Buffer
	if err := t.store.Load(ctx, t.clientID, &buf); err != nil {
		return fmt.Errorf("loopback: load session: %w", err)
	}
	var s session
	if err := json.Unmarshal(buf.Bytes(), &s); err != nil {
		return fmt.Errorf("loopback: decode session: %w", err)
	}

	t.mu.Lock()
	t.number, t.paired = s.Number, true
	t.mu.Unlock()

	t.Emit(transport.Event{Kind: transport.KindReady, SelfNumber: s.Number})
	return nil
}

func (t *Transport) qrPayload() string {
	return "loopback:" + t.clientID + ":" + ulid.Make().String()
}

// Authenticate pairs the transport as number: the session is persisted,
// then session_persisted and ready are emitted.
func (t *Transport) Authenticate(ctx context.Context, number string) error {
	if t.isDestroyed() {
		return ErrDestroyed
	}
	b, err := json.Marshal(session{
		ClientID: t.clientID,
		Number:   number,
		PairedAt: t.clock.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	if err := t.store.Save(ctx, t.clientID, bytes.NewReader(b)); err != nil {
		return fmt.Errorf("loopback: save session: %w", err)
	}

	t.mu.Lock()
	t.number, t.paired = number, true
	t.mu.Unlock()

	t.Emit(transport.Event{Kind: transport.KindSessionPersisted})
	t.Emit(transport.Event{Kind: transport.KindReady, SelfNumber: number})
	return nil
}

// RefreshQR emits a new QR payload, as a real network does when the old
// one expires.
func (t *Transport) RefreshQR() {
	if t.isDestroyed() {
		return
	}
	t.Emit(transport.Event{Kind: transport.KindQR, QR: t.qrPayload()})
}

// Inbound delivers a message from a peer.
func (t *Transport) Inbound(from, body string) {
	t.deliver(from, body, false)
}

// Echo delivers a message authored by the tenant itself, as seen when
// the tenant writes from another device.
func (t *Transport) Echo(to, body string) {
	t.deliver(to, body, true)
}

func (t *Transport) deliver(from, body string, fromMe bool) {
	if t.isDestroyed() {
		return
	}
	t.Emit(transport.Event{Kind: transport.KindMessage, Message: &transport.Message{
		ID:        ulid.Make().String(),
		From:      from,
		Body:      body,
		FromMe:    fromMe,
		Timestamp: t.clock.Now(),
	}})
}

// Disconnect emits a disconnected event.
func (t *Transport) Disconnect(reason string) {
	if t.isDestroyed() {
		return
	}
	t.Emit(transport.Event{Kind: transport.KindDisconnected, Reason: reason})
}

// Send records the message.
func (t *Transport) Send(_ context.Context, chatID, text string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.destroyed:
		return "", ErrDestroyed
	case !t.paired:
		return "", ErrNotPaired
	}
	id := ulid.Make().String()
	t.sent = append(t.sent, Sent{ID: id, ChatID: chatID, Text: text})
	return id, nil
}

// Destroy drops every subscriber. Calling it again is a no-op.
func (t *Transport) Destroy(context.Context) error {
	t.mu.Lock()
	t.destroyed = true
	t.mu.Unlock()
	t.Reset()
	return nil
}

// ClientID returns the tenant this transport serves.
func (t *Transport) ClientID() string {
	return t.clientID
}

// Number returns the paired number, "" before pairing.
func (t *Transport) Number() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.number
}

// SentMessages returns a copy of everything sent so far.
func (t *Transport) SentMessages() []Sent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Sent(nil), t.sent...)
}

func (t *Transport) isDestroyed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.destroyed
}
