package wsbridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/yndnr/wamesh-go/internal/telemetry/logger"
	"github.com/yndnr/wamesh-go/internal/transport"
)

var (
	ErrClosed     = errors.New("wsbridge: connection closed")
	ErrNotStarted = errors.New("wsbridge: not started")
)

// Config configures the bridge.
type Config struct {
	// URL is the sidecar WebSocket endpoint. The client id is appended as
	// the client_id query parameter.
	URL string

	DialTimeout  time.Duration
	WriteTimeout time.Duration

	// PingInterval is how often keepalive pings are sent. Zero disables.
	PingInterval time.Duration

	// StoreTimeout bounds persisting a session_saved blob.
	StoreTimeout time.Duration
}

// DefaultConfig returns defaults for url.
func DefaultConfig(url string) Config {
	return Config{
		URL:          url,
		DialTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		StoreTimeout: 30 * time.Second,
	}
}

type sendResult struct {
	messageID string
	err       error
}

// Bridge implements transport.Transport over a sidecar connection.
type Bridge struct {
	*transport.Emitter

	cfg      Config
	clientID string
	store    transport.SessionStore
	logger   logger.Logger

	writeMu sync.Mutex
	conn    *websocket.Conn

	mu      sync.Mutex
	pending map[string]chan sendResult
	started bool
	closed  bool

	done      chan struct{}
	closeOnce sync.Once
}

var _ transport.Transport = (*Bridge)(nil)

// New creates a bridge for clientID. Nothing is dialled until Start.
func New(cfg Config, clientID string, store transport.SessionStore, log logger.Logger) *Bridge {
	if log == nil {
		log = logger.NewNop()
	}
	return &Bridge{
		Emitter:  transport.NewEmitter(),
		cfg:      cfg,
		clientID: clientID,
		store:    store,
		logger:   log.With("component", "wsbridge", "client_id", clientID),
		pending:  make(map[string]chan sendResult),
		done:     make(chan struct{}),
	}
}

// Factory returns a transport.Factory producing bridges.
func Factory(cfg Config, log logger.Logger) transport.Factory {
	return func(clientID string, store transport.SessionStore) (transport.Transport, error) {
		if cfg.URL == "" {
			return nil, errors.New("wsbridge: url is required")
		}
		return New(cfg, clientID, store, log), nil
	}
}

func (b *Bridge) endpoint() (string, error) {
	u, err := url.Parse(b.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("wsbridge: parse url: %w", err)
	}
	q := u.Query()
	q.Set("client_id", b.clientID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Start dials the sidecar and hands it the stored session, if any.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	switch {
	case b.closed:
		b.mu.Unlock()
		return ErrClosed
	case b.started:
		b.mu.Unlock()
		return nil
	}
	b.started = true
	b.mu.Unlock()

	start := frame{Type: frameStart, ClientID: b.clientID}
	ok, err := b.store.Exists(ctx, b.clientID)
	if err != nil {
		return fmt.Errorf("wsbridge: check session: %w", err)
	}
	if ok {
		var buf bytes.Buffer
		if err := b.store.Load(ctx, b.clientID, &buf); err != nil {
			return fmt.Errorf("wsbridge: load session: %w", err)
		}
		start.Session = buf.Bytes()
	}

	endpoint, err := b.endpoint()
	if err != nil {
		return err
	}
	dialer := websocket.Dialer{HandshakeTimeout: b.cfg.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("wsbridge: dial: %w", err)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	b.conn = conn
	b.mu.Unlock()

	if err := b.write(start); err != nil {
		b.shutdown(err)
		return err
	}
	b.logger.Debug("bridge connected", "resumed", ok)

	go b.readLoop()
	if b.cfg.PingInterval > 0 {
		go b.pingLoop()
	}
	return nil
}

func (b *Bridge) write(f frame) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if b.conn == nil {
		return ErrNotStarted
	}
	if b.cfg.WriteTimeout > 0 {
		_ = b.conn.SetWriteDeadline(time.Now().Add(b.cfg.WriteTimeout))
	}
	if err := b.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("wsbridge: write %s: %w", f.Type, err)
	}
	return nil
}

func (b *Bridge) readLoop() {
	for {
		var f frame
		if err := b.conn.ReadJSON(&f); err != nil {
			b.shutdown(err)
			return
		}
		b.dispatch(f)
	}
}

func (b *Bridge) pingLoop() {
	ticker := time.NewTicker(b.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(b.cfg.WriteTimeout)
			if err := b.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				b.logger.Debug("ping failed", "error", err)
			}
		case <-b.done:
			return
		}
	}
}

func (b *Bridge) dispatch(f frame) {
	switch f.Type {
	case frameQR:
		b.Emit(transport.Event{Kind: transport.KindQR, QR: f.QR})
	case frameReady:
		b.Emit(transport.Event{Kind: transport.KindReady, SelfNumber: f.Number})
	case frameSessionSaved:
		b.persist(f.Session)
	case frameMessage:
		if f.Message == nil {
			return
		}
		b.Emit(transport.Event{Kind: transport.KindMessage, Message: &transport.Message{
			ID:        f.Message.ID,
			From:      f.Message.From,
			Body:      f.Message.Body,
			FromMe:    f.Message.FromMe,
			Timestamp: time.Unix(f.Message.Timestamp, 0),
		}})
	case frameDisconnected:
		b.Emit(transport.Event{Kind: transport.KindDisconnected, Reason: f.Reason})
	case frameSendResult:
		b.resolve(f)
	default:
		b.logger.Warn("unknown frame from sidecar", "type", f.Type)
	}
}

func (b *Bridge) persist(blob []byte) {
	if len(blob) == 0 {
		b.logger.Warn("empty session_saved frame ignored")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.StoreTimeout)
	defer cancel()
	if err := b.store.Save(ctx, b.clientID, bytes.NewReader(blob)); err != nil {
		b.logger.Error("failed to persist session", "error", err)
		return
	}
	b.Emit(transport.Event{Kind: transport.KindSessionPersisted})
}

func (b *Bridge) resolve(f frame) {
	b.mu.Lock()
	ch, ok := b.pending[f.RequestID]
	delete(b.pending, f.RequestID)
	b.mu.Unlock()
	if !ok {
		b.logger.Debug("send_result for unknown request", "request_id", f.RequestID)
		return
	}
	res := sendResult{messageID: f.MessageID}
	if f.Error != "" {
		res.err = fmt.Errorf("wsbridge: sidecar: %s", f.Error)
	}
	ch <- res
}

// Send asks the sidecar to deliver text and waits for its send_result.
func (b *Bridge) Send(ctx context.Context, chatID, text string) (string, error) {
	id := ulid.Make().String()
	ch := make(chan sendResult, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return "", ErrClosed
	}
	b.pending[id] = ch
	b.mu.Unlock()

	forget := func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}

	if err := b.write(frame{Type: frameSend, RequestID: id, ChatID: chatID, Text: text}); err != nil {
		forget()
		return "", err
	}

	select {
	case res := <-ch:
		return res.messageID, res.err
	case <-ctx.Done():
		forget()
		return "", ctx.Err()
	case <-b.done:
		return "", ErrClosed
	}
}

// Destroy tells the sidecar to tear down and closes the connection.
func (b *Bridge) Destroy(context.Context) error {
	b.mu.Lock()
	hasConn := b.conn != nil && !b.closed
	b.mu.Unlock()

	if hasConn {
		if err := b.write(frame{Type: frameDestroy}); err != nil {
			b.logger.Debug("destroy frame not delivered", "error", err)
		}
		b.writeMu.Lock()
		_ = b.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "destroy"),
			time.Now().Add(time.Second))
		b.writeMu.Unlock()
	}
	b.shutdown(nil)
	b.Reset()
	return nil
}

// shutdown closes the connection once. A non-nil cause on a connection
// nobody asked to close is reported as a disconnected event.
func (b *Bridge) shutdown(cause error) {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		conn := b.conn
		b.pending = make(map[string]chan sendResult)
		b.mu.Unlock()

		close(b.done)
		if conn != nil {
			_ = conn.Close()
		}
		if cause != nil {
			b.logger.Warn("bridge connection lost", "error", cause)
			b.Emit(transport.Event{Kind: transport.KindDisconnected, Reason: cause.Error()})
		}
	})
}
