package wsbridge

// Frame types.
const (
	frameStart        = "start"
	frameSend         = "send"
	frameDestroy      = "destroy"
	frameQR           = "qr"
	frameReady        = "ready"
	frameSessionSaved = "session_saved"
	frameMessage      = "message"
	frameDisconnected = "disconnected"
	frameSendResult   = "send_result"
)

// frame is the union of every frame shape on the wire.
type frame struct {
	Type      string        `json:"type"`
	ClientID  string        `json:"client_id,omitempty"`
	Session   []byte        `json:"session,omitempty"` // base64 on the wire
	RequestID string        `json:"request_id,omitempty"`
	ChatID    string        `json:"chat_id,omitempty"`
	Text      string        `json:"text,omitempty"`
	QR        string        `json:"qr,omitempty"`
	Number    string        `json:"number,omitempty"`
	Message   *messageFrame `json:"message,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	MessageID string        `json:"message_id,omitempty"`
	Error     string        `json:"error,omitempty"`
}

type messageFrame struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Body      string `json:"body"`
	FromMe    bool   `json:"from_me"`
	Timestamp int64  `json:"timestamp"` // Unix seconds
}
