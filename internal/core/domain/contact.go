package domain

import (
	"strings"
	"time"
)

// UserChatSuffix is appended to bare phone numbers to form a chat id.
const UserChatSuffix = "@c.us"

// ContactEntry records that PeerID has previously messaged ClientID.
// (ClientID, PeerID) is unique.
type ContactEntry struct {
	ClientID  string    `json:"client_id"`
	PeerID    string    `json:"number"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizePeerID turns a bare phone number into a chat id.
// Values that already carry a server part ("...@c.us", "...@g.us") are
// returned unchanged apart from surrounding whitespace.
func NormalizePeerID(peer string) (string, error) {
	peer = strings.TrimSpace(peer)
	if peer == "" {
		return "", ErrInvalidArgument.WithDetails("peer is required")
	}
	if strings.Contains(peer, "@") {
		return peer, nil
	}
	return strings.TrimPrefix(peer, "+") + UserChatSuffix, nil
}

// NumberFromChatID strips the server part from a chat id.
func NumberFromChatID(chatID string) string {
	if i := strings.IndexByte(chatID, '@'); i >= 0 {
		return chatID[:i]
	}
	return chatID
}
