package logger

import (
	"log/slog"
	"strings"
)

// Keys whose values are replaced outright. QR payloads and session blobs
// let anyone holding them take over a tenant's account.
var secretKeys = []string{
	"qr",
	"session",
	"blob",
	"password",
	"secret",
	"encryption_key",
	"url", // connection strings carry credentials
}

// Keys whose values are phone numbers or chat ids; only the tail is kept.
var phoneKeys = []string{
	"peer",
	"phone",
	"number",
	"from",
	"to",
	"chat_id",
}

const redactedValue = "[REDACTED]"

func redactSensitive(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			out[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	if a.Value.Kind() != slog.KindString {
		return a
	}

	val := a.Value.String()
	if val == "" {
		return a
	}
	key := strings.ToLower(a.Key)
	switch {
	case IsSensitiveKey(key):
		return slog.String(a.Key, redactedValue)
	case isPhoneKey(key):
		return slog.String(a.Key, MaskPhone(val))
	}
	return a
}

// IsSensitiveKey reports whether values logged under key are redacted.
func IsSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, k := range secretKeys {
		if key == k || strings.HasSuffix(key, "_"+k) {
			return true
		}
	}
	return false
}

func isPhoneKey(key string) bool {
	for _, k := range phoneKeys {
		if key == k || strings.HasSuffix(key, "_"+k) {
			return true
		}
	}
	return false
}

// MaskPhone keeps the last four digits of a phone number or chat id.
// "628123456789@c.us" becomes "********6789@c.us".
func MaskPhone(v string) string {
	local, server := v, ""
	if i := strings.IndexByte(v, '@'); i >= 0 {
		local, server = v[:i], v[i:]
	}
	if len(local) <= 4 {
		return strings.Repeat("*", len(local)) + server
	}
	return strings.Repeat("*", len(local)-4) + local[len(local)-4:] + server
}
