package logger

import (
	"log/slog"
	"testing"
)

func TestRedactSensitive_SecretKeys(t *testing.T) {
	l, buf := newBufLogger(t, "info")

	l.Info("qr emitted",
		"qr", "2@AbCdEf==,xyz",
		"session", "c2Vzc2lvbi1ibG9i",
		"postgres_url", "postgres://u:p@db/wa",
		"client_id", "shop-1",
	)

	entry := decode(t, buf)
	for _, k := range []string{"qr", "session", "postgres_url"} {
		if entry[k] != redactedValue {
			t.Errorf("%s = %v, want redacted", k, entry[k])
		}
	}
	if entry["client_id"] != "shop-1" {
		t.Errorf("client_id should pass through, got %v", entry["client_id"])
	}
}

func TestRedactSensitive_PhoneKeys(t *testing.T) {
	l, buf := newBufLogger(t, "info")

	l.Info("inbound", "from", "628123456789@c.us", "peer", "628123456789")

	entry := decode(t, buf)
	if entry["from"] != "********6789@c.us" {
		t.Errorf("from = %v", entry["from"])
	}
	if entry["peer"] != "********6789" {
		t.Errorf("peer = %v", entry["peer"])
	}
}

func TestRedactSensitive_Group(t *testing.T) {
	a := redactSensitive(slog.Group("frame", slog.String("qr", "x"), slog.Int("n", 1)))
	attrs := a.Value.Group()
	if attrs[0].Value.String() != redactedValue {
		t.Errorf("nested qr = %v", attrs[0].Value)
	}
	if attrs[1].Value.Int64() != 1 {
		t.Error("non-string attrs must be untouched")
	}
}

func TestRedactSensitive_EmptyValue(t *testing.T) {
	a := redactSensitive(slog.String("qr", ""))
	if a.Value.String() != "" {
		t.Error("empty values should not be replaced")
	}
}

func TestMaskPhone(t *testing.T) {
	cases := map[string]string{
		"628123456789":      "********6789",
		"628123456789@c.us": "********6789@c.us",
		"123":               "***",
		"":                  "",
	}
	for in, want := range cases {
		if got := MaskPhone(in); got != want {
			t.Errorf("MaskPhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsSensitiveKey(t *testing.T) {
	if !IsSensitiveKey("QR") || !IsSensitiveKey("redis_url") {
		t.Error("expected sensitive")
	}
	if IsSensitiveKey("client_id") || IsSensitiveKey("sessions") {
		t.Error("expected not sensitive")
	}
}
