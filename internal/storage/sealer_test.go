package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCipherType(t *testing.T) {
	for in, want := range map[string]CipherType{
		"aes-gcm":           CipherAESGCM,
		"chacha20-poly1305": CipherChaCha20,
		"none":              CipherNone,
	} {
		got, err := ParseCipherType(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}

	auto, err := ParseCipherType("auto")
	require.NoError(t, err)
	assert.NotEqual(t, CipherNone, auto)

	_, err = ParseCipherType("rot13")
	assert.Error(t, err)
}

func TestNewSealer_ShortSecret(t *testing.T) {
	_, err := NewSealer("short", CipherAESGCM)
	assert.Error(t, err)
}

func TestSealer_RoundTrip(t *testing.T) {
	for _, ct := range []CipherType{CipherAESGCM, CipherChaCha20} {
		t.Run(ct.String(), func(t *testing.T) {
			s, err := NewSealer("0123456789abcdef-secret", ct)
			require.NoError(t, err)

			got, sealed, err := s.Seal([]byte("payload"), []byte("shop-1"))
			require.NoError(t, err)
			assert.Equal(t, ct, got)

			plain, err := s.Open(got, sealed, []byte("shop-1"))
			require.NoError(t, err)
			assert.Equal(t, "payload", string(plain))

			_, err = s.Open(got, sealed, []byte("shop-2"))
			assert.Error(t, err, "client id is bound as associated data")

			_, err = s.Open(got, sealed[:3], []byte("shop-1"))
			assert.Error(t, err)
		})
	}
}

func TestSealer_None(t *testing.T) {
	s, err := NewSealer("", CipherAESGCM)
	require.NoError(t, err)
	assert.Equal(t, CipherNone, s.Type())

	ct, out, err := s.Seal([]byte("clear"), nil)
	require.NoError(t, err)
	assert.Equal(t, CipherNone, ct)
	assert.Equal(t, "clear", string(out))

	_, err = s.Open(CipherAESGCM, []byte("whatever"), nil)
	assert.Error(t, err)
}
