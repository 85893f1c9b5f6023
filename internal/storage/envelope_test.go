package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestEnvelope_UnknownFieldsSkipped(t *testing.T) {
	env := envelope{ClientID: "shop-1", Cipher: CipherAESGCM, SavedAtMs: 1700000000000, Payload: []byte{1, 2, 3}}
	b := env.marshal()
	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendString(b, "from the future")

	var got envelope
	require.NoError(t, got.unmarshal(b))
	assert.Equal(t, env, got)
}

func TestEnvelope_Truncated(t *testing.T) {
	env := envelope{ClientID: "shop-1", Payload: []byte("payload")}
	b := env.marshal()

	var got envelope
	assert.Error(t, got.unmarshal(b[:len(b)-3]))
}
