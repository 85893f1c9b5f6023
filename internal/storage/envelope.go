package storage

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// envelope is the stored form of one blob version:
//
//	1: client_id   (bytes)
//	2: cipher      (varint, CipherType)
//	3: saved_at_ms (varint)
//	4: payload     (bytes, sealed when cipher != none)
//
// Unknown fields are skipped so newer writers stay readable.
type envelope struct {
	ClientID  string
	Cipher    CipherType
	SavedAtMs int64
	Payload   []byte
}

const (
	fieldClientID  protowire.Number = 1
	fieldCipher    protowire.Number = 2
	fieldSavedAtMs protowire.Number = 3
	fieldPayload   protowire.Number = 4
)

var errEnvelopeTruncated = errors.New("envelope truncated")

func (e *envelope) marshal() []byte {
	b := make([]byte, 0, len(e.ClientID)+len(e.Payload)+24)
	b = protowire.AppendTag(b, fieldClientID, protowire.BytesType)
	b = protowire.AppendString(b, e.ClientID)
	b = protowire.AppendTag(b, fieldCipher, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Cipher))
	b = protowire.AppendTag(b, fieldSavedAtMs, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.SavedAtMs))
	b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
	b = protowire.AppendBytes(b, e.Payload)
	return b
}

func (e *envelope) unmarshal(b []byte) error {
	*e = envelope{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("envelope tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldClientID && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return errEnvelopeTruncated
			}
			e.ClientID, n = v, m
		case num == fieldCipher && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return errEnvelopeTruncated
			}
			e.Cipher, n = CipherType(v), m
		case num == fieldSavedAtMs && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return errEnvelopeTruncated
			}
			e.SavedAtMs, n = int64(v), m
		case num == fieldPayload && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return errEnvelopeTruncated
			}
			e.Payload, n = append([]byte(nil), v...), m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("envelope field %d: %w", num, protowire.ParseError(n))
			}
		}
		b = b[n:]
	}
	return nil
}
