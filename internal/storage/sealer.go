package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/sys/cpu"
)

// CipherType identifies the blob sealing algorithm. It is recorded in
// every envelope so a store can still open blobs written under another
// setting.
type CipherType uint8

const (
	CipherNone CipherType = iota
	CipherAESGCM
	CipherChaCha20
)

func (c CipherType) String() string {
	switch c {
	case CipherNone:
		return "none"
	case CipherAESGCM:
		return "aes-gcm"
	case CipherChaCha20:
		return "chacha20-poly1305"
	default:
		return fmt.Sprintf("cipher(%d)", uint8(c))
	}
}

// ParseCipherType maps a config value to a CipherType. "" and "auto"
// pick AES-GCM when the CPU has AES instructions, ChaCha20 otherwise.
func ParseCipherType(s string) (CipherType, error) {
	switch s {
	case "", "auto":
		if hasAESHardware() {
			return CipherAESGCM, nil
		}
		return CipherChaCha20, nil
	case "aes-gcm":
		return CipherAESGCM, nil
	case "chacha20-poly1305":
		return CipherChaCha20, nil
	case "none":
		return CipherNone, nil
	default:
		return CipherNone, fmt.Errorf("unknown cipher %q", s)
	}
}

func hasAESHardware() bool {
	return cpu.X86.HasAES || cpu.ARM64.HasAES || cpu.S390X.HasAES
}

// MinSecretLength is the shortest accepted encryption secret.
const MinSecretLength = 16

var errOpenFailed = errors.New("blob authentication failed: wrong key or corrupted data")

// Sealer encrypts blob payloads, binding each to its client id.
type Sealer struct {
	aeads map[CipherType]cipher.AEAD
	write CipherType
}

// NewSealer derives keys from secret. An empty secret yields a sealer
// that stores payloads in the clear and refuses to open sealed ones.
func NewSealer(secret string, cipherType CipherType) (*Sealer, error) {
	s := &Sealer{aeads: make(map[CipherType]cipher.AEAD)}
	if secret == "" {
		s.write = CipherNone
		return s, nil
	}
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("encryption key must be at least %d characters", MinSecretLength)
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte("wamesh session blob v1")), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	chacha, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	s.aeads[CipherAESGCM] = gcm
	s.aeads[CipherChaCha20] = chacha
	s.write = cipherType
	return s, nil
}

// Type is the cipher used for new blobs.
func (s *Sealer) Type() CipherType {
	return s.write
}

// Seal encrypts plaintext under the write cipher. Output is
// nonce || ciphertext || tag.
func (s *Sealer) Seal(plaintext, clientID []byte) (CipherType, []byte, error) {
	if s.write == CipherNone {
		return CipherNone, plaintext, nil
	}
	aead := s.aeads[s.write]
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return 0, nil, fmt.Errorf("generate nonce: %w", err)
	}
	return s.write, aead.Seal(nonce, nonce, plaintext, clientID), nil
}

// Open reverses Seal for any cipher this sealer has a key for.
func (s *Sealer) Open(ct CipherType, data, clientID []byte) ([]byte, error) {
	if ct == CipherNone {
		return data, nil
	}
	aead, ok := s.aeads[ct]
	if !ok {
		return nil, fmt.Errorf("blob sealed with %s but no encryption key is configured", ct)
	}
	if len(data) < aead.NonceSize()+aead.Overhead() {
		return nil, errOpenFailed
	}
	nonce, body := data[:aead.NonceSize()], data[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, body, clientID)
	if err != nil {
		return nil, errOpenFailed
	}
	return plain, nil
}
