package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
)

// Envelope versions. Version 1 entries are legacy plaintext and are
// accepted on read only; all new writes use version 2 when a key is
// configured.
const (
	VersionPlain  byte = 1
	VersionAESGCM byte = 2
)

var (
	// ErrInvalidEnvelope is returned for empty or unversioned payloads.
	ErrInvalidEnvelope = errors.New("secrets: invalid envelope")
	// ErrDecryptFailed is returned when an encrypted envelope cannot be
	// opened. This is a hard error, never a signal to fall back to
	// treating the payload as plaintext.
	ErrDecryptFailed = errors.New("secrets: decryption failed")
	// ErrNoKey is returned when an encrypted envelope is read but no key
	// is configured.
	ErrNoKey = errors.New("secrets: no encryption key configured")
)

// Cipher seals and opens versioned secret envelopes. A Cipher built
// without a key writes plaintext envelopes and cannot open encrypted
// ones.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from an AES key of 16, 24, or 32 bytes. An
// empty key yields a legacy plaintext cipher.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) == 0 {
		return &Cipher{}, nil
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Cipher{aead: aead}, nil
}

// Seal wraps plaintext in a versioned envelope, encrypting when a key is
// configured.
func (c *Cipher) Seal(plaintext []byte) ([]byte, error) {
	if c == nil || c.aead == nil {
		out := make([]byte, 0, 1+len(plaintext))
		out = append(out, VersionPlain)
		return append(out, plaintext...), nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, 1+len(nonce)+len(plaintext)+c.aead.Overhead())
	out = append(out, VersionAESGCM)
	out = append(out, nonce...)
	return c.aead.Seal(out, nonce, plaintext, nil), nil
}

// Open unwraps an envelope produced by Seal. Version 1 payloads are
// returned verbatim regardless of key configuration.
func (c *Cipher) Open(envelope []byte) ([]byte, error) {
	if len(envelope) < 1 {
		return nil, ErrInvalidEnvelope
	}

	switch envelope[0] {
	case VersionPlain:
		return envelope[1:], nil
	case VersionAESGCM:
		if c == nil || c.aead == nil {
			return nil, ErrNoKey
		}
		body := envelope[1:]
		ns := c.aead.NonceSize()
		if len(body) < ns {
			return nil, ErrInvalidEnvelope
		}
		plaintext, err := c.aead.Open(nil, body[:ns], body[ns:], nil)
		if err != nil {
			return nil, ErrDecryptFailed
		}
		return plaintext, nil
	default:
		return nil, ErrInvalidEnvelope
	}
}

// Encrypted reports whether Seal produces encrypted envelopes.
func (c *Cipher) Encrypted() bool {
	return c != nil && c.aead != nil
}
