package secrets

import (
	"bytes"
	"errors"
	"testing"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func TestSealOpenRoundTrip(t *testing.T) {
	c, err := NewCipher(testKey())
	if err != nil {
		t.Fatalf("NewCipher failed: %v", err)
	}
	if !c.Encrypted() {
		t.Fatal("keyed cipher must report encrypted")
	}

	plaintext := []byte("JBSWY3DPEHPK3PXP")
	envelope, err := c.Seal(plaintext)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if envelope[0] != VersionAESGCM {
		t.Fatalf("expected version %d, got %d", VersionAESGCM, envelope[0])
	}
	if bytes.Contains(envelope, plaintext) {
		t.Fatal("envelope must not contain the plaintext")
	}

	got, err := c.Open(envelope)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: %q", got)
	}
}

func TestSealUsesFreshNonce(t *testing.T) {
	c, err := NewCipher(testKey())
	if err != nil {
		t.Fatalf("NewCipher failed: %v", err)
	}

	a, _ := c.Seal([]byte("secret"))
	b, _ := c.Seal([]byte("secret"))
	if bytes.Equal(a, b) {
		t.Fatal("two seals of the same plaintext must differ")
	}
}

func TestPlaintextCipher(t *testing.T) {
	c, err := NewCipher(nil)
	if err != nil {
		t.Fatalf("NewCipher failed: %v", err)
	}
	if c.Encrypted() {
		t.Fatal("keyless cipher must not report encrypted")
	}

	envelope, err := c.Seal([]byte("secret"))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if envelope[0] != VersionPlain {
		t.Fatalf("expected version %d, got %d", VersionPlain, envelope[0])
	}

	got, err := c.Open(envelope)
	if err != nil || string(got) != "secret" {
		t.Fatalf("Open = %q, %v", got, err)
	}
}

func TestOpenLegacyPlaintextWithKey(t *testing.T) {
	c, err := NewCipher(testKey())
	if err != nil {
		t.Fatalf("NewCipher failed: %v", err)
	}

	// Records written before a key was configured stay readable.
	legacy := append([]byte{VersionPlain}, []byte("old-secret")...)
	got, err := c.Open(legacy)
	if err != nil || string(got) != "old-secret" {
		t.Fatalf("Open = %q, %v", got, err)
	}
}

func TestOpenFailures(t *testing.T) {
	c, err := NewCipher(testKey())
	if err != nil {
		t.Fatalf("NewCipher failed: %v", err)
	}

	if _, err := c.Open(nil); !errors.Is(err, ErrInvalidEnvelope) {
		t.Fatalf("empty envelope: got %v", err)
	}
	if _, err := c.Open([]byte{99, 1, 2, 3}); !errors.Is(err, ErrInvalidEnvelope) {
		t.Fatalf("unknown version: got %v", err)
	}
	if _, err := c.Open([]byte{VersionAESGCM, 1, 2}); !errors.Is(err, ErrInvalidEnvelope) {
		t.Fatalf("truncated envelope: got %v", err)
	}

	// A flipped ciphertext byte is a hard failure, never a plaintext
	// fallback.
	envelope, _ := c.Seal([]byte("secret"))
	envelope[len(envelope)-1] ^= 0xff
	if _, err := c.Open(envelope); !errors.Is(err, ErrDecryptFailed) {
		t.Fatalf("tampered envelope: got %v", err)
	}

	// Wrong key fails the same way.
	other, _ := NewCipher(bytes.Repeat([]byte{0x24}, 32))
	envelope, _ = c.Seal([]byte("secret"))
	if _, err := other.Open(envelope); !errors.Is(err, ErrDecryptFailed) {
		t.Fatalf("wrong key: got %v", err)
	}

	// An encrypted envelope without a configured key cannot be opened.
	keyless, _ := NewCipher(nil)
	if _, err := keyless.Open(envelope); !errors.Is(err, ErrNoKey) {
		t.Fatalf("keyless open: got %v", err)
	}
}

func TestNewCipherRejectsBadKeySize(t *testing.T) {
	if _, err := NewCipher([]byte("short")); err == nil {
		t.Fatal("expected error for 5-byte key")
	}
	for _, n := range []int{16, 24, 32} {
		if _, err := NewCipher(bytes.Repeat([]byte{1}, n)); err != nil {
			t.Fatalf("%d-byte key rejected: %v", n, err)
		}
	}
}
