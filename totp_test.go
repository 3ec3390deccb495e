package authcore

import (
	"strings"
	"testing"
	"time"
)

// RFC 6238 appendix B test vectors, truncated to 6 digits. The SHA-1
// secret is the 20-byte ASCII string "12345678901234567890".
func TestTOTPReferenceVectors(t *testing.T) {
	secret := []byte("12345678901234567890")

	vectors := []struct {
		unix int64
		code string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1111111111, "050471"},
		{1234567890, "005924"},
		{2000000000, "279037"},
		{20000000000, "353130"},
	}

	for _, v := range vectors {
		got, err := hotpCode(secret, v.unix/30, 6, "SHA1")
		if err != nil {
			t.Fatalf("hotpCode(%d) failed: %v", v.unix, err)
		}
		if got != v.code {
			t.Fatalf("hotpCode(%d) = %s, want %s", v.unix, got, v.code)
		}
	}
}

func testMFAConfig() MFAConfig {
	return MFAConfig{
		Issuer:    "authcore-test",
		Digits:    6,
		Period:    30,
		Algorithm: "SHA1",
		Skew:      1,
	}
}

func TestVerifyCodeAcceptsSkewWindow(t *testing.T) {
	m := newTOTPManager(testMFAConfig())
	secret := []byte("12345678901234567890")
	now := time.Unix(1111111109, 0)

	for _, offset := range []time.Duration{-30 * time.Second, 0, 30 * time.Second} {
		code, err := hotpCode(secret, now.Add(offset).Unix()/30, 6, "SHA1")
		if err != nil {
			t.Fatalf("hotpCode failed: %v", err)
		}
		ok, err := m.VerifyCode(secret, code, now)
		if err != nil {
			t.Fatalf("VerifyCode failed: %v", err)
		}
		if !ok {
			t.Fatalf("expected code at offset %v accepted", offset)
		}
	}

	// Two steps away is outside skew 1.
	code, err := hotpCode(secret, now.Add(60*time.Second).Unix()/30, 6, "SHA1")
	if err != nil {
		t.Fatalf("hotpCode failed: %v", err)
	}
	if ok, _ := m.VerifyCode(secret, code, now); ok {
		t.Fatal("expected code two steps ahead rejected")
	}
}

func TestVerifyCodeRejectsMalformedInput(t *testing.T) {
	m := newTOTPManager(testMFAConfig())
	secret := []byte("12345678901234567890")
	now := time.Now()

	for _, code := range []string{"", "12345", "1234567", "abcdef", "12 456"} {
		ok, err := m.VerifyCode(secret, code, now)
		if err != nil {
			t.Fatalf("VerifyCode(%q) errored: %v", code, err)
		}
		if ok {
			t.Fatalf("expected %q rejected", code)
		}
	}

	if _, err := m.VerifyCode(nil, "123456", now); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestGenerateSecretAndProvisionURI(t *testing.T) {
	m := newTOTPManager(testMFAConfig())

	raw, encoded, err := m.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}
	if len(raw) != totpSecretBytes {
		t.Fatalf("expected %d byte secret, got %d", totpSecretBytes, len(raw))
	}
	if strings.Contains(encoded, "=") {
		t.Fatal("expected unpadded base32")
	}

	uri := m.ProvisionURI(encoded, "alice@example.com")
	for _, part := range []string{
		"otpauth://totp/",
		"secret=" + encoded,
		"issuer=authcore-test",
		"period=30",
		"digits=6",
		"algorithm=SHA1",
	} {
		if !strings.Contains(uri, part) {
			t.Fatalf("URI missing %q: %s", part, uri)
		}
	}
}
