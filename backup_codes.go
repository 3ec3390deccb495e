package authcore

import (
	"crypto/rand"
	"crypto/sha256"
	"math/big"
	"strings"
)

// backupCodeAlphabet excludes 0, O, 1, and I so codes survive being read
// aloud or written down.
const backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// newBackupCode generates a single canonical (unformatted, uppercase)
// backup code of the given length.
func newBackupCode(length int) (string, error) {
	var sb strings.Builder
	sb.Grow(length)
	for i := 0; i < length; i++ {
		idx, err := cryptoRandomIndex(len(backupCodeAlphabet))
		if err != nil {
			return "", err
		}
		sb.WriteByte(backupCodeAlphabet[idx])
	}
	return sb.String(), nil
}

func cryptoRandomIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

// formatBackupCode inserts a hyphen at the midpoint for display. Only the
// formatted form is ever shown to the user, and only once.
func formatBackupCode(canonical string) string {
	if len(canonical) < 4 {
		return canonical
	}
	mid := len(canonical) / 2
	return canonical[:mid] + "-" + canonical[mid:]
}

// canonicalizeBackupCode normalizes user input back to the canonical
// form: uppercase with hyphens and spaces stripped.
func canonicalizeBackupCode(input string) string {
	var sb strings.Builder
	sb.Grow(len(input))
	for _, r := range strings.ToUpper(strings.TrimSpace(input)) {
		if r == '-' || r == ' ' {
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// backupCodeHash binds the digest to the owning principal so identical
// codes held by different principals never collide in storage.
func backupCodeHash(principalID, canonical string) [32]byte {
	h := sha256.New()
	h.Write([]byte(principalID))
	h.Write([]byte{0x00})
	h.Write([]byte(canonical))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
