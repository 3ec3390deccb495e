package authcore

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
)

func TestBackupCodeHashBoundToPrincipal(t *testing.T) {
	canonical := canonicalizeBackupCode("ABCD-EFGH")
	h1 := backupCodeHash("principal-1", canonical)
	h2 := backupCodeHash("principal-2", canonical)
	if bytes.Equal(h1[:], h2[:]) {
		t.Fatal("expected different hashes for different principals")
	}
}

func TestCanonicalizeBackupCode(t *testing.T) {
	for input, want := range map[string]string{
		"abcde-fghjk":   "ABCDEFGHJK",
		" ABCDE FGHJK ": "ABCDEFGHJK",
		"ABCDEFGHJK":    "ABCDEFGHJK",
	} {
		if got := canonicalizeBackupCode(input); got != want {
			t.Fatalf("canonicalize(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNewBackupCodeAlphabet(t *testing.T) {
	for i := 0; i < 20; i++ {
		code, err := newBackupCode(10)
		if err != nil {
			t.Fatalf("newBackupCode failed: %v", err)
		}
		if len(code) != 10 {
			t.Fatalf("expected length 10, got %d", len(code))
		}
		for _, r := range code {
			switch r {
			case '0', 'O', '1', 'I':
				t.Fatalf("ambiguous character %c in code %s", r, code)
			}
		}
	}
}

func mfaChallengeFor(t *testing.T, engine *Engine, identifier, pass string) string {
	t.Helper()

	result, err := engine.Authenticate(context.Background(), identifier, pass)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if !result.RequiresMFA {
		t.Fatal("expected MFA challenge")
	}
	return result.ChallengeID
}

func TestBackupCodeLogin(t *testing.T) {
	engine, store, _ := newTestEngine(t, nil)
	p := seedPrincipal(t, engine, store, "alice@example.com", "correct-horse-raft")
	_, codes := enrollMFA(t, engine, p.ID)

	challengeID := mfaChallengeFor(t, engine, "alice@example.com", "correct-horse-raft")
	result, err := engine.CompleteMFAWithBackupCode(context.Background(), challengeID, codes[0])
	if err != nil {
		t.Fatalf("CompleteMFAWithBackupCode failed: %v", err)
	}
	if result.AccessToken == "" {
		t.Fatal("expected tokens after backup code login")
	}

	// The code is spent.
	challengeID = mfaChallengeFor(t, engine, "alice@example.com", "correct-horse-raft")
	if _, err := engine.CompleteMFAWithBackupCode(context.Background(), challengeID, codes[0]); !errors.Is(err, ErrBackupCodeInvalid) {
		t.Fatalf("expected ErrBackupCodeInvalid on replay, got %v", err)
	}

	// A different code still works, lowercase and unhyphenated.
	challengeID = mfaChallengeFor(t, engine, "alice@example.com", "correct-horse-raft")
	loose := canonicalizeBackupCode(codes[1])
	if _, err := engine.CompleteMFAWithBackupCode(context.Background(), challengeID, loose); err != nil {
		t.Fatalf("expected canonical-form code to redeem, got %v", err)
	}
}

func TestBackupCodeConcurrentRedemption(t *testing.T) {
	engine, store, _ := newTestEngine(t, nil)
	p := seedPrincipal(t, engine, store, "alice@example.com", "correct-horse-raft")
	_, codes := enrollMFA(t, engine, p.ID)

	ch1 := mfaChallengeFor(t, engine, "alice@example.com", "correct-horse-raft")
	ch2 := mfaChallengeFor(t, engine, "alice@example.com", "correct-horse-raft")

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for _, id := range []string{ch1, ch2} {
		wg.Add(1)
		go func(challengeID string) {
			defer wg.Done()
			_, err := engine.CompleteMFAWithBackupCode(context.Background(), challengeID, codes[0])
			results <- err
		}(id)
	}
	wg.Wait()
	close(results)

	success, invalid := 0, 0
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrBackupCodeInvalid):
			invalid++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 || invalid != 1 {
		t.Fatalf("expected exactly one redemption, got success=%d invalid=%d", success, invalid)
	}
}

func TestBackupCodesExhausted(t *testing.T) {
	engine, store, _ := newTestEngine(t, func(cfg *Config) {
		cfg.MFA.BackupCodeCount = 2
	})
	p := seedPrincipal(t, engine, store, "alice@example.com", "correct-horse-raft")
	_, codes := enrollMFA(t, engine, p.ID)

	for _, code := range codes {
		challengeID := mfaChallengeFor(t, engine, "alice@example.com", "correct-horse-raft")
		if _, err := engine.CompleteMFAWithBackupCode(context.Background(), challengeID, code); err != nil {
			t.Fatalf("redeem failed: %v", err)
		}
	}

	challengeID := mfaChallengeFor(t, engine, "alice@example.com", "correct-horse-raft")
	if _, err := engine.CompleteMFAWithBackupCode(context.Background(), challengeID, codes[0]); !errors.Is(err, ErrNoBackupCodes) {
		t.Fatalf("expected ErrNoBackupCodes, got %v", err)
	}
}

func TestRegenerateBackupCodesInvalidatesOldSet(t *testing.T) {
	engine, store, _ := newTestEngine(t, nil)
	p := seedPrincipal(t, engine, store, "alice@example.com", "correct-horse-raft")
	secret, oldCodes := enrollMFA(t, engine, p.ID)

	code := codeForSecret(t, secret, engine.now(), engine.config.MFA)
	newCodes, err := engine.RegenerateBackupCodes(context.Background(), p.ID, code)
	if err != nil {
		t.Fatalf("RegenerateBackupCodes failed: %v", err)
	}
	if len(newCodes) != engine.config.MFA.BackupCodeCount {
		t.Fatalf("expected %d codes, got %d", engine.config.MFA.BackupCodeCount, len(newCodes))
	}

	challengeID := mfaChallengeFor(t, engine, "alice@example.com", "correct-horse-raft")
	if _, err := engine.CompleteMFAWithBackupCode(context.Background(), challengeID, oldCodes[0]); !errors.Is(err, ErrBackupCodeInvalid) {
		t.Fatalf("expected old code invalid, got %v", err)
	}

	challengeID = mfaChallengeFor(t, engine, "alice@example.com", "correct-horse-raft")
	if _, err := engine.CompleteMFAWithBackupCode(context.Background(), challengeID, newCodes[0]); err != nil {
		t.Fatalf("expected new code to redeem, got %v", err)
	}
}
