package authcore

import (
	"context"
	"errors"
	"testing"
)

func TestRefreshIssuesNewAccessToken(t *testing.T) {
	engine, store, _ := newTestEngine(t, nil)
	seedPrincipal(t, engine, store, "alice@example.com", "correct-horse-raft")

	login, err := engine.Authenticate(context.Background(), "alice@example.com", "correct-horse-raft")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	refreshed, err := engine.Refresh(context.Background(), login.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if refreshed.AccessToken == "" || refreshed.AccessToken == login.AccessToken {
		t.Fatal("expected a fresh access token")
	}
	if refreshed.SessionID != login.SessionID {
		t.Fatal("refresh must keep the session")
	}

	// The old access token is revoked; the new one verifies.
	if _, err := engine.Verify(context.Background(), login.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected old access token revoked, got %v", err)
	}
	if _, err := engine.Verify(context.Background(), refreshed.AccessToken); err != nil {
		t.Fatalf("new access token failed verification: %v", err)
	}

	// The same refresh token keeps working; it is not rotated.
	if _, err := engine.Refresh(context.Background(), login.RefreshToken); err != nil {
		t.Fatalf("second Refresh failed: %v", err)
	}
}

func TestRefreshRejectsWrongInputs(t *testing.T) {
	engine, store, _ := newTestEngine(t, nil)
	seedPrincipal(t, engine, store, "alice@example.com", "correct-horse-raft")

	login, err := engine.Authenticate(context.Background(), "alice@example.com", "correct-horse-raft")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	// An access token is not a refresh token.
	if _, err := engine.Refresh(context.Background(), login.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}

	// Garbage is rejected.
	if _, err := engine.Refresh(context.Background(), "not-a-token"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for garbage, got %v", err)
	}

	// A deleted session fails closed.
	if err := engine.RevokeSession(context.Background(), login.PrincipalID, login.SessionID); err != nil {
		t.Fatalf("RevokeSession failed: %v", err)
	}
	_, err = engine.Refresh(context.Background(), login.RefreshToken)
	if !errors.Is(err, ErrSessionNotFound) && !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrSessionNotFound or ErrTokenRevoked, got %v", err)
	}
}

func TestRefreshRejectsInactiveAccount(t *testing.T) {
	engine, store, _ := newTestEngine(t, nil)
	p := seedPrincipal(t, engine, store, "alice@example.com", "correct-horse-raft")

	login, err := engine.Authenticate(context.Background(), "alice@example.com", "correct-horse-raft")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	p.Status = StatusInactive
	store.Put(p)

	if _, err := engine.Refresh(context.Background(), login.RefreshToken); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}

	// Disabling the account destroyed the session for good.
	if _, err := engine.ListSessions(context.Background(), p.ID); err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	sessions, _ := engine.ListSessions(context.Background(), p.ID)
	if len(sessions) != 0 {
		t.Fatalf("expected no surviving sessions, got %d", len(sessions))
	}
}

func TestLogoutAlwaysSucceeds(t *testing.T) {
	engine, store, _ := newTestEngine(t, nil)
	seedPrincipal(t, engine, store, "alice@example.com", "correct-horse-raft")

	login, err := engine.Authenticate(context.Background(), "alice@example.com", "correct-horse-raft")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	engine.Logout(context.Background(), login.AccessToken, login.RefreshToken)

	if _, err := engine.Verify(context.Background(), login.AccessToken); err == nil {
		t.Fatal("expected access token rejected after logout")
	}
	if _, err := engine.Refresh(context.Background(), login.RefreshToken); err == nil {
		t.Fatal("expected refresh token rejected after logout")
	}

	// Logging out again, or with garbage, never panics or fails.
	engine.Logout(context.Background(), login.AccessToken, login.RefreshToken)
	engine.Logout(context.Background(), "", "")
	engine.Logout(context.Background(), "garbage", "garbage")
}

func TestLogoutAllDestroysEverySession(t *testing.T) {
	engine, store, _ := newTestEngine(t, nil)
	p := seedPrincipal(t, engine, store, "alice@example.com", "correct-horse-raft")

	logins := make([]*AuthResult, 0, 3)
	for i := 0; i < 3; i++ {
		login, err := engine.Authenticate(context.Background(), "alice@example.com", "correct-horse-raft")
		if err != nil {
			t.Fatalf("Authenticate %d failed: %v", i, err)
		}
		logins = append(logins, login)
	}

	sessions, err := engine.ListSessions(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(sessions))
	}

	count, err := engine.LogoutAll(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("LogoutAll failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected count 3, got %d", count)
	}

	for i, login := range logins {
		if _, err := engine.Refresh(context.Background(), login.RefreshToken); err == nil {
			t.Fatalf("session %d: expected refresh to fail after LogoutAll", i)
		}
	}
}

func TestRevokeSessionOwnership(t *testing.T) {
	engine, store, _ := newTestEngine(t, nil)
	seedPrincipal(t, engine, store, "alice@example.com", "correct-horse-raft")
	seedPrincipal(t, engine, store, "bob@example.com", "another-horse-raft")

	login, err := engine.Authenticate(context.Background(), "alice@example.com", "correct-horse-raft")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	if err := engine.RevokeSession(context.Background(), "pid-bob@example.com", login.SessionID); !errors.Is(err, ErrPrincipalMismatch) {
		t.Fatalf("expected ErrPrincipalMismatch, got %v", err)
	}
	if err := engine.RevokeSession(context.Background(), login.PrincipalID, "no-such-session"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := engine.RevokeSession(context.Background(), login.PrincipalID, login.SessionID); err != nil {
		t.Fatalf("RevokeSession failed: %v", err)
	}
}

func TestDegradedModeKeepsWorking(t *testing.T) {
	engine, store, mr := newTestEngine(t, nil)
	seedPrincipal(t, engine, store, "alice@example.com", "correct-horse-raft")

	if engine.Degraded() {
		t.Fatal("expected healthy engine before outage")
	}

	mr.Close()

	login, err := engine.Authenticate(context.Background(), "alice@example.com", "correct-horse-raft")
	if err != nil {
		t.Fatalf("expected login to survive a cache outage, got %v", err)
	}
	if !engine.Degraded() {
		t.Fatal("expected degraded flag after outage")
	}

	// Sessions and revocations keep working on the local tier.
	if _, err := engine.Verify(context.Background(), login.AccessToken); err != nil {
		t.Fatalf("Verify failed in degraded mode: %v", err)
	}
	engine.Logout(context.Background(), login.AccessToken, login.RefreshToken)
	if _, err := engine.Verify(context.Background(), login.AccessToken); err == nil {
		t.Fatal("expected revocation to hold in degraded mode")
	}
}
