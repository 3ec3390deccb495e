package authcore

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// setEngineClock pins the engine and the lockout tracker to a movable
// clock.
func setEngineClock(engine *Engine, at *time.Time) {
	now := func() time.Time { return *at }
	engine.now = now
	engine.lockout.SetClock(now)
	engine.challenges.now = now
}

func TestLockoutAfterThreshold(t *testing.T) {
	engine, store, _ := newTestEngine(t, nil)
	p := seedPrincipal(t, engine, store, "alice@example.com", "correct-horse-raft")

	at := time.Now()
	setEngineClock(engine, &at)

	for i := 0; i < 4; i++ {
		if _, err := engine.Authenticate(context.Background(), "alice@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	// Fifth failure trips the lock.
	_, err := engine.Authenticate(context.Background(), "alice@example.com", "wrong-password")
	var locked *LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected LockedError on fifth failure, got %v", err)
	}
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatal("LockedError must match ErrAccountLocked")
	}
	if remaining := locked.Remaining(); remaining <= 29*time.Minute || remaining > 30*time.Minute {
		t.Fatalf("unexpected lock remaining %v", remaining)
	}

	// The lock is written through to the durable store.
	stored := store.Get(p.ID)
	if stored.Status != StatusLocked || stored.LockedReason != LockReasonFailedAttempts {
		t.Fatalf("expected durable lock, got status=%v reason=%q", stored.Status, stored.LockedReason)
	}

	// The correct password is rejected while locked.
	if _, err := engine.Authenticate(context.Background(), "alice@example.com", "correct-horse-raft"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked with correct password, got %v", err)
	}
}

func TestLockoutExpiresAndClears(t *testing.T) {
	engine, store, _ := newTestEngine(t, nil)
	p := seedPrincipal(t, engine, store, "alice@example.com", "correct-horse-raft")

	at := time.Now()
	setEngineClock(engine, &at)

	for i := 0; i < 5; i++ {
		_, _ = engine.Authenticate(context.Background(), "alice@example.com", "wrong-password")
	}
	if _, err := engine.Authenticate(context.Background(), "alice@example.com", "correct-horse-raft"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected lock, got %v", err)
	}

	// Past the lock duration the account opens up again.
	at = at.Add(31 * time.Minute)
	result, err := engine.Authenticate(context.Background(), "alice@example.com", "correct-horse-raft")
	if err != nil {
		t.Fatalf("expected login after lock expiry, got %v", err)
	}
	if result.AccessToken == "" {
		t.Fatal("expected tokens after lock expiry")
	}

	// The durable record is restored to active.
	stored := store.Get(p.ID)
	if stored.Status != StatusActive {
		t.Fatalf("expected active status after expiry, got %v", stored.Status)
	}
}

func TestLockoutWindowSlides(t *testing.T) {
	engine, store, _ := newTestEngine(t, nil)
	seedPrincipal(t, engine, store, "alice@example.com", "correct-horse-raft")

	at := time.Now()
	setEngineClock(engine, &at)

	for i := 0; i < 4; i++ {
		_, _ = engine.Authenticate(context.Background(), "alice@example.com", "wrong-password")
	}

	// Outside the 15 minute window the old failures no longer count.
	at = at.Add(16 * time.Minute)
	if _, err := engine.Authenticate(context.Background(), "alice@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected plain failure after window slide, got %v", err)
	}
	if _, err := engine.Authenticate(context.Background(), "alice@example.com", "correct-horse-raft"); err != nil {
		t.Fatalf("expected login to succeed, got %v", err)
	}
}

func TestLockoutSuccessResetsCounter(t *testing.T) {
	engine, store, _ := newTestEngine(t, nil)
	seedPrincipal(t, engine, store, "alice@example.com", "correct-horse-raft")

	for i := 0; i < 4; i++ {
		_, _ = engine.Authenticate(context.Background(), "alice@example.com", "wrong-password")
	}
	if _, err := engine.Authenticate(context.Background(), "alice@example.com", "correct-horse-raft"); err != nil {
		t.Fatalf("expected login below threshold, got %v", err)
	}

	// Counter is reset; four more failures do not lock.
	for i := 0; i < 4; i++ {
		if _, err := engine.Authenticate(context.Background(), "alice@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d after reset: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}
}

func TestAdminLockNeverSelfClears(t *testing.T) {
	engine, store, _ := newTestEngine(t, nil)
	p := seedPrincipal(t, engine, store, "alice@example.com", "correct-horse-raft")
	p.Status = StatusLocked
	p.LockedReason = "compliance_hold"
	store.Put(p)

	at := time.Now()
	setEngineClock(engine, &at)

	if _, err := engine.Authenticate(context.Background(), "alice@example.com", "correct-horse-raft"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}

	// Time passing does not release an administrative lock.
	at = at.Add(24 * time.Hour)
	if _, err := engine.Authenticate(context.Background(), "alice@example.com", "correct-horse-raft"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected administrative lock to persist, got %v", err)
	}
}

// recordingLogHandler captures log messages for assertion.
type recordingLogHandler struct {
	mu       sync.Mutex
	messages []string
}

func (h *recordingLogHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *recordingLogHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, r.Message)
	return nil
}
func (h *recordingLogHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingLogHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingLogHandler) contains(substr string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, msg := range h.messages {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

func TestLockoutClearFailureLoggedNotFatal(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	handler := &recordingLogHandler{}
	store := newMockStore()
	engine, err := New().
		WithConfig(testConfig(t)).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithLogger(slog.New(handler)).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	seedPrincipal(t, engine, store, "alice@example.com", "correct-horse-raft")

	// The lock check reads the store once; the post-login counter clear
	// reads it again and hits the outage.
	store.failFindByIDAfter = 1

	result, err := engine.Authenticate(context.Background(), "alice@example.com", "correct-horse-raft")
	if err != nil {
		t.Fatalf("expected login to survive a failed lockout clear, got %v", err)
	}
	if result.AccessToken == "" {
		t.Fatal("expected tokens despite the failed clear")
	}

	if !handler.contains("lockout clear failed") {
		t.Fatal("expected a warning for the failed lockout clear")
	}
}

func TestLockCheckUnavailableFailsClosed(t *testing.T) {
	engine, store, _ := newTestEngine(t, nil)
	seedPrincipal(t, engine, store, "alice@example.com", "correct-horse-raft")

	store.failFindByID = true

	_, err := engine.Authenticate(context.Background(), "alice@example.com", "correct-horse-raft")
	if !errors.Is(err, ErrLockCheckUnavailable) {
		t.Fatalf("expected ErrLockCheckUnavailable, got %v", err)
	}
}
