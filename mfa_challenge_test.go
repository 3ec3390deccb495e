package authcore

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestChallengeStore(t *testing.T, maxTries int) *challengeStore {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return newChallengeStore(rdb, "ac", 5*time.Minute, maxTries, slog.Default())
}

func TestChallengeStoreAttemptBudget(t *testing.T) {
	s := newTestChallengeStore(t, 3)

	id, err := s.Create(context.Background(), "p1", "", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := s.RecordFailure(context.Background(), id); err != nil {
			t.Fatalf("failure %d: expected attempt absorbed, got %v", i+1, err)
		}
	}
	if err := s.RecordFailure(context.Background(), id); !errors.Is(err, ErrMFAChallengeAttempts) {
		t.Fatalf("expected ErrMFAChallengeAttempts, got %v", err)
	}

	// The exhausted challenge is consumed.
	if _, err := s.Get(context.Background(), id); !errors.Is(err, ErrMFAChallengeInvalid) {
		t.Fatalf("expected consumed challenge, got %v", err)
	}
}

func TestChallengeStoreConcurrentFailures(t *testing.T) {
	s := newTestChallengeStore(t, 3)

	id, err := s.Create(context.Background(), "p1", "", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	const attempts = 10
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.RecordFailure(context.Background(), id)
		}()
	}
	wg.Wait()
	close(results)

	absorbed, exceeded, gone := 0, 0, 0
	for err := range results {
		switch {
		case err == nil:
			absorbed++
		case errors.Is(err, ErrMFAChallengeAttempts):
			exceeded++
		case errors.Is(err, ErrMFAChallengeInvalid):
			gone++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// Every counted attempt is a committed write: two below the limit,
	// one that trips it, and the rest arrive after consumption.
	if absorbed != 2 || exceeded != 1 || gone != attempts-3 {
		t.Fatalf("attempt accounting skewed: absorbed=%d exceeded=%d gone=%d", absorbed, exceeded, gone)
	}

	if _, err := s.Get(context.Background(), id); !errors.Is(err, ErrMFAChallengeInvalid) {
		t.Fatalf("expected consumed challenge, got %v", err)
	}
}

func TestChallengeStoreRecordFailureExpired(t *testing.T) {
	s := newTestChallengeStore(t, 3)

	at := time.Now()
	s.now = func() time.Time { return at }

	id, err := s.Create(context.Background(), "p1", "", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	at = at.Add(6 * time.Minute)
	if err := s.RecordFailure(context.Background(), id); !errors.Is(err, ErrMFAChallengeExpired) {
		t.Fatalf("expected ErrMFAChallengeExpired, got %v", err)
	}
}

func TestChallengeStoreLocalFallbackBudget(t *testing.T) {
	s := newChallengeStore(nil, "ac", time.Minute, 3, slog.Default())

	id, err := s.Create(context.Background(), "p1", "", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := s.RecordFailure(context.Background(), id); err != nil {
			t.Fatalf("failure %d: expected attempt absorbed, got %v", i+1, err)
		}
	}
	if err := s.RecordFailure(context.Background(), id); !errors.Is(err, ErrMFAChallengeAttempts) {
		t.Fatalf("expected ErrMFAChallengeAttempts, got %v", err)
	}
	if _, err := s.Get(context.Background(), id); !errors.Is(err, ErrMFAChallengeInvalid) {
		t.Fatalf("expected consumed challenge, got %v", err)
	}
}
