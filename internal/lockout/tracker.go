package lockout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrUnavailable wraps durable-store failures. Callers decide the
// fail-open/fail-closed policy; the tracker only reports.
var ErrUnavailable = errors.New("lockout: durable store unavailable")

// ReasonFailedAttempts is the only lock reason this tracker writes, and
// the only one it clears automatically on success.
const ReasonFailedAttempts = "failed_attempts"

// State is the durable lock record mirrored by the in-memory tier.
type State struct {
	Locked bool
	Reason string
	Until  time.Time
}

// DurableStore is the authoritative tier. The in-memory tier is a cache
// over it: reconciled lazily on read, written through on mutation.
type DurableStore interface {
	LoadLock(ctx context.Context, id string) (State, error)
	StoreLock(ctx context.Context, id string, state State) error
}

// Config holds the sliding-window parameters.
type Config struct {
	Window    time.Duration
	Threshold int
	Duration  time.Duration
}

type entry struct {
	attempts  []time.Time
	lockUntil time.Time
}

// Tracker counts failed attempts per identifier over a sliding window
// and enforces temporary lockouts across the in-memory and durable
// tiers.
type Tracker struct {
	cfg     Config
	durable DurableStore
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

func New(cfg Config, durable DurableStore) *Tracker {
	return &Tracker{
		cfg:     cfg,
		durable: durable,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// SetClock overrides the time source. Intended for tests.
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// RecordFailure registers one failed attempt. When the attempt count
// within the window reaches the threshold it locks the identifier and
// writes the lock through to the durable store. The lock stands in
// memory even if the durable write fails; the write error is returned so
// the caller can log the reduced cross-process visibility.
func (t *Tracker) RecordFailure(ctx context.Context, id string) (bool, time.Time, error) {
	now := t.now()

	t.mu.Lock()
	e := t.entries[id]
	if e == nil {
		e = &entry{}
		t.entries[id] = e
	}
	e.attempts = pruneBefore(e.attempts, now.Add(-t.cfg.Window))
	e.attempts = append(e.attempts, now)
	count := len(e.attempts)

	var until time.Time
	locked := count >= t.cfg.Threshold
	if locked {
		until = now.Add(t.cfg.Duration)
		e.lockUntil = until
		e.attempts = nil
	}
	t.mu.Unlock()

	if !locked {
		return false, time.Time{}, nil
	}

	err := t.durable.StoreLock(ctx, id, State{
		Locked: true,
		Reason: ReasonFailedAttempts,
		Until:  until,
	})
	if err != nil {
		return true, until, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return true, until, nil
}

// RecordSuccess clears the in-memory counter and, when the durable lock
// was set for failed attempts, resets the account to active. Locks with
// any other reason are left alone.
func (t *Tracker) RecordSuccess(ctx context.Context, id string) error {
	t.mu.Lock()
	delete(t.entries, id)
	t.mu.Unlock()

	state, err := t.durable.LoadLock(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !state.Locked || state.Reason != ReasonFailedAttempts {
		return nil
	}

	if err := t.durable.StoreLock(ctx, id, State{}); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// IsLocked answers the lock check, preferring the in-memory entry and
// falling back to the durable store. An expired durable lock is actively
// cleared (lazy expiry) rather than waiting for a sweeper. When both
// tiers fail the error is returned and no answer is given.
func (t *Tracker) IsLocked(ctx context.Context, id string) (bool, time.Time, error) {
	now := t.now()

	t.mu.Lock()
	if e := t.entries[id]; e != nil && !e.lockUntil.IsZero() {
		if e.lockUntil.After(now) {
			until := e.lockUntil
			t.mu.Unlock()
			return true, until, nil
		}
		e.lockUntil = time.Time{}
	}
	t.mu.Unlock()

	state, err := t.durable.LoadLock(ctx, id)
	if err != nil {
		return false, time.Time{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !state.Locked {
		return false, time.Time{}, nil
	}

	// A lock without an expiry (administrative) never self-clears.
	if state.Until.IsZero() {
		return true, time.Time{}, nil
	}
	if state.Until.After(now) {
		t.mu.Lock()
		e := t.entries[id]
		if e == nil {
			e = &entry{}
			t.entries[id] = e
		}
		e.lockUntil = state.Until
		t.mu.Unlock()
		return true, state.Until, nil
	}

	if state.Reason == ReasonFailedAttempts {
		if err := t.durable.StoreLock(ctx, id, State{}); err != nil {
			return false, time.Time{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return false, time.Time{}, nil
}

// Remaining returns the wait time until the lock expires, rounded up to
// whole seconds. Zero means not locked; a negative value is never
// returned.
func (t *Tracker) Remaining(ctx context.Context, id string) (time.Duration, error) {
	locked, until, err := t.IsLocked(ctx, id)
	if err != nil || !locked || until.IsZero() {
		return 0, err
	}

	d := until.Sub(t.now())
	if d <= 0 {
		return 0, nil
	}
	if rem := d % time.Second; rem > 0 {
		d += time.Second - rem
	}
	return d, nil
}

// FailureCount reports the attempts currently inside the window.
func (t *Tracker) FailureCount(id string) int {
	cutoff := t.now().Add(-t.cfg.Window)

	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entries[id]
	if e == nil {
		return 0
	}
	e.attempts = pruneBefore(e.attempts, cutoff)
	return len(e.attempts)
}

func pruneBefore(attempts []time.Time, cutoff time.Time) []time.Time {
	keep := attempts[:0]
	for _, at := range attempts {
		if at.After(cutoff) {
			keep = append(keep, at)
		}
	}
	return keep
}
