package session

import (
	"context"
	"sync"
	"time"
)

// LocalBackend is the in-process fallback used when no shared cache is
// configured or the configured one is unreachable. State is not shared
// across instances; expiry is enforced on read plus an occasional sweep.
type LocalBackend struct {
	mu      sync.RWMutex
	entries map[string]localEntry
	byOwner map[string]map[string]struct{}

	lastSweep time.Time
	now       func() time.Time
}

type localEntry struct {
	session   Session
	expiresAt time.Time
}

const sweepInterval = time.Minute

func NewLocalBackend() *LocalBackend {
	return &LocalBackend{
		entries: make(map[string]localEntry),
		byOwner: make(map[string]map[string]struct{}),
		now:     time.Now,
	}
}

func (l *LocalBackend) Save(_ context.Context, s *Session, ttl time.Duration) error {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweepLocked(now)
	l.entries[s.ID] = localEntry{session: *s, expiresAt: now.Add(ttl)}
	owned := l.byOwner[s.PrincipalID]
	if owned == nil {
		owned = make(map[string]struct{})
		l.byOwner[s.PrincipalID] = owned
	}
	owned[s.ID] = struct{}{}
	return nil
}

func (l *LocalBackend) Get(_ context.Context, id string) (*Session, error) {
	now := l.now()

	l.mu.RLock()
	e, ok := l.entries[id]
	l.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if !e.expiresAt.After(now) {
		l.mu.Lock()
		l.removeLocked(id)
		l.mu.Unlock()
		return nil, ErrNotFound
	}

	s := e.session
	return &s, nil
}

func (l *LocalBackend) Delete(_ context.Context, id string) error {
	l.mu.Lock()
	l.removeLocked(id)
	l.mu.Unlock()
	return nil
}

func (l *LocalBackend) ListForPrincipal(_ context.Context, principalID string) ([]*Session, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	var sessions []*Session
	for id := range l.byOwner[principalID] {
		e, ok := l.entries[id]
		if !ok || !e.expiresAt.After(now) {
			l.removeLocked(id)
			continue
		}
		s := e.session
		sessions = append(sessions, &s)
	}
	return sessions, nil
}

func (l *LocalBackend) Touch(_ context.Context, id string, at time.Time) error {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[id]
	if !ok || !e.expiresAt.After(now) {
		l.removeLocked(id)
		return ErrNotFound
	}

	e.session.LastActivityAt = at
	l.entries[id] = e
	return nil
}

func (l *LocalBackend) Ping(context.Context) error {
	return nil
}

// Len reports the number of live entries. Intended for tests and the
// security report.
func (l *LocalBackend) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func (l *LocalBackend) removeLocked(id string) {
	e, ok := l.entries[id]
	if !ok {
		return
	}
	delete(l.entries, id)
	if owned := l.byOwner[e.session.PrincipalID]; owned != nil {
		delete(owned, id)
		if len(owned) == 0 {
			delete(l.byOwner, e.session.PrincipalID)
		}
	}
}

func (l *LocalBackend) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < sweepInterval {
		return
	}
	l.lastSweep = now
	for id, e := range l.entries {
		if !e.expiresAt.After(now) {
			l.removeLocked(id)
		}
	}
}
