package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a session record is missing or its
	// cache entry has expired.
	ErrNotFound = errors.New("session: not found")
	// ErrUnavailable wraps backend infrastructure failures. The Store
	// treats it as the signal to fail over to the local backend.
	ErrUnavailable = errors.New("session: backend unavailable")
)

// Backend is the capability interface over session storage. Two
// implementations exist: RedisBackend (distributed) and LocalBackend
// (in-process). Callers depend on this interface only; backend selection
// and failover are the Store's concern.
type Backend interface {
	// Save writes the record with the given TTL, replacing any previous
	// version.
	Save(ctx context.Context, s *Session, ttl time.Duration) error
	// Get returns the record or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)
	// Delete removes the record. Deleting a missing record is not an
	// error.
	Delete(ctx context.Context, id string) error
	// ListForPrincipal returns every live session owned by the
	// principal.
	ListForPrincipal(ctx context.Context, principalID string) ([]*Session, error)
	// Touch updates last-activity without changing the record's
	// remaining TTL.
	Touch(ctx context.Context, id string, at time.Time) error
	// Ping reports backend health.
	Ping(ctx context.Context) error
}
