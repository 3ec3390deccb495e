package authcore

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const blacklistKeyPrefix = "rvk"

// Blacklist is the token revocation list. Entries are keyed by token
// identifier and carry a TTL equal to the token's remaining lifetime, so
// the list is self-pruning and cannot grow unbounded.
//
// The shared cache is the primary tier. When it is unreachable,
// revocations land in an in-process set that is not shared across
// instances; that consistency gap is logged, and the local set is always
// consulted so revocations written during an outage keep working on this
// instance.
type Blacklist struct {
	redis  *redis.Client
	prefix string
	log    *slog.Logger

	mu        sync.Mutex
	local     map[string]time.Time
	lastSweep time.Time

	degraded  atomic.Bool
	onDegrade func()
	now       func() time.Time
}

const blacklistSweepInterval = time.Minute

// NewBlacklist builds a Blacklist. client may be nil for in-memory-only
// mode.
func NewBlacklist(client *redis.Client, prefix string, log *slog.Logger) *Blacklist {
	if log == nil {
		log = slog.Default()
	}
	b := &Blacklist{
		redis:  client,
		prefix: prefix,
		log:    log,
		local:  make(map[string]time.Time),
		now:    time.Now,
	}
	if client == nil {
		b.degraded.Store(true)
	}
	return b
}

// SetOnDegrade registers a hook invoked once per degradation latch.
func (b *Blacklist) SetOnDegrade(fn func()) {
	b.onDegrade = fn
}

// Degraded reports whether any revocation has fallen back to the local
// set.
func (b *Blacklist) Degraded() bool {
	return b.degraded.Load()
}

func (b *Blacklist) key(tokenID string) string {
	return b.prefix + ":" + blacklistKeyPrefix + ":" + tokenID
}

func (b *Blacklist) markDegraded(op string, err error) {
	if !b.degraded.Swap(true) && b.onDegrade != nil {
		b.onDegrade()
	}
	b.log.Warn("revocation list cache unavailable, using local set",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
}

// Revoke inserts the identifier with a TTL equal to the token's
// remaining lifetime. Already-expired tokens are a no-op.
func (b *Blacklist) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if tokenID == "" {
		return nil
	}
	ttl := expiresAt.Sub(b.now())
	if ttl <= 0 {
		return nil
	}

	if b.redis != nil {
		err := b.redis.Set(ctx, b.key(tokenID), 1, ttl).Err()
		if err == nil {
			return nil
		}
		b.markDegraded("revoke", err)
	}

	b.mu.Lock()
	b.sweepLocked()
	b.local[tokenID] = expiresAt
	b.mu.Unlock()
	return nil
}

// IsRevoked reports whether the identifier is on the list. The local set
// is consulted first so revocations written during an outage keep
// working; a cache failure then degrades to that local answer instead of
// denying every token. The error return is reserved for a total check
// failure, which callers must treat as revoked (fail closed).
func (b *Blacklist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}

	if b.localRevoked(tokenID) {
		return true, nil
	}

	if b.redis != nil {
		n, err := b.redis.Exists(ctx, b.key(tokenID)).Result()
		if err == nil {
			return n > 0, nil
		}
		b.markDegraded("check", err)
	}

	return false, nil
}

func (b *Blacklist) localRevoked(tokenID string) bool {
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.sweepLocked()
	expiresAt, ok := b.local[tokenID]
	if !ok {
		return false
	}
	if !expiresAt.After(now) {
		delete(b.local, tokenID)
		return false
	}
	return true
}

func (b *Blacklist) sweepLocked() {
	now := b.now()
	if now.Sub(b.lastSweep) < blacklistSweepInterval {
		return
	}
	b.lastSweep = now
	for id, expiresAt := range b.local {
		if !expiresAt.After(now) {
			delete(b.local, id)
		}
	}
}
