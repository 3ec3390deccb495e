package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores JSON-encoded session records in a shared cache,
// with a per-principal index set for enumeration. Record TTL equals the
// refresh-token lifetime supplied by the caller.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix}
}

func (r *RedisBackend) key(id string) string {
	return r.prefix + ":s:" + id
}

func (r *RedisBackend) indexKey(principalID string) string {
	return r.prefix + ":p:" + principalID
}

func (r *RedisBackend) Save(ctx context.Context, s *Session, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("session: ttl must be positive")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(s.ID), data, ttl)
		pipe.SAdd(ctx, r.indexKey(s.PrincipalID), s.ID)
		// The index outlives its longest member; stale ids are pruned on
		// enumeration.
		pipe.Expire(ctx, r.indexKey(s.PrincipalID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *RedisBackend) Get(ctx context.Context, id string) (*Session, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		// An undecodable record is unusable; drop it.
		_ = r.client.Del(ctx, r.key(id)).Err()
		return nil, ErrNotFound
	}
	return &s, nil
}

func (r *RedisBackend) Delete(ctx context.Context, id string) error {
	s, err := r.Get(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			return nil
		}
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key(id))
		pipe.SRem(ctx, r.indexKey(s.PrincipalID), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *RedisBackend) ListForPrincipal(ctx context.Context, principalID string) ([]*Session, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey(principalID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var sessions []*Session
	for _, id := range ids {
		s, err := r.Get(ctx, id)
		if err == ErrNotFound {
			// Expired member left behind in the index.
			_ = r.client.SRem(ctx, r.indexKey(principalID), id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// Touch rewrites the record with KEEPTTL so activity updates never
// extend the cache entry's life.
func (r *RedisBackend) Touch(ctx context.Context, id string, at time.Time) error {
	s, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	s.LastActivityAt = at
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}
	if err := r.client.Set(ctx, r.key(id), data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *RedisBackend) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
