package authcore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const challengeKeyPrefix = "mfa"

// mfaChallenge is the short-lived record bridging the two steps of an
// MFA login. It never contains the TOTP secret; only the principal
// binding, the deadline, and the failure count.
type mfaChallenge struct {
	PrincipalID string    `json:"pid"`
	IP          string    `json:"ip,omitempty"`
	UserAgent   string    `json:"ua,omitempty"`
	IssuedAt    time.Time `json:"iat"`
	ExpiresAt   time.Time `json:"exp"`
	Attempts    int       `json:"att"`
}

func (c *mfaChallenge) expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// challengeStore persists pending MFA challenges in the shared cache so
// the code-submission step can land on any instance. When the cache is
// unreachable it falls back to an in-process map, same as sessions.
type challengeStore struct {
	redis    *redis.Client
	prefix   string
	log      *slog.Logger
	ttl      time.Duration
	maxTries int

	mu    sync.Mutex
	local map[string]*mfaChallenge

	degraded  atomic.Bool
	onDegrade func()
	now       func() time.Time
}

func newChallengeStore(client *redis.Client, prefix string, ttl time.Duration, maxTries int, log *slog.Logger) *challengeStore {
	if log == nil {
		log = slog.Default()
	}
	s := &challengeStore{
		redis:    client,
		prefix:   prefix,
		log:      log,
		ttl:      ttl,
		maxTries: maxTries,
		local:    make(map[string]*mfaChallenge),
		now:      time.Now,
	}
	if client == nil {
		s.degraded.Store(true)
	}
	return s
}

func (s *challengeStore) key(id string) string {
	return s.prefix + ":" + challengeKeyPrefix + ":" + id
}

func (s *challengeStore) markDegraded(op string, err error) {
	if !s.degraded.Swap(true) && s.onDegrade != nil {
		s.onDegrade()
	}
	s.log.Warn("mfa challenge cache unavailable, using local fallback",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
}

// Create issues a fresh challenge bound to the principal and returns its
// identifier.
func (s *challengeStore) Create(ctx context.Context, principalID, ip, userAgent string) (string, error) {
	now := s.now()
	ch := &mfaChallenge{
		PrincipalID: principalID,
		IP:          ip,
		UserAgent:   userAgent,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.ttl),
	}

	id := uuid.NewString()
	if err := s.save(ctx, id, ch); err != nil {
		return "", err
	}
	return id, nil
}

func (s *challengeStore) save(ctx context.Context, id string, ch *mfaChallenge) error {
	ttl := ch.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return ErrMFAChallengeExpired
	}

	if s.redis != nil {
		data, err := json.Marshal(ch)
		if err != nil {
			return err
		}
		err = s.redis.Set(ctx, s.key(id), data, ttl).Err()
		if err == nil {
			return nil
		}
		s.markDegraded("save", err)
	}

	s.mu.Lock()
	s.local[id] = ch
	s.mu.Unlock()
	return nil
}

// Get returns the challenge if it exists and has not expired. Expired or
// unknown identifiers are indistinguishable to the caller.
func (s *challengeStore) Get(ctx context.Context, id string) (*mfaChallenge, error) {
	if id == "" {
		return nil, ErrMFAChallengeInvalid
	}

	if s.redis != nil {
		data, err := s.redis.Get(ctx, s.key(id)).Bytes()
		switch {
		case err == nil:
			var ch mfaChallenge
			if jsonErr := json.Unmarshal(data, &ch); jsonErr != nil {
				_ = s.redis.Del(ctx, s.key(id)).Err()
				return nil, ErrMFAChallengeInvalid
			}
			if ch.expired(s.now()) {
				_ = s.redis.Del(ctx, s.key(id)).Err()
				return nil, ErrMFAChallengeExpired
			}
			return &ch, nil
		case errors.Is(err, redis.Nil):
			// Fall through to the local map in case the record was
			// written there during an outage.
		default:
			s.markDegraded("get", err)
		}
	}

	s.mu.Lock()
	ch, ok := s.local[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrMFAChallengeInvalid
	}
	if ch.expired(s.now()) {
		s.mu.Lock()
		delete(s.local, id)
		s.mu.Unlock()
		return nil, ErrMFAChallengeExpired
	}
	cp := *ch
	return &cp, nil
}

// Delete consumes the challenge. Missing records are success.
func (s *challengeStore) Delete(ctx context.Context, id string) error {
	if s.redis != nil {
		if err := s.redis.Del(ctx, s.key(id)).Err(); err != nil {
			s.markDegraded("delete", err)
		}
	}
	s.mu.Lock()
	delete(s.local, id)
	s.mu.Unlock()
	return nil
}

// RecordFailure increments the attempt counter. Once the limit is
// reached the challenge is consumed and ErrMFAChallengeAttempts is
// returned; the caller must start a new login.
//
// The shared-cache path runs under WATCH with optimistic retry, so
// concurrent wrong codes against one challenge each consume an attempt
// instead of collapsing into a single write.
func (s *challengeStore) RecordFailure(ctx context.Context, id string) error {
	if id == "" {
		return ErrMFAChallengeInvalid
	}

	if s.redis != nil {
		err := s.recordFailureTx(ctx, id)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrMFAChallengeAttempts),
			errors.Is(err, ErrMFAChallengeExpired),
			errors.Is(err, ErrMFAChallengeInvalid):
			return err
		case errors.Is(err, redis.TxFailedErr):
			return fmt.Errorf("record mfa failure: %w", err)
		case errors.Is(err, redis.Nil):
			// The record may live in the local map from an outage.
		default:
			s.markDegraded("record_failure", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.local[id]
	if !ok {
		return ErrMFAChallengeInvalid
	}
	if ch.expired(s.now()) {
		delete(s.local, id)
		return ErrMFAChallengeExpired
	}
	ch.Attempts++
	if ch.Attempts >= s.maxTries {
		delete(s.local, id)
		return ErrMFAChallengeAttempts
	}
	return nil
}

const recordFailureRetries = 4

func (s *challengeStore) recordFailureTx(ctx context.Context, id string) error {
	key := s.key(id)

	for i := 0; i < recordFailureRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			var ch mfaChallenge
			if jsonErr := json.Unmarshal(data, &ch); jsonErr != nil {
				_, _ = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return ErrMFAChallengeInvalid
			}
			if ch.expired(s.now()) {
				if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				}); err != nil {
					return err
				}
				return ErrMFAChallengeExpired
			}

			ch.Attempts++
			if ch.Attempts >= s.maxTries {
				if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				}); err != nil {
					return err
				}
				return ErrMFAChallengeAttempts
			}

			updated, err := json.Marshal(&ch)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ch.ExpiresAt.Sub(s.now()))
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return redis.TxFailedErr
}
