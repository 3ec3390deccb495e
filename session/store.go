package session

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

// Store front-ends the configured backends. When a distributed backend
// is present it is always tried first; on ErrUnavailable the operation
// falls over to the local backend, the degradation is logged at warning
// level, and the degraded flag is latched. Degraded mode is a recorded
// decision, never a silent code path.
type Store struct {
	distributed Backend
	local       *LocalBackend
	log         *slog.Logger
	inactivity  time.Duration

	degraded atomic.Bool
	onDegrade func()
	now       func() time.Time
}

// NewStore builds a Store. distributed may be nil, in which case the
// store runs local-only from the start (and reports degraded, since
// cross-instance consistency is unavailable by construction).
func NewStore(distributed Backend, local *LocalBackend, inactivity time.Duration, log *slog.Logger) *Store {
	if local == nil {
		local = NewLocalBackend()
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Store{
		distributed: distributed,
		local:       local,
		log:         log,
		inactivity:  inactivity,
		now:         time.Now,
	}
	if distributed == nil {
		s.degraded.Store(true)
	}
	return s
}

// SetOnDegrade registers a hook invoked once per degradation latch.
func (s *Store) SetOnDegrade(fn func()) {
	s.onDegrade = fn
}

// Degraded reports whether the store has fallen back to local-only
// operation at any point.
func (s *Store) Degraded() bool {
	return s.degraded.Load()
}

func (s *Store) markDegraded(op string, err error) {
	if !s.degraded.Swap(true) && s.onDegrade != nil {
		s.onDegrade()
	}
	s.log.Warn("session cache unavailable, using local fallback",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
}

func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	if s.distributed != nil {
		err := s.distributed.Save(ctx, sess, ttl)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrUnavailable) {
			return err
		}
		s.markDegraded("save", err)
	}
	return s.local.Save(ctx, sess, ttl)
}

// Get applies the inactivity-timeout staleness rule on top of the
// backend read: an idle session is reported as not found and removed
// best-effort.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if sess.Expired(now) || sess.Stale(now, s.inactivity) {
		_ = s.Delete(ctx, id)
		return nil, ErrNotFound
	}
	return sess, nil
}

func (s *Store) get(ctx context.Context, id string) (*Session, error) {
	if s.distributed != nil {
		sess, err := s.distributed.Get(ctx, id)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		s.markDegraded("get", err)
	}
	return s.local.Get(ctx, id)
}

// Delete removes the record from every reachable backend. A missing
// record is success; an unreachable distributed backend is logged as a
// partial invalidation, because the local deletion still guarantees this
// instance stops honoring the session.
func (s *Store) Delete(ctx context.Context, id string) error {
	if s.distributed != nil {
		if err := s.distributed.Delete(ctx, id); err != nil && errors.Is(err, ErrUnavailable) {
			s.markDegraded("delete", err)
			s.log.Warn("session invalidation partial, cache unreachable",
				slog.String("session_id", id),
			)
		}
	}
	return s.local.Delete(ctx, id)
}

// ListForPrincipal enumerates sessions. In degraded mode the listing
// covers only this instance and says so in the log.
func (s *Store) ListForPrincipal(ctx context.Context, principalID string) ([]*Session, error) {
	if s.distributed != nil {
		sessions, err := s.distributed.ListForPrincipal(ctx, principalID)
		if err == nil {
			return s.filterLive(ctx, sessions), nil
		}
		if !errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		s.markDegraded("list", err)
		s.log.Warn("session enumeration partial, local view only",
			slog.String("principal_id", principalID),
		)
	}

	sessions, err := s.local.ListForPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	return s.filterLive(ctx, sessions), nil
}

func (s *Store) Touch(ctx context.Context, id string, at time.Time) error {
	if s.distributed != nil {
		err := s.distributed.Touch(ctx, id, at)
		if err == nil || !errors.Is(err, ErrUnavailable) {
			return err
		}
		s.markDegraded("touch", err)
	}
	return s.local.Touch(ctx, id, at)
}

func (s *Store) filterLive(ctx context.Context, sessions []*Session) []*Session {
	now := s.now()
	live := sessions[:0]
	for _, sess := range sessions {
		if sess.Expired(now) || sess.Stale(now, s.inactivity) {
			_ = s.Delete(ctx, sess.ID)
			continue
		}
		live = append(live, sess)
	}
	return live
}
