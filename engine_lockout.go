package authcore

import (
	"context"
	"time"

	"github.com/complyward/authcore/internal/lockout"
)

// durableLockStore adapts a CredentialStore into the lockout tracker's
// durable tier, so locks survive process restarts and are visible to
// every instance.
type durableLockStore struct {
	credentials CredentialStore
}

func (s *durableLockStore) LoadLock(ctx context.Context, principalID string) (lockout.State, error) {
	p, err := s.credentials.FindByID(ctx, principalID)
	if err != nil {
		return lockout.State{}, err
	}
	if p == nil || p.Status != StatusLocked {
		return lockout.State{}, nil
	}
	return lockout.State{
		Locked: true,
		Reason: p.LockedReason,
		Until:  p.LockedUntil,
	}, nil
}

func (s *durableLockStore) StoreLock(ctx context.Context, principalID string, state lockout.State) error {
	status := StatusActive
	reason := ""
	var until time.Time
	if state.Locked {
		status = StatusLocked
		reason = state.Reason
		until = state.Until
	}
	return s.credentials.UpdateSecurityFields(ctx, principalID, SecurityFields{
		Status:       &status,
		LockedReason: &reason,
		LockedUntil:  &until,
	})
}
