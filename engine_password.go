package authcore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/complyward/authcore/password"
)

// ChangePassword rotates the principal's password. The current password
// must verify, the candidate must clear policy and must not match any of
// the retained previous hashes, and every live session is destroyed so
// stolen tokens die with the old credential.
func (e *Engine) ChangePassword(ctx context.Context, principalID, current, candidate string) error {
	p, err := e.credentials.FindByID(ctx, principalID)
	if err != nil {
		return err
	}
	if p == nil {
		return ErrInvalidCredentials
	}

	ok, err := e.hasher.Verify(current, p.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify credential: %w", err)
	}
	if !ok {
		e.metricInc(MetricPasswordRejected)
		e.emitAudit(ctx, EventPasswordRejected, false, p.ID, "", ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	personal := []string{p.Identifier, p.Username, p.FirstName, p.LastName, p.Email}
	if issues := e.policy.Validate(candidate, personal); len(issues) > 0 {
		e.metricInc(MetricPasswordRejected)
		e.emitAudit(ctx, EventPasswordRejected, false, p.ID, "", ErrPasswordPolicy,
			map[string]string{"issues": strings.Join(issues, "; ")})
		return fmt.Errorf("%w: %s", ErrPasswordPolicy, strings.Join(issues, "; "))
	}

	// The current hash counts against reuse alongside the retained
	// history.
	history := make([]string, 0, len(p.PasswordHistory)+1)
	history = append(history, p.PasswordHash)
	history = append(history, p.PasswordHistory...)

	reused, err := password.CheckHistory(e.hasher, candidate, history, e.config.Password.HistorySize)
	if err != nil {
		return err
	}
	if reused {
		e.metricInc(MetricPasswordRejected)
		e.emitAudit(ctx, EventPasswordRejected, false, p.ID, "", ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	newHash, err := e.hasher.Hash(candidate)
	if err != nil {
		return err
	}

	newHistory := history
	if len(newHistory) > e.config.Password.HistorySize {
		newHistory = newHistory[:e.config.Password.HistorySize]
	}

	now := e.now()
	var expiresAt time.Time
	if e.config.Password.ExpiryPeriod > 0 {
		expiresAt = now.Add(e.config.Password.ExpiryPeriod)
	}
	forceReset := false

	if err := e.credentials.UpdateSecurityFields(ctx, p.ID, SecurityFields{
		PasswordHash:      &newHash,
		PasswordHistory:   newHistory,
		PasswordChangedAt: &now,
		PasswordExpiresAt: &expiresAt,
		ForceReset:        &forceReset,
	}); err != nil {
		return err
	}

	revoked, err := e.LogoutAll(ctx, p.ID)
	if err != nil {
		e.log.Warn("session revocation after password change incomplete",
			"principal_id", p.ID,
			"error", err.Error(),
		)
	}

	e.metricInc(MetricPasswordChanged)
	e.emitAudit(ctx, EventPasswordChanged, true, p.ID, "", nil,
		map[string]string{"sessions_revoked": strconv.Itoa(revoked)})
	return nil
}

// ForcePasswordReset flags the principal so the next Authenticate fails
// with ErrPasswordExpired until the password is changed. Administrative
// operation; no credential proof required.
func (e *Engine) ForcePasswordReset(ctx context.Context, principalID string) error {
	forceReset := true
	return e.credentials.UpdateSecurityFields(ctx, principalID, SecurityFields{
		ForceReset: &forceReset,
	})
}

// IsPasswordExpired reports whether the principal must rotate their
// password before logging in again.
func (e *Engine) IsPasswordExpired(ctx context.Context, principalID string) (bool, error) {
	p, err := e.credentials.FindByID(ctx, principalID)
	if err != nil {
		return false, err
	}
	if p == nil {
		return false, ErrInvalidCredentials
	}
	return e.passwordExpired(p), nil
}
