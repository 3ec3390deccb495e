package authcore

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials covers every credential failure visible to a
	// caller: unknown identifier, wrong password, malformed input. The
	// cause is never distinguished in the returned error.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked matches any lockout failure, including *LockedError.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountInactive is returned for disabled accounts.
	ErrAccountInactive = errors.New("account inactive")
	// ErrAccountPending is returned for accounts awaiting activation.
	ErrAccountPending = errors.New("account pending activation")
	// ErrIPNotAllowed is returned when the principal carries an IP
	// allowlist and the client address does not match any entry.
	ErrIPNotAllowed = errors.New("client address not allowed")

	// ErrTokenInvalid covers malformed tokens, bad signatures, expired
	// tokens, and wrong token kinds.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenRevoked is returned when a structurally valid token has a
	// revoked identifier.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrSessionNotFound is returned when a session record is missing,
	// expired, or stale.
	ErrSessionNotFound = errors.New("session not found")
	// ErrPrincipalMismatch is returned when a token's principal does not
	// match the session it references.
	ErrPrincipalMismatch = errors.New("session principal mismatch")

	// ErrMFARequired signals that authentication succeeded but a second
	// factor is outstanding.
	ErrMFARequired = errors.New("mfa required")
	// ErrMFANotConfigured is returned when an MFA operation needs an
	// enrolled secret and none exists.
	ErrMFANotConfigured = errors.New("mfa not configured")
	// ErrMFAAlreadyEnabled is returned by SetupMFA while MFA is confirmed
	// and active. The live secret is never replaced in place; disable
	// first, then re-enroll.
	ErrMFAAlreadyEnabled = errors.New("mfa already enabled")
	// ErrMFACodeInvalid is returned for a TOTP code that matches no
	// accepted time step.
	ErrMFACodeInvalid = errors.New("invalid mfa code")
	// ErrMFAChallengeInvalid is returned for an unknown or already
	// consumed login challenge.
	ErrMFAChallengeInvalid = errors.New("mfa challenge invalid")
	// ErrMFAChallengeExpired is returned when a login challenge outlived
	// its TTL.
	ErrMFAChallengeExpired = errors.New("mfa challenge expired")
	// ErrMFAChallengeAttempts is returned once a challenge has absorbed
	// its attempt budget.
	ErrMFAChallengeAttempts = errors.New("mfa challenge attempts exceeded")

	// ErrNoBackupCodes is returned when redemption is attempted and the
	// principal has no unused backup codes.
	ErrNoBackupCodes = errors.New("no backup codes available")
	// ErrBackupCodeInvalid is returned for a code that matches no unused
	// entry, including codes already redeemed.
	ErrBackupCodeInvalid = errors.New("invalid or used backup code")

	// ErrPasswordPolicy matches any complexity, common-password, or
	// personal-info similarity rejection. Wrapped errors carry details.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is returned when a candidate matches a password
	// history entry.
	ErrPasswordReuse = errors.New("password matches a previous password")
	// ErrPasswordExpired is returned by login when the password lifetime
	// has elapsed or a reset was forced.
	ErrPasswordExpired = errors.New("password expired")

	// ErrCacheUnavailable wraps shared-cache failures. Operations with a
	// local fallback log it and proceed degraded instead of surfacing it.
	ErrCacheUnavailable = errors.New("shared cache unavailable")
	// ErrLockCheckUnavailable is returned when neither lockout tier can
	// answer a lock check. Callers must treat it as a denial.
	ErrLockCheckUnavailable = errors.New("lock state unavailable")

	// ErrEngineNotReady is returned by operations on a nil or
	// incompletely built engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// LockedError reports an active lockout along with the remaining wait
// time. It matches ErrAccountLocked under errors.Is.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked, retry in %s", e.Remaining().Round(time.Second))
}

// Is reports whether target is ErrAccountLocked.
func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// Remaining returns the wait time rounded up to whole seconds. It never
// returns a negative duration.
func (e *LockedError) Remaining() time.Duration {
	d := time.Until(e.Until)
	if d <= 0 {
		return 0
	}
	if rem := d % time.Second; rem > 0 {
		d += time.Second - rem
	}
	return d
}
