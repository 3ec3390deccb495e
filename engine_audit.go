package authcore

import (
	"context"
	"errors"
)

// Audit event kinds. One per security-relevant decision point.
const (
	EventLoginSuccess         = "login_success"
	EventLoginFailure         = "login_failure"
	EventLoginLocked          = "login_locked"
	EventMFARequired          = "mfa_required"
	EventMFASuccess           = "mfa_success"
	EventMFAFailure           = "mfa_failure"
	EventMFAEnrolled          = "mfa_enrolled"
	EventMFADisabled          = "mfa_disabled"
	EventBackupCodeUsed       = "backup_code_used"
	EventBackupCodeFailed     = "backup_code_failed"
	EventBackupCodesGenerated = "backup_codes_generated"
	EventPasswordChanged      = "password_changed"
	EventPasswordRejected     = "password_rejected"
	EventSessionCreated       = "session_created"
	EventSessionRevoked       = "session_revoked"
	EventLogout               = "logout"
	EventLogoutAll            = "logout_all"
	EventRefreshSuccess       = "refresh_success"
	EventRefreshFailure       = "refresh_failure"
	EventTokenRevoked         = "token_revoked"
	EventCacheDegraded        = "cache_degraded"
)

func (e *Engine) metricInc(id MetricID) {
	e.metrics.Inc(id)
}

// emitAudit records one event on the async dispatcher. Never blocks the
// calling login path; the dispatcher drops under sustained backpressure
// and counts the drops.
func (e *Engine) emitAudit(ctx context.Context, kind string, success bool, principalID, sessionID string, opErr error, details map[string]string) {
	if e.audit == nil {
		return
	}

	ev := AuditEvent{
		Timestamp:   e.now(),
		Kind:        kind,
		PrincipalID: principalID,
		SessionID:   sessionID,
		IP:          clientIPFromContext(ctx),
		Success:     success,
		Error:       auditErrorCode(opErr),
		Details:     details,
	}
	if ua := userAgentFromContext(ctx); ua != "" {
		if ev.Details == nil {
			ev.Details = map[string]string{}
		}
		ev.Details["user_agent"] = ua
	}

	e.audit.Emit(ctx, ev)
}

// auditErrorCode maps internal errors to stable codes so log pipelines
// can match on them without parsing prose.
func auditErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrAccountLocked):
		return "account_locked"
	case errors.Is(err, ErrAccountInactive):
		return "account_inactive"
	case errors.Is(err, ErrAccountPending):
		return "account_pending"
	case errors.Is(err, ErrIPNotAllowed):
		return "ip_not_allowed"
	case errors.Is(err, ErrTokenInvalid):
		return "token_invalid"
	case errors.Is(err, ErrTokenRevoked):
		return "token_revoked"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrPrincipalMismatch):
		return "principal_mismatch"
	case errors.Is(err, ErrMFANotConfigured):
		return "mfa_not_configured"
	case errors.Is(err, ErrMFACodeInvalid):
		return "mfa_code_invalid"
	case errors.Is(err, ErrMFAChallengeInvalid):
		return "mfa_challenge_invalid"
	case errors.Is(err, ErrMFAChallengeExpired):
		return "mfa_challenge_expired"
	case errors.Is(err, ErrMFAChallengeAttempts):
		return "mfa_challenge_attempts"
	case errors.Is(err, ErrNoBackupCodes):
		return "no_backup_codes"
	case errors.Is(err, ErrBackupCodeInvalid):
		return "backup_code_invalid"
	case errors.Is(err, ErrPasswordPolicy):
		return "password_policy"
	case errors.Is(err, ErrPasswordReuse):
		return "password_reuse"
	case errors.Is(err, ErrPasswordExpired):
		return "password_expired"
	case errors.Is(err, ErrLockCheckUnavailable):
		return "lock_check_unavailable"
	case errors.Is(err, ErrCacheUnavailable):
		return "cache_unavailable"
	default:
		return "internal_error"
	}
}
