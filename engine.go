package authcore

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/complyward/authcore/internal/audit"
	"github.com/complyward/authcore/internal/lockout"
	"github.com/complyward/authcore/internal/secrets"
	"github.com/complyward/authcore/jwt"
	"github.com/complyward/authcore/password"
	"github.com/complyward/authcore/session"
)

// Engine is the authentication core. It owns the full credential
// lifecycle: password login, the two-step MFA flow, session and token
// management, lockout, and password changes. Construct one with the
// Builder and share it across goroutines; all methods are safe for
// concurrent use.
type Engine struct {
	config      Config
	credentials CredentialStore
	tokens      *TokenService
	sessions    *session.Store
	lockout     *lockout.Tracker
	challenges  *challengeStore
	audit       *audit.Dispatcher
	metrics     *Metrics
	hasher      *password.Argon2
	policy      *password.Policy
	totp        *totpManager
	cipher      *secrets.Cipher
	log         *slog.Logger
	redeem      keyedMutex
	now         func() time.Time
}

// Close drains the audit dispatcher. Call once on shutdown.
func (e *Engine) Close() {
	if e.audit != nil {
		e.audit.Close()
	}
}

// MetricsSnapshot returns a point-in-time copy of all counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were discarded under
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Degraded reports whether any cache-backed component has fallen back to
// local-only operation since startup.
func (e *Engine) Degraded() bool {
	return e.sessions.Degraded() || e.tokens.Degraded() || e.challenges.degraded.Load()
}

// Authenticate performs the password step of a login. When the principal
// has MFA enabled the result carries a challenge identifier instead of
// tokens, and the caller must follow up with CompleteMFA or
// CompleteMFAWithBackupCode.
//
// Failures are deliberately coarse: unknown identifiers and wrong
// passwords both surface ErrInvalidCredentials.
func (e *Engine) Authenticate(ctx context.Context, identifier, secret string) (*AuthResult, error) {
	p, err := e.credentials.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if p == nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, EventLoginFailure, false, "", "", ErrInvalidCredentials,
			map[string]string{"identifier": identifier})
		return nil, ErrInvalidCredentials
	}

	if err := e.checkLock(ctx, p.ID); err != nil {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, EventLoginLocked, false, p.ID, "", err, nil)
		return nil, err
	}

	ok, err := e.hasher.Verify(secret, p.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify credential: %w", err)
	}
	if !ok {
		return nil, e.recordBadPassword(ctx, p.ID)
	}

	if err := e.checkStatus(p); err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, EventLoginFailure, false, p.ID, "", err, nil)
		return nil, err
	}

	if err := e.checkIPAllowlist(ctx, p); err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, EventLoginFailure, false, p.ID, "", err, nil)
		return nil, err
	}

	if e.passwordExpired(p) {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, EventLoginFailure, false, p.ID, "", ErrPasswordExpired, nil)
		return nil, ErrPasswordExpired
	}

	e.maybeUpgradeHash(ctx, p, secret)

	e.clearLockoutState(ctx, p.ID)

	if p.MFAEnabled {
		challengeID, err := e.challenges.Create(ctx, p.ID, clientIPFromContext(ctx), userAgentFromContext(ctx))
		if err != nil {
			return nil, err
		}
		e.metricInc(MetricMFARequired)
		e.emitAudit(ctx, EventMFARequired, true, p.ID, "", nil, nil)
		return &AuthResult{
			PrincipalID: p.ID,
			Username:    p.Username,
			Role:        p.Role,
			RequiresMFA: true,
			ChallengeID: challengeID,
		}, nil
	}

	return e.mintSession(ctx, p, EventLoginSuccess)
}

// CompleteMFA finishes a login started by Authenticate by validating a
// TOTP code against the pending challenge.
func (e *Engine) CompleteMFA(ctx context.Context, challengeID, code string) (*AuthResult, error) {
	ch, err := e.challenges.Get(ctx, challengeID)
	if err != nil {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, EventMFAFailure, false, "", "", err, nil)
		return nil, err
	}

	p, secret, err := e.loadMFAPrincipal(ctx, ch.PrincipalID)
	if err != nil {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, EventMFAFailure, false, ch.PrincipalID, "", err, nil)
		return nil, err
	}

	ok, err := e.totp.VerifyCode(secret, code, e.now())
	if err != nil {
		return nil, fmt.Errorf("verify mfa code: %w", err)
	}
	if !ok {
		ferr := e.challenges.RecordFailure(ctx, challengeID)
		if ferr == nil {
			ferr = ErrMFACodeInvalid
		}
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, EventMFAFailure, false, p.ID, "", ferr, nil)
		return nil, ferr
	}

	_ = e.challenges.Delete(ctx, challengeID)
	e.clearLockoutState(ctx, p.ID)
	e.metricInc(MetricMFASuccess)
	e.emitAudit(ctx, EventMFASuccess, true, p.ID, "", nil, nil)

	return e.mintSession(ctx, p, EventLoginSuccess)
}

// CompleteMFAWithBackupCode finishes a login using a single-use recovery
// code instead of a TOTP code. Each code redeems exactly once, even
// under concurrent attempts.
func (e *Engine) CompleteMFAWithBackupCode(ctx context.Context, challengeID, code string) (*AuthResult, error) {
	ch, err := e.challenges.Get(ctx, challengeID)
	if err != nil {
		e.metricInc(MetricBackupCodeFailed)
		e.emitAudit(ctx, EventBackupCodeFailed, false, "", "", err, nil)
		return nil, err
	}

	remaining, err := e.redeemBackupCode(ctx, ch.PrincipalID, code)
	if err != nil {
		ferr := err
		if ferr == ErrBackupCodeInvalid || ferr == ErrNoBackupCodes {
			if cerr := e.challenges.RecordFailure(ctx, challengeID); cerr != nil {
				ferr = cerr
			}
		}
		e.metricInc(MetricBackupCodeFailed)
		e.emitAudit(ctx, EventBackupCodeFailed, false, ch.PrincipalID, "", ferr, nil)
		return nil, ferr
	}

	p, err := e.credentials.FindByID(ctx, ch.PrincipalID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrMFAChallengeInvalid
	}

	_ = e.challenges.Delete(ctx, challengeID)
	e.clearLockoutState(ctx, p.ID)
	e.metricInc(MetricBackupCodeUsed)
	e.emitAudit(ctx, EventBackupCodeUsed, true, p.ID, "", nil,
		map[string]string{"remaining": strconv.Itoa(remaining)})

	return e.mintSession(ctx, p, EventLoginSuccess)
}

// Verify validates an access token end to end: signature, expiry,
// revocation, and the liveness of its backing session. The session's
// activity clock is advanced on success.
func (e *Engine) Verify(ctx context.Context, accessToken string) (*jwt.Claims, error) {
	claims, err := e.tokens.Verify(ctx, accessToken, jwt.KindAccess)
	if err != nil {
		return nil, err
	}

	sess, err := e.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		if err == session.ErrNotFound {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if sess.PrincipalID != claims.PrincipalID {
		return nil, ErrPrincipalMismatch
	}

	_ = e.sessions.Touch(ctx, sess.ID, e.now())
	return claims, nil
}

// Refresh exchanges a valid refresh token for a fresh access token. The
// old access token is revoked and the session record is rebound to the
// new one; the refresh token and the session deadline are unchanged.
//
// A refresh token that no longer matches the session's recorded token is
// treated as replayed: the whole session is destroyed.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, err := e.tokens.Verify(ctx, refreshToken, jwt.KindRefresh)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, EventRefreshFailure, false, "", "", err, nil)
		return nil, err
	}

	sess, err := e.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		if err == session.ErrNotFound {
			err = ErrSessionNotFound
		}
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, EventRefreshFailure, false, claims.PrincipalID, claims.SessionID, err, nil)
		return nil, err
	}

	if sess.PrincipalID != claims.PrincipalID {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, EventRefreshFailure, false, claims.PrincipalID, sess.ID, ErrPrincipalMismatch, nil)
		return nil, ErrPrincipalMismatch
	}

	if sess.RefreshTokenID != claims.ID {
		e.destroySession(ctx, sess)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, EventRefreshFailure, false, sess.PrincipalID, sess.ID, ErrTokenRevoked,
			map[string]string{"reason": "refresh_token_replay"})
		return nil, ErrTokenRevoked
	}

	p, err := e.credentials.FindByID(ctx, sess.PrincipalID)
	if err != nil {
		return nil, err
	}
	if p == nil || p.Status != StatusActive {
		e.destroySession(ctx, sess)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, EventRefreshFailure, false, sess.PrincipalID, sess.ID, ErrAccountInactive, nil)
		return nil, ErrAccountInactive
	}

	access, err := e.tokens.Issue(jwt.KindAccess, p, sess.ID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	_ = e.tokens.Revoke(ctx, sess.AccessTokenID, now.Add(e.tokens.TTL(jwt.KindAccess)))

	sess.AccessTokenID = access.ID
	sess.LastActivityAt = now
	ttl := sess.ExpiresAt.Sub(now)
	if err := e.sessions.Save(ctx, sess, ttl); err != nil {
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, EventRefreshSuccess, true, p.ID, sess.ID, nil, nil)

	return &AuthResult{
		PrincipalID: p.ID,
		Username:    p.Username,
		Role:        p.Role,
		SessionID:   sess.ID,
		AccessToken: access.Value,
		ExpiresAt:   access.ExpiresAt,
	}, nil
}

// Logout ends the session behind the presented tokens. Both tokens are
// revoked for their remaining lifetime. Logout never fails: an expired
// or garbled token simply has less to clean up.
func (e *Engine) Logout(ctx context.Context, accessToken, refreshToken string) {
	var principalID, sessionID string
	if claims, err := e.tokens.Peek(accessToken, jwt.KindAccess); err == nil {
		principalID, sessionID = claims.PrincipalID, claims.SessionID
	} else if claims, err := e.tokens.Peek(refreshToken, jwt.KindRefresh); err == nil {
		principalID, sessionID = claims.PrincipalID, claims.SessionID
	}

	e.tokens.RevokeToken(ctx, accessToken, jwt.KindAccess)
	e.tokens.RevokeToken(ctx, refreshToken, jwt.KindRefresh)

	if sessionID != "" {
		_ = e.sessions.Delete(ctx, sessionID)
	}

	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, EventLogout, true, principalID, sessionID, nil, nil)
}

// LogoutAll destroys every live session belonging to the principal and
// revokes their tokens. Returns the number of sessions removed.
func (e *Engine) LogoutAll(ctx context.Context, principalID string) (int, error) {
	sessions, err := e.sessions.ListForPrincipal(ctx, principalID)
	if err != nil {
		return 0, err
	}

	for _, sess := range sessions {
		e.destroySession(ctx, sess)
	}

	e.emitAudit(ctx, EventLogoutAll, true, principalID, "", nil,
		map[string]string{"count": strconv.Itoa(len(sessions))})
	return len(sessions), nil
}

// ListSessions enumerates the principal's live sessions.
func (e *Engine) ListSessions(ctx context.Context, principalID string) ([]*session.Session, error) {
	return e.sessions.ListForPrincipal(ctx, principalID)
}

// RevokeSession destroys one session by identifier. The session must
// belong to the given principal.
func (e *Engine) RevokeSession(ctx context.Context, principalID, sessionID string) error {
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		if err == session.ErrNotFound {
			return ErrSessionNotFound
		}
		return err
	}
	if sess.PrincipalID != principalID {
		return ErrPrincipalMismatch
	}

	e.destroySession(ctx, sess)
	e.emitAudit(ctx, EventSessionRevoked, true, principalID, sessionID, nil, nil)
	return nil
}

// Touch advances the session's activity clock without a full Verify.
func (e *Engine) Touch(ctx context.Context, sessionID string) error {
	err := e.sessions.Touch(ctx, sessionID, e.now())
	if err == session.ErrNotFound {
		return ErrSessionNotFound
	}
	return err
}

/* ==== internals ==== */

// checkLock enforces the two-tier lockout. An unreachable check denies
// the attempt rather than waving it through.
func (e *Engine) checkLock(ctx context.Context, principalID string) error {
	locked, until, err := e.lockout.IsLocked(ctx, principalID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLockCheckUnavailable, err)
	}
	if locked {
		return &LockedError{Until: until}
	}
	return nil
}

// clearLockoutState resets the failure counter after a proven login.
// The login proceeds regardless; a failed durable unlock leaves the
// stored record claiming locked, so it is logged rather than swallowed.
func (e *Engine) clearLockoutState(ctx context.Context, principalID string) {
	if err := e.lockout.RecordSuccess(ctx, principalID); err != nil {
		e.log.Warn("lockout clear failed, durable record may still show locked",
			slog.String("principal_id", principalID),
			slog.String("error", err.Error()),
		)
	}
}

// recordBadPassword counts the failure and converts a newly tripped
// threshold into a lock.
func (e *Engine) recordBadPassword(ctx context.Context, principalID string) error {
	locked, until, err := e.lockout.RecordFailure(ctx, principalID)
	if err != nil {
		e.log.Warn("lockout write failed, lock held in memory",
			slog.String("principal_id", principalID),
			slog.String("error", err.Error()),
		)
	}
	if locked {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, EventLoginLocked, false, principalID, "", ErrAccountLocked,
			map[string]string{"failures": strconv.Itoa(e.lockout.FailureCount(principalID))})
		return &LockedError{Until: until}
	}

	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, EventLoginFailure, false, principalID, "", ErrInvalidCredentials, nil)
	return ErrInvalidCredentials
}

func (e *Engine) checkStatus(p *Principal) error {
	switch p.Status {
	case StatusActive:
		return nil
	case StatusLocked:
		return &LockedError{Until: p.LockedUntil}
	case StatusInactive:
		return ErrAccountInactive
	case StatusPending:
		return ErrAccountPending
	default:
		return ErrAccountInactive
	}
}

// checkIPAllowlist enforces the per-principal allowlist. An empty list
// allows every address; entries may be single addresses or CIDR ranges.
// A configured allowlist with no client IP on the context is a denial.
func (e *Engine) checkIPAllowlist(ctx context.Context, p *Principal) error {
	if len(p.IPAllowlist) == 0 {
		return nil
	}

	addr, err := netip.ParseAddr(clientIPFromContext(ctx))
	if err != nil {
		return ErrIPNotAllowed
	}

	for _, entry := range p.IPAllowlist {
		if prefix, err := netip.ParsePrefix(entry); err == nil {
			if prefix.Contains(addr) {
				return nil
			}
			continue
		}
		if allowed, err := netip.ParseAddr(entry); err == nil && allowed == addr {
			return nil
		}
	}
	return ErrIPNotAllowed
}

func (e *Engine) passwordExpired(p *Principal) bool {
	if p.ForceReset {
		return true
	}
	if e.config.Password.ExpiryPeriod <= 0 || p.PasswordChangedAt.IsZero() {
		return false
	}
	return e.now().After(p.PasswordChangedAt.Add(e.config.Password.ExpiryPeriod))
}

// maybeUpgradeHash rehashes the verified password when stored parameters
// lag the configured ones. Best-effort; login proceeds either way.
func (e *Engine) maybeUpgradeHash(ctx context.Context, p *Principal, secret string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	needs, err := e.hasher.NeedsUpgrade(p.PasswordHash)
	if err != nil || !needs {
		return
	}
	newHash, err := e.hasher.Hash(secret)
	if err != nil {
		return
	}
	if err := e.credentials.UpdateSecurityFields(ctx, p.ID, SecurityFields{PasswordHash: &newHash}); err != nil {
		e.log.Warn("password hash upgrade failed",
			slog.String("principal_id", p.ID),
			slog.String("error", err.Error()),
		)
	}
}

// loadMFAPrincipal fetches the principal and decrypts its TOTP secret.
func (e *Engine) loadMFAPrincipal(ctx context.Context, principalID string) (*Principal, []byte, error) {
	p, err := e.credentials.FindByID(ctx, principalID)
	if err != nil {
		return nil, nil, err
	}
	if p == nil {
		return nil, nil, ErrMFAChallengeInvalid
	}
	if !p.MFAEnabled || len(p.MFASecret) == 0 {
		return nil, nil, ErrMFANotConfigured
	}
	secret, err := e.cipher.Open(p.MFASecret)
	if err != nil {
		return nil, nil, fmt.Errorf("open mfa secret: %w", err)
	}
	return p, secret, nil
}

// mintSession creates the session record and both tokens for a fully
// authenticated principal.
func (e *Engine) mintSession(ctx context.Context, p *Principal, eventKind string) (*AuthResult, error) {
	sessionID := uuid.NewString()

	access, err := e.tokens.Issue(jwt.KindAccess, p, sessionID)
	if err != nil {
		return nil, err
	}
	refresh, err := e.tokens.Issue(jwt.KindRefresh, p, sessionID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	refreshTTL := e.tokens.TTL(jwt.KindRefresh)
	sess := &session.Session{
		ID:             sessionID,
		PrincipalID:    p.ID,
		Username:       p.Username,
		Role:           p.Role,
		AccessTokenID:  access.ID,
		RefreshTokenID: refresh.ID,
		IP:             clientIPFromContext(ctx),
		UserAgent:      userAgentFromContext(ctx),
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(refreshTTL),
	}
	if err := e.sessions.Save(ctx, sess, refreshTTL); err != nil {
		return nil, err
	}

	e.metricInc(MetricSessionCreated)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, EventSessionCreated, true, p.ID, sessionID, nil, nil)
	e.emitAudit(ctx, eventKind, true, p.ID, sessionID, nil, nil)

	return &AuthResult{
		PrincipalID:  p.ID,
		Username:     p.Username,
		Role:         p.Role,
		SessionID:    sessionID,
		AccessToken:  access.Value,
		RefreshToken: refresh.Value,
		ExpiresAt:    access.ExpiresAt,
	}, nil
}

// destroySession revokes the session's tokens for their maximum possible
// remaining lifetime and removes the record.
func (e *Engine) destroySession(ctx context.Context, sess *session.Session) {
	horizon := e.now().Add(e.tokens.TTL(jwt.KindRefresh))
	_ = e.tokens.Revoke(ctx, sess.AccessTokenID, e.now().Add(e.tokens.TTL(jwt.KindAccess)))
	_ = e.tokens.Revoke(ctx, sess.RefreshTokenID, horizon)
	_ = e.sessions.Delete(ctx, sess.ID)
	e.metricInc(MetricSessionInvalidated)
	e.metricInc(MetricTokenRevoked)
}
