package authcore

import (
	"context"
	"crypto/subtle"
	"strconv"
	"sync"
)

// keyedMutex serializes operations per key. Backup-code redemption locks
// on the principal so a code redeems exactly once even when the same
// code is submitted concurrently.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// SetupMFA generates and stores a new TOTP secret for the principal. MFA
// stays disabled until ConfirmMFA proves the authenticator was enrolled;
// login behavior does not change in between.
//
// A principal with MFA already confirmed is refused: overwriting the
// live secret would brick the enrolled authenticator before the new one
// is ever proven. Rotation goes through DisableMFA and a fresh
// enrollment.
func (e *Engine) SetupMFA(ctx context.Context, principalID string) (*MFAEnrollment, error) {
	p, err := e.credentials.FindByID(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrInvalidCredentials
	}
	if p.MFAEnabled {
		return nil, ErrMFAAlreadyEnabled
	}

	raw, encoded, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}

	sealed, err := e.cipher.Seal(raw)
	if err != nil {
		return nil, err
	}

	if err := e.credentials.UpdateSecurityFields(ctx, p.ID, SecurityFields{
		MFASecret: sealed,
	}); err != nil {
		return nil, err
	}

	return &MFAEnrollment{
		Secret: encoded,
		URI:    e.totp.ProvisionURI(encoded, p.Identifier),
	}, nil
}

// ConfirmMFA proves possession of the enrolled authenticator and turns
// MFA on. The enable flag and the freshly generated backup codes land in
// one store write, so there is no window where MFA is on without
// recovery codes.
//
// The returned plaintext codes are shown exactly once; only their hashes
// are stored.
func (e *Engine) ConfirmMFA(ctx context.Context, principalID, code string) ([]string, error) {
	p, err := e.credentials.FindByID(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrInvalidCredentials
	}
	if len(p.MFASecret) == 0 {
		return nil, ErrMFANotConfigured
	}

	secret, err := e.cipher.Open(p.MFASecret)
	if err != nil {
		return nil, err
	}

	ok, err := e.totp.VerifyCode(secret, code, e.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, EventMFAFailure, false, p.ID, "", ErrMFACodeInvalid, nil)
		return nil, ErrMFACodeInvalid
	}

	records, plaintext, err := e.generateBackupCodes(p.ID)
	if err != nil {
		return nil, err
	}

	enabled := true
	if err := e.credentials.UpdateSecurityFields(ctx, p.ID, SecurityFields{
		MFAEnabled:  &enabled,
		BackupCodes: records,
	}); err != nil {
		return nil, err
	}

	e.emitAudit(ctx, EventMFAEnrolled, true, p.ID, "", nil, nil)
	e.emitAudit(ctx, EventBackupCodesGenerated, true, p.ID, "", nil,
		map[string]string{"count": strconv.Itoa(len(plaintext))})
	return plaintext, nil
}

// DisableMFA turns MFA off. It demands a currently valid TOTP code or an
// unused backup code, so a hijacked logged-in session cannot silently
// strip the second factor. The secret and all backup codes are purged.
func (e *Engine) DisableMFA(ctx context.Context, principalID, code string) error {
	p, secret, err := e.loadMFAPrincipal(ctx, principalID)
	if err != nil {
		return err
	}

	ok, err := e.totp.VerifyCode(secret, code, e.now())
	if err != nil {
		return err
	}
	if !ok {
		ok = matchesUnusedBackupCode(p, code)
	}
	if !ok {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, EventMFAFailure, false, p.ID, "", ErrMFACodeInvalid, nil)
		return ErrMFACodeInvalid
	}

	disabled := false
	if err := e.credentials.UpdateSecurityFields(ctx, p.ID, SecurityFields{
		MFAEnabled:  &disabled,
		ClearSecret: true,
		BackupCodes: []BackupCodeRecord{},
	}); err != nil {
		return err
	}

	e.emitAudit(ctx, EventMFADisabled, true, p.ID, "", nil, nil)
	return nil
}

// RegenerateBackupCodes replaces the principal's backup codes with a
// fresh set, invalidating every previous code used or not. Requires a
// valid TOTP code.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, principalID, code string) ([]string, error) {
	p, secret, err := e.loadMFAPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}

	ok, err := e.totp.VerifyCode(secret, code, e.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, EventMFAFailure, false, p.ID, "", ErrMFACodeInvalid, nil)
		return nil, ErrMFACodeInvalid
	}

	records, plaintext, err := e.generateBackupCodes(p.ID)
	if err != nil {
		return nil, err
	}

	if err := e.credentials.UpdateSecurityFields(ctx, p.ID, SecurityFields{
		BackupCodes: records,
	}); err != nil {
		return nil, err
	}

	e.emitAudit(ctx, EventBackupCodesGenerated, true, p.ID, "", nil,
		map[string]string{"count": strconv.Itoa(len(plaintext))})
	return plaintext, nil
}

func (e *Engine) generateBackupCodes(principalID string) ([]BackupCodeRecord, []string, error) {
	count := e.config.MFA.BackupCodeCount
	length := e.config.MFA.BackupCodeLength

	records := make([]BackupCodeRecord, 0, count)
	plaintext := make([]string, 0, count)
	for i := 0; i < count; i++ {
		canonical, err := newBackupCode(length)
		if err != nil {
			return nil, nil, err
		}
		records = append(records, BackupCodeRecord{
			Hash: backupCodeHash(principalID, canonical),
		})
		plaintext = append(plaintext, formatBackupCode(canonical))
	}
	return records, plaintext, nil
}

// redeemBackupCode marks one unused matching code as used. The per
// principal lock plus a fresh read makes the mark exactly-once: two
// concurrent redemptions of the same code serialize here, and the second
// sees the code already spent.
func (e *Engine) redeemBackupCode(ctx context.Context, principalID, code string) (int, error) {
	unlock := e.redeem.lock(principalID)
	defer unlock()

	p, err := e.credentials.FindByID(ctx, principalID)
	if err != nil {
		return 0, err
	}
	if p == nil {
		return 0, ErrMFAChallengeInvalid
	}
	if !p.MFAEnabled {
		return 0, ErrMFANotConfigured
	}

	hash := backupCodeHash(p.ID, canonicalizeBackupCode(code))

	unused := 0
	match := -1
	for i := range p.BackupCodes {
		if p.BackupCodes[i].Used {
			continue
		}
		unused++
		if subtle.ConstantTimeCompare(p.BackupCodes[i].Hash[:], hash[:]) == 1 {
			match = i
		}
	}

	if unused == 0 {
		return 0, ErrNoBackupCodes
	}
	if match < 0 {
		return 0, ErrBackupCodeInvalid
	}

	updated := make([]BackupCodeRecord, len(p.BackupCodes))
	copy(updated, p.BackupCodes)
	updated[match].Used = true

	if err := e.credentials.UpdateSecurityFields(ctx, p.ID, SecurityFields{
		BackupCodes: updated,
	}); err != nil {
		return 0, err
	}
	return unused - 1, nil
}

// matchesUnusedBackupCode checks the presented code against the stored
// hashes without consuming anything.
func matchesUnusedBackupCode(p *Principal, code string) bool {
	hash := backupCodeHash(p.ID, canonicalizeBackupCode(code))
	matched := false
	for i := range p.BackupCodes {
		if p.BackupCodes[i].Used {
			continue
		}
		if subtle.ConstantTimeCompare(p.BackupCodes[i].Hash[:], hash[:]) == 1 {
			matched = true
		}
	}
	return matched
}
