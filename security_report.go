package authcore

import "time"

// SecurityReport is a point-in-time description of the engine's active
// security posture, suitable for health endpoints and compliance
// evidence. It contains configuration facts only, never key material.
type SecurityReport struct {
	SigningMethod string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	SessionInactivityTimeout time.Duration

	LockoutWindow    time.Duration
	LockoutThreshold int
	LockoutDuration  time.Duration

	MFADigits           int
	MFAPeriod           int
	MFAAlgorithm        string
	MFASkew             int
	BackupCodeCount     int
	BackupCodeLength    int
	MFASecretsEncrypted bool

	PasswordMinLength    int
	PasswordHistorySize  int
	PasswordExpiryPeriod time.Duration
	Argon2MemoryKB       uint32
	Argon2Time           uint32
	Argon2Parallelism    uint8

	AuditEnabled   bool
	MetricsEnabled bool
	Degraded       bool
	AuditDropped   uint64
}

// SecurityReport assembles the report from live engine state.
func (e *Engine) SecurityReport() SecurityReport {
	return SecurityReport{
		SigningMethod: e.config.JWT.SigningMethod,
		AccessTTL:     e.config.JWT.AccessTTL,
		RefreshTTL:    e.config.JWT.RefreshTTL,

		SessionInactivityTimeout: e.config.Session.InactivityTimeout,

		LockoutWindow:    e.config.Lockout.Window,
		LockoutThreshold: e.config.Lockout.Threshold,
		LockoutDuration:  e.config.Lockout.Duration,

		MFADigits:           e.config.MFA.Digits,
		MFAPeriod:           e.config.MFA.Period,
		MFAAlgorithm:        e.config.MFA.Algorithm,
		MFASkew:             e.config.MFA.Skew,
		BackupCodeCount:     e.config.MFA.BackupCodeCount,
		BackupCodeLength:    e.config.MFA.BackupCodeLength,
		MFASecretsEncrypted: e.cipher.Encrypted(),

		PasswordMinLength:    e.config.Password.MinLength,
		PasswordHistorySize:  e.config.Password.HistorySize,
		PasswordExpiryPeriod: e.config.Password.ExpiryPeriod,
		Argon2MemoryKB:       e.config.Password.Memory,
		Argon2Time:           e.config.Password.Time,
		Argon2Parallelism:    e.config.Password.Parallelism,

		AuditEnabled:   e.config.Audit.Enabled,
		MetricsEnabled: e.metrics.Enabled(),
		Degraded:       e.Degraded(),
		AuditDropped:   e.AuditDropped(),
	}
}
