package authcore

import (
	"errors"
	"strings"
	"time"
)

// Config carries every tunable for the engine. Zero values are not
// usable; start from defaultConfig via New and override selectively.
type Config struct {
	JWT      JWTConfig
	Session  SessionConfig
	Lockout  LockoutConfig
	MFA      MFAConfig
	Password PasswordConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures token signing and lifetimes.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures the session store. InactivityTimeout bounds
// how long a session may sit idle before reads treat it as stale, even
// when the cache entry has not yet expired.
type SessionConfig struct {
	RedisPrefix       string
	InactivityTimeout time.Duration
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig configures the sliding-window failed-attempt tracker.
type LockoutConfig struct {
	Window    time.Duration
	Threshold int
	Duration  time.Duration
}

/*
====================================
MFA CONFIG
====================================
*/

// MFAConfig configures TOTP verification, login challenges, and backup
// codes. SecretEncryptionKey must be 16, 24, or 32 bytes; when empty,
// secrets are stored without encryption (legacy mode, read-compatible
// with encrypted envelopes).
type MFAConfig struct {
	Issuer              string
	Digits              int
	Period              int
	Algorithm           string // "SHA1" (default), "SHA256", "SHA512"
	Skew                int
	ChallengeTTL        time.Duration
	ChallengeAttempts   int
	BackupCodeCount     int
	BackupCodeLength    int
	SecretEncryptionKey []byte
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig configures hashing, lifecycle, and the policy engine.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool

	MinLength           int
	MaxLength           int
	SimilarityThreshold float64
	HistorySize         int
	ExpiryPeriod        time.Duration
}

// AuditConfig controls the security event dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "ed25519",
			Leeway:        30 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix:       "ac",
			InactivityTimeout: 30 * time.Minute,
		},
		Lockout: LockoutConfig{
			Window:    15 * time.Minute,
			Threshold: 5,
			Duration:  30 * time.Minute,
		},
		MFA: MFAConfig{
			Issuer:            "",
			Digits:            6,
			Period:            30,
			Algorithm:         "SHA1",
			Skew:              1,
			ChallengeTTL:      5 * time.Minute,
			ChallengeAttempts: 5,
			BackupCodeCount:   10,
			BackupCodeLength:  10,
		},
		Password: PasswordConfig{
			Memory:              65536,
			Time:                3,
			Parallelism:         2,
			SaltLength:          16,
			KeyLength:           32,
			UpgradeOnLogin:      true,
			MinLength:           10,
			MaxLength:           128,
			SimilarityThreshold: 0.7,
			HistorySize:         24,
			ExpiryPeriod:        90 * 24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.MFA.SecretEncryptionKey = cloneBytes(cfg.MFA.SecretEncryptionKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks internal consistency. It is called by Builder.Build
// and may be called directly on hand-assembled configs.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("ed25519 requires PrivateKey")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PublicKey) == 0 {
		return errors.New("ed25519 requires PublicKey")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) < 32 {
		return errors.New("hs256 requires PrivateKey of at least 32 bytes")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Session
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if c.Session.InactivityTimeout <= 0 {
		return errors.New("Session InactivityTimeout must be > 0")
	}

	// Lockout
	if c.Lockout.Window <= 0 {
		return errors.New("Lockout Window must be > 0")
	}
	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout Threshold must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}

	// MFA
	if c.MFA.Digits != 6 && c.MFA.Digits != 8 {
		return errors.New("MFA Digits must be 6 or 8")
	}
	if c.MFA.Period < 15 {
		return errors.New("MFA Period must be >= 15 seconds")
	}
	if c.MFA.Skew < 0 || c.MFA.Skew > 2 {
		return errors.New("MFA Skew must be between 0 and 2")
	}
	if c.MFA.ChallengeTTL <= 0 {
		return errors.New("MFA ChallengeTTL must be > 0")
	}
	if c.MFA.ChallengeAttempts <= 0 {
		return errors.New("MFA ChallengeAttempts must be > 0")
	}
	if c.MFA.BackupCodeCount <= 0 {
		return errors.New("MFA BackupCodeCount must be > 0")
	}
	if c.MFA.BackupCodeLength < 8 {
		return errors.New("MFA BackupCodeLength must be >= 8")
	}
	switch len(c.MFA.SecretEncryptionKey) {
	case 0, 16, 24, 32:
		// valid (empty means legacy plaintext storage)
	default:
		return errors.New("MFA SecretEncryptionKey must be 16, 24, or 32 bytes")
	}
	switch strings.ToUpper(c.MFA.Algorithm) {
	case "", "SHA1", "SHA256", "SHA512":
		// valid (empty treated as SHA1)
	default:
		return errors.New("MFA Algorithm must be SHA1, SHA256, or SHA512")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 8 {
		return errors.New("Password MinLength must be >= 8")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}
	if c.Password.SimilarityThreshold <= 0 || c.Password.SimilarityThreshold > 1 {
		return errors.New("Password SimilarityThreshold must be in (0, 1]")
	}
	if c.Password.HistorySize < 0 {
		return errors.New("Password HistorySize must be >= 0")
	}
	if c.Password.ExpiryPeriod < 0 {
		return errors.New("Password ExpiryPeriod must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
