package authcore

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/complyward/authcore/internal/audit"
	internalmetrics "github.com/complyward/authcore/internal/metrics"
)

// AccountStatus represents the lifecycle state of a principal's account.
type AccountStatus uint8

const (
	// StatusActive allows authentication.
	StatusActive AccountStatus = iota
	// StatusLocked blocks authentication until the lock expires or is
	// cleared.
	StatusLocked
	// StatusInactive blocks authentication indefinitely.
	StatusInactive
	// StatusPending blocks authentication until the account is activated.
	StatusPending
)

// String returns the durable-store representation of the status.
func (s AccountStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusLocked:
		return "locked"
	case StatusInactive:
		return "inactive"
	case StatusPending:
		return "pending"
	default:
		return "unknown"
	}
}

// LockReasonFailedAttempts is the lock reason written when the failed
// attempt threshold is reached. Only locks carrying this reason are
// cleared automatically on a later successful authentication.
const LockReasonFailedAttempts = "failed_attempts"

// Principal is the per-user security record read from the credential
// store. Fields are mutated only through engine operations and persisted
// via CredentialStore.UpdateSecurityFields.
type Principal struct {
	ID         string
	Identifier string
	Username   string
	Role       string

	// Personal fields consulted by the password similarity check.
	FirstName string
	LastName  string
	Email     string

	PasswordHash      string
	PasswordChangedAt time.Time
	PasswordExpiresAt time.Time
	ForceReset        bool
	PasswordHistory   []string

	Status       AccountStatus
	LockedReason string
	LockedUntil  time.Time

	MFAEnabled  bool
	MFASecret   []byte
	BackupCodes []BackupCodeRecord

	IPAllowlist []string

	// SecurityQuestions are carried for the integrator's recovery flows;
	// the engine stores and returns them but never evaluates answers.
	SecurityQuestions []SecurityQuestion
}

// SecurityQuestion pairs a question with the hash of its answer.
// Plaintext answers are never persisted.
type SecurityQuestion struct {
	Question   string
	AnswerHash string
}

// BackupCodeRecord stores the hash of a single backup code and whether
// it has been redeemed. Plaintext codes are never persisted.
type BackupCodeRecord struct {
	Hash [32]byte
	Used bool
}

// SecurityFields is a partial update applied by
// CredentialStore.UpdateSecurityFields. Nil pointers and nil slices
// leave the corresponding field untouched; a non-nil slice replaces the
// stored list wholesale. Grouping related fields into one call is what
// gives multi-field mutations (enable MFA plus store backup codes)
// single-record atomicity.
type SecurityFields struct {
	PasswordHash      *string
	PasswordChangedAt *time.Time
	PasswordExpiresAt *time.Time
	ForceReset        *bool
	PasswordHistory   []string

	Status       *AccountStatus
	LockedReason *string
	LockedUntil  *time.Time

	MFAEnabled  *bool
	MFASecret   []byte
	ClearSecret bool
	BackupCodes []BackupCodeRecord
}

// CredentialStore is the narrow adapter over the external user record
// store. Implementations must provide single-record atomicity for
// UpdateSecurityFields; no cross-record transactions are assumed.
type CredentialStore interface {
	FindByIdentifier(ctx context.Context, identifier string) (*Principal, error)
	FindByID(ctx context.Context, principalID string) (*Principal, error)
	UpdateSecurityFields(ctx context.Context, principalID string, fields SecurityFields) error
}

// AuthResult is returned by Engine.Authenticate and the MFA completion
// operations. When RequiresMFA is set, no tokens are present and the
// caller must complete the challenge identified by ChallengeID.
type AuthResult struct {
	PrincipalID string
	Username    string
	Role        string

	RequiresMFA bool
	ChallengeID string

	SessionID    string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// MFAEnrollment holds the plaintext secret and provisioning URI returned
// by Engine.SetupMFA. The secret is shown once and stored encrypted.
type MFAEnrollment struct {
	Secret string
	URI    string
}

// AuditEvent is a structured security event emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives AuditEvent values from the engine's dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an AuditSink that discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based AuditSink.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON-encoded event per line to an io.Writer.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a ChannelSink with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a JSONWriterSink writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// MetricID identifies one counter in the in-process metrics system.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess       = internalmetrics.MetricLoginSuccess
	MetricLoginFailure       = internalmetrics.MetricLoginFailure
	MetricLoginLocked        = internalmetrics.MetricLoginLocked
	MetricMFARequired        = internalmetrics.MetricMFARequired
	MetricMFASuccess         = internalmetrics.MetricMFASuccess
	MetricMFAFailure         = internalmetrics.MetricMFAFailure
	MetricBackupCodeUsed     = internalmetrics.MetricBackupCodeUsed
	MetricBackupCodeFailed   = internalmetrics.MetricBackupCodeFailed
	MetricRefreshSuccess     = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure     = internalmetrics.MetricRefreshFailure
	MetricSessionCreated     = internalmetrics.MetricSessionCreated
	MetricSessionInvalidated = internalmetrics.MetricSessionInvalidated
	MetricTokenRevoked       = internalmetrics.MetricTokenRevoked
	MetricPasswordChanged    = internalmetrics.MetricPasswordChanged
	MetricPasswordRejected   = internalmetrics.MetricPasswordRejected
	MetricCacheDegraded      = internalmetrics.MetricCacheDegraded
)

// Metrics holds the engine's atomic counters.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot = internalmetrics.Snapshot
