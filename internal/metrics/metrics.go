package metrics

import "sync/atomic"

// MetricID identifies one counter.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginLocked
	MetricMFARequired
	MetricMFASuccess
	MetricMFAFailure
	MetricBackupCodeUsed
	MetricBackupCodeFailed
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricSessionCreated
	MetricSessionInvalidated
	MetricTokenRevoked
	MetricPasswordChanged
	MetricPasswordRejected
	MetricCacheDegraded
	MetricIDCount
)

// Name returns the stable export name of the counter.
func (id MetricID) Name() string {
	switch id {
	case MetricLoginSuccess:
		return "login_success"
	case MetricLoginFailure:
		return "login_failure"
	case MetricLoginLocked:
		return "login_locked"
	case MetricMFARequired:
		return "mfa_required"
	case MetricMFASuccess:
		return "mfa_success"
	case MetricMFAFailure:
		return "mfa_failure"
	case MetricBackupCodeUsed:
		return "backup_code_used"
	case MetricBackupCodeFailed:
		return "backup_code_failed"
	case MetricRefreshSuccess:
		return "refresh_success"
	case MetricRefreshFailure:
		return "refresh_failure"
	case MetricSessionCreated:
		return "session_created"
	case MetricSessionInvalidated:
		return "session_invalidated"
	case MetricTokenRevoked:
		return "token_revoked"
	case MetricPasswordChanged:
		return "password_changed"
	case MetricPasswordRejected:
		return "password_rejected"
	case MetricCacheDegraded:
		return "cache_degraded"
	default:
		return "unknown"
	}
}

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Config controls whether counting is active.
type Config struct {
	Enabled bool
}

// Metrics holds atomic counters. A nil or disabled Metrics is a no-op on
// every method.
type Metrics struct {
	enabled  bool
	counters [MetricIDCount]paddedCounter
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Counters map[MetricID]uint64
}

func New(cfg Config) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= MetricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= MetricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() Snapshot {
	if m == nil || !m.enabled {
		return Snapshot{Counters: map[MetricID]uint64{}}
	}

	s := Snapshot{Counters: make(map[MetricID]uint64, int(MetricIDCount))}
	for id := MetricID(0); id < MetricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	return s
}
