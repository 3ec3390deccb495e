package authcore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/complyward/authcore/internal/audit"
	"github.com/complyward/authcore/internal/lockout"
	"github.com/complyward/authcore/internal/metrics"
	"github.com/complyward/authcore/internal/secrets"
	"github.com/complyward/authcore/jwt"
	"github.com/complyward/authcore/password"
	"github.com/complyward/authcore/session"
)

// Builder assembles an Engine. The credential store is the only
// mandatory collaborator; Redis is optional and its absence puts the
// engine in local-only degraded mode from the start.
type Builder struct {
	cfg         *Config
	redis       *redis.Client
	credentials CredentialStore
	sink        AuditSink
	logger      *slog.Logger
}

// New starts a Builder.
func New() *Builder {
	return &Builder{}
}

// WithConfig replaces the default configuration wholesale. Callers
// usually start from the defaults and override selectively:
//
//	cfg := authcore.DefaultConfig()
//	cfg.JWT.PrivateKey = priv
//	cfg.JWT.PublicKey = pub
//	engine, err := authcore.New().WithConfig(cfg). ...
func (b *Builder) WithConfig(cfg Config) *Builder {
	clone := cloneConfig(cfg)
	b.cfg = &clone
	return b
}

// WithRedis attaches the shared cache used for sessions, revocations,
// and MFA challenges.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore attaches the principal record store. Required.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.credentials = store
	return b
}

// WithAuditSink attaches the destination for security events. Events are
// only emitted when Config.Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithLogger attaches a structured logger. Defaults to slog.Default.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsEnabled toggles the in-process counters without touching
// the rest of the configuration.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	if b.cfg == nil {
		cfg := defaultConfig()
		b.cfg = &cfg
	}
	b.cfg.Metrics.Enabled = enabled
	return b
}

// DefaultConfig returns the default configuration, ready for selective
// overrides.
func DefaultConfig() Config {
	return defaultConfig()
}

// Build validates the configuration and wires the engine together.
func (b *Builder) Build() (*Engine, error) {
	cfg := defaultConfig()
	if b.cfg != nil {
		cfg = cloneConfig(*b.cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.credentials == nil {
		return nil, errors.New("credential store is required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	cipher, err := secrets.NewCipher(cfg.MFA.SecretEncryptionKey)
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	manager, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cfg.JWT.PrivateKey,
		PublicKey:     cfg.JWT.PublicKey,
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	blacklist := NewBlacklist(b.redis, cfg.Session.RedisPrefix, logger)
	tokens := NewTokenService(manager, blacklist)

	var distributed session.Backend
	if b.redis != nil {
		distributed = session.NewRedisBackend(b.redis, cfg.Session.RedisPrefix)
	}
	sessions := session.NewStore(distributed, session.NewLocalBackend(), cfg.Session.InactivityTimeout, logger)

	tracker := lockout.New(lockout.Config{
		Window:    cfg.Lockout.Window,
		Threshold: cfg.Lockout.Threshold,
		Duration:  cfg.Lockout.Duration,
	}, &durableLockStore{credentials: b.credentials})

	challenges := newChallengeStore(b.redis, cfg.Session.RedisPrefix,
		cfg.MFA.ChallengeTTL, cfg.MFA.ChallengeAttempts, logger)

	engine := &Engine{
		config:      cfg,
		credentials: b.credentials,
		tokens:      tokens,
		sessions:    sessions,
		lockout:     tracker,
		challenges:  challenges,
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.sink),
		metrics: metrics.New(metrics.Config{Enabled: cfg.Metrics.Enabled}),
		hasher:  hasher,
		policy:  password.NewPolicy(cfg.Password.MinLength, cfg.Password.MaxLength, cfg.Password.SimilarityThreshold),
		totp:    newTOTPManager(cfg.MFA),
		cipher:  cipher,
		log:     logger,
		now:     time.Now,
	}

	onDegrade := func() {
		engine.metricInc(MetricCacheDegraded)
		engine.emitAudit(context.Background(), EventCacheDegraded, false, "", "", ErrCacheUnavailable, nil)
	}
	blacklist.SetOnDegrade(onDegrade)
	sessions.SetOnDegrade(onDegrade)
	challenges.onDegrade = onDegrade

	return engine, nil
}
