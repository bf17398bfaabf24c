package authcore

import (
	"errors"

	internalaudit "github.com/brightfolio/authcore/internal/audit"
	"github.com/brightfolio/authcore/internal/throttle"
	"github.com/brightfolio/authcore/token"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. Construction is allocation-only until
// [Builder.Build]; a builder is single-use.
type Builder struct {
	config Config
	store  CredentialStore
	redis  *redis.Client

	auditSink AuditSink
	alerts    AlertSender
	warn      func(format string, args ...any)

	built bool
}

// New returns a Builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the entire configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the credential store backing every persistent operation.
// Required.
func (b *Builder) WithStore(store CredentialStore) *Builder {
	b.store = store
	return b
}

// WithRedis sets the Redis client used for the maintenance lease. Optional;
// without it [Engine.RunMaintenance] refuses to run.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithAuditSink sets the destination for audit events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithAlertSender sets the fire-and-forget security alert collaborator.
func (b *Builder) WithAlertSender(sender AlertSender) *Builder {
	b.alerts = sender
	return b
}

// WithWarnFunc redirects operational warnings away from the standard logger.
func (b *Builder) WithWarnFunc(warn func(format string, args ...any)) *Builder {
	b.warn = warn
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, wires the components, and returns the
// immutable engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.store == nil {
		return nil, errors.New("credential store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tokens, err := token.NewManager(token.Config{
		AccessTTL:     cfg.Token.AccessTTL,
		SigningMethod: token.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cfg.Token.PrivateKey,
		PublicKey:     cfg.Token.PublicKey,
		Issuer:        cfg.Token.Issuer,
		Audience:      cfg.Token.Audience,
		Leeway:        cfg.Token.Leeway,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:  cfg,
		store:   b.store,
		redis:   b.redis,
		tokens:  tokens,
		alerts:  b.alerts,
		warn:    b.warn,
		metrics: NewMetrics(cfg.Metrics),
	}

	if cfg.SecondFactor.Enabled {
		box, err := newSecretBox(cfg.SecondFactor.EncryptionKey)
		if err != nil {
			return nil, err
		}
		engine.secrets = box
		engine.secondFactor = newSecondFactorManager(cfg.SecondFactor)
	}

	if cfg.Throttle.Enabled {
		engine.throttle = throttle.New(throttle.Config{
			MinInterval:   cfg.Throttle.MinInterval,
			MaxEntryAge:   cfg.Throttle.MaxEntryAge,
			SweepInterval: cfg.Throttle.SweepInterval,
		})
	}

	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	b.built = true
	return engine, nil
}
