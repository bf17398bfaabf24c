package authcore

import (
	"errors"
	"time"
)

// Config defines every policy knob of the engine. Zero values are filled from
// [defaultConfig] by [New]; [Config.Validate] runs during [Builder.Build].
type Config struct {
	Token        TokenConfig
	Refresh      RefreshConfig
	Lockout      LockoutConfig
	SecondFactor SecondFactorConfig
	Pending      PendingConfig
	Throttle     ThrottleConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
	Maintenance  MaintenanceConfig
}

// TokenConfig controls access-token signing and verification.
type TokenConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// RefreshConfig controls the refresh-token rotation protocol.
type RefreshConfig struct {
	// TTL is the hard session expiry. The original platform carried two
	// different values depending on entry point; this is deliberately a
	// single knob.
	TTL time.Duration
	// GracePeriod tolerates a benign double-refresh race: a secret from one
	// rotation ago is honored within this window after the last rotation.
	GracePeriod time.Duration
	// MaxRotationCount revokes sessions that have rotated this many times.
	MaxRotationCount int
}

// LockoutPolicyConfig parameterizes one lockout state machine.
type LockoutPolicyConfig struct {
	MaxAttempts   int
	AttemptWindow time.Duration
	BaseDuration  time.Duration
	MaxDuration   time.Duration
	Multiplier    float64
	// Escalates applies Multiplier^(historical lock count) to BaseDuration.
	// Account scope escalates; IP scope is flat per occurrence.
	Escalates bool
}

// LockoutConfig holds the two independently keyed lockout machines.
type LockoutConfig struct {
	Account LockoutPolicyConfig
	IP      LockoutPolicyConfig
	// WarnBeforeLock sends an AlertLockoutWarning one failure before the
	// account threshold.
	WarnBeforeLock bool
}

// SecondFactorConfig controls TOTP enrollment and verification.
type SecondFactorConfig struct {
	Enabled bool
	Issuer  string
	Digits  int
	Period  int
	// Skew is the tolerance in time-steps on either side of now.
	Skew uint
	// EncryptionKey is the 32-byte AES-256-GCM key protecting stored secrets.
	EncryptionKey    []byte
	BackupCodeCount  int
	BackupCodeLength int
}

// PendingConfig controls the pending second-factor bridge.
type PendingConfig struct {
	TTL time.Duration
}

// ThrottleConfig controls the in-process activity de-duplication cache.
type ThrottleConfig struct {
	Enabled bool
	// MinInterval is the floor between two persisted last-activity writes
	// for the same session.
	MinInterval   time.Duration
	MaxEntryAge   time.Duration
	SweepInterval time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process atomic counters.
type MetricsConfig struct {
	Enabled bool
}

// MaintenanceConfig controls the retention sweep and its distributed lease.
type MaintenanceConfig struct {
	LeaseKey         string
	LeaseTTL         time.Duration
	RevokedRetention time.Duration
	AttemptRetention time.Duration
}

// DefaultConfig returns the configuration [New] starts from. Callers that
// need to override a few knobs take this, mutate, and pass the result to
// [Builder.WithConfig].
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "ed25519",
			Issuer:        "brightfolio",
			Leeway:        30 * time.Second,
		},
		Refresh: RefreshConfig{
			TTL:              30 * 24 * time.Hour,
			GracePeriod:      30 * time.Second,
			MaxRotationCount: 500,
		},
		Lockout: LockoutConfig{
			Account: LockoutPolicyConfig{
				MaxAttempts:   5,
				AttemptWindow: 15 * time.Minute,
				BaseDuration:  15 * time.Minute,
				MaxDuration:   24 * time.Hour,
				Multiplier:    2,
				Escalates:     true,
			},
			IP: LockoutPolicyConfig{
				MaxAttempts:   15,
				AttemptWindow: 15 * time.Minute,
				BaseDuration:  30 * time.Minute,
				MaxDuration:   30 * time.Minute,
				Multiplier:    1,
				Escalates:     false,
			},
			WarnBeforeLock: true,
		},
		SecondFactor: SecondFactorConfig{
			Enabled:          false,
			Issuer:           "Brightfolio",
			Digits:           6,
			Period:           30,
			Skew:             1,
			BackupCodeCount:  10,
			BackupCodeLength: 10,
		},
		Pending: PendingConfig{
			TTL: 5 * time.Minute,
		},
		Throttle: ThrottleConfig{
			Enabled:       true,
			MinInterval:   5 * time.Minute,
			MaxEntryAge:   30 * time.Minute,
			SweepInterval: 10 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
		Maintenance: MaintenanceConfig{
			LeaseKey:         "authcore:maintenance",
			LeaseTTL:         5 * time.Minute,
			RevokedRetention: 30 * 24 * time.Hour,
			AttemptRetention: 30 * 24 * time.Hour,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	out.SecondFactor.EncryptionKey = cloneBytes(cfg.SecondFactor.EncryptionKey)
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

// Validate checks cross-field consistency. It is called by [Builder.Build];
// callers only need it when constructing configs dynamically.
func (c *Config) Validate() error {
	if c.Token.AccessTTL <= 0 {
		return errors.New("token: access TTL must be positive")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("token: leeway out of range")
	}
	switch c.Token.SigningMethod {
	case "hs256", "ed25519":
	default:
		return errors.New("token: unsupported signing method")
	}
	if c.Refresh.TTL <= c.Token.AccessTTL {
		return errors.New("refresh: TTL must exceed access TTL")
	}
	if c.Refresh.GracePeriod <= 0 || c.Refresh.GracePeriod >= c.Refresh.TTL {
		return errors.New("refresh: grace period out of range")
	}
	if c.Refresh.MaxRotationCount <= 0 {
		return errors.New("refresh: max rotation count must be positive")
	}
	for _, p := range []struct {
		name string
		cfg  LockoutPolicyConfig
	}{{"account", c.Lockout.Account}, {"ip", c.Lockout.IP}} {
		if p.cfg.MaxAttempts <= 0 {
			return errors.New("lockout: " + p.name + " max attempts must be positive")
		}
		if p.cfg.AttemptWindow <= 0 {
			return errors.New("lockout: " + p.name + " attempt window must be positive")
		}
		if p.cfg.BaseDuration <= 0 || p.cfg.MaxDuration < p.cfg.BaseDuration {
			return errors.New("lockout: " + p.name + " durations out of range")
		}
		if p.cfg.Escalates && p.cfg.Multiplier < 1 {
			return errors.New("lockout: " + p.name + " multiplier must be >= 1")
		}
	}
	if c.SecondFactor.Enabled {
		if len(c.SecondFactor.EncryptionKey) != 32 {
			return errors.New("second factor: encryption key must be 32 bytes")
		}
		if c.SecondFactor.Digits < 6 || c.SecondFactor.Digits > 8 {
			return errors.New("second factor: digits out of range")
		}
		if c.SecondFactor.Period <= 0 {
			return errors.New("second factor: period must be positive")
		}
		if c.SecondFactor.BackupCodeCount <= 0 || c.SecondFactor.BackupCodeLength < 8 {
			return errors.New("second factor: backup code shape out of range")
		}
	}
	if c.Pending.TTL <= 0 || c.Pending.TTL > time.Hour {
		return errors.New("pending: TTL out of range")
	}
	if c.Throttle.Enabled {
		if c.Throttle.MinInterval <= 0 {
			return errors.New("throttle: min interval must be positive")
		}
		if c.Throttle.MaxEntryAge < c.Throttle.MinInterval {
			return errors.New("throttle: max entry age below min interval")
		}
	}
	if c.Maintenance.LeaseTTL <= 0 {
		return errors.New("maintenance: lease TTL must be positive")
	}
	return nil
}
