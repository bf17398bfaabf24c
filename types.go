package authcore

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/brightfolio/authcore/internal/audit"
)

// LockScope selects which lockout state machine a key belongs to. The two
// scopes share one implementation but keep fully independent state.
type LockScope string

const (
	// ScopeAccount keys lockout state by account identifier (email).
	ScopeAccount LockScope = "account"
	// ScopeIP keys lockout state by network address.
	ScopeIP LockScope = "ip"
)

// Revocation reasons stamped onto session rows. Free-form reasons are
// accepted; these cover every transition the engine performs itself.
const (
	RevokedReasonLogout      = "logout"
	RevokedReasonLogoutAll   = "logout_all"
	RevokedReasonTheft       = "token_theft"
	RevokedReasonExpired     = "refresh_expired"
	RevokedReasonMaxRotation = "max_rotation"
	RevokedReasonAdmin       = "admin"
)

// AuthContext carries device and network metadata captured by the login
// entry point. It is persisted on the session row and attached to audit
// events; it never influences the token protocol itself.
type AuthContext struct {
	IP         string
	UserAgent  string
	DeviceName string
	EntryPoint string // "magic_link", "oauth_google", ...
}

// TokenPair is returned by [Engine.CreateSession] and [Engine.RefreshTokens].
// RefreshToken is the opaque secret in transport encoding; it is never stored
// and never logged.
type TokenPair struct {
	SessionID        string
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// TokenIdentity is the result of a successful [Engine.ValidateAccessToken].
type TokenIdentity struct {
	UserID    string
	Email     string
	SessionID string
}

// LockoutDecision is returned by [Engine.CheckLoginAllowed]. When Allowed is
// false, Scope names the machine that denied and RetryAfter carries the
// remaining lockout time for caller-side countdown display.
type LockoutDecision struct {
	Allowed     bool
	Scope       LockScope
	LockedUntil time.Time
	RetryAfter  time.Duration
}

// SecondFactorSetup is returned by [Engine.GenerateSecondFactorSetup]. The
// plaintext backup codes appear here exactly once; only salted hashes are
// persisted.
type SecondFactorSetup struct {
	SecretBase32 string
	OTPAuthURL   string
	BackupCodes  []string
}

// SecondFactorResult reports how a verification succeeded.
type SecondFactorResult struct {
	Valid          bool
	UsedBackupCode bool
	BackupRemain   int // unused backup codes left after this verification
}

// PendingSecondFactor is the ephemeral hand-off between first-factor success
// and second-factor completion. Single use by construction.
type PendingSecondFactor struct {
	ID        string
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// MaintenanceReport summarizes one retention sweep.
type MaintenanceReport struct {
	Skipped         bool // another instance held the lease
	SessionsDeleted int
	PendingDeleted  int
	AttemptsDeleted int
}

// SessionRecord is the persisted shape of one logical login. Mutated only by
// the engine; once IsRevoked is set the row is terminal.
type SessionRecord struct {
	ID     string
	UserID string
	Email  string

	RefreshTokenHash         [32]byte
	PreviousRefreshTokenHash [32]byte // zero until the first rotation

	IsRevoked     bool
	RevokedReason string
	RevokedAt     time.Time

	ExpiresAt        time.Time // access/session soft expiry
	RefreshExpiresAt time.Time // hard expiry
	RotationCount    int
	LastRotatedAt    time.Time
	LastActivity     time.Time
	CreatedAt        time.Time

	IP         string
	UserAgent  string
	DeviceName string
	EntryPoint string
}

// LockoutRecord is one row per (scope, key). LockCount is cumulative and
// historical: successes clear LockedUntil but never LockCount, so repeat
// offenders keep escalating.
type LockoutRecord struct {
	Scope         LockScope
	Key           string
	LockedUntil   time.Time // zero = not locked
	LockCount     int
	LastAttempt   time.Time
	WindowResetAt time.Time // failures before this instant do not count
}

// LoginAttemptRecord is an append-only audit row used for sliding-window
// failure counts. Never mutated after insert.
type LoginAttemptRecord struct {
	Email     string
	IP        string
	Success   bool
	Reason    string
	CreatedAt time.Time
}

// PendingSecondFactorRecord is the stored form of [PendingSecondFactor].
type PendingSecondFactorRecord struct {
	ID        string
	UserID    string
	Email     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// SecondFactorRecord holds one user's time-based secret, encrypted at rest.
// Enabled flips only after the user proves possession with one valid code.
type SecondFactorRecord struct {
	UserID          string
	EncryptedSecret []byte
	Enabled         bool
	CreatedAt       time.Time
	ConfirmedAt     time.Time
}

// BackupCodeRecord stores the salted hash of a single-use backup code. The
// plaintext is never persisted.
type BackupCodeRecord struct {
	ID     string
	UserID string
	Salt   []byte
	Hash   []byte
	Used   bool
	UsedAt time.Time
}

// CredentialStore is the integration interface callers implement to back the
// engine with their relational database. Single-row read-modify-write
// sequences must be atomic; RotateSessionRefreshHash and
// ReissueRefreshHashInGrace are conditional updates keyed on the hash value
// they expect to replace and must return [ErrRefreshHashConflict] when the
// stored value has moved on.
//
// Lookup methods return (nil, nil) for absent rows; infrastructure failures
// wrap [ErrStoreUnavailable].
type CredentialStore interface {
	CreateSession(ctx context.Context, rec *SessionRecord) error
	GetSession(ctx context.Context, sessionID string) (*SessionRecord, error)
	GetSessionByRefreshHash(ctx context.Context, hash [32]byte) (*SessionRecord, error)
	GetSessionByPreviousRefreshHash(ctx context.Context, hash [32]byte) (*SessionRecord, error)

	// RotateSessionRefreshHash moves the current hash into the previous slot
	// and installs next, bumping rotation count and stamping rotation and
	// activity times, all conditional on the current hash still equalling
	// expected and the row not being revoked.
	RotateSessionRefreshHash(ctx context.Context, sessionID string, expected, next [32]byte, now time.Time, newExpiry time.Time) (*SessionRecord, error)

	// ReissueRefreshHashInGrace installs next as the current hash while
	// leaving the previous hash and the rotation timestamp untouched,
	// conditional on the previous hash still equalling expectedPrevious.
	// Used only inside the refresh grace window.
	ReissueRefreshHashInGrace(ctx context.Context, sessionID string, expectedPrevious, next [32]byte, now time.Time, newExpiry time.Time) (*SessionRecord, error)

	RevokeSession(ctx context.Context, sessionID, reason string, at time.Time) error
	RevokeUserSessions(ctx context.Context, userID, reason string, at time.Time) (int, error)
	TouchSessionActivity(ctx context.Context, sessionID string, at time.Time) error
	DeleteExpiredSessions(ctx context.Context, now time.Time, revokedRetention time.Duration) (int, error)

	GetLockout(ctx context.Context, scope LockScope, key string) (*LockoutRecord, error)
	UpsertLockout(ctx context.Context, rec *LockoutRecord) error
	InsertLoginAttempt(ctx context.Context, rec *LoginAttemptRecord) error
	CountFailedAttempts(ctx context.Context, scope LockScope, key string, since time.Time) (int, error)
	DeleteLoginAttemptsBefore(ctx context.Context, cutoff time.Time) (int, error)

	CreatePendingSecondFactor(ctx context.Context, rec *PendingSecondFactorRecord) error
	GetPendingSecondFactor(ctx context.Context, id string) (*PendingSecondFactorRecord, error)
	DeletePendingSecondFactor(ctx context.Context, id string) (bool, error)
	DeleteExpiredPendingSecondFactor(ctx context.Context, now time.Time) (int, error)

	GetSecondFactor(ctx context.Context, userID string) (*SecondFactorRecord, error)
	SaveSecondFactor(ctx context.Context, rec *SecondFactorRecord) error
	SetSecondFactorEnabled(ctx context.Context, userID string, at time.Time) error
	DeleteSecondFactor(ctx context.Context, userID string) error
	GetBackupCodes(ctx context.Context, userID string) ([]BackupCodeRecord, error)
	ReplaceBackupCodes(ctx context.Context, userID string, codes []BackupCodeRecord) error
	MarkBackupCodeUsed(ctx context.Context, userID, codeID string, at time.Time) (bool, error)
}

// AlertKind classifies security alerts handed to the [AlertSender].
type AlertKind string

const (
	// AlertLockoutWarning fires one failed attempt before an account lock.
	AlertLockoutWarning AlertKind = "lockout_warning"
	// AlertAccountLocked fires when an account lock engages.
	AlertAccountLocked AlertKind = "account_locked"
	// AlertTokenTheft fires on refresh-token replay outside the grace window.
	AlertTokenTheft AlertKind = "token_theft"
)

// Alert is a security notification dispatched fire-and-forget. Delivery
// failures are logged and swallowed; they never fail the triggering
// operation.
type Alert struct {
	Kind     AlertKind
	UserID   string
	Email    string
	IP       string
	Metadata map[string]string
}

// AlertSender delivers security alerts (email, push) to the affected user.
// Implementations live outside this module.
type AlertSender interface {
	Send(ctx context.Context, alert Alert) error
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer], one object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
