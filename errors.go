package authcore

import "errors"

var (
	// ErrEngineNotReady is returned when an Engine method is called on a nil
	// or incompletely built engine.
	ErrEngineNotReady = errors.New("engine not initialized")

	// ErrInvalidCredential is the generic rejection for unknown or malformed
	// refresh secrets and bad second-factor codes. It deliberately does not
	// distinguish "never existed" from "expired".
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrTokenInvalid is returned when an access token fails signature or
	// claim validation, including tokens without a session id.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrSessionNotFound is returned when a session row does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionRevoked is returned when the backing session has been revoked.
	ErrSessionRevoked = errors.New("session revoked")

	// ErrSessionExpired is returned when the refresh window has passed.
	ErrSessionExpired = errors.New("session expired")

	// ErrMaxRotationExceeded is returned when a session has aged out by
	// rotation count. The session is revoked as a side effect.
	ErrMaxRotationExceeded = errors.New("session rotation limit exceeded")

	// ErrTokenTheftDetected is returned when a refresh secret from before the
	// last rotation is replayed outside the grace window. Every session of
	// the affected user is revoked before this error is returned.
	ErrTokenTheftDetected = errors.New("token theft detected")

	// ErrRefreshHashConflict is returned by CredentialStore implementations
	// when a conditional rotation finds the stored hash already changed.
	ErrRefreshHashConflict = errors.New("refresh hash conflict")

	// ErrAccountLocked is returned while an account-scope lockout is active.
	ErrAccountLocked = errors.New("account locked")

	// ErrIPLocked is returned while an IP-scope lockout is active.
	ErrIPLocked = errors.New("ip locked")

	// ErrSecondFactorDisabled is returned when the second-factor feature is
	// switched off in configuration.
	ErrSecondFactorDisabled = errors.New("second factor feature disabled")

	// ErrSecondFactorNotConfigured is returned when the user has no
	// second-factor enrollment.
	ErrSecondFactorNotConfigured = errors.New("second factor not configured")

	// ErrSecondFactorAlreadyEnabled is returned when setup is requested for a
	// user whose second factor is already verified and enabled.
	ErrSecondFactorAlreadyEnabled = errors.New("second factor already enabled")

	// ErrSecondFactorInvalid is returned for a code that matches neither the
	// time-based secret nor an unused backup code.
	ErrSecondFactorInvalid = errors.New("invalid second factor code")

	// ErrPendingSecondFactorNotFound covers missing, expired, and already
	// consumed pending sessions identically.
	ErrPendingSecondFactorNotFound = errors.New("pending second factor session not found")

	// ErrStoreUnavailable wraps infrastructure failures from the credential
	// store. Security-critical writes surface it to the caller; best-effort
	// side effects swallow it.
	ErrStoreUnavailable = errors.New("credential store unavailable")
)
