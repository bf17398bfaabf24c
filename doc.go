// Package authcore implements the session and credential-security core of the
// Brightfolio platform: short-lived signed access tokens bound to server-side
// sessions, refresh-token rotation with theft detection, progressive
// account/IP lockout, and TOTP second-factor verification bridged through
// ephemeral pending sessions.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// the [CredentialStore] integration interface, and value types (TokenPair,
// LockoutDecision, SecondFactorSetup, etc.). Internal coordination — audit
// dispatch, lockout policy math, activity throttling — lives under internal/
// and is never exported.
//
// Login entry points (magic link, OAuth callback, direct credential) are
// external collaborators. They consult the lockout engine before an attempt,
// create sessions or pending second-factor bridges on success, and validate
// access tokens on every authenticated request. The HTTP layer, outbound
// email delivery, and the OAuth handshake itself are outside this module.
//
// # What this package must NOT do
//
//   - Expose storage clients or encoding details in its public API.
//   - Hand out tokens before the backing session row is durable.
//   - Let a side-effect failure (alert email, audit write) fail a primary
//     operation.
package authcore
