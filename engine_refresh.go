package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brightfolio/authcore/token"
)

// RefreshTokens executes the rotation protocol. The happy path is a
// conditional hash swap on the session row; a secret from exactly one
// rotation ago is honored inside the grace window (two browser tabs racing a
// refresh is expected, not an attack); the same secret outside the window is
// treated as theft and revokes every session the user has.
func (e *Engine) RefreshTokens(ctx context.Context, refreshToken string, ac AuthContext) (*TokenPair, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	secret, err := token.DecodeRefreshSecret(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrInvalidCredential
	}

	now := time.Now().UTC()
	providedHash := token.HashRefreshSecret(secret)

	sess, err := e.store.GetSessionByRefreshHash(ctx, providedHash)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		pair, err := e.rotateCurrent(ctx, sess, providedHash, now)
		if !errors.Is(err, ErrRefreshHashConflict) {
			return pair, err
		}
		// Lost the swap to a concurrent refresh; the presented hash is now
		// the previous hash and falls through to the stale-secret path.
	}

	return e.refreshFromStale(ctx, providedHash, now)
}

// rotateCurrent handles a secret that matches the live hash: enforce expiry
// and rotation budget, then swap in the next hash conditionally.
func (e *Engine) rotateCurrent(ctx context.Context, sess *SessionRecord, providedHash [32]byte, now time.Time) (*TokenPair, error) {
	if sess.IsRevoked {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshRejected, false, sess.UserID, sess.Email, sess.ID, ErrSessionRevoked, nil)
		return nil, ErrSessionRevoked
	}
	if now.After(sess.RefreshExpiresAt) {
		e.revokeForViolation(ctx, sess, RevokedReasonExpired, now)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshRejected, false, sess.UserID, sess.Email, sess.ID, ErrSessionExpired, nil)
		return nil, ErrSessionExpired
	}
	if sess.RotationCount >= e.config.Refresh.MaxRotationCount {
		e.revokeForViolation(ctx, sess, RevokedReasonMaxRotation, now)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshRejected, false, sess.UserID, sess.Email, sess.ID, ErrMaxRotationExceeded, nil)
		return nil, ErrMaxRotationExceeded
	}

	next, err := token.NewRefreshSecret()
	if err != nil {
		return nil, err
	}

	rotated, err := e.store.RotateSessionRefreshHash(
		ctx,
		sess.ID,
		providedHash,
		token.HashRefreshSecret(next),
		now,
		now.Add(e.config.Token.AccessTTL),
	)
	if err != nil {
		if errors.Is(err, ErrRefreshHashConflict) {
			return nil, ErrRefreshHashConflict
		}
		return nil, fmt.Errorf("rotate session: %w", err)
	}

	pair, err := e.mintPair(rotated, next, now)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventSessionRefreshed, true, rotated.UserID, rotated.Email, rotated.ID, nil, func() map[string]string {
		return map[string]string{"rotation_count": fmt.Sprintf("%d", rotated.RotationCount)}
	})
	return pair, nil
}

// refreshFromStale handles a secret that no live hash matches: either a
// benign race (the secret was current one rotation ago, moments ago) or a
// replay of a stolen secret.
func (e *Engine) refreshFromStale(ctx context.Context, providedHash [32]byte, now time.Time) (*TokenPair, error) {
	sess, err := e.store.GetSessionByPreviousRefreshHash(ctx, providedHash)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.IsRevoked {
		// Unknown secret: nothing is revealed about whether it ever existed.
		e.metricInc(MetricRefreshFailure)
		return nil, ErrInvalidCredential
	}
	if now.After(sess.RefreshExpiresAt) {
		e.revokeForViolation(ctx, sess, RevokedReasonExpired, now)
		e.metricInc(MetricRefreshFailure)
		return nil, ErrSessionExpired
	}

	if now.Sub(sess.LastRotatedAt) >= e.config.Refresh.GracePeriod {
		return nil, e.respondToTheft(ctx, sess, now)
	}

	next, err := token.NewRefreshSecret()
	if err != nil {
		return nil, err
	}

	// Reissue against the same session state: the previous hash and the
	// rotation timestamp stay put so the window cannot extend itself, and at
	// most two hashes are ever live.
	reissued, err := e.store.ReissueRefreshHashInGrace(
		ctx,
		sess.ID,
		providedHash,
		token.HashRefreshSecret(next),
		now,
		now.Add(e.config.Token.AccessTTL),
	)
	if err != nil {
		if errors.Is(err, ErrRefreshHashConflict) {
			e.metricInc(MetricRefreshFailure)
			return nil, ErrInvalidCredential
		}
		return nil, fmt.Errorf("grace reissue: %w", err)
	}

	pair, err := e.mintPair(reissued, next, now)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRefreshGrace)
	e.emitAudit(ctx, auditEventRefreshGrace, true, reissued.UserID, reissued.Email, reissued.ID, nil, nil)
	return pair, nil
}

// respondToTheft is the blast-radius response: every session of the affected
// user is revoked, a high-priority audit entry is written, and the caller is
// forced to re-authenticate everywhere.
func (e *Engine) respondToTheft(ctx context.Context, sess *SessionRecord, now time.Time) error {
	count, err := e.store.RevokeUserSessions(ctx, sess.UserID, RevokedReasonTheft, now)
	if err != nil {
		// The revocation is the security response; if it cannot be persisted
		// the failure must surface, not the softer theft error.
		return fmt.Errorf("theft response: %w", err)
	}

	e.metricInc(MetricTheftDetected)
	e.emitAudit(ctx, auditEventTokenTheft, false, sess.UserID, sess.Email, sess.ID, ErrTokenTheftDetected, func() map[string]string {
		return map[string]string{
			"sessions_revoked": fmt.Sprintf("%d", count),
			"last_rotated_at":  sess.LastRotatedAt.Format(time.RFC3339),
		}
	})
	e.sendAlert(Alert{
		Kind:   AlertTokenTheft,
		UserID: sess.UserID,
		Email:  sess.Email,
		IP:     clientIPFromContext(ctx),
		Metadata: map[string]string{
			"session_id": sess.ID,
		},
	})

	return ErrTokenTheftDetected
}

func (e *Engine) revokeForViolation(ctx context.Context, sess *SessionRecord, reason string, now time.Time) {
	if sess.IsRevoked {
		return
	}
	if err := e.store.RevokeSession(ctx, sess.ID, reason, now); err != nil {
		e.warnf("authcore: revoking session %s for %s failed: %v", sess.ID, reason, err)
	}
}

func (e *Engine) mintPair(sess *SessionRecord, secret [token.RefreshSecretSize]byte, now time.Time) (*TokenPair, error) {
	access, accessExp, err := e.tokens.CreateAccess(sess.UserID, sess.Email, sess.ID, now)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		SessionID:        sess.ID,
		AccessToken:      access,
		RefreshToken:     token.EncodeRefreshSecret(secret),
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: sess.RefreshExpiresAt,
	}, nil
}
