package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brightfolio/authcore/token"
)

// CreateSession mints a token pair for a user whose first (and, when
// required, second) factor already succeeded. The session row is persisted
// before any token is returned: a store failure fails the whole login so no
// unrevocable token can ever exist.
func (e *Engine) CreateSession(ctx context.Context, userID, email string, ac AuthContext) (*TokenPair, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, errors.New("user id required")
	}

	sid, err := token.NewSessionID()
	if err != nil {
		return nil, err
	}
	secret, err := token.NewRefreshSecret()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rec := &SessionRecord{
		ID:               sid.String(),
		UserID:           userID,
		Email:            email,
		RefreshTokenHash: token.HashRefreshSecret(secret),
		ExpiresAt:        now.Add(e.config.Token.AccessTTL),
		RefreshExpiresAt: now.Add(e.config.Refresh.TTL),
		LastActivity:     now,
		CreatedAt:        now,
		IP:               ac.IP,
		UserAgent:        ac.UserAgent,
		DeviceName:       ac.DeviceName,
		EntryPoint:       ac.EntryPoint,
	}

	if err := e.store.CreateSession(ctx, rec); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	access, accessExp, err := e.tokens.CreateAccess(userID, email, rec.ID, now)
	if err != nil {
		// Row exists but its secret never left this function; the retention
		// sweep collects it.
		return nil, err
	}

	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventSessionCreated, true, userID, email, rec.ID, nil, func() map[string]string {
		return map[string]string{"entry_point": ac.EntryPoint}
	})

	return &TokenPair{
		SessionID:        rec.ID,
		AccessToken:      access,
		RefreshToken:     token.EncodeRefreshSecret(secret),
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: rec.RefreshExpiresAt,
	}, nil
}

// ValidateAccessToken verifies signature and expiry, requires the session id
// claim, and checks the backing session is live and owned by the token
// subject. The last-activity write happens asynchronously through the
// throttle; it never blocks or fails the request.
func (e *Engine) ValidateAccessToken(ctx context.Context, tokenString string) (*TokenIdentity, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.VerifyAccess(tokenString)
	if err != nil {
		e.metricInc(MetricValidateFailure)
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	sess, err := e.store.GetSession(ctx, claims.SID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		e.metricInc(MetricValidateFailure)
		return nil, ErrSessionNotFound
	}
	if sess.IsRevoked {
		e.metricInc(MetricValidateFailure)
		e.emitAudit(ctx, auditEventValidateRejected, false, claims.UID, claims.Email, claims.SID, ErrSessionRevoked, func() map[string]string {
			return map[string]string{"revoked_reason": sess.RevokedReason}
		})
		return nil, ErrSessionRevoked
	}
	if sess.UserID != claims.UID {
		e.metricInc(MetricValidateFailure)
		e.emitAudit(ctx, auditEventValidateRejected, false, claims.UID, claims.Email, claims.SID, ErrTokenInvalid, nil)
		return nil, ErrTokenInvalid
	}

	e.touchActivity(sess.ID)
	e.metricInc(MetricValidateSuccess)

	return &TokenIdentity{
		UserID:    sess.UserID,
		Email:     sess.Email,
		SessionID: sess.ID,
	}, nil
}

// touchActivity persists last-seen asynchronously when the throttle says a
// write is due. Best effort: failures are logged and swallowed.
func (e *Engine) touchActivity(sessionID string) {
	now := time.Now().UTC()
	if e.throttle != nil && !e.throttle.ShouldWrite(sessionID, now) {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.store.TouchSessionActivity(ctx, sessionID, now); err != nil {
			e.warnf("authcore: activity touch for session %s failed: %v", sessionID, err)
			return
		}
		e.metricInc(MetricActivityTouch)
	}()
}

// RevokeSession marks one session terminal. Idempotent: revoking an already
// revoked session succeeds without changing the stored reason.
func (e *Engine) RevokeSession(ctx context.Context, sessionID, reason string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if reason == "" {
		reason = RevokedReasonLogout
	}

	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return ErrSessionNotFound
	}
	if !sess.IsRevoked {
		if err := e.store.RevokeSession(ctx, sessionID, reason, time.Now().UTC()); err != nil {
			return err
		}
	}

	if e.throttle != nil {
		e.throttle.Forget(sessionID)
	}
	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventSessionRevoked, true, sess.UserID, sess.Email, sessionID, nil, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return nil
}

// RevokeAllUserSessions terminates every live session the user has and
// returns how many were affected. Used for logout-everywhere and as the
// blast-radius response to token theft.
func (e *Engine) RevokeAllUserSessions(ctx context.Context, userID, reason string) (int, error) {
	if e == nil || e.store == nil {
		return 0, ErrEngineNotReady
	}
	if reason == "" {
		reason = RevokedReasonLogoutAll
	}

	count, err := e.store.RevokeUserSessions(ctx, userID, reason, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	e.metricInc(MetricSessionsRevokedAll)
	e.emitAudit(ctx, auditEventSessionsRevokedAll, true, userID, "", "", nil, func() map[string]string {
		return map[string]string{"reason": reason, "count": fmt.Sprintf("%d", count)}
	})
	return count, nil
}
