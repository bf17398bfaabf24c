package authcore

import (
	"context"
	"time"
)

// Audit event types emitted by the engine. Stable strings: downstream SIEM
// rules match on them.
const (
	auditEventSessionCreated     = "session_created"
	auditEventSessionRefreshed   = "session_refreshed"
	auditEventRefreshGrace       = "refresh_grace_reissue"
	auditEventTokenTheft         = "token_theft_detected"
	auditEventRefreshRejected    = "refresh_rejected"
	auditEventValidateRejected   = "access_token_rejected"
	auditEventSessionRevoked     = "session_revoked"
	auditEventSessionsRevokedAll = "sessions_revoked_all"
	auditEventAttemptFailed      = "login_attempt_failed"
	auditEventAttemptSucceeded   = "login_attempt_succeeded"
	auditEventLockoutEngaged     = "lockout_engaged"
	auditEventLockoutDenied      = "lockout_denied"
	auditEventAccountUnlocked    = "account_unlocked"
	auditEventSecondFactorSetup  = "second_factor_setup_generated"
	auditEventSecondFactorOn     = "second_factor_enabled"
	auditEventSecondFactorOff    = "second_factor_disabled"
	auditEventSecondFactorOK     = "second_factor_verified"
	auditEventSecondFactorFail   = "second_factor_failed"
	auditEventBackupCodeUsed     = "backup_code_used"
	auditEventBackupCodesReset   = "backup_codes_regenerated"
	auditEventPendingCreated     = "pending_second_factor_created"
	auditEventPendingConsumed    = "pending_second_factor_consumed"
	auditEventMaintenanceRun     = "maintenance_completed"
)

// emitAudit queues a security event without blocking the caller. The
// metadata builder runs only when audit is enabled.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID, email, sessionID string,
	opErr error,
	metadata func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Email:     email,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
	}
	if opErr != nil {
		event.Error = opErr.Error()
	}
	if metadata != nil {
		event.Metadata = metadata()
	}

	e.audit.Emit(ctx, event)
}

// sendAlert dispatches a security notification fire-and-forget. Delivery
// failure is logged and swallowed: alerts never fail the primary operation.
func (e *Engine) sendAlert(alert Alert) {
	if e == nil || e.alerts == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.alerts.Send(ctx, alert); err != nil {
			e.warnf("authcore: alert %s delivery failed: %v", string(alert.Kind), err)
		}
	}()
}
