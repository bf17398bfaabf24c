package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brightfolio/authcore/internal/lockout"
)

// CheckLoginAllowed asks both lockout machines whether an attempt may
// proceed. A lock that has already passed is implicitly cleared. The account
// scope is consulted first so the caller's countdown names the tighter lock.
func (e *Engine) CheckLoginAllowed(ctx context.Context, email, ip string) (*LockoutDecision, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	now := time.Now().UTC()
	for _, probe := range []struct {
		scope LockScope
		key   string
	}{{ScopeAccount, email}, {ScopeIP, ip}} {
		if probe.key == "" {
			continue
		}

		rec, err := e.store.GetLockout(ctx, probe.scope, probe.key)
		if err != nil {
			return nil, err
		}
		if rec == nil || rec.LockedUntil.IsZero() {
			continue
		}

		if rec.LockedUntil.After(now) {
			e.metricInc(MetricLockoutDenied)
			e.emitAudit(ctx, auditEventLockoutDenied, false, "", email, "", nil, func() map[string]string {
				return map[string]string{"scope": string(probe.scope)}
			})
			return &LockoutDecision{
				Allowed:     false,
				Scope:       probe.scope,
				LockedUntil: rec.LockedUntil,
				RetryAfter:  rec.LockedUntil.Sub(now),
			}, nil
		}

		// Lock has lapsed: clear it on the way through. Best effort — the
		// decision to allow stands even if the cleanup write fails.
		cleared := *rec
		cleared.LockedUntil = time.Time{}
		if err := e.store.UpsertLockout(ctx, &cleared); err != nil {
			e.warnf("authcore: clearing lapsed %s lock for %s failed: %v", probe.scope, probe.key, err)
		}
	}

	return &LockoutDecision{Allowed: true}, nil
}

// RecordFailedAttempt appends the audit row and advances both lockout
// machines. Locks engage when the sliding-window failure count reaches the
// scope's threshold; the account scope escalates on cumulative lock history,
// the IP scope is flat.
func (e *Engine) RecordFailedAttempt(ctx context.Context, email, ip, reason string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	now := time.Now().UTC()
	if err := e.store.InsertLoginAttempt(ctx, &LoginAttemptRecord{
		Email:     email,
		IP:        ip,
		Success:   false,
		Reason:    reason,
		CreatedAt: now,
	}); err != nil {
		// The attempt log is what lock decisions are computed from; losing
		// the write must fail the operation, not silently under-count.
		return fmt.Errorf("record attempt: %w", err)
	}

	e.emitAudit(ctx, auditEventAttemptFailed, false, "", email, "", nil, func() map[string]string {
		return map[string]string{"reason": reason}
	})

	if email != "" {
		if err := e.advanceLockout(ctx, ScopeAccount, email, email, now); err != nil {
			return err
		}
	}
	if ip != "" {
		if err := e.advanceLockout(ctx, ScopeIP, ip, email, now); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) advanceLockout(ctx context.Context, scope LockScope, key, email string, now time.Time) error {
	policy := e.lockoutPolicy(scope)

	rec, err := e.store.GetLockout(ctx, scope, key)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &LockoutRecord{Scope: scope, Key: key}
	}
	if rec.LockedUntil.After(now) {
		// Already locked; the denied attempt changes nothing.
		return nil
	}

	count, err := e.store.CountFailedAttempts(ctx, scope, key, policy.WindowStart(now, rec.WindowResetAt))
	if err != nil {
		return err
	}

	if scope == ScopeAccount && e.config.Lockout.WarnBeforeLock && count == policy.MaxAttempts-1 {
		e.sendAlert(Alert{
			Kind:  AlertLockoutWarning,
			Email: email,
			IP:    clientIPFromContext(ctx),
			Metadata: map[string]string{
				"attempts_remaining": "1",
			},
		})
	}

	rec.LastAttempt = now
	if count < policy.MaxAttempts {
		if err := e.store.UpsertLockout(ctx, rec); err != nil {
			return err
		}
		return nil
	}

	duration := policy.LockDuration(rec.LockCount)
	rec.LockedUntil = now.Add(duration)
	rec.LockCount++
	rec.WindowResetAt = now
	if err := e.store.UpsertLockout(ctx, rec); err != nil {
		// No durable lock, no "locked" answer: surface the failure.
		return fmt.Errorf("persist lockout: %w", err)
	}

	if scope == ScopeAccount {
		e.metricInc(MetricAccountLockout)
		e.sendAlert(Alert{
			Kind:  AlertAccountLocked,
			Email: email,
			IP:    clientIPFromContext(ctx),
			Metadata: map[string]string{
				"locked_until": rec.LockedUntil.Format(time.RFC3339),
				"lock_count":   fmt.Sprintf("%d", rec.LockCount),
			},
		})
	} else {
		e.metricInc(MetricIPLockout)
	}
	e.emitAudit(ctx, auditEventLockoutEngaged, true, "", email, "", nil, func() map[string]string {
		return map[string]string{
			"scope":        string(scope),
			"key":          key,
			"locked_until": rec.LockedUntil.Format(time.RFC3339),
			"lock_count":   fmt.Sprintf("%d", rec.LockCount),
		}
	})
	return nil
}

// RecordSuccessfulAttempt clears active locks and resets the rolling failure
// window for both scopes. Lock history (LockCount) survives: escalation is
// permanent by design.
func (e *Engine) RecordSuccessfulAttempt(ctx context.Context, email, ip string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	now := time.Now().UTC()
	if err := e.store.InsertLoginAttempt(ctx, &LoginAttemptRecord{
		Email:     email,
		IP:        ip,
		Success:   true,
		CreatedAt: now,
	}); err != nil {
		// Pure audit on the success path; never block a valid login on it.
		e.warnf("authcore: recording successful attempt for %s failed: %v", email, err)
	}

	for _, probe := range []struct {
		scope LockScope
		key   string
	}{{ScopeAccount, email}, {ScopeIP, ip}} {
		if probe.key == "" {
			continue
		}

		rec, err := e.store.GetLockout(ctx, probe.scope, probe.key)
		if err != nil {
			return err
		}
		if rec == nil {
			continue
		}

		rec.LockedUntil = time.Time{}
		rec.WindowResetAt = now
		rec.LastAttempt = now
		if err := e.store.UpsertLockout(ctx, rec); err != nil {
			return err
		}
	}

	e.emitAudit(ctx, auditEventAttemptSucceeded, true, "", email, "", nil, nil)
	return nil
}

// UnlockAccount is the administrative override: it clears both the active
// lock and the escalation history for the account scope.
func (e *Engine) UnlockAccount(ctx context.Context, email, actor string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if email == "" {
		return errors.New("email required")
	}

	now := time.Now().UTC()
	rec, err := e.store.GetLockout(ctx, ScopeAccount, email)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &LockoutRecord{Scope: ScopeAccount, Key: email}
	}

	rec.LockedUntil = time.Time{}
	rec.LockCount = 0
	rec.WindowResetAt = now
	if err := e.store.UpsertLockout(ctx, rec); err != nil {
		return err
	}

	e.metricInc(MetricAccountUnlocked)
	e.emitAudit(ctx, auditEventAccountUnlocked, true, "", email, "", nil, func() map[string]string {
		return map[string]string{"actor": actor}
	})
	return nil
}

func (e *Engine) lockoutPolicy(scope LockScope) lockout.Policy {
	cfg := e.config.Lockout.Account
	if scope == ScopeIP {
		cfg = e.config.Lockout.IP
	}
	return lockout.Policy{
		MaxAttempts:   cfg.MaxAttempts,
		AttemptWindow: cfg.AttemptWindow,
		BaseDuration:  cfg.BaseDuration,
		MaxDuration:   cfg.MaxDuration,
		Multiplier:    cfg.Multiplier,
		Escalates:     cfg.Escalates,
	}
}
