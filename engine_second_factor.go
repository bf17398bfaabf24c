package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// GenerateSecondFactorSetup provisions a fresh time-based secret and a new
// set of backup codes for the account. The secret is persisted encrypted and
// disabled; it only starts guarding logins after [Engine.EnableSecondFactor]
// confirms the user can produce a valid code. Calling this again before
// enablement replaces the pending secret.
func (e *Engine) GenerateSecondFactorSetup(ctx context.Context, userID, email string) (*SecondFactorSetup, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if e.secondFactor == nil {
		return nil, ErrSecondFactorDisabled
	}
	if userID == "" {
		return nil, errors.New("user id required")
	}

	existing, err := e.store.GetSecondFactor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Enabled {
		return nil, ErrSecondFactorAlreadyEnabled
	}

	secret, url, err := e.secondFactor.GenerateSecret(email)
	if err != nil {
		return nil, err
	}
	sealed, err := e.secrets.Seal([]byte(secret))
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := e.store.SaveSecondFactor(ctx, &SecondFactorRecord{
		UserID:          userID,
		EncryptedSecret: sealed,
		Enabled:         false,
		CreatedAt:       now,
	}); err != nil {
		return nil, fmt.Errorf("save second factor: %w", err)
	}

	plain, records, err := newBackupCodes(userID, e.config.SecondFactor.BackupCodeCount, e.config.SecondFactor.BackupCodeLength)
	if err != nil {
		return nil, err
	}
	if err := e.store.ReplaceBackupCodes(ctx, userID, records); err != nil {
		return nil, fmt.Errorf("save backup codes: %w", err)
	}

	e.metricInc(MetricSecondFactorSetup)
	e.emitAudit(ctx, auditEventSecondFactorSetup, true, userID, email, "", nil, nil)

	return &SecondFactorSetup{
		SecretBase32: secret,
		OTPAuthURL:   url,
		BackupCodes:  plain,
	}, nil
}

// EnableSecondFactor flips the pending secret live after the user proves
// possession of the enrolled device with one valid time-based code. Backup
// codes are not accepted here.
func (e *Engine) EnableSecondFactor(ctx context.Context, userID, code string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if e.secondFactor == nil {
		return ErrSecondFactorDisabled
	}

	rec, err := e.store.GetSecondFactor(ctx, userID)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrSecondFactorNotConfigured
	}
	if rec.Enabled {
		return ErrSecondFactorAlreadyEnabled
	}

	secret, err := e.secrets.Open(rec.EncryptedSecret)
	if err != nil {
		return fmt.Errorf("decrypt second factor secret: %w", err)
	}

	now := time.Now().UTC()
	if !e.secondFactor.VerifyCode(string(secret), code, now) {
		e.metricInc(MetricSecondFactorFailure)
		e.emitAudit(ctx, auditEventSecondFactorFail, false, userID, "", "", ErrSecondFactorInvalid, func() map[string]string {
			return map[string]string{"phase": "enable"}
		})
		return ErrSecondFactorInvalid
	}

	if err := e.store.SetSecondFactorEnabled(ctx, userID, now); err != nil {
		return fmt.Errorf("enable second factor: %w", err)
	}

	e.metricInc(MetricSecondFactorEnabled)
	e.emitAudit(ctx, auditEventSecondFactorOn, true, userID, "", "", nil, nil)
	return nil
}

// VerifySecondFactor checks a time-based code, falling back to the single-use
// backup codes when the code does not match. A consumed backup code is marked
// used atomically; a second presentation of the same code fails.
func (e *Engine) VerifySecondFactor(ctx context.Context, userID, code string) (*SecondFactorResult, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if e.secondFactor == nil {
		return nil, ErrSecondFactorDisabled
	}

	result, err := e.verifyEnabledSecondFactor(ctx, userID, code)
	if err != nil {
		return nil, err
	}

	if result.UsedBackupCode {
		e.metricInc(MetricBackupCodeUsed)
		e.emitAudit(ctx, auditEventBackupCodeUsed, true, userID, "", "", nil, func() map[string]string {
			return map[string]string{"remaining": fmt.Sprintf("%d", result.BackupRemain)}
		})
	} else {
		e.emitAudit(ctx, auditEventSecondFactorOK, true, userID, "", "", nil, nil)
	}
	e.metricInc(MetricSecondFactorSuccess)
	return result, nil
}

// verifyEnabledSecondFactor is the shared verification core used by login
// verification and by the destructive operations that demand proof first.
func (e *Engine) verifyEnabledSecondFactor(ctx context.Context, userID, code string) (*SecondFactorResult, error) {
	rec, err := e.store.GetSecondFactor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil || !rec.Enabled {
		return nil, ErrSecondFactorNotConfigured
	}

	secret, err := e.secrets.Open(rec.EncryptedSecret)
	if err != nil {
		return nil, fmt.Errorf("decrypt second factor secret: %w", err)
	}

	now := time.Now().UTC()
	if e.secondFactor.VerifyCode(string(secret), code, now) {
		return &SecondFactorResult{Valid: true}, nil
	}

	result, err := e.tryBackupCode(ctx, userID, code, now)
	if err != nil {
		return nil, err
	}
	if result != nil {
		return result, nil
	}

	e.metricInc(MetricSecondFactorFailure)
	e.emitAudit(ctx, auditEventSecondFactorFail, false, userID, "", "", ErrSecondFactorInvalid, nil)
	return nil, ErrSecondFactorInvalid
}

// tryBackupCode walks the unused backup codes looking for a salted-hash
// match. Returns (nil, nil) when no code matches.
func (e *Engine) tryBackupCode(ctx context.Context, userID, code string, now time.Time) (*SecondFactorResult, error) {
	codes, err := e.store.GetBackupCodes(ctx, userID)
	if err != nil {
		return nil, err
	}

	unused := 0
	matched := ""
	for _, rec := range codes {
		if rec.Used {
			continue
		}
		unused++
		if matched == "" && matchBackupCode(code, rec) {
			matched = rec.ID
		}
	}
	if matched == "" {
		return nil, nil
	}

	marked, err := e.store.MarkBackupCodeUsed(ctx, userID, matched, now)
	if err != nil {
		return nil, err
	}
	if !marked {
		// Lost a race to a concurrent presentation of the same code; the code
		// is spent either way.
		return nil, nil
	}

	return &SecondFactorResult{
		Valid:          true,
		UsedBackupCode: true,
		BackupRemain:   unused - 1,
	}, nil
}

// DisableSecondFactor tears down the second factor after the caller proves
// control of it. Both the encrypted secret and the backup codes are removed.
func (e *Engine) DisableSecondFactor(ctx context.Context, userID, code string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if e.secondFactor == nil {
		return ErrSecondFactorDisabled
	}

	if _, err := e.verifyEnabledSecondFactor(ctx, userID, code); err != nil {
		return err
	}

	if err := e.store.DeleteSecondFactor(ctx, userID); err != nil {
		return fmt.Errorf("delete second factor: %w", err)
	}
	if err := e.store.ReplaceBackupCodes(ctx, userID, nil); err != nil {
		return fmt.Errorf("delete backup codes: %w", err)
	}

	e.emitAudit(ctx, auditEventSecondFactorOff, true, userID, "", "", nil, nil)
	return nil
}

// RegenerateBackupCodes replaces the whole backup-code set after a successful
// verification. Previously issued codes stop working immediately.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if e.secondFactor == nil {
		return nil, ErrSecondFactorDisabled
	}

	if _, err := e.verifyEnabledSecondFactor(ctx, userID, code); err != nil {
		return nil, err
	}

	plain, records, err := newBackupCodes(userID, e.config.SecondFactor.BackupCodeCount, e.config.SecondFactor.BackupCodeLength)
	if err != nil {
		return nil, err
	}
	if err := e.store.ReplaceBackupCodes(ctx, userID, records); err != nil {
		return nil, fmt.Errorf("save backup codes: %w", err)
	}

	e.metricInc(MetricBackupCodeRegenerated)
	e.emitAudit(ctx, auditEventBackupCodesReset, true, userID, "", "", nil, nil)
	return plain, nil
}
