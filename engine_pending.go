package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// CreatePendingSecondFactor opens the bridge between first-factor success and
// second-factor completion. The returned handle is the only credential the
// client holds during the interlude; no tokens exist yet.
func (e *Engine) CreatePendingSecondFactor(ctx context.Context, userID, email string) (*PendingSecondFactor, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, errors.New("user id required")
	}

	now := time.Now().UTC()
	rec := &PendingSecondFactorRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		Email:     email,
		ExpiresAt: now.Add(e.config.Pending.TTL),
		CreatedAt: now,
	}
	if err := e.store.CreatePendingSecondFactor(ctx, rec); err != nil {
		return nil, err
	}

	e.metricInc(MetricPendingCreated)
	e.emitAudit(ctx, auditEventPendingCreated, true, userID, email, "", nil, nil)

	return &PendingSecondFactor{
		ID:        rec.ID,
		UserID:    rec.UserID,
		Email:     rec.Email,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// GetPendingSecondFactor looks up a pending session without consuming it.
// Expired rows are deleted on sight and reported exactly like absent ones.
func (e *Engine) GetPendingSecondFactor(ctx context.Context, id string) (*PendingSecondFactor, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	rec, err := e.loadLivePending(ctx, id)
	if err != nil {
		return nil, err
	}
	return &PendingSecondFactor{
		ID:        rec.ID,
		UserID:    rec.UserID,
		Email:     rec.Email,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// ConsumePendingSecondFactor deletes the pending session and returns its
// identity exactly once. The delete is the single-use gate: two concurrent
// consumers race on it and only the winner proceeds to session creation.
func (e *Engine) ConsumePendingSecondFactor(ctx context.Context, id string) (*PendingSecondFactor, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	rec, err := e.loadLivePending(ctx, id)
	if err != nil {
		return nil, err
	}

	deleted, err := e.store.DeletePendingSecondFactor(ctx, id)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, ErrPendingSecondFactorNotFound
	}

	e.metricInc(MetricPendingConsumed)
	e.emitAudit(ctx, auditEventPendingConsumed, true, rec.UserID, rec.Email, "", nil, nil)

	return &PendingSecondFactor{
		ID:        rec.ID,
		UserID:    rec.UserID,
		Email:     rec.Email,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// loadLivePending fetches a pending row, treating expired the same as absent.
// Expiry is judged on the stored timestamp so rows the sweep has not reached
// yet still read as gone.
func (e *Engine) loadLivePending(ctx context.Context, id string) (*PendingSecondFactorRecord, error) {
	if id == "" {
		return nil, ErrPendingSecondFactorNotFound
	}

	rec, err := e.store.GetPendingSecondFactor(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrPendingSecondFactorNotFound
	}
	if !time.Now().UTC().Before(rec.ExpiresAt) {
		e.metricInc(MetricPendingExpired)
		if _, err := e.store.DeletePendingSecondFactor(ctx, id); err != nil {
			e.warnf("authcore: deleting expired pending session %s failed: %v", id, err)
		}
		return nil, ErrPendingSecondFactorNotFound
	}
	return rec, nil
}
