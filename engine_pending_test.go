package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPendingSecondFactorRoundTrip(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	pending, err := e.CreatePendingSecondFactor(ctx, "u1", "u1@example.com")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if pending.ID == "" {
		t.Fatal("pending session has no id")
	}
	if time.Until(pending.ExpiresAt) > 5*time.Minute {
		t.Fatalf("pending TTL too long: %v", time.Until(pending.ExpiresAt))
	}

	got, err := e.GetPendingSecondFactor(ctx, pending.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID != "u1" || got.Email != "u1@example.com" {
		t.Fatalf("got %+v", got)
	}
}

func TestPendingSecondFactorSingleUse(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	pending, err := e.CreatePendingSecondFactor(ctx, "u1", "u1@example.com")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	consumed, err := e.ConsumePendingSecondFactor(ctx, pending.ID)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if consumed.UserID != "u1" {
		t.Fatalf("consumed identity = %+v", consumed)
	}

	if _, err := e.ConsumePendingSecondFactor(ctx, pending.ID); !errors.Is(err, ErrPendingSecondFactorNotFound) {
		t.Fatalf("second consume: got %v, want ErrPendingSecondFactorNotFound", err)
	}
	if _, err := e.GetPendingSecondFactor(ctx, pending.ID); !errors.Is(err, ErrPendingSecondFactorNotFound) {
		t.Fatalf("get after consume: got %v, want ErrPendingSecondFactorNotFound", err)
	}
}

func TestPendingSecondFactorExpiryIndistinguishableFromAbsent(t *testing.T) {
	e, store := newTestEngine(t, nil)
	ctx := context.Background()

	pending, err := e.CreatePendingSecondFactor(ctx, "u1", "u1@example.com")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	store.mu.Lock()
	store.pending[pending.ID].ExpiresAt = time.Now().UTC().Add(-time.Second)
	store.mu.Unlock()

	_, expiredErr := e.GetPendingSecondFactor(ctx, pending.ID)
	_, absentErr := e.GetPendingSecondFactor(ctx, "never-existed")
	if !errors.Is(expiredErr, ErrPendingSecondFactorNotFound) {
		t.Fatalf("expired: got %v", expiredErr)
	}
	if expiredErr.Error() != absentErr.Error() {
		t.Fatalf("expired (%v) and absent (%v) are distinguishable", expiredErr, absentErr)
	}

	// The expired row was purged on sight.
	store.mu.Lock()
	_, stillThere := store.pending[pending.ID]
	store.mu.Unlock()
	if stillThere {
		t.Fatal("expired pending row not deleted on read")
	}
}

func TestPendingSecondFactorEmptyID(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	if _, err := e.ConsumePendingSecondFactor(context.Background(), ""); !errors.Is(err, ErrPendingSecondFactorNotFound) {
		t.Fatalf("got %v, want ErrPendingSecondFactorNotFound", err)
	}
}
