package authcore

import (
	"context"
	"testing"
	"time"
)

func newAuditedEngine(t *testing.T) (*Engine, *ChannelSink) {
	t.Helper()

	sink := NewChannelSink(64)
	store := newMockStore()

	cfg := defaultConfig()
	cfg.Token.SigningMethod = "hs256"
	cfg.Token.PrivateKey = testSigningKey
	cfg.Throttle.Enabled = false
	cfg.Audit.Enabled = true

	e, err := New().
		WithConfig(cfg).
		WithStore(store).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(e.Close)
	return e, sink
}

func waitForEvent(t *testing.T, sink *ChannelSink, eventType string) AuditEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-sink.Events():
			if event.EventType == eventType {
				return event
			}
		case <-deadline:
			t.Fatalf("event %q never emitted", eventType)
		}
	}
}

func TestAuditSessionLifecycle(t *testing.T) {
	e, sink := newAuditedEngine(t)
	ctx := WithClientIP(context.Background(), "203.0.113.9")

	pair, err := e.CreateSession(ctx, "u1", "u1@example.com", AuthContext{EntryPoint: "magic_link"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	created := waitForEvent(t, sink, "session_created")
	if created.UserID != "u1" || !created.Success {
		t.Fatalf("created event = %+v", created)
	}
	if created.IP != "203.0.113.9" {
		t.Fatalf("event IP = %q, want context IP", created.IP)
	}
	if created.Metadata["entry_point"] != "magic_link" {
		t.Fatalf("metadata = %v", created.Metadata)
	}

	if _, err := e.RefreshTokens(ctx, pair.RefreshToken, AuthContext{}); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	refreshed := waitForEvent(t, sink, "session_refreshed")
	if refreshed.SessionID != pair.SessionID {
		t.Fatalf("refreshed event = %+v", refreshed)
	}

	if err := e.RevokeSession(ctx, pair.SessionID, ""); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked := waitForEvent(t, sink, "session_revoked")
	if revoked.Metadata["reason"] != RevokedReasonLogout {
		t.Fatalf("revoked metadata = %v", revoked.Metadata)
	}
}

func TestAuditNeverCarriesRefreshSecret(t *testing.T) {
	e, sink := newAuditedEngine(t)
	ctx := context.Background()

	pair, err := e.CreateSession(ctx, "u1", "u1@example.com", AuthContext{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	next, err := e.RefreshTokens(ctx, pair.RefreshToken, AuthContext{})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	e.Close() // drain

	secrets := []string{pair.RefreshToken, next.RefreshToken}
	for {
		select {
		case event := <-sink.Events():
			for _, secret := range secrets {
				if event.Error == secret {
					t.Fatal("refresh secret leaked into audit error")
				}
				for k, v := range event.Metadata {
					if v == secret {
						t.Fatalf("refresh secret leaked into metadata %q", k)
					}
				}
			}
		default:
			return
		}
	}
}

func TestMetricsSnapshotCounts(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	pair := mustCreateSession(t, e, "u1", "u1@example.com")
	if _, err := e.ValidateAccessToken(ctx, pair.AccessToken); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if _, err := e.RefreshTokens(ctx, pair.RefreshToken, AuthContext{}); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	snap := e.MetricsSnapshot()
	for _, check := range []struct {
		id   MetricID
		want uint64
	}{
		{MetricSessionCreated, 1},
		{MetricValidateSuccess, 1},
		{MetricRefreshSuccess, 1},
	} {
		if got := snap.Counters[check.id]; got != check.want {
			t.Errorf("counter %d = %d, want %d", check.id, got, check.want)
		}
	}
}

func TestMetricsDisabledSnapshotEmpty(t *testing.T) {
	e, _ := newTestEngine(t, func(cfg *Config) {
		cfg.Metrics.Enabled = false
	})

	mustCreateSession(t, e, "u1", "u1@example.com")
	if snap := e.MetricsSnapshot(); len(snap.Counters) != 0 {
		t.Fatalf("disabled metrics recorded %v", snap.Counters)
	}
}
