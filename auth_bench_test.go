package authcore

import (
	"context"
	"testing"
)

func newBenchmarkEngine(b *testing.B) *Engine {
	b.Helper()

	cfg := defaultConfig()
	cfg.Token.SigningMethod = "hs256"
	cfg.Token.PrivateKey = testSigningKey
	cfg.Throttle.Enabled = false
	cfg.Refresh.MaxRotationCount = 1 << 30 // rotation budget must outlast b.N

	engine, err := New().WithConfig(cfg).WithStore(newMockStore()).Build()
	if err != nil {
		b.Fatalf("build engine: %v", err)
	}
	b.Cleanup(engine.Close)
	return engine
}

func BenchmarkValidateAccessToken(b *testing.B) {
	engine := newBenchmarkEngine(b)

	pair, err := engine.CreateSession(context.Background(), "bench-user", "bench@example.com", AuthContext{})
	if err != nil {
		b.Fatalf("create session: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.ValidateAccessToken(context.Background(), pair.AccessToken); err != nil {
			b.Fatalf("validate failed: %v", err)
		}
	}
}

func BenchmarkRefreshTokens(b *testing.B) {
	engine := newBenchmarkEngine(b)

	pair, err := engine.CreateSession(context.Background(), "bench-user", "bench@example.com", AuthContext{})
	if err != nil {
		b.Fatalf("create session: %v", err)
	}

	refresh := pair.RefreshToken
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		next, err := engine.RefreshTokens(context.Background(), refresh, AuthContext{})
		if err != nil {
			b.Fatalf("refresh failed: %v", err)
		}
		refresh = next.RefreshToken
	}
}

func BenchmarkCreateSession(b *testing.B) {
	engine := newBenchmarkEngine(b)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.CreateSession(context.Background(), "bench-user", "bench@example.com", AuthContext{}); err != nil {
			b.Fatalf("create failed: %v", err)
		}
	}
}
