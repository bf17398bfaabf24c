// Package otelmetrics bridges the engine's in-process counters to an
// OpenTelemetry meter. The engine stays dependency-free on the hot path;
// collection pulls a snapshot only when the meter is read.
package otelmetrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/brightfolio/authcore"
)

var instrumentNames = map[authcore.MetricID]string{
	authcore.MetricSessionCreated:        "authcore.sessions.created",
	authcore.MetricValidateSuccess:       "authcore.tokens.validated",
	authcore.MetricValidateFailure:       "authcore.tokens.rejected",
	authcore.MetricRefreshSuccess:        "authcore.refresh.rotations",
	authcore.MetricRefreshFailure:        "authcore.refresh.failures",
	authcore.MetricRefreshGrace:          "authcore.refresh.grace_reissues",
	authcore.MetricTheftDetected:         "authcore.refresh.theft_detected",
	authcore.MetricSessionRevoked:        "authcore.sessions.revoked",
	authcore.MetricSessionsRevokedAll:    "authcore.sessions.revoked_all",
	authcore.MetricLockoutDenied:         "authcore.lockout.denied",
	authcore.MetricAccountLockout:        "authcore.lockout.account_locks",
	authcore.MetricIPLockout:             "authcore.lockout.ip_locks",
	authcore.MetricAccountUnlocked:       "authcore.lockout.unlocks",
	authcore.MetricSecondFactorSetup:     "authcore.second_factor.setups",
	authcore.MetricSecondFactorEnabled:   "authcore.second_factor.enabled",
	authcore.MetricSecondFactorSuccess:   "authcore.second_factor.verified",
	authcore.MetricSecondFactorFailure:   "authcore.second_factor.failed",
	authcore.MetricBackupCodeUsed:        "authcore.backup_codes.used",
	authcore.MetricBackupCodeRegenerated: "authcore.backup_codes.regenerated",
	authcore.MetricPendingCreated:        "authcore.pending.created",
	authcore.MetricPendingConsumed:       "authcore.pending.consumed",
	authcore.MetricPendingExpired:        "authcore.pending.expired",
	authcore.MetricActivityTouch:         "authcore.activity.touches",
	authcore.MetricMaintenanceRun:        "authcore.maintenance.runs",
}

// Register creates one observable counter per engine metric and reports the
// engine's cumulative totals on every collection. The returned registration
// must be unregistered before the engine is closed.
func Register(meter metric.Meter, engine *authcore.Engine) (metric.Registration, error) {
	instruments := make(map[authcore.MetricID]metric.Int64ObservableCounter, len(instrumentNames))
	observables := make([]metric.Observable, 0, len(instrumentNames))

	for id, name := range instrumentNames {
		counter, err := meter.Int64ObservableCounter(name)
		if err != nil {
			return nil, fmt.Errorf("create instrument %s: %w", name, err)
		}
		instruments[id] = counter
		observables = append(observables, counter)
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		snap := engine.MetricsSnapshot()
		for id, value := range snap.Counters {
			if counter, ok := instruments[id]; ok {
				o.ObserveInt64(counter, int64(value))
			}
		}
		return nil
	}, observables...)
}
