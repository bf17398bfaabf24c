package authcore

import "sync/atomic"

// MetricID identifies one counter in the in-process metrics set.
type MetricID uint16

const (
	// MetricSessionCreated counts successful session creations.
	MetricSessionCreated MetricID = iota
	// MetricValidateSuccess counts successful access-token validations.
	MetricValidateSuccess
	// MetricValidateFailure counts rejected access tokens.
	MetricValidateFailure
	// MetricRefreshSuccess counts completed rotations.
	MetricRefreshSuccess
	// MetricRefreshFailure counts refresh calls rejected for any reason.
	MetricRefreshFailure
	// MetricRefreshGrace counts benign-race reissues inside the grace window.
	MetricRefreshGrace
	// MetricTheftDetected counts refresh replays outside the grace window.
	MetricTheftDetected
	// MetricSessionRevoked counts single-session revocations.
	MetricSessionRevoked
	// MetricSessionsRevokedAll counts revoke-all operations.
	MetricSessionsRevokedAll
	// MetricLockoutDenied counts attempts denied by an active lock.
	MetricLockoutDenied
	// MetricAccountLockout counts account-scope locks engaging.
	MetricAccountLockout
	// MetricIPLockout counts IP-scope locks engaging.
	MetricIPLockout
	// MetricAccountUnlocked counts administrative unlocks.
	MetricAccountUnlocked
	// MetricSecondFactorSetup counts setup generations.
	MetricSecondFactorSetup
	// MetricSecondFactorEnabled counts successful enrollment confirmations.
	MetricSecondFactorEnabled
	// MetricSecondFactorSuccess counts successful verifications.
	MetricSecondFactorSuccess
	// MetricSecondFactorFailure counts failed verifications.
	MetricSecondFactorFailure
	// MetricBackupCodeUsed counts backup-code fallbacks that verified.
	MetricBackupCodeUsed
	// MetricBackupCodeRegenerated counts backup-code set replacements.
	MetricBackupCodeRegenerated
	// MetricPendingCreated counts pending second-factor sessions created.
	MetricPendingCreated
	// MetricPendingConsumed counts pending sessions consumed by verification.
	MetricPendingConsumed
	// MetricPendingExpired counts fetches that found an expired pending row.
	MetricPendingExpired
	// MetricActivityTouch counts persisted last-activity writes.
	MetricActivityTouch
	// MetricMaintenanceRun counts completed retention sweeps.
	MetricMaintenanceRun

	metricIDCount
)

// Metrics holds lock-free counters. When disabled all operations are no-ops
// and Snapshot returns empty maps.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]atomic.Uint64
}

// NewMetrics creates a Metrics instance.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc adds one to the identified counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// Snapshot copies every counter. Cheap enough for a scrape path.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: map[MetricID]uint64{}}
	if m == nil || !m.enabled {
		return snap
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		if v := m.counters[id].Load(); v > 0 {
			snap.Counters[id] = v
		}
	}
	return snap
}
