package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseLeaseScript deletes the lease only when this instance still owns it,
// so a sweep that overruns the lease TTL cannot release a successor's lease.
var releaseLeaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RunMaintenance performs one retention sweep: expired sessions past their
// revoked-row retention, expired pending second-factor rows, and login
// attempts older than the attempt retention. The sweep runs under a Redis
// lease so that at most one instance of the fleet sweeps at a time; when
// another instance holds the lease the report comes back with Skipped set and
// no error.
func (e *Engine) RunMaintenance(ctx context.Context) (*MaintenanceReport, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if e.redis == nil {
		return nil, errors.New("maintenance requires a redis client for the lease")
	}

	leaseValue := uuid.NewString()
	acquired, err := e.redis.SetNX(ctx, e.config.Maintenance.LeaseKey, leaseValue, e.config.Maintenance.LeaseTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire maintenance lease: %w", err)
	}
	if !acquired {
		return &MaintenanceReport{Skipped: true}, nil
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseLeaseScript.Run(releaseCtx, e.redis, []string{e.config.Maintenance.LeaseKey}, leaseValue).Err(); err != nil {
			e.warnf("authcore: releasing maintenance lease failed: %v", err)
		}
	}()

	now := time.Now().UTC()
	report := &MaintenanceReport{}

	sessions, err := e.store.DeleteExpiredSessions(ctx, now, e.config.Maintenance.RevokedRetention)
	if err != nil {
		return nil, fmt.Errorf("sweep sessions: %w", err)
	}
	report.SessionsDeleted = sessions

	pending, err := e.store.DeleteExpiredPendingSecondFactor(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("sweep pending: %w", err)
	}
	report.PendingDeleted = pending

	attempts, err := e.store.DeleteLoginAttemptsBefore(ctx, now.Add(-e.config.Maintenance.AttemptRetention))
	if err != nil {
		return nil, fmt.Errorf("sweep attempts: %w", err)
	}
	report.AttemptsDeleted = attempts

	e.metricInc(MetricMaintenanceRun)
	e.emitAudit(ctx, auditEventMaintenanceRun, true, "", "", "", nil, func() map[string]string {
		return map[string]string{
			"sessions_deleted": fmt.Sprintf("%d", report.SessionsDeleted),
			"pending_deleted":  fmt.Sprintf("%d", report.PendingDeleted),
			"attempts_deleted": fmt.Sprintf("%d", report.AttemptsDeleted),
		}
	})
	return report, nil
}
