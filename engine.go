package authcore

import (
	"log"

	internalaudit "github.com/brightfolio/authcore/internal/audit"
	"github.com/brightfolio/authcore/internal/throttle"
	"github.com/brightfolio/authcore/token"
	"github.com/redis/go-redis/v9"
)

// Engine is the session and credential-security core. Build one with
// [Builder.Build]; after that every method is safe for concurrent use.
type Engine struct {
	config       Config
	store        CredentialStore
	redis        *redis.Client
	tokens       *token.Manager
	secondFactor *secondFactorManager
	secrets      *secretBox
	throttle     *throttle.Cache
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	alerts       AlertSender
	warn         func(format string, args ...any)
}

// Close stops background goroutines (audit dispatcher, throttle sweeper) and
// drains buffered audit events. Idempotent.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
	if e.throttle != nil {
		e.throttle.Close()
	}
}

// AuditDropped reports audit events discarded under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) warnf(format string, args ...any) {
	if e == nil {
		return
	}
	if e.warn != nil {
		e.warn(format, args...)
		return
	}
	log.Printf(format, args...)
}
