// Package health provides retry state reporting over HTTP.
package health

import (
	"context"
	"time"
)

// SystemStatus represents the overall health state.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// CriticalFailures is the consecutive failure count at which the service
// reports critical.
const CriticalFailures = 5

// Source exposes the retry state. *retry.Controller implements it.
type Source interface {
	ConsecutiveFailures(ctx context.Context) int
	AdaptiveDelay(ctx context.Context) time.Duration
}

// Report is the health snapshot.
type Report struct {
	Status              SystemStatus `json:"status"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	AdaptiveDelay       string       `json:"adaptive_delay"`
	AdaptiveDelaySecs   float64      `json:"adaptive_delay_seconds"`
}

// Check builds a report from src.
func Check(ctx context.Context, src Source) Report {
	failures := src.ConsecutiveFailures(ctx)
	delay := src.AdaptiveDelay(ctx)

	status := StatusHealthy
	switch {
	case failures >= CriticalFailures:
		status = StatusCritical
	case failures > 0:
		status = StatusDegraded
	}

	return Report{
		Status:              status,
		ConsecutiveFailures: failures,
		AdaptiveDelay:       delay.String(),
		AdaptiveDelaySecs:   delay.Seconds(),
	}
}
