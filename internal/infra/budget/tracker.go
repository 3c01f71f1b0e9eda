// Package budget tracks request volume against a remote API's quota.
//
// This package contains:
//   - Tracker: interface for quota management
//   - DefaultTracker: per-model requests-per-minute and daily accounting
package budget

import (
	"sync"
	"time"
)

// UsageStats holds quota usage statistics.
type UsageStats struct {
	TotalCalls      int
	CallsLastMinute int
	MaxRPM          int
	DailyLimit      int
	RemainingCalls  int
	UsagePercentage float64
	NextResetAt     time.Time
}

// Config holds budget configuration.
type Config struct {
	MaxRPM     int `yaml:"max_rpm"`     // 0 = unlimited
	DailyQuota int `yaml:"daily_quota"` // 0 = unlimited
}

// Tracker manages request quota and rate limiting.
type Tracker interface {
	RecordCall(model string)
	GetUsage(model string) UsageStats
	CanMakeCall(model string) bool
	GetThrottleDelay(model string) time.Duration
	Reset()
}

type modelBudget struct {
	totalCalls int
	recent     []time.Time // calls inside the last minute, oldest first
}

// DefaultTracker implements Tracker with per-model tracking.
type DefaultTracker struct {
	mu         sync.Mutex
	usage      map[string]*modelBudget
	maxRPM     int
	dailyLimit int
	resetTime  time.Time
	now        func() time.Time
}

// NewTracker creates a new budget tracker.
func NewTracker(cfg Config) *DefaultTracker {
	return newTrackerWithClock(cfg, time.Now)
}

func newTrackerWithClock(cfg Config, now func() time.Time) *DefaultTracker {
	return &DefaultTracker{
		usage:      make(map[string]*modelBudget),
		maxRPM:     cfg.MaxRPM,
		dailyLimit: cfg.DailyQuota,
		resetTime:  nextMidnight(now()),
		now:        now,
	}
}

// RecordCall records a call for quota tracking.
func (bt *DefaultTracker) RecordCall(model string) {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	now := bt.now()
	if now.After(bt.resetTime) {
		bt.resetUnsafe()
	}

	b := bt.budgetUnsafe(model)
	b.prune(now)
	b.totalCalls++
	b.recent = append(b.recent, now)
}

// GetUsage returns usage statistics for a model.
func (bt *DefaultTracker) GetUsage(model string) UsageStats {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	return bt.usageUnsafe(model)
}

// CanMakeCall checks if a call can be made right now.
func (bt *DefaultTracker) CanMakeCall(model string) bool {
	return bt.GetThrottleDelay(model) == 0
}

// GetThrottleDelay returns how long to wait before making a call.
func (bt *DefaultTracker) GetThrottleDelay(model string) time.Duration {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	now := bt.now()
	if now.After(bt.resetTime) {
		bt.resetUnsafe()
	}

	b, ok := bt.usage[model]
	if !ok {
		return 0
	}
	b.prune(now)

	if bt.dailyLimit > 0 && b.totalCalls >= bt.dailyLimit {
		return bt.resetTime.Sub(now)
	}
	if bt.maxRPM > 0 && len(b.recent) >= bt.maxRPM {
		// The window frees up when the oldest call in it turns a minute old.
		return b.recent[len(b.recent)-bt.maxRPM].Add(time.Minute).Sub(now)
	}
	return 0
}

// Reset resets all usage counters.
func (bt *DefaultTracker) Reset() {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	bt.resetUnsafe()
}

func (bt *DefaultTracker) budgetUnsafe(model string) *modelBudget {
	b, ok := bt.usage[model]
	if !ok {
		b = &modelBudget{}
		bt.usage[model] = b
	}
	return b
}

func (bt *DefaultTracker) usageUnsafe(model string) UsageStats {
	stats := UsageStats{
		MaxRPM:      bt.maxRPM,
		DailyLimit:  bt.dailyLimit,
		NextResetAt: bt.resetTime,
	}

	b, ok := bt.usage[model]
	if !ok {
		stats.RemainingCalls = bt.dailyLimit
		return stats
	}
	b.prune(bt.now())

	stats.TotalCalls = b.totalCalls
	stats.CallsLastMinute = len(b.recent)
	if bt.dailyLimit > 0 {
		stats.RemainingCalls = max(bt.dailyLimit-b.totalCalls, 0)
		stats.UsagePercentage = float64(b.totalCalls) / float64(bt.dailyLimit) * 100
	}
	return stats
}

func (bt *DefaultTracker) resetUnsafe() {
	for _, b := range bt.usage {
		b.totalCalls = 0
		b.recent = nil
	}
	bt.resetTime = nextMidnight(bt.now())
}

func (b *modelBudget) prune(now time.Time) {
	cutoff := now.Add(-time.Minute)
	i := 0
	for i < len(b.recent) && !b.recent[i].After(cutoff) {
		i++
	}
	b.recent = b.recent[i:]
}

func nextMidnight(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
}
