package ratelimit

import (
	"sync"
	"time"
)

// DefaultPurgeInterval is how often expired records are swept when auto purge is on.
const DefaultPurgeInterval = 12 * time.Hour

// PurgeScheduler throttles sweeps of the store for expired records.
// Its interval is unrelated to any client's refresh interval.
type PurgeScheduler struct {
	mu       sync.Mutex
	enabled  bool
	interval time.Duration
	lastRun  time.Time
}

// NewPurgeScheduler creates a scheduler whose first sweep is due one interval after now.
func NewPurgeScheduler(enabled bool, interval time.Duration, now time.Time) *PurgeScheduler {
	return &PurgeScheduler{
		enabled:  enabled,
		interval: interval,
		lastRun:  now,
	}
}

// ShouldRun reports whether a sweep is due.
func (p *PurgeScheduler) ShouldRun(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.due(now)
}

// RecordRun marks now as the time of the last sweep.
func (p *PurgeScheduler) RecordRun(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastRun = now
}

// TryRun records a run and returns true if a sweep is due, so that concurrent
// callers never both start one.
func (p *PurgeScheduler) TryRun(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.due(now) {
		return false
	}

	p.lastRun = now

	return true
}

// LastRun returns the time of the last sweep, or construction time if none ran.
func (p *PurgeScheduler) LastRun() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.lastRun
}

func (p *PurgeScheduler) Enabled() bool {
	return p.enabled
}

func (p *PurgeScheduler) Interval() time.Duration {
	return p.interval
}

func (p *PurgeScheduler) due(now time.Time) bool {
	return p.enabled && !now.Before(p.lastRun.Add(p.interval))
}
