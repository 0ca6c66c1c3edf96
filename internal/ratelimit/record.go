package ratelimit

import "time"

// Record holds one client's quota for the current window.
// ExpiresAt is fixed when the record is created and never moves.
type Record struct {
	CreatedAt time.Time
	ExpiresAt time.Time
	Remaining uint64
}

// NewRecord opens a fresh window at now with the full limit available.
func NewRecord(limit uint64, refreshInterval time.Duration, now time.Time) Record {
	return Record{
		CreatedAt: now,
		ExpiresAt: now.Add(refreshInterval),
		Remaining: limit,
	}
}

// IsExpired reports whether the window has closed. Expired records carry no quota.
func (r Record) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// ResetSeconds returns whole seconds until the window closes, truncated toward zero.
// The value is negative once the record has expired.
func (r Record) ResetSeconds(now time.Time) int {
	return int(r.ExpiresAt.Sub(now) / time.Second)
}
