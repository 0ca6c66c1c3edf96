package ratelimit

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultLimit is the number of requests a client may perform per window.
const DefaultLimit uint64 = 60

var (
	ErrNilStore               = errors.New("ratelimit: store is required")
	ErrInvalidLimit           = errors.New("ratelimit: limit must be positive")
	ErrInvalidRefreshInterval = errors.New("ratelimit: refresh interval must be positive")
	ErrInvalidPurgeInterval   = errors.New("ratelimit: purge interval must be positive")
)

// Limiter defines the interface for rate limiting.
type Limiter interface {
	// Evaluate consumes one unit of quota for key and reports the outcome.
	Evaluate(key string) Decision
}

// Decision is the observable result of one evaluation. A rejected decision is
// the normal product of an exhausted quota, not an error.
type Decision struct {
	Admitted     bool
	Limit        uint64
	Remaining    uint64
	ResetSeconds int
}

// Status describes the limiter's configuration and store occupancy.
type Status struct {
	Limit           uint64
	RefreshInterval time.Duration
	Entries         int
	AutoPurge       bool
	PurgeInterval   time.Duration
	LastPurge       time.Time
}

// Option configures a QuotaLimiter.
type Option func(*config)

type config struct {
	limit         uint64
	autoPurge     bool
	purgeInterval time.Duration
	clock         Clock
	logger        *zap.Logger
}

// WithLimit sets the number of requests allowed per window.
func WithLimit(limit uint64) Option {
	return func(c *config) { c.limit = limit }
}

// WithAutoPurge enables periodic sweeps of expired records.
func WithAutoPurge(enabled bool) Option {
	return func(c *config) { c.autoPurge = enabled }
}

// WithPurgeInterval sets the minimum time between sweeps.
func WithPurgeInterval(d time.Duration) Option {
	return func(c *config) { c.purgeInterval = d }
}

func WithClock(clock Clock) Option {
	return func(c *config) { c.clock = clock }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// QuotaLimiter allows each key at most limit requests per refresh interval.
type QuotaLimiter struct {
	store           Store
	limit           uint64
	refreshInterval time.Duration
	purge           *PurgeScheduler
	clock           Clock
	logger          *zap.Logger
}

// New creates a quota limiter. Invalid configuration is reported here rather
// than at request time.
func New(store Store, refreshInterval time.Duration, opts ...Option) (*QuotaLimiter, error) {
	cfg := config{
		limit:         DefaultLimit,
		purgeInterval: DefaultPurgeInterval,
		clock:         SystemClock{},
		logger:        zap.NewNop(),
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	switch {
	case store == nil:
		return nil, ErrNilStore
	case cfg.limit == 0:
		return nil, ErrInvalidLimit
	case refreshInterval <= 0:
		return nil, fmt.Errorf("%w: got %s", ErrInvalidRefreshInterval, refreshInterval)
	case cfg.purgeInterval <= 0:
		return nil, fmt.Errorf("%w: got %s", ErrInvalidPurgeInterval, cfg.purgeInterval)
	}

	return &QuotaLimiter{
		store:           store,
		limit:           cfg.limit,
		refreshInterval: refreshInterval,
		purge:           NewPurgeScheduler(cfg.autoPurge, cfg.purgeInterval, cfg.clock.Now()),
		clock:           cfg.clock,
		logger:          cfg.logger,
	}, nil
}

func (l *QuotaLimiter) Evaluate(key string) Decision {
	return l.EvaluateAt(key, l.clock.Now())
}

// EvaluateAt evaluates key as of now. The purge check runs after the decision
// on every path, admitted or not.
func (l *QuotaLimiter) EvaluateAt(key string, now time.Time) Decision {
	defer l.maybePurge(now)

	adm := l.store.TryAdmit(key, l.limit, l.refreshInterval, now)

	if adm.Admitted && adm.RemainingAfter >= l.limit {
		panic(fmt.Sprintf("ratelimit: store admitted %q leaving %d of %d", key, adm.RemainingAfter, l.limit))
	}

	decision := Decision{
		Admitted:     adm.Admitted,
		Limit:        l.limit,
		ResetSeconds: max(adm.ResetSeconds, 0),
	}

	if adm.Admitted {
		decision.Remaining = adm.RemainingAfter
	}

	return decision
}

// Purge removes every record that is expired at now and returns how many were removed.
func (l *QuotaLimiter) Purge(now time.Time) int {
	removed := 0

	for _, entry := range l.store.Snapshot() {
		if !entry.Record.IsExpired(now) {
			continue
		}

		if l.store.RemoveExpired(entry.Key, now) {
			removed++
		}
	}

	return removed
}

func (l *QuotaLimiter) maybePurge(now time.Time) {
	if !l.purge.TryRun(now) {
		return
	}

	removed := l.Purge(now)

	l.logger.Debug("purged expired quota records",
		zap.Int("removed", removed),
		zap.Int("remaining", l.store.Len()),
	)
}

func (l *QuotaLimiter) Limit() uint64 {
	return l.limit
}

func (l *QuotaLimiter) RefreshInterval() time.Duration {
	return l.refreshInterval
}

// Status reports configuration and the current number of stored records.
func (l *QuotaLimiter) Status() Status {
	return Status{
		Limit:           l.limit,
		RefreshInterval: l.refreshInterval,
		Entries:         l.store.Len(),
		AutoPurge:       l.purge.Enabled(),
		PurgeInterval:   l.purge.Interval(),
		LastPurge:       l.purge.LastRun(),
	}
}
