package ratelimit_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/serroba/quota-gate/internal/ratelimit"
	"github.com/serroba/quota-gate/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: epoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func newLimiter(t *testing.T, refresh time.Duration, opts ...ratelimit.Option) (*ratelimit.QuotaLimiter, *store.QuotaMemoryStore) {
	t.Helper()

	memStore := store.NewQuotaMemoryStore(8)

	limiter, err := ratelimit.New(memStore, refresh, opts...)
	require.NoError(t, err)

	return limiter, memStore
}

func TestNew(t *testing.T) {
	t.Run("defaults limit to 60", func(t *testing.T) {
		limiter, _ := newLimiter(t, time.Minute)

		assert.Equal(t, ratelimit.DefaultLimit, limiter.Limit())
		assert.Equal(t, time.Minute, limiter.RefreshInterval())
		assert.False(t, limiter.Status().AutoPurge)
		assert.Equal(t, ratelimit.DefaultPurgeInterval, limiter.Status().PurgeInterval)
	})

	tests := []struct {
		name    string
		store   ratelimit.Store
		refresh time.Duration
		opts    []ratelimit.Option
		wantErr error
	}{
		{
			name:    "nil store",
			store:   nil,
			refresh: time.Minute,
			wantErr: ratelimit.ErrNilStore,
		},
		{
			name:    "zero limit",
			store:   store.NewQuotaMemoryStore(1),
			refresh: time.Minute,
			opts:    []ratelimit.Option{ratelimit.WithLimit(0)},
			wantErr: ratelimit.ErrInvalidLimit,
		},
		{
			name:    "zero refresh interval",
			store:   store.NewQuotaMemoryStore(1),
			refresh: 0,
			wantErr: ratelimit.ErrInvalidRefreshInterval,
		},
		{
			name:    "negative refresh interval",
			store:   store.NewQuotaMemoryStore(1),
			refresh: -time.Second,
			wantErr: ratelimit.ErrInvalidRefreshInterval,
		},
		{
			name:    "zero purge interval",
			store:   store.NewQuotaMemoryStore(1),
			refresh: time.Minute,
			opts:    []ratelimit.Option{ratelimit.WithPurgeInterval(0)},
			wantErr: ratelimit.ErrInvalidPurgeInterval,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter, err := ratelimit.New(tt.store, tt.refresh, tt.opts...)

			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, limiter)
		})
	}
}

func TestQuotaLimiter_Evaluate(t *testing.T) {
	t.Run("admits limit requests with decreasing remaining then rejects", func(t *testing.T) {
		clock := newFakeClock()
		limiter, _ := newLimiter(t, time.Minute, ratelimit.WithLimit(5), ratelimit.WithClock(clock))

		for i := range 5 {
			d := limiter.Evaluate("client1")

			require.True(t, d.Admitted, "request %d should be admitted", i+1)
			assert.Equal(t, uint64(5), d.Limit)
			assert.Equal(t, uint64(4-i), d.Remaining)
		}

		d := limiter.Evaluate("client1")

		assert.False(t, d.Admitted)
		assert.Equal(t, uint64(0), d.Remaining)
		assert.Equal(t, uint64(5), d.Limit)
		assert.Equal(t, 60, d.ResetSeconds)
	})

	t.Run("admits again after reset elapses", func(t *testing.T) {
		clock := newFakeClock()
		limiter, _ := newLimiter(t, time.Minute, ratelimit.WithLimit(3), ratelimit.WithClock(clock))

		for range 3 {
			_ = limiter.Evaluate("client1")
		}

		clock.Advance(15 * time.Second)

		rejected := limiter.Evaluate("client1")
		require.False(t, rejected.Admitted)
		require.Equal(t, 45, rejected.ResetSeconds)

		clock.Advance(time.Duration(rejected.ResetSeconds)*time.Second + time.Millisecond)

		d := limiter.Evaluate("client1")

		assert.True(t, d.Admitted)
		assert.Equal(t, uint64(2), d.Remaining)
	})

	t.Run("scenario limit 1 per second", func(t *testing.T) {
		limiter, _ := newLimiter(t, time.Second, ratelimit.WithLimit(1))

		first := limiter.EvaluateAt("peer", epoch)
		assert.True(t, first.Admitted)
		assert.Equal(t, uint64(0), first.Remaining)

		second := limiter.EvaluateAt("peer", epoch.Add(100*time.Millisecond))
		assert.False(t, second.Admitted)
		assert.Contains(t, []int{0, 1}, second.ResetSeconds)

		third := limiter.EvaluateAt("peer", epoch.Add(1100*time.Millisecond))
		assert.True(t, third.Admitted)
		assert.Equal(t, uint64(0), third.Remaining)
	})

	t.Run("scenario sixty per minute", func(t *testing.T) {
		limiter, _ := newLimiter(t, ratelimit.Seconds(60))

		var last ratelimit.Decision

		for range 60 {
			last = limiter.EvaluateAt("peer", epoch)
			require.True(t, last.Admitted)
		}

		assert.Equal(t, uint64(0), last.Remaining)
		assert.False(t, limiter.EvaluateAt("peer", epoch).Admitted)
	})

	t.Run("distinct keys never share quota", func(t *testing.T) {
		limiter, _ := newLimiter(t, time.Minute, ratelimit.WithLimit(2))

		for range 2 {
			assert.True(t, limiter.EvaluateAt("a", epoch).Admitted)
		}

		assert.False(t, limiter.EvaluateAt("a", epoch).Admitted, "a should be rate limited")

		d := limiter.EvaluateAt("b", epoch)

		assert.True(t, d.Admitted, "b should still be allowed")
		assert.Equal(t, uint64(1), d.Remaining)
	})

	t.Run("reset is never negative", func(t *testing.T) {
		limiter, _ := newLimiter(t, time.Second, ratelimit.WithLimit(1))

		_ = limiter.EvaluateAt("peer", epoch)
		d := limiter.EvaluateAt("peer", epoch.Add(time.Second))

		assert.False(t, d.Admitted)
		assert.GreaterOrEqual(t, d.ResetSeconds, 0)
	})
}

func TestQuotaLimiter_ConcurrentLastUnit(t *testing.T) {
	for _, k := range []int{2, 10, 100} {
		t.Run(fmt.Sprintf("%d simultaneous requests", k), func(t *testing.T) {
			limiter, _ := newLimiter(t, time.Minute, ratelimit.WithLimit(2))

			require.True(t, limiter.EvaluateAt("peer", epoch).Admitted)

			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				admitted int
				rejected int
			)

			start := make(chan struct{})

			for range k {
				wg.Add(1)

				go func() {
					defer wg.Done()
					<-start

					d := limiter.EvaluateAt("peer", epoch)

					mu.Lock()
					defer mu.Unlock()

					if d.Admitted {
						admitted++
					} else {
						rejected++
					}
				}()
			}

			close(start)
			wg.Wait()

			assert.Equal(t, 1, admitted)
			assert.Equal(t, k-1, rejected)
		})
	}
}

func TestQuotaLimiter_Purge(t *testing.T) {
	t.Run("without auto purge one-off keys are never reclaimed", func(t *testing.T) {
		clock := newFakeClock()
		limiter, memStore := newLimiter(t, time.Second, ratelimit.WithClock(clock))

		for i := range 100 {
			_ = limiter.Evaluate(fmt.Sprintf("peer-%d", i))
		}

		clock.Advance(ratelimit.DefaultPurgeInterval + time.Hour)

		_ = limiter.Evaluate("late")

		assert.Equal(t, 101, memStore.Len())
		assert.Equal(t, 101, limiter.Status().Entries)
	})

	t.Run("expired records are replaced lazily on access", func(t *testing.T) {
		clock := newFakeClock()
		limiter, memStore := newLimiter(t, time.Second, ratelimit.WithClock(clock))

		_ = limiter.Evaluate("peer")
		clock.Advance(time.Hour)
		_ = limiter.Evaluate("peer")

		entries := memStore.Snapshot()
		require.Len(t, entries, 1)
		assert.Equal(t, clock.Now(), entries[0].Record.CreatedAt)
	})

	t.Run("auto purge sweeps once the interval elapses", func(t *testing.T) {
		clock := newFakeClock()
		limiter, memStore := newLimiter(t, time.Second,
			ratelimit.WithClock(clock),
			ratelimit.WithAutoPurge(true),
			ratelimit.WithPurgeInterval(time.Hour),
		)

		for i := range 20 {
			_ = limiter.Evaluate(fmt.Sprintf("peer-%d", i))
		}

		clock.Advance(30 * time.Minute)
		_ = limiter.Evaluate("early")

		assert.Equal(t, 21, memStore.Len(), "sweep should not run before interval")

		clock.Advance(30 * time.Minute)
		_ = limiter.Evaluate("trigger")

		assert.Equal(t, 1, memStore.Len(), "only the triggering key is live")
		assert.Equal(t, clock.Now(), limiter.Status().LastPurge)
	})

	t.Run("sweep runs on the rejection path", func(t *testing.T) {
		clock := newFakeClock()
		limiter, memStore := newLimiter(t, time.Hour,
			ratelimit.WithLimit(1),
			ratelimit.WithClock(clock),
			ratelimit.WithAutoPurge(true),
			ratelimit.WithPurgeInterval(time.Minute),
		)

		_ = limiter.Evaluate("blocked")
		_ = memStore.TryAdmit("stale", 1, time.Second, clock.Now())

		clock.Advance(time.Minute)

		d := limiter.Evaluate("blocked")

		assert.False(t, d.Admitted)
		assert.Equal(t, 1, memStore.Len())
	})

	t.Run("sweep is idempotent", func(t *testing.T) {
		limiter, memStore := newLimiter(t, time.Second)

		for i := range 10 {
			_ = limiter.EvaluateAt(fmt.Sprintf("peer-%d", i), epoch)
		}

		_ = limiter.EvaluateAt("live", epoch.Add(time.Hour))
		now := epoch.Add(time.Hour)

		assert.Equal(t, 10, limiter.Purge(now))
		assert.Equal(t, 0, limiter.Purge(now))
		assert.Equal(t, 1, memStore.Len())
	})
}

type corruptStore struct {
	ratelimit.Store
}

func (corruptStore) TryAdmit(_ string, limit uint64, _ time.Duration, _ time.Time) ratelimit.Admission {
	return ratelimit.Admission{Admitted: true, RemainingAfter: limit}
}

func TestQuotaLimiter_CorruptStorePanics(t *testing.T) {
	limiter, err := ratelimit.New(corruptStore{Store: store.NewQuotaMemoryStore(1)}, time.Minute,
		ratelimit.WithLimit(3))
	require.NoError(t, err)

	assert.Panics(t, func() {
		limiter.EvaluateAt("peer", epoch)
	})
}

func TestClockFunc(t *testing.T) {
	clock := ratelimit.ClockFunc(func() time.Time { return epoch })

	assert.Equal(t, epoch, clock.Now())
	assert.False(t, ratelimit.SystemClock{}.Now().IsZero())
}
