package stats

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldAllowed = "allowed"
	fieldDenied  = "denied"
)

// RedisRecorder is a Redis implementation of Recorder. Totals are cumulative;
// per-minute buckets expire after ttl.
type RedisRecorder struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisRecorder.
type RedisOption func(*RedisRecorder)

func WithPrefix(prefix string) RedisOption {
	return func(r *RedisRecorder) { r.prefix = prefix }
}

func WithBucketTTL(ttl time.Duration) RedisOption {
	return func(r *RedisRecorder) { r.ttl = ttl }
}

// NewRedisRecorder creates a new Redis-backed recorder.
func NewRedisRecorder(client *redis.Client, opts ...RedisOption) *RedisRecorder {
	r := &RedisRecorder{
		client: client,
		prefix: "quota:stats",
		ttl:    24 * time.Hour,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *RedisRecorder) Record(ctx context.Context, event Event) error {
	at := event.At
	if at.IsZero() {
		at = time.Now()
	}

	field := fieldDenied
	if event.Admitted {
		field = fieldAllowed
	}

	bucketKey := r.BucketKey(at)

	// Pipeline keeps the total and the bucket in one round trip
	pipe := r.client.Pipeline()
	pipe.HIncrBy(ctx, r.totalKey(), field, 1)
	pipe.HIncrBy(ctx, bucketKey, field, 1)

	if r.ttl > 0 {
		pipe.Expire(ctx, bucketKey, r.ttl)
	}

	if event.Path != "" {
		pipe.HIncrBy(ctx, r.prefix+":route", event.Method+" "+event.Path+":"+field, 1)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record decision: %w", err)
	}

	return nil
}

func (r *RedisRecorder) Totals(ctx context.Context) (Totals, error) {
	values, err := r.client.HGetAll(ctx, r.totalKey()).Result()
	if err != nil {
		return Totals{}, err
	}

	var totals Totals

	if totals.Allowed, err = parseCount(values[fieldAllowed]); err != nil {
		return Totals{}, err
	}

	if totals.Denied, err = parseCount(values[fieldDenied]); err != nil {
		return Totals{}, err
	}

	return totals, nil
}

// BucketKey returns the per-minute hash key for at.
func (r *RedisRecorder) BucketKey(at time.Time) string {
	return r.prefix + ":minute:" + at.UTC().Format("200601021504")
}

func (r *RedisRecorder) totalKey() string {
	return r.prefix + ":total"
}

func parseCount(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse counter %q: %w", v, err)
	}

	return n, nil
}
