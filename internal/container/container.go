package container

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor" // CBOR format support for huma
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/serroba/quota-gate/internal/events"
	"github.com/serroba/quota-gate/internal/events/sink"
	"github.com/serroba/quota-gate/internal/handlers"
	"github.com/serroba/quota-gate/internal/health"
	"github.com/serroba/quota-gate/internal/middleware"
	"github.com/serroba/quota-gate/internal/ratelimit"
	"github.com/serroba/quota-gate/internal/stats"
	"github.com/serroba/quota-gate/internal/store"
	"go.uber.org/zap"
)

var errConsumerNeedsRedis = errors.New("consumer requires a redis address")

// Options is the server configuration, read from flags and SERVICE_* environment variables.
type Options struct {
	Port            int           `default:"8888"    help:"Port to listen on"                            short:"p"`
	Limit           int           `default:"60"      help:"Requests allowed per client per window"       short:"l"`
	RefreshInterval time.Duration `default:"1m"      help:"Window length after which a client's quota resets"`
	AutoPurge       bool          `default:"false"   help:"Periodically remove expired quota records"`
	PurgeInterval   time.Duration `default:"12h"     help:"Minimum time between purge sweeps"`
	Shards          int           `default:"64"      help:"Number of quota store shards"`
	TrustProxy      bool          `default:"false"   help:"Take client IP from X-Forwarded-For / X-Real-IP"`
	RedisAddr       string        `default:""        help:"Redis address for stats and events (disabled when empty)" short:"r"`
	PostgresDSN     string        `default:""        help:"PostgreSQL DSN for rejection events (consumer only)"`
	LogFormat       string        `default:"console" help:"Log format: console or json"`
}

// RedisClient is the optional Redis connection; Client is nil when RedisAddr is empty.
type RedisClient struct {
	Client *redis.Client
}

func (r *RedisClient) Shutdown() error {
	if r.Client == nil {
		return nil
	}

	return r.Client.Close()
}

// PostgresPool is the optional PostgreSQL pool; Pool is nil when PostgresDSN is empty.
type PostgresPool struct {
	Pool *pgxpool.Pool
}

func (p *PostgresPool) Shutdown() error {
	if p.Pool != nil {
		p.Pool.Close()
	}

	return nil
}

// LoggerPackage provides the *zap.Logger.
func LoggerPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*zap.Logger, error) {
		opts := do.MustInvoke[*Options](i)

		if opts.LogFormat == "json" {
			return zap.NewProduction()
		}

		return zap.NewDevelopment()
	})
}

// RedisPackage provides the optional Redis client.
func RedisPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*RedisClient, error) {
		opts := do.MustInvoke[*Options](i)
		if opts.RedisAddr == "" {
			return &RedisClient{}, nil
		}

		return &RedisClient{Client: redis.NewClient(&redis.Options{Addr: opts.RedisAddr})}, nil
	})
}

// PostgresPackage provides the optional PostgreSQL pool.
func PostgresPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*PostgresPool, error) {
		opts := do.MustInvoke[*Options](i)
		if opts.PostgresDSN == "" {
			return &PostgresPool{}, nil
		}

		pool, err := pgxpool.New(context.Background(), opts.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}

		return &PostgresPool{Pool: pool}, nil
	})
}

// RateLimitPackage provides the quota store, the limiter and the decision recorder.
func RateLimitPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*store.QuotaMemoryStore, error) {
		opts := do.MustInvoke[*Options](i)

		return store.NewQuotaMemoryStore(opts.Shards), nil
	})

	do.Provide(injector, func(i *do.Injector) (*ratelimit.QuotaLimiter, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		if opts.Limit <= 0 {
			return nil, fmt.Errorf("%w: got %d", ratelimit.ErrInvalidLimit, opts.Limit)
		}

		return ratelimit.New(
			do.MustInvoke[*store.QuotaMemoryStore](i),
			opts.RefreshInterval,
			ratelimit.WithLimit(uint64(opts.Limit)),
			ratelimit.WithAutoPurge(opts.AutoPurge),
			ratelimit.WithPurgeInterval(opts.PurgeInterval),
			ratelimit.WithLogger(logger.Named("ratelimit")),
		)
	})

	do.Provide(injector, func(i *do.Injector) (stats.Recorder, error) {
		rc := do.MustInvoke[*RedisClient](i)
		if rc.Client == nil {
			return stats.NewMemoryRecorder(), nil
		}

		return stats.NewRedisRecorder(rc.Client), nil
	})
}

// PublisherPackage provides the rejection event publisher. Without Redis it is nil.
func PublisherPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*events.Publisher, error) {
		rc := do.MustInvoke[*RedisClient](i)
		if rc.Client == nil {
			return nil, nil
		}

		pub, err := events.NewRedisPublisher(rc.Client, do.MustInvoke[*zap.Logger](i).Named("events"))
		if err != nil {
			return nil, fmt.Errorf("redis stream publisher: %w", err)
		}

		return events.NewPublisher(pub)
	})
}

// ConsumerPackage provides the rejection event consumer and its sink.
func ConsumerPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (events.Sink, error) {
		logger := do.MustInvoke[*zap.Logger](i)
		pg := do.MustInvoke[*PostgresPool](i)

		if pg.Pool == nil {
			return sink.NewLog(logger), nil
		}

		pgSink := sink.NewPostgres(pg.Pool)
		if err := pgSink.EnsureSchema(context.Background()); err != nil {
			return nil, err
		}

		return pgSink, nil
	})

	do.Provide(injector, func(i *do.Injector) (*events.Consumer, error) {
		logger := do.MustInvoke[*zap.Logger](i)
		rc := do.MustInvoke[*RedisClient](i)

		if rc.Client == nil {
			return nil, errConsumerNeedsRedis
		}

		sub, err := events.NewRedisSubscriber(rc.Client, logger.Named("events"))
		if err != nil {
			return nil, fmt.Errorf("redis stream subscriber: %w", err)
		}

		return events.NewConsumer(sub, do.MustInvoke[events.Sink](i), logger), nil
	})
}

// HTTPPackage provides the router and the Huma API with middleware and routes registered.
func HTTPPackage(injector *do.Injector) {
	do.Provide(injector, func(_ *do.Injector) (*chi.Mux, error) {
		return chi.NewMux(), nil
	})

	do.Provide(injector, func(i *do.Injector) (huma.API, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)
		router := do.MustInvoke[*chi.Mux](i)
		limiter := do.MustInvoke[*ratelimit.QuotaLimiter](i)
		recorder := do.MustInvoke[stats.Recorder](i)

		api := humachi.New(router, huma.DefaultConfig("Quota Gate", "1.0.0"))

		mwOpts := []middleware.Option{
			middleware.WithRecorder(recorder),
			middleware.WithTrustedProxy(opts.TrustProxy),
		}

		if publisher := do.MustInvoke[*events.Publisher](i); publisher != nil {
			mwOpts = append(mwOpts, middleware.WithRejectionPublisher(publisher))
		}

		// Middleware must be registered before routes
		api.UseMiddleware(middleware.RateLimiter(api, limiter, logger.Named("http"), mwOpts...))

		handlers.RegisterRoutes(api, handlers.NewQuotaHandler(limiter, recorder))
		health.RegisterRoutes(api, health.NewHandler(healthCheckers(i)))

		return api, nil
	})
}

func healthCheckers(i *do.Injector) map[string]health.Checker {
	checkers := map[string]health.Checker{}

	if rc := do.MustInvoke[*RedisClient](i); rc.Client != nil {
		checkers["redis"] = health.NewRedisChecker(rc.Client)
	}

	if pg := do.MustInvoke[*PostgresPool](i); pg.Pool != nil {
		checkers["postgres"] = health.NewPostgresChecker(pg.Pool)
	}

	return checkers
}
