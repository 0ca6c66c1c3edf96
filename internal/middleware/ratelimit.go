package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/quota-gate/internal/events"
	"github.com/serroba/quota-gate/internal/ratelimit"
	"github.com/serroba/quota-gate/internal/stats"
	"go.uber.org/zap"
)

// Quota headers set on every rate limited response.
const (
	HeaderLimit     = "Rate-Limit-Limit"
	HeaderRemaining = "Rate-Limit-Remaining"
	HeaderReset     = "Rate-Limit-Reset"
)

// RejectionPublisher publishes an event for each rejected request.
type RejectionPublisher interface {
	PublishRejected(event *events.RejectedEvent) error
}

// Option configures the RateLimiter middleware.
type Option func(*options)

type options struct {
	recorder   stats.Recorder
	publisher  RejectionPublisher
	trustProxy bool
}

// WithRecorder counts every decision in r.
func WithRecorder(r stats.Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithRejectionPublisher publishes a RejectedEvent for every 429.
func WithRejectionPublisher(p RejectionPublisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithTrustedProxy takes the client IP from X-Forwarded-For / X-Real-IP.
// Only enable it behind a proxy that overwrites those headers.
func WithTrustedProxy(trust bool) Option {
	return func(o *options) { o.trustProxy = trust }
}

// RateLimiter returns a Huma middleware that enforces a per-client quota keyed
// by client IP and request path. Admitted and rejected responses both carry the
// Rate-Limit-* headers; rejected requests get 429 and never reach next.
//
// Operations can opt out via ratelimit.MetadataKey with EndpointConfig{Disabled: true}.
func RateLimiter(
	api huma.API,
	limiter ratelimit.Limiter,
	logger *zap.Logger,
	opts ...Option,
) func(ctx huma.Context, next func(huma.Context)) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	return func(ctx huma.Context, next func(huma.Context)) {
		if cfg := getEndpointConfig(ctx); cfg != nil && cfg.Disabled {
			next(ctx)

			return
		}

		ip := clientIP(ctx, o.trustProxy)
		path := ctx.URL().Path
		key := clientKey(ip, path)

		decision := limiter.Evaluate(key)

		setQuotaHeaders(ctx, decision)
		o.recordDecision(ctx, key, path, decision, logger)

		if !decision.Admitted {
			logger.Warn("rate limit exceeded",
				zap.String("path", path),
				zap.String("method", ctx.Method()),
				zap.String("client_ip", ip),
				zap.Uint64("limit", decision.Limit),
				zap.Int("reset", decision.ResetSeconds),
			)
			o.publishRejected(ctx, key, ip, path, decision, logger)

			_ = huma.WriteErr(api, ctx, http.StatusTooManyRequests, "rate limit exceeded")

			return
		}

		next(ctx)
	}
}

func (o *options) recordDecision(
	ctx huma.Context,
	key, path string,
	decision ratelimit.Decision,
	logger *zap.Logger,
) {
	if o.recorder == nil {
		return
	}

	err := o.recorder.Record(ctx.Context(), stats.Event{
		Key:      key,
		Admitted: decision.Admitted,
		Method:   ctx.Method(),
		Path:     path,
		At:       time.Now(),
	})
	if err != nil {
		logger.Error("failed to record rate limit decision", zap.String("path", path), zap.Error(err))
	}
}

func (o *options) publishRejected(
	ctx huma.Context,
	key, ip, path string,
	decision ratelimit.Decision,
	logger *zap.Logger,
) {
	if o.publisher == nil {
		return
	}

	err := o.publisher.PublishRejected(&events.RejectedEvent{
		Key:          key,
		ClientIP:     ip,
		Method:       ctx.Method(),
		Path:         path,
		Limit:        decision.Limit,
		ResetSeconds: decision.ResetSeconds,
		RejectedAt:   time.Now(),
	})
	if err != nil {
		logger.Error("failed to publish rejected event", zap.String("path", path), zap.Error(err))
	}
}

func setQuotaHeaders(ctx huma.Context, decision ratelimit.Decision) {
	ctx.SetHeader(HeaderLimit, strconv.FormatUint(decision.Limit, 10))
	ctx.SetHeader(HeaderRemaining, strconv.FormatUint(decision.Remaining, 10))
	ctx.SetHeader(HeaderReset, strconv.Itoa(decision.ResetSeconds))
}

// getEndpointConfig extracts the EndpointConfig from operation metadata, if present.
func getEndpointConfig(ctx huma.Context) *ratelimit.EndpointConfig {
	op := ctx.Operation()
	if op == nil || op.Metadata == nil {
		return nil
	}

	cfg, ok := op.Metadata[ratelimit.MetadataKey].(ratelimit.EndpointConfig)
	if !ok {
		return nil
	}

	return &cfg
}

// clientKey generates a unique key for rate limiting based on IP and path.
func clientKey(ip, path string) string {
	hash := sha256.Sum256([]byte(ip + "|" + path))

	return hex.EncodeToString(hash[:])
}

// clientIP extracts the client IP from the request, considering proxies when trusted.
func clientIP(ctx huma.Context, trustProxy bool) string {
	if trustProxy {
		// Take the first IP (original client)
		if xff := ctx.Header("X-Forwarded-For"); xff != "" {
			if idx := strings.Index(xff, ","); idx != -1 {
				return strings.TrimSpace(xff[:idx])
			}

			return strings.TrimSpace(xff)
		}

		if xri := ctx.Header("X-Real-IP"); xri != "" {
			return xri
		}
	}

	addr := ctx.RemoteAddr()

	ip, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}

	return ip
}
