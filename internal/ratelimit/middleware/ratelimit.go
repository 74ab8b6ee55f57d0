// Package middleware limits API calls per caller. Authenticated callers are
// bucketed by token subject, anonymous ones by client IP.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"certverify/internal/ratelimit/models"
	"certverify/pkg/platform/circuit"
	"certverify/pkg/platform/httputil"
	"certverify/pkg/requestcontext"
)

// HeaderStatus is set to "degraded" while the fallback limiter answers.
const HeaderStatus = "X-RateLimit-Status"

// Limiter is a bucket store.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error)
}

type Middleware struct {
	primary  Limiter
	fallback Limiter
	breaker  *circuit.Breaker
	limit    models.Limit
	logger   *slog.Logger
}

type Option func(*Middleware)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Middleware) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithFallback answers while the primary store is failing. Without one the
// middleware fails open.
func WithFallback(l Limiter) Option {
	return func(m *Middleware) {
		m.fallback = l
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(m *Middleware) {
		if b != nil {
			m.breaker = b
		}
	}
}

func New(primary Limiter, limit models.Limit, opts ...Option) *Middleware {
	m := &Middleware{
		primary: primary,
		limit:   limit,
		logger:  slog.Default(),
		breaker: circuit.New("ratelimit", circuit.WithSuccessThreshold(3)),
	}
	for _, opt := range opts {
		opt(m)
	}
	if !limit.Enabled() {
		m.logger.Info("rate limiting disabled")
	}
	return m
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	if !m.limit.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key := callerKey(ctx)

		result, degraded, err := m.check(ctx, key)
		if err != nil {
			m.logger.ErrorContext(ctx, "rate limit check failed", "key", key, "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if degraded {
			w.Header().Set(HeaderStatus, "degraded")
		}
		if result == nil {
			next.ServeHTTP(w, r)
			return
		}

		addRateLimitHeaders(w, result)
		if !result.Allowed {
			m.logger.InfoContext(ctx, "rate limit exceeded", "key", key)
			writeRateLimitExceeded(w, result)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// check consults the primary store while the breaker allows it. A nil
// result with a nil error means fail open.
func (m *Middleware) check(ctx context.Context, key string) (*models.RateLimitResult, bool, error) {
	if m.breaker.Allow() {
		result, err := m.primary.Allow(ctx, key, m.limit.Requests, m.limit.Window)
		if err == nil {
			if _, change := m.breaker.RecordSuccess(); change.Closed {
				m.logger.InfoContext(ctx, "rate limit store recovered")
			}
			return result, false, nil
		}
		useFallback, change := m.breaker.RecordFailure()
		if change.Opened {
			m.logger.WarnContext(ctx, "rate limit store failing, switching to fallback", "error", err)
		}
		if !useFallback {
			m.logger.WarnContext(ctx, "rate limit store error", "error", err)
			return nil, false, nil
		}
	}
	if m.fallback == nil {
		return nil, true, nil
	}
	result, err := m.fallback.Allow(ctx, key, m.limit.Requests, m.limit.Window)
	return result, true, err
}

func callerKey(ctx context.Context) string {
	if subject := requestcontext.Subject(ctx); subject != "" {
		return models.SubjectKey(subject)
	}
	return models.IPKey(requestcontext.ClientIP(ctx))
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.RateLimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, result *models.RateLimitResult) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.RateLimitExceededResponse{
		Error:      "rate_limit_exceeded",
		Message:    "Too many verification requests. Please try again later.",
		RetryAfter: result.RetryAfter,
	})
}
