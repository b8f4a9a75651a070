package ratelimiter

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// KeyFunc returns the bucket key for r. An empty key skips limiting.
type KeyFunc func(r *http.Request) string

// DeniedFunc writes the response for a denied request. The X-RateLimit and
// Retry-After headers are already set.
type DeniedFunc func(w http.ResponseWriter, r *http.Request, res Result)

type middlewareConfig struct {
	denied DeniedFunc
	logger *slog.Logger
	now    func() time.Time
}

type MiddlewareOption func(*middlewareConfig)

func WithDeniedHandler(fn DeniedFunc) MiddlewareOption {
	return func(c *middlewareConfig) {
		if fn != nil {
			c.denied = fn
		}
	}
}

// WithMiddlewareLogger logs store failures. Requests are let through when
// the store fails.
func WithMiddlewareLogger(l *slog.Logger) MiddlewareOption {
	return func(c *middlewareConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

func Middleware(l Limiter, key KeyFunc, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := &middlewareConfig{
		denied: func(w http.ResponseWriter, _ *http.Request, _ Result) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		},
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}

			res, err := l.Allow(r.Context(), k)
			if err != nil {
				cfg.logger.WarnContext(r.Context(), "rate limit check failed", slog.String("error", err.Error()))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(max(res.Remaining, 0)))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed() {
				secs := int(res.RetryAfter(cfg.now()).Round(time.Second).Seconds())
				h.Set("Retry-After", strconv.Itoa(max(secs, 1)))
				cfg.denied(w, r, res)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
