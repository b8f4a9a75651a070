package billing

import (
	"net/http"

	"github.com/theBullfish/replier-web/handler"
	"github.com/theBullfish/replier-web/pkg/clientip"
	"github.com/theBullfish/replier-web/pkg/jwt"
	"github.com/theBullfish/replier-web/pkg/ratelimiter"
)

// WithRateLimiter throttles the routes that open provider sessions: the
// checkout callbacks per client address and the user's payment actions per
// user.
func WithRateLimiter(l ratelimiter.Limiter) Option {
	return func(m *Module) {
		m.limiter = l
	}
}

func rateLimitKey(r *http.Request) string {
	if claims, ok := jwt.ClaimsFromContext(r.Context()); ok && claims.UserID() != "" {
		return "user:" + claims.UserID()
	}
	ip := clientip.FromContext(r.Context())
	if ip == "" {
		ip = clientip.FromRequest(r)
	}
	if ip == "" {
		return ""
	}
	return "ip:" + ip
}

func (m *Module) throttle(next http.Handler) http.Handler {
	if m.limiter == nil {
		return next
	}
	return ratelimiter.Middleware(m.limiter, rateLimitKey,
		ratelimiter.WithMiddlewareLogger(m.logger),
		ratelimiter.WithDeniedHandler(func(w http.ResponseWriter, r *http.Request, _ ratelimiter.Result) {
			_ = handler.JSONError(handler.ErrTooManyRequests.WithMessage("Too many requests, try again later")).Render(w, r)
		}),
	)(next)
}
