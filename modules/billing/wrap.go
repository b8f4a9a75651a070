package billing

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/theBullfish/replier-web/handler"
	"github.com/theBullfish/replier-web/pkg/binder"
	"github.com/theBullfish/replier-web/pkg/logger"
	"github.com/theBullfish/replier-web/pkg/payment"
)

const (
	providerStripe = payment.ProviderStripe
	providerPayPal = payment.ProviderPayPal
)

var (
	jsonBinder  handler.Bind = binder.JSON()
	queryBinder handler.Bind = binder.Query()
	pathBinder  handler.Bind = binder.Path(chi.URLParam)
)

// empty is the request type of endpoints that bind nothing.
type empty struct{}

// wrap adapts h with the module's error handler and the given binders.
func wrap[R any](m *Module, h handler.HandlerFunc[handler.Context, R], binders ...handler.Bind) http.HandlerFunc {
	return handler.Wrap(h,
		handler.WithBinders[handler.Context, R](binders...),
		handler.WithErrorHandler[handler.Context, R](m.errorHandler),
		handler.WithDecorators(timed[R](m.logger)),
	)
}

// timed logs the matched route and how long the handler took at debug level.
func timed[R any](log *slog.Logger) handler.Decorator[handler.Context, R] {
	return func(next handler.HandlerFunc[handler.Context, R]) handler.HandlerFunc[handler.Context, R] {
		return func(ctx handler.Context, req R) handler.Response {
			start := time.Now()
			resp := next(ctx, req)

			route := ctx.Request().URL.Path
			if rc := chi.RouteContext(ctx); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			log.DebugContext(ctx, "billing request handled",
				logger.Component("billing_http"),
				slog.String("method", ctx.Request().Method),
				slog.String("route", route),
				logger.Duration(time.Since(start)),
			)
			return resp
		}
	}
}
