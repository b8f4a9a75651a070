// Package billing mounts the payment HTTP surface: the public catalog,
// provider callbacks and webhooks, the signed-in user's payment actions and
// the admin endpoints for settings, products and reports.
package billing

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/theBullfish/replier-web/handler"
	"github.com/theBullfish/replier-web/pkg/ratelimiter"
	"github.com/theBullfish/replier-web/svc/billing"
	"github.com/theBullfish/replier-web/svc/settings"
)

// AdminRole is the role claim required by the admin routes.
const AdminRole = "admin"

type Module struct {
	billing  billing.Service
	settings settings.Service

	authenticate func(http.Handler) http.Handler
	authorize    func(http.Handler) http.Handler
	limiter      ratelimiter.Limiter
	logger       *slog.Logger
	errorHandler handler.ErrorHandler[handler.Context]
}

type Option func(*Module)

// WithAuthentication sets the middleware that verifies the caller and puts
// the claims into the request context. Without it the user and admin
// routes are not mounted.
func WithAuthentication(mw func(http.Handler) http.Handler) Option {
	return func(m *Module) {
		m.authenticate = mw
	}
}

// WithAdminAuthorization sets the middleware guarding the admin routes. It
// runs after authentication.
func WithAdminAuthorization(mw func(http.Handler) http.Handler) Option {
	return func(m *Module) {
		m.authorize = mw
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Module) {
		if l != nil {
			m.logger = l
		}
	}
}

// New panics if a service is nil.
func New(svc billing.Service, cfg settings.Service, opts ...Option) *Module {
	if svc == nil {
		panic("billing module: billing service is required")
	}
	if cfg == nil {
		panic("billing module: settings service is required")
	}

	m := &Module{
		billing:  svc,
		settings: cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.errorHandler = handler.NewErrorHandler(m.logger)
	return m
}

// Handle returns the router. Mount it at the application root; every
// route lives under /api.
//
//	r := chi.NewRouter()
//	r.Mount("/", billingmod.New(billingSvc, settingsSvc,
//		billingmod.WithAuthentication(jwt.Middleware(tokens)),
//		billingmod.WithAdminAuthorization(jwt.RequireRole(billingmod.AdminRole)),
//	).Handle())
func (m *Module) Handle() http.Handler {
	r := chi.NewRouter()

	r.Route("/api", func(api chi.Router) {
		api.Get("/products", wrap(m, m.listProducts))

		api.With(m.throttle).Get("/checkout/stripe", wrap(m, m.stripeCallback, queryBinder))
		api.With(m.throttle).Get("/checkout/paypal", wrap(m, m.paypalCallback, queryBinder))

		api.Post("/webhook/stripe", m.webhook(providerStripe))
		api.Post("/webhook/paypal", m.webhook(providerPayPal))

		if m.authenticate == nil {
			return
		}

		api.Group(func(user chi.Router) {
			user.Use(m.authenticate)
			user.Route("/payments", m.userRoutes)

			if m.authorize == nil {
				return
			}
			user.Group(func(admin chi.Router) {
				admin.Use(m.authorize)
				admin.Route("/admin", m.adminRoutes)
			})
		})
	})

	return r
}

func (m *Module) userRoutes(r chi.Router) {
	limited := r.With(m.throttle)
	limited.Post("/checkout", wrap(m, m.checkout, jsonBinder))
	limited.Post("/change-plan", wrap(m, m.changePlan, jsonBinder))
	limited.Post("/cancel", wrap(m, m.cancel, jsonBinder))
	limited.Post("/manage-billing", wrap(m, m.manageBilling))
	r.Get("/current", wrap(m, m.currentBilling))
}

func (m *Module) adminRoutes(r chi.Router) {
	r.Route("/settings", func(r chi.Router) {
		r.Get("/payment", wrap(m, m.getPaymentSettings))
		r.Put("/payment", wrap(m, m.updatePaymentSettings, jsonBinder))
		r.Get("/webhook", wrap(m, m.getWebhookSettings))
		r.Put("/webhook", wrap(m, m.updateWebhookSettings, jsonBinder))
		r.Get("/site", wrap(m, m.getSiteSettings))
		r.Put("/site", wrap(m, m.updateSiteSettings, jsonBinder))
	})

	r.Post("/payments/test-connection", wrap(m, m.testConnection))
	r.Get("/payments/balance", wrap(m, m.balance))

	r.Route("/products", func(r chi.Router) {
		r.Get("/", wrap(m, m.adminListProducts))
		r.Post("/", wrap(m, m.createProduct, jsonBinder))
		r.Put("/{id}", wrap(m, m.updateProduct, pathBinder, jsonBinder))
		r.Delete("/{id}", wrap(m, m.archiveProduct, pathBinder))
		r.Get("/{id}/subscribers", wrap(m, m.productSubscribers, pathBinder))
	})

	r.Route("/billing/stats", func(r chi.Router) {
		r.Get("/sales", wrap(m, m.salesStats, queryBinder))
		r.Get("/subscriptions", wrap(m, m.subscriptionStats, queryBinder))
		r.Get("/paid-users", wrap(m, m.paidUserStats, queryBinder))
		r.Get("/revenue", wrap(m, m.revenueOverview))
		r.Get("/recent-sales", wrap(m, m.recentSales, queryBinder))
		r.Get("/by-product", wrap(m, m.billingsByProduct, queryBinder))
	})
}
