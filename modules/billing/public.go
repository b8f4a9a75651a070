package billing

import (
	"net/url"

	"github.com/theBullfish/replier-web/handler"
	"github.com/theBullfish/replier-web/pkg/logger"
	"github.com/theBullfish/replier-web/svc/billing"
)

func (m *Module) listProducts(ctx handler.Context, _ empty) handler.Response {
	products, err := m.billing.ListProducts(ctx, true)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(products)
}

type stripeCallbackRequest struct {
	SessionID string `query:"session_id"`
}

type paypalCallbackRequest struct {
	Token          string `query:"token"`
	SubscriptionID string `query:"subscription_id"`
}

// siteURL returns the configured public URL, or "/" when settings are
// unreadable, so callbacks can always redirect somewhere.
func (m *Module) siteURL(ctx handler.Context) string {
	cfg, err := m.settings.Get(ctx)
	if err != nil || cfg.SiteURL() == "" {
		return "/"
	}
	return cfg.SiteURL()
}

// callbackRedirect sends the buyer to the dashboard with the resulting
// status, or to the error page.
func (m *Module) callbackRedirect(ctx handler.Context, rec *billing.Record, err error) handler.Response {
	site := m.siteURL(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "checkout callback failed",
			logger.Component("checkout"),
			logger.Error(err),
		)
		return handler.Redirect(site + "/error")
	}
	return handler.Redirect(site + "/dashboard?subscription_status=" + url.QueryEscape(string(rec.Status)))
}

func (m *Module) stripeCallback(ctx handler.Context, req stripeCallbackRequest) handler.Response {
	if req.SessionID == "" {
		return handler.Redirect(m.siteURL(ctx))
	}
	rec, err := m.billing.CompleteStripeCheckout(ctx, req.SessionID)
	return m.callbackRedirect(ctx, rec, err)
}

func (m *Module) paypalCallback(ctx handler.Context, req paypalCallbackRequest) handler.Response {
	if req.Token == "" {
		return handler.Redirect(m.siteURL(ctx))
	}
	rec, err := m.billing.CompletePayPalCheckout(ctx, req.Token, req.SubscriptionID)
	return m.callbackRedirect(ctx, rec, err)
}
