package billing

import (
	"net/http"

	"github.com/theBullfish/replier-web/handler"
	"github.com/theBullfish/replier-web/pkg/payment"
	"github.com/theBullfish/replier-web/svc/billing"
	"github.com/theBullfish/replier-web/svc/settings"
)

// Settings responses never carry plain secrets. Masked values submitted
// back keep the stored secret.

func (m *Module) getPaymentSettings(ctx handler.Context, _ empty) handler.Response {
	cfg, err := m.settings.Get(ctx)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(cfg.Redacted().Payment)
}

func (m *Module) updatePaymentSettings(ctx handler.Context, req payment.Config) handler.Response {
	cfg, err := m.settings.UpdatePayment(ctx, req)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(cfg.Redacted().Payment)
}

func (m *Module) getWebhookSettings(ctx handler.Context, _ empty) handler.Response {
	cfg, err := m.settings.Get(ctx)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(cfg.Redacted().Webhook)
}

// updateWebhookSettings registers the endpoint with the provider in auto
// mode before saving.
func (m *Module) updateWebhookSettings(ctx handler.Context, req settings.Webhook) handler.Response {
	cfg, err := m.billing.ConfigureWebhook(ctx, req)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(cfg.Redacted().Webhook)
}

func (m *Module) getSiteSettings(ctx handler.Context, _ empty) handler.Response {
	cfg, err := m.settings.Get(ctx)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(cfg.Site)
}

func (m *Module) updateSiteSettings(ctx handler.Context, req settings.Site) handler.Response {
	cfg, err := m.settings.UpdateSite(ctx, req)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(cfg.Site)
}

func (m *Module) testConnection(ctx handler.Context, _ empty) handler.Response {
	return handler.JSON(m.billing.TestConnection(ctx))
}

func (m *Module) balance(ctx handler.Context, _ empty) handler.Response {
	b, err := m.billing.Balance(ctx)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(map[string]string{
		"available": b.Available.StringFixed(2),
		"pending":   b.Pending.StringFixed(2),
		"currency":  b.Currency,
	})
}

func (m *Module) adminListProducts(ctx handler.Context, _ empty) handler.Response {
	products, err := m.billing.ListProducts(ctx, false)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(products)
}

func (m *Module) createProduct(ctx handler.Context, req billing.ProductInput) handler.Response {
	product, err := m.billing.CreateProduct(ctx, req)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(product, handler.WithJSONStatus(http.StatusCreated))
}

type productPath struct {
	ID string `path:"id"`
}

type updateProductRequest struct {
	ID string `path:"id" json:"-"`
	billing.ProductInput
}

func (m *Module) updateProduct(ctx handler.Context, req updateProductRequest) handler.Response {
	id, err := parseID("id", req.ID)
	if err != nil {
		return fail(err)
	}
	product, err := m.billing.UpdateProduct(ctx, id, req.ProductInput)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(product)
}

func (m *Module) archiveProduct(ctx handler.Context, req productPath) handler.Response {
	id, err := parseID("id", req.ID)
	if err != nil {
		return fail(err)
	}
	if err := m.billing.ArchiveProduct(ctx, id); err != nil {
		return fail(err)
	}
	return handler.Empty()
}

func (m *Module) productSubscribers(ctx handler.Context, req productPath) handler.Response {
	id, err := parseID("id", req.ID)
	if err != nil {
		return fail(err)
	}
	records, err := m.billing.ProductSubscribers(ctx, id)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(records, handler.WithJSONMeta(map[string]any{"count": len(records)}))
}
