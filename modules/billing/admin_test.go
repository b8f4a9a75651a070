package billing_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	billingmod "github.com/theBullfish/replier-web/modules/billing"
	"github.com/theBullfish/replier-web/pkg/payment"
	"github.com/theBullfish/replier-web/svc/billing"
)

func TestAdminRoutes_RequireAdmin(t *testing.T) {
	t.Parallel()

	a := newApp(t, newFakeProvider(payment.ProviderStripe))

	resp := a.do(t, http.MethodGet, "/api/admin/settings/payment", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = a.do(t, http.MethodGet, "/api/admin/settings/payment", a.token(t, "user-1", "user"), nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = a.do(t, http.MethodGet, "/api/admin/settings/payment", a.token(t, "root", billingmod.AdminRole), nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminSettings(t *testing.T) {
	t.Parallel()

	a := newApp(t, newFakeProvider(payment.ProviderStripe))
	admin := a.token(t, "root", billingmod.AdminRole)

	t.Run("secrets are masked", func(t *testing.T) {
		resp := a.do(t, http.MethodGet, "/api/admin/settings/payment", admin, nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		data := decode(t, resp)["data"].(map[string]any)
		assert.NotEqual(t, "key_0123456789", data["apiKey"])
		assert.NotContains(t, data["apiKey"], "key_01")
		assert.Equal(t, []any{"stripe"}, data["enabledProviders"])

		resp = a.do(t, http.MethodGet, "/api/admin/settings/webhook", admin, nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		data = decode(t, resp)["data"].(map[string]any)
		assert.NotEqual(t, webhookSecret, data["secret"])
		assert.Equal(t, "manual", data["mode"])
	})

	t.Run("masked secret submitted back keeps the stored one", func(t *testing.T) {
		resp := a.do(t, http.MethodGet, "/api/admin/settings/payment", admin, nil, nil)
		masked := decode(t, resp)["data"].(map[string]any)["apiKey"]

		resp = a.do(t, http.MethodPut, "/api/admin/settings/payment", admin, map[string]any{
			"enabledProviders": []string{"stripe"},
			"apiKey":           masked,
			"currency":         "EUR",
		}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "eur", decode(t, resp)["data"].(map[string]any)["currency"])

		doc, err := a.settings.Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "key_0123456789", doc.Payment.APIKey)
	})

	t.Run("site", func(t *testing.T) {
		resp := a.do(t, http.MethodPut, "/api/admin/settings/site", admin, map[string]any{
			"name": "Replier Staging",
			"url":  "https://staging.app.test/",
		}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		data := decode(t, resp)["data"].(map[string]any)
		assert.Equal(t, "https://staging.app.test", data["url"])

		resp = a.do(t, http.MethodPut, "/api/admin/settings/site", admin, map[string]any{"name": "", "url": "ftp://x"}, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("balance", func(t *testing.T) {
		resp := a.do(t, http.MethodGet, "/api/admin/payments/balance", admin, nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, map[string]any{"available": "0.00", "pending": "0.00", "currency": "usd"},
			decode(t, resp)["data"])
	})
}

func TestAdminProducts(t *testing.T) {
	t.Parallel()

	a := newApp(t, newFakeProvider(payment.ProviderStripe))
	admin := a.token(t, "root", billingmod.AdminRole)

	resp := a.do(t, http.MethodPost, "/api/admin/products", admin, map[string]any{
		"name":  "Pro",
		"price": "9.99",
		"type":  "month",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode(t, resp)["data"].(map[string]any)
	assert.Equal(t, "price_created", created["priceId"])
	assert.Equal(t, "9.99", created["price"])
	id := created["id"].(string)

	t.Run("invalid input", func(t *testing.T) {
		resp := a.do(t, http.MethodPost, "/api/admin/products", admin, map[string]any{"name": "", "price": "0"}, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("update", func(t *testing.T) {
		resp := a.do(t, http.MethodPut, "/api/admin/products/"+id, admin, map[string]any{
			"name":  "Pro Plus",
			"price": "9.99",
			"type":  "month",
		}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "Pro Plus", decode(t, resp)["data"].(map[string]any)["name"])
	})

	t.Run("bad id", func(t *testing.T) {
		resp := a.do(t, http.MethodDelete, "/api/admin/products/not-a-uuid", admin, nil, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("unknown id", func(t *testing.T) {
		resp := a.do(t, http.MethodGet, "/api/admin/products/6f1c1e9a-3b9c-4c53-9a52-0d7f9f2f1a11/subscribers", admin, nil, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("archive hides it from the public list", func(t *testing.T) {
		resp := a.do(t, http.MethodDelete, "/api/admin/products/"+id, admin, nil, nil)
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp = a.do(t, http.MethodGet, "/api/products", "", nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, decode(t, resp)["data"])

		resp = a.do(t, http.MethodGet, "/api/admin/products", admin, nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		list := decode(t, resp)["data"].([]any)
		require.Len(t, list, 1)
		assert.Equal(t, string(billing.ProductArchived), list[0].(map[string]any)["status"])

		resp = a.do(t, http.MethodGet, "/api/admin/products/"+id+"/subscribers", admin, nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(0), decode(t, resp)["meta"].(map[string]any)["count"])
	})
}

func TestAdminStats(t *testing.T) {
	t.Parallel()

	a := newApp(t, newFakeProvider(payment.ProviderStripe))
	admin := a.token(t, "root", billingmod.AdminRole)
	seedSubscription(t, a, payment.ProviderStripe, "sub_1")

	for _, path := range []string{
		"/api/admin/billing/stats/sales",
		"/api/admin/billing/stats/subscriptions",
		"/api/admin/billing/stats/paid-users",
		"/api/admin/billing/stats/revenue",
		"/api/admin/billing/stats/recent-sales?limit=3",
		"/api/admin/billing/stats/sales?from=2026-01-01&to=2026-02-01",
	} {
		resp := a.do(t, http.MethodGet, path, admin, nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	resp := a.do(t, http.MethodGet, "/api/admin/billing/stats/sales?from=2026-01-01", admin, nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = a.do(t, http.MethodGet, "/api/admin/billing/stats/by-product", admin, nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = a.do(t, http.MethodGet, "/api/admin/billing/stats/recent-sales", admin, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode(t, resp)["data"], 1)
}
