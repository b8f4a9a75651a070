package payment_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theBullfish/replier-web/pkg/payment"
)

// paypalAPI is a fake wallet REST API with a client-credentials token
// endpoint. Handlers receive the decoded JSON body.
type paypalAPI struct {
	mu         sync.Mutex
	bodies     map[string][]map[string]any
	routes     map[string]func(w http.ResponseWriter, body map[string]any)
	tokenCalls atomic.Int32
}

func newPayPalAPI(t *testing.T) (*paypalAPI, *payment.PayPalProvider) {
	t.Helper()

	api := &paypalAPI{
		bodies: make(map[string][]map[string]any),
		routes: make(map[string]func(http.ResponseWriter, map[string]any)),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if r.URL.Path == "/v1/oauth2/token" {
			id, secret, ok := r.BasicAuth()
			if !ok || id != "client-id" || secret != "client-secret" {
				w.WriteHeader(http.StatusUnauthorized)
				fmt.Fprint(w, `{"error":"invalid_client","error_description":"Client Authentication failed"}`)
				return
			}
			api.tokenCalls.Add(1)
			fmt.Fprint(w, `{"access_token":"A21AA-token","token_type":"Bearer","expires_in":32400}`)
			return
		}

		if r.Header.Get("Authorization") != "Bearer A21AA-token" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"name":"AUTHENTICATION_FAILURE","message":"missing token"}`)
			return
		}

		var body map[string]any
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			require.NoError(t, json.Unmarshal(data, &body))
		}
		key := r.Method + " " + r.URL.Path

		api.mu.Lock()
		api.bodies[key] = append(api.bodies[key], body)
		route, ok := api.routes[key]
		api.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintf(w, `{"name":"RESOURCE_NOT_FOUND","message":"no route %s","debug_id":"dbg-1"}`, key)
			return
		}
		route(w, body)
	}))
	t.Cleanup(srv.Close)

	p, err := payment.NewPayPal("client-id", "client-secret",
		payment.WithPayPalBaseURL(srv.URL),
		payment.WithHTTPClient(srv.Client()),
		payment.WithHTTPConfig(payment.HTTPConfig{BrandName: "Replier Labs"}),
	)
	require.NoError(t, err)
	return api, p
}

func (a *paypalAPI) respond(route string, status int, body string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.routes[route] = func(w http.ResponseWriter, _ map[string]any) {
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}
}

func (a *paypalAPI) calls(route string) []map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bodies[route]
}

func TestPayPalProvider_SubscriptionCheckout(t *testing.T) {
	t.Parallel()

	api, p := newPayPalAPI(t)
	api.respond("POST /v1/billing/subscriptions", http.StatusCreated, `{"id":"I-SUB1","status":"APPROVAL_PENDING"}`)
	api.respond("GET /v1/billing/subscriptions/I-SUB1", http.StatusOK, `{
		"id": "I-SUB1",
		"status": "APPROVAL_PENDING",
		"links": [
			{"href": "https://www.sandbox.paypal.com/webapps/billing/subscriptions?ba_token=BA-1", "rel": "approve", "method": "GET"},
			{"href": "https://api-m.sandbox.paypal.com/v1/billing/subscriptions/I-SUB1", "rel": "self", "method": "GET"}
		]
	}`)

	sess, err := p.CreateCheckoutSession(context.Background(), payment.CheckoutParams{
		Currency:   "usd",
		Product:    payment.CheckoutProduct{ID: "prod-1", PriceID: "P-PLAN1", Mode: payment.ModeSubscription},
		User:       payment.CheckoutUser{ID: "user-1", Email: "ann@example.com"},
		SuccessURL: "https://app.example.com/api/checkout/paypal",
		CancelURL:  "https://app.example.com/dashboard/settings/account",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://www.sandbox.paypal.com/webapps/billing/subscriptions?ba_token=BA-1", sess.URL)
	assert.Equal(t, "I-SUB1", sess.ID)

	calls := api.calls("POST /v1/billing/subscriptions")
	require.Len(t, calls, 1)
	body := calls[0]
	assert.Equal(t, "P-PLAN1", body["plan_id"])
	assert.Equal(t, map[string]any{"email_address": "ann@example.com"}, body["subscriber"])

	var custom map[string]string
	require.NoError(t, json.Unmarshal([]byte(body["custom_id"].(string)), &custom))
	assert.Equal(t, map[string]string{"userId": "user-1", "productId": "prod-1"}, custom)

	appCtx := body["application_context"].(map[string]any)
	assert.Equal(t, "SUBSCRIBE_NOW", appCtx["user_action"])
	assert.Equal(t, "NO_SHIPPING", appCtx["shipping_preference"])
	assert.Equal(t, "en-US", appCtx["locale"])
	assert.Equal(t, "Replier Labs", appCtx["brand_name"])
	assert.Equal(t, "https://app.example.com/api/checkout/paypal", appCtx["return_url"])
}

func TestPayPalProvider_OrderCheckout(t *testing.T) {
	t.Parallel()

	t.Run("returns approve link", func(t *testing.T) {
		t.Parallel()
		api, p := newPayPalAPI(t)
		api.respond("POST /v2/checkout/orders", http.StatusCreated, `{
			"id": "ORDER-1",
			"status": "CREATED",
			"links": [{"href": "https://www.sandbox.paypal.com/checkoutnow?token=ORDER-1", "rel": "approve"}]
		}`)

		sess, err := p.CreateCheckoutSession(context.Background(), payment.CheckoutParams{
			Currency: "eur",
			Product: payment.CheckoutProduct{
				ID:          "prod-2",
				Description: "Lifetime",
				Price:       decimal.RequireFromString("49.5"),
				Mode:        payment.ModePayment,
			},
			User: payment.CheckoutUser{ID: "user-2"},
		})
		require.NoError(t, err)
		assert.Equal(t, "https://www.sandbox.paypal.com/checkoutnow?token=ORDER-1", sess.URL)

		body := api.calls("POST /v2/checkout/orders")[0]
		assert.Equal(t, "CAPTURE", body["intent"])
		unit := body["purchase_units"].([]any)[0].(map[string]any)
		assert.Equal(t, map[string]any{"currency_code": "EUR", "value": "49.50"}, unit["amount"])
		assert.Equal(t, "prod-2", unit["reference_id"])
		assert.JSONEq(t, `{"userId":"user-2","productId":"prod-2"}`, unit["custom_id"].(string))
		assert.Equal(t, "PAY_NOW", body["application_context"].(map[string]any)["user_action"])
	})

	t.Run("missing approve link", func(t *testing.T) {
		t.Parallel()
		api, p := newPayPalAPI(t)
		api.respond("POST /v2/checkout/orders", http.StatusCreated, `{"id":"ORDER-2","status":"CREATED","links":[]}`)

		_, err := p.CreateCheckoutSession(context.Background(), payment.CheckoutParams{
			Product: payment.CheckoutProduct{ID: "prod-2", Price: decimal.NewFromInt(5), Mode: payment.ModePayment},
		})
		assert.ErrorIs(t, err, payment.ErrMissingApprovalLink)
	})

	t.Run("subscription without plan", func(t *testing.T) {
		t.Parallel()
		_, p := newPayPalAPI(t)

		_, err := p.CreateCheckoutSession(context.Background(), payment.CheckoutParams{
			Product: payment.CheckoutProduct{ID: "prod-3", Mode: payment.ModeSubscription},
		})
		assert.ErrorIs(t, err, payment.ErrMissingPriceID)
	})
}

func TestPayPalProvider_GetSessionAndCapture(t *testing.T) {
	t.Parallel()

	api, p := newPayPalAPI(t)
	api.respond("GET /v2/checkout/orders/ORDER-1", http.StatusOK, `{
		"id": "ORDER-1",
		"status": "APPROVED",
		"payer": {"payer_id": "PAYER1", "email_address": "bob@example.com", "name": {"given_name": "Bob", "surname": "Smith"}},
		"purchase_units": [{"reference_id": "prod-2", "custom_id": "{\"userId\":\"user-2\",\"productId\":\"prod-2\"}", "amount": {"currency_code": "EUR", "value": "49.50"}}]
	}`)
	api.respond("POST /v2/checkout/orders/ORDER-1/capture", http.StatusCreated, `{
		"id": "ORDER-1",
		"status": "COMPLETED",
		"payer": {"payer_id": "PAYER1"},
		"purchase_units": [{"reference_id": "prod-2", "payments": {"captures": [{"id": "CAP-1", "status": "COMPLETED", "amount": {"currency_code": "EUR", "value": "49.50"}}]}}]
	}`)

	ctx := context.Background()
	sess, err := p.GetSession(ctx, "ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, payment.SessionCustomer{ID: "PAYER1", Name: "Bob Smith", Email: "bob@example.com"}, sess.Customer)
	require.NotNil(t, sess.Payment)
	assert.Equal(t, "49.5", sess.Payment.Amount.String())
	assert.Equal(t, "eur", sess.Payment.Currency)
	assert.Equal(t, payment.StatusActive, sess.Payment.Status)
	assert.True(t, sess.Payment.NeedsCapture)
	assert.Equal(t, "user-2", sess.Metadata[payment.MetaUserID])
	assert.Equal(t, "prod-2", sess.Metadata[payment.MetaProductID])

	captured, err := p.CaptureOrder(ctx, "ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusActive, captured.Payment.Status)
	assert.False(t, captured.Payment.NeedsCapture)
	assert.Equal(t, "49.5", captured.Payment.Amount.String())

	assert.Equal(t, int32(1), api.tokenCalls.Load(), "token is cached between calls")
}

func TestPayPalProvider_GetSubscription(t *testing.T) {
	t.Parallel()

	api, p := newPayPalAPI(t)
	api.respond("GET /v1/billing/subscriptions/I-SUB1", http.StatusOK, `{
		"id": "I-SUB1",
		"status": "ACTIVE",
		"start_time": "2026-01-01T00:00:00Z",
		"custom_id": "{\"userId\":\"user-1\",\"productId\":\"prod-1\"}",
		"subscriber": {"payer_id": "PAYER1", "email_address": "ann@example.com"},
		"billing_info": {
			"next_billing_time": "2026-01-31T00:00:00Z",
			"last_payment": {"amount": {"currency_code": "USD", "value": "9.99"}, "time": "2026-01-01T00:00:05Z"}
		}
	}`)

	sub, err := p.GetSubscription(context.Background(), "I-SUB1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusActive, sub.Status)
	require.NotNil(t, sub.Amount)
	assert.Equal(t, "9.99", sub.Amount.String())
	assert.Equal(t, "usd", sub.Currency)
	assert.Equal(t, "PAYER1", sub.CustomerID)
	assert.Equal(t, "2026-01-31T00:00:00Z", sub.CurrentPeriodEnd.Format("2006-01-02T15:04:05Z07:00"))
	assert.Equal(t, "user-1", sub.Metadata[payment.MetaUserID])
}

func TestPayPalProvider_SubscriptionLifecycle(t *testing.T) {
	t.Parallel()

	api, p := newPayPalAPI(t)
	api.respond("POST /v1/billing/subscriptions/I-SUB1/revise", http.StatusOK, `{
		"plan_id": "P-NEW",
		"links": [{"href": "https://www.sandbox.paypal.com/webapps/billing/subscriptions/update?ba_token=BA-2", "rel": "approve"}]
	}`)
	api.respond("POST /v1/billing/subscriptions/I-SUB1/cancel", http.StatusNoContent, ``)

	ctx := context.Background()
	ref, err := p.UpdateSubscription(ctx, payment.UpdateSubscriptionParams{SubscriptionID: "I-SUB1", PriceID: "P-NEW"})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, ref.Status)
	assert.Contains(t, ref.ApprovalURL, "ba_token=BA-2")
	assert.Equal(t, "P-NEW", api.calls("POST /v1/billing/subscriptions/I-SUB1/revise")[0]["plan_id"])

	canceled, err := p.CancelSubscription(ctx, "I-SUB1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCanceled, canceled.Status)
	assert.Equal(t, "Canceled by customer", api.calls("POST /v1/billing/subscriptions/I-SUB1/cancel")[0]["reason"])
}

func TestPayPalProvider_CreatePrice(t *testing.T) {
	t.Parallel()

	api, p := newPayPalAPI(t)
	api.respond("POST /v1/catalogs/products", http.StatusCreated, `{"id":"PROD-1"}`)
	api.respond("POST /v1/billing/plans", http.StatusCreated, `{"id":"P-PLAN1","status":"ACTIVE"}`)
	api.respond("POST /v1/billing/plans/P-PLAN1/deactivate", http.StatusNoContent, ``)

	ctx := context.Background()
	price, err := p.CreatePrice(ctx, payment.PriceParams{
		Name:     "Pro",
		Amount:   decimal.RequireFromString("9.99"),
		Currency: "usd",
		Interval: "year",
	})
	require.NoError(t, err)
	assert.Equal(t, "P-PLAN1", price.ID)
	assert.True(t, price.Active)

	product := api.calls("POST /v1/catalogs/products")[0]
	assert.Equal(t, "DIGITAL", product["type"])
	assert.Equal(t, "SOFTWARE", product["category"])

	plan := api.calls("POST /v1/billing/plans")[0]
	assert.Equal(t, "PROD-1", plan["product_id"])
	cycle := plan["billing_cycles"].([]any)[0].(map[string]any)
	assert.Equal(t, "YEAR", cycle["frequency"].(map[string]any)["interval_unit"])
	assert.Equal(t, map[string]any{"currency_code": "USD", "value": "9.99"},
		cycle["pricing_scheme"].(map[string]any)["fixed_price"])

	updated, err := p.UpdatePrice(ctx, "P-PLAN1", false)
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.Len(t, api.calls("POST /v1/billing/plans/P-PLAN1/deactivate"), 1)
}

func TestPayPalProvider_MiscOperations(t *testing.T) {
	t.Parallel()

	api, p := newPayPalAPI(t)
	api.respond("POST /v1/notifications/webhooks", http.StatusCreated, `{"id":"WH-1","url":"https://app.example.com/api/webhook/paypal"}`)
	api.respond("GET /v1/reporting/balances", http.StatusOK, `{"balances":[
		{"currency":"EUR","available_balance":{"currency_code":"EUR","value":"1.00"},"withheld_balance":{"currency_code":"EUR","value":"0.00"}},
		{"currency":"USD","primary":true,"available_balance":{"currency_code":"USD","value":"250.10"},"withheld_balance":{"currency_code":"USD","value":"12.00"}}
	]}`)

	ctx := context.Background()
	hook, err := p.CreateWebhook(ctx, payment.WebhookParams{
		Endpoint: "https://app.example.com/api/webhook/paypal",
		Events:   []string{"BILLING.SUBSCRIPTION.UPDATED"},
	})
	require.NoError(t, err)
	assert.Equal(t, "WH-1", hook.Secret)
	assert.Equal(t, []any{map[string]any{"name": "BILLING.SUBSCRIPTION.UPDATED"}},
		api.calls("POST /v1/notifications/webhooks")[0]["event_types"])

	bal, err := p.GetBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "usd", bal.Currency)
	assert.Equal(t, "250.1", bal.Available.String())
	assert.Equal(t, "12", bal.Pending.String())

	cust, err := p.CreateCustomer(ctx, payment.CustomerParams{Email: "ann@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", cust.ID)

	_, err = p.ManageBillingPortal(ctx, payment.PortalParams{CustomerID: "x"})
	assert.ErrorIs(t, err, payment.ErrNotImplemented)
}

func TestPayPalProvider_APIError(t *testing.T) {
	t.Parallel()

	_, p := newPayPalAPI(t)

	_, err := p.GetSubscription(context.Background(), "I-MISSING")
	require.Error(t, err)

	var apiErr *payment.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "RESOURCE_NOT_FOUND", apiErr.Name)
	assert.Equal(t, "dbg-1", apiErr.DebugID)
}

func TestPayPalProvider_BadCredentials(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"invalid_client"}`)
	}))
	t.Cleanup(srv.Close)

	p, err := payment.NewPayPal("wrong", "creds", payment.WithPayPalBaseURL(srv.URL), payment.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	_, err = p.GetBalance(context.Background())
	assert.Error(t, err)
}
