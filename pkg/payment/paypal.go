package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	PayPalLiveURL    = "https://api-m.paypal.com"
	PayPalSandboxURL = "https://api-m.sandbox.paypal.com"

	paypalMaxResponseBytes = 1 << 20
	paypalCancelReason     = "Canceled by customer"
)

// PayPalProvider implements Provider on the wallet processor's REST API.
// Amounts travel as decimal strings in major units.
type PayPalProvider struct {
	baseURL   string
	client    *http.Client
	brandName string
	log       *slog.Logger
}

// NewPayPal builds the adapter with OAuth2 client-credentials auth. The
// token is cached by the underlying token source and refreshed on expiry.
func NewPayPal(clientID, clientSecret string, opts ...Option) (*PayPalProvider, error) {
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("%w: paypal client id and secret are required", ErrInvalidConfig)
	}
	o := buildOptions(opts)

	baseURL := o.paypalBaseURL
	if baseURL == "" {
		baseURL = PayPalLiveURL
		if o.paypalSandbox {
			baseURL = PayPalSandboxURL
		}
	}

	transport := o.client()
	cc := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     baseURL + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	client := cc.Client(context.WithValue(context.Background(), oauth2.HTTPClient, transport))
	client.Timeout = transport.Timeout

	return &PayPalProvider{
		baseURL:   baseURL,
		client:    client,
		brandName: o.brandName,
		log:       o.log,
	}, nil
}

func (p *PayPalProvider) Name() ProviderName { return ProviderPayPal }

type ppLink struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method,omitempty"`
}

type ppMoney struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type ppName struct {
	GivenName string `json:"given_name,omitempty"`
	Surname   string `json:"surname,omitempty"`
}

func (n *ppName) full() string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.GivenName + " " + n.Surname)
}

type ppSubscription struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	PlanID     string `json:"plan_id"`
	StartTime  string `json:"start_time"`
	CustomID   string `json:"custom_id"`
	Subscriber *struct {
		PayerID      string  `json:"payer_id"`
		EmailAddress string  `json:"email_address"`
		Name         *ppName `json:"name"`
	} `json:"subscriber"`
	BillingInfo *struct {
		NextBillingTime string `json:"next_billing_time"`
		LastPayment     *struct {
			Amount ppMoney `json:"amount"`
			Time   string  `json:"time"`
		} `json:"last_payment"`
	} `json:"billing_info"`
	Links []ppLink `json:"links"`
}

type ppCapture struct {
	ID     string  `json:"id"`
	Status string  `json:"status"`
	Amount ppMoney `json:"amount"`
}

type ppPurchaseUnit struct {
	ReferenceID string  `json:"reference_id,omitempty"`
	CustomID    string  `json:"custom_id,omitempty"`
	Description string  `json:"description,omitempty"`
	Amount      ppMoney `json:"amount"`
	Payments    *struct {
		Captures []ppCapture `json:"captures"`
	} `json:"payments,omitempty"`
}

type ppOrder struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Payer  *struct {
		PayerID      string  `json:"payer_id"`
		EmailAddress string  `json:"email_address"`
		Name         *ppName `json:"name"`
	} `json:"payer"`
	PurchaseUnits []ppPurchaseUnit `json:"purchase_units"`
	Links         []ppLink         `json:"links"`
}

type ppAppContext struct {
	BrandName          string `json:"brand_name,omitempty"`
	Locale             string `json:"locale,omitempty"`
	ShippingPreference string `json:"shipping_preference"`
	UserAction         string `json:"user_action"`
	ReturnURL          string `json:"return_url"`
	CancelURL          string `json:"cancel_url"`
}

type ppErrorBody struct {
	Name             string `json:"name"`
	Message          string `json:"message"`
	DebugID          string `json:"debug_id"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// do sends a JSON request and decodes a 2xx answer into out. Non-2xx
// answers become *APIError.
func (p *PayPalProvider) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode paypal request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("failed to build paypal request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", "return=representation")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("paypal %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, paypalMaxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read paypal response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Provider: ProviderPayPal, StatusCode: resp.StatusCode}
		var eb ppErrorBody
		if json.Unmarshal(data, &eb) == nil {
			apiErr.Name = firstNonEmpty(eb.Name, eb.Error)
			apiErr.Message = firstNonEmpty(eb.Message, eb.ErrorDescription)
			apiErr.DebugID = eb.DebugID
		}
		p.log.WarnContext(ctx, "paypal api request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.String("debug_id", apiErr.DebugID),
		)
		return apiErr
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode paypal response: %w", err)
		}
	}
	return nil
}

// CreateCustomer makes no remote call: the wallet provider has no customer
// object, so the email address is the customer id.
func (p *PayPalProvider) CreateCustomer(_ context.Context, params CustomerParams) (*Customer, error) {
	if params.Email == "" {
		return nil, fmt.Errorf("%w: paypal customer requires an email", ErrInvalidMetadata)
	}
	return &Customer{ID: params.Email}, nil
}

func (p *PayPalProvider) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	if params.Product.Mode == ModeSubscription {
		return p.checkoutSubscription(ctx, params)
	}
	return p.checkoutOrder(ctx, params)
}

func (p *PayPalProvider) checkoutSubscription(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	if params.Product.PriceID == "" {
		return nil, ErrMissingPriceID
	}

	created, err := p.createSubscription(ctx, SubscriptionParams{
		CustomerID: params.User.Email,
		PriceID:    params.Product.PriceID,
		ReturnURL:  params.SuccessURL,
		CancelURL:  params.CancelURL,
		Metadata:   map[string]string{MetaUserID: params.User.ID, MetaProductID: params.Product.ID},
	})
	if err != nil {
		return nil, err
	}

	var sub ppSubscription
	if err := p.do(ctx, http.MethodGet, "/v1/billing/subscriptions/"+url.PathEscape(created.ID), nil, &sub); err != nil {
		return nil, err
	}
	link := findLink(sub.Links, "approve")
	if link == "" {
		return nil, ErrMissingApprovalLink
	}
	return &CheckoutSession{ID: created.ID, URL: link}, nil
}

func (p *PayPalProvider) checkoutOrder(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	currency := NormalizeCurrency(params.Currency)
	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []ppPurchaseUnit{{
			ReferenceID: params.Product.ID,
			CustomID:    correlation(map[string]string{MetaUserID: params.User.ID, MetaProductID: params.Product.ID}),
			Description: params.Product.Description,
			Amount:      formatMoney(params.Product.Price, currency),
		}},
		"application_context": ppAppContext{
			BrandName:          p.brandName,
			ShippingPreference: "NO_SHIPPING",
			UserAction:         "PAY_NOW",
			ReturnURL:          params.SuccessURL,
			CancelURL:          params.CancelURL,
		},
	}

	var order ppOrder
	if err := p.do(ctx, http.MethodPost, "/v2/checkout/orders", body, &order); err != nil {
		return nil, err
	}
	link := findLink(order.Links, "approve", "payer-action")
	if link == "" {
		return nil, ErrMissingApprovalLink
	}
	return &CheckoutSession{ID: order.ID, URL: link}, nil
}

func (p *PayPalProvider) createSubscription(ctx context.Context, params SubscriptionParams) (*ppSubscription, error) {
	body := map[string]any{
		"plan_id":    params.PriceID,
		"subscriber": map[string]string{"email_address": params.CustomerID},
		"custom_id":  correlation(params.Metadata),
		"application_context": ppAppContext{
			BrandName:          p.brandName,
			Locale:             "en-US",
			ShippingPreference: "NO_SHIPPING",
			UserAction:         "SUBSCRIBE_NOW",
			ReturnURL:          params.ReturnURL,
			CancelURL:          params.CancelURL,
		},
	}

	var sub ppSubscription
	if err := p.do(ctx, http.MethodPost, "/v1/billing/subscriptions", body, &sub); err != nil {
		return nil, err
	}
	if sub.ID == "" {
		return nil, fmt.Errorf("%w: subscription id missing from response", ErrInvalidPayload)
	}
	return &sub, nil
}

func (p *PayPalProvider) CreateSubscription(ctx context.Context, params SubscriptionParams) (*SubscriptionRef, error) {
	sub, err := p.createSubscription(ctx, params)
	if err != nil {
		return nil, err
	}
	return &SubscriptionRef{
		ID:          sub.ID,
		Status:      NormalizeStatus(sub.Status),
		ApprovalURL: findLink(sub.Links, "approve"),
	}, nil
}

func (p *PayPalProvider) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	var sub ppSubscription
	if err := p.do(ctx, http.MethodGet, "/v1/billing/subscriptions/"+url.PathEscape(subscriptionID), nil, &sub); err != nil {
		return nil, err
	}

	out := &Subscription{
		ID:                 sub.ID,
		Status:             NormalizeStatus(sub.Status),
		CurrentPeriodStart: parseTime(sub.StartTime),
		Metadata:           parseCorrelation(sub.CustomID),
	}
	if bi := sub.BillingInfo; bi != nil {
		out.CurrentPeriodEnd = parseTime(bi.NextBillingTime)
		if lp := bi.LastPayment; lp != nil && lp.Amount.Value != "" {
			out.Currency = NormalizeCurrency(lp.Amount.CurrencyCode)
			if amount, err := decimal.NewFromString(lp.Amount.Value); err == nil {
				out.Amount = &amount
			}
			if out.CurrentPeriodEnd == nil {
				out.CurrentPeriodEnd = parseTime(lp.Time)
			}
		}
	}
	if s := sub.Subscriber; s != nil {
		out.CustomerID = s.PayerID
		out.CustomerEmail = s.EmailAddress
	}
	return out, nil
}

// UpdateSubscription revises the plan. The provider may require the buyer
// to approve the revision, in which case the approval link is returned and
// the change stays pending.
func (p *PayPalProvider) UpdateSubscription(ctx context.Context, params UpdateSubscriptionParams) (*SubscriptionRef, error) {
	var resp struct {
		PlanID string   `json:"plan_id"`
		Links  []ppLink `json:"links"`
	}
	path := "/v1/billing/subscriptions/" + url.PathEscape(params.SubscriptionID) + "/revise"
	if err := p.do(ctx, http.MethodPost, path, map[string]string{"plan_id": params.PriceID}, &resp); err != nil {
		return nil, err
	}

	ref := &SubscriptionRef{ID: params.SubscriptionID, Status: StatusActive}
	if link := findLink(resp.Links, "approve"); link != "" {
		ref.Status = StatusPending
		ref.ApprovalURL = link
	}
	return ref, nil
}

func (p *PayPalProvider) CancelSubscription(ctx context.Context, subscriptionID string) (*SubscriptionRef, error) {
	path := "/v1/billing/subscriptions/" + url.PathEscape(subscriptionID) + "/cancel"
	if err := p.do(ctx, http.MethodPost, path, map[string]string{"reason": paypalCancelReason}, nil); err != nil {
		return nil, err
	}
	return &SubscriptionRef{ID: subscriptionID, Status: StatusCanceled}, nil
}

// GetSession resolves a one-time checkout order. Subscription checkouts are
// resolved with GetSubscription instead.
func (p *PayPalProvider) GetSession(ctx context.Context, orderID string) (*Session, error) {
	var order ppOrder
	if err := p.do(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(orderID), nil, &order); err != nil {
		return nil, err
	}
	return orderSession(&order)
}

// CaptureOrder captures an approved order so the funds move. The returned
// session reflects the captured state.
func (p *PayPalProvider) CaptureOrder(ctx context.Context, orderID string) (*Session, error) {
	var order ppOrder
	path := "/v2/checkout/orders/" + url.PathEscape(orderID) + "/capture"
	if err := p.do(ctx, http.MethodPost, path, map[string]any{}, &order); err != nil {
		return nil, err
	}
	return orderSession(&order)
}

func orderSession(order *ppOrder) (*Session, error) {
	if order.ID == "" {
		return nil, fmt.Errorf("%w: order id missing from response", ErrInvalidSession)
	}

	out := &Session{
		ID:       order.ID,
		Customer: SessionCustomer{ID: order.ID},
		Metadata: map[string]string{},
	}
	if payer := order.Payer; payer != nil {
		if payer.PayerID != "" {
			out.Customer.ID = payer.PayerID
		}
		out.Customer.Email = payer.EmailAddress
		out.Customer.Name = payer.Name.full()
	}

	payment := &SessionPayment{
		ID:       order.ID,
		Status:   NormalizeStatus(order.Status),
		Amount:   decimal.Zero,
		Currency: "usd",

		NeedsCapture: strings.EqualFold(order.Status, "APPROVED"),
	}
	if len(order.PurchaseUnits) > 0 {
		pu := order.PurchaseUnits[0]
		payment.Currency = NormalizeCurrency(pu.Amount.CurrencyCode)
		if amount, err := decimal.NewFromString(pu.Amount.Value); err == nil {
			payment.Amount = amount
		}
		out.Metadata = parseCorrelation(pu.CustomID)
		if pu.Payments != nil && len(pu.Payments.Captures) > 0 {
			c := pu.Payments.Captures[0]
			if payment.Amount.IsZero() && c.Amount.Value != "" {
				if amount, err := decimal.NewFromString(c.Amount.Value); err == nil {
					payment.Amount = amount
					payment.Currency = NormalizeCurrency(c.Amount.CurrencyCode)
				}
			}
		}
	}
	out.Payment = payment
	return out, nil
}

// GetBalance reads the primary currency balance, or the first one listed.
func (p *PayPalProvider) GetBalance(ctx context.Context) (*Balance, error) {
	var resp struct {
		Balances []struct {
			Currency         string  `json:"currency"`
			Primary          bool    `json:"primary"`
			AvailableBalance ppMoney `json:"available_balance"`
			WithheldBalance  ppMoney `json:"withheld_balance"`
		} `json:"balances"`
	}
	if err := p.do(ctx, http.MethodGet, "/v1/reporting/balances", nil, &resp); err != nil {
		return nil, err
	}

	out := &Balance{Available: decimal.Zero, Pending: decimal.Zero, Currency: "usd"}
	if len(resp.Balances) == 0 {
		return out, nil
	}
	b := resp.Balances[0]
	for _, candidate := range resp.Balances {
		if candidate.Primary {
			b = candidate
			break
		}
	}
	out.Currency = NormalizeCurrency(b.Currency)
	if v, err := decimal.NewFromString(b.AvailableBalance.Value); err == nil {
		out.Available = v
	}
	if v, err := decimal.NewFromString(b.WithheldBalance.Value); err == nil {
		out.Pending = v
	}
	return out, nil
}

func (p *PayPalProvider) ManageBillingPortal(context.Context, PortalParams) (*PortalLink, error) {
	return nil, fmt.Errorf("%w: paypal has no billing portal", ErrNotImplemented)
}

// CreatePrice creates a catalog product and a billing plan on top of it.
// The plan id is the price id.
func (p *PayPalProvider) CreatePrice(ctx context.Context, params PriceParams) (*Price, error) {
	productBody := map[string]string{
		"name":     params.Name,
		"type":     "DIGITAL",
		"category": "SOFTWARE",
	}
	if params.Description != "" {
		productBody["description"] = params.Description
	}
	var product struct {
		ID string `json:"id"`
	}
	if err := p.do(ctx, http.MethodPost, "/v1/catalogs/products", productBody, &product); err != nil {
		return nil, err
	}

	interval := strings.ToUpper(params.Interval)
	if interval == "" {
		interval = "MONTH"
	}
	currency := NormalizeCurrency(params.Currency)
	planBody := map[string]any{
		"product_id": product.ID,
		"name":       params.Name,
		"status":     "ACTIVE",
		"billing_cycles": []map[string]any{{
			"frequency": map[string]any{
				"interval_unit":  interval,
				"interval_count": 1,
			},
			"tenure_type":  "REGULAR",
			"sequence":     1,
			"total_cycles": 0,
			"pricing_scheme": map[string]any{
				"fixed_price": formatMoney(params.Amount, currency),
			},
		}},
		"payment_preferences": map[string]any{
			"auto_bill_outstanding":     true,
			"payment_failure_threshold": 1,
		},
	}
	var plan struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := p.do(ctx, http.MethodPost, "/v1/billing/plans", planBody, &plan); err != nil {
		return nil, err
	}
	return &Price{ID: plan.ID, Active: plan.Status == "" || strings.EqualFold(plan.Status, "ACTIVE")}, nil
}

func (p *PayPalProvider) UpdatePrice(ctx context.Context, priceID string, active bool) (*Price, error) {
	action := "deactivate"
	if active {
		action = "activate"
	}
	path := "/v1/billing/plans/" + url.PathEscape(priceID) + "/" + action
	if err := p.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return nil, err
	}
	return &Price{ID: priceID, Active: active}, nil
}

// CreateWebhook registers the endpoint. Signature verification needs the
// webhook id, so it is returned as the secret.
func (p *PayPalProvider) CreateWebhook(ctx context.Context, params WebhookParams) (*WebhookEndpoint, error) {
	if len(params.Events) == 0 {
		return nil, errors.New("at least one webhook event is required")
	}
	types := make([]map[string]string, 0, len(params.Events))
	for _, e := range params.Events {
		types = append(types, map[string]string{"name": e})
	}

	var hook struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	body := map[string]any{"url": params.Endpoint, "event_types": types}
	if err := p.do(ctx, http.MethodPost, "/v1/notifications/webhooks", body, &hook); err != nil {
		return nil, err
	}
	return &WebhookEndpoint{ID: hook.ID, Status: "active", Secret: hook.ID, URL: hook.URL}, nil
}

func findLink(links []ppLink, rels ...string) string {
	for _, rel := range rels {
		for _, l := range links {
			if l.Rel == rel && l.Href != "" {
				return l.Href
			}
		}
	}
	return ""
}

func formatMoney(amount decimal.Decimal, currency string) ppMoney {
	return ppMoney{
		CurrencyCode: strings.ToUpper(currency),
		Value:        amount.StringFixed(minorExponent(currency)),
	}
}

// correlation encodes checkout metadata into the provider's custom-data
// field. The field is limited to 127 characters, which two ids fit.
func correlation(meta map[string]string) string {
	if len(meta) == 0 {
		return ""
	}
	b, _ := json.Marshal(meta)
	return string(b)
}

func parseCorrelation(s string) map[string]string {
	out := map[string]string{}
	if s == "" {
		return out
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return out
	}
	for k, v := range raw {
		if str, ok := v.(string); ok {
			out[k] = str
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
