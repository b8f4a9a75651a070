package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// Portal cancellation reasons offered when the adapter creates the portal
// configuration.
var stripeCancellationReasons = []string{
	"too_expensive",
	"missing_features",
	"switched_service",
	"unused",
	"other",
}

// StripeProvider implements Provider on the card processor's API. Amounts
// travel as minor units and are converted at this boundary.
type StripeProvider struct {
	api     *client.API
	siteURL string
	log     *slog.Logger

	mu             sync.Mutex
	portalConfigID string
}

// NewStripe builds the adapter with secret-key authentication. Network
// retries are disabled: failures propagate to the caller unchanged.
func NewStripe(secretKey string, opts ...Option) (*StripeProvider, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("%w: stripe secret key is required", ErrInvalidConfig)
	}
	o := buildOptions(opts)

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        o.client(),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
		EnableTelemetry:   stripe.Bool(false),
	}
	if o.stripeBackendURL != "" {
		backendCfg.URL = stripe.String(o.stripeBackendURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	return &StripeProvider{
		api:     client.New(secretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend}),
		siteURL: o.siteURL,
		log:     o.log,
	}, nil
}

func (p *StripeProvider) Name() ProviderName { return ProviderStripe }

func (p *StripeProvider) CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error) {
	cp := &stripe.CustomerParams{Email: stripe.String(params.Email)}
	if params.Name != "" {
		cp.Name = stripe.String(params.Name)
	}
	cp.Context = ctx

	c, err := p.api.Customers.New(cp)
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe customer: %w", err)
	}
	return &Customer{ID: c.ID}, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	if params.Product.PriceID == "" {
		return nil, ErrMissingPriceID
	}

	mode := stripe.CheckoutSessionModePayment
	if params.Product.Mode == ModeSubscription {
		mode = stripe.CheckoutSessionModeSubscription
	}

	sp := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(mode)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(params.Product.PriceID),
			Quantity: stripe.Int64(1),
		}},
		SuccessURL:        stripe.String(params.SuccessURL),
		CancelURL:         stripe.String(params.CancelURL),
		ClientReferenceID: stripe.String(params.User.ID),
	}
	if params.Currency != "" {
		sp.Currency = stripe.String(NormalizeCurrency(params.Currency))
	}
	if params.User.Email != "" {
		sp.CustomerEmail = stripe.String(params.User.Email)
	}
	sp.AddMetadata(MetaUserID, params.User.ID)
	sp.AddMetadata(MetaProductID, params.Product.ID)
	sp.Context = ctx

	s, err := p.api.CheckoutSessions.New(sp)
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe checkout session: %w", err)
	}
	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (p *StripeProvider) CreateSubscription(ctx context.Context, params SubscriptionParams) (*SubscriptionRef, error) {
	sp := &stripe.SubscriptionParams{
		Customer:        stripe.String(params.CustomerID),
		Items:           []*stripe.SubscriptionItemsParams{{Price: stripe.String(params.PriceID)}},
		PaymentBehavior: stripe.String("default_incomplete"),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
	}
	for k, v := range params.Metadata {
		sp.AddMetadata(k, v)
	}
	sp.AddExpand("latest_invoice.payment_intent")
	sp.Context = ctx

	sub, err := p.api.Subscriptions.New(sp)
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe subscription: %w", err)
	}
	return &SubscriptionRef{ID: sub.ID, Status: NormalizeStatus(string(sub.Status))}, nil
}

func (p *StripeProvider) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	sp := &stripe.SubscriptionParams{}
	sp.Context = ctx

	sub, err := p.api.Subscriptions.Get(subscriptionID, sp)
	if err != nil {
		return nil, fmt.Errorf("failed to get stripe subscription: %w", err)
	}

	out := &Subscription{
		ID:                 sub.ID,
		Status:             NormalizeStatus(string(sub.Status)),
		Currency:           NormalizeCurrency(string(sub.Currency)),
		CurrentPeriodStart: unixTime(sub.CurrentPeriodStart),
		CurrentPeriodEnd:   unixTime(sub.CurrentPeriodEnd),
		Metadata:           maps.Clone(sub.Metadata),
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
		out.CustomerEmail = sub.Customer.Email
	}
	if price := firstItemPrice(sub); price != nil {
		out.Currency = NormalizeCurrency(string(price.Currency))
		amount := FromMinorUnits(price.UnitAmount, out.Currency)
		out.Amount = &amount
		if price.Recurring != nil {
			out.Interval = string(price.Recurring.Interval)
		}
	}
	return out, nil
}

// UpdateSubscription replaces the price on the subscription's single item.
func (p *StripeProvider) UpdateSubscription(ctx context.Context, params UpdateSubscriptionParams) (*SubscriptionRef, error) {
	gp := &stripe.SubscriptionParams{}
	gp.Context = ctx
	sub, err := p.api.Subscriptions.Get(params.SubscriptionID, gp)
	if err != nil {
		return nil, fmt.Errorf("failed to get stripe subscription: %w", err)
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil, fmt.Errorf("%w: subscription %s has no items", ErrInvalidSession, sub.ID)
	}

	up := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{{
			ID:    stripe.String(sub.Items.Data[0].ID),
			Price: stripe.String(params.PriceID),
		}},
	}
	up.Context = ctx

	updated, err := p.api.Subscriptions.Update(params.SubscriptionID, up)
	if err != nil {
		return nil, fmt.Errorf("failed to update stripe subscription: %w", err)
	}
	return &SubscriptionRef{ID: updated.ID, Status: NormalizeStatus(string(updated.Status))}, nil
}

func (p *StripeProvider) CancelSubscription(ctx context.Context, subscriptionID string) (*SubscriptionRef, error) {
	cp := &stripe.SubscriptionCancelParams{}
	cp.Context = ctx

	sub, err := p.api.Subscriptions.Cancel(subscriptionID, cp)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel stripe subscription: %w", err)
	}
	return &SubscriptionRef{ID: sub.ID, Status: NormalizeStatus(string(sub.Status))}, nil
}

// GetSession loads a checkout session with its customer, subscription,
// payment intent and line item prices in a single request.
func (p *StripeProvider) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	sp := &stripe.CheckoutSessionParams{}
	sp.AddExpand("customer")
	sp.AddExpand("subscription")
	sp.AddExpand("payment_intent")
	sp.AddExpand("line_items.data.price")
	sp.Context = ctx

	s, err := p.api.CheckoutSessions.Get(sessionID, sp)
	if err != nil {
		return nil, fmt.Errorf("failed to get stripe checkout session: %w", err)
	}

	out := &Session{
		ID:                s.ID,
		ClientReferenceID: s.ClientReferenceID,
		Metadata:          maps.Clone(s.Metadata),
	}
	if out.Metadata == nil {
		out.Metadata = map[string]string{}
	}
	if s.Customer != nil {
		out.Customer = SessionCustomer{ID: s.Customer.ID, Name: s.Customer.Name, Email: s.Customer.Email}
	}
	if d := s.CustomerDetails; d != nil {
		if out.Customer.Email == "" {
			out.Customer.Email = d.Email
		}
		if out.Customer.Name == "" {
			out.Customer.Name = d.Name
		}
	}

	switch {
	case s.Mode == stripe.CheckoutSessionModeSubscription && s.Subscription != nil:
		out.Subscription = stripeSessionSubscription(s.Subscription)
		if out.Customer.ID == "" && s.Subscription.Customer != nil {
			out.Customer.ID = s.Subscription.Customer.ID
		}
	case s.Mode == stripe.CheckoutSessionModePayment && s.PaymentIntent != nil:
		pi := s.PaymentIntent
		currency := NormalizeCurrency(string(pi.Currency))
		out.Payment = &SessionPayment{
			ID:       pi.ID,
			Status:   NormalizeStatus(string(pi.Status)),
			Amount:   FromMinorUnits(pi.Amount, currency),
			Currency: currency,
		}
	default:
		return nil, ErrInvalidSession
	}
	return out, nil
}

func stripeSessionSubscription(sub *stripe.Subscription) *SessionSubscription {
	out := &SessionSubscription{
		ID:         sub.ID,
		Status:     NormalizeStatus(string(sub.Status)),
		Currency:   NormalizeCurrency(string(sub.Currency)),
		Amount:     decimal.Zero,
		TrialStart: unixTime(sub.TrialStart),
		TrialEnd:   unixTime(sub.TrialEnd),
	}
	if t := unixTime(sub.CurrentPeriodStart); t != nil {
		out.CurrentPeriodStart = *t
	}
	if t := unixTime(sub.CurrentPeriodEnd); t != nil {
		out.CurrentPeriodEnd = *t
	}
	if price := firstItemPrice(sub); price != nil {
		out.Currency = NormalizeCurrency(string(price.Currency))
		out.Amount = FromMinorUnits(price.UnitAmount, out.Currency)
		out.PriceID = price.ID
		if price.Recurring != nil {
			out.Interval = string(price.Recurring.Interval)
		}
	}
	return out
}

func firstItemPrice(sub *stripe.Subscription) *stripe.Price {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil
	}
	return sub.Items.Data[0].Price
}

func (p *StripeProvider) GetBalance(ctx context.Context) (*Balance, error) {
	bp := &stripe.BalanceParams{}
	bp.Context = ctx

	b, err := p.api.Balance.Get(bp)
	if err != nil {
		return nil, fmt.Errorf("failed to get stripe balance: %w", err)
	}

	out := &Balance{Available: decimal.Zero, Pending: decimal.Zero, Currency: "usd"}
	if len(b.Available) > 0 {
		out.Currency = NormalizeCurrency(string(b.Available[0].Currency))
		out.Available = FromMinorUnits(b.Available[0].Amount, out.Currency)
	}
	if len(b.Pending) > 0 {
		out.Pending = FromMinorUnits(b.Pending[0].Amount, NormalizeCurrency(string(b.Pending[0].Currency)))
	}
	return out, nil
}

func (p *StripeProvider) ManageBillingPortal(ctx context.Context, params PortalParams) (*PortalLink, error) {
	configID, err := p.portalConfiguration(ctx)
	if err != nil {
		return nil, err
	}

	returnURL := params.ReturnURL
	if returnURL == "" {
		returnURL = p.siteURL + "/dashboard/settings/account"
	}
	sp := &stripe.BillingPortalSessionParams{
		Customer:      stripe.String(params.CustomerID),
		Configuration: stripe.String(configID),
		ReturnURL:     stripe.String(returnURL),
	}
	sp.Context = ctx

	s, err := p.api.BillingPortalSessions.New(sp)
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe billing portal session: %w", err)
	}
	return &PortalLink{URL: s.URL}, nil
}

// portalConfiguration reuses the first existing portal configuration or
// creates one on first use.
func (p *StripeProvider) portalConfiguration(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.portalConfigID != "" {
		return p.portalConfigID, nil
	}

	lp := &stripe.BillingPortalConfigurationListParams{}
	lp.Limit = stripe.Int64(1)
	lp.Context = ctx
	it := p.api.BillingPortalConfigurations.List(lp)
	if it.Next() {
		p.portalConfigID = it.BillingPortalConfiguration().ID
		return p.portalConfigID, nil
	}
	if err := it.Err(); err != nil {
		return "", fmt.Errorf("failed to list stripe portal configurations: %w", err)
	}

	cp := &stripe.BillingPortalConfigurationParams{
		BusinessProfile: &stripe.BillingPortalConfigurationBusinessProfileParams{
			PrivacyPolicyURL:  stripe.String(p.siteURL + "/privacy"),
			TermsOfServiceURL: stripe.String(p.siteURL + "/terms"),
		},
		Features: &stripe.BillingPortalConfigurationFeaturesParams{
			CustomerUpdate: &stripe.BillingPortalConfigurationFeaturesCustomerUpdateParams{
				Enabled: stripe.Bool(false),
			},
			InvoiceHistory: &stripe.BillingPortalConfigurationFeaturesInvoiceHistoryParams{
				Enabled: stripe.Bool(true),
			},
			PaymentMethodUpdate: &stripe.BillingPortalConfigurationFeaturesPaymentMethodUpdateParams{
				Enabled: stripe.Bool(true),
			},
			SubscriptionCancel: &stripe.BillingPortalConfigurationFeaturesSubscriptionCancelParams{
				Enabled: stripe.Bool(true),
				Mode:    stripe.String("at_period_end"),
				CancellationReason: &stripe.BillingPortalConfigurationFeaturesSubscriptionCancelCancellationReasonParams{
					Enabled: stripe.Bool(true),
					Options: stripe.StringSlice(stripeCancellationReasons),
				},
			},
			SubscriptionUpdate: &stripe.BillingPortalConfigurationFeaturesSubscriptionUpdateParams{
				Enabled: stripe.Bool(false),
			},
		},
	}
	cp.Context = ctx

	cfg, err := p.api.BillingPortalConfigurations.New(cp)
	if err != nil {
		return "", fmt.Errorf("failed to create stripe portal configuration: %w", err)
	}
	p.log.InfoContext(ctx, "created stripe billing portal configuration", slog.String("configuration_id", cfg.ID))
	p.portalConfigID = cfg.ID
	return cfg.ID, nil
}

// CreatePrice creates a provider product and a price attached to it.
func (p *StripeProvider) CreatePrice(ctx context.Context, params PriceParams) (*Price, error) {
	prodParams := &stripe.ProductParams{Name: stripe.String(params.Name)}
	if params.Description != "" {
		prodParams.Description = stripe.String(params.Description)
	}
	prodParams.Context = ctx

	prod, err := p.api.Products.New(prodParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe product: %w", err)
	}

	currency := NormalizeCurrency(params.Currency)
	pp := &stripe.PriceParams{
		Product:    stripe.String(prod.ID),
		Currency:   stripe.String(currency),
		UnitAmount: stripe.Int64(ToMinorUnits(params.Amount, currency)),
	}
	if params.Interval != "" {
		pp.Recurring = &stripe.PriceRecurringParams{Interval: stripe.String(params.Interval)}
	}
	pp.Context = ctx

	price, err := p.api.Prices.New(pp)
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe price: %w", err)
	}
	return &Price{ID: price.ID, Active: price.Active}, nil
}

func (p *StripeProvider) UpdatePrice(ctx context.Context, priceID string, active bool) (*Price, error) {
	pp := &stripe.PriceParams{Active: stripe.Bool(active)}
	pp.Context = ctx

	price, err := p.api.Prices.Update(priceID, pp)
	if err != nil {
		return nil, fmt.Errorf("failed to update stripe price: %w", err)
	}
	return &Price{ID: price.ID, Active: price.Active}, nil
}

func (p *StripeProvider) CreateWebhook(ctx context.Context, params WebhookParams) (*WebhookEndpoint, error) {
	if len(params.Events) == 0 {
		return nil, errors.New("at least one webhook event is required")
	}
	wp := &stripe.WebhookEndpointParams{
		URL:           stripe.String(params.Endpoint),
		EnabledEvents: stripe.StringSlice(params.Events),
	}
	wp.Context = ctx

	ep, err := p.api.WebhookEndpoints.New(wp)
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe webhook endpoint: %w", err)
	}
	return &WebhookEndpoint{ID: ep.ID, Status: ep.Status, Secret: ep.Secret, URL: ep.URL}, nil
}
