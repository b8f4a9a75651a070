package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Provider is the contract both billing processors satisfy. Orchestration
// code depends on this interface only and never on a concrete adapter.
//
// Amounts crossing this boundary are decimal major units (9.99, not 999)
// and currencies are lowercase ISO codes. Adapters own any minor-unit
// conversion and map provider status vocabulary onto Status.
type Provider interface {
	Name() ProviderName

	// CreateCustomer is not idempotent; repeated calls may create duplicates
	// on providers that have a customer object.
	CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error)

	// CreateCheckoutSession returns a redirect target. For subscription-mode
	// products on the wallet provider this is an approval link rather than a
	// card-collection page.
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)

	CreateSubscription(ctx context.Context, params SubscriptionParams) (*SubscriptionRef, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)

	// UpdateSubscription swaps the plan of an existing subscription.
	UpdateSubscription(ctx context.Context, params UpdateSubscriptionParams) (*SubscriptionRef, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (*SubscriptionRef, error)

	// GetSession resolves a completed checkout into customer details, either
	// a one-time payment or a subscription, and the correlation metadata
	// embedded at creation time.
	GetSession(ctx context.Context, sessionID string) (*Session, error)

	GetBalance(ctx context.Context) (*Balance, error)

	// ManageBillingPortal may return ErrNotImplemented for providers without
	// a self-service portal.
	ManageBillingPortal(ctx context.Context, params PortalParams) (*PortalLink, error)

	CreatePrice(ctx context.Context, params PriceParams) (*Price, error)
	UpdatePrice(ctx context.Context, priceID string, active bool) (*Price, error)

	CreateWebhook(ctx context.Context, params WebhookParams) (*WebhookEndpoint, error)
}

// ProviderName identifies where a billing record came from.
type ProviderName string

const (
	ProviderStripe ProviderName = "stripe"
	ProviderPayPal ProviderName = "paypal"
	ProviderManual ProviderName = "manual"
	ProviderFree   ProviderName = "free"
)

// Mode is the checkout mode of a product.
type Mode string

const (
	ModePayment      Mode = "payment"
	ModeSubscription Mode = "subscription"
)

// Correlation metadata keys embedded into every checkout so callbacks and
// webhooks can be tied back to the local user and product.
const (
	MetaUserID            = "userId"
	MetaProductID         = "productId"
	MetaCheckoutSessionID = "checkoutSessionId"
)

type CustomerParams struct {
	Email string
	Name  string
}

type Customer struct {
	ID string
}

// CheckoutProduct is the subset of a product the adapters need.
type CheckoutProduct struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	PriceID     string
	Mode        Mode
}

// CheckoutUser identifies the buyer.
type CheckoutUser struct {
	ID    string
	Email string
	Name  string
}

type CheckoutParams struct {
	Currency   string
	Product    CheckoutProduct
	User       CheckoutUser
	SuccessURL string
	CancelURL  string
}

type CheckoutSession struct {
	ID  string
	URL string
}

type SubscriptionParams struct {
	CustomerID string
	PriceID    string
	ReturnURL  string
	CancelURL  string
	Metadata   map[string]string
}

// SubscriptionRef is the short answer of a subscription mutation.
type SubscriptionRef struct {
	ID     string
	Status Status
	// ApprovalURL is set when the buyer must confirm the change with the
	// provider before it takes effect.
	ApprovalURL string
}

type UpdateSubscriptionParams struct {
	SubscriptionID string
	PriceID        string
}

type Subscription struct {
	ID                 string
	Status             Status
	Amount             *decimal.Decimal
	Currency           string
	Interval           string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CustomerID         string
	CustomerEmail      string
	Metadata           map[string]string
}

// Session is a resolved checkout. Exactly one of Payment and Subscription
// is set.
type Session struct {
	ID                string
	ClientReferenceID string
	Customer          SessionCustomer
	Payment           *SessionPayment
	Subscription      *SessionSubscription
	Metadata          map[string]string
}

type SessionCustomer struct {
	ID    string
	Name  string
	Email string
}

type SessionPayment struct {
	ID       string
	Status   Status
	Amount   decimal.Decimal
	Currency string
	// NeedsCapture is set for wallet orders the buyer approved but whose
	// funds were not captured yet.
	NeedsCapture bool
}

type SessionSubscription struct {
	ID                 string
	Status             Status
	Amount             decimal.Decimal
	Currency           string
	Interval           string
	PriceID            string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	TrialStart         *time.Time
	TrialEnd           *time.Time
}

type Balance struct {
	Available decimal.Decimal
	Pending   decimal.Decimal
	Currency  string
}

type PortalParams struct {
	CustomerID string
	ReturnURL  string
}

type PortalLink struct {
	URL string
}

type PriceParams struct {
	Name        string
	Description string
	Amount      decimal.Decimal
	Currency    string
	// Interval is day, week, month or year. Empty creates a one-time price.
	Interval string
}

type Price struct {
	ID     string
	Active bool
}

type WebhookParams struct {
	Endpoint string
	Events   []string
}

type WebhookEndpoint struct {
	ID     string
	Status string
	// Secret is what later verifies deliveries: the signing secret for the
	// card provider and the webhook id for the wallet provider.
	Secret string
	URL    string
}

var (
	_ Provider      = (*StripeProvider)(nil)
	_ Provider      = (*PayPalProvider)(nil)
	_ WebhookParser = (*StripeWebhookParser)(nil)
	_ WebhookParser = (*PayPalWebhookParser)(nil)
)
