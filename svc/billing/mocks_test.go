package billing_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/theBullfish/replier-web/pkg/payment"
	"github.com/theBullfish/replier-web/svc/billing"
	"github.com/theBullfish/replier-web/svc/settings"
)

type mockProvider struct {
	mock.Mock
	name payment.ProviderName
}

func (m *mockProvider) Name() payment.ProviderName { return m.name }

func (m *mockProvider) CreateCustomer(ctx context.Context, params payment.CustomerParams) (*payment.Customer, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Customer), args.Error(1)
}

func (m *mockProvider) CreateCheckoutSession(ctx context.Context, params payment.CheckoutParams) (*payment.CheckoutSession, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.CheckoutSession), args.Error(1)
}

func (m *mockProvider) CreateSubscription(ctx context.Context, params payment.SubscriptionParams) (*payment.SubscriptionRef, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.SubscriptionRef), args.Error(1)
}

func (m *mockProvider) GetSubscription(ctx context.Context, id string) (*payment.Subscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Subscription), args.Error(1)
}

func (m *mockProvider) UpdateSubscription(ctx context.Context, params payment.UpdateSubscriptionParams) (*payment.SubscriptionRef, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.SubscriptionRef), args.Error(1)
}

func (m *mockProvider) CancelSubscription(ctx context.Context, id string) (*payment.SubscriptionRef, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.SubscriptionRef), args.Error(1)
}

func (m *mockProvider) GetSession(ctx context.Context, id string) (*payment.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Session), args.Error(1)
}

func (m *mockProvider) GetBalance(ctx context.Context) (*payment.Balance, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Balance), args.Error(1)
}

func (m *mockProvider) ManageBillingPortal(ctx context.Context, params payment.PortalParams) (*payment.PortalLink, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.PortalLink), args.Error(1)
}

func (m *mockProvider) CreatePrice(ctx context.Context, params payment.PriceParams) (*payment.Price, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Price), args.Error(1)
}

func (m *mockProvider) UpdatePrice(ctx context.Context, id string, active bool) (*payment.Price, error) {
	args := m.Called(ctx, id, active)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Price), args.Error(1)
}

func (m *mockProvider) CreateWebhook(ctx context.Context, params payment.WebhookParams) (*payment.WebhookEndpoint, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.WebhookEndpoint), args.Error(1)
}

// mockCapturingProvider is a wallet provider that can capture orders.
type mockCapturingProvider struct {
	mockProvider
}

func (m *mockCapturingProvider) CaptureOrder(ctx context.Context, id string) (*payment.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Session), args.Error(1)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []billing.Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg billing.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *recordingNotifier) Sent() []billing.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]billing.Notification(nil), n.sent...)
}

var fixedNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc           billing.Service
	store         *billing.MemoryStore
	settings      settings.Service
	provider      payment.Provider
	providerCalls atomic.Int32
	notifier      *recordingNotifier
}

// newFixture wires the service to p with settings enabling p. A nil p
// leaves every provider disabled.
func newFixture(t *testing.T, p payment.Provider, opts ...billing.ServiceOption) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		store:    billing.NewMemoryStore(billing.WithStoreClock(func() time.Time { return fixedNow })),
		settings: settings.NewService(settings.NewMemoryStore(), settings.WithDefaults(settings.Defaults("https://app.test"))),
		provider: p,
		notifier: &recordingNotifier{},
	}
	if p != nil {
		_, err := f.settings.UpdatePayment(ctx, payment.Config{
			EnabledProviders: []string{string(p.Name())},
			APIKey:           "key_1234567890",
			ClientSecret:     "secret_1234567890",
			Currency:         "usd",
		})
		require.NoError(t, err)
	}

	source := billing.ProviderSourceFunc(func(cfg payment.Config) (payment.Provider, error) {
		f.providerCalls.Add(1)
		if _, err := cfg.Active(); err != nil {
			return nil, err
		}
		return f.provider, nil
	})

	opts = append([]billing.ServiceOption{
		billing.WithClock(func() time.Time { return fixedNow }),
		billing.WithNotifier(f.notifier),
	}, opts...)
	f.svc = billing.NewService(f.store, f.settings, source, opts...)
	return f
}

func (f *fixture) addProduct(t *testing.T, p billing.Product) *billing.Product {
	t.Helper()
	if p.Status == "" {
		p.Status = billing.ProductActive
	}
	if p.Mode == "" {
		p.Mode = payment.ModeSubscription
	}
	if p.Interval == "" && p.Mode == payment.ModeSubscription {
		p.Interval = "month"
	}
	require.NoError(t, f.store.CreateProduct(context.Background(), &p))
	return &p
}

func (f *fixture) addRecord(t *testing.T, r billing.Record) *billing.Record {
	t.Helper()
	if r.Currency == "" {
		r.Currency = "usd"
	}
	rec, err := f.store.CreateRecord(context.Background(), &r)
	require.NoError(t, err)
	return rec
}

func (f *fixture) records(t *testing.T, userID string) []billing.Record {
	t.Helper()
	out, err := f.store.ListRecords(context.Background(), billing.RecordFilter{UserID: userID})
	require.NoError(t, err)
	return out
}

func stripeProvider() *mockProvider { return &mockProvider{name: payment.ProviderStripe} }
func paypalProvider() *mockProvider { return &mockProvider{name: payment.ProviderPayPal} }

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func timePtr(t time.Time) *time.Time { return &t }

var testUser = billing.User{ID: "user-1", Email: "alice@example.com", Name: "Alice"}

func correlationMeta(userID string, productID uuid.UUID) map[string]string {
	return map[string]string{
		payment.MetaUserID:    userID,
		payment.MetaProductID: productID.String(),
	}
}
