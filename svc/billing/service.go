package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/theBullfish/replier-web/pkg/logger"
	"github.com/theBullfish/replier-web/pkg/payment"
	"github.com/theBullfish/replier-web/svc/settings"
)

// Service orchestrates checkout, plan changes, cancellation and webhook
// reconciliation on top of whichever payment provider is active.
type Service interface {
	// Checkout
	CreateCheckout(ctx context.Context, user User, productID uuid.UUID) (*CheckoutResult, error)
	CompleteStripeCheckout(ctx context.Context, sessionID string) (*Record, error)
	CompletePayPalCheckout(ctx context.Context, token, subscriptionID string) (*Record, error)

	// Subscription management
	ChangePlan(ctx context.Context, user User, newProductID uuid.UUID, subscriptionID string) (*PlanChange, error)
	Cancel(ctx context.Context, user User, subscriptionID string) error
	ManageBilling(ctx context.Context, user User) (*payment.PortalLink, error)
	CurrentBilling(ctx context.Context, user User) (*Record, error)

	// Webhooks
	WebhookParser(ctx context.Context, name payment.ProviderName) (payment.WebhookParser, error)
	Reconcile(ctx context.Context, event *payment.WebhookEvent) (Outcome, error)

	// Catalog
	ListProducts(ctx context.Context, activeOnly bool) ([]Product, error)
	CreateProduct(ctx context.Context, in ProductInput) (*Product, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, in ProductInput) (*Product, error)
	ArchiveProduct(ctx context.Context, id uuid.UUID) error
	ProductSubscribers(ctx context.Context, id uuid.UUID) ([]Record, error)

	// Provider administration
	ConfigureWebhook(ctx context.Context, in settings.Webhook) (settings.Settings, error)
	TestConnection(ctx context.Context) ConnectionResult
	Balance(ctx context.Context) (*payment.Balance, error)

	// Reporting
	TotalSales(ctx context.Context, r Range) (*SalesStats, error)
	TotalSubscriptions(ctx context.Context, r Range) (*CountStats, error)
	PaidUsers(ctx context.Context, r Range) (*CountStats, error)
	RevenueOverview(ctx context.Context) ([]MonthlyRevenue, error)
	RecentSales(ctx context.Context, limit int) ([]Record, error)
	ActiveBillingsByProduct(ctx context.Context, productID uuid.UUID) ([]Record, error)
}

// ProviderSource returns the adapter for a payment configuration.
// *payment.Selector satisfies it.
type ProviderSource interface {
	Provider(cfg payment.Config) (payment.Provider, error)
}

// ProviderSourceFunc adapts a function to ProviderSource.
type ProviderSourceFunc func(cfg payment.Config) (payment.Provider, error)

func (f ProviderSourceFunc) Provider(cfg payment.Config) (payment.Provider, error) { return f(cfg) }

type orderCapturer interface {
	CaptureOrder(ctx context.Context, orderID string) (*payment.Session, error)
}

type service struct {
	store     Store
	settings  settings.Service
	providers ProviderSource

	logger    *slog.Logger
	now       func() time.Time
	dedupe    Deduplicator
	dedupeTTL time.Duration
	notifier  Notifier
	certs     payment.CertificateSource
}

// NewService panics if a required dependency is nil.
func NewService(store Store, cfg settings.Service, providers ProviderSource, opts ...ServiceOption) Service {
	if store == nil {
		panic("billing: store is required")
	}
	if cfg == nil {
		panic("billing: settings service is required")
	}
	if providers == nil {
		panic("billing: provider source is required")
	}

	s := &service{
		store:     store,
		settings:  cfg,
		providers: providers,
		logger:    slog.Default(),
		now:       time.Now,
		dedupeTTL: 72 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.certs == nil {
		s.certs = payment.NewHTTPCertificateSource(nil)
	}
	return s
}

// provider returns the active adapter and the settings it was built from.
func (s *service) provider(ctx context.Context) (payment.Provider, settings.Settings, error) {
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, settings.Settings{}, err
	}
	p, err := s.providers.Provider(cfg.Payment)
	if err != nil {
		return nil, cfg, err
	}
	return p, cfg, nil
}

func (s *service) CreateCheckout(ctx context.Context, user User, productID uuid.UUID) (*CheckoutResult, error) {
	product, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.Status != ProductActive {
		return nil, ErrProductInactive
	}

	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	if product.IsFree {
		if _, err := s.activateFree(ctx, user, product, cfg); err != nil {
			return nil, err
		}
		return &CheckoutResult{URL: cfg.SiteURL() + "/dashboard", Type: CheckoutFree}, nil
	}

	p, err := s.providers.Provider(cfg.Payment)
	if err != nil {
		return nil, err
	}

	site := cfg.SiteURL()
	successURL := site + "/api/checkout/" + string(p.Name())
	if p.Name() == payment.ProviderStripe {
		successURL += "?session_id={CHECKOUT_SESSION_ID}"
	}

	sess, err := p.CreateCheckoutSession(ctx, payment.CheckoutParams{
		Currency:   cfg.Currency(),
		Product:    product.checkout(),
		User:       payment.CheckoutUser{ID: user.ID, Email: user.Email, Name: user.Name},
		SuccessURL: successURL,
		CancelURL:  site + "/dashboard/settings/account",
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "checkout session creation failed",
			logger.Component("billing"),
			logger.Provider(string(p.Name())),
			logger.ProductID(product.ID),
			logger.UserID(user.ID),
			logger.Error(err),
		)
		return nil, err
	}

	return &CheckoutResult{URL: sess.URL, Type: CheckoutPaid}, nil
}

// activateFree reuses the user's entitled record for a free product or
// creates one without touching any payment provider.
func (s *service) activateFree(ctx context.Context, user User, product *Product, cfg settings.Settings) (*Record, error) {
	if rec, err := s.store.FindEntitledRecord(ctx, user.ID, product.ID); err == nil {
		return rec, nil
	} else if !errors.Is(err, ErrRecordNotFound) {
		return nil, err
	}

	now := s.now().UTC()
	end := now.AddDate(1, 0, 0)
	rec, err := s.store.CreateRecord(ctx, &Record{
		UserID:             user.ID,
		ProductID:          product.ID,
		Status:             payment.StatusActive,
		Provider:           payment.ProviderFree,
		ProviderID:         fmt.Sprintf("free_%d", now.UnixNano()),
		CustomerID:         user.ID,
		Currency:           cfg.Currency(),
		Interval:           product.interval(),
		CurrentPeriodStart: &now,
		CurrentPeriodEnd:   &end,
		Metadata:           map[string]string{"source": "free_plan"},
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "free plan activated",
		logger.Component("billing"),
		logger.UserID(user.ID),
		logger.ProductID(product.ID),
		logger.BillingID(rec.ID),
	)
	return rec, nil
}

// correlation extracts the user and product the checkout was created for.
func correlation(userID string, meta map[string]string) (string, uuid.UUID, error) {
	if userID == "" {
		userID = meta[payment.MetaUserID]
	}
	productID, err := uuid.Parse(meta[payment.MetaProductID])
	if userID == "" || err != nil {
		return "", uuid.Nil, ErrMissingCorrelation
	}
	return userID, productID, nil
}

func withCheckoutMeta(meta map[string]string, checkoutID string, extra ...string) map[string]string {
	out := maps.Clone(meta)
	if out == nil {
		out = make(map[string]string)
	}
	out[payment.MetaCheckoutSessionID] = checkoutID
	for i := 0; i+1 < len(extra); i += 2 {
		out[extra[i]] = extra[i+1]
	}
	return out
}

func (s *service) callbackProvider(ctx context.Context, want payment.ProviderName) (payment.Provider, settings.Settings, error) {
	p, cfg, err := s.provider(ctx)
	if err != nil {
		return nil, cfg, err
	}
	if p.Name() != want {
		return nil, cfg, fmt.Errorf("%w: active provider is %s", ErrProviderMismatch, p.Name())
	}
	return p, cfg, nil
}

func (s *service) CompleteStripeCheckout(ctx context.Context, sessionID string) (*Record, error) {
	if sessionID == "" {
		return nil, ErrMissingSessionID
	}
	p, _, err := s.callbackProvider(ctx, payment.ProviderStripe)
	if err != nil {
		return nil, err
	}

	sess, err := p.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	userID, productID, err := correlation(sess.ClientReferenceID, sess.Metadata)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		UserID:                userID,
		ProductID:             productID,
		Provider:              payment.ProviderStripe,
		ProviderTransactionID: sess.ID,
		CustomerID:            sess.Customer.ID,
		Metadata:              withCheckoutMeta(sess.Metadata, sessionID),
	}
	switch {
	case sess.Subscription != nil:
		sub := sess.Subscription
		start, end := sub.CurrentPeriodStart.UTC(), sub.CurrentPeriodEnd.UTC()
		rec.Status = sub.Status
		rec.ProviderID = sub.ID
		rec.Amount = sub.Amount
		rec.Currency = sub.Currency
		rec.Interval = sub.Interval
		rec.CurrentPeriodStart, rec.CurrentPeriodEnd = &start, &end
	case sess.Payment != nil:
		rec.Status = sess.Payment.Status
		rec.ProviderID = sess.Payment.ID
		rec.Amount = sess.Payment.Amount
		rec.Currency = sess.Payment.Currency
	default:
		return nil, payment.ErrInvalidSession
	}

	return s.completeCheckout(ctx, rec, sess.Customer)
}

func (s *service) CompletePayPalCheckout(ctx context.Context, token, subscriptionID string) (*Record, error) {
	if token == "" {
		return nil, ErrMissingSessionID
	}
	p, cfg, err := s.callbackProvider(ctx, payment.ProviderPayPal)
	if err != nil {
		return nil, err
	}
	if subscriptionID != "" {
		return s.completePayPalSubscription(ctx, p, cfg, token, subscriptionID)
	}

	// The order id is the token; a replayed callback must not capture twice.
	switch rec, err := s.store.GetRecordByProviderID(ctx, token); {
	case err == nil:
		return rec, nil
	case !errors.Is(err, ErrRecordNotFound):
		return nil, err
	}

	sess, err := p.GetSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess.Payment == nil {
		return nil, payment.ErrInvalidSession
	}
	userID, productID, err := correlation(sess.ClientReferenceID, sess.Metadata)
	if err != nil {
		return nil, err
	}

	pay := sess.Payment
	if capturer, ok := p.(orderCapturer); ok && pay.NeedsCapture {
		captured, err := capturer.CaptureOrder(ctx, token)
		if err != nil {
			return nil, err
		}
		if captured.Payment != nil {
			pay = captured.Payment
		}
	}

	return s.completeCheckout(ctx, &Record{
		UserID:                userID,
		ProductID:             productID,
		Status:                pay.Status,
		Provider:              payment.ProviderPayPal,
		ProviderID:            sess.ID,
		ProviderTransactionID: pay.ID,
		CustomerID:            sess.Customer.ID,
		Amount:                pay.Amount,
		Currency:              pay.Currency,
		Metadata:              withCheckoutMeta(sess.Metadata, token),
	}, sess.Customer)
}

func (s *service) completePayPalSubscription(ctx context.Context, p payment.Provider, cfg settings.Settings, token, subscriptionID string) (*Record, error) {
	sub, err := p.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	userID, productID, err := correlation("", sub.Metadata)
	if err != nil {
		return nil, err
	}
	product, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		UserID:                userID,
		ProductID:             productID,
		Status:                sub.Status,
		Provider:              payment.ProviderPayPal,
		ProviderID:            sub.ID,
		ProviderTransactionID: token,
		CustomerID:            sub.CustomerID,
		Amount:                product.Price,
		Currency:              cfg.Currency(),
		Interval:              product.interval(),
		CurrentPeriodStart:    sub.CurrentPeriodStart,
		CurrentPeriodEnd:      sub.CurrentPeriodEnd,
		Metadata:              withCheckoutMeta(sub.Metadata, token, "subscriptionId", sub.ID),
	}
	if rec.CustomerID == "" {
		rec.CustomerID = sub.ID
	}
	if sub.Amount != nil {
		rec.Amount = *sub.Amount
	}
	if sub.Currency != "" {
		rec.Currency = sub.Currency
	}
	if rec.Interval == "" {
		rec.Interval = sub.Interval
	}

	return s.completeCheckout(ctx, rec, payment.SessionCustomer{ID: rec.CustomerID, Email: sub.CustomerEmail})
}

func (s *service) completeCheckout(ctx context.Context, rec *Record, customer payment.SessionCustomer) (*Record, error) {
	created, err := s.store.CreateRecord(ctx, rec)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to store billing record",
			logger.Component("billing"),
			logger.Provider(string(rec.Provider)),
			logger.ProviderID(rec.ProviderID),
			logger.UserID(rec.UserID),
			logger.Error(err),
		)
		return nil, err
	}

	s.logger.InfoContext(ctx, "checkout completed",
		logger.Component("billing"),
		logger.Provider(string(created.Provider)),
		logger.ProviderID(created.ProviderID),
		logger.BillingID(created.ID),
		logger.UserID(created.UserID),
		slog.String("status", string(created.Status)),
	)

	s.notify(ctx, notifyCheckoutCompleted, created, customer.Email, customer.Name)
	return created, nil
}

// ownedRecord loads the record with providerID and checks it belongs to user.
func (s *service) ownedRecord(ctx context.Context, user User, providerID string) (*Record, error) {
	rec, err := s.store.GetRecordByProviderID(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if rec.UserID != user.ID {
		return nil, ErrNotRecordOwner
	}
	return rec, nil
}

func (s *service) ChangePlan(ctx context.Context, user User, newProductID uuid.UUID, subscriptionID string) (*PlanChange, error) {
	rec, err := s.ownedRecord(ctx, user, subscriptionID)
	if err != nil {
		return nil, err
	}
	product, err := s.store.GetProduct(ctx, newProductID)
	if err != nil {
		return nil, err
	}
	if product.PriceID == "" {
		return nil, payment.ErrMissingPriceID
	}

	p, _, err := s.provider(ctx)
	if err != nil {
		return nil, err
	}
	ref, err := p.UpdateSubscription(ctx, payment.UpdateSubscriptionParams{
		SubscriptionID: subscriptionID,
		PriceID:        product.PriceID,
	})
	if err != nil {
		return nil, err
	}

	log := s.logger.With(
		logger.Component("billing"),
		logger.BillingID(rec.ID),
		logger.ProductID(product.ID),
		logger.UserID(user.ID),
	)

	change := &PlanChange{Status: payment.StatusActive}
	if ref != nil {
		change.URL = ref.ApprovalURL
		if ref.Status != "" {
			change.Status = ref.Status
		}
	}
	if change.Pending() {
		change.Status = payment.StatusPending
		log.InfoContext(ctx, "plan change awaiting buyer approval")
		return change, nil
	}

	if err := s.store.SetRecordProduct(ctx, rec.ID, product.ID); err != nil {
		return nil, err
	}
	log.InfoContext(ctx, "plan changed")
	return change, nil
}

func (s *service) Cancel(ctx context.Context, user User, subscriptionID string) error {
	rec, err := s.ownedRecord(ctx, user, subscriptionID)
	if err != nil {
		return err
	}

	if !rec.Local() {
		p, _, err := s.provider(ctx)
		if err != nil {
			return err
		}
		if _, err := p.CancelSubscription(ctx, subscriptionID); err != nil {
			s.logger.ErrorContext(ctx, "provider cancellation failed",
				logger.Component("billing"),
				logger.ProviderID(subscriptionID),
				logger.Error(err),
			)
			return err
		}
	}

	canceled, err := s.store.CancelRecord(ctx, rec.ID, s.now())
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "subscription canceled",
		logger.Component("billing"),
		logger.BillingID(rec.ID),
		logger.UserID(user.ID),
	)

	s.notify(ctx, notifySubscriptionCanceled, canceled, user.Email, user.Name)
	return nil
}

func (s *service) ManageBilling(ctx context.Context, user User) (*payment.PortalLink, error) {
	records, err := s.store.ListRecords(ctx, RecordFilter{UserID: user.ID, EntitledOnly: true})
	if err != nil {
		return nil, err
	}
	var rec *Record
	for i := range records {
		if !records[i].Local() && records[i].CustomerID != "" {
			rec = &records[i]
			break
		}
	}
	if rec == nil {
		return nil, ErrNoActiveBilling
	}

	p, cfg, err := s.provider(ctx)
	if err != nil {
		return nil, err
	}
	return p.ManageBillingPortal(ctx, payment.PortalParams{
		CustomerID: rec.CustomerID,
		ReturnURL:  cfg.SiteURL() + "/dashboard/settings/account",
	})
}

func (s *service) CurrentBilling(ctx context.Context, user User) (*Record, error) {
	return s.store.CurrentRecord(ctx, user.ID)
}
