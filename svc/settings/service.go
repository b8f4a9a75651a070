package settings

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/theBullfish/replier-web/pkg/logger"
	"github.com/theBullfish/replier-web/pkg/payment"
	"github.com/theBullfish/replier-web/pkg/validator"
)

// Service serves the settings document from an in-memory snapshot.
// The snapshot is loaded lazily, reloaded by Refresh and after every write.
type Service interface {
	// Get returns the current snapshot, loading it on first use.
	Get(ctx context.Context) (Settings, error)

	// Refresh reloads the snapshot from the store.
	Refresh(ctx context.Context) (Settings, error)

	// UpdatePayment validates and stores the payment section. Empty or masked
	// credentials keep the stored values.
	UpdatePayment(ctx context.Context, in payment.Config) (Settings, error)

	// UpdateWebhook validates and stores the webhook section. An empty or
	// masked secret keeps the stored value.
	UpdateWebhook(ctx context.Context, in Webhook) (Settings, error)

	// UpdateSite validates and stores the site section.
	UpdateSite(ctx context.Context, in Site) (Settings, error)
}

type service struct {
	store    Store
	defaults Settings
	logger   *slog.Logger

	mu       sync.RWMutex
	snapshot *Settings
	writeMu  sync.Mutex
}

// ServiceOption configures a Service instance.
type ServiceOption func(*service)

// WithDefaults replaces the document used before anything is stored.
func WithDefaults(d Settings) ServiceOption {
	return func(s *service) {
		s.defaults = d.clone()
	}
}

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService builds a settings service over store.
func NewService(store Store, opts ...ServiceOption) Service {
	if store == nil {
		panic("settings: store is required")
	}
	s := &service{
		store:    store,
		defaults: Defaults(""),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) Get(ctx context.Context) (Settings, error) {
	s.mu.RLock()
	snap := s.snapshot
	s.mu.RUnlock()
	if snap != nil {
		return snap.clone(), nil
	}
	return s.Refresh(ctx)
}

func (s *service) Refresh(ctx context.Context) (Settings, error) {
	doc, err := s.store.Load(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		doc = Settings{}
	case err != nil:
		return Settings{}, err
	}
	doc = doc.withDefaults(s.defaults)

	s.mu.Lock()
	c := doc.clone()
	s.snapshot = &c
	s.mu.Unlock()
	return doc, nil
}

func (s *service) UpdatePayment(ctx context.Context, in payment.Config) (Settings, error) {
	return s.update(ctx, "payment", func(doc *Settings) error {
		next := payment.Config{
			EnabledProviders: normalizeProviders(in.EnabledProviders),
			APIKey:           keepSecret(strings.TrimSpace(in.APIKey), doc.Payment.APIKey),
			ClientSecret:     keepSecret(strings.TrimSpace(in.ClientSecret), doc.Payment.ClientSecret),
			Currency:         strings.TrimSpace(in.Currency),
		}
		if next.Currency == "" {
			next.Currency = doc.Payment.Currency
		}
		if err := validatePayment(next); err != nil {
			return err
		}
		next.Currency = payment.NormalizeCurrency(next.Currency)
		doc.Payment = next
		return nil
	})
}

func (s *service) UpdateWebhook(ctx context.Context, in Webhook) (Settings, error) {
	return s.update(ctx, "webhook", func(doc *Settings) error {
		next := Webhook{
			Mode:         in.Mode,
			Endpoint:     strings.TrimSpace(in.Endpoint),
			Secret:       keepSecret(strings.TrimSpace(in.Secret), doc.Webhook.Secret),
			StripeEvents: in.StripeEvents,
			PayPalEvents: in.PayPalEvents,
		}
		if next.Mode == "" {
			next.Mode = doc.Webhook.Mode
		}
		if len(next.StripeEvents) == 0 {
			next.StripeEvents = doc.Webhook.StripeEvents
		}
		if len(next.PayPalEvents) == 0 {
			next.PayPalEvents = doc.Webhook.PayPalEvents
		}
		if err := validateWebhook(next); err != nil {
			return err
		}
		doc.Webhook = next
		return nil
	})
}

func (s *service) UpdateSite(ctx context.Context, in Site) (Settings, error) {
	return s.update(ctx, "site", func(doc *Settings) error {
		next := Site{
			Name: strings.TrimSpace(in.Name),
			URL:  strings.TrimRight(strings.TrimSpace(in.URL), "/"),
		}
		if err := validator.Apply(
			validator.Required("name", next.Name),
			validator.MaxLen("name", next.Name, 100),
			validator.ValidURLWithScheme("url", next.URL, []string{"http", "https"}),
		); err != nil {
			return err
		}
		doc.Site = next
		return nil
	})
}

// update applies fn to a fresh copy of the stored document, saves it and
// refreshes the snapshot. Writes are serialized.
func (s *service) update(ctx context.Context, section string, fn func(*Settings) error) (Settings, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	doc, err := s.Refresh(ctx)
	if err != nil {
		return Settings{}, err
	}
	if err := fn(&doc); err != nil {
		return Settings{}, err
	}
	if err := s.store.Save(ctx, doc); err != nil {
		s.logger.ErrorContext(ctx, "failed to save settings",
			logger.Component("settings"),
			slog.String("section", section),
			logger.Error(err),
		)
		return Settings{}, err
	}

	s.logger.InfoContext(ctx, "settings updated",
		logger.Component("settings"),
		slog.String("section", section),
	)
	return s.Refresh(ctx)
}

func normalizeProviders(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" && !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}

var selectableProviders = []string{string(payment.ProviderStripe), string(payment.ProviderPayPal)}

func validatePayment(c payment.Config) error {
	rules := []validator.Rule{
		validator.Subset("enabledProviders", c.EnabledProviders, selectableProviders),
		validator.ValidCurrency("currency", c.Currency),
	}
	if len(c.EnabledProviders) > 0 {
		rules = append(rules, validator.Required("apiKey", c.APIKey))
	}
	if c.Enabled(payment.ProviderPayPal) {
		rules = append(rules, validator.Required("clientSecret", c.ClientSecret))
	}
	return validator.Apply(rules...)
}

func validateWebhook(w Webhook) error {
	stripeAllowed, _ := payment.WebhookEvents(payment.ProviderStripe)
	paypalAllowed, _ := payment.WebhookEvents(payment.ProviderPayPal)

	rules := []validator.Rule{
		validator.InList("mode", w.Mode, []WebhookMode{WebhookModeAuto, WebhookModeManual}),
		validator.Subset("stripeEvents", w.StripeEvents, stripeAllowed),
		validator.Subset("paypalEvents", w.PayPalEvents, paypalAllowed),
	}
	if w.Endpoint != "" {
		rules = append(rules, validator.ValidURLWithScheme("endpoint", w.Endpoint, []string{"http", "https"}))
	}
	return validator.Apply(rules...)
}
