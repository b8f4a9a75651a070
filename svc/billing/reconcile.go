package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/theBullfish/replier-web/pkg/cache"
	"github.com/theBullfish/replier-web/pkg/logger"
	"github.com/theBullfish/replier-web/pkg/payment"
)

// Deduplicator remembers processed webhook event ids. *redis.Deduplicator
// and MemoryDeduplicator satisfy it.
type Deduplicator interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string, ttl time.Duration) error
}

// MemoryDeduplicator keeps event ids in a bounded LRU. It is the fallback
// when no Redis is configured and only deduplicates within one process.
type MemoryDeduplicator struct {
	seen *cache.LRUCache[string, struct{}]
}

func NewMemoryDeduplicator(capacity int) *MemoryDeduplicator {
	return &MemoryDeduplicator{seen: cache.NewLRUCache[string, struct{}](capacity)}
}

func (d *MemoryDeduplicator) Seen(_ context.Context, key string) (bool, error) {
	_, ok := d.seen.Get(key)
	return ok, nil
}

func (d *MemoryDeduplicator) Mark(_ context.Context, key string, ttl time.Duration) error {
	if _, ok := d.seen.Get(key); !ok {
		d.seen.PutWithTTL(key, struct{}{}, ttl)
	}
	return nil
}

func (s *service) WebhookParser(ctx context.Context, name payment.ProviderName) (payment.WebhookParser, error) {
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	secret := cfg.Webhook.Secret
	if secret == "" {
		return nil, ErrMissingWebhookCreds
	}

	switch name {
	case payment.ProviderStripe:
		return payment.NewStripeWebhookParser(secret), nil
	case payment.ProviderPayPal:
		return payment.NewPayPalWebhookParser(secret, s.certs), nil
	default:
		return nil, payment.ErrUnknownProvider
	}
}

// Reconcile applies a verified webhook event to the billing record whose
// providerId matches the event's subscription id.
func (s *service) Reconcile(ctx context.Context, event *payment.WebhookEvent) (Outcome, error) {
	log := s.logger.With(logger.Component("webhook"))
	if event == nil || event.Kind == payment.EventIgnored || event.Subscription == nil {
		if event != nil {
			log.InfoContext(ctx, "unhandled webhook event",
				logger.Provider(string(event.Provider)),
				logger.EventType(event.Type),
				logger.EventID(event.ID),
			)
		}
		return OutcomeIgnored, nil
	}

	update := event.Subscription
	log = log.With(
		logger.Provider(string(event.Provider)),
		logger.EventType(event.Type),
		logger.EventID(event.ID),
		logger.ProviderID(update.ID),
	)

	key := string(event.Provider) + ":" + event.ID
	if s.dedupe != nil && event.ID != "" {
		seen, err := s.dedupe.Seen(ctx, key)
		if err != nil {
			log.WarnContext(ctx, "webhook dedupe lookup failed", logger.Error(err))
		} else if seen {
			log.InfoContext(ctx, "duplicate webhook delivery")
			return OutcomeDuplicate, nil
		}
	}

	rec, err := s.store.ApplySubscriptionUpdate(ctx, update.ID, *update)
	switch {
	case errors.Is(err, ErrRecordNotFound):
		log.WarnContext(ctx, "subscription not found in database")
		return OutcomeUnknownRecord, nil
	case err != nil:
		log.ErrorContext(ctx, "failed to apply subscription update", logger.Error(err))
		return "", err
	}

	s.syncProduct(ctx, log, rec, update.PriceID)

	if s.dedupe != nil && event.ID != "" {
		if err := s.dedupe.Mark(ctx, key, s.dedupeTTL); err != nil {
			log.WarnContext(ctx, "failed to mark webhook as processed", logger.Error(err))
		}
	}

	log.InfoContext(ctx, "subscription reconciled",
		logger.BillingID(rec.ID),
		slog.String("status", string(rec.Status)),
	)
	return OutcomeApplied, nil
}

// syncProduct points rec at the product billed with priceID. It settles plan
// changes the buyer approved on the provider's side. Unknown prices leave the
// record alone.
func (s *service) syncProduct(ctx context.Context, log *slog.Logger, rec *Record, priceID string) {
	if priceID == "" {
		return
	}
	product, err := s.store.GetProductByPriceID(ctx, priceID)
	switch {
	case errors.Is(err, ErrProductNotFound):
		return
	case err != nil:
		log.WarnContext(ctx, "failed to resolve billed product", logger.Error(err))
		return
	case product.ID == rec.ProductID:
		return
	}

	if err := s.store.SetRecordProduct(ctx, rec.ID, product.ID); err != nil {
		log.WarnContext(ctx, "failed to move record to billed product", logger.Error(err))
		return
	}
	log.InfoContext(ctx, "record moved to billed product",
		logger.BillingID(rec.ID),
		logger.ProductID(product.ID),
	)
	rec.ProductID = product.ID
}
