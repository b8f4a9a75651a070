package payment

import (
	"context"
	"net/http"
	"time"
)

// EventKind is the normalized class of an inbound provider event.
type EventKind string

const (
	EventSubscriptionCreated  EventKind = "subscription_created"
	EventSubscriptionUpdated  EventKind = "subscription_updated"
	EventSubscriptionCanceled EventKind = "subscription_canceled"
	// EventIgnored is a verified event the billing core does not act on.
	EventIgnored EventKind = "ignored"
)

// WebhookEvent is a verified, provider-neutral webhook delivery.
type WebhookEvent struct {
	ID       string
	Provider ProviderName
	Type     string // raw provider event name
	Kind     EventKind
	// Subscription is nil for ignored events.
	Subscription *SubscriptionUpdate
}

// SubscriptionUpdate is the state a provider reports for a subscription.
// ID is the provider subscription id, which is the billing record's
// providerId.
type SubscriptionUpdate struct {
	ID                 string
	Status             Status
	Interval           string
	// PriceID is the price or plan the provider now bills, when reported.
	PriceID            string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
	EndedAt            *time.Time
}

// WebhookParser verifies a raw delivery against its headers and maps it to
// a WebhookEvent. Verification failures wrap ErrInvalidSignature or
// ErrMissingSignatureHeaders.
type WebhookParser interface {
	ParseWebhook(ctx context.Context, payload []byte, header http.Header) (*WebhookEvent, error)
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// Events an admin may subscribe a webhook endpoint to, and the defaults used
// when none are chosen.
var (
	StripeWebhookEvents = []string{
		"payment_intent.succeeded",
		"payment_intent.payment_failed",
		"payment_intent.canceled",
		"customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted",
		"invoice.paid",
		"invoice.payment_failed",
	}
	PayPalWebhookEvents = []string{
		"BILLING.SUBSCRIPTION.UPDATED",
		"BILLING.SUBSCRIPTION.CANCELLED",
		"BILLING.SUBSCRIPTION.SUSPENDED",
		"BILLING.SUBSCRIPTION.ACTIVATED",
		"BILLING.SUBSCRIPTION.PAYMENT.FAILED",
	}

	DefaultStripeWebhookEvents = []string{"customer.subscription.created", "customer.subscription.deleted"}
	DefaultPayPalWebhookEvents = []string{"BILLING.SUBSCRIPTION.UPDATED", "BILLING.SUBSCRIPTION.CANCELLED"}
)

// WebhookEvents returns the allowed and default event lists for name.
func WebhookEvents(name ProviderName) (allowed, defaults []string) {
	switch name {
	case ProviderStripe:
		return StripeWebhookEvents, DefaultStripeWebhookEvents
	case ProviderPayPal:
		return PayPalWebhookEvents, DefaultPayPalWebhookEvents
	default:
		return nil, nil
	}
}
