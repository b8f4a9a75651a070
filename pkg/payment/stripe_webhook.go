package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeSignatureHeader carries the card provider's delivery signature.
const StripeSignatureHeader = "Stripe-Signature"

var stripeSubscriptionEvents = map[string]EventKind{
	"customer.subscription.created": EventSubscriptionCreated,
	"customer.subscription.updated": EventSubscriptionUpdated,
	"customer.subscription.deleted": EventSubscriptionCanceled,
}

// StripeWebhookParser verifies deliveries with the endpoint signing secret.
type StripeWebhookParser struct {
	secret string
}

func NewStripeWebhookParser(secret string) *StripeWebhookParser {
	return &StripeWebhookParser{secret: secret}
}

func (p *StripeWebhookParser) ParseWebhook(_ context.Context, payload []byte, header http.Header) (*WebhookEvent, error) {
	sig := header.Get(StripeSignatureHeader)
	if sig == "" {
		return nil, ErrMissingSignatureHeaders
	}
	if p.secret == "" {
		return nil, ErrMissingWebhookSecret
	}

	event, err := webhook.ConstructEventWithOptions(payload, sig, p.secret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}

	out := &WebhookEvent{
		ID:       event.ID,
		Provider: ProviderStripe,
		Type:     string(event.Type),
		Kind:     EventIgnored,
	}
	kind, ok := stripeSubscriptionEvents[string(event.Type)]
	if !ok || event.Data == nil {
		return out, nil
	}

	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, errors.Join(ErrInvalidPayload, err)
	}
	if sub.ID == "" {
		return nil, errors.Join(ErrInvalidPayload, errors.New("subscription id is missing"))
	}

	update := &SubscriptionUpdate{
		ID:                 sub.ID,
		Status:             NormalizeStatus(string(sub.Status)),
		CurrentPeriodStart: unixTime(sub.CurrentPeriodStart),
		CurrentPeriodEnd:   unixTime(sub.CurrentPeriodEnd),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		CanceledAt:         unixTime(sub.CanceledAt),
		EndedAt:            unixTime(sub.EndedAt),
	}
	if price := firstItemPrice(&sub); price != nil {
		update.PriceID = price.ID
		if price.Recurring != nil {
			update.Interval = string(price.Recurring.Interval)
		}
	}

	out.Kind = kind
	out.Subscription = update
	return out, nil
}
