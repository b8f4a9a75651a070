package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/theBullfish/replier-web/pkg/logger"
	"github.com/theBullfish/replier-web/pkg/payment"
	"github.com/theBullfish/replier-web/pkg/validator"
	"github.com/theBullfish/replier-web/svc/settings"
)

// ConfigureWebhook stores the webhook section. In auto mode the endpoint is
// first registered with the active provider and the returned secret is
// stored; in manual mode the submitted values are stored as they are.
func (s *service) ConfigureWebhook(ctx context.Context, in settings.Webhook) (settings.Settings, error) {
	if in.Mode != settings.WebhookModeAuto {
		return s.settings.UpdateWebhook(ctx, in)
	}

	p, cfg, err := s.provider(ctx)
	if err != nil {
		return settings.Settings{}, err
	}
	name := p.Name()
	allowed, defaults := payment.WebhookEvents(name)

	events := in.StripeEvents
	fallback := cfg.Webhook.StripeEvents
	if name == payment.ProviderPayPal {
		events, fallback = in.PayPalEvents, cfg.Webhook.PayPalEvents
	}
	if len(events) == 0 {
		events = fallback
	}
	if len(events) == 0 {
		events = defaults
	}
	if err := validator.Apply(validator.Subset(string(name)+"Events", events, allowed)); err != nil {
		return settings.Settings{}, err
	}

	endpoint := cfg.SiteURL() + "/api/webhook/" + string(name)
	ep, err := p.CreateWebhook(ctx, payment.WebhookParams{Endpoint: endpoint, Events: events})
	if err != nil {
		s.logger.ErrorContext(ctx, "webhook registration failed",
			logger.Component("billing"),
			logger.Provider(string(name)),
			logger.Error(err),
		)
		return settings.Settings{}, err
	}

	in.Secret = ep.Secret
	in.Endpoint = endpoint
	if ep.URL != "" {
		in.Endpoint = ep.URL
	}
	if name == payment.ProviderPayPal {
		in.PayPalEvents = events
	} else {
		in.StripeEvents = events
	}

	s.logger.InfoContext(ctx, "webhook registered",
		logger.Component("billing"),
		logger.Provider(string(name)),
		logger.ProviderID(ep.ID),
	)
	return s.settings.UpdateWebhook(ctx, in)
}

// TestConnection reads the provider balance and reports each step.
func (s *service) TestConnection(ctx context.Context) ConnectionResult {
	res := ConnectionResult{Logs: []string{"Loading payment settings"}}
	fail := func(err error) ConnectionResult {
		res.Logs = append(res.Logs, "Error: "+err.Error())
		res.Message = "Failed to connect to payment provider"
		s.logger.WarnContext(ctx, "payment provider connection test failed",
			logger.Component("billing"),
			logger.Error(err),
		)
		return res
	}

	p, _, err := s.provider(ctx)
	if err != nil {
		return fail(err)
	}
	name := providerTitle(p.Name())
	res.Logs = append(res.Logs, "Using provider: "+name, "Fetching account balance")

	balance, err := p.GetBalance(ctx)
	if err != nil {
		return fail(err)
	}
	res.Logs = append(res.Logs, fmt.Sprintf("Balance: %s available, %s pending (%s)",
		balance.Available.StringFixed(2), balance.Pending.StringFixed(2), strings.ToUpper(balance.Currency)))

	res.Success = true
	res.Message = "Successfully connected to " + name
	return res
}

func providerTitle(name payment.ProviderName) string {
	switch name {
	case payment.ProviderStripe:
		return "Stripe"
	case payment.ProviderPayPal:
		return "PayPal"
	default:
		return string(name)
	}
}

func (s *service) Balance(ctx context.Context) (*payment.Balance, error) {
	p, _, err := s.provider(ctx)
	if err != nil {
		return nil, err
	}
	return p.GetBalance(ctx)
}
