package settings

import (
	"slices"
	"strings"

	"github.com/theBullfish/replier-web/pkg/payment"
)

// WebhookMode selects whether the provider endpoint is registered by the
// application or pasted in by an admin.
type WebhookMode string

const (
	WebhookModeAuto   WebhookMode = "auto"
	WebhookModeManual WebhookMode = "manual"
)

// Settings is the tenant-editable configuration document.
type Settings struct {
	Payment payment.Config `json:"payment"`
	Webhook Webhook        `json:"webhook"`
	Site    Site           `json:"site"`
}

type Webhook struct {
	Mode         WebhookMode `json:"mode"`
	Endpoint     string      `json:"endpoint,omitempty"`
	Secret       string      `json:"secret,omitempty"`
	StripeEvents []string    `json:"stripeEvents,omitempty"`
	PayPalEvents []string    `json:"paypalEvents,omitempty"`
}

type Site struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Currency returns the configured checkout currency, lowercased.
func (s Settings) Currency() string {
	return payment.NormalizeCurrency(s.Payment.Currency)
}

// SiteURL returns the public base URL without a trailing slash.
func (s Settings) SiteURL() string {
	return strings.TrimRight(s.Site.URL, "/")
}

// Defaults returns the document used before anything was saved.
func Defaults(siteURL string) Settings {
	return Settings{
		Payment: payment.Config{Currency: "usd"},
		Webhook: Webhook{
			Mode:         WebhookModeManual,
			StripeEvents: slices.Clone(payment.DefaultStripeWebhookEvents),
			PayPalEvents: slices.Clone(payment.DefaultPayPalWebhookEvents),
		},
		Site: Site{Name: "Replier", URL: strings.TrimRight(siteURL, "/")},
	}
}

// withDefaults fills zero fields of s from d.
func (s Settings) withDefaults(d Settings) Settings {
	if s.Payment.Currency == "" {
		s.Payment.Currency = d.Payment.Currency
	}
	if s.Webhook.Mode == "" {
		s.Webhook.Mode = d.Webhook.Mode
	}
	if len(s.Webhook.StripeEvents) == 0 {
		s.Webhook.StripeEvents = slices.Clone(d.Webhook.StripeEvents)
	}
	if len(s.Webhook.PayPalEvents) == 0 {
		s.Webhook.PayPalEvents = slices.Clone(d.Webhook.PayPalEvents)
	}
	if s.Site.Name == "" {
		s.Site.Name = d.Site.Name
	}
	if s.Site.URL == "" {
		s.Site.URL = d.Site.URL
	}
	return s
}

func (s Settings) clone() Settings {
	s.Payment.EnabledProviders = slices.Clone(s.Payment.EnabledProviders)
	s.Webhook.StripeEvents = slices.Clone(s.Webhook.StripeEvents)
	s.Webhook.PayPalEvents = slices.Clone(s.Webhook.PayPalEvents)
	return s
}

const maskPrefix = "****"

// Redacted masks credentials for display. Submitting a masked value back
// keeps the stored one.
func (s Settings) Redacted() Settings {
	s = s.clone()
	s.Payment.APIKey = mask(s.Payment.APIKey)
	s.Payment.ClientSecret = mask(s.Payment.ClientSecret)
	s.Webhook.Secret = mask(s.Webhook.Secret)
	return s
}

func mask(v string) string {
	switch {
	case v == "":
		return ""
	case len(v) <= 8:
		return maskPrefix
	default:
		return maskPrefix + v[len(v)-4:]
	}
}

// keepSecret returns prev when next is empty or a masked value.
func keepSecret(next, prev string) string {
	if next == "" || strings.HasPrefix(next, maskPrefix) {
		return prev
	}
	return next
}
