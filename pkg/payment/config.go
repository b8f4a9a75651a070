package payment

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Config is the tenant-editable provider configuration. It is read from the
// settings store at request time and passed explicitly to New.
type Config struct {
	EnabledProviders []string `json:"enabledProviders"`
	APIKey           string   `json:"apiKey"`
	ClientSecret     string   `json:"clientSecret,omitempty"`
	Currency         string   `json:"currency"`
}

// Enabled reports whether name is listed in EnabledProviders.
func (c Config) Enabled(name ProviderName) bool {
	for _, p := range c.EnabledProviders {
		if ProviderName(strings.ToLower(strings.TrimSpace(p))) == name {
			return true
		}
	}
	return false
}

// HTTPConfig is the process-level transport configuration for outbound
// provider calls.
type HTTPConfig struct {
	Timeout       time.Duration `env:"PAYMENT_HTTP_TIMEOUT" envDefault:"15s"`
	PayPalSandbox bool          `env:"PAYPAL_SANDBOX" envDefault:"true"`
	BrandName     string        `env:"PAYMENT_BRAND_NAME" envDefault:"Replier"`
}

// Option configures adapters built by New, NewStripe and NewPayPal.
type Option func(*options)

type options struct {
	timeout          time.Duration
	httpClient       *http.Client
	siteURL          string
	brandName        string
	paypalSandbox    bool
	paypalBaseURL    string
	stripeBackendURL string
	log              *slog.Logger
}

func buildOptions(opts []Option) *options {
	o := &options{
		timeout:       15 * time.Second,
		brandName:     "Replier",
		paypalSandbox: true,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	return o
}

// client returns the configured HTTP client or a new one bounded by the
// configured timeout.
func (o *options) client() *http.Client {
	if o.httpClient != nil {
		return o.httpClient
	}
	return &http.Client{Timeout: o.timeout}
}

// WithHTTPConfig applies environment transport settings.
func WithHTTPConfig(cfg HTTPConfig) Option {
	return func(o *options) {
		if cfg.Timeout > 0 {
			o.timeout = cfg.Timeout
		}
		o.paypalSandbox = cfg.PayPalSandbox
		if cfg.BrandName != "" {
			o.brandName = cfg.BrandName
		}
	}
}

// WithTimeout bounds every outbound provider request.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithHTTPClient replaces the transport client. Its Timeout should be set.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithSiteURL sets the public base URL used for portal return, privacy and
// terms links.
func WithSiteURL(u string) Option {
	return func(o *options) { o.siteURL = strings.TrimRight(u, "/") }
}

// WithPayPalSandbox selects the sandbox or live wallet API.
func WithPayPalSandbox(sandbox bool) Option {
	return func(o *options) { o.paypalSandbox = sandbox }
}

// WithPayPalBaseURL overrides the wallet API base URL.
func WithPayPalBaseURL(u string) Option {
	return func(o *options) { o.paypalBaseURL = strings.TrimRight(u, "/") }
}

// WithStripeBackendURL overrides the card API base URL.
func WithStripeBackendURL(u string) Option {
	return func(o *options) { o.stripeBackendURL = strings.TrimRight(u, "/") }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}
