package billing_test

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"

	billingmod "github.com/theBullfish/replier-web/modules/billing"
	"github.com/theBullfish/replier-web/pkg/jwt"
	"github.com/theBullfish/replier-web/pkg/payment"
	"github.com/theBullfish/replier-web/svc/billing"
	"github.com/theBullfish/replier-web/svc/settings"
)

// fakeProvider serves canned sessions and records what the service asked
// for. Operations without canned data return ErrNotImplemented.
type fakeProvider struct {
	name payment.ProviderName

	mu       sync.Mutex
	sessions map[string]*payment.Session
	subs     map[string]*payment.Subscription
	checkout []payment.CheckoutParams
	canceled []string
	// approval, when set, makes plan revisions wait for the buyer.
	approval string
}

func newFakeProvider(name payment.ProviderName) *fakeProvider {
	return &fakeProvider{
		name:     name,
		sessions: make(map[string]*payment.Session),
		subs:     make(map[string]*payment.Subscription),
	}
}

func (p *fakeProvider) Name() payment.ProviderName { return p.name }

func (p *fakeProvider) CreateCustomer(context.Context, payment.CustomerParams) (*payment.Customer, error) {
	return nil, payment.ErrNotImplemented
}

func (p *fakeProvider) CreateCheckoutSession(_ context.Context, params payment.CheckoutParams) (*payment.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkout = append(p.checkout, params)
	return &payment.CheckoutSession{ID: "cs_1", URL: "https://checkout.provider.test/cs_1"}, nil
}

func (p *fakeProvider) CreateSubscription(context.Context, payment.SubscriptionParams) (*payment.SubscriptionRef, error) {
	return nil, payment.ErrNotImplemented
}

func (p *fakeProvider) GetSubscription(_ context.Context, id string) (*payment.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sub, ok := p.subs[id]; ok {
		return sub, nil
	}
	return nil, &payment.APIError{Provider: p.name, StatusCode: http.StatusNotFound, Message: "no such subscription"}
}

func (p *fakeProvider) UpdateSubscription(_ context.Context, params payment.UpdateSubscriptionParams) (*payment.SubscriptionRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.approval != "" {
		return &payment.SubscriptionRef{ID: params.SubscriptionID, Status: payment.StatusPending, ApprovalURL: p.approval}, nil
	}
	return &payment.SubscriptionRef{ID: params.SubscriptionID, Status: payment.StatusActive}, nil
}

func (p *fakeProvider) CancelSubscription(_ context.Context, id string) (*payment.SubscriptionRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.canceled = append(p.canceled, id)
	return &payment.SubscriptionRef{ID: id, Status: payment.StatusCanceled}, nil
}

func (p *fakeProvider) GetSession(_ context.Context, id string) (*payment.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sess, ok := p.sessions[id]; ok {
		return sess, nil
	}
	return nil, &payment.APIError{Provider: p.name, StatusCode: http.StatusNotFound, Message: "no such session"}
}

func (p *fakeProvider) GetBalance(context.Context) (*payment.Balance, error) {
	return &payment.Balance{Currency: "usd"}, nil
}

func (p *fakeProvider) ManageBillingPortal(_ context.Context, params payment.PortalParams) (*payment.PortalLink, error) {
	return &payment.PortalLink{URL: "https://portal.provider.test/" + params.CustomerID}, nil
}

func (p *fakeProvider) CreatePrice(context.Context, payment.PriceParams) (*payment.Price, error) {
	return &payment.Price{ID: "price_created", Active: true}, nil
}

func (p *fakeProvider) UpdatePrice(_ context.Context, id string, active bool) (*payment.Price, error) {
	return &payment.Price{ID: id, Active: active}, nil
}

func (p *fakeProvider) CreateWebhook(context.Context, payment.WebhookParams) (*payment.WebhookEndpoint, error) {
	return nil, payment.ErrNotImplemented
}

const (
	siteURL       = "https://app.test"
	jwtKey        = "test-signing-key-0123456789abcdef"
	webhookSecret = "whsec_e2e_secret_value"
	paypalHookID  = "WH-E2E-1"
)

type app struct {
	server        *httptest.Server
	store         *billing.MemoryStore
	settings      settings.Service
	settingsStore *settings.MemoryStore
	provider      *fakeProvider
	providerCalls atomic.Int32
	tokens        *jwt.Service
}

// newApp serves the module over HTTP with p as the enabled provider and the
// webhook secret configured.
func newApp(t *testing.T, p *fakeProvider, opts ...billing.ServiceOption) *app {
	t.Helper()
	ctx := context.Background()

	a := &app{
		store:         billing.NewMemoryStore(),
		settingsStore: settings.NewMemoryStore(),
		provider:      p,
	}
	a.settings = settings.NewService(a.settingsStore, settings.WithDefaults(settings.Defaults(siteURL)))

	secret := webhookSecret
	if p.name == payment.ProviderPayPal {
		secret = paypalHookID
	}
	_, err := a.settings.UpdatePayment(ctx, payment.Config{
		EnabledProviders: []string{string(p.name)},
		APIKey:           "key_0123456789",
		ClientSecret:     "secret_0123456789",
	})
	require.NoError(t, err)
	_, err = a.settings.UpdateWebhook(ctx, settings.Webhook{Mode: settings.WebhookModeManual, Secret: secret})
	require.NoError(t, err)

	source := billing.ProviderSourceFunc(func(cfg payment.Config) (payment.Provider, error) {
		a.providerCalls.Add(1)
		if _, err := cfg.Active(); err != nil {
			return nil, err
		}
		return a.provider, nil
	})
	svc := billing.NewService(a.store, a.settings, source, opts...)

	a.tokens, err = jwt.New(jwt.Config{SigningKey: jwtKey, Issuer: "replier", TTL: time.Hour})
	require.NoError(t, err)

	mod := billingmod.New(svc, a.settings,
		billingmod.WithAuthentication(jwt.Middleware(a.tokens)),
		billingmod.WithAdminAuthorization(jwt.RequireRole(billingmod.AdminRole)),
	)
	a.server = httptest.NewServer(mod.Handle())
	t.Cleanup(a.server.Close)
	return a
}

func (a *app) token(t *testing.T, userID, role string) string {
	t.Helper()
	claims := jwt.Claims{Email: userID + "@example.com", Name: userID, Role: role}
	claims.Subject = userID
	tok, err := a.tokens.Generate(claims)
	require.NoError(t, err)
	return tok
}

// noRedirect stops the client at the first redirect so tests can read it.
var noRedirect = &http.Client{
	CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
}

func (a *app) do(t *testing.T, method, path, token string, body any, header http.Header) *http.Response {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = strings.NewReader(string(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	}

	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := noRedirect.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func signStripe(payload []byte, secret string) http.Header {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	h := http.Header{}
	h.Set(payment.StripeSignatureHeader, signed.Header)
	return h
}

func newSigningCert(t *testing.T) (*rsa.PrivateKey, *x509.Certificate) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(7),
		Subject:      pkix.Name{CommonName: "messageverificationcerts.paypal.com"},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return key, cert
}

func signPayPal(t *testing.T, key *rsa.PrivateKey, body []byte) http.Header {
	t.Helper()

	id, ts := "b2f1e0a0-1111-11ef-9e3a-0242ac120002", time.Now().UTC().Format(time.RFC3339)
	sum := sha256.Sum256(body)
	message := strings.Join([]string{id, ts, paypalHookID, hex.EncodeToString(sum[:])}, "|")
	digest := sha256.Sum256([]byte(message))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	require.NoError(t, err)

	h := http.Header{}
	h.Set(payment.PayPalTransmissionIDHeader, id)
	h.Set(payment.PayPalTransmissionTimeHeader, ts)
	h.Set(payment.PayPalCertURLHeader, "https://api.paypal.com/v1/notifications/certs/CERT-E2E")
	h.Set(payment.PayPalAuthAlgoHeader, "SHA256withRSA")
	h.Set(payment.PayPalTransmissionSigHeader, base64.StdEncoding.EncodeToString(sig))
	return h
}

func staticCert(cert *x509.Certificate) payment.CertificateSource {
	return payment.CertificateSourceFunc(func(context.Context, string) (*x509.Certificate, error) {
		return cert, nil
	})
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (p *fakeProvider) addSession(s *payment.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[s.ID] = s
}

func (p *fakeProvider) checkouts() []payment.CheckoutParams {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]payment.CheckoutParams(nil), p.checkout...)
}

func (p *fakeProvider) canceledIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.canceled...)
}
