package payment

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	_ "crypto/sha512" // registers SHA-384 and SHA-512 for crypto.Hash
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/theBullfish/replier-web/pkg/cache"
)

// Delivery headers of the wallet provider.
const (
	PayPalTransmissionIDHeader   = "Paypal-Transmission-Id"
	PayPalTransmissionTimeHeader = "Paypal-Transmission-Time"
	PayPalCertURLHeader          = "Paypal-Cert-Url"
	PayPalAuthAlgoHeader         = "Paypal-Auth-Algo"
	PayPalTransmissionSigHeader  = "Paypal-Transmission-Sig"
)

var paypalAuthAlgos = map[string]crypto.Hash{
	"SHA256WITHRSA": crypto.SHA256,
	"SHA384WITHRSA": crypto.SHA384,
	"SHA512WITHRSA": crypto.SHA512,
}

var paypalSubscriptionEvents = map[string]EventKind{
	"BILLING.SUBSCRIPTION.CREATED":   EventSubscriptionCreated,
	"BILLING.SUBSCRIPTION.ACTIVATED": EventSubscriptionUpdated,
	"BILLING.SUBSCRIPTION.UPDATED":   EventSubscriptionUpdated,
	"BILLING.SUBSCRIPTION.SUSPENDED": EventSubscriptionUpdated,
	"BILLING.SUBSCRIPTION.CANCELLED": EventSubscriptionCanceled,
	"BILLING.SUBSCRIPTION.EXPIRED":   EventSubscriptionCanceled,
}

// paypalEventStatus is used when the resource carries no status of its own.
var paypalEventStatus = map[string]Status{
	"BILLING.SUBSCRIPTION.CREATED":   StatusPending,
	"BILLING.SUBSCRIPTION.ACTIVATED": StatusActive,
	"BILLING.SUBSCRIPTION.UPDATED":   StatusActive,
	"BILLING.SUBSCRIPTION.SUSPENDED": StatusSuspended,
	"BILLING.SUBSCRIPTION.CANCELLED": StatusCanceled,
	"BILLING.SUBSCRIPTION.EXPIRED":   StatusExpired,
}

// CertificateSource resolves the signing certificate named by a delivery.
type CertificateSource interface {
	Certificate(ctx context.Context, certURL string) (*x509.Certificate, error)
}

// CertificateSourceFunc adapts a function to CertificateSource.
type CertificateSourceFunc func(ctx context.Context, certURL string) (*x509.Certificate, error)

func (f CertificateSourceFunc) Certificate(ctx context.Context, certURL string) (*x509.Certificate, error) {
	return f(ctx, certURL)
}

const (
	certCacheSize    = 16
	certCacheMaxTTL  = 24 * time.Hour
	maxCertificateSz = 64 << 10
)

// HTTPCertificateSource downloads PEM certificates from the provider and
// keeps them in memory until they expire or a day passes. Only https URLs
// on paypal.com hosts are fetched.
type HTTPCertificateSource struct {
	client *http.Client
	certs  *cache.LRUCache[string, *x509.Certificate]
	group  singleflight.Group
	now    func() time.Time
}

func NewHTTPCertificateSource(client *http.Client) *HTTPCertificateSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPCertificateSource{
		client: client,
		certs:  cache.NewLRUCache[string, *x509.Certificate](certCacheSize),
		now:    time.Now,
	}
}

func (s *HTTPCertificateSource) Certificate(ctx context.Context, certURL string) (*x509.Certificate, error) {
	if err := trustedCertURL(certURL); err != nil {
		return nil, err
	}
	if cert, ok := s.certs.Get(certURL); ok {
		return cert, nil
	}

	// Concurrent deliveries signed with a new certificate share one download.
	v, err, _ := s.group.Do(certURL, func() (any, error) {
		return s.fetch(ctx, certURL)
	})
	if err != nil {
		return nil, err
	}
	return v.(*x509.Certificate), nil
}

func (s *HTTPCertificateSource) fetch(ctx context.Context, certURL string) (*x509.Certificate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, certURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build certificate request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch webhook certificate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch webhook certificate: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCertificateSz))
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook certificate: %w", err)
	}

	cert, err := parseCertificatePEM(data)
	if err != nil {
		return nil, err
	}

	ttl := min(cert.NotAfter.Sub(s.now()), certCacheMaxTTL)
	if ttl > 0 {
		s.certs.PutWithTTL(certURL, cert, ttl)
	}
	return cert, nil
}

func trustedCertURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.Join(ErrUntrustedCertificate, err)
	}
	host := strings.ToLower(u.Hostname())
	if u.Scheme != "https" || (host != "paypal.com" && !strings.HasSuffix(host, ".paypal.com")) {
		return fmt.Errorf("%w: %s", ErrUntrustedCertificate, raw)
	}
	return nil
}

func parseCertificatePEM(data []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, errors.New("webhook certificate is not a PEM certificate")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse webhook certificate: %w", err)
	}
	return cert, nil
}

// PayPalWebhookParser verifies deliveries locally: the signed message is
// transmissionId|transmissionTime|webhookId|hex(sha256(body)).
type PayPalWebhookParser struct {
	webhookID string
	certs     CertificateSource
	now       func() time.Time
}

func NewPayPalWebhookParser(webhookID string, certs CertificateSource) *PayPalWebhookParser {
	return &PayPalWebhookParser{webhookID: webhookID, certs: certs, now: time.Now}
}

type ppWebhookEvent struct {
	ID         string          `json:"id"`
	EventType  string          `json:"event_type"`
	CreateTime string          `json:"create_time"`
	Resource   json.RawMessage `json:"resource"`
}

type ppWebhookResource struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	State            string `json:"state"`
	PlanID           string `json:"plan_id"`
	StartTime        string `json:"start_time"`
	StartDate        string `json:"start_date"`
	StatusUpdateTime string `json:"status_update_time"`
	BillingInfo      *struct {
		NextBillingTime string `json:"next_billing_time"`
		LastPayment     *struct {
			Time string `json:"time"`
		} `json:"last_payment"`
	} `json:"billing_info"`
	AgreementDetails *struct {
		NextBillingDate string `json:"next_billing_date"`
		LastPaymentDate string `json:"last_payment_date"`
	} `json:"agreement_details"`
}

func (p *PayPalWebhookParser) ParseWebhook(ctx context.Context, payload []byte, header http.Header) (*WebhookEvent, error) {
	var (
		transmissionID   = header.Get(PayPalTransmissionIDHeader)
		transmissionTime = header.Get(PayPalTransmissionTimeHeader)
		certURL          = header.Get(PayPalCertURLHeader)
		authAlgo         = header.Get(PayPalAuthAlgoHeader)
		transmissionSig  = header.Get(PayPalTransmissionSigHeader)
	)
	if transmissionID == "" || transmissionTime == "" || certURL == "" || authAlgo == "" || transmissionSig == "" {
		return nil, ErrMissingSignatureHeaders
	}
	if p.webhookID == "" {
		return nil, ErrMissingWebhookSecret
	}

	if err := p.verify(ctx, payload, transmissionID, transmissionTime, certURL, authAlgo, transmissionSig); err != nil {
		return nil, err
	}

	var event ppWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, errors.Join(ErrInvalidPayload, err)
	}

	out := &WebhookEvent{
		ID:       event.ID,
		Provider: ProviderPayPal,
		Type:     event.EventType,
		Kind:     EventIgnored,
	}
	kind, ok := paypalSubscriptionEvents[event.EventType]
	if !ok {
		return out, nil
	}

	var res ppWebhookResource
	if err := json.Unmarshal(event.Resource, &res); err != nil {
		return nil, errors.Join(ErrInvalidPayload, err)
	}
	if res.ID == "" {
		return nil, errors.Join(ErrInvalidPayload, errors.New("resource id is missing"))
	}

	out.Kind = kind
	out.Subscription = paypalUpdate(event, res)
	return out, nil
}

func (p *PayPalWebhookParser) verify(ctx context.Context, payload []byte, id, ts, certURL, algo, sig string) error {
	hash, ok := paypalAuthAlgos[strings.ToUpper(algo)]
	if !ok {
		return fmt.Errorf("%w: unsupported auth algorithm %q", ErrInvalidSignature, algo)
	}
	signature, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return errors.Join(ErrInvalidSignature, err)
	}

	if p.certs == nil {
		return fmt.Errorf("%w: no certificate source", ErrInvalidSignature)
	}
	cert, err := p.certs.Certificate(ctx, certURL)
	if err != nil {
		return errors.Join(ErrInvalidSignature, err)
	}
	now := p.now()
	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return fmt.Errorf("%w: certificate is not valid at %s", ErrInvalidSignature, now.UTC().Format(time.RFC3339))
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: certificate key is not RSA", ErrInvalidSignature)
	}

	bodyHash := sha256.Sum256(payload)
	message := strings.Join([]string{id, ts, p.webhookID, hex.EncodeToString(bodyHash[:])}, "|")

	h := hash.New()
	h.Write([]byte(message))
	if err := rsa.VerifyPKCS1v15(pub, hash, h.Sum(nil), signature); err != nil {
		return errors.Join(ErrInvalidSignature, err)
	}
	return nil
}

func paypalUpdate(event ppWebhookEvent, res ppWebhookResource) *SubscriptionUpdate {
	update := &SubscriptionUpdate{
		ID:                 res.ID,
		PriceID:            res.PlanID,
		CurrentPeriodStart: parseTime(firstNonEmpty(res.StartTime, res.StartDate)),
	}

	if raw := firstNonEmpty(res.Status, res.State); raw != "" {
		update.Status = NormalizeStatus(raw)
	} else {
		update.Status = paypalEventStatus[event.EventType]
	}

	var end, lastPayment string
	if bi := res.BillingInfo; bi != nil {
		end = bi.NextBillingTime
		if bi.LastPayment != nil {
			lastPayment = bi.LastPayment.Time
		}
	}
	if ad := res.AgreementDetails; ad != nil {
		end = firstNonEmpty(end, ad.NextBillingDate)
		lastPayment = firstNonEmpty(lastPayment, ad.LastPaymentDate)
	}
	update.CurrentPeriodEnd = parseTime(firstNonEmpty(end, lastPayment))

	switch event.EventType {
	case "BILLING.SUBSCRIPTION.CANCELLED":
		update.CancelAtPeriodEnd = true
		update.CanceledAt = parseTime(event.CreateTime)
		update.EndedAt = parseTime(firstNonEmpty(res.StatusUpdateTime, event.CreateTime))
	case "BILLING.SUBSCRIPTION.EXPIRED":
		update.EndedAt = parseTime(firstNonEmpty(res.StatusUpdateTime, event.CreateTime))
	}
	return update
}
