package payment

import (
	"errors"
	"fmt"
)

var (
	ErrNoProviderEnabled = errors.New("no payment provider enabled")
	ErrUnknownProvider   = errors.New("unknown payment provider")
	ErrInvalidConfig     = errors.New("invalid payment provider configuration")
	ErrNotImplemented    = errors.New("operation not implemented by payment provider")

	ErrMissingPriceID      = errors.New("product price ID not found")
	ErrInvalidSession      = errors.New("invalid session mode or missing data")
	ErrMissingApprovalLink = errors.New("approval link not found in provider response")
	ErrInvalidMetadata     = errors.New("invalid checkout metadata")

	ErrMissingSignatureHeaders = errors.New("missing webhook signature headers")
	ErrMissingWebhookSecret    = errors.New("webhook secret is not configured")
	ErrInvalidSignature        = errors.New("webhook signature verification failed")
	ErrInvalidPayload          = errors.New("invalid webhook payload")
	ErrUntrustedCertificate    = errors.New("webhook certificate URL is not trusted")
)

// APIError is a non-2xx answer from a provider REST API.
type APIError struct {
	Provider   ProviderName
	StatusCode int
	Name       string
	Message    string
	DebugID    string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s api error: status %d", e.Provider, e.StatusCode)
	if e.Name != "" {
		msg += ": " + e.Name
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.DebugID != "" {
		msg += " (debug_id " + e.DebugID + ")"
	}
	return msg
}
