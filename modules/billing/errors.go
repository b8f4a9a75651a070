package billing

import (
	"errors"
	"net/http"

	"github.com/theBullfish/replier-web/handler"
	"github.com/theBullfish/replier-web/pkg/payment"
	"github.com/theBullfish/replier-web/svc/billing"
	"github.com/theBullfish/replier-web/svc/settings"
)

var (
	errNoUser        = handler.ErrUnauthorized.WithMessage("authentication required")
	errNotConfigured = handler.HTTPError{Code: http.StatusServiceUnavailable, Key: "payment_not_configured", Message: "Payment provider is not configured"}
)

// mapError turns domain errors into HTTP errors. Validation errors pass
// through and render as 422; anything unknown stays a 500.
func mapError(err error) error {
	var apiErr *payment.APIError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, billing.ErrRecordNotFound):
		return handler.ErrNotFound.WithMessage("Billing record not found")
	case errors.Is(err, billing.ErrProductNotFound):
		return handler.ErrNotFound.WithMessage("Product not found")
	case errors.Is(err, billing.ErrNoActiveBilling):
		return handler.ErrNotFound.WithMessage(billing.ErrNoActiveBilling.Error())
	case errors.Is(err, billing.ErrNotRecordOwner):
		return handler.ErrForbidden.WithMessage("Billing record belongs to another user")
	case errors.Is(err, billing.ErrProductInactive):
		return handler.ErrConflict.WithMessage("Product is not available for purchase")
	case errors.Is(err, billing.ErrMissingCorrelation),
		errors.Is(err, billing.ErrMissingSessionID),
		errors.Is(err, billing.ErrInvalidProduct),
		errors.Is(err, billing.ErrProviderMismatch),
		errors.Is(err, payment.ErrMissingPriceID),
		errors.Is(err, payment.ErrInvalidSession):
		return handler.ErrBadRequest.WithMessage(err.Error())
	case errors.Is(err, payment.ErrNoProviderEnabled),
		errors.Is(err, payment.ErrUnknownProvider),
		errors.Is(err, payment.ErrInvalidConfig),
		errors.Is(err, billing.ErrMissingWebhookCreds):
		return errNotConfigured
	case errors.Is(err, payment.ErrNotImplemented):
		return handler.ErrNotImplemented.WithMessage(err.Error())
	case errors.Is(err, settings.ErrFailedToLoad):
		return handler.ErrServiceUnavailable.WithMessage("Settings are unavailable")
	case errors.As(err, &apiErr):
		return handler.ErrBadGateway.WithMessage(apiErr.Error())
	default:
		return err
	}
}

func fail(err error) handler.Response {
	return handler.Fail(mapError(err))
}
