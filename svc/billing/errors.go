package billing

import "errors"

var (
	ErrRecordNotFound      = errors.New("billing record not found")
	ErrProductNotFound     = errors.New("product not found")
	ErrProductInactive     = errors.New("product is not available for purchase")
	ErrNoActiveBilling     = errors.New("No active billing record found")
	ErrNotRecordOwner      = errors.New("billing record belongs to another user")
	ErrMissingCorrelation  = errors.New("checkout is missing user or product correlation")
	ErrMissingSessionID    = errors.New("checkout session id is required")
	ErrMissingWebhookCreds = errors.New("webhook verification is not configured")
	ErrInvalidProduct      = errors.New("invalid product")

	ErrFailedToCreateRecord = errors.New("failed to create billing record")
	ErrFailedToUpdateRecord = errors.New("failed to update billing record")
	ErrFailedToLoadRecords  = errors.New("failed to load billing records")
	ErrFailedToSaveProduct  = errors.New("failed to save product")
	ErrFailedToLoadProducts = errors.New("failed to load products")
)

var ErrProviderMismatch = errors.New("callback does not match the active payment provider")
