package billing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/theBullfish/replier-web/pkg/payment"
)

// RecordStore persists billing records.
type RecordStore interface {
	// CreateRecord inserts r atomically with the free-plan handover: when r
	// is entitled, the user's entitled free records are canceled first.
	// If a record with the same ProviderID exists, it is returned unchanged
	// and nothing is canceled.
	CreateRecord(ctx context.Context, r *Record) (*Record, error)

	// GetRecordByProviderID returns ErrRecordNotFound when nothing matches.
	GetRecordByProviderID(ctx context.Context, providerID string) (*Record, error)

	// FindEntitledRecord returns the user's newest entitled record for
	// productID, or ErrRecordNotFound.
	FindEntitledRecord(ctx context.Context, userID string, productID uuid.UUID) (*Record, error)

	// CurrentRecord returns the user's newest entitled record, or
	// ErrRecordNotFound.
	CurrentRecord(ctx context.Context, userID string) (*Record, error)

	SetRecordProduct(ctx context.Context, id, productID uuid.UUID) error

	// CancelRecord sets status canceled and ended_at, keeping an earlier
	// ended_at.
	CancelRecord(ctx context.Context, id uuid.UUID, at time.Time) (*Record, error)

	// ApplySubscriptionUpdate writes provider-reported state to the record
	// with providerID. Applying the same update twice leaves the record
	// unchanged apart from UpdatedAt. Returns ErrRecordNotFound when no
	// record matches.
	ApplySubscriptionUpdate(ctx context.Context, providerID string, u payment.SubscriptionUpdate) (*Record, error)

	// ListRecords returns records newest first.
	ListRecords(ctx context.Context, f RecordFilter) ([]Record, error)
}

// ProductStore persists the product catalog.
type ProductStore interface {
	CreateProduct(ctx context.Context, p *Product) error
	UpdateProduct(ctx context.Context, p *Product) error
	// GetProduct returns ErrProductNotFound when id is unknown.
	GetProduct(ctx context.Context, id uuid.UUID) (*Product, error)
	// GetProductByPriceID returns the newest product billed with the
	// provider price or plan id, or ErrProductNotFound.
	GetProductByPriceID(ctx context.Context, priceID string) (*Product, error)
	ListProducts(ctx context.Context, activeOnly bool) ([]Product, error)
}

type Store interface {
	RecordStore
	ProductStore
}
