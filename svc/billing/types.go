package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/theBullfish/replier-web/pkg/payment"
)

// Record is a user's billing relationship to a product. Records are never
// deleted; cancellation and expiry are status changes.
type Record struct {
	ID                    uuid.UUID            `json:"id"`
	UserID                string               `json:"userId"`
	ProductID             uuid.UUID            `json:"productId"`
	Status                payment.Status       `json:"status"`
	Provider              payment.ProviderName `json:"provider"`
	ProviderID            string               `json:"providerId"`
	ProviderTransactionID string               `json:"providerTransactionId,omitempty"`
	CustomerID            string               `json:"customerId,omitempty"`
	Amount                decimal.Decimal      `json:"amount"`
	Currency              string               `json:"currency"`
	Interval              string               `json:"interval,omitempty"`
	CurrentPeriodStart    *time.Time           `json:"currentPeriodStart,omitempty"`
	CurrentPeriodEnd      *time.Time           `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd     bool                 `json:"cancelAtPeriodEnd"`
	CanceledAt            *time.Time           `json:"canceledAt,omitempty"`
	EndedAt               *time.Time           `json:"endedAt,omitempty"`
	Metadata              map[string]string    `json:"metadata,omitempty"`
	CreatedAt             time.Time            `json:"createdAt"`
	UpdatedAt             time.Time            `json:"updatedAt"`
}

// Entitled reports whether the record currently grants access.
func (r Record) Entitled() bool { return r.Status.Entitled() }

// Local reports whether the record was created without a payment provider.
func (r Record) Local() bool {
	return r.Provider == payment.ProviderFree || r.Provider == payment.ProviderManual
}

// ProductStatus is the catalog state of a product.
type ProductStatus string

const (
	ProductActive   ProductStatus = "active"
	ProductInactive ProductStatus = "inactive"
	ProductArchived ProductStatus = "archived"
)

// Product is a plan definition. PriceID is the provider-side price or plan
// created for paid products.
type Product struct {
	ID                uuid.UUID       `json:"id"`
	Name              string          `json:"name"`
	Description       string          `json:"description,omitempty"`
	Price             decimal.Decimal `json:"price"`
	Interval          string          `json:"type"`
	Mode              payment.Mode    `json:"mode"`
	Limit             int             `json:"limit"`
	HasTrial          bool            `json:"hasTrial"`
	TrialDuration     int             `json:"trialDuration,omitempty"`
	TrialUsageLimit   int             `json:"trialUsageLimit,omitempty"`
	MarketingTaglines []string        `json:"marketingTaglines,omitempty"`
	Status            ProductStatus   `json:"status"`
	PriceID           string          `json:"priceId,omitempty"`
	IsFree            bool            `json:"isFree"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

func (p Product) checkout() payment.CheckoutProduct {
	return payment.CheckoutProduct{
		ID:          p.ID.String(),
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		PriceID:     p.PriceID,
		Mode:        p.Mode,
	}
}

// interval returns the billing cadence for subscription products.
func (p Product) interval() string {
	if p.Mode == payment.ModeSubscription {
		return p.Interval
	}
	return ""
}

// User is the authenticated buyer.
type User struct {
	ID    string
	Email string
	Name  string
}

// CheckoutType tells the caller whether to redirect to a provider.
type CheckoutType string

const (
	CheckoutFree CheckoutType = "free"
	CheckoutPaid CheckoutType = "paid"
)

type CheckoutResult struct {
	URL  string       `json:"url"`
	Type CheckoutType `json:"type"`
}

// PlanChange is the result of ChangePlan. A pending change carries the URL
// where the buyer approves the revision; the record keeps its product until
// the provider reports the new plan.
type PlanChange struct {
	Status payment.Status `json:"status"`
	URL    string         `json:"url,omitempty"`
}

// Pending reports whether the buyer still has to approve the change.
func (c PlanChange) Pending() bool { return c.URL != "" }

// Outcome is the result of reconciling one webhook event.
type Outcome string

const (
	OutcomeApplied       Outcome = "applied"
	OutcomeIgnored       Outcome = "ignored"
	OutcomeDuplicate     Outcome = "duplicate"
	OutcomeUnknownRecord Outcome = "unknown_record"
)

// RecordFilter narrows ListRecords. Zero fields do not filter.
type RecordFilter struct {
	UserID       string
	ProductID    uuid.UUID
	EntitledOnly bool
	From         time.Time
	To           time.Time
	Limit        int
}

// ConnectionResult reports a provider connectivity check.
type ConnectionResult struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Logs    []string `json:"logs"`
}
