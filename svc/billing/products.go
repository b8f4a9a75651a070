package billing

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/theBullfish/replier-web/pkg/logger"
	"github.com/theBullfish/replier-web/pkg/payment"
	"github.com/theBullfish/replier-web/pkg/validator"
)

// ProductInput is the admin-editable part of a product.
type ProductInput struct {
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	Price             decimal.Decimal `json:"price"`
	Interval          string          `json:"type"`
	Mode              payment.Mode    `json:"mode"`
	Limit             int             `json:"limit"`
	HasTrial          bool            `json:"hasTrial"`
	TrialDuration     int             `json:"trialDuration"`
	TrialUsageLimit   int             `json:"trialUsageLimit"`
	MarketingTaglines []string        `json:"marketingTaglines"`
	Status            ProductStatus   `json:"status"`
	IsFree            bool            `json:"isFree"`
}

func (in *ProductInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if in.Mode == "" {
		in.Mode = payment.ModeSubscription
	}
	if in.Status == "" {
		in.Status = ProductActive
	}
	if in.Interval == "" && in.Mode == payment.ModeSubscription {
		in.Interval = "month"
	}
	taglines := make([]string, 0, len(in.MarketingTaglines))
	for _, t := range in.MarketingTaglines {
		if t = strings.TrimSpace(t); t != "" {
			taglines = append(taglines, t)
		}
	}
	in.MarketingTaglines = taglines
}

// Validate checks the input. Free products must cost zero and cannot have a
// trial; paid products must cost more than zero.
func (in ProductInput) Validate() error {
	rules := []validator.Rule{
		validator.Required("name", in.Name),
		validator.MaxLen("name", in.Name, 120),
		validator.MaxLen("description", in.Description, 2000),
		validator.InList("mode", in.Mode, []payment.Mode{payment.ModeSubscription, payment.ModePayment}),
		validator.InList("status", in.Status, []ProductStatus{ProductActive, ProductInactive, ProductArchived}),
		validator.MaxDecimalPlaces("price", in.Price, 2),
		validator.MaxLenSlice("marketingTaglines", in.MarketingTaglines, 20),
	}
	if in.Mode == payment.ModeSubscription {
		rules = append(rules, validator.InList("type", in.Interval, []string{"month", "year"}))
	}
	if in.IsFree {
		rules = append(rules, validator.Rule{
			Check: func() bool { return in.Price.IsZero() },
			Error: validator.ValidationError{Field: "price", Message: "free products must have a price of 0", TranslationKey: "validation.free_price"},
		}, validator.Rule{
			Check: func() bool { return !in.HasTrial },
			Error: validator.ValidationError{Field: "hasTrial", Message: "free products cannot have a trial period", TranslationKey: "validation.free_trial"},
		})
	} else {
		rules = append(rules, validator.PositiveDecimal("price", in.Price))
	}
	return validator.Apply(rules...)
}

func (in ProductInput) apply(p *Product) {
	p.Name = in.Name
	p.Description = in.Description
	p.Price = in.Price
	p.Interval = in.Interval
	p.Mode = in.Mode
	p.Limit = in.Limit
	p.HasTrial = in.HasTrial
	p.TrialDuration = in.TrialDuration
	p.TrialUsageLimit = in.TrialUsageLimit
	p.MarketingTaglines = in.MarketingTaglines
	p.Status = in.Status
	p.IsFree = in.IsFree
}

func (s *service) ListProducts(ctx context.Context, activeOnly bool) ([]Product, error) {
	return s.store.ListProducts(ctx, activeOnly)
}

func (s *service) createPrice(ctx context.Context, p *Product) (string, error) {
	provider, cfg, err := s.provider(ctx)
	if err != nil {
		return "", err
	}
	price, err := provider.CreatePrice(ctx, payment.PriceParams{
		Name:        p.Name,
		Description: p.Description,
		Amount:      p.Price,
		Currency:    cfg.Currency(),
		Interval:    p.interval(),
	})
	if err != nil {
		return "", err
	}
	return price.ID, nil
}

func (s *service) deactivatePrice(ctx context.Context, priceID string) error {
	if priceID == "" {
		return nil
	}
	provider, _, err := s.provider(ctx)
	if err != nil {
		return err
	}
	_, err = provider.UpdatePrice(ctx, priceID, false)
	return err
}

func (s *service) CreateProduct(ctx context.Context, in ProductInput) (*Product, error) {
	in.normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	p := &Product{}
	in.apply(p)
	if !p.IsFree {
		priceID, err := s.createPrice(ctx, p)
		if err != nil {
			return nil, err
		}
		p.PriceID = priceID
	}

	if err := s.store.CreateProduct(ctx, p); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "product created",
		logger.Component("catalog"),
		logger.ProductID(p.ID),
	)
	return p, nil
}

// UpdateProduct replaces the provider price when anything the price was
// built from changes.
func (s *service) UpdateProduct(ctx context.Context, id uuid.UUID, in ProductInput) (*Product, error) {
	in.normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	existing, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	p := *existing
	in.apply(&p)

	switch {
	case p.IsFree:
		if err := s.deactivatePrice(ctx, existing.PriceID); err != nil {
			return nil, err
		}
		p.PriceID = ""
	case existing.PriceID == "" || priceChanged(existing, &p):
		if err := s.deactivatePrice(ctx, existing.PriceID); err != nil {
			return nil, err
		}
		priceID, err := s.createPrice(ctx, &p)
		if err != nil {
			return nil, err
		}
		p.PriceID = priceID
	}

	if err := s.store.UpdateProduct(ctx, &p); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "product updated",
		logger.Component("catalog"),
		logger.ProductID(p.ID),
	)
	return &p, nil
}

func priceChanged(old, next *Product) bool {
	return !old.Price.Equal(next.Price) ||
		old.Name != next.Name ||
		old.Mode != next.Mode ||
		old.interval() != next.interval() ||
		old.IsFree != next.IsFree
}

// ArchiveProduct hides the product from the catalog and deactivates its
// provider price. Billing records keep referencing it.
func (s *service) ArchiveProduct(ctx context.Context, id uuid.UUID) error {
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if p.Status == ProductArchived {
		return nil
	}
	if err := s.deactivatePrice(ctx, p.PriceID); err != nil {
		return err
	}
	p.Status = ProductArchived
	if err := s.store.UpdateProduct(ctx, p); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "product archived",
		logger.Component("catalog"),
		logger.ProductID(p.ID),
	)
	return nil
}

func (s *service) ProductSubscribers(ctx context.Context, id uuid.UUID) ([]Record, error) {
	if _, err := s.store.GetProduct(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListRecords(ctx, RecordFilter{ProductID: id, EntitledOnly: true})
}
