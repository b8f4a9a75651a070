package billing

import (
	"time"

	"github.com/theBullfish/replier-web/handler"
	"github.com/theBullfish/replier-web/pkg/validator"
	"github.com/theBullfish/replier-web/svc/billing"
)

type rangeQuery struct {
	From time.Time `query:"from"`
	To   time.Time `query:"to"`
}

// rng validates the optional range. Both bounds or neither must be set.
func (q rangeQuery) rng() (billing.Range, error) {
	if q.From.IsZero() != q.To.IsZero() || (!q.To.IsZero() && q.To.Before(q.From)) {
		return billing.Range{}, validator.ValidationErrors{{
			Field:   "to",
			Message: "from and to must both be set and to must not precede from",
		}}
	}
	return billing.Range{From: q.From, To: q.To}, nil
}

func (m *Module) salesStats(ctx handler.Context, q rangeQuery) handler.Response {
	r, err := q.rng()
	if err != nil {
		return fail(err)
	}
	stats, err := m.billing.TotalSales(ctx, r)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(stats)
}

func (m *Module) subscriptionStats(ctx handler.Context, q rangeQuery) handler.Response {
	r, err := q.rng()
	if err != nil {
		return fail(err)
	}
	stats, err := m.billing.TotalSubscriptions(ctx, r)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(stats)
}

func (m *Module) paidUserStats(ctx handler.Context, q rangeQuery) handler.Response {
	r, err := q.rng()
	if err != nil {
		return fail(err)
	}
	stats, err := m.billing.PaidUsers(ctx, r)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(stats)
}

func (m *Module) revenueOverview(ctx handler.Context, _ empty) handler.Response {
	months, err := m.billing.RevenueOverview(ctx)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(months)
}

type recentSalesQuery struct {
	Limit int `query:"limit"`
}

func (m *Module) recentSales(ctx handler.Context, q recentSalesQuery) handler.Response {
	if q.Limit > 100 {
		q.Limit = 100
	}
	records, err := m.billing.RecentSales(ctx, q.Limit)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(records)
}

type byProductQuery struct {
	ProductID string `query:"productId"`
}

func (m *Module) billingsByProduct(ctx handler.Context, q byProductQuery) handler.Response {
	id, err := parseID("productId", q.ProductID)
	if err != nil {
		return fail(err)
	}
	records, err := m.billing.ActiveBillingsByProduct(ctx, id)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(records, handler.WithJSONMeta(map[string]any{"count": len(records)}))
}
