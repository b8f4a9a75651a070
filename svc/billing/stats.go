package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Range bounds report queries by record creation time. A zero Range covers
// all records.
type Range struct {
	From time.Time
	To   time.Time
}

func (r Range) filter() RecordFilter {
	if r.From.IsZero() || r.To.IsZero() {
		return RecordFilter{}
	}
	return RecordFilter{From: r.From, To: r.To}
}

type SalesStats struct {
	Total            decimal.Decimal `json:"total"`
	Count            int             `json:"count"`
	PercentageChange float64         `json:"percentageChange"`
}

type CountStats struct {
	Total            int     `json:"total"`
	PercentageChange float64 `json:"percentageChange"`
}

type MonthlyRevenue struct {
	Month string          `json:"month"` // YYYY-MM
	Name  string          `json:"name"`  // Jan
	Total decimal.Decimal `json:"total"`
}

// percentageChange compares total with the part of it that existed a month
// ago.
func percentageChange(total, previous decimal.Decimal) float64 {
	switch {
	case total.IsZero() && previous.IsZero():
		return 0
	case previous.IsZero():
		return 100
	default:
		pct, _ := total.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100)).Round(2).Float64()
		return pct
	}
}

func (s *service) monthAgo() time.Time {
	return s.now().UTC().AddDate(0, -1, 0)
}

func (s *service) TotalSales(ctx context.Context, r Range) (*SalesStats, error) {
	records, err := s.store.ListRecords(ctx, r.filter())
	if err != nil {
		return nil, err
	}
	cutoff := s.monthAgo()
	out := &SalesStats{Total: decimal.Zero, Count: len(records)}
	previous := decimal.Zero
	for _, rec := range records {
		out.Total = out.Total.Add(rec.Amount)
		if rec.CreatedAt.Before(cutoff) {
			previous = previous.Add(rec.Amount)
		}
	}
	out.PercentageChange = percentageChange(out.Total, previous)
	return out, nil
}

func (s *service) TotalSubscriptions(ctx context.Context, r Range) (*CountStats, error) {
	f := r.filter()
	f.EntitledOnly = true
	records, err := s.store.ListRecords(ctx, f)
	if err != nil {
		return nil, err
	}
	cutoff := s.monthAgo()
	previous := 0
	for _, rec := range records {
		if rec.CreatedAt.Before(cutoff) {
			previous++
		}
	}
	return &CountStats{
		Total:            len(records),
		PercentageChange: percentageChange(decimal.NewFromInt(int64(len(records))), decimal.NewFromInt(int64(previous))),
	}, nil
}

// PaidUsers counts distinct users holding an entitled provider-backed record.
func (s *service) PaidUsers(ctx context.Context, r Range) (*CountStats, error) {
	f := r.filter()
	f.EntitledOnly = true
	records, err := s.store.ListRecords(ctx, f)
	if err != nil {
		return nil, err
	}
	cutoff := s.monthAgo()
	all := make(map[string]struct{})
	before := make(map[string]struct{})
	for _, rec := range records {
		if rec.Local() {
			continue
		}
		all[rec.UserID] = struct{}{}
		if rec.CreatedAt.Before(cutoff) {
			before[rec.UserID] = struct{}{}
		}
	}
	return &CountStats{
		Total:            len(all),
		PercentageChange: percentageChange(decimal.NewFromInt(int64(len(all))), decimal.NewFromInt(int64(len(before)))),
	}, nil
}

// RevenueOverview sums record amounts per month for the last twelve months,
// oldest first. Months without sales are reported as zero.
func (s *service) RevenueOverview(ctx context.Context) ([]MonthlyRevenue, error) {
	now := s.now().UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -11, 0)

	records, err := s.store.ListRecords(ctx, RecordFilter{From: first})
	if err != nil {
		return nil, err
	}

	out := make([]MonthlyRevenue, 12)
	index := make(map[string]int, 12)
	for i := range out {
		m := first.AddDate(0, i, 0)
		key := m.Format("2006-01")
		out[i] = MonthlyRevenue{Month: key, Name: m.Format("Jan"), Total: decimal.Zero}
		index[key] = i
	}
	for _, rec := range records {
		if i, ok := index[rec.CreatedAt.UTC().Format("2006-01")]; ok {
			out[i].Total = out[i].Total.Add(rec.Amount)
		}
	}
	return out, nil
}

func (s *service) RecentSales(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 5
	}
	return s.store.ListRecords(ctx, RecordFilter{EntitledOnly: true, Limit: limit})
}

func (s *service) ActiveBillingsByProduct(ctx context.Context, productID uuid.UUID) ([]Record, error) {
	return s.store.ListRecords(ctx, RecordFilter{ProductID: productID, EntitledOnly: true})
}
