package billing

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/theBullfish/replier-web/pkg/payment"
)

// MemoryStore is an in-process Store with the same semantics as PgStore.
type MemoryStore struct {
	mu       sync.Mutex
	records  []*Record
	products map[uuid.UUID]*Product
	now      func() time.Time
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithStoreClock sets the clock used for CreatedAt and UpdatedAt.
func WithStoreClock(now func() time.Time) MemoryStoreOption {
	return func(m *MemoryStore) {
		if now != nil {
			m.now = now
		}
	}
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	m := &MemoryStore{
		products: make(map[uuid.UUID]*Product),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func copyRecord(r *Record) *Record {
	c := *r
	c.Metadata = maps.Clone(r.Metadata)
	return &c
}

func copyProduct(p *Product) *Product {
	c := *p
	c.MarketingTaglines = slices.Clone(p.MarketingTaglines)
	return &c
}

func (m *MemoryStore) CreateRecord(_ context.Context, r *Record) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.records {
		if existing.ProviderID == r.ProviderID {
			return copyRecord(existing), nil
		}
	}

	now := m.now().UTC()
	if r.Entitled() {
		for _, existing := range m.records {
			if existing.UserID == r.UserID && existing.Provider == payment.ProviderFree && existing.Entitled() {
				existing.Status = payment.StatusCanceled
				if existing.EndedAt == nil {
					existing.EndedAt = &now
				}
				existing.UpdatedAt = now
			}
		}
	}

	rec := copyRecord(r)
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.CreatedAt, rec.UpdatedAt = now, now
	m.records = append(m.records, rec)
	return copyRecord(rec), nil
}

func (m *MemoryStore) GetRecordByProviderID(_ context.Context, providerID string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ProviderID == providerID {
			return copyRecord(r), nil
		}
	}
	return nil, ErrRecordNotFound
}

func (m *MemoryStore) newest(match func(*Record) bool) (*Record, error) {
	for i := len(m.records) - 1; i >= 0; i-- {
		if r := m.records[i]; match(r) {
			return copyRecord(r), nil
		}
	}
	return nil, ErrRecordNotFound
}

func (m *MemoryStore) FindEntitledRecord(_ context.Context, userID string, productID uuid.UUID) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.newest(func(r *Record) bool {
		return r.UserID == userID && r.ProductID == productID && r.Entitled()
	})
}

func (m *MemoryStore) CurrentRecord(_ context.Context, userID string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.newest(func(r *Record) bool {
		return r.UserID == userID && r.Entitled()
	})
}

func (m *MemoryStore) byID(id uuid.UUID) *Record {
	for _, r := range m.records {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (m *MemoryStore) SetRecordProduct(_ context.Context, id, productID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.byID(id)
	if r == nil {
		return ErrRecordNotFound
	}
	r.ProductID = productID
	r.UpdatedAt = m.now().UTC()
	return nil
}

func (m *MemoryStore) CancelRecord(_ context.Context, id uuid.UUID, at time.Time) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.byID(id)
	if r == nil {
		return nil, ErrRecordNotFound
	}
	r.Status = payment.StatusCanceled
	if r.EndedAt == nil {
		at = at.UTC()
		r.EndedAt = &at
	}
	r.UpdatedAt = m.now().UTC()
	return copyRecord(r), nil
}

func (m *MemoryStore) ApplySubscriptionUpdate(_ context.Context, providerID string, u payment.SubscriptionUpdate) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ProviderID != providerID {
			continue
		}
		r.Status = u.Status
		if u.Interval != "" {
			r.Interval = u.Interval
		}
		if u.CurrentPeriodStart != nil {
			r.CurrentPeriodStart = u.CurrentPeriodStart
		}
		if u.CurrentPeriodEnd != nil {
			r.CurrentPeriodEnd = u.CurrentPeriodEnd
		}
		r.CancelAtPeriodEnd = u.CancelAtPeriodEnd
		r.CanceledAt = u.CanceledAt
		if r.EndedAt == nil {
			r.EndedAt = u.EndedAt
		}
		r.UpdatedAt = m.now().UTC()
		return copyRecord(r), nil
	}
	return nil, ErrRecordNotFound
}

func (m *MemoryStore) ListRecords(_ context.Context, f RecordFilter) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Record, 0)
	for i := len(m.records) - 1; i >= 0; i-- {
		r := m.records[i]
		switch {
		case f.UserID != "" && r.UserID != f.UserID:
			continue
		case f.ProductID != uuid.Nil && r.ProductID != f.ProductID:
			continue
		case f.EntitledOnly && !r.Entitled():
			continue
		case !f.From.IsZero() && r.CreatedAt.Before(f.From):
			continue
		case !f.To.IsZero() && r.CreatedAt.After(f.To):
			continue
		}
		out = append(out, *copyRecord(r))
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateProduct(_ context.Context, p *Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := m.now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	m.products[p.ID] = copyProduct(p)
	return nil
}

func (m *MemoryStore) UpdateProduct(_ context.Context, p *Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.products[p.ID]
	if !ok {
		return ErrProductNotFound
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = m.now().UTC()
	m.products[p.ID] = copyProduct(p)
	return nil
}

func (m *MemoryStore) GetProduct(_ context.Context, id uuid.UUID) (*Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	return copyProduct(p), nil
}

func (m *MemoryStore) GetProductByPriceID(_ context.Context, priceID string) (*Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *Product
	for _, p := range m.products {
		if priceID == "" || p.PriceID != priceID {
			continue
		}
		if found == nil || p.CreatedAt.After(found.CreatedAt) {
			found = p
		}
	}
	if found == nil {
		return nil, ErrProductNotFound
	}
	return copyProduct(found), nil
}

func (m *MemoryStore) ListProducts(_ context.Context, activeOnly bool) ([]Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Product, 0, len(m.products))
	for _, p := range m.products {
		if activeOnly && p.Status != ProductActive {
			continue
		}
		out = append(out, *copyProduct(p))
	}
	slices.SortFunc(out, func(a, b Product) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return a.Price.Cmp(b.Price)
	})
	return out, nil
}
