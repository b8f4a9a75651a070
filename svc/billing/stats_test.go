package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theBullfish/replier-web/pkg/payment"
	"github.com/theBullfish/replier-web/svc/billing"
	"github.com/theBullfish/replier-web/svc/settings"
)

type statsFixture struct {
	svc   billing.Service
	store *billing.MemoryStore
	clock time.Time
}

// newStatsFixture builds a service whose store stamps records with a
// movable clock while the service itself sees fixedNow.
func newStatsFixture(t *testing.T) *statsFixture {
	t.Helper()
	f := &statsFixture{clock: fixedNow}
	f.store = billing.NewMemoryStore(billing.WithStoreClock(func() time.Time { return f.clock }))
	f.svc = billing.NewService(f.store,
		settings.NewService(settings.NewMemoryStore()),
		billing.ProviderSourceFunc(func(payment.Config) (payment.Provider, error) { return nil, payment.ErrNoProviderEnabled }),
		billing.WithClock(func() time.Time { return fixedNow }),
	)
	return f
}

func (f *statsFixture) add(t *testing.T, at time.Time, userID string, provider payment.ProviderName, status payment.Status, amount string) {
	t.Helper()
	f.clock = at
	_, err := f.store.CreateRecord(context.Background(), &billing.Record{
		UserID:     userID,
		ProductID:  uuid.New(),
		Status:     status,
		Provider:   provider,
		ProviderID: uuid.NewString(),
		Amount:     money(amount),
		Currency:   "usd",
	})
	require.NoError(t, err)
}

func seedStats(t *testing.T) *statsFixture {
	f := newStatsFixture(t)
	twoMonthsAgo := fixedNow.AddDate(0, -2, 0)
	lastWeek := fixedNow.AddDate(0, 0, -7)

	f.add(t, twoMonthsAgo, "user-1", payment.ProviderStripe, payment.StatusActive, "10")
	f.add(t, lastWeek, "user-2", payment.ProviderStripe, payment.StatusActive, "20")
	f.add(t, lastWeek, "user-2", payment.ProviderPayPal, payment.StatusCanceled, "5")
	f.add(t, lastWeek, "user-3", payment.ProviderFree, payment.StatusActive, "0")
	return f
}

func TestTotalSales(t *testing.T) {
	t.Parallel()
	f := seedStats(t)

	stats, err := f.svc.TotalSales(context.Background(), billing.Range{})
	require.NoError(t, err)
	assert.Equal(t, "35", stats.Total.String())
	assert.Equal(t, 4, stats.Count)
	assert.InDelta(t, 250.0, stats.PercentageChange, 0.001)

	ranged, err := f.svc.TotalSales(context.Background(), billing.Range{
		From: fixedNow.AddDate(0, 0, -10),
		To:   fixedNow,
	})
	require.NoError(t, err)
	assert.Equal(t, "25", ranged.Total.String())
	assert.Equal(t, 3, ranged.Count)
	assert.InDelta(t, 100.0, ranged.PercentageChange, 0.001)
}

func TestTotalSubscriptions(t *testing.T) {
	t.Parallel()
	f := seedStats(t)

	stats, err := f.svc.TotalSubscriptions(context.Background(), billing.Range{})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.InDelta(t, 200.0, stats.PercentageChange, 0.001)
}

func TestPaidUsers(t *testing.T) {
	t.Parallel()
	f := seedStats(t)

	stats, err := f.svc.PaidUsers(context.Background(), billing.Range{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total, "free and canceled records are not paid users")
	assert.InDelta(t, 100.0, stats.PercentageChange, 0.001)
}

func TestRevenueOverview(t *testing.T) {
	t.Parallel()
	f := seedStats(t)
	f.add(t, fixedNow.AddDate(-2, 0, 0), "user-4", payment.ProviderStripe, payment.StatusActive, "999")

	months, err := f.svc.RevenueOverview(context.Background())
	require.NoError(t, err)
	require.Len(t, months, 12)

	assert.Equal(t, "2025-04", months[0].Month)
	assert.Equal(t, "Apr", months[0].Name)
	assert.Equal(t, "2026-03", months[11].Month)
	assert.Equal(t, "Mar", months[11].Name)

	byMonth := make(map[string]string)
	for _, m := range months {
		byMonth[m.Month] = m.Total.String()
	}
	assert.Equal(t, "10", byMonth["2026-01"])
	assert.Equal(t, "25", byMonth["2026-03"])
	assert.Equal(t, "0", byMonth["2025-12"])
}

func TestRecentSales(t *testing.T) {
	t.Parallel()
	f := newStatsFixture(t)
	for i := range 7 {
		f.add(t, fixedNow.Add(time.Duration(i)*time.Minute), "user-1", payment.ProviderStripe, payment.StatusActive, "1")
	}

	recent, err := f.svc.RecentSales(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recent, 5)
	assert.True(t, recent[0].CreatedAt.After(recent[4].CreatedAt), "newest first")

	three, err := f.svc.RecentSales(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, three, 3)
}

func TestActiveBillingsByProduct(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newStatsFixture(t)
	productID := uuid.New()

	for _, status := range []payment.Status{payment.StatusActive, payment.StatusCanceled, payment.StatusActive} {
		_, err := f.store.CreateRecord(ctx, &billing.Record{
			UserID: "user-1", ProductID: productID, Status: status,
			Provider: payment.ProviderStripe, ProviderID: uuid.NewString(),
		})
		require.NoError(t, err)
	}

	records, err := f.svc.ActiveBillingsByProduct(ctx, productID)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}
