package billing_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/theBullfish/replier-web/pkg/payment"
	"github.com/theBullfish/replier-web/pkg/validator"
	"github.com/theBullfish/replier-web/svc/billing"
)

func TestProductInput_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		in     billing.ProductInput
		fields []string
	}{
		{
			name: "valid paid subscription",
			in:   billing.ProductInput{Name: "Pro", Price: money("9.99"), Mode: payment.ModeSubscription, Interval: "month", Status: billing.ProductActive},
		},
		{
			name: "valid free plan",
			in:   billing.ProductInput{Name: "Starter", IsFree: true, Mode: payment.ModeSubscription, Interval: "month", Status: billing.ProductActive},
		},
		{
			name:   "free plan with a price",
			in:     billing.ProductInput{Name: "Starter", IsFree: true, Price: money("1"), Mode: payment.ModeSubscription, Interval: "month", Status: billing.ProductActive},
			fields: []string{"price"},
		},
		{
			name:   "free plan with a trial",
			in:     billing.ProductInput{Name: "Starter", IsFree: true, HasTrial: true, Mode: payment.ModeSubscription, Interval: "month", Status: billing.ProductActive},
			fields: []string{"hasTrial"},
		},
		{
			name:   "paid plan without a price",
			in:     billing.ProductInput{Name: "Pro", Mode: payment.ModePayment, Status: billing.ProductActive},
			fields: []string{"price"},
		},
		{
			name:   "too many decimals",
			in:     billing.ProductInput{Name: "Pro", Price: money("9.999"), Mode: payment.ModePayment, Status: billing.ProductActive},
			fields: []string{"price"},
		},
		{
			name:   "unknown interval and mode",
			in:     billing.ProductInput{Name: "Pro", Price: money("9"), Mode: payment.ModeSubscription, Interval: "week", Status: "gone"},
			fields: []string{"type", "status"},
		},
		{
			name:   "missing name",
			in:     billing.ProductInput{Price: money("9"), Mode: payment.ModePayment, Status: billing.ProductActive},
			fields: []string{"name"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.in.Validate()
			if len(tt.fields) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			verrs := validator.ExtractValidationErrors(err)
			require.NotNil(t, verrs)
			for _, field := range tt.fields {
				assert.True(t, verrs.Has(field), "expected error on %s, got %v", field, verrs.Fields())
			}
		})
	}
}

func TestCreateProduct(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("paid product gets a provider price", func(t *testing.T) {
		t.Parallel()
		p := stripeProvider()
		f := newFixture(t, p)
		p.On("CreatePrice", mock.Anything, payment.PriceParams{
			Name: "Pro", Amount: money("9.99"), Currency: "usd", Interval: "month",
		}).Return(&payment.Price{ID: "price_new", Active: true}, nil).Once()

		product, err := f.svc.CreateProduct(ctx, billing.ProductInput{
			Name:              "  Pro ",
			Price:             money("9.99"),
			MarketingTaglines: []string{" fast ", "", "friendly"},
		})
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, product.ID)
		assert.Equal(t, "Pro", product.Name)
		assert.Equal(t, "price_new", product.PriceID)
		assert.Equal(t, payment.ModeSubscription, product.Mode)
		assert.Equal(t, billing.ProductActive, product.Status)
		assert.Equal(t, []string{"fast", "friendly"}, product.MarketingTaglines)

		stored, err := f.store.GetProduct(ctx, product.ID)
		require.NoError(t, err)
		assert.Equal(t, "price_new", stored.PriceID)
		p.AssertExpectations(t)
	})

	t.Run("free product stays local", func(t *testing.T) {
		t.Parallel()
		p := stripeProvider()
		f := newFixture(t, p)

		product, err := f.svc.CreateProduct(ctx, billing.ProductInput{Name: "Starter", IsFree: true})
		require.NoError(t, err)
		assert.Empty(t, product.PriceID)
		p.AssertNotCalled(t, "CreatePrice", mock.Anything, mock.Anything)
	})

	t.Run("invalid input never reaches the provider", func(t *testing.T) {
		t.Parallel()
		p := stripeProvider()
		f := newFixture(t, p)

		_, err := f.svc.CreateProduct(ctx, billing.ProductInput{Name: "Pro"})
		assert.True(t, validator.IsValidationError(err))
		p.AssertNotCalled(t, "CreatePrice", mock.Anything, mock.Anything)
	})
}

func TestUpdateProduct(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	input := func(price string) billing.ProductInput {
		return billing.ProductInput{Name: "Pro", Price: money(price), Interval: "month"}
	}

	t.Run("price change replaces the provider price", func(t *testing.T) {
		t.Parallel()
		p := stripeProvider()
		f := newFixture(t, p)
		existing := f.addProduct(t, billing.Product{Name: "Pro", Price: money("9.99"), PriceID: "price_old"})

		p.On("UpdatePrice", mock.Anything, "price_old", false).Return(&payment.Price{ID: "price_old"}, nil).Once()
		p.On("CreatePrice", mock.Anything, mock.MatchedBy(func(params payment.PriceParams) bool {
			return params.Amount.Equal(money("14.99"))
		})).Return(&payment.Price{ID: "price_new", Active: true}, nil).Once()

		updated, err := f.svc.UpdateProduct(ctx, existing.ID, input("14.99"))
		require.NoError(t, err)
		assert.Equal(t, "price_new", updated.PriceID)
		assert.Equal(t, existing.CreatedAt, updated.CreatedAt)
		p.AssertExpectations(t)
	})

	t.Run("cosmetic change keeps the price", func(t *testing.T) {
		t.Parallel()
		p := stripeProvider()
		f := newFixture(t, p)
		existing := f.addProduct(t, billing.Product{Name: "Pro", Price: money("9.99"), PriceID: "price_old"})

		in := input("9.99")
		in.Description = "Now with more replies"
		in.MarketingTaglines = []string{"Unlimited drafts"}
		updated, err := f.svc.UpdateProduct(ctx, existing.ID, in)
		require.NoError(t, err)
		assert.Equal(t, "price_old", updated.PriceID)
		assert.Equal(t, "Now with more replies", updated.Description)
		p.AssertNotCalled(t, "CreatePrice", mock.Anything, mock.Anything)
		p.AssertNotCalled(t, "UpdatePrice", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("switching to free deactivates the price", func(t *testing.T) {
		t.Parallel()
		p := stripeProvider()
		f := newFixture(t, p)
		existing := f.addProduct(t, billing.Product{Name: "Pro", Price: money("9.99"), PriceID: "price_old"})
		p.On("UpdatePrice", mock.Anything, "price_old", false).Return(&payment.Price{ID: "price_old"}, nil).Once()

		updated, err := f.svc.UpdateProduct(ctx, existing.ID, billing.ProductInput{Name: "Pro", IsFree: true})
		require.NoError(t, err)
		assert.True(t, updated.IsFree)
		assert.Empty(t, updated.PriceID)
		p.AssertExpectations(t)
	})

	t.Run("missing product", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, stripeProvider())
		_, err := f.svc.UpdateProduct(ctx, uuid.New(), input("9.99"))
		assert.ErrorIs(t, err, billing.ErrProductNotFound)
	})
}

func TestArchiveProduct(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	p := stripeProvider()
	f := newFixture(t, p)
	product := f.addProduct(t, billing.Product{Name: "Pro", Price: money("9.99"), PriceID: "price_1"})
	f.addRecord(t, billing.Record{
		UserID: testUser.ID, ProductID: product.ID, Status: payment.StatusActive,
		Provider: payment.ProviderStripe, ProviderID: "sub_1",
	})
	p.On("UpdatePrice", mock.Anything, "price_1", false).Return(&payment.Price{ID: "price_1"}, nil).Once()

	require.NoError(t, f.svc.ArchiveProduct(ctx, product.ID))
	require.NoError(t, f.svc.ArchiveProduct(ctx, product.ID), "archiving twice is a no-op")

	active, err := f.svc.ListProducts(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := f.svc.ListProducts(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, billing.ProductArchived, all[0].Status)

	subscribers, err := f.svc.ProductSubscribers(ctx, product.ID)
	require.NoError(t, err)
	require.Len(t, subscribers, 1, "records keep referencing archived products")
	p.AssertExpectations(t)
}

func TestProductSubscribers_UnknownProduct(t *testing.T) {
	t.Parallel()
	f := newFixture(t, stripeProvider())
	_, err := f.svc.ProductSubscribers(context.Background(), uuid.New())
	assert.ErrorIs(t, err, billing.ErrProductNotFound)
}
