package billing

import (
	"strings"

	"github.com/google/uuid"

	"github.com/theBullfish/replier-web/handler"
	"github.com/theBullfish/replier-web/pkg/jwt"
	"github.com/theBullfish/replier-web/pkg/validator"
	"github.com/theBullfish/replier-web/svc/billing"
)

// currentUser builds the buyer from the verified token claims.
func currentUser(ctx handler.Context) (billing.User, bool) {
	claims, ok := jwt.ClaimsFromContext(ctx)
	if !ok || claims.UserID() == "" {
		return billing.User{}, false
	}
	return billing.User{ID: claims.UserID(), Email: claims.Email, Name: claims.Name}, true
}

func parseID(field, raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if err := validator.Apply(
		validator.Required(field, raw),
		validator.ValidUUID(field, raw),
	); err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(raw)
}

type checkoutRequest struct {
	ProductID string `json:"productId"`
}

func (m *Module) checkout(ctx handler.Context, req checkoutRequest) handler.Response {
	user, ok := currentUser(ctx)
	if !ok {
		return fail(errNoUser)
	}
	productID, err := parseID("productId", req.ProductID)
	if err != nil {
		return fail(err)
	}

	res, err := m.billing.CreateCheckout(ctx, user, productID)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(res)
}

type changePlanRequest struct {
	NewProductID   string `json:"newProductId"`
	SubscriptionID string `json:"subscriptionId"`
}

func (m *Module) changePlan(ctx handler.Context, req changePlanRequest) handler.Response {
	user, ok := currentUser(ctx)
	if !ok {
		return fail(errNoUser)
	}
	if err := validator.Apply(validator.Required("subscriptionId", req.SubscriptionID)); err != nil {
		return fail(err)
	}
	productID, err := parseID("newProductId", req.NewProductID)
	if err != nil {
		return fail(err)
	}

	change, err := m.billing.ChangePlan(ctx, user, productID, req.SubscriptionID)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(change)
}

type cancelRequest struct {
	SubscriptionID string `json:"subscriptionId"`
}

func (m *Module) cancel(ctx handler.Context, req cancelRequest) handler.Response {
	user, ok := currentUser(ctx)
	if !ok {
		return fail(errNoUser)
	}
	if err := validator.Apply(validator.Required("subscriptionId", req.SubscriptionID)); err != nil {
		return fail(err)
	}

	if err := m.billing.Cancel(ctx, user, req.SubscriptionID); err != nil {
		return fail(err)
	}
	return handler.JSON(map[string]bool{"success": true})
}

func (m *Module) manageBilling(ctx handler.Context, _ empty) handler.Response {
	user, ok := currentUser(ctx)
	if !ok {
		return fail(errNoUser)
	}
	link, err := m.billing.ManageBilling(ctx, user)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(map[string]string{"url": link.URL})
}

func (m *Module) currentBilling(ctx handler.Context, _ empty) handler.Response {
	user, ok := currentUser(ctx)
	if !ok {
		return fail(errNoUser)
	}
	rec, err := m.billing.CurrentBilling(ctx, user)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(rec)
}
