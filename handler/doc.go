// Package handler turns typed functions into http.HandlerFunc values for the
// JSON API.
//
// A handler receives a Context and a request struct populated by one or more
// binders, and returns a Response:
//
//	type checkoutRequest struct {
//		ProductID string `json:"productId"`
//	}
//
//	func checkout(ctx handler.Context, req checkoutRequest) handler.Response {
//		res, err := svc.CreateCheckout(ctx, user, req.ProductID)
//		if err != nil {
//			return handler.JSONError(err)
//		}
//		return handler.JSON(res)
//	}
//
//	r.Post("/checkout", handler.Wrap(checkout,
//		handler.WithBinders[handler.Context, checkoutRequest](binder.JSON()),
//	))
//
// Application endpoints answer with the JSONResponse envelope ({"data"} or
// {"error"}). Endpoints consumed by third parties, such as provider webhooks,
// use Raw to write an exact body.
//
// Errors returned from binders or Render go to the ErrorHandler configured
// with WithErrorHandler. NewErrorHandler builds one that renders the
// envelope and logs client errors at warn and server errors at error level.
package handler
