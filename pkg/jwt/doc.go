// Package jwt issues and verifies HS256 access tokens with
// github.com/golang-jwt/jwt/v5 and exposes HTTP middleware that puts the
// verified Claims into the request context.
//
//	svc, err := jwt.New(cfg)
//	r.Group(func(r chi.Router) {
//		r.Use(jwt.Middleware(svc))
//		r.Use(jwt.RequireRole("admin"))
//		...
//	})
//
// Handlers read the caller with jwt.ClaimsFromContext.
package jwt
