package handler

import (
	"context"
	"net/http"
	"time"
)

// Context gives handlers the request, the response writer and the request
// context in one value.
type Context interface {
	context.Context
	Request() *http.Request
	ResponseWriter() http.ResponseWriter
}

// NewContext creates a Context backed by r's context.
func NewContext(w http.ResponseWriter, r *http.Request) Context {
	return &httpContext{w: w, r: r}
}

type httpContext struct {
	w http.ResponseWriter
	r *http.Request
}

func (c *httpContext) Request() *http.Request {
	return c.r
}

func (c *httpContext) ResponseWriter() http.ResponseWriter {
	return c.w
}

func (c *httpContext) Deadline() (deadline time.Time, ok bool) {
	return c.r.Context().Deadline()
}

func (c *httpContext) Done() <-chan struct{} {
	return c.r.Context().Done()
}

func (c *httpContext) Err() error {
	return c.r.Context().Err()
}

func (c *httpContext) Value(key any) any {
	return c.r.Context().Value(key)
}

// ContextKey is a typed key for request-scoped values.
type ContextKey struct{ name string }

func (c *ContextKey) String() string {
	return c.name
}

// NewContextKey creates a new context key. Declare keys as package-level
// variables.
func NewContextKey(name string) *ContextKey {
	return &ContextKey{name}
}

// ContextValue returns the value stored under key, or the zero value of T
// when it is missing or has another type.
func ContextValue[T any](ctx context.Context, key any) T {
	val, _ := ctx.Value(key).(T)
	return val
}

// ContextValueOK is ContextValue with a presence flag.
func ContextValueOK[T any](ctx context.Context, key any) (T, bool) {
	val, ok := ctx.Value(key).(T)
	return val, ok
}
