package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/theBullfish/replier-web/pkg/validator"
)

// JSONResponse is the envelope of every application endpoint.
type JSONResponse struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

type ErrorDetail struct {
	Code    string              `json:"code,omitempty"`
	Message string              `json:"message,omitempty"`
	Details map[string][]string `json:"details,omitempty"`
}

type jsonResponse struct {
	status int
	body   any
}

func (j jsonResponse) Render(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(j.status)
	return json.NewEncoder(w).Encode(j.body)
}

type JSONOption func(*jsonResponse)

// WithJSONStatus sets the HTTP status code.
func WithJSONStatus(status int) JSONOption {
	return func(r *jsonResponse) {
		r.status = status
	}
}

// WithJSONMeta adds metadata to an envelope response.
func WithJSONMeta(meta map[string]any) JSONOption {
	return func(r *jsonResponse) {
		if env, ok := r.body.(JSONResponse); ok {
			env.Meta = meta
			r.body = env
		}
	}
}

// JSON wraps v in the envelope. An error value is rendered as JSONError.
func JSON(v any, opts ...JSONOption) Response {
	r := &jsonResponse{status: http.StatusOK}

	switch val := v.(type) {
	case JSONResponse:
		r.body = val
	case *ErrorDetail:
		r.body = JSONResponse{Error: val}
		r.status = http.StatusInternalServerError
	case error:
		r.body = JSONResponse{Error: errorToDetail(val, &r.status)}
	default:
		r.body = JSONResponse{Data: v}
	}

	for _, opt := range opts {
		opt(r)
	}
	return r
}

// JSONError renders err as {"error": {...}} with a status derived from it.
func JSONError(err any, opts ...JSONOption) Response {
	r := &jsonResponse{status: http.StatusInternalServerError}

	switch e := err.(type) {
	case *ErrorDetail:
		r.body = JSONResponse{Error: e}
	case error:
		r.body = JSONResponse{Error: errorToDetail(e, &r.status)}
	default:
		r.body = JSONResponse{Error: &ErrorDetail{Code: ErrInternalServerError.Key}}
	}

	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Raw writes v as the whole JSON body without the envelope. Webhook
// endpoints use it because providers only look at the status code and a
// fixed body shape.
func Raw(status int, v any) Response {
	return jsonResponse{status: status, body: v}
}

// errorToDetail classifies err and sets status accordingly. Unclassified
// errors become 500 with the generic status text.
func errorToDetail(err error, status *int) *ErrorDetail {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		*status = http.StatusUnprocessableEntity
		detail := &ErrorDetail{Code: "validation_error", Message: "validation failed"}
		if len(fieldErrs) > 0 {
			detail.Details = fieldErrs.ByField()
		}
		return detail
	}

	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		*status = httpErr.Code
		msg := httpErr.Message
		if msg == "" {
			msg = http.StatusText(httpErr.Code)
		}
		return &ErrorDetail{Code: httpErr.Key, Message: msg}
	}

	*status = http.StatusInternalServerError
	return &ErrorDetail{
		Code:    ErrInternalServerError.Key,
		Message: http.StatusText(http.StatusInternalServerError),
	}
}

// statusOf returns the status errorToDetail would pick for err.
func statusOf(err error) int {
	status := http.StatusInternalServerError
	errorToDetail(err, &status)
	return status
}
