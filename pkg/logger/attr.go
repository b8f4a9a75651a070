package logger

import (
	"log/slog"
	"time"
)

// Error logs err under "error". A nil error yields an empty attribute,
// which slog drops.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID logs the acting user under "user_id".
func UserID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("user_id", id)
}

// RequestID logs the request id under "request_id".
func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}

func Component(name string) slog.Attr { return slog.String("component", name) }

func Event(name string) slog.Attr { return slog.String("event", name) }

func EventType(t string) slog.Attr { return slog.String("event_type", t) }

func EventID(id string) slog.Attr { return slog.String("event_id", id) }

func Duration(d time.Duration) slog.Attr { return slog.Duration("duration", d) }

// Provider logs the payment provider name.
func Provider(name string) slog.Attr { return slog.String("provider", name) }

// ProviderID logs the provider-side subscription, order, or payment id.
func ProviderID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("provider_id", id)
}

// BillingID logs a local billing record id.
func BillingID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("billing_id", id)
}

// ProductID logs a product id.
func ProductID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("product_id", id)
}
