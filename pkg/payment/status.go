package payment

import "strings"

// Status is the normalized lifecycle state of a billing relationship.
// Raw provider vocabulary never reaches storage.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusCanceled  Status = "canceled"
	StatusExpired   Status = "expired"
)

// Entitled reports whether the status grants access to the product.
func (s Status) Entitled() bool { return s == StatusActive }

// Terminal reports whether no further provider transition is expected.
func (s Status) Terminal() bool { return s == StatusCanceled || s == StatusExpired }

func (s Status) String() string { return string(s) }

// NormalizeStatus maps card-provider subscription and payment intent states,
// wallet-provider subscription and order states, and legacy stored values
// onto Status. Unknown values are treated as pending.
func NormalizeStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "active", "trialing", "approved", "completed", "succeeded", "paid", "complete":
		return StatusActive
	case "past_due", "unpaid", "paused", "suspended":
		return StatusSuspended
	case "canceled", "cancelled", "voided":
		return StatusCanceled
	case "expired", "incomplete_expired":
		return StatusExpired
	default:
		// incomplete, approval_pending, created, saved, payer_action_required,
		// processing, requires_* and anything new.
		return StatusPending
	}
}
