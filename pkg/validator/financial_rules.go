package validator

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// ValidCurrency accepts any ISO 4217 code known to golang.org/x/text, in
// either case.
func ValidCurrency(field, value string) Rule {
	return Rule{
		Check: func() bool {
			v := strings.TrimSpace(value)
			if len(v) != 3 {
				return false
			}
			_, err := currency.ParseISO(strings.ToUpper(v))
			return err == nil
		},
		Error: ValidationError{
			Field:             field,
			Message:           "must be a valid ISO 4217 currency code",
			TranslationKey:    "validation.currency_code",
			TranslationValues: map[string]any{"field": field},
		},
	}
}

func PositiveDecimal(field string, value decimal.Decimal) Rule {
	return Rule{
		Check: func() bool {
			return value.IsPositive()
		},
		Error: ValidationError{
			Field:             field,
			Message:           "must be greater than zero",
			TranslationKey:    "validation.positive_amount",
			TranslationValues: map[string]any{"field": field},
		},
	}
}

func NonNegativeDecimal(field string, value decimal.Decimal) Rule {
	return Rule{
		Check: func() bool {
			return !value.IsNegative()
		},
		Error: ValidationError{
			Field:             field,
			Message:           "must not be negative",
			TranslationKey:    "validation.non_negative_amount",
			TranslationValues: map[string]any{"field": field},
		},
	}
}

// MaxDecimalPlaces limits the number of fractional digits, so 9.999 fails
// for a two-digit currency.
func MaxDecimalPlaces(field string, value decimal.Decimal, places int32) Rule {
	return Rule{
		Check: func() bool {
			return value.Equal(value.Truncate(places))
		},
		Error: ValidationError{
			Field:             field,
			Message:           fmt.Sprintf("must have at most %d decimal places", places),
			TranslationKey:    "validation.decimal_places",
			TranslationValues: map[string]any{"field": field, "places": places},
		},
	}
}
