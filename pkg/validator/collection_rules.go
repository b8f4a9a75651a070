package validator

import "fmt"

// MaxLenSlice limits how many items a list field may hold.
func MaxLenSlice[T any](field string, value []T, max int) Rule {
	return Rule{
		Check: func() bool {
			return len(value) <= max
		},
		Error: ValidationError{
			Field:             field,
			Message:           fmt.Sprintf("must have at most %d items", max),
			TranslationKey:    "validation.max_items",
			TranslationValues: map[string]any{"field": field, "max": max},
		},
	}
}
