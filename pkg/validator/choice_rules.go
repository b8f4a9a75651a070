package validator

import (
	"fmt"
	"slices"
	"strings"
)

func InList[T comparable](field string, value T, allowed []T) Rule {
	return Rule{
		Check: func() bool {
			return slices.Contains(allowed, value)
		},
		Error: ValidationError{
			Field:             field,
			Message:           fmt.Sprintf("must be one of: %v", allowed),
			TranslationKey:    "validation.in_list",
			TranslationValues: map[string]any{"field": field, "allowed_values": allowed},
		},
	}
}

// Subset fails when any of values is not in allowed.
func Subset(field string, values, allowed []string) Rule {
	return Rule{
		Check: func() bool {
			for _, v := range values {
				if !slices.Contains(allowed, v) {
					return false
				}
			}
			return true
		},
		Error: ValidationError{
			Field:             field,
			Message:           fmt.Sprintf("contains unsupported values; allowed: %s", strings.Join(allowed, ", ")),
			TranslationKey:    "validation.subset",
			TranslationValues: map[string]any{"field": field, "allowed_values": allowed},
		},
	}
}
