package validator

import (
	"fmt"
	"net/mail"
	"net/url"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// ValidEmail accepts a bare RFC 5322 address with a dotted domain.
func ValidEmail(field, value string) Rule {
	return Rule{
		Check: func() bool {
			addr, err := mail.ParseAddress(strings.TrimSpace(value))
			if err != nil || addr.Address != strings.TrimSpace(value) {
				return false
			}
			at := strings.LastIndexByte(addr.Address, '@')
			domain := addr.Address[at+1:]
			return at > 0 && strings.Contains(domain, ".") &&
				!strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
		},
		Error: ValidationError{
			Field:             field,
			Message:           "must be a valid email address",
			TranslationKey:    "validation.email",
			TranslationValues: map[string]any{"field": field},
		},
	}
}

// ValidURL requires an absolute URL with scheme and host.
func ValidURL(field, value string) Rule {
	return ValidURLWithScheme(field, value, nil)
}

// ValidURLWithScheme is ValidURL restricted to schemes. A nil list accepts
// any scheme.
func ValidURLWithScheme(field, value string, schemes []string) Rule {
	msg := "must be a valid URL"
	if len(schemes) > 0 {
		msg = fmt.Sprintf("must be a valid URL with scheme: %s", strings.Join(schemes, ", "))
	}
	return Rule{
		Check: func() bool {
			u, err := url.ParseRequestURI(strings.TrimSpace(value))
			if err != nil || u.Scheme == "" || u.Host == "" {
				return false
			}
			return len(schemes) == 0 || slices.Contains(schemes, u.Scheme)
		},
		Error: ValidationError{
			Field:             field,
			Message:           msg,
			TranslationKey:    "validation.url",
			TranslationValues: map[string]any{"field": field, "schemes": schemes},
		},
	}
}

func ValidUUID(field, value string) Rule {
	return Rule{
		Check: func() bool {
			if len(value) != 36 {
				return false
			}
			_, err := uuid.Parse(value)
			return err == nil
		},
		Error: ValidationError{
			Field:             field,
			Message:           "must be a valid UUID",
			TranslationKey:    "validation.uuid",
			TranslationValues: map[string]any{"field": field},
		},
	}
}
