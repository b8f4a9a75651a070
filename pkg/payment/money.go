package payment

import (
	"strings"

	"github.com/shopspring/decimal"
)

// zeroDecimal lists currencies whose minor unit equals the major unit.
var zeroDecimal = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true,
	"kmf": true, "krw": true, "mga": true, "pyg": true, "rwf": true,
	"ugx": true, "vnd": true, "vuv": true, "xaf": true, "xof": true,
	"xpf": true,
}

func minorExponent(currency string) int32 {
	if zeroDecimal[strings.ToLower(currency)] {
		return 0
	}
	return 2
}

// ToMinorUnits converts a major-unit amount to the integer minor units the
// card provider expects, rounding half away from zero: 9.99 usd -> 999.
func ToMinorUnits(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(minorExponent(currency)).Round(0).IntPart()
}

// FromMinorUnits is the inverse of ToMinorUnits: 999 usd -> 9.99.
func FromMinorUnits(amount int64, currency string) decimal.Decimal {
	return decimal.New(amount, -minorExponent(currency))
}

// NormalizeCurrency lowercases and trims a currency code, defaulting to usd.
func NormalizeCurrency(currency string) string {
	c := strings.ToLower(strings.TrimSpace(currency))
	if c == "" {
		return "usd"
	}
	return c
}
