// Package normalize converts loosely typed offer fields into canonical numeric
// values. Every function here is total: unparseable input degrades to a
// documented default instead of failing.
package normalize

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"esco-optimizer/pkg/offer"
)

// noFeeTerms are compared after lower-casing and trimming.
var noFeeTerms = map[string]struct{}{
	"":       {},
	"none":   {},
	"no":     {},
	"no fee": {},
	"n/a":    {},
	"na":     {},
	"0":      {},
	"$0":     {},
}

var affirmativeTerms = map[string]struct{}{
	"1":        {},
	"yes":      {},
	"true":     {},
	"included": {},
}

// numeral matches the first signed integer or decimal in free text.
var numeral = regexp.MustCompile(`[-+]?(?:\d*\.\d+|\d+)`)

// Fee is a normalized cancellation fee.
type Fee struct {
	Amount decimal.Decimal
	// AssumedZero is set when the source gave free text with no numeral
	// (e.g. "See terms") and the amount was taken as 0.
	AssumedZero bool
}

// CancellationFee normalizes a cancellation fee descriptor.
//
//   - null → 0
//   - number → returned as-is, no clamping
//   - text in the no-fee synonyms → 0
//   - text containing a numeral → the first numeral
//   - any other text → 0, flagged AssumedZero
func CancellationFee(raw offer.RawField) Fee {
	switch raw.Kind() {
	case offer.KindNull:
		return Fee{Amount: decimal.Zero}
	case offer.KindNumber:
		d, _ := raw.Decimal()
		return Fee{Amount: d}
	}

	text := strings.ToLower(strings.TrimSpace(raw.String()))
	if _, ok := noFeeTerms[text]; ok {
		return Fee{Amount: decimal.Zero}
	}

	if m := numeral.FindString(text); m != "" {
		if d, err := decimal.NewFromString(canonicalNumeral(m)); err == nil {
			return Fee{Amount: d}
		}
	}

	return Fee{Amount: decimal.Zero, AssumedZero: true}
}

// ParseCancellationFee returns the normalized fee amount in currency units.
func ParseCancellationFee(raw offer.RawField) decimal.Decimal {
	return CancellationFee(raw).Amount
}

// ParseValueAdded maps a value-added-services flag to 0 or 1. Numbers are
// stringified first, so a numeric 1 behaves exactly like the text "1".
func ParseValueAdded(raw offer.RawField) int {
	if raw.IsNull() {
		return 0
	}
	text := strings.ToLower(strings.TrimSpace(raw.String()))
	if _, ok := affirmativeTerms[text]; ok {
		return 1
	}
	return 0
}

// GreenPercentage reads a 0–100 renewable share. Text such as "50" or "50%"
// is accepted. ok is false when a non-null value could not be read, in which
// case the value is 0.
func GreenPercentage(raw offer.RawField) (value decimal.Decimal, ok bool) {
	switch raw.Kind() {
	case offer.KindNull:
		return decimal.Zero, true
	case offer.KindNumber:
		d, _ := raw.Decimal()
		return d, true
	}
	text := strings.TrimSuffix(strings.TrimSpace(raw.String()), "%")
	if text == "" {
		return decimal.Zero, true
	}
	d, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ParseGreenPercentage returns the green share, 0 when missing or unreadable.
func ParseGreenPercentage(raw offer.RawField) decimal.Decimal {
	v, _ := GreenPercentage(raw)
	return v
}

// Rate coerces a per-kWh rate to a decimal. ok is false for null or
// unparseable input, in which case the rate is 0.
func Rate(raw offer.RawField) (rate decimal.Decimal, ok bool) {
	switch raw.Kind() {
	case offer.KindNull:
		return decimal.Zero, false
	case offer.KindNumber:
		d, _ := raw.Decimal()
		return d, true
	}
	text := strings.TrimPrefix(strings.TrimSpace(raw.String()), "$")
	d, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// canonicalNumeral drops a leading plus sign and restores the zero in ".5".
func canonicalNumeral(m string) string {
	sign := ""
	switch {
	case strings.HasPrefix(m, "-"):
		sign, m = "-", m[1:]
	case strings.HasPrefix(m, "+"):
		m = m[1:]
	}
	if strings.HasPrefix(m, ".") {
		m = "0" + m
	}
	return sign + m
}
