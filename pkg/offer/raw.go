package offer

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind is the dynamic type a raw field arrived with.
type Kind uint8

const (
	KindNull Kind = iota
	KindNumber
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	default:
		return "null"
	}
}

// RawField holds a loosely typed value exactly as a data source delivered it.
// The zero value is null.
type RawField struct {
	kind Kind
	num  decimal.Decimal
	text string
}

// Null returns an absent field.
func Null() RawField { return RawField{} }

// Number returns a numeric field.
func Number(d decimal.Decimal) RawField { return RawField{kind: KindNumber, num: d} }

// NumberFromFloat returns a numeric field from a float.
func NumberFromFloat(f float64) RawField { return Number(decimal.NewFromFloat(f)) }

// Text returns a free-text field.
func Text(s string) RawField { return RawField{kind: KindText, text: s} }

// FromCell interprets an untyped tabular cell: empty cells are null, cells
// already in canonical decimal form are numbers, anything else is text.
// "1.0", "01" and "1e3" stay text so they normalize the same as the JSON
// string they came from.
func FromCell(s string) RawField {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Null()
	}
	if d, err := decimal.NewFromString(trimmed); err == nil && d.String() == trimmed {
		return Number(d)
	}
	return Text(s)
}

func (f RawField) Kind() Kind { return f.kind }

func (f RawField) IsNull() bool { return f.kind == KindNull }

// Decimal returns the numeric value when the field is a number.
func (f RawField) Decimal() (decimal.Decimal, bool) {
	if f.kind != KindNumber {
		return decimal.Zero, false
	}
	return f.num, true
}

// Text returns the text value when the field is text.
func (f RawField) Text() (string, bool) {
	if f.kind != KindText {
		return "", false
	}
	return f.text, true
}

// String stringifies the field. Numbers use their canonical decimal form, so
// 1 and 1.0 both render as "1". Null renders as "".
func (f RawField) String() string {
	switch f.kind {
	case KindNumber:
		return f.num.String()
	case KindText:
		return f.text
	default:
		return ""
	}
}

// UnmarshalJSON accepts any JSON value. Booleans, objects and arrays are kept
// as their literal text.
func (f *RawField) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*f = Null()
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = Text(s)
	default:
		if d, err := decimal.NewFromString(string(b)); err == nil {
			*f = Number(d)
			return nil
		}
		*f = Text(string(b))
	}
	return nil
}

func (f RawField) MarshalJSON() ([]byte, error) {
	switch f.kind {
	case KindNumber:
		return []byte(f.num.String()), nil
	case KindText:
		return json.Marshal(f.text)
	default:
		return []byte("null"), nil
	}
}
