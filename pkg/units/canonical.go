// Package units provides canonical energy usage units and conversions.
package units

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Unit represents a measurable quantity of energy.
type Unit string

const (
	UnitKWh Unit = "kWh"
	UnitMWh Unit = "MWh"
)

// ParseUnit accepts common spellings of kWh and MWh.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "kwh", "kw-h", "kilowatt-hours":
		return UnitKWh, nil
	case "mwh", "mw-h", "megawatt-hours":
		return UnitMWh, nil
	default:
		return "", fmt.Errorf("unknown energy unit: %q", s)
	}
}

var thousand = decimal.NewFromInt(1000)

// ToKWh converts a usage quantity to kilowatt-hours, the unit offer rates are quoted in.
func ToKWh(value decimal.Decimal, unit Unit) decimal.Decimal {
	switch unit {
	case UnitMWh:
		return value.Mul(thousand)
	default:
		return value
	}
}
