// Package cost computes monthly supply cost from a per-kWh rate and a usage quantity.
package cost

import (
	"fmt"

	"github.com/shopspring/decimal"

	"esco-optimizer/decision/normalize"
	"esco-optimizer/pkg/offer"
)

// Line is the monthly cost of one offer at one usage level.
type Line struct {
	Rate        decimal.Decimal `json:"rate"`
	RateValid   bool            `json:"rate_valid"`
	UsageKWh    decimal.Decimal `json:"usage_kwh"`
	MonthlyCost decimal.Decimal `json:"monthly_cost"`
}

// Formula explains the line, e.g. "600.00 kWh × $0.120000/kWh = $72.00".
func (l Line) Formula() string {
	return fmt.Sprintf("%s kWh × $%s/kWh = $%s",
		l.UsageKWh.StringFixed(2),
		l.Rate.StringFixed(6),
		l.MonthlyCost.StringFixed(2),
	)
}

// MonthlyCost returns rate × usage, unrounded.
func MonthlyCost(rate, usageKWh decimal.Decimal) decimal.Decimal {
	return rate.Mul(usageKWh)
}

// ComputeMonthlyCost coerces the offer's rate to a decimal and multiplies it by
// usage. A missing or malformed rate yields a zero cost with RateValid false;
// usage is not validated here.
func ComputeMonthlyCost(o offer.Offer, usageKWh decimal.Decimal) Line {
	rate, ok := normalize.Rate(o.Rate)
	return Line{
		Rate:        rate,
		RateValid:   ok,
		UsageKWh:    usageKWh,
		MonthlyCost: MonthlyCost(rate, usageKWh),
	}
}

// Calculator applies one usage level across a collection of offers.
type Calculator struct{}

func NewCalculator() *Calculator { return &Calculator{} }

// Apply computes a line per offer, in input order. It never short-circuits on a
// bad rate.
func (c *Calculator) Apply(offers []offer.Offer, usageKWh decimal.Decimal) []Line {
	lines := make([]Line, len(offers))
	for i, o := range offers {
		lines[i] = ComputeMonthlyCost(o, usageKWh)
	}
	return lines
}
