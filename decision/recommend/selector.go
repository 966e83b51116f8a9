// Package recommend picks the top offers from a ranking and computes savings
// against the default utility rate.
package recommend

import (
	"encoding/json"
	"sort"

	"github.com/shopspring/decimal"

	"esco-optimizer/decision/normalize"
	"esco-optimizer/decision/scoring"
	apperrors "esco-optimizer/pkg/errors"
	"esco-optimizer/pkg/offer"
)

// DefaultTopK is the number of offers presented by default.
const DefaultTopK = 5

// SelectTop returns the first k offers of a ranking, or all of them when
// fewer are available. k <= 0 yields an empty slice.
func SelectTop(ranked []scoring.ScoredOffer, k int) []scoring.ScoredOffer {
	if k <= 0 {
		return []scoring.ScoredOffer{}
	}
	if k > len(ranked) {
		k = len(ranked)
	}
	return ranked[:k]
}

// Best returns the highest ranked offer. It fails with ErrNoEligibleOffers on
// an empty ranking since there is no sensible default.
func Best(ranked []scoring.ScoredOffer) (scoring.ScoredOffer, error) {
	if len(ranked) == 0 {
		return scoring.ScoredOffer{}, apperrors.ErrNoEligibleOffers
	}
	return ranked[0], nil
}

// ComputeSavings returns (baselineRate − bestRate) × usage. Negative values
// mean the best offer costs more than the default supply rate.
func ComputeSavings(baselineRate, bestRate, usageKWh decimal.Decimal) decimal.Decimal {
	return baselineRate.Sub(bestRate).Mul(usageKWh)
}

// Savings is a monthly savings figure that may be unknown. Unknown and zero
// are different outcomes and serialize differently.
type Savings struct {
	Available    bool
	Amount       decimal.Decimal
	BaselineRate decimal.Decimal
}

// EstimateSavings computes savings when a baseline rate is known.
func EstimateSavings(baseline decimal.NullDecimal, bestRate, usageKWh decimal.Decimal) Savings {
	if !baseline.Valid {
		return Savings{}
	}
	return Savings{
		Available:    true,
		Amount:       ComputeSavings(baseline.Decimal, bestRate, usageKWh),
		BaselineRate: baseline.Decimal,
	}
}

func (s Savings) MarshalJSON() ([]byte, error) {
	if !s.Available {
		return json.Marshal(map[string]any{
			"available": false,
			"status":    "unavailable",
		})
	}
	return json.Marshal(map[string]any{
		"available":     true,
		"monthly":       s.Amount.StringFixed(2),
		"baseline_rate": s.BaselineRate.String(),
	})
}

// Recommendation is the presentation-ready selection from one ranking.
type Recommendation struct {
	Best    scoring.ScoredOffer   `json:"best"`
	Top     []scoring.ScoredOffer `json:"top"`
	Savings Savings               `json:"savings"`
}

// Recommend selects the best and top-k offers and computes savings.
func Recommend(ranked []scoring.ScoredOffer, k int, baseline decimal.NullDecimal, usageKWh decimal.Decimal) (*Recommendation, error) {
	best, err := Best(ranked)
	if err != nil {
		return nil, err
	}
	return &Recommendation{
		Best:    best,
		Top:     SelectTop(ranked, k),
		Savings: EstimateSavings(baseline, best.RatePerKWh, usageKWh),
	}, nil
}

// CheapestByRate returns the single lowest-rate offer, first in input order on
// ties. Offers whose rate cannot be read are skipped.
func CheapestByRate(offers []offer.Offer) (offer.Offer, error) {
	type candidate struct {
		rate decimal.Decimal
		o    offer.Offer
	}
	candidates := make([]candidate, 0, len(offers))
	for _, o := range offers {
		if rate, ok := normalize.Rate(o.Rate); ok {
			candidates = append(candidates, candidate{rate: rate, o: o})
		}
	}
	if len(candidates) == 0 {
		return offer.Offer{}, apperrors.ErrNoEligibleOffers
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].rate.LessThan(candidates[j].rate)
	})
	return candidates[0].o, nil
}
