// Package scoring ranks offers with a fixed, explainable linear formula over
// monthly cost and four on/off preferences.
package scoring

import (
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"esco-optimizer/decision/cost"
	"esco-optimizer/decision/normalize"
	"esco-optimizer/pkg/offer"
)

// Fixed weights. They are not configurable per call.
var (
	CancellationFeeWeight = decimal.RequireFromString("0.1")
	GreenWeight           = decimal.NewFromInt(5)
	FixedRateAdjustment   = decimal.NewFromInt(10)
	ValueAddedWeight      = decimal.NewFromInt(10)
)

// parallelThreshold is the collection size below which evaluation stays on
// the calling goroutine.
const parallelThreshold = 256

// Preferences are the caller's independent toggles. The zero value ranks by
// monthly cost alone.
type Preferences struct {
	PreferFixed           bool `json:"prefer_fixed"`
	PreferGreen           bool `json:"prefer_green"`
	AvoidCancellationFees bool `json:"avoid_cancellation_fees"`
	AvoidValueAdded       bool `json:"avoid_value_added"`
}

// Breakdown holds each factor's signed contribution to the score.
type Breakdown struct {
	Cost            decimal.Decimal `json:"cost"`
	CancellationFee decimal.Decimal `json:"cancellation_fee"`
	Green           decimal.Decimal `json:"green"`
	OfferType       decimal.Decimal `json:"offer_type"`
	ValueAdded      decimal.Decimal `json:"value_added"`
}

// Total sums the contributions.
func (b Breakdown) Total() decimal.Decimal {
	return b.Cost.Add(b.CancellationFee).Add(b.Green).Add(b.OfferType).Add(b.ValueAdded)
}

// ScoredOffer is an offer with the values derived for one scoring run.
type ScoredOffer struct {
	offer.Offer

	// Position is the offer's index in the scored input; it breaks score ties.
	Position              int             `json:"position"`
	RatePerKWh            decimal.Decimal `json:"rate_per_kwh"`
	MonthlyCost           decimal.Decimal `json:"monthly_cost"`
	CancellationFeeParsed decimal.Decimal `json:"cancellation_fee_parsed"`
	FeeAssumedZero        bool            `json:"fee_assumed_zero"`
	ValueAddedParsed      int             `json:"value_added_parsed"`
	GreenPercentage       decimal.Decimal `json:"green_percentage"`
	PlanType              offer.OfferType `json:"plan_type"`
	Score                 decimal.Decimal `json:"score"`
	Breakdown             Breakdown       `json:"breakdown"`
	Issues                []string        `json:"issues,omitempty"`
}

// Incomplete reports whether a required field was missing or malformed.
func (s ScoredOffer) Incomplete() bool { return len(s.Issues) > 0 }

// Engine scores and orders offer collections. It holds no state between runs.
type Engine struct {
	logger      zerolog.Logger
	parallelism int
}

// NewEngine creates a sequential engine with logging disabled.
func NewEngine() *Engine {
	return &Engine{
		logger:      zerolog.Nop(),
		parallelism: 1,
	}
}

// WithLogger sets the logger used to flag incomplete offers.
func (e *Engine) WithLogger(logger zerolog.Logger) *Engine {
	e.logger = logger
	return e
}

// WithParallelism bounds concurrent per-offer evaluation for large collections.
// Values below 2 keep evaluation sequential.
func (e *Engine) WithParallelism(n int) *Engine {
	if n < 1 {
		n = 1
	}
	e.parallelism = n
	return e
}

// Score computes cost, normalized fields and a composite score for every offer
// and returns them ordered by score descending, input position ascending.
// It never fails; offers with missing fields get degraded scores and are logged.
func (e *Engine) Score(offers []offer.Offer, usageKWh decimal.Decimal, prefs Preferences) []ScoredOffer {
	scored := make([]ScoredOffer, len(offers))

	if e.parallelism > 1 && len(offers) >= parallelThreshold {
		var g errgroup.Group
		g.SetLimit(e.parallelism)
		for i := range offers {
			i := i
			g.Go(func() error {
				scored[i] = evaluate(i, offers[i], usageKWh, prefs)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, o := range offers {
			scored[i] = evaluate(i, o, usageKWh, prefs)
		}
	}

	for _, s := range scored {
		if s.Incomplete() {
			e.logger.Warn().
				Str("display_name", s.DisplayName).
				Int("position", s.Position).
				Strs("issues", s.Issues).
				Msg("Incomplete offer scored")
		}
	}

	Rank(scored)
	return scored
}

// ScorePlans scores with a default engine.
func ScorePlans(offers []offer.Offer, usageKWh decimal.Decimal, prefs Preferences) []ScoredOffer {
	return NewEngine().Score(offers, usageKWh, prefs)
}

// Rank sorts in place: higher score first, then lower Position.
func Rank(scored []ScoredOffer) {
	sort.SliceStable(scored, func(i, j int) bool {
		return Less(scored[i], scored[j])
	})
}

// Less is the ranking comparator.
func Less(a, b ScoredOffer) bool {
	if c := a.Score.Cmp(b.Score); c != 0 {
		return c > 0
	}
	return a.Position < b.Position
}

func evaluate(pos int, o offer.Offer, usageKWh decimal.Decimal, prefs Preferences) ScoredOffer {
	line := cost.ComputeMonthlyCost(o, usageKWh)
	fee := normalize.CancellationFee(o.CancellationFee)
	valueAdded := normalize.ParseValueAdded(o.ValueAdded)
	green, greenOK := normalize.GreenPercentage(o.PercentageGreen)
	planType := o.Type()

	b := Breakdown{Cost: line.MonthlyCost.Neg()}
	if prefs.AvoidCancellationFees {
		b.CancellationFee = fee.Amount.Mul(CancellationFeeWeight).Neg()
	}
	if prefs.PreferGreen {
		b.Green = green.Mul(GreenWeight)
	}
	if prefs.PreferFixed {
		if planType == offer.OfferTypeFixed {
			b.OfferType = FixedRateAdjustment
		} else {
			b.OfferType = FixedRateAdjustment.Neg()
		}
	}
	if prefs.AvoidValueAdded {
		b.ValueAdded = decimal.NewFromInt(int64(valueAdded)).Mul(ValueAddedWeight).Neg()
	}

	var issues []string
	if !line.RateValid {
		issues = append(issues, "missing or malformed rate")
	}
	if strings.TrimSpace(o.OfferType) == "" {
		issues = append(issues, "missing offer type")
	}
	if !greenOK {
		issues = append(issues, "unreadable green percentage")
	}

	return ScoredOffer{
		Offer:                 o,
		Position:              pos,
		RatePerKWh:            line.Rate,
		MonthlyCost:           line.MonthlyCost,
		CancellationFeeParsed: fee.Amount,
		FeeAssumedZero:        fee.AssumedZero,
		ValueAddedParsed:      valueAdded,
		GreenPercentage:       green,
		PlanType:              planType,
		Score:                 b.Total(),
		Breakdown:             b,
		Issues:                issues,
	}
}
