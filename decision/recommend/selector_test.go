package recommend

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esco-optimizer/decision/scoring"
	apperrors "esco-optimizer/pkg/errors"
	"esco-optimizer/pkg/offer"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ranking(n int) []scoring.ScoredOffer {
	out := make([]scoring.ScoredOffer, n)
	for i := range out {
		out[i] = scoring.ScoredOffer{Position: i, RatePerKWh: dec("0.10")}
	}
	return out
}

func TestSelectTop(t *testing.T) {
	assert.Len(t, SelectTop(ranking(8), DefaultTopK), 5)
	assert.Len(t, SelectTop(ranking(3), DefaultTopK), 3)
	assert.Empty(t, SelectTop(ranking(3), 0))
	assert.Empty(t, SelectTop(nil, 5))

	top := SelectTop(ranking(8), 2)
	assert.Equal(t, 0, top[0].Position)
	assert.Equal(t, 1, top[1].Position)
}

func TestBest(t *testing.T) {
	best, err := Best(ranking(2))
	require.NoError(t, err)
	assert.Equal(t, 0, best.Position)

	_, err = Best(nil)
	assert.True(t, errors.Is(err, apperrors.ErrNoEligibleOffers))
}

func TestComputeSavings(t *testing.T) {
	got := ComputeSavings(dec("0.15"), dec("0.10"), decimal.NewFromInt(600))
	assert.Equal(t, "30.00", got.StringFixed(2))

	negative := ComputeSavings(dec("0.08"), dec("0.10"), decimal.NewFromInt(600))
	assert.True(t, negative.Equal(dec("-12")))
}

func TestEstimateSavings_UnavailableIsNotZero(t *testing.T) {
	s := EstimateSavings(decimal.NullDecimal{}, dec("0.10"), decimal.NewFromInt(600))
	assert.False(t, s.Available)

	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"available": false, "status": "unavailable"}`, string(b))

	zero := EstimateSavings(decimal.NewNullDecimal(dec("0.10")), dec("0.10"), decimal.NewFromInt(600))
	assert.True(t, zero.Available)
	assert.True(t, zero.Amount.IsZero())

	b, err = json.Marshal(zero)
	require.NoError(t, err)
	assert.JSONEq(t, `{"available": true, "monthly": "0.00", "baseline_rate": "0.1"}`, string(b))
}

func TestRecommend(t *testing.T) {
	ranked := scoring.ScorePlans([]offer.Offer{
		{DisplayName: "a", OfferType: "fixed", Rate: offer.NumberFromFloat(0.12)},
		{DisplayName: "b", OfferType: "fixed", Rate: offer.NumberFromFloat(0.10)},
	}, decimal.NewFromInt(600), scoring.Preferences{})

	rec, err := Recommend(ranked, DefaultTopK, decimal.NewNullDecimal(dec("0.15")), decimal.NewFromInt(600))
	require.NoError(t, err)
	assert.Equal(t, "b", rec.Best.DisplayName)
	assert.Len(t, rec.Top, 2)
	assert.Equal(t, "30.00", rec.Savings.Amount.StringFixed(2))

	_, err = Recommend(nil, DefaultTopK, decimal.NullDecimal{}, decimal.NewFromInt(600))
	assert.ErrorIs(t, err, apperrors.ErrNoEligibleOffers)
}

func TestCheapestByRate(t *testing.T) {
	offers := []offer.Offer{
		{DisplayName: "mid", Rate: offer.Text("0.11")},
		{DisplayName: "low-first", Rate: offer.NumberFromFloat(0.09)},
		{DisplayName: "broken", Rate: offer.Text("n/a")},
		{DisplayName: "low-second", Rate: offer.NumberFromFloat(0.09)},
	}
	cheapest, err := CheapestByRate(offers)
	require.NoError(t, err)
	assert.Equal(t, "low-first", cheapest.DisplayName)

	_, err = CheapestByRate(nil)
	assert.ErrorIs(t, err, apperrors.ErrNoEligibleOffers)
}
