package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esco-optimizer/decision/policy"
	"esco-optimizer/decision/scoring"
	"esco-optimizer/internal/config"
	apperrors "esco-optimizer/pkg/errors"
	"esco-optimizer/pkg/offer"
	"esco-optimizer/source"
)

func plan(name, zone, typ string, rate float64, green int64, fee, valueAdded offer.RawField) offer.Offer {
	return offer.Offer{
		DisplayName:     name,
		Commodity:       "ELECTRIC",
		ServiceClass:    "RESIDENTIAL",
		ServiceZone:     zone,
		OfferType:       typ,
		Rate:            offer.NumberFromFloat(rate),
		PercentageGreen: offer.Number(decimal.NewFromInt(green)),
		CancellationFee: fee,
		ValueAdded:      valueAdded,
		URL:             offer.Text("https://" + name + ".example"),
	}
}

func fixtureOffers() []offer.Offer {
	gas := plan("gasco", "Con Edison", "fixed", 0.01, 0, offer.Null(), offer.Null())
	gas.Commodity = "GAS"
	return []offer.Offer{
		plan("greenco", "Con Edison", "fixed", 0.12, 100, offer.Text("No fee"), offer.Text("No")),
		plan("cheapco", "Con Edison", "variable", 0.10, 0, offer.Text("$5"), offer.Text("Yes")),
		gas,
		plan("upstate", "National Grid", "fixed", 0.15, 0, offer.Null(), offer.Null()),
	}
}

func usage(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestOptimize(t *testing.T) {
	opt := NewOptimizer(source.Static("fixture", fixtureOffers()))

	res, err := opt.Optimize(context.Background(), Request{ZipCode: "10001", UsageKWh: usage(600)})
	require.NoError(t, err)

	assert.Equal(t, 4, res.Stats.Fetched)
	assert.Equal(t, 3, res.Stats.Eligible)
	assert.Equal(t, "Con Edison", res.Utility.Name)
	require.True(t, res.Utility.Baseline.Valid)
	assert.True(t, res.Utility.Baseline.Decimal.Equal(decimal.RequireFromString("0.12")))

	assert.Equal(t, "cheapco", res.Best.DisplayName)
	assert.Equal(t, "60.00", res.Best.MonthlyCost.StringFixed(2))
	require.Len(t, res.Top, 3)
	require.Len(t, res.Ranked, 3)

	require.True(t, res.Savings.Available)
	assert.Equal(t, "12.00", res.Savings.Amount.StringFixed(2))

	require.NotNil(t, res.Review)
	assert.Equal(t, policy.DecisionPass, res.Review.Decision)
	require.Len(t, res.Review.Warnings, 1)
	assert.Equal(t, "variable-rate", res.Review.Warnings[0].PolicyID)
	assert.NotEqual(t, "", res.RunID.String())
}

func TestOptimize_PreferGreen(t *testing.T) {
	opt := NewOptimizer(source.Static("fixture", fixtureOffers()))
	res, err := opt.Optimize(context.Background(), Request{
		ZipCode:     "10001",
		UsageKWh:    usage(600),
		Preferences: scoring.Preferences{PreferGreen: true},
		TopK:        1,
	})
	require.NoError(t, err)
	assert.Equal(t, "greenco", res.Best.DisplayName)
	assert.Equal(t, "428", res.Best.Score.String())
	assert.Len(t, res.Top, 1)
	assert.Equal(t, "0.00", res.Savings.Amount.StringFixed(2))
}

func TestOptimize_UtilityOverride(t *testing.T) {
	opt := NewOptimizer(source.Static("fixture", fixtureOffers()))
	res, err := opt.Optimize(context.Background(), Request{
		ZipCode: "10001", UsageKWh: usage(600), UtilityOverride: "National Grid",
	})
	require.NoError(t, err)
	assert.True(t, res.Utility.Overridden)
	require.True(t, res.Savings.Available)
	assert.Equal(t, "30.00", res.Savings.Amount.StringFixed(2))
}

func TestOptimize_NoBaseline(t *testing.T) {
	opt := NewOptimizer(source.Static("fixture", fixtureOffers()))
	res, err := opt.Optimize(context.Background(), Request{
		ZipCode: "10001", UsageKWh: usage(600), UtilityOverride: "PSEG Long Island",
	})
	require.NoError(t, err)
	assert.False(t, res.Savings.Available)
}

func TestOptimize_Errors(t *testing.T) {
	gasOnly := fixtureOffers()[2:3]
	failing := source.Func{SourceName: "down", Fn: func(context.Context, source.Query) ([]offer.Offer, error) {
		return nil, apperrors.NewSourceError("down", errors.New("connection refused"))
	}}

	tests := []struct {
		name string
		src  source.Source
		req  Request
		want error
	}{
		{"zero usage", source.Static("s", fixtureOffers()), Request{ZipCode: "10001", UsageKWh: usage(0)}, apperrors.ErrInvalidUsage},
		{"negative usage", source.Static("s", fixtureOffers()), Request{ZipCode: "10001", UsageKWh: usage(-5)}, apperrors.ErrInvalidUsage},
		{"bad zip", source.Static("s", fixtureOffers()), Request{ZipCode: "1", UsageKWh: usage(600)}, apperrors.ErrInvalidQuery},
		{"empty source", source.Static("s", nil), Request{ZipCode: "10001", UsageKWh: usage(600)}, apperrors.ErrNoOffers},
		{"nothing eligible", source.Static("s", gasOnly), Request{ZipCode: "10001", UsageKWh: usage(600)}, apperrors.ErrNoEligibleOffers},
		{"source down", failing, Request{ZipCode: "10001", UsageKWh: usage(600)}, apperrors.ErrSourceFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOptimizer(tt.src).Optimize(context.Background(), tt.req)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestOptimize_DenyDecision(t *testing.T) {
	review := policy.NewEngine()
	review.AddPolicy(policy.MaxMonthlyCost(50))

	opt := NewOptimizer(source.Static("fixture", fixtureOffers())).WithReview(review)
	res, err := opt.Optimize(context.Background(), Request{ZipCode: "10001", UsageKWh: usage(600)})
	require.NoError(t, err)
	assert.Equal(t, policy.DecisionDeny, res.Review.Decision)
}

func TestTerritory(t *testing.T) {
	opt := NewOptimizer(source.Static("fixture", fixtureOffers()))
	terr, err := opt.Territory(context.Background(), "10001", "")
	require.NoError(t, err)
	assert.Equal(t, "Con Edison", terr.Name)
	assert.Equal(t, 2, terr.Counts["Con Edison"])
}

func TestNew_FileSource(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "offers.json")
	require.NoError(t, os.WriteFile(p, []byte(`[
		{"DISPLAY_NAME":"A","COMMODITY":"Electric","SERVICE_CLASS":"Residential","SERVICE_ZONE":"NYSEG","OFFER_TYPE":"Fixed","RATE":0.11}
	]`), 0o644))

	cfg := config.Default()
	cfg.Source.Kind = config.SourceFile
	cfg.Source.File.Path = p
	cfg.Cache.Enabled = true
	cfg.Policy.MaxMonthlyCost = 1000

	opt, closer, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer closer()

	res, err := opt.Optimize(context.Background(), Request{ZipCode: "13850", UsageKWh: usage(500)})
	require.NoError(t, err)
	assert.Equal(t, "A", res.Best.DisplayName)
	assert.Equal(t, "55.00", res.Best.MonthlyCost.StringFixed(2))
	assert.Equal(t, 5, res.Review.PoliciesRan)
}
