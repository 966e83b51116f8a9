package report

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esco-optimizer/decision/scoring"
	"esco-optimizer/internal/service"
	"esco-optimizer/internal/utility"
	"esco-optimizer/pkg/offer"
	"esco-optimizer/source"
)

func fixture() []offer.Offer {
	return []offer.Offer{
		{
			DisplayName: "Green Mountain", Commodity: "ELECTRIC", ServiceClass: "RESIDENTIAL",
			ServiceZone: "Con Edison", OfferType: "Fixed", Rate: offer.NumberFromFloat(0.12),
			PercentageGreen: offer.Number(decimal.NewFromInt(100)), CancellationFee: offer.Text("See terms"),
			ValueAdded: offer.Text("No"), URL: offer.Text("0"),
		},
		{
			DisplayName: "Budget | Power", Commodity: "ELECTRIC", ServiceClass: "RESIDENTIAL",
			ServiceZone: "Con Edison", OfferType: "Variable", Rate: offer.NumberFromFloat(0.10),
			PercentageGreen: offer.Number(decimal.Zero), CancellationFee: offer.Text("$5"),
			ValueAdded: offer.Text("Yes"), URL: offer.Text("https://budget.example/enroll"),
		},
	}
}

func result(t *testing.T, prefs scoring.Preferences, override string) *service.Result {
	t.Helper()
	res, err := service.NewOptimizer(source.Static("fixture", fixture())).Optimize(context.Background(), service.Request{
		ZipCode: "10001", UsageKWh: decimal.NewFromInt(600), Preferences: prefs, UtilityOverride: override,
	})
	require.NoError(t, err)
	return res
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatTable, "TABLE": FormatTable, "json": FormatJSON, "md": FormatMarkdown} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestSwitchLink(t *testing.T) {
	url, instr := SwitchLink(offer.Offer{URL: offer.Text("https://x.example")})
	assert.Equal(t, "https://x.example", url)
	assert.Empty(t, instr)

	for _, raw := range []offer.RawField{offer.Null(), offer.Text(" "), offer.Text("0"), offer.Number(decimal.Zero)} {
		url, instr = SwitchLink(offer.Offer{URL: raw})
		assert.Equal(t, "https://documents.dps.ny.gov/PTC", url)
		assert.Equal(t, SwitchInstructions, instr)
	}
}

func TestRenderTable(t *testing.T) {
	res := result(t, scoring.Preferences{PreferGreen: true}, "")

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, res, FormatTable, Options{ShowAll: true}))
	out := buf.String()

	assert.Contains(t, out, "Green Mountain")
	assert.Contains(t, out, "Con Edison (detected)")
	assert.Contains(t, out, "$0.12/kWh")
	assert.Contains(t, out, "$0.00/month")
	assert.Contains(t, out, "+500.00 points")
	assert.Contains(t, out, "treated as $0.00")
	assert.Contains(t, out, SwitchInstructions)
	assert.Contains(t, out, "All 2 eligible plans")
}

func TestRenderJSON(t *testing.T) {
	res := result(t, scoring.Preferences{}, "")

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, res, FormatJSON, Options{}))

	var out JSONOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "Budget | Power", out.Best.Provider)
	assert.Equal(t, "60.00", out.Best.MonthlyCost)
	assert.Equal(t, "https://budget.example/enroll", out.Best.SwitchURL)
	require.NotNil(t, out.BaselineRate)
	assert.Equal(t, "0.12", *out.BaselineRate)
	assert.Len(t, out.Top, 2)
	assert.Empty(t, out.All)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
	savings := raw["savings"].(map[string]any)
	assert.Equal(t, true, savings["available"])
	assert.Equal(t, "12.00", savings["monthly"])
}

func TestRenderMarkdown_SavingsUnavailable(t *testing.T) {
	res := result(t, scoring.Preferences{}, "Central Hudson")

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, res, FormatMarkdown, Options{}))
	out := buf.String()

	assert.Contains(t, out, "Central Hudson (override)")
	assert.Contains(t, out, "savings unavailable")
	assert.Contains(t, out, "| not found |")
	assert.Contains(t, out, `Budget \| Power`)
	assert.Contains(t, out, "### ⚠️ Warnings")
}

func TestExplain(t *testing.T) {
	res := result(t, scoring.Preferences{PreferFixed: true, AvoidCancellationFees: true, AvoidValueAdded: true}, "")
	lines := Explain(res.Best, res.Preferences, res.UsageKWh)
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "600 kWh")
	assert.Equal(t, "Total score: "+res.Best.Score.StringFixed(2), lines[4])
}

func TestRenderOffersAndTerritory(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderOffers(&buf, fixture(), FormatTable))
	assert.Contains(t, buf.String(), "2 eligible offers")

	terr := utility.Resolve(fixture(), "")
	buf.Reset()
	require.NoError(t, RenderTerritory(&buf, terr, FormatTable))
	assert.Contains(t, buf.String(), "Con Edison (detected)")
	assert.Contains(t, buf.String(), "$0.12/kWh")

	buf.Reset()
	require.NoError(t, RenderTerritory(&buf, terr, FormatJSON))
	assert.Contains(t, buf.String(), `"name": "Con Edison"`)
}
