package offer

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawField_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantKind Kind
		wantStr  string
	}{
		{"null", `null`, KindNull, ""},
		{"integer", `10`, KindNumber, "10"},
		{"decimal", `0.1234`, KindNumber, "0.1234"},
		{"trailing zero", `1.0`, KindNumber, "1"},
		{"text", `"No fee"`, KindText, "No fee"},
		{"numeric text stays text", `"0.09"`, KindText, "0.09"},
		{"bool kept literal", `true`, KindText, "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f RawField
			require.NoError(t, json.Unmarshal([]byte(tt.input), &f))
			assert.Equal(t, tt.wantKind, f.Kind())
			assert.Equal(t, tt.wantStr, f.String())
		})
	}
}

func TestOffer_DecodePTCRecord(t *testing.T) {
	body := `{
		"DISPLAY_NAME": "Acme Energy",
		"COMMODITY": "ELECTRIC",
		"SERVICE_CLASS": "Residential",
		"SERVICE_ZONE": "Con Edison",
		"OFFER_TYPE": "Fixed",
		"RATE": "0.0899",
		"PERCENTAGE_GREEN": 100,
		"CANCELLATION_FEE": "$10/month for the remaining term",
		"VALUE_ADDED": 0,
		"URL": "0"
	}`

	var o Offer
	require.NoError(t, json.Unmarshal([]byte(body), &o))

	assert.Equal(t, "Acme Energy", o.DisplayName)
	assert.Equal(t, OfferTypeFixed, o.Type())
	assert.Equal(t, "0.0899", o.Rate.String())
	green, ok := o.PercentageGreen.Decimal()
	require.True(t, ok)
	assert.True(t, green.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, KindText, o.CancellationFee.Kind())
	assert.Equal(t, "", o.SwitchURL())
}

func TestParseEnums(t *testing.T) {
	assert.Equal(t, CommodityElectric, ParseCommodity("electric"))
	assert.Equal(t, CommodityElectric, ParseCommodity("ELECTRIC"))
	assert.Equal(t, Commodity(""), ParseCommodity(""))
	assert.Equal(t, ServiceClassResidential, ParseServiceClass("Residential"))
	assert.Equal(t, ServiceClass("SMALL COMMERCIAL"), ParseServiceClass("small commercial"))

	assert.Equal(t, OfferTypeFixed, ParseOfferType("FIXED"))
	assert.Equal(t, OfferTypeFixed, ParseOfferType("fixed"))
	assert.Equal(t, OfferTypeVariable, ParseOfferType("Variable"))
	assert.Equal(t, OfferTypeUnknown, ParseOfferType(""))
	assert.Equal(t, OfferTypeUnknown, ParseOfferType("indexed"))
}

func TestFromRow(t *testing.T) {
	o := FromRow(map[string]string{
		"DISPLAY_NAME":     "Green Co",
		"COMMODITY":        "Electric",
		"RATE":             "0.12",
		"CANCELLATION_FEE": "See terms",
		"VALUE_ADDED":      "",
		"URL":              "https://green.example.com",
	})

	assert.Equal(t, KindNumber, o.Rate.Kind())
	assert.Equal(t, KindText, o.CancellationFee.Kind())
	assert.True(t, o.ValueAdded.IsNull())
	assert.True(t, o.PercentageGreen.IsNull())
	assert.Equal(t, "https://green.example.com", o.SwitchURL())
}

func TestRawField_MarshalRoundTrip(t *testing.T) {
	in := []RawField{Null(), NumberFromFloat(0.1), Text("Included")}
	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `[null, 0.1, "Included"]`, string(b))
}

func TestCell(t *testing.T) {
	assert.Nil(t, Cell(Null()))

	fee := Cell(Text("$100 early termination"))
	require.NotNil(t, fee)
	assert.Equal(t, `"$100 early termination"`, *fee)
	assert.Equal(t, Text("$100 early termination"), FromNullableCell(fee))

	rate := Cell(NumberFromFloat(0.125))
	require.NotNil(t, rate)
	assert.Equal(t, "0.125", *rate)
	back := FromNullableCell(rate)
	d, ok := back.Decimal()
	require.True(t, ok)
	assert.True(t, d.Equal(decimal.RequireFromString("0.125")))

	assert.True(t, FromNullableCell(nil).IsNull())
}

func TestCell_KeepsKind(t *testing.T) {
	fields := []RawField{
		Text("1.0"),
		Text("01"),
		Text("1e3"),
		Text("0.0899"),
		Text("true"),
		Text(" Yes "),
		Text(`say "no"`),
		NumberFromFloat(1),
		NumberFromFloat(0.5),
	}

	for _, f := range fields {
		t.Run(f.Kind().String()+":"+f.String(), func(t *testing.T) {
			back := FromNullableCell(Cell(f))
			assert.Equal(t, f.Kind(), back.Kind())
			assert.Equal(t, f.String(), back.String())
		})
	}
}

func TestFromNullableCell_PlainText(t *testing.T) {
	plain := "No fee"
	assert.Equal(t, Text("No fee"), FromNullableCell(&plain))

	num := "0.1"
	assert.Equal(t, KindNumber, FromNullableCell(&num).Kind())
}

func TestFromCell(t *testing.T) {
	tests := []struct {
		cell     string
		wantKind Kind
	}{
		{"", KindNull},
		{"  ", KindNull},
		{"10", KindNumber},
		{"0.0899", KindNumber},
		{"-5", KindNumber},
		{"1.0", KindText},
		{"01", KindText},
		{"1e3", KindText},
		{"0.10", KindText},
		{"See terms", KindText},
	}

	for _, tt := range tests {
		t.Run(tt.cell, func(t *testing.T) {
			assert.Equal(t, tt.wantKind, FromCell(tt.cell).Kind())
		})
	}
}
