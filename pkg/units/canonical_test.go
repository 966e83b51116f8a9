package units

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnit(t *testing.T) {
	u, err := ParseUnit("KWH")
	require.NoError(t, err)
	assert.Equal(t, UnitKWh, u)

	u, err = ParseUnit("")
	require.NoError(t, err)
	assert.Equal(t, UnitKWh, u)

	u, err = ParseUnit("MWh")
	require.NoError(t, err)
	assert.Equal(t, UnitMWh, u)

	_, err = ParseUnit("therms")
	assert.Error(t, err)
}

func TestToKWh(t *testing.T) {
	assert.True(t, ToKWh(decimal.RequireFromString("0.6"), UnitMWh).Equal(decimal.NewFromInt(600)))
	assert.True(t, ToKWh(decimal.NewFromInt(600), UnitKWh).Equal(decimal.NewFromInt(600)))
}
