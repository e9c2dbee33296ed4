package models_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookflow/models"
)

func TestNewInstrument(t *testing.T) {
	tests := []struct {
		name        string
		base, quote string
		expectError bool
	}{
		{"ValidInstrument", "btc", "usd", false},
		{"EqualBaseQuote", "ETH", "eth", true},
		{"EmptyBase", "", "USD", true},
		{"EmptyQuote", "BTC", " ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := models.NewInstrument(tt.base, tt.quote)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseInstrument(t *testing.T) {
	tests := []struct {
		in          string
		want        string
		expectError bool
	}{
		{"BTC/USD", "BTC/USD", false},
		{"eth-usdt", "ETH/USDT", false},
		{"xbt_eur", "XBT/EUR", false},
		{"BTCUSD", "", true},
		{"/USD", "", true},
		{"A/B/C", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := models.ParseInstrument(tt.in)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestInstrumentEqualityIsCaseNormalized(t *testing.T) {
	a, err := models.NewInstrument("btc", "usd")
	require.NoError(t, err)
	b, err := models.ParseInstrument("BTC/USD")
	require.NoError(t, err)

	assert.Equal(t, a, b)

	books := map[models.Instrument]int{a: 1}
	assert.Equal(t, 1, books[b])
}

func TestPriceLevelKeyStripsTrailingZeros(t *testing.T) {
	a := models.PriceLevel{Price: decimal.RequireFromString("1.50")}
	b := models.PriceLevel{Price: decimal.RequireFromString("1.5")}
	c := models.PriceLevel{Price: decimal.RequireFromString("100.000")}

	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, "100", c.Key())
}
