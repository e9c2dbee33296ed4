package symbols

import (
	"testing"

	"bookflow/models"
)

func TestToVenue(t *testing.T) {
	tests := []struct {
		venue string
		base  string
		quote string
		want  string
	}{
		{"kraken", "BTC", "USD", "XBT/USD"},
		{"Kraken", "eth", "btc", "ETH/XBT"},
		{"kraken", "DOGE", "USDT", "XDG/USDT"},
		{"kraken", "ETH", "USD", "ETH/USD"},
		{"other", "BTC", "USD", "BTC/USD"},
	}
	for _, tt := range tests {
		inst, err := models.NewInstrument(tt.base, tt.quote)
		if err != nil {
			t.Fatalf("NewInstrument(%s,%s): %v", tt.base, tt.quote, err)
		}
		if got := ToVenue(tt.venue, inst); got != tt.want {
			t.Errorf("ToVenue(%s,%s)=%s want %s", tt.venue, inst, got, tt.want)
		}
	}
}

func TestFromVenue(t *testing.T) {
	tests := []struct {
		venue string
		in    string
		want  string
	}{
		{"kraken", "XBT/USD", "BTC/USD"},
		{"kraken", "ETH/XBT", "ETH/BTC"},
		{"kraken", "xdg/usd", "DOGE/USD"},
		{"other", "XBT/USD", "XBT/USD"},
	}
	for _, tt := range tests {
		got, err := FromVenue(tt.venue, tt.in)
		if err != nil {
			t.Fatalf("FromVenue(%s,%s): %v", tt.venue, tt.in, err)
		}
		if got.String() != tt.want {
			t.Errorf("FromVenue(%s,%s)=%s want %s", tt.venue, tt.in, got, tt.want)
		}
	}

	if _, err := FromVenue("kraken", "XBTUSD"); err == nil {
		t.Errorf("expected error for pair without separator")
	}
}
