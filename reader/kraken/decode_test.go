package kraken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookflow/models"
)

var btcusd = models.Instrument{Base: "BTC", Quote: "USD"}

func levelText(levels []models.PriceLevel) [][2]string {
	out := make([][2]string, len(levels))
	for i, l := range levels {
		out[i] = [2]string{l.Price.String(), l.Quantity.String()}
	}
	return out
}

func TestDecodeSubscriptionAck(t *testing.T) {
	frame := `{"channelID":42,"channelName":"book-10","event":"subscriptionStatus","pair":"XBT/USD","status":"subscribed","subscription":{"depth":10,"name":"book"}}`

	got, err := Decode([]byte(frame))
	require.NoError(t, err)

	ack, ok := got.(models.SubscriptionAck)
	require.True(t, ok, "got %T", got)
	assert.Equal(t, int64(42), ack.ChannelID)
	assert.Equal(t, btcusd, ack.Instrument)
	assert.Equal(t, models.ChannelBook, ack.Kind)
}

func TestDecodeTradeAck(t *testing.T) {
	frame := `{"channelID":7,"channelName":"trade","event":"subscriptionStatus","pair":"ETH/XBT","status":"subscribed","subscription":{"name":"trade"}}`

	got, err := Decode([]byte(frame))
	require.NoError(t, err)

	ack := got.(models.SubscriptionAck)
	assert.Equal(t, models.Instrument{Base: "ETH", Quote: "BTC"}, ack.Instrument)
	assert.Equal(t, models.ChannelTrade, ack.Kind)
}

func TestDecodeRejectedSubscription(t *testing.T) {
	frame := `{"errorMessage":"Currency pair not supported","event":"subscriptionStatus","pair":"FOO/BAR","status":"error","subscription":{"name":"book"}}`

	got, err := Decode([]byte(frame))
	assert.Nil(t, got)
	assert.ErrorIs(t, err, ErrSubscriptionRejected)
	assert.Contains(t, err.Error(), "Currency pair not supported")
}

func TestDecodeControlFrames(t *testing.T) {
	frames := []string{
		`{"event":"heartbeat"}`,
		`{"event":"pong","reqid":3}`,
		`{"connectionID":1,"event":"systemStatus","status":"online","version":"1.9.1"}`,
		`{"channelName":"book-10","event":"subscriptionStatus","pair":"XBT/USD","status":"unsubscribed","subscription":{"name":"book"}}`,
	}
	for _, f := range frames {
		got, err := Decode([]byte(f))
		assert.NoError(t, err, f)
		assert.Nil(t, got, f)
	}
}

func TestDecodeBookSnapshot(t *testing.T) {
	frame := `[42,{"as":[["100.5","1.0","1714564800.123456"]],"bs":[["100.0","1.0","1714564800.000000"],["99.5","2.0","1714564799.500000"]]},"book-10","XBT/USD"]`

	got, err := Decode([]byte(frame))
	require.NoError(t, err)

	msg, ok := got.(models.BookMessage)
	require.True(t, ok, "got %T", got)
	assert.True(t, msg.Snapshot)
	assert.Equal(t, int64(42), msg.ChannelID)
	assert.Empty(t, msg.Checksum)
	assert.Equal(t, [][2]string{{"100.5", "1"}}, levelText(msg.Asks))
	assert.Equal(t, [][2]string{{"100", "1"}, {"99.5", "2"}}, levelText(msg.Bids))
	assert.Equal(t, models.SideAsk, msg.Asks[0].Side)
	assert.Equal(t, models.SideBid, msg.Bids[0].Side)
	assert.Equal(t, time.Unix(1714564800, 123456000).UTC(), msg.Asks[0].Timestamp)

	// the wire precision is kept for checksumming
	assert.Equal(t, "100.5", msg.Asks[0].Price.StringFixed(-msg.Asks[0].Price.Exponent()))
	assert.Equal(t, "1.0", msg.Asks[0].Quantity.StringFixed(-msg.Asks[0].Quantity.Exponent()))
}

func TestDecodeBookDelta(t *testing.T) {
	frame := `[42,{"b":[["99.5","0.0","1714564801.000000"],["99.0","3.0","1714564801.000000"]],"c":"1559866604"},"book-10","XBT/USD"]`

	got, err := Decode([]byte(frame))
	require.NoError(t, err)

	msg := got.(models.BookMessage)
	assert.False(t, msg.Snapshot)
	assert.Equal(t, "1559866604", msg.Checksum)
	assert.Empty(t, msg.Asks)
	assert.Equal(t, [][2]string{{"99.5", "0"}, {"99", "3"}}, levelText(msg.Bids))
}

func TestDecodeBookDeltaTwoPayloads(t *testing.T) {
	frame := `[42,{"a":[["100.6","0.5","1714564801.000000","r"]]},{"b":[["99.9","1.5","1714564801.000000"]],"c":"123"},"book-10","XBT/USD"]`

	got, err := Decode([]byte(frame))
	require.NoError(t, err)

	msg := got.(models.BookMessage)
	assert.False(t, msg.Snapshot)
	assert.Equal(t, "123", msg.Checksum)
	assert.Equal(t, [][2]string{{"100.6", "0.5"}}, levelText(msg.Asks))
	assert.Equal(t, [][2]string{{"99.9", "1.5"}}, levelText(msg.Bids))
}

func TestDecodeTrades(t *testing.T) {
	frame := `[7,[["5541.20000","0.15850568","1534614057.321597","s","l",""],["6060.00000","0.02455000","1534614057.324998","b","l",""]],"trade","XBT/USD"]`

	got, err := Decode([]byte(frame))
	require.NoError(t, err)

	batch, ok := got.(models.TradeBatch)
	require.True(t, ok, "got %T", got)
	assert.Equal(t, int64(7), batch.ChannelID)
	require.Len(t, batch.Trades, 2)

	first := batch.Trades[0]
	assert.Equal(t, "5541.2", first.Price.String())
	assert.Equal(t, "0.15850568", first.Quantity.String())
	assert.Equal(t, models.SideSell, first.Side)
	assert.Equal(t, time.Unix(1534614057, 321597000).UTC(), first.Timestamp)
	assert.Equal(t, models.SideBuy, batch.Trades[1].Side)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"empty", ``},
		{"not json", `hello`},
		{"short array", `[42,{"b":[]}]`},
		{"unsupported channel", `[42,{},"ohlc-5","XBT/USD"]`},
		{"bad price", `[42,{"b":[["x","1.0","1.0"]]},"book-10","XBT/USD"]`},
		{"short level", `[42,{"b":[["1.0"]]},"book-10","XBT/USD"]`},
		{"bad side", `[7,[["1.0","1.0","1.0","x","l",""]],"trade","XBT/USD"]`},
		{"ack without channel", `{"event":"subscriptionStatus","pair":"XBT/USD","status":"subscribed","subscription":{"name":"book"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.frame))
			assert.Error(t, err)
			assert.Nil(t, got)
		})
	}
}
