package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the book side of a price level or the aggressor side of a trade.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"

	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// PriceLevel is a single price/quantity pair. A quantity <= 0 in an incoming
// update means the price is to be removed.
type PriceLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Side     Side            `json:"side"`
	// Timestamp is the exchange time attached to the level, zero when absent.
	Timestamp time.Time `json:"-"`
}

// Key returns the price with trailing zeros stripped, so "1.50" and "1.5"
// address the same level.
func (l PriceLevel) Key() string {
	return l.Price.String()
}

// BookMessage is a decoded order book frame from the transport.
type BookMessage struct {
	ChannelID int64
	Snapshot  bool
	Bids      []PriceLevel
	Asks      []PriceLevel
	// Checksum is empty when the frame carried none.
	Checksum string
}

// OrderBook is the normalized order book record emitted downstream.
type OrderBook struct {
	ID         string       `json:"id"`
	Instrument Instrument   `json:"instrument"`
	Timestamp  time.Time    `json:"timestamp"`
	Vendor     string       `json:"vendor"`
	Bids       []PriceLevel `json:"bids"`
	Asks       []PriceLevel `json:"asks"`
	Checksum   string       `json:"checksum,omitempty"`
}
