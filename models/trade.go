package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeRecord is a single trade inside a decoded trade batch frame.
type TradeRecord struct {
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Timestamp time.Time
	Side      Side
}

// TradeBatch is a decoded trade frame from the transport.
type TradeBatch struct {
	ChannelID int64
	Trades    []TradeRecord
}

// TradeEvent is the normalized trade record emitted downstream.
type TradeEvent struct {
	ID         string          `json:"id"`
	Timestamp  time.Time       `json:"timestamp"`
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	Instrument Instrument      `json:"instrument"`
	Vendor     string          `json:"vendor"`
	Side       Side            `json:"side"`
}
