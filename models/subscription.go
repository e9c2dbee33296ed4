package models

import "time"

// ChannelKind names the subscription a channel id was assigned for.
type ChannelKind string

const (
	ChannelBook  ChannelKind = "book"
	ChannelTrade ChannelKind = "trade"
)

// SubscriptionAck is consumed once to populate the channel registry.
type SubscriptionAck struct {
	ChannelID  int64
	Instrument Instrument
	Kind       ChannelKind
}

// AlertKind classifies a per-message data-quality signal.
type AlertKind string

const (
	AlertUnknownChannel     AlertKind = "unknown_channel"
	AlertOutOfOrderDelta    AlertKind = "out_of_order_delta"
	AlertChecksumMismatch   AlertKind = "checksum_mismatch"
	AlertTimestampRegressed AlertKind = "timestamp_regression"
)

// Alert is the diagnostic record emitted for a message that failed a check.
type Alert struct {
	ID         string      `json:"id"`
	Kind       AlertKind   `json:"kind"`
	Vendor     string      `json:"vendor"`
	Instrument Instrument  `json:"instrument"`
	ChannelID  int64       `json:"channel_id"`
	Stream     ChannelKind `json:"stream"`
	Message    string      `json:"message"`
	Timestamp  time.Time   `json:"timestamp"`
}
