package kraken

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bookflow/internal/symbols"
	"bookflow/models"
)

// ErrSubscriptionRejected is returned for a subscriptionStatus frame with
// status "error".
var ErrSubscriptionRejected = errors.New("subscription rejected")

type eventFrame struct {
	Event        string `json:"event"`
	Status       string `json:"status"`
	ChannelID    *int64 `json:"channelID"`
	ChannelName  string `json:"channelName"`
	Pair         string `json:"pair"`
	ErrorMessage string `json:"errorMessage"`
	Subscription struct {
		Name string `json:"name"`
	} `json:"subscription"`
}

type bookPayload struct {
	As *[][]string `json:"as"`
	Bs *[][]string `json:"bs"`
	A  [][]string  `json:"a"`
	B  [][]string  `json:"b"`
	C  string      `json:"c"`
}

// Decode classifies one websocket frame. It returns a
// models.SubscriptionAck, models.BookMessage or models.TradeBatch for
// subscription and data frames, and nil for control frames such as
// heartbeats, pongs and system status.
func Decode(data []byte) (any, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty frame")
	}

	switch data[0] {
	case '{':
		return decodeEvent(data)
	case '[':
		return decodeData(data)
	default:
		return nil, fmt.Errorf("unexpected frame %q", truncate(data))
	}
}

func decodeEvent(data []byte) (any, error) {
	var evt eventFrame
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	if evt.Event != "subscriptionStatus" {
		// heartbeat, pong, systemStatus
		return nil, nil
	}

	switch evt.Status {
	case "subscribed":
	case "error":
		return nil, fmt.Errorf("%w: %s %s", ErrSubscriptionRejected, evt.Pair, evt.ErrorMessage)
	default:
		return nil, nil
	}

	if evt.ChannelID == nil {
		return nil, fmt.Errorf("subscription ack for %s without channelID", evt.Pair)
	}
	inst, err := symbols.FromVenue(vendor, evt.Pair)
	if err != nil {
		return nil, fmt.Errorf("subscription ack: %w", err)
	}

	name := evt.Subscription.Name
	if name == "" {
		name = evt.ChannelName
	}
	kind, err := channelKind(name)
	if err != nil {
		return nil, err
	}

	return models.SubscriptionAck{ChannelID: *evt.ChannelID, Instrument: inst, Kind: kind}, nil
}

func decodeData(data []byte) (any, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return nil, fmt.Errorf("decode data frame: %w", err)
	}
	if len(parts) < 4 {
		return nil, fmt.Errorf("data frame has %d elements", len(parts))
	}

	var channelID int64
	if err := json.Unmarshal(parts[0], &channelID); err != nil {
		return nil, fmt.Errorf("decode channel id: %w", err)
	}
	var name string
	if err := json.Unmarshal(parts[len(parts)-2], &name); err != nil {
		return nil, fmt.Errorf("decode channel name: %w", err)
	}
	payloads := parts[1 : len(parts)-2]

	kind, err := channelKind(name)
	if err != nil {
		return nil, err
	}
	if kind == models.ChannelTrade {
		return decodeTrades(channelID, payloads)
	}
	return decodeBook(channelID, payloads)
}

func decodeBook(channelID int64, payloads []json.RawMessage) (models.BookMessage, error) {
	msg := models.BookMessage{ChannelID: channelID}
	for _, raw := range payloads {
		var p bookPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return models.BookMessage{}, fmt.Errorf("decode book payload: %w", err)
		}

		if p.As != nil || p.Bs != nil {
			msg.Snapshot = true
			if p.As != nil {
				if err := appendLevels(&msg.Asks, *p.As, models.SideAsk); err != nil {
					return models.BookMessage{}, err
				}
			}
			if p.Bs != nil {
				if err := appendLevels(&msg.Bids, *p.Bs, models.SideBid); err != nil {
					return models.BookMessage{}, err
				}
			}
		}
		if err := appendLevels(&msg.Asks, p.A, models.SideAsk); err != nil {
			return models.BookMessage{}, err
		}
		if err := appendLevels(&msg.Bids, p.B, models.SideBid); err != nil {
			return models.BookMessage{}, err
		}
		if p.C != "" {
			msg.Checksum = p.C
		}
	}
	return msg, nil
}

// appendLevels parses [price, volume, timestamp(, "r")] entries. The
// republish flag carries no extra meaning for reconstruction.
func appendLevels(dst *[]models.PriceLevel, entries [][]string, side models.Side) error {
	for _, e := range entries {
		if len(e) < 2 {
			return fmt.Errorf("malformed %s level %v", side, e)
		}
		price, err := decimal.NewFromString(e[0])
		if err != nil {
			return fmt.Errorf("parse %s price %q: %w", side, e[0], err)
		}
		qty, err := decimal.NewFromString(e[1])
		if err != nil {
			return fmt.Errorf("parse %s volume %q: %w", side, e[1], err)
		}
		level := models.PriceLevel{Price: price, Quantity: qty, Side: side}
		if len(e) > 2 {
			ts, err := parseTimestamp(e[2])
			if err != nil {
				return err
			}
			level.Timestamp = ts
		}
		*dst = append(*dst, level)
	}
	return nil
}

func decodeTrades(channelID int64, payloads []json.RawMessage) (models.TradeBatch, error) {
	batch := models.TradeBatch{ChannelID: channelID}
	for _, raw := range payloads {
		var entries [][]string
		if err := json.Unmarshal(raw, &entries); err != nil {
			return models.TradeBatch{}, fmt.Errorf("decode trade payload: %w", err)
		}
		for _, e := range entries {
			if len(e) < 4 {
				return models.TradeBatch{}, fmt.Errorf("malformed trade %v", e)
			}
			price, err := decimal.NewFromString(e[0])
			if err != nil {
				return models.TradeBatch{}, fmt.Errorf("parse trade price %q: %w", e[0], err)
			}
			qty, err := decimal.NewFromString(e[1])
			if err != nil {
				return models.TradeBatch{}, fmt.Errorf("parse trade volume %q: %w", e[1], err)
			}
			ts, err := parseTimestamp(e[2])
			if err != nil {
				return models.TradeBatch{}, err
			}
			side, err := tradeSide(e[3])
			if err != nil {
				return models.TradeBatch{}, err
			}
			batch.Trades = append(batch.Trades, models.TradeRecord{
				Price:     price,
				Quantity:  qty,
				Timestamp: ts,
				Side:      side,
			})
		}
	}
	return batch, nil
}

var nanosPerSecond = decimal.New(1, 9)

// parseTimestamp reads Kraken's "seconds.fraction" timestamps without going
// through float64.
func parseTimestamp(s string) (time.Time, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return time.Unix(0, d.Mul(nanosPerSecond).IntPart()).UTC(), nil
}

func tradeSide(s string) (models.Side, error) {
	switch s {
	case "b":
		return models.SideBuy, nil
	case "s":
		return models.SideSell, nil
	default:
		return "", fmt.Errorf("unknown trade side %q", s)
	}
}

func channelKind(name string) (models.ChannelKind, error) {
	switch {
	case name == "trade":
		return models.ChannelTrade, nil
	case name == "book" || strings.HasPrefix(name, "book-"):
		return models.ChannelBook, nil
	default:
		return "", fmt.Errorf("unsupported channel %q", name)
	}
}

func truncate(data []byte) []byte {
	if len(data) > 64 {
		return data[:64]
	}
	return data
}
