package kraken

import (
	"encoding/json"
	"fmt"

	"bookflow/internal/symbols"
	"bookflow/models"
)

const vendor = "kraken"

type subscription struct {
	Name  string `json:"name"`
	Depth int    `json:"depth,omitempty"`
}

type subscribeRequest struct {
	Event        string       `json:"event"`
	ReqID        int64        `json:"reqid,omitempty"`
	Pair         []string     `json:"pair"`
	Subscription subscription `json:"subscription"`
}

// SubscribeRequest builds the websocket subscribe message. Pairs are sent as
// uppercased BASE/QUOTE with Kraken asset codes. depth is ignored for trades.
func SubscribeRequest(kind models.ChannelKind, insts []models.Instrument, depth int) ([]byte, error) {
	if len(insts) == 0 {
		return nil, fmt.Errorf("no instruments to subscribe")
	}

	req := subscribeRequest{Event: "subscribe", Pair: make([]string, 0, len(insts))}
	for _, inst := range insts {
		req.Pair = append(req.Pair, symbols.ToVenue(vendor, inst))
	}

	switch kind {
	case models.ChannelBook:
		req.Subscription = subscription{Name: "book", Depth: depth}
	case models.ChannelTrade:
		req.Subscription = subscription{Name: "trade"}
	default:
		return nil, fmt.Errorf("unsupported channel kind %q", kind)
	}

	return json.Marshal(req)
}

type pingRequest struct {
	Event string `json:"event"`
	ReqID int64  `json:"reqid"`
}

func pingMessage(reqID int64) []byte {
	data, _ := json.Marshal(pingRequest{Event: "ping", ReqID: reqID})
	return data
}
