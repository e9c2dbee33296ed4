package dashboard

import (
	"sort"

	"github.com/gin-gonic/gin"

	"bookflow/internal/orderbook"
	"bookflow/models"
)

// BookSource exposes the reconstructed books of a running stream. Books must
// be safe to call while the stream is applying updates.
type BookSource interface {
	Books() []orderbook.State
}

// BookSources merges several sources, e.g. one per connection shard.
type BookSources []BookSource

func (s BookSources) Books() []orderbook.State {
	var out []orderbook.State
	for _, src := range s {
		out = append(out, src.Books()...)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Instrument.String() < out[j].Instrument.String()
	})
	return out
}

func levelsPayload(levels []models.PriceLevel) [][2]string {
	out := make([][2]string, len(levels))
	for i, l := range levels {
		out[i] = [2]string{l.Price.String(), l.Quantity.String()}
	}
	return out
}

func bookSummary(st orderbook.State) gin.H {
	h := gin.H{
		"instrument":          st.Instrument.String(),
		"bid_levels":          len(st.Bids),
		"ask_levels":          len(st.Asks),
		"checksum":            st.Checksum,
		"updated_at":          st.UpdatedAt,
		"timestamp_regressed": st.TimestampRegressed,
	}
	if !st.ExchangeTime.IsZero() {
		h["exchange_time"] = st.ExchangeTime
	}
	if len(st.Bids) > 0 {
		h["best_bid"] = st.Bids[0].Price.String()
	}
	if len(st.Asks) > 0 {
		h["best_ask"] = st.Asks[0].Price.String()
	}
	if len(st.Bids) > 0 && len(st.Asks) > 0 {
		h["spread"] = st.Asks[0].Price.Sub(st.Bids[0].Price).String()
	}
	return h
}

func bookDetail(st orderbook.State) gin.H {
	h := bookSummary(st)
	h["bids"] = levelsPayload(st.Bids)
	h["asks"] = levelsPayload(st.Asks)
	return h
}
