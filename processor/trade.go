package processor

import (
	"sync/atomic"

	"github.com/google/uuid"

	"bookflow/internal/metrics"
	"bookflow/internal/symbols"
	"bookflow/logger"
	"bookflow/models"
)

// TradeNormalizer maps decoded trade batches to trade events. It keeps no
// state beyond counters.
type TradeNormalizer struct {
	vendor   string
	registry *symbols.Registry
	log      *logger.Log

	trades          atomic.Int64
	unknownChannels atomic.Int64
}

func NewTradeNormalizer(vendor string, registry *symbols.Registry) *TradeNormalizer {
	return &TradeNormalizer{
		vendor:   vendor,
		registry: registry,
		log:      logger.GetLogger(),
	}
}

// Normalize returns one event per record, in batch order.
func (n *TradeNormalizer) Normalize(batch models.TradeBatch) ([]models.TradeEvent, error) {
	inst, err := n.registry.Resolve(batch.ChannelID)
	if err != nil {
		n.unknownChannels.Add(1)
		metrics.IncrementAlert(n.vendor, string(models.AlertUnknownChannel), "")
		n.log.WithComponent("trade_normalizer").WithFields(logger.Fields{
			"vendor":     n.vendor,
			"channel_id": batch.ChannelID,
		}).WithError(err).Warn("dropping trades for unknown channel")
		return nil, &MessageError{Stream: models.ChannelTrade, ChannelID: batch.ChannelID, Err: err}
	}

	events := make([]models.TradeEvent, 0, len(batch.Trades))
	for _, t := range batch.Trades {
		events = append(events, models.TradeEvent{
			ID:         uuid.NewString(),
			Timestamp:  t.Timestamp,
			Price:      t.Price,
			Quantity:   t.Quantity,
			Instrument: inst,
			Vendor:     n.vendor,
			Side:       t.Side,
		})
	}

	n.trades.Add(int64(len(events)))
	metrics.IncrementTrades(n.vendor, inst.String(), len(events))
	return events, nil
}

// Stats returns the number of events produced and batches dropped.
func (n *TradeNormalizer) Stats() (trades, unknownChannels int64) {
	return n.trades.Load(), n.unknownChannels.Load()
}
