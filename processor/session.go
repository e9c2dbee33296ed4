package processor

import (
	"fmt"
	"sync"
	"sync/atomic"

	"bookflow/internal/metrics"
	"bookflow/internal/orderbook"
	"bookflow/internal/symbols"
	"bookflow/logger"
	"bookflow/models"
)

// Output is what a Session produced for one frame. At most one field is set.
type Output struct {
	Ack    *models.SubscriptionAck
	Book   *models.OrderBook
	Trades []models.TradeEvent
}

// Depth is the stored level count of one instrument.
type Depth struct {
	Instrument models.Instrument
	Bids       int
	Asks       int
}

// Session owns the channel registry and book store of one stream
// connection. Channel ids and incremental state have no meaning across a
// reconnect, so each connection gets a new Session and closes it when the
// connection ends.
type Session struct {
	vendor   string
	stream   models.ChannelKind
	registry *symbols.Registry
	store    *orderbook.Store
	books    *BookProcessor
	trades   *TradeNormalizer
	log      *logger.Log

	frames    atomic.Int64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewSession creates an empty session. maxDepth bounds each book side.
func NewSession(vendor string, stream models.ChannelKind, maxDepth int, validator orderbook.Validator) *Session {
	registry := symbols.NewRegistry()
	store := orderbook.NewStore(maxDepth)
	return &Session{
		vendor:   vendor,
		stream:   stream,
		registry: registry,
		store:    store,
		books:    NewBookProcessor(vendor, registry, store, validator),
		trades:   NewTradeNormalizer(vendor, registry),
		log:      logger.GetLogger(),
	}
}

// Handle routes one decoded frame. Acknowledgements only reach the
// registry; nil frames are control messages and produce nothing.
func (s *Session) Handle(frame any) (Output, error) {
	if s.closed.Load() {
		return Output{}, ErrSessionClosed
	}
	s.frames.Add(1)

	switch f := frame.(type) {
	case nil:
		return Output{}, nil
	case models.SubscriptionAck:
		s.registry.Record(f)
		s.log.WithComponent(s.component()).WithFields(logger.Fields{
			"channel_id": f.ChannelID,
			"instrument": f.Instrument.String(),
			"kind":       f.Kind,
		}).Info("subscription acknowledged")
		return Output{Ack: &f}, nil
	case models.BookMessage:
		book, err := s.books.Handle(f)
		return Output{Book: book}, err
	case models.TradeBatch:
		trades, err := s.trades.Normalize(f)
		return Output{Trades: trades}, err
	default:
		return Output{}, fmt.Errorf("unsupported frame type %T", frame)
	}
}

// Depths reports the stored depth of every synced instrument. It is safe to
// call while another goroutine is handling frames.
func (s *Session) Depths() []Depth {
	insts := s.store.Instruments()
	out := make([]Depth, 0, len(insts))
	for _, inst := range insts {
		bids, asks, ok := s.store.Depth(inst)
		if !ok {
			continue
		}
		out = append(out, Depth{Instrument: inst, Bids: bids, Asks: asks})
	}
	return out
}

// Book returns a copy of the stored state of inst.
func (s *Session) Book(inst models.Instrument) (orderbook.State, bool) {
	return s.store.Get(inst)
}

// Close clears the registry and the store. Only the first call has an
// effect; later calls return false.
func (s *Session) Close() bool {
	closed := false
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		for _, inst := range s.store.Instruments() {
			metrics.ResetDepth(s.vendor, inst.String())
		}
		s.registry.Clear()
		s.store.Clear()
		closed = true
		metrics.ReportSession(s.log, s.Stats())
	})
	return closed
}

// Stats summarises the session so far.
func (s *Session) Stats() metrics.SessionStats {
	b := s.books.Stats()
	trades, tradeUnknown := s.trades.Stats()
	return metrics.SessionStats{
		Vendor:             s.vendor,
		Stream:             string(s.stream),
		Frames:             s.frames.Load(),
		Books:              b.Books,
		Trades:             trades,
		UnknownChannels:    b.UnknownChannels + tradeUnknown,
		OutOfOrderDeltas:   b.OutOfOrderDeltas,
		ChecksumMismatches: b.ChecksumMismatches,
		Regressions:        b.Regressions,
	}
}

func (s *Session) component() string {
	return s.vendor + "_" + string(s.stream) + "_reader"
}
