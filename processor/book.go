package processor

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"bookflow/internal/metrics"
	"bookflow/internal/orderbook"
	"bookflow/internal/symbols"
	"bookflow/logger"
	"bookflow/models"
)

// BookStats counts the outcomes of a BookProcessor.
type BookStats struct {
	Books              int64
	UnknownChannels    int64
	OutOfOrderDeltas   int64
	ChecksumMismatches int64
	Regressions        int64
}

// BookProcessor turns decoded book messages into normalized order books. It
// resolves the instrument of each message, applies it to the store as a
// snapshot or a delta and validates the result.
//
// Messages for one instrument must be handled in transport order; messages
// for different instruments may be handled concurrently.
type BookProcessor struct {
	vendor    string
	registry  *symbols.Registry
	store     *orderbook.Store
	validator orderbook.Validator
	now       func() time.Time
	log       *logger.Log

	books              atomic.Int64
	unknownChannels    atomic.Int64
	outOfOrderDeltas   atomic.Int64
	checksumMismatches atomic.Int64
	regressions        atomic.Int64
}

// NewBookProcessor creates a pipeline over registry and store. A nil
// validator accepts every state.
func NewBookProcessor(vendor string, registry *symbols.Registry, store *orderbook.Store, validator orderbook.Validator) *BookProcessor {
	if validator == nil {
		validator = orderbook.ValidatorFunc(func(orderbook.State) bool { return true })
	}
	return &BookProcessor{
		vendor:    vendor,
		registry:  registry,
		store:     store,
		validator: validator,
		now:       time.Now,
		log:       logger.GetLogger(),
	}
}

// Handle applies one book message.
//
// It returns a nil book and an error for an unknown channel or a delta that
// precedes the first snapshot. When the book fails its checksum or the delta
// is older than the stored state, the book is returned together with an error
// so the caller can decide whether to resubscribe. Errors are *MessageError.
func (p *BookProcessor) Handle(msg models.BookMessage) (*models.OrderBook, error) {
	log := p.log.WithComponent("book_processor").WithFields(logger.Fields{
		"vendor":     p.vendor,
		"channel_id": msg.ChannelID,
	})

	inst, err := p.registry.Resolve(msg.ChannelID)
	if err != nil {
		p.unknownChannels.Add(1)
		metrics.IncrementAlert(p.vendor, string(models.AlertUnknownChannel), "")
		log.WithError(err).Warn("dropping book message for unknown channel")
		return nil, &MessageError{Stream: models.ChannelBook, ChannelID: msg.ChannelID, Err: err}
	}
	log = log.WithFields(logger.Fields{"instrument": inst.String()})

	if msg.Snapshot {
		state := p.store.ApplySnapshot(inst, msg.Bids, msg.Asks, msg.Checksum)
		log.WithFields(logger.Fields{"bids": len(state.Bids), "asks": len(state.Asks)}).Debug("applied snapshot")
		return p.emit(state), nil
	}

	state, err := p.store.ApplyDelta(inst, msg.Bids, msg.Asks, msg.Checksum)
	if err != nil {
		if !errors.Is(err, orderbook.ErrUnknownInstrument) {
			return nil, &MessageError{Stream: models.ChannelBook, ChannelID: msg.ChannelID, Instrument: inst, Err: err}
		}
		p.outOfOrderDeltas.Add(1)
		metrics.IncrementAlert(p.vendor, string(models.AlertOutOfOrderDelta), inst.String())
		log.Debug("dropping delta received before snapshot")
		return nil, &MessageError{Stream: models.ChannelBook, ChannelID: msg.ChannelID, Instrument: inst, Err: ErrOutOfOrderDelta}
	}

	var errs []error
	if state.TimestampRegressed {
		p.regressions.Add(1)
		metrics.IncrementAlert(p.vendor, string(models.AlertTimestampRegressed), inst.String())
		log.WithFields(logger.Fields{"exchange_time": state.ExchangeTime}).Warn("delta older than applied state")
		errs = append(errs, ErrTimestampRegression)
	}
	if !p.validator.Validate(state) {
		p.checksumMismatches.Add(1)
		metrics.IncrementAlert(p.vendor, string(models.AlertChecksumMismatch), inst.String())
		log.WithFields(logger.Fields{"checksum": state.Checksum}).Warn("order book checksum mismatch")
		errs = append(errs, ErrChecksumMismatch)
	}

	book := p.emit(state)
	if len(errs) > 0 {
		return book, &MessageError{Stream: models.ChannelBook, ChannelID: msg.ChannelID, Instrument: inst, Err: errors.Join(errs...)}
	}
	return book, nil
}

// Stats returns the counters accumulated so far.
func (p *BookProcessor) Stats() BookStats {
	return BookStats{
		Books:              p.books.Load(),
		UnknownChannels:    p.unknownChannels.Load(),
		OutOfOrderDeltas:   p.outOfOrderDeltas.Load(),
		ChecksumMismatches: p.checksumMismatches.Load(),
		Regressions:        p.regressions.Load(),
	}
}

// emit stamps the state with the local observation time. Exchange timestamps
// are not unique and do not order books.
func (p *BookProcessor) emit(state orderbook.State) *models.OrderBook {
	p.books.Add(1)
	metrics.IncrementBooks(p.vendor, state.Instrument.String())
	return &models.OrderBook{
		ID:         uuid.NewString(),
		Instrument: state.Instrument,
		Timestamp:  p.now(),
		Vendor:     p.vendor,
		Bids:       state.Bids,
		Asks:       state.Asks,
		Checksum:   state.Checksum,
	}
}
