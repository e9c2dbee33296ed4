package writer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"bookflow/internal/channel"
	"bookflow/internal/metrics"
	"bookflow/logger"
	"bookflow/models"
)

// LogWriter logs every record. It is the sink for local runs without Kafka.
type LogWriter struct {
	channels *channel.Channels
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	log      *logger.Log

	books  atomic.Int64
	trades atomic.Int64
	alerts atomic.Int64
}

func NewLogWriter(ch *channel.Channels) *LogWriter {
	return &LogWriter{channels: ch, log: logger.GetLogger()}
}

func (lw *LogWriter) Start(ctx context.Context) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	if lw.running {
		return fmt.Errorf("log writer already running")
	}
	lw.running = true

	lw.wg.Add(1)
	go func() {
		defer lw.wg.Done()
		drain(ctx, lw.channels, lw, func(string, error) {})
	}()
	return nil
}

func (lw *LogWriter) Stop() {
	lw.wg.Wait()
	lw.mu.Lock()
	lw.running = false
	lw.mu.Unlock()
	metrics.ReportWriter(lw.log, "log_writer", lw.Stats())
}

func (lw *LogWriter) Stats() metrics.WriterStats {
	return metrics.WriterStats{
		BooksWritten:  lw.books.Load(),
		TradesWritten: lw.trades.Load(),
		AlertsWritten: lw.alerts.Load(),
	}
}

func (lw *LogWriter) writeBook(_ context.Context, book models.OrderBook) error {
	lw.books.Add(1)
	fields := logger.Fields{
		"instrument": book.Instrument.String(),
		"bids":       len(book.Bids),
		"asks":       len(book.Asks),
		"checksum":   book.Checksum,
	}
	if len(book.Bids) > 0 {
		fields["best_bid"] = book.Bids[0].Price.String()
	}
	if len(book.Asks) > 0 {
		fields["best_ask"] = book.Asks[0].Price.String()
	}
	lw.log.WithComponent("log_writer").WithFields(fields).Debug("order book")
	return nil
}

func (lw *LogWriter) writeTrade(_ context.Context, trade models.TradeEvent) error {
	lw.trades.Add(1)
	lw.log.WithComponent("log_writer").WithFields(logger.Fields{
		"instrument": trade.Instrument.String(),
		"price":      trade.Price.String(),
		"quantity":   trade.Quantity.String(),
		"side":       trade.Side,
	}).Debug("trade")
	return nil
}

func (lw *LogWriter) writeAlert(_ context.Context, alert models.Alert) error {
	lw.alerts.Add(1)
	lw.log.WithComponent("log_writer").WithFields(logger.Fields{
		"instrument": alert.Instrument.String(),
		"kind":       alert.Kind,
		"channel_id": alert.ChannelID,
	}).Info(alert.Message)
	return nil
}
