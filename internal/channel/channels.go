package channel

import (
	"context"
	"sync"
	"time"

	"bookflow/internal/metrics"
	"bookflow/logger"
	"bookflow/models"
)

type ChannelStats struct {
	BooksSent     int64
	TradesSent    int64
	AlertsSent    int64
	BooksDropped  int64
	TradesDropped int64
	AlertsDropped int64
}

// Channels carries the pipeline outputs to the writers. Sends block until
// the writer takes the record or ctx is cancelled; a record is only dropped
// when ctx ends first.
type Channels struct {
	Books  chan models.OrderBook
	Trades chan models.TradeEvent
	Alerts chan models.Alert

	stats      ChannelStats
	statsMutex sync.RWMutex
	closeOnce  sync.Once
	log        *logger.Log
}

func NewChannels(bookBufferSize, tradeBufferSize, alertBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Books:  make(chan models.OrderBook, bookBufferSize),
		Trades: make(chan models.TradeEvent, tradeBufferSize),
		Alerts: make(chan models.Alert, alertBufferSize),
		log:    log,
	}

	log.WithComponent("channels").WithFields(logger.Fields{
		"book_buffer_size":  bookBufferSize,
		"trade_buffer_size": tradeBufferSize,
		"alert_buffer_size": alertBufferSize,
	}).Info("channels initialized")

	return c
}

// StartMetricsReporting logs channel statistics every interval until ctx is done.
func (c *Channels) StartMetricsReporting(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.logChannelStats()
			}
		}
	}()
}

func (c *Channels) logChannelStats() {
	stats := c.GetStats()
	c.log.WithComponent("channels").WithFields(logger.Fields{
		"books_sent":        stats.BooksSent,
		"trades_sent":       stats.TradesSent,
		"alerts_sent":       stats.AlertsSent,
		"books_dropped":     stats.BooksDropped,
		"trades_dropped":    stats.TradesDropped,
		"alerts_dropped":    stats.AlertsDropped,
		"book_channel_len":  len(c.Books),
		"book_channel_cap":  cap(c.Books),
		"trade_channel_len": len(c.Trades),
		"trade_channel_cap": cap(c.Trades),
		"alert_channel_len": len(c.Alerts),
		"alert_channel_cap": cap(c.Alerts),
	}).Info("channel statistics")
}

// Buffers implements metrics.BufferSource.
func (c *Channels) Buffers() []metrics.Buffer {
	return []metrics.Buffer{
		{Name: "books", Len: len(c.Books), Cap: cap(c.Books)},
		{Name: "trades", Len: len(c.Trades), Cap: cap(c.Trades)},
		{Name: "alerts", Len: len(c.Alerts), Cap: cap(c.Alerts)},
	}
}

// Close closes the output channels. Senders must have stopped.
func (c *Channels) Close() {
	c.closeOnce.Do(func() {
		close(c.Books)
		close(c.Trades)
		close(c.Alerts)
		c.log.WithComponent("channels").Info("all channels closed")
	})
}

func (c *Channels) SendBook(ctx context.Context, book models.OrderBook) bool {
	select {
	case c.Books <- book:
		c.statsMutex.Lock()
		c.stats.BooksSent++
		c.statsMutex.Unlock()
		return true
	case <-ctx.Done():
		c.statsMutex.Lock()
		c.stats.BooksDropped++
		c.statsMutex.Unlock()
		metrics.EmitDropMetric(c.log, metrics.DropMetricBook, book.Vendor, book.Instrument.String(), "send")
		return false
	}
}

func (c *Channels) SendTrade(ctx context.Context, trade models.TradeEvent) bool {
	select {
	case c.Trades <- trade:
		c.statsMutex.Lock()
		c.stats.TradesSent++
		c.statsMutex.Unlock()
		return true
	case <-ctx.Done():
		c.statsMutex.Lock()
		c.stats.TradesDropped++
		c.statsMutex.Unlock()
		metrics.EmitDropMetric(c.log, metrics.DropMetricTrade, trade.Vendor, trade.Instrument.String(), "send")
		return false
	}
}

func (c *Channels) SendAlert(ctx context.Context, alert models.Alert) bool {
	select {
	case c.Alerts <- alert:
		c.statsMutex.Lock()
		c.stats.AlertsSent++
		c.statsMutex.Unlock()
		return true
	case <-ctx.Done():
		c.statsMutex.Lock()
		c.stats.AlertsDropped++
		c.statsMutex.Unlock()
		metrics.EmitDropMetric(c.log, metrics.DropMetricAlert, alert.Vendor, alert.Instrument.String(), "send")
		return false
	}
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
