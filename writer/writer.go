package writer

import (
	"context"

	"bookflow/internal/channel"
	"bookflow/models"
)

// Writer drains the pipeline output channels into a sink.
type Writer interface {
	Start(ctx context.Context) error
	Stop()
}

// sink receives records one at a time. Implementations track their own
// statistics.
type sink interface {
	writeBook(ctx context.Context, book models.OrderBook) error
	writeTrade(ctx context.Context, trade models.TradeEvent) error
	writeAlert(ctx context.Context, alert models.Alert) error
}

// drain runs until ctx is done or every channel is closed.
func drain(ctx context.Context, ch *channel.Channels, s sink, onErr func(kind string, err error)) {
	books, trades, alerts := ch.Books, ch.Trades, ch.Alerts
	for books != nil || trades != nil || alerts != nil {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-books:
			if !ok {
				books = nil
				continue
			}
			if err := s.writeBook(ctx, b); err != nil {
				onErr("book", err)
			}
		case t, ok := <-trades:
			if !ok {
				trades = nil
				continue
			}
			if err := s.writeTrade(ctx, t); err != nil {
				onErr("trade", err)
			}
		case a, ok := <-alerts:
			if !ok {
				alerts = nil
				continue
			}
			if err := s.writeAlert(ctx, a); err != nil {
				onErr("alert", err)
			}
		}
	}
}
