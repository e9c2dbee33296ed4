package reader

import (
	"context"

	"bookflow/models"
)

// Venue is the streaming adapter of one exchange. The reconstruction engine
// is venue agnostic; a venue supplies the subscribe message format, the frame
// decoder and the checksum rule.
type Venue interface {
	// Name is the vendor tag put on every emitted record.
	Name() string
	// SubscribeRequest renders the subscribe message for insts.
	SubscribeRequest(kind models.ChannelKind, insts []models.Instrument) ([]byte, error)
	// StreamBooks keeps a book subscription for insts alive until ctx is
	// cancelled, one session per connection.
	StreamBooks(ctx context.Context, insts []models.Instrument) error
	// StreamTrades is StreamBooks for the trade channel.
	StreamTrades(ctx context.Context, insts []models.Instrument) error
}
