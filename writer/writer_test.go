package writer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	kafka "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "bookflow/config"
	"bookflow/internal/channel"
	"bookflow/models"
)

var btcusd = models.Instrument{Base: "BTC", Quote: "USD"}

type fakeKafka struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	fail   error
	closed bool
}

func (f *fakeKafka) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeKafka) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeKafka) messages() []kafka.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kafka.Message(nil), f.msgs...)
}

func kafkaConfig() *appconfig.Config {
	cfg := &appconfig.Config{}
	cfg.Writer.Kafka = appconfig.KafkaConfig{
		Enabled:    true,
		Brokers:    []string{"localhost:9092"},
		BookTopic:  "books",
		TradeTopic: "trades",
		AlertTopic: "alerts",
	}
	return cfg
}

func TestKafkaWriterRoutesByTopic(t *testing.T) {
	ch := channel.NewChannels(4, 4, 4)
	fake := &fakeKafka{}
	kw := newKafkaWriter(kafkaConfig(), ch, fake)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, kw.Start(ctx))

	ch.Books <- models.OrderBook{ID: "b1", Instrument: btcusd, Vendor: "kraken", Checksum: "1"}
	ch.Trades <- models.TradeEvent{ID: "t1", Instrument: btcusd, Price: decimal.RequireFromString("100.5"), Side: models.SideBuy}
	ch.Alerts <- models.Alert{ID: "a1", Kind: models.AlertChecksumMismatch, Instrument: btcusd}

	require.Eventually(t, func() bool { return len(fake.messages()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	kw.Stop()

	byTopic := map[string]kafka.Message{}
	for _, m := range fake.messages() {
		byTopic[m.Topic] = m
	}
	require.Len(t, byTopic, 3)
	assert.Equal(t, btcusd.String(), string(byTopic["books"].Key))
	assert.Equal(t, btcusd.String(), string(byTopic["trades"].Key))
	assert.Equal(t, string(models.AlertChecksumMismatch), string(byTopic["alerts"].Key))

	var book map[string]any
	require.NoError(t, json.Unmarshal(byTopic["books"].Value, &book))
	assert.Equal(t, "b1", book["id"])
	assert.Equal(t, "kraken", book["vendor"])

	stats := kw.Stats()
	assert.Equal(t, int64(1), stats.BooksWritten)
	assert.Equal(t, int64(1), stats.TradesWritten)
	assert.Equal(t, int64(1), stats.AlertsWritten)
	assert.Positive(t, stats.BytesWritten)
	assert.Zero(t, stats.ErrorsCount)
	assert.True(t, fake.closed)
}

func TestKafkaWriterCountsErrors(t *testing.T) {
	ch := channel.NewChannels(4, 4, 4)
	fake := &fakeKafka{fail: errors.New("broker down")}
	kw := newKafkaWriter(kafkaConfig(), ch, fake)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, kw.Start(ctx))
	ch.Books <- models.OrderBook{Instrument: btcusd}

	require.Eventually(t, func() bool { return kw.Stats().ErrorsCount == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	kw.Stop()
	assert.Zero(t, kw.Stats().BooksWritten)
}

func TestKafkaWriterDoubleStart(t *testing.T) {
	kw := newKafkaWriter(kafkaConfig(), channel.NewChannels(1, 1, 1), &fakeKafka{})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, kw.Start(ctx))
	assert.Error(t, kw.Start(ctx))
	cancel()
	kw.Stop()
}

func TestNewKafkaWriterValidation(t *testing.T) {
	cfg := kafkaConfig()
	cfg.Writer.Kafka.Brokers = nil
	_, err := NewKafkaWriter(cfg, channel.NewChannels(1, 1, 1))
	assert.Error(t, err)

	cfg = kafkaConfig()
	cfg.Writer.Kafka.AlertTopic = ""
	_, err = NewKafkaWriter(cfg, channel.NewChannels(1, 1, 1))
	assert.Error(t, err)

	kw, err := NewKafkaWriter(kafkaConfig(), channel.NewChannels(1, 1, 1))
	require.NoError(t, err)
	assert.NotNil(t, kw)
}

func TestLogWriterDrainsUntilClosed(t *testing.T) {
	ch := channel.NewChannels(4, 4, 4)
	lw := NewLogWriter(ch)
	require.NoError(t, lw.Start(context.Background()))

	ch.Books <- models.OrderBook{Instrument: btcusd, Bids: []models.PriceLevel{{Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1)}}}
	ch.Trades <- models.TradeEvent{Instrument: btcusd}
	ch.Alerts <- models.Alert{Kind: models.AlertUnknownChannel, Message: "unknown channel"}
	ch.Close()

	lw.Stop()
	stats := lw.Stats()
	assert.Equal(t, int64(1), stats.BooksWritten)
	assert.Equal(t, int64(1), stats.TradesWritten)
	assert.Equal(t, int64(1), stats.AlertsWritten)
}
