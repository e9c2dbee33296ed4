package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	kafka "github.com/segmentio/kafka-go"

	appconfig "bookflow/config"
	"bookflow/internal/channel"
	"bookflow/internal/metrics"
	"bookflow/logger"
	"bookflow/models"
)

// messageWriter is the part of *kafka.Writer the writer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaWriter publishes books, trades and alerts as JSON to one topic each.
// Books and trades are keyed by instrument so a partition sees one
// instrument in order; alerts are keyed by kind.
type KafkaWriter struct {
	config   *appconfig.Config
	channels *channel.Channels
	writer   messageWriter
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log

	booksWritten  atomic.Int64
	tradesWritten atomic.Int64
	alertsWritten atomic.Int64
	bytesWritten  atomic.Int64
	errorsCount   atomic.Int64
}

func NewKafkaWriter(cfg *appconfig.Config, ch *channel.Channels) (*KafkaWriter, error) {
	kc := cfg.Writer.Kafka
	if len(kc.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	if kc.BookTopic == "" || kc.TradeTopic == "" || kc.AlertTopic == "" {
		return nil, fmt.Errorf("kafka topics not configured")
	}

	// topic is set per message
	w := &kafka.Writer{
		Addr:                   kafka.TCP(kc.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              kc.BatchSize,
		BatchTimeout:           kc.BatchTimeout,
		AllowAutoTopicCreation: true,
	}
	kw := newKafkaWriter(cfg, ch, w)
	kw.log.WithComponent("kafka_writer").WithFields(logger.Fields{
		"brokers":     kc.Brokers,
		"book_topic":  kc.BookTopic,
		"trade_topic": kc.TradeTopic,
		"alert_topic": kc.AlertTopic,
	}).Debug("kafka writer initialized")
	return kw, nil
}

func newKafkaWriter(cfg *appconfig.Config, ch *channel.Channels, w messageWriter) *KafkaWriter {
	return &KafkaWriter{
		config:   cfg,
		channels: ch,
		writer:   w,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

func (kw *KafkaWriter) Start(ctx context.Context) error {
	kw.mu.Lock()
	if kw.running {
		kw.mu.Unlock()
		return fmt.Errorf("kafka writer already running")
	}
	kw.running = true
	kw.ctx = ctx
	kw.mu.Unlock()

	kw.log.WithComponent("kafka_writer").Debug("starting kafka writer")

	kw.wg.Add(1)
	go func() {
		defer kw.wg.Done()
		drain(ctx, kw.channels, kw, kw.onError)
	}()

	if interval := kw.config.Metrics.ReportInterval; interval > 0 {
		kw.wg.Add(1)
		go func() {
			defer kw.wg.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					metrics.ReportWriter(kw.log, "kafka_writer", kw.Stats())
				}
			}
		}()
	}

	return nil
}

func (kw *KafkaWriter) Stop() {
	kw.mu.Lock()
	kw.running = false
	kw.mu.Unlock()

	kw.log.WithComponent("kafka_writer").Debug("stopping kafka writer")
	kw.wg.Wait()
	if err := kw.writer.Close(); err != nil {
		kw.log.WithComponent("kafka_writer").WithError(err).Warn("failed to close kafka writer")
	}
	metrics.ReportWriter(kw.log, "kafka_writer", kw.Stats())
	kw.log.WithComponent("kafka_writer").Debug("kafka writer stopped")
}

func (kw *KafkaWriter) Stats() metrics.WriterStats {
	return metrics.WriterStats{
		BooksWritten:  kw.booksWritten.Load(),
		TradesWritten: kw.tradesWritten.Load(),
		AlertsWritten: kw.alertsWritten.Load(),
		BytesWritten:  kw.bytesWritten.Load(),
		ErrorsCount:   kw.errorsCount.Load(),
	}
}

func (kw *KafkaWriter) onError(kind string, err error) {
	kw.errorsCount.Add(1)
	kw.log.WithComponent("kafka_writer").WithError(err).WithFields(logger.Fields{"kind": kind}).Warn("failed to write message")
}

func (kw *KafkaWriter) publish(ctx context.Context, topic, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	msg := kafka.Message{Topic: topic, Key: []byte(key), Value: data}
	if err := kw.writer.WriteMessages(ctx, msg); err != nil {
		return err
	}
	kw.bytesWritten.Add(int64(len(data)))
	return nil
}

func (kw *KafkaWriter) writeBook(ctx context.Context, book models.OrderBook) error {
	if err := kw.publish(ctx, kw.config.Writer.Kafka.BookTopic, book.Instrument.String(), book); err != nil {
		return err
	}
	kw.booksWritten.Add(1)
	return nil
}

func (kw *KafkaWriter) writeTrade(ctx context.Context, trade models.TradeEvent) error {
	if err := kw.publish(ctx, kw.config.Writer.Kafka.TradeTopic, trade.Instrument.String(), trade); err != nil {
		return err
	}
	kw.tradesWritten.Add(1)
	return nil
}

func (kw *KafkaWriter) writeAlert(ctx context.Context, alert models.Alert) error {
	if err := kw.publish(ctx, kw.config.Writer.Kafka.AlertTopic, string(alert.Kind), alert); err != nil {
		return err
	}
	kw.alertsWritten.Add(1)
	return nil
}
