package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"bookflow/models"
)

// MaxBookDepth is the number of levels per side the book checksum covers.
// Kraken only resends levels inside the subscribed depth, so both the
// subscription and the local store must hold exactly this many.
const MaxBookDepth = 10

type Config struct {
	Bookflow  BookflowConfig  `yaml:"bookflow"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Reader    ReaderConfig    `yaml:"reader"`
	Processor ProcessorConfig `yaml:"processor"`
	Writer    WriterConfig    `yaml:"writer"`
	Source    SourceConfig    `yaml:"source"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type BookflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type MetricsConfig struct {
	Prometheus     PrometheusConfig `yaml:"prometheus"`
	CloudWatch     CloudWatchConfig `yaml:"cloudwatch"`
	ChannelSize    bool             `yaml:"channel_size"`
	ReportInterval time.Duration    `yaml:"report_interval"`
}

type PrometheusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type CloudWatchConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Region          string `yaml:"region"`
	Namespace       string `yaml:"namespace"`
	Dashboard       string `yaml:"dashboard"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// DashboardConfig controls the embedded monitoring dashboard.
type DashboardConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Address         string        `yaml:"address"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	LogHistory      int           `yaml:"log_history"`
	MetricsHistory  int           `yaml:"metrics_history"`
}

type ChannelsConfig struct {
	BookBuffer  int `yaml:"book_buffer"`
	TradeBuffer int `yaml:"trade_buffer"`
	AlertBuffer int `yaml:"alert_buffer"`
	// FrameQueueWarn logs a warning when this many inbound frames are
	// waiting to be applied.
	FrameQueueWarn int `yaml:"frame_queue_warn"`
}

type ReaderConfig struct {
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	// ResyncOnChecksumMismatch drops the connection after a checksum failure
	// so the next session starts from a fresh snapshot.
	ResyncOnChecksumMismatch bool `yaml:"resync_on_checksum_mismatch"`
}

type ProcessorConfig struct {
	MaxDepth      int           `yaml:"max_depth"`
	DepthInterval time.Duration `yaml:"depth_interval"`
}

type WriterConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
}

type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	BookTopic    string        `yaml:"book_topic"`
	TradeTopic   string        `yaml:"trade_topic"`
	AlertTopic   string        `yaml:"alert_topic"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

type SourceConfig struct {
	Kraken KrakenSourceConfig `yaml:"kraken"`
}

type KrakenSourceConfig struct {
	URL   string            `yaml:"url"`
	Book  KrakenBookConfig  `yaml:"book"`
	Trade KrakenTradeConfig `yaml:"trade"`
}

type KrakenBookConfig struct {
	Enabled bool     `yaml:"enabled"`
	Depth   int      `yaml:"depth"`
	Symbols []string `yaml:"symbols"`
}

type KrakenTradeConfig struct {
	Enabled bool     `yaml:"enabled"`
	Symbols []string `yaml:"symbols"`
}

type LoggingConfig struct {
	Level  string                 `yaml:"level"`
	Format string                 `yaml:"format"`
	Output string                 `yaml:"output"`
	MaxAge int                    `yaml:"max_age"`
	Fields map[string]interface{} `yaml:"fields"`
}

func defaults() Config {
	return Config{
		Metrics: MetricsConfig{
			Prometheus:     PrometheusConfig{Address: "0.0.0.0:2112"},
			CloudWatch:     CloudWatchConfig{Namespace: "Bookflow", Dashboard: "Bookflow"},
			ReportInterval: 30 * time.Second,
		},
		Dashboard: DashboardConfig{
			Address:         "0.0.0.0:8080",
			RefreshInterval: 5 * time.Second,
			LogHistory:      200,
			MetricsHistory:  200,
		},
		Channels: ChannelsConfig{
			BookBuffer:     1024,
			TradeBuffer:    1024,
			AlertBuffer:    128,
			FrameQueueWarn: 1000,
		},
		Reader: ReaderConfig{
			HandshakeTimeout:  10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      5 * time.Second,
			PingInterval:      15 * time.Second,
			ReconnectInterval: 5 * time.Second,
		},
		Processor: ProcessorConfig{
			MaxDepth:      MaxBookDepth,
			DepthInterval: 10 * time.Second,
		},
		Writer: WriterConfig{
			Kafka: KafkaConfig{
				BookTopic:    "bookflow.books",
				TradeTopic:   "bookflow.trades",
				AlertTopic:   "bookflow.alerts",
				BatchSize:    100,
				BatchTimeout: time.Second,
			},
		},
		Source: SourceConfig{
			Kraken: KrakenSourceConfig{
				URL:  "wss://ws.kraken.com",
				Book: KrakenBookConfig{Depth: 10},
			},
		},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

// LoadConfig reads path, or the APP_ENV specific variant next to it when one
// exists, applies environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	path = resolveConfigPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := defaults()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyEnvOverrides(config *Config) {
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		var brokers []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		config.Writer.Kafka.Brokers = brokers
	}

	if config.Metrics.CloudWatch.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Metrics.CloudWatch.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Metrics.CloudWatch.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Metrics.CloudWatch.Region = strings.TrimSpace(v)
		}
	}

	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		config.Logging.Level = v
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Bookflow.Name == "" {
		return fmt.Errorf("bookflow.name is required")
	}
	if cfg.Bookflow.Version == "" {
		return fmt.Errorf("bookflow.version is required")
	}

	if cfg.Channels.BookBuffer <= 0 {
		return fmt.Errorf("channels.book_buffer must be greater than 0")
	}
	if cfg.Channels.TradeBuffer <= 0 {
		return fmt.Errorf("channels.trade_buffer must be greater than 0")
	}
	if cfg.Channels.AlertBuffer <= 0 {
		return fmt.Errorf("channels.alert_buffer must be greater than 0")
	}

	if cfg.Reader.HandshakeTimeout <= 0 {
		return fmt.Errorf("reader.handshake_timeout must be greater than 0")
	}
	if cfg.Reader.PingInterval <= 0 {
		return fmt.Errorf("reader.ping_interval must be greater than 0")
	}
	if cfg.Reader.ReadTimeout > 0 && cfg.Reader.ReadTimeout <= cfg.Reader.PingInterval {
		return fmt.Errorf("reader.read_timeout must be greater than reader.ping_interval")
	}
	if cfg.Reader.ReconnectInterval <= 0 {
		return fmt.Errorf("reader.reconnect_interval must be greater than 0")
	}

	if cfg.Processor.MaxDepth != MaxBookDepth {
		return fmt.Errorf("processor.max_depth must be %d, got %d", MaxBookDepth, cfg.Processor.MaxDepth)
	}

	kraken := cfg.Source.Kraken
	if kraken.Book.Enabled || kraken.Trade.Enabled {
		if kraken.URL == "" {
			return fmt.Errorf("source.kraken.url is required")
		}
	}
	if kraken.Book.Enabled {
		if kraken.Book.Depth != cfg.Processor.MaxDepth {
			return fmt.Errorf("source.kraken.book.depth %d must equal processor.max_depth %d", kraken.Book.Depth, cfg.Processor.MaxDepth)
		}
		if err := validateSymbols("source.kraken.book.symbols", kraken.Book.Symbols); err != nil {
			return err
		}
	}
	if kraken.Trade.Enabled {
		if err := validateSymbols("source.kraken.trade.symbols", kraken.Trade.Symbols); err != nil {
			return err
		}
	}

	if cfg.Writer.Kafka.Enabled {
		if len(cfg.Writer.Kafka.Brokers) == 0 {
			return fmt.Errorf("writer.kafka.brokers is required when kafka is enabled")
		}
		if cfg.Writer.Kafka.BookTopic == "" || cfg.Writer.Kafka.TradeTopic == "" || cfg.Writer.Kafka.AlertTopic == "" {
			return fmt.Errorf("writer.kafka topics are required when kafka is enabled")
		}
	}

	if cfg.Metrics.CloudWatch.Enabled && cfg.Metrics.CloudWatch.Namespace == "" {
		return fmt.Errorf("metrics.cloudwatch.namespace is required when cloudwatch is enabled")
	}

	return nil
}

func validateSymbols(field string, symbols []string) error {
	if len(symbols) == 0 {
		return fmt.Errorf("%s must not be empty", field)
	}
	for _, s := range symbols {
		if _, err := models.ParseInstrument(s); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}
	return nil
}

// Instruments parses symbols that already passed validation.
func Instruments(symbols []string) []models.Instrument {
	out := make([]models.Instrument, 0, len(symbols))
	for _, s := range symbols {
		if inst, err := models.ParseInstrument(s); err == nil {
			out = append(out, inst)
		}
	}
	return out
}
