package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalConfig = `bookflow:
  name: "TestApp"
  version: "1.0"
channels:
  book_buffer: 1
  trade_buffer: 1
  alert_buffer: 1
reader:
  ping_interval: 1s
  read_timeout: 5s
processor:
  max_depth: 10
source:
  kraken:
    book:
      enabled: true
      depth: 10
      symbols: ["BTC/USD", "eth/usd"]
    trade:
      enabled: true
      symbols: ["BTC/USD"]
`

// writeTempConfig writes content to config.yml in a fresh directory and
// returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("APP_ENV", "")
	path := writeTempConfig(t, minimalConfig)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Bookflow.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Bookflow.Name)
	}
	if cfg.Source.Kraken.URL != "wss://ws.kraken.com" {
		t.Errorf("expected default url, got %s", cfg.Source.Kraken.URL)
	}
	if cfg.Reader.ReconnectInterval != 5*time.Second {
		t.Errorf("expected default reconnect interval, got %s", cfg.Reader.ReconnectInterval)
	}
	if cfg.Reader.PingInterval != time.Second {
		t.Errorf("unexpected ping interval: %s", cfg.Reader.PingInterval)
	}
	if cfg.Writer.Kafka.BookTopic != "bookflow.books" {
		t.Errorf("unexpected book topic: %s", cfg.Writer.Kafka.BookTopic)
	}

	insts := Instruments(cfg.Source.Kraken.Book.Symbols)
	if len(insts) != 2 || insts[1].String() != "ETH/USD" {
		t.Errorf("unexpected instruments: %v", insts)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	cases := []struct {
		name    string
		replace [2]string
		want    string
	}{
		{"missing name", [2]string{`name: "TestApp"`, `name: ""`}, "bookflow.name"},
		{"zero buffer", [2]string{"book_buffer: 1", "book_buffer: 0"}, "channels.book_buffer"},
		{"depth too large", [2]string{"max_depth: 10", "max_depth: 11"}, "processor.max_depth"},
		{"depth zero", [2]string{"max_depth: 10", "max_depth: 0"}, "processor.max_depth"},
		{"kraken depth", [2]string{"      depth: 10\n", "      depth: 20\n"}, "source.kraken.book.depth"},
		{"kraken depth 25", [2]string{"      depth: 10\n", "      depth: 25\n"}, "source.kraken.book.depth"},
		{"kraken depth 100", [2]string{"      depth: 10\n", "      depth: 100\n"}, "source.kraken.book.depth"},
		{"store shallower than checksum", [2]string{"max_depth: 10", "max_depth: 5"}, "processor.max_depth"},
		{"bad symbol", [2]string{`symbols: ["BTC/USD"]`, `symbols: ["BTCUSD"]`}, "source.kraken.trade.symbols"},
		{"read timeout", [2]string{"read_timeout: 5s", "read_timeout: 1s"}, "reader.read_timeout"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Setenv("APP_ENV", "")
			content := strings.Replace(minimalConfig, c.replace[0], c.replace[1], 1)
			if content == minimalConfig {
				t.Fatalf("replacement %q did not apply", c.replace[0])
			}
			_, err := LoadConfig(writeTempConfig(t, content))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), c.want) {
				t.Fatalf("error %q does not mention %q", err, c.want)
			}
		})
	}
}

func TestLoadConfigRejectsDeepBook(t *testing.T) {
	t.Setenv("APP_ENV", "")
	content := strings.Replace(minimalConfig, "max_depth: 10", "max_depth: 25", 1)
	content = strings.Replace(content, "      depth: 10\n", "      depth: 25\n", 1)

	_, err := LoadConfig(writeTempConfig(t, content))
	if err == nil {
		t.Fatal("expected a 25 level book to be rejected")
	}
	if !strings.Contains(err.Error(), "processor.max_depth") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadConfigTradeOnlyIgnoresBookDepth(t *testing.T) {
	t.Setenv("APP_ENV", "")
	content := strings.Replace(minimalConfig, "      enabled: true\n      depth: 10\n", "      enabled: false\n      depth: 25\n", 1)
	if content == minimalConfig {
		t.Fatal("replacement did not apply")
	}

	if _, err := LoadConfig(writeTempConfig(t, content)); err != nil {
		t.Fatalf("disabled book stream should not be depth checked: %v", err)
	}
}

func TestSampleConfig(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("LOG_LEVEL", "")

	cfg, err := LoadConfig("config.yml")
	if err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
	if cfg.Reader.ResyncOnChecksumMismatch {
		t.Error("sample config should leave checksum resync off")
	}
	if cfg.Processor.MaxDepth != MaxBookDepth || cfg.Source.Kraken.Book.Depth != MaxBookDepth {
		t.Errorf("unexpected depths: store %d, subscription %d", cfg.Processor.MaxDepth, cfg.Source.Kraken.Book.Depth)
	}
	if defaults().Reader.ResyncOnChecksumMismatch {
		t.Error("checksum resync should default to off")
	}
}

func TestKafkaRequiresBrokers(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("KAFKA_BROKERS", "")
	content := minimalConfig + "writer:\n  kafka:\n    enabled: true\n"

	if _, err := LoadConfig(writeTempConfig(t, content)); err == nil || !strings.Contains(err.Error(), "brokers") {
		t.Fatalf("expected brokers error, got %v", err)
	}

	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	cfg, err := LoadConfig(writeTempConfig(t, content))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if len(cfg.Writer.Kafka.Brokers) != 2 || cfg.Writer.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("unexpected brokers: %v", cfg.Writer.Kafka.Brokers)
	}
}

func TestCloudWatchEnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("AWS_REGION", "eu-central-1")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKID")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "SECRET")
	content := minimalConfig + "metrics:\n  cloudwatch:\n    enabled: true\n"

	cfg, err := LoadConfig(writeTempConfig(t, content))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	cw := cfg.Metrics.CloudWatch
	if cw.Region != "eu-central-1" || cw.AccessKeyID != "AKID" || cw.SecretAccessKey != "SECRET" {
		t.Errorf("unexpected cloudwatch config: %+v", cw)
	}
	if cw.Namespace != "Bookflow" {
		t.Errorf("expected default namespace, got %s", cw.Namespace)
	}
}

func TestEnvironmentSpecificConfig(t *testing.T) {
	path := writeTempConfig(t, minimalConfig)
	prod := strings.Replace(minimalConfig, `name: "TestApp"`, `name: "ProdApp"`, 1)
	prodPath := filepath.Join(filepath.Dir(path), "config.production.yml")
	if err := os.WriteFile(prodPath, []byte(prod), 0o600); err != nil {
		t.Fatalf("write prod config: %v", err)
	}

	t.Setenv("APP_ENV", "prod")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Bookflow.Name != "ProdApp" {
		t.Errorf("expected production config, got %s", cfg.Bookflow.Name)
	}

	t.Setenv("APP_ENV", "staging")
	cfg, err = LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Bookflow.Name != "TestApp" {
		t.Errorf("expected base config without staging file, got %s", cfg.Bookflow.Name)
	}
}

func TestAppEnvironment(t *testing.T) {
	cases := map[string]string{
		"":            EnvironmentDevelopment,
		"PROD":        EnvironmentProduction,
		" stagging ":  EnvironmentStaging,
		"integration": "integration",
	}
	for in, want := range cases {
		t.Setenv("APP_ENV", in)
		if got := AppEnvironment(); got != want {
			t.Errorf("AppEnvironment(%q) = %q, want %q", in, got, want)
		}
	}
	if !IsProductionLike(EnvironmentStaging) || IsProductionLike(EnvironmentDevelopment) {
		t.Error("unexpected IsProductionLike result")
	}
}

func TestLoadIPShards(t *testing.T) {
	content := `shards:
- ip: "10.0.0.1"
  book_symbols: ["BTC/USD"]
  trade_symbols: ["ETH/USD"]
- book_symbols: ["SOL/EUR"]
`
	path := filepath.Join(t.TempDir(), "shards.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	shards, err := LoadIPShards(path)
	if err != nil {
		t.Fatalf("LoadIPShards failed: %v", err)
	}
	if len(shards.Shards) != 2 {
		t.Fatalf("expected 2 shards, got %d", len(shards.Shards))
	}
	if shards.Shards[0].IP != "10.0.0.1" {
		t.Errorf("unexpected IP: %s", shards.Shards[0].IP)
	}
	if len(shards.Shards[1].TradeSymbols) != 0 {
		t.Errorf("unexpected trade symbols: %v", shards.Shards[1].TradeSymbols)
	}
}

func TestLoadIPShardsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad ip":     "shards:\n- ip: \"nope\"\n  book_symbols: [\"BTC/USD\"]\n",
		"bad symbol": "shards:\n- book_symbols: [\"BTCUSD\"]\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "shards.yml")
			if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
				t.Fatalf("write temp file: %v", err)
			}
			if _, err := LoadIPShards(path); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
