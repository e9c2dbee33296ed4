package config

import (
	"fmt"
	"net"
	"os"

	"gopkg.in/yaml.v3"
)

// IPShard binds a set of Kraken symbols to a local source IP. Each shard gets
// its own book and trade connections.
type IPShard struct {
	IP           string   `yaml:"ip"`
	BookSymbols  []string `yaml:"book_symbols"`
	TradeSymbols []string `yaml:"trade_symbols"`
}

// IPShards represents the full shard configuration.
type IPShards struct {
	Shards []IPShard `yaml:"shards"`
}

// LoadIPShards loads shard configuration from the given path.
func LoadIPShards(path string) (*IPShards, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read shards file: %w", err)
	}
	var cfg IPShards
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse shards file: %w", err)
	}
	for i, shard := range cfg.Shards {
		if shard.IP != "" && net.ParseIP(shard.IP) == nil {
			return nil, fmt.Errorf("shard %d: invalid ip %q", i, shard.IP)
		}
		if err := validateShardSymbols(i, "book_symbols", shard.BookSymbols); err != nil {
			return nil, err
		}
		if err := validateShardSymbols(i, "trade_symbols", shard.TradeSymbols); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

func validateShardSymbols(i int, field string, symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	if err := validateSymbols(field, symbols); err != nil {
		return fmt.Errorf("shard %d: %w", i, err)
	}
	return nil
}

// DefaultShards builds a single shard on the default interface from the
// symbols in cfg.
func DefaultShards(cfg *Config) *IPShards {
	return &IPShards{Shards: []IPShard{{
		BookSymbols:  cfg.Source.Kraken.Book.Symbols,
		TradeSymbols: cfg.Source.Kraken.Trade.Symbols,
	}}}
}
