package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/ghostnet-labs/ghostnet/entropy"
	"github.com/ghostnet-labs/ghostnet/logging"
)

// EntropyConfig sizes the block-hash history beyond the native window.
type EntropyConfig struct {
	HistoryDepth int64 `json:"history_depth" toml:"history_depth" yaml:"history_depth"`
	CacheSize    int   `json:"cache_size" toml:"cache_size" yaml:"cache_size"`
}

// FeedConfig enables the Postgres activity feed when DSN is set.
type FeedConfig struct {
	DSN       string `json:"dsn" toml:"dsn" yaml:"dsn"`
	QueueSize int    `json:"queue_size" toml:"queue_size" yaml:"queue_size"`
}

// TLSConfig holds PEM paths for the RPC listener. A CA turns on client
// certificate verification.
type TLSConfig struct {
	CACert   string `json:"ca_cert" toml:"ca_cert" yaml:"ca_cert"`
	NodeCert string `json:"node_cert" toml:"node_cert" yaml:"node_cert"`
	NodeKey  string `json:"node_key" toml:"node_key" yaml:"node_key"`
}

// Config holds all node configuration.
type Config struct {
	NodeID          string         `json:"node_id" toml:"node_id" yaml:"node_id"`
	DataDir         string         `json:"data_dir" toml:"data_dir" yaml:"data_dir"`
	RPCPort         int            `json:"rpc_port" toml:"rpc_port" yaml:"rpc_port"`
	RPCAuthToken    string         `json:"rpc_auth_token" toml:"rpc_auth_token" yaml:"rpc_auth_token"` // empty disables auth
	TLS             *TLSConfig     `json:"tls,omitempty" toml:"tls" yaml:"tls"`
	BlockIntervalMS int64          `json:"block_interval_ms" toml:"block_interval_ms" yaml:"block_interval_ms"`
	MaxBlockTxs     int            `json:"max_block_txs" toml:"max_block_txs" yaml:"max_block_txs"` // 0 means 500
	Validators      []string       `json:"validators" toml:"validators" yaml:"validators"`          // sequencer addresses
	Log             logging.Config `json:"log" toml:"log" yaml:"log"`
	Feed            FeedConfig     `json:"feed" toml:"feed" yaml:"feed"`
	Entropy         EntropyConfig  `json:"entropy" toml:"entropy" yaml:"entropy"`
	Genesis         GenesisConfig  `json:"genesis" toml:"genesis" yaml:"genesis"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:          "node0",
		DataDir:         "./data",
		RPCPort:         8545,
		BlockIntervalMS: 1000,
		MaxBlockTxs:     500,
		Log:             logging.Config{Level: "info"},
		Feed:            FeedConfig{QueueSize: 1024},
		Entropy: EntropyConfig{
			HistoryDepth: entropy.DefaultHistoryDepth,
			CacheSize:    entropy.DefaultCacheSize,
		},
		Genesis: GenesisConfig{
			ChainID:   "ghostnet-dev",
			NetworkID: 1,
			Alloc:     map[string]string{},
		},
	}
}

// BlockInterval returns the sequencer tick.
func (c *Config) BlockInterval() time.Duration {
	if c.BlockIntervalMS <= 0 {
		return time.Second
	}
	return time.Duration(c.BlockIntervalMS) * time.Millisecond
}

// Validate checks the fields a node cannot start without.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.RPCPort < 0 || c.RPCPort > 65535 {
		return fmt.Errorf("rpc_port %d out of range", c.RPCPort)
	}
	if c.Entropy.HistoryDepth < entropy.NativeWindow {
		return fmt.Errorf("entropy.history_depth must be >= %d", entropy.NativeWindow)
	}
	return c.Genesis.Validate()
}

// Load reads a config file from path. The format follows the extension:
// .toml, .yaml or .yml, anything else is JSON. Unset fields keep their
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to path, in the format chosen by the extension.
func Save(cfg *Config, path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		var sb strings.Builder
		err = toml.NewEncoder(&sb).Encode(cfg)
		data = []byte(sb.String())
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
