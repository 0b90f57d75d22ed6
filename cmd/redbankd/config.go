package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Config captures the runtime settings for the ledger daemon.
type Config struct {
	ListenAddress string         `yaml:"listen"`
	LogLevel      string         `yaml:"log_level"`
	AuthToken     string         `yaml:"auth_token"`
	DataDir       string         `yaml:"data_dir"`
	GenesisPath   string         `yaml:"genesis"`
	PoolAddress   string         `yaml:"pool"`
	Upstream      UpstreamConfig `yaml:"upstream"`
	RateLimit     RateConfig     `yaml:"rate_limit"`
}

// UpstreamConfig points at the node API serving prices, balances and roles.
type UpstreamConfig struct {
	BaseURL        string `yaml:"base_url"`
	AuthToken      string `yaml:"auth_token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// RateConfig bounds per-client request rates on the API.
type RateConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// LoadConfig reads the YAML configuration from disk, applies environment
// overrides and validates the result. REDBANK_API_TOKEN and
// REDBANK_UPSTREAM_TOKEN override the file so secrets stay out of it.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ListenAddress: ":8545",
		LogLevel:      "info",
	}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if token := strings.TrimSpace(os.Getenv("REDBANK_API_TOKEN")); token != "" {
		cfg.AuthToken = token
	}
	if token := strings.TrimSpace(os.Getenv("REDBANK_UPSTREAM_TOKEN")); token != "" {
		cfg.Upstream.AuthToken = token
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8545"
	}
	cfg.LogLevel = strings.TrimSpace(cfg.LogLevel)
	cfg.AuthToken = strings.TrimSpace(cfg.AuthToken)
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	cfg.GenesisPath = strings.TrimSpace(cfg.GenesisPath)
	cfg.PoolAddress = strings.TrimSpace(cfg.PoolAddress)
	cfg.Upstream.BaseURL = strings.TrimSpace(cfg.Upstream.BaseURL)
	cfg.Upstream.AuthToken = strings.TrimSpace(cfg.Upstream.AuthToken)
	if cfg.RateLimit.PerSecond <= 0 {
		cfg.RateLimit.PerSecond = 20
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 40
	}
}

func (cfg *Config) validate() error {
	if cfg.AuthToken == "" {
		return fmt.Errorf("auth_token is required (or set REDBANK_API_TOKEN)")
	}
	if !common.IsHexAddress(cfg.PoolAddress) {
		return fmt.Errorf("pool %q is not a valid address", cfg.PoolAddress)
	}
	if cfg.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	return nil
}

// Pool returns the validated pool address.
func (cfg Config) Pool() common.Address {
	return common.HexToAddress(cfg.PoolAddress)
}

// UpstreamTimeout returns the configured upstream timeout with a default.
func (cfg Config) UpstreamTimeout() time.Duration {
	if cfg.Upstream.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second
}
