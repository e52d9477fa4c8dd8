package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// RateLimit caps reads against a chain's RPC provider.
type RateLimit struct {
	MaxRequests int `mapstructure:"max_requests"`
	WindowMs    int `mapstructure:"window_ms"`
}

// Chain holds one chain's connection and tuning settings.
type Chain struct {
	ChainID       uint64     `mapstructure:"chain_id"`
	RPCUrl        string     `mapstructure:"rpc_url"`
	PrivateKey    string     `mapstructure:"private_key"`
	NativeWrapper string     `mapstructure:"native_wrapper"`
	GasPrice      *int64     `mapstructure:"gas_price"`
	GasLimit      *uint64    `mapstructure:"gas_limit"`
	RateLimit     *RateLimit `mapstructure:"rate_limit"`
}

// Portals holds the external service endpoints.
type Portals struct {
	RouterURL     string `mapstructure:"router_url"`
	OrderBookURL  string `mapstructure:"order_book_url"`
	MetaURL       string `mapstructure:"meta_url"`
	SettlementHex string `mapstructure:"settlement_address"`
	TimeoutSec    int    `mapstructure:"timeout_sec"`
}

// Config holds the application configuration
type Config struct {
	Chains      map[string]Chain `mapstructure:"chains"`
	Portals     Portals          `mapstructure:"portals"`
	SlippageBps uint32           `mapstructure:"slippage_bps"`
	AutoConfirm bool             `mapstructure:"auto_confirm"`
}

var globalConfig *Config

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	viper.SetConfigName(".vault-solver")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(".")

	// Set default values
	viper.SetDefault("slippage_bps", 50)
	viper.SetDefault("portals.timeout_sec", 15)

	// Read from environment variables
	viper.SetEnvPrefix("VAULT_SOLVER")
	viper.AutomaticEnv()

	// Read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.SlippageBps >= 10000 {
		return nil, fmt.Errorf("slippage_bps must be below 10000, got %d", cfg.SlippageBps)
	}

	globalConfig = cfg
	return cfg, nil
}

// ChainByName returns the named chain's settings.
func (c *Config) ChainByName(name string) (Chain, error) {
	chain, exists := c.Chains[name]
	if !exists {
		return Chain{}, fmt.Errorf("chain %s not configured", name)
	}
	if chain.RPCUrl == "" {
		return Chain{}, fmt.Errorf("RPC URL not configured for chain %s", name)
	}
	return chain, nil
}

// Get returns the global configuration
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		return cfg
	}
	return globalConfig
}

// Set updates the global configuration
func Set(cfg *Config) {
	globalConfig = cfg
}
