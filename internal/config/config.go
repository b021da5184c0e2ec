// Package config defines all configuration for the arbitrage core. Config
// is loaded from a YAML file (default: configs/config.yaml) with sensitive
// fields overridable via ARB_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun     bool             `mapstructure:"dry_run"`
	RelayDomains RelayDomainsConfig `mapstructure:"relay_domains"`
	RingBuffer RingBufferConfig `mapstructure:"ring_buffer"`
	Detector   DetectorConfig   `mapstructure:"detector"`
	Collectors CollectorsConfig `mapstructure:"collectors"`
	PriceOracle PriceOracleConfig `mapstructure:"price_oracle"`
	Cleanup    CleanupConfig    `mapstructure:"cleanup"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Dashboard  DashboardConfig  `mapstructure:"dashboard"`
}

// RelayDomainConfig configures one of the three relay domains (spec §4.C).
type RelayDomainConfig struct {
	SocketPath        string `mapstructure:"socket_path"`
	StrictValidation  bool   `mapstructure:"strict_validation"`
	Backpressure      string `mapstructure:"backpressure"` // "drop_oldest" | "disconnect"
	Topic             string `mapstructure:"topic"`        // "constant" | "by_source" | "by_field"
	MaxFrameSize      uint32 `mapstructure:"max_frame_size"`
	OutboundQueueSize int    `mapstructure:"outbound_queue_size"`
	AuditLog          bool   `mapstructure:"audit_log"`
}

// RelayDomainsConfig holds the per-domain relay settings.
type RelayDomainsConfig struct {
	MarketData RelayDomainConfig `mapstructure:"market_data"`
	Signal     RelayDomainConfig `mapstructure:"signal"`
	Execution  RelayDomainConfig `mapstructure:"execution"`
}

// RingConfig configures one ring-buffer transport instance (spec §4.B).
type RingConfig struct {
	Path        string `mapstructure:"path"`
	Capacity    int    `mapstructure:"capacity"`
	ElementSize uint32 `mapstructure:"element_size"`
}

// RingBufferConfig holds the ring-buffer paths used to fan market data from
// collectors into the market-data relay's producer task.
type RingBufferConfig struct {
	MarketData RingConfig `mapstructure:"market_data"`
}

// DetectorConfig mirrors arb.Thresholds plus the gas tracker window and the
// strategy id (spec §4.E).
type DetectorConfig struct {
	MinProfitUSD         float64 `mapstructure:"min_profit_usd"`
	MaxPositionPct       float64 `mapstructure:"max_position_pct"`
	GasCostUSD           float64 `mapstructure:"gas_cost_usd"`
	SlippageToleranceBps uint32  `mapstructure:"slippage_tolerance_bps"`
	GasTrackerWindow     int     `mapstructure:"gas_tracker_window"`
	StrategyID           uint16  `mapstructure:"strategy_id"`
}

// CollectorConfig configures one venue's WebSocket collector.
type CollectorConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	WSURL   string `mapstructure:"ws_url"`
	Symbols []string `mapstructure:"symbols"`
}

// CollectorsConfig holds one CollectorConfig per supported venue.
type CollectorsConfig struct {
	Binance CollectorConfig `mapstructure:"binance"`
	Kraken  CollectorConfig `mapstructure:"kraken"`
}

// PriceOracleConfig configures the REST token-price poller.
type PriceOracleConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	RequestsPerSecond float64      `mapstructure:"requests_per_second"`
	Tokens           []string      `mapstructure:"tokens"` // hex token addresses to track
}

// CleanupConfig controls pool-state staleness sweeps (spec §4.D).
type CleanupConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	MaxAge   time.Duration `mapstructure:"max_age"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DashboardConfig controls the web dashboard server.
type DashboardConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive/operational fields use env vars: ARB_DRY_RUN, ARB_PRICE_ORACLE_BASE_URL.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("ARB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if os.Getenv("ARB_DRY_RUN") == "true" || os.Getenv("ARB_DRY_RUN") == "1" {
		cfg.DryRun = true
	}
	if url := os.Getenv("ARB_PRICE_ORACLE_BASE_URL"); url != "" {
		cfg.PriceOracle.BaseURL = url
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	for name, d := range map[string]RelayDomainConfig{
		"market_data": c.RelayDomains.MarketData,
		"signal":      c.RelayDomains.Signal,
		"execution":   c.RelayDomains.Execution,
	} {
		if d.SocketPath == "" {
			return fmt.Errorf("relay_domains.%s.socket_path is required", name)
		}
		switch d.Backpressure {
		case "drop_oldest", "disconnect":
		default:
			return fmt.Errorf("relay_domains.%s.backpressure must be drop_oldest or disconnect", name)
		}
		switch d.Topic {
		case "constant", "by_source", "by_field":
		default:
			return fmt.Errorf("relay_domains.%s.topic must be constant, by_source, or by_field", name)
		}
	}
	if c.RingBuffer.MarketData.Capacity <= 0 {
		return fmt.Errorf("ring_buffer.market_data.capacity must be > 0")
	}
	if c.Detector.MinProfitUSD < 0 {
		return fmt.Errorf("detector.min_profit_usd must be >= 0")
	}
	if c.Detector.MaxPositionPct <= 0 || c.Detector.MaxPositionPct > 1 {
		return fmt.Errorf("detector.max_position_pct must be in (0, 1]")
	}
	if c.Cleanup.MaxAge <= 0 {
		return fmt.Errorf("cleanup.max_age must be > 0")
	}
	return nil
}
