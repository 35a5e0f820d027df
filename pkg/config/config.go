// Package config loads and validates the JSON configuration file that
// drives the sell engine: broker and feed connection parameters, per-day
// strategy pacing constants, and which optional modules are enabled.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is the full, validated configuration tree.
type Config struct {
	Trading       TradingConfig       `json:"trading"`
	Market        MarketConfig        `json:"market"`
	Strategy      StrategyConfig      `json:"strategy"`
	Modules       ModulesConfig       `json:"modules"`
	ModulesConfig ModulesConfigBlock  `json:"modules_config"`
}

// TradingConfig describes how to reach the order-routing bridge over
// NATS. The bridge subjects are optional; left blank they default to
// "ors.place", "ors.cancel", "ors.positions", "ors.orders", and
// "order.<account>.>" for the push subscription.
type TradingConfig struct {
	Host             string `json:"host"`
	ConfigSection    string `json:"config_section"`
	Port             int    `json:"port"`
	Account          string `json:"account"`
	Password         string `json:"password"`
	PlaceSubject     string `json:"place_subject,omitempty"`
	CancelSubject    string `json:"cancel_subject,omitempty"`
	PositionsSubject string `json:"positions_subject,omitempty"`
	OrdersSubject    string `json:"orders_subject,omitempty"`
	EventSubject     string `json:"event_subject,omitempty"`
	DryRun           bool   `json:"dry_run"`
}

// URL builds the NATS connection string the session dials.
func (t TradingConfig) URL() string {
	return fmt.Sprintf("nats://%s:%d", t.Host, t.Port)
}

// MarketConfig describes how to reach the market-data feed over NATS.
// TickSubject/TxSubject default to "md.tick.>" and "md.tx.>".
type MarketConfig struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	User        string `json:"user"`
	Password    string `json:"password"`
	TickSubject string `json:"tick_subject,omitempty"`
	TxSubject   string `json:"tx_subject,omitempty"`
}

// URL builds the NATS connection string the feed client dials.
func (m MarketConfig) URL() string {
	return fmt.Sprintf("nats://%s:%d", m.Host, m.Port)
}

// StrategyConfig holds the per-day strategy pacing constants and the
// watchlist location. CodeMin/CodeMax are optional; an empty bound
// means unbounded on that side.
type StrategyConfig struct {
	CSVPath         string  `json:"csv_path"`
	AccountID       string  `json:"account_id"`
	SellToMktRatio  float64 `json:"sell_to_mkt_ratio"`
	Phase1SellRatio float64 `json:"phase1_sell_ratio"`
	InputAmt        float64 `json:"input_amt"`
	HoldVol         int64   `json:"hold_vol"`
	CodeMin         string  `json:"code_min,omitempty"`
	CodeMax         string  `json:"code_max,omitempty"`
}

// ModulesConfig toggles which optional modules the orchestrator starts.
type ModulesConfig struct {
	Sell        bool `json:"sell"`
	BaseCancel  bool `json:"base_cancel"`
	UsageExample bool `json:"usage_example"`
}

// ModulesConfigBlock holds per-module configuration for the optional
// modules toggled in ModulesConfig.
type ModulesConfigBlock struct {
	UsageExample UsageExampleConfig `json:"usage_example"`
	BaseCancel   BaseCancelConfig   `json:"base_cancel"`
}

// UsageExampleConfig configures the usage-example module.
type UsageExampleConfig struct {
	CSVPath string `json:"csv_path"`
}

// BaseCancelConfig configures the limit-up guard / base-cancel module.
type BaseCancelConfig struct {
	OrderDir string `json:"order_dir"`
}

// Load reads and validates a JSON config file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Strategy.SellToMktRatio == 0 {
		cfg.Strategy.SellToMktRatio = 0.0
	}
	if cfg.Strategy.HoldVol == 0 {
		cfg.Strategy.HoldVol = 300
	}
	if cfg.Market.TickSubject == "" {
		cfg.Market.TickSubject = "md.tick.>"
	}
	if cfg.Market.TxSubject == "" {
		cfg.Market.TxSubject = "md.tx.>"
	}
}

// Validate checks that the fields required to boot the engine are
// present. Connectivity and CSV-readability failures surface later, at
// connect/load time, not here.
func (c *Config) Validate() error {
	if c.Trading.Host == "" {
		return fmt.Errorf("trading.host is required")
	}
	if c.Trading.Port <= 0 {
		return fmt.Errorf("trading.port must be positive")
	}
	if c.Trading.Account == "" {
		return fmt.Errorf("trading.account is required")
	}
	if c.Market.Host == "" {
		return fmt.Errorf("market.host is required")
	}
	if c.Market.Port <= 0 {
		return fmt.Errorf("market.port must be positive")
	}
	if c.Strategy.CSVPath == "" {
		return fmt.Errorf("strategy.csv_path is required")
	}
	if c.Strategy.AccountID == "" {
		return fmt.Errorf("strategy.account_id is required")
	}
	if c.Strategy.InputAmt <= 0 {
		return fmt.Errorf("strategy.input_amt must be positive")
	}
	if c.Modules.BaseCancel && c.ModulesConfig.BaseCancel.OrderDir == "" {
		return fmt.Errorf("modules_config.base_cancel.order_dir is required when modules.base_cancel is enabled")
	}
	if c.Modules.UsageExample && c.ModulesConfig.UsageExample.CSVPath == "" {
		return fmt.Errorf("modules_config.usage_example.csv_path is required when modules.usage_example is enabled")
	}
	return nil
}
