// Package config loads the node configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all node configuration.
type Config struct {
	Chain struct {
		ID              uint16 `yaml:"id"`
		FundAddress     string `yaml:"fund_address"`
		RouterAddress   string `yaml:"router_address"`
		MigratorAddress string `yaml:"migrator_address"`
		Owner           string `yaml:"owner"`
		PriceAuthority  string `yaml:"price_authority"`
		RelayAuthority  string `yaml:"relay_authority"`
		PurchaseToken   string `yaml:"purchase_token"`
	} `yaml:"chain"`

	Basket []BasketEntry `yaml:"basket"`

	Peers []Peer `yaml:"peers"`

	WrappedAssets []WrappedAsset `yaml:"wrapped_assets"`

	Fees []Fee `yaml:"fees"`

	Exchange struct {
		Mode  string `yaml:"mode"` // "noop" or "fixed"
		Rates []Rate `yaml:"rates"`
	} `yaml:"exchange"`

	NATS struct {
		URL string `yaml:"url"`
	} `yaml:"nats"`

	Postgres struct {
		DSN           string `yaml:"dsn"`
		MigrationsDir string `yaml:"migrations_dir"`
	} `yaml:"postgres"`

	HTTP struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"http"`

	Engine struct {
		BootstrapShares  uint64 `yaml:"bootstrap_shares"`
		DedupCacheSize   int    `yaml:"dedup_cache_size"`
		PersistBatchSize int    `yaml:"persist_batch_size"`
		PersistFlushMs   int    `yaml:"persist_flush_ms"`
		SnapshotCron     string `yaml:"snapshot_cron"`
	} `yaml:"engine"`
}

// BasketEntry configures one index constituent.
type BasketEntry struct {
	AssetContract string `yaml:"asset_contract"`
	HomeChain     uint16 `yaml:"home_chain"`
	Weight        uint64 `yaml:"weight"`
}

// Peer configures the counterpart contracts on another chain.
type Peer struct {
	Chain    uint16 `yaml:"chain"`
	Fund     string `yaml:"fund"`
	Router   string `yaml:"router"`
	Migrator string `yaml:"migrator"`
}

// WrappedAsset attests a remote token's local representation.
type WrappedAsset struct {
	HomeChain   uint16 `yaml:"home_chain"`
	HomeAddress string `yaml:"home_address"`
	Local       string `yaml:"local"`
}

// Fee is the static delivery fee to one target chain. TokenSurcharge
// is the extra cost for messages carrying a token transfer.
type Fee struct {
	Chain          uint16 `yaml:"chain"`
	Amount         uint64 `yaml:"amount"`
	TokenSurcharge uint64 `yaml:"token_surcharge"`
}

// Rate is one fixed conversion rate for the local exchange.
type Rate struct {
	TokenIn     string `yaml:"token_in"`
	TokenOut    string `yaml:"token_out"`
	Numerator   uint64 `yaml:"numerator"`
	Denominator uint64 `yaml:"denominator"`
}

// Load reads config from a YAML file, then applies environment
// variable overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := os.Getenv("BRIDGE_CHAIN_ID"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 16); err == nil {
			cfg.Chain.ID = uint16(id)
		}
	}
	if v := os.Getenv("BRIDGE_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("BRIDGE_POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("BRIDGE_HTTP_ADDR"); v != "" {
		cfg.HTTP.ListenAddr = v
	}
	if v := os.Getenv("BRIDGE_SNAPSHOT_CRON"); v != "" {
		cfg.Engine.SnapshotCron = v
	}

	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.Postgres.MigrationsDir == "" {
		cfg.Postgres.MigrationsDir = "migrations"
	}
	if cfg.HTTP.ListenAddr == "" {
		cfg.HTTP.ListenAddr = ":8080"
	}
	if cfg.Engine.BootstrapShares == 0 {
		cfg.Engine.BootstrapShares = 1_000_000
	}
	if cfg.Engine.DedupCacheSize == 0 {
		cfg.Engine.DedupCacheSize = 100_000
	}
	if cfg.Engine.PersistBatchSize == 0 {
		cfg.Engine.PersistBatchSize = 100
	}
	if cfg.Engine.PersistFlushMs == 0 {
		cfg.Engine.PersistFlushMs = 100
	}
	if cfg.Engine.SnapshotCron == "" {
		cfg.Engine.SnapshotCron = "@every 5m"
	}
	if cfg.Exchange.Mode == "" {
		cfg.Exchange.Mode = "noop"
	}

	return cfg, nil
}

// Validate checks the fields without usable defaults.
func (c *Config) Validate() error {
	if c.Chain.ID == 0 {
		return fmt.Errorf("chain.id is required")
	}
	if c.Chain.FundAddress == "" {
		return fmt.Errorf("chain.fund_address is required")
	}
	if c.Chain.RouterAddress == "" {
		return fmt.Errorf("chain.router_address is required")
	}
	if c.Chain.MigratorAddress == "" {
		return fmt.Errorf("chain.migrator_address is required")
	}
	if c.Chain.Owner == "" {
		return fmt.Errorf("chain.owner is required")
	}
	if c.Chain.PurchaseToken == "" {
		return fmt.Errorf("chain.purchase_token is required")
	}
	if c.Chain.RelayAuthority == "" {
		return fmt.Errorf("chain.relay_authority is required")
	}
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required")
	}
	switch c.Exchange.Mode {
	case "noop", "fixed":
	default:
		return fmt.Errorf("exchange.mode must be noop or fixed, got %q", c.Exchange.Mode)
	}
	for i, r := range c.Exchange.Rates {
		if r.Denominator == 0 {
			return fmt.Errorf("exchange.rates[%d].denominator must be positive", i)
		}
	}
	for i, e := range c.Basket {
		if e.AssetContract == "" {
			return fmt.Errorf("basket[%d].asset_contract is required", i)
		}
		if e.Weight == 0 {
			return fmt.Errorf("basket[%d].weight must be positive", i)
		}
	}
	return nil
}
