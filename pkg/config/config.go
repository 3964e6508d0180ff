// Package config loads node configuration from a YAML file with environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/chronodrachma/elastic/pkg/core/ledger"
	"github.com/chronodrachma/elastic/pkg/core/types"
)

// Defaults for a fresh testnet ledger.
const (
	DefaultNetwork             = "elastic-testnet"
	DefaultInitialSupply       = 50_000_000 // Whole tokens.
	DefaultTargetPrice         = "1000000000000000000"
	DefaultRebaseInterval      = 86400
	DefaultMaxRebasePercentage = 10
	DefaultRebaseSchedule      = "0 */5 * * * *"
	DefaultListenAddr          = ":8645"
	DefaultBadgerPath          = "data/ledger"
	DefaultJournalPath         = "data/journal.db"

	maxDecimals = 18
)

// Config holds all node configuration.
type Config struct {
	Network string `yaml:"network"`
	Ledger  struct {
		InitialSupply       uint64 `yaml:"initial_supply"` // Whole tokens, scaled by Decimals.
		Decimals            *uint8 `yaml:"decimals"`
		GenesisHolder       string `yaml:"genesis_holder"`
		TargetPrice         string `yaml:"target_price"`
		RebaseInterval      uint64 `yaml:"rebase_interval"` // Seconds.
		MaxRebasePercentage uint8  `yaml:"max_rebase_percentage"`
	} `yaml:"ledger"`
	Operators []string `yaml:"operators"`
	Storage   struct {
		BadgerPath  string `yaml:"badger_path"` // Empty string in YAML is replaced by the default; use "memory" for an in-memory store.
		JournalPath string `yaml:"journal_path"`
	} `yaml:"storage"`
	RPC struct {
		Listen string `yaml:"listen"`
	} `yaml:"rpc"`
	Rebaser struct {
		Enabled     bool   `yaml:"enabled"`
		Schedule    string `yaml:"schedule"`
		KeyFile     string `yaml:"key_file"`
		PriceFile   string `yaml:"price_file"`
		StaticPrice string `yaml:"static_price"`
	} `yaml:"rebaser"`
	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file yields a config built from the
// environment and defaults alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"ELASTIC_NETWORK":        &c.Network,
		"ELASTIC_GENESIS_HOLDER": &c.Ledger.GenesisHolder,
		"ELASTIC_TARGET_PRICE":   &c.Ledger.TargetPrice,
		"ELASTIC_BADGER_PATH":    &c.Storage.BadgerPath,
		"ELASTIC_JOURNAL_PATH":   &c.Storage.JournalPath,
		"ELASTIC_RPC_LISTEN":     &c.RPC.Listen,
		"ELASTIC_REBASE_CRON":    &c.Rebaser.Schedule,
		"ELASTIC_OPERATOR_KEY":   &c.Rebaser.KeyFile,
		"ELASTIC_PRICE_FILE":     &c.Rebaser.PriceFile,
		"ELASTIC_STATIC_PRICE":   &c.Rebaser.StaticPrice,
		"ELASTIC_LOG_LEVEL":      &c.Log.Level,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("ELASTIC_OPERATORS"); v != "" {
		c.Operators = nil
		for _, op := range strings.Split(v, ",") {
			if op = strings.TrimSpace(op); op != "" {
				c.Operators = append(c.Operators, op)
			}
		}
	}
	if v := os.Getenv("ELASTIC_REBASE_INTERVAL"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("ELASTIC_REBASE_INTERVAL: %w", err)
		}
		c.Ledger.RebaseInterval = n
	}
	if v := os.Getenv("ELASTIC_REBASER_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ELASTIC_REBASER_ENABLED: %w", err)
		}
		c.Rebaser.Enabled = b
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Network == "" {
		c.Network = DefaultNetwork
	}
	if c.Ledger.InitialSupply == 0 {
		c.Ledger.InitialSupply = DefaultInitialSupply
	}
	if c.Ledger.Decimals == nil {
		d := types.DefaultDecimals
		c.Ledger.Decimals = &d
	}
	if c.Ledger.TargetPrice == "" {
		c.Ledger.TargetPrice = DefaultTargetPrice
	}
	if c.Ledger.RebaseInterval == 0 {
		c.Ledger.RebaseInterval = DefaultRebaseInterval
	}
	if c.Ledger.MaxRebasePercentage == 0 {
		c.Ledger.MaxRebasePercentage = DefaultMaxRebasePercentage
	}
	if c.Storage.BadgerPath == "" {
		c.Storage.BadgerPath = DefaultBadgerPath
	}
	if c.Storage.JournalPath == "" {
		c.Storage.JournalPath = DefaultJournalPath
	}
	if c.RPC.Listen == "" {
		c.RPC.Listen = DefaultListenAddr
	}
	if c.Rebaser.Schedule == "" {
		c.Rebaser.Schedule = DefaultRebaseSchedule
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks that all required fields are set and well-formed.
func (c *Config) Validate() error {
	if c.Ledger.GenesisHolder == "" {
		return fmt.Errorf("ledger.genesis_holder is required")
	}
	if _, err := c.Genesis(); err != nil {
		return err
	}
	if _, err := c.OperatorAddresses(); err != nil {
		return err
	}
	if len(c.Operators) == 0 {
		return fmt.Errorf("at least one operator is required")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Rebaser.Enabled {
		if c.Rebaser.KeyFile == "" {
			return fmt.Errorf("rebaser.key_file is required when the rebaser is enabled")
		}
		if c.Rebaser.PriceFile == "" && c.Rebaser.StaticPrice == "" {
			return fmt.Errorf("rebaser needs price_file or static_price")
		}
		if c.Rebaser.StaticPrice != "" {
			if _, err := types.ParseAmount(c.Rebaser.StaticPrice); err != nil {
				return fmt.Errorf("rebaser.static_price: %w", err)
			}
		}
	}
	return nil
}

// Decimals returns the configured display precision.
func (c *Config) Decimals() uint8 {
	if c.Ledger.Decimals == nil {
		return types.DefaultDecimals
	}
	return *c.Ledger.Decimals
}

// Genesis converts the ledger section into genesis parameters.
func (c *Config) Genesis() (ledger.Genesis, error) {
	holder, err := types.AddressFromHex(c.Ledger.GenesisHolder)
	if err != nil {
		return ledger.Genesis{}, fmt.Errorf("ledger.genesis_holder: %w", err)
	}
	target, err := types.ParseAmount(c.Ledger.TargetPrice)
	if err != nil {
		return ledger.Genesis{}, fmt.Errorf("ledger.target_price: %w", err)
	}
	if c.Decimals() > maxDecimals {
		return ledger.Genesis{}, fmt.Errorf("ledger.decimals %d exceeds %d", c.Decimals(), maxDecimals)
	}
	g := ledger.Genesis{
		Holder:              holder,
		InitialSupply:       types.NewAmountFromWhole(c.Ledger.InitialSupply, c.Decimals()),
		TargetPrice:         target,
		RebaseInterval:      c.Ledger.RebaseInterval,
		MaxRebasePercentage: c.Ledger.MaxRebasePercentage,
	}
	if err := ledger.ValidateGenesis(g); err != nil {
		return ledger.Genesis{}, fmt.Errorf("ledger: %w", err)
	}
	return g, nil
}

// OperatorAddresses parses the privileged operator list.
func (c *Config) OperatorAddresses() ([]types.Address, error) {
	out := make([]types.Address, 0, len(c.Operators))
	for i, s := range c.Operators {
		addr, err := types.AddressFromHex(s)
		if err != nil {
			return nil, fmt.Errorf("operators[%d]: %w", i, err)
		}
		out = append(out, addr)
	}
	return out, nil
}

// StaticPrice returns the configured fixed oracle price, or nil if unset.
func (c *Config) StaticPrice() (*uint256.Int, error) {
	if c.Rebaser.StaticPrice == "" {
		return nil, nil
	}
	return types.ParseAmount(c.Rebaser.StaticPrice)
}

// InMemoryStore reports whether the ledger store should live in memory.
func (c *Config) InMemoryStore() bool {
	return c.Storage.BadgerPath == "memory"
}
