// Package config loads and validates the ledger daemon configuration.
// Values come from a YAML file, overridden by DAT_LEDGER_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"

	"github.com/DataStream-Network/dat_ledger/pkg/logger"
)

// DefaultPath is consulted when no explicit config path is given.
var DefaultPath = filepath.Join("config", "datledger.yaml")

// Config is the full daemon configuration.
type Config struct {
	Ledger  LedgerConfig         `yaml:"ledger"`
	Node    NodeConfig           `yaml:"node"`
	Server  ServerConfig         `yaml:"server"`
	Storage StorageConfig        `yaml:"storage"`
	Logging logger.LoggingConfig `yaml:"logging"`
}

// LedgerConfig holds the platform settlement parameters and genesis state.
type LedgerConfig struct {
	// Treasury receives the platform fee of every settlement.
	Treasury string `yaml:"treasury" env:"DAT_LEDGER_TREASURY"`
	// FeeBps is the platform fee in basis points, 0 to 10000.
	FeeBps uint32 `yaml:"fee_bps" env:"DAT_LEDGER_FEE_BPS"`
	// Admin is the principal allowed to change platform configuration
	// and credit deposits.
	Admin string `yaml:"admin" env:"DAT_LEDGER_ADMIN"`
	// GenesisBalances pre-funds accounts at first start.
	GenesisBalances map[string]uint64 `yaml:"genesis_balances"`
}

// NodeConfig controls submission intake and block sealing.
type NodeConfig struct {
	BlockInterval       time.Duration `yaml:"block_interval" env:"DAT_LEDGER_BLOCK_INTERVAL"`
	MaxBlockSubmissions int           `yaml:"max_block_submissions"`
	IntakeRate          float64       `yaml:"intake_rate"`
	IntakeBurst         int           `yaml:"intake_burst"`
	// Retention bounds how long resolved submission records are kept.
	Retention         time.Duration `yaml:"retention"`
	RetentionSchedule string        `yaml:"retention_schedule"`
}

// ServerConfig controls the operational HTTP surface.
type ServerConfig struct {
	ListenAddr   string        `yaml:"listen_addr" env:"DAT_LEDGER_LISTEN_ADDR"`
	JWTSecret    string        `yaml:"jwt_secret" env:"DAT_LEDGER_JWT_SECRET"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	RateLimit    float64       `yaml:"rate_limit"`
	RateBurst    int           `yaml:"rate_burst"`
}

// StorageConfig selects the durable store behind the journal and the
// submission records.
type StorageConfig struct {
	Driver      string `yaml:"driver" env:"DAT_LEDGER_STORAGE_DRIVER"`
	PostgresDSN string `yaml:"postgres_dsn" env:"DAT_LEDGER_POSTGRES_DSN"`
}

// Load reads the config from DAT_LEDGER_CONFIG or the default path.
func Load() (*Config, error) {
	path := os.Getenv("DAT_LEDGER_CONFIG")
	if path == "" {
		path = DefaultPath
	}
	return LoadFromPath(path)
}

// LoadFromPath reads, env-overrides, and validates a config file.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads the configured file; when it is absent the compiled
// defaults (plus env overrides) are used instead.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		cfg = Default()
		_ = applyEnv(cfg)
	}
	return cfg
}

func applyEnv(cfg *Config) error {
	if err := envdecode.Decode(cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return err
	}
	return nil
}

// Default returns the development configuration: memory storage, local
// listener, treasury and admin on placeholder principals.
func Default() *Config {
	return &Config{
		Ledger: LedgerConfig{
			Treasury: "dat1treasury",
			FeeBps:   250,
			Admin:    "dat1admin",
		},
		Node: NodeConfig{
			BlockInterval:       500 * time.Millisecond,
			MaxBlockSubmissions: 256,
			IntakeRate:          200,
			IntakeBurst:         400,
			Retention:           24 * time.Hour,
			RetentionSchedule:   "0 */10 * * * *",
		},
		Server: ServerConfig{
			ListenAddr:   ":8571",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			RateLimit:    50,
			RateBurst:    100,
		},
		Storage: StorageConfig{
			Driver: "memory",
		},
		Logging: logger.LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			FilePrefix: "datledgerd",
		},
	}
}

// Validate rejects configurations the ledger cannot run with.
func (c *Config) Validate() error {
	if c.Ledger.Treasury == "" {
		return fmt.Errorf("ledger: treasury is required")
	}
	if c.Ledger.FeeBps > 10000 {
		return fmt.Errorf("ledger: fee_bps %d exceeds 10000", c.Ledger.FeeBps)
	}
	if c.Node.BlockInterval <= 0 {
		return fmt.Errorf("node: block_interval must be positive")
	}
	if c.Node.MaxBlockSubmissions <= 0 {
		return fmt.Errorf("node: max_block_submissions must be positive")
	}
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage: postgres driver requires postgres_dsn")
		}
	default:
		return fmt.Errorf("storage: unknown driver %q", c.Storage.Driver)
	}
	return nil
}
