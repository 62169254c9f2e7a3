// Package config loads service configuration: .env first, then the YAML
// file, then CFD_* environment overrides, then defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"CfdLedger/internal/address"
	"CfdLedger/internal/core"
	"CfdLedger/internal/oracle"
	"CfdLedger/internal/persistence"
)

// Config is the complete service configuration.
type Config struct {
	Service     ServiceConfig     `yaml:"service"`
	Storage     StorageConfig     `yaml:"storage"`
	NATS        NATSConfig        `yaml:"nats"`
	Server      ServerConfig      `yaml:"server"`
	ClickHouse  ClickHouseConfig  `yaml:"clickhouse"`
	Market      MarketConfig      `yaml:"market"`
	Core        CoreConfig        `yaml:"core"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Snapshot    SnapshotConfig    `yaml:"snapshot"`
	Authority   AuthorityConfig   `yaml:"authority"`
}

type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

type StorageConfig struct {
	Driver       string `yaml:"driver"` // postgres | sqlite
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type NATSConfig struct {
	URL        string        `yaml:"url"` // empty disables NATS ingestion and publishing
	Consumer   string        `yaml:"consumer"`
	MaxDeliver int           `yaml:"max_deliver"`
	AckWait    time.Duration `yaml:"ack_wait"`
	MaxAge     time.Duration `yaml:"max_age"`
}

type ServerConfig struct {
	GRPCAddr    string  `yaml:"grpc_addr"`
	HTTPAddr    string  `yaml:"http_addr"`
	MetricsAddr string  `yaml:"metrics_addr"`
	RateLimit   float64 `yaml:"rate_limit"` // command submissions per second
	RateBurst   int     `yaml:"rate_burst"`
}

type ClickHouseConfig struct {
	DSN           string        `yaml:"dsn"` // empty disables the analytics sink
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

type MarketConfig struct {
	PriceSource string `yaml:"price_source"` // mock | aggregator
	PriceSymbol string `yaml:"price_symbol"`
	PriceClass  string `yaml:"price_class"`
}

type CoreConfig struct {
	PersistChanSize     int       `yaml:"persist_chan_size"`
	ProjectionChanSize  int       `yaml:"projection_chan_size"`
	IdempotencyCapacity int       `yaml:"idempotency_capacity"`
	GlobalCheckInterval int64     `yaml:"global_check_interval"`
	GenesisTime         time.Time `yaml:"genesis_time"`
}

type PersistenceConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

type SnapshotConfig struct {
	Interval   int64         `yaml:"interval"` // sequences between snapshots, 0 disables
	Keep       int           `yaml:"keep"`
	CheckEvery time.Duration `yaml:"check_every"`
}

type AuthorityConfig struct {
	ProgramSeed string `yaml:"program_seed"`
	Operator    string `yaml:"operator"` // base58
}

// Load reads path, which may be empty to run on environment and defaults
// alone.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse YAML: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	setDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	str := map[string]*string{
		"CFD_LOG_LEVEL":      &cfg.Service.LogLevel,
		"CFD_STORAGE_DRIVER": &cfg.Storage.Driver,
		"CFD_STORAGE_DSN":    &cfg.Storage.DSN,
		"CFD_NATS_URL":       &cfg.NATS.URL,
		"CFD_GRPC_ADDR":      &cfg.Server.GRPCAddr,
		"CFD_HTTP_ADDR":      &cfg.Server.HTTPAddr,
		"CFD_METRICS_ADDR":   &cfg.Server.MetricsAddr,
		"CFD_CLICKHOUSE_DSN": &cfg.ClickHouse.DSN,
		"CFD_PRICE_SOURCE":   &cfg.Market.PriceSource,
		"CFD_PRICE_SYMBOL":   &cfg.Market.PriceSymbol,
		"CFD_PRICE_CLASS":    &cfg.Market.PriceClass,
		"CFD_PROGRAM_SEED":   &cfg.Authority.ProgramSeed,
		"CFD_OPERATOR":       &cfg.Authority.Operator,
	}
	for name, dst := range str {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("CFD_SNAPSHOT_INTERVAL"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: CFD_SNAPSHOT_INTERVAL: %w", err)
		}
		cfg.Snapshot.Interval = n
	}
	if v := os.Getenv("CFD_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: CFD_RATE_LIMIT: %w", err)
		}
		cfg.Server.RateLimit = f
	}
	if v := os.Getenv("CFD_GENESIS_TIME"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fmt.Errorf("config: CFD_GENESIS_TIME: %w", err)
		}
		cfg.Core.GenesisTime = t
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Service.Name == "" {
		cfg.Service.Name = "cfdledger"
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = "info"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "cfdledger.db"
	}
	if cfg.Storage.MaxOpenConns <= 0 {
		cfg.Storage.MaxOpenConns = 20
	}
	if cfg.NATS.Consumer == "" {
		cfg.NATS.Consumer = "cfdledger-commands"
	}
	if cfg.NATS.MaxDeliver <= 0 {
		cfg.NATS.MaxDeliver = 5
	}
	if cfg.NATS.AckWait <= 0 {
		cfg.NATS.AckWait = 30 * time.Second
	}
	if cfg.NATS.MaxAge <= 0 {
		cfg.NATS.MaxAge = 72 * time.Hour
	}
	if cfg.Server.GRPCAddr == "" {
		cfg.Server.GRPCAddr = ":9090"
	}
	if cfg.Server.HTTPAddr == "" {
		cfg.Server.HTTPAddr = ":8080"
	}
	if cfg.Server.MetricsAddr == "" {
		cfg.Server.MetricsAddr = ":9091"
	}
	if cfg.Server.RateLimit <= 0 {
		cfg.Server.RateLimit = 500
	}
	if cfg.Server.RateBurst <= 0 {
		cfg.Server.RateBurst = 100
	}
	if cfg.ClickHouse.BatchSize <= 0 {
		cfg.ClickHouse.BatchSize = 500
	}
	if cfg.ClickHouse.FlushInterval <= 0 {
		cfg.ClickHouse.FlushInterval = time.Second
	}
	if cfg.Market.PriceSource == "" {
		cfg.Market.PriceSource = string(core.PriceSourceMock)
	}
	if cfg.Market.PriceSymbol == "" {
		cfg.Market.PriceSymbol = "BTC"
	}
	if cfg.Market.PriceClass == "" {
		cfg.Market.PriceClass = oracle.AssetClassCrypto.String()
	}
	if cfg.Core.PersistChanSize <= 0 {
		cfg.Core.PersistChanSize = 1024
	}
	if cfg.Core.ProjectionChanSize <= 0 {
		cfg.Core.ProjectionChanSize = 2048
	}
	if cfg.Core.IdempotencyCapacity <= 0 {
		cfg.Core.IdempotencyCapacity = 1_000_000
	}
	if cfg.Core.GlobalCheckInterval <= 0 {
		cfg.Core.GlobalCheckInterval = 1000
	}
	if cfg.Core.GenesisTime.IsZero() {
		cfg.Core.GenesisTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if cfg.Persistence.BatchSize <= 0 {
		cfg.Persistence.BatchSize = 50
	}
	if cfg.Persistence.FlushInterval <= 0 {
		cfg.Persistence.FlushInterval = 10 * time.Millisecond
	}
	if cfg.Snapshot.Keep <= 0 {
		cfg.Snapshot.Keep = 3
	}
	if cfg.Snapshot.CheckEvery <= 0 {
		cfg.Snapshot.CheckEvery = time.Second
	}
	if cfg.Authority.ProgramSeed == "" {
		cfg.Authority.ProgramSeed = "cfd-clearing"
	}
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	if _, err := persistence.ParseDialect(c.Storage.Driver); err != nil {
		return fmt.Errorf("config: storage.driver: %w", err)
	}
	switch core.PriceSource(c.Market.PriceSource) {
	case core.PriceSourceMock, core.PriceSourceAggregator:
	default:
		return fmt.Errorf("config: market.price_source %q: want mock or aggregator", c.Market.PriceSource)
	}
	if _, err := oracle.ParseAssetClass(c.Market.PriceClass); err != nil {
		return fmt.Errorf("config: market.price_class: %w", err)
	}
	if err := oracle.ValidateAsset(c.Market.PriceSymbol, oracle.AssetClassCrypto); err != nil {
		return fmt.Errorf("config: market.price_symbol: %w", err)
	}
	if c.Authority.Operator == "" {
		return fmt.Errorf("config: authority.operator is required")
	}
	if _, err := address.Parse(c.Authority.Operator); err != nil {
		return fmt.Errorf("config: authority.operator: %w", err)
	}
	if c.Snapshot.Interval < 0 {
		return fmt.Errorf("config: snapshot.interval must not be negative")
	}
	return nil
}

// Dialect is the persistence dialect of the storage driver.
func (c *Config) Dialect() persistence.Dialect {
	d, _ := persistence.ParseDialect(c.Storage.Driver)
	return d
}

// CoreConfig builds the deterministic core parameters. Validate must have
// passed.
func (c *Config) CoreConfig() core.Config {
	cc := core.DefaultConfig()
	cc.Program = address.FromSeed(c.Authority.ProgramSeed)
	cc.Operator, _ = address.Parse(c.Authority.Operator)
	cc.PriceSource = core.PriceSource(c.Market.PriceSource)
	cc.PriceSymbol = c.Market.PriceSymbol
	cc.PriceClass, _ = oracle.ParseAssetClass(c.Market.PriceClass)
	cc.IdempotencyCapacity = c.Core.IdempotencyCapacity
	cc.GlobalCheckInterval = c.Core.GlobalCheckInterval
	return cc
}
