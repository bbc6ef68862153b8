package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/riptide-lab/riptide/internal/core/aggregation"
	"github.com/riptide-lab/riptide/internal/core/sqlexpr"
)

// Config represents the top-level application config plus the resolved
// aggregation allow-list.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Engine   EngineConfig   `koanf:"engine"`
	Realtime RealtimeConfig `koanf:"realtime"`

	// Allowlist is populated by Load after resolving the enabled set and the
	// optional per-project file.
	Allowlist *aggregation.Allowlist `koanf:"-"`
}

type ServerConfig struct {
	Port int    `koanf:"port"`
	Host string `koanf:"host"`
	Mode string `koanf:"mode"` // debug | release
}

// DatabaseConfig is the metadata catalog holding continuous-aggregate
// definitions.
type DatabaseConfig struct {
	Type         string `koanf:"type"`
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

// EngineConfig is the analytics engine that materializes continuous aggregates
// and executes window queries.
type EngineConfig struct {
	Driver       string `koanf:"driver"`
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	QueryTimeout string `koanf:"query_timeout"` // parsed and validated on startup
}

type RealtimeConfig struct {
	Slide         string   `koanf:"slide"`
	Window        string   `koanf:"window"`
	TimeColumn    string   `koanf:"time_column"`
	EpochFunction string   `koanf:"epoch_function"`
	Aggregations  []string `koanf:"aggregations"`   // empty keeps the continuous-capable defaults
	AllowlistFile string   `koanf:"allowlist_file"` // optional per-project overrides
}

func (c RealtimeConfig) SlideDuration() time.Duration {
	d, _ := time.ParseDuration(c.Slide)
	return d
}

func (c RealtimeConfig) WindowDuration() time.Duration {
	d, _ := time.ParseDuration(c.Window)
	return d
}

func (c EngineConfig) QueryTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.QueryTimeout)
	return d
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be > 0")
	}
	if c.Database.MaxIdleConns <= 0 {
		return fmt.Errorf("database.max_idle_conns must be > 0")
	}
	if c.Database.Type != "" && c.Database.Type != "postgres" {
		return fmt.Errorf("unsupported database.type %q", c.Database.Type)
	}

	if c.Engine.Driver != "clickhouse" && c.Engine.Driver != "postgres" {
		return fmt.Errorf("unsupported engine.driver %q (must be clickhouse or postgres)", c.Engine.Driver)
	}
	if strings.TrimSpace(c.Engine.DSN) == "" {
		return fmt.Errorf("engine.dsn is required")
	}
	if c.Engine.MaxOpenConns <= 0 {
		return fmt.Errorf("engine.max_open_conns must be > 0")
	}
	if c.Engine.MaxIdleConns <= 0 {
		return fmt.Errorf("engine.max_idle_conns must be > 0")
	}
	timeout, err := time.ParseDuration(c.Engine.QueryTimeout)
	if err != nil {
		return fmt.Errorf("invalid engine.query_timeout %q: %w", c.Engine.QueryTimeout, err)
	}
	if timeout <= 0 {
		return fmt.Errorf("engine.query_timeout must be > 0")
	}

	slide, err := time.ParseDuration(c.Realtime.Slide)
	if err != nil {
		return fmt.Errorf("invalid realtime.slide %q: %w", c.Realtime.Slide, err)
	}
	if slide <= 0 {
		return fmt.Errorf("realtime.slide must be > 0")
	}
	window, err := time.ParseDuration(c.Realtime.Window)
	if err != nil {
		return fmt.Errorf("invalid realtime.window %q: %w", c.Realtime.Window, err)
	}
	if window < slide {
		return fmt.Errorf("realtime.window must be >= realtime.slide")
	}
	if _, err := sqlexpr.Column(c.Realtime.TimeColumn); err != nil {
		return fmt.Errorf("invalid realtime.time_column: %w", err)
	}
	if _, err := sqlexpr.Column(c.Realtime.EpochFunction); err != nil {
		return fmt.Errorf("invalid realtime.epoch_function: %w", err)
	}

	return nil
}

// Load parses config from file + env, validates it, then resolves the
// aggregation allow-list.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":             9090,
		"server.host":             "0.0.0.0",
		"server.mode":             "release",
		"database.type":           "postgres",
		"database.dsn":            "postgres://localhost:5432/riptide?sslmode=disable",
		"database.max_open_conns": 25,
		"database.max_idle_conns": 25,
		"database.auto_migrate":   true,
		"engine.driver":           "clickhouse",
		"engine.dsn":              "clickhouse://localhost:9000/default",
		"engine.max_open_conns":   10,
		"engine.max_idle_conns":   5,
		"engine.query_timeout":    "30s",
		"realtime.slide":          "1m",
		"realtime.window":         "1h",
		"realtime.time_column":    "_time",
		"realtime.epoch_function": "to_unixtime",
		"realtime.aggregations":   []string{},
		"realtime.allowlist_file": "",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("RIPTIDE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "RIPTIDE_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	enabled := aggregation.DefaultEnabled()
	if len(cfg.Realtime.Aggregations) > 0 {
		enabled = enabled[:0]
		for _, name := range cfg.Realtime.Aggregations {
			t, err := aggregation.ParseType(name)
			if err != nil {
				return nil, fmt.Errorf("invalid realtime.aggregations entry: %w", err)
			}
			enabled = append(enabled, t)
		}
	}

	allowlist, err := aggregation.LoadAllowlistFile(cfg.Realtime.AllowlistFile, enabled)
	if err != nil {
		return nil, fmt.Errorf("failed to load aggregation allowlist: %w", err)
	}
	cfg.Allowlist = allowlist

	return &cfg, nil
}
