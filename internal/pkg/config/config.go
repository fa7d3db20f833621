package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  int           `mapstructure:"read_timeout"`
	WriteTimeout int           `mapstructure:"write_timeout"`
	RouteTimeout time.Duration `mapstructure:"route_timeout"`
}

// StoreConfig selects the Safety Store backend.
type StoreConfig struct {
	Driver  string `mapstructure:"driver"` // postgres | csv
	DataDir string `mapstructure:"data_dir"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	Enabled      bool   `mapstructure:"enabled"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// ProviderConfig configures the GraphHopper routing and geocoding API.
type ProviderConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
}

// EngineConfig tunes the detour heuristic.
type EngineConfig struct {
	MaxOverheadFraction     float64       `mapstructure:"max_overhead_fraction"`
	BufferRadiusMeters      float64       `mapstructure:"buffer_radius_meters"`
	ExclusionRadiusMeters   float64       `mapstructure:"exclusion_radius_meters"`
	OutsidePreferredPenalty float64       `mapstructure:"outside_preferred_penalty"`
	Heuristic               string        `mapstructure:"heuristic"`
	MaxConcurrency          int           `mapstructure:"max_concurrency"`
	CandidateTimeout        time.Duration `mapstructure:"candidate_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: SAFEWALK_PROVIDER_API_KEY → provider.api_key
	v.SetEnvPrefix("SAFEWALK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// LOG_LEVEL without prefix is still honoured.
	_ = v.BindEnv("log.level", "SAFEWALK_LOG_LEVEL", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 15)
	v.SetDefault("server.route_timeout", 12*time.Second)
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.data_dir", "./data")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "safewalk")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "safewalk")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.otlp_endpoint", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "safety-map")
	v.SetDefault("provider.base_url", "https://graphhopper.com/api/1")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.timeout", 5*time.Second)
	v.SetDefault("provider.rate_per_second", 10.0)
	v.SetDefault("provider.burst", 5)
	v.SetDefault("engine.max_overhead_fraction", 0.2)
	v.SetDefault("engine.buffer_radius_meters", 500.0)
	v.SetDefault("engine.exclusion_radius_meters", 200.0)
	v.SetDefault("engine.outside_preferred_penalty", 0.5)
	v.SetDefault("engine.heuristic", "distance")
	v.SetDefault("engine.max_concurrency", 4)
	v.SetDefault("engine.candidate_timeout", 8*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Server.RouteTimeout <= 0 {
		errs = append(errs, "server.route_timeout must be positive")
	}

	switch c.Store.Driver {
	case "postgres":
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.User == "" {
			errs = append(errs, "database.user is required")
		}
		if c.Database.DBName == "" {
			errs = append(errs, "database.dbname is required")
		}
	case "csv":
		if c.Store.DataDir == "" {
			errs = append(errs, "store.data_dir is required for the csv driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be postgres or csv, got %q", c.Store.Driver))
	}

	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}

	if c.Provider.BaseURL == "" {
		errs = append(errs, "provider.base_url is required")
	}
	if c.Provider.Timeout <= 0 {
		errs = append(errs, "provider.timeout must be positive")
	}
	if c.Provider.RatePerSecond < 0 {
		errs = append(errs, "provider.rate_per_second must not be negative")
	}

	e := c.Engine
	if e.MaxOverheadFraction < 0 {
		errs = append(errs, "engine.max_overhead_fraction must not be negative")
	}
	if e.BufferRadiusMeters <= 0 {
		errs = append(errs, "engine.buffer_radius_meters must be positive")
	}
	if e.ExclusionRadiusMeters < 0 {
		errs = append(errs, "engine.exclusion_radius_meters must not be negative")
	}
	if e.OutsidePreferredPenalty <= 0 || e.OutsidePreferredPenalty > 1 {
		errs = append(errs, fmt.Sprintf("engine.outside_preferred_penalty must be in (0, 1], got %v", e.OutsidePreferredPenalty))
	}
	if e.Heuristic != "distance" && e.Heuristic != "badness" {
		errs = append(errs, fmt.Sprintf("engine.heuristic must be distance or badness, got %q", e.Heuristic))
	}
	if e.MaxConcurrency <= 0 {
		errs = append(errs, "engine.max_concurrency must be positive")
	}
	if e.CandidateTimeout <= 0 {
		errs = append(errs, "engine.candidate_timeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
