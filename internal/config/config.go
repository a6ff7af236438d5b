// Package config loads docnum configuration from YAML and DOCNUM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. DOCNUM_DATABASE_DSN.
const EnvPrefix = "DOCNUM"

// Config represents the application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Numbering NumberingConfig `mapstructure:"numbering"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
}

// IsDevelopment reports whether the logger should use development output.
func (c AppConfig) IsDevelopment() bool { return c.Env == "development" }

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	MetricsPort     int           `mapstructure:"metrics_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the API listen address.
func (c ServerConfig) Addr() string { return fmt.Sprintf(":%d", c.Port) }

// MetricsAddr returns the listen address of the metrics endpoint.
func (c ServerConfig) MetricsAddr() string { return fmt.Sprintf(":%d", c.MetricsPort) }

type DatabaseConfig struct {
	DSN              string        `mapstructure:"dsn"`
	MaxConns         int32         `mapstructure:"max_conns"`
	MinConns         int32         `mapstructure:"min_conns"`
	MaxConnLifetime  time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `mapstructure:"max_conn_idle_time"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
	AutoMigrate      bool          `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Recycle pool backends.
const (
	RecycleBackendPostgres = "postgres"
	RecycleBackendRedis    = "redis"
)

type NumberingConfig struct {
	TemplateLength     int             `mapstructure:"template_length"`
	RetryBudget        int             `mapstructure:"retry_budget"`
	StrictPrefixPolicy bool            `mapstructure:"strict_prefix_policy"`
	ReservedPrefix     string          `mapstructure:"reserved_prefix"`
	SequenceStrategy   string          `mapstructure:"sequence_strategy"`
	RangeSize          int64           `mapstructure:"range_size"`
	RecycleBackend     string          `mapstructure:"recycle_backend"`
	RecordTable        string          `mapstructure:"record_table"`
	RecordColumn       string          `mapstructure:"record_column"`
	Patterns           []PatternConfig `mapstructure:"patterns"`
}

// PatternConfig binds one office to its template.
type PatternConfig struct {
	Office   string `mapstructure:"office"`
	Template string `mapstructure:"template"`
}

// PatternMap returns the office to template mapping.
// A repeated office is an error; the last entry would otherwise win silently.
func (c NumberingConfig) PatternMap() (map[string]string, error) {
	out := make(map[string]string, len(c.Patterns))
	for _, p := range c.Patterns {
		if _, dup := out[p.Office]; dup {
			return nil, fmt.Errorf("office %q configured more than once", p.Office)
		}
		out[p.Office] = p.Template
	}
	return out, nil
}

type WorkerConfig struct {
	PurgeSchedule    string        `mapstructure:"purge_schedule"`
	RecycleRetention time.Duration `mapstructure:"recycle_retention"`
	GaugeSchedule    string        `mapstructure:"gauge_schedule"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "production")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)
	v.SetDefault("database.statement_timeout", 5*time.Second)
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.key_prefix", "docnum")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)

	v.SetDefault("numbering.template_length", 13)
	v.SetDefault("numbering.retry_budget", 5)
	v.SetDefault("numbering.strict_prefix_policy", false)
	v.SetDefault("numbering.reserved_prefix", "XX")
	v.SetDefault("numbering.sequence_strategy", "strict")
	v.SetDefault("numbering.range_size", 50)
	v.SetDefault("numbering.recycle_backend", RecycleBackendPostgres)
	v.SetDefault("numbering.record_table", "case_law_documents")
	v.SetDefault("numbering.record_column", "document_number")

	v.SetDefault("worker.purge_schedule", "@daily")
	v.SetDefault("worker.recycle_retention", 90*24*time.Hour)
	v.SetDefault("worker.gauge_schedule", "@every 1m")
}

// Load reads configFile (optional when empty) and applies environment overrides.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that do not depend on the pattern grammar;
// templates are checked when the registry is built.
func (c *Config) Validate() error {
	var errs []error
	if c.Numbering.TemplateLength <= 0 {
		errs = append(errs, fmt.Errorf("numbering.template_length must be positive"))
	}
	if c.Numbering.RetryBudget <= 0 {
		errs = append(errs, fmt.Errorf("numbering.retry_budget must be positive"))
	}
	if len(c.Numbering.Patterns) == 0 {
		errs = append(errs, fmt.Errorf("numbering.patterns must configure at least one office"))
	}
	switch c.Numbering.RecycleBackend {
	case RecycleBackendPostgres:
	case RecycleBackendRedis:
		if c.Redis.URL == "" {
			errs = append(errs, fmt.Errorf("redis.url is required for the redis recycle backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown numbering.recycle_backend %q", c.Numbering.RecycleBackend))
	}
	if c.Worker.RecycleRetention < 0 {
		errs = append(errs, fmt.Errorf("worker.recycle_retention must not be negative"))
	}
	return errors.Join(errs...)
}
