// Package config loads pgscope configuration from a YAML file with
// environment variable overrides.
//
// Only the database DSN is mandatory. The storage, discovery, and functions
// sections are optional collaborators — when absent, the corresponding
// inspectors degrade to empty results with a warning instead of failing
// the run.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"go.yaml.in/yaml/v3"
)

// DatabaseConfig holds connection settings for the analysed database.
// The DSN may carry either a privileged (service-role) or a restricted
// credential; inspectors that need catalog access degrade gracefully
// when the credential cannot read pg_catalog.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"` // defaults to "public"
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// StorageConfig holds object storage settings. Optional.
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Region    string `yaml:"region"`
}

// DiscoveryConfig tunes the schema discovery fallback chain.
type DiscoveryConfig struct {
	// RestURL is the base URL of the hosted data API, used to fetch the
	// auto-generated schema document when catalog access is unavailable.
	RestURL string `yaml:"rest_url"`
	// APIKey authenticates against the data API.
	APIKey string `yaml:"api_key"`
	// CandidatesFile optionally replaces the built-in candidate table list
	// used by the last-resort probing fallback.
	CandidatesFile string `yaml:"candidates_file"`
	// ProbeWorkers bounds the concurrency of existence probes. Defaults to 8.
	ProbeWorkers int `yaml:"probe_workers"`
}

// FunctionsConfig points at the local edge-function sources and the
// optional deployment management API.
type FunctionsConfig struct {
	Dir           string `yaml:"dir"`
	ManagementURL string `yaml:"management_url"`
	ManagementKey string `yaml:"management_key"`
}

// LogConfig mirrors logger.Config.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ServerConfig holds the optional report server settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Config is the full pgscope configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Functions FunctionsConfig `yaml:"functions"`
	Output    struct {
		Dir string `yaml:"dir"`
	} `yaml:"output"`
	Log    LogConfig    `yaml:"log"`
	Server ServerConfig `yaml:"server"`
}

// Load reads the YAML file at path (if non-empty), applies environment
// overrides, fills defaults, and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv lets environment variables override file values, so credentials
// can stay out of the config file.
func (c *Config) applyEnv() {
	setStr := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setStr(&c.Database.DSN, "PGSCOPE_DSN")
	setStr(&c.Database.Schema, "PGSCOPE_SCHEMA")
	setStr(&c.Storage.Endpoint, "PGSCOPE_STORAGE_ENDPOINT")
	setStr(&c.Storage.AccessKey, "PGSCOPE_STORAGE_ACCESS_KEY")
	setStr(&c.Storage.SecretKey, "PGSCOPE_STORAGE_SECRET_KEY")
	setStr(&c.Discovery.RestURL, "PGSCOPE_REST_URL")
	setStr(&c.Discovery.APIKey, "PGSCOPE_API_KEY")
	setStr(&c.Functions.Dir, "PGSCOPE_FUNCTIONS_DIR")
	setStr(&c.Functions.ManagementURL, "PGSCOPE_MGMT_URL")
	setStr(&c.Functions.ManagementKey, "PGSCOPE_MGMT_KEY")
	setStr(&c.Output.Dir, "PGSCOPE_OUTPUT_DIR")
	setStr(&c.Log.Level, "PGSCOPE_LOG_LEVEL")

	if v := os.Getenv("PGSCOPE_STORAGE_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Storage.UseSSL = b
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Database.Schema == "" {
		c.Database.Schema = "public"
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 10
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = 2
	}
	if c.Database.ConnectTimeout == 0 {
		c.Database.ConnectTimeout = 10 * time.Second
	}
	if c.Database.QueryTimeout == 0 {
		c.Database.QueryTimeout = 30 * time.Second
	}
	if c.Database.MaxConnLifetime == 0 {
		c.Database.MaxConnLifetime = 30 * time.Minute
	}
	if c.Database.MaxConnIdleTime == 0 {
		c.Database.MaxConnIdleTime = 5 * time.Minute
	}
	if c.Discovery.ProbeWorkers == 0 {
		c.Discovery.ProbeWorkers = 8
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "reports"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8090"
	}
}

// Validate checks the fatal preconditions: analysis cannot start without
// a database credential.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required (or set PGSCOPE_DSN)")
	}
	return nil
}

// StorageConfigured reports whether enough settings exist to reach the
// object storage backend.
func (c *Config) StorageConfigured() bool {
	return c.Storage.Endpoint != "" && c.Storage.AccessKey != ""
}

// ManagementConfigured reports whether the deployment management API is set up.
func (c *Config) ManagementConfigured() bool {
	return c.Functions.ManagementURL != ""
}
