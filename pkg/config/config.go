package config

import "time"

// Database type constants
const (
	// DatabaseTypeMongoDB is a MongoDB replica set or sharded cluster
	DatabaseTypeMongoDB = "mongodb"
	// DatabaseTypeMemory is the in-process store, for tests and local runs
	DatabaseTypeMemory  = "memory"
)

// Config is the root configuration of the document sync layer.
type Config struct {
	Service       ServiceConfig       `mapstructure:"service" yaml:"service"`
	Database      DatabaseConfig      `mapstructure:"database" yaml:"database"`
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability"`
	Sync          SyncConfig          `mapstructure:"sync" yaml:"sync"`
}

// ServiceConfig configures service identity metadata.
type ServiceConfig struct {
	Name        string `mapstructure:"name" yaml:"name"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// DatabaseConfig configures the document store.
type DatabaseConfig struct {
	Type               string        `mapstructure:"type" yaml:"type"` // mongodb, memory
	URL                string        `mapstructure:"url" yaml:"url"`
	DatabaseName       string        `mapstructure:"database_name" yaml:"database_name"`
	ConnectTimeout     time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	QueryTimeout       time.Duration `mapstructure:"query_timeout" yaml:"query_timeout"`
	TransactionTimeout time.Duration `mapstructure:"transaction_timeout" yaml:"transaction_timeout"`
}

// ObservabilityConfig configures logging, metrics and tracing.
type ObservabilityConfig struct {
	LogLevel          string  `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string  `mapstructure:"log_format" yaml:"log_format"` // json, text
	MetricsEnabled    bool    `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`
	TracingEnabled    bool    `mapstructure:"tracing_enabled" yaml:"tracing_enabled"`
	TracingEndpoint   string  `mapstructure:"tracing_endpoint" yaml:"tracing_endpoint"`
	TracingSampleRate float64 `mapstructure:"tracing_sample_rate" yaml:"tracing_sample_rate"`
}

// SyncConfig tunes the synchronizer and list queries.
type SyncConfig struct {
	// MediaCollections overrides the collections scanned when an image is
	// removed.
	MediaCollections []string `mapstructure:"media_collections" yaml:"media_collections"`
	DefaultPageSize  int      `mapstructure:"default_page_size" yaml:"default_page_size"`
	MaxPageSize      int      `mapstructure:"max_page_size" yaml:"max_page_size"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "docsync",
			Environment: "production",
		},
		Database: DatabaseConfig{
			Type:               DatabaseTypeMongoDB,
			URL:                "mongodb://localhost:27017/?replicaSet=rs0",
			DatabaseName:       "main",
			ConnectTimeout:     10 * time.Second,
			QueryTimeout:       10 * time.Second,
			TransactionTimeout: 30 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			LogFormat:         "json",
			MetricsEnabled:    true,
			TracingEnabled:    false,
			TracingSampleRate: 0.1,
		},
		Sync: SyncConfig{
			DefaultPageSize: 10,
			MaxPageSize:     250,
		},
	}
}
