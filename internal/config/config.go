// Package config defines the canonical, JSON-serializable configuration
// model for the target. It is intentionally small and explicit so a config
// can be loaded from disk and passed through the program without glue code;
// decoding is performed by the standard library.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
)

// Config is the top-level object decoded from a target config file.
type Config struct {
	// Driver selects the storage engine: "mysql" (default), "postgres",
	// "mssql", or "sqlite".
	Driver string `json:"driver"`

	// DSN is a full connection string for the selected driver. When set it
	// overrides the individual host/port/user/password/database fields.
	DSN string `json:"dsn"`

	// Host, Port, User, Password, Database describe the connection when no
	// DSN is given. Ignored when DSN is set.
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`

	// DefaultTargetSchema is the schema/namespace tables are created in
	// when the stream name does not imply one.
	DefaultTargetSchema string `json:"default_target_schema"`

	// HardDelete controls activate-version reconciliation: true deletes
	// stale rows, false marks them in the _sdc_deleted_at column.
	HardDelete bool `json:"hard_delete"`

	// AddRecordMetadata adds _sdc_extracted_at and _sdc_batched_at columns
	// to every table. Defaults to true; activate-version bookkeeping
	// expects it.
	AddRecordMetadata *bool `json:"add_record_metadata"`

	// MaxVarcharSize bounds variable-length text columns on engines with
	// row-size limits.
	MaxVarcharSize int `json:"max_varchar_size"`

	// BatchSize is the per-stream record count that forces a flush.
	BatchSize int `json:"batch_size"`

	// MaxParallelism caps how many streams drain concurrently, bounding
	// database connection and load pressure.
	MaxParallelism int `json:"max_parallelism"`
}

// Defaults, matching the documented behavior of the target.
const (
	DefaultDriver         = "mysql"
	DefaultPort           = 3306
	DefaultTargetSchema   = "melty"
	DefaultMaxVarcharSize = 255
	DefaultBatchSize      = 100000
	DefaultMaxParallelism = 8
)

// Load reads and decodes a config file, then applies defaults.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: open: %w", err)
	}
	defer f.Close()

	var c Config
	dec := json.NewDecoder(f)
	if err := dec.Decode(&c); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	c.ApplyDefaults()
	return c, nil
}

// ApplyDefaults fills zero-valued fields with the documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Driver == "" {
		c.Driver = DefaultDriver
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.DefaultTargetSchema == "" {
		c.DefaultTargetSchema = DefaultTargetSchema
	}
	if c.MaxVarcharSize == 0 {
		c.MaxVarcharSize = DefaultMaxVarcharSize
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxParallelism == 0 {
		c.MaxParallelism = DefaultMaxParallelism
	}
}

// Metadata reports whether record metadata columns are enabled (the
// default when the field is absent).
func (c Config) Metadata() bool {
	return c.AddRecordMetadata == nil || *c.AddRecordMetadata
}

// EffectiveDSN returns the connection string for the selected driver,
// building one from the individual fields when no DSN is configured.
func (c Config) EffectiveDSN() (string, error) {
	if c.DSN != "" {
		return c.DSN, nil
	}
	switch c.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s",
			c.User, c.Password, c.Host, c.Port, c.Database), nil
	case "postgres":
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
			url.QueryEscape(c.User), url.QueryEscape(c.Password), c.Host, c.Port, c.Database), nil
	case "mssql":
		return fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s",
			url.QueryEscape(c.User), url.QueryEscape(c.Password), c.Host, c.Port, url.QueryEscape(c.Database)), nil
	case "sqlite":
		if c.Database == "" {
			return "", fmt.Errorf("config: sqlite needs dsn or database (a file path)")
		}
		return c.Database, nil
	default:
		return "", fmt.Errorf("config: no DSN rule for driver %q", c.Driver)
	}
}
