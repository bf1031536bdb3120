// Package config loads and validates the service configuration: the admin
// server, storage backend, observability settings, and the version configs
// for every base character.
package config

import (
	"fmt"
	"strings"

	"github.com/fciannella/ace-versioning/internal/versioning"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the root configuration document.
type Config struct {
	Server     ServerConfig               `yaml:"server"`
	Storage    StorageConfig              `yaml:"storage"`
	Logging    LoggingConfig              `yaml:"logging"`
	Tracing    TracingConfig              `yaml:"tracing"`
	Characters []versioning.VersionConfig `yaml:"characters"`
}

// ServerConfig configures the admin HTTP server.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig selects the assignment/event backend.
type StorageConfig struct {
	// Driver is one of memory, sqlite, postgres.
	Driver string `yaml:"driver"`

	// DSN is the sqlite path or postgres connection string.
	DSN string `yaml:"dsn"`

	// MaxEventsPerCharacter caps event retention for the memory backend;
	// zero keeps everything.
	MaxEventsPerCharacter int `yaml:"max_events_per_character"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// TracingConfig configures the OTLP trace exporter.
type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Environment  string  `yaml:"environment"`
	Insecure     bool    `yaml:"insecure"`
}

// Default returns the configuration used when no file is given: an
// in-memory store serving on localhost.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Host: "127.0.0.1", Port: 8089},
		Storage: StorageConfig{Driver: DriverMemory},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Validate checks the whole document. Character configs run the full
// registry validation so misconfiguration fails at startup, not during
// user traffic.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Storage.Driver) {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return fmt.Errorf("%w: storage driver %q requires a dsn",
				versioning.ErrValidation, c.Storage.Driver)
		}
	default:
		return fmt.Errorf("%w: unknown storage driver %q",
			versioning.ErrValidation, c.Storage.Driver)
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d is out of range",
			versioning.ErrValidation, c.Server.Port)
	}

	seen := make(map[string]bool, len(c.Characters))
	for i := range c.Characters {
		character := &c.Characters[i]
		if seen[character.CharacterID] {
			return fmt.Errorf("%w: character %q configured twice",
				versioning.ErrValidation, character.CharacterID)
		}
		seen[character.CharacterID] = true
		if err := character.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	defaults := Default()
	if c.Server.Host == "" {
		c.Server.Host = defaults.Server.Host
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaults.Server.Port
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = defaults.Storage.Driver
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaults.Logging.Format
	}
}
