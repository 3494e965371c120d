// Package server implements the HTTP interface of the pharmacogenomic
// knowledge graph engine.
//
// This file defines the YAML configuration of the server. Parsing is
// strict (unknown fields are rejected) to prevent silent errors due to
// typos, and every field can be overridden through PHARMAKG_* variables
// in the environment.
package server

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/sanonone/pharmakg/pkg/evidence"
)

// Config is the top-level server configuration.
type Config struct {
	HTTPAddr  string `yaml:"http_addr" env:"PHARMAKG_HTTP_ADDR"`
	DataDir   string `yaml:"data_dir" env:"PHARMAKG_DATA_DIR"`
	AuthToken string `yaml:"auth_token" env:"PHARMAKG_AUTH_TOKEN"`

	// JournalRewritePercentage triggers journal compaction when the
	// file grows past its base size by this percentage.
	JournalRewritePercentage int `yaml:"journal_rewrite_percentage" env:"PHARMAKG_JOURNAL_REWRITE_PCT"`

	Evidence evidence.Config `yaml:"evidence"`
	Backend  BackendConfig   `yaml:"backend"`
}

// BackendConfig selects the optional durable mirror of the graph.
type BackendConfig struct {
	// Driver is "", "sqlite" or "neo4j".
	Driver string `yaml:"driver" env:"PHARMAKG_BACKEND_DRIVER"`
	// DSN is the sqlite file path or data source name.
	DSN string `yaml:"dsn" env:"PHARMAKG_BACKEND_DSN"`
	// URI, Username and Password configure the neo4j driver.
	URI      string `yaml:"uri" env:"PHARMAKG_NEO4J_URI"`
	Username string `yaml:"username" env:"PHARMAKG_NEO4J_USER"`
	Password string `yaml:"password" env:"PHARMAKG_NEO4J_PASSWORD"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                 ":8080",
		DataDir:                  "./data",
		JournalRewritePercentage: 100,
		Evidence:                 evidence.DefaultConfig(),
	}
}

// LoadConfig reads the YAML file (if path is non-empty), expands
// environment references in it and applies PHARMAKG_* overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("could not read configuration file '%s': %w", path, err)
		}

		expanded := os.ExpandEnv(string(data))
		decoder := yaml.NewDecoder(strings.NewReader(expanded))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("YAML syntax error in '%s': %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("environment override failed: %w", err)
	}
	return cfg, nil
}
