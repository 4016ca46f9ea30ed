// Package config loads sentinel's runtime configuration, layering
// environment-variable overrides onto an optional YAML file over built-in
// defaults. Command-line flags, applied by cmd/sentinel, take precedence
// over all three.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings sentinel's CLI and embedded coordinator need
// at startup.
type Config struct {
	// RunID is the namespace root for a supervised run, read from the file
	// or SENTINEL_RUN_ID. Neither serve nor demo reads it; demo takes its
	// run id from --run-id and generates a random one when that is empty.
	RunID string

	// DataDir is where the embedded coordinator keeps its Raft log and
	// node-tree store.
	DataDir string

	// BindAddr is the address the metrics/health HTTP server listens on.
	BindAddr string

	// DiscoveryNamespace is the coordination-store root endpoints are
	// published under.
	DiscoveryNamespace string

	// SessionTimeout is the embedded coordinator's session lease TTL.
	SessionTimeout time.Duration
}

// Default returns the configuration used when no file or environment
// override is present.
func Default() Config {
	return Config{
		DataDir:            "./data",
		BindAddr:           ":9090",
		DiscoveryNamespace: "/discoverable",
		SessionTimeout:     30 * time.Second,
	}
}

// fileConfig is the YAML shape of a config file. Durations are strings
// ("30s", "1m") parsed with time.ParseDuration.
type fileConfig struct {
	RunID              string `yaml:"run_id"`
	DataDir            string `yaml:"data_dir"`
	BindAddr           string `yaml:"bind_addr"`
	DiscoveryNamespace string `yaml:"discovery_namespace"`
	SessionTimeout     string `yaml:"session_timeout"`
}

// Load reads path (if non-empty) as YAML over Default, then applies
// environment-variable overrides. A missing file at a non-empty path is
// an error; an empty path skips the file layer entirely.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
		if fc.RunID != "" {
			cfg.RunID = fc.RunID
		}
		if fc.DataDir != "" {
			cfg.DataDir = fc.DataDir
		}
		if fc.BindAddr != "" {
			cfg.BindAddr = fc.BindAddr
		}
		if fc.DiscoveryNamespace != "" {
			cfg.DiscoveryNamespace = fc.DiscoveryNamespace
		}
		if fc.SessionTimeout != "" {
			d, err := time.ParseDuration(fc.SessionTimeout)
			if err != nil {
				return Config{}, fmt.Errorf("config: invalid session_timeout %q: %w", fc.SessionTimeout, err)
			}
			cfg.SessionTimeout = d
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SENTINEL_RUN_ID"); v != "" {
		cfg.RunID = v
	}
	if v := os.Getenv("SENTINEL_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("SENTINEL_BIND_ADDR"); v != "" {
		cfg.BindAddr = v
	}
	if v := os.Getenv("SENTINEL_DISCOVERY_NAMESPACE"); v != "" {
		cfg.DiscoveryNamespace = v
	}
	if v := os.Getenv("SENTINEL_SESSION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SessionTimeout = d
		}
	}
}
