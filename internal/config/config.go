// Package config loads the simulator's runtime settings: a YAML file for
// defaults, overridden field-by-field by environment variables, the same
// layering order the rest of the fleet uses.
package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is every knob the simulator binary reads at startup.
type Config struct {
	Host    string `yaml:"host"`
	APIPort int    `yaml:"api_port"`

	ClassicPort int `yaml:"classic_port"`
	ActorPort   int `yaml:"actor_port"`
	ViewerPort  int `yaml:"viewer_port"`

	SimProfile                    string `yaml:"sim_profile"`
	SimPersist                    bool   `yaml:"sim_persist"`
	SimDBPath                     string `yaml:"sim_db_path"`
	SimMaxSessions                int    `yaml:"sim_max_sessions"`
	SimKeepaliveTimeoutSec        int    `yaml:"sim_keepalive_timeout_sec"`
	SimInactivityKeepaliveHintSec int    `yaml:"sim_inactivity_keepalive_hint_sec"`

	// SimDataDir, when set, tells internal/data to read catalog/profile/
	// scenario JSON from disk instead of the embedded defaults.
	SimDataDir string `yaml:"sim_data_dir"`
}

// defaults mirrors the fixture's baked-in Settings() defaults.
func defaults() *Config {
	return &Config{
		Host:                          "0.0.0.0",
		APIPort:                       8000,
		ClassicPort:                   4545,
		ActorPort:                     4546,
		ViewerPort:                    4547,
		SimProfile:                    "atlas_pf",
		SimPersist:                    false,
		SimDBPath:                     "/data/openprotocol.db",
		SimMaxSessions:                10,
		SimKeepaliveTimeoutSec:        15,
		SimInactivityKeepaliveHintSec: 10,
		SimDataDir:                    "",
	}
}

// Load builds a Config starting from defaults, layering a YAML file at
// path (if non-empty and present) over them, then layering environment
// variables over that. path may be empty to skip the file layer.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Host = stringEnv("HOST", cfg.Host)
	cfg.APIPort = intEnv("API_PORT", cfg.APIPort)
	cfg.ClassicPort = intEnv("SIM_CLASSIC_PORT", cfg.ClassicPort)
	cfg.ActorPort = intEnv("SIM_ACTOR_PORT", cfg.ActorPort)
	cfg.ViewerPort = intEnv("SIM_VIEWER_PORT", cfg.ViewerPort)
	cfg.SimProfile = stringEnv("SIM_PROFILE", cfg.SimProfile)
	cfg.SimPersist = boolEnv("SIM_PERSIST", cfg.SimPersist)
	cfg.SimDBPath = stringEnv("SIM_DB_PATH", cfg.SimDBPath)
	cfg.SimMaxSessions = intEnv("SIM_MAX_SESSIONS", cfg.SimMaxSessions)
	cfg.SimKeepaliveTimeoutSec = intEnv("SIM_KEEPALIVE_TIMEOUT_SEC", cfg.SimKeepaliveTimeoutSec)
	cfg.SimInactivityKeepaliveHintSec = intEnv("SIM_INACTIVITY_KEEPALIVE_HINT_SEC", cfg.SimInactivityKeepaliveHintSec)
	cfg.SimDataDir = stringEnv("SIM_DATA_DIR", cfg.SimDataDir)
}

func stringEnv(name, def string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return def
}

func intEnv(name string, def int) int {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func boolEnv(name string, def bool) bool {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
