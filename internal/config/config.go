// Copyright (c) 2015, Rod Dong <rod.dong@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by The MIT License.

// Package config loads the TOML configuration file described in §9.3 and
// §11 into a typed Config, applying the documented defaults for anything
// left unspecified and rejecting unknown keys at load time.
package config

import (
	"fmt"
	"runtime"

	"github.com/BurntSushi/toml"
)

// Server holds the RESP listener and auth settings.
type Server struct {
	Listen      string `toml:"listen"`
	RequirePass string `toml:"requirepass"`
	Workers     int    `toml:"workers"`
}

// Raft holds the settings read only when Storage.Backend == "raft".
type Raft struct {
	NodeID   string   `toml:"node_id"`
	BindAddr string   `toml:"bind_addr"`
	Seeds    []string `toml:"seeds"`
}

// Storage selects and configures the Engine Facade backend (§4.2, §10).
type Storage struct {
	Backend string `toml:"backend"`
	DataDir string `toml:"data_dir"`
	Raft    Raft   `toml:"raft"`
}

// Expiry configures the background sweeper (§4.4).
type Expiry struct {
	SweepIntervalMs int `toml:"sweep_interval_ms"`
	SweepBatch      int `toml:"sweep_batch"`
}

// Txn configures the transaction runner (§4.3).
type Txn struct {
	RetryCount int `toml:"retry_count"`
}

// Log configures the log6-based logger (§9.4).
type Log struct {
	Level string `toml:"level"`
}

// Metrics configures the optional Prometheus endpoint (§12).
type Metrics struct {
	Listen string `toml:"listen"`
}

// Config is the fully decoded configuration document, keyed by the
// same dotted names as the §11 reference table.
type Config struct {
	Server  Server  `toml:"server"`
	Storage Storage `toml:"storage"`
	Expiry  Expiry  `toml:"expiry"`
	Txn     Txn     `toml:"txn"`
	Log     Log     `toml:"log"`
	Metrics Metrics `toml:"metrics"`
}

// Default returns the §11 default configuration.
func Default() Config {
	return Config{
		Server: Server{
			Listen:  "127.0.0.1:6389",
			Workers: runtime.NumCPU(),
		},
		Storage: Storage{
			Backend: "leveldb",
			DataDir: "./data",
		},
		Expiry: Expiry{
			SweepIntervalMs: 1000,
			SweepBatch:      200,
		},
		Txn: Txn{
			RetryCount: 3,
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Load reads and decodes the TOML file at path over the §11 defaults.
// Unknown keys are a load-time error, matching the teacher's fail-fast
// startup (log6.Fatal on a bad config in server/rodis.go).
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("unknown config key(s) in %s: %v", path, undecoded)
	}
	if cfg.Storage.Backend != "leveldb" && cfg.Storage.Backend != "raft" {
		return Config{}, fmt.Errorf("storage.backend must be \"leveldb\" or \"raft\", got %q", cfg.Storage.Backend)
	}
	return cfg, nil
}
