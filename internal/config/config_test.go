// Copyright (c) 2015, Rod Dong <rod.dong@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by The MIT License.

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rodis.toml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsForOmittedKeys(t *testing.T) {
	path := writeConfig(t, `
[server]
listen = "0.0.0.0:6390"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Server.Listen != "0.0.0.0:6390" {
		t.Fatalf("expected overridden listen, got %q", cfg.Server.Listen)
	}
	if cfg.Storage.Backend != "leveldb" {
		t.Fatalf("expected default backend leveldb, got %q", cfg.Storage.Backend)
	}
	if cfg.Expiry.SweepIntervalMs != 1000 {
		t.Fatalf("expected default sweep interval 1000, got %d", cfg.Expiry.SweepIntervalMs)
	}
	if cfg.Txn.RetryCount != 3 {
		t.Fatalf("expected default retry count 3, got %d", cfg.Txn.RetryCount)
	}
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	path := writeConfig(t, `
[server]
listen = "127.0.0.1:6389"
bogus = "nope"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown config key")
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	path := writeConfig(t, `
[storage]
backend = "sqlite"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unrecognized storage backend")
	}
}

func TestLoadRaftSettings(t *testing.T) {
	path := writeConfig(t, `
[storage]
backend = "raft"

[storage.raft]
node_id = "node-1"
bind_addr = "127.0.0.1:7000"
seeds = ["127.0.0.1:7001", "127.0.0.1:7002"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Storage.Raft.NodeID != "node-1" || len(cfg.Storage.Raft.Seeds) != 2 {
		t.Fatalf("raft settings not decoded correctly: %+v", cfg.Storage.Raft)
	}
}
