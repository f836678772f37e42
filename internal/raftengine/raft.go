// Copyright (c) 2015, Rod Dong <rod.dong@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by The MIT License.

package raftengine

import (
	"bytes"
	"encoding/gob"
	"net"
	"os"
	"path/filepath"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/lsmdb/rodis/internal/engine"
	"github.com/lsmdb/rodis/internal/rodiserr"
)

// Config configures one node of the replicated engine (§10.1/§11
// storage.raft.*).
type Config struct {
	NodeID    string
	BindAddr  string   // Raft transport address, host:port
	DataDir   string
	Seeds     []string // memberlist seed addresses for Discovery
	Bootstrap bool     // true only for the node that founds a new cluster
}

// Facade is the Raft-replicated engine.Facade implementation. Reads are
// always served locally off the FSM's goleveldb database — the leader
// holds no special role for Get/Scan — while Apply proposes through
// raft.Raft.Apply and only succeeds on the leader.
type Facade struct {
	raft      *raft.Raft
	fsm       *fsm
	discovery *Discovery
	transport *raft.NetworkTransport
}

// Open starts (or rejoins) a Raft node backed by a local goleveldb FSM,
// raft-boltdb log/stable storage, and memberlist-based peer discovery.
func Open(cfg Config) (*Facade, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, rodiserr.Wrap(rodiserr.Internal, "creating raft data dir", err)
	}

	f, err := openFSM(filepath.Join(cfg.DataDir, "fsm"))
	if err != nil {
		return nil, err
	}

	raftDir := filepath.Join(cfg.DataDir, "raft")
	if err := os.MkdirAll(raftDir, 0o755); err != nil {
		return nil, rodiserr.Wrap(rodiserr.Internal, "creating raft log dir", err)
	}
	logStore, err := raftboltdb.NewBoltStore(filepath.Join(raftDir, "log.bolt"))
	if err != nil {
		return nil, rodiserr.Wrap(rodiserr.Internal, "opening raft log store", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(raftDir, "stable.bolt"))
	if err != nil {
		return nil, rodiserr.Wrap(rodiserr.Internal, "opening raft stable store", err)
	}
	snapStore, err := raft.NewFileSnapshotStore(raftDir, 2, os.Stderr)
	if err != nil {
		return nil, rodiserr.Wrap(rodiserr.Internal, "opening raft snapshot store", err)
	}

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, rodiserr.Wrap(rodiserr.Internal, "resolving raft bind address", err)
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, rodiserr.Wrap(rodiserr.Internal, "opening raft transport", err)
	}

	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(cfg.NodeID)
	raftCfg.Logger = hclog.New(&hclog.LoggerOptions{
		Name:  "raft." + cfg.NodeID,
		Level: hclog.Info,
	})

	r, err := raft.NewRaft(raftCfg, f, logStore, stableStore, snapStore, transport)
	if err != nil {
		return nil, rodiserr.Wrap(rodiserr.Internal, "starting raft", err)
	}

	if cfg.Bootstrap {
		future := r.BootstrapCluster(raft.Configuration{
			Servers: []raft.Server{{ID: raftCfg.LocalID, Address: transport.LocalAddr()}},
		})
		if err := future.Error(); err != nil && err != raft.ErrCantBootstrap {
			return nil, rodiserr.Wrap(rodiserr.Internal, "bootstrapping raft cluster", err)
		}
	}

	facade := &Facade{raft: r, fsm: f, transport: transport}

	disc, err := NewDiscovery(DiscoveryConfig{
		NodeID:   cfg.NodeID,
		BindAddr: cfg.BindAddr,
		Seeds:    cfg.Seeds,
		Raft:     r,
	})
	if err != nil {
		return nil, err
	}
	facade.discovery = disc

	return facade, nil
}

// Get, MultiGet and Scan are always served from this node's own local
// FSM state, never forwarded to the leader: a node that fell behind
// returns stale-but-consistent data rather than blocking (§10.1).
func (fc *Facade) Get(key []byte) ([]byte, bool, error) {
	v, err := fc.fsm.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, rodiserr.Wrap(rodiserr.Internal, "reading raft fsm storage", err)
	}
	return v, true, nil
}

func (fc *Facade) MultiGet(keys [][]byte) ([][]byte, error) {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		v, ok, err := fc.Get(k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = v
		}
	}
	return out, nil
}

func (fc *Facade) Scan(lower, upper []byte, limit int, reverse bool) ([]engine.KV, error) {
	iter := fc.fsm.db.NewIterator(&util.Range{Start: lower, Limit: upper}, nil)
	defer iter.Release()

	var out []engine.KV
	advance := iter.Next
	if reverse {
		if !iter.Last() {
			return nil, iter.Error()
		}
		out = append(out, engine.KV{Key: append([]byte(nil), iter.Key()...), Value: append([]byte(nil), iter.Value()...)})
		advance = iter.Prev
		if limit > 0 && len(out) >= limit {
			return out, iter.Error()
		}
	}
	for advance() {
		out = append(out, engine.KV{Key: append([]byte(nil), iter.Key()...), Value: append([]byte(nil), iter.Value()...)})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, iter.Error()
}

// Apply proposes batch as a single Raft log entry. Only the leader can
// commit it; a follower rejects immediately with a retryable Conflict so
// the caller's txn.Runner falls back exactly as it would on a local
// write conflict (§10.1).
func (fc *Facade) Apply(batch *engine.Batch) error {
	if fc.raft.State() != raft.Leader {
		return rodiserr.New(rodiserr.Conflict, "ERR not raft leader, retry")
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(*batch); err != nil {
		return rodiserr.Wrap(rodiserr.Internal, "encoding raft log entry", err)
	}
	future := fc.raft.Apply(buf.Bytes(), 10*time.Second)
	if err := future.Error(); err != nil {
		if err == raft.ErrNotLeader || err == raft.ErrLeadershipLost {
			return rodiserr.Wrap(rodiserr.Conflict, "ERR not raft leader, retry", err)
		}
		return rodiserr.Wrap(rodiserr.Internal, "applying raft log entry", err)
	}
	if resp := future.Response(); resp != nil {
		if err, ok := resp.(error); ok {
			return rodiserr.Wrap(rodiserr.Internal, "applying raft fsm batch", err)
		}
	}
	return nil
}

// Snapshot takes a consistent local read view, exactly as the goleveldb
// backend does; it never involves consensus.
func (fc *Facade) Snapshot() (engine.Snapshot, error) {
	snap, err := fc.fsm.db.GetSnapshot()
	if err != nil {
		return nil, rodiserr.Wrap(rodiserr.Internal, "taking raft fsm snapshot", err)
	}
	return &raftSnapshot{snap: snap}, nil
}

func (fc *Facade) Close() error {
	if fc.discovery != nil {
		fc.discovery.Shutdown()
	}
	if fc.raft != nil {
		if err := fc.raft.Shutdown().Error(); err != nil {
			return err
		}
	}
	return fc.fsm.db.Close()
}

type raftSnapshot struct {
	snap *leveldb.Snapshot
}

func (s *raftSnapshot) Get(key []byte) ([]byte, bool, error) {
	v, err := s.snap.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, rodiserr.Wrap(rodiserr.Internal, "reading raft fsm snapshot", err)
	}
	return v, true, nil
}

func (s *raftSnapshot) Scan(lower, upper []byte, limit int, reverse bool) ([]engine.KV, error) {
	iter := s.snap.NewIterator(&util.Range{Start: lower, Limit: upper}, nil)
	defer iter.Release()

	var out []engine.KV
	advance := iter.Next
	if reverse {
		if !iter.Last() {
			return nil, iter.Error()
		}
		out = append(out, engine.KV{Key: append([]byte(nil), iter.Key()...), Value: append([]byte(nil), iter.Value()...)})
		advance = iter.Prev
		if limit > 0 && len(out) >= limit {
			return out, iter.Error()
		}
	}
	for advance() {
		out = append(out, engine.KV{Key: append([]byte(nil), iter.Key()...), Value: append([]byte(nil), iter.Value()...)})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, iter.Error()
}

func (s *raftSnapshot) Release() {
	s.snap.Release()
}
