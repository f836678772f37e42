// Copyright (c) 2015, Rod Dong <rod.dong@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by The MIT License.

// Package raftengine implements the Raft-replicated engine.Facade
// described in §10.1: a hashicorp/raft-driven FSM wrapping a local
// goleveldb database, replicated cluster membership via
// hashicorp/memberlist, and log/stable storage via raft-boltdb.
package raftengine

import (
	"bytes"
	"encoding/gob"
	"io"

	"github.com/hashicorp/raft"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/lsmdb/rodis/internal/engine"
	"github.com/lsmdb/rodis/internal/rodiserr"
)

// fsm applies committed log entries — each a gob-encoded engine.Batch —
// directly against a local goleveldb database. It never talks to Raft
// itself; Facade.Apply is the only caller that proposes entries.
type fsm struct {
	db *leveldb.DB
}

func openFSM(dataDir string) (*fsm, error) {
	db, err := leveldb.OpenFile(dataDir, &opt.Options{})
	if err != nil {
		return nil, rodiserr.Wrap(rodiserr.Internal, "opening raft fsm storage", err)
	}
	return &fsm{db: db}, nil
}

// Apply is invoked once per committed log entry, on every node in the
// cluster (leader and followers alike), in log order.
func (f *fsm) Apply(entry *raft.Log) interface{} {
	var batch engine.Batch
	if err := gob.NewDecoder(bytes.NewReader(entry.Data)).Decode(&batch); err != nil {
		return err
	}
	lb := new(leveldb.Batch)
	for _, op := range batch.Ops {
		if op.Delete {
			lb.Delete(op.Key)
		} else {
			lb.Put(op.Key, op.Value)
		}
	}
	if err := f.db.Write(lb, nil); err != nil {
		return err
	}
	return nil
}

// Snapshot and Restore satisfy raft.FSM so a joining or lagging node can
// be brought up to date without replaying the entire log. The snapshot
// is a flat sequence of gob-encoded KV pairs read straight off the
// database's own iterator.
func (f *fsm) Snapshot() (raft.FSMSnapshot, error) {
	snap, err := f.db.GetSnapshot()
	if err != nil {
		return nil, err
	}
	return &fsmSnapshot{snap: snap}, nil
}

func (f *fsm) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	tx, err := f.db.OpenTransaction()
	if err != nil {
		return err
	}
	iter := tx.NewIterator(nil, nil)
	for iter.Next() {
		if err := tx.Delete(iter.Key(), nil); err != nil {
			iter.Release()
			tx.Discard()
			return err
		}
	}
	iter.Release()

	dec := gob.NewDecoder(rc)
	for {
		var kv engine.KV
		if err := dec.Decode(&kv); err == io.EOF {
			break
		} else if err != nil {
			tx.Discard()
			return err
		}
		if err := tx.Put(kv.Key, kv.Value, nil); err != nil {
			tx.Discard()
			return err
		}
	}
	return tx.Commit()
}

type fsmSnapshot struct {
	snap *leveldb.Snapshot
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	enc := gob.NewEncoder(sink)
	iter := s.snap.NewIterator(nil, nil)
	defer iter.Release()
	for iter.Next() {
		kv := engine.KV{Key: append([]byte(nil), iter.Key()...), Value: append([]byte(nil), iter.Value()...)}
		if err := enc.Encode(kv); err != nil {
			sink.Cancel()
			return err
		}
	}
	if err := iter.Error(); err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {
	s.snap.Release()
}
