// Copyright (c) 2015, Rod Dong <rod.dong@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by The MIT License.

package raftengine

import (
	"bytes"
	"encoding/gob"
	"testing"

	"github.com/hashicorp/raft"

	"github.com/lsmdb/rodis/internal/engine"
)

func TestFSMApplyWritesAndDeletes(t *testing.T) {
	f, err := openFSM(t.TempDir())
	if err != nil {
		t.Fatalf("openFSM: %v", err)
	}
	defer f.db.Close()

	batch := engine.Batch{Ops: []engine.Op{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
	}}
	if res := f.Apply(&raft.Log{Data: encodeBatch(t, batch)}); res != nil {
		t.Fatalf("Apply put batch: %v", res)
	}

	v, err := f.db.Get([]byte("a"), nil)
	if err != nil || string(v) != "1" {
		t.Fatalf("got (%q, %v), want (\"1\", nil)", v, err)
	}

	del := engine.Batch{Ops: []engine.Op{{Delete: true, Key: []byte("a")}}}
	if res := f.Apply(&raft.Log{Data: encodeBatch(t, del)}); res != nil {
		t.Fatalf("Apply delete batch: %v", res)
	}
	if _, err := f.db.Get([]byte("a"), nil); err == nil {
		t.Fatal("expected key a to be gone after delete batch")
	}
}

func TestFSMSnapshotRestoreRoundTrip(t *testing.T) {
	f, err := openFSM(t.TempDir())
	if err != nil {
		t.Fatalf("openFSM: %v", err)
	}
	defer f.db.Close()

	seed := engine.Batch{Ops: []engine.Op{
		{Key: []byte("x"), Value: []byte("10")},
		{Key: []byte("y"), Value: []byte("20")},
	}}
	if res := f.Apply(&raft.Log{Data: encodeBatch(t, seed)}); res != nil {
		t.Fatalf("seed apply: %v", res)
	}

	snap, err := f.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	var buf bytes.Buffer
	sink := &fakeSink{Buffer: &buf}
	if err := snap.Persist(sink); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	f2, err := openFSM(t.TempDir())
	if err != nil {
		t.Fatalf("openFSM (restore target): %v", err)
	}
	defer f2.db.Close()
	if err := f2.Restore(&fakeReadCloser{Reader: bytes.NewReader(buf.Bytes())}); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	v, err := f2.db.Get([]byte("x"), nil)
	if err != nil || string(v) != "10" {
		t.Fatalf("restored value for x = (%q, %v), want (\"10\", nil)", v, err)
	}
}

func encodeBatch(t *testing.T, b engine.Batch) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(b); err != nil {
		t.Fatalf("gob encode: %v", err)
	}
	return buf.Bytes()
}

type fakeSink struct {
	*bytes.Buffer
}

func (s *fakeSink) ID() string    { return "test" }
func (s *fakeSink) Cancel() error { return nil }
func (s *fakeSink) Close() error  { return nil }

type fakeReadCloser struct {
	*bytes.Reader
}

func (r *fakeReadCloser) Close() error { return nil }
