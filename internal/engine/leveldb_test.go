// Copyright (c) 2015, Rod Dong <rod.dong@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by The MIT License.

package engine

import (
	"os"
	"path/filepath"
	"testing"
)

func openTestEngine(t *testing.T) *LevelDB {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "engine-testdb")
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open LevelDB error: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
		os.RemoveAll(dir)
	})
	return db
}

func TestApplyPutGet(t *testing.T) {
	db := openTestEngine(t)

	b := NewBatch()
	b.Put([]byte("rod"), []byte("dong 1"))
	if err := db.Apply(b); err != nil {
		t.Fatalf("Apply error: %v", err)
	}

	data, ok, err := db.Get([]byte("rod"))
	if err != nil || !ok || string(data) != "dong 1" {
		t.Fatalf("Get after put mismatch: data=%q ok=%v err=%v", data, ok, err)
	}

	b = NewBatch()
	b.Put([]byte("rod"), []byte("dong 2"))
	if err := db.Apply(b); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	data, ok, err = db.Get([]byte("rod"))
	if err != nil || !ok || string(data) != "dong 2" {
		t.Fatalf("Get after overwrite mismatch: data=%q ok=%v err=%v", data, ok, err)
	}
}

func TestApplyDelete(t *testing.T) {
	db := openTestEngine(t)

	b := NewBatch()
	b.Put([]byte("rod"), []byte("dong"))
	if err := db.Apply(b); err != nil {
		t.Fatalf("Apply error: %v", err)
	}

	b = NewBatch()
	b.Delete([]byte("rod"))
	if err := db.Apply(b); err != nil {
		t.Fatalf("Apply delete error: %v", err)
	}

	_, ok, err := db.Get([]byte("rod"))
	if err != nil {
		t.Fatalf("Get after delete error: %v", err)
	}
	if ok {
		t.Fatal("expected key to be gone after delete")
	}
}

func TestMultiGetPreservesOrderAndMissing(t *testing.T) {
	db := openTestEngine(t)

	b := NewBatch()
	b.Put([]byte("a"), []byte("1"))
	b.Put([]byte("c"), []byte("3"))
	if err := db.Apply(b); err != nil {
		t.Fatalf("Apply error: %v", err)
	}

	got, err := db.MultiGet([][]byte{[]byte("a"), []byte("b"), []byte("c")})
	if err != nil {
		t.Fatalf("MultiGet error: %v", err)
	}
	if len(got) != 3 || string(got[0]) != "1" || got[1] != nil || string(got[2]) != "3" {
		t.Fatalf("MultiGet mismatch: %v", got)
	}
}

func TestScanOrderingAndLimit(t *testing.T) {
	db := openTestEngine(t)

	b := NewBatch()
	for _, k := range []string{"k1", "k2", "k3", "k4"} {
		b.Put([]byte(k), []byte(k))
	}
	if err := db.Apply(b); err != nil {
		t.Fatalf("Apply error: %v", err)
	}

	got, err := db.Scan([]byte("k1"), []byte("k9"), 2, false)
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if len(got) != 2 || string(got[0].Key) != "k1" || string(got[1].Key) != "k2" {
		t.Fatalf("Scan ascending mismatch: %v", got)
	}

	got, err = db.Scan([]byte("k1"), []byte("k9"), 2, true)
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if len(got) != 2 || string(got[0].Key) != "k4" || string(got[1].Key) != "k3" {
		t.Fatalf("Scan reverse mismatch: %v", got)
	}
}

func TestSnapshotIsolatesLaterWrites(t *testing.T) {
	db := openTestEngine(t)

	b := NewBatch()
	b.Put([]byte("k"), []byte("before"))
	if err := db.Apply(b); err != nil {
		t.Fatalf("Apply error: %v", err)
	}

	snap, err := db.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot error: %v", err)
	}
	defer snap.Release()

	b = NewBatch()
	b.Put([]byte("k"), []byte("after"))
	if err := db.Apply(b); err != nil {
		t.Fatalf("Apply error: %v", err)
	}

	data, ok, err := snap.Get([]byte("k"))
	if err != nil || !ok || string(data) != "before" {
		t.Fatalf("snapshot should still see pre-write value, got data=%q ok=%v err=%v", data, ok, err)
	}

	data, ok, err = db.Get([]byte("k"))
	if err != nil || !ok || string(data) != "after" {
		t.Fatalf("live db should see post-write value, got data=%q ok=%v err=%v", data, ok, err)
	}
}
