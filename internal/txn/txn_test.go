// Copyright (c) 2015, Rod Dong <rod.dong@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by The MIT License.

package txn

import (
	"testing"

	"github.com/lsmdb/rodis/internal/engine"
	"github.com/lsmdb/rodis/internal/rodiserr"
)

// fakeFacade is a minimal in-memory Facade double that can be told to
// fail its next N Apply calls with a Conflict error, letting tests
// exercise the retry loop without a real engine.
type fakeFacade struct {
	data        map[string][]byte
	failApplies int
	applyCount  int
}

func newFakeFacade() *fakeFacade {
	return &fakeFacade{data: map[string][]byte{}}
}

func (f *fakeFacade) Get(key []byte) ([]byte, bool, error) {
	v, ok := f.data[string(key)]
	return v, ok, nil
}

func (f *fakeFacade) MultiGet(keys [][]byte) ([][]byte, error) {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = f.data[string(k)]
	}
	return out, nil
}

func (f *fakeFacade) Scan(lower, upper []byte, limit int, reverse bool) ([]engine.KV, error) {
	return nil, nil
}

func (f *fakeFacade) Apply(batch *engine.Batch) error {
	f.applyCount++
	if f.failApplies > 0 {
		f.failApplies--
		return rodiserr.New(rodiserr.Conflict, rodiserr.ErrTransientConflict)
	}
	for _, op := range batch.Ops {
		if op.Delete {
			delete(f.data, string(op.Key))
		} else {
			f.data[string(op.Key)] = op.Value
		}
	}
	return nil
}

func (f *fakeFacade) Snapshot() (engine.Snapshot, error) {
	copyData := make(map[string][]byte, len(f.data))
	for k, v := range f.data {
		copyData[k] = v
	}
	return &fakeSnapshot{data: copyData}, nil
}

func (f *fakeFacade) Close() error { return nil }

type fakeSnapshot struct{ data map[string][]byte }

func (s *fakeSnapshot) Get(key []byte) ([]byte, bool, error) {
	v, ok := s.data[string(key)]
	return v, ok, nil
}

func (s *fakeSnapshot) Scan(lower, upper []byte, limit int, reverse bool) ([]engine.KV, error) {
	return nil, nil
}

func (s *fakeSnapshot) Release() {}

func TestRunCommitsOnFirstSuccess(t *testing.T) {
	f := newFakeFacade()
	r := New(f, 3)

	_, err := r.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		b := engine.NewBatch()
		b.Put([]byte("k"), []byte("v"))
		return b, nil, nil
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if v, ok, _ := f.Get([]byte("k")); !ok || string(v) != "v" {
		t.Fatalf("expected committed value, got %q ok=%v", v, ok)
	}
	if f.applyCount != 1 {
		t.Fatalf("expected exactly one Apply call, got %d", f.applyCount)
	}
}

func TestRunRetriesOnConflict(t *testing.T) {
	f := newFakeFacade()
	f.failApplies = 2
	r := New(f, 3)

	_, err := r.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		b := engine.NewBatch()
		b.Put([]byte("k"), []byte("v"))
		return b, nil, nil
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if f.applyCount != 3 {
		t.Fatalf("expected 3 Apply attempts (2 failures + 1 success), got %d", f.applyCount)
	}
}

func TestRunExhaustsRetriesAsTransientConflict(t *testing.T) {
	f := newFakeFacade()
	f.failApplies = 100
	r := New(f, 3)

	_, err := r.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		b := engine.NewBatch()
		b.Put([]byte("k"), []byte("v"))
		return b, nil, nil
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !rodiserr.Is(err, rodiserr.Conflict) {
		t.Fatalf("expected Conflict kind, got %v", err)
	}
}

func TestRunPropagatesNonConflictErrorImmediately(t *testing.T) {
	f := newFakeFacade()
	r := New(f, 3)

	wantErr := rodiserr.New(rodiserr.WrongType, rodiserr.ErrWrongType)
	_, err := r.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		return nil, nil, wantErr
	})
	if err != wantErr {
		t.Fatalf("expected step error to propagate unchanged, got %v", err)
	}
	if f.applyCount != 0 {
		t.Fatalf("expected no Apply calls, got %d", f.applyCount)
	}
}

func TestRunSkipsApplyForNilBatch(t *testing.T) {
	f := newFakeFacade()
	r := New(f, 3)

	result, err := r.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		return nil, "read-only-result", nil
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result != "read-only-result" {
		t.Fatalf("expected result to be threaded back, got %v", result)
	}
	if f.applyCount != 0 {
		t.Fatalf("expected no Apply calls for nil batch, got %d", f.applyCount)
	}
}
