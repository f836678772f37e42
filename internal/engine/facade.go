// Copyright (c) 2015, Rod Dong <rod.dong@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by The MIT License.

// Package engine defines the storage-backend-agnostic Facade (§4.2) that
// both the goleveldb backend and the Raft-replicated backend (§10)
// satisfy. Nothing above this package — codec, txn, expiry, command —
// knows which concrete implementation it is talking to.
package engine

// KV is one physical key/value pair returned by a scan.
type KV struct {
	Key   []byte
	Value []byte
}

// Op is a single mutation within a Batch: either a put or a delete.
type Op struct {
	Delete bool
	Key    []byte
	Value  []byte
}

// Batch collects a sequence of puts/deletes applied atomically by Apply.
// It is a plain value type (not tied to any backend) so the Raft facade
// can serialize it as a log entry.
type Batch struct {
	Ops []Op
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Put appends a put operation.
func (b *Batch) Put(key, value []byte) {
	b.Ops = append(b.Ops, Op{Key: key, Value: value})
}

// Delete appends a delete operation.
func (b *Batch) Delete(key []byte) {
	b.Ops = append(b.Ops, Op{Delete: true, Key: key})
}

// Len reports the number of operations queued in the batch.
func (b *Batch) Len() int {
	return len(b.Ops)
}

// Snapshot is a consistent read view taken at a point in time, used by
// long scans (§4.3 step 1) so a multi-chunk operation doesn't observe
// interleaved writes from other transactions.
type Snapshot interface {
	Get(key []byte) ([]byte, bool, error)
	Scan(lower, upper []byte, limit int, reverse bool) ([]KV, error)
	Release()
}

// Facade is the storage-backend-agnostic interface described in §4.2.
// Two implementations exist: the default goleveldb-backed engine (this
// package's LevelDB type) and the Raft-replicated engine in
// internal/raftengine.
type Facade interface {
	// Get returns the value stored at key, or ok=false if absent.
	Get(key []byte) (value []byte, ok bool, err error)

	// MultiGet resolves several keys in one call, preserving order; a
	// missing key yields a nil entry at that position.
	MultiGet(keys [][]byte) ([][]byte, error)

	// Scan returns keys in [lower, upper) up to limit entries, ordered
	// ascending, or descending from the top of the same range when
	// reverse is set. A limit of 0 means unbounded.
	Scan(lower, upper []byte, limit int, reverse bool) ([]KV, error)

	// Apply commits batch atomically. On the goleveldb backend this
	// either fully succeeds or fully fails; on the Raft backend a
	// non-leader rejects with a retryable Conflict error (§10.1).
	Apply(batch *Batch) error

	// Snapshot takes a consistent read view for use by long scans.
	Snapshot() (Snapshot, error)

	// Close releases the underlying resources.
	Close() error
}
