// Copyright (c) 2015, Rod Dong <rod.dong@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by The MIT License.

package engine

import (
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/lsmdb/rodis/internal/rodiserr"
)

// LevelDB is the default Facade implementation: a single embedded
// *leveldb.DB per data directory, guarded by a read/write mutex so
// concurrent Apply calls serialize while concurrent reads run in
// parallel (§4.2 point 1).
type LevelDB struct {
	db  *leveldb.DB
	rwm sync.RWMutex
}

// Open opens (creating if necessary) a goleveldb database at dataDir.
func Open(dataDir string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(dataDir, &opt.Options{})
	if err != nil {
		return nil, rodiserr.Wrap(rodiserr.Internal, "opening storage engine", err)
	}
	return &LevelDB{db: db}, nil
}

func (e *LevelDB) Get(key []byte) ([]byte, bool, error) {
	e.rwm.RLock()
	defer e.rwm.RUnlock()
	return e.get(key)
}

// get assumes the caller already holds rwm.
func (e *LevelDB) get(key []byte) ([]byte, bool, error) {
	value, err := e.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, rodiserr.Wrap(rodiserr.Internal, "reading storage engine", err)
	}
	return value, true, nil
}

func (e *LevelDB) MultiGet(keys [][]byte) ([][]byte, error) {
	e.rwm.RLock()
	defer e.rwm.RUnlock()
	out := make([][]byte, len(keys))
	for i, k := range keys {
		v, ok, err := e.get(k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = v
		}
	}
	return out, nil
}

func (e *LevelDB) Scan(lower, upper []byte, limit int, reverse bool) ([]KV, error) {
	e.rwm.RLock()
	defer e.rwm.RUnlock()
	return scanRange(e.db.NewIterator(&util.Range{Start: lower, Limit: upper}, nil), limit, reverse)
}

func scanRange(iter interface {
	Next() bool
	Prev() bool
	Last() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}, limit int, reverse bool) ([]KV, error) {
	defer iter.Release()

	var out []KV
	advance := iter.Next
	if reverse {
		if !iter.Last() {
			return nil, iter.Error()
		}
		out = append(out, KV{Key: cloneBytes(iter.Key()), Value: cloneBytes(iter.Value())})
		advance = iter.Prev
		if limit > 0 && len(out) >= limit {
			return out, iter.Error()
		}
	}
	for advance() {
		out = append(out, KV{Key: cloneBytes(iter.Key()), Value: cloneBytes(iter.Value())})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, iter.Error()
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (e *LevelDB) Apply(batch *Batch) error {
	e.rwm.Lock()
	defer e.rwm.Unlock()
	return e.applyLocked(batch)
}

func (e *LevelDB) applyLocked(batch *Batch) error {
	lb := new(leveldb.Batch)
	for _, op := range batch.Ops {
		if op.Delete {
			lb.Delete(op.Key)
		} else {
			lb.Put(op.Key, op.Value)
		}
	}
	if err := e.db.Write(lb, nil); err != nil {
		return rodiserr.Wrap(rodiserr.Internal, "writing storage engine batch", err)
	}
	return nil
}

func (e *LevelDB) Snapshot() (Snapshot, error) {
	e.rwm.RLock()
	defer e.rwm.RUnlock()
	snap, err := e.db.GetSnapshot()
	if err != nil {
		return nil, rodiserr.Wrap(rodiserr.Internal, "taking storage engine snapshot", err)
	}
	return &levelDBSnapshot{snap: snap}, nil
}

func (e *LevelDB) Close() error {
	if e.db != nil {
		return e.db.Close()
	}
	return nil
}

type levelDBSnapshot struct {
	snap *leveldb.Snapshot
}

func (s *levelDBSnapshot) Get(key []byte) ([]byte, bool, error) {
	value, err := s.snap.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, rodiserr.Wrap(rodiserr.Internal, "reading storage engine snapshot", err)
	}
	return value, true, nil
}

func (s *levelDBSnapshot) Scan(lower, upper []byte, limit int, reverse bool) ([]KV, error) {
	return scanRange(s.snap.NewIterator(&util.Range{Start: lower, Limit: upper}, nil), limit, reverse)
}

func (s *levelDBSnapshot) Release() {
	s.snap.Release()
}
