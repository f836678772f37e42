// Copyright (c) 2015, Rod Dong <rod.dong@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by The MIT License.

// Package expiry implements the two expiration mechanisms of §4.4: a
// lazy check woven into every read path, and a background sweep of the
// expiration index. Both share the same physical layout knowledge from
// internal/codec.
package expiry

import (
	"github.com/lsmdb/rodis/internal/codec"
	"github.com/lsmdb/rodis/internal/engine"
	"github.com/lsmdb/rodis/internal/rodiserr"
)

// ReadMeta reads and decodes the metadata record for key from snap,
// without any expiry judgement. ok is false when no metadata record
// exists at all.
func ReadMeta(snap engine.Snapshot, key []byte) (meta codec.Metadata, ok bool, err error) {
	raw, found, err := snap.Get(codec.EncodeMeta(key))
	if err != nil {
		return codec.Metadata{}, false, err
	}
	if !found {
		return codec.Metadata{}, false, nil
	}
	meta, err = codec.DecodeMetadata(raw)
	if err != nil {
		return codec.Metadata{}, false, err
	}
	return meta, true, nil
}

// IsExpired reports whether meta names an expiration that has already
// passed as of nowMs. ExpireMs == 0 means no TTL.
func IsExpired(meta codec.Metadata, nowMs int64) bool {
	return meta.ExpireMs != 0 && meta.ExpireMs <= nowMs
}

// AppendDeleteBatch appends the operations that logically delete key's
// metadata record and its matching expiration-index entry, per the
// logical-delete lifecycle in §3.5. It does not touch subkeys: those
// become unreachable once the metadata is gone. Nothing removes them
// later; the sweeper only walks the expiration index.
func AppendDeleteBatch(batch *engine.Batch, key []byte, meta codec.Metadata) {
	batch.Delete(codec.EncodeMeta(key))
	if meta.ExpireMs != 0 {
		batch.Delete(codec.EncodeExpireIndex(meta.ExpireMs, key))
	}
}

// UpdateExpireIndex swaps the expiration-index entry for key from
// oldExpireMs to newExpireMs within batch, as required whenever a
// command sets or clears expiration (§4.4). Either value may be 0
// (no TTL), in which case the corresponding side is a no-op.
func UpdateExpireIndex(batch *engine.Batch, key []byte, oldExpireMs, newExpireMs int64) {
	if oldExpireMs == newExpireMs {
		return
	}
	if oldExpireMs != 0 {
		batch.Delete(codec.EncodeExpireIndex(oldExpireMs, key))
	}
	if newExpireMs != 0 {
		batch.Put(codec.EncodeExpireIndex(newExpireMs, key), nil)
	}
}

// Resolve reads key's metadata and applies the lazy expiration rule
// (§4.4): if the key is absent, both return values are zero. If the key
// is expired, meta is the zero value and cleanup is a non-nil batch the
// caller should commit (possibly as its entire transaction, if the
// command itself has nothing else to do). Otherwise meta is populated
// and cleanup is nil.
func Resolve(snap engine.Snapshot, key []byte, nowMs int64) (meta codec.Metadata, cleanup *engine.Batch, err error) {
	meta, ok, err := ReadMeta(snap, key)
	if err != nil {
		return codec.Metadata{}, nil, err
	}
	if !ok {
		return codec.Metadata{}, nil, nil
	}
	if IsExpired(meta, nowMs) {
		cleanup = engine.NewBatch()
		AppendDeleteBatch(cleanup, key, meta)
		return codec.Metadata{}, cleanup, nil
	}
	return meta, nil, nil
}

// ErrWrongType is returned by command handlers when a resolved metadata
// record's Type doesn't match what the command expects.
var ErrWrongType = rodiserr.New(rodiserr.WrongType, rodiserr.ErrWrongType)
