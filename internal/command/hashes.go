// Copyright (c) 2015, Rod Dong <rod.dong@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by The MIT License.

package command

import (
	"strconv"

	"github.com/lsmdb/rodis/internal/codec"
	"github.com/lsmdb/rodis/internal/engine"
	"github.com/lsmdb/rodis/internal/expiry"
	"github.com/lsmdb/rodis/internal/metatype"
	"github.com/lsmdb/rodis/internal/resp"
	"github.com/lsmdb/rodis/internal/rodiserr"
)

// resolveHash reads key's metadata, applying lazy expiry, and confirms
// it is either absent or a Hash. absent keys resolve to a zero Metadata
// with version 0 handled by callers exactly like a fresh empty hash.
func resolveHash(snap engine.Snapshot, key []byte, nowMs int64) (codec.Metadata, *engine.Batch, error) {
	meta, cleanup, err := expiry.Resolve(snap, key, nowMs)
	if err != nil {
		return codec.Metadata{}, nil, err
	}
	if cleanup != nil {
		return codec.Metadata{}, cleanup, nil
	}
	if meta.Version != 0 && meta.Type != metatype.Hash {
		return codec.Metadata{}, nil, expiry.ErrWrongType
	}
	return meta, nil, nil
}

func hset(v []resp.BulkString, ex *Extras) error {
	key, field, value := []byte(v[0]), []byte(v[1]), []byte(v[2])
	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveHash(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		version := versionOrFresh(meta)

		existed := false
		if cleanup == nil && meta.Version != 0 {
			_, ok, err := snap.Get(codec.EncodeSub(key, version, codec.SubHash, field))
			if err != nil {
				return nil, nil, err
			}
			existed = ok
		}

		b := engine.NewBatch()
		if cleanup != nil {
			b.Ops = append(b.Ops, cleanup.Ops...)
		}
		count := meta.Count
		if !existed {
			count++
		}
		b.Put(codec.EncodeSub(key, version, codec.SubHash, field), value)
		b.Put(codec.EncodeMeta(key), codec.EncodeMetadata(codec.Metadata{
			Type: metatype.Hash, Version: version, ExpireMs: meta.ExpireMs, Count: count,
		}))
		return b, !existed, nil
	})
	if err != nil {
		return err
	}
	if res.(bool) {
		return resp.Integer(1).WriteTo(ex.Writer)
	}
	return resp.Integer(0).WriteTo(ex.Writer)
}

// versionOrFresh returns meta.Version if the key already has a live
// metadata record, or 1 for a fresh key (Version 0 sentinel).
func versionOrFresh(meta codec.Metadata) uint64 {
	if meta.Version == 0 {
		return 1
	}
	return meta.Version
}

func hsetnx(v []resp.BulkString, ex *Extras) error {
	key, field, value := []byte(v[0]), []byte(v[1]), []byte(v[2])
	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveHash(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		version := versionOrFresh(meta)
		if cleanup == nil && meta.Version != 0 {
			subKey := codec.EncodeSub(key, version, codec.SubHash, field)
			_, existed, err := snap.Get(subKey)
			if err != nil {
				return nil, nil, err
			}
			if existed {
				return nil, false, nil
			}
		}
		b := engine.NewBatch()
		if cleanup != nil {
			b.Ops = append(b.Ops, cleanup.Ops...)
		}
		b.Put(codec.EncodeSub(key, version, codec.SubHash, field), value)
		b.Put(codec.EncodeMeta(key), codec.EncodeMetadata(codec.Metadata{
			Type: metatype.Hash, Version: version, ExpireMs: meta.ExpireMs, Count: meta.Count + 1,
		}))
		return b, true, nil
	})
	if err != nil {
		return err
	}
	if res.(bool) {
		return resp.Integer(1).WriteTo(ex.Writer)
	}
	return resp.Integer(0).WriteTo(ex.Writer)
}

func hget(v []resp.BulkString, ex *Extras) error {
	key, field := []byte(v[0]), []byte(v[1])
	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveHash(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		if cleanup != nil || meta.Version == 0 {
			return cleanup, resp.BulkString(nil), nil
		}
		val, ok, err := snap.Get(codec.EncodeSub(key, meta.Version, codec.SubHash, field))
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return nil, resp.BulkString(nil), nil
		}
		return nil, resp.BulkString(val), nil
	})
	if err != nil {
		return err
	}
	return res.(resp.BulkString).WriteTo(ex.Writer)
}

func hstrlen(v []resp.BulkString, ex *Extras) error {
	key, field := []byte(v[0]), []byte(v[1])
	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveHash(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		if cleanup != nil || meta.Version == 0 {
			return cleanup, 0, nil
		}
		val, ok, err := snap.Get(codec.EncodeSub(key, meta.Version, codec.SubHash, field))
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return nil, 0, nil
		}
		return nil, len(val), nil
	})
	if err != nil {
		return err
	}
	return resp.Integer(res.(int)).WriteTo(ex.Writer)
}

func hexists(v []resp.BulkString, ex *Extras) error {
	key, field := []byte(v[0]), []byte(v[1])
	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveHash(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		if cleanup != nil || meta.Version == 0 {
			return cleanup, false, nil
		}
		_, ok, err := snap.Get(codec.EncodeSub(key, meta.Version, codec.SubHash, field))
		if err != nil {
			return nil, nil, err
		}
		return nil, ok, nil
	})
	if err != nil {
		return err
	}
	if res.(bool) {
		return resp.Integer(1).WriteTo(ex.Writer)
	}
	return resp.Integer(0).WriteTo(ex.Writer)
}

func hdel(v []resp.BulkString, ex *Extras) error {
	if len(v) < 2 {
		return rodiserr.New(rodiserr.SyntaxError, rodiserr.ErrFmtSyntax)
	}
	key := []byte(v[0])
	fields := v[1:]

	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveHash(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		if cleanup != nil || meta.Version == 0 {
			return cleanup, 0, nil
		}

		b := engine.NewBatch()
		removed := 0
		for _, f := range fields {
			subKey := codec.EncodeSub(key, meta.Version, codec.SubHash, []byte(f))
			_, ok, err := snap.Get(subKey)
			if err != nil {
				return nil, nil, err
			}
			if ok {
				b.Delete(subKey)
				removed++
			}
		}
		if removed == 0 {
			return nil, 0, nil
		}
		newCount := meta.Count - uint64(removed)
		if newCount == 0 {
			expiry.AppendDeleteBatch(b, key, meta)
		} else {
			b.Put(codec.EncodeMeta(key), codec.EncodeMetadata(codec.Metadata{
				Type: metatype.Hash, Version: meta.Version, ExpireMs: meta.ExpireMs, Count: newCount,
			}))
		}
		return b, removed, nil
	})
	if err != nil {
		return err
	}
	return resp.Integer(res.(int)).WriteTo(ex.Writer)
}

func hlen(v []resp.BulkString, ex *Extras) error {
	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveHash(snap, v[0], ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		return cleanup, meta.Count, nil
	})
	if err != nil {
		return err
	}
	return resp.Integer(res.(uint64)).WriteTo(ex.Writer)
}

func hincrByHelper(ex *Extras, key, field []byte, delta int64) (int64, error) {
	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveHash(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		version := versionOrFresh(meta)
		var cur int64
		count := meta.Count
		existed := false
		if cleanup == nil && meta.Version != 0 {
			val, ok, err := snap.Get(codec.EncodeSub(key, version, codec.SubHash, field))
			if err != nil {
				return nil, nil, err
			}
			if ok {
				existed = true
				cur, err = strconv.ParseInt(string(val), 10, 64)
				if err != nil {
					return nil, nil, rodiserr.New(rodiserr.NotAnInteger, rodiserr.ErrNotAnInteger)
				}
			}
		}
		if !existed {
			count++
		}
		if addInt64Overflows(cur, delta) {
			return nil, nil, rodiserr.New(rodiserr.NotAnInteger, rodiserr.ErrNotAnInteger)
		}
		next := cur + delta
		b := engine.NewBatch()
		if cleanup != nil {
			b.Ops = append(b.Ops, cleanup.Ops...)
		}
		b.Put(codec.EncodeSub(key, version, codec.SubHash, field), []byte(strconv.FormatInt(next, 10)))
		b.Put(codec.EncodeMeta(key), codec.EncodeMetadata(codec.Metadata{
			Type: metatype.Hash, Version: version, ExpireMs: meta.ExpireMs, Count: count,
		}))
		return b, next, nil
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

func hincrby(v []resp.BulkString, ex *Extras) error {
	by, err := strconv.ParseInt(v[2].String(), 10, 64)
	if err != nil {
		return rodiserr.New(rodiserr.NotAnInteger, rodiserr.ErrNotAnInteger)
	}
	n, err := hincrByHelper(ex, []byte(v[0]), []byte(v[1]), by)
	if err != nil {
		return err
	}
	return resp.Integer(n).WriteTo(ex.Writer)
}

func hincrbyfloat(v []resp.BulkString, ex *Extras) error {
	by, err := strconv.ParseFloat(v[2].String(), 64)
	if err != nil {
		return rodiserr.New(rodiserr.NotAFloat, rodiserr.ErrNotAFloat)
	}
	key, field := []byte(v[0]), []byte(v[1])

	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveHash(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		version := versionOrFresh(meta)
		var cur float64
		count := meta.Count
		existed := false
		if cleanup == nil && meta.Version != 0 {
			val, ok, err := snap.Get(codec.EncodeSub(key, version, codec.SubHash, field))
			if err != nil {
				return nil, nil, err
			}
			if ok {
				existed = true
				cur, err = strconv.ParseFloat(string(val), 64)
				if err != nil {
					return nil, nil, rodiserr.New(rodiserr.NotAFloat, rodiserr.ErrNotAFloat)
				}
			}
		}
		if !existed {
			count++
		}
		next := cur + by
		formatted := strconv.FormatFloat(next, 'f', -1, 64)
		b := engine.NewBatch()
		if cleanup != nil {
			b.Ops = append(b.Ops, cleanup.Ops...)
		}
		b.Put(codec.EncodeSub(key, version, codec.SubHash, field), []byte(formatted))
		b.Put(codec.EncodeMeta(key), codec.EncodeMetadata(codec.Metadata{
			Type: metatype.Hash, Version: version, ExpireMs: meta.ExpireMs, Count: count,
		}))
		return b, formatted, nil
	})
	if err != nil {
		return err
	}
	return resp.BulkString(res.(string)).WriteTo(ex.Writer)
}

func hashScan(ex *Extras, key []byte) ([]engine.KV, error) {
	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveHash(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		if cleanup != nil || meta.Version == 0 {
			return cleanup, []engine.KV(nil), nil
		}
		prefix := codec.DataPrefix(key, meta.Version, codec.SubHash)
		entries, err := snap.Scan(prefix, codec.PrefixUpperBound(prefix), 0, false)
		if err != nil {
			return nil, nil, err
		}
		return nil, entries, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([]engine.KV), nil
}

func hgetall(v []resp.BulkString, ex *Extras) error {
	entries, err := hashScan(ex, []byte(v[0]))
	if err != nil {
		return err
	}
	out := make(resp.Array, 0, len(entries)*2)
	for _, e := range entries {
		_, _, _, field, decErr := codec.DecodeSub(e.Key)
		if decErr != nil {
			continue
		}
		out = append(out, resp.BulkString(field), resp.BulkString(e.Value))
	}
	return out.WriteTo(ex.Writer)
}

func hkeys(v []resp.BulkString, ex *Extras) error {
	entries, err := hashScan(ex, []byte(v[0]))
	if err != nil {
		return err
	}
	out := make(resp.Array, 0, len(entries))
	for _, e := range entries {
		_, _, _, field, decErr := codec.DecodeSub(e.Key)
		if decErr != nil {
			continue
		}
		out = append(out, resp.BulkString(field))
	}
	return out.WriteTo(ex.Writer)
}

func hvals(v []resp.BulkString, ex *Extras) error {
	entries, err := hashScan(ex, []byte(v[0]))
	if err != nil {
		return err
	}
	out := make(resp.Array, 0, len(entries))
	for _, e := range entries {
		out = append(out, resp.BulkString(e.Value))
	}
	return out.WriteTo(ex.Writer)
}

func hmget(v []resp.BulkString, ex *Extras) error {
	if len(v) < 2 {
		return rodiserr.New(rodiserr.SyntaxError, rodiserr.ErrFmtSyntax)
	}
	key := []byte(v[0])
	fields := v[1:]

	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveHash(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		out := make(resp.Array, len(fields))
		if cleanup != nil || meta.Version == 0 {
			for i := range out {
				out[i] = resp.Nil
			}
			return cleanup, out, nil
		}
		for i, f := range fields {
			val, ok, err := snap.Get(codec.EncodeSub(key, meta.Version, codec.SubHash, []byte(f)))
			if err != nil {
				return nil, nil, err
			}
			if ok {
				out[i] = resp.BulkString(val)
			} else {
				out[i] = resp.Nil
			}
		}
		return nil, out, nil
	})
	if err != nil {
		return err
	}
	return res.(resp.Array).WriteTo(ex.Writer)
}
