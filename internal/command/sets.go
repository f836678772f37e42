// Copyright (c) 2015, Rod Dong <rod.dong@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by The MIT License.

package command

import (
	"math/rand"
	"strconv"

	"github.com/lsmdb/rodis/internal/codec"
	"github.com/lsmdb/rodis/internal/engine"
	"github.com/lsmdb/rodis/internal/expiry"
	"github.com/lsmdb/rodis/internal/metatype"
	"github.com/lsmdb/rodis/internal/resp"
	"github.com/lsmdb/rodis/internal/rodiserr"
)

// resolveSet mirrors resolveHash for the Set datatype (§4.5.4).
func resolveSet(snap engine.Snapshot, key []byte, nowMs int64) (codec.Metadata, *engine.Batch, error) {
	meta, cleanup, err := expiry.Resolve(snap, key, nowMs)
	if err != nil {
		return codec.Metadata{}, nil, err
	}
	if cleanup != nil {
		return codec.Metadata{}, cleanup, nil
	}
	if meta.Version != 0 && meta.Type != metatype.Set {
		return codec.Metadata{}, nil, expiry.ErrWrongType
	}
	return meta, nil, nil
}

func sadd(v []resp.BulkString, ex *Extras) error {
	if len(v) < 2 {
		return rodiserr.New(rodiserr.SyntaxError, rodiserr.ErrFmtSyntax)
	}
	key := []byte(v[0])
	members := v[1:]

	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveSet(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		version := versionOrFresh(meta)

		b := engine.NewBatch()
		if cleanup != nil {
			b.Ops = append(b.Ops, cleanup.Ops...)
		}
		added := uint64(0)
		pending := map[string]bool{}
		for _, m := range members {
			memBytes := []byte(m)
			if pending[string(memBytes)] {
				continue
			}
			existed := false
			if cleanup == nil && meta.Version != 0 {
				_, ok, err := snap.Get(codec.EncodeSub(key, version, codec.SubSet, memBytes))
				if err != nil {
					return nil, nil, err
				}
				existed = ok
			}
			pending[string(memBytes)] = true
			if existed {
				continue
			}
			b.Put(codec.EncodeSub(key, version, codec.SubSet, memBytes), []byte{})
			added++
		}
		if added == 0 && meta.Version != 0 && cleanup == nil {
			return nil, int64(0), nil
		}
		b.Put(codec.EncodeMeta(key), codec.EncodeMetadata(codec.Metadata{
			Type: metatype.Set, Version: version, ExpireMs: meta.ExpireMs, Count: meta.Count + added,
		}))
		return b, int64(added), nil
	})
	if err != nil {
		return err
	}
	return resp.Integer(res.(int64)).WriteTo(ex.Writer)
}

func srem(v []resp.BulkString, ex *Extras) error {
	if len(v) < 2 {
		return rodiserr.New(rodiserr.SyntaxError, rodiserr.ErrFmtSyntax)
	}
	key := []byte(v[0])
	members := v[1:]

	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveSet(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		if cleanup != nil || meta.Version == 0 {
			return cleanup, int64(0), nil
		}

		b := engine.NewBatch()
		removed := uint64(0)
		for _, m := range members {
			subKey := codec.EncodeSub(key, meta.Version, codec.SubSet, []byte(m))
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
			return nil, int64(0), nil
		}
		newCount := meta.Count - removed
		if newCount == 0 {
			expiry.AppendDeleteBatch(b, key, meta)
		} else {
			b.Put(codec.EncodeMeta(key), codec.EncodeMetadata(codec.Metadata{
				Type: metatype.Set, Version: meta.Version, ExpireMs: meta.ExpireMs, Count: newCount,
			}))
		}
		return b, int64(removed), nil
	})
	if err != nil {
		return err
	}
	return resp.Integer(res.(int64)).WriteTo(ex.Writer)
}

func sismember(v []resp.BulkString, ex *Extras) error {
	key, member := []byte(v[0]), []byte(v[1])
	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveSet(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		if cleanup != nil || meta.Version == 0 {
			return cleanup, false, nil
		}
		_, ok, err := snap.Get(codec.EncodeSub(key, meta.Version, codec.SubSet, member))
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

func smismember(v []resp.BulkString, ex *Extras) error {
	if len(v) < 2 {
		return rodiserr.New(rodiserr.SyntaxError, rodiserr.ErrFmtSyntax)
	}
	key := []byte(v[0])
	members := v[1:]

	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveSet(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		out := make(resp.Array, len(members))
		if cleanup != nil || meta.Version == 0 {
			for i := range out {
				out[i] = resp.Integer(0)
			}
			return cleanup, out, nil
		}
		for i, m := range members {
			_, ok, err := snap.Get(codec.EncodeSub(key, meta.Version, codec.SubSet, []byte(m)))
			if err != nil {
				return nil, nil, err
			}
			if ok {
				out[i] = resp.Integer(1)
			} else {
				out[i] = resp.Integer(0)
			}
		}
		return nil, out, nil
	})
	if err != nil {
		return err
	}
	return res.(resp.Array).WriteTo(ex.Writer)
}

func scard(v []resp.BulkString, ex *Extras) error {
	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveSet(snap, []byte(v[0]), ex.nowMs())
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

// setScan returns every member of the set at key, or nil if absent.
func setScan(ex *Extras, key []byte) ([][]byte, error) {
	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveSet(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		if cleanup != nil || meta.Version == 0 {
			return cleanup, [][]byte(nil), nil
		}
		prefix := codec.DataPrefix(key, meta.Version, codec.SubSet)
		entries, err := snap.Scan(prefix, codec.PrefixUpperBound(prefix), 0, false)
		if err != nil {
			return nil, nil, err
		}
		members := make([][]byte, len(entries))
		for i, e := range entries {
			_, _, _, member, decErr := codec.DecodeSub(e.Key)
			if decErr != nil {
				return nil, nil, decErr
			}
			members[i] = member
		}
		return nil, members, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([][]byte), nil
}

func smembers(v []resp.BulkString, ex *Extras) error {
	members, err := setScan(ex, []byte(v[0]))
	if err != nil {
		return err
	}
	out := make(resp.Array, len(members))
	for i, m := range members {
		out[i] = resp.BulkString(m)
	}
	return out.WriteTo(ex.Writer)
}

func spop(v []resp.BulkString, ex *Extras) error {
	count := int64(1)
	multi := false
	if len(v) >= 2 {
		var err error
		count, err = strconvParseCount(v[1].String())
		if err != nil {
			return err
		}
		multi = true
	}
	key := []byte(v[0])

	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveSet(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		if cleanup != nil || meta.Version == 0 {
			return cleanup, [][]byte(nil), nil
		}
		prefix := codec.DataPrefix(key, meta.Version, codec.SubSet)
		entries, err := snap.Scan(prefix, codec.PrefixUpperBound(prefix), 0, false)
		if err != nil {
			return nil, nil, err
		}
		if int64(len(entries)) > count {
			entries = entries[:count]
		}

		b := engine.NewBatch()
		popped := make([][]byte, len(entries))
		for i, e := range entries {
			_, _, _, member, decErr := codec.DecodeSub(e.Key)
			if decErr != nil {
				return nil, nil, decErr
			}
			popped[i] = member
			b.Delete(e.Key)
		}
		newCount := meta.Count - uint64(len(popped))
		if newCount == 0 {
			expiry.AppendDeleteBatch(b, key, meta)
		} else {
			b.Put(codec.EncodeMeta(key), codec.EncodeMetadata(codec.Metadata{
				Type: metatype.Set, Version: meta.Version, ExpireMs: meta.ExpireMs, Count: newCount,
			}))
		}
		return b, popped, nil
	})
	if err != nil {
		return err
	}
	popped := res.([][]byte)
	if !multi {
		if len(popped) == 0 {
			return resp.Nil.WriteTo(ex.Writer)
		}
		return resp.BulkString(popped[0]).WriteTo(ex.Writer)
	}
	out := make(resp.Array, len(popped))
	for i, m := range popped {
		out[i] = resp.BulkString(m)
	}
	return out.WriteTo(ex.Writer)
}

func srandmember(v []resp.BulkString, ex *Extras) error {
	members, err := setScan(ex, []byte(v[0]))
	if err != nil {
		return err
	}
	if len(v) == 1 {
		if len(members) == 0 {
			return resp.Nil.WriteTo(ex.Writer)
		}
		return resp.BulkString(members[rand.Intn(len(members))]).WriteTo(ex.Writer)
	}
	count, err := strconvParseCount(v[1].String())
	if err != nil {
		return err
	}
	if count >= 0 {
		// distinct members, up to len(members)
		perm := rand.Perm(len(members))
		n := int(count)
		if n > len(members) {
			n = len(members)
		}
		out := make(resp.Array, n)
		for i := 0; i < n; i++ {
			out[i] = resp.BulkString(members[perm[i]])
		}
		return out.WriteTo(ex.Writer)
	}
	// negative count: sample with replacement, exactly -count results
	n := int(-count)
	out := make(resp.Array, n)
	for i := 0; i < n; i++ {
		if len(members) == 0 {
			out[i] = resp.Nil
			continue
		}
		out[i] = resp.BulkString(members[rand.Intn(len(members))])
	}
	return out.WriteTo(ex.Writer)
}

func strconvParseCount(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, rodiserr.New(rodiserr.NotAnInteger, rodiserr.ErrNotAnInteger)
	}
	return n, nil
}

// setOp computes the union, intersection or difference of the sets named
// by keys, treating a missing key as an empty set.
type setOpFn func(sets [][][]byte) [][]byte

func setUnion(sets [][][]byte) [][]byte {
	seen := map[string][]byte{}
	for _, s := range sets {
		for _, m := range s {
			seen[string(m)] = m
		}
	}
	out := make([][]byte, 0, len(seen))
	for _, m := range seen {
		out = append(out, m)
	}
	return out
}

func setInter(sets [][][]byte) [][]byte {
	if len(sets) == 0 {
		return nil
	}
	counts := map[string]int{}
	values := map[string][]byte{}
	for _, s := range sets {
		distinct := map[string]bool{}
		for _, m := range s {
			distinct[string(m)] = true
			values[string(m)] = m
		}
		for m := range distinct {
			counts[m]++
		}
	}
	out := make([][]byte, 0)
	for m, c := range counts {
		if c == len(sets) {
			out = append(out, values[m])
		}
	}
	return out
}

func setDiff(sets [][][]byte) [][]byte {
	if len(sets) == 0 {
		return nil
	}
	excluded := map[string]bool{}
	for _, s := range sets[1:] {
		for _, m := range s {
			excluded[string(m)] = true
		}
	}
	out := make([][]byte, 0)
	for _, m := range sets[0] {
		if !excluded[string(m)] {
			out = append(out, m)
		}
	}
	return out
}

func genericSetOp(ex *Extras, keys []resp.BulkString, op setOpFn) ([][]byte, error) {
	sets := make([][][]byte, len(keys))
	for i, k := range keys {
		members, err := setScan(ex, []byte(k))
		if err != nil {
			return nil, err
		}
		sets[i] = members
	}
	return op(sets), nil
}

func sunion(v []resp.BulkString, ex *Extras) error {
	if len(v) == 0 {
		return rodiserr.New(rodiserr.SyntaxError, rodiserr.ErrFmtSyntax)
	}
	members, err := genericSetOp(ex, v, setUnion)
	if err != nil {
		return err
	}
	return membersArray(members).WriteTo(ex.Writer)
}

func sinter(v []resp.BulkString, ex *Extras) error {
	if len(v) == 0 {
		return rodiserr.New(rodiserr.SyntaxError, rodiserr.ErrFmtSyntax)
	}
	members, err := genericSetOp(ex, v, setInter)
	if err != nil {
		return err
	}
	return membersArray(members).WriteTo(ex.Writer)
}

func sdiff(v []resp.BulkString, ex *Extras) error {
	if len(v) == 0 {
		return rodiserr.New(rodiserr.SyntaxError, rodiserr.ErrFmtSyntax)
	}
	members, err := genericSetOp(ex, v, setDiff)
	if err != nil {
		return err
	}
	return membersArray(members).WriteTo(ex.Writer)
}

func membersArray(members [][]byte) resp.Array {
	out := make(resp.Array, len(members))
	for i, m := range members {
		out[i] = resp.BulkString(m)
	}
	return out
}

// storeMembers overwrites dst with the given member set, version-bumping
// or deleting it as needed, mirroring the write side of SADD/DEL.
func storeMembers(ex *Extras, dst []byte, members [][]byte) (int64, error) {
	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveSet(snap, dst, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		b := engine.NewBatch()
		if cleanup != nil {
			b.Ops = append(b.Ops, cleanup.Ops...)
		}
		if meta.Version != 0 {
			expiry.AppendDeleteBatch(b, dst, meta)
		}
		if len(members) == 0 {
			return b, int64(0), nil
		}
		version := meta.Version + 1
		for _, m := range members {
			b.Put(codec.EncodeSub(dst, version, codec.SubSet, m), []byte{})
		}
		b.Put(codec.EncodeMeta(dst), codec.EncodeMetadata(codec.Metadata{
			Type: metatype.Set, Version: version, Count: uint64(len(members)),
		}))
		return b, int64(len(members)), nil
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

func sunionstore(v []resp.BulkString, ex *Extras) error {
	if len(v) < 2 {
		return rodiserr.New(rodiserr.SyntaxError, rodiserr.ErrFmtSyntax)
	}
	members, err := genericSetOp(ex, v[1:], setUnion)
	if err != nil {
		return err
	}
	n, err := storeMembers(ex, []byte(v[0]), members)
	if err != nil {
		return err
	}
	return resp.Integer(n).WriteTo(ex.Writer)
}

func sinterstore(v []resp.BulkString, ex *Extras) error {
	if len(v) < 2 {
		return rodiserr.New(rodiserr.SyntaxError, rodiserr.ErrFmtSyntax)
	}
	members, err := genericSetOp(ex, v[1:], setInter)
	if err != nil {
		return err
	}
	n, err := storeMembers(ex, []byte(v[0]), members)
	if err != nil {
		return err
	}
	return resp.Integer(n).WriteTo(ex.Writer)
}

func sdiffstore(v []resp.BulkString, ex *Extras) error {
	if len(v) < 2 {
		return rodiserr.New(rodiserr.SyntaxError, rodiserr.ErrFmtSyntax)
	}
	members, err := genericSetOp(ex, v[1:], setDiff)
	if err != nil {
		return err
	}
	n, err := storeMembers(ex, []byte(v[0]), members)
	if err != nil {
		return err
	}
	return resp.Integer(n).WriteTo(ex.Writer)
}
