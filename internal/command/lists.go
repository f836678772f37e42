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

// resolveList mirrors resolveHash for the List datatype (§4.5.3).
func resolveList(snap engine.Snapshot, key []byte, nowMs int64) (codec.Metadata, *engine.Batch, error) {
	meta, cleanup, err := expiry.Resolve(snap, key, nowMs)
	if err != nil {
		return codec.Metadata{}, nil, err
	}
	if cleanup != nil {
		return codec.Metadata{}, cleanup, nil
	}
	if meta.Version != 0 && meta.Type != metatype.List {
		return codec.Metadata{}, nil, expiry.ErrWrongType
	}
	return meta, nil, nil
}

func genericPush(ex *Extras, key []byte, values []resp.BulkString, left bool) (int64, error) {
	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveList(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		version := versionOrFresh(meta)
		l, r := meta.Left, meta.Right

		b := engine.NewBatch()
		if cleanup != nil {
			b.Ops = append(b.Ops, cleanup.Ops...)
		}
		for _, val := range values {
			if left {
				l--
				b.Put(codec.EncodeSub(key, version, codec.SubList, codec.EncodeIndex(l)), []byte(val))
			} else {
				b.Put(codec.EncodeSub(key, version, codec.SubList, codec.EncodeIndex(r)), []byte(val))
				r++
			}
		}
		b.Put(codec.EncodeMeta(key), codec.EncodeMetadata(codec.Metadata{
			Type: metatype.List, Version: version, ExpireMs: meta.ExpireMs, Left: l, Right: r,
		}))
		return b, r - l, nil
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

func lpush(v []resp.BulkString, ex *Extras) error {
	if len(v) < 2 {
		return rodiserr.New(rodiserr.SyntaxError, rodiserr.ErrFmtSyntax)
	}
	n, err := genericPush(ex, []byte(v[0]), v[1:], true)
	if err != nil {
		return err
	}
	return resp.Integer(n).WriteTo(ex.Writer)
}

func rpush(v []resp.BulkString, ex *Extras) error {
	if len(v) < 2 {
		return rodiserr.New(rodiserr.SyntaxError, rodiserr.ErrFmtSyntax)
	}
	n, err := genericPush(ex, []byte(v[0]), v[1:], false)
	if err != nil {
		return err
	}
	return resp.Integer(n).WriteTo(ex.Writer)
}

func genericPop(ex *Extras, key []byte, left bool) ([]byte, bool, error) {
	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveList(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		if cleanup != nil || meta.Version == 0 || meta.Left >= meta.Right {
			return cleanup, popResult{}, nil
		}

		var idx int64
		if left {
			idx = meta.Left
		} else {
			idx = meta.Right - 1
		}
		subKey := codec.EncodeSub(key, meta.Version, codec.SubList, codec.EncodeIndex(idx))
		val, ok, err := snap.Get(subKey)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return nil, popResult{}, nil
		}

		b := engine.NewBatch()
		b.Delete(subKey)
		newLeft, newRight := meta.Left, meta.Right
		if left {
			newLeft++
		} else {
			newRight--
		}
		if newLeft >= newRight {
			expiry.AppendDeleteBatch(b, key, meta)
		} else {
			b.Put(codec.EncodeMeta(key), codec.EncodeMetadata(codec.Metadata{
				Type: metatype.List, Version: meta.Version, ExpireMs: meta.ExpireMs, Left: newLeft, Right: newRight,
			}))
		}
		return b, popResult{found: true, value: val}, nil
	})
	if err != nil {
		return nil, false, err
	}
	pr := res.(popResult)
	return pr.value, pr.found, nil
}

type popResult struct {
	found bool
	value []byte
}

func lpop(v []resp.BulkString, ex *Extras) error {
	val, found, err := genericPop(ex, []byte(v[0]), true)
	if err != nil {
		return err
	}
	if !found {
		return resp.Nil.WriteTo(ex.Writer)
	}
	return resp.BulkString(val).WriteTo(ex.Writer)
}

func rpop(v []resp.BulkString, ex *Extras) error {
	val, found, err := genericPop(ex, []byte(v[0]), false)
	if err != nil {
		return err
	}
	if !found {
		return resp.Nil.WriteTo(ex.Writer)
	}
	return resp.BulkString(val).WriteTo(ex.Writer)
}

func llen(v []resp.BulkString, ex *Extras) error {
	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveList(snap, []byte(v[0]), ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		return cleanup, meta.Right - meta.Left, nil
	})
	if err != nil {
		return err
	}
	return resp.Integer(res.(int64)).WriteTo(ex.Writer)
}

// normalizeIndex resolves a possibly-negative logical list index i
// against length llen, returning the resolved index; callers check
// bounds against [0, llen).
func normalizeIndex(i, llen int64) int64 {
	if i < 0 {
		return llen + i
	}
	return i
}

func lindex(v []resp.BulkString, ex *Extras) error {
	i, err := strconv.ParseInt(v[1].String(), 10, 64)
	if err != nil {
		return rodiserr.New(rodiserr.NotAnInteger, rodiserr.ErrNotAnInteger)
	}
	key := []byte(v[0])

	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveList(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		if cleanup != nil || meta.Version == 0 {
			return cleanup, resp.BulkString(nil), nil
		}
		length := meta.Right - meta.Left
		idx := normalizeIndex(i, length)
		if idx < 0 || idx >= length {
			return nil, resp.BulkString(nil), nil
		}
		val, ok, err := snap.Get(codec.EncodeSub(key, meta.Version, codec.SubList, codec.EncodeIndex(meta.Left+idx)))
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

func lset(v []resp.BulkString, ex *Extras) error {
	i, err := strconv.ParseInt(v[1].String(), 10, 64)
	if err != nil {
		return rodiserr.New(rodiserr.NotAnInteger, rodiserr.ErrNotAnInteger)
	}
	key, value := []byte(v[0]), []byte(v[2])

	_, err = ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveList(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		if cleanup != nil || meta.Version == 0 {
			return cleanup, nil, rodiserr.New(rodiserr.OutOfRange, rodiserr.ErrIndexOutOfRange)
		}
		length := meta.Right - meta.Left
		idx := normalizeIndex(i, length)
		if idx < 0 || idx >= length {
			return nil, nil, rodiserr.New(rodiserr.OutOfRange, rodiserr.ErrIndexOutOfRange)
		}
		b := engine.NewBatch()
		b.Put(codec.EncodeSub(key, meta.Version, codec.SubList, codec.EncodeIndex(meta.Left+idx)), value)
		return b, nil, nil
	})
	if err != nil {
		return err
	}
	return resp.OK.WriteTo(ex.Writer)
}

func lrange(v []resp.BulkString, ex *Extras) error {
	start, err := strconv.ParseInt(v[1].String(), 10, 64)
	if err != nil {
		return rodiserr.New(rodiserr.NotAnInteger, rodiserr.ErrNotAnInteger)
	}
	stop, err := strconv.ParseInt(v[2].String(), 10, 64)
	if err != nil {
		return rodiserr.New(rodiserr.NotAnInteger, rodiserr.ErrNotAnInteger)
	}
	key := []byte(v[0])

	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveList(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		if cleanup != nil || meta.Version == 0 {
			return cleanup, resp.Array(nil), nil
		}
		length := meta.Right - meta.Left
		s, e := clampRange(start, stop, length)
		if s >= e {
			return nil, resp.Array{}, nil
		}
		lower := codec.EncodeSub(key, meta.Version, codec.SubList, codec.EncodeIndex(meta.Left+s))
		upperIdx := codec.EncodeSub(key, meta.Version, codec.SubList, codec.EncodeIndex(meta.Left+e-1))
		upper := codec.PrefixUpperBound(upperIdx)
		entries, err := snap.Scan(lower, upper, 0, false)
		if err != nil {
			return nil, nil, err
		}
		out := make(resp.Array, len(entries))
		for i, entry := range entries {
			out[i] = resp.BulkString(entry.Value)
		}
		return nil, out, nil
	})
	if err != nil {
		return err
	}
	return res.(resp.Array).WriteTo(ex.Writer)
}

// clampRange resolves LRANGE-style negative indices and clamps into
// [0, length), returning a half-open [s, e) window.
func clampRange(start, stop, length int64) (int64, int64) {
	s := normalizeIndex(start, length)
	e := normalizeIndex(stop, length)
	if s < 0 {
		s = 0
	}
	if e >= length {
		e = length - 1
	}
	if s > e || length == 0 {
		return 0, 0
	}
	return s, e + 1
}

func ltrim(v []resp.BulkString, ex *Extras) error {
	start, err := strconv.ParseInt(v[1].String(), 10, 64)
	if err != nil {
		return rodiserr.New(rodiserr.NotAnInteger, rodiserr.ErrNotAnInteger)
	}
	stop, err := strconv.ParseInt(v[2].String(), 10, 64)
	if err != nil {
		return rodiserr.New(rodiserr.NotAnInteger, rodiserr.ErrNotAnInteger)
	}
	key := []byte(v[0])

	_, err = ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveList(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		if cleanup != nil || meta.Version == 0 {
			return cleanup, nil, nil
		}
		length := meta.Right - meta.Left
		s, e := clampRange(start, stop, length)

		b := engine.NewBatch()
		if s >= e {
			expiry.AppendDeleteBatch(b, key, meta)
			return b, nil, nil
		}
		for i := int64(0); i < s; i++ {
			b.Delete(codec.EncodeSub(key, meta.Version, codec.SubList, codec.EncodeIndex(meta.Left+i)))
		}
		for i := e; i < length; i++ {
			b.Delete(codec.EncodeSub(key, meta.Version, codec.SubList, codec.EncodeIndex(meta.Left+i)))
		}
		b.Put(codec.EncodeMeta(key), codec.EncodeMetadata(codec.Metadata{
			Type: metatype.List, Version: meta.Version, ExpireMs: meta.ExpireMs,
			Left: meta.Left + s, Right: meta.Left + e,
		}))
		return b, nil, nil
	})
	if err != nil {
		return err
	}
	return resp.OK.WriteTo(ex.Writer)
}

// linsert performs a forward scan to find the first occurrence of pivot
// and shifts every element on the insertion side by one index to make
// room, keeping indices dense and unique (§4.5.3).
func linsert(v []resp.BulkString, ex *Extras) error {
	key := []byte(v[0])
	where := v[1].String()
	before := false
	switch where {
	case "BEFORE", "before":
		before = true
	case "AFTER", "after":
		before = false
	default:
		return rodiserr.New(rodiserr.SyntaxError, rodiserr.ErrFmtSyntax)
	}
	pivot, value := []byte(v[2]), []byte(v[3])

	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveList(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		if cleanup != nil || meta.Version == 0 {
			return cleanup, int64(0), nil
		}

		prefix := codec.DataPrefix(key, meta.Version, codec.SubList)
		entries, err := snap.Scan(prefix, codec.PrefixUpperBound(prefix), 0, false)
		if err != nil {
			return nil, nil, err
		}

		pivotPos := -1
		for i, e := range entries {
			if bytesEqual(e.Value, pivot) {
				pivotPos = i
				break
			}
		}
		if pivotPos == -1 {
			return nil, int64(-1), nil
		}

		b := engine.NewBatch()
		insertAfterPos := pivotPos
		if before {
			insertAfterPos = pivotPos - 1
		}

		// Rewrite every subkey from insertAfterPos+1 onward, shifted one
		// slot to the right, then place the new value in the freed slot.
		// The whole tail after the insertion point is always rewritten,
		// whichever side is shorter.
		newLeft, newRight := meta.Left, meta.Right+1
		for i := len(entries) - 1; i > insertAfterPos; i-- {
			newIdx := meta.Left + int64(i) + 1
			b.Put(codec.EncodeSub(key, meta.Version, codec.SubList, codec.EncodeIndex(newIdx)), entries[i].Value)
		}
		b.Put(codec.EncodeSub(key, meta.Version, codec.SubList, codec.EncodeIndex(meta.Left+int64(insertAfterPos)+1)), value)
		b.Put(codec.EncodeMeta(key), codec.EncodeMetadata(codec.Metadata{
			Type: metatype.List, Version: meta.Version, ExpireMs: meta.ExpireMs, Left: newLeft, Right: newRight,
		}))
		return b, newRight - newLeft, nil
	})
	if err != nil {
		return err
	}
	return resp.Integer(res.(int64)).WriteTo(ex.Writer)
}

// lrem removes occurrences of element from the list, direction and count
// controlled by count: count > 0 removes the first count occurrences
// scanning head-to-tail, count < 0 removes the last |count| occurrences
// scanning tail-to-head, and count == 0 removes every occurrence.
func lrem(v []resp.BulkString, ex *Extras) error {
	count, err := strconv.ParseInt(v[1].String(), 10, 64)
	if err != nil {
		return rodiserr.New(rodiserr.NotAnInteger, rodiserr.ErrNotAnInteger)
	}
	key, elem := []byte(v[0]), []byte(v[2])

	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveList(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		if cleanup != nil || meta.Version == 0 {
			return cleanup, int64(0), nil
		}

		prefix := codec.DataPrefix(key, meta.Version, codec.SubList)
		entries, err := snap.Scan(prefix, codec.PrefixUpperBound(prefix), 0, false)
		if err != nil {
			return nil, nil, err
		}

		remove := make([]bool, len(entries))
		removed := int64(0)
		if count >= 0 {
			for i := 0; i < len(entries) && (count == 0 || removed < count); i++ {
				if bytesEqual(entries[i].Value, elem) {
					remove[i] = true
					removed++
				}
			}
		} else {
			limit := -count
			for i := len(entries) - 1; i >= 0 && removed < limit; i-- {
				if bytesEqual(entries[i].Value, elem) {
					remove[i] = true
					removed++
				}
			}
		}
		if removed == 0 {
			return nil, int64(0), nil
		}

		kept := make([][]byte, 0, len(entries)-int(removed))
		for i, e := range entries {
			if !remove[i] {
				kept = append(kept, e.Value)
			}
		}

		b := engine.NewBatch()
		for i := range entries {
			b.Delete(codec.EncodeSub(key, meta.Version, codec.SubList, codec.EncodeIndex(meta.Left+int64(i))))
		}
		if len(kept) == 0 {
			expiry.AppendDeleteBatch(b, key, meta)
			return b, removed, nil
		}
		for i, val := range kept {
			b.Put(codec.EncodeSub(key, meta.Version, codec.SubList, codec.EncodeIndex(meta.Left+int64(i))), val)
		}
		b.Put(codec.EncodeMeta(key), codec.EncodeMetadata(codec.Metadata{
			Type: metatype.List, Version: meta.Version, ExpireMs: meta.ExpireMs,
			Left: meta.Left, Right: meta.Left + int64(len(kept)),
		}))
		return b, removed, nil
	})
	if err != nil {
		return err
	}
	return resp.Integer(res.(int64)).WriteTo(ex.Writer)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
