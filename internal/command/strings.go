// Copyright (c) 2015, Rod Dong <rod.dong@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by The MIT License.

package command

import (
	"strconv"
	"strings"

	"github.com/lsmdb/rodis/internal/codec"
	"github.com/lsmdb/rodis/internal/engine"
	"github.com/lsmdb/rodis/internal/expiry"
	"github.com/lsmdb/rodis/internal/metatype"
	"github.com/lsmdb/rodis/internal/resp"
	"github.com/lsmdb/rodis/internal/rodiserr"
)

// readString resolves key through the lazy-expiry rule and returns its
// string value, applying any cleanup batch the resolution produced.
// found is false for an absent or just-expired key.
func readString(ex *Extras, key []byte) (value []byte, found bool, err error) {
	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := expiry.Resolve(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		if cleanup != nil {
			return cleanup, stringResult{}, nil
		}
		if meta.Version == 0 {
			return nil, stringResult{}, nil
		}
		if meta.Type != metatype.String {
			return nil, nil, expiry.ErrWrongType
		}
		return nil, stringResult{found: true, value: meta.Value}, nil
	})
	if err != nil {
		return nil, false, err
	}
	sr := res.(stringResult)
	return sr.value, sr.found, nil
}

type stringResult struct {
	found bool
	value []byte
}

// writeString upserts key as a String, replacing whatever it held
// before (any prior composite value's subkeys become unreachable once
// the version bumps; they are not deleted, and the sweeper does not
// remove them).
func writeString(ex *Extras, key, value []byte, expireMs int64) error {
	_, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		prior, ok, err := expiry.ReadMeta(snap, key)
		if err != nil {
			return nil, nil, err
		}
		version := uint64(1)
		oldExpireMs := int64(0)
		if ok {
			version = prior.Version + 1
			oldExpireMs = prior.ExpireMs
		}

		b := engine.NewBatch()
		b.Put(codec.EncodeMeta(key), codec.EncodeMetadata(codec.Metadata{
			Type:     metatype.String,
			Version:  version,
			ExpireMs: expireMs,
			Value:    value,
		}))
		expiry.UpdateExpireIndex(b, key, oldExpireMs, expireMs)
		return b, nil, nil
	})
	return err
}

func get(v []resp.BulkString, ex *Extras) error {
	value, found, err := readString(ex, v[0])
	if err != nil {
		return err
	}
	if !found {
		return resp.Nil.WriteTo(ex.Writer)
	}
	return resp.BulkString(value).WriteTo(ex.Writer)
}

func set(v []resp.BulkString, ex *Extras) error {
	if len(v) < 2 {
		return rodiserr.New(rodiserr.SyntaxError, rodiserr.ErrFmtSyntax)
	}
	key, value := []byte(v[0]), []byte(v[1])

	expireMs := int64(0)
	nx, xx := false, false

	for i := 2; i < len(v); i++ {
		opt := strings.ToUpper(v[i].String())
		switch opt {
		case "EX", "PX":
			if i+1 >= len(v) {
				return rodiserr.New(rodiserr.SyntaxError, rodiserr.ErrFmtSyntax)
			}
			n, err := strconv.ParseInt(v[i+1].String(), 10, 64)
			if err != nil {
				return rodiserr.New(rodiserr.NotAnInteger, rodiserr.ErrNotAnInteger)
			}
			if opt == "EX" {
				expireMs = ex.nowMs() + n*1000
			} else {
				expireMs = ex.nowMs() + n
			}
			i++
		case "NX":
			nx = true
		case "XX":
			xx = true
		default:
			return rodiserr.New(rodiserr.SyntaxError, rodiserr.ErrFmtSyntax)
		}
	}

	if nx && xx {
		return rodiserr.New(rodiserr.SyntaxError, rodiserr.ErrFmtSyntax)
	}

	if nx || xx {
		_, found, err := readString(ex, key)
		if err != nil && !rodiserr.Is(err, rodiserr.WrongType) {
			return err
		}
		exists := found || rodiserr.Is(err, rodiserr.WrongType)
		if nx && exists {
			return resp.Nil.WriteTo(ex.Writer)
		}
		if xx && !exists {
			return resp.Nil.WriteTo(ex.Writer)
		}
	}

	if err := writeString(ex, key, value, expireMs); err != nil {
		return err
	}
	return resp.OK.WriteTo(ex.Writer)
}

func setnx(v []resp.BulkString, ex *Extras) error {
	_, found, err := readString(ex, v[0])
	if err != nil && !rodiserr.Is(err, rodiserr.WrongType) {
		return err
	}
	exists := found || rodiserr.Is(err, rodiserr.WrongType)
	if exists {
		return resp.Integer(0).WriteTo(ex.Writer)
	}
	if err := writeString(ex, v[0], v[1], 0); err != nil {
		return err
	}
	return resp.Integer(1).WriteTo(ex.Writer)
}

func getset(v []resp.BulkString, ex *Extras) error {
	old, found, err := readString(ex, v[0])
	if err != nil {
		return err
	}
	if err := writeString(ex, v[0], v[1], 0); err != nil {
		return err
	}
	if !found {
		return resp.Nil.WriteTo(ex.Writer)
	}
	return resp.BulkString(old).WriteTo(ex.Writer)
}

func appendx(v []resp.BulkString, ex *Extras) error {
	old, _, err := readString(ex, v[0])
	if err != nil {
		return err
	}
	newVal := append(append([]byte(nil), old...), v[1]...)
	if err := writeString(ex, v[0], newVal, 0); err != nil {
		return err
	}
	return resp.Integer(len(newVal)).WriteTo(ex.Writer)
}

func strlen(v []resp.BulkString, ex *Extras) error {
	val, found, err := readString(ex, v[0])
	if err != nil {
		return err
	}
	if !found {
		return resp.Integer(0).WriteTo(ex.Writer)
	}
	return resp.Integer(len(val)).WriteTo(ex.Writer)
}

func mget(v []resp.BulkString, ex *Extras) error {
	out := make(resp.Array, len(v))
	for i, k := range v {
		val, found, err := readString(ex, k)
		if err != nil && !rodiserr.Is(err, rodiserr.WrongType) {
			return err
		}
		if !found || err != nil {
			out[i] = resp.Nil
		} else {
			out[i] = resp.BulkString(val)
		}
	}
	return out.WriteTo(ex.Writer)
}

func mset(v []resp.BulkString, ex *Extras) error {
	if len(v) == 0 || len(v)%2 != 0 {
		return rodiserr.New(rodiserr.SyntaxError, rodiserr.ErrFmtSyntax)
	}
	for i := 0; i < len(v); i += 2 {
		if err := writeString(ex, v[i], v[i+1], 0); err != nil {
			return err
		}
	}
	return resp.OK.WriteTo(ex.Writer)
}

func msetnx(v []resp.BulkString, ex *Extras) error {
	if len(v) == 0 || len(v)%2 != 0 {
		return rodiserr.New(rodiserr.SyntaxError, rodiserr.ErrFmtSyntax)
	}
	for i := 0; i < len(v); i += 2 {
		_, found, err := readString(ex, v[i])
		if err != nil && !rodiserr.Is(err, rodiserr.WrongType) {
			return err
		}
		if found || rodiserr.Is(err, rodiserr.WrongType) {
			return resp.Integer(0).WriteTo(ex.Writer)
		}
	}
	for i := 0; i < len(v); i += 2 {
		if err := writeString(ex, v[i], v[i+1], 0); err != nil {
			return err
		}
	}
	return resp.Integer(1).WriteTo(ex.Writer)
}

// addInt64Overflows reports whether a+b would overflow int64. It computes
// the wrapping sum and compares it with a: a positive b that yields a
// smaller sum, or a negative b that yields a larger one, has overflowed.
func addInt64Overflows(a, b int64) bool {
	sum := a + b
	return (b > 0 && sum < a) || (b < 0 && sum > a)
}

func incrByHelper(ex *Extras, key []byte, delta int64) (int64, error) {
	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := expiry.Resolve(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		var cur int64
		expireMs := int64(0)
		version := uint64(1)
		if cleanup == nil && meta.Version != 0 {
			if meta.Type != metatype.String {
				return nil, nil, expiry.ErrWrongType
			}
			cur, err = strconv.ParseInt(string(meta.Value), 10, 64)
			if err != nil {
				return nil, nil, rodiserr.New(rodiserr.NotAnInteger, rodiserr.ErrNotAnInteger)
			}
			expireMs = meta.ExpireMs
			version = meta.Version + 1
		}

		if addInt64Overflows(cur, delta) {
			return nil, nil, rodiserr.New(rodiserr.NotAnInteger, rodiserr.ErrNotAnInteger)
		}
		next := cur + delta
		b := engine.NewBatch()
		if cleanup != nil {
			b.Ops = append(b.Ops, cleanup.Ops...)
		}
		b.Put(codec.EncodeMeta(key), codec.EncodeMetadata(codec.Metadata{
			Type:     metatype.String,
			Version:  version,
			ExpireMs: expireMs,
			Value:    []byte(strconv.FormatInt(next, 10)),
		}))
		return b, next, nil
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

func incr(v []resp.BulkString, ex *Extras) error {
	n, err := incrByHelper(ex, v[0], 1)
	if err != nil {
		return err
	}
	return resp.Integer(n).WriteTo(ex.Writer)
}

func decr(v []resp.BulkString, ex *Extras) error {
	n, err := incrByHelper(ex, v[0], -1)
	if err != nil {
		return err
	}
	return resp.Integer(n).WriteTo(ex.Writer)
}

func incrby(v []resp.BulkString, ex *Extras) error {
	by, err := strconv.ParseInt(v[1].String(), 10, 64)
	if err != nil {
		return rodiserr.New(rodiserr.NotAnInteger, rodiserr.ErrNotAnInteger)
	}
	n, err := incrByHelper(ex, v[0], by)
	if err != nil {
		return err
	}
	return resp.Integer(n).WriteTo(ex.Writer)
}

func decrby(v []resp.BulkString, ex *Extras) error {
	by, err := strconv.ParseInt(v[1].String(), 10, 64)
	if err != nil {
		return rodiserr.New(rodiserr.NotAnInteger, rodiserr.ErrNotAnInteger)
	}
	n, err := incrByHelper(ex, v[0], -by)
	if err != nil {
		return err
	}
	return resp.Integer(n).WriteTo(ex.Writer)
}

func incrbyfloat(v []resp.BulkString, ex *Extras) error {
	by, err := strconv.ParseFloat(v[1].String(), 64)
	if err != nil {
		return rodiserr.New(rodiserr.NotAFloat, rodiserr.ErrNotAFloat)
	}

	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		key := []byte(v[0])
		meta, cleanup, err := expiry.Resolve(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		cur := 0.0
		expireMs := int64(0)
		version := uint64(1)
		if cleanup == nil && meta.Version != 0 {
			if meta.Type != metatype.String {
				return nil, nil, expiry.ErrWrongType
			}
			cur, err = strconv.ParseFloat(string(meta.Value), 64)
			if err != nil {
				return nil, nil, rodiserr.New(rodiserr.NotAFloat, rodiserr.ErrNotAFloat)
			}
			expireMs = meta.ExpireMs
			version = meta.Version + 1
		}

		next := cur + by
		formatted := strconv.FormatFloat(next, 'f', -1, 64)
		b := engine.NewBatch()
		if cleanup != nil {
			b.Ops = append(b.Ops, cleanup.Ops...)
		}
		b.Put(codec.EncodeMeta(key), codec.EncodeMetadata(codec.Metadata{
			Type:     metatype.String,
			Version:  version,
			ExpireMs: expireMs,
			Value:    []byte(formatted),
		}))
		return b, formatted, nil
	})
	if err != nil {
		return err
	}
	return resp.BulkString(res.(string)).WriteTo(ex.Writer)
}
