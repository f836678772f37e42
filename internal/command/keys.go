// Copyright (c) 2015, Rod Dong <rod.dong@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by The MIT License.

package command

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/lsmdb/rodis/internal/codec"
	"github.com/lsmdb/rodis/internal/engine"
	"github.com/lsmdb/rodis/internal/expiry"
	"github.com/lsmdb/rodis/internal/metatype"
	"github.com/lsmdb/rodis/internal/resp"
	"github.com/lsmdb/rodis/internal/rodiserr"
)

// deleteKey bumps the metadata version and removes the metadata and
// expiration-index entries, per the O(1) logical-delete lifecycle in
// §3.5. Subkeys are not deleted, and the sweeper does not remove them
// either. Returns true iff
// a live (non-expired) key was actually removed.
func deleteKey(ex *Extras, key []byte) (bool, error) {
	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := expiry.Resolve(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		if cleanup != nil {
			return cleanup, false, nil
		}
		if meta.Version == 0 {
			return nil, false, nil
		}
		b := engine.NewBatch()
		expiry.AppendDeleteBatch(b, key, meta)
		return b, true, nil
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

func del(v []resp.BulkString, ex *Extras) error {
	if len(v) == 0 {
		return rodiserr.New(rodiserr.SyntaxError, rodiserr.ErrFmtSyntax)
	}
	count := 0
	for _, k := range v {
		removed, err := deleteKey(ex, k)
		if err != nil {
			return err
		}
		if removed {
			count++
		}
	}
	return resp.Integer(count).WriteTo(ex.Writer)
}

func exists(v []resp.BulkString, ex *Extras) error {
	if len(v) == 0 {
		return rodiserr.New(rodiserr.SyntaxError, rodiserr.ErrFmtSyntax)
	}
	count := 0
	for _, k := range v {
		res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
			meta, cleanup, err := expiry.Resolve(snap, k, ex.nowMs())
			if err != nil {
				return nil, nil, err
			}
			return cleanup, meta.Version != 0, nil
		})
		if err != nil {
			return err
		}
		if res.(bool) {
			count++
		}
	}
	return resp.Integer(count).WriteTo(ex.Writer)
}

func typeCmd(v []resp.BulkString, ex *Extras) error {
	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := expiry.Resolve(snap, v[0], ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		if cleanup != nil {
			return cleanup, metatype.None, nil
		}
		if meta.Version == 0 {
			return nil, metatype.None, nil
		}
		return nil, meta.Type, nil
	})
	if err != nil {
		return err
	}
	return resp.SimpleString(res.(metatype.DataType).String()).WriteTo(ex.Writer)
}

// genericExpire is shared by EXPIRE/PEXPIRE/EXPIREAT/PEXPIREAT; toAbsoluteMs
// converts the parsed argument into an absolute ms timestamp.
func genericExpire(v []resp.BulkString, ex *Extras, toAbsoluteMs func(n int64, nowMs int64) int64) error {
	n, err := strconv.ParseInt(v[1].String(), 10, 64)
	if err != nil {
		return rodiserr.New(rodiserr.NotAnInteger, rodiserr.ErrNotAnInteger)
	}
	key := []byte(v[0])

	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := expiry.Resolve(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		if cleanup != nil {
			return cleanup, false, nil
		}
		if meta.Version == 0 {
			return nil, false, nil
		}
		newExpireMs := toAbsoluteMs(n, ex.nowMs())
		b := engine.NewBatch()
		b.Put(codec.EncodeMeta(key), codec.EncodeMetadata(codec.Metadata{
			Type: meta.Type, Version: meta.Version, ExpireMs: newExpireMs,
			Count: meta.Count, Left: meta.Left, Right: meta.Right, Value: meta.Value,
		}))
		expiry.UpdateExpireIndex(b, key, meta.ExpireMs, newExpireMs)
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

func expireCmd(v []resp.BulkString, ex *Extras) error {
	return genericExpire(v, ex, func(n, nowMs int64) int64 { return nowMs + n*1000 })
}

func pexpireCmd(v []resp.BulkString, ex *Extras) error {
	return genericExpire(v, ex, func(n, nowMs int64) int64 { return nowMs + n })
}

func expireatCmd(v []resp.BulkString, ex *Extras) error {
	return genericExpire(v, ex, func(n, nowMs int64) int64 { return n * 1000 })
}

func pexpireatCmd(v []resp.BulkString, ex *Extras) error {
	return genericExpire(v, ex, func(n, nowMs int64) int64 { return n })
}

func persist(v []resp.BulkString, ex *Extras) error {
	key := []byte(v[0])
	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := expiry.Resolve(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		if cleanup != nil {
			return cleanup, false, nil
		}
		if meta.Version == 0 || meta.ExpireMs == 0 {
			return nil, false, nil
		}
		b := engine.NewBatch()
		b.Put(codec.EncodeMeta(key), codec.EncodeMetadata(codec.Metadata{
			Type: meta.Type, Version: meta.Version, ExpireMs: 0,
			Count: meta.Count, Left: meta.Left, Right: meta.Right, Value: meta.Value,
		}))
		b.Delete(codec.EncodeExpireIndex(meta.ExpireMs, key))
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

func genericTTL(v []resp.BulkString, ex *Extras, asSeconds bool) error {
	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := expiry.Resolve(snap, v[0], ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		if cleanup != nil {
			return cleanup, int64(-2), nil
		}
		if meta.Version == 0 {
			return nil, int64(-2), nil
		}
		if meta.ExpireMs == 0 {
			return nil, int64(-1), nil
		}
		remaining := meta.ExpireMs - ex.nowMs()
		if remaining < 0 {
			remaining = 0
		}
		if asSeconds {
			return nil, (remaining + 999) / 1000, nil
		}
		return nil, remaining, nil
	})
	if err != nil {
		return err
	}
	return resp.Integer(res.(int64)).WriteTo(ex.Writer)
}

func ttl(v []resp.BulkString, ex *Extras) error  { return genericTTL(v, ex, true) }
func pttl(v []resp.BulkString, ex *Extras) error { return genericTTL(v, ex, false) }

// globToRegexp translates a Redis glob pattern (`*`, `?`, `[set]`) to an
// anchored regular expression.
func globToRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '[':
			j := i + 1
			for j < len(pattern) && pattern[j] != ']' {
				j++
			}
			if j < len(pattern) {
				b.WriteString("[")
				b.WriteString(regexp.QuoteMeta(pattern[i+1 : j]))
				b.WriteString("]")
				i = j
			} else {
				b.WriteString(regexp.QuoteMeta(string(c)))
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

func keysCmd(v []resp.BulkString, ex *Extras) error {
	re, err := globToRegexp(v[0].String())
	if err != nil {
		return rodiserr.New(rodiserr.SyntaxError, rodiserr.ErrFmtSyntax)
	}

	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		entries, err := snap.Scan([]byte{codec.TagMeta}, []byte{codec.TagMeta + 1}, 0, false)
		if err != nil {
			return nil, nil, err
		}
		var matches resp.Array
		nowMs := ex.nowMs()
		for _, entry := range entries {
			meta, decodeErr := codec.DecodeMetadata(entry.Value)
			if decodeErr != nil {
				continue
			}
			if meta.ExpireMs != 0 && meta.ExpireMs <= nowMs {
				continue
			}
			key := metaPhysicalKeyToLogical(entry.Key)
			if re.MatchString(string(key)) {
				matches = append(matches, resp.BulkString(key))
			}
		}
		return nil, matches, nil
	})
	if err != nil {
		return err
	}
	return res.(resp.Array).WriteTo(ex.Writer)
}

// metaPhysicalKeyToLogical strips the `M ∥ len(key) ∥` prefix off a
// metadata physical key, recovering the logical key.
func metaPhysicalKeyToLogical(phys []byte) []byte {
	const lenPrefixWidth = 4
	if len(phys) < 1+lenPrefixWidth {
		return nil
	}
	return phys[1+lenPrefixWidth:]
}

func rename(v []resp.BulkString, ex *Extras) error {
	renamed, err := genericRename(ex, v[0], v[1], false)
	if err != nil {
		return err
	}
	if !renamed {
		return rodiserr.New(rodiserr.SyntaxError, "ERR no such key")
	}
	return resp.OK.WriteTo(ex.Writer)
}

func renamenx(v []resp.BulkString, ex *Extras) error {
	renamed, err := genericRename(ex, v[0], v[1], true)
	if err != nil {
		return err
	}
	if renamed {
		return resp.Integer(1).WriteTo(ex.Writer)
	}
	return resp.Integer(0).WriteTo(ex.Writer)
}

// genericRename reads the source's metadata and every live subkey, then
// rewrites them under dst at a fresh version and deletes the source, all
// in one batch (§4.5.6). When nxOnly is set the rename is skipped (and
// false returned) if dst already exists.
func genericRename(ex *Extras, src, dst resp.BulkString, nxOnly bool) (bool, error) {
	srcKey, dstKey := []byte(src), []byte(dst)
	sameKey := bytes.Equal(srcKey, dstKey)

	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		srcMeta, ok, err := expiry.ReadMeta(snap, srcKey)
		if err != nil {
			return nil, nil, err
		}
		if !ok || expiry.IsExpired(srcMeta, ex.nowMs()) {
			return nil, false, rodiserr.New(rodiserr.SyntaxError, "ERR no such key")
		}

		if sameKey {
			// Renaming a key onto itself is a no-op: RENAME reports
			// success, RENAMENX reports failure since dst already exists.
			return nil, !nxOnly, nil
		}

		if nxOnly {
			dstMeta, dstOk, err := expiry.ReadMeta(snap, dstKey)
			if err != nil {
				return nil, nil, err
			}
			if dstOk && !expiry.IsExpired(dstMeta, ex.nowMs()) {
				return nil, false, nil
			}
		}

		var subEntries []engine.KV
		for _, sub := range []byte{codec.SubHash, codec.SubList, codec.SubSet, codec.SubZSet} {
			prefix := codec.DataPrefix(srcKey, srcMeta.Version, sub)
			es, err := snap.Scan(prefix, codec.PrefixUpperBound(prefix), 0, false)
			if err != nil {
				return nil, nil, err
			}
			subEntries = append(subEntries, es...)
		}
		scorePrefix := codec.ScoreIndexPrefix(srcKey, srcMeta.Version)
		scoreEntries, err := snap.Scan(scorePrefix, codec.PrefixUpperBound(scorePrefix), 0, false)
		if err != nil {
			return nil, nil, err
		}

		b := engine.NewBatch()
		newVersion := uint64(1)
		var dstOldExpireMs int64
		if dstMeta, dstOk, err := expiry.ReadMeta(snap, dstKey); err == nil && dstOk {
			newVersion = dstMeta.Version + 1
			dstOldExpireMs = dstMeta.ExpireMs
		}

		for _, e := range subEntries {
			_, _, sub, suffix, decErr := codec.DecodeSub(e.Key)
			if decErr != nil {
				continue
			}
			b.Put(codec.EncodeSub(dstKey, newVersion, sub, suffix), e.Value)
		}
		for _, e := range scoreEntries {
			_, _, score, member, decErr := codec.DecodeScoreIndex(e.Key)
			if decErr != nil {
				continue
			}
			newPhys, encErr := codec.EncodeScoreIndex(dstKey, newVersion, score, member)
			if encErr != nil {
				continue
			}
			b.Put(newPhys, e.Value)
		}

		b.Put(codec.EncodeMeta(dstKey), codec.EncodeMetadata(codec.Metadata{
			Type: srcMeta.Type, Version: newVersion, ExpireMs: srcMeta.ExpireMs,
			Count: srcMeta.Count, Left: srcMeta.Left, Right: srcMeta.Right, Value: srcMeta.Value,
		}))
		expiry.UpdateExpireIndex(b, dstKey, dstOldExpireMs, srcMeta.ExpireMs)
		expiry.AppendDeleteBatch(b, srcKey, srcMeta)
		return b, true, nil
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}
