// Copyright (c) 2015, Rod Dong <rod.dong@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by The MIT License.

package command

import (
	"math"
	"strconv"
	"strings"

	"github.com/lsmdb/rodis/internal/codec"
	"github.com/lsmdb/rodis/internal/engine"
	"github.com/lsmdb/rodis/internal/expiry"
	"github.com/lsmdb/rodis/internal/metatype"
	"github.com/lsmdb/rodis/internal/resp"
	"github.com/lsmdb/rodis/internal/rodiserr"
)

// resolveZSet mirrors resolveHash for the SortedSet datatype (§4.5.5).
func resolveZSet(snap engine.Snapshot, key []byte, nowMs int64) (codec.Metadata, *engine.Batch, error) {
	meta, cleanup, err := expiry.Resolve(snap, key, nowMs)
	if err != nil {
		return codec.Metadata{}, nil, err
	}
	if cleanup != nil {
		return codec.Metadata{}, cleanup, nil
	}
	if meta.Version != 0 && meta.Type != metatype.SortedSet {
		return codec.Metadata{}, nil, expiry.ErrWrongType
	}
	return meta, nil, nil
}

func parseScore(s string) (float64, error) {
	switch s {
	case "+inf", "inf":
		return math.Inf(1), nil
	case "-inf":
		return math.Inf(-1), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, rodiserr.New(rodiserr.NotAFloat, rodiserr.ErrNotAFloat)
	}
	return f, nil
}

func zadd(v []resp.BulkString, ex *Extras) error {
	if len(v) < 3 || len(v)%2 != 1 {
		return rodiserr.New(rodiserr.SyntaxError, rodiserr.ErrFmtSyntax)
	}
	key := []byte(v[0])
	type pair struct {
		score  float64
		member []byte
	}
	pairs := make([]pair, 0, (len(v)-1)/2)
	for i := 1; i < len(v); i += 2 {
		score, err := parseScore(v[i].String())
		if err != nil {
			return err
		}
		pairs = append(pairs, pair{score: score, member: []byte(v[i+1])})
	}

	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveZSet(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		version := versionOrFresh(meta)

		b := engine.NewBatch()
		if cleanup != nil {
			b.Ops = append(b.Ops, cleanup.Ops...)
		}
		added := uint64(0)
		for _, p := range pairs {
			elemKey := codec.EncodeSub(key, version, codec.SubZSet, p.member)
			var oldScore float64
			existed := false
			if cleanup == nil && meta.Version != 0 {
				val, ok, err := snap.Get(elemKey)
				if err != nil {
					return nil, nil, err
				}
				if ok {
					existed = true
					oldScore = codec.DecodeScore(val)
				}
			}
			if existed && oldScore == p.score {
				continue
			}
			if existed {
				oldIdx, err := codec.EncodeScoreIndex(key, version, oldScore, p.member)
				if err != nil {
					return nil, nil, err
				}
				b.Delete(oldIdx)
			}
			scoreBuf, err := codec.EncodeScore(p.score)
			if err != nil {
				return nil, nil, err
			}
			b.Put(elemKey, scoreBuf)
			newIdx, err := codec.EncodeScoreIndex(key, version, p.score, p.member)
			if err != nil {
				return nil, nil, err
			}
			b.Put(newIdx, []byte{})
			if !existed {
				added++
			}
		}
		if added == 0 && meta.Version != 0 && cleanup == nil {
			return nil, int64(0), nil
		}
		b.Put(codec.EncodeMeta(key), codec.EncodeMetadata(codec.Metadata{
			Type: metatype.SortedSet, Version: version, ExpireMs: meta.ExpireMs, Count: meta.Count + added,
		}))
		return b, int64(added), nil
	})
	if err != nil {
		return err
	}
	return resp.Integer(res.(int64)).WriteTo(ex.Writer)
}

func zcard(v []resp.BulkString, ex *Extras) error {
	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveZSet(snap, []byte(v[0]), ex.nowMs())
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

func zscore(v []resp.BulkString, ex *Extras) error {
	key, member := []byte(v[0]), []byte(v[1])
	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveZSet(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		if cleanup != nil || meta.Version == 0 {
			return cleanup, resp.BulkString(nil), nil
		}
		val, ok, err := snap.Get(codec.EncodeSub(key, meta.Version, codec.SubZSet, member))
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return nil, resp.BulkString(nil), nil
		}
		score := codec.DecodeScore(val)
		return nil, resp.BulkString(formatScore(score)), nil
	})
	if err != nil {
		return err
	}
	return res.(resp.BulkString).WriteTo(ex.Writer)
}

func formatScore(score float64) []byte {
	return []byte(strconv.FormatFloat(score, 'g', -1, 64))
}

// zrank scans the score index from its start counting entries strictly
// before the member's own entry; the corpus keeps no incremental rank
// index, so this is a bounded linear scan per §4.5.5.
func zrank(v []resp.BulkString, ex *Extras) error {
	key, member := []byte(v[0]), []byte(v[1])
	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveZSet(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		if cleanup != nil || meta.Version == 0 {
			return cleanup, int64(-1), nil
		}
		val, ok, err := snap.Get(codec.EncodeSub(key, meta.Version, codec.SubZSet, member))
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return nil, int64(-1), nil
		}
		score := codec.DecodeScore(val)
		target, err := codec.EncodeScoreIndex(key, meta.Version, score, member)
		if err != nil {
			return nil, nil, err
		}
		prefix := codec.ScoreIndexPrefix(key, meta.Version)
		entries, err := snap.Scan(prefix, target, 0, false)
		if err != nil {
			return nil, nil, err
		}
		return nil, int64(len(entries)), nil
	})
	if err != nil {
		return err
	}
	rank := res.(int64)
	if rank < 0 {
		return resp.Nil.WriteTo(ex.Writer)
	}
	return resp.Integer(rank).WriteTo(ex.Writer)
}

func zincrby(v []resp.BulkString, ex *Extras) error {
	delta, err := parseScore(v[1].String())
	if err != nil {
		return err
	}
	key, member := []byte(v[0]), []byte(v[2])

	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveZSet(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		version := versionOrFresh(meta)
		var cur float64
		existed := false
		if cleanup == nil && meta.Version != 0 {
			val, ok, err := snap.Get(codec.EncodeSub(key, version, codec.SubZSet, member))
			if err != nil {
				return nil, nil, err
			}
			if ok {
				existed = true
				cur = codec.DecodeScore(val)
			}
		}
		next := cur + delta

		b := engine.NewBatch()
		if cleanup != nil {
			b.Ops = append(b.Ops, cleanup.Ops...)
		}
		if existed {
			oldIdx, err := codec.EncodeScoreIndex(key, version, cur, member)
			if err != nil {
				return nil, nil, err
			}
			b.Delete(oldIdx)
		}
		scoreBuf, err := codec.EncodeScore(next)
		if err != nil {
			return nil, nil, err
		}
		b.Put(codec.EncodeSub(key, version, codec.SubZSet, member), scoreBuf)
		newIdx, err := codec.EncodeScoreIndex(key, version, next, member)
		if err != nil {
			return nil, nil, err
		}
		b.Put(newIdx, []byte{})
		count := meta.Count
		if !existed {
			count++
		}
		b.Put(codec.EncodeMeta(key), codec.EncodeMetadata(codec.Metadata{
			Type: metatype.SortedSet, Version: version, ExpireMs: meta.ExpireMs, Count: count,
		}))
		return b, next, nil
	})
	if err != nil {
		return err
	}
	return resp.BulkString(formatScore(res.(float64))).WriteTo(ex.Writer)
}

type zEntry struct {
	member []byte
	score  float64
}

// zsetRangeByRank returns the entries with ranks start..stop inclusive
// (negative ranks count from the end), ascending by score, or descending
// when reverse is set.
func zsetRangeByRank(ex *Extras, key []byte, start, stop int64, reverse bool) ([]zEntry, error) {
	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveZSet(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		if cleanup != nil || meta.Version == 0 {
			return cleanup, []zEntry(nil), nil
		}
		length := int64(meta.Count)
		s, e := clampRange(start, stop, length)
		if s >= e {
			return nil, []zEntry{}, nil
		}
		prefix := codec.ScoreIndexPrefix(key, meta.Version)
		entries, err := snap.Scan(prefix, codec.PrefixUpperBound(prefix), 0, false)
		if err != nil {
			return nil, nil, err
		}
		// entries is always ascending by score; a reverse rank window is
		// the mirror image of the forward window at the same offsets
		// from the opposite end, e.g. rank 0 in reverse is the last
		// ascending entry.
		window := entries[s:e]
		if reverse {
			window = entries[length-e : length-s]
		}
		out := make([]zEntry, len(window))
		for i, en := range window {
			pos := i
			if reverse {
				pos = len(window) - 1 - i
			}
			_, _, score, member, decErr := codec.DecodeScoreIndex(en.Key)
			if decErr != nil {
				return nil, nil, decErr
			}
			out[pos] = zEntry{member: member, score: score}
		}
		return nil, out, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([]zEntry), nil
}

func writeZEntries(ex *Extras, entries []zEntry, withScores bool) error {
	width := 1
	if withScores {
		width = 2
	}
	out := make(resp.Array, 0, len(entries)*width)
	for _, e := range entries {
		out = append(out, resp.BulkString(e.member))
		if withScores {
			out = append(out, resp.BulkString(formatScore(e.score)))
		}
	}
	return out.WriteTo(ex.Writer)
}

func hasWithScores(v []resp.BulkString) bool {
	for _, a := range v {
		if strings.EqualFold(a.String(), "WITHSCORES") {
			return true
		}
	}
	return false
}

func zrange(v []resp.BulkString, ex *Extras) error {
	if len(v) < 3 {
		return rodiserr.New(rodiserr.SyntaxError, rodiserr.ErrFmtSyntax)
	}
	start, err := strconv.ParseInt(v[1].String(), 10, 64)
	if err != nil {
		return rodiserr.New(rodiserr.NotAnInteger, rodiserr.ErrNotAnInteger)
	}
	stop, err := strconv.ParseInt(v[2].String(), 10, 64)
	if err != nil {
		return rodiserr.New(rodiserr.NotAnInteger, rodiserr.ErrNotAnInteger)
	}
	entries, err := zsetRangeByRank(ex, []byte(v[0]), start, stop, false)
	if err != nil {
		return err
	}
	return writeZEntries(ex, entries, hasWithScores(v[3:]))
}

func zrevrange(v []resp.BulkString, ex *Extras) error {
	if len(v) < 3 {
		return rodiserr.New(rodiserr.SyntaxError, rodiserr.ErrFmtSyntax)
	}
	start, err := strconv.ParseInt(v[1].String(), 10, 64)
	if err != nil {
		return rodiserr.New(rodiserr.NotAnInteger, rodiserr.ErrNotAnInteger)
	}
	stop, err := strconv.ParseInt(v[2].String(), 10, 64)
	if err != nil {
		return rodiserr.New(rodiserr.NotAnInteger, rodiserr.ErrNotAnInteger)
	}
	entries, err := zsetRangeByRank(ex, []byte(v[0]), start, stop, true)
	if err != nil {
		return err
	}
	return writeZEntries(ex, entries, hasWithScores(v[3:]))
}

func zrangebyscore(v []resp.BulkString, ex *Extras) error {
	if len(v) < 3 {
		return rodiserr.New(rodiserr.SyntaxError, rodiserr.ErrFmtSyntax)
	}
	key := []byte(v[0])
	minSpec, maxSpec := v[1].String(), v[2].String()
	minExclusive := strings.HasPrefix(minSpec, "(")
	if minExclusive {
		minSpec = minSpec[1:]
	}
	maxExclusive := strings.HasPrefix(maxSpec, "(")
	if maxExclusive {
		maxSpec = maxSpec[1:]
	}
	minScore, err := parseScore(minSpec)
	if err != nil {
		return err
	}
	maxScore, err := parseScore(maxSpec)
	if err != nil {
		return err
	}
	withScores := hasWithScores(v[3:])
	limitOffset, limitCount, hasLimit, err := parseLimit(v[3:])
	if err != nil {
		return err
	}

	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveZSet(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		if cleanup != nil || meta.Version == 0 {
			return cleanup, []zEntry(nil), nil
		}
		lower, err := codec.ScoreIndexBound(key, meta.Version, minScore)
		if err != nil {
			return nil, nil, err
		}
		upper, err := codec.ScoreIndexBound(key, meta.Version, maxScore)
		if err != nil {
			return nil, nil, err
		}
		upper = codec.PrefixUpperBound(upper)
		entries, err := snap.Scan(lower, upper, 0, false)
		if err != nil {
			return nil, nil, err
		}
		out := make([]zEntry, 0, len(entries))
		for _, en := range entries {
			_, _, score, member, decErr := codec.DecodeScoreIndex(en.Key)
			if decErr != nil {
				return nil, nil, decErr
			}
			if minExclusive && score == minScore {
				continue
			}
			if maxExclusive && score == maxScore {
				continue
			}
			out = append(out, zEntry{member: member, score: score})
		}
		if hasLimit {
			out = applyLimit(out, limitOffset, limitCount)
		}
		return nil, out, nil
	})
	if err != nil {
		return err
	}
	return writeZEntries(ex, res.([]zEntry), withScores)
}

// parseLimit finds a "LIMIT offset count" clause among the trailing
// arguments of ZRANGEBYSCORE (§4.5.5). hasLimit is false when no LIMIT
// token is present; a negative count means "no upper bound", matching
// Redis's own LIMIT semantics.
func parseLimit(v []resp.BulkString) (offset, count int64, hasLimit bool, err error) {
	for i := 0; i < len(v); i++ {
		if !strings.EqualFold(v[i].String(), "LIMIT") {
			continue
		}
		if i+2 >= len(v) {
			return 0, 0, false, rodiserr.New(rodiserr.SyntaxError, rodiserr.ErrFmtSyntax)
		}
		offset, err = strconv.ParseInt(v[i+1].String(), 10, 64)
		if err != nil {
			return 0, 0, false, rodiserr.New(rodiserr.NotAnInteger, rodiserr.ErrNotAnInteger)
		}
		count, err = strconv.ParseInt(v[i+2].String(), 10, 64)
		if err != nil {
			return 0, 0, false, rodiserr.New(rodiserr.NotAnInteger, rodiserr.ErrNotAnInteger)
		}
		return offset, count, true, nil
	}
	return 0, 0, false, nil
}

// applyLimit paginates an already score-filtered result set per LIMIT
// offset count semantics: offset < 0 or offset beyond the set yields no
// results, and a negative count means "everything from offset onward".
func applyLimit(entries []zEntry, offset, count int64) []zEntry {
	if offset < 0 || offset >= int64(len(entries)) {
		return []zEntry{}
	}
	end := int64(len(entries))
	if count >= 0 && offset+count < end {
		end = offset + count
	}
	return entries[offset:end]
}

func zremrangebyrank(v []resp.BulkString, ex *Extras) error {
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
		meta, cleanup, err := resolveZSet(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		if cleanup != nil || meta.Version == 0 {
			return cleanup, int64(0), nil
		}
		length := int64(meta.Count)
		s, e := clampRange(start, stop, length)
		if s >= e {
			return nil, int64(0), nil
		}
		prefix := codec.ScoreIndexPrefix(key, meta.Version)
		entries, err := snap.Scan(prefix, codec.PrefixUpperBound(prefix), 0, false)
		if err != nil {
			return nil, nil, err
		}
		b := engine.NewBatch()
		removed := int64(0)
		for i := s; i < e; i++ {
			en := entries[i]
			_, _, _, member, decErr := codec.DecodeScoreIndex(en.Key)
			if decErr != nil {
				return nil, nil, decErr
			}
			b.Delete(en.Key)
			b.Delete(codec.EncodeSub(key, meta.Version, codec.SubZSet, member))
			removed++
		}
		newCount := meta.Count - uint64(removed)
		if newCount == 0 {
			expiry.AppendDeleteBatch(b, key, meta)
		} else {
			b.Put(codec.EncodeMeta(key), codec.EncodeMetadata(codec.Metadata{
				Type: metatype.SortedSet, Version: meta.Version, ExpireMs: meta.ExpireMs, Count: newCount,
			}))
		}
		return b, removed, nil
	})
	if err != nil {
		return err
	}
	return resp.Integer(res.(int64)).WriteTo(ex.Writer)
}

func zremrangebyscore(v []resp.BulkString, ex *Extras) error {
	minScore, err := parseScore(v[1].String())
	if err != nil {
		return err
	}
	maxScore, err := parseScore(v[2].String())
	if err != nil {
		return err
	}
	key := []byte(v[0])

	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveZSet(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		if cleanup != nil || meta.Version == 0 {
			return cleanup, int64(0), nil
		}
		lower, err := codec.ScoreIndexBound(key, meta.Version, minScore)
		if err != nil {
			return nil, nil, err
		}
		upper, err := codec.ScoreIndexBound(key, meta.Version, maxScore)
		if err != nil {
			return nil, nil, err
		}
		upper = codec.PrefixUpperBound(upper)
		entries, err := snap.Scan(lower, upper, 0, false)
		if err != nil {
			return nil, nil, err
		}
		b := engine.NewBatch()
		removed := int64(0)
		for _, en := range entries {
			_, _, _, member, decErr := codec.DecodeScoreIndex(en.Key)
			if decErr != nil {
				return nil, nil, decErr
			}
			b.Delete(en.Key)
			b.Delete(codec.EncodeSub(key, meta.Version, codec.SubZSet, member))
			removed++
		}
		newCount := meta.Count - uint64(removed)
		if newCount == 0 {
			expiry.AppendDeleteBatch(b, key, meta)
		} else {
			b.Put(codec.EncodeMeta(key), codec.EncodeMetadata(codec.Metadata{
				Type: metatype.SortedSet, Version: meta.Version, ExpireMs: meta.ExpireMs, Count: newCount,
			}))
		}
		return b, removed, nil
	})
	if err != nil {
		return err
	}
	return resp.Integer(res.(int64)).WriteTo(ex.Writer)
}

func genericZPop(ex *Extras, key []byte, count int64, fromMin bool) ([]zEntry, error) {
	res, err := ex.Runner.Run(func(snap engine.Snapshot) (*engine.Batch, interface{}, error) {
		meta, cleanup, err := resolveZSet(snap, key, ex.nowMs())
		if err != nil {
			return nil, nil, err
		}
		if cleanup != nil || meta.Version == 0 {
			return cleanup, []zEntry(nil), nil
		}
		prefix := codec.ScoreIndexPrefix(key, meta.Version)
		entries, err := snap.Scan(prefix, codec.PrefixUpperBound(prefix), 0, !fromMin)
		if err != nil {
			return nil, nil, err
		}
		if int64(len(entries)) > count {
			entries = entries[:count]
		}
		b := engine.NewBatch()
		popped := make([]zEntry, len(entries))
		for i, en := range entries {
			_, _, score, member, decErr := codec.DecodeScoreIndex(en.Key)
			if decErr != nil {
				return nil, nil, decErr
			}
			popped[i] = zEntry{member: member, score: score}
			b.Delete(en.Key)
			b.Delete(codec.EncodeSub(key, meta.Version, codec.SubZSet, member))
		}
		newCount := meta.Count - uint64(len(popped))
		if newCount == 0 {
			expiry.AppendDeleteBatch(b, key, meta)
		} else {
			b.Put(codec.EncodeMeta(key), codec.EncodeMetadata(codec.Metadata{
				Type: metatype.SortedSet, Version: meta.Version, ExpireMs: meta.ExpireMs, Count: newCount,
			}))
		}
		return b, popped, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([]zEntry), nil
}

func zpopWithCount(v []resp.BulkString, ex *Extras, fromMin bool) error {
	count := int64(1)
	if len(v) >= 2 {
		var err error
		count, err = strconv.ParseInt(v[1].String(), 10, 64)
		if err != nil {
			return rodiserr.New(rodiserr.NotAnInteger, rodiserr.ErrNotAnInteger)
		}
	}
	entries, err := genericZPop(ex, []byte(v[0]), count, fromMin)
	if err != nil {
		return err
	}
	return writeZEntries(ex, entries, true)
}

func zpopmin(v []resp.BulkString, ex *Extras) error {
	return zpopWithCount(v, ex, true)
}

func zpopmax(v []resp.BulkString, ex *Extras) error {
	return zpopWithCount(v, ex, false)
}
