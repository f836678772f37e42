// Copyright (c) 2015, Rod Dong <rod.dong@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by The MIT License.

// Package codec implements the physical key/value layout described in §3
// of the specification: pure functions from a logical (key, datatype, ...)
// tuple to the bytes actually stored in the engine, and back. Nothing in
// this package touches the storage engine — it only knows how to encode
// and decode.
package codec

import (
	"encoding/binary"
	"math"

	"github.com/lsmdb/rodis/internal/metatype"
	"github.com/lsmdb/rodis/internal/rodiserr"
)

// Kind tags, one byte each, isolating the four physical namespaces of §3.2.
const (
	TagMeta   byte = 'M'
	TagData   byte = 'D'
	TagScore  byte = 'S'
	TagExpire byte = 'X'
)

// Sub-tags distinguish subkey families within the TagData namespace so a
// hash field can never alias a set member or a list index, even if their
// raw suffix bytes coincide.
const (
	SubHash byte = 'H'
	SubList byte = 'L'
	SubSet  byte = 'S'
	SubZSet byte = 'Z'
)

const lenPrefixWidth = 4  // fixed 4-byte big-endian length prefix
const versionWidth = 8    // 8-byte big-endian monotonic version
const scoreWidth = 8      // 8-byte order-preserving score encoding
const metaHeaderWidth = 1 + 8 + 8 + 8 + 8 + 8 + 4 // type, version, expire_ms, count, left, right, valueLen

func putLen(buf []byte, n int) {
	binary.BigEndian.PutUint32(buf, uint32(n))
}

// EncodeMeta builds the metadata physical key for a logical key.
func EncodeMeta(key []byte) []byte {
	out := make([]byte, 0, 1+lenPrefixWidth+len(key))
	out = append(out, TagMeta)
	lenBuf := make([]byte, lenPrefixWidth)
	putLen(lenBuf, len(key))
	out = append(out, lenBuf...)
	out = append(out, key...)
	return out
}

// dataPrefix builds the shared prefix `D ∥ len(key) ∥ key ∥ version ∥ sub`
// used both to build full subkeys and to bound prefix scans over one
// datatype family of one logical key's current version.
func dataPrefix(key []byte, version uint64, sub byte) []byte {
	out := make([]byte, 0, 1+lenPrefixWidth+len(key)+versionWidth+1)
	out = append(out, TagData)
	lenBuf := make([]byte, lenPrefixWidth)
	putLen(lenBuf, len(key))
	out = append(out, lenBuf...)
	out = append(out, key...)
	verBuf := make([]byte, versionWidth)
	binary.BigEndian.PutUint64(verBuf, version)
	out = append(out, verBuf...)
	out = append(out, sub)
	return out
}

// PrefixUpperBound returns the smallest byte string that sorts after
// every string sharing the given prefix, suitable as an exclusive Scan
// upper bound over "all physical keys under this prefix" regardless of
// what suffix bytes follow. Returns nil (meaning unbounded) if prefix
// consists entirely of 0xFF bytes.
func PrefixUpperBound(prefix []byte) []byte {
	out := append([]byte(nil), prefix...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xFF {
			out[i]++
			return out[:i+1]
		}
	}
	return nil
}

// DataPrefix is the exported form of dataPrefix, used by command handlers
// to bound prefix scans (e.g. SMEMBERS, HGETALL) over one datatype's live
// subkeys at the current version.
func DataPrefix(key []byte, version uint64, sub byte) []byte {
	return dataPrefix(key, version, sub)
}

// EncodeSub builds a full datatype element physical key: the shared
// prefix plus an arbitrary suffix (hash field name, set member, or an
// order-preserving list index).
func EncodeSub(key []byte, version uint64, sub byte, suffix []byte) []byte {
	prefix := dataPrefix(key, version, sub)
	out := make([]byte, 0, len(prefix)+len(suffix))
	out = append(out, prefix...)
	out = append(out, suffix...)
	return out
}

// DecodeSub extracts the logical key, version, sub-tag and suffix from a
// TagData physical key. Command handlers use it to recover the field or
// member from subkeys returned by a prefix scan.
func DecodeSub(phys []byte) (key []byte, version uint64, sub byte, suffix []byte, err error) {
	if len(phys) < 1+lenPrefixWidth || phys[0] != TagData {
		return nil, 0, 0, nil, rodiserr.New(rodiserr.DecodeError, "not a data physical key")
	}
	klen := int(binary.BigEndian.Uint32(phys[1 : 1+lenPrefixWidth]))
	off := 1 + lenPrefixWidth
	if len(phys) < off+klen+versionWidth+1 {
		return nil, 0, 0, nil, rodiserr.New(rodiserr.DecodeError, "truncated data physical key")
	}
	key = phys[off : off+klen]
	off += klen
	version = binary.BigEndian.Uint64(phys[off : off+versionWidth])
	off += versionWidth
	sub = phys[off]
	off++
	suffix = phys[off:]
	return key, version, sub, suffix, nil
}

// EncodeIndex encodes a signed 64-bit list index so that byte-lexicographic
// order matches numeric order across the whole int64 range: flipping the
// sign bit turns two's-complement ordering into unsigned big-endian order.
func EncodeIndex(i int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(i)^signBit)
	return buf
}

// DecodeIndex is the inverse of EncodeIndex.
func DecodeIndex(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b) ^ signBit)
}

const signBit = uint64(1) << 63

// EncodeScore applies the order-preserving transform from §3.2 to an
// IEEE-754 double: flip the sign bit for non-negative numbers, invert all
// bits for negative numbers. NaN has no total order and is rejected.
func EncodeScore(v float64) ([]byte, error) {
	if math.IsNaN(v) {
		return nil, rodiserr.New(rodiserr.SyntaxError, "score is not a number")
	}
	bits := math.Float64bits(v)
	if v >= 0 {
		bits |= signBit
	} else {
		bits = ^bits
	}
	buf := make([]byte, scoreWidth)
	binary.BigEndian.PutUint64(buf, bits)
	return buf, nil
}

// DecodeScore is the inverse of EncodeScore.
func DecodeScore(b []byte) float64 {
	bits := binary.BigEndian.Uint64(b)
	if bits&signBit != 0 {
		bits &^= signBit
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits)
}

// EncodeScoreIndex builds a sorted-set score-index physical key, ordered
// by (version, encoded score, member) so range-by-score and range-by-rank
// are both plain forward scans.
func EncodeScoreIndex(key []byte, version uint64, score float64, member []byte) ([]byte, error) {
	scoreBuf, err := EncodeScore(score)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 1+lenPrefixWidth+len(key)+versionWidth+scoreWidth+len(member))
	out = append(out, TagScore)
	lenBuf := make([]byte, lenPrefixWidth)
	putLen(lenBuf, len(key))
	out = append(out, lenBuf...)
	out = append(out, key...)
	verBuf := make([]byte, versionWidth)
	binary.BigEndian.PutUint64(verBuf, version)
	out = append(out, verBuf...)
	out = append(out, scoreBuf...)
	out = append(out, member...)
	return out, nil
}

// ScoreIndexPrefix bounds a scan over every score-index entry of one
// logical key's current version, ascending by score.
func ScoreIndexPrefix(key []byte, version uint64) []byte {
	out := make([]byte, 0, 1+lenPrefixWidth+len(key)+versionWidth)
	out = append(out, TagScore)
	lenBuf := make([]byte, lenPrefixWidth)
	putLen(lenBuf, len(key))
	out = append(out, lenBuf...)
	out = append(out, key...)
	verBuf := make([]byte, versionWidth)
	binary.BigEndian.PutUint64(verBuf, version)
	out = append(out, verBuf...)
	return out
}

// ScoreIndexBound builds the physical key at exactly (key, version, score),
// used as an inclusive/exclusive scan boundary for ZRANGEBYSCORE.
func ScoreIndexBound(key []byte, version uint64, score float64) ([]byte, error) {
	return EncodeScoreIndex(key, version, score, nil)
}

// DecodeScoreIndex is the inverse of EncodeScoreIndex. The logical key's
// length is read from the 4-byte length prefix, so the fixed-width version
// and score fields can be sliced out unambiguously.
func DecodeScoreIndex(phys []byte) (key []byte, version uint64, score float64, member []byte, err error) {
	if len(phys) < 1+lenPrefixWidth || phys[0] != TagScore {
		return nil, 0, 0, nil, rodiserr.New(rodiserr.DecodeError, "not a score physical key")
	}
	klen := int(binary.BigEndian.Uint32(phys[1 : 1+lenPrefixWidth]))
	off := 1 + lenPrefixWidth
	if len(phys) < off+klen+versionWidth+scoreWidth {
		return nil, 0, 0, nil, rodiserr.New(rodiserr.DecodeError, "truncated score physical key")
	}
	key = phys[off : off+klen]
	off += klen
	version = binary.BigEndian.Uint64(phys[off : off+versionWidth])
	off += versionWidth
	score = DecodeScore(phys[off : off+scoreWidth])
	off += scoreWidth
	member = phys[off:]
	return key, version, score, member, nil
}

// EncodeExpireIndex builds an expiration-index physical key ordered by
// (expire_ts_ms, logical key), used by the background sweeper. Timestamps
// are always non-negative unix milliseconds so a plain big-endian encoding
// already preserves numeric order.
func EncodeExpireIndex(expireMs int64, key []byte) []byte {
	out := make([]byte, 0, 1+8+lenPrefixWidth+len(key))
	out = append(out, TagExpire)
	tsBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(tsBuf, uint64(expireMs))
	out = append(out, tsBuf...)
	lenBuf := make([]byte, lenPrefixWidth)
	putLen(lenBuf, len(key))
	out = append(out, lenBuf...)
	out = append(out, key...)
	return out
}

// DecodeExpireIndex is the inverse of EncodeExpireIndex.
func DecodeExpireIndex(phys []byte) (expireMs int64, key []byte, err error) {
	if len(phys) < 1+8+lenPrefixWidth || phys[0] != TagExpire {
		return 0, nil, rodiserr.New(rodiserr.DecodeError, "not an expire physical key")
	}
	expireMs = int64(binary.BigEndian.Uint64(phys[1:9]))
	klen := int(binary.BigEndian.Uint32(phys[9 : 9+lenPrefixWidth]))
	off := 9 + lenPrefixWidth
	if len(phys) < off+klen {
		return 0, nil, rodiserr.New(rodiserr.DecodeError, "truncated expire physical key")
	}
	return expireMs, phys[off : off+klen], nil
}

// ExpireIndexUpperBound bounds a sweep scan to every expiration entry due
// at or before nowMs.
func ExpireIndexUpperBound(nowMs int64) []byte {
	out := make([]byte, 0, 9)
	out = append(out, TagExpire)
	tsBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(tsBuf, uint64(nowMs)+1) // +1: upper bound is exclusive in engine.Scan
	out = append(out, tsBuf...)
	return out
}

// Metadata is the decoded form of a metadata record (§3.1, §4.1). Not
// every field is meaningful for every datatype; String uses Value only,
// List uses Left/Right, Hash/Set/SortedSet use Count.
type Metadata struct {
	Type     metatype.DataType
	Version  uint64
	ExpireMs int64
	Count    uint64
	Left     int64
	Right    int64
	Value    []byte // inlined string value; nil for composite types
}

// EncodeMetadata serializes a Metadata record to the fixed-header format
// from §4.1: {tag:1, version:8, expire_ms:8, count:8, left:8, right:8,
// value_len:4, value...}.
func EncodeMetadata(m Metadata) []byte {
	out := make([]byte, metaHeaderWidth+len(m.Value))
	out[0] = byte(m.Type)
	binary.BigEndian.PutUint64(out[1:9], m.Version)
	binary.BigEndian.PutUint64(out[9:17], uint64(m.ExpireMs))
	binary.BigEndian.PutUint64(out[17:25], m.Count)
	binary.BigEndian.PutUint64(out[25:33], uint64(m.Left))
	binary.BigEndian.PutUint64(out[33:41], uint64(m.Right))
	binary.BigEndian.PutUint32(out[41:45], uint32(len(m.Value)))
	copy(out[45:], m.Value)
	return out
}

// DecodeMetadata is the inverse of EncodeMetadata. An unrecognized type
// tag or a truncated record is an InternalDecodeError (§7): the record on
// disk is unreadable, not merely "not found".
func DecodeMetadata(b []byte) (Metadata, error) {
	if len(b) < metaHeaderWidth {
		return Metadata{}, rodiserr.New(rodiserr.DecodeError, "truncated metadata record")
	}
	t := metatype.DataType(b[0])
	if _, ok := metatype.Names[t]; !ok {
		return Metadata{}, rodiserr.New(rodiserr.DecodeError, "unknown datatype tag in metadata record")
	}
	m := Metadata{
		Type:     t,
		Version:  binary.BigEndian.Uint64(b[1:9]),
		ExpireMs: int64(binary.BigEndian.Uint64(b[9:17])),
		Count:    binary.BigEndian.Uint64(b[17:25]),
		Left:     int64(binary.BigEndian.Uint64(b[25:33])),
		Right:    int64(binary.BigEndian.Uint64(b[33:41])),
	}
	vlen := int(binary.BigEndian.Uint32(b[41:45]))
	if len(b) < metaHeaderWidth+vlen {
		return Metadata{}, rodiserr.New(rodiserr.DecodeError, "truncated metadata value")
	}
	if vlen > 0 {
		m.Value = append([]byte(nil), b[45:45+vlen]...)
	}
	return m, nil
}
