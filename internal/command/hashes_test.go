// Copyright (c) 2015, Rod Dong <rod.dong@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by The MIT License.

package command

import (
	"testing"

	"github.com/lsmdb/rodis/internal/resp"
)

func TestHSetNewAndExistingField(t *testing.T) {
	h := newHarness(t)

	raw := h.run(hset, "myhash", "f1", "v1")
	if got := h.parseLast(raw).(resp.Integer); got != 1 {
		t.Fatalf("first hset got %d want 1 (new field)", got)
	}

	raw = h.run(hset, "myhash", "f1", "v2")
	if got := h.parseLast(raw).(resp.Integer); got != 0 {
		t.Fatalf("second hset got %d want 0 (overwrite)", got)
	}

	raw = h.run(hget, "myhash", "f1")
	if got := string(h.parseLast(raw).(resp.BulkString)); got != "v2" {
		t.Fatalf("hget got %q want v2", got)
	}
}

func TestHSetNx(t *testing.T) {
	h := newHarness(t)
	h.run(hsetnx, "myhash", "f1", "v1")

	raw := h.run(hsetnx, "myhash", "f1", "v2")
	if got := h.parseLast(raw).(resp.Integer); got != 0 {
		t.Fatalf("hsetnx on existing field got %d want 0", got)
	}
	raw = h.run(hget, "myhash", "f1")
	if got := string(h.parseLast(raw).(resp.BulkString)); got != "v1" {
		t.Fatalf("hsetnx must not overwrite: got %q want v1", got)
	}
}

func TestHDelRemovesFieldsAndDeletesEmptyHash(t *testing.T) {
	h := newHarness(t)
	h.run(hset, "myhash", "f1", "v1")
	h.run(hset, "myhash", "f2", "v2")

	raw := h.run(hdel, "myhash", "f1", "nope")
	if got := h.parseLast(raw).(resp.Integer); got != 1 {
		t.Fatalf("hdel got %d want 1", got)
	}

	h.run(hdel, "myhash", "f2")
	raw = h.run(exists, "myhash")
	if got := h.parseLast(raw).(resp.Integer); got != 0 {
		t.Fatalf("expected hash gone after deleting last field, exists=%d", got)
	}
}

func TestHIncrByAndFloat(t *testing.T) {
	h := newHarness(t)

	raw := h.run(hincrby, "counters", "n", "5")
	if got := h.parseLast(raw).(resp.Integer); got != 5 {
		t.Fatalf("hincrby got %d want 5", got)
	}
	raw = h.run(hincrby, "counters", "n", "-2")
	if got := h.parseLast(raw).(resp.Integer); got != 3 {
		t.Fatalf("hincrby got %d want 3", got)
	}

	raw = h.run(hincrbyfloat, "counters", "f", "2.5")
	if got := string(h.parseLast(raw).(resp.BulkString)); got != "2.5" {
		t.Fatalf("hincrbyfloat got %q want 2.5", got)
	}
}

func TestHIncrByOverflowErrorsWithoutWriting(t *testing.T) {
	h := newHarness(t)
	h.run(hset, "counters", "n", "9223372036854775807")

	if err := hincrby(bs("counters", "n", "1"), h.ex); err == nil {
		t.Fatal("expected overflow error")
	}
	raw := h.run(hget, "counters", "n")
	if got := string(h.parseLast(raw).(resp.BulkString)); got != "9223372036854775807" {
		t.Fatalf("field must be unchanged after overflow, got %q", got)
	}
}

func TestHGetAllKeysVals(t *testing.T) {
	h := newHarness(t)
	h.run(hset, "myhash", "a", "1")
	h.run(hset, "myhash", "b", "2")

	raw := h.run(hkeys, "myhash")
	keys := h.parseLast(raw).(resp.Array)
	if len(keys) != 2 {
		t.Fatalf("hkeys got %d entries want 2", len(keys))
	}

	raw = h.run(hvals, "myhash")
	vals := h.parseLast(raw).(resp.Array)
	if len(vals) != 2 {
		t.Fatalf("hvals got %d entries want 2", len(vals))
	}

	raw = h.run(hgetall, "myhash")
	all := h.parseLast(raw).(resp.Array)
	if len(all) != 4 {
		t.Fatalf("hgetall got %d entries want 4 (field+value pairs)", len(all))
	}
}

func TestHMGetMixedPresence(t *testing.T) {
	h := newHarness(t)
	h.run(hset, "myhash", "a", "1")

	raw := h.run(hmget, "myhash", "a", "missing")
	out := h.parseLast(raw).(resp.Array)
	if len(out) != 2 {
		t.Fatalf("hmget got %d entries want 2", len(out))
	}
	if got := string(out[0].(resp.BulkString)); got != "1" {
		t.Fatalf("hmget[0] got %q want 1", got)
	}
	if bs, ok := out[1].(resp.BulkString); !ok || bs != nil {
		t.Fatalf("hmget[1] expected nil bulk string, got %#v", out[1])
	}
}

func TestHStrlen(t *testing.T) {
	h := newHarness(t)
	h.run(hset, "myhash", "f1", "hello")

	raw := h.run(hstrlen, "myhash", "f1")
	if got := h.parseLast(raw).(resp.Integer); got != 5 {
		t.Fatalf("hstrlen got %d want 5", got)
	}

	raw = h.run(hstrlen, "myhash", "missing")
	if got := h.parseLast(raw).(resp.Integer); got != 0 {
		t.Fatalf("hstrlen on missing field got %d want 0", got)
	}

	raw = h.run(hstrlen, "nokey", "f1")
	if got := h.parseLast(raw).(resp.Integer); got != 0 {
		t.Fatalf("hstrlen on missing key got %d want 0", got)
	}
}

func TestHSetOnWrongTypeErrors(t *testing.T) {
	h := newHarness(t)
	h.run(set, "mystring", "v")

	if err := hset(bs("mystring", "f", "v"), h.ex); err == nil {
		t.Fatal("expected WRONGTYPE error")
	}
}
