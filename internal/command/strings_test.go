// Copyright (c) 2015, Rod Dong <rod.dong@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by The MIT License.

package command

import (
	"testing"
	"time"

	"github.com/lsmdb/rodis/internal/resp"
)

func TestSetGet(t *testing.T) {
	h := newHarness(t)
	h.run(set, "k", "v")

	raw := h.run(get, "k")
	if got := string(h.parseLast(raw).(resp.BulkString)); got != "v" {
		t.Fatalf("get got %q want v", got)
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	h := newHarness(t)
	raw := h.run(get, "nope")
	if bs, ok := h.parseLast(raw).(resp.BulkString); !ok || bs != nil {
		t.Fatalf("expected nil bulk string, got %#v", h.parseLast(raw))
	}
}

func TestSetNXDoesNotOverwrite(t *testing.T) {
	h := newHarness(t)
	h.run(set, "k", "v1")
	h.run(set, "k", "v2", "NX")

	raw := h.run(get, "k")
	if got := string(h.parseLast(raw).(resp.BulkString)); got != "v1" {
		t.Fatalf("NX must not overwrite: got %q want v1", got)
	}
}

func TestSetXXRequiresExisting(t *testing.T) {
	h := newHarness(t)
	h.run(set, "k", "v1", "XX")

	raw := h.run(exists, "k")
	if got := h.parseLast(raw).(resp.Integer); got != 0 {
		t.Fatalf("XX must not create a new key, exists=%d", got)
	}
}

func TestSetWithExpireHonorsTTL(t *testing.T) {
	h := newHarness(t)
	h.run(set, "k", "v", "EX", "10")

	raw := h.run(ttl, "k")
	got := h.parseLast(raw).(resp.Integer)
	if got <= 0 || got > 10 {
		t.Fatalf("ttl got %d want in (0,10]", got)
	}

	h.advance(11 * time.Second)
	raw = h.run(get, "k")
	if bs, ok := h.parseLast(raw).(resp.BulkString); !ok || bs != nil {
		t.Fatalf("expected key expired, got %#v", h.parseLast(raw))
	}
}

func TestIncrDecr(t *testing.T) {
	h := newHarness(t)
	h.run(set, "n", "10")

	raw := h.run(incr, "n")
	if got := h.parseLast(raw).(resp.Integer); got != 11 {
		t.Fatalf("incr got %d want 11", got)
	}
	raw = h.run(decrby, "n", "5")
	if got := h.parseLast(raw).(resp.Integer); got != 6 {
		t.Fatalf("decrby got %d want 6", got)
	}
}

func TestIncrOnNonIntegerErrors(t *testing.T) {
	h := newHarness(t)
	h.run(set, "n", "notanumber")

	if err := incr(bs("n"), h.ex); err == nil {
		t.Fatal("expected not-an-integer error")
	}
}

func TestIncrOverflowErrorsWithoutWriting(t *testing.T) {
	h := newHarness(t)
	h.run(set, "n", "9223372036854775807")

	if err := incr(bs("n"), h.ex); err == nil {
		t.Fatal("expected overflow error")
	}
	raw := h.run(get, "n")
	if got := string(h.parseLast(raw).(resp.BulkString)); got != "9223372036854775807" {
		t.Fatalf("value must be unchanged after overflow, got %q", got)
	}
}

func TestDecrUnderflowErrorsWithoutWriting(t *testing.T) {
	h := newHarness(t)
	h.run(set, "n", "-9223372036854775808")

	if err := decr(bs("n"), h.ex); err == nil {
		t.Fatal("expected underflow error")
	}
	raw := h.run(get, "n")
	if got := string(h.parseLast(raw).(resp.BulkString)); got != "-9223372036854775808" {
		t.Fatalf("value must be unchanged after underflow, got %q", got)
	}
}

func TestAppendGrowsValue(t *testing.T) {
	h := newHarness(t)
	h.run(set, "k", "Hello")
	raw := h.run(appendx, "k", " World")
	if got := h.parseLast(raw).(resp.Integer); got != 11 {
		t.Fatalf("append got length %d want 11", got)
	}
	raw = h.run(get, "k")
	if got := string(h.parseLast(raw).(resp.BulkString)); got != "Hello World" {
		t.Fatalf("get got %q want %q", got, "Hello World")
	}
}

func TestMSetMGet(t *testing.T) {
	h := newHarness(t)
	h.run(mset, "a", "1", "b", "2")

	raw := h.run(mget, "a", "b", "c")
	arr := h.parseLast(raw).(resp.Array)
	if len(arr) != 3 {
		t.Fatalf("mget got %d entries want 3", len(arr))
	}
	if got := string(arr[0].(resp.BulkString)); got != "1" {
		t.Fatalf("mget[0] got %q want 1", got)
	}
	if bs, ok := arr[2].(resp.BulkString); !ok || bs != nil {
		t.Fatalf("mget[2] expected nil, got %#v", arr[2])
	}
}
