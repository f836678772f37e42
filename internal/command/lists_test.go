// Copyright (c) 2015, Rod Dong <rod.dong@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by The MIT License.

package command

import (
	"testing"

	"github.com/lsmdb/rodis/internal/resp"
)

func TestLPushRPushOrdering(t *testing.T) {
	h := newHarness(t)
	h.run(lpush, "mylist", "b")
	h.run(lpush, "mylist", "a")
	h.run(rpush, "mylist", "c")

	raw := h.run(lrange, "mylist", "0", "-1")
	arr, ok := h.parseLast(raw).(resp.Array)
	if !ok || len(arr) != 3 {
		t.Fatalf("expected 3-element array, got %#v", h.parseLast(raw))
	}
	want := []string{"a", "b", "c"}
	for i, w := range want {
		if got := string(arr[i].(resp.BulkString)); got != w {
			t.Fatalf("index %d: got %q want %q", i, got, w)
		}
	}
}

func TestLPopRPop(t *testing.T) {
	h := newHarness(t)
	h.run(rpush, "mylist", "a", "b", "c")

	raw := h.run(lpop, "mylist")
	if got := string(h.parseLast(raw).(resp.BulkString)); got != "a" {
		t.Fatalf("lpop got %q want a", got)
	}
	raw = h.run(rpop, "mylist")
	if got := string(h.parseLast(raw).(resp.BulkString)); got != "c" {
		t.Fatalf("rpop got %q want c", got)
	}

	raw = h.run(llen, "mylist")
	if got := h.parseLast(raw).(resp.Integer); got != 1 {
		t.Fatalf("llen got %d want 1", got)
	}
}

func TestLPopDrainsToDeletion(t *testing.T) {
	h := newHarness(t)
	h.run(rpush, "mylist", "only")
	h.run(lpop, "mylist")

	raw := h.run(lpop, "mylist")
	if _, ok := h.parseLast(raw).(resp.BulkString); !ok {
		t.Fatalf("expected a nil bulk string reply once the list is empty")
	}
	raw = h.run(llen, "mylist")
	if got := h.parseLast(raw).(resp.Integer); got != 0 {
		t.Fatalf("llen got %d want 0 after list drained", got)
	}
}

func TestLIndexNegative(t *testing.T) {
	h := newHarness(t)
	h.run(rpush, "mylist", "a", "b", "c")

	raw := h.run(lindex, "mylist", "-1")
	if got := string(h.parseLast(raw).(resp.BulkString)); got != "c" {
		t.Fatalf("lindex -1 got %q want c", got)
	}
}

func TestLSetOutOfRange(t *testing.T) {
	h := newHarness(t)
	h.run(rpush, "mylist", "a")

	if err := lset(bs("mylist", "5", "z"), h.ex); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestLTrimShrinksWindow(t *testing.T) {
	h := newHarness(t)
	h.run(rpush, "mylist", "a", "b", "c", "d")
	h.run(ltrim, "mylist", "1", "2")

	raw := h.run(lrange, "mylist", "0", "-1")
	arr := h.parseLast(raw).(resp.Array)
	if len(arr) != 2 || string(arr[0].(resp.BulkString)) != "b" || string(arr[1].(resp.BulkString)) != "c" {
		t.Fatalf("unexpected trimmed list: %#v", arr)
	}
}

func TestLTrimToEmptyDeletesKey(t *testing.T) {
	h := newHarness(t)
	h.run(rpush, "mylist", "a", "b")
	h.run(ltrim, "mylist", "5", "10")

	raw := h.run(exists, "mylist")
	if got := h.parseLast(raw).(resp.Integer); got != 0 {
		t.Fatalf("expected key gone after trimming to empty window, exists=%d", got)
	}
}

func TestLInsertBeforeAndAfter(t *testing.T) {
	h := newHarness(t)
	h.run(rpush, "mylist", "a", "c")
	h.run(linsert, "mylist", "BEFORE", "c", "b")
	h.run(linsert, "mylist", "AFTER", "c", "d")

	raw := h.run(lrange, "mylist", "0", "-1")
	arr := h.parseLast(raw).(resp.Array)
	want := []string{"a", "b", "c", "d"}
	if len(arr) != len(want) {
		t.Fatalf("expected %d elements, got %d: %#v", len(want), len(arr), arr)
	}
	for i, w := range want {
		if got := string(arr[i].(resp.BulkString)); got != w {
			t.Fatalf("index %d: got %q want %q", i, got, w)
		}
	}
}

func TestLInsertMissingPivotReturnsMinusOne(t *testing.T) {
	h := newHarness(t)
	h.run(rpush, "mylist", "a")

	raw := h.run(linsert, "mylist", "BEFORE", "nope", "x")
	if got := h.parseLast(raw).(resp.Integer); got != -1 {
		t.Fatalf("linsert with missing pivot got %d want -1", got)
	}
}

func TestLRemFromHead(t *testing.T) {
	h := newHarness(t)
	h.run(rpush, "mylist", "a", "b", "a", "c", "a")

	raw := h.run(lrem, "mylist", "2", "a")
	if got := h.parseLast(raw).(resp.Integer); got != 2 {
		t.Fatalf("lrem got %d want 2", got)
	}

	raw = h.run(lrange, "mylist", "0", "-1")
	arr := h.parseLast(raw).(resp.Array)
	want := []string{"b", "c", "a"}
	if len(arr) != len(want) {
		t.Fatalf("expected %d elements, got %d: %#v", len(want), len(arr), arr)
	}
	for i, w := range want {
		if got := string(arr[i].(resp.BulkString)); got != w {
			t.Fatalf("index %d: got %q want %q", i, got, w)
		}
	}
}

func TestLRemFromTailNegativeCount(t *testing.T) {
	h := newHarness(t)
	h.run(rpush, "mylist", "a", "b", "a", "c", "a")

	raw := h.run(lrem, "mylist", "-2", "a")
	if got := h.parseLast(raw).(resp.Integer); got != 2 {
		t.Fatalf("lrem got %d want 2", got)
	}

	raw = h.run(lrange, "mylist", "0", "-1")
	arr := h.parseLast(raw).(resp.Array)
	want := []string{"a", "b", "c"}
	if len(arr) != len(want) {
		t.Fatalf("expected %d elements, got %d: %#v", len(want), len(arr), arr)
	}
	for i, w := range want {
		if got := string(arr[i].(resp.BulkString)); got != w {
			t.Fatalf("index %d: got %q want %q", i, got, w)
		}
	}
}

func TestLRemZeroRemovesAllAndDeletesEmptyList(t *testing.T) {
	h := newHarness(t)
	h.run(rpush, "mylist", "a", "a", "a")

	raw := h.run(lrem, "mylist", "0", "a")
	if got := h.parseLast(raw).(resp.Integer); got != 3 {
		t.Fatalf("lrem got %d want 3", got)
	}

	raw = h.run(exists, "mylist")
	if got := h.parseLast(raw).(resp.Integer); got != 0 {
		t.Fatalf("expected key gone after removing every element, exists=%d", got)
	}
}
