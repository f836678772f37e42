// Copyright (c) 2015, Rod Dong <rod.dong@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by The MIT License.

package command

import (
	"testing"

	"github.com/lsmdb/rodis/internal/resp"
)

func TestZAddIdempotentOnUnchangedScore(t *testing.T) {
	h := newHarness(t)
	raw := h.run(zadd, "myzset", "1", "one")
	if got := h.parseLast(raw).(resp.Integer); got != 1 {
		t.Fatalf("first zadd got %d want 1", got)
	}
	raw = h.run(zadd, "myzset", "1", "one")
	if got := h.parseLast(raw).(resp.Integer); got != 0 {
		t.Fatalf("second zadd got %d want 0", got)
	}
	raw = h.run(zcard, "myzset")
	if got := h.parseLast(raw).(resp.Integer); got != 1 {
		t.Fatalf("zcard got %d want 1", got)
	}
}

func TestZScoreAndZRank(t *testing.T) {
	h := newHarness(t)
	h.run(zadd, "myzset", "1", "one", "2", "two", "3", "three")

	raw := h.run(zscore, "myzset", "two")
	if got := string(h.parseLast(raw).(resp.BulkString)); got != "2" {
		t.Fatalf("zscore got %q want 2", got)
	}

	raw = h.run(zrank, "myzset", "three")
	if got := h.parseLast(raw).(resp.Integer); got != 2 {
		t.Fatalf("zrank(three) got %d want 2", got)
	}
	raw = h.run(zrank, "myzset", "one")
	if got := h.parseLast(raw).(resp.Integer); got != 0 {
		t.Fatalf("zrank(one) got %d want 0", got)
	}
}

func TestZRangeWithScores(t *testing.T) {
	h := newHarness(t)
	h.run(zadd, "myzset", "1", "one", "2", "two", "3", "three")

	raw := h.run(zrange, "myzset", "0", "-1", "WITHSCORES")
	arr := h.parseLast(raw).(resp.Array)
	if len(arr) != 6 {
		t.Fatalf("zrange withscores got %d entries want 6", len(arr))
	}
	if string(arr[0].(resp.BulkString)) != "one" || string(arr[1].(resp.BulkString)) != "1" {
		t.Fatalf("unexpected first pair: %s %s", arr[0], arr[1])
	}
}

func TestZIncrBy(t *testing.T) {
	h := newHarness(t)
	h.run(zadd, "myzset", "1", "m")

	raw := h.run(zincrby, "myzset", "2.5", "m")
	if got := string(h.parseLast(raw).(resp.BulkString)); got != "3.5" {
		t.Fatalf("zincrby got %q want 3.5", got)
	}
}

func TestZRemRangeByScore(t *testing.T) {
	h := newHarness(t)
	h.run(zadd, "myzset", "1", "one", "2", "two", "3", "three")

	raw := h.run(zremrangebyscore, "myzset", "0", "1")
	if got := h.parseLast(raw).(resp.Integer); got != 1 {
		t.Fatalf("zremrangebyscore got %d want 1", got)
	}

	raw = h.run(zrange, "myzset", "0", "-1")
	arr := h.parseLast(raw).(resp.Array)
	if len(arr) != 2 {
		t.Fatalf("expected 2 members remaining, got %d", len(arr))
	}
}

func TestZPopMinMax(t *testing.T) {
	h := newHarness(t)
	h.run(zadd, "myzset", "1", "one", "2", "two", "3", "three")

	raw := h.run(zpopmin, "myzset")
	arr := h.parseLast(raw).(resp.Array)
	if len(arr) != 2 || string(arr[0].(resp.BulkString)) != "one" {
		t.Fatalf("zpopmin got %#v want [one 1]", arr)
	}

	raw = h.run(zpopmax, "myzset")
	arr = h.parseLast(raw).(resp.Array)
	if len(arr) != 2 || string(arr[0].(resp.BulkString)) != "three" {
		t.Fatalf("zpopmax got %#v want [three 3]", arr)
	}
}
