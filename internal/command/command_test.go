// Copyright (c) 2015, Rod Dong <rod.dong@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by The MIT License.

package command

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lsmdb/rodis/internal/engine"
	"github.com/lsmdb/rodis/internal/resp"
	"github.com/lsmdb/rodis/internal/txn"
)

// testHarness bundles an in-process engine, txn runner and RESP output
// buffer so command handlers can be invoked exactly as Handle calls them.
type testHarness struct {
	t   *testing.T
	eng *engine.LevelDB
	buf *bytes.Buffer
	ex  *Extras
	now time.Time
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "command-testdb")
	eng, err := engine.Open(dir)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		eng.Close()
		os.RemoveAll(dir)
	})

	h := &testHarness{t: t, eng: eng, buf: &bytes.Buffer{}, now: time.UnixMilli(1_700_000_000_000)}
	h.ex = &Extras{
		Engine: eng,
		Runner: txn.New(eng, txn.DefaultRetryCount),
		Writer: bufio.NewWriter(h.buf),
		Now:    func() time.Time { return h.now },
	}
	return h
}

func bs(args ...string) []resp.BulkString {
	out := make([]resp.BulkString, len(args))
	for i, a := range args {
		out[i] = resp.BulkString(a)
	}
	return out
}

// run invokes handler with args, flushes the writer, and returns the raw
// RESP bytes written for the caller to parse or compare.
func (h *testHarness) run(handler HandlerFunc, args ...string) []byte {
	h.t.Helper()
	if err := handler(bs(args...), h.ex); err != nil {
		h.t.Fatalf("handler returned error: %v", err)
	}
	if err := h.ex.Writer.Flush(); err != nil {
		h.t.Fatalf("flush error: %v", err)
	}
	out := h.buf.Bytes()
	h.buf.Reset()
	return out
}

func (h *testHarness) parseLast(raw []byte) resp.Value {
	h.t.Helper()
	r := bufio.NewReader(bytes.NewReader(raw))
	_, v, err := resp.Parse(r)
	if err != nil {
		h.t.Fatalf("Parse error: %v (raw=%q)", err, raw)
	}
	return v
}

func (h *testHarness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}
