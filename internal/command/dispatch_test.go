// Copyright (c) 2015, Rod Dong <rod.dong@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by The MIT License.

package command

import (
	"testing"

	"github.com/lsmdb/rodis/internal/resp"
)

func toArray(args ...string) resp.Array {
	out := make(resp.Array, len(args))
	for i, a := range args {
		out[i] = resp.BulkString(a)
	}
	return out
}

func TestHandleUnknownCommand(t *testing.T) {
	h := newHarness(t)
	if err := Handle(toArray("frobnicate", "k"), h.ex); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	h.ex.Writer.Flush()
	if got := h.buf.String(); got[0] != '-' {
		t.Fatalf("expected a RESP error reply, got %q", got)
	}
}

func TestHandleWrongArity(t *testing.T) {
	h := newHarness(t)
	if err := Handle(toArray("get"), h.ex); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	h.ex.Writer.Flush()
	if got := h.buf.String(); got[0] != '-' {
		t.Fatalf("expected a RESP error reply for wrong arity, got %q", got)
	}
}

func TestHandleRequiresAuthWhenPasswordSet(t *testing.T) {
	h := newHarness(t)
	h.ex.RequirePass = "secret"

	if err := Handle(toArray("get", "k"), h.ex); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	h.ex.Writer.Flush()
	if got := h.buf.String(); got[:6] != "-NOAUT" {
		t.Fatalf("expected NOAUTH error, got %q", got)
	}
}

func TestHandleAuthBypassesAuthGate(t *testing.T) {
	h := newHarness(t)
	h.ex.RequirePass = "secret"

	if err := Handle(toArray("auth", "secret"), h.ex); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	h.ex.Writer.Flush()
	if got := h.buf.String(); got != "+OK\r\n" {
		t.Fatalf("expected +OK, got %q", got)
	}
}

func TestHandleDispatchesSetGet(t *testing.T) {
	h := newHarness(t)
	if err := Handle(toArray("SET", "k", "v"), h.ex); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	h.ex.Writer.Flush()
	h.buf.Reset()

	if err := Handle(toArray("get", "k"), h.ex); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	h.ex.Writer.Flush()
	if got := h.buf.String(); got != "$1\r\nv\r\n" {
		t.Fatalf("got %q want $1\\r\\nv\\r\\n", got)
	}
}
