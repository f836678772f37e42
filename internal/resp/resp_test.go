// Copyright (c) 2015, Rod Dong <rod.dong@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by The MIT License.

package resp

import (
	"bufio"
	"bytes"
	"testing"
)

func writeToString(t *testing.T, v Value) string {
	t.Helper()
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := v.WriteTo(w); err != nil {
		t.Fatalf("WriteTo error: %v", err)
	}
	w.Flush()
	return buf.String()
}

func TestWriteToEncodings(t *testing.T) {
	cases := []struct {
		name string
		v    Value
		want string
	}{
		{"simple string", SimpleString("OK"), "+OK\r\n"},
		{"integer", Integer(42), ":42\r\n"},
		{"negative integer", Integer(-7), ":-7\r\n"},
		{"error", Error("ERR bad"), "-ERR bad\r\n"},
		{"bulk string", BulkString("hello"), "$5\r\nhello\r\n"},
		{"nil bulk string", BulkString(nil), "$-1\r\n"},
		{"empty bulk string", BulkString(""), "$0\r\n\r\n"},
		{"nil array", Array(nil), "*-1\r\n"},
		{"array", Array{Integer(1), BulkString("two")}, "*2\r\n:1\r\n$3\r\ntwo\r\n"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := writeToString(t, c.v)
			if got != c.want {
				t.Errorf("got %q, want %q", got, c.want)
			}
		})
	}
}

func TestParseCommandArray(t *testing.T) {
	r := bufio.NewReader(bytes.NewBufferString("*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n"))
	typ, v, err := Parse(r)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if typ != ArrayType {
		t.Fatalf("expected ArrayType, got %v", typ)
	}
	arr, ok := v.(Array)
	if !ok || len(arr) != 3 {
		t.Fatalf("expected 3-element array, got %#v", v)
	}
	if string(arr[0].(BulkString)) != "SET" || string(arr[1].(BulkString)) != "foo" || string(arr[2].(BulkString)) != "bar" {
		t.Fatalf("array contents mismatch: %#v", arr)
	}
}

func TestParseInlineCommand(t *testing.T) {
	r := bufio.NewReader(bytes.NewBufferString("PING\r\n"))
	typ, v, err := Parse(r)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if typ != ArrayType {
		t.Fatalf("expected ArrayType, got %v", typ)
	}
	arr := v.(Array)
	if len(arr) != 1 || string(arr[0].(BulkString)) != "PING" {
		t.Fatalf("expected [PING], got %#v", arr)
	}
}

func TestParseInlineCommandMultipleArgs(t *testing.T) {
	r := bufio.NewReader(bytes.NewBufferString("SET foo bar\r\n"))
	_, v, err := Parse(r)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	arr := v.(Array)
	if len(arr) != 3 {
		t.Fatalf("expected 3 args, got %d", len(arr))
	}
}

func TestParseNilBulkString(t *testing.T) {
	r := bufio.NewReader(bytes.NewBufferString("$-1\r\n"))
	typ, v, err := Parse(r)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if typ != BulkStringType {
		t.Fatalf("expected BulkStringType, got %v", typ)
	}
	if v.(BulkString) != nil {
		t.Fatalf("expected nil bulk string, got %#v", v)
	}
}
