// Copyright (c) 2015, Rod Dong <rod.dong@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by The MIT License.

package command

import (
	"github.com/lsmdb/rodis/internal/resp"
	"github.com/lsmdb/rodis/internal/rodiserr"
)

// authCmd checks the supplied password against ex.RequirePass and flips
// ex.IsConnAuthed for the lifetime of the connection. A server started
// without RequirePass rejects AUTH outright, matching Redis.
func authCmd(v []resp.BulkString, ex *Extras) error {
	if ex.RequirePass == "" {
		return rodiserr.New(rodiserr.SyntaxError, rodiserr.ErrNoPasswordSet)
	}
	if v[0].String() != ex.RequirePass {
		return rodiserr.New(rodiserr.SyntaxError, rodiserr.ErrInvalidPassword)
	}
	ex.IsConnAuthed = true
	return resp.OK.WriteTo(ex.Writer)
}

func ping(v []resp.BulkString, ex *Extras) error {
	if len(v) == 0 {
		return resp.SimpleString("PONG").WriteTo(ex.Writer)
	}
	if len(v) == 1 {
		return resp.BulkString(v[0]).WriteTo(ex.Writer)
	}
	return rodiserr.New(rodiserr.SyntaxError, rodiserr.ErrFmtSyntax)
}

func echo(v []resp.BulkString, ex *Extras) error {
	return resp.BulkString(v[0]).WriteTo(ex.Writer)
}
