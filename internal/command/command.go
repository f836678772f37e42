// Copyright (c) 2015, Rod Dong <rod.dong@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by The MIT License.

// Package command handles commands parsed off a connection: one handler
// per Redis command family, composing the codec, engine facade, txn
// runner and expiry manager into the sequence §4.5 describes for each
// command.
package command

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/rod6/log6"

	"github.com/lsmdb/rodis/internal/engine"
	"github.com/lsmdb/rodis/internal/metrics"
	"github.com/lsmdb/rodis/internal/resp"
	"github.com/lsmdb/rodis/internal/rodiserr"
	"github.com/lsmdb/rodis/internal/txn"
)

// Extras is the per-connection state a handler needs: shared storage
// handles plus this connection's auth flag. It plays the role of the
// teacher's CommandExtras, generalized to the txn-runner architecture.
type Extras struct {
	Engine       engine.Facade
	Runner       *txn.Runner
	Writer       *bufio.Writer
	IsConnAuthed bool
	RequirePass  string
	Now          func() time.Time
}

func (ex *Extras) nowMs() int64 {
	now := ex.Now
	if now == nil {
		now = time.Now
	}
	return now().UnixMilli()
}

// HandlerFunc handles one command's argument vector (excluding the
// command name itself) and writes its reply to ex.Writer.
type HandlerFunc func(args []resp.BulkString, ex *Extras) error

// attr pairs a handler with the exact array length (command name
// included) it requires; 0 means the handler validates arity itself.
type attr struct {
	f     HandlerFunc
	arity int
}

var commands = map[string]*attr{
	// connection
	"auth": {f: authCmd, arity: 2},
	"ping": {f: ping, arity: 0},
	"echo": {f: echo, arity: 2},

	// strings
	"get":         {f: get, arity: 2},
	"set":         {f: set, arity: 0},
	"setnx":       {f: setnx, arity: 3},
	"getset":      {f: getset, arity: 3},
	"append":      {f: appendx, arity: 3},
	"strlen":      {f: strlen, arity: 2},
	"mget":        {f: mget, arity: 0},
	"mset":        {f: mset, arity: 0},
	"msetnx":      {f: msetnx, arity: 0},
	"incr":        {f: incr, arity: 2},
	"decr":        {f: decr, arity: 2},
	"incrby":      {f: incrby, arity: 3},
	"decrby":      {f: decrby, arity: 3},
	"incrbyfloat": {f: incrbyfloat, arity: 3},

	// keys
	"del":        {f: del, arity: 0},
	"exists":     {f: exists, arity: 0},
	"type":       {f: typeCmd, arity: 2},
	"expire":     {f: expireCmd, arity: 3},
	"pexpire":    {f: pexpireCmd, arity: 3},
	"expireat":   {f: expireatCmd, arity: 3},
	"pexpireat":  {f: pexpireatCmd, arity: 3},
	"persist":    {f: persist, arity: 2},
	"ttl":        {f: ttl, arity: 2},
	"pttl":       {f: pttl, arity: 2},
	"keys":       {f: keysCmd, arity: 2},
	"rename":     {f: rename, arity: 3},
	"renamenx":   {f: renamenx, arity: 3},

	// hashes
	"hset":         {f: hset, arity: 4},
	"hsetnx":       {f: hsetnx, arity: 4},
	"hget":         {f: hget, arity: 3},
	"hdel":         {f: hdel, arity: 0},
	"hlen":         {f: hlen, arity: 2},
	"hexists":      {f: hexists, arity: 3},
	"hincrby":      {f: hincrby, arity: 4},
	"hincrbyfloat": {f: hincrbyfloat, arity: 4},
	"hgetall":      {f: hgetall, arity: 2},
	"hkeys":        {f: hkeys, arity: 2},
	"hvals":        {f: hvals, arity: 2},
	"hmget":        {f: hmget, arity: 0},
	"hstrlen":      {f: hstrlen, arity: 3},

	// lists
	"lpush":   {f: lpush, arity: 0},
	"rpush":   {f: rpush, arity: 0},
	"lpop":    {f: lpop, arity: 2},
	"rpop":    {f: rpop, arity: 2},
	"llen":    {f: llen, arity: 2},
	"lindex":  {f: lindex, arity: 3},
	"lrange":  {f: lrange, arity: 4},
	"lset":    {f: lset, arity: 4},
	"ltrim":   {f: ltrim, arity: 4},
	"linsert": {f: linsert, arity: 5},
	"lrem":    {f: lrem, arity: 4},

	// sets
	"sadd":        {f: sadd, arity: 0},
	"srem":        {f: srem, arity: 0},
	"sismember":   {f: sismember, arity: 3},
	"smismember":  {f: smismember, arity: 0},
	"scard":       {f: scard, arity: 2},
	"smembers":    {f: smembers, arity: 2},
	"spop":        {f: spop, arity: 0},
	"srandmember": {f: srandmember, arity: 0},
	"sunion":      {f: sunion, arity: 0},
	"sinter":      {f: sinter, arity: 0},
	"sdiff":       {f: sdiff, arity: 0},
	"sunionstore": {f: sunionstore, arity: 0},
	"sinterstore": {f: sinterstore, arity: 0},
	"sdiffstore":  {f: sdiffstore, arity: 0},

	// sorted sets
	"zadd":             {f: zadd, arity: 0},
	"zcard":            {f: zcard, arity: 2},
	"zscore":           {f: zscore, arity: 3},
	"zrank":            {f: zrank, arity: 3},
	"zincrby":          {f: zincrby, arity: 4},
	"zrange":           {f: zrange, arity: 0},
	"zrevrange":        {f: zrevrange, arity: 0},
	"zrangebyscore":    {f: zrangebyscore, arity: 0},
	"zremrangebyscore": {f: zremrangebyscore, arity: 4},
	"zremrangebyrank":  {f: zremrangebyrank, arity: 4},
	"zpopmin":          {f: zpopmin, arity: 0},
	"zpopmax":          {f: zpopmax, arity: 0},
}

// Handle dispatches one parsed command array, writing its reply to
// ex.Writer. It never returns an error for a well-formed-but-rejected
// command (e.g. unknown command, wrong arity, wrong type): those are
// written as RESP errors. A non-nil return means writing to ex.Writer
// itself failed, i.e. the connection is dead.
func Handle(v resp.Array, ex *Extras) error {
	if len(v) == 0 {
		return resp.Error(rodiserr.ErrFmtSyntax).WriteTo(ex.Writer)
	}

	args := make([]resp.BulkString, len(v))
	for i, e := range v {
		b, ok := e.(resp.BulkString)
		if !ok {
			return resp.Error(rodiserr.ErrFmtSyntax).WriteTo(ex.Writer)
		}
		args[i] = b
	}

	cmd := strings.ToLower(args[0].String())
	a, ok := commands[cmd]
	if !ok {
		log6.Debug("unknown command: %v", cmd)
		return resp.Error(fmt.Sprintf(rodiserr.ErrFmtUnknownCommand, cmd)).WriteTo(ex.Writer)
	}

	if a.arity != 0 && len(args) != a.arity {
		return resp.Error(fmt.Sprintf(rodiserr.ErrFmtWrongNumberArgument, cmd)).WriteTo(ex.Writer)
	}

	if !ex.IsConnAuthed && ex.RequirePass != "" && cmd != "auth" {
		return resp.Error(rodiserr.ErrAuthRequired).WriteTo(ex.Writer)
	}

	err := a.f(args[1:], ex)
	if err == nil {
		metrics.CommandsTotal.WithLabelValues(cmd, "ok").Inc()
		return nil
	}
	metrics.CommandsTotal.WithLabelValues(cmd, "error").Inc()
	return writeErr(ex, err)
}

// writeErr renders a Go error as a RESP error line. rodiserr.*Error
// carries its own Redis-style prefix already; anything else becomes a
// generic ERR.
func writeErr(ex *Extras, err error) error {
	if rerr, ok := err.(*rodiserr.Error); ok {
		return resp.Error(rerr.Message).WriteTo(ex.Writer)
	}
	log6.Error("command handler internal error: %v", err)
	return resp.Error("ERR " + err.Error()).WriteTo(ex.Writer)
}
