// Copyright (c) 2015, Rod Dong <rod.dong@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by The MIT License.

// RESP (REdis Serialization Protocol) is used for the communication
// between a Redis client and server. RESP can serialize different data
// types like integers, strings, arrays, and has a specific type for
// errors. Requests are sent from the client to the server as arrays of
// bulk strings representing a command and its arguments; the server
// replies with a command-specific RESP value.
//
// RESP is binary-safe and does not require processing of bulk data
// transferred from one process to another, because it uses
// prefixed-length encoding for bulk data.
//
// See http://redis.io/topics/protocol for the full grammar. This
// package parses and serializes it.
package resp

import (
	"bufio"
	"strconv"

	"github.com/lsmdb/rodis/internal/rodiserr"
)

// Parse reads one RESP value from reader: a command array in the normal
// case, or the inline-command fallback that tools like `redis-cli --pipe`
// and bare-line health checks send.
func Parse(reader *bufio.Reader) (Type, Value, error) {
	prefix, err := reader.ReadByte()
	if err != nil {
		return WrongType, nil, err
	}

	switch prefix {
	case '+':
		return parseSimpleString(reader)
	case '-':
		return parseError(reader)
	case ':':
		return parseInteger(reader)
	case '$':
		return parseBulkString(reader)
	case '*':
		return parseArray(reader)
	default:
		if err := reader.UnreadByte(); err != nil {
			return WrongType, nil, err
		}
		return parseInlineCommand(reader)
	}
}

func readLine(reader *bufio.Reader) ([]byte, error) {
	var line []byte
	more := true
	for more {
		buf, isPrefix, err := reader.ReadLine()
		if err != nil {
			return nil, err
		}
		line = append(line, buf...)
		more = isPrefix
	}
	return line, nil
}

func readInt(reader *bufio.Reader) (int64, error) {
	line, err := readLine(reader)
	if err != nil {
		return 0, err
	}
	i, err := strconv.ParseInt(string(line), 10, 64)
	if err != nil {
		return 0, rodiserr.Wrap(rodiserr.SyntaxError, "invalid RESP length prefix", err)
	}
	return i, nil
}

func parseSimpleString(reader *bufio.Reader) (Type, SimpleString, error) {
	line, err := readLine(reader)
	if err != nil {
		return SimpleStringType, SimpleString(""), err
	}
	return SimpleStringType, SimpleString(line), nil
}

func parseInteger(reader *bufio.Reader) (Type, Integer, error) {
	i, err := readInt(reader)
	if err != nil {
		return IntegerType, Integer(0), err
	}
	return IntegerType, Integer(i), nil
}

func parseError(reader *bufio.Reader) (Type, Error, error) {
	line, err := readLine(reader)
	if err != nil {
		return ErrorType, Error(""), err
	}
	return ErrorType, Error(line), nil
}

func parseBulkString(reader *bufio.Reader) (Type, BulkString, error) {
	n, err := readInt(reader)
	if err != nil {
		return BulkStringType, nil, err
	}
	if n == -1 {
		return BulkStringType, nil, nil
	}
	b := make([]byte, n)
	if _, err := readFull(reader, b); err != nil {
		return BulkStringType, nil, err
	}
	if _, err := reader.Discard(2); err != nil { // trailing \r\n
		return BulkStringType, nil, err
	}
	return BulkStringType, BulkString(b), nil
}

func readFull(reader *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := reader.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func parseArray(reader *bufio.Reader) (Type, Array, error) {
	n, err := readInt(reader)
	if err != nil {
		return ArrayType, nil, err
	}
	if n == -1 {
		return ArrayType, nil, nil
	}
	arr := make(Array, n)
	for i := range arr {
		_, v, err := Parse(reader)
		if err != nil {
			return ArrayType, nil, err
		}
		arr[i] = v
	}
	return ArrayType, arr, nil
}

func parseInlineCommand(reader *bufio.Reader) (Type, Array, error) {
	line, err := readLine(reader)
	if err != nil {
		return ArrayType, nil, err
	}

	var arr Array
	start := 0
	for i := 0; i <= len(line); i++ {
		if i == len(line) || line[i] == ' ' {
			if i > start {
				arr = append(arr, BulkString(append([]byte(nil), line[start:i]...)))
			}
			start = i + 1
		}
	}
	return ArrayType, arr, nil
}
