// Copyright (c) 2015, Rod Dong <rod.dong@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by The MIT License.

// Package metatype defines the datatype tags shared by the codec, the
// engine facade and every command family. It corresponds to §3.3 of the
// storage specification: a logical key carries exactly one of these tags
// at any instant.
package metatype

// DataType identifies which Redis composite a logical key currently holds.
type DataType byte

const (
	None      DataType = 0xFF
	String    DataType = 0
	List      DataType = 1
	Set       DataType = 2
	SortedSet DataType = 3
	Hash      DataType = 4
)

// Names mirrors Redis's TYPE command output.
var Names = map[DataType]string{
	String:    "string",
	List:      "list",
	Set:       "set",
	SortedSet: "zset",
	Hash:      "hash",
	None:      "none",
}

func (t DataType) String() string {
	if name, ok := Names[t]; ok {
		return name
	}
	return "none"
}
