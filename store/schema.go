// Copyright 2025 The ubt Authors
// This file is part of the ubt library.
//
// The ubt library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The ubt library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the ubt library. If not, see <http://www.gnu.org/licenses/>.

package store

import (
	"encoding/binary"

	"github.com/ubtrie/ubt/tree"
)

// The fields below define the low level database schema prefixing.
var (
	// headKey tracks the canonical head checkpoint record.
	headKey = []byte("UbtHead")

	// leafPrefix + stem (31 bytes) + sub-index (1 byte) -> leaf value (32 bytes).
	// One key per leaf keeps store-native iteration stem-grouped with
	// ascending sub-indices, which the exporter relies on.
	leafPrefix = []byte("l")

	// stemAddressPrefix + stem (31 bytes) -> owning contract address (20 bytes).
	stemAddressPrefix = []byte("a")

	// deltaPrefix + block number (uint64 big endian) -> RLP list of pre-image
	// writes recorded for that block.
	deltaPrefix = []byte("d")
)

// encodeBlockNumber encodes a block number as big endian uint64.
func encodeBlockNumber(number uint64) []byte {
	enc := make([]byte, 8)
	binary.BigEndian.PutUint64(enc, number)
	return enc
}

// leafKey = leafPrefix + stem + sub-index
func leafKey(key tree.TreeKey) []byte {
	k := make([]byte, 0, len(leafPrefix)+tree.StemSize+1)
	k = append(k, leafPrefix...)
	k = append(k, key.Stem[:]...)
	k = append(k, key.SubIndex)
	return k
}

// stemAddressKey = stemAddressPrefix + stem
func stemAddressKey(stem tree.Stem) []byte {
	return append(append([]byte{}, stemAddressPrefix...), stem[:]...)
}

// deltaKey = deltaPrefix + num (uint64 big endian)
func deltaKey(number uint64) []byte {
	return append(append([]byte{}, deltaPrefix...), encodeBlockNumber(number)...)
}
