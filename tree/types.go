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

// Package tree defines the domain types of the unified binary trie: stems,
// tree keys, stem nodes and the head checkpoint record shared by the primary
// store and the key index.
package tree

import (
	"github.com/ethereum/go-ethereum/common"
)

// StemSize is the length of a trie path prefix in bytes. A stem is shared by
// up to 256 leaves, one per sub-index.
const StemSize = 31

// Stem is the 31-byte trie path prefix shared by the leaves of one node group.
// Stems are opaque and immutable once observed.
type Stem [StemSize]byte

// BytesToStem sets b to a stem, left-padded with zeros if it is short and
// cropped from the left if it is long.
func BytesToStem(b []byte) Stem {
	var s Stem
	if len(b) > StemSize {
		b = b[len(b)-StemSize:]
	}
	copy(s[StemSize-len(b):], b)
	return s
}

// Bytes returns the stem as a byte slice.
func (s Stem) Bytes() []byte { return s[:] }

// Hex returns the stem as a 0x-prefixed hex string.
func (s Stem) Hex() string { return "0x" + common.Bytes2Hex(s[:]) }

// TreeKey identifies a single leaf: a stem plus the 8-bit sub-index selecting
// one of the 256 slots beneath it.
type TreeKey struct {
	Stem     Stem
	SubIndex byte
}

// Path returns the 32-byte position of the leaf in the authenticated trie,
// the stem followed by the sub-index.
func (k TreeKey) Path() common.Hash {
	var p common.Hash
	copy(p[:StemSize], k.Stem[:])
	p[StemSize] = k.SubIndex
	return p
}

// StemNode holds the live leaves under one stem: a mapping from sub-index to
// the 32-byte leaf value. At most 256 entries; insertion order is irrelevant.
type StemNode struct {
	Values map[byte]common.Hash
}

// NewStemNode returns an empty stem node.
func NewStemNode() *StemNode {
	return &StemNode{Values: make(map[byte]common.Hash)}
}

// SubIndices returns the populated sub-indices in ascending order.
func (n *StemNode) SubIndices() []byte {
	indices := make([]byte, 0, len(n.Values))
	for i := 0; i < 256; i++ {
		if _, ok := n.Values[byte(i)]; ok {
			indices = append(indices, byte(i))
		}
	}
	return indices
}
