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
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ubtrie/ubt/tree"
)

// StemIterator walks all stems in store-native key order, assembling the stem
// node for each from its individual leaf entries. Because leaves are keyed
// stem-first, a stem's leaves are contiguous in the iteration and repeated
// exports of unchanged state visit them identically.
type StemIterator struct {
	it   leafIterator
	stem tree.Stem
	node *tree.StemNode

	buffered bool
	bufStem  tree.Stem
	bufSub   byte
	bufVal   common.Hash

	done bool
	err  error
}

// leafIterator is the slice of ethdb.Iterator the stem iterator needs.
type leafIterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}

// IterStems returns an iterator over all stems and their nodes. The caller
// must Release it when done.
func (s *Store) IterStems() *StemIterator {
	return &StemIterator{it: s.db.NewIterator(leafPrefix, nil)}
}

// Next advances to the next stem, returning false when the iteration is
// exhausted or failed.
func (it *StemIterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}
	if !it.buffered && !it.advance() {
		it.done = true
		return false
	}
	stem := it.bufStem
	node := tree.NewStemNode()
	node.Values[it.bufSub] = it.bufVal
	it.buffered = false

	for it.advance() {
		if it.bufStem != stem {
			it.buffered = true
			break
		}
		node.Values[it.bufSub] = it.bufVal
	}
	if it.err != nil {
		return false
	}
	if !it.buffered {
		it.done = true
	}
	it.stem, it.node = stem, node
	return true
}

// advance pulls the next raw leaf into the lookahead buffer.
func (it *StemIterator) advance() bool {
	if !it.it.Next() {
		it.err = it.it.Error()
		return false
	}
	key := it.it.Key()
	if len(key) != len(leafPrefix)+tree.StemSize+1 {
		it.err = fmt.Errorf("corrupt leaf key of length %d", len(key))
		return false
	}
	copy(it.bufStem[:], key[len(leafPrefix):len(leafPrefix)+tree.StemSize])
	it.bufSub = key[len(key)-1]
	it.bufVal = common.BytesToHash(it.it.Value())
	return true
}

// Stem returns the stem at the current position.
func (it *StemIterator) Stem() tree.Stem { return it.stem }

// Node returns the assembled node at the current position.
func (it *StemIterator) Node() *tree.StemNode { return it.node }

// Error returns the first failure encountered during iteration.
func (it *StemIterator) Error() error { return it.err }

// Release frees the underlying database iterator.
func (it *StemIterator) Release() { it.it.Release() }
