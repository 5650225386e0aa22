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

package pir

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ubtrie/ubt/exttrie"
	"github.com/ubtrie/ubt/keyindex"
	"github.com/ubtrie/ubt/store"
	"github.com/ubtrie/ubt/tree"
)

// leaf is one populated sub-index with its resolved value.
type leaf struct {
	subIndex byte
	value    common.Hash
}

// Source enumerates snapshot state for the exporter: the head checkpoint and
// every stem with its owning address and resolved leaves, in ascending stem
// order with ascending sub-indices. The two implementations resolve values
// from the primary store and from the external trie engine respectively.
type Source interface {
	head() (*tree.HeadRecord, error)
	forEachStem(fn func(stem tree.Stem, addr common.Address, leaves []leaf) error) error

	// finish runs the source's consistency checks once streaming completed,
	// before the snapshot header is finalized.
	finish(entryCount uint64, head *tree.HeadRecord, filtered bool) error
}

// storeSource reads stems, addresses and values from the primary store.
type storeSource struct {
	store   *store.Store
	missing int
}

// NewStoreSource returns a source backed by the primary store.
func NewStoreSource(s *store.Store) Source {
	return &storeSource{store: s}
}

func (src *storeSource) head() (*tree.HeadRecord, error) {
	head, err := src.store.LoadHead()
	if err != nil {
		return nil, err
	}
	if head == nil {
		return nil, store.ErrNoHead
	}
	return head, nil
}

func (src *storeSource) forEachStem(fn func(tree.Stem, common.Address, []leaf) error) error {
	it := src.store.IterStems()
	defer it.Release()

	for it.Next() {
		stem, node := it.Stem(), it.Node()
		addr, ok, err := src.store.LoadStemAddress(stem)
		if err != nil {
			return err
		}
		if !ok {
			src.missing++
			continue
		}
		subs := node.SubIndices()
		if len(subs) == 0 {
			continue
		}
		leaves := make([]leaf, 0, len(subs))
		for _, sub := range subs {
			leaves = append(leaves, leaf{subIndex: sub, value: node.Values[sub]})
		}
		if err := fn(stem, addr, leaves); err != nil {
			return err
		}
	}
	return it.Error()
}

func (src *storeSource) finish(entryCount uint64, head *tree.HeadRecord, filtered bool) error {
	// Partial address coverage means the store was built without address
	// tracking; the snapshot would be unusable, so the whole export fails.
	if src.missing > 0 {
		return fmt.Errorf("missing stem address mappings for %d stems, export requires a store built with address tracking", src.missing)
	}
	return nil
}

// engineSource enumerates stems through the key index and resolves values by
// point reads against the external trie engine.
type engineSource struct {
	index  *keyindex.Index
	engine exttrie.Reader
}

// NewEngineSource returns a source backed by the key index and the external
// trie engine. Callers are expected to have verified head synchronization via
// exttrie.EnsureSynced beforehand.
func NewEngineSource(index *keyindex.Index, engine exttrie.Reader) Source {
	return &engineSource{index: index, engine: engine}
}

func (src *engineSource) head() (*tree.HeadRecord, error) {
	head, err := src.index.LoadHead()
	if err != nil {
		return nil, err
	}
	if head == nil {
		return nil, errors.New("missing key index head metadata")
	}
	return head, nil
}

func (src *engineSource) forEachStem(fn func(tree.Stem, common.Address, []leaf) error) error {
	return src.index.ForEachStem(func(stem tree.Stem, record keyindex.StemRecord) error {
		subs := record.Bitmap.SubIndices()
		if len(subs) == 0 {
			return nil
		}
		leaves := make([]leaf, 0, len(subs))
		for _, sub := range subs {
			path := tree.TreeKey{Stem: stem, SubIndex: sub}.Path()
			data, err := src.engine.ReadValue(path)
			if err != nil {
				return err
			}
			// An indexed bit without an engine value is tolerated and reads
			// as the all-zero value.
			var value common.Hash
			if data != nil {
				if len(data) != common.HashLength {
					return fmt.Errorf("invalid engine value length %d at path %x", len(data), path)
				}
				value = common.BytesToHash(data)
			}
			leaves = append(leaves, leaf{subIndex: sub, value: value})
		}
		return fn(stem, record.Address, leaves)
	})
}

func (src *engineSource) finish(entryCount uint64, head *tree.HeadRecord, filtered bool) error {
	if !filtered && entryCount == 0 && head.StemCount > 0 {
		return errors.New("key index empty while state head indicates non-zero stems")
	}
	return nil
}
