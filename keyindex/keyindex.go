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

// Package keyindex implements the secondary ordered index recording, per
// stem, the owning contract address and a bitmap of populated sub-indices.
// It exists because the external trie engine serves point and range reads by
// 32-byte path only: without a side index there is no cheap way to enumerate
// which sub-indices exist under a stem.
package keyindex

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ubtrie/ubt/tree"
)

// IndexFilename is the fixed name of the index database, colocated under the
// data directory alongside the primary store.
const IndexFilename = "key-index.ldb"

// stemRecordSize is the packed on-disk size of a stem record:
// address (20 bytes) || sub-index bitmap (32 bytes).
const stemRecordSize = 52

var (
	// stemPrefix + stem (31 bytes) -> packed stem record (52 bytes).
	stemPrefix = []byte("s")

	// headKey tracks the head checkpoint mirroring the primary store's.
	headKey = []byte("head")
)

// ErrAddressMismatch signals that a stem was bound to two different contract
// addresses. The binding is immutable; a second address is a corruption
// signal, not a benign update.
var ErrAddressMismatch = errors.New("stem address mismatch in key index")

// StemRecord is the per-stem index entry.
type StemRecord struct {
	Address common.Address
	Bitmap  tree.Bitmap
}

func packStemRecord(r StemRecord) []byte {
	buf := make([]byte, stemRecordSize)
	copy(buf[:20], r.Address[:])
	copy(buf[20:], r.Bitmap[:])
	return buf
}

func unpackStemRecord(data []byte) (StemRecord, error) {
	var r StemRecord
	if len(data) != stemRecordSize {
		return r, fmt.Errorf("invalid stem record length %d, want %d", len(data), stemRecordSize)
	}
	copy(r.Address[:], data[:20])
	copy(r.Bitmap[:], data[20:])
	return r, nil
}

func stemKey(stem tree.Stem) []byte {
	return append(append([]byte{}, stemPrefix...), stem[:]...)
}

// Index is the secondary index handle. Like the primary store it is
// single-writer, multi-reader; each batch of updates commits atomically.
type Index struct {
	db  ethdb.KeyValueStore
	log log.Logger
}

// New wraps an existing key-value store, used by tests.
func New(db ethdb.KeyValueStore) *Index {
	return &Index{db: db, log: log.New("database", "keyindex")}
}

// Open opens (or creates) the index database under datadir.
func Open(datadir string, readonly bool) (*Index, error) {
	db, err := leveldb.New(filepath.Join(datadir, IndexFilename), 16, 16, "ubt/keyindex/", readonly)
	if err != nil {
		return nil, fmt.Errorf("failed to open key index: %w", err)
	}
	return New(db), nil
}

// Close releases the underlying database handle.
func (x *Index) Close() error {
	return x.db.Close()
}

// Update is one observed leaf: the stem it lives under, its sub-index and the
// contract address owning the stem.
type Update struct {
	Stem     tree.Stem
	SubIndex byte
	Address  common.Address
}

// ApplyUpdates merges a batch of observed leaves into the index inside a
// single write batch and returns the number of stems seen for the first time.
// The input is grouped by stem in memory first so that an address conflict
// within the batch is caught before any storage is touched and reported
// exactly like a cross-batch one. An empty input is a no-op returning 0.
func (x *Index) ApplyUpdates(updates []Update) (int, error) {
	type pending struct {
		address common.Address
		bitmap  tree.Bitmap
	}
	grouped := make(map[tree.Stem]*pending)
	for _, u := range updates {
		p, ok := grouped[u.Stem]
		if !ok {
			p = &pending{address: u.Address}
			grouped[u.Stem] = p
		} else if p.address != u.Address {
			return 0, fmt.Errorf("%w: stem %s bound to %s and %s", ErrAddressMismatch, u.Stem.Hex(), p.address.Hex(), u.Address.Hex())
		}
		p.bitmap.Set(u.SubIndex)
	}
	if len(grouped) == 0 {
		return 0, nil
	}
	var (
		batch    = x.db.NewBatch()
		newStems int
	)
	for stem, p := range grouped {
		key := stemKey(stem)
		merged := p.bitmap

		ok, err := x.db.Has(key)
		if err != nil {
			return 0, err
		}
		if ok {
			data, err := x.db.Get(key)
			if err != nil {
				return 0, err
			}
			existing, err := unpackStemRecord(data)
			if err != nil {
				return 0, err
			}
			if existing.Address != p.address {
				return 0, fmt.Errorf("%w: stem %s bound to %s and %s", ErrAddressMismatch, stem.Hex(), existing.Address.Hex(), p.address.Hex())
			}
			merged.Merge(existing.Bitmap)
		} else {
			newStems++
		}
		if err := batch.Put(key, packStemRecord(StemRecord{Address: p.address, Bitmap: merged})); err != nil {
			return 0, err
		}
	}
	if err := batch.Write(); err != nil {
		return 0, fmt.Errorf("key index batch commit failed: %w", err)
	}
	return newStems, nil
}

// SaveHead atomically overwrites the head checkpoint slot.
func (x *Index) SaveHead(head tree.HeadRecord) error {
	enc, err := head.MarshalBinary()
	if err != nil {
		return err
	}
	return x.db.Put(headKey, enc)
}

// LoadHead returns the head checkpoint, or nil before the first one exists.
func (x *Index) LoadHead() (*tree.HeadRecord, error) {
	ok, err := x.db.Has(headKey)
	if err != nil || !ok {
		return nil, err
	}
	data, err := x.db.Get(headKey)
	if err != nil {
		return nil, err
	}
	head := new(tree.HeadRecord)
	if err := head.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return head, nil
}

// ForEachStem iterates all stem records in ascending byte order of stem,
// invoking the visitor for each. The first error the visitor returns stops
// the iteration and is propagated. An index with no records yet yields
// nothing and no error.
func (x *Index) ForEachStem(fn func(stem tree.Stem, record StemRecord) error) error {
	it := x.db.NewIterator(stemPrefix, nil)
	defer it.Release()

	for it.Next() {
		key := it.Key()
		if len(key) != len(stemPrefix)+tree.StemSize {
			return fmt.Errorf("corrupt stem key of length %d", len(key))
		}
		record, err := unpackStemRecord(it.Value())
		if err != nil {
			return err
		}
		var stem tree.Stem
		copy(stem[:], key[len(stemPrefix):])
		if err := fn(stem, record); err != nil {
			return err
		}
	}
	return it.Error()
}
