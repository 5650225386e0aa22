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

// Package exttrie defines the boundary to the external authenticated trie
// engine. The engine is an opaque key-value reader keyed by 32-byte paths; it
// owns the authoritative leaf values whenever the key index sourcing path is
// used and is responsible for its own consensus-critical hashing.
package exttrie

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/pebble"
	"github.com/ubtrie/ubt/keyindex"
)

// HeadMarkerPath is the reserved path under which the engine persists the
// block number of its own head, as an 8-byte big-endian integer. It collides
// with no real tree key: stems are hash outputs and the all-0xff path is
// unreachable.
var HeadMarkerPath = common.MaxHash

// Reader is a point reader into the external trie engine. ReadValue returns
// nil (and no error) when no value exists at the given path.
type Reader interface {
	ReadValue(path common.Hash) ([]byte, error)
}

// Engine is a Reader owning its underlying resources. Engines are opened for
// the duration of one export and closed afterwards.
type Engine interface {
	Reader
	Close() error
}

// HeadBlock reads the engine's persisted head marker. A missing marker is
// reported as block 0.
func HeadBlock(r Reader) (uint64, error) {
	data, err := r.ReadValue(HeadMarkerPath)
	if err != nil {
		return 0, err
	}
	if data == nil {
		return 0, nil
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("invalid engine head marker length %d, want 8", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

// EnsureSynced verifies that the engine's head marker matches the key index's
// recorded head block. Any engine-sourced export must pass this precondition;
// a mismatch aborts with both values rather than producing a best-effort
// partial export.
func EnsureSynced(engine Reader, index *keyindex.Index) error {
	engineHead, err := HeadBlock(engine)
	if err != nil {
		return err
	}
	head, err := index.LoadHead()
	if err != nil {
		return err
	}
	if head == nil {
		return fmt.Errorf("missing key index head metadata")
	}
	if engineHead != head.BlockNumber {
		return fmt.Errorf("engine head %d does not match key index head %d", engineHead, head.BlockNumber)
	}
	return nil
}

// KVEngine adapts an ethdb store into an engine, treating the raw 32-byte
// path as the storage key. It serves deployments where the engine state is
// mirrored into a plain key-value store, and the tests.
type KVEngine struct {
	db ethdb.KeyValueStore
}

// NewKVEngine wraps an existing key-value store.
func NewKVEngine(db ethdb.KeyValueStore) *KVEngine {
	return &KVEngine{db: db}
}

// OpenKVEngine opens a read-only pebble database at dir as an engine.
func OpenKVEngine(dir string) (*KVEngine, error) {
	db, err := pebble.New(dir, 16, 16, "ubt/engine/", true)
	if err != nil {
		return nil, fmt.Errorf("failed to open engine store: %w", err)
	}
	return NewKVEngine(db), nil
}

// ReadValue implements Reader.
func (e *KVEngine) ReadValue(path common.Hash) ([]byte, error) {
	ok, err := e.db.Has(path[:])
	if err != nil || !ok {
		return nil, err
	}
	return e.db.Get(path[:])
}

// Close releases the underlying store.
func (e *KVEngine) Close() error {
	return e.db.Close()
}
