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

// Package store implements the primary persistence layer of the unified
// binary trie: leaf values keyed by stem and sub-index, the stem to address
// mapping, per-block delta logs for reorg safety and the head checkpoint.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/pebble"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ubtrie/ubt/tree"
)

const (
	// databaseCache is the pebble block cache allowance in megabytes.
	databaseCache = 256

	// databaseHandles is the number of file descriptors granted to pebble.
	databaseHandles = 128
)

// ErrNoHead is returned by operations that require a persisted checkpoint
// before the first block has been applied.
var ErrNoHead = errors.New("no canonical state yet")

// Store is the primary store. It is single-writer, multi-reader: every write
// operation commits through one batch, reads go straight to the backend and
// observe a consistent point-in-time view.
type Store struct {
	db        ethdb.KeyValueStore
	retention uint64
	log       log.Logger
}

// New wraps an existing key-value store. Used by tests with an in-memory
// backend and by tooling that manages the database handle itself.
func New(db ethdb.KeyValueStore, deltaRetention uint64) *Store {
	return &Store{
		db:        db,
		retention: deltaRetention,
		log:       log.New("database", "ubt"),
	}
}

// Open opens (or creates) the pebble-backed primary store under datadir.
func Open(datadir string, deltaRetention uint64, readonly bool) (*Store, error) {
	db, err := pebble.New(filepath.Join(datadir, "ubt"), databaseCache, databaseHandles, "ubt/store/", readonly)
	if err != nil {
		return nil, fmt.Errorf("failed to open primary store: %w", err)
	}
	return New(db, deltaRetention), nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DeltaRetention returns the configured trailing window, in blocks, for which
// per-block delta logs are kept.
func (s *Store) DeltaRetention() uint64 {
	return s.retention
}

// StemUpdate pairs a stem with its updated node state.
type StemUpdate struct {
	Stem tree.Stem
	Node *tree.StemNode
}

// UpdateStems writes all given stem states in one atomic batch. Later entries
// for a repeated stem override earlier ones within the same call. On failure
// the prior state is left untouched.
func (s *Store) UpdateStems(updates []StemUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	batch := s.db.NewBatch()
	for _, u := range updates {
		for _, sub := range u.Node.SubIndices() {
			key := tree.TreeKey{Stem: u.Stem, SubIndex: sub}
			if err := batch.Put(leafKey(key), u.Node.Values[sub].Bytes()); err != nil {
				return err
			}
		}
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("stem batch commit failed: %w", err)
	}
	return nil
}

// LoadValue performs a point lookup of one leaf. The second return value is
// false if the stem or sub-index is absent.
func (s *Store) LoadValue(key tree.TreeKey) (common.Hash, bool, error) {
	k := leafKey(key)
	ok, err := s.db.Has(k)
	if err != nil || !ok {
		return common.Hash{}, false, err
	}
	data, err := s.db.Get(k)
	if err != nil {
		return common.Hash{}, false, err
	}
	return common.BytesToHash(data), true, nil
}

// SaveHead atomically overwrites the single head checkpoint slot.
func (s *Store) SaveHead(head tree.HeadRecord) error {
	enc, err := head.MarshalBinary()
	if err != nil {
		return err
	}
	return s.db.Put(headKey, enc)
}

// LoadHead returns the head checkpoint, or nil before the first one exists.
func (s *Store) LoadHead() (*tree.HeadRecord, error) {
	ok, err := s.db.Has(headKey)
	if err != nil || !ok {
		return nil, err
	}
	data, err := s.db.Get(headKey)
	if err != nil {
		return nil, err
	}
	head := new(tree.HeadRecord)
	if err := head.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return head, nil
}

// LoadStemAddress returns the contract address recorded as the owner of the
// given stem. The second return value is false if no mapping exists.
func (s *Store) LoadStemAddress(stem tree.Stem) (common.Address, bool, error) {
	k := stemAddressKey(stem)
	ok, err := s.db.Has(k)
	if err != nil || !ok {
		return common.Address{}, false, err
	}
	data, err := s.db.Get(k)
	if err != nil {
		return common.Address{}, false, err
	}
	return common.BytesToAddress(data), true, nil
}

// DeltaEntry is one recorded pre-image write: the value a leaf held before
// the block that logged it.
type DeltaEntry struct {
	Stem     tree.Stem
	SubIndex uint8
	Prev     common.Hash
}

// LoadBlockDeltas returns the pre-image writes recorded for one block, in the
// order they were applied. The result is empty if none were recorded or the
// block has been pruned from the retention window.
func (s *Store) LoadBlockDeltas(number uint64) ([]DeltaEntry, error) {
	k := deltaKey(number)
	ok, err := s.db.Has(k)
	if err != nil || !ok {
		return nil, err
	}
	data, err := s.db.Get(k)
	if err != nil {
		return nil, err
	}
	var deltas []DeltaEntry
	if err := rlp.DecodeBytes(data, &deltas); err != nil {
		return nil, fmt.Errorf("corrupt delta log for block %d: %w", number, err)
	}
	return deltas, nil
}

// LeafWrite is a single leaf mutation from block execution, carrying the
// owning contract address for the stem.
type LeafWrite struct {
	Stem     tree.Stem
	SubIndex byte
	Address  common.Address
	Value    common.Hash
}

// BlockWrites is the write set of one executed block.
type BlockWrites struct {
	Number uint64
	Hash   common.Hash
	Root   common.Hash
	Writes []LeafWrite
}

// ApplyBlock persists one block's write set in a single atomic batch: the
// pre-image delta log, the leaf values, the stem address mappings, delta
// pruning beyond the retention window and the advanced head checkpoint.
// On commit failure nothing is applied; callers restart from the persisted
// head.
func (s *Store) ApplyBlock(block BlockWrites) error {
	start := time.Now()

	head, err := s.LoadHead()
	if err != nil {
		return err
	}
	var stemCount uint64
	if head != nil {
		stemCount = head.StemCount
	}
	var (
		batch    = s.db.NewBatch()
		deltas   = make([]DeltaEntry, 0, len(block.Writes))
		newStems = make(map[tree.Stem]struct{})
	)
	for _, w := range block.Writes {
		key := tree.TreeKey{Stem: w.Stem, SubIndex: w.SubIndex}
		prev, _, err := s.LoadValue(key)
		if err != nil {
			return err
		}
		deltas = append(deltas, DeltaEntry{Stem: w.Stem, SubIndex: w.SubIndex, Prev: prev})
		if err := batch.Put(leafKey(key), w.Value.Bytes()); err != nil {
			return err
		}
		addrKey := stemAddressKey(w.Stem)
		ok, err := s.db.Has(addrKey)
		if err != nil {
			return err
		}
		if !ok {
			newStems[w.Stem] = struct{}{}
		}
		if err := batch.Put(addrKey, w.Address.Bytes()); err != nil {
			return err
		}
	}
	enc, err := rlp.EncodeToBytes(deltas)
	if err != nil {
		return err
	}
	if err := batch.Put(deltaKey(block.Number), enc); err != nil {
		return err
	}
	if err := s.pruneDeltas(batch, block.Number); err != nil {
		return err
	}
	newHead := tree.HeadRecord{
		BlockNumber: block.Number,
		BlockHash:   block.Hash,
		Root:        block.Root,
		StemCount:   stemCount + uint64(len(newStems)),
	}
	encHead, err := newHead.MarshalBinary()
	if err != nil {
		return err
	}
	if err := batch.Put(headKey, encHead); err != nil {
		return err
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("block %d commit failed: %w", block.Number, err)
	}
	blocksProcessedCounter.Inc(1)
	blockEntriesMeter.Mark(int64(len(block.Writes)))
	stemsGauge.Update(int64(newHead.StemCount))
	headBlockGauge.Update(int64(block.Number))
	persistTimer.UpdateSince(start)

	s.log.Debug("Persisted block writes", "number", block.Number, "entries", len(block.Writes), "stems", newHead.StemCount)
	return nil
}

// pruneDeltas stages deletion of delta logs that fell out of the retention
// window relative to the given head block.
func (s *Store) pruneDeltas(batch ethdb.Batch, headNumber uint64) error {
	if headNumber <= s.retention {
		return nil
	}
	bound := headNumber - s.retention

	it := s.db.NewIterator(deltaPrefix, nil)
	defer it.Release()

	for it.Next() {
		key := it.Key()
		if number := binary.BigEndian.Uint64(key[len(deltaPrefix):]); number >= bound {
			break
		}
		if err := batch.Delete(append([]byte{}, key...)); err != nil {
			return err
		}
	}
	return it.Error()
}

// RevertTo undoes all writes above the target block by replaying the recorded
// pre-images from the current head down to target+1, in descending block
// order, within one atomic batch. The replayed delta logs are dropped, so
// running the revert twice over the same range is a no-op the second time.
//
// The head checkpoint is not touched: the upstream feed knows the target
// block's hash and root and must call SaveHead with them afterwards.
func (s *Store) RevertTo(target uint64) error {
	head, err := s.LoadHead()
	if err != nil {
		return err
	}
	if head == nil {
		return ErrNoHead
	}
	if target >= head.BlockNumber {
		return nil
	}
	var (
		batch   = s.db.NewBatch()
		blocks  int
		entries int
	)
	for number := head.BlockNumber; number > target; number-- {
		deltas, err := s.LoadBlockDeltas(number)
		if err != nil {
			return err
		}
		for _, d := range deltas {
			key := tree.TreeKey{Stem: d.Stem, SubIndex: d.SubIndex}
			if err := batch.Put(leafKey(key), d.Prev.Bytes()); err != nil {
				return err
			}
		}
		if err := batch.Delete(deltaKey(number)); err != nil {
			return err
		}
		blocks++
		entries += len(deltas)
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("revert to block %d failed: %w", target, err)
	}
	revertsCounter.Inc(1)
	revertEntriesMeter.Mark(int64(entries))

	s.log.Info("Reverted block writes", "target", target, "blocks", blocks, "entries", entries)
	return nil
}
