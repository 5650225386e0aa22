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
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ubtrie/ubt/store"
	"github.com/ubtrie/ubt/tree"
)

// ErrInvalidRange is returned when a delta request fails validation before
// any I/O is performed.
var ErrInvalidRange = errors.New("invalid block range")

// DeltaResult describes a completed delta export.
type DeltaResult struct {
	FromBlock  uint64
	ToBlock    uint64
	HeadBlock  uint64
	EntryCount uint64
	DeltaFile  string
}

// ExportDelta writes the set of keys touched in the closed block range
// [from, to] with their current values, as delta-<from>-<to>.bin in the full
// state entry format. Repeated touches of the same key across blocks are
// deduplicated; each key's value is resolved at the current head, not
// historically.
func ExportDelta(st *store.Store, from, to uint64, outputDir string, chainID uint64) (*DeltaResult, error) {
	start := time.Now()

	head, err := st.LoadHead()
	if err != nil {
		return nil, err
	}
	if head == nil {
		return nil, store.ErrNoHead
	}
	if from > to {
		return nil, fmt.Errorf("%w: from block %d is greater than to block %d", ErrInvalidRange, from, to)
	}
	if to > head.BlockNumber {
		return nil, fmt.Errorf("%w: to block %d is ahead of persisted head %d", ErrInvalidRange, to, head.BlockNumber)
	}
	retention := st.DeltaRetention()
	var minBlock uint64
	if head.BlockNumber > retention {
		minBlock = head.BlockNumber - retention
	}
	if from < minBlock {
		return nil, fmt.Errorf("%w: from block %d is before the delta retention window (min %d)", ErrInvalidRange, from, minBlock)
	}
	log.Info("Computing state delta", "from", from, "to", to, "head", head.BlockNumber)

	touched := make(map[tree.TreeKey]struct{})
	for number := from; number <= to; number++ {
		deltas, err := st.LoadBlockDeltas(number)
		if err != nil {
			return nil, err
		}
		for _, d := range deltas {
			touched[tree.TreeKey{Stem: d.Stem, SubIndex: d.SubIndex}] = struct{}{}
		}
	}
	keys := make([]tree.TreeKey, 0, len(touched))
	for key := range touched {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if c := bytes.Compare(keys[i].Stem[:], keys[j].Stem[:]); c != 0 {
			return c < 0
		}
		return keys[i].SubIndex < keys[j].SubIndex
	})

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}
	deltaPath := filepath.Join(outputDir, fmt.Sprintf("delta-%d-%d.bin", from, to))
	f, err := os.Create(deltaPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	placeholder := newHeader(0, head.BlockNumber, chainID, head.BlockHash)
	enc, err := placeholder.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(enc); err != nil {
		return nil, err
	}
	var (
		entryCount uint64
		missing    int
	)
	for _, key := range keys {
		addr, ok, err := st.LoadStemAddress(key.Stem)
		if err != nil {
			return nil, err
		}
		if !ok {
			missing++
			continue
		}
		// A key whose value is now absent exports as all-zero.
		value, _, err := st.LoadValue(key)
		if err != nil {
			return nil, err
		}
		entry := Entry{Address: addr, TreeIndex: key.Path(), Value: value}
		enc, err := entry.MarshalBinary()
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(enc); err != nil {
			return nil, err
		}
		entryCount++
	}
	if missing > 0 {
		return nil, fmt.Errorf("missing stem address mappings for %d stems, export requires a store built with address tracking", missing)
	}
	if err := finalizeHeader(w, f, newHeader(entryCount, head.BlockNumber, chainID, head.BlockHash)); err != nil {
		return nil, err
	}
	deltaTimer.UpdateSince(start)

	log.Info("State delta export complete", "from", from, "to", to, "entries", entryCount)
	return &DeltaResult{
		FromBlock:  from,
		ToBlock:    to,
		HeadBlock:  head.BlockNumber,
		EntryCount: entryCount,
		DeltaFile:  deltaPath,
	}, nil
}
