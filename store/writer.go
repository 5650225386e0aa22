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

	"github.com/ethereum/go-ethereum/log"
)

// BlockWriter buffers block write sets in memory and persists them every
// flushInterval blocks. A crash between flushes loses only buffered blocks;
// the upstream feed re-applies from the last persisted head checkpoint on
// restart. An interval of 1 persists every block immediately.
type BlockWriter struct {
	store    *Store
	interval uint64
	pending  []BlockWrites
	log      log.Logger
}

// NewBlockWriter creates a writer flushing every flushInterval blocks.
func NewBlockWriter(s *Store, flushInterval uint64) *BlockWriter {
	if flushInterval == 0 {
		flushInterval = 1
	}
	return &BlockWriter{
		store:    s,
		interval: flushInterval,
		log:      log.New("database", "ubt"),
	}
}

// Enqueue buffers one block's write set, flushing when the interval is
// reached. Blocks must arrive in ascending order.
func (w *BlockWriter) Enqueue(block BlockWrites) error {
	if n := len(w.pending); n > 0 && block.Number <= w.pending[n-1].Number {
		return fmt.Errorf("out of order block %d, buffered up to %d", block.Number, w.pending[n-1].Number)
	}
	w.pending = append(w.pending, block)
	if uint64(len(w.pending)) >= w.interval {
		return w.Flush()
	}
	return nil
}

// Flush persists all buffered blocks in order. Each block commits atomically;
// a mid-flush failure leaves the head at the last applied block.
func (w *BlockWriter) Flush() error {
	for len(w.pending) > 0 {
		if err := w.store.ApplyBlock(w.pending[0]); err != nil {
			return err
		}
		w.pending = w.pending[1:]
	}
	return nil
}

// Pending returns the number of buffered, not yet persisted blocks.
func (w *BlockWriter) Pending() int {
	return len(w.pending)
}
