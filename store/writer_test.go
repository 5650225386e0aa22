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
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestBlockWriterFlushInterval(t *testing.T) {
	st := newTestStore(t, 256)
	w := NewBlockWriter(st, 3)
	addr := common.HexToAddress("0x4444444444444444444444444444444444444444")

	write := func(number uint64) BlockWrites {
		return BlockWrites{
			Number: number,
			Writes: []LeafWrite{{Stem: stem(0x01), SubIndex: 0, Address: addr, Value: common.BytesToHash([]byte{byte(number)})}},
		}
	}

	require.NoError(t, w.Enqueue(write(1)))
	require.NoError(t, w.Enqueue(write(2)))
	require.Equal(t, 2, w.Pending())

	head, err := st.LoadHead()
	require.NoError(t, err)
	require.Nil(t, head)

	// Third block hits the interval and flushes everything in order.
	require.NoError(t, w.Enqueue(write(3)))
	require.Equal(t, 0, w.Pending())

	head, err = st.LoadHead()
	require.NoError(t, err)
	require.Equal(t, uint64(3), head.BlockNumber)
}

func TestBlockWriterExplicitFlush(t *testing.T) {
	st := newTestStore(t, 256)
	w := NewBlockWriter(st, 10)
	addr := common.HexToAddress("0x4444444444444444444444444444444444444444")

	require.NoError(t, w.Enqueue(BlockWrites{
		Number: 1,
		Writes: []LeafWrite{{Stem: stem(0x01), SubIndex: 0, Address: addr, Value: common.HexToHash("0xaa")}},
	}))
	require.Equal(t, 1, w.Pending())
	require.NoError(t, w.Flush())
	require.Equal(t, 0, w.Pending())

	head, err := st.LoadHead()
	require.NoError(t, err)
	require.Equal(t, uint64(1), head.BlockNumber)
}

func TestBlockWriterOrdering(t *testing.T) {
	st := newTestStore(t, 256)
	w := NewBlockWriter(st, 10)

	require.NoError(t, w.Enqueue(BlockWrites{Number: 5}))
	require.Error(t, w.Enqueue(BlockWrites{Number: 5}))
	require.Error(t, w.Enqueue(BlockWrites{Number: 4}))
	require.NoError(t, w.Enqueue(BlockWrites{Number: 6}))
}

func TestBlockWriterZeroInterval(t *testing.T) {
	st := newTestStore(t, 256)
	w := NewBlockWriter(st, 0)

	// Interval 0 behaves as 1: persist immediately.
	require.NoError(t, w.Enqueue(BlockWrites{Number: 1}))
	require.Equal(t, 0, w.Pending())
}
