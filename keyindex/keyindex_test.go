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

package keyindex

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/stretchr/testify/require"
	"github.com/ubtrie/ubt/tree"
)

func stem(b byte) tree.Stem {
	var s tree.Stem
	s[0] = b
	return s
}

func TestApplyUpdates(t *testing.T) {
	index := New(rawdb.NewMemoryDatabase())
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")

	newStems, err := index.ApplyUpdates([]Update{
		{Stem: stem(0x01), SubIndex: 0, Address: addr},
		{Stem: stem(0x01), SubIndex: 5, Address: addr},
	})
	require.NoError(t, err)
	require.Equal(t, 1, newStems)

	var records []StemRecord
	require.NoError(t, index.ForEachStem(func(s tree.Stem, r StemRecord) error {
		require.Equal(t, stem(0x01), s)
		records = append(records, r)
		return nil
	}))
	require.Len(t, records, 1)
	require.Equal(t, addr, records[0].Address)
	require.Equal(t, []byte{0, 5}, records[0].Bitmap.SubIndices())
}

func TestApplyUpdatesIdempotent(t *testing.T) {
	index := New(rawdb.NewMemoryDatabase())
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	updates := []Update{
		{Stem: stem(0x01), SubIndex: 0, Address: addr},
		{Stem: stem(0x01), SubIndex: 5, Address: addr},
	}

	newStems, err := index.ApplyUpdates(updates)
	require.NoError(t, err)
	require.Equal(t, 1, newStems)

	// Re-applying the same updates neither errors nor reports new stems.
	newStems, err = index.ApplyUpdates(updates)
	require.NoError(t, err)
	require.Equal(t, 0, newStems)

	require.NoError(t, index.ForEachStem(func(s tree.Stem, r StemRecord) error {
		require.Equal(t, []byte{0, 5}, r.Bitmap.SubIndices())
		return nil
	}))
}

func TestApplyUpdatesMergesBits(t *testing.T) {
	index := New(rawdb.NewMemoryDatabase())
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")

	_, err := index.ApplyUpdates([]Update{{Stem: stem(0x01), SubIndex: 0, Address: addr}})
	require.NoError(t, err)
	newStems, err := index.ApplyUpdates([]Update{{Stem: stem(0x01), SubIndex: 200, Address: addr}})
	require.NoError(t, err)
	require.Equal(t, 0, newStems)

	require.NoError(t, index.ForEachStem(func(s tree.Stem, r StemRecord) error {
		require.Equal(t, []byte{0, 200}, r.Bitmap.SubIndices())
		return nil
	}))
}

func TestAddressConflict(t *testing.T) {
	index := New(rawdb.NewMemoryDatabase())
	addrA := common.HexToAddress("0x1111111111111111111111111111111111111111")
	addrB := common.HexToAddress("0x2222222222222222222222222222222222222222")

	// Conflict across batches.
	_, err := index.ApplyUpdates([]Update{{Stem: stem(0x01), SubIndex: 0, Address: addrA}})
	require.NoError(t, err)
	_, err = index.ApplyUpdates([]Update{{Stem: stem(0x01), SubIndex: 1, Address: addrB}})
	require.ErrorIs(t, err, ErrAddressMismatch)

	// Conflict inside one batch fails identically, before any write.
	_, err = index.ApplyUpdates([]Update{
		{Stem: stem(0x02), SubIndex: 0, Address: addrA},
		{Stem: stem(0x02), SubIndex: 1, Address: addrB},
	})
	require.ErrorIs(t, err, ErrAddressMismatch)

	// The conflicting stem was never written.
	require.NoError(t, index.ForEachStem(func(s tree.Stem, r StemRecord) error {
		require.NotEqual(t, stem(0x02), s)
		return nil
	}))
}

func TestApplyUpdatesEmpty(t *testing.T) {
	index := New(rawdb.NewMemoryDatabase())
	newStems, err := index.ApplyUpdates(nil)
	require.NoError(t, err)
	require.Equal(t, 0, newStems)
}

func TestForEachStemOrdering(t *testing.T) {
	index := New(rawdb.NewMemoryDatabase())
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")

	_, err := index.ApplyUpdates([]Update{
		{Stem: stem(0x03), SubIndex: 0, Address: addr},
		{Stem: stem(0x01), SubIndex: 0, Address: addr},
		{Stem: stem(0x02), SubIndex: 0, Address: addr},
	})
	require.NoError(t, err)

	var seen []tree.Stem
	require.NoError(t, index.ForEachStem(func(s tree.Stem, r StemRecord) error {
		seen = append(seen, s)
		return nil
	}))
	require.Equal(t, []tree.Stem{stem(0x01), stem(0x02), stem(0x03)}, seen)
}

func TestForEachStemVisitorError(t *testing.T) {
	index := New(rawdb.NewMemoryDatabase())
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")

	_, err := index.ApplyUpdates([]Update{
		{Stem: stem(0x01), SubIndex: 0, Address: addr},
		{Stem: stem(0x02), SubIndex: 0, Address: addr},
	})
	require.NoError(t, err)

	stop := errors.New("stop")
	calls := 0
	err = index.ForEachStem(func(tree.Stem, StemRecord) error {
		calls++
		return stop
	})
	require.ErrorIs(t, err, stop)
	require.Equal(t, 1, calls)
}

func TestHeadRoundtrip(t *testing.T) {
	index := New(rawdb.NewMemoryDatabase())

	head, err := index.LoadHead()
	require.NoError(t, err)
	require.Nil(t, head)

	want := tree.HeadRecord{
		BlockNumber: 99,
		BlockHash:   common.HexToHash("0x01"),
		Root:        common.HexToHash("0x02"),
		StemCount:   3,
	}
	require.NoError(t, index.SaveHead(want))

	head, err = index.LoadHead()
	require.NoError(t, err)
	require.Equal(t, want, *head)
}
