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
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"github.com/ubtrie/ubt/tree"
)

func TestSnapshotReader(t *testing.T) {
	st, addrA, addrB := populatedStore(t)
	res, err := ExportState(NewStoreSource(st), t.TempDir(), 1)
	require.NoError(t, err)

	r, err := OpenSnapshot(res.StateFile, res.StemIndexFile)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, uint64(3), r.Header().EntryCount)
	require.Equal(t, uint64(2), r.StemCount())

	entry, err := r.Entry(0)
	require.NoError(t, err)
	require.Equal(t, addrA, entry.Address)
	_, err = r.Entry(3)
	require.Error(t, err)

	// Stem lookup returns the contiguous run of that stem's entries.
	entries, err := r.StemEntries(stem(0x01))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, tree.TreeKey{Stem: stem(0x01), SubIndex: 0}.Path(), entries[0].TreeIndex)
	require.Equal(t, tree.TreeKey{Stem: stem(0x01), SubIndex: 5}.Path(), entries[1].TreeIndex)

	entries, err = r.StemEntries(stem(0x02))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, addrB, entries[0].Address)

	// Absent stem: no entries, no error.
	entries, err = r.StemEntries(stem(0x7f))
	require.NoError(t, err)
	require.Nil(t, entries)
}

func TestOpenSnapshotRejectsCorruptIndex(t *testing.T) {
	st, _, _ := populatedStore(t)
	res, err := ExportState(NewStoreSource(st), t.TempDir(), 1)
	require.NoError(t, err)

	// A stem index whose length disagrees with its own count is rejected.
	require.NoError(t, os.Truncate(res.StemIndexFile, 8+StemIndexEntrySize))
	_, err = OpenSnapshot(res.StateFile, res.StemIndexFile)
	require.ErrorContains(t, err, "stem index length")
}

func TestReaderHeaderFields(t *testing.T) {
	st, _, _ := populatedStore(t)
	res, err := ExportState(NewStoreSource(st), t.TempDir(), 42)
	require.NoError(t, err)

	r, err := OpenSnapshot(res.StateFile, res.StemIndexFile)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, uint64(7), r.Header().BlockNumber)
	require.Equal(t, uint64(42), r.Header().ChainID)
	require.Equal(t, common.HexToHash("0xb7"), r.Header().BlockHash)
}
