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
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	"github.com/ubtrie/ubt/tree"
)

// Reader provides random access into an exported snapshot. The stem index is
// held in memory; entry reads go to the state file directly, so lookup by
// stem costs a binary search plus a short forward scan.
type Reader struct {
	f      *os.File
	header Header
	index  []stemOffset
}

// OpenSnapshot opens a state file and its companion stem index.
func OpenSnapshot(stateFile, stemIndexFile string) (*Reader, error) {
	f, err := os.Open(stateFile)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, HeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read snapshot header: %w", err)
	}
	var header Header
	if err := header.UnmarshalBinary(buf); err != nil {
		f.Close()
		return nil, err
	}
	idxData, err := os.ReadFile(stemIndexFile)
	if err != nil {
		f.Close()
		return nil, err
	}
	if len(idxData) < 8 {
		f.Close()
		return nil, fmt.Errorf("truncated stem index of %d bytes", len(idxData))
	}
	count := binary.LittleEndian.Uint64(idxData[:8])
	if uint64(len(idxData)) != 8+count*StemIndexEntrySize {
		f.Close()
		return nil, fmt.Errorf("stem index length %d does not match count %d", len(idxData), count)
	}
	index := make([]stemOffset, 0, count)
	for i := uint64(0); i < count; i++ {
		record := idxData[8+i*StemIndexEntrySize : 8+(i+1)*StemIndexEntrySize]
		so, err := unmarshalStemOffset(record)
		if err != nil {
			f.Close()
			return nil, err
		}
		index = append(index, so)
	}
	return &Reader{f: f, header: header, index: index}, nil
}

// Header returns the decoded state file header.
func (r *Reader) Header() Header {
	return r.header
}

// StemCount returns the number of stems recorded in the index.
func (r *Reader) StemCount() uint64 {
	return uint64(len(r.index))
}

// Entry reads the i-th entry of the state file.
func (r *Reader) Entry(i uint64) (Entry, error) {
	var entry Entry
	if i >= r.header.EntryCount {
		return entry, fmt.Errorf("entry %d out of range, have %d", i, r.header.EntryCount)
	}
	buf := make([]byte, EntrySize)
	if _, err := r.f.ReadAt(buf, int64(HeaderSize+i*EntrySize)); err != nil {
		return entry, err
	}
	err := entry.UnmarshalBinary(buf)
	return entry, err
}

// StemEntries returns all entries under the given stem, or nil if the stem is
// not present in the snapshot.
func (r *Reader) StemEntries(stem tree.Stem) ([]Entry, error) {
	i := sort.Search(len(r.index), func(i int) bool {
		return bytes.Compare(r.index[i].stem[:], stem[:]) >= 0
	})
	if i == len(r.index) || r.index[i].stem != stem {
		return nil, nil
	}
	var entries []Entry
	for offset := r.index[i].offset; offset < r.header.EntryCount; offset++ {
		entry, err := r.Entry(offset)
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(entry.TreeIndex[:tree.StemSize], stem[:]) {
			break
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Close releases the state file handle.
func (r *Reader) Close() error {
	return r.f.Close()
}
