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

package tree

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// HeadRecordSize is the packed on-disk size of a head record:
// block number (8, LE) || block hash (32) || root (32) || stem count (8, LE).
const HeadRecordSize = 80

// HeadRecord is the single canonical checkpoint of a store. It is overwritten
// atomically on every block application and never partially updated.
type HeadRecord struct {
	BlockNumber uint64
	BlockHash   common.Hash
	Root        common.Hash
	StemCount   uint64
}

// MarshalBinary packs the record into its fixed 80-byte layout.
func (h *HeadRecord) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeadRecordSize)
	binary.LittleEndian.PutUint64(buf[0:8], h.BlockNumber)
	copy(buf[8:40], h.BlockHash[:])
	copy(buf[40:72], h.Root[:])
	binary.LittleEndian.PutUint64(buf[72:80], h.StemCount)
	return buf, nil
}

// UnmarshalBinary decodes a packed head record.
func (h *HeadRecord) UnmarshalBinary(data []byte) error {
	if len(data) != HeadRecordSize {
		return fmt.Errorf("invalid head record length %d, want %d", len(data), HeadRecordSize)
	}
	h.BlockNumber = binary.LittleEndian.Uint64(data[0:8])
	copy(h.BlockHash[:], data[8:40])
	copy(h.Root[:], data[40:72])
	h.StemCount = binary.LittleEndian.Uint64(data[72:80])
	return nil
}
