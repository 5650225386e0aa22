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

// Package pir implements the PIR2 binary snapshot format and the exporters
// producing it from the primary store or from the key index plus the external
// trie engine.
//
// A state file starts with a fixed 64-byte header followed by fixed-width
// 84-byte entries sorted by tree index:
//
//	Header:
//	  magic:        "PIR2" (4 bytes)
//	  version:      u16, little-endian (currently 1)
//	  entry_size:   u16, little-endian (always 84)
//	  entry_count:  u64, little-endian
//	  block_number: u64, little-endian
//	  chain_id:     u64, little-endian
//	  block_hash:   32 bytes
//
//	Entry:
//	  address:    20 bytes
//	  tree_index: 32 bytes (stem || sub-index)
//	  value:      32 bytes
//
// The companion stem-index file holds a u64 stem count followed by 39-byte
// records of stem (31 bytes) and the u64 entry offset of the stem's first
// entry in the state file. Binary searching it and scanning forward until the
// stem changes yields O(log N) lookup by stem.
package pir

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ubtrie/ubt/tree"
)

const (
	// Version is the current PIR2 format version.
	Version = 1

	// HeaderSize is the fixed state file header size in bytes.
	HeaderSize = 64

	// EntrySize is the fixed state entry size in bytes.
	EntrySize = 84

	// StemIndexEntrySize is the fixed stem-index record size in bytes.
	StemIndexEntrySize = 39
)

// Magic identifies a PIR2 state file.
var Magic = [4]byte{'P', 'I', 'R', '2'}

// Header is the state file header.
type Header struct {
	Version     uint16
	EntrySize   uint16
	EntryCount  uint64
	BlockNumber uint64
	ChainID     uint64
	BlockHash   common.Hash
}

func newHeader(entryCount, blockNumber, chainID uint64, blockHash common.Hash) Header {
	return Header{
		Version:     Version,
		EntrySize:   EntrySize,
		EntryCount:  entryCount,
		BlockNumber: blockNumber,
		ChainID:     chainID,
		BlockHash:   blockHash,
	}
}

// MarshalBinary encodes the header into its fixed 64-byte layout.
func (h *Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], Magic[:])
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint16(buf[6:8], h.EntrySize)
	binary.LittleEndian.PutUint64(buf[8:16], h.EntryCount)
	binary.LittleEndian.PutUint64(buf[16:24], h.BlockNumber)
	binary.LittleEndian.PutUint64(buf[24:32], h.ChainID)
	copy(buf[32:64], h.BlockHash[:])
	return buf, nil
}

// UnmarshalBinary decodes and validates a state file header.
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) != HeaderSize {
		return fmt.Errorf("invalid header length %d, want %d", len(data), HeaderSize)
	}
	if !bytes.Equal(data[0:4], Magic[:]) {
		return fmt.Errorf("invalid magic %x, want %x", data[0:4], Magic)
	}
	h.Version = binary.LittleEndian.Uint16(data[4:6])
	h.EntrySize = binary.LittleEndian.Uint16(data[6:8])
	if h.Version != Version {
		return fmt.Errorf("unsupported version %d", h.Version)
	}
	if h.EntrySize != EntrySize {
		return fmt.Errorf("unexpected entry size %d, want %d", h.EntrySize, EntrySize)
	}
	h.EntryCount = binary.LittleEndian.Uint64(data[8:16])
	h.BlockNumber = binary.LittleEndian.Uint64(data[16:24])
	h.ChainID = binary.LittleEndian.Uint64(data[24:32])
	copy(h.BlockHash[:], data[32:64])
	return nil
}

// Entry is one leaf record of a state or delta file.
type Entry struct {
	Address   common.Address
	TreeIndex common.Hash
	Value     common.Hash
}

// MarshalBinary encodes the entry into its fixed 84-byte layout.
func (e *Entry) MarshalBinary() ([]byte, error) {
	buf := make([]byte, EntrySize)
	copy(buf[0:20], e.Address[:])
	copy(buf[20:52], e.TreeIndex[:])
	copy(buf[52:84], e.Value[:])
	return buf, nil
}

// UnmarshalBinary decodes a state entry.
func (e *Entry) UnmarshalBinary(data []byte) error {
	if len(data) != EntrySize {
		return fmt.Errorf("invalid entry length %d, want %d", len(data), EntrySize)
	}
	copy(e.Address[:], data[0:20])
	copy(e.TreeIndex[:], data[20:52])
	copy(e.Value[:], data[52:84])
	return nil
}

// stemOffset records where a stem's first entry sits in the state file.
type stemOffset struct {
	stem   tree.Stem
	offset uint64
}

func marshalStemOffset(so stemOffset) []byte {
	buf := make([]byte, StemIndexEntrySize)
	copy(buf[0:tree.StemSize], so.stem[:])
	binary.LittleEndian.PutUint64(buf[tree.StemSize:], so.offset)
	return buf
}

func unmarshalStemOffset(data []byte) (stemOffset, error) {
	var so stemOffset
	if len(data) != StemIndexEntrySize {
		return so, fmt.Errorf("invalid stem index entry length %d, want %d", len(data), StemIndexEntrySize)
	}
	copy(so.stem[:], data[0:tree.StemSize])
	so.offset = binary.LittleEndian.Uint64(data[tree.StemSize:])
	return so, nil
}
