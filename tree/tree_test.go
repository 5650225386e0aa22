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
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestBytesToStem(t *testing.T) {
	short := BytesToStem([]byte{0xab, 0xcd})
	require.Equal(t, byte(0xab), short[StemSize-2])
	require.Equal(t, byte(0xcd), short[StemSize-1])
	require.Equal(t, byte(0), short[0])

	long := bytes.Repeat([]byte{0x11}, StemSize+5)
	long[5] = 0x99 // first byte surviving the left crop
	cropped := BytesToStem(long)
	require.Equal(t, byte(0x99), cropped[0])
}

func TestTreeKeyPath(t *testing.T) {
	var stem Stem
	stem[0] = 0x01
	stem[30] = 0x1f

	path := TreeKey{Stem: stem, SubIndex: 0x40}.Path()
	require.Equal(t, stem[:], path[:StemSize])
	require.Equal(t, byte(0x40), path[StemSize])
}

func TestHeadRecordRoundtrip(t *testing.T) {
	records := []HeadRecord{
		{},
		{
			BlockNumber: 18_500_000,
			BlockHash:   common.HexToHash("0xdeadbeef"),
			Root:        common.HexToHash("0xcafebabe"),
			StemCount:   123456,
		},
		{
			BlockNumber: ^uint64(0),
			BlockHash:   common.MaxHash,
			Root:        common.MaxHash,
			StemCount:   ^uint64(0),
		},
	}
	for _, record := range records {
		enc, err := record.MarshalBinary()
		require.NoError(t, err)
		require.Len(t, enc, HeadRecordSize)

		var decoded HeadRecord
		require.NoError(t, decoded.UnmarshalBinary(enc))
		require.Equal(t, record, decoded)
	}
	var h HeadRecord
	require.Error(t, h.UnmarshalBinary(make([]byte, HeadRecordSize-1)))
}

func TestBitmapBits(t *testing.T) {
	var b Bitmap
	for _, i := range []byte{0, 5, 7, 8, 64, 255} {
		require.False(t, b.Has(i))
		b.Set(i)
		require.True(t, b.Has(i))
	}
	// Bit i lives in byte i/8, LSB-first.
	require.Equal(t, byte(0b1010_0001), b[0])
	require.Equal(t, byte(0b0000_0001), b[1])
	require.Equal(t, byte(0b0000_0001), b[8])
	require.Equal(t, byte(0b1000_0000), b[31])

	require.Equal(t, []byte{0, 5, 7, 8, 64, 255}, b.SubIndices())
}

func TestBitmapMerge(t *testing.T) {
	var a, b Bitmap
	a.Set(3)
	b.Set(3)
	b.Set(200)
	a.Merge(b)
	require.Equal(t, []byte{3, 200}, a.SubIndices())
}

func TestStemNodeSubIndices(t *testing.T) {
	node := NewStemNode()
	node.Values[200] = common.HexToHash("0x01")
	node.Values[0] = common.HexToHash("0x02")
	node.Values[5] = common.HexToHash("0x03")
	require.Equal(t, []byte{0, 5, 200}, node.SubIndices())
}
