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

// Bitmap tracks which of the 256 sub-indices under a stem are populated.
// Bit i lives in byte i/8 and is LSB-first within the byte; this is the exact
// layout persisted by the key index, so it must not change.
type Bitmap [32]byte

// Set marks sub-index i as populated.
func (b *Bitmap) Set(i byte) {
	b[i/8] |= 1 << (i % 8)
}

// Has reports whether sub-index i is populated.
func (b *Bitmap) Has(i byte) bool {
	return b[i/8]&(1<<(i%8)) != 0
}

// Merge ORs other into b. Bits are only ever added, never cleared.
func (b *Bitmap) Merge(other Bitmap) {
	for i := range b {
		b[i] |= other[i]
	}
}

// SubIndices returns the populated sub-indices in ascending order.
func (b *Bitmap) SubIndices() []byte {
	var indices []byte
	for i := 0; i < 256; i++ {
		if b.Has(byte(i)) {
			indices = append(indices, byte(i))
		}
	}
	return indices
}
