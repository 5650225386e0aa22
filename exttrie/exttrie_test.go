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

package exttrie

import (
	"encoding/binary"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/stretchr/testify/require"
	"github.com/ubtrie/ubt/keyindex"
	"github.com/ubtrie/ubt/tree"
)

func setEngineHead(t *testing.T, engine *KVEngine, number uint64) {
	t.Helper()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], number)
	require.NoError(t, engine.db.Put(HeadMarkerPath.Bytes(), buf[:]))
}

func TestHeadBlock(t *testing.T) {
	engine := NewKVEngine(rawdb.NewMemoryDatabase())

	// Missing marker reads as block 0.
	head, err := HeadBlock(engine)
	require.NoError(t, err)
	require.Equal(t, uint64(0), head)

	setEngineHead(t, engine, 1234)
	head, err = HeadBlock(engine)
	require.NoError(t, err)
	require.Equal(t, uint64(1234), head)

	require.NoError(t, engine.db.Put(HeadMarkerPath.Bytes(), []byte{0x01}))
	_, err = HeadBlock(engine)
	require.ErrorContains(t, err, "invalid engine head marker length")
}

func TestReadValueAbsent(t *testing.T) {
	engine := NewKVEngine(rawdb.NewMemoryDatabase())
	data, err := engine.ReadValue(common.HexToHash("0x01"))
	require.NoError(t, err)
	require.Nil(t, data)
}

func TestEnsureSynced(t *testing.T) {
	engine := NewKVEngine(rawdb.NewMemoryDatabase())
	index := keyindex.New(rawdb.NewMemoryDatabase())

	// No index head yet.
	setEngineHead(t, engine, 10)
	require.ErrorContains(t, EnsureSynced(engine, index), "missing key index head")

	require.NoError(t, index.SaveHead(tree.HeadRecord{BlockNumber: 11}))
	err := EnsureSynced(engine, index)
	require.ErrorContains(t, err, "engine head 10")
	require.ErrorContains(t, err, "key index head 11")

	require.NoError(t, index.SaveHead(tree.HeadRecord{BlockNumber: 10}))
	require.NoError(t, EnsureSynced(engine, index))
}
