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
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ubtrie/ubt/tree"
)

// ExportResult describes a completed state or contract export.
type ExportResult struct {
	BlockNumber   uint64
	BlockHash     common.Hash
	Root          common.Hash
	EntryCount    uint64
	StemCount     uint64
	StateFile     string
	StemIndexFile string
}

// ExportState writes a full-state snapshot (state.bin plus stem-index.bin)
// into outputDir from the given source.
func ExportState(src Source, outputDir string, chainID uint64) (*ExportResult, error) {
	return exportSnapshot(src, nil, outputDir, chainID)
}

// ExportContract writes a snapshot restricted to one contract's stems. The
// output files are named after the contract's checksummed address.
func ExportContract(src Source, contract common.Address, outputDir string, chainID uint64) (*ExportResult, error) {
	return exportSnapshot(src, &contract, outputDir, chainID)
}

// exportSnapshot streams entries from src into a state file and companion
// stem index. The header is written twice: a placeholder with entry_count=0
// up front, then the real one via seek-and-rewrite once the count is known.
// This avoids buffering the whole state in memory, at the documented cost of
// requiring a seekable output file. A failed export may leave partial files
// behind; they are not checkpoints and must be deleted and re-run.
func exportSnapshot(src Source, contract *common.Address, outputDir string, chainID uint64) (*ExportResult, error) {
	start := time.Now()

	head, err := src.head()
	if err != nil {
		return nil, err
	}
	var stateName, indexName string
	if contract != nil {
		stateName = fmt.Sprintf("contract-%s.bin", contract.Hex())
		indexName = fmt.Sprintf("contract-%s-stem-index.bin", contract.Hex())
		log.Info("Exporting contract state to PIR2 format", "block", head.BlockNumber, "contract", contract.Hex())
	} else {
		stateName = "state.bin"
		indexName = "stem-index.bin"
		log.Info("Exporting state to PIR2 format", "block", head.BlockNumber, "root", head.Root, "stems", head.StemCount)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}
	statePath := filepath.Join(outputDir, stateName)
	indexPath := filepath.Join(outputDir, indexName)

	f, err := os.Create(statePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	placeholder := newHeader(0, head.BlockNumber, chainID, head.BlockHash)
	enc, err := placeholder.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(enc); err != nil {
		return nil, err
	}
	var (
		entryCount uint64
		stemIndex  []stemOffset
	)
	err = src.forEachStem(func(stem tree.Stem, addr common.Address, leaves []leaf) error {
		if contract != nil && addr != *contract {
			return nil
		}
		if len(leaves) == 0 {
			return nil
		}
		startOffset := entryCount
		for _, l := range leaves {
			entry := Entry{
				Address:   addr,
				TreeIndex: tree.TreeKey{Stem: stem, SubIndex: l.subIndex}.Path(),
				Value:     l.value,
			}
			enc, err := entry.MarshalBinary()
			if err != nil {
				return err
			}
			if _, err := w.Write(enc); err != nil {
				return err
			}
			entryCount++
		}
		stemIndex = append(stemIndex, stemOffset{stem: stem, offset: startOffset})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := src.finish(entryCount, head, contract != nil); err != nil {
		return nil, err
	}
	if err := finalizeHeader(w, f, newHeader(entryCount, head.BlockNumber, chainID, head.BlockHash)); err != nil {
		return nil, err
	}
	if err := writeStemIndex(indexPath, stemIndex); err != nil {
		return nil, err
	}
	exportTimer.UpdateSince(start)
	exportedEntriesMeter.Mark(int64(entryCount))

	log.Info("PIR2 export complete", "entries", entryCount, "stems", len(stemIndex), "state", statePath, "index", indexPath)
	return &ExportResult{
		BlockNumber:   head.BlockNumber,
		BlockHash:     head.BlockHash,
		Root:          head.Root,
		EntryCount:    entryCount,
		StemCount:     uint64(len(stemIndex)),
		StateFile:     statePath,
		StemIndexFile: indexPath,
	}, nil
}

// finalizeHeader flushes the buffered entries and rewrites the file prefix
// with the final header.
func finalizeHeader(w *bufio.Writer, f *os.File, header Header) error {
	if err := w.Flush(); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	enc, err := header.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := f.Write(enc); err != nil {
		return err
	}
	return f.Sync()
}

// writeStemIndex writes the companion offset index: a u64 stem count followed
// by one 39-byte record per stem that produced entries.
func writeStemIndex(path string, entries []stemOffset) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	var count [8]byte
	binary.LittleEndian.PutUint64(count[:], uint64(len(entries)))
	if _, err := w.Write(count[:]); err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := w.Write(marshalStemOffset(e)); err != nil {
			return err
		}
	}
	return w.Flush()
}
