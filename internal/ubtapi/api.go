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

// Package ubtapi implements the ubt_* JSON-RPC namespace: full state export,
// per-contract export, block-range state deltas and the current head/root.
// All storage and consistency failures surface as generic server errors with
// a human readable message; no operation partially succeeds.
package ubtapi

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ubtrie/ubt/exttrie"
	"github.com/ubtrie/ubt/keyindex"
	"github.com/ubtrie/ubt/pir"
	"github.com/ubtrie/ubt/store"
)

// Backend provides the service with its store handles and configuration.
// Handles are opened at startup and live for the process; the engine is
// opened per operation and closed by the API.
type Backend interface {
	Store() *store.Store
	KeyIndex() *keyindex.Index
	Engine() (exttrie.Engine, error)
	ChainID() uint64
}

// API is the ubt_* RPC receiver. Export and delta calls are long-running and
// synchronous; the RPC server runs each call on its own goroutine, so they do
// not block concurrent short requests. There is no cancellation: an export
// runs to completion or failure, and abandoned partial output files are safe
// to delete and re-run.
type API struct {
	b Backend
}

// NewAPI creates the ubt_* RPC receiver.
func NewAPI(b Backend) *API {
	return &API{b: b}
}

// ExportStateParams are the arguments of ubt_exportState.
type ExportStateParams struct {
	OutputPath string  `json:"outputPath"`
	ChainID    *uint64 `json:"chainId,omitempty"`
}

// ExportContractParams are the arguments of ubt_exportContract.
type ExportContractParams struct {
	Contract   common.Address `json:"contract"`
	OutputPath string         `json:"outputPath"`
	ChainID    *uint64        `json:"chainId,omitempty"`
}

// StateDeltaParams are the arguments of ubt_getStateDelta.
type StateDeltaParams struct {
	FromBlock  uint64  `json:"fromBlock"`
	ToBlock    uint64  `json:"toBlock"`
	OutputPath string  `json:"outputPath"`
	ChainID    *uint64 `json:"chainId,omitempty"`
}

// ExportStateResult is the response of ubt_exportState and ubt_exportContract.
type ExportStateResult struct {
	BlockNumber   uint64      `json:"blockNumber"`
	BlockHash     common.Hash `json:"blockHash"`
	Root          common.Hash `json:"root"`
	EntryCount    uint64      `json:"entryCount"`
	StemCount     uint64      `json:"stemCount"`
	StateFile     string      `json:"stateFile"`
	StemIndexFile string      `json:"stemIndexFile"`
}

// StateDeltaResult is the response of ubt_getStateDelta.
type StateDeltaResult struct {
	FromBlock  uint64 `json:"fromBlock"`
	ToBlock    uint64 `json:"toBlock"`
	HeadBlock  uint64 `json:"headBlock"`
	EntryCount uint64 `json:"entryCount"`
	DeltaFile  string `json:"deltaFile"`
}

// RootResult is the response of ubt_getRoot.
type RootResult struct {
	BlockNumber uint64      `json:"blockNumber"`
	BlockHash   common.Hash `json:"blockHash"`
	Root        common.Hash `json:"root"`
	StemCount   uint64      `json:"stemCount"`
}

func (api *API) chainID(override *uint64) uint64 {
	if override != nil {
		return *override
	}
	return api.b.ChainID()
}

// engineSource opens the engine, checks the head sync precondition and
// returns an engine-backed export source plus its release function.
func (api *API) engineSource() (pir.Source, func(), error) {
	engine, err := api.b.Engine()
	if err != nil {
		return nil, nil, err
	}
	if err := exttrie.EnsureSynced(engine, api.b.KeyIndex()); err != nil {
		engine.Close()
		return nil, nil, err
	}
	return pir.NewEngineSource(api.b.KeyIndex(), engine), func() { engine.Close() }, nil
}

// ExportState exports the full state, sourcing values from the external trie
// engine via the key index.
func (api *API) ExportState(ctx context.Context, params ExportStateParams) (*ExportStateResult, error) {
	if params.OutputPath == "" {
		return nil, errors.New("outputPath is required")
	}
	src, release, err := api.engineSource()
	if err != nil {
		return nil, err
	}
	defer release()

	res, err := pir.ExportState(src, params.OutputPath, api.chainID(params.ChainID))
	if err != nil {
		return nil, err
	}
	return exportResult(res), nil
}

// ExportContract exports a single contract's state, sourcing values from the
// external trie engine via the key index.
func (api *API) ExportContract(ctx context.Context, params ExportContractParams) (*ExportStateResult, error) {
	if params.OutputPath == "" {
		return nil, errors.New("outputPath is required")
	}
	src, release, err := api.engineSource()
	if err != nil {
		return nil, err
	}
	defer release()

	res, err := pir.ExportContract(src, params.Contract, params.OutputPath, api.chainID(params.ChainID))
	if err != nil {
		return nil, err
	}
	return exportResult(res), nil
}

// GetStateDelta computes the keys touched in [fromBlock, toBlock] with their
// current values from the primary store's delta log.
func (api *API) GetStateDelta(ctx context.Context, params StateDeltaParams) (*StateDeltaResult, error) {
	if params.OutputPath == "" {
		return nil, errors.New("outputPath is required")
	}
	res, err := pir.ExportDelta(api.b.Store(), params.FromBlock, params.ToBlock, params.OutputPath, api.chainID(params.ChainID))
	if err != nil {
		return nil, err
	}
	return &StateDeltaResult{
		FromBlock:  res.FromBlock,
		ToBlock:    res.ToBlock,
		HeadBlock:  res.HeadBlock,
		EntryCount: res.EntryCount,
		DeltaFile:  res.DeltaFile,
	}, nil
}

// GetRoot returns the current head checkpoint recorded by the key index.
func (api *API) GetRoot(ctx context.Context) (*RootResult, error) {
	head, err := api.b.KeyIndex().LoadHead()
	if err != nil {
		return nil, err
	}
	if head == nil {
		return nil, errors.New("no canonical state yet")
	}
	return &RootResult{
		BlockNumber: head.BlockNumber,
		BlockHash:   head.BlockHash,
		Root:        head.Root,
		StemCount:   head.StemCount,
	}, nil
}

func exportResult(res *pir.ExportResult) *ExportStateResult {
	return &ExportStateResult{
		BlockNumber:   res.BlockNumber,
		BlockHash:     res.BlockHash,
		Root:          res.Root,
		EntryCount:    res.EntryCount,
		StemCount:     res.StemCount,
		StateFile:     res.StateFile,
		StemIndexFile: res.StemIndexFile,
	}
}
