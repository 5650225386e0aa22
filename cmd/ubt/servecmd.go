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

package main

import (
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ubtrie/ubt/exttrie"
	"github.com/ubtrie/ubt/internal/ubtapi"
	"github.com/ubtrie/ubt/keyindex"
	"github.com/ubtrie/ubt/store"
	"github.com/urfave/cli/v2"
)

var serveCommand = &cli.Command{
	Name:   "serve",
	Usage:  "Serve the ubt_* JSON-RPC namespace over HTTP and optionally IPC",
	Action: runServe,
	Flags: []cli.Flag{
		chainIDFlag,
		deltaRetentionFlag,
		enginePathFlag,
		httpAddrFlag,
		ipcPathFlag,
	},
}

// serviceBackend wires the long-lived store handles into the RPC API. The
// engine is not held open; it is reopened read-only for each export so the
// owning process keeps exclusive write access.
type serviceBackend struct {
	store     *store.Store
	index     *keyindex.Index
	engineDir string
	chainID   uint64
}

func (b *serviceBackend) Store() *store.Store       { return b.store }
func (b *serviceBackend) KeyIndex() *keyindex.Index { return b.index }
func (b *serviceBackend) ChainID() uint64           { return b.chainID }

func (b *serviceBackend) Engine() (exttrie.Engine, error) {
	if b.engineDir == "" {
		return nil, errors.New("no engine directory configured, restart with --engine")
	}
	return exttrie.OpenKVEngine(b.engineDir)
}

func runServe(ctx *cli.Context) error {
	datadir := ctx.String(datadirFlag.Name)
	st, err := store.Open(datadir, ctx.Uint64(deltaRetentionFlag.Name), true)
	if err != nil {
		return err
	}
	defer st.Close()
	index, err := keyindex.Open(datadir, true)
	if err != nil {
		return err
	}
	defer index.Close()

	backend := &serviceBackend{
		store:     st,
		index:     index,
		engineDir: ctx.String(enginePathFlag.Name),
		chainID:   ctx.Uint64(chainIDFlag.Name),
	}
	srv := rpc.NewServer()
	defer srv.Stop()
	if err := srv.RegisterName("ubt", ubtapi.NewAPI(backend)); err != nil {
		return err
	}

	httpAddr := ctx.String(httpAddrFlag.Name)
	ipcPath := ctx.String(ipcPathFlag.Name)
	if httpAddr == "" && ipcPath == "" {
		return errors.New("no RPC endpoint configured, set --http.addr or --ipc")
	}
	if httpAddr != "" {
		listener, err := net.Listen("tcp", httpAddr)
		if err != nil {
			return err
		}
		httpSrv := &http.Server{Handler: srv}
		go func() {
			if err := httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("HTTP server failed", "err", err)
			}
		}()
		defer httpSrv.Close()
		log.Info("HTTP server started", "endpoint", listener.Addr())
	}

	if ipcPath != "" {
		os.Remove(ipcPath)
		ipcListener, err := net.Listen("unix", ipcPath)
		if err != nil {
			return err
		}
		defer ipcListener.Close()
		go srv.ServeListener(ipcListener)
		log.Info("IPC endpoint opened", "url", ipcPath)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("Shutting down")
	return nil
}
