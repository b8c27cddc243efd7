// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.
package main

import (
	"fmt"

	"github.com/Fantom-foundation/carmen-accountext/common/interrupt"
	"github.com/Fantom-foundation/carmen-accountext/ethext"
	"github.com/Fantom-foundation/carmen-accountext/state"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/node"
	"github.com/urfave/cli/v2"
)

var (
	httpAddrFlag = cli.StringFlag{
		Name:  "http.addr",
		Usage: "the HTTP-RPC server listening interface",
		Value: node.DefaultHTTPHost,
	}
	httpPortFlag = cli.IntFlag{
		Name:  "http.port",
		Usage: "the HTTP-RPC server listening port",
		Value: node.DefaultHTTPPort,
	}
	ethExtFlag = cli.BoolFlag{
		Name:  "eth-ext",
		Usage: "enables the eth_getAccountExt RPC method",
	}
)

var serveCommand = cli.Command{
	Action: serve,
	Name:   "serve",
	Usage:  "serves the archive over HTTP-RPC",
	Flags: append([]cli.Flag{
		&httpAddrFlag,
		&httpPortFlag,
		&ethExtFlag,
		&importFileFlag,
	}, archiveFlags...),
}

func serve(ctx *cli.Context) (err error) {
	provider, err := openProvider(ctx)
	if err != nil {
		return err
	}
	defer closeProvider(provider, &err)

	cctx, cancel := interrupt.Register(ctx.Context)
	defer cancel()

	if file := ctx.String(importFileFlag.Name); file != "" {
		if _, err := importFile(cctx, provider.Archive(), file); err != nil {
			return err
		}
	}

	stack, err := newNode(provider, ctx.String(httpAddrFlag.Name), ctx.Int(httpPortFlag.Name), ctx.Bool(ethExtFlag.Name))
	if err != nil {
		return err
	}
	defer stack.Close()

	if err := stack.Start(); err != nil {
		return fmt.Errorf("failed to start node: %w", err)
	}
	log.Info("Serving archive", "endpoint", stack.HTTPEndpoint())

	<-cctx.Done()
	return nil
}

// newNode creates a node serving HTTP-RPC on the given interface. The
// extended account queries are only registered if ethExt is set.
func newNode(provider state.Provider, host string, port int, ethExt bool) (*node.Node, error) {
	stack, err := node.New(nodeConfig(host, port))
	if err != nil {
		return nil, fmt.Errorf("failed to create node: %w", err)
	}
	if ethExt {
		stack.RegisterAPIs(ethext.APIs(provider))
		log.Info("Enabled extended account queries", "namespace", ethext.Namespace)
	} else {
		log.Warn("Extended account queries are disabled, use --" + ethExtFlag.Name + " to enable them")
	}
	return stack, nil
}

// nodeConfig configures a node that only serves HTTP-RPC.
func nodeConfig(host string, port int) *node.Config {
	config := node.DefaultConfig
	config.DataDir = ""
	config.IPCPath = ""
	config.HTTPHost = host
	config.HTTPPort = port
	config.HTTPModules = []string{ethext.Namespace}
	config.P2P.NoDiscovery = true
	config.P2P.ListenAddr = ""
	config.P2P.MaxPeers = 0
	config.P2P.NAT = nil
	return &config
}
