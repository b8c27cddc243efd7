// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.
package ethext

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Fantom-foundation/carmen-accountext/common"
	"github.com/Fantom-foundation/carmen-accountext/state"
	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/rpc"
)

// Namespace is the RPC namespace the API is registered in.
const Namespace = "eth"

var (
	requestCounter = metrics.NewRegisteredCounterForced("ethext/getaccountext/requests", nil)
	failureCounter = metrics.NewRegisteredCounterForced("ethext/getaccountext/failures", nil)
	requestTimer   = metrics.NewRegisteredTimer("ethext/getaccountext/duration", nil)
)

// API provides account queries extending the standard eth namespace.
type API struct {
	provider state.Provider
}

func NewAPI(provider state.Provider) *API {
	return &API{provider: provider}
}

// GetAccountExt returns the balance, nonce, and code hash of the given
// account at the given block. If no block is given, the latest state is
// used. Accounts not present in the state are reported as empty accounts.
// Requests whose context is already done are rejected without touching
// the state.
func (api *API) GetAccountExt(ctx context.Context, address gethcommon.Address, blockNrOrHash *rpc.BlockNumberOrHash) (*AccountExt, error) {
	start := time.Now()
	requestCounter.Inc(1)
	defer requestTimer.UpdateSince(start)

	if err := ctx.Err(); err != nil {
		failureCounter.Inc(1)
		log.Debug("Request abandoned", "address", address, "block", blockIDString(blockNrOrHash), "err", err)
		return nil, internalError(err)
	}

	view, err := api.stateAtBlockIDOrLatest(blockNrOrHash)
	if err != nil {
		failureCounter.Inc(1)
		log.Debug("Failed to resolve state", "address", address, "block", blockIDString(blockNrOrHash), "err", err)
		return nil, internalError(err)
	}
	defer view.Close()

	account, err := view.GetAccount(common.Address(address))
	if err != nil {
		failureCounter.Inc(1)
		log.Debug("Failed to get account", "address", address, "block", view.Block(), "err", err)
		return nil, internalError(err)
	}

	res := NewAccountExt(account)
	log.Debug("Served account", "address", address, "block", view.Block(), "found", account != nil, "elapsed", time.Since(start))
	return &res, nil
}

// stateAtBlockIDOrLatest resolves the given block identifier to a state
// view. A missing identifier refers to the latest state.
func (api *API) stateAtBlockIDOrLatest(blockNrOrHash *rpc.BlockNumberOrHash) (state.View, error) {
	if blockNrOrHash == nil {
		return api.provider.LatestState()
	}
	if number, ok := blockNrOrHash.Number(); ok {
		switch number {
		case rpc.LatestBlockNumber, rpc.PendingBlockNumber, rpc.SafeBlockNumber, rpc.FinalizedBlockNumber:
			// only committed blocks are retained, pending state is not tracked
			return api.provider.LatestState()
		case rpc.EarliestBlockNumber:
			return api.provider.StateAt(0)
		}
		if number < 0 {
			return nil, fmt.Errorf("invalid block number %d", number)
		}
		return api.provider.StateAt(uint64(number))
	}
	if hash, ok := blockNrOrHash.Hash(); ok {
		return api.provider.StateByHash(common.Hash(hash))
	}
	return nil, errors.New("invalid block identifier, neither number nor hash given")
}

func blockIDString(blockNrOrHash *rpc.BlockNumberOrHash) string {
	if blockNrOrHash == nil {
		return "latest"
	}
	return blockNrOrHash.String()
}

// APIs lists the RPC services backed by the given provider.
func APIs(provider state.Provider) []rpc.API {
	return []rpc.API{
		{
			Namespace: Namespace,
			Service:   NewAPI(provider),
		},
	}
}

// Register registers the RPC services backed by the given provider in the
// given server.
func Register(server *rpc.Server, provider state.Provider) error {
	for _, api := range APIs(provider) {
		if err := server.RegisterName(api.Namespace, api.Service); err != nil {
			return fmt.Errorf("failed to register %s API: %w", api.Namespace, err)
		}
	}
	return nil
}
