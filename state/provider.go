// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.
package state

import (
	"fmt"

	"github.com/Fantom-foundation/carmen-accountext/backend/archive"
	"github.com/Fantom-foundation/carmen-accountext/common"
)

// ProviderConfig configures an ArchiveProvider.
type ProviderConfig struct {
	// HistoryRetention is the number of most recent blocks whose state is
	// served. Older blocks are reported as pruned. Zero retains all blocks.
	HistoryRetention uint64
}

// DefaultProviderConfig serves the full history of the archive.
var DefaultProviderConfig = ProviderConfig{}

// ArchiveProvider is a Provider serving views of the state recorded in an
// archive. It owns the archive and closes it when being closed.
type ArchiveProvider struct {
	archive archive.Archive
	config  ProviderConfig
}

func NewArchiveProvider(archive archive.Archive, config ProviderConfig) *ArchiveProvider {
	return &ArchiveProvider{
		archive: archive,
		config:  config,
	}
}

func (p *ArchiveProvider) LatestState() (View, error) {
	height, empty, err := p.BlockHeight()
	if err != nil {
		return nil, err
	}
	if empty {
		return nil, ErrNoState
	}
	return p.viewAt(height), nil
}

func (p *ArchiveProvider) StateAt(block uint64) (View, error) {
	height, empty, err := p.BlockHeight()
	if err != nil {
		return nil, err
	}
	if empty {
		return nil, ErrNoState
	}
	if block > height {
		return nil, fmt.Errorf("%w: block %d is beyond head block %d", ErrBlockNotFound, block, height)
	}
	if retention := p.config.HistoryRetention; retention > 0 && height-block >= retention {
		return nil, fmt.Errorf("%w: block %d is older than the last %d blocks retained", ErrStatePruned, block, retention)
	}
	return p.viewAt(block), nil
}

func (p *ArchiveProvider) StateByHash(hash common.Hash) (View, error) {
	block, found, err := p.archive.GetBlockNumber(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to look up block %v: %w", hash, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: no block with hash %v", ErrBlockNotFound, hash)
	}
	return p.StateAt(block)
}

func (p *ArchiveProvider) BlockHeight() (block uint64, empty bool, err error) {
	block, empty, err = p.archive.GetBlockHeight()
	if err != nil {
		return 0, false, fmt.Errorf("failed to get block height: %w", err)
	}
	return block, empty, nil
}

// Archive provides the archive backing this provider.
func (p *ArchiveProvider) Archive() archive.Archive {
	return p.archive
}

func (p *ArchiveProvider) Close() error {
	return p.archive.Close()
}

func (p *ArchiveProvider) viewAt(block uint64) *ArchiveView {
	return &ArchiveView{
		archive: p.archive,
		block:   block,
	}
}
