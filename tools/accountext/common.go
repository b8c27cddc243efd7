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
	"os"
	"path/filepath"
	"runtime/pprof"

	"github.com/Fantom-foundation/carmen-accountext/backend"
	"github.com/Fantom-foundation/carmen-accountext/backend/archive"
	"github.com/Fantom-foundation/carmen-accountext/backend/archive/ldb"
	"github.com/Fantom-foundation/carmen-accountext/backend/archive/memory"
	"github.com/Fantom-foundation/carmen-accountext/backend/archive/sqlite"
	"github.com/Fantom-foundation/carmen-accountext/state"
	"github.com/ethereum/go-ethereum/log"
	pbmemory "github.com/pbnjay/memory"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/urfave/cli/v2"
)

const (
	memoryArchive = "memory"
	ldbArchive    = "ldb"
	sqliteArchive = "sqlite"
)

var (
	dataDirFlag = cli.StringFlag{
		Name:  "datadir",
		Usage: "the directory of the archive, not needed for the memory archive",
	}
	archiveFlag = cli.StringFlag{
		Name:  "archive",
		Usage: "the archive implementation: memory, ldb, or sqlite",
		Value: ldbArchive,
	}
	historyFlag = cli.Uint64Flag{
		Name:  "history",
		Usage: "the number of most recent blocks to serve, 0 serves all blocks",
	}
	cacheFlag = cli.IntFlag{
		Name:  "cache",
		Usage: "the LevelDB cache size in MiB",
		Value: defaultCacheMiB(),
	}
	verbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Usage: "log level: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=trace",
		Value: 3,
	}
	cpuProfilingFlag = cli.StringFlag{
		Name:  "cpu-profile",
		Usage: "enable the recording of a CPU profile",
	}
)

var archiveFlags = []cli.Flag{
	&dataDirFlag,
	&archiveFlag,
	&historyFlag,
	&cacheFlag,
}

// defaultCacheMiB is a 16th of the physical memory, or 0 for the LevelDB
// defaults if the memory size is unknown.
func defaultCacheMiB() int {
	return int(pbmemory.TotalMemory() / opt.MiB / 16)
}

func setupLogging(ctx *cli.Context) error {
	level := log.FromLegacyLevel(ctx.Int(verbosityFlag.Name))
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, level, false)))
	return nil
}

// openArchive opens the archive of the given kind in the given directory.
func openArchive(kind string, dir string, cacheMiB int) (archive.Archive, error) {
	if kind != memoryArchive && dir == "" {
		return nil, fmt.Errorf("the %s archive requires a data directory", kind)
	}
	switch kind {
	case memoryArchive:
		return memory.NewArchive(), nil
	case ldbArchive:
		return ldb.OpenArchive(filepath.Join(dir, "ldb"), backend.LevelDbOptions(cacheMiB))
	case sqliteArchive:
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		return sqlite.NewArchive(filepath.Join(dir, "archive.sqlite"))
	}
	return nil, fmt.Errorf("unknown archive %q", kind)
}

// openProvider opens the archive selected by the command line flags.
func openProvider(ctx *cli.Context) (*state.ArchiveProvider, error) {
	kind := ctx.String(archiveFlag.Name)
	dir := ctx.String(dataDirFlag.Name)
	log.Info("Opening archive", "archive", kind, "dir", dir)
	archive, err := openArchive(kind, dir, ctx.Int(cacheFlag.Name))
	if err != nil {
		return nil, err
	}
	return state.NewArchiveProvider(archive, state.ProviderConfig{
		HistoryRetention: ctx.Uint64(historyFlag.Name),
	}), nil
}

// closeProvider closes the provider, reporting the failure through err if
// no other error occurred before.
func closeProvider(provider *state.ArchiveProvider, err *error) {
	log.Info("Closing archive")
	if closeError := provider.Close(); closeError != nil {
		if *err == nil {
			*err = closeError
		} else {
			log.Error("Failure closing archive", "err", closeError)
		}
	}
}

func StartCPUProfile(profileName string) error {
	f, err := os.Create(profileName)
	if err != nil {
		return fmt.Errorf("could not create CPU profile: %s", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		return fmt.Errorf("could not start CPU profile: %s", err)
	}
	return nil
}

func StopCPUProfile() {
	pprof.StopCPUProfile()
}
