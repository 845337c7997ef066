package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"wiregrid.ai/internal/persistence/indexdb"
	"wiregrid.ai/internal/persistence/snapshot"
	"wiregrid.ai/internal/protocol"
	"wiregrid.ai/internal/sim/tuning"
	"wiregrid.ai/internal/sim/world"
)

// runtimeIndex is the read-model the server feeds and the admin API queries.
type runtimeIndex interface {
	world.Journal
	world.StatsSink
	Close() error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	UpsertMeta(ctx context.Context, key, value string) error
	Rewind(ctx context.Context, seq, tick uint64) error
	Stats() indexdb.QueueStats
	CircuitHistory(ctx context.Context, circuit uint64, limit int) ([]indexdb.CircuitEventRow, error)
	LatestStats(ctx context.Context) (uint64, []protocol.CircuitStats, error)
}

func openRuntimeIndex(worldDir string, cfg tuning.IndexConfig, disableDB bool) (runtimeIndex, error) {
	if disableDB || !cfg.Enabled {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("WG_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := strings.TrimSpace(cfg.Path)
		if dbPath == "" {
			dbPath = filepath.Join(worldDir, "index", "world.sqlite")
		}
		return indexdb.OpenSQLite(dbPath)
	default:
		return nil, fmt.Errorf("unsupported WG_INDEX_BACKEND: %s", backend)
	}
}
