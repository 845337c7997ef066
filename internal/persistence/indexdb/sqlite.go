package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"wiregrid.ai/internal/persistence/snapshot"
	"wiregrid.ai/internal/protocol"
	"wiregrid.ai/internal/sim/world"
)

// SQLiteIndex is a queryable secondary copy of the event stream, circuit
// stats and snapshot catalog. Writes are queued and never block the world;
// the JSONL journal remains the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropEntry    atomic.Uint64
	dropStats    atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqEntry reqKind = iota + 1
	reqStats
	reqSnapshot
)

type req struct {
	kind reqKind

	entry    world.JournalEntry
	tick     uint64
	stats    []protocol.CircuitStats
	snapshot snapshotRow
}

type snapshotRow struct {
	Tick     uint64
	Path     string
	Seq      uint64
	Entities int
	Wires    int
}

type QueueStats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropEntryTotal    uint64 `json:"drop_entry_total"`
	DropStatsTotal    uint64 `json:"drop_stats_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS circuit_events (
			seq INTEGER NOT NULL,
			idx INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			kind TEXT NOT NULL,
			entity_a INTEGER NOT NULL,
			entity_b INTEGER NOT NULL,
			wire_id INTEGER NOT NULL,
			circuit_id INTEGER NOT NULL,
			from_circuit_id INTEGER NOT NULL,
			wire_ids TEXT,
			PRIMARY KEY (seq, idx)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_circuit_events_circuit ON circuit_events(circuit_id, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_circuit_events_wire ON circuit_events(wire_id, seq);`,
		`CREATE TABLE IF NOT EXISTS device_events (
			seq INTEGER PRIMARY KEY,
			tick INTEGER NOT NULL,
			op TEXT NOT NULL,
			entity_id INTEGER NOT NULL,
			kind TEXT NOT NULL,
			rate INTEGER NOT NULL,
			placed INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS circuit_stats (
			tick INTEGER NOT NULL,
			circuit_id INTEGER NOT NULL,
			wires INTEGER NOT NULL,
			total_supply INTEGER NOT NULL,
			total_demand INTEGER NOT NULL,
			PRIMARY KEY (tick, circuit_id)
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			seq INTEGER NOT NULL,
			entities INTEGER NOT NULL,
			wires INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() QueueStats {
	if s == nil {
		return QueueStats{}
	}
	return QueueStats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropEntryTotal:    s.dropEntry.Load(),
		DropStatsTotal:    s.dropStats.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

func (s *SQLiteIndex) WriteEntry(entry world.JournalEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqEntry, entry: entry}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		s.dropEntry.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteStats(tick uint64, stats []protocol.CircuitStats) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqStats, tick: tick, stats: stats}:
	default:
		s.dropStats.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Tick:     snap.Header.Tick,
		Path:     path,
		Seq:      snap.Seq,
		Entities: len(snap.Entities),
		Wires:    len(snap.Wires),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// UpsertMeta records run metadata such as the layout digest. It writes
// synchronously and is meant for startup.
func (s *SQLiteIndex) UpsertMeta(ctx context.Context, key, value string) error {
	if s == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta(key,value,updated_at) VALUES(?,?,?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// Rewind drops rows the resumed world is about to write again: stream rows
// after seq and stats or snapshot rows from tick on. A fresh world passes
// zero for both. Call it before the world starts.
func (s *SQLiteIndex) Rewind(ctx context.Context, seq, tick uint64) error {
	if s == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmts := []struct {
		q   string
		arg uint64
	}{
		{`DELETE FROM circuit_events WHERE seq > ?`, seq},
		{`DELETE FROM device_events WHERE seq > ?`, seq},
		{`DELETE FROM circuit_stats WHERE tick >= ?`, tick},
		{`DELETE FROM snapshots WHERE tick >= ?`, tick},
	}
	for _, st := range stmts {
		if _, err := tx.ExecContext(ctx, st.q, int64(st.arg)); err != nil {
			return fmt.Errorf("rewind: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO circuit_events(seq,idx,tick,kind,entity_a,entity_b,wire_id,circuit_id,from_circuit_id,wire_ids) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertDevice, _ := s.db.Prepare(`INSERT OR REPLACE INTO device_events(seq,tick,op,entity_id,kind,rate,placed) VALUES(?,?,?,?,?,?,?)`)
	insertStats, _ := s.db.Prepare(`INSERT OR REPLACE INTO circuit_stats(tick,circuit_id,wires,total_supply,total_demand) VALUES(?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,seq,entities,wires) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertEvent, insertDevice, insertStats, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil {
			return true
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqEntry:
			e := r.entry
			for i, ev := range e.Events {
				var ids any
				if len(ev.WireIDs) > 0 {
					b, _ := json.Marshal(ev.WireIDs)
					ids = string(b)
				}
				if !exec(insertEvent, int64(e.Seq), i, int64(e.Tick), ev.Kind,
					int64(ev.EntityA), int64(ev.EntityB), int64(ev.WireID),
					int64(ev.CircuitID), int64(ev.FromCircuitID), ids) {
					break
				}
			}
			if d := e.Device; d != nil && tx != nil {
				placed := 0
				if d.Device.Placed {
					placed = 1
				}
				exec(insertDevice, int64(e.Seq), int64(e.Tick), d.Op,
					int64(d.Device.EntityID), d.Device.Kind, d.Device.Rate, placed)
			}

		case reqStats:
			for _, c := range r.stats {
				if !exec(insertStats, int64(r.tick), int64(c.CircuitID), c.Wires, c.TotalSupply, c.TotalDemand) {
					break
				}
			}

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Tick), sn.Path, int64(sn.Seq), sn.Entities, sn.Wires)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
