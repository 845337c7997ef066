package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// dbCmd reads the server's sqlite index directly. The server may keep
// writing; WAL mode lets both sides work.
func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	tick := fs.Uint64("tick", 0, "stats tick (optional; defaults to latest)")
	circuit := fs.Uint64("circuit", 0, "circuit id (history)")
	entity := fs.Uint64("entity", 0, "entity id filter (devices)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()
	if *limit <= 0 {
		*limit = 20
	}

	switch q {
	case "snapshots":
		rows, err := db.Query(`SELECT tick,path,seq,entities,wires FROM snapshots ORDER BY tick DESC LIMIT ?`, *limit)
		exitOn("query", err)
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick     int64  `json:"tick"`
				Path     string `json:"path"`
				Seq      int64  `json:"seq"`
				Entities int    `json:"entities"`
				Wires    int    `json:"wires"`
			}
			exitOn("scan", rows.Scan(&r.Tick, &r.Path, &r.Seq, &r.Entities, &r.Wires))
			printJSON(r)
		}
		exitOn("rows", rows.Err())

	case "history":
		if *circuit == 0 {
			fmt.Fprintln(os.Stderr, "missing -circuit")
			os.Exit(2)
		}
		rows, err := db.Query(`SELECT seq,idx,tick,kind,entity_a,entity_b,wire_id,circuit_id,from_circuit_id,COALESCE(wire_ids,'')
			FROM circuit_events WHERE circuit_id=? OR from_circuit_id=? ORDER BY seq DESC, idx DESC LIMIT ?`, *circuit, *circuit, *limit)
		exitOn("query", err)
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Seq       int64  `json:"seq"`
				Idx       int    `json:"idx"`
				Tick      int64  `json:"tick"`
				Kind      string `json:"kind"`
				EntityA   int64  `json:"entity_a,omitempty"`
				EntityB   int64  `json:"entity_b,omitempty"`
				WireID    int64  `json:"wire_id,omitempty"`
				CircuitID int64  `json:"circuit_id"`
				From      int64  `json:"from_circuit_id,omitempty"`
				WireIDs   string `json:"wire_ids,omitempty"`
			}
			exitOn("scan", rows.Scan(&r.Seq, &r.Idx, &r.Tick, &r.Kind, &r.EntityA, &r.EntityB, &r.WireID, &r.CircuitID, &r.From, &r.WireIDs))
			printJSON(r)
		}
		exitOn("rows", rows.Err())

	case "stats":
		if *tick == 0 {
			var t int64
			exitOn("latest tick", db.QueryRow(`SELECT COALESCE(MAX(tick),0) FROM circuit_stats`).Scan(&t))
			if t <= 0 {
				fmt.Fprintln(os.Stderr, "no stats recorded")
				os.Exit(2)
			}
			*tick = uint64(t)
		}
		rows, err := db.Query(`SELECT circuit_id,wires,total_supply,total_demand FROM circuit_stats WHERE tick=? ORDER BY circuit_id`, *tick)
		exitOn("query", err)
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick        uint64 `json:"tick"`
				CircuitID   int64  `json:"circuit_id"`
				Wires       int    `json:"wires"`
				TotalSupply int64  `json:"total_supply"`
				TotalDemand int64  `json:"total_demand"`
				Balance     int64  `json:"balance"`
			}
			exitOn("scan", rows.Scan(&r.CircuitID, &r.Wires, &r.TotalSupply, &r.TotalDemand))
			r.Tick = *tick
			r.Balance = r.TotalSupply - r.TotalDemand
			printJSON(r)
		}
		exitOn("rows", rows.Err())

	case "devices":
		query := `SELECT seq,tick,op,entity_id,kind,rate,placed FROM device_events ORDER BY seq DESC LIMIT ?`
		qargs := []any{*limit}
		if *entity != 0 {
			query = `SELECT seq,tick,op,entity_id,kind,rate,placed FROM device_events WHERE entity_id=? ORDER BY seq DESC LIMIT ?`
			qargs = []any{*entity, *limit}
		}
		rows, err := db.Query(query, qargs...)
		exitOn("query", err)
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Seq      int64  `json:"seq"`
				Tick     int64  `json:"tick"`
				Op       string `json:"op"`
				EntityID int64  `json:"entity_id"`
				Kind     string `json:"kind"`
				Rate     int64  `json:"rate"`
				Placed   bool   `json:"placed"`
			}
			var placed int
			exitOn("scan", rows.Scan(&r.Seq, &r.Tick, &r.Op, &r.EntityID, &r.Kind, &r.Rate, &placed))
			r.Placed = placed != 0
			printJSON(r)
		}
		exitOn("rows", rows.Err())

	case "meta":
		rows, err := db.Query(`SELECT key,value,updated_at FROM meta ORDER BY key`)
		exitOn("query", err)
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Key       string `json:"key"`
				Value     string `json:"value"`
				UpdatedAt string `json:"updated_at"`
			}
			exitOn("scan", rows.Scan(&r.Key, &r.Value, &r.UpdatedAt))
			printJSON(r)
		}
		exitOn("rows", rows.Err())

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-world WORLD|-db PATH] [-tick T] [-circuit C] [-entity E] snapshots|history|stats|devices|meta")
		os.Exit(2)
	}
}

func exitOn(what string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
		os.Exit(1)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
