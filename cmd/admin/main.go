package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"wiregrid.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state", "invariants":
			getCmd(os.Args[1], os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "spawn", "destroy", "update":
			deviceCmd(os.Args[1], os.Args[2:])
			return
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID != "" {
		base = filepath.Join(base, *worldID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

// inspectCmd prints a snapshot header and counts without loading a world.
func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (used to find the latest snapshot)")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	_ = fs.Parse(args)

	path := *snapPath
	if path == "" {
		if *worldID == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -snapshot")
			os.Exit(2)
		}
		var ok bool
		path, ok = snapshot.Latest(filepath.Join(*dataDir, "worlds", *worldID, "snapshots"))
		if !ok {
			fmt.Fprintln(os.Stderr, "no snapshot found")
			os.Exit(2)
		}
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	placed := 0
	for _, e := range snap.Entities {
		if e.Placed {
			placed++
		}
	}
	fmt.Printf("%s\n  v%d world=%s tick=%d seq=%d tick_rate=%d connect_range=%.2f\n  entities=%d placed=%d wires=%d next_entity=%d next_circuit=%d next_wire=%d\n",
		path, snap.Header.Version, snap.Header.WorldID, snap.Header.Tick, snap.Seq, snap.TickRate, snap.ConnectRange,
		len(snap.Entities), placed, len(snap.Wires), snap.NextEntity, snap.NextCircuit, snap.NextWire)
}
