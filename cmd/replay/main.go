package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"wiregrid.ai/internal/persistence/eventlog"
	"wiregrid.ai/internal/persistence/snapshot"
	"wiregrid.ai/internal/sim/power/codec"
	"wiregrid.ai/internal/sim/power/mirror"
	"wiregrid.ai/internal/sim/power/model"
	"wiregrid.ai/internal/sim/world"
)

func main() {
	var (
		eventsDir = flag.String("events", "", "events dir containing events-*.jsonl.zst")
		snapPath  = flag.String("snapshot", "", "path to .snap.zst to check against (optional)")
		toSeq     = flag.Uint64("to_seq", 0, "stop after this seq (inclusive, optional)")
		verbose   = flag.Bool("v", false, "print every circuit at the end")
	)
	flag.Parse()

	if *eventsDir == "" {
		fmt.Fprintln(os.Stderr, "missing -events")
		os.Exit(2)
	}

	var snap *snapshot.SnapshotV1
	if *snapPath != "" {
		s, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		snap = &s
		fmt.Printf("snapshot v%d world=%s tick=%d seq=%d entities=%d wires=%d\n",
			s.Header.Version, s.Header.WorldID, s.Header.Tick, s.Seq, len(s.Entities), len(s.Wires))
	}

	r := &replayer{m: mirror.New(nil, nil)}
	err := eventlog.ReadDir(*eventsDir, func(path string, e world.JournalEntry) error {
		if *toSeq != 0 && e.Seq > *toSeq {
			return errStop
		}
		if err := r.apply(e); err != nil {
			return fmt.Errorf("%s seq=%d tick=%d: %w", filepath.Base(path), e.Seq, e.Tick, err)
		}
		if snap != nil && e.Seq == snap.Seq {
			r.atSnap = pairSet(r.m)
		}
		return nil
	})
	if err != nil && err != errStop {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	if err := r.m.CheckInvariants(); err != nil {
		fmt.Fprintln(os.Stderr, "invariants:", err)
		os.Exit(1)
	}

	views := r.m.AllCircuits()
	fmt.Printf("replay ok: entries=%d runs=%d seq=%d tick=%d devices=%d circuits=%d\n",
		r.entries, r.runs, r.seq, r.tick, len(r.m.Devices()), len(views))
	if *verbose {
		for _, v := range views {
			fmt.Printf("  %s wires=%d generators=%v consumers=%v supply=%d demand=%d\n",
				v.ID, len(v.Wires), v.Generators, v.Consumers, v.TotalSupply, v.TotalDemand)
		}
	}

	if snap != nil {
		if r.atSnap == nil {
			fmt.Fprintf(os.Stderr, "journal never reached snapshot seq %d\n", snap.Seq)
			os.Exit(1)
		}
		want := map[model.PairKey]struct{}{}
		for _, w := range snap.Wires {
			want[model.MakePairKey(model.EntityID(w.A), model.EntityID(w.B))] = struct{}{}
		}
		if diff := diffPairs(r.atSnap, want); diff != "" {
			fmt.Fprintln(os.Stderr, "snapshot mismatch:", diff)
			os.Exit(1)
		}
		fmt.Printf("snapshot ok: %d wires match at seq=%d\n", len(want), snap.Seq)
	}
}

var errStop = fmt.Errorf("stop")

type replayer struct {
	m       *mirror.Mirror
	seq     uint64
	tick    uint64
	entries int
	runs    int
	atSnap  map[model.PairKey]struct{}
}

// apply folds one journal entry. A STATE entry replaces the mirror; seq 1
// outside a STATE marks a fresh server run with an empty world.
func (r *replayer) apply(e world.JournalEntry) error {
	r.entries++
	r.tick = e.Tick
	switch {
	case e.State != nil:
		st, err := codec.StateFromWire(*e.State)
		if err != nil {
			return err
		}
		r.runs++
		r.seq = e.Seq
		return r.m.Reset(st)
	case e.Seq == 1:
		r.runs++
		if err := r.m.Reset(model.State{}); err != nil {
			return err
		}
	case e.Seq != r.seq+1:
		return fmt.Errorf("seq gap: have %d got %d", r.seq, e.Seq)
	}
	r.seq = e.Seq

	if e.Device != nil {
		if err := codec.ApplyDevice(r.m, *e.Device); err != nil {
			return err
		}
	}
	if len(e.Events) > 0 {
		if err := codec.ApplyEvents(r.m, e.Events); err != nil {
			return err
		}
	}
	r.m.Aggregate()
	return nil
}

func pairSet(m *mirror.Mirror) map[model.PairKey]struct{} {
	out := map[model.PairKey]struct{}{}
	for _, w := range m.State().Wires {
		out[w.Key()] = struct{}{}
	}
	return out
}

func diffPairs(got, want map[model.PairKey]struct{}) string {
	var missing, extra []string
	for k := range want {
		if _, ok := got[k]; !ok {
			missing = append(missing, fmt.Sprintf("%s-%s", k.Lo, k.Hi))
		}
	}
	for k := range got {
		if _, ok := want[k]; !ok {
			extra = append(extra, fmt.Sprintf("%s-%s", k.Lo, k.Hi))
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return ""
	}
	sort.Strings(missing)
	sort.Strings(extra)
	return fmt.Sprintf("missing=%v extra=%v", missing, extra)
}
