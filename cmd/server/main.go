package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"wiregrid.ai/internal/persistence/eventlog"
	"wiregrid.ai/internal/persistence/snapshot"
	"wiregrid.ai/internal/sim/layout"
	"wiregrid.ai/internal/sim/tuning"
	"wiregrid.ai/internal/sim/world"
	"wiregrid.ai/internal/telemetry/influx"
	"wiregrid.ai/internal/transport/mqttbus"
	"wiregrid.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		layoutPath = flag.String("layout", "", "device layout for a fresh world (default: <configs>/devices.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad, _ = snapshot.Latest(filepath.Join(worldDir, "snapshots"))
	}

	// Create world (fresh from layout or resumed from snapshot).
	cfg := world.ConfigFromTuning(*worldID, tune)
	var w *world.World
	var layoutDigest string
	var resumeSeq uint64
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.TickRate > 0 {
			cfg.TickRateHz = snap.TickRate
		}
		if snap.ConnectRange > 0 {
			cfg.ConnectRange = snap.ConnectRange
		}
		w = world.New(cfg, logger)
		if err := w.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		resumeSeq = snap.Seq
		logger.Printf("resumed from snapshot=%s tick=%d seq=%d", filepath.Base(snapshotToLoad), w.CurrentTick(), snap.Seq)
	} else {
		w = world.New(cfg, logger)
		lp := strings.TrimSpace(*layoutPath)
		if lp == "" {
			lp = filepath.Join(*configDir, "devices.yaml")
		}
		l, err := layout.Load(lp)
		switch {
		case err == nil:
			if err := w.ApplyLayout(l); err != nil {
				logger.Fatalf("apply layout: %v", err)
			}
			layoutDigest = l.Digest
			logger.Printf("fresh world from layout=%s devices=%d wires=%d", lp, len(l.Devices), len(l.Wires))
		case os.IsNotExist(err):
			logger.Printf("layout not found (%s); starting empty", lp)
		default:
			logger.Fatalf("load layout: %v", err)
		}
	}

	journal := eventlog.NewJournal(worldDir)
	w.AddJournal(journal)

	// Optional: read-model index backend (never blocks the tick).
	idx, err := openRuntimeIndex(worldDir, tune.Index, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		// Seq and tick restart from the snapshot (or from zero), so rows a
		// previous run wrote past that point would be spliced into new history.
		if err := idx.Rewind(context.Background(), resumeSeq, w.CurrentTick()); err != nil {
			logger.Fatalf("index backend: rewind: %v", err)
		}
		w.AddJournal(idx)
		w.AddStatsSink(idx)
		if layoutDigest != "" {
			if err := idx.UpsertMeta(context.Background(), "layout_digest", layoutDigest); err != nil {
				logger.Printf("index backend: upsert meta: %v", err)
			}
		}
	}

	influxClient, err := influx.Dial(tune.Influx, *worldID, cfg.StatsEveryTicks, logger)
	switch {
	case err == nil:
		w.AddJournal(influxClient)
		w.AddStatsSink(influxClient)
		logger.Printf("influx: writing to %s bucket=%s", tune.Influx.URL, tune.Influx.Bucket)
	case errors.Is(err, influx.ErrDisabled):
	default:
		logger.Printf("influx disabled: %v", err)
	}

	var bus *mqttbus.Bus
	bus, err = mqttbus.Dial(tune.MQTT, *worldID, logger)
	switch {
	case err == nil:
		w.AddJournal(bus)
		w.AddStatsSink(bus)
		logger.Printf("mqtt: publishing to %s under %s/%s", tune.MQTT.Broker, tune.MQTT.TopicPrefix, *worldID)
	case errors.Is(err, mqttbus.ErrDisabled):
		bus = nil
	default:
		bus = nil
		logger.Printf("mqtt disabled: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				path := filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				if idx != nil {
					idx.RecordSnapshot(path, snap)
				}
			}
		}
	}()

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsSources{worldID: *worldID, world: w, idx: idx, bus: bus}.Handler())

	enableAdminHTTP := envBool("WG_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("WG_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		(&adminAPI{world: w, idx: idx}).register(mux)
	} else {
		logger.Printf("admin endpoints disabled (WG_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(w, logger, tune.MaxQueue).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Printf("ListenAndServe: %v", err)
		cancel()
	}

	// Sinks close only after the world has stopped writing to them.
	<-worldDone
	if bus != nil {
		_ = bus.Close()
	}
	if influxClient != nil {
		_ = influxClient.Close()
	}
	if idx != nil {
		_ = idx.Close()
	}
	if err := journal.Close(); err != nil {
		logger.Printf("close journal: %v", err)
	}
	logger.Printf("shutdown complete at tick=%d", w.CurrentTick())
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
