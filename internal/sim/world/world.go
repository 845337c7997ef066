package world

import (
	"io"
	"log"
	"sync/atomic"

	"wiregrid.ai/internal/persistence/snapshot"
	"wiregrid.ai/internal/sim/power/grid"
	"wiregrid.ai/internal/sim/power/model"
	"wiregrid.ai/internal/sim/tuning"
)

type WorldConfig struct {
	ID                 string
	TickRateHz         int
	ConnectRange       float64
	PickRadius         float64
	StatsEveryTicks    int
	SnapshotEveryTicks int
}

func ConfigFromTuning(id string, t tuning.Tuning) WorldConfig {
	return WorldConfig{
		ID:                 id,
		TickRateHz:         t.TickRateHz,
		ConnectRange:       t.ConnectRange,
		PickRadius:         t.PickRadius,
		StatsEveryTicks:    t.StatsEveryTicks,
		SnapshotEveryTicks: t.SnapshotEveryTicks,
	}
}

// World owns the entity table, the circuit manager and all sessions. Every
// mutation happens on the Run goroutine; other goroutines talk to it through
// channels.
type World struct {
	cfg WorldConfig
	log *log.Logger

	tick atomic.Uint64
	// seq numbers the replication stream (EVENTS and DEVICE messages).
	seq uint64

	grid       *grid.Manager
	entities   map[model.EntityID]*Entity
	nextEntity uint64

	clients    map[string]*clientState
	players    map[model.PlayerID]*clientState
	nextPlayer uint64

	outbox  [][]byte
	direct  []directMsg
	resyncs []string
	journal []JournalEntry

	inbox chan RequestEnvelope
	join  chan JoinRequest
	leave chan string
	admin chan adminReq
	stop  chan struct{}

	journals     []Journal
	statsSinks   []StatsSink
	snapshotSink chan<- snapshot.SnapshotV1

	dropped atomic.Uint64
	metrics atomic.Value
}

// New returns an empty world. A nil logger discards output.
func New(cfg WorldConfig, logger *log.Logger) *World {
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 10
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	w := &World{
		cfg:      cfg,
		log:      logger,
		entities: map[model.EntityID]*Entity{},
		clients:  map[string]*clientState{},
		players:  map[model.PlayerID]*clientState{},
		inbox:    make(chan RequestEnvelope, 1024),
		join:     make(chan JoinRequest, 64),
		leave:    make(chan string, 64),
		admin:    make(chan adminReq, 64),
		stop:     make(chan struct{}),
	}
	w.grid = grid.New(worldEnv{w}, logger)
	return w
}

func (w *World) Inbox() chan<- RequestEnvelope { return w.inbox }
func (w *World) Join() chan<- JoinRequest      { return w.join }
func (w *World) Leave() chan<- string          { return w.leave }

// AddJournal must be called before Run.
func (w *World) AddJournal(j Journal) {
	if j != nil {
		w.journals = append(w.journals, j)
	}
}

// AddStatsSink must be called before Run.
func (w *World) AddStatsSink(s StatsSink) {
	if s != nil {
		w.statsSinks = append(w.statsSinks, s)
	}
}

// SetSnapshotSink must be called before Run. Sends never block the tick.
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) TickRateHz() int {
	if w == nil {
		return 0
	}
	return w.cfg.TickRateHz
}

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

// Grid exposes the circuit manager for loop-side callers and tests.
func (w *World) Grid() *grid.Manager { return w.grid }
