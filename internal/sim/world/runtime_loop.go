package world

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"wiregrid.ai/internal/protocol"
	"wiregrid.ai/internal/sim/power/codec"
)

type adminReq struct {
	fn   func(w *World) error
	resp chan error
}

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingReqs []RequestEnvelope
	var pendingJoins []JoinRequest
	var pendingLeaves []string
	var pendingAdmin []adminReq

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-w.leave:
			pendingLeaves = append(pendingLeaves, id)
		case req := <-w.admin:
			pendingAdmin = append(pendingAdmin, req)
		case env := <-w.inbox:
			pendingReqs = append(pendingReqs, env)
		case <-ticker.C:
			w.runAdmin(pendingAdmin)
			w.step(pendingJoins, pendingLeaves, pendingReqs)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingReqs = pendingReqs[:0]
			pendingAdmin = pendingAdmin[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// Submit runs fn on the world goroutine at the start of the next tick and
// waits for its result.
func (w *World) Submit(ctx context.Context, fn func(w *World) error) error {
	if w == nil || fn == nil {
		return errors.New("world: nothing to submit")
	}
	resp := make(chan error, 1)
	select {
	case w.admin <- adminReq{fn: fn, resp: resp}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *World) runAdmin(reqs []adminReq) {
	for _, r := range reqs {
		err := r.fn(w)
		if r.resp != nil {
			r.resp <- err
		}
	}
}

// StepOnce advances the world by a single tick using the same ordering as Run.
// It is intended for tests and replays.
func (w *World) StepOnce(joins []JoinRequest, leaves []string, reqs []RequestEnvelope) uint64 {
	tick := w.tick.Load()
	w.step(joins, leaves, reqs)
	return tick
}

func (w *World) step(joins []JoinRequest, leaves []string, reqs []RequestEnvelope) {
	start := time.Now()
	tick := w.tick.Load()

	for _, id := range leaves {
		w.handleLeave(id)
	}
	for _, j := range joins {
		w.handleJoin(j)
	}
	for _, r := range reqs {
		w.handleRequest(tick, r)
	}

	w.grid.Aggregate()
	w.flushEvents()
	w.answerResyncs()
	w.deliver()

	if every := w.cfg.StatsEveryTicks; every > 0 && tick%uint64(every) == 0 {
		w.publishStats(tick)
	}
	if every := w.cfg.SnapshotEveryTicks; every > 0 && tick > 0 && tick%uint64(every) == 0 {
		w.offerSnapshot(tick)
	}

	w.tick.Add(1)
	w.updateMetrics(time.Since(start))
}

// flushEvents moves the manager's pending events into one sequenced EVENTS
// batch. It runs before every DEVICE message so stream order matches the
// order of changes.
func (w *World) flushEvents() {
	evs := w.grid.TakeEvents()
	if len(evs) == 0 {
		return
	}
	tick := w.tick.Load()
	w.seq++
	msg := protocol.EventsMsg{
		Type:            protocol.TypeEvents,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		Seq:             w.seq,
		Events:          codec.EventsToWire(evs),
	}
	w.enqueue(msg)
	w.journal = append(w.journal, JournalEntry{Tick: tick, Seq: w.seq, Events: msg.Events})
}

func (w *World) emitDevice(op string, e Entity) {
	w.flushEvents()
	tick := w.tick.Load()
	w.seq++
	msg := protocol.DeviceMsg{
		Type:            protocol.TypeDevice,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		Seq:             w.seq,
		Op:              op,
		Device:          w.deviceInfo(e),
	}
	w.enqueue(msg)
	w.journal = append(w.journal, JournalEntry{Tick: tick, Seq: w.seq, Device: &msg})
}

func (w *World) enqueue(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		w.log.Printf("marshal %T: %v", v, err)
		return
	}
	w.outbox = append(w.outbox, b)
}

// deliver sends this tick's stream to every session, then replies to single
// sessions, then hands the stream to journals.
func (w *World) deliver() {
	for _, b := range w.outbox {
		for _, c := range w.clients {
			w.trySend(c.Out, b)
		}
	}
	for _, d := range w.direct {
		if c := w.clients[d.session]; c != nil {
			w.trySend(c.Out, d.b)
		}
	}
	for _, e := range w.journal {
		for _, j := range w.journals {
			if err := j.WriteEntry(e); err != nil {
				w.log.Printf("journal seq=%d: %v", e.Seq, err)
			}
		}
	}
	w.outbox = w.outbox[:0]
	w.direct = w.direct[:0]
	w.journal = w.journal[:0]
}

func (w *World) sendTo(session string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		w.log.Printf("marshal %T: %v", v, err)
		return
	}
	w.direct = append(w.direct, directMsg{session: session, b: b})
}

// trySend never blocks the tick. A dropped stream message shows up as a seq
// gap on the client, which then asks for a resync.
func (w *World) trySend(ch chan []byte, b []byte) {
	if ch == nil {
		return
	}
	select {
	case ch <- b:
	default:
		w.dropped.Add(1)
	}
}

func (w *World) publishStats(tick uint64) {
	stats := codec.CircuitStats(w.grid.AllCircuits())
	msg := protocol.StatsMsg{
		Type:            protocol.TypeStats,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		Circuits:        stats,
	}
	b, err := json.Marshal(msg)
	if err == nil {
		for _, c := range w.clients {
			w.trySend(c.Out, b)
		}
	}
	for _, s := range w.statsSinks {
		if err := s.WriteStats(tick, stats); err != nil {
			w.log.Printf("stats tick=%d: %v", tick, err)
		}
	}
}

func (w *World) offerSnapshot(tick uint64) {
	if w.snapshotSink == nil {
		return
	}
	snap := w.ExportSnapshot(tick)
	select {
	case w.snapshotSink <- snap:
	default:
		w.log.Printf("snapshot tick=%d dropped: writer busy", tick)
	}
}
