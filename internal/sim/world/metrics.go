package world

import "time"

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`
	Seq  uint64 `json:"seq"`

	Clients  int `json:"clients"`
	Devices  int `json:"devices"`
	Circuits int `json:"circuits"`
	Wires    int `json:"wires"`

	TotalSupply int64 `json:"total_supply"`
	TotalDemand int64 `json:"total_demand"`

	DroppedMessages uint64 `json:"dropped_messages"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`
}

type QueueDepths struct {
	Inbox int `json:"inbox"`
	Join  int `json:"join"`
	Leave int `json:"leave"`
	Admin int `json:"admin"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}

func (w *World) updateMetrics(stepDur time.Duration) {
	circuits, wires, devices := w.grid.Counts()
	m := WorldMetrics{
		Tick:            w.tick.Load(),
		Seq:             w.seq,
		Clients:         len(w.clients),
		Devices:         devices,
		Circuits:        circuits,
		Wires:           wires,
		DroppedMessages: w.dropped.Load(),
		QueueDepths: QueueDepths{
			Inbox: len(w.inbox),
			Join:  len(w.join),
			Leave: len(w.leave),
			Admin: len(w.admin),
		},
		StepMS: float64(stepDur.Microseconds()) / 1000.0,
	}
	for _, c := range w.grid.AllCircuits() {
		m.TotalSupply += c.TotalSupply
		m.TotalDemand += c.TotalDemand
	}
	w.metrics.Store(m)
}
