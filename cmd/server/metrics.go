package main

import (
	"fmt"
	"io"
	"net/http"

	"wiregrid.ai/internal/persistence/indexdb"
	"wiregrid.ai/internal/sim/world"
	"wiregrid.ai/internal/transport/mqttbus"
)

// metricsSources are read on every scrape. idx and bus may be nil.
type metricsSources struct {
	worldID string
	world   *world.World
	idx     runtimeIndex
	bus     *mqttbus.Bus
}

func (s metricsSources) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeWorldMetrics(rw, s.worldID, s.world.Metrics())
		if s.idx != nil {
			writeIndexMetrics(rw, s.worldID, s.idx.Stats())
		}
		if s.bus != nil {
			writeBusMetrics(rw, s.worldID, s.bus.Stats())
		}
	}
}

// Minimal Prometheus exposition format.
func gauge(w io.Writer, name, help string) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s gauge\n", name)
}

func counter(w io.Writer, name, help string) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s counter\n", name)
}

func writeWorldMetrics(w io.Writer, worldID string, m world.WorldMetrics) {
	gauge(w, "wiregrid_world_tick", "Current world tick.")
	fmt.Fprintf(w, "wiregrid_world_tick{world=%q} %d\n", worldID, m.Tick)

	gauge(w, "wiregrid_world_seq", "Last replication stream sequence number.")
	fmt.Fprintf(w, "wiregrid_world_seq{world=%q} %d\n", worldID, m.Seq)

	gauge(w, "wiregrid_world_clients", "Connected sessions.")
	fmt.Fprintf(w, "wiregrid_world_clients{world=%q} %d\n", worldID, m.Clients)

	gauge(w, "wiregrid_grid_objects", "Devices, wires and circuits in the grid.")
	fmt.Fprintf(w, "wiregrid_grid_objects{world=%q,kind=%q} %d\n", worldID, "devices", m.Devices)
	fmt.Fprintf(w, "wiregrid_grid_objects{world=%q,kind=%q} %d\n", worldID, "wires", m.Wires)
	fmt.Fprintf(w, "wiregrid_grid_objects{world=%q,kind=%q} %d\n", worldID, "circuits", m.Circuits)

	gauge(w, "wiregrid_grid_power", "Summed generator supply and consumer demand over all circuits.")
	fmt.Fprintf(w, "wiregrid_grid_power{world=%q,side=%q} %d\n", worldID, "supply", m.TotalSupply)
	fmt.Fprintf(w, "wiregrid_grid_power{world=%q,side=%q} %d\n", worldID, "demand", m.TotalDemand)

	counter(w, "wiregrid_world_dropped_messages_total", "Outbound messages dropped on full session queues.")
	fmt.Fprintf(w, "wiregrid_world_dropped_messages_total{world=%q} %d\n", worldID, m.DroppedMessages)

	gauge(w, "wiregrid_world_queue_depth", "Channel backlog depth.")
	fmt.Fprintf(w, "wiregrid_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "inbox", m.QueueDepths.Inbox)
	fmt.Fprintf(w, "wiregrid_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "join", m.QueueDepths.Join)
	fmt.Fprintf(w, "wiregrid_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "leave", m.QueueDepths.Leave)
	fmt.Fprintf(w, "wiregrid_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "admin", m.QueueDepths.Admin)

	gauge(w, "wiregrid_world_step_ms", "Last tick step duration in milliseconds.")
	fmt.Fprintf(w, "wiregrid_world_step_ms{world=%q} %.3f\n", worldID, m.StepMS)
}

func writeIndexMetrics(w io.Writer, worldID string, s indexdb.QueueStats) {
	gauge(w, "wiregrid_index_queue_depth", "Index writer queue depth.")
	fmt.Fprintf(w, "wiregrid_index_queue_depth{world=%q} %d\n", worldID, s.QueueDepth)
	gauge(w, "wiregrid_index_queue_capacity", "Index writer queue capacity.")
	fmt.Fprintf(w, "wiregrid_index_queue_capacity{world=%q} %d\n", worldID, s.QueueCapacity)
	counter(w, "wiregrid_index_dropped_total", "Index writes dropped because the queue was full.")
	fmt.Fprintf(w, "wiregrid_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "entry", s.DropEntryTotal)
	fmt.Fprintf(w, "wiregrid_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "stats", s.DropStatsTotal)
	fmt.Fprintf(w, "wiregrid_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "snapshot", s.DropSnapshotTotal)
}

func writeBusMetrics(w io.Writer, worldID string, s mqttbus.Stats) {
	counter(w, "wiregrid_mqtt_messages_total", "MQTT publishes by outcome.")
	fmt.Fprintf(w, "wiregrid_mqtt_messages_total{world=%q,result=%q} %d\n", worldID, "published", s.Published)
	fmt.Fprintf(w, "wiregrid_mqtt_messages_total{world=%q,result=%q} %d\n", worldID, "failed", s.Failed)
	fmt.Fprintf(w, "wiregrid_mqtt_messages_total{world=%q,result=%q} %d\n", worldID, "dropped", s.Dropped)
}
