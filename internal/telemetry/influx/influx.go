// Package influx exports circuit aggregates to InfluxDB as time series.
package influx

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"wiregrid.ai/internal/protocol"
	"wiregrid.ai/internal/sim/tuning"
	"wiregrid.ai/internal/sim/world"
)

var ErrDisabled = errors.New("influx: disabled")

const connectTimeout = 5 * time.Second

// PointWriter is the part of api.WriteAPI the sink uses.
type PointWriter interface {
	WritePoint(point *write.Point)
}

// Sink turns stats samples and stream entries into points. It never blocks:
// the write API batches and sends in the background.
type Sink struct {
	w       PointWriter
	worldID string
	every   uint64
	now     func() time.Time
}

func NewSink(w PointWriter, worldID string, everyTicks int) *Sink {
	every := uint64(1)
	if everyTicks > 0 {
		every = uint64(everyTicks)
	}
	return &Sink{w: w, worldID: worldID, every: every, now: time.Now}
}

func (s *Sink) WriteStats(tick uint64, stats []protocol.CircuitStats) error {
	if tick%s.every != 0 {
		return nil
	}
	ts := s.now()
	var supply, demand int64
	for _, c := range stats {
		supply += c.TotalSupply
		demand += c.TotalDemand
		s.w.WritePoint(write.NewPoint(
			"circuit_power",
			map[string]string{
				"world":   s.worldID,
				"circuit": strconv.FormatUint(c.CircuitID, 10),
			},
			map[string]interface{}{
				"supply":  c.TotalSupply,
				"demand":  c.TotalDemand,
				"balance": c.TotalSupply - c.TotalDemand,
				"wires":   c.Wires,
				"tick":    int64(tick),
			},
			ts,
		))
	}
	s.w.WritePoint(write.NewPoint(
		"grid_totals",
		map[string]string{"world": s.worldID},
		map[string]interface{}{
			"circuits": len(stats),
			"supply":   supply,
			"demand":   demand,
			"tick":     int64(tick),
		},
		ts,
	))
	return nil
}

// WriteEntry counts structural changes per kind.
func (s *Sink) WriteEntry(e world.JournalEntry) error {
	if len(e.Events) == 0 {
		return nil
	}
	counts := map[string]interface{}{}
	for _, ev := range e.Events {
		n, _ := counts[ev.Kind].(int)
		counts[ev.Kind] = n + 1
	}
	s.w.WritePoint(write.NewPoint(
		"circuit_events",
		map[string]string{"world": s.worldID},
		counts,
		s.now(),
	))
	return nil
}

// Client owns the InfluxDB connection behind a Sink.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	*Sink
}

// Dial connects, pings and returns a client whose write errors go to logger.
func Dial(cfg tuning.InfluxConfig, worldID string, everyTicks int, logger *log.Logger) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("influx: ping %s: %w", cfg.URL, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("influx: %s not healthy", cfg.URL)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	go func() {
		for err := range writeAPI.Errors() {
			if logger != nil {
				logger.Printf("influx write: %v", err)
			}
		}
	}()
	if cfg.EveryTicks > 0 {
		everyTicks = cfg.EveryTicks
	}
	return &Client{client: client, writeAPI: writeAPI, Sink: NewSink(writeAPI, worldID, everyTicks)}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}
