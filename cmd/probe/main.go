package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"wiregrid.ai/internal/client"
	"wiregrid.ai/internal/sim/power/mirror"
	"wiregrid.ai/internal/sim/power/model"
)

func main() {
	var (
		url    = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name   = flag.String("name", "probe", "player name")
		x      = flag.Float64("x", 0, "player x")
		y      = flag.Float64("y", 0, "player y")
		every  = flag.Duration("every", 2*time.Second, "interval between actions")
		report = flag.Duration("report", 10*time.Second, "interval between circuit reports")
		seed   = flag.Int64("seed", time.Now().UnixNano(), "rng seed")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[probe] ", log.LstdFlags|log.Lmicroseconds)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c, err := client.Dial(ctx, *url, client.Options{Name: *name, Pos: [2]float64{*x, *y}, Logger: logger})
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer c.Close()
	w := c.Welcome()
	logger.Printf("WELCOME player=%s world=%s tick_rate=%d range=%.2f seq=%d", w.PlayerID, w.WorldID, w.TickRateHz, w.ConnectRange, c.Seq())

	go func() {
		for a := range c.Acks() {
			if a.Accepted {
				logger.Printf("ACK %s ok wire=%d tick=%d", a.AckFor, a.WireID, a.ServerTick)
			} else {
				logger.Printf("ACK %s rejected %s: %s", a.AckFor, a.Code, a.Message)
			}
		}
	}()

	r := rand.New(rand.NewSource(*seed))
	self := mgl64.Vec2{*x, *y}
	act := time.NewTicker(*every)
	defer act.Stop()
	rep := time.NewTicker(*report)
	defer rep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.Done():
			logger.Printf("session closed: %v", c.Err())
			return
		case <-rep.C:
			logReport(logger, c)
		case <-act.C:
			if err := poke(r, c, self, w.ConnectRange); err != nil {
				logger.Printf("action: %v", err)
			}
		}
	}
}

// poke either wires two devices in range or cuts a random wire, so a probe
// left running keeps circuits merging and splitting.
func poke(r *rand.Rand, c *client.Client, self mgl64.Vec2, reach float64) error {
	var devices, near []model.EntityID
	var wires []model.WireID
	c.View(func(m *mirror.Mirror) {
		for _, d := range m.Devices() {
			devices = append(devices, d.Entity)
		}
		for _, v := range m.AllCircuits() {
			wires = append(wires, v.Wires...)
		}
	})
	for _, id := range devices {
		if p, ok := c.Position(id); ok && p.Sub(self).Len() <= reach {
			near = append(near, id)
		}
	}
	if len(wires) > 0 && (len(near) < 2 || r.Intn(3) == 0) {
		_, err := c.Disconnect(wires[r.Intn(len(wires))])
		return err
	}
	if len(near) < 2 {
		return nil
	}
	i := r.Intn(len(near))
	j := r.Intn(len(near) - 1)
	if j >= i {
		j++
	}
	_, err := c.Connect(near[i], near[j])
	return err
}

func logReport(logger *log.Logger, c *client.Client) {
	c.View(func(m *mirror.Mirror) {
		views := m.AllCircuits()
		logger.Printf("seq=%d resyncs=%d devices=%d circuits=%d", c.Seq(), c.Resyncs(), len(m.Devices()), len(views))
		for _, v := range views {
			logger.Printf("  %s wires=%d supply=%d demand=%d", v.ID, len(v.Wires), v.TotalSupply, v.TotalDemand)
		}
	})
}
