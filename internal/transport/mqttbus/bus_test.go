package mqttbus

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"wiregrid.ai/internal/protocol"
	"wiregrid.ai/internal/sim/world"
)

type fakeToken struct{ err error }

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	fail string
}

func (p *fakePublisher) Publish(topic string, _ byte, retained bool, payload interface{}) pahomqtt.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	if topic == p.fail {
		return fakeToken{err: errors.New("broker said no")}
	}
	p.msgs = append(p.msgs, published{topic: topic, retained: retained, payload: payload.([]byte)})
	return fakeToken{}
}

func TestBus_PublishesStreamAndStats(t *testing.T) {
	pub := &fakePublisher{fail: "wg/w1/never"}
	b := New(pub, "wg", "w1", 1, nil)

	_ = b.WriteEntry(world.JournalEntry{Tick: 3, Seq: 1, Events: []protocol.CircuitEvent{
		{Kind: protocol.EventWireConnected, EntityA: 1, EntityB: 2, WireID: 1, CircuitID: 1},
	}})
	_ = b.WriteStats(10, []protocol.CircuitStats{{CircuitID: 1, Wires: 1, TotalSupply: 5, TotalDemand: 2}})
	b.enqueue("never", false, []byte("x"))
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if len(pub.msgs) != 3 {
		t.Fatalf("published %d messages: %+v", len(pub.msgs), pub.msgs)
	}
	if pub.msgs[0].topic != "wg/w1/events" || pub.msgs[0].retained {
		t.Fatalf("events message: %+v", pub.msgs[0])
	}
	var e world.JournalEntry
	if err := json.Unmarshal(pub.msgs[0].payload, &e); err != nil || e.Seq != 1 || len(e.Events) != 1 {
		t.Fatalf("events payload: %s (%v)", pub.msgs[0].payload, err)
	}
	if pub.msgs[1].topic != "wg/w1/stats" || !pub.msgs[1].retained {
		t.Fatalf("stats message: %+v", pub.msgs[1])
	}
	if pub.msgs[2].topic != "wg/w1/status" || string(pub.msgs[2].payload) != "offline" {
		t.Fatalf("status message: %+v", pub.msgs[2])
	}

	st := b.Stats()
	if st.Published != 3 || st.Failed != 1 || st.Dropped != 0 {
		t.Fatalf("stats=%+v", st)
	}

	// Writes after close are ignored.
	_ = b.WriteEntry(world.JournalEntry{Seq: 2})
	if b.Stats().Dropped != 0 {
		t.Fatalf("closed bus should ignore writes")
	}
}
