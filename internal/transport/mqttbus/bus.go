// Package mqttbus mirrors the circuit event stream and stats onto MQTT topics:
//
//	<prefix>/<world>/events   one JournalEntry per message
//	<prefix>/<world>/stats    latest STATS sample, retained
//	<prefix>/<world>/status   "online" / "offline", retained, also the will
package mqttbus

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"wiregrid.ai/internal/protocol"
	"wiregrid.ai/internal/sim/tuning"
	"wiregrid.ai/internal/sim/world"
)

var ErrDisabled = errors.New("mqttbus: disabled")

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	keepAlive      = 60 * time.Second
)

// Publisher is the part of a paho client the bus uses.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
}

type message struct {
	topic    string
	retained bool
	payload  []byte
}

// Bus publishes from its own goroutine so a slow broker never stalls a tick.
// Messages are dropped when the queue is full.
type Bus struct {
	pub    Publisher
	client pahomqtt.Client
	log    *log.Logger
	qos    byte
	base   string

	ch     chan message
	wg     sync.WaitGroup
	once   sync.Once
	closed atomic.Bool

	dropped   atomic.Uint64
	published atomic.Uint64
	failed    atomic.Uint64
}

func New(pub Publisher, prefix, worldID string, qos byte, logger *log.Logger) *Bus {
	b := &Bus{
		pub:  pub,
		log:  logger,
		qos:  qos,
		base: fmt.Sprintf("%s/%s", prefix, worldID),
		ch:   make(chan message, 4096),
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.loop()
	}()
	return b
}

// Dial connects to the broker with a retained "offline" will and announces
// the world as online.
func Dial(cfg tuning.MQTTConfig, worldID string, logger *log.Logger) (*Bus, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	base := fmt.Sprintf("%s/%s", cfg.TopicPrefix, worldID)

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)
	opts.SetWill(base+"/status", "offline", byte(cfg.QoS), true)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		if logger != nil {
			logger.Printf("mqtt connection lost: %v", err)
		}
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqttbus: connect %s: timeout after %v", cfg.Broker, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqttbus: connect %s: %w", cfg.Broker, err)
	}

	b := New(client, cfg.TopicPrefix, worldID, byte(cfg.QoS), logger)
	b.client = client
	b.enqueue("status", true, []byte("online"))
	return b, nil
}

func (b *Bus) WriteEntry(e world.JournalEntry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	b.enqueue("events", false, payload)
	return nil
}

func (b *Bus) WriteStats(tick uint64, stats []protocol.CircuitStats) error {
	payload, err := json.Marshal(protocol.StatsMsg{
		Type:            protocol.TypeStats,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		Circuits:        stats,
	})
	if err != nil {
		return err
	}
	b.enqueue("stats", true, payload)
	return nil
}

type Stats struct {
	Published uint64 `json:"published"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
}

func (b *Bus) Stats() Stats {
	if b == nil {
		return Stats{}
	}
	return Stats{Published: b.published.Load(), Failed: b.failed.Load(), Dropped: b.dropped.Load()}
}

// Close drains the queue, announces "offline" and disconnects. Call it after
// the world has stopped writing.
func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	b.once.Do(func() {
		b.enqueue("status", true, []byte("offline"))
		b.closed.Store(true)
		close(b.ch)
		b.wg.Wait()
		if b.client != nil {
			b.client.Disconnect(1000)
		}
	})
	return nil
}

func (b *Bus) enqueue(suffix string, retained bool, payload []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.ch <- message{topic: b.base + "/" + suffix, retained: retained, payload: payload}:
	default:
		b.dropped.Add(1)
	}
}

func (b *Bus) loop() {
	for m := range b.ch {
		token := b.pub.Publish(m.topic, b.qos, m.retained, m.payload)
		if !token.WaitTimeout(publishTimeout) {
			b.failed.Add(1)
			b.logf("mqtt publish %s: timeout after %v", m.topic, publishTimeout)
			continue
		}
		if err := token.Error(); err != nil {
			b.failed.Add(1)
			b.logf("mqtt publish %s: %v", m.topic, err)
			continue
		}
		b.published.Add(1)
	}
}

func (b *Bus) logf(format string, args ...any) {
	if b.log != nil {
		b.log.Printf(format, args...)
	}
}
