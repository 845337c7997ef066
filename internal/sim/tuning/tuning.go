package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int `yaml:"tick_rate_hz"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`
	StatsEveryTicks    int `yaml:"stats_every_ticks"`

	// Player reach for remote connect requests, in world units.
	ConnectRange float64 `yaml:"connect_range"`
	// Pick radius clients use when hit-testing wires.
	PickRadius float64 `yaml:"pick_radius"`

	// Per-session outbound queue (messages).
	MaxQueue int `yaml:"max_queue"`

	Index  IndexConfig  `yaml:"index"`
	Influx InfluxConfig `yaml:"influx"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
}

type IndexConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // default: <world dir>/index/world.sqlite
}

type InfluxConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
	// Write stats every N ticks; 0 means stats_every_ticks.
	EveryTicks int `yaml:"every_ticks"`
}

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // tcp://host:1883
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         10,
		SnapshotEveryTicks: 3000,
		StatsEveryTicks:    10,
		ConnectRange:       8,
		PickRadius:         0.35,
		MaxQueue:           64,
		MQTT: MQTTConfig{
			ClientID:    "wiregrid-server",
			TopicPrefix: "wiregrid",
			QoS:         1,
		},
	}
}

// Load reads path over Defaults, so omitted keys keep their default value.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be > 0, got %d", t.TickRateHz)
	}
	if t.ConnectRange < 0 || t.PickRadius < 0 {
		return fmt.Errorf("connect_range and pick_radius must be >= 0")
	}
	if t.MQTT.QoS < 0 || t.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", t.MQTT.QoS)
	}
	if t.Influx.Enabled && (t.Influx.URL == "" || t.Influx.Bucket == "") {
		return fmt.Errorf("influx enabled without url/bucket")
	}
	if t.MQTT.Enabled && t.MQTT.Broker == "" {
		return fmt.Errorf("mqtt enabled without broker")
	}
	return nil
}
