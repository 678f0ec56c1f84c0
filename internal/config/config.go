// Package config loads node configuration from YAML and provides the three
// stock deployments as presets.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/notnil/cannode/node"
	"github.com/notnil/cannode/uavcan"
)

// File is the on-disk configuration. Zero values fall back to
// node.DefaultConfig where that makes sense.
type File struct {
	Node      NodeSection      `yaml:"node"`
	Bus       BusSection       `yaml:"bus"`
	BringUp   BringUpSection   `yaml:"bringup"`
	TimeSync  TimeSyncSection  `yaml:"time_sync"`
	Status    StatusSection    `yaml:"status"`
	Service   ServiceSection   `yaml:"service"`
	Dispatch  DispatchSection  `yaml:"dispatch"`
	Indicator IndicatorSection `yaml:"indicator"`
	Metrics   MetricsSection   `yaml:"metrics"`
	MQTT      MQTTSection      `yaml:"mqtt"`
}

type NodeSection struct {
	ID       uint8  `yaml:"id"`
	Name     string `yaml:"name"`
	UniqueID string `yaml:"unique_id,omitempty"`
}

type BusSection struct {
	// Driver is "socketcan" or "loopback".
	Driver    string `yaml:"driver"`
	Interface string `yaml:"interface,omitempty"`
	Bitrate   uint32 `yaml:"bitrate"`
	LogFrames bool   `yaml:"log_frames,omitempty"`

	// RestartMs is the SocketCAN bus-off recovery delay; 0 disables
	// automatic recovery and unset leaves the interface as it is.
	RestartMs  *uint32 `yaml:"restart_ms,omitempty"`
	TxQueueLen int     `yaml:"txqueuelen,omitempty"`
}

type BringUpSection struct {
	RetryInterval       time.Duration `yaml:"retry_interval"`
	CheckCompatibility  *bool         `yaml:"check_compatibility,omitempty"`
	CompatibilityWindow time.Duration `yaml:"compatibility_window,omitempty"`
}

type TimeSyncSection struct {
	Role          string        `yaml:"role"`
	Seed          time.Duration `yaml:"seed,omitempty"`
	PublishPeriod time.Duration `yaml:"publish_period,omitempty"`
	MasterTimeout time.Duration `yaml:"master_timeout,omitempty"`
	LogStatus     bool          `yaml:"log_status,omitempty"`
}

type StatusSection struct {
	Period  time.Duration `yaml:"period,omitempty"`
	Observe *bool         `yaml:"observe,omitempty"`
}

type ServiceSection struct {
	Target  uint8         `yaml:"target,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
	Serve   bool          `yaml:"serve,omitempty"`
}

type DispatchSection struct {
	SpinBudget     time.Duration `yaml:"spin_budget"`
	LogDiagnostics bool          `yaml:"log_diagnostics,omitempty"`
}

type IndicatorSection struct {
	BlinkInterval time.Duration `yaml:"blink_interval,omitempty"`
	ActiveLow     bool          `yaml:"active_low,omitempty"`
	SerialPort    string        `yaml:"serial_port,omitempty"`
	Baud          int           `yaml:"baud,omitempty"`
}

type MetricsSection struct {
	Listen string `yaml:"listen,omitempty"`
}

type MQTTSection struct {
	Broker      string `yaml:"broker,omitempty"`
	TopicPrefix string `yaml:"topic_prefix,omitempty"`
	ClientID    string `yaml:"client_id,omitempty"`
}

var ErrUnknownPreset = errors.New("config: unknown preset")

// Load reads and parses a configuration file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML, rejecting unknown fields.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	return &f, nil
}

// Marshal renders f as YAML.
func (f *File) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NodeConfig converts the file into a validated node.Config.
func (f *File) NodeConfig() (node.Config, error) {
	cfg := node.DefaultConfig()
	cfg.Identity = node.Identity{ID: uavcan.NodeID(f.Node.ID), Name: f.Node.Name}
	if f.Node.UniqueID != "" {
		id, err := uuid.Parse(f.Node.UniqueID)
		if err != nil {
			return node.Config{}, fmt.Errorf("config: node.unique_id: %w", err)
		}
		cfg.Identity.UniqueID = id
	}

	if f.Bus.Bitrate != 0 {
		cfg.Bitrate = f.Bus.Bitrate
	}
	if f.BringUp.RetryInterval != 0 {
		cfg.RetryInterval = f.BringUp.RetryInterval
	}
	if f.BringUp.CheckCompatibility != nil {
		cfg.CheckCompatibility = *f.BringUp.CheckCompatibility
	}
	if f.BringUp.CompatibilityWindow != 0 {
		cfg.CompatibilityWindow = f.BringUp.CompatibilityWindow
	}

	role, err := node.ParseRole(f.TimeSync.Role)
	if err != nil {
		return node.Config{}, fmt.Errorf("config: time_sync.role: %w", err)
	}
	cfg.Role = role
	if f.TimeSync.Seed != 0 {
		cfg.TimeSyncSeed = f.TimeSync.Seed
	}
	cfg.PublishPeriod = f.TimeSync.PublishPeriod
	if f.TimeSync.MasterTimeout != 0 {
		cfg.MasterTimeout = f.TimeSync.MasterTimeout
	}
	cfg.LogTrackerStatus = f.TimeSync.LogStatus

	if f.Status.Period != 0 {
		cfg.StatusPeriod = f.Status.Period
	}
	if f.Status.Observe != nil {
		cfg.ObserveStatus = *f.Status.Observe
	}

	cfg.ServiceTarget = uavcan.NodeID(f.Service.Target)
	if f.Service.Timeout != 0 {
		cfg.ServiceTimeout = f.Service.Timeout
	}
	cfg.ServeCalls = f.Service.Serve

	cfg.SpinBudget = f.Dispatch.SpinBudget
	cfg.LogDiagnostics = f.Dispatch.LogDiagnostics

	if f.Indicator.BlinkInterval != 0 {
		cfg.BlinkInterval = f.Indicator.BlinkInterval
	}

	if err := cfg.Validate(); err != nil {
		return node.Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate checks the sections node.Config does not cover.
func (f *File) Validate() error {
	switch f.Bus.Driver {
	case "", "loopback":
	case "socketcan":
		if f.Bus.Interface == "" {
			return fmt.Errorf("config: bus.interface is required for socketcan")
		}
	default:
		return fmt.Errorf("config: unknown bus driver %q", f.Bus.Driver)
	}
	if f.Bus.TxQueueLen < 0 {
		return fmt.Errorf("config: bus.txqueuelen must not be negative")
	}
	if f.Indicator.SerialPort != "" && f.Indicator.Baud <= 0 {
		return fmt.Errorf("config: indicator.baud must be positive with a serial port")
	}
	_, err := f.NodeConfig()
	return err
}

func boolPtr(b bool) *bool { return &b }

// can0 is the bus of the reference deployments: 1 Mbit/s with automatic
// bus-off recovery after 100ms.
func can0() BusSection {
	restart := uint32(100)
	return BusSection{Driver: "socketcan", Interface: "can0", Bitrate: 1_000_000, RestartMs: &restart}
}

var presets = map[string]func() *File{
	// Time sync master that also answers service calls from the storm node.
	"publisher": func() *File {
		return &File{
			Node:     NodeSection{ID: 1, Name: "org.cannode.publisher"},
			Bus:      can0(),
			BringUp:  BringUpSection{RetryInterval: time.Second, CheckCompatibility: boolPtr(true)},
			TimeSync: TimeSyncSection{Role: "publisher", Seed: 1234 * time.Microsecond},
			Service:  ServiceSection{Serve: true},
			Dispatch: DispatchSection{SpinBudget: time.Second, LogDiagnostics: true},
		}
	},
	// Passive follower reporting the recognised master.
	"tracker": func() *File {
		return &File{
			Node:     NodeSection{ID: 2, Name: "org.cannode.tracker"},
			Bus:      can0(),
			BringUp:  BringUpSection{RetryInterval: time.Second, CheckCompatibility: boolPtr(true)},
			TimeSync: TimeSyncSection{Role: "tracker", LogStatus: true},
			Dispatch: DispatchSection{SpinBudget: time.Second},
		}
	},
	// Follower firing one service call at node 1 every iteration.
	"storm": func() *File {
		return &File{
			Node:      NodeSection{ID: 2, Name: "org.cannode.storm"},
			Bus:       can0(),
			BringUp:   BringUpSection{RetryInterval: 3 * time.Second, CheckCompatibility: boolPtr(true)},
			TimeSync:  TimeSyncSection{Role: "tracker"},
			Service:   ServiceSection{Target: 1, Timeout: time.Second},
			Dispatch:  DispatchSection{SpinBudget: 0},
			Indicator: IndicatorSection{ActiveLow: true},
		}
	},
}

// Preset returns a fresh copy of a named preset.
func Preset(name string) (*File, error) {
	mk, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (have %v)", ErrUnknownPreset, name, PresetNames())
	}
	return mk(), nil
}

// PresetNames lists the presets in alphabetical order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
