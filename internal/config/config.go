// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/floodstack/internal/core"
	"firestige.xyz/floodstack/internal/link"
	"firestige.xyz/floodstack/internal/log"
	"firestige.xyz/floodstack/internal/stack"
)

// GlobalConfig represents the top-level configuration.
// Maps to the `floodstack:` root key in YAML.
type GlobalConfig struct {
	Node      NodeConfig       `mapstructure:"node" yaml:"node"`
	Transport TransportConfig  `mapstructure:"transport" yaml:"transport"`
	Fragment  FragmentConfig   `mapstructure:"fragment" yaml:"fragment"`
	Router    RouterConfig     `mapstructure:"router" yaml:"router"`
	Link      LinkConfig       `mapstructure:"link" yaml:"link"`
	Metrics   MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Log       log.LoggerConfig `mapstructure:"log" yaml:"log"`
}

// ─── Node Identity ───

// NodeConfig identifies the node and the link geometry.
type NodeConfig struct {
	Address  string        `mapstructure:"address" yaml:"address"`     // 40-bit decimal address
	MTU      int           `mapstructure:"mtu" yaml:"mtu"`             // Receive buffer of the remote radio
	FrameGap time.Duration `mapstructure:"frame_gap" yaml:"frame_gap"` // Pause between frames, e.g. "200ms"
}

// ─── Layers ───

// TransportConfig configures the transport framer.
type TransportConfig struct {
	ChunkSize      int           `mapstructure:"chunk_size" yaml:"chunk_size"`
	PacingTimeout  time.Duration `mapstructure:"pacing_timeout" yaml:"pacing_timeout"`
	ReceiveTimeout time.Duration `mapstructure:"receive_timeout" yaml:"receive_timeout"`
}

// FragmentConfig configures the fragmentation layer.
type FragmentConfig struct {
	StreamTimeout time.Duration `mapstructure:"stream_timeout" yaml:"stream_timeout"`
}

// RouterConfig configures the flood router and its tables.
type RouterConfig struct {
	MaxHops       int           `mapstructure:"max_hops" yaml:"max_hops"`
	DedupCapacity int           `mapstructure:"dedup_capacity" yaml:"dedup_capacity"`
	NeighborTTL   time.Duration `mapstructure:"neighbor_ttl" yaml:"neighbor_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	ForwardQueue  int           `mapstructure:"forward_queue" yaml:"forward_queue"`
}

// ─── Link ───

// LinkConfig selects the byte link the node runs on.
type LinkConfig struct {
	Type   string           `mapstructure:"type" yaml:"type"` // serial | udp
	Serial SerialLinkConfig `mapstructure:"serial" yaml:"serial"`
	UDP    UDPLinkConfig    `mapstructure:"udp" yaml:"udp"`
}

// SerialLinkConfig configures a serial radio.
type SerialLinkConfig struct {
	Device      string        `mapstructure:"device" yaml:"device"`
	BaudRate    int           `mapstructure:"baud_rate" yaml:"baud_rate"`
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
}

// UDPLinkConfig configures a UDP link emulating the radio.
type UDPLinkConfig struct {
	Listen string   `mapstructure:"listen" yaml:"listen"`
	Peers  []string `mapstructure:"peers" yaml:"peers"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `floodstack: ...`.
type configRoot struct {
	Floodstack GlobalConfig `mapstructure:"floodstack"`
}

// Load loads configuration from file. An empty path loads defaults and
// environment overrides only.
// The YAML file uses `floodstack:` as root key; env vars use the FLOODSTACK_
// prefix (e.g., FLOODSTACK_NODE_ADDRESS).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// No explicit env prefix: key "floodstack.node.address" maps to
	// FLOODSTACK_NODE_ADDRESS through the key replacer.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %v: %w", err, core.ErrConfigInvalid)
	}
	cfg := root.Floodstack

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use the "floodstack." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Node defaults
	v.SetDefault("floodstack.node.address", "")
	v.SetDefault("floodstack.node.mtu", stack.DefaultMTU)
	v.SetDefault("floodstack.node.frame_gap", "0s")

	// Layer defaults
	v.SetDefault("floodstack.transport.chunk_size", 19)
	v.SetDefault("floodstack.transport.pacing_timeout", "1500ms")
	v.SetDefault("floodstack.transport.receive_timeout", "5000ms")
	v.SetDefault("floodstack.fragment.stream_timeout", "20000ms")
	v.SetDefault("floodstack.router.max_hops", 3)
	v.SetDefault("floodstack.router.dedup_capacity", 100)
	v.SetDefault("floodstack.router.neighbor_ttl", "5m")
	v.SetDefault("floodstack.router.sweep_interval", "30s")
	v.SetDefault("floodstack.router.forward_queue", stack.DefaultForwardQueue)

	// Link defaults
	v.SetDefault("floodstack.link.type", "serial")
	v.SetDefault("floodstack.link.serial.device", "/dev/ttyUSB0")
	v.SetDefault("floodstack.link.serial.baud_rate", 9600)
	v.SetDefault("floodstack.link.serial.read_timeout", "100ms")
	v.SetDefault("floodstack.link.udp.listen", ":7700")

	// Metrics defaults
	v.SetDefault("floodstack.metrics.enabled", true)
	v.SetDefault("floodstack.metrics.listen", ":9091")
	v.SetDefault("floodstack.metrics.path", "/metrics")

	// Log defaults
	v.SetDefault("floodstack.log.level", log.DefaultLevel)
	v.SetDefault("floodstack.log.pattern", log.DefaultPattern)
	v.SetDefault("floodstack.log.time", log.DefaultTime)
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be trace/debug/info/warn/error): %w", cfg.Log.Level, core.ErrConfigInvalid)
	}
	if len(cfg.Log.Appenders) == 0 {
		cfg.Log.Appenders = []log.AppenderConfig{{Type: "console"}}
	}

	// ── Link validation ──
	cfg.Link.Type = strings.ToLower(cfg.Link.Type)
	switch cfg.Link.Type {
	case "serial":
		if cfg.Link.Serial.Device == "" {
			return fmt.Errorf("link.serial.device is required for a serial link: %w", core.ErrConfigInvalid)
		}
		if cfg.Link.Serial.BaudRate <= 0 {
			return fmt.Errorf("invalid link.serial.baud_rate: %d: %w", cfg.Link.Serial.BaudRate, core.ErrConfigInvalid)
		}
	case "udp":
		if cfg.Link.UDP.Listen == "" {
			return fmt.Errorf("link.udp.listen is required for a udp link: %w", core.ErrConfigInvalid)
		}
	default:
		return fmt.Errorf("unsupported link.type: %s (must be serial/udp): %w", cfg.Link.Type, core.ErrConfigInvalid)
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required when metrics.enabled=true: %w", core.ErrConfigInvalid)
	}

	// ── Stack validation ──
	// An unset address is allowed here so `validate` works on shared files;
	// commands that start a node require it.
	if cfg.Node.Address == "" {
		return nil
	}
	_, err := cfg.StackConfig()
	return err
}

// LocalAddress parses node.address.
func (cfg *GlobalConfig) LocalAddress() (core.Address, error) {
	if cfg.Node.Address == "" {
		return 0, fmt.Errorf("node.address is required (set FLOODSTACK_NODE_ADDRESS or floodstack.node.address): %w", core.ErrConfigInvalid)
	}
	addr, err := core.ParseAddress(cfg.Node.Address)
	if err != nil {
		return 0, fmt.Errorf("node.address: %v: %w", err, core.ErrConfigInvalid)
	}
	return addr, nil
}

// StackConfig converts the configuration into a validated stack.Config.
func (cfg *GlobalConfig) StackConfig() (stack.Config, error) {
	local, err := cfg.LocalAddress()
	if err != nil {
		return stack.Config{}, err
	}

	sc := stack.DefaultConfig(local)
	sc.MTU = cfg.Node.MTU
	sc.ChunkSize = cfg.Transport.ChunkSize
	sc.MaxHops = cfg.Router.MaxHops
	sc.DedupCapacity = cfg.Router.DedupCapacity
	sc.ForwardQueue = cfg.Router.ForwardQueue

	sc.FrameGap = cfg.Node.FrameGap
	sc.PacingTimeout = cfg.Transport.PacingTimeout
	sc.ReceiveTimeout = cfg.Transport.ReceiveTimeout
	sc.StreamTimeout = cfg.Fragment.StreamTimeout
	sc.NeighborTTL = cfg.Router.NeighborTTL
	sc.SweepInterval = cfg.Router.SweepInterval

	if err := sc.Validate(); err != nil {
		return stack.Config{}, err
	}
	return sc, nil
}

// SerialConfig converts link.serial into a link.SerialConfig.
func (cfg *GlobalConfig) SerialConfig() link.SerialConfig {
	return link.SerialConfig{
		Device:      cfg.Link.Serial.Device,
		BaudRate:    cfg.Link.Serial.BaudRate,
		ReadTimeout: cfg.Link.Serial.ReadTimeout,
	}
}
