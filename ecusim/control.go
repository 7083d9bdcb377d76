package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigError is fatal at startup; the run loop is never entered.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("config %s: %s", e.Field, e.Reason) }

// Mode selects the scenario generator. Resolved once at startup; an
// unrecognized mode string never reaches the run loop.
type Mode int

const (
	ModeLoop Mode = iota
	ModeKOEO
	ModeIdle
	ModePull
	ModeCustom
	ModeSilent
)

func (m Mode) String() string {
	switch m {
	case ModeLoop:
		return "loop"
	case ModeKOEO:
		return "koeo"
	case ModeIdle:
		return "idle"
	case ModePull:
		return "pull"
	case ModeCustom:
		return "custom"
	case ModeSilent:
		return "silent"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "loop":
		return ModeLoop, nil
	case "koeo":
		return ModeKOEO, nil
	case "idle":
		return ModeIdle, nil
	case "pull":
		return ModePull, nil
	case "custom":
		return ModeCustom, nil
	case "silent":
		return ModeSilent, nil
	default:
		return 0, &ConfigError{Field: "mode", Reason: fmt.Sprintf("unknown mode %q", s)}
	}
}

// Supported transport backends.
const (
	BackendSocketCAN = "socketcan"
	BackendSLCAN     = "slcan"
	BackendVirtual   = "virtual"
)

const (
	defaultHz      = 50.0
	defaultBitrate = 500_000
	minBitrate     = 10_000
	maxBitrate     = 2_000_000

	// Control documents beyond this size are ignored, not parsed.
	maxControlBytes = 256 * 1024
)

// ControlConfig is the externally supplied run configuration. The JSON form
// (control.json) is the contract with the launching GUI/web shell; the YAML
// form is accepted for hand-written bench setups.
type ControlConfig struct {
	ProfileID   string             `json:"profile_id" yaml:"profile_id"`
	Backend     string             `json:"backend" yaml:"backend"`
	Iface       string             `json:"iface" yaml:"iface"`
	Channel     int                `json:"channel" yaml:"channel"`
	Port        string             `json:"port" yaml:"port"`
	SerialBaud  int                `json:"serial_baud" yaml:"serial_baud"`
	SkipBitrate bool               `json:"skip_bitrate" yaml:"skip_bitrate"`
	Bitrate     int                `json:"bitrate" yaml:"bitrate"`
	Hz          float64            `json:"hz" yaml:"hz"`
	Mode        string             `json:"mode" yaml:"mode"`
	Custom      map[string]float64 `json:"custom,omitempty" yaml:"custom,omitempty"`
}

func DefaultControl() ControlConfig {
	return ControlConfig{
		ProfileID:  "ms_simplified",
		Backend:    BackendSocketCAN,
		Iface:      "vcan0",
		SerialBaud: 115200,
		Bitrate:    defaultBitrate,
		Hz:         defaultHz,
		Mode:       "loop",
	}
}

// LoadControl reads a control document; missing file, oversized file, or a
// parse failure all fall back to defaults with a logged warning. Missing keys
// inside a valid document keep their defaults.
func LoadControl(path string, log logf) ControlConfig {
	cfg := DefaultControl()
	if path == "" {
		return cfg
	}

	st, err := os.Stat(path)
	if err != nil {
		log("no control document at %s, using defaults", path)
		return cfg
	}
	if st.Size() > maxControlBytes {
		log("control document too large (%d bytes), using defaults: %s", st.Size(), path)
		return cfg
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log("cannot read control document %s: %v, using defaults", path, err)
		return cfg
	}

	if err := unmarshalControl(path, data, &cfg); err != nil {
		log("cannot parse control document %s: %v, using defaults", path, err)
		return DefaultControl()
	}
	return cfg
}

func unmarshalControl(path string, data []byte, cfg *ControlConfig) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// Validate applies the startup checks that must fail fast.
func (c *ControlConfig) Validate() error {
	if c.Hz <= 0 {
		return &ConfigError{Field: "hz", Reason: fmt.Sprintf("must be > 0, got %g", c.Hz)}
	}
	if c.Bitrate < minBitrate || c.Bitrate > maxBitrate {
		return &ConfigError{Field: "bitrate", Reason: fmt.Sprintf("out of allowed range (%d..%d): %d", minBitrate, maxBitrate, c.Bitrate)}
	}
	switch c.Backend {
	case BackendSocketCAN, BackendVirtual:
	case BackendSLCAN:
		if c.Port == "" {
			return &ConfigError{Field: "port", Reason: "slcan backend requires a serial port"}
		}
	default:
		return &ConfigError{Field: "backend", Reason: fmt.Sprintf("unsupported backend %q", c.Backend)}
	}
	if _, err := ParseMode(c.Mode); err != nil {
		return err
	}
	return nil
}

// mergeFlags overrides control fields with any flag the user set explicitly.
func mergeFlags(cfg *ControlConfig, fs *flag.FlagSet, fv *flagValues) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Backend = fv.backend
		case "iface":
			cfg.Iface = fv.iface
		case "channel":
			cfg.Channel = fv.channel
		case "port":
			cfg.Port = fv.port
		case "serial-baud":
			cfg.SerialBaud = fv.serialBaud
		case "skip-bitrate":
			cfg.SkipBitrate = fv.skipBitrate
		case "bitrate":
			cfg.Bitrate = fv.bitrate
		case "hz":
			cfg.Hz = fv.hz
		case "mode":
			cfg.Mode = fv.mode
		}
	})
}

// logf keeps config loading decoupled from the logger implementation.
type logf func(msg string, args ...any)
