// Package config loads the daemon configuration from YAML or TOML files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/blelink/blelink-go/pkg/availability"
	"github.com/blelink/blelink-go/pkg/connection"
	"github.com/blelink/blelink-go/pkg/registry"
	"github.com/blelink/blelink-go/pkg/switches"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Format is a configuration file format.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// Defaults.
const (
	DefaultListen  = ":8080"
	DefaultAdapter = "hci0"
)

// Characteristic is one writable characteristic exposed as a switch.
type Characteristic struct {
	Name string `yaml:"name" toml:"name" json:"name"`
	UUID string `yaml:"uuid" toml:"uuid" json:"uuid"`
}

// Device is one configured peripheral.
type Device struct {
	Name             string           `yaml:"name" toml:"name" json:"name"`
	MACAddress       string           `yaml:"mac_address" toml:"mac_address" json:"mac_address"`
	ServiceUUID      string           `yaml:"service_uuid" toml:"service_uuid" json:"service_uuid,omitempty"`
	Manufacturer     string           `yaml:"manufacturer" toml:"manufacturer" json:"manufacturer,omitempty"`
	Model            string           `yaml:"model" toml:"model" json:"model,omitempty"`
	DisconnectDelay  Duration         `yaml:"disconnect_delay" toml:"disconnect_delay" json:"disconnect_delay"`
	UnavailableAfter Duration         `yaml:"unavailable_after" toml:"unavailable_after" json:"unavailable_after"`
	Characteristics  []Characteristic `yaml:"characteristics" toml:"characteristics" json:"characteristics"`
}

// Config is the daemon configuration.
type Config struct {
	Listen      string `yaml:"listen" toml:"listen"`
	LogLevel    string `yaml:"log_level" toml:"log_level"`
	LogFormat   string `yaml:"log_format" toml:"log_format"`
	ProtocolLog string `yaml:"protocol_log" toml:"protocol_log"`

	// State is the switch state store path. A .db or .sqlite suffix
	// selects SQLite, anything else a JSON file.
	State string `yaml:"state" toml:"state"`

	Adapter string `yaml:"adapter" toml:"adapter"`

	// FastPath enables writes over an already established host connection.
	FastPath bool `yaml:"fast_path" toml:"fast_path"`

	// DiscoverProxies browses the network for Bluetooth proxies.
	DiscoverProxies bool `yaml:"discover_proxies" toml:"discover_proxies"`

	RegistryStaleAfter Duration `yaml:"registry_stale_after" toml:"registry_stale_after"`

	Devices []Device `yaml:"devices" toml:"devices"`
}

// Default returns a configuration with defaults and no devices.
func Default() *Config {
	return &Config{
		Listen:             DefaultListen,
		LogLevel:           "info",
		LogFormat:          "text",
		Adapter:            DefaultAdapter,
		RegistryStaleAfter: Duration(registry.DefaultStaleAfter),
	}
}

// LoadError describes a configuration file that could not be loaded.
type LoadError struct {
	File    string
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	if e.Cause != nil {
		return e.File + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.File + ": " + e.Message
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// FormatFor picks the format from the file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("unsupported config extension %q", filepath.Ext(path))
	}
}

// Load reads, normalizes and validates the file at path.
func Load(path string) (*Config, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "unknown format", Cause: err}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}
	cfg, err := Parse(data, format)
	if err != nil {
		return nil, &LoadError{File: path, Message: "invalid config", Cause: err}
	}
	return cfg, nil
}

// Parse decodes data over the defaults, then normalizes and validates it.
func Parse(data []byte, format Format) (*Config, error) {
	cfg := Default()
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case FormatTOML:
		meta, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("%w: unknown key %q", ErrInvalid, undecoded[0].String())
		}
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Normalize fills per-device defaults, upper-cases addresses and expands
// characteristic UUIDs to their canonical 128-bit form.
func (c *Config) Normalize() error {
	for i := range c.Devices {
		d := &c.Devices[i]
		d.MACAddress = registry.NormalizeAddress(d.MACAddress)
		d.Name = strings.TrimSpace(d.Name)
		if d.Name == "" {
			d.Name = "BLE Device " + d.MACAddress
		}
		if d.DisconnectDelay == 0 {
			d.DisconnectDelay = Duration(connection.DefaultLinger)
		}
		if d.UnavailableAfter == 0 {
			d.UnavailableAfter = Duration(availability.DefaultUnavailableAfter)
		}
		if d.ServiceUUID != "" {
			u, err := ExpandUUID(d.ServiceUUID)
			if err != nil {
				return fmt.Errorf("%w: device %s: service_uuid: %w", ErrInvalid, d.MACAddress, err)
			}
			d.ServiceUUID = u
		}
		for j := range d.Characteristics {
			ch := &d.Characteristics[j]
			u, err := ExpandUUID(ch.UUID)
			if err != nil {
				return fmt.Errorf("%w: device %s: characteristic %q: %w", ErrInvalid, d.MACAddress, ch.Name, err)
			}
			ch.UUID = u
			ch.Name = strings.TrimSpace(ch.Name)
			if ch.Name == "" {
				ch.Name = u[4:8]
			}
		}
	}
	return nil
}

// Validate checks a normalized configuration.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalid, c.LogFormat)
	}
	if c.RegistryStaleAfter <= 0 {
		return fmt.Errorf("%w: registry_stale_after must be positive", ErrInvalid)
	}

	seen := make(map[string]bool, len(c.Devices))
	for _, d := range c.Devices {
		if _, err := net.ParseMAC(d.MACAddress); err != nil {
			return fmt.Errorf("%w: device %q: invalid mac_address %q", ErrInvalid, d.Name, d.MACAddress)
		}
		if seen[d.MACAddress] {
			return fmt.Errorf("%w: duplicate device %s", ErrInvalid, d.MACAddress)
		}
		seen[d.MACAddress] = true

		if d.DisconnectDelay <= 0 {
			return fmt.Errorf("%w: device %s: disconnect_delay must be positive", ErrInvalid, d.MACAddress)
		}
		if d.UnavailableAfter <= d.DisconnectDelay {
			return fmt.Errorf("%w: device %s: unavailable_after (%s) must exceed disconnect_delay (%s)",
				ErrInvalid, d.MACAddress, d.UnavailableAfter, d.DisconnectDelay)
		}
		if len(d.Characteristics) == 0 {
			return fmt.Errorf("%w: device %s: at least one characteristic is required", ErrInvalid, d.MACAddress)
		}
		uuids := make(map[string]bool, len(d.Characteristics))
		ids := make(map[string]string, len(d.Characteristics))
		for _, ch := range d.Characteristics {
			if uuids[ch.UUID] {
				return fmt.Errorf("%w: device %s: duplicate characteristic %s", ErrInvalid, d.MACAddress, ch.UUID)
			}
			uuids[ch.UUID] = true
			id := switches.UniqueID(d.MACAddress, ch.UUID)
			if other, ok := ids[id]; ok {
				return fmt.Errorf("%w: device %s: characteristics %s and %s share switch id %s",
					ErrInvalid, d.MACAddress, other, ch.UUID, id)
			}
			ids[id] = ch.UUID
		}
	}
	return nil
}

// Device returns the device with the given address.
func (c *Config) Device(address string) (Device, bool) {
	address = registry.NormalizeAddress(address)
	for _, d := range c.Devices {
		if d.MACAddress == address {
			return d, true
		}
	}
	return Device{}, false
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// Duration is a time.Duration written as a Go duration string ("15s") in
// config files.
type Duration time.Duration

// D returns the duration as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// UnmarshalYAML accepts a duration string or a number of seconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var secs float64
	if node.Tag == "!!int" || node.Tag == "!!float" {
		if err := node.Decode(&secs); err != nil {
			return err
		}
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	return d.UnmarshalText([]byte(node.Value))
}
