package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TransportMode selects who the server serves.
type TransportMode string

const (
	// TransportLocal serves clients in the server process only.
	TransportLocal TransportMode = "local"

	// TransportShared also serves remote clients over TCP.
	TransportShared TransportMode = "shared"
)

// Config validation errors.
var (
	ErrInvalidTransport = errors.New("transport must be local or shared")
	ErrInvalidTick      = errors.New("tick interval must be positive")
	ErrPluginName       = errors.New("plugin entry needs a name")
	ErrAliasPath        = errors.New("alias path must be absolute")
	ErrDevicePath       = errors.New("external device path must be /plugin/device")
)

// Config is the server configuration file.
type Config struct {
	// Name identifies the server in discovery.
	Name string `yaml:"name" json:"name"`

	Listen       string        `yaml:"listen" json:"listen"`
	Transport    TransportMode `yaml:"transport" json:"transport"`
	TickInterval Duration      `yaml:"tickInterval" json:"tickInterval"`
	LogLevel     string        `yaml:"logLevel" json:"logLevel"`

	// ProtocolLog is a file receiving the CBOR routing event stream.
	ProtocolLog string `yaml:"protocolLog" json:"protocolLog"`

	Plugins []PluginConfig `yaml:"plugins" json:"plugins"`

	// Aliases maps a path to an alias: a source path string or an object
	// with a source and transform keys.
	Aliases map[string]any `yaml:"aliases" json:"aliases"`

	ExternalDevices []ExternalDevice `yaml:"externalDevices" json:"externalDevices"`
	Discovery       Discovery        `yaml:"discovery" json:"discovery"`

	// StateFile keeps aliases added at runtime across restarts.
	StateFile string `yaml:"stateFile" json:"stateFile"`
}

// PluginConfig names a registered plugin to start.
type PluginConfig struct {
	Name   string `yaml:"name" json:"name"`
	Params any    `yaml:"params" json:"params"`
}

// ParamsJSON returns the plugin parameters as JSON, or nil when unset.
func (p PluginConfig) ParamsJSON() (json.RawMessage, error) {
	if p.Params == nil {
		return nil, nil
	}
	data, err := json.Marshal(p.Params)
	if err != nil {
		return nil, fmt.Errorf("plugin %s params: %w", p.Name, err)
	}
	return data, nil
}

// ExternalDevice is a device served by another process.
type ExternalDevice struct {
	Path       string `yaml:"path" json:"path"`
	Host       string `yaml:"host" json:"host"`
	Port       int    `yaml:"port" json:"port"`
	Descriptor any    `yaml:"descriptor" json:"descriptor"`
}

// DescriptorJSON returns the descriptor as JSON. A string descriptor is
// taken as JSON text.
func (d ExternalDevice) DescriptorJSON() ([]byte, error) {
	if s, ok := d.Descriptor.(string); ok {
		return []byte(s), nil
	}
	return json.Marshal(d.Descriptor)
}

// Discovery configures mDNS advertisement.
type Discovery struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Interface string `yaml:"interface" json:"interface"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Name:         "devtree",
		Listen:       ":3883",
		Transport:    TransportShared,
		TickInterval: Duration(5 * time.Millisecond),
		LogLevel:     "info",
	}
}

// AliasJSON returns the alias at path as the string form the path tree
// stores: a bare path, or JSON for object aliases.
func (c *Config) AliasJSON(path string) (string, error) {
	v, ok := c.Aliases[path]
	if !ok {
		return "", fmt.Errorf("no alias at %s", path)
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("alias %s: %w", path, err)
	}
	return string(data), nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportLocal, TransportShared:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidTransport, c.Transport)
	}
	if c.TickInterval <= 0 {
		return ErrInvalidTick
	}
	for i, p := range c.Plugins {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("plugins[%d]: %w", i, ErrPluginName)
		}
	}
	for path := range c.Aliases {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("%w: %q", ErrAliasPath, path)
		}
	}
	for _, d := range c.ExternalDevices {
		parts := strings.Split(strings.Trim(d.Path, "/"), "/")
		if !strings.HasPrefix(d.Path, "/") || len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return fmt.Errorf("%w: %q", ErrDevicePath, d.Path)
		}
	}
	return nil
}

// Duration is a time.Duration written as a Go duration string ("5ms") or a
// number of nanoseconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return d.set(v)
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) set(v any) error {
	switch val := v.(type) {
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("duration %q: %w", val, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(int64(val))
	case int:
		*d = Duration(int64(val))
	default:
		return fmt.Errorf("duration: unexpected %T", v)
	}
	return nil
}
