package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
name: lab
listen: "127.0.0.1:4000"
transport: local
tickInterval: 2ms
plugins:
  - name: demo
    params:
      rate: 60
aliases:
  /me/head: /demo/tracker/tracker/0
  /me/hand:
    source: /demo/tracker/tracker/1
    translate: [0, 0, 1]
externalDevices:
  - path: /remote/glove
    host: 10.0.0.7
    port: 3883
    descriptor:
      interfaces:
        tracker: {count: 5}
discovery:
  enabled: true
`

const sampleJSONC = `{
  // server identity
  "name": "lab",
  "transport": "shared",
  "tickInterval": "10ms",
  "plugins": [{"name": "demo"}], /* no params */
  "aliases": {"/me/head": "/demo/tracker/tracker/0"},
}`

func TestParseYAML(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML), FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, "lab", cfg.Name)
	assert.Equal(t, TransportLocal, cfg.Transport)
	assert.Equal(t, 2*time.Millisecond, cfg.TickInterval.Std())
	assert.True(t, cfg.Discovery.Enabled)
	require.Len(t, cfg.Plugins, 1)

	params, err := cfg.Plugins[0].ParamsJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"rate": 60}`, string(params))

	head, err := cfg.AliasJSON("/me/head")
	require.NoError(t, err)
	assert.Equal(t, "/demo/tracker/tracker/0", head)

	hand, err := cfg.AliasJSON("/me/hand")
	require.NoError(t, err)
	assert.JSONEq(t, `{"source": "/demo/tracker/tracker/1", "translate": [0, 0, 1]}`, hand)

	require.Len(t, cfg.ExternalDevices, 1)
	desc, err := cfg.ExternalDevices[0].DescriptorJSON()
	require.NoError(t, err)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(desc, &parsed))
	assert.Contains(t, parsed, "interfaces")
}

func TestParseJSONWithComments(t *testing.T) {
	cfg, err := Parse([]byte(sampleJSONC), FormatJSON)
	require.NoError(t, err)

	assert.Equal(t, TransportShared, cfg.Transport)
	assert.Equal(t, 10*time.Millisecond, cfg.TickInterval.Std())
	assert.Equal(t, ":3883", cfg.Listen, "unset fields keep defaults")

	params, err := cfg.Plugins[0].ParamsJSON()
	require.NoError(t, err)
	assert.Nil(t, params)
}

func TestParseEmptyYAMLGivesDefaults(t *testing.T) {
	cfg, err := Parse(nil, FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"bad transport", func(c *Config) { c.Transport = "udp" }, ErrInvalidTransport},
		{"zero tick", func(c *Config) { c.TickInterval = 0 }, ErrInvalidTick},
		{"unnamed plugin", func(c *Config) { c.Plugins = []PluginConfig{{}} }, ErrPluginName},
		{"relative alias", func(c *Config) { c.Aliases = map[string]any{"me/head": "/a/b"} }, ErrAliasPath},
		{"deep device path", func(c *Config) { c.ExternalDevices = []ExternalDevice{{Path: "/a/b/c"}} }, ErrDevicePath},
		{"short device path", func(c *Config) { c.ExternalDevices = []ExternalDevice{{Path: "/a"}} }, ErrDevicePath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.want)
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestUnknownFieldsRejected(t *testing.T) {
	_, err := Parse([]byte("nmae: typo\n"), FormatYAML)
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Contains(t, le.Error(), "parse YAML")
}

func TestLoadByExtension(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "server.jsonc")
	require.NoError(t, os.WriteFile(jsonPath, []byte(sampleJSONC), 0o644))

	cfg, err := Load(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "lab", cfg.Name)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("transport: carrier-pigeon\n"), 0o644))
	_, err = Load(bad)
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, bad, le.File)
	assert.ErrorIs(t, err, ErrInvalidTransport)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDurationForms(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"1.5s"`), &d))
	assert.Equal(t, 1500*time.Millisecond, d.Std())
	require.NoError(t, json.Unmarshal([]byte(`1000`), &d))
	assert.Equal(t, time.Microsecond, d.Std())
	assert.Error(t, json.Unmarshal([]byte(`"soon"`), &d))

	out, err := json.Marshal(Duration(5 * time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, `"5ms"`, string(out))
}
