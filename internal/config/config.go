// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads matrixctl configuration from YAML, TOML or JSON files.
//
// Invalid values are corrected rather than rejected: Normalize replaces them
// with safe defaults and reports what it changed so the caller can log it.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Thermoquad/matrixctl/pkg/purelink"
	"gopkg.in/yaml.v3"
)

// Defaults
const (
	DefaultKey              = "matrix"
	DefaultDeviceID         = "999"
	DefaultPollTimeMs       = 45000
	DefaultWarningTimeoutMs = 180000
	DefaultErrorTimeoutMs   = 300000
	DefaultGateDebounceMs   = 1000
	DefaultBaud             = 9600
	DefaultHTTPListen       = ":8080"
	DefaultMQTTBroker       = "tcp://localhost:1883"
	DefaultRedisAddress     = "localhost:6379"
)

// Transport kinds
const (
	TransportSerial    = "serial"
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"
)

// ErrUnknownFormat is returned for config files with an unsupported extension.
var ErrUnknownFormat = errors.New("unknown config file format")

// Config is the complete matrixctl configuration.
type Config struct {
	Device    DeviceConfig    `yaml:"device" toml:"device" json:"device"`
	Transport TransportConfig `yaml:"transport" toml:"transport" json:"transport"`
	Log       LogConfig       `yaml:"log" toml:"log" json:"log"`
	HTTP      HTTPConfig      `yaml:"http" toml:"http" json:"http"`
	MQTT      MQTTConfig      `yaml:"mqtt" toml:"mqtt" json:"mqtt"`
	Redis     RedisConfig     `yaml:"redis" toml:"redis" json:"redis"`
}

// EntryConfig names one input or output.
type EntryConfig struct {
	Index     int    `yaml:"index" toml:"index" json:"index"`
	Name      string `yaml:"name" toml:"name" json:"name"`
	VideoName string `yaml:"videoName" toml:"videoName" json:"videoName"`
	AudioName string `yaml:"audioName" toml:"audioName" json:"audioName"`
}

// DeviceConfig describes the switcher.
type DeviceConfig struct {
	Key               string        `yaml:"key" toml:"key" json:"key"`
	Name              string        `yaml:"name" toml:"name" json:"name"`
	DeviceID          ID            `yaml:"deviceId" toml:"deviceId" json:"deviceId"`
	Model             int           `yaml:"model" toml:"model" json:"model"`
	Frame             string        `yaml:"frame" toml:"frame" json:"frame"`
	PollTimeMs        int64         `yaml:"pollTimeMs" toml:"pollTimeMs" json:"pollTimeMs"`
	PollString        string        `yaml:"pollString" toml:"pollString" json:"pollString"`
	WarningTimeoutMs  int64         `yaml:"warningTimeoutMs" toml:"warningTimeoutMs" json:"warningTimeoutMs"`
	ErrorTimeoutMs    int64         `yaml:"errorTimeoutMs" toml:"errorTimeoutMs" json:"errorTimeoutMs"`
	GateDebounceMs    int64         `yaml:"gateDebounceMs" toml:"gateDebounceMs" json:"gateDebounceMs"`
	AudioFollowsVideo bool          `yaml:"audioFollowsVideo" toml:"audioFollowsVideo" json:"audioFollowsVideo"`
	Inputs            []EntryConfig `yaml:"inputs" toml:"inputs" json:"inputs"`
	Outputs           []EntryConfig `yaml:"outputs" toml:"outputs" json:"outputs"`
}

// ID is a router ID as written in a config file. Files may spell it as a
// number or a string; either way the decimal text is kept and Normalize
// decides whether it is usable.
type ID string

// UnmarshalJSON accepts "255" and 255.
func (id *ID) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	if text == "null" {
		text = ""
	}
	*id = ID(text)
	return nil
}

// UnmarshalTOML accepts deviceId = "255" and deviceId = 255.
func (id *ID) UnmarshalTOML(v interface{}) error {
	switch v := v.(type) {
	case string:
		*id = ID(v)
	case int64:
		*id = ID(strconv.FormatInt(v, 10))
	default:
		*id = ID(fmt.Sprint(v))
	}
	return nil
}

// UnmarshalYAML keeps the scalar text, so 255 and "255" both work.
func (id *ID) UnmarshalYAML(value *yaml.Node) error {
	switch {
	case value.Kind != yaml.ScalarNode:
		*id = ID(value.ShortTag())
	case value.ShortTag() == "!!null":
		*id = ""
	default:
		*id = ID(value.Value)
	}
	return nil
}

// TransportConfig selects how to reach the switcher.
// Kind may be left empty; it is inferred from whichever address is set.
type TransportConfig struct {
	Kind        string `yaml:"kind" toml:"kind" json:"kind"`
	Port        string `yaml:"port" toml:"port" json:"port"`
	Baud        int    `yaml:"baud" toml:"baud" json:"baud"`
	Address     string `yaml:"address" toml:"address" json:"address"`
	URL         string `yaml:"url" toml:"url" json:"url"`
	Username    string `yaml:"username" toml:"username" json:"username"`
	NoSSLVerify bool   `yaml:"noSSLVerify" toml:"noSSLVerify" json:"noSSLVerify"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level string `yaml:"level" toml:"level" json:"level"`
	Dev   bool   `yaml:"dev" toml:"dev" json:"dev"`
}

// HTTPConfig configures the REST control API.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled" json:"enabled"`
	Listen  string `yaml:"listen" toml:"listen" json:"listen"`
	Dev     bool   `yaml:"dev" toml:"dev" json:"dev"`
}

// MQTTConfig configures the MQTT control surface.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled" json:"enabled"`
	Broker      string `yaml:"broker" toml:"broker" json:"broker"`
	ClientID    string `yaml:"clientId" toml:"clientId" json:"clientId"`
	Username    string `yaml:"username" toml:"username" json:"username"`
	Password    string `yaml:"password" toml:"password" json:"password"`
	TopicPrefix string `yaml:"topicPrefix" toml:"topicPrefix" json:"topicPrefix"`
	QoS         int    `yaml:"qos" toml:"qos" json:"qos"`
}

// RedisConfig configures the event publisher.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled" json:"enabled"`
	Address string `yaml:"address" toml:"address" json:"address"`
	DB      int    `yaml:"db" toml:"db" json:"db"`
	Channel string `yaml:"channel" toml:"channel" json:"channel"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// Load reads a config file, choosing the decoder from its extension.
// The result is not normalized; call Normalize after applying overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		_, err = toml.Decode(string(data), cfg)
	case ".json":
		err = json.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// Normalize applies defaults and corrects invalid values in place.
// It returns one message per correction.
func (c *Config) Normalize() []string {
	var fixes []string
	fix := func(format string, args ...interface{}) {
		fixes = append(fixes, fmt.Sprintf(format, args...))
	}

	d := &c.Device
	if d.Key == "" {
		d.Key = DefaultKey
	}
	if d.Name == "" {
		d.Name = d.Key
	}

	switch {
	case d.DeviceID == "":
		d.DeviceID = DefaultDeviceID
	case !purelink.IsValidDeviceID(string(d.DeviceID)):
		fix("device id %q is not numeric, using %s", d.DeviceID, DefaultDeviceID)
		d.DeviceID = DefaultDeviceID
	}

	if model := purelink.ParseModel(d.Model); int(model) != d.Model {
		fix("model %d is not supported, using %d", d.Model, int(model))
		d.Model = int(model)
	}

	if _, err := purelink.ParseFrameFormat(d.Frame); err != nil {
		fix("%v, using canonical", err)
		d.Frame = purelink.FrameCanonical.String()
	}

	if d.PollTimeMs <= 0 {
		d.PollTimeMs = DefaultPollTimeMs
	}
	if d.WarningTimeoutMs <= 0 {
		d.WarningTimeoutMs = DefaultWarningTimeoutMs
	}
	if d.ErrorTimeoutMs <= 0 {
		d.ErrorTimeoutMs = DefaultErrorTimeoutMs
	}
	if d.ErrorTimeoutMs < d.WarningTimeoutMs {
		fix("errorTimeoutMs %d is below warningTimeoutMs, raising to %d", d.ErrorTimeoutMs, d.WarningTimeoutMs)
		d.ErrorTimeoutMs = d.WarningTimeoutMs
	}
	if d.GateDebounceMs <= 0 {
		d.GateDebounceMs = DefaultGateDebounceMs
	}

	var entryFixes []string
	d.Inputs, entryFixes = normalizeEntries("input", d.Inputs)
	fixes = append(fixes, entryFixes...)
	d.Outputs, entryFixes = normalizeEntries("output", d.Outputs)
	fixes = append(fixes, entryFixes...)

	t := &c.Transport
	if t.Kind == "" {
		switch {
		case t.URL != "":
			t.Kind = TransportWebSocket
		case t.Address != "":
			t.Kind = TransportTCP
		case t.Port != "":
			t.Kind = TransportSerial
		}
	}
	if t.Baud <= 0 {
		t.Baud = DefaultBaud
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.HTTP.Listen == "" {
		c.HTTP.Listen = DefaultHTTPListen
	}

	if c.MQTT.Broker == "" {
		c.MQTT.Broker = DefaultMQTTBroker
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "matrixctl/" + d.Key
	}
	c.MQTT.TopicPrefix = strings.TrimSuffix(c.MQTT.TopicPrefix, "/")
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		fix("mqtt qos %d is invalid, using 0", c.MQTT.QoS)
		c.MQTT.QoS = 0
	}

	if c.Redis.Address == "" {
		c.Redis.Address = DefaultRedisAddress
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = "matrixctl:" + d.Key + ":events"
	}

	return fixes
}

// normalizeEntries drops out-of-range and duplicate indices, fills in
// default names and sorts by index.
func normalizeEntries(kind string, entries []EntryConfig) ([]EntryConfig, []string) {
	var fixes []string
	seen := make(map[int]bool, len(entries))
	out := make([]EntryConfig, 0, len(entries))

	for _, e := range entries {
		if e.Index < 1 || e.Index > purelink.MaxIO {
			fixes = append(fixes, fmt.Sprintf("%s index %d out of range 1-%d, dropped", kind, e.Index, purelink.MaxIO))
			continue
		}
		if seen[e.Index] {
			fixes = append(fixes, fmt.Sprintf("duplicate %s index %d, dropped", kind, e.Index))
			continue
		}
		seen[e.Index] = true

		if e.Name == "" {
			e.Name = fmt.Sprintf("%s %d", strings.ToUpper(kind[:1])+kind[1:], e.Index)
		}
		if e.VideoName == "" {
			e.VideoName = e.Name
		}
		if e.AudioName == "" {
			e.AudioName = e.Name
		}
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, fixes
}

// ModelValue returns the protocol model.
func (d DeviceConfig) ModelValue() purelink.Model {
	return purelink.ParseModel(d.Model)
}

// FrameFormat returns the frame format, falling back to canonical.
func (d DeviceConfig) FrameFormat() purelink.FrameFormat {
	f, _ := purelink.ParseFrameFormat(d.Frame)
	return f
}

// PollInterval returns the monitor poll period.
func (d DeviceConfig) PollInterval() time.Duration {
	return time.Duration(d.PollTimeMs) * time.Millisecond
}

// WarningTimeout returns the silence period after which the link is degraded.
func (d DeviceConfig) WarningTimeout() time.Duration {
	return time.Duration(d.WarningTimeoutMs) * time.Millisecond
}

// ErrorTimeout returns the silence period after which the link is offline.
func (d DeviceConfig) ErrorTimeout() time.Duration {
	return time.Duration(d.ErrorTimeoutMs) * time.Millisecond
}

// GateDebounce returns the gate close delay.
func (d DeviceConfig) GateDebounce() time.Duration {
	return time.Duration(d.GateDebounceMs) * time.Millisecond
}
