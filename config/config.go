package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/awantoch/edgebridge/constants"
	"github.com/awantoch/edgebridge/utils"
	"github.com/dustin/go-humanize"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed config.schema.json
var schemaJSON string

type Config struct {
	HTTP    HTTPConfig     `json:"http" yaml:"http"`
	Body    BodyConfig     `json:"body" yaml:"body"`
	Log     LogConfig      `json:"log" yaml:"log"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
	Events  *EventConfig   `json:"events,omitempty" yaml:"events,omitempty"`
}

type HTTPConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
	// Origin overrides the scheme://host used to build request URLs.
	Origin string `json:"origin,omitempty" yaml:"origin,omitempty"`
}

// BodyConfig tunes the streaming body bridge.
type BodyConfig struct {
	// SizeLimit caps request bodies in bytes. Zero takes the default and
	// NoBodySizeLimit (-1) removes the cap.
	SizeLimit int64 `json:"size_limit" yaml:"size_limit"`
	// HighWaterMark is the buffered byte count at which response writes
	// report backpressure.
	HighWaterMark int `json:"high_water_mark" yaml:"high_water_mark"`
	// ChunkSize is the read size used when pumping request bodies.
	ChunkSize int `json:"chunk_size" yaml:"chunk_size"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level"`
}

type TracingConfig struct {
	ServiceName string `json:"service_name,omitempty" yaml:"service_name,omitempty"`
	// Exporter is "stdout" or "otlp".
	Exporter string `json:"exporter,omitempty" yaml:"exporter,omitempty"`
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

// EventConfig selects the bus that carries request lifecycle events.
type EventConfig struct {
	// Driver is "memory" (default) or "nats".
	Driver    string `json:"driver,omitempty" yaml:"driver,omitempty"`
	URL       string `json:"url,omitempty" yaml:"url,omitempty"`
	ClusterID string `json:"cluster_id,omitempty" yaml:"cluster_id,omitempty"`
	ClientID  string `json:"client_id,omitempty" yaml:"client_id,omitempty"`
}

var wrap = utils.NewErrorWrapper("config")

// LoadConfig reads a JSON or YAML (by extension) config file and validates
// it against the embedded schema. Missing fields stay zero-valued.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc := raw
	switch strings.ToLower(filepath.Ext(path)) {
	case constants.ConfigFormatYAML, constants.ConfigFormatYML:
		if doc, err = yamlToJSON(raw); err != nil {
			return nil, wrap.Wrapf(err, "parse %s", path)
		}
	}
	if err := Validate(doc); err != nil {
		return nil, wrap.Wrapf(err, "validate %s", path)
	}
	var cfg Config
	if err := json.Unmarshal(doc, &cfg); err != nil {
		return nil, wrap.Wrapf(err, "decode %s", path)
	}
	return &cfg, nil
}

func yamlToJSON(raw []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	if v == nil {
		v = map[string]any{}
	}
	return json.Marshal(v)
}

// Validate checks a JSON document against the config schema.
func Validate(doc []byte) error {
	schema, err := jsonschema.CompileString(constants.ConfigSchemaFile, schemaJSON)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return err
	}
	return schema.Validate(v)
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Host == "" {
		c.HTTP.Host = DefaultHost
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = DefaultPort
	}
	if c.Body.HighWaterMark == 0 {
		c.Body.HighWaterMark = DefaultHighWaterMark
	}
	if c.Body.ChunkSize == 0 {
		c.Body.ChunkSize = DefaultChunkSize
	}
	if c.Body.SizeLimit == 0 {
		c.Body.SizeLimit = DefaultBodySizeLimit
	}
}

// ApplyEnv overrides fields from environment variables. getenv defaults to
// os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv(constants.EnvHost); v != "" {
		c.HTTP.Host = v
	}
	if v := getenv(constants.EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 {
			return wrap.Failf("invalid %s %q", constants.EnvPort, v)
		}
		c.HTTP.Port = port
	}
	if v := getenv(constants.EnvOrigin); v != "" {
		c.HTTP.Origin = strings.TrimSuffix(v, "/")
	}
	if v := getenv(constants.EnvEventsURL); v != "" {
		if c.Events == nil {
			c.Events = &EventConfig{Driver: constants.EventDriverNATS}
		}
		c.Events.URL = v
	}
	if v, ok := lookup(getenv, constants.EnvBodySizeLimit); ok {
		limit, err := ParseBodySizeLimit(v)
		if err != nil {
			return wrap.Wrapf(err, "invalid %s", constants.EnvBodySizeLimit)
		}
		c.Body.SizeLimit = limit
	}
	return nil
}

func lookup(getenv func(string) string, key string) (string, bool) {
	v := strings.TrimSpace(getenv(key))
	return v, v != ""
}

// ParseBodySizeLimit parses sizes such as "512K", "1MiB" or "1048576".
// Single-letter K, M and G suffixes are binary (512K is 524288); longer
// suffixes follow humanize, so "512KB" is 512000. "Infinity" and "0" return
// NoBodySizeLimit, and an empty value returns 0.
func ParseBodySizeLimit(v string) (int64, error) {
	v = strings.TrimSpace(v)
	switch v {
	case "":
		return 0, nil
	case constants.BodySizeLimitInfinity, "0":
		return NoBodySizeLimit, nil
	}
	n, err := humanize.ParseBytes(binarySuffix(v))
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return NoBodySizeLimit, nil
	}
	return int64(n), nil
}

// binarySuffix rewrites a trailing K, M or G after a digit as KiB, MiB or
// GiB.
func binarySuffix(v string) string {
	if len(v) < 2 {
		return v
	}
	last := v[len(v)-1]
	prev := v[len(v)-2]
	switch last {
	case 'k', 'K', 'm', 'M', 'g', 'G':
		if (prev >= '0' && prev <= '9') || prev == ' ' || prev == '.' {
			return v[:len(v)-1] + strings.ToUpper(string(last)) + "iB"
		}
	}
	return v
}

// Addr returns host:port for the HTTP listener.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.HTTP.Host, strconv.Itoa(c.HTTP.Port))
}

// Load reads path when it exists, then applies defaults and environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		loaded, err := LoadConfig(path)
		switch {
		case err == nil:
			cfg = loaded
		case os.IsNotExist(err):
			utils.Debug("config file %s not found, using defaults", path)
		default:
			return nil, err
		}
	}
	cfg.ApplyDefaults()
	if err := cfg.ApplyEnv(nil); err != nil {
		return nil, err
	}
	if err := utils.SetLevel(cfg.Log.Level); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
