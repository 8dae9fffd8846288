package config

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vango-dev/switchmap/internal/errors"
	"github.com/vango-dev/switchmap/pkg/switchmap"
)

const (
	// ConfigFileName is the name of the JSON configuration file.
	ConfigFileName = "switchmap.json"

	// YAMLConfigFileName is the name of the YAML configuration file.
	// It is only consulted when ConfigFileName does not exist.
	YAMLConfigFileName = "switchmap.yaml"

	// EnvAddr overrides Server.Addr when set.
	EnvAddr = "SWITCHMAP_ADDR"

	// DefaultAddr is the default inspector address.
	DefaultAddr = "localhost:7070"

	// DefaultNamespace is the default Prometheus namespace.
	DefaultNamespace = "switchmap"

	// DefaultDemoDelay is the default latency of the demo's async stage.
	DefaultDemoDelay = 50 * time.Millisecond
)

var namespacePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config represents the complete switchmap.json configuration.
type Config struct {
	// Shape is the shape drift policy: "strict" or "lenient".
	Shape string `json:"shape,omitempty" yaml:"shape,omitempty"`

	// Log contains logging configuration.
	Log LogConfig `json:"log,omitempty" yaml:"log,omitempty"`

	// Server contains inspector server configuration.
	Server ServerConfig `json:"server,omitempty" yaml:"server,omitempty"`

	// Metrics contains Prometheus configuration.
	Metrics MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`

	// Tracing contains OpenTelemetry configuration.
	Tracing TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`

	// Demo contains settings for the demo pipeline.
	Demo DemoConfig `json:"demo,omitempty" yaml:"demo,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// LogConfig contains logging configuration.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `json:"level,omitempty" yaml:"level,omitempty"`

	// Format is "text" or "json".
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// ServerConfig contains inspector server configuration.
type ServerConfig struct {
	// Addr is the listen address (host:port).
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// MetricsConfig contains Prometheus configuration.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
}

// TracingConfig contains OpenTelemetry configuration.
type TracingConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	TracerName string `json:"tracer_name,omitempty" yaml:"tracer_name,omitempty"`
}

// DemoConfig contains settings for the demo pipeline.
type DemoConfig struct {
	// Delay is the simulated latency of the async stage, as a Go duration.
	Delay string `json:"delay,omitempty" yaml:"delay,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Shape: switchmap.ShapeStrict.String(),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultAddr,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: DefaultNamespace,
		},
		Tracing: TracingConfig{
			TracerName: switchmap.DefaultTracerName,
		},
		Demo: DemoConfig{
			Delay: DefaultDemoDelay.String(),
		},
	}
}

// Load reads configuration from the specified directory.
// It looks for switchmap.json, then switchmap.yaml.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		yamlPath := filepath.Join(dir, YAMLConfigFileName)
		if _, err := os.Stat(yamlPath); err == nil {
			path = yamlPath
		}
	}
	return LoadFile(path)
}

// LoadOrDefault is like Load but returns the defaults, with environment
// overrides applied, when no configuration file exists.
func LoadOrDefault(dir string) (*Config, error) {
	if !Exists(dir) {
		cfg := New()
		cfg.ApplyEnv()
		return cfg, nil
	}
	return Load(dir)
}

// LoadFile reads configuration from the specified file path. Files ending
// in .yaml or .yml are parsed as YAML, everything else as JSON.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("S001").
				WithDetail("No " + ConfigFileName + " found in " + filepath.Dir(path)).
				WithSuggestion("Run 'switchmap init' to write a default configuration")
		}
		return nil, errors.New("S001").Wrap(err)
	}

	cfg := New()
	name := filepath.Base(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.New("S001").
				WithDetail("Failed to parse " + name + ": " + err.Error()).
				WithSuggestion("Check that " + name + " is valid YAML")
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.New("S001").
				WithDetail("Failed to parse " + name + ": " + err.Error()).
				WithSuggestion("Check that " + name + " is valid JSON")
		}
	}

	cfg.configPath = path
	cfg.applyDefaults()
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveTo writes the configuration to the specified path as JSON.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("S001").Wrap(err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("S001").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	d := New()
	if c.Shape == "" {
		c.Shape = d.Shape
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = d.Metrics.Namespace
	}
	if c.Tracing.TracerName == "" {
		c.Tracing.TracerName = d.Tracing.TracerName
	}
	if c.Demo.Delay == "" {
		c.Demo.Delay = d.Demo.Delay
	}
}

// ApplyEnv applies environment overrides.
func (c *Config) ApplyEnv() {
	if addr := os.Getenv(EnvAddr); addr != "" {
		c.Server.Addr = addr
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if _, err := switchmap.ParseShapePolicy(c.Shape); err != nil {
		return errors.New("S002").
			WithField("shape").
			WithDetail(`shape must be "strict" or "lenient", got "` + c.Shape + `"`).
			Wrap(err)
	}
	if _, ok := parseLevel(c.Log.Level); !ok {
		return errors.New("S003").
			WithField("log.level").
			WithSuggestion(`Use "debug", "info", "warn" or "error"`)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.New("S004").
			WithField("log.format").
			WithSuggestion(`Use "text" or "json"`)
	}
	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		return errors.New("S005").
			WithField("server.addr").
			Wrap(err)
	}
	if !namespacePattern.MatchString(c.Metrics.Namespace) {
		return errors.New("S007").
			WithField("metrics.namespace")
	}
	if d, err := time.ParseDuration(c.Demo.Delay); err != nil || d <= 0 {
		return errors.New("S006").
			WithField("demo.delay").
			WithSuggestion(`Use a value such as "50ms" or "1s"`)
	}
	return nil
}

// ShapePolicy returns the parsed shape policy. Invalid values fall back to
// switchmap.ShapeStrict; call Validate to surface them.
func (c *Config) ShapePolicy() switchmap.ShapePolicy {
	p, err := switchmap.ParseShapePolicy(c.Shape)
	if err != nil {
		return switchmap.ShapeStrict
	}
	return p
}

// DemoDelay returns the parsed demo delay, or DefaultDemoDelay.
func (c *Config) DemoDelay() time.Duration {
	d, err := time.ParseDuration(c.Demo.Delay)
	if err != nil || d <= 0 {
		return DefaultDemoDelay
	}
	return d
}

// Level returns the configured slog level, or slog.LevelInfo.
func (c *Config) Level() slog.Level {
	lvl, _ := parseLevel(c.Log.Level)
	return lvl
}

// NewLogger builds a logger writing to w using the configured level and
// format.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level()}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	for _, name := range []string{ConfigFileName, YAMLConfigFileName} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}
