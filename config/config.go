// Package config loads the YAML configuration of the simwire command.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Size is a byte count that accepts human-readable YAML values such as
// "64 KiB", "1MB" or a plain integer.
type Size int64

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Size) UnmarshalYAML(value *yaml.Node) error {
	return errors.Wrapf(s.Set(value.Value), "line %d", value.Line)
}

// Set parses a human-readable size into s.
func (s *Size) Set(v string) error {
	raw := strings.TrimSpace(v)
	if raw == "" {
		return errors.New("empty size")
	}

	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return errors.Wrapf(err, "invalid size %q", raw)
	}
	*s = Size(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (s Size) MarshalYAML() (interface{}, error) {
	return humanize.IBytes(uint64(s)), nil
}

// String returns the size in binary units.
func (s Size) String() string {
	return humanize.IBytes(uint64(s))
}

// Duration accepts Go duration strings ("500ms", "30s") or a plain integer
// number of seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!int" {
		var secs int64
		if err := value.Decode(&secs); err != nil {
			return err
		}
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}

	dur, err := time.ParseDuration(strings.TrimSpace(value.Value))
	if err != nil {
		return errors.Wrapf(err, "line %d: invalid duration %q", value.Line, value.Value)
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns d as a time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Log configures log output. An empty Filename logs to stderr.
type Log struct {
	Level      string `yaml:"level"`
	Filename   string `yaml:"filename,omitempty"`
	MaxSize    int    `yaml:"max_size,omitempty"` // megabytes
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAge     int    `yaml:"max_age,omitempty"` // days
	Compress   bool   `yaml:"compress,omitempty"`
}

// Config is the top-level configuration.
type Config struct {
	// Listen is the address the server binds to.
	Listen string `yaml:"listen"`
	// Connect is the address the client dials.
	Connect string `yaml:"connect"`
	// Metrics is the address serving /metrics; empty disables it.
	Metrics string `yaml:"metrics,omitempty"`

	MaxFrameSize   Size     `yaml:"max_frame_size"`
	ReadBufferSize Size     `yaml:"read_buffer_size"`
	ReadRate       Size     `yaml:"read_rate,omitempty"` // bytes per second, 0 is unlimited
	SendBuffer     int      `yaml:"send_buffer"`
	Heartbeat      Duration `yaml:"heartbeat"`

	Log Log `yaml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Listen:         "127.0.0.1:7400",
		Connect:        "127.0.0.1:7400",
		MaxFrameSize:   1 << 20,
		ReadBufferSize: 4 << 10,
		SendBuffer:     64,
		Heartbeat:      Duration(30 * time.Second),
		Log:            Log{Level: "info"},
	}
}

// Load reads and validates the configuration at path. Fields missing from
// the file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	return Parse(data)
}

// Parse decodes and validates a YAML document.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if c.MaxFrameSize < 12 || c.MaxFrameSize > 1<<31-1 {
		return errors.Errorf("max_frame_size %s out of range", c.MaxFrameSize)
	}
	if c.ReadBufferSize <= 0 {
		return errors.New("read_buffer_size must be positive")
	}
	if c.ReadRate < 0 {
		return errors.New("read_rate must not be negative")
	}
	if c.SendBuffer <= 0 {
		return errors.New("send_buffer must be positive")
	}
	if c.Heartbeat <= 0 {
		return errors.New("heartbeat must be positive")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return errors.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}
