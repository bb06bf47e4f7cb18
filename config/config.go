// Package config holds the runtime settings of the mastering tools: logging,
// the server address, worker counts and resource limits. Mastering targets
// and thresholds are fixed in code and are not configurable.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/crysgarage/engine/mastering"
)

// Environment variables read by ApplyEnv.
const (
	EnvLogLevel      = "CRYS_LOG_LEVEL"
	EnvLogFormat     = "CRYS_LOG_FORMAT"
	EnvAddr          = "CRYS_ADDR"
	EnvWorkers       = "CRYS_WORKERS"
	EnvMaxInputBytes = "CRYS_MAX_INPUT_BYTES"
	EnvMaxDuration   = "CRYS_MAX_DURATION_SEC"
	EnvRenderTimeout = "CRYS_RENDER_TIMEOUT"
)

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Log configures the logrus logger.
type Log struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Config is the full runtime configuration.
type Config struct {
	Log       Log    `json:"log"`
	Addr      string `json:"addr"`
	Workers   int    `json:"workers"`
	QueueSize int    `json:"queueSize"`

	MaxInputBytes    int64   `json:"maxInputBytes"`
	MaxDurationSec   float64 `json:"maxDurationSec"`
	RenderTimeoutSec float64 `json:"renderTimeoutSec"`
}

// Default returns the built-in configuration.
func Default() Config {
	l := mastering.DefaultLimits()
	return Config{
		Log:              Log{Level: "info", Format: FormatText},
		Addr:             ":8080",
		Workers:          2,
		QueueSize:        16,
		MaxInputBytes:    l.MaxInputBytes,
		MaxDurationSec:   l.MaxDuration.Seconds(),
		RenderTimeoutSec: l.RenderTimeout.Seconds(),
	}
}

// Limits converts the resource settings for mastering.WithLimits. Zero
// values stay unlimited.
func (c Config) Limits() mastering.Limits {
	return mastering.Limits{
		MaxInputBytes: c.MaxInputBytes,
		MaxDuration:   seconds(c.MaxDurationSec),
		RenderTimeout: seconds(c.RenderTimeoutSec),
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	switch c.Log.Format {
	case FormatText, FormatJSON:
	default:
		return fmt.Errorf("log format must be %q or %q, got %q", FormatText, FormatJSON, c.Log.Format)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("queueSize must be >= 0, got %d", c.QueueSize)
	}
	if c.MaxInputBytes < 0 {
		return fmt.Errorf("maxInputBytes must be >= 0, got %d", c.MaxInputBytes)
	}
	if c.MaxDurationSec < 0 {
		return fmt.Errorf("maxDurationSec must be >= 0, got %g", c.MaxDurationSec)
	}
	if c.RenderTimeoutSec < 0 {
		return fmt.Errorf("renderTimeoutSec must be >= 0, got %g", c.RenderTimeoutSec)
	}
	return nil
}

// File is the JSON schema for configuration files. Absent fields keep their
// current value.
type File struct {
	LogLevel         *string  `json:"logLevel"`
	LogFormat        *string  `json:"logFormat"`
	Addr             *string  `json:"addr"`
	Workers          *int     `json:"workers"`
	QueueSize        *int     `json:"queueSize"`
	MaxInputBytes    *int64   `json:"maxInputBytes"`
	MaxDurationSec   *float64 `json:"maxDurationSec"`
	RenderTimeoutSec *float64 `json:"renderTimeoutSec"`
}

// LoadJSON reads a configuration file on top of Default.
func LoadJSON(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var f File
	if err := dec.Decode(&f); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := ApplyFile(&cfg, &f); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyFile applies f onto dst. dst is left unchanged if the result would be
// invalid.
func ApplyFile(dst *Config, f *File) error {
	if dst == nil {
		return fmt.Errorf("nil destination config")
	}
	if f == nil {
		return nil
	}
	next := *dst
	if f.LogLevel != nil {
		next.Log.Level = *f.LogLevel
	}
	if f.LogFormat != nil {
		next.Log.Format = *f.LogFormat
	}
	if f.Addr != nil {
		next.Addr = *f.Addr
	}
	if f.Workers != nil {
		next.Workers = *f.Workers
	}
	if f.QueueSize != nil {
		next.QueueSize = *f.QueueSize
	}
	if f.MaxInputBytes != nil {
		next.MaxInputBytes = *f.MaxInputBytes
	}
	if f.MaxDurationSec != nil {
		next.MaxDurationSec = *f.MaxDurationSec
	}
	if f.RenderTimeoutSec != nil {
		next.RenderTimeoutSec = *f.RenderTimeoutSec
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*dst = next
	return nil
}

// ApplyEnv loads the given dotenv files (".env" when none are named; missing
// files are skipped) and then applies CRYS_* variables onto dst. Variables
// already set in the process environment win over dotenv values.
func ApplyEnv(dst *Config, envFiles ...string) error {
	if dst == nil {
		return fmt.Errorf("nil destination config")
	}
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, name := range envFiles {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}

	var f File
	if v, ok := lookup(EnvLogLevel); ok {
		f.LogLevel = &v
	}
	if v, ok := lookup(EnvLogFormat); ok {
		f.LogFormat = &v
	}
	if v, ok := lookup(EnvAddr); ok {
		f.Addr = &v
	}
	if v, ok := lookup(EnvWorkers); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWorkers, err)
		}
		f.Workers = &n
	}
	if v, ok := lookup(EnvMaxInputBytes); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxInputBytes, err)
		}
		f.MaxInputBytes = &n
	}
	if v, ok := lookup(EnvMaxDuration); ok {
		s, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxDuration, err)
		}
		f.MaxDurationSec = &s
	}
	if v, ok := lookup(EnvRenderTimeout); ok {
		s, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRenderTimeout, err)
		}
		f.RenderTimeoutSec = &s
	}
	return ApplyFile(dst, &f)
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// parseSeconds accepts a Go duration ("90s", "2m") or a plain number of
// seconds.
func parseSeconds(v string) (float64, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return d.Seconds(), nil
	}
	return strconv.ParseFloat(v, 64)
}

// Load returns Default, overlaid with the JSON file at path when path is
// not empty and then with the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadJSON(path); err != nil {
			return cfg, err
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
