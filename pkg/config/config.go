// Package config resolves fistulosum's options.
//
// Sources, lowest precedence first:
//  1. Default()
//  2. a YAML file (LoadFile)
//  3. FISTULOSUM_* environment variables (ApplyEnv)
//  4. command-line flags, applied by the CLI
//
// Example config file:
//
//	patterns: ["^0000", "beef$"]
//	num_matches: 3
//	batch_size: 65536
//	devices: [0]
//	group_size: 256
//	hash: sha256
//	prefix: "vanity-"
//	store:
//	  driver: badger
//	  path: /var/lib/fistulosum
//	log:
//	  level: info
//	pool:
//	  enabled: true
//	  max_digest_bytes: 16777216
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/orneryd/fistulosum/pkg/candidate"
	"github.com/orneryd/fistulosum/pkg/gpu"
	"github.com/orneryd/fistulosum/pkg/hash"
	"github.com/orneryd/fistulosum/pkg/pool"
	"github.com/orneryd/fistulosum/pkg/search"
)

// EnvPrefix prefixes every environment variable the config reads.
const EnvPrefix = "FISTULOSUM_"

// Errors
var (
	ErrInvalid = errors.New("config: invalid value")
)

// StoreConfig selects where runs and checkpoints are kept.
type StoreConfig struct {
	// Driver is one of none, badger, bolt, memory.
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// LogConfig controls the CLI logger.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// PoolConfig sizes the batch buffer pools.
type PoolConfig struct {
	Enabled        bool `yaml:"enabled"`
	MaxDigestBytes int  `yaml:"max_digest_bytes"`
	MaxResults     int  `yaml:"max_results"`
}

// Config holds every option.
type Config struct {
	Patterns   []string `yaml:"patterns"`
	Quiet      bool     `yaml:"quiet"`
	BatchSize  int      `yaml:"batch_size"`
	Devices    []int    `yaml:"devices"`
	Device     *int     `yaml:"device"`
	GroupSize  int      `yaml:"group_size"`
	NumMatches int      `yaml:"num_matches"`
	Threads    int      `yaml:"threads"`

	Hash     string  `yaml:"hash"`
	Encoding string  `yaml:"encoding"`
	Prefix   string  `yaml:"prefix"`
	Offset   uint64  `yaml:"offset"`
	Limit    uint64  `yaml:"limit"`
	Start    uint64  `yaml:"start"`
	Step     uint64  `yaml:"step"`
	Rate     float64 `yaml:"rate"`

	Backend     string `yaml:"backend"`
	HostDevices int    `yaml:"host_devices"`

	Timeout time.Duration `yaml:"timeout"`
	Resume  bool          `yaml:"resume"`

	Store StoreConfig `yaml:"store"`
	Log   LogConfig   `yaml:"log"`
	Pool  PoolConfig  `yaml:"pool"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		BatchSize:   1 << 16,
		GroupSize:   256,
		NumMatches:  1,
		Threads:     runtime.NumCPU(),
		Hash:        hash.Default,
		Encoding:    hash.Hex.String(),
		Step:        1,
		Backend:     "auto",
		HostDevices: 2,
		Store:       StoreConfig{Driver: "none", Path: ".fistulosum"},
		Log:         LogConfig{Level: "info"},
		Pool: PoolConfig{
			Enabled:        true,
			MaxDigestBytes: 16 << 20,
			MaxResults:     1 << 18,
		},
	}
}

// Load returns the defaults overlaid with the file at path (if path is not
// empty) and the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path. Unknown keys are rejected.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	c.normalize()
	return nil
}

// normalize folds the single-device key into Devices.
func (c *Config) normalize() {
	if c.Device != nil {
		c.Devices = []int{*c.Device}
		c.Device = nil
	}
}

// ApplyEnv overlays FISTULOSUM_* variables found through lookup. Lists are
// comma separated.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		return strings.TrimSpace(v), ok
	}
	setInt := func(name string, dst *int) {
		if v, ok := get(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s%s=%q", ErrInvalid, EnvPrefix, name, v))
				return
			}
			*dst = n
		}
	}
	setUint := func(name string, dst *uint64) {
		if v, ok := get(name); ok {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s%s=%q", ErrInvalid, EnvPrefix, name, v))
				return
			}
			*dst = n
		}
	}
	setBool := func(name string, dst *bool) {
		if v, ok := get(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s%s=%q", ErrInvalid, EnvPrefix, name, v))
				return
			}
			*dst = b
		}
	}
	setString := func(name string, dst *string) {
		if v, ok := get(name); ok {
			*dst = v
		}
	}

	if v, ok := get("PATTERNS"); ok {
		c.Patterns = splitList(v)
	}
	if v, ok := get("DEVICES"); ok {
		devs, err := ParseDevices(v)
		if err != nil {
			errs = append(errs, err)
		} else {
			c.Devices = devs
		}
	}
	setBool("QUIET", &c.Quiet)
	setInt("BATCH_SIZE", &c.BatchSize)
	setInt("GROUP_SIZE", &c.GroupSize)
	setInt("NUM_MATCHES", &c.NumMatches)
	setInt("THREADS", &c.Threads)
	setString("HASH", &c.Hash)
	setString("ENCODING", &c.Encoding)
	setString("PREFIX", &c.Prefix)
	setUint("OFFSET", &c.Offset)
	setUint("LIMIT", &c.Limit)
	setUint("START", &c.Start)
	setUint("STEP", &c.Step)
	setString("BACKEND", &c.Backend)
	setInt("HOST_DEVICES", &c.HostDevices)
	setBool("RESUME", &c.Resume)
	setString("STORE_DRIVER", &c.Store.Driver)
	setString("STORE_PATH", &c.Store.Path)
	setString("LOG_LEVEL", &c.Log.Level)
	setBool("LOG_JSON", &c.Log.JSON)
	setBool("POOL_ENABLED", &c.Pool.Enabled)
	setInt("POOL_MAX_DIGEST_BYTES", &c.Pool.MaxDigestBytes)
	setInt("POOL_MAX_RESULTS", &c.Pool.MaxResults)

	if v, ok := get("RATE"); ok {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %sRATE=%q", ErrInvalid, EnvPrefix, v))
		} else {
			c.Rate = r
		}
	}
	if v, ok := get("TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %sTIMEOUT=%q", ErrInvalid, EnvPrefix, v))
		} else {
			c.Timeout = d
		}
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseDevices parses a comma separated list of device indexes.
func ParseDevices(v string) ([]int, error) {
	var devs []int
	for _, p := range splitList(v) {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: device %q", ErrInvalid, p)
		}
		devs = append(devs, n)
	}
	return devs, nil
}

// Validate reports every invalid option at once.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.BatchSize <= 0 {
		bad("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.GroupSize <= 0 {
		bad("group_size must be positive, got %d", c.GroupSize)
	}
	if c.NumMatches < 0 {
		bad("num_matches must not be negative, got %d", c.NumMatches)
	}
	if c.Threads < 0 {
		bad("threads must not be negative, got %d", c.Threads)
	}
	if c.Threads == 0 && len(c.Devices) == 0 {
		bad("threads is 0 and no devices are selected")
	}
	for _, d := range c.Devices {
		if d < 0 {
			bad("device index %d", d)
		}
	}
	if c.Step == 0 {
		bad("step must be positive")
	}
	if c.Rate < 0 {
		bad("rate must not be negative")
	}
	if c.Timeout < 0 {
		bad("timeout must not be negative")
	}
	if c.HostDevices < 0 {
		bad("host_devices must not be negative")
	}
	if c.Pool.MaxDigestBytes < 0 || c.Pool.MaxResults < 0 {
		bad("pool limits must not be negative")
	}
	if _, err := hash.Lookup(c.Hash); err != nil {
		bad("hash %q (have %s)", c.Hash, strings.Join(hash.Names(), ", "))
	}
	if _, err := hash.ParseEncoding(c.Encoding); err != nil {
		bad("encoding %q", c.Encoding)
	}
	if _, err := gpu.ParseBackend(c.Backend); err != nil {
		bad("backend %q", c.Backend)
	}
	switch c.Store.Driver {
	case "", "none", "badger", "bolt", "bbolt", "memory":
	default:
		bad("store driver %q", c.Store.Driver)
	}
	return errors.Join(errs...)
}

// Range returns the candidate range the options describe.
func (c *Config) Range() candidate.Range {
	return candidate.Range{Start: c.Start, Step: c.Step, Limit: c.Limit}
}

// SearchConfig converts the options into the search engine's config.
func (c *Config) SearchConfig() (search.Config, error) {
	if err := c.Validate(); err != nil {
		return search.Config{}, err
	}
	enc, _ := hash.ParseEncoding(c.Encoding)
	return search.Config{
		Patterns:   c.Patterns,
		Quiet:      c.Quiet,
		BatchSize:  c.BatchSize,
		Devices:    c.Devices,
		GroupSize:  c.GroupSize,
		NumMatches: c.NumMatches,
		Threads:    c.Threads,
		Hash:       c.Hash,
		Encoding:   enc,
		Prefix:     c.Prefix,
		Range:      c.Range(),
		Offset:     c.Offset,
		Rate:       c.Rate,
	}, nil
}

// AcceleratorConfig returns the device platform settings.
func (c *Config) AcceleratorConfig() *gpu.Config {
	backend, _ := gpu.ParseBackend(c.Backend)
	return &gpu.Config{
		Enabled:          len(c.Devices) > 0 || backend != gpu.BackendNone,
		PreferredBackend: backend,
		FallbackOnError:  true,
		HostDevices:      c.HostDevices,
	}
}

// PoolOptions returns the buffer pool settings.
func (c *Config) PoolOptions() pool.PoolConfig {
	return pool.PoolConfig{
		Enabled:        c.Pool.Enabled,
		MaxDigestBytes: c.Pool.MaxDigestBytes,
		MaxResults:     c.Pool.MaxResults,
	}
}

// StoreEnabled reports whether runs are persisted.
func (c *Config) StoreEnabled() bool {
	return c.Store.Driver != "" && c.Store.Driver != "none"
}
