package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/fistulosum/pkg/candidate"
	"github.com/orneryd/fistulosum/pkg/gpu"
	"github.com/orneryd/fistulosum/pkg/hash"
	"github.com/orneryd/fistulosum/pkg/pool"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fistulosum.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 1, cfg.NumMatches)
	assert.Equal(t, runtime.NumCPU(), cfg.Threads)
	assert.Equal(t, "sha256", cfg.Hash)
	assert.Equal(t, "hex", cfg.Encoding)
	assert.Equal(t, uint64(1), cfg.Step)
	assert.False(t, cfg.StoreEnabled())
	assert.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
patterns: ["^0000", "beef$"]
num_matches: 3
batch_size: 1024
device: 1
group_size: 64
hash: blake2b-256
encoding: base32
prefix: "vanity-"
limit: 5000
step: 2
timeout: 30s
store:
  driver: bolt
  path: /tmp/runs.db
log:
  level: debug
  json: true
`)
	cfg := Default()
	require.NoError(t, cfg.LoadFile(path))

	assert.Equal(t, []string{"^0000", "beef$"}, cfg.Patterns)
	assert.Equal(t, 3, cfg.NumMatches)
	assert.Equal(t, 1024, cfg.BatchSize)
	assert.Equal(t, []int{1}, cfg.Devices, "single device key maps to a list")
	assert.Nil(t, cfg.Device)
	assert.Equal(t, 64, cfg.GroupSize)
	assert.Equal(t, "blake2b-256", cfg.Hash)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, "bolt", cfg.Store.Driver)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, runtime.NumCPU(), cfg.Threads, "unset keys keep defaults")
	assert.Equal(t, candidate.Range{Step: 2, Limit: 5000}, cfg.Range())
	assert.True(t, cfg.StoreEnabled())
}

func TestLoadFile_Errors(t *testing.T) {
	t.Run("unknown key", func(t *testing.T) {
		path := writeFile(t, "pattern: ['^00']\n")
		assert.Error(t, Default().LoadFile(path))
	})
	t.Run("missing file", func(t *testing.T) {
		assert.Error(t, Default().LoadFile(filepath.Join(t.TempDir(), "nope.yaml")))
	})
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"FISTULOSUM_PATTERNS":     "^00, ff$ ,",
		"FISTULOSUM_DEVICES":      "0,2",
		"FISTULOSUM_NUM_MATCHES":  "0",
		"FISTULOSUM_THREADS":      "8",
		"FISTULOSUM_QUIET":        "true",
		"FISTULOSUM_OFFSET":       "18446744073709551615",
		"FISTULOSUM_RATE":         "1e6",
		"FISTULOSUM_TIMEOUT":      "1m",
		"FISTULOSUM_STORE_DRIVER": "badger",
		"FISTULOSUM_LOG_LEVEL":    "warn",
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{"^00", "ff$"}, cfg.Patterns)
	assert.Equal(t, []int{0, 2}, cfg.Devices)
	assert.Equal(t, 0, cfg.NumMatches)
	assert.Equal(t, 8, cfg.Threads)
	assert.True(t, cfg.Quiet)
	assert.Equal(t, uint64(18446744073709551615), cfg.Offset)
	assert.Equal(t, 1e6, cfg.Rate)
	assert.Equal(t, time.Minute, cfg.Timeout)
	assert.Equal(t, "badger", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestApplyEnv_Invalid(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"FISTULOSUM_BATCH_SIZE": "lots",
		"FISTULOSUM_DEVICES":    "0,x",
		"FISTULOSUM_TIMEOUT":    "soon",
	}))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "FISTULOSUM_BATCH_SIZE")
	assert.Contains(t, err.Error(), "FISTULOSUM_TIMEOUT")
	assert.Equal(t, 1<<16, cfg.BatchSize, "invalid values leave the setting alone")
}

func TestPrecedence(t *testing.T) {
	path := writeFile(t, "num_matches: 5\nbatch_size: 100\nhash: sha512\n")
	t.Setenv("FISTULOSUM_NUM_MATCHES", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.NumMatches, "env beats file")
	assert.Equal(t, 100, cfg.BatchSize, "file beats default")
	assert.Equal(t, "sha512", cfg.Hash)
	assert.Equal(t, 256, cfg.GroupSize, "default")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"batch size", func(c *Config) { c.BatchSize = 0 }},
		{"group size", func(c *Config) { c.GroupSize = 0 }},
		{"num matches", func(c *Config) { c.NumMatches = -1 }},
		{"threads", func(c *Config) { c.Threads = -1 }},
		{"no workers", func(c *Config) { c.Threads = 0 }},
		{"negative device", func(c *Config) { c.Devices = []int{-1} }},
		{"step", func(c *Config) { c.Step = 0 }},
		{"hash", func(c *Config) { c.Hash = "md5" }},
		{"encoding", func(c *Config) { c.Encoding = "base58" }},
		{"backend", func(c *Config) { c.Backend = "metal" }},
		{"store", func(c *Config) { c.Store.Driver = "redis" }},
		{"rate", func(c *Config) { c.Rate = -5 }},
		{"pool", func(c *Config) { c.Pool.MaxResults = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}

	t.Run("reports all problems", func(t *testing.T) {
		cfg := Default()
		cfg.BatchSize = 0
		cfg.Hash = "md5"
		err := cfg.Validate()
		assert.Contains(t, err.Error(), "batch_size")
		assert.Contains(t, err.Error(), "md5")
	})
}

func TestSearchConfig(t *testing.T) {
	cfg := Default()
	cfg.Patterns = []string{"^00"}
	cfg.Encoding = "base64url"
	cfg.Start = 10
	cfg.Offset = 4

	sc, err := cfg.SearchConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"^00"}, sc.Patterns)
	assert.Equal(t, hash.Base64URL, sc.Encoding)
	assert.Equal(t, candidate.Range{Start: 10, Step: 1}, sc.Range)
	assert.Equal(t, uint64(4), sc.Offset)
	assert.NoError(t, sc.Validate())

	cfg.BatchSize = -1
	_, err = cfg.SearchConfig()
	assert.Error(t, err)
}

func TestAcceleratorConfig(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.AcceleratorConfig().Enabled)

	cfg.Devices = []int{0}
	assert.True(t, cfg.AcceleratorConfig().Enabled)

	cfg.Backend = "host"
	cfg.HostDevices = 4
	ac := cfg.AcceleratorConfig()
	assert.Equal(t, gpu.BackendHost, ac.PreferredBackend)
	assert.Equal(t, 4, ac.HostDevices)
}

func TestPoolOptions(t *testing.T) {
	cfg := Default()
	assert.Equal(t, pool.PoolConfig{Enabled: true, MaxDigestBytes: 16 << 20, MaxResults: 1 << 18}, cfg.PoolOptions())

	path := writeFile(t, `
pool:
  enabled: false
  max_digest_bytes: 4096
`)
	require.NoError(t, cfg.LoadFile(path))
	require.NoError(t, cfg.ApplyEnv(envMap(map[string]string{"FISTULOSUM_POOL_MAX_RESULTS": "64"})))
	assert.Equal(t, pool.PoolConfig{Enabled: false, MaxDigestBytes: 4096, MaxResults: 64}, cfg.PoolOptions())

	err := cfg.ApplyEnv(envMap(map[string]string{"FISTULOSUM_POOL_ENABLED": "sometimes"}))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestParseDevices(t *testing.T) {
	devs, err := ParseDevices("1, 3")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, devs)

	_, err = ParseDevices("-1")
	assert.ErrorIs(t, err, ErrInvalid)

	devs, err = ParseDevices("")
	require.NoError(t, err)
	assert.Empty(t, devs)
}
