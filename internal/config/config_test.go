package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/metrics-forwarder/internal/errs"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil, envOf(nil))
	require.NoError(t, err)

	require.Equal(t, DefaultBaseURL, cfg.BaseURL)
	require.Equal(t, 300, cfg.MaxBatchSize)
	require.Equal(t, 5*time.Second, cfg.MaxTimeBetweenBatches)
	require.Equal(t, 3, cfg.NumRetries)
	require.Equal(t, time.Second, cfg.RetryDelay)
	require.Equal(t, 10*time.Second, cfg.PostTimeout)
	require.Equal(t, "protobuf", cfg.Encoding)
	require.Equal(t, "statsdnet.statsdnet.", cfg.ReservedNamespace)
	require.Equal(t, "localhost:8125", cfg.ListenAddr)
	require.Empty(t, cfg.DefaultDimensions)

	require.ErrorIs(t, cfg.Validate(), errs.ErrInvalidConfig, "token is required")
	cfg.APIToken = "t"
	require.NoError(t, cfg.Validate())
}

func TestLoad_Flags(t *testing.T) {
	args := []string{
		"-k", "tok",
		"--api-url", "https://example.com",
		"-d", "env=prod",
		"-d", `k\=x=v`,
		"-s", "box-1",
		"--max-batch-size", "50",
		"--max-time-between-batches", "2s",
		"-r", "5",
		"-t", "3s",
		"--encoding", "json",
		"--gzip",
		"-l", "",
	}
	cfg, err := Load(args, envOf(nil))
	require.NoError(t, err)

	require.Equal(t, "tok", cfg.APIToken)
	require.Equal(t, "https://example.com", cfg.BaseURL)
	require.Equal(t, map[string]string{"env": "prod", "k=x": "v"}, cfg.DefaultDimensions)
	require.Equal(t, "box-1", cfg.DefaultSource)
	require.Equal(t, 50, cfg.MaxBatchSize)
	require.Equal(t, 2*time.Second, cfg.MaxTimeBetweenBatches)
	require.Equal(t, 5, cfg.NumRetries)
	require.Equal(t, 3*time.Second, cfg.PostTimeout)
	require.Equal(t, "json", cfg.Encoding)
	require.True(t, cfg.Compress)
	require.Empty(t, cfg.ListenAddr)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverridesFlags(t *testing.T) {
	env := map[string]string{
		"SFX_API_TOKEN":            "env-token",
		"SFX_DEFAULT_DIMENSIONS":   `a=1,b=x\,y`,
		"MAX_BATCH_SIZE":           "7",
		"MAX_TIME_BETWEEN_BATCHES": "10",
		"RETRY_DELAY":              "250ms",
		"NUM_RETRIES":              "0",
		"SFX_GZIP":                 "true",
		"ADDRESS":                  "0.0.0.0:9000",
		"TRUSTED_SUBNET":           "10.0.0.0/8",
		"INGEST_KEY":               "shh",
	}
	cfg, err := Load([]string{"-k", "flag-token", "--max-batch-size", "99"}, envOf(env))
	require.NoError(t, err)

	require.Equal(t, "env-token", cfg.APIToken)
	require.Equal(t, map[string]string{"a": "1", "b": "x,y"}, cfg.DefaultDimensions)
	require.Equal(t, 7, cfg.MaxBatchSize)
	require.Equal(t, 10*time.Second, cfg.MaxTimeBetweenBatches)
	require.Equal(t, 250*time.Millisecond, cfg.RetryDelay)
	require.Equal(t, 0, cfg.NumRetries)
	require.True(t, cfg.Compress)
	require.Equal(t, "0.0.0.0:9000", cfg.ListenAddr)
	require.Equal(t, "10.0.0.0/8", cfg.TrustedSubnet)
	require.Equal(t, "shh", cfg.IngestKey)
	require.NoError(t, cfg.Validate())
}

func TestLoad_InvalidEnvironment(t *testing.T) {
	_, err := Load(nil, envOf(map[string]string{
		"MAX_BATCH_SIZE": "many",
		"POST_TIMEOUT":   "soon",
	}))
	require.ErrorIs(t, err, errs.ErrInvalidConfig)
	require.Contains(t, err.Error(), "MAX_BATCH_SIZE")
	require.Contains(t, err.Error(), "POST_TIMEOUT")
}

func TestLoad_BadFlag(t *testing.T) {
	_, err := Load([]string{"--max-batch-size", "x"}, envOf(nil))
	require.Error(t, err)
}

func TestLoad_FileFormats(t *testing.T) {
	cases := map[string]string{
		"forwarder.yaml": `
api_token: file-token
api_url: https://file.example.com
default_dimensions:
  team: core
max_batch_size: 20
max_time_between_batches: 1500ms
post_timeout: 4s
gzip: true
reserved_namespace: ""
`,
		"forwarder.toml": `
api_token = "file-token"
api_url = "https://file.example.com"
max_batch_size = 20
max_time_between_batches = "1500ms"
post_timeout = "4s"
gzip = true
reserved_namespace = ""

[default_dimensions]
team = "core"
`,
		"forwarder.json": `{
  "api_token": "file-token",
  "api_url": "https://file.example.com",
  "default_dimensions": {"team": "core"},
  "max_batch_size": 20,
  "max_time_between_batches": "1500ms",
  "post_timeout": "4s",
  "gzip": true,
  "reserved_namespace": ""
}`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, name, content)
			cfg, err := Load([]string{"-c", path, "--post-timeout", "9s"}, envOf(nil))
			require.NoError(t, err)

			require.Equal(t, path, cfg.ConfigFile)
			require.Equal(t, "file-token", cfg.APIToken)
			require.Equal(t, "https://file.example.com", cfg.BaseURL)
			require.Equal(t, map[string]string{"team": "core"}, cfg.DefaultDimensions)
			require.Equal(t, 20, cfg.MaxBatchSize)
			require.Equal(t, 1500*time.Millisecond, cfg.MaxTimeBetweenBatches)
			require.Equal(t, 9*time.Second, cfg.PostTimeout, "flag wins over file")
			require.True(t, cfg.Compress)
			require.Empty(t, cfg.ReservedNamespace)
		})
	}
}

func TestLoad_FileFromEnvironment(t *testing.T) {
	path := writeFile(t, "c.yaml", "api_token: from-file\nnum_retries: 1\n")
	cfg, err := Load(nil, envOf(map[string]string{"CONFIG": path, "NUM_RETRIES": "4"}))
	require.NoError(t, err)
	require.Equal(t, "from-file", cfg.APIToken)
	require.Equal(t, 4, cfg.NumRetries)
}

func TestLoad_FileErrors(t *testing.T) {
	_, err := Load([]string{"-c", writeFile(t, "c.ini", "x=1")}, envOf(nil))
	require.Error(t, err)

	_, err = Load([]string{"-c", filepath.Join(t.TempDir(), "missing.yaml")}, envOf(nil))
	require.Error(t, err)

	_, err = Load([]string{"-c", writeFile(t, "c.yaml", "retry_delay: often\n")}, envOf(nil))
	require.Error(t, err)
}

func TestLoad_ReadsProcessEnvironment(t *testing.T) {
	t.Setenv("SFX_API_TOKEN", "process-token")
	cfg, err := Load(nil, nil)
	require.NoError(t, err)
	require.Equal(t, "process-token", cfg.APIToken)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"empty url":         func(c *Config) { c.BaseURL = "" },
		"url without host":  func(c *Config) { c.BaseURL = "localhost" },
		"zero batch":        func(c *Config) { c.MaxBatchSize = 0 },
		"zero interval":     func(c *Config) { c.MaxTimeBetweenBatches = 0 },
		"negative retries":  func(c *Config) { c.NumRetries = -1 },
		"negative delay":    func(c *Config) { c.RetryDelay = -time.Second },
		"zero post timeout": func(c *Config) { c.PostTimeout = 0 },
		"unknown encoding":  func(c *Config) { c.Encoding = "xml" },
		"zero pending":      func(c *Config) { c.MaxPendingBatches = 0 },
		"zero ingest queue": func(c *Config) { c.IngestQueueSize = 0 },
		"unknown log level": func(c *Config) { c.LogLevel = "loud" },
		"bad subnet":        func(c *Config) { c.TrustedSubnet = "10.0.0.0/99" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			cfg.APIToken = "t"
			mutate(cfg)
			require.ErrorIs(t, cfg.Validate(), errs.ErrInvalidConfig)
		})
	}
}

func TestDerivedConfigs(t *testing.T) {
	cfg := Default()
	cfg.APIToken = "t"
	cfg.DefaultDimensions = map[string]string{"a": "b"}

	p := cfg.RetryPolicy()
	require.Equal(t, 3, p.NumRetries)
	require.Equal(t, time.Second, p.Delay)
	require.Equal(t, 2*time.Second, p.Increment)
	require.Equal(t, 30*time.Second, p.MaxDelay)

	b := cfg.BatcherConfig()
	require.NoError(t, b.Validate())
	require.Equal(t, 300, b.MaxBatchSize)

	r := cfg.ReporterConfig("src", "ua/1")
	require.Equal(t, "src", r.DefaultSource)
	require.Equal(t, "ua/1", r.UserAgent)
	require.Equal(t, "t", r.Token)
	require.Equal(t, map[string]string{"a": "b"}, r.DefaultDimensions)
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger("debug")
	require.NoError(t, err)
	require.NotNil(t, l)

	_, err = NewLogger("chatty")
	require.Error(t, err)
}
