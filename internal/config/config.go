// Package config provides the forwarder configuration and its loading.
//
// Sources are layered, lowest precedence first: built-in defaults, a config
// file (YAML, TOML or JSON), command-line flags, environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"

	"github.com/and161185/metrics-forwarder/internal/batcher"
	"github.com/and161185/metrics-forwarder/internal/dimensions"
	"github.com/and161185/metrics-forwarder/internal/errs"
	"github.com/and161185/metrics-forwarder/internal/reporter"
	"github.com/and161185/metrics-forwarder/internal/retry"
)

// Defaults.
const (
	DefaultBaseURL               = "https://ingest.signalfx.com"
	DefaultMaxBatchSize          = 300
	DefaultMaxTimeBetweenBatches = 5 * time.Second
	DefaultRetryDelay            = time.Second
	DefaultRetryIncrement        = 2 * time.Second
	DefaultMaxRetryDelay         = 30 * time.Second
	DefaultPostTimeout           = 10 * time.Second
	DefaultNumRetries            = 3
	DefaultReservedNamespace     = "statsdnet.statsdnet."
	DefaultMaxPendingBatches     = 64
	DefaultIngestQueueSize       = 10000
	DefaultListenAddr            = "localhost:8125"
	DefaultLogLevel              = "info"
)

// Config holds the forwarder settings. It is built once at startup and not
// modified afterwards.
type Config struct {
	APIToken          string            // Ingest API token
	BaseURL           string            // Ingest endpoint base URL
	DefaultDimensions map[string]string // Dimensions added to every datapoint
	DefaultSource     string            // Source when a datapoint sets none; resolved if empty

	MaxBatchSize          int
	MaxTimeBetweenBatches time.Duration
	MaxPendingBatches     int // Released batches kept while the endpoint is slow
	IngestQueueSize       int // Datapoints buffered ahead of the batcher

	NumRetries     int
	RetryDelay     time.Duration
	RetryIncrement time.Duration
	MaxRetryDelay  time.Duration
	PostTimeout    time.Duration

	Encoding          string // protobuf or json
	Compress          bool   // gzip request bodies
	ReservedNamespace string // Buckets under this root are dropped; empty disables
	ListenAddr        string // Ingest HTTP API address; empty disables
	TrustedSubnet     string // CIDR allowed to submit buckets; empty allows all
	IngestKey         string // Shared key for submission body hashes; empty disables
	CloudMetadata     bool   // Use the cloud instance id as default source
	LogLevel          string
	ConfigFile        string
}

// Default returns a Config with every default applied.
func Default() *Config {
	return &Config{
		BaseURL:               DefaultBaseURL,
		DefaultDimensions:     map[string]string{},
		MaxBatchSize:          DefaultMaxBatchSize,
		MaxTimeBetweenBatches: DefaultMaxTimeBetweenBatches,
		MaxPendingBatches:     DefaultMaxPendingBatches,
		IngestQueueSize:       DefaultIngestQueueSize,
		NumRetries:            DefaultNumRetries,
		RetryDelay:            DefaultRetryDelay,
		RetryIncrement:        DefaultRetryIncrement,
		MaxRetryDelay:         DefaultMaxRetryDelay,
		PostTimeout:           DefaultPostTimeout,
		Encoding:              reporter.EncodingProtobuf,
		ReservedNamespace:     DefaultReservedNamespace,
		ListenAddr:            DefaultListenAddr,
		LogLevel:              DefaultLogLevel,
	}
}

// Load builds the configuration from args (without the program name) and
// the environment as seen through getenv. A nil getenv reads os.Getenv.
// The result is not validated; call Validate.
func Load(args []string, getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := Default()

	fs := pflag.NewFlagSet("forwarder", pflag.ContinueOnError)
	var dims []string
	bindFlags(fs, cfg, &dims)
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}
	if fs.Changed("dimension") {
		cfg.DefaultDimensions = parseDimensionFlags(dims)
	}

	if !fs.Changed("config") {
		cfg.ConfigFile = getenv("CONFIG")
	}
	if cfg.ConfigFile != "" {
		fc, err := loadFile(cfg.ConfigFile)
		if err != nil {
			return nil, err
		}
		if err := fc.apply(cfg, fs.Changed); err != nil {
			return nil, fmt.Errorf("config file %s: %w", cfg.ConfigFile, err)
		}
	}

	if err := readEnvironment(cfg, getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func bindFlags(fs *pflag.FlagSet, cfg *Config, dims *[]string) {
	fs.StringVarP(&cfg.ConfigFile, "config", "c", "", "path to a YAML, TOML or JSON config file")
	fs.StringVarP(&cfg.APIToken, "token", "k", "", "ingest API token")
	fs.StringVarP(&cfg.BaseURL, "api-url", "a", cfg.BaseURL, "ingest endpoint base URL")
	fs.StringArrayVarP(dims, "dimension", "d", nil, "default dimension key=value (repeatable)")
	fs.StringVarP(&cfg.DefaultSource, "source", "s", "", "default source")
	fs.IntVar(&cfg.MaxBatchSize, "max-batch-size", cfg.MaxBatchSize, "datapoints per batch")
	fs.DurationVar(&cfg.MaxTimeBetweenBatches, "max-time-between-batches", cfg.MaxTimeBetweenBatches, "longest wait before a partial batch is sent")
	fs.IntVar(&cfg.MaxPendingBatches, "max-pending-batches", cfg.MaxPendingBatches, "released batches kept while sending is slow")
	fs.IntVar(&cfg.IngestQueueSize, "ingest-queue-size", cfg.IngestQueueSize, "datapoints buffered ahead of the batcher")
	fs.IntVarP(&cfg.NumRetries, "num-retries", "r", cfg.NumRetries, "retries after a transient failure")
	fs.DurationVar(&cfg.RetryDelay, "retry-delay", cfg.RetryDelay, "delay before the first retry")
	fs.DurationVar(&cfg.RetryIncrement, "retry-increment", cfg.RetryIncrement, "delay added per further retry")
	fs.DurationVar(&cfg.MaxRetryDelay, "max-retry-delay", cfg.MaxRetryDelay, "upper bound on a retry delay")
	fs.DurationVarP(&cfg.PostTimeout, "post-timeout", "t", cfg.PostTimeout, "timeout of one send attempt")
	fs.StringVar(&cfg.Encoding, "encoding", cfg.Encoding, "wire encoding: protobuf or json")
	fs.BoolVar(&cfg.Compress, "gzip", cfg.Compress, "gzip request bodies")
	fs.StringVar(&cfg.ReservedNamespace, "reserved-namespace", cfg.ReservedNamespace, "root namespace to drop; empty disables")
	fs.StringVarP(&cfg.ListenAddr, "listen", "l", cfg.ListenAddr, "ingest HTTP API address; empty disables")
	fs.StringVar(&cfg.TrustedSubnet, "trusted-subnet", "", "CIDR allowed to submit buckets")
	fs.StringVar(&cfg.IngestKey, "ingest-key", "", "shared key for HashSHA256 on bucket submissions")
	fs.BoolVar(&cfg.CloudMetadata, "cloud-metadata", cfg.CloudMetadata, "use the cloud instance id as default source")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
}

func parseDimensionFlags(values []string) map[string]string {
	dims := make(map[string]string, len(values))
	for _, v := range values {
		if k, val := dimensions.ParseTag(v); k != "" {
			dims[k] = val
		}
	}
	return dims
}

func readEnvironment(cfg *Config, getenv func(string) string) error {
	var errList []error
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			i, err := strconv.Atoi(v)
			if err != nil {
				errList = append(errList, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = i
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := getenv(key); v != "" {
			d, err := parseDuration(v)
			if err != nil {
				errList = append(errList, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v := getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errList = append(errList, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("SFX_API_TOKEN", &cfg.APIToken)
	str("SFX_API_URL", &cfg.BaseURL)
	if v := getenv("SFX_DEFAULT_DIMENSIONS"); v != "" {
		cfg.DefaultDimensions = dimensions.ParseList(v)
	}
	str("SFX_DEFAULT_SOURCE", &cfg.DefaultSource)
	integer("MAX_BATCH_SIZE", &cfg.MaxBatchSize)
	duration("MAX_TIME_BETWEEN_BATCHES", &cfg.MaxTimeBetweenBatches)
	integer("MAX_PENDING_BATCHES", &cfg.MaxPendingBatches)
	integer("INGEST_QUEUE_SIZE", &cfg.IngestQueueSize)
	integer("NUM_RETRIES", &cfg.NumRetries)
	duration("RETRY_DELAY", &cfg.RetryDelay)
	duration("RETRY_INCREMENT", &cfg.RetryIncrement)
	duration("MAX_RETRY_DELAY", &cfg.MaxRetryDelay)
	duration("POST_TIMEOUT", &cfg.PostTimeout)
	str("SFX_ENCODING", &cfg.Encoding)
	boolean("SFX_GZIP", &cfg.Compress)
	str("RESERVED_NAMESPACE", &cfg.ReservedNamespace)
	str("ADDRESS", &cfg.ListenAddr)
	str("TRUSTED_SUBNET", &cfg.TrustedSubnet)
	str("INGEST_KEY", &cfg.IngestKey)
	boolean("CLOUD_METADATA", &cfg.CloudMetadata)
	str("LOG_LEVEL", &cfg.LogLevel)

	if len(errList) > 0 {
		return fmt.Errorf("%w: environment: %w", errs.ErrInvalidConfig, errors.Join(errList...))
	}
	return nil
}

// parseDuration accepts Go duration strings and plain integers as seconds.
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// Validate reports every invalid setting, wrapped in errs.ErrInvalidConfig.
func (c *Config) Validate() error {
	var problems []string
	if c.APIToken == "" {
		problems = append(problems, "api token is required")
	}
	if u, err := url.Parse(c.BaseURL); c.BaseURL == "" || err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, fmt.Sprintf("invalid api url %q", c.BaseURL))
	}
	if c.MaxBatchSize <= 0 {
		problems = append(problems, "max batch size must be positive")
	}
	if c.MaxTimeBetweenBatches <= 0 {
		problems = append(problems, "max time between batches must be positive")
	}
	if c.MaxPendingBatches <= 0 {
		problems = append(problems, "max pending batches must be positive")
	}
	if c.IngestQueueSize <= 0 {
		problems = append(problems, "ingest queue size must be positive")
	}
	if c.NumRetries < 0 {
		problems = append(problems, "num retries must not be negative")
	}
	if c.RetryDelay < 0 || c.RetryIncrement < 0 || c.MaxRetryDelay < 0 {
		problems = append(problems, "retry delays must not be negative")
	}
	if c.PostTimeout <= 0 {
		problems = append(problems, "post timeout must be positive")
	}
	if _, err := reporter.NewEncoder(c.Encoding); err != nil {
		problems = append(problems, fmt.Sprintf("unknown encoding %q", c.Encoding))
	}
	if c.TrustedSubnet != "" {
		if _, _, err := net.ParseCIDR(c.TrustedSubnet); err != nil {
			problems = append(problems, fmt.Sprintf("invalid trusted subnet %q", c.TrustedSubnet))
		}
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, fmt.Sprintf("unknown log level %q", c.LogLevel))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", errs.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// RetryPolicy returns the reporter retry policy.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		NumRetries: c.NumRetries,
		Delay:      c.RetryDelay,
		Increment:  c.RetryIncrement,
		MaxDelay:   c.MaxRetryDelay,
	}
}

// BatcherConfig returns the batching limits.
func (c *Config) BatcherConfig() batcher.Config {
	return batcher.Config{
		MaxBatchSize:          c.MaxBatchSize,
		MaxTimeBetweenBatches: c.MaxTimeBetweenBatches,
		MaxPendingBatches:     c.MaxPendingBatches,
		IngestQueueSize:       c.IngestQueueSize,
	}
}

// ReporterConfig returns the delivery settings. source is the resolved
// default source.
func (c *Config) ReporterConfig(source, userAgent string) reporter.Config {
	return reporter.Config{
		BaseURL:           c.BaseURL,
		Token:             c.APIToken,
		DefaultDimensions: c.DefaultDimensions,
		DefaultSource:     source,
		PostTimeout:       c.PostTimeout,
		Retry:             c.RetryPolicy(),
		Encoding:          c.Encoding,
		Compress:          c.Compress,
		UserAgent:         userAgent,
	}
}
