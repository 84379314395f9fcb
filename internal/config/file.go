package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config for config files. Nil fields are not set in the
// file. Durations are Go duration strings ("5s").
type fileConfig struct {
	APIToken              *string           `json:"api_token" yaml:"api_token" toml:"api_token"`
	APIURL                *string           `json:"api_url" yaml:"api_url" toml:"api_url"`
	DefaultDimensions     map[string]string `json:"default_dimensions" yaml:"default_dimensions" toml:"default_dimensions"`
	DefaultSource         *string           `json:"default_source" yaml:"default_source" toml:"default_source"`
	MaxBatchSize          *int              `json:"max_batch_size" yaml:"max_batch_size" toml:"max_batch_size"`
	MaxTimeBetweenBatches *string           `json:"max_time_between_batches" yaml:"max_time_between_batches" toml:"max_time_between_batches"`
	MaxPendingBatches     *int              `json:"max_pending_batches" yaml:"max_pending_batches" toml:"max_pending_batches"`
	IngestQueueSize       *int              `json:"ingest_queue_size" yaml:"ingest_queue_size" toml:"ingest_queue_size"`
	NumRetries            *int              `json:"num_retries" yaml:"num_retries" toml:"num_retries"`
	RetryDelay            *string           `json:"retry_delay" yaml:"retry_delay" toml:"retry_delay"`
	RetryIncrement        *string           `json:"retry_increment" yaml:"retry_increment" toml:"retry_increment"`
	MaxRetryDelay         *string           `json:"max_retry_delay" yaml:"max_retry_delay" toml:"max_retry_delay"`
	PostTimeout           *string           `json:"post_timeout" yaml:"post_timeout" toml:"post_timeout"`
	Encoding              *string           `json:"encoding" yaml:"encoding" toml:"encoding"`
	Gzip                  *bool             `json:"gzip" yaml:"gzip" toml:"gzip"`
	ReservedNamespace     *string           `json:"reserved_namespace" yaml:"reserved_namespace" toml:"reserved_namespace"`
	Listen                *string           `json:"listen" yaml:"listen" toml:"listen"`
	TrustedSubnet         *string           `json:"trusted_subnet" yaml:"trusted_subnet" toml:"trusted_subnet"`
	IngestKey             *string           `json:"ingest_key" yaml:"ingest_key" toml:"ingest_key"`
	CloudMetadata         *bool             `json:"cloud_metadata" yaml:"cloud_metadata" toml:"cloud_metadata"`
	LogLevel              *string           `json:"log_level" yaml:"log_level" toml:"log_level"`
}

// loadFile reads path, choosing the decoder by extension.
func loadFile(path string) (*fileConfig, error) {
	var fc fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return nil, fmt.Errorf("decode toml %s: %w", path, err)
		}
	case ".yaml", ".yml":
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return nil, fmt.Errorf("decode yaml %s: %w", path, err)
		}
	case ".json":
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := json.Unmarshal(b, &fc); err != nil {
			return nil, fmt.Errorf("decode json %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q", ext)
	}
	return &fc, nil
}

// apply copies the file values into cfg, skipping settings whose flag was
// given on the command line.
func (fc *fileConfig) apply(cfg *Config, flagSet func(name string) bool) error {
	str := func(flag string, src *string, dst *string) {
		if src != nil && !flagSet(flag) {
			*dst = *src
		}
	}
	integer := func(flag string, src *int, dst *int) {
		if src != nil && !flagSet(flag) {
			*dst = *src
		}
	}
	boolean := func(flag string, src *bool, dst *bool) {
		if src != nil && !flagSet(flag) {
			*dst = *src
		}
	}
	var durErr error
	duration := func(flag string, src *string, dst *time.Duration) {
		if src == nil || flagSet(flag) || durErr != nil {
			return
		}
		d, err := time.ParseDuration(*src)
		if err != nil {
			durErr = fmt.Errorf("%s: %w", flag, err)
			return
		}
		*dst = d
	}

	str("token", fc.APIToken, &cfg.APIToken)
	str("api-url", fc.APIURL, &cfg.BaseURL)
	if fc.DefaultDimensions != nil && !flagSet("dimension") {
		cfg.DefaultDimensions = fc.DefaultDimensions
	}
	str("source", fc.DefaultSource, &cfg.DefaultSource)
	integer("max-batch-size", fc.MaxBatchSize, &cfg.MaxBatchSize)
	duration("max-time-between-batches", fc.MaxTimeBetweenBatches, &cfg.MaxTimeBetweenBatches)
	integer("max-pending-batches", fc.MaxPendingBatches, &cfg.MaxPendingBatches)
	integer("ingest-queue-size", fc.IngestQueueSize, &cfg.IngestQueueSize)
	integer("num-retries", fc.NumRetries, &cfg.NumRetries)
	duration("retry-delay", fc.RetryDelay, &cfg.RetryDelay)
	duration("retry-increment", fc.RetryIncrement, &cfg.RetryIncrement)
	duration("max-retry-delay", fc.MaxRetryDelay, &cfg.MaxRetryDelay)
	duration("post-timeout", fc.PostTimeout, &cfg.PostTimeout)
	str("encoding", fc.Encoding, &cfg.Encoding)
	boolean("gzip", fc.Gzip, &cfg.Compress)
	str("reserved-namespace", fc.ReservedNamespace, &cfg.ReservedNamespace)
	str("listen", fc.Listen, &cfg.ListenAddr)
	str("trusted-subnet", fc.TrustedSubnet, &cfg.TrustedSubnet)
	str("ingest-key", fc.IngestKey, &cfg.IngestKey)
	boolean("cloud-metadata", fc.CloudMetadata, &cfg.CloudMetadata)
	str("log-level", fc.LogLevel, &cfg.LogLevel)

	return durErr
}
