// Package hostinfo resolves the default source sent with datapoints.
package hostinfo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/host"
	"go.uber.org/zap"
)

// InstanceIDURL is the cloud metadata endpoint returning the instance id.
const InstanceIDURL = "http://169.254.169.254/latest/meta-data/instance-id"

const metadataTimeout = 2 * time.Second

// Resolver picks the default source: the configured value, else the cloud
// instance id when enabled, else the host name.
type Resolver struct {
	CloudMetadata bool
	MetadataURL   string
	Client        *http.Client
	Logger        *zap.SugaredLogger

	// Hostname defaults to the gopsutil host name with os.Hostname as fallback.
	Hostname func(ctx context.Context) (string, error)
}

// NewResolver returns a Resolver using the default metadata endpoint.
func NewResolver(cloudMetadata bool, logger *zap.SugaredLogger) *Resolver {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Resolver{
		CloudMetadata: cloudMetadata,
		MetadataURL:   InstanceIDURL,
		Client:        &http.Client{Timeout: metadataTimeout},
		Logger:        logger,
		Hostname:      hostname,
	}
}

// Source returns configured if set, otherwise the best source it can find.
// It returns "" only if every lookup failed.
func (r *Resolver) Source(ctx context.Context, configured string) string {
	if configured != "" {
		return configured
	}

	if r.CloudMetadata {
		id, err := r.instanceID(ctx)
		if err == nil {
			r.Logger.Infow("using cloud instance id as source", "source", id)
			return id
		}
		r.Logger.Warnw("cloud instance id lookup failed, falling back to host name", "error", err)
	}

	lookup := r.Hostname
	if lookup == nil {
		lookup = hostname
	}
	name, err := lookup(ctx)
	if err != nil {
		r.Logger.Warnw("host name lookup failed, datapoints carry no default source", "error", err)
		return ""
	}
	return name
}

func (r *Resolver) instanceID(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.MetadataURL, nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("get instance id: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("get instance id: unexpected status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", fmt.Errorf("read instance id: %w", err)
	}
	id := strings.TrimSpace(string(b))
	if id == "" {
		return "", fmt.Errorf("empty instance id")
	}
	return id, nil
}

func hostname(ctx context.Context) (string, error) {
	info, err := host.InfoWithContext(ctx)
	if err == nil && info.Hostname != "" {
		return info.Hostname, nil
	}
	return os.Hostname()
}
