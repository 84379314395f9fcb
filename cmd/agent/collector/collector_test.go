package collector

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/metrics-forwarder/internal/normalize"
	"github.com/and161185/metrics-forwarder/model"
)

func gauge(b *model.GaugeBucket, name string) (model.Entry, bool) {
	for _, e := range b.Gauges {
		if e.Name == name {
			return e, true
		}
	}
	return model.Entry{}, false
}

func TestRuntime(t *testing.T) {
	c := New("host.", []string{"host=a"})
	b := c.Runtime()

	require.Equal(t, "host.", b.Namespace())
	require.Len(t, b.Gauges, 27)

	seen := map[string]struct{}{}
	for _, e := range b.Gauges {
		_, dup := seen[e.Name]
		require.False(t, dup, "duplicate metric %s", e.Name)
		seen[e.Name] = struct{}{}
		require.Equal(t, []string{"host=a"}, e.Tags)
		require.True(t, strings.HasPrefix(e.Name, "runtime."), "unexpected metric %s", e.Name)
	}

	alloc, ok := gauge(b, "runtime.Alloc")
	require.True(t, ok)
	require.Positive(t, alloc.Value)
}

func TestPollCount(t *testing.T) {
	c := New("host.", nil)
	c.Runtime()
	c.Runtime()
	require.Equal(t, 2.0, c.Polls().Items[0].Value)

	c.ResetPollCount()
	c.Runtime()
	require.Equal(t, 1.0, c.Polls().Items[0].Value)
}

func TestHost_Smoke(t *testing.T) {
	c := New("host.", []string{"host=a"})
	b, err := c.Host(context.Background())
	if err != nil {
		t.Skipf("host metrics unavailable: %v", err)
	}

	total, ok := gauge(b, "memory.total")
	require.True(t, ok)
	require.Positive(t, total.Value)

	dps := normalize.New(nil).Normalize(b)
	for _, dp := range dps {
		if dp.Metric == "host.cpu.utilization" {
			require.Contains(t, dp.Dimensions, "cpu")
			require.Equal(t, "a", dp.Dimensions["host"])
		}
	}
}
