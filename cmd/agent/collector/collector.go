// Package collector gathers process and host metrics as buckets.
package collector

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/and161185/metrics-forwarder/model"
)

type Collector struct {
	namespace string
	tags      []string
	pollCount atomic.Int64
}

// New returns a Collector whose buckets use namespace as root and carry
// tags (key=value) on every entry.
func New(namespace string, tags []string) *Collector {
	return &Collector{namespace: namespace, tags: tags}
}

func (c *Collector) entry(name string, v float64) model.Entry {
	return model.Entry{Name: name, Value: v, Tags: c.tags}
}

// Runtime reads the Go runtime memory statistics. Every call counts as one
// poll.
func (c *Collector) Runtime() *model.GaugeBucket {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	c.pollCount.Add(1)

	return &model.GaugeBucket{
		RootNamespace: c.namespace,
		Gauges: []model.Entry{
			c.entry("runtime.Alloc", float64(m.Alloc)),
			c.entry("runtime.BuckHashSys", float64(m.BuckHashSys)),
			c.entry("runtime.Frees", float64(m.Frees)),
			c.entry("runtime.GCCPUFraction", m.GCCPUFraction),
			c.entry("runtime.GCSys", float64(m.GCSys)),
			c.entry("runtime.HeapAlloc", float64(m.HeapAlloc)),
			c.entry("runtime.HeapIdle", float64(m.HeapIdle)),
			c.entry("runtime.HeapInuse", float64(m.HeapInuse)),
			c.entry("runtime.HeapObjects", float64(m.HeapObjects)),
			c.entry("runtime.HeapReleased", float64(m.HeapReleased)),
			c.entry("runtime.HeapSys", float64(m.HeapSys)),
			c.entry("runtime.LastGC", float64(m.LastGC)),
			c.entry("runtime.Lookups", float64(m.Lookups)),
			c.entry("runtime.MCacheInuse", float64(m.MCacheInuse)),
			c.entry("runtime.MCacheSys", float64(m.MCacheSys)),
			c.entry("runtime.MSpanInuse", float64(m.MSpanInuse)),
			c.entry("runtime.MSpanSys", float64(m.MSpanSys)),
			c.entry("runtime.Mallocs", float64(m.Mallocs)),
			c.entry("runtime.NextGC", float64(m.NextGC)),
			c.entry("runtime.NumForcedGC", float64(m.NumForcedGC)),
			c.entry("runtime.NumGC", float64(m.NumGC)),
			c.entry("runtime.OtherSys", float64(m.OtherSys)),
			c.entry("runtime.PauseTotalNs", float64(m.PauseTotalNs)),
			c.entry("runtime.StackInuse", float64(m.StackInuse)),
			c.entry("runtime.StackSys", float64(m.StackSys)),
			c.entry("runtime.Sys", float64(m.Sys)),
			c.entry("runtime.TotalAlloc", float64(m.TotalAlloc)),
		},
	}
}

// Host reads memory totals and per-CPU utilization, tagged with cpu=<index>.
func (c *Collector) Host(ctx context.Context) (*model.GaugeBucket, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("virtual memory: %w", err)
	}
	percents, err := cpu.PercentWithContext(ctx, 0, true)
	if err != nil {
		return nil, fmt.Errorf("cpu percent: %w", err)
	}

	b := &model.GaugeBucket{
		RootNamespace: c.namespace,
		Gauges: []model.Entry{
			c.entry("memory.total", float64(vm.Total)),
			c.entry("memory.free", float64(vm.Free)),
		},
	}
	for i, p := range percents {
		tags := append(append([]string(nil), c.tags...), "cpu="+strconv.Itoa(i))
		b.Gauges = append(b.Gauges, model.Entry{Name: "cpu.utilization", Value: p, Tags: tags})
	}
	return b, nil
}

// Polls reports the runtime polls since the last ResetPollCount.
func (c *Collector) Polls() *model.CounterBucket {
	return &model.CounterBucket{
		RootNamespace: c.namespace,
		Items:         []model.Entry{c.entry("PollCount", float64(c.pollCount.Load()))},
	}
}

func (c *Collector) ResetPollCount() {
	c.pollCount.Store(0)
}
