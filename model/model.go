// Package model contains core data types for the project.
package model

import "fmt"

// MetricKind defines how the ingest endpoint interprets a datapoint value.
type MetricKind int

const (
	Gauge             MetricKind = iota // Gauge is a point-in-time value.
	Counter                             // Counter is a per-interval count.
	CumulativeCounter                   // CumulativeCounter is a monotonically increasing total.
)

// String returns the wire list name of the kind.
func (k MetricKind) String() string {
	switch k {
	case Gauge:
		return "gauge"
	case Counter:
		return "counter"
	case CumulativeCounter:
		return "cumulative_counter"
	default:
		return fmt.Sprintf("MetricKind(%d)", int(k))
	}
}

// Datapoint is one normalized record ready for transmission.
// It must not be modified after construction.
type Datapoint struct {
	Metric     string            // Full metric name.
	Value      float64           // Datapoint value.
	Kind       MetricKind        // Gauge, counter or cumulative counter.
	Dimensions map[string]string // Datapoint-specific dimensions.
}

// NewDatapoint builds a Datapoint that owns a private copy of dims.
func NewDatapoint(metric string, value float64, kind MetricKind, dims map[string]string) Datapoint {
	own := make(map[string]string, len(dims))
	for k, v := range dims {
		own[k] = v
	}
	return Datapoint{Metric: metric, Value: value, Kind: kind, Dimensions: own}
}

func (dp Datapoint) String() string {
	return fmt.Sprintf("DP[%s %s %v %v]", dp.Kind, dp.Metric, dp.Value, dp.Dimensions)
}
