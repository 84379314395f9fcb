// Package reporter delivers batches of datapoints to the ingest endpoint.
package reporter

import (
	"encoding/json"
	"sort"

	"github.com/and161185/metrics-forwarder/model"
)

// Reserved dimension keys. When present they replace the metric name or
// source and are not sent as dimensions.
const (
	KeyMetric = "metric"
	KeySource = "source"
)

// Dimension is one key/value pair on the wire.
type Dimension struct {
	Key   string
	Value string
}

// DataPoint is a datapoint in wire form. Dimensions are sorted by key.
type DataPoint struct {
	Metric     string
	Source     string
	Dimensions []Dimension
	Value      float64
	Kind       model.MetricKind
}

// Message is the upload message, grouped by metric kind.
type Message struct {
	Gauge             []DataPoint `json:"gauge,omitempty"`
	Counter           []DataPoint `json:"counter,omitempty"`
	CumulativeCounter []DataPoint `json:"cumulative_counter,omitempty"`
}

// Len returns the number of datapoints in m.
func (m *Message) Len() int {
	return len(m.Gauge) + len(m.Counter) + len(m.CumulativeCounter)
}

// BuildMessage converts a batch into the upload message. Each datapoint's
// dimensions are merged over defaults, the datapoint winning on collision.
// The reserved keys "metric" and "source" override the metric name and
// defaultSource.
func BuildMessage(batch []model.Datapoint, defaults map[string]string, defaultSource string) *Message {
	msg := &Message{}
	for _, dp := range batch {
		merged := make(map[string]string, len(defaults)+len(dp.Dimensions))
		for k, v := range defaults {
			merged[k] = v
		}
		for k, v := range dp.Dimensions {
			merged[k] = v
		}

		wdp := DataPoint{
			Metric: dp.Metric,
			Source: defaultSource,
			Value:  dp.Value,
			Kind:   dp.Kind,
		}
		if v, ok := merged[KeyMetric]; ok {
			wdp.Metric = v
			delete(merged, KeyMetric)
		}
		if v, ok := merged[KeySource]; ok {
			wdp.Source = v
			delete(merged, KeySource)
		}

		if len(merged) > 0 {
			wdp.Dimensions = make([]Dimension, 0, len(merged))
			for k, v := range merged {
				wdp.Dimensions = append(wdp.Dimensions, Dimension{Key: k, Value: v})
			}
			sort.Slice(wdp.Dimensions, func(i, j int) bool {
				return wdp.Dimensions[i].Key < wdp.Dimensions[j].Key
			})
		}

		switch dp.Kind {
		case model.Counter:
			msg.Counter = append(msg.Counter, wdp)
		case model.CumulativeCounter:
			msg.CumulativeCounter = append(msg.CumulativeCounter, wdp)
		default:
			msg.Gauge = append(msg.Gauge, wdp)
		}
	}
	return msg
}

type jsonDataPoint struct {
	Metric     string            `json:"metric"`
	Source     string            `json:"source,omitempty"`
	Value      float64           `json:"value"`
	Dimensions map[string]string `json:"dimensions,omitempty"`
}

// MarshalJSON writes dimensions as a JSON object.
func (dp DataPoint) MarshalJSON() ([]byte, error) {
	j := jsonDataPoint{Metric: dp.Metric, Source: dp.Source, Value: dp.Value}
	if len(dp.Dimensions) > 0 {
		j.Dimensions = make(map[string]string, len(dp.Dimensions))
		for _, d := range dp.Dimensions {
			j.Dimensions[d.Key] = d.Value
		}
	}
	return json.Marshal(j)
}
