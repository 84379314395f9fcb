// Package normalize turns aggregated buckets into datapoints.
package normalize

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"go.uber.org/zap"

	"github.com/and161185/metrics-forwarder/internal/dimensions"
	"github.com/and161185/metrics-forwarder/model"
)

var errNoSamples = errors.New("no samples")

// Timing fan-out suffixes, in emission order.
const (
	SuffixCount      = ".count"
	SuffixMin        = ".min"
	SuffixMax        = ".max"
	SuffixMean       = ".mean"
	SuffixSum        = ".sum"
	SuffixSumSquares = ".sumSquares"
)

// Normalizer converts buckets into datapoints. It holds no mutable state and
// is safe for concurrent use.
type Normalizer struct {
	logger *zap.SugaredLogger
}

// New returns a Normalizer. A nil logger discards output.
func New(logger *zap.SugaredLogger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Normalizer{logger: logger}
}

// Normalize returns the datapoints for every entry of b. Entries that cannot
// produce a value are skipped.
func (n *Normalizer) Normalize(b model.Bucket) []model.Datapoint {
	switch b := b.(type) {
	case *model.CounterBucket:
		return n.entries(b.RootNamespace, b.Items, model.Counter)
	case *model.GaugeBucket:
		return n.entries(b.RootNamespace, b.Gauges, model.Gauge)
	case *model.PercentileBucket:
		return n.percentiles(b)
	case *model.TimingBucket:
		return n.timings(b)
	default:
		n.logger.Warnw("unsupported bucket", "type", fmt.Sprintf("%T", b))
		return nil
	}
}

func (n *Normalizer) entries(root string, items []model.Entry, kind model.MetricKind) []model.Datapoint {
	res := make([]model.Datapoint, 0, len(items))
	for _, e := range items {
		name, dims := dimensions.Parse(e.Name, e.Tags)
		res = append(res, model.Datapoint{
			Metric:     root + name,
			Value:      e.Value,
			Kind:       kind,
			Dimensions: dims,
		})
	}
	return res
}

func (n *Normalizer) percentiles(b *model.PercentileBucket) []model.Datapoint {
	if b.Percentile <= 0 || b.Percentile > 100 {
		n.logger.Debugw("skipping percentile bucket",
			"percentile", b.Percentile,
			"namespace", b.RootNamespace)
		return nil
	}
	q := b.Percentile / 100

	res := make([]model.Datapoint, 0, len(b.Timings))
	for _, s := range b.Timings {
		v, err := n.quantile(s.Values, q)
		if err != nil {
			n.logger.Debugw("percentile not computed", "metric", s.Name, "error", err)
			continue
		}
		name, dims := dimensions.Parse(s.Name, s.Tags)
		res = append(res, model.Datapoint{
			Metric:     b.RootNamespace + name + b.PercentileName,
			Value:      v,
			Kind:       model.Gauge,
			Dimensions: dims,
		})
	}
	return res
}

// quantile returns the nearest-rank sample for q in (0, 1]: the smallest
// sample with at least q of the samples at or below it.
func (n *Normalizer) quantile(values []float64, q float64) (float64, error) {
	if len(values) == 0 {
		return 0, errNoSamples
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	// the epsilon absorbs float noise in q, e.g. 0.07*100 > 7
	rank := int(math.Ceil(q*float64(len(sorted)) - 1e-9))
	rank = max(1, min(rank, len(sorted)))
	return sorted[rank-1], nil
}

func (n *Normalizer) timings(b *model.TimingBucket) []model.Datapoint {
	res := make([]model.Datapoint, 0, 6*len(b.Latencies))
	for _, l := range b.Latencies {
		name, dims := dimensions.Parse(l.Name, l.Tags)
		base := b.RootNamespace + name
		stats := [...]struct {
			suffix string
			value  float64
		}{
			{SuffixCount, l.Count},
			{SuffixMin, l.Min},
			{SuffixMax, l.Max},
			{SuffixMean, l.Mean},
			{SuffixSum, l.Sum},
			{SuffixSumSquares, l.SumSquares},
		}
		for _, s := range stats {
			// every sub-metric owns its dimension map
			res = append(res, model.NewDatapoint(base+s.suffix, s.value, model.Gauge, dims))
		}
	}
	return res
}
