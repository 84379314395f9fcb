package backend

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/and161185/metrics-forwarder/internal/batcher"
	"github.com/and161185/metrics-forwarder/internal/normalize"
	"github.com/and161185/metrics-forwarder/internal/reporter"
	"github.com/and161185/metrics-forwarder/internal/retry"
	"github.com/and161185/metrics-forwarder/model"
)

type endpoint struct {
	mu       sync.Mutex
	messages []*reporter.Message
	errs     []error
}

func (e *endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	var msg *reporter.Message
	if err == nil {
		msg, err = reporter.DecodeProtobuf(body)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.errs = append(e.errs, err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	e.messages = append(e.messages, msg)
	w.WriteHeader(http.StatusOK)
}

func (e *endpoint) merged() (reporter.Message, []error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var all reporter.Message
	for _, m := range e.messages {
		all.Gauge = append(all.Gauge, m.Gauge...)
		all.Counter = append(all.Counter, m.Counter...)
		all.CumulativeCounter = append(all.CumulativeCounter, m.CumulativeCounter...)
	}
	return all, append([]error(nil), e.errs...)
}

func TestBackend_DeliversToEndpoint(t *testing.T) {
	ep := &endpoint{}
	ts := httptest.NewServer(ep)
	defer ts.Close()

	rep, err := reporter.New(reporter.Config{
		BaseURL:           ts.URL,
		Token:             "secret",
		DefaultDimensions: map[string]string{"env": "prod", "host": "default"},
		DefaultSource:     "i-default",
		PostTimeout:       time.Second,
		Retry:             retry.Policy{NumRetries: 1, Delay: time.Millisecond, Increment: time.Millisecond},
	}, nil, nil, nil, nil)
	require.NoError(t, err)

	be, err := New(Options{
		ReservedNamespace: "statsdnet.statsdnet.",
		Batcher: batcher.Config{
			MaxBatchSize:          100,
			MaxTimeBetweenBatches: time.Hour,
			MaxPendingBatches:     4,
			IngestQueueSize:       100,
		},
		Sender:     rep,
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)

	require.True(t, be.Ingest(&model.TimingBucket{
		RootNamespace: "app.",
		Latencies: []model.Latency{{
			Name:  "api.rt[host=web1,source=box1]",
			Count: 5, Min: 1, Max: 10, Mean: 5.5, Sum: 27.5, SumSquares: 200,
		}},
	}))
	require.True(t, be.Ingest(&model.CounterBucket{
		RootNamespace: "app.",
		Items:         []model.Entry{{Name: "hits", Value: 3, Tags: []string{"metric=renamed.hits"}}},
	}))
	require.True(t, be.Ingest(&model.GaugeBucket{
		RootNamespace: "statsdnet.statsdnet.",
		Gauges:        []model.Entry{{Name: "self", Value: 1}},
	}))
	drain(t, be)

	got, decodeErrs := ep.merged()
	require.Empty(t, decodeErrs)
	require.Empty(t, got.CumulativeCounter)

	wantDims := []reporter.Dimension{{Key: "env", Value: "prod"}, {Key: "host", Value: "web1"}}
	want := map[string]float64{
		"app.api.rt" + normalize.SuffixCount:      5,
		"app.api.rt" + normalize.SuffixMin:        1,
		"app.api.rt" + normalize.SuffixMax:        10,
		"app.api.rt" + normalize.SuffixMean:       5.5,
		"app.api.rt" + normalize.SuffixSum:        27.5,
		"app.api.rt" + normalize.SuffixSumSquares: 200,
	}
	require.Len(t, got.Gauge, len(want))
	for _, dp := range got.Gauge {
		v, ok := want[dp.Metric]
		require.True(t, ok, "unexpected gauge %s", dp.Metric)
		require.Equal(t, v, dp.Value, dp.Metric)
		require.Equal(t, "box1", dp.Source, "source dimension becomes the datapoint source")
		require.Equal(t, wantDims, dp.Dimensions, "entry dimensions win over defaults")
		delete(want, dp.Metric)
	}

	require.Equal(t, []reporter.DataPoint{{
		Metric: "renamed.hits",
		Source: "i-default",
		Value:  3,
		Kind:   model.Counter,
		Dimensions: []reporter.Dimension{
			{Key: "env", Value: "prod"},
			{Key: "host", Value: "default"},
		},
	}}, got.Counter)
}
