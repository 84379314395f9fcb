package reporter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/metrics-forwarder/model"
)

func TestBuildMessage_GroupsByKind(t *testing.T) {
	batch := []model.Datapoint{
		{Metric: "g", Value: 1, Kind: model.Gauge},
		{Metric: "c", Value: 2, Kind: model.Counter},
		{Metric: "cc", Value: 3, Kind: model.CumulativeCounter},
		{Metric: "g2", Value: 4, Kind: model.Gauge},
	}
	msg := BuildMessage(batch, nil, "host-1")

	require.Equal(t, 4, msg.Len())
	require.Equal(t, []DataPoint{
		{Metric: "g", Source: "host-1", Value: 1, Kind: model.Gauge},
		{Metric: "g2", Source: "host-1", Value: 4, Kind: model.Gauge},
	}, msg.Gauge)
	require.Equal(t, []DataPoint{{Metric: "c", Source: "host-1", Value: 2, Kind: model.Counter}}, msg.Counter)
	require.Equal(t, []DataPoint{{Metric: "cc", Source: "host-1", Value: 3, Kind: model.CumulativeCounter}}, msg.CumulativeCounter)
}

func TestBuildMessage_DefaultsMergeDatapointWins(t *testing.T) {
	defaults := map[string]string{"env": "prod", "dc": "eu"}
	batch := []model.Datapoint{{
		Metric:     "m",
		Kind:       model.Gauge,
		Dimensions: map[string]string{"dc": "us", "host": "a"},
	}}

	msg := BuildMessage(batch, defaults, "")
	require.Equal(t, []Dimension{
		{Key: "dc", Value: "us"},
		{Key: "env", Value: "prod"},
		{Key: "host", Value: "a"},
	}, msg.Gauge[0].Dimensions)
	require.Equal(t, "eu", defaults["dc"], "defaults must not be modified")
}

func TestBuildMessage_ReservedOverrides(t *testing.T) {
	batch := []model.Datapoint{{
		Metric: "computed.name",
		Value:  7,
		Kind:   model.Counter,
		Dimensions: map[string]string{
			KeyMetric: "override.name",
			KeySource: "custom-source",
			"region":  "west",
		},
	}}

	msg := BuildMessage(batch, map[string]string{"team": "core"}, "default-source")
	require.Len(t, msg.Counter, 1)
	dp := msg.Counter[0]
	require.Equal(t, "override.name", dp.Metric)
	require.Equal(t, "custom-source", dp.Source)
	require.Equal(t, []Dimension{{Key: "region", Value: "west"}, {Key: "team", Value: "core"}}, dp.Dimensions)
	require.Contains(t, batch[0].Dimensions, KeyMetric, "input datapoint must not be modified")
}

func TestMessage_JSON(t *testing.T) {
	msg := BuildMessage([]model.Datapoint{
		{Metric: "c", Value: 2, Kind: model.Counter, Dimensions: map[string]string{"k": "v"}},
	}, nil, "src")

	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	require.JSONEq(t, `{"counter":[{"metric":"c","source":"src","value":2,"dimensions":{"k":"v"}}]}`, string(raw))
}
