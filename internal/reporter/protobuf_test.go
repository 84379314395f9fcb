package reporter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/metrics-forwarder/model"
)

func TestMarshalProtobuf_Bytes(t *testing.T) {
	msg := &Message{Gauge: []DataPoint{{Metric: "m", Value: 1}}}

	want := []byte{
		0x0a, 0x10, // datapoints, 16 bytes
		0x12, 0x01, 'm', // metric
		0x22, 0x09, 0x11, 0, 0, 0, 0, 0, 0, 0xf0, 0x3f, // value.doubleValue = 1.0
		0x28, 0x00, // metricType = GAUGE
	}
	require.Equal(t, want, MarshalProtobuf(msg))
}

func TestDecodeProtobuf(t *testing.T) {
	msg := &Message{
		Gauge: []DataPoint{{
			Metric:     "cpu",
			Source:     "i-123",
			Value:      0.5,
			Kind:       model.Gauge,
			Dimensions: []Dimension{{Key: "core", Value: "0"}, {Key: "host", Value: "a"}},
		}},
		Counter:           []DataPoint{{Metric: "hits", Value: 10, Kind: model.Counter}},
		CumulativeCounter: []DataPoint{{Metric: "total", Value: -3, Kind: model.CumulativeCounter}},
	}

	got, err := DecodeProtobuf(MarshalProtobuf(msg))
	require.NoError(t, err)
	require.Equal(t, msg, got)
}

func TestDecodeProtobuf_Malformed(t *testing.T) {
	_, err := DecodeProtobuf([]byte{0x0a, 0x10, 0x12})
	require.ErrorIs(t, err, errMalformed)
}
