package reporter

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/and161185/metrics-forwarder/model"
)

// Field numbers of the datapoint upload schema.
const (
	fieldUploadDatapoints protowire.Number = 1

	fieldDPSource     protowire.Number = 1
	fieldDPMetric     protowire.Number = 2
	fieldDPValue      protowire.Number = 4
	fieldDPMetricType protowire.Number = 5
	fieldDPDimensions protowire.Number = 6

	fieldDatumDouble protowire.Number = 2
	fieldDatumInt    protowire.Number = 3

	fieldDimKey   protowire.Number = 1
	fieldDimValue protowire.Number = 2
)

// Metric type enum values.
const (
	metricTypeGauge             = 0
	metricTypeCounter           = 1
	metricTypeCumulativeCounter = 3
)

var errMalformed = errors.New("malformed protobuf")

// MarshalProtobuf encodes msg as a DataPointUploadMessage. Datapoints are
// written gauges first, then counters, then cumulative counters.
func MarshalProtobuf(msg *Message) []byte {
	var b []byte
	groups := [...]struct {
		points []DataPoint
		typ    uint64
	}{
		{msg.Gauge, metricTypeGauge},
		{msg.Counter, metricTypeCounter},
		{msg.CumulativeCounter, metricTypeCumulativeCounter},
	}
	for _, g := range groups {
		for _, dp := range g.points {
			b = protowire.AppendTag(b, fieldUploadDatapoints, protowire.BytesType)
			b = protowire.AppendBytes(b, appendDataPoint(nil, dp, g.typ))
		}
	}
	return b
}

func appendDataPoint(b []byte, dp DataPoint, typ uint64) []byte {
	if dp.Source != "" {
		b = protowire.AppendTag(b, fieldDPSource, protowire.BytesType)
		b = protowire.AppendString(b, dp.Source)
	}
	b = protowire.AppendTag(b, fieldDPMetric, protowire.BytesType)
	b = protowire.AppendString(b, dp.Metric)

	var datum []byte
	datum = protowire.AppendTag(datum, fieldDatumDouble, protowire.Fixed64Type)
	datum = protowire.AppendFixed64(datum, math.Float64bits(dp.Value))
	b = protowire.AppendTag(b, fieldDPValue, protowire.BytesType)
	b = protowire.AppendBytes(b, datum)

	b = protowire.AppendTag(b, fieldDPMetricType, protowire.VarintType)
	b = protowire.AppendVarint(b, typ)

	for _, d := range dp.Dimensions {
		var dim []byte
		dim = protowire.AppendTag(dim, fieldDimKey, protowire.BytesType)
		dim = protowire.AppendString(dim, d.Key)
		dim = protowire.AppendTag(dim, fieldDimValue, protowire.BytesType)
		dim = protowire.AppendString(dim, d.Value)
		b = protowire.AppendTag(b, fieldDPDimensions, protowire.BytesType)
		b = protowire.AppendBytes(b, dim)
	}
	return b
}

// DecodeProtobuf parses a DataPointUploadMessage back into a Message.
// Unknown fields are skipped.
func DecodeProtobuf(b []byte) (*Message, error) {
	msg := &Message{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num != fieldUploadDatapoints || typ != protowire.BytesType {
			return nil
		}
		dp, err := decodeDataPoint(v)
		if err != nil {
			return err
		}
		switch dp.Kind {
		case model.Counter:
			msg.Counter = append(msg.Counter, dp)
		case model.CumulativeCounter:
			msg.CumulativeCounter = append(msg.CumulativeCounter, dp)
		default:
			msg.Gauge = append(msg.Gauge, dp)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func decodeDataPoint(b []byte) (DataPoint, error) {
	var dp DataPoint
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch {
		case num == fieldDPSource && typ == protowire.BytesType:
			dp.Source = string(v)
		case num == fieldDPMetric && typ == protowire.BytesType:
			dp.Metric = string(v)
		case num == fieldDPValue && typ == protowire.BytesType:
			val, err := decodeDatum(v)
			if err != nil {
				return err
			}
			dp.Value = val
		case num == fieldDPMetricType && typ == protowire.VarintType:
			t, n := protowire.ConsumeVarint(v)
			if n < 0 {
				return fmt.Errorf("%w: metric type: %w", errMalformed, protowire.ParseError(n))
			}
			switch t {
			case metricTypeCounter:
				dp.Kind = model.Counter
			case metricTypeCumulativeCounter:
				dp.Kind = model.CumulativeCounter
			default:
				dp.Kind = model.Gauge
			}
		case num == fieldDPDimensions && typ == protowire.BytesType:
			var d Dimension
			err := walk(v, func(num protowire.Number, typ protowire.Type, v []byte) error {
				switch {
				case num == fieldDimKey && typ == protowire.BytesType:
					d.Key = string(v)
				case num == fieldDimValue && typ == protowire.BytesType:
					d.Value = string(v)
				}
				return nil
			})
			if err != nil {
				return err
			}
			dp.Dimensions = append(dp.Dimensions, d)
		}
		return nil
	})
	return dp, err
}

func decodeDatum(b []byte) (float64, error) {
	var val float64
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch {
		case num == fieldDatumDouble && typ == protowire.Fixed64Type:
			bits, n := protowire.ConsumeFixed64(v)
			if n < 0 {
				return fmt.Errorf("%w: double value: %w", errMalformed, protowire.ParseError(n))
			}
			val = math.Float64frombits(bits)
		case num == fieldDatumInt && typ == protowire.VarintType:
			i, n := protowire.ConsumeVarint(v)
			if n < 0 {
				return fmt.Errorf("%w: int value: %w", errMalformed, protowire.ParseError(n))
			}
			val = float64(int64(i))
		}
		return nil
	})
	return val, err
}

// walk calls fn for every field in b. For length-delimited fields v is the
// payload; for other wire types v is the raw encoded value.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: tag: %w", errMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		var v []byte
		if typ == protowire.BytesType {
			payload, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return fmt.Errorf("%w: field %d: %w", errMalformed, num, protowire.ParseError(m))
			}
			v, n = payload, m
		} else {
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return fmt.Errorf("%w: field %d: %w", errMalformed, num, protowire.ParseError(m))
			}
			v, n = b[:m], m
		}
		b = b[n:]

		if err := fn(num, typ, v); err != nil {
			return err
		}
	}
	return nil
}
