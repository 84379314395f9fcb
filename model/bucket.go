package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// BucketKind names a bucket variant on the wire.
type BucketKind string

const (
	KindCounter    BucketKind = "counter"
	KindGauge      BucketKind = "gauge"
	KindPercentile BucketKind = "percentile"
	KindTiming     BucketKind = "timing"
)

// Bucket is a pre-aggregated group of samples of one kind. The set of
// implementations is closed: CounterBucket, GaugeBucket, PercentileBucket
// and TimingBucket.
type Bucket interface {
	Kind() BucketKind
	Namespace() string
	isBucket()
}

// Entry is a single named value. Name may carry a bracket-encoded dimension
// suffix; Tags, when present, use the escaped key=value encoding.
type Entry struct {
	Name  string   `json:"name"`
	Value float64  `json:"value"`
	Tags  []string `json:"tags,omitempty"`
}

// Samples holds raw timing samples for percentile computation.
type Samples struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
	Tags   []string  `json:"tags,omitempty"`
}

// Latency is a timing summary computed by the aggregator.
type Latency struct {
	Name       string   `json:"name"`
	Count      float64  `json:"count"`
	Min        float64  `json:"min"`
	Max        float64  `json:"max"`
	Mean       float64  `json:"mean"`
	Sum        float64  `json:"sum"`
	SumSquares float64  `json:"sumSquares"`
	Tags       []string `json:"tags,omitempty"`
}

type CounterBucket struct {
	RootNamespace string  `json:"rootNamespace"`
	Items         []Entry `json:"items"`
}

type GaugeBucket struct {
	RootNamespace string  `json:"rootNamespace"`
	Gauges        []Entry `json:"gauges"`
}

// PercentileBucket asks for one percentile over each set of samples.
// PercentileName is appended to the metric name, Percentile is in (0, 100].
type PercentileBucket struct {
	RootNamespace  string    `json:"rootNamespace"`
	PercentileName string    `json:"percentileName"`
	Percentile     float64   `json:"percentile"`
	Timings        []Samples `json:"timings"`
}

type TimingBucket struct {
	RootNamespace string    `json:"rootNamespace"`
	Latencies     []Latency `json:"latencies"`
}

func (b *CounterBucket) Kind() BucketKind    { return KindCounter }
func (b *GaugeBucket) Kind() BucketKind      { return KindGauge }
func (b *PercentileBucket) Kind() BucketKind { return KindPercentile }
func (b *TimingBucket) Kind() BucketKind     { return KindTiming }

func (b *CounterBucket) Namespace() string    { return b.RootNamespace }
func (b *GaugeBucket) Namespace() string      { return b.RootNamespace }
func (b *PercentileBucket) Namespace() string { return b.RootNamespace }
func (b *TimingBucket) Namespace() string     { return b.RootNamespace }

func (*CounterBucket) isBucket()    {}
func (*GaugeBucket) isBucket()      {}
func (*PercentileBucket) isBucket() {}
func (*TimingBucket) isBucket()     {}

// ErrUnknownBucketKind is returned when a bucket envelope names no known kind.
var ErrUnknownBucketKind = errors.New("unknown bucket kind")

type envelope struct {
	Type BucketKind `json:"type"`
}

// DecodeBucket decodes a JSON bucket envelope of the form
// {"type":"counter","rootNamespace":"...","items":[...]}.
func DecodeBucket(data []byte) (Bucket, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode bucket envelope: %w", err)
	}

	var b Bucket
	switch env.Type {
	case KindCounter:
		b = &CounterBucket{}
	case KindGauge:
		b = &GaugeBucket{}
	case KindPercentile:
		b = &PercentileBucket{}
	case KindTiming:
		b = &TimingBucket{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBucketKind, env.Type)
	}

	if err := json.Unmarshal(data, b); err != nil {
		return nil, fmt.Errorf("decode %s bucket: %w", env.Type, err)
	}
	return b, nil
}

// DecodeBuckets accepts either a single envelope or a JSON array of them.
func DecodeBuckets(data []byte) ([]Bucket, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		b, err := DecodeBucket(data)
		if err != nil {
			return nil, err
		}
		return []Bucket{b}, nil
	}

	res := make([]Bucket, 0, len(raw))
	for i, r := range raw {
		b, err := DecodeBucket(r)
		if err != nil {
			return nil, fmt.Errorf("bucket %d: %w", i, err)
		}
		res = append(res, b)
	}
	return res, nil
}

// EncodeBucket encodes b as a typed envelope readable by DecodeBucket.
func EncodeBucket(b Bucket) ([]byte, error) {
	var v any
	switch t := b.(type) {
	case *CounterBucket:
		v = struct {
			Type BucketKind `json:"type"`
			*CounterBucket
		}{KindCounter, t}
	case *GaugeBucket:
		v = struct {
			Type BucketKind `json:"type"`
			*GaugeBucket
		}{KindGauge, t}
	case *PercentileBucket:
		v = struct {
			Type BucketKind `json:"type"`
			*PercentileBucket
		}{KindPercentile, t}
	case *TimingBucket:
		v = struct {
			Type BucketKind `json:"type"`
			*TimingBucket
		}{KindTiming, t}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownBucketKind, b)
	}
	return json.Marshal(v)
}

// EncodeBuckets encodes bs as a JSON array of envelopes.
func EncodeBuckets(bs []Bucket) ([]byte, error) {
	raw := make([]json.RawMessage, 0, len(bs))
	for i, b := range bs {
		data, err := EncodeBucket(b)
		if err != nil {
			return nil, fmt.Errorf("bucket %d: %w", i, err)
		}
		raw = append(raw, data)
	}
	return json.Marshal(raw)
}
