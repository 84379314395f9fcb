package reporter

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/and161185/metrics-forwarder/internal/errs"
)

// Encoding names accepted by NewEncoder.
const (
	EncodingProtobuf = "protobuf"
	EncodingJSON     = "json"
)

// Encoder serializes an upload message for one content type.
type Encoder interface {
	ContentType() string
	Encode(w io.Writer, msg *Message) error
}

// NewEncoder returns the encoder for name.
func NewEncoder(name string) (Encoder, error) {
	switch name {
	case EncodingProtobuf, "":
		return ProtobufEncoder{}, nil
	case EncodingJSON:
		return JSONEncoder{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown encoding %q", errs.ErrInvalidConfig, name)
	}
}

// ProtobufEncoder writes the binary DataPointUploadMessage.
type ProtobufEncoder struct{}

func (ProtobufEncoder) ContentType() string { return "application/x-protobuf" }

func (ProtobufEncoder) Encode(w io.Writer, msg *Message) error {
	if _, err := w.Write(MarshalProtobuf(msg)); err != nil {
		return fmt.Errorf("write protobuf: %w", err)
	}
	return nil
}

// JSONEncoder writes the message grouped by metric kind.
type JSONEncoder struct{}

func (JSONEncoder) ContentType() string { return "application/json" }

func (JSONEncoder) Encode(w io.Writer, msg *Message) error {
	if err := json.NewEncoder(w).Encode(msg); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}
