package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Codec turns structural values into bytes and back.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// ByName resolves a codec from configuration. An empty name selects JSON.
func ByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "proto", "protobuf":
		return ProtoCodec{}, nil
	default:
		return nil, fmt.Errorf("wire: unknown codec %q", name)
	}
}

// Extension returns the file extension used for artifacts written with c.
func Extension(c Codec) string {
	switch c.Name() {
	case "proto":
		return ".pb"
	default:
		return "." + c.Name()
	}
}

// Body is a decoded envelope body together with the codec that produced it.
type Body struct {
	value any
}

// NewBody wraps a decoded value.
func NewBody(v any) Body {
	return Body{value: v}
}

// Value returns the generic tree.
func (b Body) Value() any {
	return b.value
}

// Decode reshapes the body into a typed value.
func (b Body) Decode(into any) error {
	return DecodeBody(b.value, into)
}

// DecodeBody reshapes a generic tree into a typed Go value.
// Number literals survive the trip unchanged.
func DecodeBody(tree any, into any) error {
	raw, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("wire: reshape body: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(into); err != nil {
		return fmt.Errorf("wire: reshape body: %w", err)
	}
	return nil
}
