package wire

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ProtoCodec encodes values as a google.protobuf.Value.
type ProtoCodec struct{}

func (ProtoCodec) Name() string { return "proto" }

func (ProtoCodec) Marshal(v any) ([]byte, error) {
	tree, err := toTree(v)
	if err != nil {
		return nil, err
	}
	pv, err := structpb.NewValue(tree)
	if err != nil {
		return nil, fmt.Errorf("wire: build proto value: %w", err)
	}
	return proto.MarshalOptions{Deterministic: true}.Marshal(pv)
}

func (ProtoCodec) Unmarshal(data []byte, v any) error {
	var pv structpb.Value
	if err := proto.Unmarshal(data, &pv); err != nil {
		return err
	}
	if pv.GetKind() == nil {
		return fmt.Errorf("wire: proto value has no kind")
	}
	tree := pv.AsInterface()
	if p, ok := v.(*any); ok {
		*p = tree
		return nil
	}
	return DecodeBody(tree, v)
}

// toTree converts v into the map[string]any / []any shapes structpb accepts.
func toTree(v any) (any, error) {
	switch v.(type) {
	case nil, bool, string, float64, map[string]any, []any:
		if !needsReshape(v) {
			return v, nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: flatten value: %w", err)
	}
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("wire: flatten value: %w", err)
	}
	return tree, nil
}

func needsReshape(v any) bool {
	switch t := v.(type) {
	case map[string]any:
		for _, e := range t {
			if needsReshape(e) {
				return true
			}
		}
		return false
	case []any:
		for _, e := range t {
			if needsReshape(e) {
				return true
			}
		}
		return false
	case nil, bool, string, float64:
		return false
	default:
		return true
	}
}
