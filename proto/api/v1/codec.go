package apiv1

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Codec encodes the messages of this package in the protobuf wire format.
// It satisfies both grpc's encoding.Codec and connect.Codec. Values that are
// not messages of this package fall back to the standard proto runtime.
type Codec struct{}

func (Codec) Name() string { return "proto" }

func (Codec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case Message:
		return m.AppendWire(nil), nil
	case proto.Message:
		return proto.Marshal(m)
	}
	return nil, fmt.Errorf("apiv1: cannot marshal %T", v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case Message:
		return m.UnmarshalWire(data)
	case proto.Message:
		return proto.Unmarshal(data, m)
	}
	return fmt.Errorf("apiv1: cannot unmarshal into %T", v)
}

// JSONCodec encodes messages with protojson: camelCase names on output, proto
// or camelCase names on input, and 64-bit ids as strings or numbers. Messages
// pass through dynamicpb using the wire encoding of Codec.
type JSONCodec struct {
	name string
}

// NewJSONCodec returns a JSON codec registered under name, e.g. "json" or
// "json; charset=utf-8".
func NewJSONCodec(name string) JSONCodec {
	return JSONCodec{name: name}
}

// JSONCodecs returns the codecs for every JSON content type Connect negotiates.
func JSONCodecs() []JSONCodec {
	return []JSONCodec{NewJSONCodec("json"), NewJSONCodec("json; charset=utf-8")}
}

func (c JSONCodec) Name() string {
	if c.name == "" {
		return "json"
	}
	return c.name
}

func (JSONCodec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case Message:
		md, ok := descriptorOf(m)
		if !ok {
			return nil, fmt.Errorf("apiv1: no descriptor for %T", v)
		}
		dyn := dynamicpb.NewMessage(md)
		if err := proto.Unmarshal(m.AppendWire(nil), dyn); err != nil {
			return nil, err
		}
		return protojson.Marshal(dyn)
	case proto.Message:
		return protojson.Marshal(m)
	}
	return nil, fmt.Errorf("apiv1: cannot marshal %T", v)
}

func (JSONCodec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case Message:
		md, ok := descriptorOf(m)
		if !ok {
			return fmt.Errorf("apiv1: no descriptor for %T", v)
		}
		dyn := dynamicpb.NewMessage(md)
		if len(data) > 0 {
			if err := protojson.Unmarshal(data, dyn); err != nil {
				return err
			}
		}
		b, err := proto.Marshal(dyn)
		if err != nil {
			return err
		}
		return m.UnmarshalWire(b)
	case proto.Message:
		return protojson.Unmarshal(data, m)
	}
	return fmt.Errorf("apiv1: cannot unmarshal into %T", v)
}
