// Package serializer converts records into Storage Write API row payloads.
package serializer

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// JSONSerializer encodes JSON objects as protobuf rows of a dynamic message
// type.
type JSONSerializer struct {
	message    protoreflect.MessageDescriptor
	descriptor *descriptorpb.DescriptorProto
	unmarshal  protojson.UnmarshalOptions
}

// JSONOption configures a JSONSerializer.
type JSONOption func(*JSONSerializer)

// WithDiscardUnknown drops JSON fields that are not in the schema instead
// of failing.
func WithDiscardUnknown() JSONOption {
	return func(s *JSONSerializer) {
		s.unmarshal.DiscardUnknown = true
	}
}

// NewJSONSerializer creates a serializer for message. descriptor is the
// schema sent to the service; nil derives it from message.
func NewJSONSerializer(message protoreflect.MessageDescriptor, descriptor *descriptorpb.DescriptorProto, opts ...JSONOption) *JSONSerializer {
	if descriptor == nil {
		descriptor = protodesc.ToDescriptorProto(message)
	}
	s := &JSONSerializer{message: message, descriptor: descriptor}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serialize parses one JSON object and returns its wire encoding.
func (s *JSONSerializer) Serialize(record []byte) ([]byte, error) {
	msg := dynamicpb.NewMessage(s.message)
	if err := s.unmarshal.Unmarshal(record, msg); err != nil {
		return nil, fmt.Errorf("decode json row: %w", err)
	}
	b, err := proto.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	return b, nil
}

// Schema returns the row descriptor.
func (s *JSONSerializer) Schema() *descriptorpb.DescriptorProto {
	return s.descriptor
}
