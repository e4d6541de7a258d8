package serializer

import (
	"fmt"

	"cloud.google.com/go/bigquery/storage/managedwriter/adapt"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

// ProtoSerializer encodes generated protobuf messages.
type ProtoSerializer[M proto.Message] struct {
	descriptor *descriptorpb.DescriptorProto
}

// NewProtoSerializer creates a serializer for messages of the same type as
// template. Nested message types are inlined into the descriptor.
func NewProtoSerializer[M proto.Message](template M) (*ProtoSerializer[M], error) {
	dp, err := adapt.NormalizeDescriptor(template.ProtoReflect().Descriptor())
	if err != nil {
		return nil, fmt.Errorf("normalize descriptor: %w", err)
	}
	return &ProtoSerializer[M]{descriptor: dp}, nil
}

// Serialize returns the wire encoding of record.
func (s *ProtoSerializer[M]) Serialize(record M) ([]byte, error) {
	return proto.Marshal(record)
}

// Schema returns the row descriptor.
func (s *ProtoSerializer[M]) Schema() *descriptorpb.DescriptorProto {
	return s.descriptor
}
