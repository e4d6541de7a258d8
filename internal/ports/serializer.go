package ports

import "google.golang.org/protobuf/types/descriptorpb"

// Serializer converts records of type T into row payloads.
type Serializer[T any] interface {
	// Serialize returns the wire encoding of one row.
	Serialize(record T) ([]byte, error)

	// Schema describes the encoded rows.
	Schema() *descriptorpb.DescriptorProto
}
