package bigquery

import (
	"context"
	"fmt"
	"os"

	bq "cloud.google.com/go/bigquery"
	"cloud.google.com/go/bigquery/storage/managedwriter/adapt"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
)

// LoadSchemaFile reads a table schema in the JSON format used by the bq
// command line tool.
func LoadSchemaFile(path string) (bq.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	schema, err := bq.SchemaFromJSON(data)
	if err != nil {
		return nil, fmt.Errorf("parse schema file %s: %w", path, err)
	}
	return schema, nil
}

// FetchSchema reads the schema of an existing table.
func FetchSchema(ctx context.Context, project, dataset, table string, opts ...option.ClientOption) (bq.Schema, error) {
	client, err := bq.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bigquery client: %w", err)
	}
	defer client.Close()

	md, err := client.Dataset(dataset).Table(table).Metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch metadata of %s.%s: %w", dataset, table, err)
	}
	return md.Schema, nil
}

// MessageDescriptor converts a table schema to the message used to encode
// rows and the self-contained descriptor sent with append requests.
func MessageDescriptor(schema bq.Schema) (protoreflect.MessageDescriptor, *descriptorpb.DescriptorProto, error) {
	if len(schema) == 0 {
		return nil, nil, fmt.Errorf("empty table schema")
	}

	storageSchema, err := adapt.BQSchemaToStorageTableSchema(schema)
	if err != nil {
		return nil, nil, fmt.Errorf("convert table schema: %w", err)
	}

	desc, err := adapt.StorageSchemaToProto2Descriptor(storageSchema, "root")
	if err != nil {
		return nil, nil, fmt.Errorf("build row descriptor: %w", err)
	}
	md, ok := desc.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, nil, fmt.Errorf("row descriptor is %T, not a message", desc)
	}

	dp, err := adapt.NormalizeDescriptor(md)
	if err != nil {
		return nil, nil, fmt.Errorf("normalize row descriptor: %w", err)
	}
	return md, dp, nil
}
