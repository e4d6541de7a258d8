package bigquery

import (
	"os"
	"path/filepath"
	"testing"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/bft-labs/bqship/internal/ports"
)

const testSchemaJSON = `[
  {"name": "id", "type": "INTEGER", "mode": "REQUIRED"},
  {"name": "message", "type": "STRING"},
  {"name": "tags", "type": "STRING", "mode": "REPEATED"}
]`

func TestLoadSchemaFileAndDescriptor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.json")
	if err := os.WriteFile(path, []byte(testSchemaJSON), 0o600); err != nil {
		t.Fatal(err)
	}

	schema, err := LoadSchemaFile(path)
	if err != nil {
		t.Fatalf("LoadSchemaFile() error = %v", err)
	}
	if len(schema) != 3 {
		t.Fatalf("schema has %d fields, want 3", len(schema))
	}

	md, dp, err := MessageDescriptor(schema)
	if err != nil {
		t.Fatalf("MessageDescriptor() error = %v", err)
	}
	for _, name := range []string{"id", "message", "tags"} {
		if md.Fields().ByName(protoName(name)) == nil {
			t.Errorf("message descriptor missing field %q", name)
		}
	}
	if len(dp.GetField()) != 3 {
		t.Errorf("normalized descriptor has %d fields, want 3", len(dp.GetField()))
	}
}

func TestLoadSchemaFile_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"missing", filepath.Join(dir, "missing.json")},
		{"malformed", bad},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadSchemaFile(tt.path); err == nil {
				t.Error("LoadSchemaFile() error = nil")
			}
		})
	}

	if _, _, err := MessageDescriptor(nil); err == nil {
		t.Error("MessageDescriptor(nil) error = nil")
	}
}

func TestTableParent(t *testing.T) {
	want := "projects/p/datasets/d/tables/t"
	if got := TableParent("p", "d", "t"); got != want {
		t.Errorf("TableParent() = %q, want %q", got, want)
	}
}

func TestStreamOptions(t *testing.T) {
	tests := []struct {
		name string
		spec ports.StreamSpec
		want int
	}{
		{"default stream", ports.StreamSpec{Table: "t"}, 3},
		{"resume with trace", ports.StreamSpec{Table: "t", Name: "s", TraceID: "x"}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(streamOptions(tt.spec, true)); got != tt.want {
				t.Errorf("len(streamOptions()) = %d, want %d", got, tt.want)
			}
		})
	}
}

func protoName(s string) protoreflect.Name {
	return protoreflect.Name(s)
}
