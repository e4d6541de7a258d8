package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bft-labs/bqship/internal/domain"
)

func TestCheckpointFileRepository_LoadMissing(t *testing.T) {
	repo := NewCheckpointFileRepository(t.TempDir())
	cp, err := repo.Load(context.Background(), 2)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cp.IsEmpty() || cp.Subtask != 2 {
		t.Errorf("Load() = %+v, want empty checkpoint for subtask 2", cp)
	}
}

func TestCheckpointFileRepository_SaveLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	repo := NewCheckpointFileRepository(dir)
	ctx := context.Background()

	want := domain.Checkpoint{
		Subtask:     1,
		Guarantee:   domain.ExactlyOnce,
		Source:      domain.SourcePosition{File: "a.ndjson", Offset: 120},
		Stream:      domain.StreamPosition{Name: "projects/p/datasets/d/tables/t/streams/s", Offset: 12},
		Records:     12,
		CommittedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := repo.Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(repo.Path(1))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("file mode = %v, want 0600", info.Mode().Perm())
	}
	if _, err := os.Stat(repo.Path(1) + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}

	got, err := repo.Load(ctx, 1)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Source != want.Source || got.Stream != want.Stream || got.Guarantee != want.Guarantee ||
		got.Records != want.Records || !got.CommittedAt.Equal(want.CommittedAt) {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
}

func TestCheckpointFileRepository_LoadAll(t *testing.T) {
	dir := t.TempDir()
	repo := NewCheckpointFileRepository(dir)
	ctx := context.Background()

	for _, n := range []int{2, 0, 10} {
		if err := repo.Save(ctx, domain.Checkpoint{Subtask: n, Records: int64(n)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.json"), []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}

	all, err := repo.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(all) != 3 || all[0].Subtask != 0 || all[1].Subtask != 2 || all[2].Subtask != 10 {
		t.Errorf("LoadAll() = %+v", all)
	}
}

func TestCheckpointFileRepository_Corrupt(t *testing.T) {
	dir := t.TempDir()
	repo := NewCheckpointFileRepository(dir)
	if err := os.WriteFile(repo.Path(0), []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Load(context.Background(), 0); err == nil {
		t.Error("Load() of corrupt file error = nil")
	}
}
