package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/bft-labs/bqship/internal/domain"
)

var checkpointFilePattern = regexp.MustCompile(`^checkpoint-(\d+)\.json$`)

// CheckpointFileRepository implements ports.CheckpointRepository with one
// JSON file per subtask.
type CheckpointFileRepository struct {
	dir string
}

// NewCheckpointFileRepository creates a repository rooted at dir.
func NewCheckpointFileRepository(dir string) *CheckpointFileRepository {
	return &CheckpointFileRepository{dir: dir}
}

// Load retrieves the last saved checkpoint of a subtask.
// Returns an empty checkpoint and nil error if no checkpoint file exists.
func (r *CheckpointFileRepository) Load(ctx context.Context, subtask int) (domain.Checkpoint, error) {
	data, err := os.ReadFile(r.Path(subtask))
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Checkpoint{Subtask: subtask}, nil
		}
		return domain.Checkpoint{}, err
	}

	var cp domain.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return domain.Checkpoint{}, fmt.Errorf("decode %s: %w", r.Path(subtask), err)
	}
	return cp, nil
}

// Save persists the checkpoint atomically.
// Uses atomic write (write to temp file, then rename) to prevent corruption.
func (r *CheckpointFileRepository) Save(ctx context.Context, cp domain.Checkpoint) error {
	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		return err
	}

	path := r.Path(cp.Subtask)
	tmp := path + ".tmp"

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadAll returns every saved checkpoint ordered by subtask.
func (r *CheckpointFileRepository) LoadAll(ctx context.Context) ([]domain.Checkpoint, error) {
	ents, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var subtasks []int
	for _, e := range ents {
		m := checkpointFilePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		subtasks = append(subtasks, n)
	}
	sort.Ints(subtasks)

	out := make([]domain.Checkpoint, 0, len(subtasks))
	for _, n := range subtasks {
		cp, err := r.Load(ctx, n)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// Path returns the checkpoint file of a subtask.
func (r *CheckpointFileRepository) Path(subtask int) string {
	return filepath.Join(r.dir, fmt.Sprintf("checkpoint-%d.json", subtask))
}
