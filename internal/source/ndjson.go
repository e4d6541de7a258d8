// Package source reads newline-delimited JSON records from an input
// directory.
//
// Files are read in name order. With several subtasks, each file belongs to
// exactly one of them, chosen by a hash of its name. In follow mode the
// reader waits for new files and appended lines instead of stopping at the
// end of the input.
package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/bqship/internal/domain"
	"github.com/bft-labs/bqship/pkg/log"
)

// DefaultExtensions are the file name suffixes read by default.
var DefaultExtensions = []string{".ndjson", ".jsonl"}

// Config configures an NDJSONSource.
type Config struct {
	// Dir is the input directory
	Dir string

	// Subtask and Parallelism select the files this source reads
	Subtask     int
	Parallelism int

	// Follow waits for more input instead of stopping at the end
	Follow bool

	// PollInterval bounds Wait when no file event arrives
	PollInterval time.Duration

	// Extensions overrides DefaultExtensions
	Extensions []string
}

// NDJSONSource implements ports.RecordSource.
type NDJSONSource struct {
	cfg    Config
	logger log.Logger

	file   *os.File
	reader *bufio.Reader
	name   string
	offset int64

	watcher *fsnotify.Watcher
}

// NewNDJSONSource creates a source. Call Open before Next.
func NewNDJSONSource(cfg Config, logger log.Logger) *NDJSONSource {
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = DefaultExtensions
	}
	return &NDJSONSource{cfg: cfg, logger: logger}
}

// Assigned returns true if the file name belongs to subtask.
func Assigned(name string, subtask, parallelism int) bool {
	if parallelism <= 1 {
		return true
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return int(h.Sum32()%uint32(parallelism)) == subtask
}

// ListFiles returns the input file names in dir with one of the given
// extensions, in name order.
func ListFiles(dir string, extensions []string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w\n\nPlease verify:\n  - The --input-dir flag points to the correct directory\n  - The directory exists\n  - You have permission to read the directory", err)
	}
	var names []string
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		for _, ext := range extensions {
			if strings.HasSuffix(e.Name(), ext) {
				names = append(names, e.Name())
				break
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// Open positions the source. A zero position starts at the first assigned
// file. In follow mode the input directory is watched for changes.
func (s *NDJSONSource) Open(ctx context.Context, pos domain.SourcePosition) error {
	if s.cfg.Follow && s.watcher == nil {
		w, err := fsnotify.NewWatcher()
		if err == nil {
			err = w.Add(s.cfg.Dir)
			if err != nil {
				w.Close()
			}
		}
		if err != nil {
			s.logger.Warn("file watching unavailable, polling input directory",
				log.String("dir", s.cfg.Dir), log.Err(err))
		} else {
			s.watcher = w
		}
	}

	if pos.File == "" {
		next, ok, err := s.nextFileAfter("")
		if err != nil {
			return err
		}
		if ok {
			return s.openFile(next, 0)
		}
		return nil
	}
	return s.openFile(pos.File, pos.Offset)
}

// Next returns the next non-empty line without its line terminator.
// Returns io.EOF when no complete line is available.
func (s *NDJSONSource) Next(ctx context.Context) ([]byte, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if s.file == nil {
			next, ok, err := s.nextFileAfter("")
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, io.EOF
			}
			if err := s.openFile(next, 0); err != nil {
				return nil, err
			}
		}

		line, err := s.reader.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}

		if err == nil {
			s.offset += int64(len(line))
			if rec := bytes.TrimSpace(line); len(rec) > 0 {
				return rec, nil
			}
			continue
		}

		// End of the current file. A trailing line without a newline is only
		// complete once a later file exists.
		next, ok, lerr := s.nextFileAfter(s.name)
		if lerr != nil {
			return nil, lerr
		}
		if !ok {
			if len(line) > 0 {
				if err := s.seek(s.offset); err != nil {
					return nil, err
				}
			}
			return nil, io.EOF
		}
		if rec := bytes.TrimSpace(line); len(rec) > 0 {
			s.offset += int64(len(line))
			return rec, nil
		}
		if err := s.openFile(next, 0); err != nil {
			return nil, err
		}
	}
}

// Position returns the position after the last record returned by Next.
func (s *NDJSONSource) Position() domain.SourcePosition {
	return domain.SourcePosition{File: s.name, Offset: s.offset}
}

// Wait blocks until the input directory changes, the poll interval
// elapses or ctx is done.
func (s *NDJSONSource) Wait(ctx context.Context) error {
	timer := time.NewTimer(s.cfg.PollInterval)
	defer timer.Stop()

	var events <-chan fsnotify.Event
	var errs <-chan error
	if s.watcher != nil {
		events = s.watcher.Events
		errs = s.watcher.Errors
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				return nil
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.logger.Warn("file watcher error", log.Err(err))
		}
	}
}

// Close releases the open file and the watcher.
func (s *NDJSONSource) Close() error {
	var errs []error
	if s.file != nil {
		errs = append(errs, s.file.Close())
		s.file = nil
	}
	if s.watcher != nil {
		errs = append(errs, s.watcher.Close())
		s.watcher = nil
	}
	return errors.Join(errs...)
}

func (s *NDJSONSource) openFile(name string, offset int64) error {
	f, err := os.Open(filepath.Join(s.cfg.Dir, name))
	if err != nil {
		return fmt.Errorf("open input file: %w", err)
	}
	if s.file != nil {
		s.file.Close()
	}
	s.file = f
	s.reader = bufio.NewReaderSize(f, 64*1024)
	s.name = name
	s.offset = 0
	if offset > 0 {
		if err := s.seek(offset); err != nil {
			return err
		}
	}
	s.logger.Debug("reading input file", log.String("file", name), log.Int64("offset", offset))
	return nil
}

func (s *NDJSONSource) seek(offset int64) error {
	if _, err := s.file.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("seek %s to %d: %w", s.name, offset, err)
	}
	s.reader.Reset(s.file)
	s.offset = offset
	return nil
}

// nextFileAfter returns the first assigned file whose name sorts after
// current.
func (s *NDJSONSource) nextFileAfter(current string) (string, bool, error) {
	names, err := ListFiles(s.cfg.Dir, s.cfg.Extensions)
	if err != nil {
		return "", false, err
	}
	for _, n := range names {
		if n > current && Assigned(n, s.cfg.Subtask, s.cfg.Parallelism) {
			return n, true, nil
		}
	}
	return "", false, nil
}
