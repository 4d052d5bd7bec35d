package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/strand/pkg/domain"
)

const ext = ".jsonl"

// Store implements ports.CheckpointStore using the local filesystem.
// Each thread is one JSON-lines file; every Put appends a line and fsyncs it.
// Writers in the same process are serialized; cross-process writers must be
// serialized by the caller (see session.Manager).
type Store struct {
	BasePath string

	mu sync.Mutex
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".strand/threads".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".strand", "threads")
	}
	return &Store{BasePath: basePath}
}

func (s *Store) path(threadID string) (string, error) {
	if threadID == "" {
		return "", fmt.Errorf("threadID cannot be empty")
	}
	if strings.ContainsAny(threadID, `/\`) || threadID == "." || threadID == ".." {
		return "", fmt.Errorf("invalid threadID %q", threadID)
	}
	return filepath.Join(s.BasePath, threadID+ext), nil
}

// Put appends the checkpoint to the thread file.
func (s *Store) Put(ctx context.Context, cp *domain.Checkpoint) error {
	path, err := s.path(cp.ThreadID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tf, err := s.read(path)
	if err != nil {
		return err
	}
	if n := len(tf.checkpoints); n > 0 && tf.checkpoints[n-1].Step >= cp.Step {
		return domain.ErrStepConflict
	}

	// Ensure directory exists
	if err := os.MkdirAll(s.BasePath, 0755); err != nil {
		return fmt.Errorf("failed to ensure thread directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open thread file: %w", err)
	}
	defer f.Close()

	if tf.valid < tf.size {
		// Drop the torn tail of an append that never completed.
		if err := f.Truncate(tf.valid); err != nil {
			return fmt.Errorf("failed to truncate torn checkpoint: %w", err)
		}
	}
	line := append(data, '\n')
	if !tf.terminated {
		line = append([]byte{'\n'}, line...)
	}
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("failed to append checkpoint: %w", err)
	}
	// Fsync to ensure durability before the superstep is considered committed
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to fsync thread file: %w", err)
	}
	return f.Close()
}

// threadFile is the decoded content of a thread file.
type threadFile struct {
	checkpoints []*domain.Checkpoint
	size        int64
	// valid is the length of the prefix holding complete checkpoints.
	valid int64
	// terminated reports whether the valid prefix is empty or ends in a newline.
	terminated bool
}

// read decodes every checkpoint of a thread file, oldest first.
// A missing file is an empty thread. An undecodable last line without a
// newline is an append that was cut short and never acknowledged, so it is
// skipped. Undecodable lines elsewhere are corruption.
func (s *Store) read(path string) (threadFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return threadFile{terminated: true}, nil
		}
		return threadFile{}, fmt.Errorf("failed to read thread file: %w", err)
	}

	tf := threadFile{size: int64(len(data)), valid: int64(len(data))}
	for off, line := 0, 1; off < len(data); line++ {
		raw := data[off:]
		next := len(data)
		if i := bytes.IndexByte(raw, '\n'); i >= 0 {
			raw = raw[:i]
			next = off + i + 1
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) > 0 {
			var cp domain.Checkpoint
			if err := json.Unmarshal(raw, &cp); err != nil {
				if next == len(data) && data[len(data)-1] != '\n' {
					tf.valid = int64(off)
					break
				}
				return threadFile{}, fmt.Errorf("failed to unmarshal checkpoint at %s:%d: %w", filepath.Base(path), line, err)
			}
			tf.checkpoints = append(tf.checkpoints, &cp)
		}
		off = next
	}
	tf.terminated = tf.valid == 0 || data[tf.valid-1] == '\n'
	return tf, nil
}

func (s *Store) load(threadID string) ([]*domain.Checkpoint, error) {
	path, err := s.path(threadID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tf, err := s.read(path)
	return tf.checkpoints, err
}

// Latest returns the last checkpoint of the thread file.
func (s *Store) Latest(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	list, err := s.load(threadID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, domain.ErrThreadNotFound
	}
	return list[len(list)-1], nil
}

// Get scans the thread file for a checkpoint id.
func (s *Store) Get(ctx context.Context, threadID, checkpointID string) (*domain.Checkpoint, error) {
	list, err := s.load(threadID)
	if err != nil {
		return nil, err
	}
	for _, cp := range list {
		if cp.ID == checkpointID {
			return cp, nil
		}
	}
	return nil, domain.ErrCheckpointNotFound
}

// History yields the checkpoints of a thread newest-first.
// The file is read when iteration starts.
func (s *Store) History(ctx context.Context, threadID string) iter.Seq2[*domain.Checkpoint, error] {
	return func(yield func(*domain.Checkpoint, error) bool) {
		list, err := s.load(threadID)
		if err != nil {
			yield(nil, err)
			return
		}
		for i := len(list) - 1; i >= 0; i-- {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(list[i], nil) {
				return
			}
		}
	}
}

// List returns all thread ids with a file in the base path.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}

	var threads []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ext {
			threads = append(threads, strings.TrimSuffix(entry.Name(), ext))
		}
	}
	sort.Strings(threads)
	return threads, nil
}

// Delete removes the thread file.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	path, err := s.path(threadID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete thread file: %w", err)
	}
	return nil
}
