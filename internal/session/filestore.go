package session

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists summaries as append-only JSON lines in a local file.
// A later line for the same id supersedes earlier ones. Suitable for a
// single process with a modest number of sessions; use [PostgresStore]
// otherwise.
type FileStore struct {
	mu   sync.Mutex
	path string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore that writes to path. The file and its
// parent directory are created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save appends s to the file.
func (f *FileStore) Save(_ context.Context, s Summary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}
	data = append(data, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()

	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("session: create dir: %w", err)
		}
	}
	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("session: open file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("session: write: %w", err)
	}
	return nil
}

// Get implements [Store].
func (f *FileStore) Get(_ context.Context, id string) (Summary, error) {
	all, err := f.readAll()
	if err != nil {
		return Summary{}, err
	}
	s, ok := all[id]
	if !ok {
		return Summary{}, ErrNotFound
	}
	return s, nil
}

// List implements [Store].
func (f *FileStore) List(_ context.Context, limit int) ([]Summary, error) {
	all, err := f.readAll()
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(all))
	for _, s := range all {
		out = append(out, s)
	}
	return newestFirst(out, limit), nil
}

// Ping checks that the file, if it exists, can be opened for reading.
func (f *FileStore) Ping(context.Context) error {
	file, err := os.Open(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("session: open file: %w", err)
	}
	return file.Close()
}

// readAll loads every record, keyed by id. Malformed lines are an error
// reporting their line number.
func (f *FileStore) readAll() (map[string]Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]Summary)
	file, err := os.Open(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: open file: %w", err)
	}
	defer file.Close()

	sc := bufio.NewScanner(file)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var s Summary
		if err := json.Unmarshal(sc.Bytes(), &s); err != nil {
			return nil, fmt.Errorf("session: %s:%d: %w", f.path, line, err)
		}
		out[s.ID] = s
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("session: read file: %w", err)
	}
	return out, nil
}
