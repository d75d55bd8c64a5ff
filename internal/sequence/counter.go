// Package sequence allocates collision-free, monotonically numbered output
// file names from a persisted counter.
package sequence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Counter persists the next sequence value between runs.
type Counter interface {
	// Next returns the persisted next value, 1 when nothing was stored yet.
	Next(ctx context.Context) (int64, error)
	// Commit stores n as the next value. Values lower than the stored one are ignored.
	Commit(ctx context.Context, n int64) error
}

// MemoryCounter keeps the value for the life of the process.
type MemoryCounter struct {
	mu   sync.Mutex
	next int64
}

func NewMemoryCounter(start int64) *MemoryCounter {
	if start < 1 {
		start = 1
	}
	return &MemoryCounter{next: start}
}

func (c *MemoryCounter) Next(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.next < 1 {
		return 1, nil
	}
	return c.next, nil
}

func (c *MemoryCounter) Commit(_ context.Context, n int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > c.next {
		c.next = n
	}
	return nil
}

// fileState is the on-disk shape of a FileCounter.
type fileState struct {
	Next      int64     `json:"next"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileCounter stores the value as JSON, replacing the file atomically on commit.
type FileCounter struct {
	path string
	mu   sync.Mutex
}

func NewFileCounter(path string) *FileCounter {
	return &FileCounter{path: path}
}

func (c *FileCounter) Path() string { return c.path }

func (c *FileCounter) Next(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read()
}

func (c *FileCounter) read() (int64, error) {
	b, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read sequence state: %w", err)
	}
	var st fileState
	if err := json.Unmarshal(b, &st); err != nil {
		return 0, fmt.Errorf("parse sequence state %s: %w", c.path, err)
	}
	if st.Next < 1 {
		return 1, nil
	}
	return st.Next, nil
}

func (c *FileCounter) Commit(_ context.Context, n int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, err := c.read()
	if err != nil {
		return err
	}
	if n <= cur {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create sequence dir: %w", err)
	}
	b, err := json.Marshal(fileState{Next: n, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write sequence state: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace sequence state: %w", err)
	}
	return nil
}
