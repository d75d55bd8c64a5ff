package sequence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// Name formats a sequence value as a six-digit zero-padded stem plus ext.
func Name(seq int64, ext string) string {
	return fmt.Sprintf("%06d%s", seq, ext)
}

// Allocator hands out unused paths in dir. The cursor only moves in memory;
// callers persist progress with Commit once a document is fully written.
// Not safe for concurrent use.
type Allocator struct {
	dir     string
	ext     string
	counter Counter
	cursor  int64
}

func NewAllocator(dir, ext string, counter Counter) *Allocator {
	return &Allocator{dir: dir, ext: ext, counter: counter}
}

// Allocate returns the next free path and its sequence value, skipping any
// name already taken on disk.
func (a *Allocator) Allocate(ctx context.Context) (string, int64, error) {
	if a.cursor == 0 {
		n, err := a.counter.Next(ctx)
		if err != nil {
			return "", 0, fmt.Errorf("read sequence counter: %w", err)
		}
		a.cursor = n
	}
	for {
		seq := a.cursor
		path := filepath.Join(a.dir, Name(seq, a.ext))
		_, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			a.cursor++
			return path, seq, nil
		}
		if err != nil {
			return "", 0, fmt.Errorf("stat %s: %w", path, err)
		}
		log.Debug().Str("path", path).Msg("sequence name taken, skipping")
		a.cursor++
	}
}

// Commit persists that every value up to and including seq is consumed.
func (a *Allocator) Commit(ctx context.Context, seq int64) error {
	return a.counter.Commit(ctx, seq+1)
}

// Reset drops the in-memory cursor so the next Allocate starts from the
// persisted value again.
func (a *Allocator) Reset() { a.cursor = 0 }
