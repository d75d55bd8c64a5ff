package normalize

import (
	"bytes"
	"io"
	"os"
)

// Source is a read-only reference to raw image bytes. Open may be called more
// than once per normalization (once for the header, again for EXIF and the raster).
type Source interface {
	Name() string
	Open() (io.ReadCloser, error)
}

// FileSource reads an image from the filesystem.
type FileSource string

func (f FileSource) Name() string { return string(f) }

func (f FileSource) Open() (io.ReadCloser, error) { return os.Open(string(f)) }

// BytesSource serves an image already held in memory.
type BytesSource struct {
	Label string
	Data  []byte
}

func (b BytesSource) Name() string { return b.Label }

func (b BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.Data)), nil
}

// FileSources wraps paths as sources, preserving order.
func FileSources(paths []string) []Source {
	out := make([]Source, len(paths))
	for i, p := range paths {
		out[i] = FileSource(p)
	}
	return out
}
