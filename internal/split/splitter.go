// Package split repartitions an existing document into page-range parts that
// each stay under a byte cap.
package split

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"
)

// Part is one written slice of the source document.
type Part struct {
	Path  string
	Index int
	Start int
	End   int
	Size  int64
}

func (p Part) Pages() int { return p.End - p.Start + 1 }

// Options configures a Splitter.
type Options struct {
	// OutputDir receives the parts; empty means next to the source.
	OutputDir string
}

// Splitter cuts documents along page boundaries with pdfcpu.
type Splitter struct {
	outDir string
	conf   *model.Configuration
}

func New(opts Options) *Splitter {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Splitter{outDir: opts.OutputDir, conf: conf}
}

// PartName derives the name of part index (1-based) from the source path.
func PartName(source string, index int) string {
	base := filepath.Base(source)
	ext := filepath.Ext(base)
	return fmt.Sprintf("%s_part%d%s", strings.TrimSuffix(base, ext), index, ext)
}

// Split measures every page once, plans contiguous ranges from those sizes
// and writes one file per range. A planned range that still serializes over
// limit is shrunk one page at a time until it fits or holds a single page.
func (s *Splitter) Split(ctx context.Context, path string, limit int64) ([]Part, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, sizes, overhead, err := s.load(path)
	if err != nil {
		return nil, err
	}
	total := len(sizes)

	dir := s.partDir(path)

	var parts []Part
	for start := 1; start <= total; {
		r := NextRange(sizes, overhead, limit, start)
		buf, err := s.fit(data, r, limit)
		if err != nil {
			removeParts(parts)
			return nil, &SplitError{Path: path, Op: "extract", Err: err}
		}
		r = buf.r

		part := Part{
			Path:  filepath.Join(dir, PartName(path, len(parts)+1)),
			Index: len(parts) + 1,
			Start: r.Start,
			End:   r.End,
			Size:  int64(len(buf.data)),
		}
		if err := writeFile(part.Path, buf.data); err != nil {
			removeParts(parts)
			return nil, &SplitError{Path: path, Op: "write", Err: err}
		}
		log.Info().
			Str("path", part.Path).
			Int("start", part.Start).Int("end", part.End).
			Int64("size", part.Size).
			Msg("split part written")
		parts = append(parts, part)
		start = r.End + 1
	}
	return parts, nil
}

// PlanFile measures the document at path and returns the parts Split would
// start from, sized by estimate, without writing anything. Split may still
// shrink a range whose serialized size turns out larger than estimated.
func (s *Splitter) PlanFile(ctx context.Context, path string, limit int64) ([]Part, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, sizes, overhead, err := s.load(path)
	if err != nil {
		return nil, err
	}
	dir := s.partDir(path)
	ranges := Plan(sizes, overhead, limit)
	parts := make([]Part, len(ranges))
	for i, r := range ranges {
		parts[i] = Part{
			Path:  filepath.Join(dir, PartName(path, i+1)),
			Index: i + 1,
			Start: r.Start,
			End:   r.End,
			Size:  Estimate(sizes, overhead, r),
		}
	}
	return parts, nil
}

func (s *Splitter) partDir(path string) string {
	if s.outDir == "" {
		return filepath.Dir(path)
	}
	return s.outDir
}

// load reads path and measures every page.
func (s *Splitter) load(path string) ([]byte, []int64, int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, 0, &SplitError{Path: path, Op: "read", Err: err}
	}
	total, err := api.PageCount(bytes.NewReader(data), s.conf)
	if err != nil {
		return nil, nil, 0, &SplitError{Path: path, Op: "read", Err: err}
	}
	if total == 0 {
		return nil, nil, 0, &SplitError{Path: path, Op: "read", Err: errors.New("document has no pages")}
	}
	sizes, overhead, err := s.measure(data, total)
	if err != nil {
		return nil, nil, 0, &SplitError{Path: path, Op: "measure", Err: err}
	}
	log.Debug().Str("path", path).Int("pages", total).Int64("overhead", overhead).Msg("measured pages")
	return data, sizes, overhead, nil
}

// trial is a range serialized in memory.
type trial struct {
	r    Range
	data []byte
}

// fit serializes r and drops its last page until the result fits limit or
// only one page is left.
func (s *Splitter) fit(data []byte, r Range, limit int64) (trial, error) {
	for {
		out, err := s.extract(data, r)
		if err != nil {
			return trial{}, err
		}
		if int64(len(out)) <= limit || r.Start == r.End {
			return trial{r: r, data: out}, nil
		}
		log.Debug().Str("pages", r.selector()).Int("size", len(out)).Msg("trial over limit, shrinking")
		r.End--
	}
}

func (s *Splitter) extract(data []byte, r Range) ([]byte, error) {
	var out bytes.Buffer
	if err := api.Trim(bytes.NewReader(data), &out, []string{r.selector()}, s.conf); err != nil {
		return nil, fmt.Errorf("pages %s: %w", r.selector(), err)
	}
	return out.Bytes(), nil
}

// measure returns the standalone size of every page and the per-document
// overhead learned from serializing the first two pages together.
func (s *Splitter) measure(data []byte, total int) ([]int64, int64, error) {
	sizes := make([]int64, total)
	for p := 1; p <= total; p++ {
		out, err := s.extract(data, Range{Start: p, End: p})
		if err != nil {
			return nil, 0, err
		}
		sizes[p-1] = int64(len(out))
	}
	if total < 2 {
		return sizes, 0, nil
	}
	pair, err := s.extract(data, Range{Start: 1, End: 2})
	if err != nil {
		return nil, 0, err
	}
	overhead := sizes[0] + sizes[1] - int64(len(pair))
	overhead = max(0, min(overhead, sizes[0], sizes[1]))
	return sizes, overhead, nil
}

func writeFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func removeParts(parts []Part) {
	for _, p := range parts {
		if err := os.Remove(p.Path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", p.Path).Msg("failed to remove split part")
		}
	}
}
