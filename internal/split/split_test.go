package split

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pictopdf/internal/assemble"
	"github.com/local/pictopdf/internal/filetype"
	"github.com/local/pictopdf/internal/normalize"
)

const mib = 1 << 20

func TestMain(m *testing.M) {
	api.DisableConfigDir()
	os.Exit(m.Run())
}

func uniform(n int, size int64) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = size
	}
	return out
}

func TestPlanTenPagesUnderFiveMiB(t *testing.T) {
	const overhead = 2048
	sizes := uniform(10, 3*mib/2+overhead)

	got := Plan(sizes, overhead, 5*mib)
	assert.Equal(t, []Range{{1, 3}, {4, 6}, {7, 9}, {10, 10}}, got)
}

func TestPlanIrreducibleOverflow(t *testing.T) {
	got := Plan([]int64{mib, 20 * mib, mib, mib}, 0, 12*mib)
	assert.Equal(t, []Range{{1, 1}, {2, 2}, {3, 4}}, got)

	got = Plan(uniform(3, 20*mib), 0, 12*mib)
	assert.Equal(t, []Range{{1, 1}, {2, 2}, {3, 3}}, got)
}

func TestPlanConservesPagesAndRespectsLimit(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 200; trial++ {
		n := rng.Intn(60) + 1
		sizes := make([]int64, n)
		for i := range sizes {
			sizes[i] = int64(rng.Intn(4*mib) + 1000)
		}
		overhead := int64(rng.Intn(1000))
		limit := int64(rng.Intn(10*mib) + mib)

		ranges := Plan(sizes, overhead, limit)
		next := 1
		for _, r := range ranges {
			require.Equal(t, next, r.Start, "gap or overlap at trial %d", trial)
			require.GreaterOrEqual(t, r.End, r.Start)
			if r.Pages() > 1 {
				assert.LessOrEqual(t, Estimate(sizes, overhead, r), limit)
			}
			next = r.End + 1
		}
		require.Equal(t, n+1, next)
	}
}

func TestPartName(t *testing.T) {
	assert.Equal(t, "000007_part1.pdf", PartName("/data/out/000007.pdf", 1))
	assert.Equal(t, "scan_part12.pdf", PartName("scan.pdf", 12))
}

// buildPDF writes a document with one noise image per page so every page
// serializes to roughly the same, incompressible size.
func buildPDF(t *testing.T, dir string, pages int) string {
	t.Helper()
	out := filepath.Join(dir, "000001.pdf")
	w, err := assemble.PDFEncoder{}.Create(out)
	require.NoError(t, err)
	for i := 0; i < pages; i++ {
		rng := rand.New(rand.NewSource(int64(i)))
		m := image.NewRGBA(image.Rect(0, 0, 120, 90))
		for j := range m.Pix {
			m.Pix[j] = uint8(rng.Intn(256))
		}
		var buf bytes.Buffer
		require.NoError(t, jpeg.Encode(&buf, m, &jpeg.Options{Quality: 85}))
		img := filepath.Join(dir, fmt.Sprintf("page%02d.jpg", i))
		require.NoError(t, os.WriteFile(img, buf.Bytes(), 0o644))
		im := normalize.Image{Index: i, Path: img, Size: int64(buf.Len()), Width: 120, Height: 90, Format: filetype.FormatJPEG}
		require.NoError(t, w.AddPage(im, assemble.A4.Place(120, 90)))
		require.NoError(t, os.Remove(img))
	}
	require.NoError(t, w.Close())
	return out
}

func pageSize(t *testing.T, s *Splitter, path string) int64 {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out, err := s.extract(data, Range{Start: 1, End: 1})
	require.NoError(t, err)
	return int64(len(out))
}

func TestSplitRealDocument(t *testing.T) {
	dir := t.TempDir()
	src := buildPDF(t, dir, 7)
	outDir := t.TempDir()
	s := New(Options{OutputDir: outDir})

	one := pageSize(t, s, src)
	limit := one*2 + one/2

	parts, err := s.Split(context.Background(), src, limit)
	require.NoError(t, err)
	require.NotEmpty(t, parts)

	next := 1
	total := 0
	for i, p := range parts {
		assert.Equal(t, i+1, p.Index)
		assert.Equal(t, next, p.Start)
		assert.Equal(t, filepath.Join(outDir, fmt.Sprintf("000001_part%d.pdf", i+1)), p.Path)

		n, err := api.PageCountFile(p.Path)
		require.NoError(t, err)
		assert.Equal(t, p.Pages(), n)

		fi, err := os.Stat(p.Path)
		require.NoError(t, err)
		assert.Equal(t, fi.Size(), p.Size)
		if p.Pages() > 1 {
			assert.LessOrEqual(t, p.Size, limit)
		}
		total += n
		next = p.End + 1
	}
	assert.Equal(t, 7, total)
	assert.Greater(t, len(parts), 1)
}

func TestPlanFileWritesNothing(t *testing.T) {
	dir := t.TempDir()
	src := buildPDF(t, dir, 7)
	s := New(Options{})

	one := pageSize(t, s, src)
	limit := one*2 + one/2

	planned, err := s.PlanFile(context.Background(), src, limit)
	require.NoError(t, err)
	require.Greater(t, len(planned), 1)

	next := 1
	for i, p := range planned {
		assert.Equal(t, i+1, p.Index)
		assert.Equal(t, next, p.Start)
		assert.Equal(t, filepath.Join(dir, fmt.Sprintf("000001_part%d.pdf", i+1)), p.Path)
		assert.NoFileExists(t, p.Path)
		if p.Pages() > 1 {
			assert.LessOrEqual(t, p.Size, limit)
		}
		next = p.End + 1
	}
	assert.Equal(t, 8, next)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = s.PlanFile(context.Background(), filepath.Join(dir, "nope.pdf"), limit)
	var se *SplitError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "read", se.Op)
}

func TestSplitSinglePagesOverLimit(t *testing.T) {
	dir := t.TempDir()
	src := buildPDF(t, dir, 3)

	parts, err := New(Options{}).Split(context.Background(), src, 1024)
	require.NoError(t, err)
	require.Len(t, parts, 3)
	for i, p := range parts {
		assert.Equal(t, i+1, p.Start)
		assert.Equal(t, i+1, p.End)
		assert.Greater(t, p.Size, int64(1024))
		assert.Equal(t, dir, filepath.Dir(p.Path))
	}
}

func TestSplitCorruptInput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "broken.pdf")
	require.NoError(t, os.WriteFile(src, []byte("%PDF-1.4\nthis is not a pdf"), 0o644))

	parts, err := New(Options{}).Split(context.Background(), src, mib)
	assert.Nil(t, parts)
	var se *SplitError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, src, se.Path)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSplitMissingInput(t *testing.T) {
	_, err := New(Options{}).Split(context.Background(), filepath.Join(t.TempDir(), "nope.pdf"), mib)
	var se *SplitError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "read", se.Op)
}
