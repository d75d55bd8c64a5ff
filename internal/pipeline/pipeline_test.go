package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/local/pictopdf/internal/catalog"
	"github.com/local/pictopdf/internal/config"
	"github.com/local/pictopdf/internal/normalize"
	"github.com/local/pictopdf/internal/sequence"
)

type fakePublisher struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakePublisher) Publish(_ context.Context, p string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, p)
	return "s3://bucket/" + filepath.Base(p), nil
}

func writeNoiseJPEG(t *testing.T, path string, w, h int, seed int64) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	m := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m.Set(x, y, color.RGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, jpeg.Encode(f, m, &jpeg.Options{Quality: 90}))
}

type fixture struct {
	cfg    config.PipelineConfig
	inputs []string
}

func newFixture(t *testing.T, images int) fixture {
	t.Helper()
	root := t.TempDir()
	src := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(src, 0o755))
	var inputs []string
	for i := 0; i < images; i++ {
		p := filepath.Join(src, fmt.Sprintf("IMG_%02d.jpg", i))
		writeNoiseJPEG(t, p, 300, 400, int64(i+1))
		inputs = append(inputs, p)
	}
	return fixture{
		cfg: config.PipelineConfig{
			OutputDir:  filepath.Join(root, "out"),
			WorkDir:    filepath.Join(root, "work"),
			Extension:  ".pdf",
			Cap:        config.DefaultCap,
			MaxWidth:   1200,
			MaxHeight:  1600,
			PageWidth:  595,
			PageHeight: 842,
			Margin:     20,
		},
		inputs: inputs,
	}
}

func TestConvertSkipsBrokenInputs(t *testing.T) {
	fx := newFixture(t, 3)
	broken := filepath.Join(filepath.Dir(fx.inputs[0]), "broken.jpg")
	require.NoError(t, os.WriteFile(broken, []byte("not an image at all"), 0o644))
	inputs := []string{fx.inputs[0], broken, fx.inputs[1], fx.inputs[2]}

	store, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer store.Close()
	pub := &fakePublisher{}
	var stages []Stage

	r := New(fx.cfg, Dependencies{
		Counter:   sequence.NewMemoryCounter(1),
		Catalog:   store,
		Publisher: pub,
		Progress:  func(st Status) { stages = append(stages, st.Stage) },
	})
	res, err := r.Convert(context.Background(), inputs, ConvertOptions{Profile: normalize.Medium})
	require.NoError(t, err)

	require.Len(t, res.Documents, 1)
	doc := res.Documents[0]
	assert.Equal(t, 3, doc.Pages)
	assert.Equal(t, filepath.Join(fx.cfg.OutputDir, "000001.pdf"), doc.Path)
	assert.FileExists(t, doc.Path)

	require.Len(t, res.Failures, 1)
	assert.Equal(t, 1, res.Failures[0].Index)
	assert.Equal(t, broken, res.Failures[0].Source)

	assert.Equal(t, []Stage{StageNormalizing, StageAssembling, StageDone}, stages)
	assert.Equal(t, []string{doc.Path}, pub.paths)
	assert.Equal(t, "s3://bucket/000001.pdf", res.Published[doc.Path])

	e, ok, err := store.Get(context.Background(), doc.Path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, catalog.KindDocument, e.Kind)
	assert.Equal(t, res.RunID, e.RunID)
	assert.Equal(t, "s3://bucket/000001.pdf", e.RemoteURL)

	entries, err := os.ReadDir(fx.cfg.WorkDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "run dir must be removed")

	for _, in := range inputs {
		assert.FileExists(t, in, "sources are never modified")
	}
}

func TestConvertRollsOverAndContinuesSequence(t *testing.T) {
	fx := newFixture(t, 3)
	counter := sequence.NewMemoryCounter(1)
	r := New(fx.cfg, Dependencies{Counter: counter})

	// a cap of one byte forces one image per document
	res, err := r.Convert(context.Background(), fx.inputs, ConvertOptions{Profile: normalize.Minimum, Cap: 1})
	require.NoError(t, err)
	require.Len(t, res.Documents, 3)
	for i, d := range res.Documents {
		assert.Equal(t, int64(i+1), d.Sequence)
		assert.Equal(t, 1, d.Pages)
	}

	res, err = r.Convert(context.Background(), fx.inputs[:1], ConvertOptions{Profile: normalize.Minimum})
	require.NoError(t, err)
	require.Len(t, res.Documents, 1)
	assert.Equal(t, int64(4), res.Documents[0].Sequence)
}

func TestConvertCancelled(t *testing.T) {
	fx := newFixture(t, 2)
	r := New(fx.cfg, Dependencies{Counter: sequence.NewMemoryCounter(1)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := r.Convert(ctx, fx.inputs, ConvertOptions{Profile: normalize.Medium})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Documents)

	entries, err := os.ReadDir(fx.cfg.WorkDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSplitLargeDocument(t *testing.T) {
	fx := newFixture(t, 4)
	store, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer store.Close()
	r := New(fx.cfg, Dependencies{Counter: sequence.NewMemoryCounter(1), Catalog: store})

	res, err := r.Convert(context.Background(), fx.inputs, ConvertOptions{Profile: normalize.None})
	require.NoError(t, err)
	require.Len(t, res.Documents, 1)
	doc := res.Documents[0]
	require.Equal(t, 4, doc.Pages)

	var stages []Stage
	r.deps.Progress = func(st Status) { stages = append(stages, st.Stage) }
	sres, err := r.Split(context.Background(), doc.Path, doc.Size/2)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(sres.Parts), 2)
	assert.Equal(t, []Stage{StageSplitting, StageDone}, stages)

	pages, next := 0, 1
	for _, p := range sres.Parts {
		assert.Equal(t, next, p.Start)
		next = p.End + 1
		pages += p.Pages()
		assert.FileExists(t, p.Path)
	}
	assert.Equal(t, 4, pages)

	parts, err := store.List(context.Background(), catalog.Filter{Kind: catalog.KindPart, Parent: doc.Path})
	require.NoError(t, err)
	assert.Len(t, parts, len(sres.Parts))
}

func TestSplitWithinCapIsNoop(t *testing.T) {
	fx := newFixture(t, 2)
	r := New(fx.cfg, Dependencies{Counter: sequence.NewMemoryCounter(1)})
	res, err := r.Convert(context.Background(), fx.inputs, ConvertOptions{Profile: normalize.Medium})
	require.NoError(t, err)
	require.Len(t, res.Documents, 1)

	sres, err := r.Split(context.Background(), res.Documents[0].Path, 0)
	require.NoError(t, err)
	assert.Empty(t, sres.Parts)
	assert.Equal(t, res.Documents[0].Size, sres.Size)
}

func TestSplitMissingFile(t *testing.T) {
	r := New(config.PipelineConfig{OutputDir: t.TempDir()}, Dependencies{})
	_, err := r.Split(context.Background(), filepath.Join(t.TempDir(), "nope.pdf"), 100)
	assert.Error(t, err)
}

func TestIsRecoverable(t *testing.T) {
	assert.True(t, IsRecoverable(&normalize.DecodeError{Source: "a", Err: normalize.ErrUnsupportedFormat}))
	assert.True(t, IsRecoverable(fmt.Errorf("wrapped: %w", &normalize.EncodeError{Source: "a", Err: errors.New("disk full")})))
	assert.False(t, IsRecoverable(context.Canceled))
	assert.False(t, IsRecoverable(errors.New("other")))
	assert.False(t, IsRecoverable(nil))
}

func TestNewCounter(t *testing.T) {
	dir := t.TempDir()
	c, closeFn, err := NewCounter(config.CounterConfig{Backend: "file", File: filepath.Join(dir, "seq.json")})
	require.NoError(t, err)
	assert.IsType(t, &sequence.FileCounter{}, c)
	assert.NoError(t, closeFn())

	c, _, err = NewCounter(config.CounterConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &sequence.MemoryCounter{}, c)

	mr := miniredis.RunT(t)
	c, closeFn, err = NewCounter(config.CounterConfig{Backend: "redis", RedisURL: "redis://" + mr.Addr(), RedisKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &sequence.RedisCounter{}, c)
	assert.NoError(t, closeFn())

	_, _, err = NewCounter(config.CounterConfig{Backend: "etcd"})
	assert.Error(t, err)
}

func TestCleanupStale(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, uuid.NewString())
	fresh := filepath.Join(dir, uuid.NewString())
	other := filepath.Join(dir, "keep-me")
	for _, d := range []string{old, fresh, other} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))
	require.NoError(t, os.Chtimes(other, past, past))

	assert.Equal(t, 1, CleanupStale(dir, time.Hour))
	assert.NoDirExists(t, old)
	assert.DirExists(t, fresh)
	assert.DirExists(t, other)
	assert.Equal(t, 0, CleanupStale(filepath.Join(dir, "missing"), time.Hour))
}

func TestReportWriteFile(t *testing.T) {
	fx := newFixture(t, 1)
	broken := filepath.Join(t.TempDir(), "x.heic")
	require.NoError(t, os.WriteFile(broken, []byte("garbage"), 0o644))

	r := New(fx.cfg, Dependencies{Counter: sequence.NewMemoryCounter(7)})
	res, err := r.Convert(context.Background(), []string{broken, fx.inputs[0]}, ConvertOptions{Profile: normalize.Medium})
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "reports", "run.yaml")
	require.NoError(t, NewReport(res, nil).WriteFile(out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var got Report
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, res.RunID, got.RunID)
	assert.Equal(t, 2, got.Inputs)
	require.Len(t, got.Documents, 1)
	assert.Equal(t, int64(7), got.Documents[0].Sequence)
	require.Len(t, got.Skipped, 1)
	assert.Equal(t, 0, got.Skipped[0].Index)
	assert.Equal(t, broken, got.Skipped[0].Source)
	assert.Empty(t, got.Error)
}
