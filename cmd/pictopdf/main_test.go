package main

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pictopdf/internal/assemble"
	"github.com/local/pictopdf/internal/filetype"
	"github.com/local/pictopdf/internal/normalize"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	m := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m.Set(x, y, color.RGBA{uint8(x), uint8(y), 120, 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, m))
}

func TestExpandInputs(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"b.png", "a.png", ".hidden"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	single := filepath.Join(t.TempDir(), "z.jpg")
	require.NoError(t, os.WriteFile(single, []byte("x"), 0o644))

	got, err := expandInputs([]string{single, dir})
	require.NoError(t, err)
	assert.Equal(t, []string{single, filepath.Join(dir, "a.png"), filepath.Join(dir, "b.png")}, got)

	_, err = expandInputs([]string{filepath.Join(dir, "missing")})
	assert.Error(t, err)
}

func TestConvertCommand(t *testing.T) {
	root := t.TempDir()
	t.Chdir(root)
	t.Setenv("PICTOPDF_PIPELINE_WORK_DIR", filepath.Join(root, "work"))
	t.Setenv("PICTOPDF_METRICS_TEXTFILE_PATH", filepath.Join(root, "metrics.prom"))

	src := filepath.Join(root, "pictures")
	require.NoError(t, os.MkdirAll(src, 0o755))
	writePNG(t, filepath.Join(src, "01.png"), 64, 48)
	writePNG(t, filepath.Join(src, "02.png"), 48, 64)

	out := filepath.Join(root, "docs")
	report := filepath.Join(root, "run.yaml")
	rootCmd.SetArgs([]string{"convert", "--output", out, "--report", report, src})
	require.NoError(t, rootCmd.Execute())

	assert.FileExists(t, filepath.Join(out, "000001.pdf"))
	assert.FileExists(t, filepath.Join(out, ".sequence.json"))
	assert.FileExists(t, report)
	assert.FileExists(t, filepath.Join(root, "metrics.prom"))

	rootCmd.SetArgs([]string{"list", "--output", out})
	require.NoError(t, rootCmd.Execute())

	rootCmd.SetArgs([]string{"split", filepath.Join(out, "000001.pdf")})
	require.NoError(t, rootCmd.Execute())
	_, err := os.Stat(filepath.Join(out, "000001_part1.pdf"))
	assert.True(t, os.IsNotExist(err), "document under the cap is not split")

	t.Cleanup(func() {
		splitCmd.Flags().Set("dry-run", "false")
		splitCmd.Flags().Set("cap", "")
	})
	rootCmd.SetArgs([]string{"split", "--dry-run", "--cap", "1b", filepath.Join(out, "000001.pdf")})
	require.NoError(t, rootCmd.Execute())
	_, err = os.Stat(filepath.Join(out, "000001_part1.pdf"))
	assert.True(t, os.IsNotExist(err), "dry run writes no parts")
}

func TestFindDocuments(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(t.TempDir(), "a.png")
	writePNG(t, img, 16, 16)

	renamed := filepath.Join(dir, "scan.bin")
	w, err := assemble.PDFEncoder{}.Create(renamed)
	require.NoError(t, err)
	im := normalize.Image{Path: img, Width: 16, Height: 16, Format: filetype.FormatPNG}
	require.NoError(t, w.AddPage(im, assemble.A4.Place(16, 16)))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(renamed)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.pdf"), data, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fake.pdf"), []byte("not a document"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub.pdf"), 0o755))

	docs, err := findDocuments(dir, 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, renamed, docs[0].path)
	assert.Equal(t, int64(len(data)), docs[0].info.Size())

	_, err = findDocuments(filepath.Join(dir, "missing"), 0)
	assert.Error(t, err)
}

func TestConvertCommandRejectsBadProfile(t *testing.T) {
	t.Chdir(t.TempDir())
	img := filepath.Join(t.TempDir(), "a.png")
	writePNG(t, img, 8, 8)

	rootCmd.SetArgs([]string{"convert", "--profile", "ultra", img})
	assert.Error(t, rootCmd.Execute())
}
