// Package normalize bounds, rotates and recompresses source images before
// they are assembled into documents.
package normalize

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/local/pictopdf/internal/filetype"
)

// sniffLen matches the header window mimetype inspects.
const sniffLen = 3072

// ErrUnsupportedFormat is wrapped by decode failures for sources that are not
// a recognized raster format.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Image is a normalized image on disk, exclusively owned by the caller.
type Image struct {
	Index  int
	Source string
	Path   string
	Size   int64
	Width  int
	Height int
	Format filetype.Format
}

// Remove deletes the normalized file.
func (im Image) Remove() error {
	if err := os.Remove(im.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Failure is a source skipped during a batch.
type Failure struct {
	Index  int
	Source string
	Err    error
}

// Batch is the outcome of NormalizeAll. Images keep the input order.
type Batch struct {
	Images   []Image
	Failures []Failure
}

// Remove deletes every normalized file in the batch.
func (b Batch) Remove() {
	for _, im := range b.Images {
		if err := im.Remove(); err != nil {
			log.Warn().Err(err).Str("path", im.Path).Msg("failed to remove normalized image")
		}
	}
}

// Options configures a Normalizer.
type Options struct {
	// WorkDir receives normalized files. It must exist.
	WorkDir string
	// Bounds defaults to DefaultBounds.
	Bounds Bounds
}

// Normalizer turns sources into bounded images in a working directory.
type Normalizer struct {
	workDir  string
	bounds   Bounds
	detector *filetype.Detector
}

func New(opts Options) *Normalizer {
	b := opts.Bounds
	if b.Width <= 0 || b.Height <= 0 {
		b = DefaultBounds
	}
	return &Normalizer{workDir: opts.WorkDir, bounds: b, detector: filetype.New()}
}

// header is what can be learned about a source without decoding pixels.
type header struct {
	info   *filetype.FileTypeInfo
	config image.Config
}

func (n *Normalizer) readHeader(src Source) (header, error) {
	rc, err := src.Open()
	if err != nil {
		return header{}, err
	}
	defer rc.Close()

	br := bufio.NewReaderSize(rc, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return header{}, err
	}
	info := n.detector.Detect(head)
	if !info.Supported {
		return header{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, info.Description)
	}
	cfg, _, err := image.DecodeConfig(br)
	if err != nil {
		return header{}, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return header{}, fmt.Errorf("invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	return header{info: info, config: cfg}, nil
}

// Normalize produces one bounded image for src. With profile None the source
// bytes are copied verbatim; otherwise the image is reduced, EXIF-rotated,
// fitted into the bounds and re-encoded as JPEG at the profile's quality.
func (n *Normalizer) Normalize(ctx context.Context, index int, src Source, profile Profile) (Image, error) {
	if err := ctx.Err(); err != nil {
		return Image{}, err
	}
	hdr, err := n.readHeader(src)
	if err != nil {
		return Image{}, &DecodeError{Index: index, Source: src.Name(), Err: err}
	}
	out := Image{Index: index, Source: src.Name()}
	if profile == None {
		return n.copyVerbatim(src, hdr, out)
	}
	return n.reencode(src, hdr, profile, out)
}

// NormalizeAll normalizes sources in order. A failing source is recorded in
// Batch.Failures and skipped; it never aborts the batch.
func (n *Normalizer) NormalizeAll(ctx context.Context, sources []Source, profile Profile) (Batch, error) {
	var batch Batch
	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			batch.Remove()
			return Batch{}, err
		}
		im, err := n.Normalize(ctx, i, src, profile)
		if err != nil {
			log.Warn().Err(err).Int("index", i).Str("source", src.Name()).Msg("skipping image")
			batch.Failures = append(batch.Failures, Failure{Index: i, Source: src.Name(), Err: err})
			continue
		}
		batch.Images = append(batch.Images, im)
	}
	return batch, nil
}

func (n *Normalizer) copyVerbatim(src Source, hdr header, out Image) (Image, error) {
	ext := hdr.info.Extension
	if ext == "" {
		ext = ".img"
	}
	out.Path = filepath.Join(n.workDir, fmt.Sprintf("image_%04d%s", out.Index, ext))
	out.Width, out.Height = hdr.config.Width, hdr.config.Height
	out.Format = hdr.info.Format

	rc, err := src.Open()
	if err != nil {
		return Image{}, &DecodeError{Index: out.Index, Source: out.Source, Err: err}
	}
	defer rc.Close()

	size, err := writeAtomic(out.Path, func(w io.Writer) error {
		_, err := io.Copy(w, rc)
		return err
	})
	if err != nil {
		return Image{}, &EncodeError{Index: out.Index, Source: out.Source, Path: out.Path, Err: err}
	}
	out.Size = size
	return out, nil
}

func (n *Normalizer) reencode(src Source, hdr header, profile Profile, out Image) (Image, error) {
	w, h := hdr.config.Width, hdr.config.Height
	box := n.bounds.For(w, h)
	factor := sampleFactor(w, h, box)

	raster, err := decode(src)
	if err != nil {
		return Image{}, &DecodeError{Index: out.Index, Source: out.Source, Err: err}
	}
	if factor > 1 {
		raster = reduce(raster, factor)
	}
	raster = orient(raster, readOrientation(src))

	b := raster.Bounds()
	fw, fh := fitWithin(b.Dx(), b.Dy(), n.bounds.For(b.Dx(), b.Dy()))
	if fw != b.Dx() || fh != b.Dy() {
		raster = scale(raster, fw, fh, draw.CatmullRom)
	}

	out.Path = filepath.Join(n.workDir, fmt.Sprintf("image_%04d.jpg", out.Index))
	out.Width, out.Height = raster.Bounds().Dx(), raster.Bounds().Dy()
	out.Format = filetype.FormatJPEG

	size, err := writeAtomic(out.Path, func(w io.Writer) error {
		return jpeg.Encode(w, raster, &jpeg.Options{Quality: profile.Quality()})
	})
	if err != nil {
		return Image{}, &EncodeError{Index: out.Index, Source: out.Source, Path: out.Path, Err: err}
	}
	out.Size = size
	log.Debug().
		Int("index", out.Index).
		Int("src_width", w).Int("src_height", h).
		Int("width", out.Width).Int("height", out.Height).
		Int("sample", factor).
		Int64("bytes", size).
		Msg("normalized image")
	return out, nil
}

func decode(src Source) (image.Image, error) {
	rc, err := src.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	m, _, err := image.Decode(bufio.NewReader(rc))
	return m, err
}

// sampleFactor returns the largest power of two d such that halving the
// source d times still keeps both halved edges at or above the box.
func sampleFactor(w, h int, box Bounds) int {
	d := 1
	if w <= box.Width && h <= box.Height {
		return d
	}
	hw, hh := w/2, h/2
	for hw/d >= box.Width && hh/d >= box.Height {
		d *= 2
	}
	return d
}

// fitWithin returns the largest aspect-preserving size inside box. Rasters
// that already fit are returned unchanged; images are never upscaled.
func fitWithin(w, h int, box Bounds) (int, int) {
	if box.Contains(w, h) {
		return w, h
	}
	s := math.Min(float64(box.Width)/float64(w), float64(box.Height)/float64(h))
	fw := int(math.Round(float64(w) * s))
	fh := int(math.Round(float64(h) * s))
	return max(1, min(fw, box.Width)), max(1, min(fh, box.Height))
}

func reduce(m image.Image, factor int) image.Image {
	b := m.Bounds()
	return scale(m, max(1, b.Dx()/factor), max(1, b.Dy()/factor), draw.ApproxBiLinear)
}

func scale(m image.Image, w, h int, s draw.Scaler) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	s.Scale(dst, dst.Bounds(), m, m.Bounds(), draw.Src, nil)
	return dst
}

// readOrientation returns the EXIF orientation tag, or 1 when absent.
func readOrientation(src Source) int {
	rc, err := src.Open()
	if err != nil {
		return 1
	}
	defer rc.Close()
	x, err := exif.Decode(rc)
	if x == nil || (err != nil && exif.IsCriticalError(err)) {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	o, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return o
}

// orient applies the clockwise rotation encoded by orientations 3, 6 and 8.
// Mirrored orientations are left as decoded.
func orient(m image.Image, orientation int) image.Image {
	switch orientation {
	case 3:
		return imaging.Rotate180(m)
	case 6:
		return imaging.Rotate270(m)
	case 8:
		return imaging.Rotate90(m)
	}
	return m
}

// writeAtomic streams into a temp file next to path and renames it into place.
func writeAtomic(path string, fill func(io.Writer) error) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.part")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	bw := bufio.NewWriter(tmp)
	if err := fill(bw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return 0, err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, err
	}
	fi, err := os.Stat(tmpName)
	if err != nil {
		os.Remove(tmpName)
		return 0, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return 0, err
	}
	return fi.Size(), nil
}
