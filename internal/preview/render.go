// Package preview renders pages of produced documents to JPEG with MuPDF.
package preview

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"os"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
)

// Options controls a render. Page is 1-based.
type Options struct {
	Page    int
	DPI     int
	Quality int
	Gray    bool
}

func (o Options) withDefaults() Options {
	if o.Page <= 0 {
		o.Page = 1
	}
	if o.DPI <= 0 {
		o.DPI = 72
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = 85
	}
	return o
}

// Rendered is an encoded page image.
type Rendered struct {
	Data   []byte
	Width  int
	Height int
	Pages  int
}

// RenderPage renders one page of the PDF at pdfPath.
func RenderPage(pdfPath string, opts Options) (Rendered, error) {
	opts = opts.withDefaults()

	doc, err := fitz.New(pdfPath)
	if err != nil {
		return Rendered{}, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	pages := doc.NumPage()
	if opts.Page > pages {
		return Rendered{}, fmt.Errorf("page %d out of range (document has %d)", opts.Page, pages)
	}

	// go-fitz pages are 0-based
	img, err := doc.ImageDPI(opts.Page-1, float64(opts.DPI))
	if err != nil {
		return Rendered{}, fmt.Errorf("failed to render page %d: %w", opts.Page, err)
	}

	var final image.Image = img
	if opts.Gray {
		final = imaging.Grayscale(img)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, final, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return Rendered{}, fmt.Errorf("failed to encode JPEG: %w", err)
	}

	b := final.Bounds()
	log.Debug().
		Str("pdf", pdfPath).
		Int("page", opts.Page).
		Int("width", b.Dx()).
		Int("height", b.Dy()).
		Int("dpi", opts.DPI).
		Int("jpeg_size", buf.Len()).
		Msg("rendered page preview")

	return Rendered{Data: buf.Bytes(), Width: b.Dx(), Height: b.Dy(), Pages: pages}, nil
}

// RenderToFile renders a page and writes the JPEG to out.
func RenderToFile(pdfPath, out string, opts Options) (Rendered, error) {
	r, err := RenderPage(pdfPath, opts)
	if err != nil {
		return Rendered{}, err
	}
	if err := os.WriteFile(out, r.Data, 0o644); err != nil {
		return Rendered{}, err
	}
	return r, nil
}
