package assemble

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/png"
	"io"
	"os"

	"github.com/jung-kurt/gofpdf"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/local/pictopdf/internal/filetype"
	"github.com/local/pictopdf/internal/normalize"
)

var errWriterClosed = errors.New("document already closed")

// PageWriter serializes the pages of one document.
type PageWriter interface {
	AddPage(img normalize.Image, at Placement) error
	// Close finalizes the document. The file is complete only if Close succeeds.
	Close() error
	// Abort releases the writer without finalizing.
	Abort()
}

// Encoder opens documents for writing.
type Encoder interface {
	Create(path string) (PageWriter, error)
}

// PDFEncoder builds image-only PDFs with gofpdf. Pages are kept in memory
// and the file is written by Close.
type PDFEncoder struct{}

func (PDFEncoder) Create(path string) (PageWriter, error) {
	// hold the name until Close replaces the placeholder
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	f.Close()

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: A4.Width, Ht: A4.Height},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator("pictopdf", true)
	return &pdfPages{pdf: pdf, path: path}, nil
}

type pdfPages struct {
	pdf    *gofpdf.Fpdf
	path   string
	pages  int
	closed bool
}

func (p *pdfPages) AddPage(img normalize.Image, at Placement) error {
	if p.closed {
		return errWriterClosed
	}
	typ, r, err := pageImage(img)
	if err != nil {
		return err
	}
	name := fmt.Sprintf("page%d", p.pages+1)
	opts := gofpdf.ImageOptions{ImageType: typ}
	p.pdf.RegisterImageOptionsReader(name, opts, r)

	p.pdf.AddPageFormat("P", gofpdf.SizeType{Wd: at.Page.W, Ht: at.Page.H})
	// gofpdf measures y downwards from the top edge
	top := at.Page.H - at.Image.Y - at.Image.H
	p.pdf.ImageOptions(name, at.Image.X, top, at.Image.W, at.Image.H, false, opts, 0, "")
	if err := p.pdf.Error(); err != nil {
		return fmt.Errorf("place %s: %w", img.Path, err)
	}
	p.pages++
	return nil
}

func (p *pdfPages) Close() error {
	if p.closed {
		return errWriterClosed
	}
	p.closed = true
	return p.pdf.OutputFileAndClose(p.path)
}

func (p *pdfPages) Abort() {
	if p.closed {
		return
	}
	p.closed = true
	os.Remove(p.path)
}

// pageImage loads img for embedding. JPEG is embedded as-is; every other
// format is flattened over white and handed over as an opaque 8-bit PNG.
func pageImage(img normalize.Image) (string, io.Reader, error) {
	data, err := os.ReadFile(img.Path)
	if err != nil {
		return "", nil, err
	}
	if img.Format == filetype.FormatJPEG {
		return "JPG", bytes.NewReader(data), nil
	}

	m, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", nil, fmt.Errorf("decode %s: %w", img.Path, err)
	}
	b := m.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(canvas, canvas.Bounds(), m, b.Min, draw.Over)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return "", nil, err
	}
	return "PNG", &buf, nil
}
