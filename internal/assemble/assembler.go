// Package assemble packs normalized images, in order, into one or more
// documents whose size stays under a byte cap.
package assemble

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/local/pictopdf/internal/normalize"
	"github.com/local/pictopdf/internal/sequence"
)

// Document describes a finalized output file.
type Document struct {
	Path     string
	Sequence int64
	// Size is the serialized file size.
	Size  int64
	Pages int
	// ImageBytes is the sum of the normalized image sizes placed in it.
	ImageBytes int64
}

// Options configures an Assembler.
type Options struct {
	Page Page
	// KeepImages leaves normalized images on disk after they are placed.
	KeepImages bool
}

// Assembler turns an ordered image list into documents named by an Allocator.
// Runs must not overlap on the same Allocator.
type Assembler struct {
	alloc   *sequence.Allocator
	encoder Encoder
	page    Page
	keep    bool
}

func New(alloc *sequence.Allocator, enc Encoder, opts Options) *Assembler {
	if enc == nil {
		enc = PDFEncoder{}
	}
	page := opts.Page
	if page.Width <= 0 || page.Height <= 0 {
		page = A4
	}
	return &Assembler{alloc: alloc, encoder: enc, page: page, keep: opts.KeepImages}
}

// open is the document currently receiving pages.
type open struct {
	w   PageWriter
	doc Document
}

// state is the fold accumulator threaded through the image sequence.
type state struct {
	cur       *open
	finalized []Document
}

// Assemble places every image on its own page. A new document is started
// when the current one already holds a page and adding the next image's
// bytes would push the placed image total past limit. A document always
// accepts its first image, however large. The sequence counter is committed
// once, after the last document is closed.
func (a *Assembler) Assemble(ctx context.Context, images []normalize.Image, limit int64) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.alloc.Reset()

	var (
		st  state
		err error
	)
	for _, img := range images {
		st, err = a.step(ctx, st, img, limit)
		if err != nil {
			return nil, a.fail(ctx, st, err)
		}
	}
	st, err = a.finalize(st)
	if err != nil {
		return nil, a.fail(ctx, st, err)
	}

	a.commit(ctx, st.finalized)
	return st.finalized, nil
}

func (a *Assembler) step(ctx context.Context, st state, img normalize.Image, limit int64) (state, error) {
	var err error
	if st.cur != nil && st.cur.doc.Pages >= 1 && st.cur.doc.ImageBytes+img.Size > limit {
		if st, err = a.finalize(st); err != nil {
			return st, err
		}
	}
	if st.cur == nil {
		if st, err = a.open(ctx, st); err != nil {
			return st, err
		}
	}

	if err := st.cur.w.AddPage(img, a.page.Place(img.Width, img.Height)); err != nil {
		return st, fmt.Errorf("add page %d: %w", img.Index, err)
	}
	next := *st.cur
	next.doc.Pages++
	next.doc.ImageBytes += img.Size
	st.cur = &next

	if !a.keep {
		if err := img.Remove(); err != nil {
			log.Warn().Err(err).Str("path", img.Path).Msg("failed to remove placed image")
		}
	}
	return st, nil
}

func (a *Assembler) open(ctx context.Context, st state) (state, error) {
	path, seq, err := a.alloc.Allocate(ctx)
	if err != nil {
		return st, err
	}
	w, err := a.encoder.Create(path)
	if err != nil {
		return st, &DocumentWriteError{Path: path, Err: err}
	}
	log.Debug().Str("path", path).Int64("sequence", seq).Msg("opened document")
	st.cur = &open{w: w, doc: Document{Path: path, Sequence: seq}}
	return st, nil
}

func (a *Assembler) finalize(st state) (state, error) {
	if st.cur == nil {
		return st, nil
	}
	doc := st.cur.doc
	if err := st.cur.w.Close(); err != nil {
		return st, fmt.Errorf("close document: %w", err)
	}
	fi, err := os.Stat(doc.Path)
	if err != nil {
		return st, fmt.Errorf("stat document: %w", err)
	}
	doc.Size = fi.Size()

	log.Info().
		Str("path", doc.Path).
		Int64("sequence", doc.Sequence).
		Int("pages", doc.Pages).
		Int64("size", doc.Size).
		Int64("image_bytes", doc.ImageBytes).
		Msg("document finalized")

	finalized := append(append([]Document(nil), st.finalized...), doc)
	return state{finalized: finalized}, nil
}

// fail discards the unfinished document, commits the counter for the
// documents already finalized and wraps err.
func (a *Assembler) fail(ctx context.Context, st state, err error) error {
	path := ""
	if st.cur != nil {
		path = st.cur.doc.Path
		st.cur.w.Abort()
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Warn().Err(rmErr).Str("path", path).Msg("failed to remove unfinished document")
		}
	}
	a.commit(ctx, st.finalized)
	a.alloc.Reset()

	if dwe, ok := err.(*DocumentWriteError); ok {
		dwe.Finalized = st.finalized
		return dwe
	}
	return &DocumentWriteError{Path: path, Finalized: st.finalized, Err: err}
}

func (a *Assembler) commit(ctx context.Context, docs []Document) {
	if len(docs) == 0 {
		return
	}
	last := docs[len(docs)-1].Sequence
	if err := a.alloc.Commit(ctx, last); err != nil {
		// Taken names are skipped on the next run.
		log.Error().Err(err).Int64("sequence", last).Msg("failed to persist sequence counter")
	}
}
