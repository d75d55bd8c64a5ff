// Package pipeline runs conversion and split jobs end to end: normalization,
// assembly, splitting, cataloguing and optional publishing.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/local/pictopdf/internal/assemble"
	"github.com/local/pictopdf/internal/catalog"
	"github.com/local/pictopdf/internal/config"
	"github.com/local/pictopdf/internal/logger"
	"github.com/local/pictopdf/internal/metrics"
	"github.com/local/pictopdf/internal/normalize"
	"github.com/local/pictopdf/internal/sequence"
	"github.com/local/pictopdf/internal/split"
)

type Stage string

const (
	StageNormalizing Stage = "normalizing"
	StageAssembling  Stage = "assembling"
	StageSplitting   Stage = "splitting"
	StageDone        Stage = "done"
)

// Status is reported at stage boundaries.
type Status struct {
	RunID    string
	Stage    Stage
	Progress int
	Message  string
	Metadata map[string]any
}

type ProgressFunc func(Status)

// Publisher uploads a finished file and returns where it went.
type Publisher interface {
	Publish(ctx context.Context, localPath string) (string, error)
}

// Dependencies are the collaborators a Runner needs. Catalog and Publisher
// are optional.
type Dependencies struct {
	Counter   sequence.Counter
	Encoder   assemble.Encoder
	Catalog   *catalog.Store
	Publisher Publisher
	Progress  ProgressFunc
}

// Runner executes one job at a time.
type Runner struct {
	mu   sync.Mutex
	cfg  config.PipelineConfig
	deps Dependencies
}

func New(cfg config.PipelineConfig, deps Dependencies) *Runner {
	if cfg.Cap <= 0 {
		cfg.Cap = config.DefaultCap
	}
	if cfg.Extension == "" {
		cfg.Extension = ".pdf"
	}
	if deps.Counter == nil {
		deps.Counter = sequence.NewFileCounter(filepath.Join(cfg.OutputDir, ".sequence.json"))
	}
	return &Runner{cfg: cfg, deps: deps}
}

// ConvertOptions override configured values for one run.
type ConvertOptions struct {
	Profile    normalize.Profile
	Cap        int64
	KeepImages bool
	// Split cuts any assembled document still over the cap.
	Split bool
}

// ConvertResult is the outcome of a conversion run.
type ConvertResult struct {
	RunID     string
	Inputs    int
	Documents []assemble.Document
	Parts     map[string][]split.Part
	Failures  []normalize.Failure
	Published map[string]string
	Duration  time.Duration
}

// Convert normalizes the inputs, assembles them into capped documents in the
// output directory and records the results. Inputs that cannot be decoded are
// skipped and reported in Failures.
func (r *Runner) Convert(ctx context.Context, inputs []string, opts ConvertOptions) (res *ConvertResult, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	limit := opts.Cap
	if limit <= 0 {
		limit = r.cfg.Cap
	}
	res = &ConvertResult{RunID: uuid.NewString(), Inputs: len(inputs)}
	lg := logger.ForRun(res.RunID, "convert")
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		metrics.ObserveRun("convert", resultLabel(err), res.Duration)
	}()

	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return res, fmt.Errorf("create output dir: %w", err)
	}
	workDir, err := r.workDir(res.RunID)
	if err != nil {
		return res, err
	}
	defer func() {
		if rmErr := os.RemoveAll(workDir); rmErr != nil {
			lg.Warn().Err(rmErr).Str("dir", workDir).Msg("failed to remove work dir")
		}
	}()

	lg.Info().Int("inputs", len(inputs)).Str("profile", opts.Profile.String()).Int64("cap", limit).Msg("starting conversion")
	r.report(Status{RunID: res.RunID, Stage: StageNormalizing, Progress: 0,
		Message: fmt.Sprintf("Normalizing %d images", len(inputs))})

	norm := normalize.New(normalize.Options{
		WorkDir: workDir,
		Bounds:  normalize.Bounds{Width: r.cfg.MaxWidth, Height: r.cfg.MaxHeight},
	})
	batch, err := norm.NormalizeAll(ctx, normalize.FileSources(inputs), opts.Profile)
	res.Failures = batch.Failures
	for range batch.Images {
		metrics.ImageNormalized()
	}
	for range batch.Failures {
		metrics.ImageSkipped()
	}
	if err != nil {
		return res, err
	}

	r.report(Status{RunID: res.RunID, Stage: StageAssembling, Progress: 40,
		Message:  fmt.Sprintf("Assembling %d images", len(batch.Images)),
		Metadata: map[string]any{"skipped": len(batch.Failures)}})

	alloc := sequence.NewAllocator(r.cfg.OutputDir, r.cfg.Extension, r.deps.Counter)
	asm := assemble.New(alloc, r.deps.Encoder, assemble.Options{
		Page:       assemble.Page{Width: r.cfg.PageWidth, Height: r.cfg.PageHeight, Margin: r.cfg.Margin},
		KeepImages: opts.KeepImages,
	})
	docs, err := asm.Assemble(ctx, batch.Images, limit)
	if err != nil {
		if dwe, ok := err.(*assemble.DocumentWriteError); ok {
			res.Documents = dwe.Finalized
			r.afterDocuments(ctx, lg, res, limit)
		}
		return res, err
	}
	res.Documents = docs
	r.afterDocuments(ctx, lg, res, limit)

	if opts.Split {
		r.report(Status{RunID: res.RunID, Stage: StageSplitting, Progress: 80, Message: "Splitting oversized documents"})
		for _, doc := range docs {
			parts, err := r.splitLocked(ctx, lg, res.RunID, doc.Path, limit)
			if err != nil {
				return res, err
			}
			if len(parts) > 0 {
				if res.Parts == nil {
					res.Parts = map[string][]split.Part{}
				}
				res.Parts[doc.Path] = parts
			}
		}
	}

	r.report(Status{RunID: res.RunID, Stage: StageDone, Progress: 100,
		Message: fmt.Sprintf("Created %d documents", len(res.Documents)),
		Metadata: map[string]any{
			"documents":        len(res.Documents),
			"skipped":          len(res.Failures),
			"duration_seconds": time.Since(start).Seconds(),
		}})
	lg.Info().
		Int("documents", len(res.Documents)).
		Int("skipped", len(res.Failures)).
		Dur("elapsed", time.Since(start)).
		Msg("conversion finished")
	return res, nil
}

// afterDocuments records metrics, catalog entries and remote copies for
// every finalized document. Failures here are logged, never fatal.
func (r *Runner) afterDocuments(ctx context.Context, lg zerolog.Logger, res *ConvertResult, limit int64) {
	for _, doc := range res.Documents {
		metrics.DocumentCreated(doc.Size, doc.Size > limit)
		if doc.Size > limit && doc.Pages > 1 {
			lg.Warn().Str("path", doc.Path).Int64("size", doc.Size).Int("pages", doc.Pages).Msg("document exceeds cap")
		}
		r.record(ctx, lg, catalog.Entry{
			Path:     doc.Path,
			Kind:     catalog.KindDocument,
			Sequence: doc.Sequence,
			Pages:    doc.Pages,
			Size:     doc.Size,
			RunID:    res.RunID,
		})
		if url := r.publish(ctx, lg, doc.Path); url != "" {
			if res.Published == nil {
				res.Published = map[string]string{}
			}
			res.Published[doc.Path] = url
		}
	}
}

// SplitResult is the outcome of a split run. Parts is empty when the source
// was already within the cap.
type SplitResult struct {
	RunID    string
	Source   string
	Size     int64
	Parts    []split.Part
	Duration time.Duration
}

// Split cuts an existing document into parts under limit (or the configured
// cap when limit is zero). Documents already within the cap are left alone.
func (r *Runner) Split(ctx context.Context, path string, limit int64) (res *SplitResult, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 {
		limit = r.cfg.Cap
	}
	res = &SplitResult{RunID: uuid.NewString(), Source: path}
	lg := logger.ForRun(res.RunID, "split")
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		metrics.ObserveRun("split", resultLabel(err), res.Duration)
	}()

	fi, err := os.Stat(path)
	if err != nil {
		return res, &split.SplitError{Path: path, Op: "read", Err: err}
	}
	res.Size = fi.Size()

	r.report(Status{RunID: res.RunID, Stage: StageSplitting, Progress: 0, Message: "Splitting " + filepath.Base(path)})
	res.Parts, err = r.splitLocked(ctx, lg, res.RunID, path, limit)
	if err != nil {
		return res, err
	}
	r.report(Status{RunID: res.RunID, Stage: StageDone, Progress: 100,
		Message: fmt.Sprintf("Created %d parts", len(res.Parts))})
	return res, nil
}

func (r *Runner) splitLocked(ctx context.Context, lg zerolog.Logger, runID, path string, limit int64) ([]split.Part, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, &split.SplitError{Path: path, Op: "read", Err: err}
	}
	if fi.Size() <= limit {
		lg.Info().Str("path", path).Int64("size", fi.Size()).Int64("cap", limit).Msg("document within cap, not splitting")
		return nil, nil
	}

	parts, err := split.New(split.Options{}).Split(ctx, path, limit)
	if err != nil {
		return nil, err
	}
	for _, p := range parts {
		metrics.PartWritten(p.Size, p.Size > limit)
		r.record(ctx, lg, catalog.Entry{
			Path:      p.Path,
			Kind:      catalog.KindPart,
			Parent:    path,
			PartIndex: p.Index,
			StartPage: p.Start,
			EndPage:   p.End,
			Pages:     p.Pages(),
			Size:      p.Size,
			RunID:     runID,
		})
		r.publish(ctx, lg, p.Path)
	}
	lg.Info().Str("path", path).Int("parts", len(parts)).Msg("split finished")
	return parts, nil
}

func (r *Runner) record(ctx context.Context, lg zerolog.Logger, e catalog.Entry) {
	if r.deps.Catalog == nil {
		return
	}
	if _, err := r.deps.Catalog.Record(ctx, e); err != nil {
		lg.Error().Err(err).Str("path", e.Path).Msg("failed to record in catalog")
	}
}

func (r *Runner) publish(ctx context.Context, lg zerolog.Logger, path string) string {
	if r.deps.Publisher == nil {
		return ""
	}
	url, err := r.deps.Publisher.Publish(ctx, path)
	if err != nil {
		lg.Error().Err(err).Str("path", path).Msg("failed to publish")
		return ""
	}
	if r.deps.Catalog != nil {
		if err := r.deps.Catalog.SetRemoteURL(ctx, path, url); err != nil {
			lg.Warn().Err(err).Str("path", path).Msg("failed to store remote url")
		}
	}
	return url
}

func (r *Runner) workDir(runID string) (string, error) {
	base := r.cfg.WorkDir
	if base == "" {
		base = filepath.Join(os.TempDir(), "pictopdf")
	}
	dir := filepath.Join(base, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	return dir, nil
}

func (r *Runner) report(st Status) {
	log.Debug().Str("run_id", st.RunID).Str("stage", string(st.Stage)).Int("progress", st.Progress).Msg(st.Message)
	if r.deps.Progress != nil {
		r.deps.Progress(st)
	}
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
