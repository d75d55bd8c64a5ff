package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.yaml.in/yaml/v3"
)

// Report is the on-disk summary of a conversion run.
type Report struct {
	RunID     string           `yaml:"run_id"`
	CreatedAt time.Time        `yaml:"created_at"`
	Inputs    int              `yaml:"inputs"`
	Duration  string           `yaml:"duration"`
	Documents []ReportDocument `yaml:"documents"`
	Skipped   []ReportFailure  `yaml:"skipped,omitempty"`
	Error     string           `yaml:"error,omitempty"`
}

type ReportDocument struct {
	Path      string       `yaml:"path"`
	Sequence  int64        `yaml:"sequence"`
	Pages     int          `yaml:"pages"`
	Size      int64        `yaml:"size"`
	RemoteURL string       `yaml:"remote_url,omitempty"`
	Parts     []ReportPart `yaml:"parts,omitempty"`
}

type ReportPart struct {
	Path  string `yaml:"path"`
	Start int    `yaml:"start"`
	End   int    `yaml:"end"`
	Size  int64  `yaml:"size"`
}

// ReportFailure names a skipped input by its position in the request.
type ReportFailure struct {
	Index  int    `yaml:"index"`
	Source string `yaml:"source"`
	Error  string `yaml:"error"`
}

// NewReport summarizes res. runErr is the error Convert returned, if any.
func NewReport(res *ConvertResult, runErr error) Report {
	rep := Report{
		RunID:     res.RunID,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Inputs:    res.Inputs,
		Duration:  res.Duration.Round(time.Millisecond).String(),
	}
	for _, d := range res.Documents {
		rd := ReportDocument{
			Path:      d.Path,
			Sequence:  d.Sequence,
			Pages:     d.Pages,
			Size:      d.Size,
			RemoteURL: res.Published[d.Path],
		}
		for _, p := range res.Parts[d.Path] {
			rd.Parts = append(rd.Parts, ReportPart{Path: p.Path, Start: p.Start, End: p.End, Size: p.Size})
		}
		rep.Documents = append(rep.Documents, rd)
	}
	for _, f := range res.Failures {
		rep.Skipped = append(rep.Skipped, ReportFailure{Index: f.Index, Source: f.Source, Error: f.Err.Error()})
	}
	if runErr != nil {
		rep.Error = runErr.Error()
	}
	return rep
}

// WriteFile stores the report as YAML at path.
func (rep Report) WriteFile(path string) error {
	data, err := yaml.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}
