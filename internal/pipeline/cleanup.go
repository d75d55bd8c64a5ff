package pipeline

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// CleanupStale removes run directories under workDir older than maxAge, left
// behind by runs that were killed before they could clean up. Only
// directories named by a run id are touched.
func CleanupStale(workDir string, maxAge time.Duration) int {
	entries, err := os.ReadDir(workDir)
	if err != nil {
		return 0
	}
	now := time.Now()
	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := uuid.Parse(e.Name()); err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) < maxAge {
			continue
		}
		path := filepath.Join(workDir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			log.Warn().Err(err).Str("dir", path).Msg("failed to remove stale run dir")
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Str("work_dir", workDir).Msg("cleaned up stale run dirs")
	}
	return removed
}
