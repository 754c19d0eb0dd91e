package orchestrator

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// runDirPrefix names the per-job scratch directories.
const runDirPrefix = "printorder-"

// CleanupTemps removes run directories under dir left behind by crashed
// jobs and older than maxAge. It returns the number removed.
func CleanupTemps(dir string, maxAge time.Duration) int {
	if dir == "" {
		dir = os.TempDir()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("temp cleanup: cannot list directory")
		return 0
	}

	now := time.Now()
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), runDirPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) < maxAge {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			log.Warn().Err(err).Str("dir", e.Name()).Msg("temp cleanup: remove failed")
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Str("dir", dir).Msg("stale run directories removed")
	}
	return removed
}
