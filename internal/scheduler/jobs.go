package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/lectern-ai/lectern/internal/ingest"
	"github.com/lectern-ai/lectern/internal/logging"
	"github.com/lectern-ai/lectern/internal/session"
)

// NewRescanJob re-ingests the documents directory so course edits land in
// the catalog without a restart.
func NewRescanJob(ing *ingest.Ingestor, spec string) Job {
	return Job{
		Name: "docs_rescan",
		Cron: spec,
		Run: func(ctx context.Context) (string, error) {
			stats, err := ing.Run(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("scanned=%d ingested=%d unchanged=%d failed=%d chunks=%d",
				stats.Scanned, stats.Ingested, stats.Unchanged, stats.Failed, stats.Chunks), nil
		},
	}
}

// NewCleanupJob removes idle sessions across every surface's session store.
// A surface that fails to sweep is logged and skipped so the others are
// still cleaned.
func NewCleanupJob(managers map[string]*session.Manager, ttl time.Duration, spec string) Job {
	surfaces := make([]string, 0, len(managers))
	for name := range managers {
		surfaces = append(surfaces, name)
	}
	sort.Strings(surfaces)

	return Job{
		Name: "session_cleanup",
		Cron: spec,
		Run: func(ctx context.Context) (string, error) {
			removed := 0
			for _, name := range surfaces {
				n, err := managers[name].CleanupIdle(ctx, ttl)
				if err != nil {
					logging.Logger().Warn("session cleanup failed", "surface", name, "err", err)
					continue
				}
				removed += n
			}
			return fmt.Sprintf("removed=%d", removed), nil
		},
	}
}
