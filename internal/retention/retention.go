// Package retention periodically prunes the catalog: old audit events,
// stale job history, tombstoned files, orphan mirror chunks, and a
// conditional VACUUM when the freelist has grown large.
package retention

import (
	"context"
	"log/slog"

	"github.com/gaspardpetit/findx/internal/catalog"
	"github.com/gaspardpetit/findx/internal/config"
)

const secondsPerDay = 86_400

// vacuumFreelistPages and vacuumFreelistRatio are the thresholds a
// database must cross before a VACUUM is worthwhile: more than 1000
// freelist pages, and those pages making up more than 10% of the file.
const (
	vacuumFreelistPages = 1000
	vacuumFreelistRatio = 0.10
)

// Clock returns the current unix time in seconds. Tests substitute a
// fixed clock.
type Clock func() int64

// Engine runs one retention pass against the catalog on demand.
type Engine struct {
	cat *catalog.Catalog
	cfg config.RetentionConfig
	now Clock
}

// New creates an Engine.
func New(cat *catalog.Catalog, cfg config.RetentionConfig, now Clock) *Engine {
	return &Engine{cat: cat, cfg: cfg, now: now}
}

// Run executes one retention pass: event pruning, job pruning, file
// tombstone purging, orphan mirror chunk cleanup, then a conditional
// VACUUM.
func (e *Engine) Run(ctx context.Context) error {
	now := e.now()

	if _, err := e.cat.DeleteEventsOlderThan(ctx, now-int64(e.cfg.EventsDays)*secondsPerDay); err != nil {
		return err
	}

	if err := e.pruneJobs(ctx, now); err != nil {
		return err
	}

	if err := e.purgeTombstonedFiles(ctx, now); err != nil {
		return err
	}

	if _, err := e.cat.DeleteOrphanMirrorChunks(ctx); err != nil {
		return err
	}

	return e.vacuumIfNeeded(ctx)
}

func (e *Engine) pruneJobs(ctx context.Context, now int64) error {
	if _, err := e.cat.DeleteFailedJobsOlderThan(ctx, now-int64(e.cfg.JobsFailedDays)*secondsPerDay); err != nil {
		return err
	}

	fileUIDs, err := e.cat.DistinctJobFileUIDs(ctx)
	if err != nil {
		return err
	}
	for _, fileUID := range fileUIDs {
		if _, err := e.cat.PruneJobsKeepingRecent(ctx, fileUID, e.cfg.JobsKeepPerFile); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) purgeTombstonedFiles(ctx context.Context, now int64) error {
	cutoff := now - int64(e.cfg.FilesTombstoneDays)*secondsPerDay
	fileUIDs, err := e.cat.ListTombstonedBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, fileUID := range fileUIDs {
		if err := e.cat.PurgeFile(ctx, fileUID); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) vacuumIfNeeded(ctx context.Context) error {
	freelistCount, pageCount, err := e.cat.FreelistStats(ctx)
	if err != nil {
		return err
	}
	if pageCount == 0 || freelistCount <= vacuumFreelistPages {
		return nil
	}
	if float64(freelistCount) <= vacuumFreelistRatio*float64(pageCount) {
		return nil
	}

	slog.Info("retention: vacuuming catalog", slog.Int64("freelist_pages", freelistCount), slog.Int64("page_count", pageCount))
	return e.cat.Vacuum(ctx)
}
