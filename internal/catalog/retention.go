package catalog

import "context"

// FreelistStats returns the raw freelist and total page counts, used by
// the retention engine to decide whether a VACUUM is worthwhile.
func (c *Catalog) FreelistStats(ctx context.Context) (freelistCount, pageCount int64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.db.QueryRowContext(ctx, `PRAGMA page_count`).Scan(&pageCount); err != nil {
		return 0, 0, wrapCatalogErr("read page_count", err)
	}
	if err := c.db.QueryRowContext(ctx, `PRAGMA freelist_count`).Scan(&freelistCount); err != nil {
		return 0, 0, wrapCatalogErr("read freelist_count", err)
	}
	return freelistCount, pageCount, nil
}

// FreelistRatio returns the fraction of database pages currently on the
// SQLite freelist.
func (c *Catalog) FreelistRatio(ctx context.Context) (float64, error) {
	freelistCount, pageCount, err := c.FreelistStats(ctx)
	if err != nil {
		return 0, err
	}
	if pageCount == 0 {
		return 0, nil
	}
	return float64(freelistCount) / float64(pageCount), nil
}

// Vacuum rewrites the database file to reclaim freelist pages.
func (c *Catalog) Vacuum(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx, `VACUUM`)
	return wrapCatalogErr("vacuum", err)
}

// PruneJobsKeepingRecent deletes every extract_jobs row for fileUID
// beyond the keep most recent (by started_ts), leaving at most keep
// rows per file.
func (c *Catalog) PruneJobsKeepingRecent(ctx context.Context, fileUID string, keep int) (int64, error) {
	jobs, err := c.ListJobsForFile(ctx, fileUID)
	if err != nil {
		return 0, err
	}
	if len(jobs) <= keep {
		return 0, nil
	}

	var deleted int64
	for _, j := range jobs[keep:] {
		if err := c.DeleteJobByID(ctx, j.ID); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}
