package catalog

import (
	"context"
	"database/sql"
)

// JobStatus is the lifecycle state of an extract_jobs row.
type JobStatus string

const (
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

// InsertRunningJob attempts to insert a running job row for
// (file_uid, content_hash). Returns inserted=false if the pair already
// exists — the caller should skip the job silently, since another
// worker already owns it or it is already done.
func (c *Catalog) InsertRunningJob(ctx context.Context, fileUID, contentHash string, now int64) (inserted bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, execErr := c.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO extract_jobs (file_uid, content_hash, status, attempt, started_ts)
		VALUES (?, ?, 'running', 1, ?)
	`, fileUID, contentHash, now)
	if execErr != nil {
		return false, wrapCatalogErr("insert extract job", execErr)
	}
	n, execErr := res.RowsAffected()
	if execErr != nil {
		return false, wrapCatalogErr("rows affected extract job", execErr)
	}
	return n > 0, nil
}

// MarkJobDone transitions a (file_uid, content_hash) job to done.
func (c *Catalog) MarkJobDone(ctx context.Context, fileUID, contentHash string, now int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx, `
		UPDATE extract_jobs SET status = 'done', finished_ts = ?
		WHERE file_uid = ? AND content_hash = ?
	`, now, fileUID, contentHash)
	return wrapCatalogErr("mark job done", err)
}

// MarkJobFailed transitions a (file_uid, content_hash) job to failed
// with the given error message. If no job row exists yet (the "file not
// found" early-exit path), one is created directly in the failed state.
func (c *Catalog) MarkJobFailed(ctx context.Context, fileUID, contentHash, errMsg string, now int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx, `
		UPDATE extract_jobs SET status = 'failed', finished_ts = ?, error = ?
		WHERE file_uid = ? AND content_hash = ?
	`, now, errMsg, fileUID, contentHash)
	if err != nil {
		return wrapCatalogErr("mark job failed", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO extract_jobs (file_uid, content_hash, status, attempt, started_ts, finished_ts, error)
		VALUES (?, ?, 'failed', 1, ?, ?, ?)
	`, fileUID, contentHash, now, now, errMsg)
	return wrapCatalogErr("insert failed job", err)
}

// ExtractJob mirrors one row of the extract_jobs table.
type ExtractJob struct {
	ID          int64
	FileUID     string
	ContentHash string
	Status      JobStatus
	Attempt     int
	StartedTS   int64
	FinishedTS  sql.NullInt64
	Error       sql.NullString
}

// ListJobsForFile returns every job row for file_uid ordered newest
// first, used by retention's keep-N-most-recent pruning.
func (c *Catalog) ListJobsForFile(ctx context.Context, fileUID string) ([]ExtractJob, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, file_uid, content_hash, status, attempt, started_ts, finished_ts, error
		FROM extract_jobs WHERE file_uid = ? ORDER BY started_ts DESC
	`, fileUID)
	if err != nil {
		return nil, wrapCatalogErr("list jobs for file", err)
	}
	defer rows.Close()

	var out []ExtractJob
	for rows.Next() {
		var j ExtractJob
		var status string
		if err := rows.Scan(&j.ID, &j.FileUID, &j.ContentHash, &status, &j.Attempt, &j.StartedTS, &j.FinishedTS, &j.Error); err != nil {
			return nil, wrapCatalogErr("scan job", err)
		}
		j.Status = JobStatus(status)
		out = append(out, j)
	}
	return out, wrapCatalogErr("iterate jobs", rows.Err())
}

// DeleteJobByID removes a single extract_jobs row by its primary key.
func (c *Catalog) DeleteJobByID(ctx context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx, `DELETE FROM extract_jobs WHERE id = ?`, id)
	return wrapCatalogErr("delete job", err)
}

// DeleteFailedJobsOlderThan removes failed jobs whose finished_ts is
// older than cutoff.
func (c *Catalog) DeleteFailedJobsOlderThan(ctx context.Context, cutoff int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx, `
		DELETE FROM extract_jobs WHERE status = 'failed' AND finished_ts IS NOT NULL AND finished_ts < ?
	`, cutoff)
	if err != nil {
		return 0, wrapCatalogErr("delete old failed jobs", err)
	}
	n, err := res.RowsAffected()
	return n, wrapCatalogErr("rows affected delete old failed jobs", err)
}

// DistinctJobFileUIDs returns every file_uid with at least one
// extract_jobs row, for retention's per-file keep-N pass.
func (c *Catalog) DistinctJobFileUIDs(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.QueryContext(ctx, `SELECT DISTINCT file_uid FROM extract_jobs`)
	if err != nil {
		return nil, wrapCatalogErr("distinct job file uids", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, wrapCatalogErr("scan distinct job file uid", err)
		}
		out = append(out, uid)
	}
	return out, wrapCatalogErr("iterate distinct job file uids", rows.Err())
}
