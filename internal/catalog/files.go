package catalog

import (
	"context"
	"database/sql"
	"errors"
)

// FileStatus is the lifecycle state of a files row.
type FileStatus string

const (
	FileStatusActive  FileStatus = "active"
	FileStatusOffline FileStatus = "offline"
	FileStatusDeleted FileStatus = "deleted"
)

// File mirrors one row of the files table.
type File struct {
	ID        int64
	FileUID   string
	Realpath  string
	Size      int64
	MtimeNS   int64
	FastSig   string
	IsOffline bool
	Attrs     uint64
	Hash      sql.NullString
	Status    FileStatus
	CreatedTS int64
	UpdatedTS int64
}

// UpsertFile inserts a new files row keyed by file_uid, or updates
// realpath/size/mtime_ns/fast_sig/is_offline/attrs/status if it already
// exists. now is the updated_ts (and, on insert, created_ts) to use.
func (c *Catalog) UpsertFile(ctx context.Context, f File, now int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO files (inode_hint, realpath, size, mtime_ns, fast_sig, is_offline, attrs, status, created_ts, updated_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(inode_hint) DO UPDATE SET
			realpath = excluded.realpath,
			size = excluded.size,
			mtime_ns = excluded.mtime_ns,
			fast_sig = excluded.fast_sig,
			is_offline = excluded.is_offline,
			attrs = excluded.attrs,
			status = excluded.status,
			updated_ts = excluded.updated_ts
	`, f.FileUID, f.Realpath, f.Size, f.MtimeNS, f.FastSig, boolToInt(f.IsOffline), f.Attrs, string(f.Status), now, now)
	return wrapCatalogErr("upsert file", err)
}

// GetFileByUID returns the files row for file_uid, or (nil, nil) if none
// exists.
func (c *Catalog) GetFileByUID(ctx context.Context, fileUID string) (*File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	row := c.db.QueryRowContext(ctx, `
		SELECT id, inode_hint, realpath, size, mtime_ns, fast_sig, is_offline, attrs, hash, status, created_ts, updated_ts
		FROM files WHERE inode_hint = ?
	`, fileUID)
	return scanFile(row)
}

func scanFile(row *sql.Row) (*File, error) {
	var f File
	var isOffline int
	var status string
	err := row.Scan(&f.ID, &f.FileUID, &f.Realpath, &f.Size, &f.MtimeNS, &f.FastSig, &isOffline, &f.Attrs, &f.Hash, &status, &f.CreatedTS, &f.UpdatedTS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapCatalogErr("scan file", err)
	}
	f.IsOffline = isOffline != 0
	f.Status = FileStatus(status)
	return &f, nil
}

// UpdateRealpath changes realpath for file_uid (a move), leaving every
// other field untouched.
func (c *Catalog) UpdateRealpath(ctx context.Context, fileUID, newRealpath string, now int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx, `
		UPDATE files SET realpath = ?, updated_ts = ? WHERE inode_hint = ?
	`, newRealpath, now, fileUID)
	return wrapCatalogErr("update realpath", err)
}

// ClearHashAndReactivate clears files.hash and sets status=active for a
// modified file, prior to re-requesting extraction.
func (c *Catalog) ClearHashAndReactivate(ctx context.Context, fileUID string, now int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx, `
		UPDATE files SET hash = NULL, status = 'active', updated_ts = ? WHERE inode_hint = ?
	`, now, fileUID)
	return wrapCatalogErr("clear hash", err)
}

// MarkDeleted transitions a file's status to deleted (a tombstone, not a
// physical row removal).
func (c *Catalog) MarkDeleted(ctx context.Context, fileUID string, now int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx, `
		UPDATE files SET status = 'deleted', updated_ts = ? WHERE inode_hint = ?
	`, now, fileUID)
	return wrapCatalogErr("mark deleted", err)
}

// SetHash records the content hash once extraction succeeds.
func (c *Catalog) SetHash(ctx context.Context, fileUID string, contentHash string, now int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx, `
		UPDATE files SET hash = ?, updated_ts = ? WHERE inode_hint = ?
	`, contentHash, now, fileUID)
	return wrapCatalogErr("set hash", err)
}

// ListActiveFiles returns every files row with status != deleted, used
// by the reconciler and cold-scan bootstrap.
func (c *Catalog) ListActiveFiles(ctx context.Context) ([]File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, inode_hint, realpath, size, mtime_ns, fast_sig, is_offline, attrs, hash, status, created_ts, updated_ts
		FROM files WHERE status != 'deleted'
	`)
	if err != nil {
		return nil, wrapCatalogErr("list active files", err)
	}
	defer rows.Close()

	var out []File
	for rows.Next() {
		var f File
		var isOffline int
		var status string
		if err := rows.Scan(&f.ID, &f.FileUID, &f.Realpath, &f.Size, &f.MtimeNS, &f.FastSig, &isOffline, &f.Attrs, &f.Hash, &status, &f.CreatedTS, &f.UpdatedTS); err != nil {
			return nil, wrapCatalogErr("scan active file", err)
		}
		f.IsOffline = isOffline != 0
		f.Status = FileStatus(status)
		out = append(out, f)
	}
	return out, wrapCatalogErr("iterate active files", rows.Err())
}

// ListTombstonedBefore returns file_uids whose status is not active and
// updated_ts is older than cutoff, for the retention engine's physical
// purge step.
func (c *Catalog) ListTombstonedBefore(ctx context.Context, cutoff int64) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.QueryContext(ctx, `
		SELECT inode_hint FROM files WHERE status != 'active' AND updated_ts < ?
	`, cutoff)
	if err != nil {
		return nil, wrapCatalogErr("list tombstoned files", err)
	}
	defer rows.Close()

	var uids []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, wrapCatalogErr("scan tombstoned file", err)
		}
		uids = append(uids, uid)
	}
	return uids, wrapCatalogErr("iterate tombstoned files", rows.Err())
}

// PurgeFile physically removes a files row. Only the retention engine
// calls this, and only after the tombstone window has elapsed.
func (c *Catalog) PurgeFile(ctx context.Context, fileUID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx, `DELETE FROM files WHERE inode_hint = ?`, fileUID)
	return wrapCatalogErr("purge file", err)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
