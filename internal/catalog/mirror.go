package catalog

import (
	"context"
	"database/sql"
	"errors"
)

// MirrorDoc mirrors one row of the mirror_docs table.
type MirrorDoc struct {
	FileUID     string
	ContentHash string
	Path        string
	UpdatedTS   int64
}

// UpsertMirrorDoc records that the mirror builder wrote a new content
// version of file_uid at path.
func (c *Catalog) UpsertMirrorDoc(ctx context.Context, doc MirrorDoc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO mirror_docs (file_uid, content_hash, path, updated_ts)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(file_uid) DO UPDATE SET
			content_hash = excluded.content_hash,
			path = excluded.path,
			updated_ts = excluded.updated_ts
	`, doc.FileUID, doc.ContentHash, doc.Path, doc.UpdatedTS)
	return wrapCatalogErr("upsert mirror doc", err)
}

// DeleteMirrorDoc removes a mirror_docs row (used on rollback and on
// source file deletion).
func (c *Catalog) DeleteMirrorDoc(ctx context.Context, fileUID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx, `DELETE FROM mirror_docs WHERE file_uid = ?`, fileUID)
	return wrapCatalogErr("delete mirror doc", err)
}

// GetMirrorDoc returns the mirror_docs row for file_uid, or (nil, nil)
// if none exists.
func (c *Catalog) GetMirrorDoc(ctx context.Context, fileUID string) (*MirrorDoc, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	row := c.db.QueryRowContext(ctx, `
		SELECT file_uid, content_hash, path, updated_ts FROM mirror_docs WHERE file_uid = ?
	`, fileUID)
	var d MirrorDoc
	if err := row.Scan(&d.FileUID, &d.ContentHash, &d.Path, &d.UpdatedTS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapCatalogErr("scan mirror doc", err)
	}
	return &d, nil
}

// ReplaceMirrorChunks atomically replaces every mirror_chunks row for
// file_uid with chunkIDs, in order. Rewriting a doc always replaces the
// full chunk set, never a partial patch.
func (c *Catalog) ReplaceMirrorChunks(ctx context.Context, fileUID string, chunkIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapCatalogErr("begin replace mirror chunks", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM mirror_chunks WHERE file_uid = ?`, fileUID); err != nil {
		return wrapCatalogErr("delete old mirror chunks", err)
	}
	for i, chunkID := range chunkIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO mirror_chunks (chunk_id, file_uid, ord) VALUES (?, ?, ?)
		`, chunkID, fileUID, i); err != nil {
			return wrapCatalogErr("insert mirror chunk", err)
		}
	}
	return wrapCatalogErr("commit replace mirror chunks", tx.Commit())
}

// DeleteMirrorChunksForFile removes every mirror_chunks row for
// file_uid, used on MirrorDocDeleted and on rollback.
func (c *Catalog) DeleteMirrorChunksForFile(ctx context.Context, fileUID string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.QueryContext(ctx, `SELECT chunk_id FROM mirror_chunks WHERE file_uid = ? ORDER BY ord`, fileUID)
	if err != nil {
		return nil, wrapCatalogErr("list mirror chunks before delete", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, wrapCatalogErr("scan mirror chunk id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, wrapCatalogErr("iterate mirror chunks before delete", err)
	}
	rows.Close()

	if _, err := c.db.ExecContext(ctx, `DELETE FROM mirror_chunks WHERE file_uid = ?`, fileUID); err != nil {
		return nil, wrapCatalogErr("delete mirror chunks", err)
	}
	return ids, nil
}

// ListMirrorChunkIDs returns chunk_ids for file_uid in ord order.
func (c *Catalog) ListMirrorChunkIDs(ctx context.Context, fileUID string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.QueryContext(ctx, `SELECT chunk_id FROM mirror_chunks WHERE file_uid = ? ORDER BY ord`, fileUID)
	if err != nil {
		return nil, wrapCatalogErr("list mirror chunk ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapCatalogErr("scan mirror chunk id", err)
		}
		ids = append(ids, id)
	}
	return ids, wrapCatalogErr("iterate mirror chunk ids", rows.Err())
}

// DeleteOrphanMirrorChunks removes mirror_chunks rows whose file_uid has
// no corresponding mirror_docs row, for the retention engine's orphan
// chunk sweep.
func (c *Catalog) DeleteOrphanMirrorChunks(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx, `
		DELETE FROM mirror_chunks WHERE file_uid NOT IN (SELECT file_uid FROM mirror_docs)
	`)
	if err != nil {
		return 0, wrapCatalogErr("delete orphan mirror chunks", err)
	}
	n, err := res.RowsAffected()
	return n, wrapCatalogErr("rows affected delete orphan mirror chunks", err)
}

// OrphanMirrorFileUIDs returns file_uids present in mirror_docs whose
// source file is absent or not active (offline or deleted), for the
// reconciler's orphan-mirror pass.
func (c *Catalog) OrphanMirrorFileUIDs(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.QueryContext(ctx, `
		SELECT mirror_docs.file_uid FROM mirror_docs
		LEFT JOIN files ON files.inode_hint = mirror_docs.file_uid
		WHERE files.inode_hint IS NULL OR files.status != 'active'
	`)
	if err != nil {
		return nil, wrapCatalogErr("list orphan mirror docs", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, wrapCatalogErr("scan orphan mirror doc", err)
		}
		out = append(out, uid)
	}
	return out, wrapCatalogErr("iterate orphan mirror docs", rows.Err())
}
