package catalog

import (
	"context"
	"database/sql"

	"github.com/gaspardpetit/findx/internal/events"
)

// AppendOpsLog writes one row to the append-only, human-readable
// ops_log trail. pathFrom/pathTo are empty unless kind requires them
// (mv uses both, add/mod/del use pathFrom only).
func (c *Catalog) AppendOpsLog(ctx context.Context, kind events.OpsLogKind, pathFrom, pathTo, fileUID string, ts int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO ops_log (ts, kind, path_from, path_to, file_uid) VALUES (?, ?, ?, ?, ?)
	`, ts, string(kind), nullIfEmpty(pathFrom), nullIfEmpty(pathTo), fileUID)
	return wrapCatalogErr("append ops log", err)
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// OpsLogEntry mirrors one row of the ops_log table.
type OpsLogEntry struct {
	TS       int64
	Kind     events.OpsLogKind
	PathFrom sql.NullString
	PathTo   sql.NullString
	FileUID  string
}

// ListOpsLog returns every ops_log row ordered by ts, for tests and
// inspection tooling.
func (c *Catalog) ListOpsLog(ctx context.Context) ([]OpsLogEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.QueryContext(ctx, `
		SELECT ts, kind, path_from, path_to, file_uid FROM ops_log ORDER BY ts
	`)
	if err != nil {
		return nil, wrapCatalogErr("list ops log", err)
	}
	defer rows.Close()

	var out []OpsLogEntry
	for rows.Next() {
		var e OpsLogEntry
		var kind string
		if err := rows.Scan(&e.TS, &kind, &e.PathFrom, &e.PathTo, &e.FileUID); err != nil {
			return nil, wrapCatalogErr("scan ops log entry", err)
		}
		e.Kind = events.OpsLogKind(kind)
		out = append(out, e)
	}
	return out, wrapCatalogErr("iterate ops log", rows.Err())
}
