// Package catalog implements findx's embedded relational store: the
// files/extract_jobs/mirror_docs/mirror_chunks bookkeeping tables, the
// secondary documents/chunks/embeddings tables used for search, and the
// append-only events/ops_log audit trail.
package catalog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO

	findxerrors "github.com/gaspardpetit/findx/internal/errors"
)

// Catalog wraps a single-writer SQLite connection in WAL mode.
type Catalog struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	closed bool
}

// Open creates (if needed) and opens the catalog database at path,
// enabling WAL mode and a busy timeout so concurrent readers never
// collide with findx's single writer.
func Open(path string) (*Catalog, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, findxerrors.NewCatalogError("failed to create catalog directory", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, findxerrors.NewCatalogError("failed to open catalog", err)
	}

	// Single writer: SQLite serializes writes at the file level anyway;
	// capping the pool to one connection avoids SQLITE_BUSY under our
	// own load rather than fighting it with retries.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, findxerrors.NewCatalogError("failed to set pragma: "+p, err)
		}
	}

	c := &Catalog{db: db, path: path}
	if err := c.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

// Close flushes and closes the underlying database handle.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_, _ = c.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return c.db.Close()
}

// DB exposes the underlying handle for components (lexical index setup,
// reconciler scans) that need direct read access alongside the typed
// accessors in this package.
func (c *Catalog) DB() *sql.DB { return c.db }

const schemaDDL = `
CREATE TABLE IF NOT EXISTS files (
  id INTEGER PRIMARY KEY,
  inode_hint TEXT UNIQUE NOT NULL,
  realpath TEXT UNIQUE NOT NULL,
  size INTEGER NOT NULL,
  mtime_ns INTEGER NOT NULL,
  fast_sig TEXT NOT NULL,
  is_offline INTEGER NOT NULL DEFAULT 0,
  attrs INTEGER NOT NULL DEFAULT 0,
  hash TEXT,
  status TEXT NOT NULL DEFAULT 'active',
  created_ts INTEGER NOT NULL,
  updated_ts INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS extract_jobs (
  id INTEGER PRIMARY KEY,
  file_uid TEXT NOT NULL,
  content_hash TEXT NOT NULL,
  status TEXT NOT NULL,
  attempt INTEGER NOT NULL DEFAULT 1,
  started_ts INTEGER NOT NULL,
  finished_ts INTEGER,
  error TEXT,
  UNIQUE(file_uid, content_hash)
);
CREATE INDEX IF NOT EXISTS idx_extract_jobs_file_uid ON extract_jobs(file_uid);
CREATE INDEX IF NOT EXISTS idx_extract_jobs_status ON extract_jobs(status);

CREATE TABLE IF NOT EXISTS mirror_docs (
  file_uid TEXT PRIMARY KEY,
  content_hash TEXT NOT NULL,
  path TEXT NOT NULL,
  updated_ts INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS mirror_chunks (
  chunk_id TEXT PRIMARY KEY,
  file_uid TEXT NOT NULL,
  ord INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mirror_chunks_file_uid ON mirror_chunks(file_uid);

CREATE TABLE IF NOT EXISTS documents (
  file_id TEXT PRIMARY KEY,
  extractor TEXT,
  extractor_version TEXT,
  lang TEXT,
  page_count INTEGER,
  content_txt BLOB,
  updated_ts INTEGER
);

CREATE TABLE IF NOT EXISTS chunks (
  file_id TEXT NOT NULL,
  chunk_id TEXT PRIMARY KEY,
  start_byte INTEGER,
  end_byte INTEGER,
  page_from INTEGER,
  page_to INTEGER,
  token_count INTEGER,
  text BLOB
);
CREATE INDEX IF NOT EXISTS idx_chunks_file_id ON chunks(file_id);

CREATE TABLE IF NOT EXISTS embeddings (
  chunk_id TEXT NOT NULL,
  model_id TEXT NOT NULL,
  dim INTEGER NOT NULL,
  vec BLOB NOT NULL,
  PRIMARY KEY(chunk_id, model_id)
);

CREATE TABLE IF NOT EXISTS events (
  id INTEGER PRIMARY KEY,
  ts INTEGER NOT NULL,
  topic TEXT NOT NULL,
  type TEXT NOT NULL,
  idempotency_key TEXT NOT NULL,
  payload BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts);

CREATE TABLE IF NOT EXISTS ops_log (
  ts INTEGER NOT NULL,
  kind TEXT NOT NULL,
  path_from TEXT,
  path_to TEXT,
  file_uid TEXT
);
CREATE INDEX IF NOT EXISTS idx_ops_log_ts ON ops_log(ts);
`

func (c *Catalog) migrate() error {
	if _, err := c.db.Exec(schemaDDL); err != nil {
		return findxerrors.NewCatalogError("failed to apply catalog schema", err)
	}
	return nil
}

func wrapCatalogErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return findxerrors.NewCatalogError(fmt.Sprintf("catalog: %s", op), err)
}
