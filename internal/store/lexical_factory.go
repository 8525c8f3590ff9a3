package store

import (
	"database/sql"
	"fmt"
	"path/filepath"
)

// LexicalBackend identifies a LexicalIndex implementation.
type LexicalBackend string

const (
	// LexicalBackendSQLite stores FTS5 virtual tables inside the shared
	// catalog database (default).
	LexicalBackendSQLite LexicalBackend = "sqlite"

	// LexicalBackendBleve stores a standalone bleve index directory.
	LexicalBackendBleve LexicalBackend = "bleve"
)

// NewLexicalIndex creates a LexicalIndex for the given granularity
// ("docs" or "chunks") using backend. For the sqlite backend, db must be
// the shared catalog connection and dir is ignored. For the bleve
// backend, db is ignored and the index lives at dir/<granularity>.bleve.
func NewLexicalIndex(backend string, db *sql.DB, dir, granularity string, config LexicalConfig) (LexicalIndex, error) {
	switch LexicalBackend(backend) {
	case LexicalBackendSQLite, "":
		return NewSQLiteLexicalIndex(db, "lexical_"+granularity, config)

	case LexicalBackendBleve:
		var path string
		if dir != "" {
			path = filepath.Join(dir, granularity+".bleve")
		}
		return NewBleveLexicalIndex(path, config)

	default:
		return nil, fmt.Errorf("unknown lexical backend %q (valid options: sqlite, bleve)", backend)
	}
}
