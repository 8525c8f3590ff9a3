package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// SQLiteLexicalIndex implements LexicalIndex using an FTS5 virtual table
// that lives inside the shared catalog database rather than a standalone
// file — findx has exactly one writer connection (internal/catalog), and
// a second sqlite file would just be a second thing to keep in sync with
// it.
type SQLiteLexicalIndex struct {
	mu     sync.RWMutex
	db     *sql.DB
	table  string
	config LexicalConfig
	closed bool
}

var _ LexicalIndex = (*SQLiteLexicalIndex)(nil)

// NewSQLiteLexicalIndex creates (if needed) an FTS5 virtual table named
// tableName on db and returns a LexicalIndex backed by it. Callers create
// one instance per granularity ("lexical_docs", "lexical_chunks") against
// the same catalog *sql.DB.
func NewSQLiteLexicalIndex(db *sql.DB, tableName string, config LexicalConfig) (*SQLiteLexicalIndex, error) {
	if config.MaxTokenLength <= 0 {
		config = DefaultLexicalConfig()
	}

	idx := &SQLiteLexicalIndex{
		db:     db,
		table:  tableName,
		config: config,
	}

	if err := idx.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize lexical index %s: %w", tableName, err)
	}

	return idx, nil
}

func (s *SQLiteLexicalIndex) initSchema() error {
	// body_en/body_fr are the two indexed, equally-boosted fields; fields
	// carries the caller's stored metadata (path, file_id, mtime_ns, ...)
	// as a JSON blob, excluded from scoring as an UNINDEXED column.
	schema := fmt.Sprintf(`
	CREATE VIRTUAL TABLE IF NOT EXISTS %s USING fts5(
		doc_id UNINDEXED,
		body_en,
		body_fr,
		fields UNINDEXED,
		tokenize='unicode61'
	);
	`, s.table)
	_, err := s.db.Exec(schema)
	return err
}

// Index adds or replaces documents. FTS5 virtual tables don't support
// REPLACE, so each document is deleted then re-inserted.
func (s *SQLiteLexicalIndex) Index(ctx context.Context, docs []LexicalDoc) error {
	if len(docs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("lexical index is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	deleteStmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE doc_id = ?`, s.table))
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}
	defer deleteStmt.Close()

	insertStmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s(doc_id, body_en, body_fr, fields) VALUES (?, ?, ?, ?)`, s.table))
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer insertStmt.Close()

	for _, doc := range docs {
		fieldsJSON, err := json.Marshal(doc.Fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields for %s: %w", doc.ID, err)
		}

		if _, err := deleteStmt.ExecContext(ctx, doc.ID); err != nil {
			return fmt.Errorf("failed to delete existing document %s: %w", doc.ID, err)
		}

		bodyEN := dropLongTokens(doc.BodyEN, s.config.MaxTokenLength)
		bodyFR := dropLongTokens(doc.BodyFR, s.config.MaxTokenLength)
		if _, err := insertStmt.ExecContext(ctx, doc.ID, bodyEN, bodyFR, string(fieldsJSON)); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
	}

	return tx.Commit()
}

// Search matches query against body_en OR body_fr with equal boost
// (FTS5's default bm25 weighting across indexed columns, since fields is
// UNINDEXED and excluded from scoring).
func (s *SQLiteLexicalIndex) Search(ctx context.Context, queryStr string, limit int) ([]LexicalResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}

	if strings.TrimSpace(queryStr) == "" {
		return []LexicalResult{}, nil
	}

	processedQuery := dropLongTokens(queryStr, s.config.MaxTokenLength)
	if strings.TrimSpace(processedQuery) == "" {
		return []LexicalResult{}, nil
	}

	// bm25() returns negative values where lower = better match; equal
	// weight 1.0 for both indexed columns gives body_en/body_fr equal boost.
	query := fmt.Sprintf(`
		SELECT doc_id, fields, bm25(%s, 1.0, 1.0) as score
		FROM %s
		WHERE %s MATCH ?
		ORDER BY score
		LIMIT ?
	`, s.table, s.table, s.table)

	rows, err := s.db.QueryContext(ctx, query, processedQuery, limit)
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return []LexicalResult{}, nil
		}
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}
	defer rows.Close()

	var results []LexicalResult
	for rows.Next() {
		var docID, fieldsJSON string
		var score float64
		if err := rows.Scan(&docID, &fieldsJSON, &score); err != nil {
			return nil, fmt.Errorf("failed to scan lexical result: %w", err)
		}

		var fields map[string]string
		if fieldsJSON != "" {
			if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields for %s: %w", docID, err)
			}
		}

		results = append(results, LexicalResult{
			ID:     docID,
			Score:  -score, // negate: higher positive = better match
			Fields: fields,
		})
	}

	return results, rows.Err()
}

// Delete removes documents from the index.
func (s *SQLiteLexicalIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("lexical index is closed")
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE doc_id IN (%s)`, s.table, strings.Join(placeholders, ","))
	_, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// AllIDs returns all document IDs in the index.
func (s *SQLiteLexicalIndex) AllIDs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}

	rows, err := s.db.Query(fmt.Sprintf(`SELECT doc_id FROM %s ORDER BY doc_id`, s.table))
	if err != nil {
		return nil, fmt.Errorf("failed to query IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Stats returns index statistics.
func (s *SQLiteLexicalIndex) Stats() *IndexStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return &IndexStats{}
	}

	var count int
	if err := s.db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)).Scan(&count); err != nil {
		return &IndexStats{}
	}
	return &IndexStats{DocumentCount: count}
}

// Close marks the index closed. The underlying *sql.DB is owned by the
// catalog, not this index, so it is never closed here.
func (s *SQLiteLexicalIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
