package catalog

import (
	"context"
	"database/sql"
	"errors"
	"math"
)

// Document mirrors one row of the documents table — the secondary-store
// view of a file's extracted content, used by the lexical/semantic
// indices rather than the mirror tree.
type Document struct {
	FileID           string
	Extractor        sql.NullString
	ExtractorVersion sql.NullString
	Lang             sql.NullString
	PageCount        sql.NullInt64
	ContentTxt       []byte
	UpdatedTS        int64
}

// UpsertDocument writes or replaces the documents row for d.FileID.
func (c *Catalog) UpsertDocument(ctx context.Context, d Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO documents (file_id, extractor, extractor_version, lang, page_count, content_txt, updated_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_id) DO UPDATE SET
			extractor = excluded.extractor,
			extractor_version = excluded.extractor_version,
			lang = excluded.lang,
			page_count = excluded.page_count,
			content_txt = excluded.content_txt,
			updated_ts = excluded.updated_ts
	`, d.FileID, d.Extractor, d.ExtractorVersion, d.Lang, d.PageCount, d.ContentTxt, d.UpdatedTS)
	return wrapCatalogErr("upsert document", err)
}

// DeleteDocument removes the documents row for fileID and every chunk
// and embedding that references it.
func (c *Catalog) DeleteDocument(ctx context.Context, fileID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapCatalogErr("begin delete document", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM embeddings WHERE chunk_id IN (SELECT chunk_id FROM chunks WHERE file_id = ?)
	`, fileID); err != nil {
		return wrapCatalogErr("delete embeddings for document", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID); err != nil {
		return wrapCatalogErr("delete chunks for document", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE file_id = ?`, fileID); err != nil {
		return wrapCatalogErr("delete document", err)
	}
	return wrapCatalogErr("commit delete document", tx.Commit())
}

// Chunk mirrors one row of the chunks table.
type Chunk struct {
	FileID     string
	ChunkID    string
	StartByte  int
	EndByte    int
	PageFrom   int
	PageTo     int
	TokenCount int
	Text       string
}

// ReplaceChunks atomically deletes every existing chunks row for fileID
// and inserts the given set, mirroring the mirror builder's
// rewrite-whole-doc semantics on the secondary store.
func (c *Catalog) ReplaceChunks(ctx context.Context, fileID string, chunks []Chunk) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapCatalogErr("begin replace chunks", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM embeddings WHERE chunk_id IN (SELECT chunk_id FROM chunks WHERE file_id = ?)
	`, fileID); err != nil {
		return wrapCatalogErr("delete old embeddings", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID); err != nil {
		return wrapCatalogErr("delete old chunks", err)
	}
	for _, ch := range chunks {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (file_id, chunk_id, start_byte, end_byte, page_from, page_to, token_count, text)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, ch.FileID, ch.ChunkID, ch.StartByte, ch.EndByte, ch.PageFrom, ch.PageTo, ch.TokenCount, ch.Text); err != nil {
			return wrapCatalogErr("insert chunk", err)
		}
	}
	return wrapCatalogErr("commit replace chunks", tx.Commit())
}

// GetChunk returns the chunks row for chunkID, or (nil, nil) if absent.
func (c *Catalog) GetChunk(ctx context.Context, chunkID string) (*Chunk, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	row := c.db.QueryRowContext(ctx, `
		SELECT file_id, chunk_id, start_byte, end_byte, page_from, page_to, token_count, text
		FROM chunks WHERE chunk_id = ?
	`, chunkID)
	var ch Chunk
	if err := row.Scan(&ch.FileID, &ch.ChunkID, &ch.StartByte, &ch.EndByte, &ch.PageFrom, &ch.PageTo, &ch.TokenCount, &ch.Text); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapCatalogErr("scan chunk", err)
	}
	return &ch, nil
}

// ListChunksByIDs returns chunks for the given chunk_ids, in no
// particular order; callers re-sort by their own ranking.
func (c *Catalog) ListChunksByIDs(ctx context.Context, chunkIDs []string) ([]Chunk, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	placeholders := make([]byte, 0, len(chunkIDs)*2)
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = id
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT file_id, chunk_id, start_byte, end_byte, page_from, page_to, token_count, text
		FROM chunks WHERE chunk_id IN (`+string(placeholders)+`)
	`, args...)
	if err != nil {
		return nil, wrapCatalogErr("list chunks by ids", err)
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		var ch Chunk
		if err := rows.Scan(&ch.FileID, &ch.ChunkID, &ch.StartByte, &ch.EndByte, &ch.PageFrom, &ch.PageTo, &ch.TokenCount, &ch.Text); err != nil {
			return nil, wrapCatalogErr("scan chunk", err)
		}
		out = append(out, ch)
	}
	return out, wrapCatalogErr("iterate chunks by ids", rows.Err())
}

// Embedding mirrors one row of the embeddings table.
type Embedding struct {
	ChunkID string
	ModelID string
	Dim     int
	Vec     []float32
}

// UpsertEmbedding writes or replaces the embeddings row keyed by
// (chunk_id, model_id).
func (c *Catalog) UpsertEmbedding(ctx context.Context, chunkID, modelID string, vec []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO embeddings (chunk_id, model_id, dim, vec)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chunk_id, model_id) DO UPDATE SET dim = excluded.dim, vec = excluded.vec
	`, chunkID, modelID, len(vec), encodeVec(vec))
	return wrapCatalogErr("upsert embedding", err)
}

// GetEmbedding returns the embeddings row for (chunkID, modelID), or
// (nil, nil) if absent.
func (c *Catalog) GetEmbedding(ctx context.Context, chunkID, modelID string) (*Embedding, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	row := c.db.QueryRowContext(ctx, `
		SELECT chunk_id, model_id, dim, vec FROM embeddings WHERE chunk_id = ? AND model_id = ?
	`, chunkID, modelID)
	var e Embedding
	var raw []byte
	if err := row.Scan(&e.ChunkID, &e.ModelID, &e.Dim, &raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapCatalogErr("scan embedding", err)
	}
	e.Vec = decodeVec(raw)
	return &e, nil
}

// ListEmbeddingsForModel returns every embedding row for modelID, used
// to rebuild the HNSW vector index at startup.
func (c *Catalog) ListEmbeddingsForModel(ctx context.Context, modelID string) ([]Embedding, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.QueryContext(ctx, `
		SELECT chunk_id, model_id, dim, vec FROM embeddings WHERE model_id = ?
	`, modelID)
	if err != nil {
		return nil, wrapCatalogErr("list embeddings for model", err)
	}
	defer rows.Close()

	var out []Embedding
	for rows.Next() {
		var e Embedding
		var raw []byte
		if err := rows.Scan(&e.ChunkID, &e.ModelID, &e.Dim, &raw); err != nil {
			return nil, wrapCatalogErr("scan embedding", err)
		}
		e.Vec = decodeVec(raw)
		out = append(out, e)
	}
	return out, wrapCatalogErr("iterate embeddings for model", rows.Err())
}

// ListChunksByIDsWithFiles is ListChunksByIDs joined with each chunk's
// owning file, for callers (semantic/hybrid search) that need the
// file's realpath alongside the chunk.
func (c *Catalog) ListChunksByIDsWithFiles(ctx context.Context, chunkIDs []string) ([]ChunkWithFile, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	placeholders := make([]byte, 0, len(chunkIDs)*2)
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = id
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT c.file_id, c.chunk_id, c.start_byte, c.end_byte, c.page_from, c.page_to, c.token_count, c.text,
		       f.realpath
		FROM chunks c JOIN files f ON f.inode_hint = c.file_id
		WHERE c.chunk_id IN (`+string(placeholders)+`)
	`, args...)
	if err != nil {
		return nil, wrapCatalogErr("list chunks by ids with files", err)
	}
	defer rows.Close()

	var out []ChunkWithFile
	for rows.Next() {
		var ch ChunkWithFile
		if err := rows.Scan(&ch.FileID, &ch.ChunkID, &ch.StartByte, &ch.EndByte, &ch.PageFrom, &ch.PageTo, &ch.TokenCount, &ch.Text,
			&ch.Realpath); err != nil {
			return nil, wrapCatalogErr("scan chunk with file", err)
		}
		out = append(out, ch)
	}
	return out, wrapCatalogErr("iterate chunks by ids with files", rows.Err())
}

// DocumentWithFile pairs a documents row with the files columns
// SearchService needs to build a lexical document (path, mtime, size)
// without a second round trip.
type DocumentWithFile struct {
	Document
	Realpath string
	MtimeNS  int64
	Size     int64
}

// ListActiveDocuments returns every documents row whose file is active,
// joined with the owning files row. Used by SearchService's reindex to
// rebuild the doc-granularity lexical index from scratch.
func (c *Catalog) ListActiveDocuments(ctx context.Context) ([]DocumentWithFile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.QueryContext(ctx, `
		SELECT d.file_id, d.extractor, d.extractor_version, d.lang, d.page_count, d.content_txt, d.updated_ts,
		       f.realpath, f.mtime_ns, f.size
		FROM documents d JOIN files f ON f.inode_hint = d.file_id
		WHERE f.status = 'active'
	`)
	if err != nil {
		return nil, wrapCatalogErr("list active documents", err)
	}
	defer rows.Close()

	var out []DocumentWithFile
	for rows.Next() {
		var d DocumentWithFile
		if err := rows.Scan(&d.FileID, &d.Extractor, &d.ExtractorVersion, &d.Lang, &d.PageCount, &d.ContentTxt, &d.UpdatedTS,
			&d.Realpath, &d.MtimeNS, &d.Size); err != nil {
			return nil, wrapCatalogErr("scan active document", err)
		}
		out = append(out, d)
	}
	return out, wrapCatalogErr("iterate active documents", rows.Err())
}

// ChunkWithFile pairs a chunks row with its owning file's realpath.
type ChunkWithFile struct {
	Chunk
	Realpath string
}

// ListActiveChunks returns every chunks row whose file is active, joined
// with the owning files row. Used by SearchService's reindex to rebuild
// the chunk-granularity lexical index from scratch.
func (c *Catalog) ListActiveChunks(ctx context.Context) ([]ChunkWithFile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.QueryContext(ctx, `
		SELECT c.file_id, c.chunk_id, c.start_byte, c.end_byte, c.page_from, c.page_to, c.token_count, c.text,
		       f.realpath
		FROM chunks c JOIN files f ON f.inode_hint = c.file_id
		WHERE f.status = 'active'
	`)
	if err != nil {
		return nil, wrapCatalogErr("list active chunks", err)
	}
	defer rows.Close()

	var out []ChunkWithFile
	for rows.Next() {
		var ch ChunkWithFile
		if err := rows.Scan(&ch.FileID, &ch.ChunkID, &ch.StartByte, &ch.EndByte, &ch.PageFrom, &ch.PageTo, &ch.TokenCount, &ch.Text,
			&ch.Realpath); err != nil {
			return nil, wrapCatalogErr("scan active chunk", err)
		}
		out = append(out, ch)
	}
	return out, wrapCatalogErr("iterate active chunks", rows.Err())
}

// ListActiveEmbeddingsForModel returns every embedding row for modelID
// whose owning chunk belongs to an active file — the set semantic
// search draws dot products against, and what RebuildVectorIndex loads
// at startup.
func (c *Catalog) ListActiveEmbeddingsForModel(ctx context.Context, modelID string) ([]Embedding, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.QueryContext(ctx, `
		SELECT e.chunk_id, e.model_id, e.dim, e.vec
		FROM embeddings e
		JOIN chunks c ON c.chunk_id = e.chunk_id
		JOIN files f ON f.inode_hint = c.file_id
		WHERE e.model_id = ? AND f.status = 'active'
	`, modelID)
	if err != nil {
		return nil, wrapCatalogErr("list active embeddings for model", err)
	}
	defer rows.Close()

	var out []Embedding
	for rows.Next() {
		var e Embedding
		var raw []byte
		if err := rows.Scan(&e.ChunkID, &e.ModelID, &e.Dim, &raw); err != nil {
			return nil, wrapCatalogErr("scan active embedding", err)
		}
		e.Vec = decodeVec(raw)
		out = append(out, e)
	}
	return out, wrapCatalogErr("iterate active embeddings for model", rows.Err())
}

func encodeVec(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		bits := math.Float32bits(v)
		buf[i*4] = byte(bits)
		buf[i*4+1] = byte(bits >> 8)
		buf[i*4+2] = byte(bits >> 16)
		buf[i*4+3] = byte(bits >> 24)
	}
	return buf
}

func decodeVec(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		bits := uint32(buf[i*4]) | uint32(buf[i*4+1])<<8 | uint32(buf[i*4+2])<<16 | uint32(buf[i*4+3])<<24
		vec[i] = math.Float32frombits(bits)
	}
	return vec
}
