// Package mirror materializes each ExtractionCompleted event into a
// crash-safe on-disk mirror (meta.json + chunks.jsonl) and the matching
// mirror_docs/mirror_chunks catalog rows.
package mirror

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gaspardpetit/findx/internal/bus"
	"github.com/gaspardpetit/findx/internal/catalog"
	findxerrors "github.com/gaspardpetit/findx/internal/errors"
	"github.com/gaspardpetit/findx/internal/events"
	"github.com/gaspardpetit/findx/internal/mirrorpath"
)

// Clock returns the current time used for created_ts/updated_ts. Tests
// substitute a fixed clock.
type Clock func() time.Time

// Meta is the schema of meta.json.
type Meta struct {
	V                int    `json:"v"`
	FileUID          string `json:"file_uid"`
	Path             string `json:"path"`
	ContentHash      string `json:"content_hash"`
	Extractor        string `json:"extractor"`
	ExtractorVersion string `json:"extractor_version"`
	PageCount        int    `json:"page_count"`
	Lang             string `json:"lang"`
	CreatedTS        string `json:"created_ts"`
}

// Builder subscribes to source.fs and writes the mirror tree for every
// ExtractionCompleted it observes.
type Builder struct {
	cat        *catalog.Catalog
	b          *bus.EventBus
	roots      []string
	mirrorRoot string
	now        Clock
	codeAware  bool
}

// New creates a Builder. roots are the configured scan roots used to
// relativize a file's realpath into its mirror-tree location. codeAware
// mirrors config.ChunkingConfig.CodeAware: when set, chunk boundaries for
// source files with a registered tree-sitter grammar snap to the nearest
// enclosing declaration instead of a bare token count.
func New(cat *catalog.Catalog, b *bus.EventBus, roots []string, mirrorRoot string, now Clock, codeAware bool) *Builder {
	return &Builder{cat: cat, b: b, roots: roots, mirrorRoot: mirrorRoot, now: now, codeAware: codeAware}
}

// Run consumes source.fs until ctx is cancelled or the subscription
// channel closes.
func (m *Builder) Run(ctx context.Context) error {
	sub := m.b.Subscribe(events.TopicSourceFS)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-sub:
			if !ok {
				return nil
			}
			completed, isCompleted := env.Data.(events.ExtractionCompleted)
			if !isCompleted {
				continue
			}
			if err := m.handleCompleted(ctx, completed); err != nil {
				return err
			}
		}
	}
}

func (m *Builder) handleCompleted(ctx context.Context, ev events.ExtractionCompleted) error {
	f, err := m.cat.GetFileByUID(ctx, ev.FileUID)
	if err != nil {
		return err
	}
	if f == nil {
		return nil // file vanished before the mirror could be built
	}

	rel, ok := mirrorpath.Relativize(f.Realpath, m.roots)
	if !ok {
		return findxerrors.NewMirrorError("mirror: realpath not under any configured root: "+f.Realpath, nil)
	}
	dir := mirrorpath.MirrorDir(m.mirrorRoot, rel)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return findxerrors.NewMirrorError("mirror: creating mirror dir", err)
	}

	if err := m.build(ctx, dir, rel, ev); err != nil {
		if rbErr := m.rollback(ctx, dir, ev.FileUID); rbErr != nil {
			slog.Error("mirror: rollback failed", slog.String("file_uid", ev.FileUID), slog.String("error", rbErr.Error()))
		}
		return err
	}
	return nil
}

func (m *Builder) build(ctx context.Context, dir, rel string, ev events.ExtractionCompleted) error {
	contentHashHex := fmt.Sprintf("%016x", ev.ContentHash)

	meta := Meta{
		V:                1,
		FileUID:          ev.FileUID,
		Path:             rel,
		ContentHash:      contentHashHex,
		Extractor:        ev.Extractor,
		ExtractorVersion: ev.ExtractorVersion,
		PageCount:        len(ev.Pages),
		CreatedTS:        m.now().UTC().Format(time.RFC3339),
	}
	if err := writeJSONAtomic(filepath.Join(dir, "meta.json"), meta); err != nil {
		return findxerrors.NewMirrorError("mirror: writing meta.json", err)
	}

	if err := m.cat.UpsertMirrorDoc(ctx, catalog.MirrorDoc{
		FileUID:     ev.FileUID,
		ContentHash: contentHashHex,
		Path:        rel,
		UpdatedTS:   m.now().Unix(),
	}); err != nil {
		return err
	}
	if _, err := m.cat.DeleteMirrorChunksForFile(ctx, ev.FileUID); err != nil {
		return err
	}

	chunks := chunkPages(ev.Pages, ev.FileUID, contentHashHex, ev.ContentHash, filepath.Ext(rel), m.codeAware)
	if err := writeChunksJSONL(filepath.Join(dir, "chunks.jsonl"), chunks); err != nil {
		return findxerrors.NewMirrorError("mirror: writing chunks.jsonl", err)
	}

	chunkIDs := make([]string, len(chunks))
	for i, c := range chunks {
		chunkIDs[i] = c.ChunkID
	}
	if err := m.cat.ReplaceMirrorChunks(ctx, ev.FileUID, chunkIDs); err != nil {
		return err
	}

	// documents/chunks are the secondary-store projection SearchService
	// indexes from; they're kept alongside the mirror_docs/mirror_chunks
	// bookkeeping rows since this is where the page text and chunk
	// boundaries already live.
	if err := m.cat.UpsertDocument(ctx, catalog.Document{
		FileID:           ev.FileUID,
		Extractor:        nullString(ev.Extractor),
		ExtractorVersion: nullString(ev.ExtractorVersion),
		PageCount:        nullInt64(int64(len(ev.Pages))),
		ContentTxt:       []byte(concatPages(ev.Pages)),
		UpdatedTS:        m.now().Unix(),
	}); err != nil {
		return err
	}

	catalogChunks := make([]catalog.Chunk, len(chunks))
	for i, c := range chunks {
		pageFrom, pageTo := 0, 0
		if len(c.PageSpans) > 0 {
			pageFrom = c.PageSpans[0].Page
			pageTo = c.PageSpans[len(c.PageSpans)-1].Page
		}
		catalogChunks[i] = catalog.Chunk{
			FileID:     ev.FileUID,
			ChunkID:    c.ChunkID,
			StartByte:  c.ByteSpan.Start,
			EndByte:    c.ByteSpan.End,
			PageFrom:   pageFrom,
			PageTo:     pageTo,
			TokenCount: c.TokensEst,
			Text:       c.Text,
		}
	}
	if err := m.cat.ReplaceChunks(ctx, ev.FileUID, catalogChunks); err != nil {
		return err
	}

	for i, c := range chunks {
		if err := m.b.Publish(ctx, events.TopicMirrorText, events.MirrorChunkUpserted{
			ChunkID: c.ChunkID, FileUID: ev.FileUID, Order: i,
		}); err != nil {
			return err
		}
	}

	return m.b.Publish(ctx, events.TopicMirrorText, events.MirrorDocUpserted{
		FileUID: ev.FileUID, ContentHash: ev.ContentHash,
	})
}

// rollback undoes a partial write: removes meta.json, chunks.jsonl, and
// any leftover .tmp files, deletes the mirror_docs/mirror_chunks rows, and
// publishes MirrorDocDeleted so downstream consumers never see a
// half-written doc.
func (m *Builder) rollback(ctx context.Context, dir, fileUID string) error {
	for _, name := range []string{"meta.json", "meta.json.tmp", "chunks.jsonl", "chunks.jsonl.tmp"} {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return findxerrors.NewMirrorError("mirror: rollback removing "+name, err)
		}
	}
	if err := m.cat.DeleteMirrorDoc(ctx, fileUID); err != nil {
		return err
	}
	if _, err := m.cat.DeleteMirrorChunksForFile(ctx, fileUID); err != nil {
		return err
	}
	if err := m.cat.DeleteDocument(ctx, fileUID); err != nil {
		return err
	}
	return m.b.Publish(ctx, events.TopicMirrorText, events.MirrorDocDeleted{FileUID: fileUID})
}

// concatPages joins every page's text in order, separated by a form
// feed, mirroring how the external extractor contract delimits pages
// on the way in.
func concatPages(pages []events.PageBlock) string {
	var b strings.Builder
	for i, p := range pages {
		if i > 0 {
			b.WriteByte('\f')
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: true}
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return writeAtomic(path, data)
}

func writeChunksJSONL(path string, chunks []Chunk) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, c := range chunks {
		line, err := json.Marshal(c)
		if err != nil {
			f.Close()
			os.Remove(tmp)
			return err
		}
		if _, err := w.Write(line); err != nil {
			f.Close()
			os.Remove(tmp)
			return err
		}
		if _, err := w.WriteString("\n"); err != nil {
			f.Close()
			os.Remove(tmp)
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// writeAtomic writes data to a .tmp file, fsyncs it, then renames it into
// place — the same "write, fsync, rename" pattern writeChunksJSONL uses.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
