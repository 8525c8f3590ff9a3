package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gaspardpetit/findx/internal/bus"
	"github.com/gaspardpetit/findx/internal/catalog"
	"github.com/gaspardpetit/findx/internal/config"
	"github.com/gaspardpetit/findx/internal/embed"
	"github.com/gaspardpetit/findx/internal/events"
	"github.com/gaspardpetit/findx/internal/extract"
	"github.com/gaspardpetit/findx/internal/fsscan"
	"github.com/gaspardpetit/findx/internal/lock"
	"github.com/gaspardpetit/findx/internal/metadata"
	"github.com/gaspardpetit/findx/internal/mirror"
	"github.com/gaspardpetit/findx/internal/reconcile"
	"github.com/gaspardpetit/findx/internal/retention"
	"github.com/gaspardpetit/findx/internal/search"
	"github.com/gaspardpetit/findx/internal/store"
)

// app bundles every long-lived collaborator a command needs, built once
// from a loaded config and torn down with Close. Every subcommand builds
// one of these rather than constructing its own catalog/bus/embedder, so
// "index", "watch", "oneshot" and "query" all see the same wiring.
type app struct {
	cfg config.Config
	cat *catalog.Catalog
	bus *bus.EventBus

	embedder embed.Embedder
	search   *search.SearchService

	metadata  *metadata.Service
	extract   *extract.Pool
	mirror    *mirror.Builder
	reconcile *reconcile.Reconciler
	retention *retention.Engine

	lock    *lock.IndexLock
	scanCfg fsscan.Config
}

func wallClockUnix() int64     { return time.Now().Unix() }
func wallClockTime() time.Time { return time.Now() }

func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	if len(cfg.Roots) == 0 {
		return nil, fmt.Errorf("config: at least one root is required")
	}

	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}
	if err := os.MkdirAll(cfg.Mirror.Root, 0o755); err != nil {
		return nil, fmt.Errorf("creating mirror root: %w", err)
	}

	cat, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}

	b := bus.New(bus.Config{SourceFS: cfg.Bus.SourceFS, MirrorText: cfg.Bus.MirrorText}, cat)

	embedder, err := embed.New(ctx, cfg.Embedding)
	if err != nil {
		cat.Close()
		return nil, fmt.Errorf("building embedder: %w", err)
	}

	lexDocs, err := store.NewLexicalIndex(cfg.Lexical.Backend, cat.DB(), cfg.Lexical.Dir, "docs", store.DefaultLexicalConfig())
	if err != nil {
		cat.Close()
		return nil, fmt.Errorf("building doc lexical index: %w", err)
	}
	lexChunks, err := store.NewLexicalIndex(cfg.Lexical.Backend, cat.DB(), cfg.Lexical.Dir, "chunks", store.DefaultLexicalConfig())
	if err != nil {
		cat.Close()
		return nil, fmt.Errorf("building chunk lexical index: %w", err)
	}

	var vec store.VectorStore
	if embedder != nil {
		vec, err = store.NewHNSWStore(store.DefaultVectorStoreConfig(embedder.Dimensions()))
		if err != nil {
			cat.Close()
			return nil, fmt.Errorf("building vector store: %w", err)
		}
	}

	svc := search.NewSearchService(cat, lexDocs, lexChunks, vec, embedder)
	if err := svc.RebuildVectorIndex(ctx); err != nil {
		cat.Close()
		return nil, fmt.Errorf("rebuilding vector index: %w", err)
	}

	scanCfg := fsscan.Config{
		Roots:          cfg.Roots,
		MirrorRoot:     cfg.Mirror.Root,
		IncludeGlobs:   cfg.Scan.IncludeGlobs,
		ExcludeGlobs:   cfg.Scan.ExcludeGlobs,
		MaxFileSizeMB:  cfg.Scan.MaxFileSizeMB,
		FollowSymlinks: cfg.Scan.FollowSymlinks,
		HiddenFiles:    cfg.Scan.HiddenFiles,
	}

	a := &app{
		cfg:      cfg,
		cat:      cat,
		bus:      b,
		embedder: embedder,
		search:   svc,
		metadata: metadata.New(cat, b, cfg.Scan.AllowOfflineHydration, wallClockUnix),
		extract: extract.New(cat, b, extract.Config{
			PoolSize:     cfg.Extract.PoolSize,
			JobsBound:    cfg.Extract.JobsBound,
			ExtractorCmd: cfg.Extract.ExtractorCmd,
		}, wallClockUnix),
		mirror:    mirror.New(cat, b, cfg.Roots, cfg.Mirror.Root, wallClockTime, cfg.Chunking.CodeAware),
		reconcile: reconcile.New(cat, b, cfg.Roots, cfg.Mirror.Root),
		retention: retention.New(cat, cfg.Retention, wallClockUnix),
		lock:      lock.New(cfg.StateDir),
		scanCfg:   scanCfg,
	}
	return a, nil
}

// scanOnce runs a single filesystem scan with a fresh scanner. Its previous
// state is empty, so every kept file is reported as added; the catalog is
// not consulted. The bool is false only when the scan keeps no file.
func (a *app) scanOnce(ctx context.Context) (events.SyncDelta, bool, error) {
	scanner := fsscan.New(a.scanCfg)
	return scanner.Scan(ctx)
}

// publishDelta pushes a scan delta onto the source-fs topic so metadata,
// extract, and mirror pick it up.
func (a *app) publishDelta(ctx context.Context, delta events.SyncDelta) error {
	return a.bus.Publish(ctx, events.TopicSourceFS, delta)
}

func (a *app) Close() error {
	var firstErr error
	if err := a.search.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.cat.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
