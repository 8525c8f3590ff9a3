// Package extract runs a bounded worker pool that turns ExtractionRequested
// events into extracted text, deduplicated per (file_uid, content_hash).
package extract

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/gaspardpetit/findx/internal/bus"
	"github.com/gaspardpetit/findx/internal/catalog"
	"github.com/gaspardpetit/findx/internal/events"
	"github.com/gaspardpetit/findx/internal/hashing"
)

// builtinExtensions are read in-process instead of shelled out to the
// configured extractor command.
var builtinExtensions = map[string]bool{
	"txt": true, "md": true, "rs": true, "toml": true,
	"json": true, "cpp": true, "c": true, "h": true, "hpp": true,
}

// Clock returns the current unix-second timestamp. Tests substitute a
// fixed clock.
type Clock func() int64

// Config bounds the pool and names the external extractor command used
// for non-builtin file types.
type Config struct {
	PoolSize     int
	JobsBound    int
	ExtractorCmd string
}

// Pool drains a bounded job queue of file_uids with cfg.PoolSize workers.
// Workers share a single *catalog.Catalog — its connection pool is already
// pinned to one open connection and serialized behind its own mutex, which
// gives the same single-writer guarantee a dedicated handle per worker
// would, without the WAL contention multiple sqlite handles would add.
type Pool struct {
	cat  *catalog.Catalog
	b    *bus.EventBus
	cfg  Config
	jobs chan string
	now  Clock
}

// New creates an extraction Pool.
func New(cat *catalog.Catalog, b *bus.EventBus, cfg Config, now Clock) *Pool {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 1
	}
	if cfg.JobsBound <= 0 {
		cfg.JobsBound = 1
	}
	return &Pool{cat: cat, b: b, cfg: cfg, jobs: make(chan string, cfg.JobsBound), now: now}
}

// Run subscribes to source.fs, feeds ExtractionRequested file_uids to the
// job queue, and blocks until ctx is cancelled. In-flight jobs are allowed
// to finish before Run returns.
func (p *Pool) Run(ctx context.Context) error {
	sub := p.b.Subscribe(events.TopicSourceFS)

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.PoolSize; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx)
		}()
	}
	defer func() {
		close(p.jobs)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-sub:
			if !ok {
				return nil
			}
			req, isReq := env.Data.(events.ExtractionRequested)
			if !isReq {
				continue
			}
			select {
			case p.jobs <- req.FileUID:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (p *Pool) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fileUID, ok := <-p.jobs:
			if !ok {
				return
			}
			if err := p.processJob(ctx, fileUID); err != nil {
				_ = err // job-level failures are reported via ExtractionFailed, not returned
			}
		}
	}
}

func (p *Pool) processJob(ctx context.Context, fileUID string) error {
	f, err := p.cat.GetFileByUID(ctx, fileUID)
	if err != nil {
		return err
	}
	if f == nil {
		return p.fail(ctx, fileUID, "", "not found")
	}

	file, err := os.Open(f.Realpath)
	if err != nil {
		return p.fail(ctx, fileUID, "", err.Error())
	}
	sum, err := hashing.ContentHash(file)
	closeErr := file.Close()
	if err != nil {
		return p.fail(ctx, fileUID, "", err.Error())
	}
	if closeErr != nil {
		return p.fail(ctx, fileUID, "", closeErr.Error())
	}
	contentHash := fmt.Sprintf("%016x", sum)

	inserted, err := p.cat.InsertRunningJob(ctx, fileUID, contentHash, p.now())
	if err != nil {
		return err
	}
	if !inserted {
		return nil // another worker already owns this pair, or it is already done
	}

	pages, extractor, extractorVersion, extractErr := p.extractPages(ctx, f.Realpath)
	if extractErr != nil {
		return p.fail(ctx, fileUID, contentHash, extractErr.Error())
	}

	now := p.now()
	if err := p.cat.MarkJobDone(ctx, fileUID, contentHash, now); err != nil {
		return err
	}
	if err := p.cat.SetHash(ctx, fileUID, contentHash, now); err != nil {
		return err
	}
	return p.b.Publish(ctx, events.TopicSourceFS, events.ExtractionCompleted{
		FileUID:          fileUID,
		ContentHash:      sum,
		Extractor:        extractor,
		ExtractorVersion: extractorVersion,
		Pages:            pages,
	})
}

func (p *Pool) fail(ctx context.Context, fileUID, contentHash, errMsg string) error {
	if err := p.cat.MarkJobFailed(ctx, fileUID, contentHash, errMsg, p.now()); err != nil {
		return err
	}
	return p.b.Publish(ctx, events.TopicSourceFS, events.ExtractionFailed{FileUID: fileUID, Error: errMsg})
}

// extractPages reads plain-text extensions in-process; everything else is
// shelled out to the configured extractor command with the file path
// appended as the last argument.
func (p *Pool) extractPages(ctx context.Context, path string) ([]events.PageBlock, string, string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))

	if builtinExtensions[ext] {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", "", err
		}
		return splitPages(string(data)), "builtin", "", nil
	}

	if p.cfg.ExtractorCmd == "" {
		return nil, "", "", fmt.Errorf("extract: no extractor configured for %s", path)
	}
	fields := strings.Fields(p.cfg.ExtractorCmd)
	args := append(append([]string{}, fields[1:]...), path)
	out, err := exec.CommandContext(ctx, fields[0], args...).Output()
	if err != nil {
		return nil, "", "", err
	}
	return splitPages(string(out)), fields[0], "", nil
}

// splitPages splits text on form-feed into pages, measuring start/end in
// Unicode scalar count. The next page's start is prev end + 1, to account
// for the consumed delimiter.
func splitPages(text string) []events.PageBlock {
	parts := strings.Split(text, "\x0c")
	pages := make([]events.PageBlock, 0, len(parts))
	start := 0
	for i, part := range parts {
		end := start + utf8.RuneCountInString(part)
		pages = append(pages, events.PageBlock{PageNo: i + 1, Text: part, Start: start, End: end})
		start = end + 1
	}
	return pages
}
