// Package reconcile repairs drift between the files/mirror_docs catalog
// and the on-disk mirror tree: it requests extraction for active files
// missing mirror artifacts, and deletes mirror artifacts whose source
// file is no longer active.
package reconcile

import (
	"context"
	"os"
	"path/filepath"

	"github.com/gaspardpetit/findx/internal/bus"
	"github.com/gaspardpetit/findx/internal/catalog"
	"github.com/gaspardpetit/findx/internal/events"
	"github.com/gaspardpetit/findx/internal/mirrorpath"
)

// Reconciler runs the two reconciliation passes on demand.
type Reconciler struct {
	cat        *catalog.Catalog
	b          *bus.EventBus
	roots      []string
	mirrorRoot string
}

// New creates a Reconciler. roots are the configured scan roots used to
// relativize a file's realpath into its mirror-tree location.
func New(cat *catalog.Catalog, b *bus.EventBus, roots []string, mirrorRoot string) *Reconciler {
	return &Reconciler{cat: cat, b: b, roots: roots, mirrorRoot: mirrorRoot}
}

// Run executes the missing-mirror pass followed by the orphan-mirror
// pass, in that order.
func (r *Reconciler) Run(ctx context.Context) error {
	if err := r.missingMirrorPass(ctx); err != nil {
		return err
	}
	return r.orphanMirrorPass(ctx)
}

// missingMirrorPass requests extraction for every active file that has
// no mirror_docs row, or whose meta.json or chunks.jsonl is absent from
// disk.
func (r *Reconciler) missingMirrorPass(ctx context.Context) error {
	files, err := r.cat.ListActiveFiles(ctx)
	if err != nil {
		return err
	}

	for _, f := range files {
		if f.Status != catalog.FileStatusActive {
			continue
		}

		doc, err := r.cat.GetMirrorDoc(ctx, f.FileUID)
		if err != nil {
			return err
		}

		missing := doc == nil
		if !missing {
			rel, ok := mirrorpath.Relativize(f.Realpath, r.roots)
			if !ok {
				missing = true
			} else {
				dir := mirrorpath.MirrorDir(r.mirrorRoot, rel)
				if !fileExists(dir, "meta.json") || !fileExists(dir, "chunks.jsonl") {
					missing = true
				}
			}
		}
		if !missing {
			continue
		}

		if err := r.b.Publish(ctx, events.TopicSourceFS, events.ExtractionRequested{FileUID: f.FileUID}); err != nil {
			return err
		}
	}
	return nil
}

// orphanMirrorPass deletes the mirror directory and catalog rows for
// every mirror_docs entry whose source file is no longer active.
func (r *Reconciler) orphanMirrorPass(ctx context.Context) error {
	uids, err := r.cat.OrphanMirrorFileUIDs(ctx)
	if err != nil {
		return err
	}

	for _, fileUID := range uids {
		doc, err := r.cat.GetMirrorDoc(ctx, fileUID)
		if err != nil {
			return err
		}
		if doc != nil {
			dir := mirrorpath.MirrorDir(r.mirrorRoot, doc.Path)
			if err := os.RemoveAll(dir); err != nil {
				return err
			}
		}

		if err := r.cat.DeleteMirrorDoc(ctx, fileUID); err != nil {
			return err
		}
		if _, err := r.cat.DeleteMirrorChunksForFile(ctx, fileUID); err != nil {
			return err
		}
		if err := r.b.Publish(ctx, events.TopicMirrorText, events.MirrorDocDeleted{FileUID: fileUID}); err != nil {
			return err
		}
	}
	return nil
}

func fileExists(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}
