// Package fsscan performs cold filesystem scans: it walks the configured
// roots, applies include/exclude/size/symlink policy, computes a
// platform-specific fast-change signature per kept file, and diffs the
// result against the previous scan to produce a SyncDelta.
package fsscan

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	findxerrors "github.com/gaspardpetit/findx/internal/errors"
	"github.com/gaspardpetit/findx/internal/events"
	"github.com/gaspardpetit/findx/internal/gitignore"
	"github.com/gaspardpetit/findx/internal/mirrorpath"
)

// Signature is the platform-specific identity and fast-change fields for a
// single file, produced by signatureFor (implemented per build target in
// fastsig_unix.go, fastsig_windows.go, fastsig_other.go).
type Signature struct {
	FileUID   string
	FastSig   string
	IsOffline bool
	Attrs     uint64
}

// Config controls traversal policy. Roots and MirrorRoot are absolute paths.
type Config struct {
	Roots          []string
	MirrorRoot     string
	IncludeGlobs   []string
	ExcludeGlobs   []string
	MaxFileSizeMB  int64
	FollowSymlinks bool
	HiddenFiles    bool
}

// Scanner owns the in-memory FsState of the previous scan, keyed by
// file_uid, and is not safe for concurrent use — callers serialize cold
// scans through a single goroutine (the watcher's debounce loop).
type Scanner struct {
	cfg   Config
	prev  map[string]events.FileInfo
	first bool
}

// New creates a Scanner with an empty previous state; the first Scan call
// therefore reports every kept file as added.
func New(cfg Config) *Scanner {
	return &Scanner{cfg: cfg, prev: make(map[string]events.FileInfo), first: true}
}

// Scan walks every configured root once and returns the delta against the
// previous scan. ok is false when the delta is empty (nothing changed) —
// callers should not publish an empty SyncDelta.
func (s *Scanner) Scan(ctx context.Context) (events.SyncDelta, bool, error) {
	current := make(map[string]events.FileInfo)

	for _, root := range s.cfg.Roots {
		if _, err := os.Stat(root); err != nil {
			return events.SyncDelta{}, false, findxerrors.NewConfigError("fsscan: root does not exist: "+root, err)
		}
		if err := s.walkRoot(ctx, root, current); err != nil {
			return events.SyncDelta{}, false, err
		}
	}

	delta := diff(s.prev, current)
	s.prev = current
	s.first = false

	empty := len(delta.Added) == 0 && len(delta.Modified) == 0 && len(delta.Moved) == 0 && len(delta.Deleted) == 0
	return delta, !empty, nil
}

func (s *Scanner) walkRoot(ctx context.Context, root string, current map[string]events.FileInfo) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return nil // per-entry traversal errors are skipped, not fatal
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil || rel == "." {
			return nil
		}

		if mirrorpath.IsUnderMirrorRoot(path, s.cfg.MirrorRoot) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if s.shouldSkipDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 && !s.cfg.FollowSymlinks {
			return nil
		}
		if !s.cfg.HiddenFiles && isHidden(rel) {
			return nil
		}
		if !s.matchesIncludeExclude(rel) {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		if s.cfg.MaxFileSizeMB > 0 && info.Size() > s.cfg.MaxFileSizeMB*1024*1024 {
			return nil
		}

		sig, sigErr := signatureFor(path, info)
		if sigErr != nil {
			return findxerrors.NewIoError("fsscan: computing signature for "+path, sigErr)
		}

		current[sig.FileUID] = events.FileInfo{
			FileUID:   sig.FileUID,
			Path:      path,
			Size:      info.Size(),
			MtimeNS:   info.ModTime().UnixNano(),
			FastSig:   sig.FastSig,
			IsOffline: sig.IsOffline,
			Attrs:     sig.Attrs,
		}
		return nil
	})
}

func (s *Scanner) shouldSkipDir(rel string) bool {
	if !s.cfg.HiddenFiles && isHidden(rel) {
		return true
	}
	return gitignore.MatchesAnyPattern(rel, s.cfg.ExcludeGlobs)
}

func (s *Scanner) matchesIncludeExclude(rel string) bool {
	if gitignore.MatchesAnyPattern(rel, s.cfg.ExcludeGlobs) {
		return false
	}
	if len(s.cfg.IncludeGlobs) > 0 {
		return gitignore.MatchesAnyPattern(rel, s.cfg.IncludeGlobs)
	}
	return true
}

func isHidden(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

// diff computes added/modified/moved/deleted buckets keyed by file_uid,
// per the rules: same uid+path+differing fast_sig is a modification, same
// uid+differing path is a move, a new uid is an addition, a vanished uid
// is a deletion.
func diff(prev, current map[string]events.FileInfo) events.SyncDelta {
	var delta events.SyncDelta

	for uid, cur := range current {
		old, existed := prev[uid]
		if !existed {
			delta.Added = append(delta.Added, cur)
			continue
		}
		if old.Path != cur.Path {
			delta.Moved = append(delta.Moved, cur)
			continue
		}
		if old.FastSig != cur.FastSig {
			delta.Modified = append(delta.Modified, cur)
		}
	}

	for uid, old := range prev {
		if _, stillPresent := current[uid]; !stillPresent {
			delta.Deleted = append(delta.Deleted, old)
		}
	}

	return delta
}
