// Package mirrorpath derives a source file's mirror-tree location by
// relativizing its realpath against the configured scan roots.
package mirrorpath

import (
	"path/filepath"
	"sort"
	"strings"
)

// Relativize strips the longest configured root that is a prefix of
// realpath, returning the remaining relative path. When roots overlap
// (a root nested inside another), the longest matching prefix wins —
// this is the deterministic rule the original implementation's
// first-match behavior left unspecified.
//
// Returns ok=false if no configured root is a prefix of realpath.
func Relativize(realpath string, roots []string) (rel string, ok bool) {
	realpath = filepath.Clean(realpath)

	sorted := make([]string, len(roots))
	copy(sorted, roots)
	for i := range sorted {
		sorted[i] = filepath.Clean(sorted[i])
	}
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

	for _, root := range sorted {
		if realpath == root {
			return ".", true
		}
		prefix := root + string(filepath.Separator)
		if strings.HasPrefix(realpath, prefix) {
			return strings.TrimPrefix(realpath, prefix), true
		}
	}
	return "", false
}

// MirrorDir returns the directory under mirrorRoot that stores a file's
// meta.json and chunks.jsonl: mirrorRoot/<rel>.
func MirrorDir(mirrorRoot, rel string) string {
	return filepath.Join(mirrorRoot, rel)
}

// IsUnderMirrorRoot reports whether path lies inside mirrorRoot, used by
// the scanner to exclude the mirror tree from its own traversal.
func IsUnderMirrorRoot(path, mirrorRoot string) bool {
	path = filepath.Clean(path)
	mirrorRoot = filepath.Clean(mirrorRoot)
	if path == mirrorRoot {
		return true
	}
	return strings.HasPrefix(path, mirrorRoot+string(filepath.Separator))
}
