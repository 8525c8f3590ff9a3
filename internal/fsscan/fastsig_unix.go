//go:build linux || darwin

package fsscan

import (
	"fmt"
	"os"
	"syscall"
)

// signatureFor builds a POSIX fast-signature from device+inode, size, and
// the mtime/ctime nanosecond fields exposed by the raw stat_t. file_uid is
// formed from device+inode so it stays stable across renames.
func signatureFor(path string, info os.FileInfo) (Signature, error) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return Signature{}, fmt.Errorf("fsscan: unsupported stat type for %s", path)
	}

	fileUID := fmt.Sprintf("posix:%d:%d", stat.Dev, stat.Ino)
	fastSig := fmt.Sprintf("%d:%d:%d:%d:%d", stat.Dev, stat.Ino, info.Size(), mtimeNsec(stat), ctimeNsec(stat))

	return Signature{
		FileUID:   fileUID,
		FastSig:   fastSig,
		IsOffline: false,
		Attrs:     uint64(stat.Mode),
	}, nil
}
