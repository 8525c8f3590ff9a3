//go:build !linux && !darwin && !windows

package fsscan

import (
	"fmt"
	"os"

	"github.com/cespare/xxhash/v2"
)

// signatureFor is the fallback for platforms without a recognized native
// stable-identity mechanism: file_uid is a hash over path+size, which is
// not rename-stable but degrades gracefully.
func signatureFor(path string, info os.FileInfo) (Signature, error) {
	sum := xxhash.Sum64String(fmt.Sprintf("%s:%d", path, info.Size()))
	fileUID := fmt.Sprintf("fallback:%x", sum)
	fastSig := fmt.Sprintf("%d:%d", info.Size(), info.ModTime().UnixNano())

	return Signature{
		FileUID:   fileUID,
		FastSig:   fastSig,
		IsOffline: false,
		Attrs:     uint64(info.Mode()),
	}, nil
}
