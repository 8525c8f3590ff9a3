//go:build windows

package fsscan

import (
	"fmt"
	"os"
	"syscall"
)

const fileAttributeOffline = 0x1000 // FILE_ATTRIBUTE_OFFLINE

// signatureFor builds a Windows fast-signature from the file index, size,
// last-write time, and attribute flags exposed by syscall.Win32FileAttributeData.
// is_offline follows FILE_ATTRIBUTE_OFFLINE, the "recall on access" marker
// used by placeholder/cloud-backed files (e.g. OneDrive Files On-Demand).
func signatureFor(path string, info os.FileInfo) (Signature, error) {
	sys, ok := info.Sys().(*syscall.Win32FileAttributeData)
	if !ok {
		return Signature{}, fmt.Errorf("fsscan: unsupported stat type for %s", path)
	}

	fileIndex, err := fileIndexFor(path)
	if err != nil {
		return Signature{}, err
	}

	fastSig := fmt.Sprintf("%d:%d:%d:%d", fileIndex, info.Size(), sys.LastWriteTime.Nanoseconds(), sys.FileAttributes)

	return Signature{
		FileUID:   fmt.Sprintf("win:%d", fileIndex),
		FastSig:   fastSig,
		IsOffline: sys.FileAttributes&fileAttributeOffline != 0,
		Attrs:     uint64(sys.FileAttributes),
	}, nil
}

// fileIndexFor opens path to read its BY_HANDLE_FILE_INFORMATION file index,
// the stable identity NTFS assigns a file independent of its path.
func fileIndexFor(path string) (uint64, error) {
	p, err := syscall.UTF16PtrFromString(path)
	if err != nil {
		return 0, err
	}
	h, err := syscall.CreateFile(p, 0, syscall.FILE_SHARE_READ|syscall.FILE_SHARE_WRITE|syscall.FILE_SHARE_DELETE,
		nil, syscall.OPEN_EXISTING, syscall.FILE_FLAG_BACKUP_SEMANTICS, 0)
	if err != nil {
		return 0, err
	}
	defer syscall.CloseHandle(h)

	var info syscall.ByHandleFileInformation
	if err := syscall.GetFileInformationByHandle(h, &info); err != nil {
		return 0, err
	}
	return uint64(info.FileIndexHigh)<<32 | uint64(info.FileIndexLow), nil
}
