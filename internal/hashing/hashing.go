// Package hashing provides the two distinct hash functions used across
// findx. A non-cryptographic 64-bit hash drives deduplication and change
// detection; SHA-256 is reserved for stable public identifiers
// (chunk_id, envelope idempotency keys). The two must never be
// conflated — a content_hash is never substituted where a chunk_id is
// expected, or vice versa.
package hashing

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// readBufSize is the buffered-read chunk size used when hashing file
// contents, matching the extraction pool's own read granularity.
const readBufSize = 8 * 1024

// ContentHash computes the non-cryptographic 64-bit content hash of r,
// reading in 8 KiB buffered chunks. This is the hash stored as
// files.hash and used as the second half of the extract_jobs dedup key
// (file_uid, content_hash); it is not suitable as a public identifier.
func ContentHash(r io.Reader) (uint64, error) {
	h := xxhash.New()
	buf := make([]byte, readBufSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := h.Write(buf[:n]); werr != nil {
				return 0, werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	return h.Sum64(), nil
}

// ContentHashBytes computes the same non-cryptographic 64-bit hash over
// an in-memory byte slice.
func ContentHashBytes(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// SHA256Hex returns the lowercase hex-encoded SHA-256 digest of data.
// Used to derive chunk_id and bus envelope idempotency_key values, never
// for deduplication or change detection.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SHA256 returns the raw SHA-256 digest of data.
func SHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// NormalizeChunkText converts CRLF and bare CR to LF and trims trailing
// whitespace, exactly as chunk_id's normalize() step requires so that
// line-ending differences never change a chunk's identity.
func NormalizeChunkText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimRight(text, " \t\n\v\f\r")
}

// ChunkID derives the deterministic public identifier of a mirror chunk:
//
//	"ch:" + hex(SHA256(file_uid || content_hash || page_no_be_u32 ||
//	            start_be_usize || end_be_usize || normalize(text)))
//
// start and end are Unicode-scalar (rune) offsets into the whole extracted
// text (the page's start offset plus the offset within the page), as the
// mirror chunker passes them, and are encoded as big-endian uint64
// regardless of host pointer width, so the identifier is stable across
// platforms.
func ChunkID(fileUID string, contentHash uint64, pageNo uint32, start, end int, text string) string {
	var buf []byte
	buf = append(buf, []byte(fileUID)...)

	var contentHashBE [8]byte
	binary.BigEndian.PutUint64(contentHashBE[:], contentHash)
	buf = append(buf, contentHashBE[:]...)

	var pageNoBE [4]byte
	binary.BigEndian.PutUint32(pageNoBE[:], pageNo)
	buf = append(buf, pageNoBE[:]...)

	var startBE, endBE [8]byte
	binary.BigEndian.PutUint64(startBE[:], uint64(start))
	binary.BigEndian.PutUint64(endBE[:], uint64(end))
	buf = append(buf, startBE[:]...)
	buf = append(buf, endBE[:]...)

	buf = append(buf, []byte(NormalizeChunkText(text))...)

	return "ch:" + SHA256Hex(buf)
}
