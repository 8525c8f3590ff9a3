package errors

// Kind classifies an error for the supervising command's dispatch logic.
// These are the seven kinds the pipeline distinguishes; there is
// deliberately no finer-grained numeric code range underneath them — every
// component that fails tags its error with exactly one of these.
type Kind string

const (
	// ConfigError marks an invalid root, bad glob, or missing required
	// setting. Fatal to the invoked command.
	ConfigError Kind = "config_error"

	// IoError marks a filesystem read/write/hash failure. Propagated;
	// per-entry during a scan it degrades to a skipped entry.
	IoError Kind = "io_error"

	// CatalogError marks a store contract violation. Fatal.
	CatalogError Kind = "catalog_error"

	// ExtractorError marks a child-process failure or protocol mismatch.
	// Logged, marks the job failed, emits ExtractionFailed, never stops
	// the pool.
	ExtractorError Kind = "extractor_error"

	// MirrorError marks a failed meta.json/chunks.jsonl write. Triggers
	// rollback and MirrorDocDeleted.
	MirrorError Kind = "mirror_error"

	// LockExists marks a failed index.lock acquisition: another process
	// already holds it.
	LockExists Kind = "lock_exists"

	// BusFull marks a subscriber whose queue was full; the subscriber was
	// silently dropped, the publisher is unaffected.
	BusFull Kind = "bus_full"
)

func retryableKind(k Kind) bool {
	switch k {
	case ExtractorError, IoError:
		return true
	default:
		return false
	}
}
