// Package events defines the payload types carried on findx's two event
// bus topics (source.fs, mirror.text) and the FileEvent/ops-log
// vocabulary interchanged between components.
package events

// Topic names an event bus topic.
type Topic string

const (
	TopicSourceFS   Topic = "source.fs"
	TopicMirrorText Topic = "mirror.text"
)

// Type is the wire type tag carried in an envelope and used in logs and
// tests — never a numeric code.
type Type string

const (
	TypeSyncStarted         Type = "SyncStarted"
	TypeSyncDelta           Type = "SyncDelta"
	TypeFileAdded           Type = "FileAdded"
	TypeFileModified        Type = "FileModified"
	TypeFileMoved           Type = "FileMoved"
	TypeFileDeleted         Type = "FileDeleted"
	TypeExtractionRequested Type = "ExtractionRequested"
	TypeExtractionCompleted Type = "ExtractionCompleted"
	TypeExtractionFailed    Type = "ExtractionFailed"

	TypeMirrorDocUpserted   Type = "MirrorDocUpserted"
	TypeMirrorDocDeleted    Type = "MirrorDocDeleted"
	TypeMirrorChunkUpserted Type = "MirrorChunkUpserted"
	TypeMirrorChunkDeleted  Type = "MirrorChunkDeleted"
)

// Payload is implemented by every concrete event payload. EventType
// reports the wire type tag the bus uses for envelope.data and for
// routing inside subscribers.
type Payload interface {
	EventType() Type
}

// FileInfo is the scanner's per-file snapshot, compared against the
// previous in-memory state to derive a SyncDelta.
type FileInfo struct {
	FileUID   string `json:"file_uid"`
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	MtimeNS   int64  `json:"mtime_ns"`
	FastSig   string `json:"fast_sig"`
	IsOffline bool   `json:"is_offline"`
	Attrs     uint64 `json:"attrs"`
}

// SyncStarted marks the beginning of a scan cycle.
type SyncStarted struct{}

func (SyncStarted) EventType() Type { return TypeSyncStarted }

// SyncDelta is the one event published per quiescence window, bucketing
// every file-level change detected since the previous scan.
type SyncDelta struct {
	Added    []FileInfo `json:"added"`
	Modified []FileInfo `json:"modified"`
	Moved    []FileInfo `json:"moved"`
	Deleted  []FileInfo `json:"deleted"`
}

func (SyncDelta) EventType() Type { return TypeSyncDelta }

// FileAdded is published per newly-seen file_uid within a SyncDelta.
type FileAdded struct {
	FileUID string `json:"file_uid"`
	Path    string `json:"path"`
}

func (FileAdded) EventType() Type { return TypeFileAdded }

// FileModified is published when an already-known file_uid's fast_sig
// changes at an unchanged path.
type FileModified struct {
	FileUID string `json:"file_uid"`
	Path    string `json:"path"`
}

func (FileModified) EventType() Type { return TypeFileModified }

// FileMoved is published when a file_uid reappears under a new path.
type FileMoved struct {
	FileUID string `json:"file_uid"`
	OldPath string `json:"old_path"`
	NewPath string `json:"new_path"`
}

func (FileMoved) EventType() Type { return TypeFileMoved }

// FileDeleted is published when a previously-known file_uid disappears
// from a cold scan.
type FileDeleted struct {
	FileUID string `json:"file_uid"`
}

func (FileDeleted) EventType() Type { return TypeFileDeleted }

// ExtractionRequested asks the extraction pool to process file_uid,
// gated by the offline-hydration policy in MetadataService.
type ExtractionRequested struct {
	FileUID string `json:"file_uid"`
}

func (ExtractionRequested) EventType() Type { return TypeExtractionRequested }

// PageBlock is one form-feed-delimited page of extracted text, with
// Unicode-scalar start/end offsets into the page's source text.
type PageBlock struct {
	PageNo int    `json:"page_no"`
	Text   string `json:"text"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
}

// ExtractionCompleted carries the extracted pages for one
// (file_uid, content_hash) pair.
type ExtractionCompleted struct {
	FileUID          string      `json:"file_uid"`
	ContentHash      uint64      `json:"content_hash"`
	Extractor        string      `json:"extractor"`
	ExtractorVersion string      `json:"extractor_version"`
	Pages            []PageBlock `json:"pages"`
}

func (ExtractionCompleted) EventType() Type { return TypeExtractionCompleted }

// ExtractionFailed reports an extraction failure without stopping the
// pool; the job row is marked failed and the worker moves on.
type ExtractionFailed struct {
	FileUID string `json:"file_uid"`
	Error   string `json:"error"`
}

func (ExtractionFailed) EventType() Type { return TypeExtractionFailed }

// MirrorDocUpserted is published after the mirror builder atomically
// rewrites a file's meta.json and chunks.jsonl.
type MirrorDocUpserted struct {
	FileUID     string `json:"file_uid"`
	ContentHash uint64 `json:"content_hash"`
}

func (MirrorDocUpserted) EventType() Type { return TypeMirrorDocUpserted }

// MirrorDocDeleted is published when a mirror document and all its
// chunks are removed, including on a rollback after a write failure.
type MirrorDocDeleted struct {
	FileUID string `json:"file_uid"`
}

func (MirrorDocDeleted) EventType() Type { return TypeMirrorDocDeleted }

// MirrorChunkUpserted is published per chunk written as part of a
// MirrorDocUpserted.
type MirrorChunkUpserted struct {
	ChunkID string `json:"chunk_id"`
	FileUID string `json:"file_uid"`
	Order   int    `json:"order"`
}

func (MirrorChunkUpserted) EventType() Type { return TypeMirrorChunkUpserted }

// MirrorChunkDeleted is published per chunk removed by a doc rewrite or
// rollback.
type MirrorChunkDeleted struct {
	ChunkID string `json:"chunk_id"`
	FileUID string `json:"file_uid"`
}

func (MirrorChunkDeleted) EventType() Type { return TypeMirrorChunkDeleted }

// OpsLogKind tags a row in the append-only, human-readable ops log.
type OpsLogKind string

const (
	OpsLogAdd OpsLogKind = "add"
	OpsLogMod OpsLogKind = "mod"
	OpsLogMv  OpsLogKind = "mv"
	OpsLogDel OpsLogKind = "del"
)
