// Package model holds the data types shared across the engine's operation
// surface: sessions, records, pages, search, tasks, and export requests.
//
// Grounded 1:1 on original_source/core/src/models.rs, the Rust ancestor of
// this spec's data model — field names and defaults are carried across
// verbatim (translated to Go naming conventions), since spec.md §9 leaves
// several of these shapes as Open Questions the original already resolved.
package model

// FileFormat identifies one of the four supported source formats, or
// Unknown for anything else. Detected purely by file extension
// (internal/format), never by content sniffing.
type FileFormat int

const (
	Unknown FileFormat = iota
	Jsonl
	Csv
	Json
	Parquet
)

func (f FileFormat) String() string {
	switch f {
	case Jsonl:
		return "jsonl"
	case Csv:
		return "csv"
	case Json:
		return "json"
	case Parquet:
		return "parquet"
	default:
		return "unknown"
	}
}

// SessionInfo describes an open file session.
type SessionInfo struct {
	SessionID    string     `json:"session_id"`
	Path         string     `json:"path"`
	Format       FileFormat `json:"format"`
	CreatedAtMs  int64      `json:"created_at_ms"`
}

// RecordMeta locates a record in its source file.
type RecordMeta struct {
	LineNo     uint64 `json:"line_no"`
	ByteOffset uint64 `json:"byte_offset"`
	ByteLen    uint64 `json:"byte_len"`
}

// Record is one page entry: an id, a possibly-truncated preview, an
// optional raw payload (nil when raw_max_chars is configured to 0), and
// its location metadata for later random-access (get_record_raw) or
// export-by-selection.
type Record struct {
	ID      uint64     `json:"id"`
	Preview string     `json:"preview"`
	Raw     *string    `json:"raw,omitempty"`
	Meta    RecordMeta `json:"meta"`
}

// RecordPage is the result of a paging operation.
type RecordPage struct {
	Records     []Record `json:"records"`
	NextCursor  string   `json:"next_cursor,omitempty"`
	ReachedEOF  bool     `json:"reached_eof"`
}

// SearchMode selects how a search is executed.
type SearchMode int

const (
	// CurrentPage searches only the records of the last page returned to
	// the caller, synchronously.
	CurrentPage SearchMode = iota
	// ScanAll spawns a cancellable background task scanning the whole
	// file.
	ScanAll
	// Indexed is reserved for a future milestone; not implemented here
	// (spec.md Non-goal: indexed/full-text search).
	Indexed
)

// SearchQuery describes a search request.
type SearchQuery struct {
	Text          string
	Mode          SearchMode
	CaseSensitive bool
	MaxHits       uint64
}

// DefaultSearchQuery mirrors original_source's SearchQuery::default()
// (max_hits = 10_000).
func DefaultSearchQuery() SearchQuery {
	return SearchQuery{MaxHits: 10_000}
}

// SearchHit is one match found by a ScanAll task.
type SearchHit struct {
	LineNo     uint64 `json:"line_no"`
	ByteOffset uint64 `json:"byte_offset"`
	ByteLen    uint64 `json:"byte_len"`
	Preview    string `json:"preview"`
}

// SearchResult is returned synchronously by CurrentPage searches, or as
// the immediate response to a ScanAll search (task info only; hits are
// fetched via the task's hit-page operation as they accumulate).
type SearchResult struct {
	Mode      SearchMode  `json:"mode"`
	Hits      []SearchHit `json:"hits,omitempty"`
	Task      *TaskInfo   `json:"task,omitempty"`
	Truncated bool        `json:"truncated"`
}

// TaskKind identifies what kind of background work a task performs.
type TaskKind int

const (
	SearchScanAll TaskKind = iota
	// Export is reserved: the task manager does not currently spawn
	// export tasks (export runs synchronously, per spec.md §4.j), but the
	// type carries the variant so the model stays stable if that changes.
	Export
)

// TaskInfo is the lightweight handle returned when a task is started.
type TaskInfo struct {
	ID          string   `json:"id"`
	Kind        TaskKind `json:"kind"`
	Cancellable bool     `json:"cancellable"`
}

// Task is the full state of a background task as observed via get_task.
type Task struct {
	ID             string   `json:"id"`
	Kind           TaskKind `json:"kind"`
	StartedAtMs    int64    `json:"started_at_ms"`
	Progress0To100 uint8    `json:"progress_0_100"`
	Cancellable    bool     `json:"cancellable"`
	Finished       bool     `json:"finished"`
	Error          string   `json:"error,omitempty"`
}

// ExportFormat selects the output encoding for an export.
type ExportFormat int

const (
	ExportJSON ExportFormat = iota
	ExportJSONL
	ExportCSV
)

// JSONPathSegment is one step of a path into a JSON document: either a
// object key or an array index. Exactly one of Key/Index is set,
// mirroring the Rust untagged enum Key(String) | Index(u64).
type JSONPathSegment struct {
	Key   *string `json:"key,omitempty"`
	Index *uint64 `json:"index,omitempty"`
}

func KeySegment(k string) JSONPathSegment   { return JSONPathSegment{Key: &k} }
func IndexSegment(i uint64) JSONPathSegment { return JSONPathSegment{Index: &i} }

// ExportRequestKind tags which variant of ExportRequest is populated.
type ExportRequestKind int

const (
	ExportSelection ExportRequestKind = iota
	ExportSearchTask
	ExportJSONSubtree
)

// ExportRequest is a tagged union of the three ways an export can be
// scoped, mirroring original_source's ExportRequest enum.
type ExportRequest struct {
	Kind ExportRequestKind

	// ExportSelection
	RecordIDs []uint64

	// ExportSearchTask
	TaskID string

	// ExportJSONSubtree
	SubtreeMeta        RecordMeta
	SubtreePath        []JSONPathSegment
	SubtreeIncludeRoot bool
	SubtreeChildren    bool
}

// ExportResult reports what an export actually wrote.
type ExportResult struct {
	OutputPath      string `json:"output_path"`
	RecordsWritten  uint64 `json:"records_written"`
}

// JSONNodeKind classifies a node encountered while walking a JSON document.
type JSONNodeKind int

const (
	NodeObject JSONNodeKind = iota
	NodeArray
	NodeString
	NodeNumber
	NodeBool
	NodeNull
)

// JSONChildEntry is one child in a children-listing page: its path
// segment (key or index) and a cheap summary (no recursive scan).
type JSONChildEntry struct {
	Segment JSONPathSegment `json:"segment"`
	Kind    JSONNodeKind    `json:"kind"`
	Offset  uint64          `json:"offset"`
	Preview string          `json:"preview"`
}

// JSONChildrenPage is the path-based children listing result.
type JSONChildrenPage struct {
	Children   []JSONChildEntry `json:"children"`
	NextCursor string           `json:"next_cursor,omitempty"`
	ReachedEnd bool             `json:"reached_end"`
}

// JSONChildrenPageOffset is the offset-based (fast re-entry) variant of
// JSONChildrenPage, addressed by absolute byte offset instead of path.
type JSONChildrenPageOffset struct {
	Children   []JSONChildEntry `json:"children"`
	NextCursor string           `json:"next_cursor,omitempty"`
	ReachedEnd bool             `json:"reached_end"`
}

// JSONNodeSummary is a bounded-scan summary of a node: its kind, child
// count (capped), and whether the scan completed within the bounds.
type JSONNodeSummary struct {
	Kind       JSONNodeKind `json:"kind"`
	ChildCount uint64       `json:"child_count"`
	Complete   bool         `json:"complete"`
}

// JSONNodeSummaryOffset is the offset-addressed variant of JSONNodeSummary.
type JSONNodeSummaryOffset struct {
	Kind       JSONNodeKind `json:"kind"`
	ChildCount uint64       `json:"child_count"`
	Complete   bool         `json:"complete"`
}

// StatsResult is reserved for a future milestone (spec.md Non-goal:
// statistics/aggregation). get_stats always returns this stub.
type StatsResult struct {
	Message string `json:"message"`
}
