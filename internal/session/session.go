// Package session implements the public engine: the operation surface a
// host (cmd/datalens, or eventually a desktop shell over IPC) calls into.
// Grounded on original_source/core/src/engine.rs's CoreEngine: owns open
// sessions, the task manager, and the recent-files/settings store, and
// dispatches every paging/search/export/tree operation to the
// format-appropriate package.
package session

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/sec-view/datalens/internal/columnar"
	"github.com/sec-view/datalens/internal/config"
	"github.com/sec-view/datalens/internal/coreerr"
	"github.com/sec-view/datalens/internal/corelog"
	"github.com/sec-view/datalens/internal/cursor"
	"github.com/sec-view/datalens/internal/export"
	"github.com/sec-view/datalens/internal/format"
	"github.com/sec-view/datalens/internal/jsonpager"
	"github.com/sec-view/datalens/internal/jsonscan"
	"github.com/sec-view/datalens/internal/jsontree"
	"github.com/sec-view/datalens/internal/linepager"
	"github.com/sec-view/datalens/internal/model"
	"github.com/sec-view/datalens/internal/search"
	"github.com/sec-view/datalens/internal/sourcefile"
	"github.com/sec-view/datalens/internal/store"
	"github.com/sec-view/datalens/internal/tasks"
)

// ClockFunc supplies the current time in milliseconds since the epoch;
// Engine takes it as a parameter rather than calling time.Now() directly
// so the scheduling-sensitive pieces (task started_at, session created_at)
// stay testable with a fixed clock.
type ClockFunc func() int64

type sessionState struct {
	info          model.SessionInfo
	effectivePath string
	cleanup       func()
	lastPage      model.RecordPage
	csvHeader     []string
}

// Engine is the public, headless core described by spec.md's operation
// table (§6): open/page/search/export/tree-walk, backed by a recent-files
// store and a concurrent task manager.
type Engine struct {
	cfg   config.EngineConfig
	store *store.Store
	tasks *tasks.Manager
	clock ClockFunc

	mu       sync.RWMutex
	sessions map[string]*sessionState
}

// New builds an Engine. store may be nil if recent-files persistence is
// not needed (e.g. short-lived CLI invocations); touch_recent calls then
// become no-ops, matching the original's "best effort" persistence.
func New(cfg config.EngineConfig, st *store.Store, clock ClockFunc) *Engine {
	return &Engine{
		cfg:      cfg,
		store:    st,
		tasks:    tasks.NewManager(tasks.Options{MaxConcurrentTasks: cfg.MaxConcurrentTasks}),
		clock:    clock,
		sessions: make(map[string]*sessionState),
	}
}

// OpenFile opens path as a new session, detecting its format by extension
// and transparently decompressing gzip/bzip2/xz content (detected by magic
// bytes) so every pager can seek by absolute byte offset. The extension
// itself must be one of the four supported ones, so a name ending in
// .gz/.bz2/.xz is rejected as an unknown format.
func (e *Engine) OpenFile(path string) (model.SessionInfo, error) {
	return e.OpenFileWithProgress(path, nil)
}

// OpenFileWithProgress is OpenFile with an optional progress callback,
// reporting byte-granular progress while priming the first page of a
// large .json file, and a single 100 once any other format is opened
// (original_source's open_file_with_progress).
func (e *Engine) OpenFileWithProgress(path string, progress func(uint8)) (model.SessionInfo, error) {
	f := format.Detect(path)
	if f == model.Unknown {
		return model.SessionInfo{}, coreerr.UnsupportedFormatf("unrecognized file extension for %s", path)
	}

	effectivePath, cleanup, err := sourcefile.ResolveSeekable(path)
	if err != nil {
		return model.SessionInfo{}, err
	}

	id := uuid.NewString()
	info := model.SessionInfo{
		SessionID:   id,
		Path:        path,
		Format:      f,
		CreatedAtMs: e.clock(),
	}

	st := &sessionState{info: info, effectivePath: effectivePath, cleanup: cleanup}

	var header []string
	if f == model.Csv {
		header, err = linepager.ReadCSVHeader(effectivePath)
		if err != nil {
			cleanup()
			return model.SessionInfo{}, err
		}
		st.csvHeader = header
	}

	if f == model.Json {
		_, err := jsonpager.ReadPage(effectivePath, cursor.Zero, jsonpager.Options{
			PageSize:        e.cfg.DefaultPageSize,
			PreviewMaxChars: e.cfg.PreviewMaxChars,
			RawMaxChars:     e.cfg.RawMaxChars,
		}, jsonpager.ProgressFunc(progressOrNoop(progress)))
		if err != nil {
			cleanup()
			return model.SessionInfo{}, err
		}
	} else if progress != nil {
		progress(100)
	}

	e.mu.Lock()
	e.sessions[id] = st
	e.mu.Unlock()

	corelog.Tagf("SESSION_OPEN", "id=%s path=%s format=%s", id, path, f)

	if e.store != nil {
		if err := e.store.TouchRecent(path, filepath.Base(path), info.CreatedAtMs, true, nil); err != nil {
			corelog.Tagf("STORE_TOUCH_FAIL", "path=%s err=%v", path, err)
		}
	}

	return info, nil
}

func progressOrNoop(p func(uint8)) func(uint8) {
	if p == nil {
		return func(uint8) {}
	}
	return p
}

// CloseSession releases a session's resources (e.g. a decompressed temp
// file spool).
func (e *Engine) CloseSession(sessionID string) error {
	e.mu.Lock()
	st, ok := e.sessions[sessionID]
	if ok {
		delete(e.sessions, sessionID)
	}
	e.mu.Unlock()
	if !ok {
		return coreerr.UnknownSessionf("unknown session %s", sessionID)
	}
	st.cleanup()
	return nil
}

func (e *Engine) get(sessionID string) (*sessionState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st, ok := e.sessions[sessionID]
	if !ok {
		return nil, coreerr.UnknownSessionf("unknown session %s", sessionID)
	}
	return st, nil
}

// NextPage returns the next page of records for sessionID, resuming from
// cur (the zero cursor for the first page).
func (e *Engine) NextPage(sessionID string, cur cursor.Cursor) (model.RecordPage, error) {
	st, err := e.get(sessionID)
	if err != nil {
		return model.RecordPage{}, err
	}

	var page model.RecordPage
	switch st.info.Format {
	case model.Jsonl:
		page, err = linepager.ReadPage(st.effectivePath, cur, linepager.Options{
			PageSize: e.cfg.DefaultPageSize, PreviewMaxChars: e.cfg.PreviewMaxChars, RawMaxChars: e.cfg.RawMaxChars,
		})
	case model.Csv:
		page, err = linepager.ReadCSVPage(st.effectivePath, st.csvHeader, cur, linepager.Options{
			PageSize: e.cfg.DefaultPageSize, PreviewMaxChars: e.cfg.PreviewMaxChars, RawMaxChars: e.cfg.RawMaxChars,
		})
	case model.Json:
		page, err = jsonpager.ReadPage(st.effectivePath, cur, jsonpager.Options{
			PageSize: e.cfg.DefaultPageSize, PreviewMaxChars: e.cfg.PreviewMaxChars, RawMaxChars: e.cfg.RawMaxChars,
		}, nil)
	case model.Parquet:
		page, err = e.readParquetPage(st, cur)
	default:
		return model.RecordPage{}, coreerr.UnsupportedFormatf("paging not supported for %s", st.info.Format)
	}
	if err != nil {
		return model.RecordPage{}, err
	}

	e.mu.Lock()
	st.lastPage = page
	e.mu.Unlock()
	return page, nil
}

func (e *Engine) readParquetPage(st *sessionState, cur cursor.Cursor) (model.RecordPage, error) {
	rs, err := columnar.Open(st.effectivePath)
	if err != nil {
		return model.RecordPage{}, err
	}
	defer rs.Close()

	total, err := rs.RowCount()
	if err != nil {
		return model.RecordPage{}, err
	}
	start := int64(cur.Line)
	rows, err := rs.ReadRows(start, int64(e.cfg.DefaultPageSize))
	if err != nil {
		return model.RecordPage{}, err
	}

	records := make([]model.Record, 0, len(rows))
	for i, row := range rows {
		rowIdx := start + int64(i)
		raw, err := columnar.RowRawJSON(row)
		if err != nil {
			continue
		}
		previewStr := raw
		if len(previewStr) > e.cfg.PreviewMaxChars {
			previewStr = previewStr[:e.cfg.PreviewMaxChars] + "…"
		}
		var rawPtr *string
		if e.cfg.RawMaxChars > 0 {
			r := raw
			if len(r) > e.cfg.RawMaxChars {
				r = r[:e.cfg.RawMaxChars] + "…"
			}
			rawPtr = &r
		}
		records = append(records, model.Record{
			ID:      uint64(rowIdx),
			Preview: previewStr,
			Raw:     rawPtr,
			Meta:    model.RecordMeta{LineNo: uint64(rowIdx), ByteOffset: uint64(rowIdx), ByteLen: uint64(len(raw))},
		})
	}

	next := start + int64(len(rows))
	reachedEOF := next >= total || len(rows) == 0
	page := model.RecordPage{Records: records, ReachedEOF: reachedEOF}
	if !reachedEOF {
		page.NextCursor = cursor.Encode(cursor.Cursor{Offset: uint64(next), Line: uint64(next)})
	}
	return page, nil
}

// Search runs query against sessionID: CurrentPage searches the last page
// synchronously; ScanAll spawns a background task and returns its handle;
// Indexed is not implemented (spec.md Non-goal).
func (e *Engine) Search(sessionID string, query model.SearchQuery) (model.SearchResult, error) {
	st, err := e.get(sessionID)
	if err != nil {
		return model.SearchResult{}, err
	}

	switch query.Mode {
	case model.CurrentPage:
		prepared, ok := search.New(query.Text, query.CaseSensitive)
		if !ok {
			return model.SearchResult{}, coreerr.InvalidArgf("search query text must not be empty")
		}
		var hits []model.SearchHit
		for _, rec := range st.lastPage.Records {
			hay := rec.Preview
			if rec.Raw != nil {
				hay = rec.Preview + "\n" + *rec.Raw
			}
			if prepared.Matches(hay) {
				hits = append(hits, model.SearchHit{
					LineNo: rec.Meta.LineNo, ByteOffset: rec.Meta.ByteOffset, ByteLen: rec.Meta.ByteLen,
					Preview: rec.Preview,
				})
			}
		}
		return model.SearchResult{Mode: model.CurrentPage, Hits: hits}, nil

	case model.ScanAll:
		info, err := e.tasks.StartSearchScanAll(st.effectivePath, st.info.Format, query, e.clock)
		if err != nil {
			return model.SearchResult{}, err
		}
		return model.SearchResult{Mode: model.ScanAll, Task: &info}, nil

	default:
		return model.SearchResult{}, coreerr.InvalidArgf("indexed search not implemented (M4)")
	}
}

func (e *Engine) GetTask(taskID string) (model.Task, error) { return e.tasks.Get(taskID) }

func (e *Engine) CancelTask(taskID string) error { return e.tasks.Cancel(taskID) }

func (e *Engine) SearchTaskHitsPage(taskID string, cur cursor.Cursor, limit int) (model.SearchResult, error) {
	return e.tasks.HitsPage(taskID, cur, limit)
}

// Export runs req against sessionID's source, writing outFormat to
// outputPath.
func (e *Engine) Export(sessionID string, req model.ExportRequest, outFormat model.ExportFormat, outputPath string) (model.ExportResult, error) {
	st, err := e.get(sessionID)
	if err != nil {
		return model.ExportResult{}, err
	}
	return export.Run(req, st.effectivePath, st.info.Format, outFormat, outputPath, e.tasks.AllHitRecordIDs)
}

// JSONListChildren lists a page of children of the node at segments
// (path-addressed, safe entry).
func (e *Engine) JSONListChildren(sessionID string, segments []model.JSONPathSegment, cur cursor.Cursor, limit int) (model.JSONChildrenPage, error) {
	st, err := e.get(sessionID)
	if err != nil {
		return model.JSONChildrenPage{}, err
	}
	if st.info.Format != model.Json {
		return model.JSONChildrenPage{}, coreerr.UnsupportedFormatf("json tree walking requires a json session")
	}
	if limit <= 0 {
		limit = 50
	}
	return jsontree.ListChildren(st.effectivePath, segments, cur, limit)
}

// JSONListChildrenAtOffset is the fast-re-entry, offset-addressed
// equivalent of JSONListChildren; available for Json or Jsonl sessions
// (e.g. re-entering a value found via a scan-all hit).
func (e *Engine) JSONListChildrenAtOffset(sessionID string, nodeOffset uint64, cur cursor.Cursor, limit int) (model.JSONChildrenPageOffset, error) {
	st, err := e.get(sessionID)
	if err != nil {
		return model.JSONChildrenPageOffset{}, err
	}
	if st.info.Format != model.Json && st.info.Format != model.Jsonl {
		return model.JSONChildrenPageOffset{}, coreerr.UnsupportedFormatf("json tree walking requires a json or jsonl session")
	}
	if limit <= 0 {
		limit = 50
	}
	return jsontree.ListChildrenAtOffset(st.effectivePath, nodeOffset, cur, limit)
}

// JSONNodeSummary summarizes the node at segments with a bounded scan.
func (e *Engine) JSONNodeSummary(sessionID string, segments []model.JSONPathSegment, maxItems int, maxScanBytes int64) (model.JSONNodeSummary, error) {
	st, err := e.get(sessionID)
	if err != nil {
		return model.JSONNodeSummary{}, err
	}
	if st.info.Format != model.Json {
		return model.JSONNodeSummary{}, coreerr.UnsupportedFormatf("json tree walking requires a json session")
	}
	return jsontree.NodeSummary(st.effectivePath, segments, maxItems, maxScanBytes)
}

// JSONNodeSummaryAtOffset is the offset-addressed equivalent of
// JSONNodeSummary.
func (e *Engine) JSONNodeSummaryAtOffset(sessionID string, nodeOffset uint64, maxItems int, maxScanBytes int64) (model.JSONNodeSummaryOffset, error) {
	st, err := e.get(sessionID)
	if err != nil {
		return model.JSONNodeSummaryOffset{}, err
	}
	if st.info.Format != model.Json && st.info.Format != model.Jsonl {
		return model.JSONNodeSummaryOffset{}, coreerr.UnsupportedFormatf("json tree walking requires a json or jsonl session")
	}
	return jsontree.NodeSummaryAtOffset(st.effectivePath, nodeOffset, maxItems, maxScanBytes)
}

// GetRecordRaw re-reads a record's full, untruncated raw text directly
// from the source by its metadata, following engine.rs's per-format
// rules: line formats read the exact [byte_offset, byte_offset+byte_len)
// range and trim a trailing newline/CR/NUL; Json ignores byte_len
// entirely and rescans the value at byte_offset (capped at 50 MiB, since
// a page's captured byte_len may itself have been truncated); Parquet
// rerenders the row with no truncation at all.
func (e *Engine) GetRecordRaw(sessionID string, meta model.RecordMeta) (string, error) {
	st, err := e.get(sessionID)
	if err != nil {
		return "", err
	}

	switch st.info.Format {
	case model.Jsonl, model.Csv:
		return readExactRange(st.effectivePath, meta.ByteOffset, meta.ByteLen)
	case model.Json:
		return readJSONValueAtOffset(st.effectivePath, meta.ByteOffset, 50*1024*1024)
	case model.Parquet:
		rs, err := columnar.Open(st.effectivePath)
		if err != nil {
			return "", err
		}
		defer rs.Close()
		row, err := rs.ReadRow(int64(meta.LineNo))
		if err != nil {
			return "", err
		}
		return columnar.RowRawJSON(row)
	default:
		return "", coreerr.UnsupportedFormatf("get_record_raw not supported for %s", st.info.Format)
	}
}

// GetStats is a reserved stub: statistics/aggregation is an explicit
// Non-goal, but the operation surface reserves the slot the way
// original_source's engine.rs does for a future milestone.
func (e *Engine) GetStats(sessionID string) (model.StatsResult, error) {
	if _, err := e.get(sessionID); err != nil {
		return model.StatsResult{}, err
	}
	return model.StatsResult{Message: "not implemented (M3)"}, nil
}

// Storage exposes the recent-files/settings store for hosts that want to
// surface it directly (e.g. a "recent files" menu).
func (e *Engine) Storage() *store.Store { return e.store }

func readExactRange(path string, offset, length uint64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", coreerr.IoErrorf(err, "opening %s", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", coreerr.IoErrorf(err, "statting %s", path)
	}
	fileLen := uint64(info.Size())
	if offset > fileLen || offset+length > fileLen {
		return "", coreerr.InvalidArgf("record range [%d,%d) out of bounds for %s (len %d)", offset, offset+length, path, fileLen)
	}

	buf := make([]byte, length)
	if _, err := f.ReadAt(buf, int64(offset)); err != nil {
		return "", coreerr.IoErrorf(err, "reading %s", path)
	}
	s := string(buf)
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r' || s[len(s)-1] == 0) {
		s = s[:len(s)-1]
	}
	return s, nil
}

func readJSONValueAtOffset(path string, offset uint64, maxBytes int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", coreerr.IoErrorf(err, "opening %s", path)
	}
	defer f.Close()
	if _, err := f.Seek(int64(offset), io.SeekStart); err != nil {
		return "", coreerr.IoErrorf(err, "seeking %s", path)
	}
	br := bufio.NewReader(f)
	res, err := jsonscan.Scan(br, jsonscan.Capture{Enabled: true, MaxBytes: maxBytes}, maxBytes)
	if err != nil {
		return "", err
	}
	return string(res.Captured), nil
}
