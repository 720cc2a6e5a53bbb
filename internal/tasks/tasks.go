// Package tasks implements the concurrent, cancellable scan-all search
// task manager (spec.md §4.i).
//
// Grounded on two sources fused together: the teacher's app_search.go
// pattern (searchState{mu, ctx, cancel, results, completed, err}, a
// package-level map of in-flight searches guarded by a mutex, one
// goroutine per search) for the Go concurrency idiom, and
// original_source/core/src/tasks.rs's TaskManager/TaskState for the exact
// policy: atomic progress/finished/cancelled/truncated flags, a
// max-concurrent-tasks admission check via an atomic counter, and
// per-format worker loops (lines, JSON root array, Parquet).
package tasks

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/sec-view/datalens/internal/columnar"
	"github.com/sec-view/datalens/internal/coreerr"
	"github.com/sec-view/datalens/internal/corelog"
	"github.com/sec-view/datalens/internal/cursor"
	"github.com/sec-view/datalens/internal/jsonscan"
	"github.com/sec-view/datalens/internal/model"
	"github.com/sec-view/datalens/internal/search"
	"github.com/sec-view/datalens/internal/textutil"
)

const hitPreviewChars = 200

// Options bounds task-manager-wide concurrency.
type Options struct {
	MaxConcurrentTasks int
}

// Manager owns every in-flight and completed task. Tasks are never
// removed automatically; callers that want to free memory for old tasks
// would need an explicit reap operation (not required by spec.md).
type Manager struct {
	opts    Options
	mu      sync.RWMutex
	tasks   map[string]*taskState
	running int32
}

func NewManager(opts Options) *Manager {
	if opts.MaxConcurrentTasks <= 0 {
		opts.MaxConcurrentTasks = 2
	}
	return &Manager{opts: opts, tasks: make(map[string]*taskState)}
}

type taskState struct {
	id          string
	kind        model.TaskKind
	startedAtMs int64
	cancellable bool

	progress  atomic.Uint32
	finished  atomic.Bool
	cancelled atomic.Bool
	truncated atomic.Bool

	mu    sync.Mutex
	err   string
	hits  []model.SearchHit

	cancel context.CancelFunc
}

// ClockFunc is supplied by the caller (session layer) rather than read from
// time.Now() directly inside the package, keeping this package free of
// wall-clock side effects for easier testing; session.Engine passes the
// real clock.
type ClockFunc func() int64

// StartSearchScanAll spawns a background goroutine scanning path
// (according to format) for query, returning immediately with a TaskInfo
// handle. Rejects unsupported formats, blank query text, and too many
// concurrently-running tasks, matching original_source's admission rules.
func (m *Manager) StartSearchScanAll(path string, format model.FileFormat, query model.SearchQuery, now ClockFunc) (model.TaskInfo, error) {
	if format != model.Jsonl && format != model.Csv && format != model.Json && format != model.Parquet {
		return model.TaskInfo{}, coreerr.UnsupportedFormatf("scan-all search not supported for %s", format)
	}
	prepared, ok := search.New(query.Text, query.CaseSensitive)
	if !ok {
		return model.TaskInfo{}, coreerr.InvalidArgf("search query text must not be empty")
	}
	maxHits := query.MaxHits
	if maxHits == 0 {
		maxHits = model.DefaultSearchQuery().MaxHits
	}

	for {
		cur := atomic.LoadInt32(&m.running)
		if int(cur) >= m.opts.MaxConcurrentTasks {
			return model.TaskInfo{}, coreerr.Taskf("too many concurrent tasks (max %d)", m.opts.MaxConcurrentTasks)
		}
		if atomic.CompareAndSwapInt32(&m.running, cur, cur+1) {
			break
		}
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	st := &taskState{
		id:          id,
		kind:        model.SearchScanAll,
		startedAtMs: now(),
		cancellable: true,
		cancel:      cancel,
	}

	m.mu.Lock()
	m.tasks[id] = st
	m.mu.Unlock()

	corelog.Tagf("TASK_START", "id=%s kind=search_scan_all format=%s", id, format)

	go func() {
		defer func() {
			atomic.AddInt32(&m.running, -1)
			st.finished.Store(true)
			st.progress.Store(100)
			corelog.Tagf("TASK_DONE", "id=%s cancelled=%v truncated=%v", id, st.cancelled.Load(), st.truncated.Load())
		}()

		push := func(hit model.SearchHit) bool {
			st.mu.Lock()
			defer st.mu.Unlock()
			if uint64(len(st.hits)) >= maxHits {
				st.truncated.Store(true)
				return false
			}
			st.hits = append(st.hits, hit)
			return true
		}
		progress := func(pct uint8) { st.progress.Store(uint32(pct)) }

		var err error
		switch format {
		case model.Jsonl, model.Csv:
			err = runScanAllLines(ctx, path, prepared, push, progress)
		case model.Json:
			err = runScanAllJSONRootArray(ctx, path, prepared, push, progress)
		case model.Parquet:
			err = runScanAllParquet(ctx, path, prepared, push, progress)
		}
		if err != nil && ctx.Err() == nil {
			st.mu.Lock()
			st.err = err.Error()
			st.mu.Unlock()
			corelog.Tagf("TASK_ERROR", "id=%s err=%v", id, err)
		}
	}()

	return model.TaskInfo{ID: id, Kind: model.SearchScanAll, Cancellable: true}, nil
}

// Get returns the full state of task id.
func (m *Manager) Get(id string) (model.Task, error) {
	st, err := m.find(id)
	if err != nil {
		return model.Task{}, err
	}
	st.mu.Lock()
	errMsg := st.err
	st.mu.Unlock()
	return model.Task{
		ID:             st.id,
		Kind:           st.kind,
		StartedAtMs:    st.startedAtMs,
		Progress0To100: uint8(st.progress.Load()),
		Cancellable:    st.cancellable,
		Finished:       st.finished.Load(),
		Error:          errMsg,
	}, nil
}

// Cancel requests cooperative cancellation of task id. Returns an error if
// the task isn't cancellable or doesn't exist.
func (m *Manager) Cancel(id string) error {
	st, err := m.find(id)
	if err != nil {
		return err
	}
	if !st.cancellable {
		return coreerr.Taskf("task %s is not cancellable", id)
	}
	st.cancelled.Store(true)
	st.cancel()
	corelog.Tagf("TASK_CANCEL", "id=%s", id)
	return nil
}

// HitsPage returns up to limit hits from task id starting at cur (Line is
// the hit index to resume from; Offset is unused but kept for symmetry
// with the record cursor).
func (m *Manager) HitsPage(id string, cur cursor.Cursor, limit int) (model.SearchResult, error) {
	st, err := m.find(id)
	if err != nil {
		return model.SearchResult{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	start := cur.Line
	if start > uint64(len(st.hits)) {
		start = uint64(len(st.hits))
	}
	end := start + uint64(limit)
	if end > uint64(len(st.hits)) {
		end = uint64(len(st.hits))
	}
	hits := append([]model.SearchHit(nil), st.hits[start:end]...)

	return model.SearchResult{
		Mode:      model.ScanAll,
		Hits:      hits,
		Truncated: st.truncated.Load(),
	}, nil
}

// AllHitRecordIDs returns every line/row number hit so far, used by the
// exporter's SearchTask export path (original_source's
// get_search_task_hit_ids).
func (m *Manager) AllHitRecordIDs(id string) ([]uint64, error) {
	st, err := m.find(id)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	ids := make([]uint64, len(st.hits))
	for i, h := range st.hits {
		ids[i] = h.LineNo
	}
	return ids, nil
}

func (m *Manager) find(id string) (*taskState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.tasks[id]
	if !ok {
		return nil, coreerr.Taskf("unknown task %s", id)
	}
	return st, nil
}

// runScanAllLines scans a '\n'-delimited source (JSONL or CSV, matched as
// raw lines) for prepared, checking cancellation at each line boundary.
func runScanAllLines(ctx context.Context, path string, prepared search.Prepared, push func(model.SearchHit) bool, progress func(uint8)) error {
	f, err := os.Open(path)
	if err != nil {
		return coreerr.IoErrorf(err, "opening %s", path)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return coreerr.IoErrorf(err, "statting %s", path)
	}
	fileLen := info.Size()

	br := bufio.NewReaderSize(f, 64*1024)
	var offset int64
	var lineNo uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := br.ReadString('\n')
		n := int64(len(line))
		if n == 0 && err == io.EOF {
			return nil
		}
		trimmed := trimLineEnding(line)
		if prepared.Matches(trimmed) {
			if !push(model.SearchHit{
				LineNo:     lineNo,
				ByteOffset: uint64(offset),
				ByteLen:    uint64(n),
				Preview:    textutil.TruncateChars(trimmed, hitPreviewChars),
			}) {
				return nil
			}
		}
		offset += n
		lineNo++
		if fileLen > 0 {
			pct := offset * 100 / fileLen
			if pct > 99 {
				pct = 99
			}
			progress(uint8(pct))
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return coreerr.IoErrorf(err, "reading %s", path)
		}
	}
}

func trimLineEnding(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// runScanAllJSONRootArray requires the document to be a root array (after
// BOM/whitespace) and scans each value in it, matching search against the
// value's full source text (bounded by jsonscan.MaxValueBytes).
func runScanAllJSONRootArray(ctx context.Context, path string, prepared search.Prepared, push func(model.SearchHit) bool, progress func(uint8)) error {
	f, err := os.Open(path)
	if err != nil {
		return coreerr.IoErrorf(err, "opening %s", path)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return coreerr.IoErrorf(err, "statting %s", path)
	}
	fileLen := info.Size()

	br := bufio.NewReaderSize(f, 64*1024)
	if err := jsonscan.SkipBOMAndWS(br); err != nil {
		return coreerr.IoErrorf(err, "reading %s", path)
	}
	b, err := br.Peek(1)
	if err != nil || b[0] != '[' {
		return coreerr.InvalidArgf("scan-all json search requires a root array document")
	}
	br.Discard(1)

	offset, err := currentPosTasks(f, br)
	if err != nil {
		return err
	}

	var idx uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := jsonscan.SkipWS(br); err != nil {
			return coreerr.IoErrorf(err, "reading %s", path)
		}
		offset, err = currentPosTasks(f, br)
		if err != nil {
			return err
		}
		pb, perr := br.Peek(1)
		if perr == io.EOF || (perr == nil && pb[0] == ']') {
			return nil
		}
		if perr == nil && pb[0] == ',' {
			br.Discard(1)
			continue
		}

		startOffset := offset
		res, serr := jsonscan.Scan(br, jsonscan.Capture{Enabled: true}, jsonscan.MaxValueBytes)
		if serr == io.EOF {
			return nil
		}
		if serr != nil {
			return serr
		}
		text := string(res.Captured)
		if prepared.Matches(text) {
			if !push(model.SearchHit{
				LineNo:     idx,
				ByteOffset: startOffset,
				ByteLen:    uint64(res.TotalLenBytes),
				Preview:    textutil.TruncateChars(text, hitPreviewChars),
			}) {
				return nil
			}
		}
		offset = startOffset + uint64(res.TotalLenBytes)
		idx++
		if fileLen > 0 {
			pct := int64(offset) * 100 / fileLen
			if pct > 99 {
				pct = 99
			}
			progress(uint8(pct))
		}
	}
}

// currentPosTasks reports the absolute file offset at br's current
// position, combining the file's real offset with bufio's
// buffered-but-unconsumed byte count (same approach as
// internal/jsonpager's currentPos, duplicated here since it is a three-line
// helper tied to this package's own os.File/bufio.Reader pair).
func currentPosTasks(f *os.File, br *bufio.Reader) (uint64, error) {
	real, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, coreerr.IoErrorf(err, "getting file position")
	}
	return uint64(real) - uint64(br.Buffered()), nil
}

// runScanAllParquet scans row-by-row through the Parquet row source,
// sanitizing and JSON-rendering each row the same way columnar.RowRawJSON
// does for paging.
func runScanAllParquet(ctx context.Context, path string, prepared search.Prepared, push func(model.SearchHit) bool, progress func(uint8)) error {
	rs, err := columnar.Open(path)
	if err != nil {
		return err
	}
	defer rs.Close()

	total, err := rs.RowCount()
	if err != nil {
		return err
	}

	const chunk = 2048
	for start := int64(0); start < total; start += chunk {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		rows, err := rs.ReadRows(start, chunk)
		if err != nil {
			return err
		}
		for i, row := range rows {
			text, jerr := columnar.RowRawJSON(row)
			if jerr != nil {
				continue
			}
			if prepared.Matches(text) {
				idx := start + int64(i)
				if !push(model.SearchHit{
					LineNo:     uint64(idx),
					ByteOffset: uint64(idx),
					ByteLen:    uint64(len(text)),
					Preview:    textutil.TruncateChars(text, hitPreviewChars),
				}) {
					return nil
				}
			}
		}
		if total > 0 {
			pct := (start + int64(len(rows))) * 100 / total
			if pct > 99 {
				pct = 99
			}
			progress(uint8(pct))
		}
	}
	return nil
}
