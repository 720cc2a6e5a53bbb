// Package export implements the six streaming export concerns named in
// spec.md §4.j: creating the output directory, resolving a selection of
// record ids (from an explicit list or a running/finished scan-all task),
// and rendering that selection in one of line-passthrough, JSONL->JSON
// array, CSV->JSON(L), JSON->JSON(L), or Parquet->JSON(L) shape, plus exporting a JSON
// subtree directly from a node's byte offset.
//
// Grounded 1:1 on original_source/core/src/export.rs's export() dispatcher
// and its per-combination helpers.
package export

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/sec-view/datalens/internal/columnar"
	"github.com/sec-view/datalens/internal/coreerr"
	"github.com/sec-view/datalens/internal/jsonscan"
	"github.com/sec-view/datalens/internal/linepager"
	"github.com/sec-view/datalens/internal/model"
)

// HitIDsFunc resolves a finished/running scan-all task's accumulated hit
// ids, used for ExportSearchTask requests (internal/tasks.Manager.AllHitRecordIDs).
type HitIDsFunc func(taskID string) ([]uint64, error)

// Run dispatches req against sessionPath/sessionFormat, writing outFormat
// to outputPath and returning how many records were written.
func Run(req model.ExportRequest, sessionPath string, sessionFormat model.FileFormat, outFormat model.ExportFormat, outputPath string, hitIDs HitIDsFunc) (model.ExportResult, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return model.ExportResult{}, coreerr.IoErrorf(err, "creating output directory for %s", outputPath)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return model.ExportResult{}, coreerr.IoErrorf(err, "creating %s", outputPath)
	}
	defer out.Close()
	w := bufio.NewWriter(out)
	defer w.Flush()

	if req.Kind == model.ExportJSONSubtree {
		if sessionFormat != model.Json {
			return model.ExportResult{}, coreerr.UnsupportedFormatf("json subtree export requires a json session")
		}
		if outFormat == model.ExportCSV {
			return model.ExportResult{}, coreerr.InvalidArgf("json subtree export cannot target csv")
		}
		n, err := exportJSONSubtree(sessionPath, req, outFormat, w)
		if err != nil {
			return model.ExportResult{}, err
		}
		if err := w.Flush(); err != nil {
			return model.ExportResult{}, coreerr.IoErrorf(err, "flushing %s", outputPath)
		}
		return model.ExportResult{OutputPath: outputPath, RecordsWritten: n}, nil
	}

	ids, err := resolveIDs(req, hitIDs)
	if err != nil {
		return model.ExportResult{}, err
	}
	ids = normalizeIDs(ids)
	if len(ids) == 0 {
		return model.ExportResult{OutputPath: outputPath, RecordsWritten: 0}, nil
	}

	n, err := dispatch(sessionPath, sessionFormat, outFormat, ids, w)
	if err != nil {
		return model.ExportResult{}, err
	}
	if err := w.Flush(); err != nil {
		return model.ExportResult{}, coreerr.IoErrorf(err, "flushing %s", outputPath)
	}
	return model.ExportResult{OutputPath: outputPath, RecordsWritten: n}, nil
}

func resolveIDs(req model.ExportRequest, hitIDs HitIDsFunc) ([]uint64, error) {
	switch req.Kind {
	case model.ExportSelection:
		return req.RecordIDs, nil
	case model.ExportSearchTask:
		if hitIDs == nil {
			return nil, coreerr.InvalidArgf("search task export requested but no task lookup was provided")
		}
		return hitIDs(req.TaskID)
	default:
		return nil, coreerr.InvalidArgf("unsupported export request kind")
	}
}

// normalizeIDs sorts and dedups ids, matching export.rs's normalize_ids
// (BTreeSet semantics).
func normalizeIDs(ids []uint64) []uint64 {
	set := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	out := make([]uint64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func dispatch(sessionPath string, sessionFormat model.FileFormat, outFormat model.ExportFormat, ids []uint64, w *bufio.Writer) (uint64, error) {
	switch {
	case sessionFormat == model.Jsonl && (outFormat == model.ExportJSONL || outFormat == model.ExportCSV):
		return exportLinesPassthrough(sessionPath, ids, w)
	case sessionFormat == model.Jsonl && outFormat == model.ExportJSON:
		return exportJSONLToJSONArray(sessionPath, ids, w)
	case sessionFormat == model.Csv && outFormat == model.ExportCSV:
		return exportLinesPassthrough(sessionPath, ids, w)
	case sessionFormat == model.Csv && outFormat == model.ExportJSONL:
		return exportCSVToJSONL(sessionPath, ids, w)
	case sessionFormat == model.Csv && outFormat == model.ExportJSON:
		return exportCSVToJSON(sessionPath, ids, w)
	case sessionFormat == model.Json && outFormat == model.ExportJSONL:
		return exportJSONToJSONL(sessionPath, ids, w)
	case sessionFormat == model.Json && outFormat == model.ExportJSON:
		return exportJSONToJSON(sessionPath, ids, w)
	case sessionFormat == model.Parquet && outFormat == model.ExportJSONL:
		return exportParquetTo(sessionPath, ids, w, false)
	case sessionFormat == model.Parquet && outFormat == model.ExportJSON:
		return exportParquetTo(sessionPath, ids, w, true)
	default:
		return 0, coreerr.UnsupportedFormatf("export from %s to export format %d is not supported", sessionFormat, outFormat)
	}
}

// exportLinesPassthrough copies the exact bytes of each selected line,
// normalizing line endings to a single trailing '\n' (stripping a CR
// immediately before it), matching export.rs's normalize_line_ending.
func exportLinesPassthrough(sessionPath string, ids []uint64, w io.Writer) (uint64, error) {
	var n uint64
	for _, id := range ids {
		line, ok, err := rawLineByID(sessionPath, id)
		if err != nil {
			return n, err
		}
		if !ok {
			continue
		}
		if _, err := w.Write([]byte(line)); err != nil {
			return n, coreerr.IoErrorf(err, "writing export output")
		}
		if _, err := w.Write([]byte("\n")); err != nil {
			return n, coreerr.IoErrorf(err, "writing export output")
		}
		n++
	}
	return n, nil
}

func exportJSONLToJSONArray(sessionPath string, ids []uint64, w io.Writer) (uint64, error) {
	if _, err := w.Write([]byte("[")); err != nil {
		return 0, coreerr.IoErrorf(err, "writing export output")
	}
	var n uint64
	for _, id := range ids {
		line, ok, err := rawLineByID(sessionPath, id)
		if err != nil {
			return n, err
		}
		if !ok {
			continue
		}
		if n > 0 {
			if _, err := w.Write([]byte(",")); err != nil {
				return n, coreerr.IoErrorf(err, "writing export output")
			}
		}
		if _, err := w.Write([]byte(line)); err != nil {
			return n, coreerr.IoErrorf(err, "writing export output")
		}
		n++
	}
	if _, err := w.Write([]byte("]")); err != nil {
		return n, coreerr.IoErrorf(err, "writing export output")
	}
	return n, nil
}

func exportCSVToJSONL(sessionPath string, ids []uint64, w io.Writer) (uint64, error) {
	header, err := linepager.ReadCSVHeader(sessionPath)
	if err != nil {
		return 0, err
	}
	var n uint64
	for _, id := range ids {
		if id == 0 {
			continue // header row is never selectable, matches export.rs
		}
		fields, ok, err := csvFieldsByID(sessionPath, id)
		if err != nil {
			return n, err
		}
		if !ok {
			continue
		}
		obj := csvRowToObject(header, fields)
		b, err := json.Marshal(obj)
		if err != nil {
			return n, coreerr.IoErrorf(err, "marshaling csv row")
		}
		if _, err := w.Write(append(b, '\n')); err != nil {
			return n, coreerr.IoErrorf(err, "writing export output")
		}
		n++
	}
	return n, nil
}

func exportCSVToJSON(sessionPath string, ids []uint64, w io.Writer) (uint64, error) {
	header, err := linepager.ReadCSVHeader(sessionPath)
	if err != nil {
		return 0, err
	}
	if _, err := w.Write([]byte("[")); err != nil {
		return 0, coreerr.IoErrorf(err, "writing export output")
	}
	var n uint64
	for _, id := range ids {
		if id == 0 {
			continue
		}
		fields, ok, err := csvFieldsByID(sessionPath, id)
		if err != nil {
			return n, err
		}
		if !ok {
			continue
		}
		obj := csvRowToObject(header, fields)
		b, err := json.Marshal(obj)
		if err != nil {
			return n, coreerr.IoErrorf(err, "marshaling csv row")
		}
		if n > 0 {
			w.Write([]byte(","))
		}
		if _, err := w.Write(b); err != nil {
			return n, coreerr.IoErrorf(err, "writing export output")
		}
		n++
	}
	if _, err := w.Write([]byte("]")); err != nil {
		return n, coreerr.IoErrorf(err, "writing export output")
	}
	return n, nil
}

// exportJSONToJSONL and exportJSONToJSON stream each selected root-array
// value directly from source to destination via jsonscan, never
// materializing the value as a Go object (export.rs's export_json_stream).
func exportJSONToJSONL(sessionPath string, ids []uint64, w io.Writer) (uint64, error) {
	var n uint64
	for _, id := range ids {
		ok, err := streamJSONValueByID(sessionPath, id, w)
		if err != nil {
			return n, err
		}
		if !ok {
			continue
		}
		if _, err := w.Write([]byte("\n")); err != nil {
			return n, coreerr.IoErrorf(err, "writing export output")
		}
		n++
	}
	return n, nil
}

func exportJSONToJSON(sessionPath string, ids []uint64, w io.Writer) (uint64, error) {
	if _, err := w.Write([]byte("[")); err != nil {
		return 0, coreerr.IoErrorf(err, "writing export output")
	}
	var n uint64
	for _, id := range ids {
		if n > 0 {
			if _, err := w.Write([]byte(",")); err != nil {
				return n, coreerr.IoErrorf(err, "writing export output")
			}
		}
		ok, err := streamJSONValueByID(sessionPath, id, w)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	if _, err := w.Write([]byte("]")); err != nil {
		return n, coreerr.IoErrorf(err, "writing export output")
	}
	return n, nil
}

func exportParquetTo(sessionPath string, ids []uint64, w io.Writer, asJSONArray bool) (uint64, error) {
	rs, err := columnar.Open(sessionPath)
	if err != nil {
		return 0, err
	}
	defer rs.Close()

	total, err := rs.RowCount()
	if err != nil {
		return 0, err
	}

	if asJSONArray {
		if _, err := w.Write([]byte("[")); err != nil {
			return 0, coreerr.IoErrorf(err, "writing export output")
		}
	}
	var n uint64
	for _, id := range ids {
		if int64(id) >= total {
			continue // out-of-range row ids are silently skipped, matching the original
		}
		row, err := rs.ReadRow(int64(id))
		if err != nil {
			continue
		}
		b, err := columnar.RowRawJSON(row)
		if err != nil {
			continue
		}
		if asJSONArray && n > 0 {
			w.Write([]byte(","))
		}
		if _, err := w.Write([]byte(b)); err != nil {
			return n, coreerr.IoErrorf(err, "writing export output")
		}
		if !asJSONArray {
			w.Write([]byte("\n"))
		}
		n++
	}
	if asJSONArray {
		if _, err := w.Write([]byte("]")); err != nil {
			return n, coreerr.IoErrorf(err, "writing export output")
		}
	}
	return n, nil
}

// exportJSONSubtree exports the value at req.SubtreeMeta.ByteOffset
// (optionally just its children rather than the node itself) from a json
// session, streaming it directly rather than loading it into memory.
func exportJSONSubtree(sessionPath string, req model.ExportRequest, outFormat model.ExportFormat, w io.Writer) (uint64, error) {
	f, err := os.Open(sessionPath)
	if err != nil {
		return 0, coreerr.IoErrorf(err, "opening %s", sessionPath)
	}
	defer f.Close()
	if _, err := f.Seek(int64(req.SubtreeMeta.ByteOffset), io.SeekStart); err != nil {
		return 0, coreerr.IoErrorf(err, "seeking %s", sessionPath)
	}
	br := bufio.NewReader(f)

	if !req.SubtreeChildren {
		if outFormat == model.ExportJSONL {
			if req.SubtreeIncludeRoot {
				if _, err := jsonscan.Scan(br, jsonscan.Capture{Enabled: true, Writer: w}, 0); err != nil {
					return 0, err
				}
				w.Write([]byte("\n"))
				return 1, nil
			}
		}
		if _, err := jsonscan.Scan(br, jsonscan.Capture{Enabled: true, Writer: w}, 0); err != nil {
			return 0, err
		}
		return 1, nil
	}

	// Children export: walk the container at the offset and stream each
	// child value, one per line (JSONL) or as a JSON array.
	if err := jsonscan.SkipWS(br); err != nil {
		return 0, err
	}
	b, err := br.Peek(1)
	if err != nil {
		return 0, coreerr.IoErrorf(err, "reading %s", sessionPath)
	}
	if b[0] != '{' && b[0] != '[' {
		return 0, coreerr.InvalidArgf("children export requires an object or array node")
	}
	br.Discard(1)

	wantArray := outFormat == model.ExportJSON
	if wantArray {
		if _, err := w.Write([]byte("[")); err != nil {
			return 0, coreerr.IoErrorf(err, "writing export output")
		}
	}
	var n uint64
	isObject := b[0] == '{'
	for {
		if err := jsonscan.SkipWS(br); err != nil {
			return n, err
		}
		pb, perr := br.Peek(1)
		if perr == io.EOF {
			break
		}
		if perr != nil {
			return n, coreerr.IoErrorf(perr, "reading %s", sessionPath)
		}
		if pb[0] == '}' || pb[0] == ']' {
			break
		}
		if pb[0] == ',' {
			br.Discard(1)
			continue
		}
		if isObject {
			if _, err := jsonscan.Scan(br, jsonscan.Capture{}, 0); err != nil { // key
				return n, err
			}
			if err := jsonscan.SkipWS(br); err != nil {
				return n, err
			}
			colon, err := br.ReadByte()
			if err != nil || colon != ':' {
				return n, coreerr.InvalidArgf("malformed object during children export")
			}
			if err := jsonscan.SkipWS(br); err != nil {
				return n, err
			}
		}
		if wantArray && n > 0 {
			w.Write([]byte(","))
		}
		if _, err := jsonscan.Scan(br, jsonscan.Capture{Enabled: true, Writer: w}, 0); err != nil {
			return n, err
		}
		if !wantArray {
			w.Write([]byte("\n"))
		}
		n++
	}
	if wantArray {
		if _, err := w.Write([]byte("]")); err != nil {
			return n, coreerr.IoErrorf(err, "writing export output")
		}
	}
	return n, nil
}

// rawLineByID reads exactly the byte range of the line-formatted (JSONL or
// CSV) record with the given line number, trimming its trailing newline.
func rawLineByID(path string, id uint64) (string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, coreerr.IoErrorf(err, "opening %s", path)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var lineNo uint64
	for {
		line, err := br.ReadString('\n')
		if len(line) == 0 && err == io.EOF {
			return "", false, nil
		}
		if lineNo == id {
			trimmed := line
			for len(trimmed) > 0 && (trimmed[len(trimmed)-1] == '\n' || trimmed[len(trimmed)-1] == '\r') {
				trimmed = trimmed[:len(trimmed)-1]
			}
			return trimmed, true, nil
		}
		lineNo++
		if err == io.EOF {
			return "", false, nil
		}
		if err != nil {
			return "", false, coreerr.IoErrorf(err, "reading %s", path)
		}
	}
}

func streamJSONValueByID(path string, id uint64, w io.Writer) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, coreerr.IoErrorf(err, "opening %s", path)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	if err := jsonscan.SkipBOMAndWS(br); err != nil {
		return false, coreerr.IoErrorf(err, "reading %s", path)
	}
	if b, err := br.Peek(1); err == nil && b[0] == '[' {
		br.Discard(1)
	}

	var idx uint64
	for {
		if err := jsonscan.SkipWS(br); err != nil {
			return false, err
		}
		pb, perr := br.Peek(1)
		if perr == io.EOF || (perr == nil && pb[0] == ']') {
			return false, nil
		}
		if perr == nil && pb[0] == ',' {
			br.Discard(1)
			continue
		}
		if idx == id {
			_, err := jsonscan.Scan(br, jsonscan.Capture{Enabled: true, Writer: w}, 0)
			return err == nil, err
		}
		if _, err := jsonscan.Scan(br, jsonscan.Capture{}, 0); err != nil {
			return false, err
		}
		idx++
	}
}

// csvFieldsByID returns the parsed cells of the CSV data row at id, streaming
// encoding/csv.Reader over the whole file so a quoted cell's embedded
// newline never splits one row into two (the same record-aware reading
// internal/linepager's CSV pager does). id counts data rows starting at 1;
// id 0 is the header and is handled by callers before reaching here.
func csvFieldsByID(path string, id uint64) ([]string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, coreerr.IoErrorf(err, "opening %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var rowNo uint64
	for {
		fields, err := r.Read()
		if err == io.EOF {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, coreerr.IoErrorf(err, "reading %s", path)
		}
		if rowNo == id {
			return fields, true, nil
		}
		rowNo++
	}
}

// csvRowToObject mirrors export.rs's csv_line_to_object: cells map
// positionally onto header names; any extra cells beyond len(header) are
// collected into an "__extra__" array instead of being dropped.
func csvRowToObject(header []string, cells []string) map[string]any {
	obj := make(map[string]any, len(header)+1)
	for i, h := range header {
		if i < len(cells) {
			obj[h] = cells[i]
		} else {
			obj[h] = ""
		}
	}
	if len(cells) > len(header) {
		extra := append([]string(nil), cells[len(header):]...)
		obj["__extra__"] = extra
	}
	return obj
}
