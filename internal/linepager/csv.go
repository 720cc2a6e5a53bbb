// CSV paging is genuinely record-aware, the behaviour spec.md §9
// recommends: it streams encoding/csv.Reader directly over the file instead
// of splitting on raw '\n' bytes first, so a quoted cell containing a
// literal newline is still one record, not two. encoding/csv.Reader.
// InputOffset reports the byte offset of the reader's current position in
// its underlying input, which is what lets byte_offset/byte_len stay exact
// per row despite that. Each row's raw field holds a JSON object keyed by
// header, with ragged rows folding extra cells into an "__extra__" array,
// matching original_source/core/src/export.rs's csv_line_to_object rule for
// the line-format CSV pager as well, not just export.
package linepager

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"

	"github.com/sec-view/datalens/internal/coreerr"
	"github.com/sec-view/datalens/internal/cursor"
	"github.com/sec-view/datalens/internal/model"
	"github.com/sec-view/datalens/internal/textutil"
)

// ReadCSVHeader parses just the first record of path as a CSV header row,
// normalizing blank cells via NormalizeHeaders.
func ReadCSVHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, coreerr.IoErrorf(err, "opening %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, coreerr.InvalidArgf("parsing csv header: %v", err)
	}
	return NormalizeHeaders(header), nil
}

// ReadCSVPage returns a page of CSV data rows (never the header row), each
// with its raw field holding a JSON object keyed by header, generated the
// same way csv_line_to_object builds it for export.
func ReadCSVPage(path string, header []string, cur cursor.Cursor, opts Options) (model.RecordPage, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.RecordPage{}, coreerr.IoErrorf(err, "opening %s", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return model.RecordPage{}, coreerr.IoErrorf(err, "statting %s", path)
	}
	fileLen := uint64(info.Size())

	baseOffset := cur.Offset
	lineNo := cur.Line
	if cur == cursor.Zero {
		headerEnd, err := csvHeaderEndOffset(f)
		if err != nil {
			return model.RecordPage{}, err
		}
		if headerEnd >= fileLen {
			return model.RecordPage{Records: nil, ReachedEOF: true}, nil
		}
		baseOffset = headerEnd
		lineNo = 1
	}
	if baseOffset > fileLen {
		return model.RecordPage{}, coreerr.BadCursorf(nil, "offset %d beyond file length %d", baseOffset, fileLen)
	}
	if _, err := f.Seek(int64(baseOffset), io.SeekStart); err != nil {
		return model.RecordPage{}, coreerr.IoErrorf(err, "seeking %s to %d", path, baseOffset)
	}

	cr := &countingReader{r: f}
	r := csv.NewReader(cr)
	r.FieldsPerRecord = -1

	var records []model.Record
	lastEnd := baseOffset
	reachedEOF := false
	for len(records) < opts.PageSize {
		startRel := uint64(r.InputOffset())
		fields, rerr := r.Read()
		if rerr == io.EOF {
			reachedEOF = true
			break
		}
		if rerr != nil {
			return model.RecordPage{}, coreerr.IoErrorf(rerr, "reading csv %s", path)
		}
		endRel := uint64(r.InputOffset())

		rawBytes, _ := trimLineEnding(cr.buf[startRel:endRel], endRel-startRel)
		preview := textutil.TruncateCharsForceEllipsis(rawBytes, opts.PreviewMaxChars, false)

		var raw *string
		if opts.RawMaxChars > 0 {
			obj := csvRowToObject(header, fields)
			if b, merr := json.Marshal(obj); merr == nil {
				s := string(b)
				raw = &s
			}
		}

		records = append(records, model.Record{
			ID:      lineNo,
			Preview: preview,
			Raw:     raw,
			Meta: model.RecordMeta{
				LineNo:     lineNo,
				ByteOffset: baseOffset + startRel,
				ByteLen:    endRel - startRel,
			},
		})

		lastEnd = baseOffset + endRel
		lineNo++
	}

	reachedEOF = reachedEOF || len(records) == 0 || lastEnd >= fileLen
	page := model.RecordPage{Records: records, ReachedEOF: reachedEOF}
	if !reachedEOF {
		page.NextCursor = cursor.Encode(cursor.Cursor{Offset: lastEnd, Line: lineNo})
	}
	return page, nil
}

// csvHeaderEndOffset seeks f to the start of the file, reads its first CSV
// record (the header) and reports the byte offset right after it, so the
// caller can resume the body from there without reparsing the header.
func csvHeaderEndOffset(f *os.File) (uint64, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, coreerr.IoErrorf(err, "seeking to csv header")
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	if _, err := r.Read(); err != nil {
		return 0, coreerr.IoErrorf(err, "reading csv header")
	}
	return uint64(r.InputOffset()), nil
}

// countingReader wraps an io.Reader, accumulating every byte physically
// read from it. Because csv.Reader.InputOffset reports positions relative
// to this same stream, slicing buf[start:end] recovers the exact raw bytes
// of any record already consumed by InputOffset.
type countingReader struct {
	r   io.Reader
	buf []byte
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.buf = append(c.buf, p[:n]...)
	}
	return n, err
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
		extra := make([]string, 0, len(cells)-len(header))
		extra = append(extra, cells[len(header):]...)
		obj["__extra__"] = extra
	}
	return obj
}
