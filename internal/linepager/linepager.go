// Package linepager pages line-delimited sources (JSONL) and record-aware
// CSV by absolute byte offset, resuming from an opaque cursor.Cursor.
//
// Grounded on original_source/core/src/formats/lines.rs: seek to
// cursor.Offset, read up to page_size lines while capturing only a bounded
// prefix of each (the full line is still consumed and counted, so
// byte_offset/byte_len stay exact even when preview/raw are truncated),
// and trim trailing newline bytes before truncating to preview/raw char
// caps.
package linepager

import (
	"bufio"
	"io"
	"os"

	"github.com/sec-view/datalens/internal/coreerr"
	"github.com/sec-view/datalens/internal/cursor"
	"github.com/sec-view/datalens/internal/model"
	"github.com/sec-view/datalens/internal/textutil"
)

// Options bounds how much of each line is kept and how many lines a page
// returns.
type Options struct {
	PageSize        int
	PreviewMaxChars int
	RawMaxChars     int // 0 disables the raw field entirely
}

// ReadPage returns up to opts.PageSize records starting at cur, treating
// path as a sequence of '\n'-delimited lines. The engine uses it for
// JSONL; CSV is paged separately by ReadCSVPage in csv.go, which parses
// records with encoding/csv instead of splitting on '\n'.
func ReadPage(path string, cur cursor.Cursor, opts Options) (model.RecordPage, error) {
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
	if cur.Offset > fileLen {
		return model.RecordPage{}, coreerr.BadCursorf(nil, "offset %d beyond file length %d", cur.Offset, fileLen)
	}
	if _, err := f.Seek(int64(cur.Offset), io.SeekStart); err != nil {
		return model.RecordPage{}, coreerr.IoErrorf(err, "seeking %s to %d", path, cur.Offset)
	}

	captureLimit := maxInt(opts.PreviewMaxChars, opts.RawMaxChars, 1)*4 + 64

	br := bufio.NewReaderSize(f, 64*1024)
	offset := cur.Offset
	lineNo := cur.Line

	var records []model.Record
	for len(records) < opts.PageSize {
		prefix, nTotal, readErr := readLinePrefix(br, captureLimit)
		if nTotal == 0 && readErr == io.EOF {
			break
		}

		trimmed, truncatedByCapture := trimLineEnding(prefix, nTotal)
		preview := textutil.TruncateCharsForceEllipsis(trimmed, opts.PreviewMaxChars, truncatedByCapture)

		var raw *string
		if opts.RawMaxChars > 0 {
			r := textutil.TruncateCharsForceEllipsis(trimmed, opts.RawMaxChars, truncatedByCapture)
			raw = &r
		}

		records = append(records, model.Record{
			ID:      lineNo,
			Preview: preview,
			Raw:     raw,
			Meta: model.RecordMeta{
				LineNo:     lineNo,
				ByteOffset: offset,
				ByteLen:    nTotal,
			},
		})

		offset += nTotal
		lineNo++

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return model.RecordPage{}, coreerr.IoErrorf(readErr, "reading %s", path)
		}
	}

	reachedEOF := len(records) == 0 || offset >= fileLen
	page := model.RecordPage{Records: records, ReachedEOF: reachedEOF}
	if !reachedEOF {
		page.NextCursor = cursor.Encode(cursor.Cursor{Offset: offset, Line: lineNo})
	}
	return page, nil
}

// readLinePrefix consumes one full '\n'-terminated line (or up to EOF),
// returning up to captureLimit bytes of it and the TOTAL number of bytes
// consumed (which may exceed len(prefix)). This mirrors the original's
// read_line_prefix_bytes: byte accounting stays exact even when the
// caller only wants a bounded preview.
func readLinePrefix(br *bufio.Reader, captureLimit int) (prefix []byte, total uint64, err error) {
	for {
		chunk, e := br.ReadSlice('\n')
		if len(chunk) > 0 {
			if len(prefix) < captureLimit {
				room := captureLimit - len(prefix)
				if room > len(chunk) {
					room = len(chunk)
				}
				prefix = append(prefix, chunk[:room]...)
			}
			total += uint64(len(chunk))
		}
		if e == nil {
			return prefix, total, nil
		}
		if e == bufio.ErrBufferFull {
			continue
		}
		if e == io.EOF {
			return prefix, total, io.EOF
		}
		return prefix, total, e
	}
}

// trimLineEnding strips a trailing "\n", "\r\n", or NUL padding from a
// captured line prefix and reports whether the prefix itself (as opposed
// to the trimming) was truncated relative to the full line length.
func trimLineEnding(prefix []byte, total uint64) (string, bool) {
	truncated := uint64(len(prefix)) < total
	s := string(prefix)
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r' || s[len(s)-1] == 0) {
		s = s[:len(s)-1]
	}
	return s, truncated
}

func maxInt(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
