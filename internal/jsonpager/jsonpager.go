// Package jsonpager pages a JSON source that is either a root array of
// records or a bare sequence of whitespace/comma-separated values, built on
// internal/jsonscan. Grounded on
// original_source/core/src/formats/json.rs's read_json_page_with_progress.
package jsonpager

import (
	"bufio"
	"io"
	"os"

	"github.com/sec-view/datalens/internal/coreerr"
	"github.com/sec-view/datalens/internal/cursor"
	"github.com/sec-view/datalens/internal/jsonscan"
	"github.com/sec-view/datalens/internal/model"
	"github.com/sec-view/datalens/internal/textutil"
)

// Options bounds page size and preview/raw truncation.
type Options struct {
	PageSize        int
	PreviewMaxChars int
	RawMaxChars     int
}

// ProgressFunc reports 0-100 progress while a long page scan proceeds
// (used by open_file_with_progress for the initial page of large files).
type ProgressFunc func(pct uint8)

// ReadPage returns up to opts.PageSize values from path, resuming from cur.
//
// Two cursor forms are accepted, matching the original exactly:
//   - the normal form: Offset is a byte position to seek to and resume
//     scanning from;
//   - the backward-compatible form: Offset==0 and Line>0 means "skip that
//     many values from the start first" (useful for callers that only
//     ever tracked a value count, not a byte position).
func ReadPage(path string, cur cursor.Cursor, opts Options, progress ProgressFunc) (model.RecordPage, error) {
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

	br := bufio.NewReaderSize(f, 64*1024)

	var (
		pos     uint64
		lineIdx uint64
	)

	if cur.Offset == 0 {
		if err := jsonscan.SkipBOMAndWS(br); err != nil {
			return model.RecordPage{}, coreerr.IoErrorf(err, "reading %s", path)
		}
		pos, err = currentPos(f, br)
		if err != nil {
			return model.RecordPage{}, err
		}
		if b, peekErr := br.Peek(1); peekErr == nil && b[0] == '[' {
			if _, err := br.Discard(1); err != nil {
				return model.RecordPage{}, coreerr.IoErrorf(err, "reading %s", path)
			}
			pos++
		}

		if cur.Line > 0 {
			// Backward-compatible form: skip Line values before the first
			// one we actually emit.
			for i := uint64(0); i < cur.Line; i++ {
				if err := skipOneValue(br); err != nil {
					if err == io.EOF {
						return model.RecordPage{Records: nil, ReachedEOF: true}, nil
					}
					return model.RecordPage{}, err
				}
			}
			pos, err = currentPos(f, br)
			if err != nil {
				return model.RecordPage{}, err
			}
			lineIdx = cur.Line
		}
	} else {
		if cur.Offset > fileLen {
			return model.RecordPage{}, coreerr.BadCursorf(nil, "offset %d beyond file length %d", cur.Offset, fileLen)
		}
		if _, err := f.Seek(int64(cur.Offset), io.SeekStart); err != nil {
			return model.RecordPage{}, coreerr.IoErrorf(err, "seeking %s", path)
		}
		br.Reset(f)
		pos = cur.Offset
		lineIdx = cur.Line
		if err := jsonscan.SkipWS(br); err != nil {
			return model.RecordPage{}, coreerr.IoErrorf(err, "reading %s", path)
		}
		// Tolerate a single stray leading comma on resume.
		if b, peekErr := br.Peek(1); peekErr == nil && b[0] == ',' {
			br.Discard(1)
			jsonscan.SkipWS(br)
		}
		pos, err = currentPos(f, br)
		if err != nil {
			return model.RecordPage{}, err
		}
	}

	captureMax := maxInt(opts.RawMaxChars, opts.PreviewMaxChars) * 4
	if captureMax < 1024 {
		captureMax = 1024
	}

	var records []model.Record
	reachedEOF := false

	for len(records) < opts.PageSize {
		if err := jsonscan.SkipWS(br); err != nil {
			return model.RecordPage{}, coreerr.IoErrorf(err, "reading %s", path)
		}
		pos, err = currentPos(f, br)
		if err != nil {
			return model.RecordPage{}, err
		}
		b, peekErr := br.Peek(1)
		if peekErr == io.EOF {
			reachedEOF = true
			break
		}
		if peekErr != nil {
			return model.RecordPage{}, coreerr.IoErrorf(peekErr, "reading %s", path)
		}
		if b[0] == ']' {
			reachedEOF = true
			break
		}
		if b[0] == ',' {
			br.Discard(1)
			continue
		}

		startOffset := pos
		res, err := jsonscan.Scan(br, jsonscan.Capture{Enabled: true, MaxBytes: captureMax}, 0)
		if err == io.EOF {
			reachedEOF = true
			break
		}
		if err != nil {
			return model.RecordPage{}, err
		}

		rawFull := string(res.Captured)
		truncatedByCapture := uint64(len(res.Captured)) < uint64(res.TotalLenBytes)
		preview := textutil.TruncateCharsForceEllipsis(rawFull, opts.PreviewMaxChars, truncatedByCapture)

		var raw *string
		if opts.RawMaxChars > 0 {
			r := textutil.TruncateCharsForceEllipsis(rawFull, opts.RawMaxChars, truncatedByCapture)
			raw = &r
		}

		records = append(records, model.Record{
			ID:      lineIdx,
			Preview: preview,
			Raw:     raw,
			Meta: model.RecordMeta{
				LineNo:     lineIdx,
				ByteOffset: startOffset,
				ByteLen:    uint64(res.TotalLenBytes),
			},
		})

		pos = startOffset + uint64(res.TotalLenBytes)
		lineIdx++

		if progress != nil && fileLen > 0 {
			pct := pos * 100 / fileLen
			if pct > 99 {
				pct = 99
			}
			progress(uint8(pct))
		}

		// Peek for the delimiter that follows: comma means more values,
		// ']'/EOF means we've reached the end.
		nb, nerr := br.Peek(1)
		if nerr == io.EOF {
			reachedEOF = true
			break
		}
		if nerr == nil && nb[0] == ']' {
			reachedEOF = true
			break
		}
	}

	page := model.RecordPage{Records: records, ReachedEOF: reachedEOF || len(records) == 0}
	if !page.ReachedEOF {
		page.NextCursor = cursor.Encode(cursor.Cursor{Offset: pos, Line: lineIdx})
	}
	if progress != nil {
		progress(100)
	}
	return page, nil
}

// skipOneValue scans and discards exactly one value (used only by the
// backward-compatible skip-N-values cursor form).
func skipOneValue(br *bufio.Reader) error {
	if err := jsonscan.SkipWS(br); err != nil {
		return err
	}
	if b, err := br.Peek(1); err == nil && b[0] == ',' {
		br.Discard(1)
		if err := jsonscan.SkipWS(br); err != nil {
			return err
		}
	}
	_, err := jsonscan.Scan(br, jsonscan.Capture{}, 0)
	return err
}

// currentPos reports the absolute file offset at the reader's current
// position by combining the file's real offset with the bufio.Reader's
// buffered-but-unconsumed byte count.
func currentPos(f *os.File, br *bufio.Reader) (uint64, error) {
	real, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, coreerr.IoErrorf(err, "getting file position")
	}
	return uint64(real) - uint64(br.Buffered()), nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
