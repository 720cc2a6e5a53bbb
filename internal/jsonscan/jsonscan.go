// Package jsonscan implements the single shared JSON byte-scanner every
// JSON-aware component in this module builds on: the page reader
// (internal/jsonpager), the tree walker (internal/jsontree), the scan-all
// search worker (internal/tasks), and the JSON exporter (internal/export).
//
// spec.md §9's redesign flag calls out exactly this consolidation: the
// original Rust (original_source/core/src/formats/json.rs,
// core/src/tasks.rs, core/src/export.rs) carries three near-identical
// copies of the same depth/string/escape state machine, one per caller.
// This package is grounded on that state machine (scan_one_json_value) and
// on the teacher's pre-deletion findJSONValueEnd, collapsed into one
// primitive parameterized by a capture policy.
//
// Byte pushback: the Rust original unreads a byte via
// Seek::seek(SeekFrom::Current(-1)) directly against a BufReader<File>.
// Go's bufio.Reader has no Seek, but it has exactly the operation this
// scanner needs -- UnreadByte, which undoes the single most recent
// ReadByte. The scanner below reads one byte at a time through a
// *bufio.Reader and uses UnreadByte for every case the original used
// unread_one, which is simpler and more idiomatic than reimplementing
// Seek-based pushback or a custom ring buffer.
package jsonscan

import (
	"bufio"
	"io"

	"github.com/sec-view/datalens/internal/coreerr"
)

// Capture controls how much of a scanned value's bytes the scanner
// retains, mirroring scan_one_json_value's optional capture_max_bytes.
type Capture struct {
	// Enabled turns capture on. When false, Scan only tracks length and
	// writes nothing.
	Enabled bool
	// MaxBytes caps how many bytes are retained (0 is treated as
	// unlimited within the scan's own MaxValueBytes ceiling).
	MaxBytes int
	// Writer, if non-nil, receives captured bytes as they're scanned
	// instead of their being accumulated in Result.Captured -- used by the
	// streaming exporter.
	Writer io.Writer
}

// Result is what one Scan call reports about the value it consumed.
type Result struct {
	// Captured holds the scanned bytes, subject to Capture.MaxBytes, when
	// Capture.Enabled and no Writer was supplied.
	Captured []byte
	// TotalLenBytes is the full length of the value as it appears in the
	// source, even when Captured was truncated by MaxBytes.
	TotalLenBytes int64
}

// ignorable head bytes the scanner skips before a value begins: NUL,
// space, newline, carriage return, tab. Matches
// formats/json.rs::is_ignorable_head_byte.
func isIgnorable(b byte) bool {
	switch b {
	case 0x00, ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}

// SkipBOMAndWS consumes a leading UTF-8 BOM (if present at the current
// position) followed by any run of ignorable bytes. Call this once before
// the first value of a document.
func SkipBOMAndWS(r *bufio.Reader) error {
	bom, err := r.Peek(3)
	if err == nil && len(bom) == 3 && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		if _, err := r.Discard(3); err != nil {
			return err
		}
	}
	return SkipWS(r)
}

// SkipWS consumes a run of ignorable bytes (NUL/space/newline/CR/tab).
func SkipWS(r *bufio.Reader) error {
	for {
		b, err := r.ReadByte()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if !isIgnorable(b) {
			return r.UnreadByte()
		}
	}
}

// MaxValueBytes bounds a single scanned value to defend against
// pathological input (matches original_source's MAX_JSON_VALUE_BYTES).
const MaxValueBytes = 50 * 1024 * 1024

// Scan consumes exactly one JSON value (object, array, string, number,
// bool, or null) starting at the reader's current position, and returns
// its length/captured bytes per cap. It applies the original's two
// special rules:
//
//   - a comma encountered at depth 0 terminates the value and is NOT
//     consumed (pushed back), so callers can distinguish "," from "]"/EOF;
//   - a primitive value (number/bool/null/string) is terminated by
//     peeking at the next byte rather than consuming a delimiter, so the
//     delimiter is left for the caller exactly like a closing brace/bracket
//     would be.
//
// maxBytes bounds the scan itself (not just capture); exceeding it returns
// an InvalidArg error, matching the original's behavior under
// get_record_raw's rescan cap.
func Scan(r *bufio.Reader, capture Capture, maxBytes int) (Result, error) {
	if maxBytes <= 0 {
		maxBytes = MaxValueBytes
	}

	var (
		depth    int
		inString bool
		escape   bool
		started  bool
		total    int64
		kept     int
	)

	var result Result

	appendByte := func(b byte) error {
		total++
		if total > int64(maxBytes) {
			return coreerr.InvalidArgf("json value exceeds %d bytes", maxBytes)
		}
		if !capture.Enabled {
			return nil
		}
		if capture.Writer != nil {
			if capture.MaxBytes == 0 || kept < capture.MaxBytes {
				if _, err := capture.Writer.Write([]byte{b}); err != nil {
					return coreerr.IoErrorf(err, "writing captured json bytes")
				}
				kept++
			}
			return nil
		}
		if capture.MaxBytes == 0 || len(result.Captured) < capture.MaxBytes {
			result.Captured = append(result.Captured, b)
		}
		return nil
	}

	for {
		b, err := r.ReadByte()
		if err == io.EOF {
			if !started {
				return result, io.EOF
			}
			break
		}
		if err != nil {
			return result, coreerr.IoErrorf(err, "reading json byte")
		}

		if !started {
			if isIgnorable(b) {
				continue
			}
			started = true
		}

		if inString {
			if err := appendByte(b); err != nil {
				return result, err
			}
			if escape {
				escape = false
				continue
			}
			switch b {
			case '\\':
				escape = true
			case '"':
				inString = false
				if depth == 0 {
					goto done
				}
			}
			continue
		}

		switch b {
		case '"':
			inString = true
			if err := appendByte(b); err != nil {
				return result, err
			}
		case '{', '[':
			depth++
			if err := appendByte(b); err != nil {
				return result, err
			}
		case '}', ']':
			depth--
			if err := appendByte(b); err != nil {
				return result, err
			}
			if depth == 0 {
				goto done
			}
			if depth < 0 {
				return result, coreerr.InvalidArgf("unbalanced json structure")
			}
		case ',':
			if depth == 0 {
				// Comma at depth 0 terminates the value; push it back
				// unconsumed so the caller sees it as the next token.
				if err := r.UnreadByte(); err != nil {
					return result, err
				}
				goto done
			}
			if err := appendByte(b); err != nil {
				return result, err
			}
		default:
			if err := appendByte(b); err != nil {
				return result, err
			}
			if depth == 0 {
				// Primitive value: terminate by peeking the next byte
				// rather than consuming a delimiter.
				nb, perr := r.Peek(1)
				if perr == io.EOF || (perr == nil && (nb[0] == ',' || nb[0] == ']' || nb[0] == '}' || isIgnorable(nb[0]))) {
					goto done
				}
				if perr != nil && perr != io.EOF {
					return result, coreerr.IoErrorf(perr, "peeking json byte")
				}
			}
		}
	}

done:
	result.TotalLenBytes = total
	return result, nil
}
