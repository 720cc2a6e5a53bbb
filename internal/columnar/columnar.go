// Package columnar provides the opaque row source contract for Parquet
// files (spec.md §9's redesign flag: treat columnar formats as an opaque
// row source behind a narrow interface rather than building a full
// columnar engine -- this module never exposes column-level operations,
// only row-at-offset paging and raw-row rendering).
//
// original_source/core/src/formats/parquet.rs backs this with DuckDB in
// Rust; no DuckDB binding exists anywhere in the example pack, so this
// package substitutes the grounded ecosystem alternative for a native Go
// Parquet reader, github.com/parquet-go/parquet-go (its lineage is
// represented in the pack via a vendored segmentio/parquet-go fork inside
// grafana-tempo's vendor tree).
package columnar

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/parquet-go/parquet-go"

	"github.com/sec-view/datalens/internal/coreerr"
)

// RowSource is the narrow contract every caller (pager, search, export)
// sees: row count, a row range read, and a single raw-row render. Nothing
// here exposes columns, predicates, or schemas -- that scope is explicitly
// out (spec.md Non-goals: statistics/aggregation, schema inference beyond
// a header row).
type RowSource interface {
	RowCount() (int64, error)
	ReadRows(start, limit int64) ([]map[string]any, error)
	ReadRow(idx int64) (map[string]any, error)
	Close() error
}

type reader struct {
	path string
	f    *os.File
	file *parquet.File
	rows int64
}

func (r *reader) Close() error {
	if r.f != nil {
		return r.f.Close()
	}
	return nil
}

// cacheMu/cache hold a small set of recently-opened readers so repeated
// page requests against the same session don't reopen and re-parse the
// Parquet footer every call.
var (
	cacheMu sync.Mutex
	cache   = newSchemaCache(4)
)

// cachedSource is what Open hands out: the cache owns the underlying
// reader and closes it on eviction, so Close on the handle is a no-op.
type cachedSource struct{ *reader }

func (cachedSource) Close() error { return nil }

// Open returns a RowSource for path, reusing a cached reader when one is
// already warm.
func Open(path string) (RowSource, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	if r, ok := cache.get(path); ok {
		return cachedSource{r}, nil
	}
	r, err := openFresh(path)
	if err != nil {
		return nil, err
	}
	cache.add(path, r)
	return cachedSource{r}, nil
}

func openFresh(path string) (*reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, coreerr.IoErrorf(err, "opening parquet file %s", path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, coreerr.IoErrorf(err, "statting parquet file %s", path)
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		f.Close()
		return nil, coreerr.IoErrorf(err, "parsing parquet footer for %s", path)
	}
	return &reader{path: path, f: f, file: pf, rows: pf.NumRows()}, nil
}

func (r *reader) RowCount() (int64, error) {
	return r.rows, nil
}

func (r *reader) ReadRows(start, limit int64) ([]map[string]any, error) {
	if start < 0 || start > r.rows {
		return nil, coreerr.InvalidArgf("row start %d out of range [0,%d]", start, r.rows)
	}
	end := start + limit
	if end > r.rows {
		end = r.rows
	}
	out := make([]map[string]any, 0, end-start)
	for i := start; i < end; i++ {
		row, err := r.readRowRaw(i)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

func (r *reader) ReadRow(idx int64) (map[string]any, error) {
	if idx < 0 || idx >= r.rows {
		return nil, coreerr.InvalidArgf("row index %d out of range", idx)
	}
	return r.readRowRaw(idx)
}

// readRowRaw reads exactly one row by absolute index, locating its row
// group by cumulative row count and rendering it as a JSON-ready map.
func (r *reader) readRowRaw(idx int64) (map[string]any, error) {
	var cum int64
	for _, g := range r.file.RowGroups() {
		n := g.NumRows()
		if idx < cum+n {
			return readFromGroup(g, idx-cum)
		}
		cum += n
	}
	return nil, coreerr.InvalidArgf("row index %d not found in any row group", idx)
}

func readFromGroup(g parquet.RowGroup, local int64) (map[string]any, error) {
	rows := g.Rows()
	defer rows.Close()
	if err := rows.SeekToRow(local); err != nil {
		return nil, coreerr.IoErrorf(err, "seeking to row %d", local)
	}
	buf := make([]parquet.Row, 1)
	n, err := rows.ReadRows(buf)
	if n == 0 || err != nil {
		return nil, coreerr.IoErrorf(err, "reading row %d", local)
	}
	return rowToMap(buf[0], g.Schema()), nil
}

func rowToMap(row parquet.Row, schema *parquet.Schema) map[string]any {
	leaves := schema.Columns()
	out := make(map[string]any, len(leaves))
	for _, v := range row {
		col := v.Column()
		if col < 0 || col >= len(leaves) {
			continue
		}
		path := leaves[col]
		name := path[len(path)-1]
		out[name] = valueToAny(v)
	}
	return out
}

func valueToAny(v parquet.Value) any {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return v.Int32()
	case parquet.Int64:
		return v.Int64()
	case parquet.Float:
		return v.Float()
	case parquet.Double:
		return v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return sanitizeCell(string(v.ByteArray()))
	default:
		return sanitizeCell(v.String())
	}
}

// sanitizeCell replaces raw newlines/tabs/CRs with a single space, matching
// tasks.rs::sanitize_cell, so a Parquet cell's raw text never breaks a
// single-line preview.
func sanitizeCell(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\n', '\r', '\t':
			out[i] = ' '
		default:
			out[i] = s[i]
		}
	}
	return string(out)
}

// RowRawJSON renders a row as a compact JSON object string, the shape used
// for both Record.Raw and the columnar exporter.
func RowRawJSON(row map[string]any) (string, error) {
	b, err := json.Marshal(row)
	if err != nil {
		return "", coreerr.IoErrorf(err, "marshaling parquet row")
	}
	return string(b), nil
}
