// Adapted near-verbatim from the teacher's app/fileloader/headers.go: Excel-
// style column naming for CSV files whose header row contains blank cells,
// used when building the raw key/value view of a CSV record (spec.md §4.c).
// Duplicate header names are left as they are.
package linepager

import "strings"

// excelColumnName renders a 0-based column index as an Excel-style column
// name: 0->A, 1->B, ..., 25->Z, 26->AA, 27->AB, ...
func excelColumnName(index int) string {
	name := ""
	n := index + 1
	for n > 0 {
		n--
		name = string(rune('A'+(n%26))) + name
		n /= 26
	}
	return name
}

// NormalizeHeaders replaces empty or whitespace-only header cells with a
// generated Unnamed_<Column> placeholder, leaving non-blank headers as-is.
func NormalizeHeaders(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		if strings.TrimSpace(h) == "" {
			out[i] = "Unnamed_" + excelColumnName(i)
		} else {
			out[i] = h
		}
	}
	return out
}
