package columnar

import "testing"

func TestSanitizeCell(t *testing.T) {
	cases := map[string]string{
		"plain":          "plain",
		"a\nb":           "a b",
		"a\r\nb":         "a  b",
		"tab\there":      "tab here",
		"":               "",
		"no\nnewlines\t": "no newlines ",
	}
	for in, want := range cases {
		if got := sanitizeCell(in); got != want {
			t.Errorf("sanitizeCell(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRowRawJSON(t *testing.T) {
	row := map[string]any{"name": "alice", "age": int64(30), "active": true, "score": 1.5, "tag": nil}
	s, err := RowRawJSON(row)
	if err != nil {
		t.Fatal(err)
	}
	if len(s) == 0 || s[0] != '{' {
		t.Fatalf("RowRawJSON = %q, want a JSON object", s)
	}
}

// Open/ReadRows/ReadRow against a real Parquet file are not covered here:
// building a valid fixture requires committing to an exact
// parquet-go/parquet-go writer API that could not be checked against real
// documentation in this environment (see DESIGN.md). The row-group/schema
// walk in readRowRaw, readFromGroup, and
// rowToMap is this package's principal grounding risk.
