package linepager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sec-view/datalens/internal/cursor"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "data.jsonl")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestReadPageJSONLBasic(t *testing.T) {
	p := writeTemp(t, "{\"a\":1}\n{\"a\":2}\n{\"a\":3}\n")
	page, err := ReadPage(p, cursor.Zero, Options{PageSize: 2, PreviewMaxChars: 300, RawMaxChars: 40000})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(page.Records))
	}
	if page.ReachedEOF {
		t.Fatal("should not have reached EOF yet")
	}
	if page.Records[0].Preview != `{"a":1}` {
		t.Fatalf("preview = %q", page.Records[0].Preview)
	}

	next, err := cursor.Decode(page.NextCursor)
	if err != nil {
		t.Fatal(err)
	}
	page2, err := ReadPage(p, next, Options{PageSize: 2, PreviewMaxChars: 300, RawMaxChars: 40000})
	if err != nil {
		t.Fatal(err)
	}
	if len(page2.Records) != 1 || !page2.ReachedEOF {
		t.Fatalf("page2 = %+v", page2)
	}
	if page2.Records[0].Preview != `{"a":3}` {
		t.Fatalf("preview = %q", page2.Records[0].Preview)
	}
}

func TestReadPageCRLFTolerance(t *testing.T) {
	p := writeTemp(t, "{\"a\":1}\r\n{\"a\":2}\r\n")
	page, err := ReadPage(p, cursor.Zero, Options{PageSize: 10, PreviewMaxChars: 300, RawMaxChars: 40000})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Records) != 2 {
		t.Fatalf("got %d records", len(page.Records))
	}
	for _, r := range page.Records {
		if r.Preview[len(r.Preview)-1] == '\r' {
			t.Fatalf("trailing CR not trimmed: %q", r.Preview)
		}
	}
}

func TestReadPageBadCursor(t *testing.T) {
	p := writeTemp(t, "{}\n")
	_, err := ReadPage(p, cursor.Cursor{Offset: 1000}, Options{PageSize: 1, PreviewMaxChars: 10, RawMaxChars: 10})
	if err == nil {
		t.Fatal("expected BadCursor error for offset beyond file length")
	}
}

func TestReadCSVPage(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "data.csv")
	content := "name,age\nalice,30\nbob,25,extra1,extra2\n"
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	header, err := ReadCSVHeader(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(header) != 2 || header[0] != "name" {
		t.Fatalf("header = %v", header)
	}
	page, err := ReadCSVPage(p, header, cursor.Zero, Options{PageSize: 10, PreviewMaxChars: 300, RawMaxChars: 40000})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(page.Records))
	}
	if page.Records[1].Raw == nil {
		t.Fatal("expected raw JSON for ragged row")
	}
}
