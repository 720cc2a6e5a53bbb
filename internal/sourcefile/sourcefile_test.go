package sourcefile

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"
)

func TestDetectUncompressed(t *testing.T) {
	p := filepath.Join(t.TempDir(), "plain.jsonl")
	if err := os.WriteFile(p, []byte("{\"a\":1}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	comp, err := Detect(p)
	if err != nil {
		t.Fatal(err)
	}
	if comp != None {
		t.Fatalf("Detect = %v, want None", comp)
	}
}

func TestDetectGzip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "data.jsonl.gz")
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write([]byte("{\"a\":1}\n{\"a\":2}\n")); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	comp, err := Detect(p)
	if err != nil {
		t.Fatal(err)
	}
	if comp != Gzip {
		t.Fatalf("Detect = %v, want Gzip", comp)
	}
}

func TestResolveSeekableGzipRoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "data.jsonl.gz")
	want := "{\"a\":1}\n{\"a\":2}\n"
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write([]byte(want)); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	effectivePath, cleanup, err := ResolveSeekable(p)
	defer cleanup()
	if err != nil {
		t.Fatal(err)
	}
	if effectivePath == p {
		t.Fatal("expected a decompressed spool path distinct from the source")
	}

	f, err := os.Open(effectivePath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.Seek(8, 0); err != nil {
		t.Fatalf("effective path must be seekable: %v", err)
	}

	got, err := os.ReadFile(effectivePath)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != want {
		t.Fatalf("decompressed content = %q, want %q", got, want)
	}
}

func TestResolveSeekableUncompressedPassesThrough(t *testing.T) {
	p := filepath.Join(t.TempDir(), "plain.jsonl")
	if err := os.WriteFile(p, []byte("{\"a\":1}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	effectivePath, cleanup, err := ResolveSeekable(p)
	defer cleanup()
	if err != nil {
		t.Fatal(err)
	}
	if effectivePath != p {
		t.Fatalf("effectivePath = %q, want original path %q", effectivePath, p)
	}
}
