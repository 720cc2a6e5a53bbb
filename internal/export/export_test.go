package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sec-view/datalens/internal/model"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestExportSelectionJSONLToJSONArray(t *testing.T) {
	src := writeTemp(t, "in.jsonl", "{\"a\":1}\n{\"a\":2}\n{\"a\":3}\n")
	out := filepath.Join(t.TempDir(), "sub", "out.json")

	res, err := Run(
		model.ExportRequest{Kind: model.ExportSelection, RecordIDs: []uint64{0, 2}},
		src, model.Jsonl, model.ExportJSON, out, nil,
	)
	if err != nil {
		t.Fatal(err)
	}
	if res.RecordsWritten != 2 {
		t.Fatalf("RecordsWritten = %d, want 2", res.RecordsWritten)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `[{"a":1},{"a":3}]` {
		t.Fatalf("output = %q", b)
	}
}

func TestExportSearchTaskUsesHitIDs(t *testing.T) {
	src := writeTemp(t, "in.jsonl", "{\"a\":1}\n{\"a\":2}\n")
	out := filepath.Join(t.TempDir(), "out.jsonl")

	res, err := Run(
		model.ExportRequest{Kind: model.ExportSearchTask, TaskID: "t1"},
		src, model.Jsonl, model.ExportJSONL, out,
		func(taskID string) ([]uint64, error) { return []uint64{1}, nil },
	)
	if err != nil {
		t.Fatal(err)
	}
	if res.RecordsWritten != 1 {
		t.Fatalf("RecordsWritten = %d, want 1", res.RecordsWritten)
	}
}

func TestExportEmptySelectionWritesNothing(t *testing.T) {
	src := writeTemp(t, "in.jsonl", "{\"a\":1}\n")
	out := filepath.Join(t.TempDir(), "out.jsonl")
	res, err := Run(model.ExportRequest{Kind: model.ExportSelection}, src, model.Jsonl, model.ExportJSONL, out, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.RecordsWritten != 0 {
		t.Fatalf("RecordsWritten = %d, want 0", res.RecordsWritten)
	}
}

func TestExportCSVToJSONLSkipsHeaderRow(t *testing.T) {
	src := writeTemp(t, "in.csv", "name,age\nalice,30\nbob,25\n")
	out := filepath.Join(t.TempDir(), "out.jsonl")
	res, err := Run(
		model.ExportRequest{Kind: model.ExportSelection, RecordIDs: []uint64{0, 1, 2}},
		src, model.Csv, model.ExportJSONL, out, nil,
	)
	if err != nil {
		t.Fatal(err)
	}
	if res.RecordsWritten != 2 {
		t.Fatalf("RecordsWritten = %d, want 2 (header row id=0 must be skipped)", res.RecordsWritten)
	}
}

func TestExportJSONSubtreeChildren(t *testing.T) {
	src := writeTemp(t, "in.json", `{"a":1,"b":2,"c":3}`)
	out := filepath.Join(t.TempDir(), "out.json")
	res, err := Run(
		model.ExportRequest{
			Kind:            model.ExportJSONSubtree,
			SubtreeMeta:     model.RecordMeta{ByteOffset: 0},
			SubtreeChildren: true,
		},
		src, model.Json, model.ExportJSON, out, nil,
	)
	if err != nil {
		t.Fatal(err)
	}
	if res.RecordsWritten != 3 {
		t.Fatalf("RecordsWritten = %d, want 3", res.RecordsWritten)
	}
}
