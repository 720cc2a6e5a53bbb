package tasks

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sec-view/datalens/internal/cursor"
	"github.com/sec-view/datalens/internal/model"
)

func fixedClock() int64 { return 1700000000000 }

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func waitFinished(t *testing.T, m *Manager, id string) model.Task {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		task, err := m.Get(id)
		if err != nil {
			t.Fatal(err)
		}
		if task.Finished {
			return task
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("task did not finish in time")
	return model.Task{}
}

func TestScanAllLinesFindsHits(t *testing.T) {
	p := writeTemp(t, "data.jsonl", "{\"a\":1}\n{\"a\":2,\"needle\":true}\n{\"a\":3}\n")
	m := NewManager(Options{MaxConcurrentTasks: 2})
	info, err := m.StartSearchScanAll(p, model.Jsonl, model.SearchQuery{Text: "needle", Mode: model.ScanAll, MaxHits: 100}, fixedClock)
	if err != nil {
		t.Fatal(err)
	}
	task := waitFinished(t, m, info.ID)
	if task.Error != "" {
		t.Fatalf("task error: %s", task.Error)
	}
	result, err := m.HitsPage(info.ID, cursor.Zero, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Hits) != 1 || result.Hits[0].LineNo != 1 {
		t.Fatalf("hits = %+v", result.Hits)
	}
}

func TestScanAllJSONRootArrayByteOffsetsSurviveWhitespace(t *testing.T) {
	p := writeTemp(t, "data.json", "[\n  {\"a\":1},\n  {\"a\":2,\"needle\":true},\n  {\"a\":3}\n]\n")
	m := NewManager(Options{MaxConcurrentTasks: 2})
	info, err := m.StartSearchScanAll(p, model.Json, model.SearchQuery{Text: "needle", Mode: model.ScanAll, MaxHits: 100}, fixedClock)
	if err != nil {
		t.Fatal(err)
	}
	task := waitFinished(t, m, info.ID)
	if task.Error != "" {
		t.Fatalf("task error: %s", task.Error)
	}
	result, err := m.HitsPage(info.ID, cursor.Zero, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Hits) != 1 {
		t.Fatalf("hits = %+v", result.Hits)
	}
	hit := result.Hits[0]

	content, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	got := string(content[hit.ByteOffset : hit.ByteOffset+hit.ByteLen])
	want := `{"a":2,"needle":true}`
	if got != want {
		t.Fatalf("ByteOffset/ByteLen sliced %q, want %q (whitespace before the record must not be counted as part of it)", got, want)
	}
}

func TestTooManyConcurrentTasksRejected(t *testing.T) {
	p := writeTemp(t, "data.jsonl", "{\"a\":1}\n")
	m := NewManager(Options{MaxConcurrentTasks: 0})
	m.running = 5
	_, err := m.StartSearchScanAll(p, model.Jsonl, model.SearchQuery{Text: "x", MaxHits: 10}, fixedClock)
	if err == nil {
		t.Fatal("expected rejection for too many concurrent tasks")
	}
}

func TestCancelStopsScan(t *testing.T) {
	p := writeTemp(t, "data.jsonl", "{\"a\":1}\n{\"a\":2}\n")
	m := NewManager(Options{MaxConcurrentTasks: 2})
	info, err := m.StartSearchScanAll(p, model.Jsonl, model.SearchQuery{Text: "a", MaxHits: 10}, fixedClock)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Cancel(info.ID); err != nil {
		t.Fatal(err)
	}
	task := waitFinished(t, m, info.ID)
	if !task.Finished {
		t.Fatal("expected task to finish after cancel")
	}
}

func TestEmptyQueryRejected(t *testing.T) {
	p := writeTemp(t, "data.jsonl", "{}\n")
	m := NewManager(Options{MaxConcurrentTasks: 2})
	_, err := m.StartSearchScanAll(p, model.Jsonl, model.SearchQuery{Text: "  "}, fixedClock)
	if err == nil {
		t.Fatal("expected error for blank query")
	}
}

func TestUnsupportedFormatRejected(t *testing.T) {
	p := writeTemp(t, "data.bin", "whatever")
	m := NewManager(Options{MaxConcurrentTasks: 2})
	_, err := m.StartSearchScanAll(p, model.Unknown, model.SearchQuery{Text: "x"}, fixedClock)
	if err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
