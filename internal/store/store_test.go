package store

import (
	"path/filepath"
	"testing"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	p := filepath.Join(t.TempDir(), "storage.sqlite")
	st, err := Open(p)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestTouchRecentInsertsAndUpdates(t *testing.T) {
	st := openTemp(t)

	if err := st.TouchRecent("/a/b.jsonl", "b.jsonl", 100, true, nil); err != nil {
		t.Fatal(err)
	}
	files, err := st.ListRecent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].LastOpenedAt != 100 || files[0].Pinned {
		t.Fatalf("files = %+v", files)
	}

	if err := st.TouchRecent("/a/b.jsonl", "b.jsonl", 200, true, nil); err != nil {
		t.Fatal(err)
	}
	files, err = st.ListRecent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].LastOpenedAt != 200 {
		t.Fatalf("expected upsert not insert, files = %+v", files)
	}
}

func TestTouchRecentPinnedPreservedWhenNotSpecified(t *testing.T) {
	st := openTemp(t)
	pinned := true
	if err := st.TouchRecent("/a/b.jsonl", "b.jsonl", 100, true, &pinned); err != nil {
		t.Fatal(err)
	}
	if err := st.TouchRecent("/a/b.jsonl", "b.jsonl", 150, true, nil); err != nil {
		t.Fatal(err)
	}
	files, err := st.ListRecent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || !files[0].Pinned {
		t.Fatalf("expected pinned flag to survive an update with pinned=nil, files = %+v", files)
	}
}

func TestListRecentOrdersPinnedThenRecency(t *testing.T) {
	st := openTemp(t)
	pinned := true
	unpinned := false
	if err := st.TouchRecent("/z.jsonl", "z", 300, true, &unpinned); err != nil {
		t.Fatal(err)
	}
	if err := st.TouchRecent("/a.jsonl", "a", 100, true, &pinned); err != nil {
		t.Fatal(err)
	}
	if err := st.TouchRecent("/m.jsonl", "m", 200, true, &unpinned); err != nil {
		t.Fatal(err)
	}

	files, err := st.ListRecent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 3 {
		t.Fatalf("len(files) = %d, want 3", len(files))
	}
	if files[0].Path != "/a.jsonl" {
		t.Fatalf("pinned file should sort first, got %+v", files)
	}
	if files[1].Path != "/z.jsonl" || files[2].Path != "/m.jsonl" {
		t.Fatalf("unpinned files should sort by recency, got %+v", files)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	st := openTemp(t)
	if _, ok, err := st.GetSettingJSON("theme"); err != nil || ok {
		t.Fatalf("expected unset setting, ok=%v err=%v", ok, err)
	}
	if err := st.SetSettingJSON("theme", `"dark"`); err != nil {
		t.Fatal(err)
	}
	v, ok, err := st.GetSettingJSON("theme")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || v != `"dark"` {
		t.Fatalf("v=%q ok=%v, want dark/true", v, ok)
	}
	if err := st.SetSettingJSON("theme", `"light"`); err != nil {
		t.Fatal(err)
	}
	v, _, err = st.GetSettingJSON("theme")
	if err != nil {
		t.Fatal(err)
	}
	if v != `"light"` {
		t.Fatalf("v = %q, want light after overwrite", v)
	}
}
