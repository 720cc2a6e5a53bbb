package jsontree

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sec-view/datalens/internal/cursor"
	"github.com/sec-view/datalens/internal/model"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "doc.json")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestListChildrenObjectRoot(t *testing.T) {
	p := writeTemp(t, `{"a":1,"b":[1,2,3],"c":"hi"}`)
	page, err := ListChildren(p, nil, cursor.Zero, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Children) != 3 || !page.ReachedEnd {
		t.Fatalf("page = %+v", page)
	}
	if *page.Children[0].Segment.Key != "a" {
		t.Fatalf("first key = %v", page.Children[0].Segment)
	}
}

func TestListChildrenPagination(t *testing.T) {
	p := writeTemp(t, `[10,20,30,40,50]`)
	page1, err := ListChildren(p, nil, cursor.Zero, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page1.Children) != 2 || page1.ReachedEnd {
		t.Fatalf("page1 = %+v", page1)
	}
	next, err := cursor.Decode(page1.NextCursor)
	if err != nil {
		t.Fatal(err)
	}
	offset, err := ResolveOffsetForPath(p, nil)
	if err != nil {
		t.Fatal(err)
	}
	page2, err := ListChildrenAtOffset(p, offset, next, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(page2.Children) != 3 || !page2.ReachedEnd {
		t.Fatalf("page2 = %+v", page2)
	}
	if *page2.Children[0].Segment.Index != 2 {
		t.Fatalf("expected index 2 first, got %+v", page2.Children[0].Segment)
	}
}

func TestResolveOffsetForPathNested(t *testing.T) {
	p := writeTemp(t, `{"outer":{"inner":[1,2,3]}}`)
	offset, err := ResolveOffsetForPath(p, []model.JSONPathSegment{model.KeySegment("outer"), model.KeySegment("inner")})
	if err != nil {
		t.Fatal(err)
	}
	page, err := ListChildrenAtOffset(p, offset, cursor.Zero, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Children) != 3 {
		t.Fatalf("page = %+v", page)
	}
}

func TestNodeSummary(t *testing.T) {
	p := writeTemp(t, `[1,2,3,4,5]`)
	s, err := NodeSummary(p, nil, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if s.Kind != model.NodeArray || s.ChildCount != 5 || !s.Complete {
		t.Fatalf("summary = %+v", s)
	}
}

func TestNodeSummaryBoundedIncomplete(t *testing.T) {
	p := writeTemp(t, `[1,2,3,4,5]`)
	s, err := NodeSummary(p, nil, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if s.Complete {
		t.Fatal("expected Complete=false when maxItems caps the scan")
	}
	if s.ChildCount != 2 {
		t.Fatalf("ChildCount = %d, want 2", s.ChildCount)
	}
}
