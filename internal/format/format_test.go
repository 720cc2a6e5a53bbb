package format

import (
	"testing"

	"github.com/sec-view/datalens/internal/model"
)

func TestDetect(t *testing.T) {
	cases := map[string]model.FileFormat{
		"data.jsonl":       model.Jsonl,
		"data.ndjson":      model.Jsonl,
		"data.csv":         model.Csv,
		"data.json":        model.Json,
		"data.parquet":     model.Parquet,
		"data.JSONL":       model.Jsonl,
		"archive.tar.gz":   model.Unknown,
		"noextension":      model.Unknown,
		"/a/b/c/data.json": model.Json,
	}
	for path, want := range cases {
		if got := Detect(path); got != want {
			t.Errorf("Detect(%q) = %v, want %v", path, got, want)
		}
	}
}
