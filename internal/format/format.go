// Package format detects a session's file format from its extension.
//
// Grounded on original_source/core/src/formats/mod.rs's detect_format: a
// plain lowercase-extension switch, no content sniffing. The teacher's
// fileloader/detection.go additionally falls back to a plugin registry for
// unrecognized extensions; that fallback is dropped here since this spec
// supports exactly four formats (spec.md §4.b, Non-goal: everything else).
package format

import (
	"path/filepath"
	"strings"

	"github.com/sec-view/datalens/internal/model"
)

// Detect returns the FileFormat implied by path's extension, or
// model.Unknown if it does not match one of the four supported formats.
func Detect(path string) model.FileFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return model.Jsonl
	case ".csv":
		return model.Csv
	case ".json":
		return model.Json
	case ".parquet":
		return model.Parquet
	default:
		return model.Unknown
	}
}
