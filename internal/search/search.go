// Package search implements the query-matching rules shared by
// CurrentPage and ScanAll search (spec.md §4.h), grounded 1:1 on
// original_source/core/src/search_match.rs: plain substring matching, or,
// for a "key:value" query, a conjunction of two substring checks against
// both the quoted and unquoted forms of each side.
package search

import (
	"encoding/json"
	"strings"
)

// KV is a parsed "key:value" query: both raw and JSON-quoted forms of
// each side, so a match succeeds whether the haystack contains the quoted
// or bare representation.
type KV struct {
	Key        string
	KeyQuoted  string
	Value      string
	ValueQuoted string
}

// Prepared is a query ready to run against any number of haystacks.
type Prepared struct {
	Q        string
	QQuoted  string
	KV       *KV
	caseFold bool
}

// jsonQuote renders s the way serde_json::to_string renders a string
// value: a double-quoted, escaped JSON string literal.
func jsonQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func stripQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// parseKeyValueQuery splits text on the first ':' into key/value, requiring
// both sides to be non-empty after trimming whitespace and surrounding
// quotes. Returns ok=false if text has no ':' or either side is empty.
func parseKeyValueQuery(text string) (key, value string, ok bool) {
	i := strings.IndexByte(text, ':')
	if i < 0 {
		return "", "", false
	}
	k := stripQuotes(text[:i])
	v := stripQuotes(text[i+1:])
	if k == "" || v == "" {
		return "", "", false
	}
	return k, v, true
}

// New prepares text for matching. It returns ok=false if text is empty
// after trimming, matching the original's "no-op query" contract. When
// caseSensitive is false, text and its derived forms are lower-cased, and
// Matches lower-cases each haystack the same way before comparing.
func New(text string, caseSensitive bool) (Prepared, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Prepared{}, false
	}
	norm := trimmed
	if !caseSensitive {
		norm = strings.ToLower(norm)
	}

	p := Prepared{Q: norm, QQuoted: jsonQuote(norm), caseFold: !caseSensitive}

	if k, v, ok := parseKeyValueQuery(norm); ok {
		p.KV = &KV{
			Key:         k,
			KeyQuoted:   jsonQuote(k),
			Value:       v,
			ValueQuoted: jsonQuote(v),
		}
	}
	return p, true
}

// Matches reports whether haystack satisfies p: for a key:value query,
// both the key and value must independently appear (in either raw or
// JSON-quoted form); otherwise the query text itself must appear in
// either form.
func (p Prepared) Matches(haystack string) bool {
	hay := haystack
	if p.caseFold {
		hay = strings.ToLower(hay)
	}
	if p.KV != nil {
		return (strings.Contains(hay, p.KV.Key) || strings.Contains(hay, p.KV.KeyQuoted)) &&
			(strings.Contains(hay, p.KV.Value) || strings.Contains(hay, p.KV.ValueQuoted))
	}
	return strings.Contains(hay, p.Q) || strings.Contains(hay, p.QQuoted)
}
