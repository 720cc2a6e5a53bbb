// Package cursor implements the opaque resumable paging token shared by
// every reader in this module (line-oriented, CSV, JSON root array).
//
// Grounded 1:1 on original_source/core/src/cursor.rs: a cursor is a
// {offset, line} pair, JSON-encoded then base64-url-encoded without
// padding. Callers never construct or inspect the token string directly;
// they pass it back opaquely between calls.
package cursor

import (
	"encoding/base64"
	"encoding/json"

	"github.com/sec-view/datalens/internal/coreerr"
)

// Cursor marks a resume point: the byte offset to continue reading from,
// and the line/record number already emitted up to that point.
type Cursor struct {
	Offset uint64 `json:"offset"`
	Line   uint64 `json:"line"`
}

// Zero is the cursor a fresh page request starts from.
var Zero = Cursor{}

// Encode renders c as an opaque token. A zero cursor still encodes (callers
// needing "no cursor" should use an empty string, decoded by Decode("")
// below).
func Encode(c Cursor) string {
	b, err := json.Marshal(c)
	if err != nil {
		// Cursor has no fields that can fail to marshal.
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode parses a token produced by Encode. An empty token decodes to the
// zero cursor, matching the "first page" convention used throughout the
// pager operations.
func Decode(token string) (Cursor, error) {
	if token == "" {
		return Zero, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, coreerr.BadCursorf(err, "cursor %q is not valid base64", token)
	}
	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil {
		return Cursor{}, coreerr.BadCursorf(err, "cursor %q is not a valid cursor payload", token)
	}
	return c, nil
}
