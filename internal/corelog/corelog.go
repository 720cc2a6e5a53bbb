// Package corelog provides the engine's ambient logging.
//
// Grounded on the teacher's bracket-tag log.Printf convention
// ([CACHE_REJECT_SHARED], [CACHE_EVICT], see app/cache/cache.go in the
// source tree this module was built from): every log line starts with a
// tag in brackets naming the subsystem and event.
package corelog

import (
	"io"
	"log"
	"os"
)

// L is the package-level logger. Hosts (e.g. cmd/datalens) may redirect its
// output; tests leave it pointed at stderr unless -v narrows it down.
var L = log.New(os.Stderr, "", log.LstdFlags)

// SetOutput redirects the logger, e.g. to discard in quiet test runs.
func SetOutput(w io.Writer) {
	L.SetOutput(w)
}

func Tagf(tag, format string, args ...any) {
	L.Printf("["+tag+"] "+format, args...)
}
