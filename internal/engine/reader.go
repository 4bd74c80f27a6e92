package engine

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
	"time"
)

// maxScannerBuffer bounds the per-line buffer the reader allocates, large
// enough for a vendor CLI's biggest single NDJSON event.
const maxScannerBuffer = 10 * 1024 * 1024

// lineReader reads a child's combined stdout line by line onto a channel,
// detecting the adapter's completion sentinel and applying the post-sentinel
// drain window (§4.1). It owns no cleanup responsibility of its own — it
// reacts to its input stream closing, whether that happens because the
// child exited or because the supervisor's cleanup path closed the pipe.
type lineReader struct {
	r          io.Reader
	isSentinel SentinelFunc
	out        chan string
}

func newLineReader(r io.Reader, isSentinel SentinelFunc) *lineReader {
	return &lineReader{
		r:          r,
		isSentinel: isSentinel,
		out:        make(chan string, 64),
	}
}

// run scans lines until EOF, a read error, or the completion sentinel (plus
// its drain window), then closes the output channel. It never panics past
// its own goroutine boundary.
//
// Scanning happens on a separate goroutine so that, once the sentinel
// fires, run can keep accepting any trailing lines the child writes
// during the drain window instead of blocking on the next Scan() call
// (io.Pipe writes are synchronous, so a blocked Scan would otherwise
// stall the child rather than draining it).
func (lr *lineReader) run() {
	defer close(lr.out)

	scanned := make(chan string)
	stop := make(chan struct{})
	go lr.scan(scanned, stop)
	defer close(stop)

	var draining bool
	var deadline <-chan time.Time

	for {
		select {
		case line, ok := <-scanned:
			if !ok {
				return
			}
			lr.out <- line
			if !draining && lr.isSentinelLine(line) {
				draining = true
				deadline = time.After(DrainWindow)
			}
		case <-deadline:
			return
		}
	}
}

// scan reads lines on its own goroutine and offers each one on out,
// abandoning the offer (rather than blocking forever) once stop is
// closed by run's return, so a scan left mid-Read after the reader has
// moved on cannot leak permanently blocked on a channel send.
func (lr *lineReader) scan(out chan<- string, stop <-chan struct{}) {
	defer close(out)

	scanner := bufio.NewScanner(lr.r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScannerBuffer)

	for scanner.Scan() {
		select {
		case out <- scanner.Text():
		case <-stop:
			return
		}
	}
}

func (lr *lineReader) isSentinelLine(line string) bool {
	if lr.isSentinel == nil {
		return false
	}
	if strings.TrimSpace(line) == "" {
		return false
	}
	var ev Event
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		return false
	}
	return lr.isSentinel(ev)
}
