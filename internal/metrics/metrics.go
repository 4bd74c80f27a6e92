// Package metrics defines the per-invocation metrics object emitted by the
// engine, one JSON line per call, per SPEC_FULL.md §3/§6.
package metrics

import "time"

// Metrics is finalized once per InvocationRequest, spanning all retry
// attempts.
type Metrics struct {
	Tool    string    `json:"tool"`
	Sandbox string    `json:"sandbox"`
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`

	DurationMS int64 `json:"duration_ms"`
	Success    bool  `json:"success"`
	ErrorKind  string `json:"error_kind,omitempty"`
	Retries    int   `json:"retries"`
	ExitCode   *int  `json:"exit_code,omitempty"`

	PromptChars int `json:"prompt_chars"`
	PromptLines int `json:"prompt_lines"`
	ResultChars int `json:"result_chars"`
	ResultLines int `json:"result_lines"`

	RawOutputLines   int `json:"raw_output_lines"`
	JSONDecodeErrors int `json:"json_decode_errors"`
}

// Finalize stamps the end time and duration. Call once, after the retry
// driver has produced a terminal outcome.
func (m *Metrics) Finalize(end time.Time) {
	m.EndAt = end
	m.DurationMS = end.Sub(m.StartAt).Milliseconds()
}

// CountLines returns the number of lines in s the way the spec counts them:
// an empty string has zero lines, otherwise it's the number of '\n'-
// separated segments.
func CountLines(s string) int {
	if s == "" {
		return 0
	}
	n := 1
	for _, r := range s {
		if r == '\n' {
			n++
		}
	}
	return n
}
