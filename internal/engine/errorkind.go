package engine

import (
	"regexp"
	"strings"
)

// ErrorKind is the closed set of terminal error classifications from
// SPEC_FULL.md §7.
type ErrorKind string

const (
	ErrorKindNone ErrorKind = ""

	ErrorKindTimeout                ErrorKind = "timeout"
	ErrorKindIdleTimeout            ErrorKind = "idle_timeout"
	ErrorKindCommandNotFound        ErrorKind = "command_not_found"
	ErrorKindUpstreamError          ErrorKind = "upstream_error"
	ErrorKindAuthRequired           ErrorKind = "auth_required"
	ErrorKindJSONDecode             ErrorKind = "json_decode"
	ErrorKindProtocolMissingSession ErrorKind = "protocol_missing_session"
	ErrorKindEmptyResult            ErrorKind = "empty_result"
	ErrorKindSubprocessError        ErrorKind = "subprocess_error"
	ErrorKindConfigError            ErrorKind = "config_error"
	ErrorKindUnexpectedException    ErrorKind = "unexpected_exception"
)

// errorKindPriority ranks error kinds that can be latched mid-attempt by the
// parser. Higher wins; lower priorities never downgrade a latched kind.
// Only auth_required / upstream_error / unexpected_exception participate in
// this lattice — everything else is assigned by the supervisor or the retry
// driver after the attempt ends, outside the parser's latch.
var errorKindPriority = map[ErrorKind]int{
	ErrorKindAuthRequired:        3,
	ErrorKindUpstreamError:       2,
	ErrorKindUnexpectedException: 1,
}

// outranks reports whether candidate should replace current under the
// sticky-latch priority rule (§4.3).
func outranks(candidate, current ErrorKind) bool {
	if current == ErrorKindNone {
		return true
	}
	return errorKindPriority[candidate] > errorKindPriority[current]
}

// authMarkers are case-insensitive substrings that identify an auth failure
// in an error event's message (§4.3).
var authMarkers = []string{
	"waiting for auth",
	"failed to login",
	"precondition check failed",
	"authentication",
	"401",
	"403",
	"unauthorized",
	"not authenticated",
	"login required",
	"sign in",
	"oauth",
}

// isAuthError reports whether msg looks like an authentication failure.
func isAuthError(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range authMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// reconnectingNoise matches transient upstream chatter that must not set the
// error flag (§4.3).
var reconnectingNoise = regexp.MustCompile(`^Reconnecting\.\.\.\s+\d+/\d+$`)

// isTransientNoise reports whether msg is non-fatal reconnect chatter.
func isTransientNoise(msg string) bool {
	return reconnectingNoise.MatchString(strings.TrimSpace(msg))
}

// AuthHint is prepended to the error message when ErrorKindAuthRequired is
// the terminal kind, per SPEC_FULL.md §7's "canned multi-line hint".
const AuthHint = `authentication required — the vendor CLI could not authenticate.

Re-run the CLI's own login flow (or refresh the configured API token) and
retry the call.

`

// nonRetryableKinds lists the terminal kinds that are never retried, before
// the adapter's own write-side-effect override is applied (§4.4).
var nonRetryableKinds = map[ErrorKind]bool{
	ErrorKindCommandNotFound: true,
	ErrorKindAuthRequired:    true,
}

// IsRetryable reports whether kind may be retried, ignoring any
// adapter-specific override (e.g. the coder adapter retries nothing).
func IsRetryable(kind ErrorKind) bool {
	return !nonRetryableKinds[kind]
}
