package engine

import "strings"

// RoutingTable is an adapter's map from event discriminator to the handler
// that extracts whatever that event contributes to the aggregator: agent
// text, a session id, or an error message.
//
// Handlers mutate the aggregator directly (AppendText / LatchSessionID /
// SetError) rather than returning a value, since a single event can
// contribute more than one of these (e.g. a result event carries both the
// session id and the final text).
type RoutingTable map[string]func(ev Event, agg *Aggregator)

// Aggregator is the per-attempt running state built by the event parser
// (§3's AggregatorState, §4.3).
type Aggregator struct {
	text strings.Builder

	SessionID      string
	sessionLatched bool

	ErrorFlag bool
	ErrorKind ErrorKind

	JSONDecodeErrors int

	tail           []string
	FullLog        []Event
	includeFullLog bool
}

// NewAggregator creates a fresh aggregator for one retry attempt.
func NewAggregator(includeFullLog bool) *Aggregator {
	return &Aggregator{includeFullLog: includeFullLog}
}

// AppendTail records a raw line in the rolling tail, dropping the oldest
// entry once more than TailSize lines have been seen.
func (a *Aggregator) AppendTail(line string) {
	a.tail = append(a.tail, line)
	if len(a.tail) > TailSize {
		a.tail = a.tail[len(a.tail)-TailSize:]
	}
}

// Tail returns a copy of the rolling tail, oldest first.
func (a *Aggregator) Tail() []string {
	out := make([]string, len(a.tail))
	copy(out, a.tail)
	return out
}

// RecordDecodeError counts a line that failed JSON decoding. Non-JSON
// chatter never counts toward the agent's response (§4.3).
func (a *Aggregator) RecordDecodeError() {
	a.JSONDecodeErrors++
}

// RecordEvent appends a successfully decoded event to the full log, if the
// caller asked for it.
func (a *Aggregator) RecordEvent(ev Event) {
	if a.includeFullLog {
		a.FullLog = append(a.FullLog, ev)
	}
}

// AppendText accumulates agent-visible text, in arrival order.
func (a *Aggregator) AppendText(s string) {
	a.text.WriteString(s)
}

// Text returns the accumulated agent text.
func (a *Aggregator) Text() string {
	return a.text.String()
}

// LatchSessionID records a non-empty session id, overwriting any value
// latched by an earlier event. An adapter's routing table controls which
// events call this, so the "authoritative" event for that vendor protocol
// is whichever one its own routing rule wires to call it last.
func (a *Aggregator) LatchSessionID(id string) {
	if id == "" {
		return
	}
	a.SessionID = id
	a.sessionLatched = true
}

// HasSessionID reports whether a session id has been latched.
func (a *Aggregator) HasSessionID() bool {
	return a.sessionLatched
}

// SetError applies the sticky error-kind lattice (§4.3, §8 I6): a higher
// priority kind always wins and a latched kind is never downgraded by a
// lower-priority one. Kinds outside the lattice (e.g. timeout) still set
// the flag; they latch only when no kind is set yet and never displace a
// latched one.
func (a *Aggregator) SetError(kind ErrorKind) {
	a.ErrorFlag = true
	if outranks(kind, a.ErrorKind) {
		a.ErrorKind = kind
	}
}

// ApplyErrorMessage classifies an error event's message per §4.3 and
// applies the result to the aggregator: auth detection first, then
// transient-noise suppression, then a generic upstream_error.
func (a *Aggregator) ApplyErrorMessage(msg string) {
	switch {
	case isAuthError(msg):
		a.SetError(ErrorKindAuthRequired)
	case isTransientNoise(msg):
		// non-fatal; does not set the error flag at all.
	default:
		a.SetError(ErrorKindUpstreamError)
	}
}
