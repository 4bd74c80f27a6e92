package engine

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/szstan/ccg-mcp/internal/logger"
	"github.com/szstan/ccg-mcp/internal/metrics"
)

// Adapter is the per-vendor module contract (§4.5). BuildChildSpec
// translates an InvocationRequest into a ChildSpec and routing table;
// RequiresSessionID and DefaultMaxRetries encode the adapter's policy.
type Adapter interface {
	Name() string
	BuildChildSpec(req *InvocationRequest) (*ChildSpec, RoutingTable, error)
	RequiresSessionID() bool
	DefaultMaxRetries() int
	// NonRetryableBySideEffect reports whether every error kind is
	// non-retryable for this adapter because a retry risks repeating a
	// write side effect (true for the code-executor adapter, §4.4).
	NonRetryableBySideEffect() bool
}

// Invoke runs req through adapter's full retry policy and returns the
// terminal Result, per §4.4.
func Invoke(ctx context.Context, adapter Adapter, req *InvocationRequest) *Result {
	start := time.Now()

	m := &metrics.Metrics{
		Tool:        adapter.Name(),
		Sandbox:     string(req.Sandbox),
		StartAt:     start,
		PromptChars: len(req.Prompt),
		PromptLines: metrics.CountLines(req.Prompt),
	}

	if err := req.Validate(); err != nil {
		return finalize(m, start, &Result{
			Success:   false,
			Tool:      adapter.Name(),
			Error:     err.Error(),
			ErrorKind: ErrorKindConfigError,
		})
	}

	spec, routes, err := adapter.BuildChildSpec(req)
	if err != nil {
		var sErr *SupervisorError
		kind := ErrorKindUnexpectedException
		if errors.As(err, &sErr) {
			kind = sErr.Kind
		}
		return finalize(m, start, &Result{
			Success:   false,
			Tool:      adapter.Name(),
			Error:     err.Error(),
			ErrorKind: kind,
		})
	}

	maxRetries := adapter.DefaultMaxRetries()
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}

	var last *attemptOutcome
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		correlationID := uuid.NewString()
		logger.Debug().Str("correlation_id", correlationID).Str("tool", adapter.Name()).Int("attempt", attempt).Msg("invocation attempt")

		last = runAttempt(ctx, adapter, spec, routes, req, attempt)
		m.RawOutputLines += last.rawLineCount
		m.JSONDecodeErrors += last.agg.JSONDecodeErrors

		if last.kind == ErrorKindNone {
			break
		}
		if last.kind == ErrorKindCommandNotFound || last.kind == ErrorKindConfigError {
			// short-circuits the retry loop entirely (§7).
			break
		}
		if adapter.NonRetryableBySideEffect() || !IsRetryable(last.kind) {
			break
		}
		if attempt == maxRetries+1 {
			break
		}

		backoff := time.Duration(0.5*math.Pow(2, float64(attempt-1)) * float64(time.Second))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			attempt = maxRetries + 1 // stop retrying on cancellation
		}
	}

	m.Retries = 0
	if last != nil {
		m.Retries = last.attemptNumber - 1
		if last.exitCode != nil {
			m.ExitCode = last.exitCode
		}
	}

	result := buildResult(adapter, req, last)
	m.Success = result.Success
	if result.Success {
		m.ResultChars = len(result.ResultText)
		m.ResultLines = metrics.CountLines(result.ResultText)
	} else {
		m.ErrorKind = string(result.ErrorKind)
	}
	result.Metrics = m
	if req.IncludeFullLog && last != nil {
		result.FullLog = last.agg.FullLog
	}

	return finalize(m, start, result)
}

func finalize(m *metrics.Metrics, start time.Time, result *Result) *Result {
	m.Finalize(time.Now())
	result.Duration = time.Since(start)
	result.Metrics = m
	return result
}

// attemptOutcome captures everything one supervisor+parser run produced.
type attemptOutcome struct {
	attemptNumber int
	agg           *Aggregator
	exitCode      *int
	rawLineCount  int
	kind          ErrorKind
	message       string
}

func runAttempt(ctx context.Context, adapter Adapter, spec *ChildSpec, routes RoutingTable, req *InvocationRequest, attempt int) *attemptOutcome {
	agg := NewAggregator(req.IncludeFullLog)
	parser := NewParser(routes, agg)

	runResult, err := Run(ctx, spec, req.EffectiveIdleTimeout(), req.EffectiveWallTimeout(), parser.Feed)

	out := &attemptOutcome{agg: agg, rawLineCount: runResult.RawLineCount, attemptNumber: attempt}

	var supErr *SupervisorError
	if errors.As(err, &supErr) {
		out.kind = supErr.Kind
		out.message = supErr.Error()
		return out
	}

	exitCode := runResult.ExitCode
	out.exitCode = &exitCode

	// Terminal success criteria, checked in order (§4.4).
	switch {
	case agg.ErrorFlag:
		out.kind = agg.ErrorKind
		out.message = "upstream reported an error"
	case adapter.RequiresSessionID() && !agg.HasSessionID():
		out.kind = ErrorKindProtocolMissingSession
		out.message = "vendor CLI did not report a session id"
	case agg.Text() == "":
		out.kind = ErrorKindEmptyResult
		out.message = "vendor CLI produced no agent text"
	case exitCode != 0:
		out.kind = ErrorKindSubprocessError
		out.message = "vendor CLI exited with a non-zero status"
	default:
		out.kind = ErrorKindNone
	}

	return out
}

func buildResult(adapter Adapter, req *InvocationRequest, last *attemptOutcome) *Result {
	if last == nil || last.kind == ErrorKindNone {
		return &Result{
			Success:    true,
			Tool:       adapter.Name(),
			SessionID:  last.agg.SessionID,
			ResultText: last.agg.Text(),
		}
	}

	detail := ErrorDetail{
		Message:          last.message,
		ExitCode:         last.exitCode,
		LastLines:        last.agg.Tail(),
		JSONDecodeErrors: last.agg.JSONDecodeErrors,
		Retries:          last.attemptNumber - 1,
	}

	idle := req.EffectiveIdleTimeout().Seconds()
	wall := req.EffectiveWallTimeout().Seconds()
	if last.kind == ErrorKindIdleTimeout {
		detail.IdleTimeoutS = &idle
	}
	if last.kind == ErrorKindTimeout {
		detail.MaxDurationS = &wall
	}

	errMsg := last.message
	if last.kind == ErrorKindAuthRequired {
		errMsg = AuthHint + errMsg
	}

	return &Result{
		Success:     false,
		Tool:        adapter.Name(),
		Error:       errMsg,
		ErrorKind:   last.kind,
		ErrorDetail: detail,
	}
}
