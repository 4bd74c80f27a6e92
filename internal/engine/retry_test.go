package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter drives Invoke through a real `sh` child so the retry driver's
// decision logic runs against an actual supervised attempt, without needing
// a vendor CLI. buildErr, when set, makes BuildChildSpec fail. attempts
// counts BuildChildSpec calls: Invoke builds the spec once per call and
// reuses it for every retry attempt, so retries show in Metrics.Retries.
type fakeAdapter struct {
	script                string
	routes                RoutingTable
	requiresSession        bool
	maxRetries             int
	nonRetryableSideEffect bool
	buildErr               error
	attempts               int
}

func (f *fakeAdapter) Name() string { return "fake" }

func (f *fakeAdapter) BuildChildSpec(req *InvocationRequest) (*ChildSpec, RoutingTable, error) {
	f.attempts++
	if f.buildErr != nil {
		return nil, nil, f.buildErr
	}
	return &ChildSpec{
		Executable: "sh",
		Argv:       []string{"-c", f.script},
		Stdin:      StdinClosedEmpty,
	}, f.routes, nil
}

func (f *fakeAdapter) RequiresSessionID() bool         { return f.requiresSession }
func (f *fakeAdapter) DefaultMaxRetries() int           { return f.maxRetries }
func (f *fakeAdapter) NonRetryableBySideEffect() bool   { return f.nonRetryableSideEffect }

func resultRoutes() RoutingTable {
	return RoutingTable{
		"result": func(ev Event, agg *Aggregator) {
			if id, ok := ev.String("result", "session_id"); ok {
				agg.LatchSessionID(id)
			}
			if text, ok := ev.String("result", "text"); ok {
				agg.AppendText(text)
			}
		},
		"error": func(ev Event, agg *Aggregator) {
			if msg, ok := ev.String("error", "message"); ok {
				agg.ApplyErrorMessage(msg)
			}
		},
	}
}

func baseRequest() *InvocationRequest {
	return &InvocationRequest{
		Prompt:      "do the thing",
		WorkDir:     "/tmp",
		Sandbox:     SandboxWorkspaceWrite,
		IdleTimeout: 2 * time.Second,
		WallTimeout: 5 * time.Second,
	}
}

func TestInvoke_SuccessOnFirstAttempt(t *testing.T) {
	adapter := &fakeAdapter{
		script: `echo '{"type":"result","result":{"session_id":"s1","text":"done"}}'`,
		routes: resultRoutes(),
	}

	result := Invoke(context.Background(), adapter, baseRequest())

	require.True(t, result.Success)
	assert.Equal(t, "s1", result.SessionID)
	assert.Equal(t, "done", result.ResultText)
	assert.Equal(t, 0, result.Metrics.Retries)
	assert.Equal(t, 1, adapter.attempts)
}

func TestInvoke_MissingSessionIDWhenRequired(t *testing.T) {
	adapter := &fakeAdapter{
		script:          `echo '{"type":"result","result":{"text":"done"}}'`,
		routes:          resultRoutes(),
		requiresSession: true,
		maxRetries:      0,
	}

	result := Invoke(context.Background(), adapter, baseRequest())

	require.False(t, result.Success)
	assert.Equal(t, ErrorKindProtocolMissingSession, result.ErrorKind)
}

func TestInvoke_EmptyResultText(t *testing.T) {
	adapter := &fakeAdapter{
		script:     `echo '{"type":"result","result":{"session_id":"s1"}}'`,
		routes:     resultRoutes(),
		maxRetries: 0,
	}

	result := Invoke(context.Background(), adapter, baseRequest())

	require.False(t, result.Success)
	assert.Equal(t, ErrorKindEmptyResult, result.ErrorKind)
}

func TestInvoke_NonZeroExitSurfacesAsSubprocessError(t *testing.T) {
	adapter := &fakeAdapter{
		script:     `echo '{"type":"result","result":{"session_id":"s1","text":"done"}}'; exit 3`,
		routes:     resultRoutes(),
		maxRetries: 0,
	}

	result := Invoke(context.Background(), adapter, baseRequest())

	require.False(t, result.Success)
	assert.Equal(t, ErrorKindSubprocessError, result.ErrorKind)
	require.NotNil(t, result.ErrorDetail.ExitCode)
	assert.Equal(t, 3, *result.ErrorDetail.ExitCode)
}

func TestInvoke_UpstreamErrorFlagRetriesThenSucceeds(t *testing.T) {
	// Each retry gets its own fresh `sh` invocation; a state file on disk
	// lets the script behave differently the second time it runs.
	dir := t.TempDir()
	marker := dir + "/attempted"
	script := `
if [ -f ` + marker + ` ]; then
  echo '{"type":"result","result":{"session_id":"s1","text":"done"}}'
else
  touch ` + marker + `
  echo '{"type":"error","error":{"message":"internal server error"}}'
fi
`
	adapter := &fakeAdapter{script: script, routes: resultRoutes(), maxRetries: 2}
	req := baseRequest()

	result := Invoke(context.Background(), adapter, req)

	require.True(t, result.Success)
	assert.Equal(t, 1, result.Metrics.Retries)
	// The spec is built once and reused for the second attempt.
	assert.Equal(t, 1, adapter.attempts)
}

func TestInvoke_NonRetryableBySideEffectStopsAfterOneAttempt(t *testing.T) {
	adapter := &fakeAdapter{
		script:                 `echo '{"type":"error","error":{"message":"internal server error"}}'`,
		routes:                 resultRoutes(),
		maxRetries:             3,
		nonRetryableSideEffect: true,
	}

	result := Invoke(context.Background(), adapter, baseRequest())

	require.False(t, result.Success)
	assert.Equal(t, 1, adapter.attempts)
	assert.Equal(t, 0, result.Metrics.Retries)
	assert.Equal(t, ErrorKindUpstreamError, result.ErrorKind)
}

func TestInvoke_AuthRequiredIsNeverRetried(t *testing.T) {
	adapter := &fakeAdapter{
		script:     `echo '{"type":"error","error":{"message":"401 unauthorized"}}'`,
		routes:     resultRoutes(),
		maxRetries: 3,
	}

	result := Invoke(context.Background(), adapter, baseRequest())

	require.False(t, result.Success)
	assert.Equal(t, 1, adapter.attempts)
	assert.Equal(t, 0, result.Metrics.Retries)
	assert.Equal(t, ErrorKindAuthRequired, result.ErrorKind)
	assert.Contains(t, result.Error, AuthHint)
}

func TestInvoke_CommandNotFoundShortCircuits(t *testing.T) {
	badAdapter := &commandNotFoundAdapter{maxRetries: 3}

	result := Invoke(context.Background(), badAdapter, baseRequest())

	require.False(t, result.Success)
	assert.Equal(t, ErrorKindCommandNotFound, result.ErrorKind)
	assert.Equal(t, 1, badAdapter.attempts)
	assert.Equal(t, 0, result.Metrics.Retries)
}

// commandNotFoundAdapter always points at a nonexistent executable, to
// exercise the supervisor-level command_not_found short-circuit.
type commandNotFoundAdapter struct {
	maxRetries int
	attempts   int
}

func (a *commandNotFoundAdapter) Name() string { return "missing" }
func (a *commandNotFoundAdapter) BuildChildSpec(req *InvocationRequest) (*ChildSpec, RoutingTable, error) {
	a.attempts++
	return &ChildSpec{Executable: "definitely-not-a-real-binary-ccg-mcp-test", Stdin: StdinClosedEmpty}, RoutingTable{}, nil
}
func (a *commandNotFoundAdapter) RequiresSessionID() bool       { return false }
func (a *commandNotFoundAdapter) DefaultMaxRetries() int        { return a.maxRetries }
func (a *commandNotFoundAdapter) NonRetryableBySideEffect() bool { return false }

func TestInvoke_BuildChildSpecErrorIsTerminal(t *testing.T) {
	adapter := &fakeAdapter{buildErr: assertBuildErr, maxRetries: 2}

	result := Invoke(context.Background(), adapter, baseRequest())

	require.False(t, result.Success)
	assert.Equal(t, ErrorKindUnexpectedException, result.ErrorKind)
	assert.Equal(t, 1, adapter.attempts)
}

var assertBuildErr = &buildErr{msg: "adapter could not build argv"}

type buildErr struct{ msg string }

func (e *buildErr) Error() string { return e.msg }

func TestInvoke_ValidateFailureNeverSpawnsAChild(t *testing.T) {
	adapter := &fakeAdapter{script: `echo should-not-run`, routes: resultRoutes(), maxRetries: 1}
	req := baseRequest()
	req.WorkDir = ""

	result := Invoke(context.Background(), adapter, req)

	require.False(t, result.Success)
	assert.Equal(t, ErrorKindConfigError, result.ErrorKind)
	assert.Equal(t, 0, adapter.attempts)
}

func TestInvoke_IdleTimeoutDetailIncludesTimeoutSeconds(t *testing.T) {
	adapter := &fakeAdapter{
		script:     `sleep 5`,
		routes:     resultRoutes(),
		maxRetries: 0,
	}
	req := baseRequest()
	req.IdleTimeout = 100 * time.Millisecond
	req.WallTimeout = 30 * time.Second

	result := Invoke(context.Background(), adapter, req)

	require.False(t, result.Success)
	assert.Equal(t, ErrorKindIdleTimeout, result.ErrorKind)
	require.NotNil(t, result.ErrorDetail.IdleTimeoutS)
	assert.InDelta(t, 0.1, *result.ErrorDetail.IdleTimeoutS, 0.01)
}
