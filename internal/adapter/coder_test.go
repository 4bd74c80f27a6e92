package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/szstan/ccg-mcp/internal/config"
	"github.com/szstan/ccg-mcp/internal/engine"
)

func testCoderConfig() *config.CoderConfig {
	return &config.CoderConfig{
		APIToken: "tok-123",
		BaseURL:  "https://hosted.example/api",
		Model:    "glm-4.7",
	}
}

func findFlag(argv []string, flag string) (string, bool) {
	for i, a := range argv {
		if a == flag && i+1 < len(argv) {
			return argv[i+1], true
		}
	}
	return "", false
}

func containsArg(argv []string, arg string) bool {
	for _, a := range argv {
		if a == arg {
			return true
		}
	}
	return false
}

func TestCoder_BuildChildSpec_BasicArgv(t *testing.T) {
	a := NewCoder(testCoderConfig())
	req := &engine.InvocationRequest{Prompt: "fix the bug", WorkDir: "/work", Sandbox: engine.SandboxWorkspaceWrite}

	spec, routes, err := a.BuildChildSpec(req)

	require.NoError(t, err)
	assert.Equal(t, "claude", spec.Executable)
	assert.Equal(t, "/work", spec.Dir)
	assert.Equal(t, engine.StdinClosedEmpty, spec.Stdin)
	assert.True(t, containsArg(spec.Argv, "--output-format"))
	assert.True(t, containsArg(spec.Argv, "stream-json"))
	assert.True(t, containsArg(spec.Argv, "--dangerously-skip-permissions"))
	assert.NotNil(t, routes)
	prompt, ok := findFlag(spec.Argv, "-p")
	require.True(t, ok)
	assert.Contains(t, prompt, "fix the bug")
	assert.Contains(t, prompt, "code-executor model")
}

func TestCoder_BuildChildSpec_ReadOnlySandboxOmitsBypassFlag(t *testing.T) {
	a := NewCoder(testCoderConfig())
	req := &engine.InvocationRequest{Prompt: "look only", WorkDir: "/work", Sandbox: engine.SandboxReadOnly}

	spec, _, err := a.BuildChildSpec(req)

	require.NoError(t, err)
	assert.False(t, containsArg(spec.Argv, "--dangerously-skip-permissions"))
}

func TestCoder_BuildChildSpec_ResumesSession(t *testing.T) {
	a := NewCoder(testCoderConfig())
	req := &engine.InvocationRequest{Prompt: "continue", WorkDir: "/work", Sandbox: engine.SandboxWorkspaceWrite, SessionID: "sess-42"}

	spec, _, err := a.BuildChildSpec(req)

	require.NoError(t, err)
	sid, ok := findFlag(spec.Argv, "-r")
	require.True(t, ok)
	assert.Equal(t, "sess-42", sid)
}

func TestCoder_BuildChildSpec_SplitsExtraArgs(t *testing.T) {
	a := NewCoder(testCoderConfig())
	req := &engine.InvocationRequest{
		Prompt: "go", WorkDir: "/work", Sandbox: engine.SandboxWorkspaceWrite,
		ExtraArgs: `--max-turns 5 --foo "bar baz"`,
	}

	spec, _, err := a.BuildChildSpec(req)

	require.NoError(t, err)
	assert.True(t, containsArg(spec.Argv, "--max-turns"))
	assert.True(t, containsArg(spec.Argv, "5"))
	assert.True(t, containsArg(spec.Argv, "bar baz"))
}

func TestCoder_BuildChildSpec_InvalidExtraArgsIsAnError(t *testing.T) {
	a := NewCoder(testCoderConfig())
	req := &engine.InvocationRequest{
		Prompt: "go", WorkDir: "/work", Sandbox: engine.SandboxWorkspaceWrite,
		ExtraArgs: `--unterminated "quote`,
	}

	_, _, err := a.BuildChildSpec(req)

	require.Error(t, err)
}

func TestCoder_BuildChildSpec_ModelOverrideAppliesToAllAliases(t *testing.T) {
	a := NewCoder(testCoderConfig())
	req := &engine.InvocationRequest{
		Prompt: "go", WorkDir: "/work", Sandbox: engine.SandboxWorkspaceWrite,
		Model: "glm-4.9-preview",
	}

	spec, _, err := a.BuildChildSpec(req)
	require.NoError(t, err)

	env := envMap(spec.Env)
	assert.Equal(t, "glm-4.9-preview", env["ANTHROPIC_DEFAULT_OPUS_MODEL"])
	assert.Equal(t, "glm-4.9-preview", env["ANTHROPIC_DEFAULT_SONNET_MODEL"])
	assert.Equal(t, "glm-4.9-preview", env["ANTHROPIC_DEFAULT_HAIKU_MODEL"])
	assert.Equal(t, "glm-4.9-preview", env["CLAUDE_CODE_SUBAGENT_MODEL"])
	assert.Equal(t, "tok-123", env["ANTHROPIC_AUTH_TOKEN"])
}

func TestCoder_BuildChildSpec_NoModelOverrideKeepsConfigured(t *testing.T) {
	a := NewCoder(testCoderConfig())
	req := &engine.InvocationRequest{Prompt: "go", WorkDir: "/work", Sandbox: engine.SandboxWorkspaceWrite}

	spec, _, err := a.BuildChildSpec(req)
	require.NoError(t, err)

	env := envMap(spec.Env)
	assert.Equal(t, "glm-4.7", env["ANTHROPIC_DEFAULT_OPUS_MODEL"])
}

func TestCoder_IsSentinel(t *testing.T) {
	assert.True(t, coderIsSentinel(engine.Event{"type": "result"}))
	assert.True(t, coderIsSentinel(engine.Event{"type": "error"}))
	assert.False(t, coderIsSentinel(engine.Event{"type": "assistant"}))
}

func TestCoder_Routes_ResultLatchesSessionAndText(t *testing.T) {
	agg := engine.NewAggregator(false)
	ev := engine.Event{"type": "result", "result": map[string]any{"session_id": "s9", "result": "all done"}}

	coderRoutes["result"](ev, agg)

	assert.Equal(t, "s9", agg.SessionID)
	assert.Equal(t, "all done", agg.Text())
}

func TestCoder_Routes_ErrorMessageClassified(t *testing.T) {
	agg := engine.NewAggregator(false)
	ev := engine.Event{"type": "error", "error": map[string]any{"message": "401 unauthorized"}}

	coderRoutes["error"](ev, agg)

	assert.Equal(t, engine.ErrorKindAuthRequired, agg.ErrorKind)
	assert.True(t, agg.ErrorFlag)
}

func TestCoder_Routes_ErrorWithoutMessageStillFlags(t *testing.T) {
	agg := engine.NewAggregator(false)
	ev := engine.Event{"type": "error"}

	coderRoutes["error"](ev, agg)

	assert.True(t, agg.ErrorFlag)
	assert.Equal(t, engine.ErrorKindUpstreamError, agg.ErrorKind)
}

func TestCoder_NonRetryableBySideEffect(t *testing.T) {
	a := NewCoder(testCoderConfig())
	assert.True(t, a.NonRetryableBySideEffect())
	assert.True(t, a.RequiresSessionID())
	assert.Equal(t, 0, a.DefaultMaxRetries())
}

func envMap(env []string) map[string]string {
	m := make(map[string]string, len(env))
	for _, kv := range env {
		key := splitEnvKeyForTest(kv)
		m[key] = kv[len(key)+1:]
	}
	return m
}

func splitEnvKeyForTest(kv string) string {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i]
		}
	}
	return kv
}
