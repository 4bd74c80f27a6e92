// Package adapter implements the per-vendor modules described in
// SPEC_FULL.md §4.5: each one knows how to build a vendor CLI's argv and
// environment, which event marks a turn's completion, and where the
// session id and agent text live in that vendor's NDJSON protocol.
package adapter

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/shlex"
	"github.com/szstan/ccg-mcp/internal/config"
	"github.com/szstan/ccg-mcp/internal/engine"
)

// Coder is the code-executor adapter: a hosted-Claude-compatible CLI
// ("claude") driven entirely through environment overlay so it talks to
// a GLM-4.7-class backend instead of Anthropic's own API. It has no
// required config beyond the API token, never retries (a retry would
// re-run whatever file edits the first attempt made), and delivers the
// prompt on argv rather than stdin.
type Coder struct {
	cfg *config.CoderConfig
}

// NewCoder builds a Coder adapter bound to the process's cached coder
// configuration.
func NewCoder(cfg *config.CoderConfig) *Coder {
	return &Coder{cfg: cfg}
}

func (a *Coder) Name() string { return "coder" }

func (a *Coder) RequiresSessionID() bool { return true }

func (a *Coder) DefaultMaxRetries() int { return 0 }

// NonRetryableBySideEffect is true: the coder tool writes to the
// workspace, so a transient failure is never safe to blindly replay.
func (a *Coder) NonRetryableBySideEffect() bool { return true }

var coderSystemPreamble = "[SYSTEM] You are the code-executor model. Execute the following task directly; do not ask the user clarifying questions.\n\n"

func (a *Coder) BuildChildSpec(req *engine.InvocationRequest) (*engine.ChildSpec, engine.RoutingTable, error) {
	prompt := coderSystemPreamble + escapeArgvNewlines(req.Prompt)

	argv := []string{"-p", prompt, "--output-format", "stream-json", "--verbose"}

	switch req.Sandbox {
	case engine.SandboxReadOnly:
		// no extra flag: the CLI's own default denies writes.
	default:
		argv = append(argv, "--dangerously-skip-permissions")
	}

	if req.SessionID != "" {
		argv = append(argv, "-r", req.SessionID)
	}

	if req.ExtraArgs != "" {
		extra, err := shlex.Split(req.ExtraArgs)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing extra_args: %w", err)
		}
		argv = append(argv, extra...)
	}

	model := a.cfg.Model
	if req.Model != "" {
		model = req.Model
	}
	env := a.cfg.BuildCoderEnv()
	if model != a.cfg.Model {
		env = overrideModelAliases(env, model)
	}

	spec := &engine.ChildSpec{
		Executable: "claude",
		Argv:       argv,
		Env:        env,
		Dir:        req.WorkDir,
		Stdin:      engine.StdinClosedEmpty,
		IsSentinel: coderIsSentinel,
	}

	return spec, coderRoutes, nil
}

func coderIsSentinel(ev engine.Event) bool {
	switch ev.Discriminator() {
	case "result", "error":
		return true
	}
	return false
}

var coderRoutes = engine.RoutingTable{
	"result": func(ev engine.Event, agg *engine.Aggregator) {
		if id, ok := ev.String("result", "session_id"); ok {
			agg.LatchSessionID(id)
		}
		if text, ok := ev.String("result", "result"); ok {
			agg.AppendText(text)
		}
	},
	"error": func(ev engine.Event, agg *engine.Aggregator) {
		if msg, ok := ev.String("error", "message"); ok {
			agg.ApplyErrorMessage(msg)
			return
		}
		agg.SetError(engine.ErrorKindUpstreamError)
	},
}

// escapeArgvNewlines replaces literal newlines in a prompt delivered on
// argv with the two-character sequence "\n" on hosts whose path
// separator is ';' (Windows), where argv newlines risk command-line
// truncation (§4.5).
func escapeArgvNewlines(prompt string) string {
	if filepath.ListSeparator != ';' {
		return prompt
	}
	return strings.ReplaceAll(prompt, "\n", `\n`)
}

// overrideModelAliases re-applies the four model-alias environment
// variables with a per-request model override, leaving the rest of the
// base environment (credentials, extras) untouched.
func overrideModelAliases(env []string, model string) []string {
	aliases := map[string]bool{
		"ANTHROPIC_DEFAULT_OPUS_MODEL=":   true,
		"ANTHROPIC_DEFAULT_SONNET_MODEL=": true,
		"ANTHROPIC_DEFAULT_HAIKU_MODEL=":  true,
		"CLAUDE_CODE_SUBAGENT_MODEL=":     true,
	}
	out := make([]string, 0, len(env))
	for _, kv := range env {
		skip := false
		for prefix := range aliases {
			if strings.HasPrefix(kv, prefix) {
				out = append(out, prefix+model)
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, kv)
		}
	}
	return out
}
