package adapter

import (
	"fmt"

	"github.com/google/shlex"
	"github.com/szstan/ccg-mcp/internal/config"
	"github.com/szstan/ccg-mcp/internal/engine"
)

// Generalist is the open-ended-reasoning adapter: a generalist CLI
// ("gemini") that receives its prompt on stdin rather than argv, and —
// unlike the other two adapters — does not require a session id on
// success, since it is commonly invoked for one-shot questions that
// never establish a multi-turn thread.
type Generalist struct {
	cfg *config.GeneralistConfig
}

// NewGeneralist builds a Generalist adapter bound to the optional
// [generalist] config section.
func NewGeneralist(cfg *config.GeneralistConfig) *Generalist {
	return &Generalist{cfg: cfg}
}

func (a *Generalist) Name() string { return "generalist" }

// RequiresSessionID is false: the generalist adapter waives the
// session-id requirement (§4.4).
func (a *Generalist) RequiresSessionID() bool { return false }

func (a *Generalist) DefaultMaxRetries() int { return 1 }

func (a *Generalist) NonRetryableBySideEffect() bool { return false }

func (a *Generalist) BuildChildSpec(req *engine.InvocationRequest) (*engine.ChildSpec, engine.RoutingTable, error) {
	argv := []string{"--output-format", "json"}

	if req.SessionID != "" {
		argv = append(argv, "--resume", req.SessionID)
	}

	model := a.cfg.Model
	if req.Model != "" {
		model = req.Model
	}
	if model != "" {
		argv = append(argv, "--model", model)
	}

	switch req.Sandbox {
	case engine.SandboxDangerFullAccess, engine.SandboxWorkspaceWrite:
		argv = append(argv, "--yolo")
	default:
		// read-only is the CLI's own default; no flag needed.
	}

	for _, img := range req.Images {
		argv = append(argv, "--image", img)
	}

	if req.ExtraArgs != "" {
		extra, err := shlex.Split(req.ExtraArgs)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing extra_args: %w", err)
		}
		argv = append(argv, extra...)
	}

	spec := &engine.ChildSpec{
		Executable: "gemini",
		Argv:       argv,
		Env:        nil,
		Dir:        req.WorkDir,
		Stdin:      engine.StdinDeliverPrompt,
		Prompt:     req.Prompt,
		IsSentinel: generalistIsSentinel,
	}

	return spec, generalistRoutes, nil
}

func generalistIsSentinel(ev engine.Event) bool {
	return ev.Discriminator() == "turn.completed"
}

var generalistRoutes = engine.RoutingTable{
	"init": func(ev engine.Event, agg *engine.Aggregator) {
		if id, ok := ev.String("init", "session_id"); ok {
			agg.LatchSessionID(id)
			return
		}
		if id, ok := ev.String("init", "thread_id"); ok {
			agg.LatchSessionID(id)
		}
	},
	"message": func(ev engine.Event, agg *engine.Aggregator) {
		if role, ok := ev.String("role"); ok && role != "assistant" {
			return
		}
		if text, ok := ev.String("content"); ok {
			agg.AppendText(text)
		}
	},
	"turn.completed": func(ev engine.Event, agg *engine.Aggregator) {
		if agg.Text() != "" {
			return
		}
		if text, ok := ev.String("result", "response"); ok {
			agg.AppendText(text)
		}
	},
	"error": func(ev engine.Event, agg *engine.Aggregator) {
		if msg, ok := ev.String("message"); ok {
			agg.ApplyErrorMessage(msg)
			return
		}
		agg.SetError(engine.ErrorKindUpstreamError)
	},
}
