package adapter

import (
	"fmt"

	"github.com/google/shlex"
	"github.com/szstan/ccg-mcp/internal/config"
	"github.com/szstan/ccg-mcp/internal/engine"
)

// Reviewer is the code-review adapter: a reviewer CLI ("codex") that
// manages its own authentication and reads its own ambient config
// (~/.codex/config.toml). The bridge only overrides an optional default
// profile/model from [reviewer] in its own config file.
type Reviewer struct {
	cfg *config.ReviewerConfig
}

// NewReviewer builds a Reviewer adapter bound to the optional [reviewer]
// config section.
func NewReviewer(cfg *config.ReviewerConfig) *Reviewer {
	return &Reviewer{cfg: cfg}
}

func (a *Reviewer) Name() string { return "reviewer" }

func (a *Reviewer) RequiresSessionID() bool { return true }

func (a *Reviewer) DefaultMaxRetries() int { return 1 }

func (a *Reviewer) NonRetryableBySideEffect() bool { return false }

func (a *Reviewer) BuildChildSpec(req *engine.InvocationRequest) (*engine.ChildSpec, engine.RoutingTable, error) {
	var argv []string

	// "resume <session_id>" goes first, ahead of every other flag, with the
	// prompt still after "--". This placement is a judgment call; it has not
	// been checked against the vendor CLI's own grammar.
	if req.SessionID != "" {
		argv = append(argv, "resume", req.SessionID)
	}

	profile := a.cfg.Profile
	if req.Profile != "" {
		profile = req.Profile
	}
	if profile != "" {
		argv = append(argv, "--profile", profile)
	}

	model := a.cfg.Model
	if req.Model != "" {
		model = req.Model
	}
	if model != "" {
		argv = append(argv, "--model", model)
	}

	switch req.Sandbox {
	case engine.SandboxDangerFullAccess:
		argv = append(argv, "--dangerously-bypass-approvals-and-sandbox")
	case engine.SandboxWorkspaceWrite:
		argv = append(argv, "--sandbox", "workspace-write")
	default:
		argv = append(argv, "--sandbox", "read-only")
	}

	if req.SkipGitRepoCheck {
		argv = append(argv, "--skip-git-repo-check")
	}

	argv = append(argv, "--json")

	if req.ExtraArgs != "" {
		extra, err := shlex.Split(req.ExtraArgs)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing extra_args: %w", err)
		}
		argv = append(argv, extra...)
	}

	// Prompt is delivered after "--", per the vendor CLI's own
	// convention for separating flags from the free-form task text.
	argv = append(argv, "--", escapeArgvNewlines(req.Prompt))

	spec := &engine.ChildSpec{
		Executable: "codex",
		Argv:       argv,
		Env:        nil, // inherits the process environment unmodified
		Dir:        req.WorkDir,
		Stdin:      engine.StdinClosedEmpty,
		IsSentinel: reviewerIsSentinel,
	}

	return spec, reviewerRoutes, nil
}

func reviewerIsSentinel(ev engine.Event) bool {
	return ev.Discriminator() == "turn.completed"
}

var reviewerRoutes = engine.RoutingTable{
	"init": func(ev engine.Event, agg *engine.Aggregator) {
		if id, ok := ev.String("thread_id"); ok {
			agg.LatchSessionID(id)
		}
	},
	"turn.completed": func(ev engine.Event, agg *engine.Aggregator) {
		if id, ok := ev.String("thread_id"); ok {
			agg.LatchSessionID(id)
		}
	},
	"agent_message": func(ev engine.Event, agg *engine.Aggregator) {
		reviewerHandleItem(ev, agg)
	},
	"error": func(ev engine.Event, agg *engine.Aggregator) {
		if msg, ok := ev.String("message"); ok {
			agg.ApplyErrorMessage(msg)
			return
		}
		agg.SetError(engine.ErrorKindUpstreamError)
	},
}

// reviewerHandleItem extracts agent text from an event whose nested
// item.type is "agent_message", field item.text (§4.5). Discriminator()
// resolves such an event to "agent_message" via its item.type fallback.
func reviewerHandleItem(ev engine.Event, agg *engine.Aggregator) {
	if text, ok := ev.String("item", "text"); ok {
		agg.AppendText(text)
	}
}
