package dispatch

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/szstan/ccg-mcp/internal/adapter"
	"github.com/szstan/ccg-mcp/internal/config"
	"github.com/szstan/ccg-mcp/internal/engine"
)

func newCoderAdapter(cfg *config.Config) engine.Adapter {
	return adapter.NewCoder(&cfg.Coder)
}

func newReviewerAdapter(cfg *config.Config) engine.Adapter {
	return adapter.NewReviewer(&cfg.Reviewer)
}

func newGeneralistAdapter(cfg *config.Config) engine.Adapter {
	return adapter.NewGeneralist(&cfg.Generalist)
}

func commonParams() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("prompt", mcp.Required(), mcp.Description("the task or question to send to the model")),
		mcp.WithString("work_dir", mcp.Required(), mcp.Description("working directory the CLI should run in")),
		mcp.WithString("sandbox", mcp.Description("read-only, workspace-write, or danger-full-access (default workspace-write)")),
		mcp.WithString("session_id", mcp.Description("a prior session id to resume, if any")),
		mcp.WithString("model", mcp.Description("override the configured default model")),
		mcp.WithString("extra_args", mcp.Description("additional shell-style flags forwarded verbatim to the CLI")),
		mcp.WithNumber("idle_timeout_s", mcp.Description("seconds of silence before the call is aborted")),
		mcp.WithNumber("wall_timeout_s", mcp.Description("maximum total seconds before the call is aborted")),
		mcp.WithBoolean("include_full_log", mcp.Description("include the full decoded event log in the response")),
		mcp.WithBoolean("log_metrics", mcp.Description("emit a one-line JSON metrics record to the server's stderr for this call")),
	}
}

func coderTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Execute a precise code-generation or code-modification task with a hosted coding model. Requires write access by default."),
	}, commonParams()...)
	return mcp.NewTool("coder", opts...)
}

func reviewerTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Ask a code-review specialist CLI to review a diff or describe findings. Sandbox defaults to workspace-write, as for the other tools."),
		mcp.WithString("profile", mcp.Description("override the configured reviewer profile")),
		mcp.WithBoolean("skip_git_repo_check", mcp.Description("allow running outside a git repository")),
	}, commonParams()...)
	return mcp.NewTool("reviewer", opts...)
}

func generalistTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Ask a general-purpose reasoning CLI an open-ended question. Does not require an established session."),
		mcp.WithString("images", mcp.Description("space-separated paths to image files to attach to the prompt")),
	}, commonParams()...)
	return mcp.NewTool("generalist", opts...)
}
