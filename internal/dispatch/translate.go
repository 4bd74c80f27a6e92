package dispatch

import (
	"fmt"
	"time"

	"github.com/google/shlex"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/szstan/ccg-mcp/internal/engine"
)

func parseInvocationRequest(req mcp.CallToolRequest) (*engine.InvocationRequest, error) {
	prompt, err := req.RequireString("prompt")
	if err != nil {
		return nil, fmt.Errorf("prompt: %w", err)
	}
	workDir, err := req.RequireString("work_dir")
	if err != nil {
		return nil, fmt.Errorf("work_dir: %w", err)
	}

	sandbox := engine.SandboxMode(req.GetString("sandbox", string(engine.SandboxWorkspaceWrite)))
	switch sandbox {
	case engine.SandboxReadOnly, engine.SandboxWorkspaceWrite, engine.SandboxDangerFullAccess:
	default:
		return nil, fmt.Errorf("sandbox: unrecognized value %q", sandbox)
	}

	invReq := &engine.InvocationRequest{
		Prompt:           prompt,
		WorkDir:          workDir,
		Sandbox:          sandbox,
		SessionID:        req.GetString("session_id", ""),
		Model:            req.GetString("model", ""),
		ExtraArgs:        req.GetString("extra_args", ""),
		Profile:          req.GetString("profile", ""),
		SkipGitRepoCheck: req.GetBool("skip_git_repo_check", false),
		IncludeFullLog:   req.GetBool("include_full_log", false),
		LogMetrics:       req.GetBool("log_metrics", false),
	}

	if idle := req.GetFloat("idle_timeout_s", 0); idle > 0 {
		invReq.IdleTimeout = time.Duration(idle * float64(time.Second))
	}
	if wall := req.GetFloat("wall_timeout_s", 0); wall > 0 {
		invReq.WallTimeout = time.Duration(wall * float64(time.Second))
	}

	if images := req.GetString("images", ""); images != "" {
		split, err := shlex.Split(images)
		if err != nil {
			return nil, fmt.Errorf("images: %w", err)
		}
		invReq.Images = split
	}

	return invReq, nil
}

// wireResult is the stable JSON shape returned as the tool's text
// content (SPEC_FULL.md §3, §6). Field presence mirrors success vs
// failure: either SessionID+ResultText, or Error+ErrorKind+ErrorDetail.
type wireResult struct {
	Success bool   `json:"success"`
	Tool    string `json:"tool"`

	SessionID string  `json:"SESSION_ID,omitempty"`
	Result    string  `json:"result,omitempty"`
	Duration  float64 `json:"duration"`

	Error       string           `json:"error,omitempty"`
	ErrorKind   string           `json:"error_kind,omitempty"`
	ErrorDetail *wireErrorDetail `json:"error_detail,omitempty"`
	Metrics     wireMetricsView  `json:"metrics,omitempty"`
	AllMessages []engine.Event   `json:"all_messages,omitempty"`
}

type wireErrorDetail struct {
	Message          string   `json:"message"`
	ExitCode         *int     `json:"exit_code,omitempty"`
	LastLines        []string `json:"last_lines,omitempty"`
	JSONDecodeErrors int      `json:"json_decode_errors,omitempty"`
	IdleTimeoutS     *float64 `json:"idle_timeout_s,omitempty"`
	MaxDurationS     *float64 `json:"max_duration_s,omitempty"`
	Retries          int      `json:"retries"`
}

// wireMetricsView carries the engine's *metrics.Metrics value as-is; it is
// typed as any, so the metrics object is marshaled with the field names of
// internal/metrics.Metrics.
type wireMetricsView = any

func toWireResult(r *engine.Result) wireResult {
	out := wireResult{
		Success:  r.Success,
		Tool:     r.Tool,
		Duration: r.Duration.Seconds(),
	}

	if r.Success {
		out.SessionID = r.SessionID
		out.Result = r.ResultText
	} else {
		out.Error = r.Error
		out.ErrorKind = string(r.ErrorKind)
		out.ErrorDetail = &wireErrorDetail{
			Message:          r.ErrorDetail.Message,
			ExitCode:         r.ErrorDetail.ExitCode,
			LastLines:        r.ErrorDetail.LastLines,
			JSONDecodeErrors: r.ErrorDetail.JSONDecodeErrors,
			IdleTimeoutS:     r.ErrorDetail.IdleTimeoutS,
			MaxDurationS:     r.ErrorDetail.MaxDurationS,
			Retries:          r.ErrorDetail.Retries,
		}
	}

	if r.Metrics != nil {
		out.Metrics = r.Metrics
	}
	if len(r.FullLog) > 0 {
		out.AllMessages = r.FullLog
	}

	return out
}
