package engine

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"syscall"
	"time"

	"github.com/szstan/ccg-mcp/internal/logger"
)

// SupervisorError is returned by Run when the attempt failed before or
// during the event loop, rather than by the retry driver's post-hoc
// terminal-criteria checks (§4.4).
type SupervisorError struct {
	Kind ErrorKind
	Err  error
}

func (e *SupervisorError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *SupervisorError) Unwrap() error { return e.Err }

// RunResult is the supervisor's terminal outcome (§9's "explicit record
// returned alongside the stream" — the Go rendering of the source's
// generator-return-value idiom).
type RunResult struct {
	ExitCode     int
	RawLineCount int
}

// Run spawns spec as a child process, streams its non-empty output lines to
// sink in order, and enforces the dual idle/wall-clock timeout policy
// (§4.2). It guarantees the child is reaped and the reader goroutine has
// joined before returning, on every exit path.
func Run(ctx context.Context, spec *ChildSpec, idleTimeout, wallTimeout time.Duration, sink func(line string)) (RunResult, error) {
	path, err := exec.LookPath(spec.Executable)
	if err != nil {
		return RunResult{}, &SupervisorError{Kind: ErrorKindCommandNotFound, Err: err}
	}

	cmd := exec.Command(path, spec.Argv...)
	cmd.Env = spec.Env
	cmd.Dir = spec.Dir
	// Bound how long Wait keeps copying output after the child exits, so a
	// grandchild that inherited the output pipe cannot hold the reap open.
	cmd.WaitDelay = KillGrace

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	var stdin io.WriteCloser
	if spec.Stdin == StdinDeliverPrompt {
		stdin, err = cmd.StdinPipe()
		if err != nil {
			pw.Close()
			return RunResult{}, &SupervisorError{Kind: ErrorKindSubprocessError, Err: err}
		}
	}

	if err := cmd.Start(); err != nil {
		pw.Close()
		return RunResult{}, &SupervisorError{Kind: ErrorKindSubprocessError, Err: err}
	}

	if spec.Stdin == StdinDeliverPrompt {
		go deliverPrompt(stdin, spec.Prompt)
	}

	cmdDone := make(chan struct{})
	go func() {
		cmd.Wait()
		pw.Close()
		close(cmdDone)
	}()

	reader := newLineReader(pr, spec.IsSentinel)
	go reader.run()

	// A panic in sink still runs the cleanup ladder before propagating.
	defer func() {
		if r := recover(); r != nil {
			cleanup(cmd, pr, pw, reader.out, cmdDone, true)
			panic(r)
		}
	}()

	timeoutKind, rawLineCount := eventLoop(ctx, reader.out, idleTimeout, wallTimeout, sink)

	exitCode, forcedTimeout := cleanup(cmd, pr, pw, reader.out, cmdDone, timeoutKind != ErrorKindNone)
	if forcedTimeout && timeoutKind == ErrorKindNone {
		// "Reap after loop": the child didn't exit promptly after a normal
		// loop exit, so it was forced through the cleanup ladder and is
		// reported as a wall-clock timeout (§4.2).
		timeoutKind = ErrorKindTimeout
	}

	if timeoutKind != ErrorKindNone {
		return RunResult{ExitCode: exitCode, RawLineCount: rawLineCount}, &SupervisorError{Kind: timeoutKind}
	}

	return RunResult{ExitCode: exitCode, RawLineCount: rawLineCount}, nil
}

// deliverPrompt writes the prompt to stdin and closes it. Broken-pipe
// failures are swallowed per §4.2 — they surface later as a missing-session
// or empty-result error instead.
func deliverPrompt(stdin io.WriteCloser, prompt string) {
	defer stdin.Close()
	_, err := io.WriteString(stdin, prompt)
	if err != nil && !errors.Is(err, syscall.EPIPE) {
		logger.Debug().Err(err).Msg("stdin write to child failed")
	}
}

// eventLoop is the §4.2 event loop: it dequeues lines with a 500ms bounded
// wait, advancing last-activity on every line (including empty ones), and
// fires idle or wall-clock timeouts. Wall-clock wins on a tie. It returns
// normally (ErrorKindNone) when the reader's channel closes.
func eventLoop(ctx context.Context, lines <-chan string, idleTimeout, wallTimeout time.Duration, sink func(string)) (ErrorKind, int) {
	startedAt := time.Now()
	lastActivity := startedAt
	rawLineCount := 0

	for {
		now := time.Now()
		if wallTimeout > 0 && now.Sub(startedAt) >= wallTimeout {
			return ErrorKindTimeout, rawLineCount
		}
		if idleTimeout > 0 && now.Sub(lastActivity) >= idleTimeout {
			return ErrorKindIdleTimeout, rawLineCount
		}

		select {
		case line, ok := <-lines:
			if !ok {
				return ErrorKindNone, rawLineCount
			}
			lastActivity = time.Now()
			if line != "" {
				rawLineCount++
				sink(line)
			}
		case <-time.After(500 * time.Millisecond):
			// re-check timeouts at the top of the loop.
		case <-ctx.Done():
			return ErrorKindUnexpectedException, rawLineCount
		}
	}
}

// cleanup runs the guaranteed §4.2 cleanup ladder: (i) close stdout to
// unblock the reader, (ii) escalate terminate → kill → give-up on the
// child if it's still alive, (iii) wait for the reader to join. On a
// normal loop exit it first gives the child a short reap grace to exit on
// its own before escalating ("Reap after loop"); forcedTimeout reports
// whether that grace was exceeded, meaning the normal-exit result should be
// reported as a wall-clock timeout. It returns the child's exit code, or -1
// if it could not be determined.
func cleanup(cmd *exec.Cmd, pr *io.PipeReader, pw *io.PipeWriter, lines <-chan string, cmdDone <-chan struct{}, wasTimeout bool) (exitCode int, forcedTimeout bool) {
	pr.Close()
	pw.Close()

	if !wasTimeout {
		select {
		case <-cmdDone:
			drainReader(lines)
			return processExitCode(cmd), false
		case <-time.After(ReapGrace):
			forcedTimeout = true
		}
	}

	if cmd.Process != nil {
		cmd.Process.Signal(syscall.SIGTERM)
	}
	select {
	case <-cmdDone:
	case <-time.After(TerminateGrace):
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		select {
		case <-cmdDone:
		case <-time.After(KillGrace):
			logger.Warn().Msg("child process did not exit after SIGKILL; giving up")
		}
	}

	drainReader(lines)
	return processExitCode(cmd), forcedTimeout
}

// drainReader waits for the reader goroutine's channel to close (bounded by
// ReapGrace), discarding any remaining buffered lines.
func drainReader(lines <-chan string) {
	deadline := time.After(ReapGrace)
	for {
		select {
		case _, ok := <-lines:
			if !ok {
				return
			}
		case <-deadline:
			return
		}
	}
}

func processExitCode(cmd *exec.Cmd) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}
