// Package claude invokes the Claude CLI as a subprocess and captures its
// stream-json output. The runner enforces a wall-clock timeout per attempt
// and retries transient failures with linear backoff; interpreting the
// output is left to the extract package.
package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// CommandRunner abstracts subprocess execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, dir string, bin string, args ...string) (output string, exitCode int, err error)
}

// ExecRunner implements CommandRunner by shelling out.
type ExecRunner struct{}

func (e *ExecRunner) Run(ctx context.Context, dir string, bin string, args ...string) (string, int, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var buf strings.Builder
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else if ctx.Err() == nil {
			return buf.String(), -1, fmt.Errorf("exec %s: %w", bin, err)
		} else {
			exitCode = -1
		}
	}
	return buf.String(), exitCode, nil
}

// TimeoutError reports that the agent process exceeded its wall-clock budget
// on the final attempt. It is not retryable.
type TimeoutError struct {
	Timeout  time.Duration
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("claude timed out after %s (attempt %d)", e.Timeout, e.Attempts)
}

// Result holds the raw output of a successful Claude invocation plus any
// metering the stream reported.
type Result struct {
	Output     string
	DurationMs int
	CostUSD    float64
}

// Opts configures a single Claude invocation.
type Opts struct {
	Dir     string        // working directory for the agent process
	Timeout time.Duration // wall-clock budget per attempt
	LogFile string        // raw output destination, "" to skip
}

// Runner invokes the Claude CLI.
type Runner struct {
	cmd        CommandRunner
	bin        string
	maxRetries int
	baseDelay  time.Duration
	progress   io.Writer
	sleep      func(time.Duration) // overridable in tests
}

// NewRunner creates a Runner. maxRetries is the number of retries after the
// first attempt; baseDelay scales the linear backoff (delay = base × attempt).
func NewRunner(cmd CommandRunner, bin string, maxRetries int, baseDelay time.Duration) *Runner {
	return &Runner{
		cmd:        cmd,
		bin:        bin,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		sleep:      time.Sleep,
	}
}

// SetProgress sets a writer for progress output.
func (r *Runner) SetProgress(w io.Writer) {
	r.progress = w
}

func (r *Runner) logf(format string, args ...any) {
	if r.progress != nil {
		fmt.Fprintf(r.progress, format+"\n", args...)
	}
}

// Run executes the Claude CLI with the given prompt. Non-zero exits are
// retried with linear backoff up to the configured retry count; a timeout on
// the final attempt surfaces as *TimeoutError. The raw output of the last
// attempt is written to opts.LogFile.
func (r *Runner) Run(ctx context.Context, prompt string, opts Opts) (*Result, error) {
	args := []string{
		"--dangerously-skip-permissions",
		"--verbose",
		"--output-format", "stream-json",
		"--print",
		prompt,
	}

	attempts := r.maxRetries + 1
	var lastOutput string
	var lastExit int

	for attempt := 1; attempt <= attempts; attempt++ {
		actx, cancel := context.WithTimeout(ctx, opts.Timeout)
		output, exitCode, err := r.cmd.Run(actx, opts.Dir, r.bin, args...)
		timedOut := actx.Err() == context.DeadlineExceeded
		cancel()

		if opts.LogFile != "" && output != "" {
			_ = os.WriteFile(opts.LogFile, []byte(output), 0o644)
		}

		if err != nil {
			return nil, err
		}

		if timedOut {
			if attempt == attempts {
				return nil, &TimeoutError{Timeout: opts.Timeout, Attempts: attempt}
			}
			r.logf("claude timed out (attempt %d/%d), retrying", attempt, attempts)
		} else if exitCode == 0 {
			res := &Result{Output: output}
			res.DurationMs, res.CostUSD = scanMetering(output)
			return res, nil
		} else {
			lastOutput, lastExit = output, exitCode
			if attempt == attempts {
				break
			}
			r.logf("claude exited %d (attempt %d/%d), retrying", exitCode, attempt, attempts)
		}

		r.sleep(r.baseDelay * time.Duration(attempt))
	}

	return nil, fmt.Errorf("claude exited %d after %d attempts: %s", lastExit, attempts, tail(lastOutput, 400))
}

// meteringEvent is the accounting line Claude emits at the end of a run.
type meteringEvent struct {
	Type       string  `json:"type"`
	DurationMs int     `json:"duration_ms"`
	CostUSD    float64 `json:"total_cost_usd"`
}

// scanMetering opportunistically pulls duration and cost from the stream's
// result event. Absent or malformed events are informational-only and never
// fail the run.
func scanMetering(output string) (durationMs int, costUSD float64) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var ev meteringEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		if ev.Type == "result" {
			durationMs = ev.DurationMs
			costUSD = ev.CostUSD
		}
	}
	return durationMs, costUSD
}

// tail returns at most n trailing bytes of s for error messages.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
