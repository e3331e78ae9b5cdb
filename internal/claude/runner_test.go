package claude

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// scriptedRunner plays back queued responses and records each invocation.
type scriptedRunner struct {
	responses []scriptedResponse
	calls     [][]string
	dirs      []string
}

type scriptedResponse struct {
	output   string
	exitCode int
	err      error
	block    bool // consume the context deadline instead of returning
}

func (s *scriptedRunner) Run(ctx context.Context, dir, bin string, args ...string) (string, int, error) {
	s.calls = append(s.calls, append([]string{bin}, args...))
	s.dirs = append(s.dirs, dir)

	i := len(s.calls) - 1
	if i >= len(s.responses) {
		return "", 0, errors.New("unexpected call")
	}
	resp := s.responses[i]
	if resp.block {
		<-ctx.Done()
		return "", -1, nil
	}
	return resp.output, resp.exitCode, resp.err
}

func newTestRunner(cmd CommandRunner, maxRetries int) (*Runner, *[]time.Duration) {
	r := NewRunner(cmd, "claude", maxRetries, time.Second)
	var slept []time.Duration
	r.sleep = func(d time.Duration) { slept = append(slept, d) }
	return r, &slept
}

func TestRunArgsAndSuccess(t *testing.T) {
	cmd := &scriptedRunner{responses: []scriptedResponse{
		{output: `{"type": "result", "duration_ms": 2500, "total_cost_usd": 0.12}`},
	}}
	r, _ := newTestRunner(cmd, 2)

	res, err := r.Run(context.Background(), "fix the bug", Opts{Dir: "/work", Timeout: time.Minute})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{
		"claude",
		"--dangerously-skip-permissions",
		"--verbose",
		"--output-format", "stream-json",
		"--print",
		"fix the bug",
	}
	if len(cmd.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(cmd.calls))
	}
	got := cmd.calls[0]
	if len(got) != len(want) {
		t.Fatalf("args = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("arg[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if cmd.dirs[0] != "/work" {
		t.Errorf("dir = %q", cmd.dirs[0])
	}

	if res.DurationMs != 2500 || res.CostUSD != 0.12 {
		t.Errorf("metering = %d/%v", res.DurationMs, res.CostUSD)
	}
}

func TestRunRetriesWithLinearBackoff(t *testing.T) {
	cmd := &scriptedRunner{responses: []scriptedResponse{
		{output: "transient", exitCode: 1},
		{output: "transient", exitCode: 1},
		{output: "ok"},
	}}
	r, slept := newTestRunner(cmd, 2)

	res, err := r.Run(context.Background(), "p", Opts{Timeout: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	if res.Output != "ok" {
		t.Errorf("output = %q", res.Output)
	}
	if len(cmd.calls) != 3 {
		t.Errorf("calls = %d, want 3", len(cmd.calls))
	}
	if len(*slept) != 2 || (*slept)[0] != time.Second || (*slept)[1] != 2*time.Second {
		t.Errorf("backoff = %v, want [1s 2s]", *slept)
	}
}

func TestRunExhaustsRetries(t *testing.T) {
	long := strings.Repeat("x", 600) + " final failure detail"
	cmd := &scriptedRunner{responses: []scriptedResponse{
		{output: "fail 1", exitCode: 2},
		{output: long, exitCode: 2},
	}}
	r, _ := newTestRunner(cmd, 1)

	_, err := r.Run(context.Background(), "p", Opts{Timeout: time.Minute})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "exited 2 after 2 attempts") {
		t.Errorf("error = %v", err)
	}
	if !strings.Contains(err.Error(), "final failure detail") {
		t.Errorf("error should carry output tail: %v", err)
	}
}

func TestRunTimeoutOnFinalAttempt(t *testing.T) {
	cmd := &scriptedRunner{responses: []scriptedResponse{
		{block: true},
		{block: true},
	}}
	r, _ := newTestRunner(cmd, 1)

	_, err := r.Run(context.Background(), "p", Opts{Timeout: 10 * time.Millisecond})
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want *TimeoutError", err)
	}
	if te.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", te.Attempts)
	}
}

func TestRunTimeoutThenSuccess(t *testing.T) {
	cmd := &scriptedRunner{responses: []scriptedResponse{
		{block: true},
		{output: "recovered"},
	}}
	r, _ := newTestRunner(cmd, 1)

	res, err := r.Run(context.Background(), "p", Opts{Timeout: 10 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	if res.Output != "recovered" {
		t.Errorf("output = %q", res.Output)
	}
}

func TestRunHardErrorNotRetried(t *testing.T) {
	cmd := &scriptedRunner{responses: []scriptedResponse{
		{err: errors.New("exec claude: executable file not found")},
	}}
	r, _ := newTestRunner(cmd, 3)

	_, err := r.Run(context.Background(), "p", Opts{Timeout: time.Minute})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(cmd.calls) != 1 {
		t.Errorf("calls = %d, hard errors must not retry", len(cmd.calls))
	}
}

func TestRunWritesLogFile(t *testing.T) {
	cmd := &scriptedRunner{responses: []scriptedResponse{
		{output: "raw stream output"},
	}}
	r, _ := newTestRunner(cmd, 0)

	logPath := filepath.Join(t.TempDir(), "triage.log")
	if _, err := r.Run(context.Background(), "p", Opts{Timeout: time.Minute, LogFile: logPath}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "raw stream output" {
		t.Errorf("log = %q", data)
	}
}

func TestScanMetering(t *testing.T) {
	output := strings.Join([]string{
		`{"type": "system", "subtype": "init"}`,
		`not json at all`,
		`{"type": "result", "duration_ms": 1000, "total_cost_usd": 0.05}`,
		`{"type": "result", "duration_ms": 3000, "total_cost_usd": 0.20}`,
	}, "\n")

	ms, cost := scanMetering(output)
	if ms != 3000 || cost != 0.20 {
		t.Errorf("got %d/%v, want the last result event", ms, cost)
	}

	ms, cost = scanMetering("no metering here")
	if ms != 0 || cost != 0 {
		t.Errorf("absent metering should be zero, got %d/%v", ms, cost)
	}
}
