package githost

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// fakeCmd plays back queued responses and records every gh invocation.
type fakeCmd struct {
	responses []fakeResponse
	calls     [][]string
}

type fakeResponse struct {
	out string
	err error
}

func (f *fakeCmd) Run(args ...string) (string, error) {
	f.calls = append(f.calls, args)
	i := len(f.calls) - 1
	if i >= len(f.responses) {
		return "", errors.New("unexpected gh call")
	}
	return f.responses[i].out, f.responses[i].err
}

func newTestClient(cmd CmdRunner) *Client {
	c := NewClient(cmd, "acme/widgets")
	c.sleep = func(time.Duration) {}
	return c
}

func lastCall(t *testing.T, f *fakeCmd) []string {
	t.Helper()
	if len(f.calls) == 0 {
		t.Fatal("no gh calls recorded")
	}
	return f.calls[len(f.calls)-1]
}

func assertRepoScoped(t *testing.T, args []string) {
	t.Helper()
	n := len(args)
	if n < 2 || args[n-2] != "-R" || args[n-1] != "acme/widgets" {
		t.Errorf("call not repo-scoped: %v", args)
	}
}

func TestGetIssue(t *testing.T) {
	cmd := &fakeCmd{responses: []fakeResponse{
		{out: `{"number": 42, "title": "crash", "body": "trace", "labels": [{"name": "bug"}, {"name": "p1"}], "url": "https://github.com/acme/widgets/issues/42"}`},
	}}
	c := newTestClient(cmd)

	issue, err := c.GetIssue(42)
	if err != nil {
		t.Fatal(err)
	}
	if issue.Number != 42 || issue.Title != "crash" {
		t.Errorf("issue = %+v", issue)
	}
	if len(issue.Labels) != 2 || issue.Labels[0] != "bug" {
		t.Errorf("labels = %v", issue.Labels)
	}

	args := lastCall(t, cmd)
	if args[0] != "issue" || args[1] != "view" || args[2] != "42" {
		t.Errorf("args = %v", args)
	}
	assertRepoScoped(t, args)
}

func TestGetIssueInvalidNumber(t *testing.T) {
	c := newTestClient(&fakeCmd{})
	for _, n := range []int{0, -1} {
		if _, err := c.GetIssue(n); err == nil {
			t.Errorf("GetIssue(%d) should fail", n)
		}
	}
}

func TestRetryOnTransientError(t *testing.T) {
	cmd := &fakeCmd{responses: []fakeResponse{
		{err: errors.New("gh: API rate limit exceeded")},
		{err: errors.New("gh: network is unreachable")},
		{out: `{"number": 1, "title": "t", "body": "", "labels": [], "url": "u"}`},
	}}
	c := newTestClient(cmd)

	if _, err := c.GetIssue(1); err != nil {
		t.Fatalf("retries should recover: %v", err)
	}
	if len(cmd.calls) != 3 {
		t.Errorf("calls = %d, want 3", len(cmd.calls))
	}
}

func TestNoRetryOnPermanentError(t *testing.T) {
	cmd := &fakeCmd{responses: []fakeResponse{
		{err: errors.New("gh: could not resolve to an Issue")},
	}}
	c := newTestClient(cmd)

	if _, err := c.GetIssue(1); err == nil {
		t.Fatal("expected error")
	}
	if len(cmd.calls) != 1 {
		t.Errorf("calls = %d, permanent errors must not retry", len(cmd.calls))
	}
}

func TestIsRetryable(t *testing.T) {
	for _, msg := range []string{"rate limit exceeded", "request timeout", "service temporarily unavailable", "HTTP 503", "HTTP 502", "network error"} {
		if !IsRetryable(errors.New(msg)) {
			t.Errorf("%q should be retryable", msg)
		}
	}
	if IsRetryable(nil) || IsRetryable(errors.New("not found")) {
		t.Error("non-transient errors must not retry")
	}
}

func TestAddIssueComment(t *testing.T) {
	cmd := &fakeCmd{responses: []fakeResponse{{out: ""}}}
	c := newTestClient(cmd)

	if err := c.AddIssueComment(7, "hello"); err != nil {
		t.Fatal(err)
	}
	args := lastCall(t, cmd)
	if args[0] != "issue" || args[1] != "comment" || args[2] != "7" {
		t.Errorf("args = %v", args)
	}
	if args[3] != "--body" || args[4] != "hello" {
		t.Errorf("body args = %v", args)
	}
	assertRepoScoped(t, args)
}

func TestFindOpenPR(t *testing.T) {
	cmd := &fakeCmd{responses: []fakeResponse{
		{out: `[{"number": 12, "url": "https://github.com/acme/widgets/pull/12", "headRefName": "claude-auto-fix-42"}]`},
	}}
	c := newTestClient(cmd)

	pr, err := c.FindOpenPR("claude-auto-fix-42")
	if err != nil {
		t.Fatal(err)
	}
	if pr == nil || pr.Number != 12 || pr.HeadBranch != "claude-auto-fix-42" {
		t.Errorf("pr = %+v", pr)
	}
}

func TestFindOpenPRNone(t *testing.T) {
	for _, out := range []string{"", "[]"} {
		cmd := &fakeCmd{responses: []fakeResponse{{out: out}}}
		pr, err := newTestClient(cmd).FindOpenPR("branch")
		if err != nil {
			t.Fatal(err)
		}
		if pr != nil {
			t.Errorf("output %q: pr = %+v, want nil", out, pr)
		}
	}
}

func TestClosePR(t *testing.T) {
	cmd := &fakeCmd{responses: []fakeResponse{{out: ""}}}
	if err := newTestClient(cmd).ClosePR(12); err != nil {
		t.Fatal(err)
	}
	args := lastCall(t, cmd)
	if args[0] != "pr" || args[1] != "close" || args[2] != "12" {
		t.Errorf("args = %v", args)
	}
}

func TestCreatePR(t *testing.T) {
	cmd := &fakeCmd{responses: []fakeResponse{
		{out: "https://github.com/acme/widgets/pull/13"},
		{out: `{"number": 13, "url": "https://github.com/acme/widgets/pull/13", "headRefName": "claude-auto-fix-9"}`},
	}}
	c := newTestClient(cmd)

	pr, err := c.CreatePR(PRCreateOpts{
		Title: "Fix crash",
		Body:  "details",
		Head:  "claude-auto-fix-9",
		Base:  "develop",
		Draft: true,
		Label: "ai-fixes-experimental",
	})
	if err != nil {
		t.Fatal(err)
	}
	if pr.Number != 13 {
		t.Errorf("pr = %+v", pr)
	}

	create := cmd.calls[0]
	joined := strings.Join(create, " ")
	for _, want := range []string{
		"pr create",
		"--title Fix crash",
		"--head claude-auto-fix-9",
		"--base develop",
		"--label ai-fixes-experimental",
		"--draft",
		"-R acme/widgets",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("create args missing %q: %v", want, create)
		}
	}
}

func TestCreatePRViewFailureTolerated(t *testing.T) {
	cmd := &fakeCmd{responses: []fakeResponse{
		{out: "https://github.com/acme/widgets/pull/14"},
		{err: errors.New("gh: not found")},
	}}
	c := newTestClient(cmd)

	pr, err := c.CreatePR(PRCreateOpts{Title: "t", Head: "b", Base: "develop"})
	if err != nil {
		t.Fatal(err)
	}
	if pr.URL != "https://github.com/acme/widgets/pull/14" || pr.HeadBranch != "b" {
		t.Errorf("fallback pr = %+v", pr)
	}
}
