// Package githost talks to GitHub through the gh CLI. All commands are
// scoped to a single repository and transient failures are retried.
package githost

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/bobsummerwill/strato-fix-all-the-things/internal/model"
)

// CmdRunner provides gh command execution. Interface for testing.
type CmdRunner interface {
	Run(args ...string) (string, error)
}

// ExecRunner runs gh commands via exec.
type ExecRunner struct{}

func (r *ExecRunner) Run(args ...string) (string, error) {
	cmd := exec.Command("gh", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("gh %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Client provides GitHub operations scoped to one repository.
type Client struct {
	cmd     CmdRunner
	repo    string
	retries int
	sleep   func(time.Duration) // overridable in tests
}

// NewClient creates a client for the given owner/repo.
func NewClient(cmd CmdRunner, repo string) *Client {
	return &Client{cmd: cmd, repo: repo, retries: 2, sleep: time.Sleep}
}

// retryableTokens identify transient gh failures worth retrying.
var retryableTokens = []string{"rate limit", "timeout", "temporarily", "503", "502", "network"}

// IsRetryable reports whether a gh error looks transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, token := range retryableTokens {
		if strings.Contains(msg, token) {
			return true
		}
	}
	return false
}

// run executes a gh command against the client's repo, retrying transient
// failures with linear backoff.
func (c *Client) run(args ...string) (string, error) {
	full := append(append([]string{}, args...), "-R", c.repo)

	var out string
	var err error
	for attempt := 1; attempt <= c.retries+1; attempt++ {
		out, err = c.cmd.Run(full...)
		if err == nil {
			return out, nil
		}
		if attempt > c.retries || !IsRetryable(err) {
			break
		}
		c.sleep(time.Duration(attempt) * time.Second)
	}
	return out, err
}

// ghIssue mirrors the gh issue view JSON shape.
type ghIssue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
	URL string `json:"url"`
}

// GetIssue fetches a GitHub issue by number.
func (c *Client) GetIssue(number int) (*model.Issue, error) {
	if number <= 0 {
		return nil, fmt.Errorf("invalid issue number %d: must be positive", number)
	}

	out, err := c.run("issue", "view", strconv.Itoa(number), "--json", "number,title,body,labels,url")
	if err != nil {
		return nil, fmt.Errorf("get issue %d: %w", number, err)
	}

	var raw ghIssue
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, fmt.Errorf("parse issue JSON: %w", err)
	}

	issue := &model.Issue{
		Number: raw.Number,
		Title:  raw.Title,
		Body:   raw.Body,
		Labels: make([]string, 0, len(raw.Labels)),
		URL:    raw.URL,
	}
	for _, l := range raw.Labels {
		issue.Labels = append(issue.Labels, l.Name)
	}
	return issue, nil
}

// AddIssueComment posts a comment on an issue.
func (c *Client) AddIssueComment(number int, body string) error {
	if _, err := c.run("issue", "comment", strconv.Itoa(number), "--body", body); err != nil {
		return fmt.Errorf("comment on issue %d: %w", number, err)
	}
	return nil
}

// PullRequest is the subset of PR data the tool needs.
type PullRequest struct {
	Number     int    `json:"number"`
	URL        string `json:"url"`
	HeadBranch string `json:"headRefName"`
}

// FindOpenPR returns the open PR for a branch, or nil when none exists.
func (c *Client) FindOpenPR(branch string) (*PullRequest, error) {
	out, err := c.run("pr", "list", "--head", branch, "--state", "open", "--json", "number,url,headRefName")
	if err != nil {
		// A missing PR is not an error; surface only real failures.
		return nil, fmt.Errorf("list PRs for %s: %w", branch, err)
	}
	if out == "" {
		return nil, nil
	}

	var prs []PullRequest
	if err := json.Unmarshal([]byte(out), &prs); err != nil {
		return nil, fmt.Errorf("parse PR list JSON: %w", err)
	}
	if len(prs) == 0 {
		return nil, nil
	}
	return &prs[0], nil
}

// ClosePR closes a pull request.
func (c *Client) ClosePR(number int) error {
	if _, err := c.run("pr", "close", strconv.Itoa(number)); err != nil {
		return fmt.Errorf("close PR %d: %w", number, err)
	}
	return nil
}

// PRCreateOpts holds options for creating a PR.
type PRCreateOpts struct {
	Title string
	Body  string
	Head  string
	Base  string
	Draft bool
	Label string
}

// CreatePR creates a pull request and returns its details.
func (c *Client) CreatePR(opts PRCreateOpts) (*PullRequest, error) {
	args := []string{
		"pr", "create",
		"--title", opts.Title,
		"--body", opts.Body,
		"--head", opts.Head,
		"--base", opts.Base,
	}
	if opts.Label != "" {
		args = append(args, "--label", opts.Label)
	}
	if opts.Draft {
		args = append(args, "--draft")
	}

	out, err := c.run(args...)
	if err != nil {
		return nil, fmt.Errorf("create PR: %w", err)
	}
	prURL := strings.TrimSpace(out)

	// gh pr create prints only the URL; view it to get the number.
	viewOut, err := c.run("pr", "view", prURL, "--json", "number,url,headRefName")
	if err != nil {
		return &PullRequest{URL: prURL, HeadBranch: opts.Head}, nil
	}
	var pr PullRequest
	if err := json.Unmarshal([]byte(viewOut), &pr); err != nil {
		return &PullRequest{URL: prURL, HeadBranch: opts.Head}, nil
	}
	return &pr, nil
}
