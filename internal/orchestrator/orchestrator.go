// Package orchestrator drives issues end to end: fetch the issue, prepare
// the working clone, run the agent pipeline, then publish the outcome back
// to GitHub as a draft PR or an explanatory comment.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/bobsummerwill/strato-fix-all-the-things/internal/agent"
	"github.com/bobsummerwill/strato-fix-all-the-things/internal/claude"
	"github.com/bobsummerwill/strato-fix-all-the-things/internal/config"
	"github.com/bobsummerwill/strato-fix-all-the-things/internal/gitops"
	"github.com/bobsummerwill/strato-fix-all-the-things/internal/githost"
	"github.com/bobsummerwill/strato-fix-all-the-things/internal/model"
	"github.com/bobsummerwill/strato-fix-all-the-things/internal/pipeline"
	"github.com/bobsummerwill/strato-fix-all-the-things/internal/runstore"
)

// prLabel marks every PR the tool opens.
const prLabel = "ai-fixes-experimental"

// commitExcludes are pathspecs never committed, whatever the fix touched.
var commitExcludes = []string{".env", "*.env"}

// Orchestrator processes issues in a tool-managed clone.
type Orchestrator struct {
	cfg      *config.Autofix
	github   *githost.Client
	repo     *gitops.Repo
	store    *runstore.Store
	claude   *claude.Runner
	events   pipeline.EventLog
	progress io.Writer
}

// New creates an Orchestrator. events may be nil.
func New(cfg *config.Autofix, github *githost.Client, repo *gitops.Repo, store *runstore.Store, runner *claude.Runner, events pipeline.EventLog, progress io.Writer) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		github:   github,
		repo:     repo,
		store:    store,
		claude:   runner,
		events:   events,
		progress: progress,
	}
}

func (o *Orchestrator) logf(level, format string, args ...any) {
	if o.progress != nil {
		fmt.Fprintf(o.progress, "[%s] %s\n", level, fmt.Sprintf(format, args...))
	}
}

// BranchName returns the feature branch used for an issue.
func BranchName(issueNumber int) string {
	return fmt.Sprintf("claude-auto-fix-%d", issueNumber)
}

// BatchResult summarizes a batch run.
type BatchResult struct {
	Succeeded []int
	Skipped   []int
	Failed    []int
}

// Ok reports whether the batch had zero failures.
func (r BatchResult) Ok() bool {
	return len(r.Failed) == 0
}

// ProcessBatch runs each issue through the pipeline in order. A failure,
// error, or panic in one issue never aborts the rest of the batch.
func (o *Orchestrator) ProcessBatch(ctx context.Context, issues []int) BatchResult {
	var result BatchResult
	for i, num := range issues {
		o.logf("INFO", "==================================================")
		o.logf("INFO", "  Issue #%d (%d/%d)", num, i+1, len(issues))
		o.logf("INFO", "==================================================")

		status := o.processSafely(ctx, num)
		switch status {
		case model.PipelineSuccess:
			result.Succeeded = append(result.Succeeded, num)
		case model.PipelineSkipped:
			result.Skipped = append(result.Skipped, num)
		default:
			result.Failed = append(result.Failed, num)
		}
	}

	o.logf("INFO", "==================================================")
	o.logf("INFO", "  Summary")
	o.logf("INFO", "==================================================")
	if len(result.Succeeded) > 0 {
		o.logf("SUCCESS", "Completed (%d): %s", len(result.Succeeded), joinInts(result.Succeeded))
	}
	if len(result.Skipped) > 0 {
		o.logf("WARNING", "Skipped (%d): %s", len(result.Skipped), joinInts(result.Skipped))
	}
	if len(result.Failed) > 0 {
		o.logf("ERROR", "Failed (%d): %s", len(result.Failed), joinInts(result.Failed))
	}
	o.logf("INFO", "Total: %d issues processed", len(issues))
	o.logf("INFO", "Run logs: %s", o.store.BaseDir())
	return result
}

// processSafely converts panics from a single issue into a failed status.
func (o *Orchestrator) processSafely(ctx context.Context, issueNumber int) (status model.PipelineStatus) {
	defer func() {
		if r := recover(); r != nil {
			o.logf("ERROR", "Unexpected error processing #%d: %v", issueNumber, r)
			o.cleanupGitState(BranchName(issueNumber))
			status = model.PipelineFailed
		}
	}()
	return o.ProcessIssue(ctx, issueNumber)
}

// ProcessIssue runs one issue end to end and returns its terminal status.
// All git operations are destructive: the working clone is tool-managed and
// its state is reset to origin's base branch before every run.
func (o *Orchestrator) ProcessIssue(ctx context.Context, issueNumber int) model.PipelineStatus {
	o.logf("INFO", "Fetching issue #%d...", issueNumber)
	issue, err := o.github.GetIssue(issueNumber)
	if err != nil {
		o.logf("ERROR", "Failed to fetch issue: %v", err)
		return model.PipelineFailed
	}
	o.logf("SUCCESS", "Issue: %s", issue.Title)
	labels := "none"
	if len(issue.Labels) > 0 {
		labels = strings.Join(issue.Labels, ", ")
	}
	o.logf("INFO", "Labels: %s", labels)

	run, err := o.store.CreateRun(issue)
	if err != nil {
		o.logf("ERROR", "Failed to create run dir: %v", err)
		return model.PipelineFailed
	}

	branch := BranchName(issueNumber)
	if err := o.prepareBranch(branch); err != nil {
		o.logf("ERROR", "Git error: %v", err)
		return model.PipelineFailed
	}

	o.logf("INFO", "Starting multi-agent pipeline...")
	actx := &agent.Context{
		Ctx:        ctx,
		Cfg:        o.cfg,
		Issue:      issue,
		Run:        run,
		Previous:   map[string]*model.AgentState{},
		Claude:     o.claude,
		Workdir:    o.repo.Dir(),
		Progress:   o.progress,
		HasChanges: o.repo.HasChanges,
	}
	ctrl := pipeline.New(o.cfg.MaxFixReviewIterations, o.progress, o.events)
	state := ctrl.Run(actx)

	if err := o.store.AppendMetrics(runstore.MetricsFromState(state, run.Dir)); err != nil {
		o.logf("WARNING", "Failed to record metrics: %v", err)
	}

	switch state.Status {
	case model.PipelineSuccess:
		return o.handleSuccess(actx, state, branch, run)
	case model.PipelineSkipped:
		o.cleanupGitState(branch)
		return o.handleSkip(actx, state)
	default:
		return o.handleFailure(actx, state, branch)
	}
}

// prepareBranch forces the working clone to a fresh feature branch off the
// up-to-date base branch, closing any stale PR and deleting stale branches.
func (o *Orchestrator) prepareBranch(branch string) error {
	o.logf("INFO", "Preparing git branch...")

	if dirty, err := o.repo.IsDirty(); err == nil && dirty {
		o.repo.DiscardChanges()
	}

	o.logf("INFO", "Fetching latest from origin...")
	if err := o.repo.Fetch("origin"); err != nil {
		return err
	}
	if err := o.repo.Checkout(o.cfg.BaseBranch); err != nil {
		return err
	}
	if err := o.repo.ResetHard("origin/" + o.cfg.BaseBranch); err != nil {
		return err
	}
	o.logf("SUCCESS", "Reset to origin/%s", o.cfg.BaseBranch)

	if pr, err := o.github.FindOpenPR(branch); err == nil && pr != nil {
		o.logf("WARNING", "Closing existing PR #%d...", pr.Number)
		if err := o.github.ClosePR(pr.Number); err != nil {
			o.logf("WARNING", "Failed to close PR #%d: %v", pr.Number, err)
		}
	}

	if exists, _ := o.repo.BranchExists(branch); exists {
		if err := o.repo.DeleteBranch(branch, true); err != nil {
			return err
		}
	}
	if err := o.repo.DeleteRemoteBranch(branch); err != nil {
		o.logf("WARNING", "Failed to delete remote branch: %v", err)
	}

	if err := o.repo.CreateBranch(branch); err != nil {
		return err
	}
	o.logf("SUCCESS", "Created branch %s", branch)
	return nil
}

// cleanupGitState discards changes and returns to the base branch. Best
// effort, used on every non-publishing exit path.
func (o *Orchestrator) cleanupGitState(branch string) {
	o.repo.DiscardChanges()
	if err := o.repo.Checkout(o.cfg.BaseBranch); err != nil {
		return
	}
	o.repo.DeleteBranch(branch, true)
}

// handleSuccess commits, pushes, and opens a draft PR for an approved fix.
// A pipeline success with nothing to push is downgraded to skipped.
func (o *Orchestrator) handleSuccess(actx *agent.Context, state *model.PipelineState, branch string, run *runstore.Run) model.PipelineStatus {
	o.logf("INFO", "Pipeline succeeded, creating PR...")
	issue := actx.Issue

	fixTitle := fmt.Sprintf("Claude Fix #%d: %s", issue.Number, issue.Title)
	detail := buildDetailBody(actx, state)

	commitMsg := fmt.Sprintf("%s\n\nFixes #%d\n\n%s", fixTitle, issue.Number, detail)
	if changed, err := o.repo.HasChanges(); err == nil && changed {
		if err := o.repo.Add(commitExcludes); err != nil {
			o.logf("ERROR", "Failed to stage changes: %v", err)
			return model.PipelineFailed
		}
		if err := o.repo.Commit(commitMsg); err != nil {
			o.logf("ERROR", "Failed to commit: %v", err)
			return model.PipelineFailed
		}
	}

	unpushed, err := o.repo.HasUnpushedCommits("origin", branch)
	if err != nil || !unpushed {
		o.logf("WARNING", "No commits to push")
		o.comment(issue.Number, fmt.Sprintf(
			"Pipeline completed but no code changes were made.\n\nAggregate confidence: %g",
			state.AggregateConfidence))
		return model.PipelineSkipped
	}
	diffFiles, err := o.repo.DiffNames("origin/" + o.cfg.BaseBranch)
	if err == nil && len(diffFiles) == 0 {
		o.logf("WARNING", "No diff against base branch")
		o.comment(issue.Number, fmt.Sprintf(
			"Pipeline completed but no code changes were detected against base branch.\n\nAggregate confidence: %g",
			state.AggregateConfidence))
		return model.PipelineSkipped
	}

	if err := o.repo.Push("origin", branch, true); err != nil {
		o.logf("ERROR", "Failed to push: %v", err)
		return model.PipelineFailed
	}
	o.logf("SUCCESS", "Pushed to origin/%s", branch)

	pr, err := o.github.CreatePR(githost.PRCreateOpts{
		Title: fixTitle,
		Body:  buildPRBody(issue.Number, detail, state),
		Head:  branch,
		Base:  o.cfg.BaseBranch,
		Draft: true,
		Label: prLabel,
	})
	if err != nil {
		o.logf("ERROR", "Failed to create PR: %v", err)
		return model.PipelineFailed
	}
	o.logf("SUCCESS", "Created PR: %s", pr.URL)

	o.comment(issue.Number, buildSuccessComment(pr.URL, detail))
	return model.PipelineSuccess
}

// handleSkip posts an explanatory comment for runs that ended without a fix.
func (o *Orchestrator) handleSkip(actx *agent.Context, state *model.PipelineState) model.PipelineStatus {
	o.logf("WARNING", "Pipeline skipped: %s", state.FailureReason)

	if strings.Contains(strings.ToLower(state.FailureReason), "no changes") {
		o.comment(actx.Issue.Number, buildNoChangesComment(actx))
		return model.PipelineSkipped
	}

	o.comment(actx.Issue.Number, buildTriageSkipComment(actx))
	return model.PipelineSkipped
}

// handleFailure cleans up git state and posts a diagnostic comment.
func (o *Orchestrator) handleFailure(actx *agent.Context, state *model.PipelineState, branch string) model.PipelineStatus {
	o.logf("ERROR", "Pipeline failed: %s", state.FailureReason)
	o.cleanupGitState(branch)
	o.comment(actx.Issue.Number, buildFailureComment(actx, state))
	return model.PipelineFailed
}

// comment posts an issue comment, tolerating failure.
func (o *Orchestrator) comment(issueNumber int, body string) {
	if err := o.github.AddIssueComment(issueNumber, body); err != nil {
		o.logf("WARNING", "Failed to comment on issue: %v", err)
	}
}

func joinInts(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = fmt.Sprintf("%d", n)
	}
	return strings.Join(parts, ", ")
}
