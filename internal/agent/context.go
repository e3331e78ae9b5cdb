package agent

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/bobsummerwill/strato-fix-all-the-things/internal/claude"
	"github.com/bobsummerwill/strato-fix-all-the-things/internal/config"
	"github.com/bobsummerwill/strato-fix-all-the-things/internal/extract"
	"github.com/bobsummerwill/strato-fix-all-the-things/internal/model"
	"github.com/bobsummerwill/strato-fix-all-the-things/internal/prompt"
	"github.com/bobsummerwill/strato-fix-all-the-things/internal/runstore"
	"github.com/bobsummerwill/strato-fix-all-the-things/internal/sanitize"
)

// Context bundles everything an agent needs for one execution: the issue,
// configuration, the run's durable store, the states of earlier agents, and
// the Claude runner.
type Context struct {
	Ctx      context.Context
	Cfg      *config.Autofix
	Issue    *model.Issue
	Run      *runstore.Run
	Previous map[string]*model.AgentState
	Claude   *claude.Runner
	Workdir  string
	Progress io.Writer

	// HasChanges reports whether the working tree differs from HEAD. The fix
	// agent uses it to detect no-op fixes; nil falls back to the agent's own
	// reported file list.
	HasChanges func() (bool, error)

	// Metering from the most recent Claude invocation, for the event log.
	LastDurationMs int
	LastCostUSD    float64
}

func (c *Context) logf(agent, level, format string, args ...any) {
	if c.Progress == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(c.Progress, "[%s] [%s] %s\n", strings.ToUpper(agent), level, msg)
}

func (c *Context) infof(agent, format string, args ...any) {
	c.logf(agent, "INFO", format, args...)
}

func (c *Context) successf(agent, format string, args ...any) {
	c.logf(agent, "SUCCESS", format, args...)
}

func (c *Context) warnf(agent, format string, args ...any) {
	c.logf(agent, "WARNING", format, args...)
}

func (c *Context) errorf(agent, format string, args ...any) {
	c.logf(agent, "ERROR", format, args...)
}

// issueVars returns the sanitized issue substitutions shared by all prompts.
// Issue text is untrusted input; it is filtered before entering any prompt.
func (c *Context) issueVars() prompt.Vars {
	return prompt.Vars{
		"issue_number": fmt.Sprintf("%d", c.Issue.Number),
		"issue_title":  sanitize.Text(c.Issue.Title, 300),
		"issue_body":   sanitize.Text(c.Issue.Body, sanitize.MaxTextLength),
		"issue_labels": strings.Join(sanitize.Labels(c.Issue.Labels), ", "),
	}
}

// renderPrompt loads the named template, merges extra vars over the issue
// vars, and renders. The rendered prompt is persisted to the run directory.
func (c *Context) renderPrompt(name string, extra prompt.Vars) (string, error) {
	return c.renderPromptAs(name, name, extra)
}

// renderPromptAs renders template templateName but persists the prompt under
// saveName. Fix revisions share one template but each iteration keeps its own
// prompt file.
func (c *Context) renderPromptAs(templateName, saveName string, extra prompt.Vars) (string, error) {
	tmpl, err := prompt.Load(templateName, c.Cfg.PromptsDir)
	if err != nil {
		return "", err
	}

	vars := c.issueVars()
	for k, v := range extra {
		vars[k] = v
	}

	rendered, err := prompt.Render(tmpl, vars)
	if err != nil {
		return "", fmt.Errorf("render %s prompt: %w", templateName, err)
	}
	if err := c.Run.SavePrompt(saveName, rendered); err != nil {
		return "", fmt.Errorf("save %s prompt: %w", saveName, err)
	}
	return rendered, nil
}

// runClaude invokes Claude with the agent's timeout and extracts the JSON
// result containing requiredField. A nil Result with a nil error means the
// process succeeded but produced no extractable JSON.
func (c *Context) runClaude(name, promptText, requiredField string) (extract.Result, error) {
	timeout := c.Cfg.AgentTimeout(name)
	c.infof(name, "Running Claude (timeout: %s)...", timeout)

	res, err := c.Claude.Run(c.Ctx, promptText, claude.Opts{
		Dir:     c.Workdir,
		Timeout: timeout,
		LogFile: c.Run.LogPath(name),
	})
	if err != nil {
		return nil, err
	}

	c.LastDurationMs = res.DurationMs
	c.LastCostUSD = res.CostUSD

	return extract.Find(res.Output, requiredField), nil
}
