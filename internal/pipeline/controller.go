// Package pipeline drives one issue through the ordered agent stages:
// triage, research, then a bounded fix/review revision loop. The controller
// owns all gating and terminal-status decisions; agent-level retries live in
// the Claude runner, not here.
package pipeline

import (
	"fmt"
	"io"
	"time"

	"github.com/bobsummerwill/strato-fix-all-the-things/internal/agent"
	"github.com/bobsummerwill/strato-fix-all-the-things/internal/db"
	"github.com/bobsummerwill/strato-fix-all-the-things/internal/model"
)

// EventLog records pipeline progress for observability. Implementations must
// tolerate being called from a hot path; failures are logged and ignored.
type EventLog interface {
	LogPipelineEvent(issue int, event, agent, detail string) error
	LogAgentRun(r db.AgentRun) error
}

// Controller runs the agent pipeline for a single issue.
type Controller struct {
	maxIterations int
	progress      io.Writer
	events        EventLog
}

// New creates a Controller. events may be nil.
func New(maxIterations int, progress io.Writer, events EventLog) *Controller {
	if maxIterations < 1 {
		maxIterations = 1
	}
	return &Controller{maxIterations: maxIterations, progress: progress, events: events}
}

func (c *Controller) logf(format string, args ...any) {
	if c.progress != nil {
		fmt.Fprintf(c.progress, format+"\n", args...)
	}
}

func (c *Controller) event(issue int, event, agentName, detail string) {
	if c.events == nil {
		return
	}
	if err := c.events.LogPipelineEvent(issue, event, agentName, detail); err != nil {
		c.logf("[WARNING] event log write failed: %v", err)
	}
}

// Run executes the pipeline and returns its terminal state. The state is
// persisted to the run directory on every transition; the terminal status is
// decided exactly once and never revised.
func (c *Controller) Run(actx *agent.Context) *model.PipelineState {
	state := model.NewPipelineState(actx.Issue.Number)
	c.save(actx, state)
	c.event(state.IssueNumber, "pipeline_started", "", "")

	// Triage: hard gate.
	triage := c.runStage(actx, state, agent.Triage{})
	switch triage.Status {
	case model.AgentFailed:
		return c.finish(actx, state, model.PipelineFailed, stageError("triage", triage))
	case model.AgentSkipped:
		classification := model.Classification(stringField(triage.Data, "classification"))
		return c.finish(actx, state, model.PipelineSkipped, classification.SkipReason())
	}

	// Research: soft gate, only failure stops the run.
	research := c.runStage(actx, state, agent.Research{})
	if research.Status != model.AgentSuccess {
		return c.finish(actx, state, model.PipelineFailed, stageError("research", research))
	}

	// Fix/review loop: the only stage-level retry in the system.
	attempt := 1
	fix := c.runStage(actx, state, agent.Fix{Revision: 0})
	for {
		switch fix.Status {
		case model.AgentFailed:
			return c.finish(actx, state, model.PipelineFailed, stageError("fix", fix))
		case model.AgentSkipped:
			return c.finish(actx, state, model.PipelineSkipped, "no changes")
		}

		review := c.runStage(actx, state, agent.Review{AfterRevision: attempt - 1})
		if review.Status == model.AgentFailed {
			return c.finish(actx, state, model.PipelineFailed, stageError("review", review))
		}
		if review.Status == model.AgentSuccess {
			return c.finish(actx, state, model.PipelineSuccess, "")
		}

		// Not approved.
		if attempt >= c.maxIterations {
			verdict := stringField(review.Data, "verdict")
			reason := fmt.Sprintf("review not approved after %d iteration(s): %s", attempt, verdict)
			if concerns := joinField(review.Data, "concerns"); concerns != "" {
				reason += " (" + concerns + ")"
			}
			return c.finish(actx, state, model.PipelineBlocked, reason)
		}

		attempt++
		c.logf("[INFO] Review requested changes, starting revision %d/%d", attempt, c.maxIterations)
		fix = c.runStage(actx, state, agent.Fix{Revision: attempt - 1})
	}
}

// runStage executes one agent, records it in the pipeline state, and logs it.
func (c *Controller) runStage(actx *agent.Context, state *model.PipelineState, a agent.Agent) *model.AgentState {
	name := a.Name()
	state.CurrentAgent = name
	c.save(actx, state)
	c.event(state.IssueNumber, "agent_started", name, "")

	st := agent.Execute(actx, a)

	state.AgentsCompleted = append(state.AgentsCompleted, name)
	if st.Status == model.AgentSuccess {
		state.ConfidenceBreakdown[name] = st.Confidence
	}
	c.save(actx, state)

	c.event(state.IssueNumber, "agent_finished", name, string(st.Status))
	if c.events != nil {
		if err := c.events.LogAgentRun(db.AgentRun{
			Issue:      state.IssueNumber,
			Agent:      name,
			Status:     string(st.Status),
			Confidence: st.Confidence,
			DurationMs: actx.LastDurationMs,
			CostUSD:    actx.LastCostUSD,
			Error:      st.Error,
		}); err != nil {
			c.logf("[WARNING] agent run log write failed: %v", err)
		}
	}
	return st
}

// finish sets the terminal status, computes the aggregate confidence, and
// persists the final state.
func (c *Controller) finish(actx *agent.Context, state *model.PipelineState, status model.PipelineStatus, reason string) *model.PipelineState {
	now := time.Now()
	state.Status = status
	state.FailureReason = reason
	state.CurrentAgent = ""
	state.CompletedAt = &now
	state.AggregateConfidence = aggregate(state.ConfidenceBreakdown)
	c.save(actx, state)

	c.event(state.IssueNumber, "pipeline_finished", "", string(status))
	c.logf("[INFO] Pipeline %s (aggregate confidence: %.2f)", status, state.AggregateConfidence)
	return state
}

// aggregate is the arithmetic mean over successful stages, zero when none.
func aggregate(breakdown map[string]float64) float64 {
	if len(breakdown) == 0 {
		return 0
	}
	var sum float64
	for _, v := range breakdown {
		sum += v
	}
	return sum / float64(len(breakdown))
}

func (c *Controller) save(actx *agent.Context, state *model.PipelineState) {
	if err := actx.Run.SavePipelineState(state); err != nil {
		c.logf("[WARNING] failed to save pipeline state: %v", err)
	}
}

func stageError(stage string, st *model.AgentState) string {
	if st.Error != "" {
		return fmt.Sprintf("%s failed: %s", stage, st.Error)
	}
	return fmt.Sprintf("%s failed", stage)
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

func joinField(data map[string]any, key string) string {
	var out string
	switch v := data[key].(type) {
	case []string:
		for i, s := range v {
			if i > 0 {
				out += "; "
			}
			out += s
		}
	case []any:
		first := true
		for _, x := range v {
			if s, ok := x.(string); ok {
				if !first {
					out += "; "
				}
				out += s
				first = false
			}
		}
	}
	return out
}
