package model

import (
	"fmt"
	"time"
)

// Classification is the triage verdict on whether an issue is auto-fixable.
type Classification string

const (
	FixableCode        Classification = "FIXABLE_CODE"
	FixableConfig      Classification = "FIXABLE_CONFIG"
	NeedsHuman         Classification = "NEEDS_HUMAN"
	NeedsClarification Classification = "NEEDS_CLARIFICATION"
	OutOfScope         Classification = "OUT_OF_SCOPE"
	Duplicate          Classification = "DUPLICATE"
)

// ParseClassification validates a raw classification string.
func ParseClassification(s string) (Classification, error) {
	switch c := Classification(s); c {
	case FixableCode, FixableConfig, NeedsHuman, NeedsClarification, OutOfScope, Duplicate:
		return c, nil
	}
	return "", fmt.Errorf("invalid classification %q", s)
}

// Fixable reports whether the classification is eligible for auto-fix.
// Only FIXABLE_CODE and FIXABLE_CONFIG may proceed past triage.
func (c Classification) Fixable() bool {
	return c == FixableCode || c == FixableConfig
}

// skipReasons maps each non-fixable classification to the failure reason
// recorded on the pipeline state.
var skipReasons = map[Classification]string{
	NeedsHuman:         "requires human review",
	NeedsClarification: "needs more information",
	OutOfScope:         "out of scope for automated fixes",
	Duplicate:          "appears to be a duplicate",
}

// SkipReason returns the human-readable reason used when triage skips an issue.
func (c Classification) SkipReason() string {
	if r, ok := skipReasons[c]; ok {
		return r
	}
	return fmt.Sprintf("not auto-fixable (%s)", string(c))
}

// introMessages maps classifications to the opening line of the issue comment
// posted when a run is skipped at triage.
var introMessages = map[Classification]string{
	NeedsHuman:         "This issue requires human review due to its complexity or risk level.",
	NeedsClarification: "This issue needs more information before it can be addressed.",
	OutOfScope:         "This issue is outside the scope of automated fixes.",
	Duplicate:          "This issue appears to be a duplicate of an existing issue.",
}

// IntroMessage returns the comment intro for a skipped classification.
func (c Classification) IntroMessage() string {
	if m, ok := introMessages[c]; ok {
		return m
	}
	return "This issue was analyzed but cannot be auto-fixed."
}

// AgentStatus is the lifecycle status of one agent execution.
type AgentStatus string

const (
	AgentPending AgentStatus = "pending"
	AgentRunning AgentStatus = "running"
	AgentSuccess AgentStatus = "success"
	AgentFailed  AgentStatus = "failed"
	AgentSkipped AgentStatus = "skipped"
)

// PipelineStatus is the overall status of one pipeline run.
type PipelineStatus string

const (
	PipelineRunning PipelineStatus = "running"
	PipelineSuccess PipelineStatus = "success"
	PipelineFailed  PipelineStatus = "failed"
	PipelineSkipped PipelineStatus = "skipped"
	PipelineBlocked PipelineStatus = "blocked"
)

// Terminal reports whether the status is a final one.
func (s PipelineStatus) Terminal() bool {
	return s != PipelineRunning && s != ""
}

// Issue holds the GitHub issue data a run operates on. Immutable for the
// duration of a run.
type Issue struct {
	Number int      `json:"number"`
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels"`
	URL    string   `json:"url"`
}

// AgentState is the durable snapshot of one agent execution within a run.
// Data holds the agent-specific payload, merged at top level on serialization.
type AgentState struct {
	Agent       string
	Status      AgentStatus
	IssueNumber int
	Timestamp   time.Time
	Confidence  float64
	Error       string
	Data        map[string]any
}

// NewAgentState creates a pending state for the given agent and issue.
func NewAgentState(agent string, issueNumber int) *AgentState {
	return &AgentState{
		Agent:       agent,
		Status:      AgentPending,
		IssueNumber: issueNumber,
		Timestamp:   time.Now(),
		Data:        map[string]any{},
	}
}

// Snapshot returns the serializable form of the state: fixed fields plus the
// agent payload keys merged at top level.
func (s *AgentState) Snapshot() map[string]any {
	out := map[string]any{
		"agent":        s.Agent,
		"status":       string(s.Status),
		"issue_number": s.IssueNumber,
		"timestamp":    s.Timestamp.Format(time.RFC3339),
		"confidence":   s.Confidence,
		"error":        s.Error,
	}
	for k, v := range s.Data {
		out[k] = v
	}
	return out
}

// PipelineState is the durable state of one pipeline run.
type PipelineState struct {
	Status              PipelineStatus     `json:"status"`
	IssueNumber         int                `json:"issue_number"`
	CurrentAgent        string             `json:"current_agent"`
	AgentsCompleted     []string           `json:"agents_completed"`
	FailureReason       string             `json:"failure_reason"`
	StartedAt           time.Time          `json:"started_at"`
	CompletedAt         *time.Time         `json:"completed_at"`
	AggregateConfidence float64            `json:"aggregate_confidence"`
	ConfidenceBreakdown map[string]float64 `json:"confidence_breakdown"`
}

// NewPipelineState creates a running state for the given issue.
func NewPipelineState(issueNumber int) *PipelineState {
	return &PipelineState{
		Status:              PipelineRunning,
		IssueNumber:         issueNumber,
		AgentsCompleted:     []string{},
		StartedAt:           time.Now(),
		ConfidenceBreakdown: map[string]float64{},
	}
}

// DurationSeconds returns the elapsed run time. Uses the completion time when
// the run is finished, otherwise the current time.
func (p *PipelineState) DurationSeconds() float64 {
	end := time.Now()
	if p.CompletedAt != nil {
		end = *p.CompletedAt
	}
	return end.Sub(p.StartedAt).Seconds()
}

// Snapshot returns the serializable form of the pipeline state, including the
// derived duration.
func (p *PipelineState) Snapshot() map[string]any {
	var completed any
	if p.CompletedAt != nil {
		completed = p.CompletedAt.Format(time.RFC3339)
	}
	return map[string]any{
		"status":               string(p.Status),
		"issue_number":         p.IssueNumber,
		"current_agent":        p.CurrentAgent,
		"agents_completed":     p.AgentsCompleted,
		"failure_reason":       p.FailureReason,
		"started_at":           p.StartedAt.Format(time.RFC3339),
		"completed_at":         completed,
		"duration_seconds":     p.DurationSeconds(),
		"aggregate_confidence": p.AggregateConfidence,
		"confidence_breakdown": p.ConfidenceBreakdown,
	}
}
