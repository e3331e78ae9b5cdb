package agent

import (
	"errors"
	"fmt"

	"github.com/bobsummerwill/strato-fix-all-the-things/internal/claude"
	"github.com/bobsummerwill/strato-fix-all-the-things/internal/model"
)

// Triage classifies an issue for auto-fix eligibility. It is the pipeline's
// hard gate: only fixable classifications at or above the confidence
// threshold proceed.
type Triage struct{}

func (Triage) Name() string { return "triage" }

func (t Triage) Run(ctx *Context) (model.AgentStatus, map[string]any) {
	ctx.infof(t.Name(), "Starting triage for issue #%d", ctx.Issue.Number)

	promptText, err := ctx.renderPrompt(t.Name(), nil)
	if err != nil {
		return model.AgentFailed, errPayload(err)
	}

	data, err := ctx.runClaude(t.Name(), promptText, "classification")
	if err != nil {
		var te *claude.TimeoutError
		if errors.As(err, &te) {
			ctx.errorf(t.Name(), "%v", te)
		}
		return model.AgentFailed, errPayload(err)
	}
	if data == nil {
		return model.AgentFailed, errPayload(fmt.Errorf("triage output missing required JSON"))
	}

	classification, err := model.ParseClassification(data.String("classification"))
	if err != nil {
		ctx.errorf(t.Name(), "Invalid classification: %s", data.String("classification"))
		return model.AgentFailed, errPayload(err)
	}

	confidence := data.Float("confidence", 0.5)
	summary := data.String("summary")
	if summary == "" {
		summary = "No summary"
	}
	complexity := data.String("estimated_complexity")
	if complexity == "" {
		complexity = "unknown"
	}

	ctx.successf(t.Name(), "Classification: %s (confidence: %g)", classification, confidence)
	ctx.infof(t.Name(), "Summary: %s", summary)
	ctx.infof(t.Name(), "Complexity: %s", complexity)

	shouldProceed := classification.Fixable() && confidence >= ctx.Cfg.Confidence.MinTriage

	status := model.AgentSkipped
	if shouldProceed {
		ctx.successf(t.Name(), "Issue approved for auto-fix")
		status = model.AgentSuccess
	} else {
		ctx.infof(t.Name(), "Issue not suitable for auto-fix: %s", classification)
	}

	return status, map[string]any{
		"classification": string(classification),
		"confidence":     confidence,
		"should_proceed": shouldProceed,
		"summary":        summary,
		"complexity":     complexity,
		"full_analysis":  map[string]any(data),
	}
}

func errPayload(err error) map[string]any {
	return map[string]any{"error": err.Error()}
}
