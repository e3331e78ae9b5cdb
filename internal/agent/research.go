package agent

import (
	"encoding/json"
	"fmt"

	"github.com/bobsummerwill/strato-fix-all-the-things/internal/model"
	"github.com/bobsummerwill/strato-fix-all-the-things/internal/prompt"
)

// Research explores the codebase to find the root cause and plan the fix.
// Low confidence here is a soft gate: it is logged and lowers the aggregate,
// but never blocks progression.
type Research struct{}

func (Research) Name() string { return "research" }

func (r Research) Run(ctx *Context) (model.AgentStatus, map[string]any) {
	ctx.infof(r.Name(), "Starting research for issue #%d", ctx.Issue.Number)

	triage := ctx.Previous["triage"]
	if triage == nil || triage.Status != model.AgentSuccess {
		ctx.errorf(r.Name(), "Triage did not complete successfully")
		return model.AgentFailed, errPayload(fmt.Errorf("triage not completed"))
	}

	promptText, err := ctx.renderPrompt(r.Name(), prompt.Vars{
		"triage_summary": triageSummary(triage.Data),
	})
	if err != nil {
		return model.AgentFailed, errPayload(err)
	}

	data, err := ctx.runClaude(r.Name(), promptText, "confidence")
	if err != nil {
		return model.AgentFailed, errPayload(err)
	}
	if data == nil {
		ctx.errorf(r.Name(), "Could not extract structured result")
		return model.AgentFailed, errPayload(fmt.Errorf("research output missing required JSON"))
	}

	confidence := data.Float("confidence", 0.5)
	filesAnalyzed := data.Strings("files_analyzed")

	ctx.successf(r.Name(), "Research complete (confidence: %g)", confidence)
	ctx.infof(r.Name(), "Files analyzed: %d", len(filesAnalyzed))

	if confidence < ctx.Cfg.Confidence.MinResearch {
		ctx.warnf(r.Name(), "Confidence too low (%g), but continuing...", confidence)
	}

	return model.AgentSuccess, map[string]any{
		"confidence":     confidence,
		"files_analyzed": filesAnalyzed,
		"root_cause":     data.String("root_cause"),
		"proposed_fix":   data.String("proposed_fix"),
		"affected_areas": data.Strings("affected_areas"),
		"test_strategy":  data.String("test_strategy"),
		"full_analysis":  map[string]any(data),
	}
}

// triageSummary formats the triage outcome as prompt context for later stages.
func triageSummary(data map[string]any) string {
	full, _ := json.MarshalIndent(data["full_analysis"], "", "  ")
	return fmt.Sprintf(
		"**Classification:** %v\n**Summary:** %v\n**Complexity:** %v\n\nFull analysis:\n```json\n%s\n```",
		data["classification"], data["summary"], data["complexity"], full,
	)
}
