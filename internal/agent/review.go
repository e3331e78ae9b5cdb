package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bobsummerwill/strato-fix-all-the-things/internal/model"
	"github.com/bobsummerwill/strato-fix-all-the-things/internal/prompt"
)

// Review critiques the applied fix before anything is published. An approved
// review is the only path to a successful pipeline.
type Review struct {
	// AfterRevision identifies which fix state to review: 0 reviews the
	// initial fix, k reviews fix-revision-k.
	AfterRevision int
}

func (Review) Name() string { return "review" }

func (r Review) Run(ctx *Context) (model.AgentStatus, map[string]any) {
	ctx.infof(r.Name(), "Starting review for issue #%d", ctx.Issue.Number)

	fix := latestFix(ctx, r.AfterRevision+1)
	if fix == nil || fix.Status != model.AgentSuccess {
		ctx.errorf(r.Name(), "Fix did not complete successfully")
		return model.AgentFailed, errPayload(fmt.Errorf("fix not completed"))
	}

	promptText, err := ctx.renderPrompt(r.Name(), prompt.Vars{
		"fix_summary": fixSummary(fix.Data),
	})
	if err != nil {
		return model.AgentFailed, errPayload(err)
	}

	data, err := ctx.runClaude(r.Name(), promptText, "verdict")
	if err != nil {
		return model.AgentFailed, errPayload(err)
	}
	if data == nil {
		ctx.errorf(r.Name(), "Could not extract structured result")
		return model.AgentFailed, errPayload(fmt.Errorf("review output missing required JSON"))
	}

	approved := data.Bool("approved")
	verdict := data.String("verdict")
	if verdict == "" {
		verdict = "UNKNOWN"
	}
	confidence := data.Float("confidence", 0.5)
	concerns := data.Strings("concerns")

	ctx.infof(r.Name(), "Review verdict: %s", verdict)
	ctx.infof(r.Name(), "Approved: %t", approved)
	if len(concerns) > 0 {
		ctx.warnf(r.Name(), "Concerns: %s", strings.Join(concerns, ", "))
	}

	payload := map[string]any{
		"approved":    approved,
		"confidence":  confidence,
		"verdict":     verdict,
		"concerns":    concerns,
		"suggestions": data.Strings("suggestions"),
	}

	if approved {
		ctx.successf(r.Name(), "Review approved the fix")
		return model.AgentSuccess, payload
	}
	ctx.warnf(r.Name(), "Review did not approve: %s", verdict)
	return model.AgentSkipped, payload
}

func fixSummary(data map[string]any) string {
	full, _ := json.MarshalIndent(data["full_result"], "", "  ")
	return fmt.Sprintf(
		"**Files Changed:** %s\n**Summary:** %v\n**Tests Added:** %s\n\nFull fix details:\n```json\n%s\n```",
		strings.Join(anyStrings(data["files_changed"]), ", "),
		data["summary"],
		strings.Join(anyStrings(data["tests_added"]), ", "),
		full,
	)
}
