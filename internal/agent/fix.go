package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bobsummerwill/strato-fix-all-the-things/internal/model"
	"github.com/bobsummerwill/strato-fix-all-the-things/internal/prompt"
)

// Fix applies the change in the working tree. Revision > 0 runs the agent in
// revision mode, seeded with the previous review's feedback; each revision
// keeps its own state and prompt files in the run directory.
type Fix struct {
	Revision int
}

func (f Fix) Name() string {
	if f.Revision == 0 {
		return "fix"
	}
	return fmt.Sprintf("fix-revision-%d", f.Revision)
}

func (f Fix) templateName() string {
	if f.Revision == 0 {
		return "fix"
	}
	return "fix-revision"
}

func (f Fix) Run(ctx *Context) (model.AgentStatus, map[string]any) {
	name := f.Name()
	ctx.infof(name, "Starting fix for issue #%d", ctx.Issue.Number)

	research := ctx.Previous["research"]
	if research == nil || research.Status != model.AgentSuccess {
		ctx.errorf(name, "Research did not complete successfully")
		return model.AgentFailed, errPayload(fmt.Errorf("research not completed"))
	}

	vars := prompt.Vars{}
	if f.Revision == 0 {
		vars["research_summary"] = researchSummary(research.Data)
	} else {
		review := ctx.Previous["review"]
		if review == nil {
			ctx.errorf(name, "No review feedback to revise against")
			return model.AgentFailed, errPayload(fmt.Errorf("revision requested without review feedback"))
		}
		vars["review_feedback"] = reviewFeedback(review.Data)
		vars["previous_fix_summary"] = previousFixSummary(latestFix(ctx, f.Revision))
	}

	promptText, err := ctx.renderPromptAs(f.templateName(), name, vars)
	if err != nil {
		return model.AgentFailed, errPayload(err)
	}

	data, err := ctx.runClaude(name, promptText, "files_changed")
	if err != nil {
		return model.AgentFailed, errPayload(err)
	}

	// The fix's real output is the working tree, not the JSON. Missing JSON
	// is tolerated with a low-confidence default so a usable change still
	// reaches review.
	payload := map[string]any{
		"confidence":    0.3,
		"files_changed": []string{},
		"summary":       "Fix applied but structured output could not be parsed",
		"tests_added":   []string{},
		"full_result":   map[string]any{},
	}
	if data != nil {
		payload = map[string]any{
			"confidence":    data.Float("confidence", 0.5),
			"files_changed": data.Strings("files_changed"),
			"summary":       data.String("summary"),
			"tests_added":   data.Strings("tests_added"),
			"full_result":   map[string]any(data),
		}
	} else {
		ctx.warnf(name, "Could not extract structured result, continuing with defaults")
	}

	if !f.treeChanged(ctx, data != nil, payload) {
		ctx.warnf(name, "Fix made no changes")
		payload["no_changes"] = true
		return model.AgentSkipped, payload
	}

	return model.AgentSuccess, payload
}

// treeChanged decides whether the fix produced an effective change. The
// working tree is authoritative when a checker is wired; the reported
// files_changed list is the fallback.
func (f Fix) treeChanged(ctx *Context, extracted bool, payload map[string]any) bool {
	if ctx.HasChanges != nil {
		changed, err := ctx.HasChanges()
		if err == nil {
			return changed
		}
		ctx.warnf(f.Name(), "Could not check working tree: %v", err)
	}
	if !extracted {
		// No JSON and no checker: assume the tree changed rather than
		// discarding possible work.
		return true
	}
	files, _ := payload["files_changed"].([]string)
	return len(files) > 0
}

// latestFix returns the most recent fix state before the given revision.
func latestFix(ctx *Context, revision int) *model.AgentState {
	for k := revision - 1; k >= 1; k-- {
		if s := ctx.Previous[fmt.Sprintf("fix-revision-%d", k)]; s != nil {
			return s
		}
	}
	return ctx.Previous["fix"]
}

func researchSummary(data map[string]any) string {
	full, _ := json.MarshalIndent(data["full_analysis"], "", "  ")
	return fmt.Sprintf(
		"**Root Cause:** %v\n**Proposed Fix:** %v\n**Test Strategy:** %v\n\nFull findings:\n```json\n%s\n```",
		data["root_cause"], data["proposed_fix"], data["test_strategy"], full,
	)
}

func previousFixSummary(state *model.AgentState) string {
	if state == nil {
		return ""
	}
	var files []string
	switch v := state.Data["files_changed"].(type) {
	case []string:
		files = v
	case []any:
		for _, f := range v {
			if s, ok := f.(string); ok {
				files = append(files, s)
			}
		}
	}
	return fmt.Sprintf("**Files Changed:** %s\n**Summary:** %v",
		strings.Join(files, ", "), state.Data["summary"])
}

func reviewFeedback(data map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Verdict:** %v\n", data["verdict"])
	if concerns := anyStrings(data["concerns"]); len(concerns) > 0 {
		b.WriteString("**Concerns:**\n")
		for _, c := range concerns {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}
	if suggestions := anyStrings(data["suggestions"]); len(suggestions) > 0 {
		b.WriteString("**Suggestions:**\n")
		for _, s := range suggestions {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	return b.String()
}

func anyStrings(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		var out []string
		for _, x := range vv {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
