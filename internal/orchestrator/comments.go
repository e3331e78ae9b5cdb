package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bobsummerwill/strato-fix-all-the-things/internal/agent"
	"github.com/bobsummerwill/strato-fix-all-the-things/internal/model"
)

const commentFooter = "\n---\n*Generated by [STRATO Fix All The Things](https://github.com/bobsummerwill/strato-fix-all-the-things)*"

// latestFixState returns the most recent fix (or fix revision) state.
func latestFixState(actx *agent.Context) *model.AgentState {
	var latest *model.AgentState
	for name, st := range actx.Previous {
		if !strings.HasPrefix(name, "fix") {
			continue
		}
		if latest == nil || st.Timestamp.After(latest.Timestamp) {
			latest = st
		}
	}
	return latest
}

// rootCause pulls the research root cause, tolerating either a plain string
// or an object with a description field.
func rootCause(actx *agent.Context) string {
	research := actx.Previous["research"]
	if research == nil {
		return ""
	}
	switch rc := research.Data["root_cause"].(type) {
	case string:
		return rc
	case map[string]any:
		if d, ok := rc["description"].(string); ok {
			return d
		}
	}
	return ""
}

// buildDetailBody assembles the shared detail block used in the commit
// message, PR body, and issue comment.
func buildDetailBody(actx *agent.Context, state *model.PipelineState) string {
	var filesChanged, caveats, testingNotes []string
	if fix := latestFixState(actx); fix != nil {
		filesChanged = anyStrings(fix.Data["files_changed"])
		if full, ok := fix.Data["full_result"].(map[string]any); ok {
			caveats = anyStrings(full["caveats"])
			testingNotes = anyStrings(full["testing_notes"])
		}
	}

	filesList := "See changes"
	if len(filesChanged) > 0 {
		var quoted []string
		for _, f := range limit(filesChanged, 5) {
			quoted = append(quoted, "`"+f+"`")
		}
		filesList = strings.Join(quoted, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Files changed:** %s\n", filesList)
	if rc := rootCause(actx); rc != "" {
		fmt.Fprintf(&b, "\n**Root cause:** %s\n", rc)
	}
	if len(caveats) > 0 {
		b.WriteString("\n**Caveats:**\n")
		for _, c := range limit(caveats, 3) {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}
	if len(testingNotes) > 0 {
		b.WriteString("\n**Testing notes:**\n")
		for _, n := range limit(testingNotes, 3) {
			fmt.Fprintf(&b, "- %s\n", n)
		}
	}
	fmt.Fprintf(&b, "\n**Confidence:** %.0f%%", state.AggregateConfidence*100)
	return b.String()
}

func buildPRBody(issueNumber int, detail string, state *model.PipelineState) string {
	breakdown, _ := json.MarshalIndent(state.ConfidenceBreakdown, "", "  ")
	return fmt.Sprintf(`## Summary

Auto-generated fix for issue #%d

%s

## Confidence Breakdown

%s

## Test Plan

- [ ] Review the changes
- [ ] Run tests
- [ ] Verify fix addresses the issue
%s`, issueNumber, detail, breakdown, commentFooter)
}

func buildSuccessComment(prURL, detail string) string {
	return fmt.Sprintf(`🤖 **Automated Fix Created**

**PR:** %s

%s

Please review the PR before merging.
%s`, prURL, detail, commentFooter)
}

// buildNoChangesComment explains a fix stage that produced no edits, with the
// triage and research context that is still useful to a human.
func buildNoChangesComment(actx *agent.Context) string {
	var b strings.Builder
	b.WriteString("🤖 **Auto-Fix Analysis Complete**\n\n")
	b.WriteString("The issue was analyzed and deemed fixable, but the fix agent was unable to make any code changes.\n")

	if triage := actx.Previous["triage"]; triage != nil {
		if summary := analysisField(triage.Data, "summary"); summary != "" {
			fmt.Fprintf(&b, "\n## Triage Analysis\n%s\n", summary)
		}
	}
	if research := actx.Previous["research"]; research != nil {
		if summary, ok := research.Data["proposed_fix"].(string); ok && summary != "" {
			fmt.Fprintf(&b, "\n## Research Findings\n%s\n", summary)
		}
	}

	b.WriteString("\n## Next Steps\n")
	b.WriteString("- A human developer should review this issue\n")
	b.WriteString("- The automated analysis above may provide useful context\n")
	b.WriteString("- Consider if the issue requires architectural changes beyond simple fixes\n")
	b.WriteString(commentFooter)
	return b.String()
}

// buildTriageSkipComment posts the triage analysis for an issue skipped at
// classification, with classification-specific sections.
func buildTriageSkipComment(actx *agent.Context) string {
	var classification model.Classification
	var full map[string]any

	if triage := actx.Previous["triage"]; triage != nil {
		if c, ok := triage.Data["classification"].(string); ok {
			classification = model.Classification(c)
		}
		full, _ = triage.Data["full_analysis"].(map[string]any)
	}

	var b strings.Builder
	b.WriteString("🤖 **Auto-Fix Analysis Complete**\n\n")
	b.WriteString(classification.IntroMessage())
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "**Classification:** `%s`\n", classification)

	if full != nil {
		b.WriteString("\n## Analysis Summary\n\n")
		fmt.Fprintf(&b, "**Summary:** %v\n", full["summary"])
		fmt.Fprintf(&b, "\n**Reasoning:** %v\n", full["reasoning"])

		risks := anyStrings(full["risks"])
		questions := anyStrings(full["questions_if_unclear"])
		approach, _ := full["suggested_approach"].(string)

		switch classification {
		case model.NeedsHuman:
			if len(risks) > 0 {
				b.WriteString("\n**Risks:**\n")
				for _, r := range risks {
					fmt.Fprintf(&b, "- %s\n", r)
				}
			}
			if approach != "" {
				fmt.Fprintf(&b, "\n**Suggested Approach:** %s\n", approach)
			}
			if len(questions) > 0 {
				b.WriteString("\n**Questions for Clarification:**\n")
				for _, q := range questions {
					fmt.Fprintf(&b, "- %s\n", q)
				}
			}
		case model.NeedsClarification:
			if len(questions) > 0 {
				b.WriteString("\n**Please provide clarification on:**\n")
				for _, q := range questions {
					fmt.Fprintf(&b, "- %s\n", q)
				}
			}
		case model.OutOfScope:
			b.WriteString("\n**Why this is out of scope:** This issue does not appear to be a bug or configuration issue that can be addressed through code changes. It may be a feature request, documentation issue, or external dependency problem.\n")
		case model.Duplicate:
			b.WriteString("\n**Note:** This issue appears to be a duplicate. Please check for related issues that may already address this problem.\n")
		}
	}

	b.WriteString(commentFooter)
	return b.String()
}

// buildFailureComment describes a failed or blocked run, including how far
// the pipeline got and what the review objected to.
func buildFailureComment(actx *agent.Context, state *model.PipelineState) string {
	emoji, label := "❌", "Failed"
	if state.Status == model.PipelineBlocked {
		emoji, label = "🚫", "Blocked"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s **Auto-Fix %s**\n\n", emoji, label)
	fmt.Fprintf(&b, "**Reason:** %s\n", state.FailureReason)

	gotToFix := false
	revisionCount := 0
	for _, a := range state.AgentsCompleted {
		if strings.HasPrefix(a, "fix") {
			gotToFix = true
		}
		if strings.HasPrefix(a, "fix-revision") {
			revisionCount++
		}
	}

	if gotToFix {
		b.WriteString("\n## What Happened\n")
		if fix := latestFixState(actx); fix != nil {
			if files := anyStrings(fix.Data["files_changed"]); len(files) > 0 {
				var quoted []string
				for _, f := range limit(files, 5) {
					quoted = append(quoted, "`"+f+"`")
				}
				fmt.Fprintf(&b, "**Files attempted:** %s\n", strings.Join(quoted, ", "))
			}
		}
		if review := actx.Previous["review"]; review != nil {
			if verdict, ok := review.Data["verdict"].(string); ok && verdict != "" {
				fmt.Fprintf(&b, "\n**Review verdict:** `%s`\n", verdict)
			}
			if concerns := anyStrings(review.Data["concerns"]); len(concerns) > 0 {
				b.WriteString("\n**Concerns:**\n")
				for _, c := range limit(concerns, 3) {
					fmt.Fprintf(&b, "- %s\n", c)
				}
			}
			if suggestions := anyStrings(review.Data["suggestions"]); len(suggestions) > 0 {
				b.WriteString("\n**Suggestions:**\n")
				for _, s := range limit(suggestions, 3) {
					fmt.Fprintf(&b, "- %s\n", s)
				}
			}
		}
		if revisionCount > 0 {
			fmt.Fprintf(&b, "\n**Revision attempts:** %d\n", revisionCount)
		}
	}

	if rc := rootCause(actx); rc != "" {
		if len(rc) > 500 {
			rc = rc[:500] + "..."
		}
		fmt.Fprintf(&b, "\n**Identified root cause:** %s\n", rc)
	}

	b.WriteString(commentFooter)
	return b.String()
}

// analysisField reads a key from the full triage analysis, falling back to
// the top-level payload.
func analysisField(data map[string]any, key string) string {
	if full, ok := data["full_analysis"].(map[string]any); ok {
		if v, ok := full[key].(string); ok && v != "" {
			return v
		}
	}
	v, _ := data[key].(string)
	return v
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

func limit(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
