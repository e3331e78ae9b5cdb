// Package sanitize filters issue-provided text before it is substituted into
// agent prompts. Issue titles, bodies, and labels are attacker-controlled;
// without filtering, a crafted issue could try to override the agent's
// instructions or break out of the code fences the prompts wrap it in.
package sanitize

import "regexp"

// MaxTextLength is the default cap applied to issue bodies.
const MaxTextLength = 50000

const truncationMarker = "\n\n[TRUNCATED - content too long]"

// injectionPatterns are replaced wherever they appear in untrusted text.
var injectionPatterns = []struct {
	re          *regexp.Regexp
	replacement string
}{
	// "Ignore previous instructions" style attacks.
	{regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`), "[FILTERED]"},
	{regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)`), "[FILTERED]"},
	{regexp.MustCompile(`(?i)forget\s+(everything|all)\s+(above|before)`), "[FILTERED]"},
	// "New instructions" style attacks.
	{regexp.MustCompile(`(?i)new\s+instructions?:`), "[FILTERED]"},
	{regexp.MustCompile(`(?i)system\s*prompt:`), "[FILTERED]"},
	{regexp.MustCompile(`(?i)override\s*:`), "[FILTERED]"},
	// Role switching attacks.
	{regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an)\s+`), "you were described as a "},
	{regexp.MustCompile(`(?i)act\s+as\s+(a|an)\s+`), "described as a "},
	// Output format manipulation.
	{regexp.MustCompile(`(?i)output\s+only\s*:`), "[FILTERED]"},
	{regexp.MustCompile(`(?i)respond\s+only\s+with`), "[FILTERED]"},
}

var fenceRe = regexp.MustCompile("```")

// Text sanitizes untrusted text for prompt inclusion: truncates to maxLength,
// defangs code fence delimiters so the text cannot close the block it is
// embedded in, and filters instruction-override patterns.
func Text(text string, maxLength int) string {
	if text == "" {
		return ""
	}
	if maxLength > 0 && len(text) > maxLength {
		text = text[:maxLength] + truncationMarker
	}

	text = fenceRe.ReplaceAllString(text, "` ` `")

	for _, p := range injectionPatterns {
		text = p.re.ReplaceAllString(text, p.replacement)
	}
	return text
}

// Label sanitizes a single issue label. Labels are short by convention, so a
// tight cap applies before the usual filtering.
func Label(label string) string {
	if label == "" {
		return ""
	}
	if len(label) > 100 {
		label = label[:100]
	}
	return Text(label, 100)
}

// Labels sanitizes a label list, keeping at most 20 entries.
func Labels(labels []string) []string {
	if len(labels) == 0 {
		return nil
	}
	if len(labels) > 20 {
		labels = labels[:20]
	}
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		out = append(out, Label(l))
	}
	return out
}
