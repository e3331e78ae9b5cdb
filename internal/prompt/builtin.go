package prompt

import _ "embed"

//go:embed templates/triage.md
var triageTmpl string

//go:embed templates/research.md
var researchTmpl string

//go:embed templates/fix.md
var fixTmpl string

//go:embed templates/fix-revision.md
var fixRevisionTmpl string

//go:embed templates/review.md
var reviewTmpl string

// builtinTemplates maps agent names to their embedded default prompts.
// A prompts/ directory next to the config overrides these per agent.
var builtinTemplates = map[string]string{
	"triage":       triageTmpl,
	"research":     researchTmpl,
	"fix":          fixTmpl,
	"fix-revision": fixRevisionTmpl,
	"review":       reviewTmpl,
}
