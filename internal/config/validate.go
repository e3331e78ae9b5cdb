package config

import (
	"fmt"
	"time"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a Config for structural and semantic errors. It returns a
// slice of all validation errors found (empty if valid). Any error here is
// fatal before a run starts.
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	a := cfg.Autofix

	if a.GitHubToken == "" {
		errs = append(errs, ValidationError{Field: "GH_TOKEN", Message: "GH_TOKEN or GITHUB_TOKEN must be set"})
	}
	if a.Repo == "" {
		errs = append(errs, ValidationError{Field: "autofix.repo", Message: "is required"})
	}
	if a.BaseBranch == "" {
		errs = append(errs, ValidationError{Field: "autofix.base_branch", Message: "is required"})
	}

	checkThreshold(&errs, "autofix.confidence.min_triage", a.Confidence.MinTriage)
	checkThreshold(&errs, "autofix.confidence.min_research", a.Confidence.MinResearch)

	checkDuration(&errs, "autofix.timeouts.triage", a.Timeouts.Triage)
	checkDuration(&errs, "autofix.timeouts.research", a.Timeouts.Research)
	checkDuration(&errs, "autofix.timeouts.fix", a.Timeouts.Fix)
	checkDuration(&errs, "autofix.timeouts.review", a.Timeouts.Review)

	if a.MaxFixReviewIterations < 1 {
		errs = append(errs, ValidationError{
			Field:   "autofix.max_fix_review_iterations",
			Message: fmt.Sprintf("must be at least 1, got %d", a.MaxFixReviewIterations),
		})
	}
	if a.Claude.MaxRetries < 0 {
		errs = append(errs, ValidationError{
			Field:   "autofix.claude.max_retries",
			Message: fmt.Sprintf("must not be negative, got %d", a.Claude.MaxRetries),
		})
	}
	if a.LockTimeout != "" && a.LockTimeout != "0" {
		if _, err := time.ParseDuration(a.LockTimeout); err != nil {
			errs = append(errs, ValidationError{
				Field:   "autofix.lock_timeout",
				Message: fmt.Sprintf("invalid duration %q", a.LockTimeout),
			})
		}
	}

	return errs
}

// checkThreshold validates a confidence threshold is within [0, 1].
func checkThreshold(errs *[]ValidationError, field string, v float64) {
	if v < 0 || v > 1 {
		*errs = append(*errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be in [0.0, 1.0], got %g", v),
		})
	}
}

// checkDuration validates a duration string is parseable and positive.
func checkDuration(errs *[]ValidationError, field string, raw string) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("invalid duration %q", raw),
		})
		return
	}
	if d <= 0 {
		*errs = append(*errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be positive, got %s", d),
		})
	}
}
