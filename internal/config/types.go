package config

import (
	"strings"
	"time"
)

// Config is the top-level configuration structure parsed from autofix YAML.
type Config struct {
	Autofix Autofix `yaml:"autofix"`
}

// Autofix defines the full tool configuration: repository coordinates,
// directories, per-agent timeouts, gating thresholds, and runner settings.
type Autofix struct {
	Repo         string `yaml:"repo"`
	BaseBranch   string `yaml:"base_branch"`
	ProjectDir   string `yaml:"project_dir"`
	ToolCloneDir string `yaml:"tool_clone_dir"`
	RunsDir      string `yaml:"runs_dir"`
	PromptsDir   string `yaml:"prompts_dir"`

	GitHubToken string `yaml:"-"` // environment only, never from file

	Timeouts   Timeouts   `yaml:"timeouts"`
	Confidence Confidence `yaml:"confidence"`
	Claude     Claude     `yaml:"claude"`

	MaxFixReviewIterations int `yaml:"max_fix_review_iterations"`

	// LockTimeout bounds workspace lock acquisition. Empty or "0" blocks
	// indefinitely.
	LockTimeout string `yaml:"lock_timeout"`
}

// Timeouts holds per-agent wall-clock timeouts as duration strings.
type Timeouts struct {
	Triage   string `yaml:"triage"`
	Research string `yaml:"research"`
	Fix      string `yaml:"fix"`
	Review   string `yaml:"review"`
}

// Confidence holds the gating thresholds. Both are inclusive lower bounds;
// min_research is a soft gate (logged, never blocking).
type Confidence struct {
	MinTriage   float64 `yaml:"min_triage"`
	MinResearch float64 `yaml:"min_research"`
}

// Claude configures the external agent process invocation.
type Claude struct {
	Bin            string `yaml:"bin"`
	MaxRetries     int    `yaml:"max_retries"`
	RetryBaseDelay string `yaml:"retry_base_delay"`
}

// AgentTimeout returns the configured timeout for the named agent.
// Fix revisions ("fix-revision-1", ...) share the fix timeout.
func (a *Autofix) AgentTimeout(agent string) time.Duration {
	var raw string
	switch {
	case agent == "triage":
		raw = a.Timeouts.Triage
	case agent == "research":
		raw = a.Timeouts.Research
	case strings.HasPrefix(agent, "fix"):
		raw = a.Timeouts.Fix
	case agent == "review":
		raw = a.Timeouts.Review
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	return 10 * time.Minute
}

// LockTimeoutDuration returns the parsed lock timeout, or zero for "block
// indefinitely".
func (a *Autofix) LockTimeoutDuration() time.Duration {
	if a.LockTimeout == "" || a.LockTimeout == "0" {
		return 0
	}
	d, err := time.ParseDuration(a.LockTimeout)
	if err != nil {
		return 0
	}
	return d
}

// RetryBaseDelayDuration returns the parsed retry base delay.
func (c *Claude) RetryBaseDelayDuration() time.Duration {
	if d, err := time.ParseDuration(c.RetryBaseDelay); err == nil && d > 0 {
		return d
	}
	return 2 * time.Second
}
