package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a configuration from the given YAML file path, then
// applies environment overrides and defaults. Validation is the caller's
// responsibility (see Validate).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches for a config in standard locations and loads the first
// one found. Search order: ./autofix.yaml, ~/.autofix/config.yaml. When no
// file exists, a config is assembled from environment and defaults alone.
func LoadDefault() (*Config, error) {
	candidates := []string{"autofix.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".autofix", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	var cfg Config
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

// applyEnv overlays the environment contract onto the config. The token is
// environment-only; the rest override file values when set.
func applyEnv(cfg *Config) {
	a := &cfg.Autofix

	a.GitHubToken = os.Getenv("GH_TOKEN")
	if a.GitHubToken == "" {
		a.GitHubToken = os.Getenv("GITHUB_TOKEN")
	}

	if v := os.Getenv("GITHUB_REPO"); v != "" {
		a.Repo = v
	}
	if v := os.Getenv("BASE_BRANCH"); v != "" {
		a.BaseBranch = v
	}
	if v := os.Getenv("PROJECT_DIR"); v != "" {
		a.ProjectDir = v
	}
	if v := os.Getenv("TOOL_CLONE_DIR"); v != "" {
		a.ToolCloneDir = v
	}
}

// applyDefaults fills unset fields with the tool's defaults.
func applyDefaults(cfg *Config) {
	a := &cfg.Autofix

	if a.Repo == "" {
		a.Repo = "blockapps/strato-platform"
	}
	if a.BaseBranch == "" {
		a.BaseBranch = "develop"
	}
	if a.ToolCloneDir == "" {
		a.ToolCloneDir = ".tool-clone"
	}
	if a.RunsDir == "" {
		a.RunsDir = "runs"
	}
	if a.PromptsDir == "" {
		a.PromptsDir = "prompts"
	}

	if a.Timeouts.Triage == "" {
		a.Timeouts.Triage = "3m"
	}
	if a.Timeouts.Research == "" {
		a.Timeouts.Research = "5m"
	}
	if a.Timeouts.Fix == "" {
		a.Timeouts.Fix = "10m"
	}
	if a.Timeouts.Review == "" {
		a.Timeouts.Review = "5m"
	}

	if a.Confidence.MinTriage == 0 {
		a.Confidence.MinTriage = 0.6
	}
	if a.Confidence.MinResearch == 0 {
		a.Confidence.MinResearch = 0.4
	}

	if a.MaxFixReviewIterations == 0 {
		a.MaxFixReviewIterations = 3
	}

	if a.Claude.Bin == "" {
		a.Claude.Bin = "claude"
	}
	if a.Claude.MaxRetries == 0 {
		a.Claude.MaxRetries = 2
	}
	if a.Claude.RetryBaseDelay == "" {
		a.Claude.RetryBaseDelay = "2s"
	}
}
