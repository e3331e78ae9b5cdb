package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "autofix.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"GH_TOKEN", "GITHUB_TOKEN", "GITHUB_REPO", "BASE_BRANCH", "PROJECT_DIR", "TOOL_CLONE_DIR"} {
		t.Setenv(k, "")
	}
}

func TestLoadAppliesFileEnvAndDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("GH_TOKEN", "tok-123")

	path := writeConfig(t, `
autofix:
  repo: acme/widgets
  base_branch: main
  timeouts:
    fix: 20m
  confidence:
    min_triage: 0.7
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	a := cfg.Autofix

	assert.Equal(t, "acme/widgets", a.Repo)
	assert.Equal(t, "main", a.BaseBranch)
	assert.Equal(t, "tok-123", a.GitHubToken)

	// File values survive, gaps come from defaults.
	assert.Equal(t, "20m", a.Timeouts.Fix)
	assert.Equal(t, "3m", a.Timeouts.Triage)
	assert.Equal(t, 0.7, a.Confidence.MinTriage)
	assert.Equal(t, 0.4, a.Confidence.MinResearch)
	assert.Equal(t, 3, a.MaxFixReviewIterations)
	assert.Equal(t, "claude", a.Claude.Bin)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("GITHUB_TOKEN", "tok-env")
	t.Setenv("GITHUB_REPO", "env/repo")
	t.Setenv("BASE_BRANCH", "release")

	path := writeConfig(t, `
autofix:
  repo: file/repo
  base_branch: main
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env/repo", cfg.Autofix.Repo)
	assert.Equal(t, "release", cfg.Autofix.BaseBranch)
	assert.Equal(t, "tok-env", cfg.Autofix.GitHubToken)
}

func TestGHTokenWinsOverGitHubToken(t *testing.T) {
	clearEnv(t)
	t.Setenv("GH_TOKEN", "primary")
	t.Setenv("GITHUB_TOKEN", "secondary")

	cfg, err := Load(writeConfig(t, "autofix: {}"))
	require.NoError(t, err)
	assert.Equal(t, "primary", cfg.Autofix.GitHubToken)
}

func TestTokenNeverReadFromFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, `
autofix:
  github_token: leaked
`))
	require.NoError(t, err)
	assert.Empty(t, cfg.Autofix.GitHubToken)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadBadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "autofix: [not a map"))
	assert.Error(t, err)
}

func TestAgentTimeout(t *testing.T) {
	a := &Autofix{Timeouts: Timeouts{Triage: "3m", Research: "5m", Fix: "10m", Review: "5m"}}

	assert.Equal(t, 3*time.Minute, a.AgentTimeout("triage"))
	assert.Equal(t, 10*time.Minute, a.AgentTimeout("fix"))
	assert.Equal(t, 10*time.Minute, a.AgentTimeout("fix-revision-1"))
	assert.Equal(t, 10*time.Minute, a.AgentTimeout("fix-revision-2"))
	assert.Equal(t, 5*time.Minute, a.AgentTimeout("review"))

	// Unknown agents and unparseable values get the safety default.
	assert.Equal(t, 10*time.Minute, a.AgentTimeout("unknown"))
	broken := &Autofix{Timeouts: Timeouts{Triage: "soon"}}
	assert.Equal(t, 10*time.Minute, broken.AgentTimeout("triage"))
}

func TestValidate(t *testing.T) {
	valid := &Config{Autofix: Autofix{
		Repo:                   "acme/widgets",
		BaseBranch:             "main",
		GitHubToken:            "tok",
		Timeouts:               Timeouts{Triage: "3m", Research: "5m", Fix: "10m", Review: "5m"},
		Confidence:             Confidence{MinTriage: 0.6, MinResearch: 0.4},
		MaxFixReviewIterations: 3,
	}}
	assert.Empty(t, Validate(valid))

	invalid := &Config{Autofix: Autofix{
		Repo:                   "",
		BaseBranch:             "",
		GitHubToken:            "",
		Timeouts:               Timeouts{Triage: "-3m", Research: "nope", Fix: "10m", Review: "5m"},
		Confidence:             Confidence{MinTriage: 1.5, MinResearch: -0.1},
		MaxFixReviewIterations: 0,
		LockTimeout:            "bogus",
	}}
	errs := Validate(invalid)
	fields := map[string]bool{}
	for _, e := range errs {
		fields[e.Field] = true
	}
	for _, want := range []string{
		"GH_TOKEN",
		"autofix.repo",
		"autofix.base_branch",
		"autofix.confidence.min_triage",
		"autofix.confidence.min_research",
		"autofix.timeouts.triage",
		"autofix.timeouts.research",
		"autofix.max_fix_review_iterations",
		"autofix.lock_timeout",
	} {
		assert.True(t, fields[want], "missing validation error for %s", want)
	}
}

func TestLockTimeoutDuration(t *testing.T) {
	assert.Equal(t, time.Duration(0), (&Autofix{}).LockTimeoutDuration())
	assert.Equal(t, time.Duration(0), (&Autofix{LockTimeout: "0"}).LockTimeoutDuration())
	assert.Equal(t, 30*time.Second, (&Autofix{LockTimeout: "30s"}).LockTimeoutDuration())
}
