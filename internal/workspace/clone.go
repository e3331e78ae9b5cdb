// Package workspace manages the tool's dedicated working clone. The tool
// never runs agents in the user's own checkout: it keeps a separate clone
// whose state it is free to destroy, guarded by an advisory file lock.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bobsummerwill/strato-fix-all-the-things/internal/gitops"
)

// EnsureClone makes sure the tool clone at toolDir exists and is a git repo.
// When projectDir points at a local clone, the tool clone shares its object
// store; otherwise it is cloned from GitHub over https.
func EnsureClone(git gitops.GitRunner, toolDir, projectDir, repo string) (string, error) {
	gitDir := filepath.Join(toolDir, ".git")
	if _, err := os.Stat(toolDir); err == nil {
		if _, err := os.Stat(gitDir); err != nil {
			return "", fmt.Errorf("tool clone dir exists but is not a git repo: %s", toolDir)
		}
		return toolDir, nil
	}

	if projectDir != "" {
		if _, err := os.Stat(filepath.Join(projectDir, ".git")); err == nil {
			if _, err := git.Run("", "clone", "--shared", projectDir, toolDir); err != nil {
				return "", fmt.Errorf("create shared tool clone: %w", err)
			}
			return toolDir, nil
		}
	}

	url := fmt.Sprintf("https://github.com/%s.git", repo)
	if _, err := git.Run("", "clone", url, toolDir); err != nil {
		return "", fmt.Errorf("create tool clone from %s: %w", url, err)
	}
	return toolDir, nil
}
