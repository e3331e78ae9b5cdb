// Package gitops wraps the git operations the tool performs in its working
// clone. All operations run through a GitRunner so tests can fake git.
package gitops

import (
	"fmt"
	"os/exec"
	"strings"
)

// GitRunner provides git command execution. Interface for testing.
type GitRunner interface {
	Run(dir string, args ...string) (string, error)
}

// ExecGit implements GitRunner using exec.Command.
type ExecGit struct{}

func (g *ExecGit) Run(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Repo performs git operations in a single working directory.
type Repo struct {
	git GitRunner
	dir string
}

// NewRepo creates a Repo rooted at dir.
func NewRepo(git GitRunner, dir string) *Repo {
	return &Repo{git: git, dir: dir}
}

// Dir returns the repo's working directory.
func (r *Repo) Dir() string {
	return r.dir
}

// Fetch fetches from the named remote.
func (r *Repo) Fetch(remote string) error {
	if _, err := r.git.Run(r.dir, "fetch", remote); err != nil {
		return fmt.Errorf("fetch %s: %w", remote, err)
	}
	return nil
}

// Checkout switches to the named branch.
func (r *Repo) Checkout(branch string) error {
	if err := validateBranch(branch); err != nil {
		return err
	}
	if _, err := r.git.Run(r.dir, "checkout", branch); err != nil {
		return fmt.Errorf("checkout %s: %w", branch, err)
	}
	return nil
}

// ResetHard resets the working tree to the given ref, discarding all local
// changes.
func (r *Repo) ResetHard(ref string) error {
	if _, err := r.git.Run(r.dir, "reset", "--hard", ref); err != nil {
		return fmt.Errorf("reset --hard %s: %w", ref, err)
	}
	return nil
}

// DiscardChanges restores tracked files and removes untracked ones.
// Best effort: used on cleanup paths where the tree state is unknown.
func (r *Repo) DiscardChanges() {
	r.git.Run(r.dir, "checkout", "--", ".")
	r.git.Run(r.dir, "clean", "-fd")
}

// IsDirty reports whether the working tree has uncommitted changes.
func (r *Repo) IsDirty() (bool, error) {
	out, err := r.git.Run(r.dir, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("git status: %w", err)
	}
	return strings.TrimSpace(out) != "", nil
}

// HasChanges reports whether the working tree has staged or unstaged changes,
// including untracked files.
func (r *Repo) HasChanges() (bool, error) {
	return r.IsDirty()
}

// BranchExists reports whether a local branch exists.
func (r *Repo) BranchExists(branch string) (bool, error) {
	if err := validateBranch(branch); err != nil {
		return false, err
	}
	_, err := r.git.Run(r.dir, "rev-parse", "--verify", "refs/heads/"+branch)
	return err == nil, nil
}

// CreateBranch creates and checks out a new branch at the current HEAD.
func (r *Repo) CreateBranch(branch string) error {
	if err := validateBranch(branch); err != nil {
		return err
	}
	if _, err := r.git.Run(r.dir, "checkout", "-b", branch); err != nil {
		return fmt.Errorf("create branch %s: %w", branch, err)
	}
	return nil
}

// DeleteBranch deletes a local branch.
func (r *Repo) DeleteBranch(branch string, force bool) error {
	if err := validateBranch(branch); err != nil {
		return err
	}
	flag := "-d"
	if force {
		flag = "-D"
	}
	if _, err := r.git.Run(r.dir, "branch", flag, branch); err != nil {
		return fmt.Errorf("delete branch %s: %w", branch, err)
	}
	return nil
}

// DeleteRemoteBranch deletes a branch on origin. A missing remote branch is
// not an error.
func (r *Repo) DeleteRemoteBranch(branch string) error {
	if err := validateBranch(branch); err != nil {
		return err
	}
	out, err := r.git.Run(r.dir, "push", "origin", "--delete", branch)
	if err != nil {
		if strings.Contains(out, "remote ref does not exist") || strings.Contains(err.Error(), "remote ref does not exist") {
			return nil
		}
		return fmt.Errorf("delete remote branch %s: %w", branch, err)
	}
	return nil
}

// Add stages all changes except paths matching the exclude patterns. Patterns
// use git pathspec exclusion, so secrets like .env never get committed.
func (r *Repo) Add(excludePatterns []string) error {
	args := []string{"add", ".", "--"}
	for _, p := range excludePatterns {
		args = append(args, ":(exclude)"+p)
	}
	if _, err := r.git.Run(r.dir, args...); err != nil {
		return fmt.Errorf("git add: %w", err)
	}
	return nil
}

// Commit records the staged changes with the given message.
func (r *Repo) Commit(message string) error {
	if _, err := r.git.Run(r.dir, "commit", "-m", message); err != nil {
		return fmt.Errorf("git commit: %w", err)
	}
	return nil
}

// Push pushes a branch to the remote, optionally setting the upstream.
func (r *Repo) Push(remote, branch string, setUpstream bool) error {
	if err := validateBranch(branch); err != nil {
		return err
	}
	args := []string{"push"}
	if setUpstream {
		args = append(args, "-u")
	}
	args = append(args, remote, branch)
	if _, err := r.git.Run(r.dir, args...); err != nil {
		return fmt.Errorf("push %s to %s: %w", branch, remote, err)
	}
	return nil
}

// HasUnpushedCommits reports whether the current branch has commits not on
// the remote tracking ref. A branch with no remote counterpart counts as
// having unpushed commits when it has any commits past the merge base.
func (r *Repo) HasUnpushedCommits(remote, branch string) (bool, error) {
	if err := validateBranch(branch); err != nil {
		return false, err
	}
	out, err := r.git.Run(r.dir, "rev-list", "--count", fmt.Sprintf("%s/%s..HEAD", remote, branch))
	if err != nil {
		// No remote ref yet; count commits ahead of the remote base instead.
		out, err = r.git.Run(r.dir, "rev-list", "--count", "@{upstream}..HEAD")
		if err != nil {
			return true, nil
		}
	}
	return strings.TrimSpace(out) != "0", nil
}

// DiffNames returns the files that differ from the given ref.
func (r *Repo) DiffNames(ref string) ([]string, error) {
	out, err := r.git.Run(r.dir, "diff", "--name-only", ref)
	if err != nil {
		return nil, fmt.Errorf("diff against %s: %w", ref, err)
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// validateBranch rejects branch names that could be mistaken for flags.
func validateBranch(branch string) error {
	if branch == "" {
		return fmt.Errorf("empty branch name")
	}
	if strings.HasPrefix(branch, "-") {
		return fmt.Errorf("invalid branch name %q: must not start with -", branch)
	}
	return nil
}
