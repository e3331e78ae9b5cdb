// Package runstore manages the on-disk record of pipeline runs. Every run
// gets its own timestamped directory under the runs root; directories are
// append-only and never reused, so a crashed run leaves its partial record
// in place for inspection.
package runstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bobsummerwill/strato-fix-all-the-things/internal/model"
)

// Store manages run directories under a single root.
type Store struct {
	baseDir string
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// BaseDir returns the store's root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// Run is the on-disk record of a single pipeline run.
type Run struct {
	Dir         string
	IssueNumber int
}

// CreateRun allocates a fresh run directory for the issue and persists the
// issue snapshot into it.
func (s *Store) CreateRun(issue *model.Issue) (*Run, error) {
	name := fmt.Sprintf("%s-issue-%d", time.Now().UTC().Format("20060102-150405"), issue.Number)
	dir := filepath.Join(s.baseDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir run dir: %w", err)
	}

	run := &Run{Dir: dir, IssueNumber: issue.Number}
	if err := WriteJSON(filepath.Join(dir, "issue.json"), issue); err != nil {
		return nil, fmt.Errorf("write issue.json: %w", err)
	}
	return run, nil
}

// OpenRun wraps an existing run directory.
func (s *Store) OpenRun(dir string) (*Run, error) {
	var issue model.Issue
	if err := ReadJSON(filepath.Join(dir, "issue.json"), &issue); err != nil {
		return nil, fmt.Errorf("read issue.json: %w", err)
	}
	return &Run{Dir: dir, IssueNumber: issue.Number}, nil
}

// ListRuns returns all run directories for an issue (all issues when
// issueNumber is 0), oldest first. Run directory names sort chronologically.
func (s *Store) ListRuns(issueNumber int) ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", s.baseDir, err)
	}

	suffix := ""
	if issueNumber > 0 {
		suffix = fmt.Sprintf("-issue-%d", issueNumber)
	}

	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if suffix != "" && !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		if !strings.Contains(entry.Name(), "-issue-") {
			continue
		}
		dirs = append(dirs, filepath.Join(s.baseDir, entry.Name()))
	}
	sort.Strings(dirs)
	return dirs, nil
}

// SaveAgentState atomically writes the agent snapshot to <agent>.state.json.
func (r *Run) SaveAgentState(state *model.AgentState) error {
	return WriteJSON(filepath.Join(r.Dir, state.Agent+".state.json"), state.Snapshot())
}

// SavePipelineState atomically writes the pipeline snapshot.
func (r *Run) SavePipelineState(state *model.PipelineState) error {
	return WriteJSON(filepath.Join(r.Dir, "pipeline.state.json"), state.Snapshot())
}

// PipelineState reads the persisted pipeline snapshot as raw keys.
func (r *Run) PipelineState() (map[string]any, error) {
	var snap map[string]any
	if err := ReadJSON(filepath.Join(r.Dir, "pipeline.state.json"), &snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// SavePrompt writes the rendered prompt for an agent.
func (r *Run) SavePrompt(agent, prompt string) error {
	return WriteAtomic(filepath.Join(r.Dir, agent+".prompt.md"), []byte(prompt))
}

// LogPath returns the path the raw agent output is written to.
func (r *Run) LogPath(agent string) string {
	return filepath.Join(r.Dir, agent+".log")
}

// Issue reads back the persisted issue snapshot.
func (r *Run) Issue() (*model.Issue, error) {
	var issue model.Issue
	if err := ReadJSON(filepath.Join(r.Dir, "issue.json"), &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}
