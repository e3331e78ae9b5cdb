package runstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobsummerwill/strato-fix-all-the-things/internal/model"
)

// RunMetrics is one line of the aggregate metrics log.
type RunMetrics struct {
	IssueNumber         int                `json:"issue_number"`
	Status              string             `json:"status"`
	AggregateConfidence float64            `json:"aggregate_confidence"`
	ConfidenceBreakdown map[string]float64 `json:"confidence_breakdown"`
	DurationSeconds     float64            `json:"duration_seconds"`
	AgentsCompleted     []string           `json:"agents_completed"`
	RunDir              string             `json:"run_dir"`
	CompletedAt         string             `json:"completed_at"`
}

// MetricsFromState builds the metrics line for a finished run.
func MetricsFromState(state *model.PipelineState, runDir string) RunMetrics {
	completed := time.Now().UTC()
	if state.CompletedAt != nil {
		completed = state.CompletedAt.UTC()
	}
	return RunMetrics{
		IssueNumber:         state.IssueNumber,
		Status:              string(state.Status),
		AggregateConfidence: state.AggregateConfidence,
		ConfidenceBreakdown: state.ConfidenceBreakdown,
		DurationSeconds:     state.DurationSeconds(),
		AgentsCompleted:     state.AgentsCompleted,
		RunDir:              runDir,
		CompletedAt:         completed.Format(time.RFC3339),
	}
}

// AppendMetrics appends one JSONL record to runs/metrics.jsonl. The file is
// opened in append mode so concurrent batch runs interleave whole lines.
func (s *Store) AppendMetrics(m RunMetrics) error {
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", s.baseDir, err)
	}

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	data = append(data, '\n')

	path := filepath.Join(s.baseDir, "metrics.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("append metrics: %w", err)
	}
	return nil
}

// ReadMetrics reads all metrics lines, skipping malformed ones.
func (s *Store) ReadMetrics() ([]RunMetrics, error) {
	path := filepath.Join(s.baseDir, "metrics.jsonl")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []RunMetrics
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var m RunMetrics
		if err := dec.Decode(&m); err != nil {
			break
		}
		out = append(out, m)
	}
	return out, nil
}
