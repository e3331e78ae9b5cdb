package db

import (
	"database/sql"
	"fmt"
)

// PipelineEvent represents a row in the pipeline_events table.
type PipelineEvent struct {
	ID        int
	Issue     int
	Event     string
	Agent     string
	Detail    string
	Timestamp string
}

// AgentRun represents a row in the agent_runs table.
type AgentRun struct {
	ID         int
	Issue      int
	Agent      string
	Status     string
	Confidence float64
	DurationMs int
	CostUSD    float64
	Error      string
	Timestamp  string
}

// LogPipelineEvent inserts a pipeline event.
func (d *DB) LogPipelineEvent(issue int, event, agent, detail string) error {
	_, err := d.conn.Exec(
		`INSERT INTO pipeline_events (issue, event, agent, detail) VALUES (?, ?, ?, ?)`,
		issue, event, agent, detail,
	)
	if err != nil {
		return fmt.Errorf("log pipeline event: %w", err)
	}
	return nil
}

// LogAgentRun inserts an agent run record.
func (d *DB) LogAgentRun(r AgentRun) error {
	_, err := d.conn.Exec(
		`INSERT INTO agent_runs (issue, agent, status, confidence, duration_ms, cost_usd, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Issue, r.Agent, r.Status, r.Confidence, r.DurationMs, r.CostUSD, r.Error,
	)
	if err != nil {
		return fmt.Errorf("log agent run: %w", err)
	}
	return nil
}

// EventsForIssue returns the most recent events for an issue, newest first.
func (d *DB) EventsForIssue(issue int, limit int) ([]PipelineEvent, error) {
	rows, err := d.conn.Query(
		`SELECT id, issue, event, agent, detail, timestamp
		 FROM pipeline_events WHERE issue = ?
		 ORDER BY id DESC LIMIT ?`,
		issue, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query pipeline events: %w", err)
	}
	defer rows.Close()

	var events []PipelineEvent
	for rows.Next() {
		var e PipelineEvent
		var agent, detail sql.NullString
		if err := rows.Scan(&e.ID, &e.Issue, &e.Event, &agent, &detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan pipeline event: %w", err)
		}
		e.Agent = agent.String
		e.Detail = detail.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// AgentRunsForIssue returns all agent runs for an issue in execution order.
func (d *DB) AgentRunsForIssue(issue int) ([]AgentRun, error) {
	rows, err := d.conn.Query(
		`SELECT id, issue, agent, status, confidence, duration_ms, cost_usd, error, timestamp
		 FROM agent_runs WHERE issue = ? ORDER BY id ASC`,
		issue,
	)
	if err != nil {
		return nil, fmt.Errorf("query agent runs: %w", err)
	}
	defer rows.Close()

	var runs []AgentRun
	for rows.Next() {
		r, err := scanAgentRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// TotalCost sums the recorded agent cost across all runs.
func (d *DB) TotalCost() (float64, error) {
	var total sql.NullFloat64
	err := d.conn.QueryRow(`SELECT SUM(cost_usd) FROM agent_runs`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum agent cost: %w", err)
	}
	return total.Float64, nil
}

func scanAgentRun(rows *sql.Rows) (AgentRun, error) {
	var r AgentRun
	var confidence, cost sql.NullFloat64
	var durationMs sql.NullInt64
	var errMsg sql.NullString
	if err := rows.Scan(&r.ID, &r.Issue, &r.Agent, &r.Status, &confidence, &durationMs, &cost, &errMsg, &r.Timestamp); err != nil {
		return r, fmt.Errorf("scan agent run: %w", err)
	}
	r.Confidence = confidence.Float64
	r.DurationMs = int(durationMs.Int64)
	r.CostUSD = cost.Float64
	r.Error = errMsg.String
	return r, nil
}
