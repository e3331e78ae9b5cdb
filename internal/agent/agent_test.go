package agent

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/bobsummerwill/strato-fix-all-the-things/internal/claude"
	"github.com/bobsummerwill/strato-fix-all-the-things/internal/config"
	"github.com/bobsummerwill/strato-fix-all-the-things/internal/model"
	"github.com/bobsummerwill/strato-fix-all-the-things/internal/runstore"
)

type scriptedClaude struct {
	outputs []string
	calls   int
}

func (s *scriptedClaude) Run(ctx context.Context, dir, bin string, args ...string) (string, int, error) {
	i := s.calls
	s.calls++
	if i >= len(s.outputs) {
		return "", 1, nil
	}
	return s.outputs[i], 0, nil
}

func newAgentContext(t *testing.T, outputs ...string) *Context {
	t.Helper()
	store := runstore.NewStore(t.TempDir())
	run, err := store.CreateRun(&model.Issue{Number: 9, Title: "t", Body: "b"})
	if err != nil {
		t.Fatal(err)
	}
	return &Context{
		Ctx: context.Background(),
		Cfg: &config.Autofix{
			Timeouts:   config.Timeouts{Triage: "1m", Research: "1m", Fix: "1m", Review: "1m"},
			Confidence: config.Confidence{MinTriage: 0.6, MinResearch: 0.4},
		},
		Issue:    &model.Issue{Number: 9, Title: "t", Body: "b"},
		Run:      run,
		Previous: map[string]*model.AgentState{},
		Claude:   claude.NewRunner(&scriptedClaude{outputs: outputs}, "claude", 0, time.Millisecond),
		Workdir:  t.TempDir(),
		Progress: io.Discard,
	}
}

// panicAgent escapes Run with a panic.
type panicAgent struct{}

func (panicAgent) Name() string { return "triage" }
func (panicAgent) Run(*Context) (model.AgentStatus, map[string]any) {
	panic("boom")
}

func TestExecutePanicBecomesFailure(t *testing.T) {
	ctx := newAgentContext(t)
	st := Execute(ctx, panicAgent{})

	if st.Status != model.AgentFailed {
		t.Errorf("status = %s", st.Status)
	}
	if st.Error != "panic: boom" {
		t.Errorf("error = %q", st.Error)
	}
	if ctx.Previous["triage"] != st {
		t.Error("state not recorded in Previous")
	}
}

func TestExecutePersistsOutcome(t *testing.T) {
	ctx := newAgentContext(t, "```json\n{\"classification\": \"FIXABLE_CODE\", \"confidence\": 0.8, \"summary\": \"s\"}\n```")
	st := Execute(ctx, Triage{})

	if st.Status != model.AgentSuccess {
		t.Fatalf("status = %s (%s)", st.Status, st.Error)
	}
	if st.Confidence != 0.8 {
		t.Errorf("confidence = %v", st.Confidence)
	}

	// The durable snapshot carries the payload.
	var snap map[string]any
	if err := runstore.ReadJSON(filepath.Join(ctx.Run.Dir, "triage.state.json"), &snap); err != nil {
		t.Fatal(err)
	}
	if snap["classification"] != "FIXABLE_CODE" || snap["status"] != "success" {
		t.Errorf("snapshot = %v", snap)
	}
}

func TestTriageInvalidClassification(t *testing.T) {
	ctx := newAgentContext(t, "```json\n{\"classification\": \"MAYBE\", \"confidence\": 0.9}\n```")
	st := Execute(ctx, Triage{})

	if st.Status != model.AgentFailed {
		t.Errorf("status = %s", st.Status)
	}
}

func TestResearchRequiresTriageSuccess(t *testing.T) {
	ctx := newAgentContext(t)
	status, _ := Research{}.Run(ctx)
	if status != model.AgentFailed {
		t.Errorf("status = %s, research must not run without triage", status)
	}

	ctx.Previous["triage"] = &model.AgentState{Agent: "triage", Status: model.AgentSkipped}
	status, _ = Research{}.Run(ctx)
	if status != model.AgentFailed {
		t.Errorf("status = %s, skipped triage must not unlock research", status)
	}
}

func TestFixRequiresResearchSuccess(t *testing.T) {
	ctx := newAgentContext(t)
	status, _ := Fix{}.Run(ctx)
	if status != model.AgentFailed {
		t.Errorf("status = %s", status)
	}
}

func TestFixRevisionRequiresReviewFeedback(t *testing.T) {
	ctx := newAgentContext(t)
	ctx.Previous["research"] = &model.AgentState{Agent: "research", Status: model.AgentSuccess, Data: map[string]any{}}

	status, _ := Fix{Revision: 1}.Run(ctx)
	if status != model.AgentFailed {
		t.Errorf("status = %s, revision needs prior review feedback", status)
	}
}

func TestReviewRequiresFixSuccess(t *testing.T) {
	ctx := newAgentContext(t)
	status, _ := Review{}.Run(ctx)
	if status != model.AgentFailed {
		t.Errorf("status = %s", status)
	}

	ctx.Previous["fix"] = &model.AgentState{Agent: "fix", Status: model.AgentSkipped, Data: map[string]any{}}
	status, _ = Review{}.Run(ctx)
	if status != model.AgentFailed {
		t.Errorf("status = %s, skipped fix must not be reviewed", status)
	}
}

func TestFixAgentNames(t *testing.T) {
	if got := (Fix{}).Name(); got != "fix" {
		t.Errorf("name = %q", got)
	}
	if got := (Fix{Revision: 2}).Name(); got != "fix-revision-2" {
		t.Errorf("name = %q", got)
	}
}

func TestLatestFix(t *testing.T) {
	ctx := newAgentContext(t)
	initial := &model.AgentState{Agent: "fix"}
	rev1 := &model.AgentState{Agent: "fix-revision-1"}
	ctx.Previous["fix"] = initial

	if got := latestFix(ctx, 1); got != initial {
		t.Errorf("latestFix(1) = %v", got)
	}
	ctx.Previous["fix-revision-1"] = rev1
	if got := latestFix(ctx, 2); got != rev1 {
		t.Errorf("latestFix(2) = %v", got)
	}
	// Revision 1 still resolves to the initial fix.
	if got := latestFix(ctx, 1); got != initial {
		t.Errorf("latestFix(1) = %v", got)
	}
}
