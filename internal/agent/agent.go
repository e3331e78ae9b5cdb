// Package agent defines the agent contract and the four concrete agents that
// make up the fix pipeline: triage, research, fix, and review. Each agent is
// one Claude invocation plus validation of its structured output.
package agent

import (
	"fmt"

	"github.com/bobsummerwill/strato-fix-all-the-things/internal/model"
)

// Agent is a single pipeline stage. Run returns the outcome status and the
// agent-specific payload; it must not persist state itself.
type Agent interface {
	Name() string
	Run(ctx *Context) (model.AgentStatus, map[string]any)
}

// Execute runs an agent with full state management: the running state is
// persisted before Run, the outcome after, and a panic escaping Run becomes a
// failed state rather than killing the batch. Confidence is taken from the
// payload's "confidence" key, defaulting to zero.
func Execute(ctx *Context, a Agent) *model.AgentState {
	name := a.Name()
	state := model.NewAgentState(name, ctx.Issue.Number)
	state.Status = model.AgentRunning
	saveState(ctx, state)

	func() {
		defer func() {
			if r := recover(); r != nil {
				state.Status = model.AgentFailed
				state.Error = fmt.Sprintf("panic: %v", r)
			}
		}()
		status, data := a.Run(ctx)
		state.Status = status
		if data == nil {
			data = map[string]any{}
		}
		state.Data = data
		if c, ok := toFloat(data["confidence"]); ok {
			state.Confidence = c
		}
		if e, ok := data["error"].(string); ok {
			state.Error = e
		}
	}()

	switch state.Status {
	case model.AgentSuccess:
		ctx.successf(name, "%s completed successfully", title(name))
	case model.AgentSkipped:
		ctx.warnf(name, "%s skipped", title(name))
	default:
		ctx.errorf(name, "%s failed: %s", title(name), state.Error)
	}

	saveState(ctx, state)
	if ctx.Previous == nil {
		ctx.Previous = map[string]*model.AgentState{}
	}
	ctx.Previous[name] = state
	return state
}

// saveState persists an agent snapshot. Persistence failure is reported but
// does not change the agent outcome.
func saveState(ctx *Context, state *model.AgentState) {
	if err := ctx.Run.SaveAgentState(state); err != nil {
		ctx.errorf(state.Agent, "failed to save state: %v", err)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func title(name string) string {
	if name == "" {
		return name
	}
	return string(name[0]-'a'+'A') + name[1:]
}
