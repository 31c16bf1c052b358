package story

import (
	"sync"
	"time"
)

// TraceStep is one reasoning/action/observation/reflection iteration.
type TraceStep struct {
	Number       int               `json:"step_number"`
	Reasoning    string            `json:"reasoning"`
	Action       string            `json:"action"`
	ActionArgs   map[string]string `json:"action_args,omitempty"`
	Observation  string            `json:"observation"`
	Reflection   string            `json:"reflection"`
	GoalAchieved bool              `json:"goal_achieved"`
	Timestamp    time.Time         `json:"timestamp"`
}

// AgentTrace is the append-only log of one reasoning episode.
type AgentTrace struct {
	mu    sync.Mutex
	steps []TraceStep
}

// NewAgentTrace returns an empty trace.
func NewAgentTrace() *AgentTrace {
	return &AgentTrace{}
}

// Append adds step to the trace, numbering it after the existing steps.
func (t *AgentTrace) Append(step TraceStep) TraceStep {
	t.mu.Lock()
	defer t.mu.Unlock()

	step.Number = len(t.steps) + 1
	if len(step.ActionArgs) > 0 {
		args := make(map[string]string, len(step.ActionArgs))
		for k, v := range step.ActionArgs {
			args[k] = v
		}
		step.ActionArgs = args
	}
	t.steps = append(t.steps, step)
	return step
}

// Steps returns a copy of the recorded steps in order.
func (t *AgentTrace) Steps() []TraceStep {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]TraceStep, len(t.steps))
	copy(out, t.steps)
	return out
}

// Len returns the number of recorded steps.
func (t *AgentTrace) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.steps)
}

// Last returns the most recent step.
func (t *AgentTrace) Last() (TraceStep, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.steps) == 0 {
		return TraceStep{}, false
	}
	return t.steps[len(t.steps)-1], true
}

// Done reports whether the last step achieved the goal.
func (t *AgentTrace) Done() bool {
	last, ok := t.Last()
	return ok && last.GoalAchieved
}
