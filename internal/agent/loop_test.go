package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Yates-Labs/storyloom/internal/clock"
	"github.com/Yates-Labs/storyloom/internal/story"
)

// scriptedReasoner plays back a fixed list of decisions and reports success
// once reflectFunc says so.
type scriptedReasoner struct {
	decisions   []Decision
	reflectFunc func(step story.TraceStep) (string, bool)
	thinkErr    error
}

func (r *scriptedReasoner) Think(ctx context.Context, trace *story.AgentTrace) (Decision, error) {
	if r.thinkErr != nil {
		return Decision{}, r.thinkErr
	}
	i := trace.Len()
	if i >= len(r.decisions) {
		i = len(r.decisions) - 1
	}
	return r.decisions[i], nil
}

func (r *scriptedReasoner) Reflect(ctx context.Context, step story.TraceStep) (string, bool, error) {
	reflection, ok := r.reflectFunc(step)
	return reflection, ok, nil
}

func echoTool() Tool {
	return NewTool("echo", func(ctx context.Context, args map[string]string) (string, error) {
		return "echo:" + args["text"], nil
	})
}

func TestLoop_StopsWhenGoalAchieved(t *testing.T) {
	fc := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	r := &scriptedReasoner{
		decisions: []Decision{
			{Reasoning: "try once", Action: "echo", Args: map[string]string{"text": "a"}},
			{Reasoning: "try again", Action: "echo", Args: map[string]string{"text": "done"}},
		},
		reflectFunc: func(step story.TraceStep) (string, bool) {
			return "checked " + step.Observation, step.Observation == "echo:done"
		},
	}
	loop, err := NewLoop(r, []Tool{echoTool()}, LoopOptions{MaxSteps: 5, Clock: fc})
	if err != nil {
		t.Fatal(err)
	}
	trace := story.NewAgentTrace()

	if err := loop.Run(context.Background(), trace); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	steps := trace.Steps()
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}
	if steps[1].Number != 2 || !steps[1].GoalAchieved || steps[1].Reflection != "checked echo:done" {
		t.Errorf("unexpected final step %+v", steps[1])
	}
	if !steps[0].Timestamp.Equal(fc.Now()) {
		t.Errorf("timestamps should come from the injected clock, got %v", steps[0].Timestamp)
	}
	if !trace.Done() {
		t.Error("trace should be done")
	}
}

func TestLoop_StepLimit(t *testing.T) {
	r := &scriptedReasoner{
		decisions:   []Decision{{Action: "echo"}},
		reflectFunc: func(story.TraceStep) (string, bool) { return "not yet", false },
	}
	loop, err := NewLoop(r, []Tool{echoTool()}, LoopOptions{MaxSteps: 3})
	if err != nil {
		t.Fatal(err)
	}
	trace := story.NewAgentTrace()

	err = loop.Run(context.Background(), trace)
	if !errors.Is(err, ErrStepLimit) {
		t.Fatalf("expected ErrStepLimit, got %v", err)
	}
	if trace.Len() != 3 {
		t.Errorf("expected 3 recorded steps, got %d", trace.Len())
	}
}

func TestLoop_UnknownActionAndToolErrorsBecomeObservations(t *testing.T) {
	failing := NewTool("fail", func(ctx context.Context, args map[string]string) (string, error) {
		return "", errors.New("tool broke")
	})
	r := &scriptedReasoner{
		decisions: []Decision{
			{Action: "teleport"},
			{Action: "fail"},
			{Action: "echo", Args: map[string]string{"text": "ok"}},
		},
		reflectFunc: func(step story.TraceStep) (string, bool) {
			return "", step.Observation == "echo:ok"
		},
	}
	loop, err := NewLoop(r, []Tool{echoTool(), failing}, LoopOptions{})
	if err != nil {
		t.Fatal(err)
	}
	trace := story.NewAgentTrace()

	if err := loop.Run(context.Background(), trace); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	steps := trace.Steps()
	if !strings.Contains(steps[0].Observation, `unknown action "teleport"`) {
		t.Errorf("unexpected observation %q", steps[0].Observation)
	}
	if steps[1].Observation != "error: tool broke" {
		t.Errorf("unexpected observation %q", steps[1].Observation)
	}
}

func TestLoop_ReasonerErrorAborts(t *testing.T) {
	r := &scriptedReasoner{thinkErr: errors.New("model offline")}
	loop, err := NewLoop(r, []Tool{echoTool()}, LoopOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if err := loop.Run(context.Background(), story.NewAgentTrace()); err == nil || !strings.Contains(err.Error(), "model offline") {
		t.Errorf("expected reasoner error, got %v", err)
	}
}

func TestNewLoop_Validation(t *testing.T) {
	r := &scriptedReasoner{}

	if _, err := NewLoop(r, nil, LoopOptions{}); !errors.Is(err, ErrNoTools) {
		t.Errorf("expected ErrNoTools, got %v", err)
	}
	if _, err := NewLoop(r, []Tool{echoTool(), echoTool()}, LoopOptions{}); err == nil {
		t.Error("expected duplicate tool error")
	}
}
