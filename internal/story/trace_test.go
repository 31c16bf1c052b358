package story

import "testing"

func TestAgentTrace_AppendNumbersSteps(t *testing.T) {
	trace := NewAgentTrace()

	trace.Append(TraceStep{Action: "build_context"})
	second := trace.Append(TraceStep{Action: "write_draft", GoalAchieved: true})

	if second.Number != 2 {
		t.Errorf("expected step number 2, got %d", second.Number)
	}
	if trace.Len() != 2 {
		t.Errorf("expected 2 steps, got %d", trace.Len())
	}
	if !trace.Done() {
		t.Error("trace should be done after a goal-achieving step")
	}
}

func TestAgentTrace_StepsAreCopies(t *testing.T) {
	trace := NewAgentTrace()
	args := map[string]string{"pov": "lin"}
	trace.Append(TraceStep{Action: "build_context", ActionArgs: args})

	args["pov"] = "mei"
	steps := trace.Steps()
	if steps[0].ActionArgs["pov"] != "lin" {
		t.Error("trace step changed after caller mutated its args")
	}

	steps[0].Action = "mutated"
	if trace.Steps()[0].Action != "build_context" {
		t.Error("trace changed after caller mutated returned steps")
	}
}

func TestAgentTrace_Empty(t *testing.T) {
	trace := NewAgentTrace()

	if trace.Done() {
		t.Error("empty trace cannot be done")
	}
	if _, ok := trace.Last(); ok {
		t.Error("empty trace has no last step")
	}
}
