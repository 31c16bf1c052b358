// Package agent runs a bounded reason/act/observe/reflect loop and records
// every iteration in a story.AgentTrace.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Yates-Labs/storyloom/internal/clock"
	"github.com/Yates-Labs/storyloom/internal/story"
)

// DefaultMaxSteps bounds a loop when LoopOptions.MaxSteps is zero.
const DefaultMaxSteps = 5

var (
	ErrStepLimit = errors.New("agent step limit reached without achieving the goal")
	ErrNoTools   = errors.New("agent has no tools")
)

// Decision is the reasoner's choice for the next step.
type Decision struct {
	Reasoning string
	Action    string
	Args      map[string]string
}

// Reasoner decides what to do next and judges the outcome.
type Reasoner interface {
	Think(ctx context.Context, trace *story.AgentTrace) (Decision, error)
	// Reflect reviews the observation of a step and reports whether the goal
	// has been achieved.
	Reflect(ctx context.Context, step story.TraceStep) (reflection string, achieved bool, err error)
}

// Tool is an action the reasoner can invoke by name.
type Tool interface {
	Name() string
	Run(ctx context.Context, args map[string]string) (string, error)
}

type funcTool struct {
	name string
	fn   func(ctx context.Context, args map[string]string) (string, error)
}

// NewTool adapts a function into a Tool.
func NewTool(name string, fn func(ctx context.Context, args map[string]string) (string, error)) Tool {
	return funcTool{name: name, fn: fn}
}

func (t funcTool) Name() string { return t.name }

func (t funcTool) Run(ctx context.Context, args map[string]string) (string, error) {
	return t.fn(ctx, args)
}

// LoopOptions configures a Loop.
type LoopOptions struct {
	MaxSteps int
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Loop drives a Reasoner through at most MaxSteps iterations.
type Loop struct {
	reasoner Reasoner
	tools    map[string]Tool
	maxSteps int
	clock    clock.Clock
	logger   *slog.Logger
}

// NewLoop registers tools by name.
func NewLoop(reasoner Reasoner, tools []Tool, opts LoopOptions) (*Loop, error) {
	if reasoner == nil {
		return nil, fmt.Errorf("agent requires a reasoner")
	}
	if len(tools) == 0 {
		return nil, ErrNoTools
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	l := &Loop{
		reasoner: reasoner,
		tools:    make(map[string]Tool, len(tools)),
		maxSteps: opts.MaxSteps,
		clock:    opts.Clock,
		logger:   opts.Logger.With("component", "agent"),
	}
	for _, t := range tools {
		if _, dup := l.tools[t.Name()]; dup {
			return nil, fmt.Errorf("duplicate tool %q", t.Name())
		}
		l.tools[t.Name()] = t
	}
	return l, nil
}

// ToolNames returns the registered tool names, sorted.
func (l *Loop) ToolNames() []string {
	names := make([]string, 0, len(l.tools))
	for name := range l.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run iterates until the reasoner reports the goal achieved or MaxSteps
// steps have been appended to trace. Reasoner failures abort the run; tool
// failures and unknown actions become observations.
func (l *Loop) Run(ctx context.Context, trace *story.AgentTrace) error {
	for i := 0; i < l.maxSteps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		decision, err := l.reasoner.Think(ctx, trace)
		if err != nil {
			return fmt.Errorf("think (step %d): %w", i+1, err)
		}

		step := story.TraceStep{
			Reasoning:   decision.Reasoning,
			Action:      decision.Action,
			ActionArgs:  decision.Args,
			Observation: l.act(ctx, decision),
		}

		step.Reflection, step.GoalAchieved, err = l.reasoner.Reflect(ctx, step)
		if err != nil {
			return fmt.Errorf("reflect (step %d): %w", i+1, err)
		}
		step.Timestamp = l.clock.Now()
		step = trace.Append(step)

		l.logger.Debug("agent step", "step", step.Number, "action", step.Action,
			"goal_achieved", step.GoalAchieved)

		if step.GoalAchieved {
			return nil
		}
	}
	return fmt.Errorf("%w (%d steps)", ErrStepLimit, l.maxSteps)
}

func (l *Loop) act(ctx context.Context, d Decision) string {
	tool, ok := l.tools[d.Action]
	if !ok {
		return fmt.Sprintf("error: unknown action %q (available: %v)", d.Action, l.ToolNames())
	}
	out, err := tool.Run(ctx, d.Args)
	if err != nil {
		return "error: " + err.Error()
	}
	return out
}
