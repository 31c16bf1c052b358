package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Yates-Labs/storyloom/internal/agent"
	"github.com/Yates-Labs/storyloom/internal/assembler"
	"github.com/Yates-Labs/storyloom/internal/narrative"
	"github.com/Yates-Labs/storyloom/internal/story"
)

// Agent tool names.
const (
	ToolBuildContext = "build_context"
	ToolWriteDraft   = "write_draft"
)

// ChapterResult is the outcome of GenerateChapter. Context.Trace holds the
// agent's reasoning steps.
type ChapterResult struct {
	Context *story.WritingContext
	Draft   *narrative.Draft
}

// GenerateChapter runs the drafting agent: it assembles the context, writes
// a draft and asks for a longer one while the draft is under the configured
// minimum. A partial result is returned alongside agent.ErrStepLimit.
func (p *Pipeline) GenerateChapter(ctx context.Context, novelID string, chapter int, opts assembler.Options) (*ChapterResult, error) {
	s := &draftSession{
		pipeline: p,
		novelID:  novelID,
		chapter:  chapter,
		opts:     opts,
		minWords: p.config.Agent.MinWords,
	}

	loop, err := agent.NewLoop(s, []agent.Tool{
		agent.NewTool(ToolBuildContext, s.buildContext),
		agent.NewTool(ToolWriteDraft, s.writeDraft),
	}, agent.LoopOptions{
		MaxSteps: p.config.Agent.MaxSteps,
		Clock:    p.clock,
		Logger:   p.logger,
	})
	if err != nil {
		return nil, err
	}

	trace := story.NewAgentTrace()
	runErr := loop.Run(ctx, trace)

	result := &ChapterResult{Context: s.context, Draft: s.draft}
	if result.Context != nil {
		result.Context.Trace = trace
	}
	if runErr != nil {
		if errors.Is(runErr, agent.ErrStepLimit) {
			return result, runErr
		}
		return nil, fmt.Errorf("drafting chapter %d of %s: %w", chapter, novelID, runErr)
	}

	p.logger.Info("chapter drafted",
		"novel", novelID, "chapter", chapter,
		"words", s.draft.Words, "steps", trace.Len())
	return result, nil
}

// draftSession is the per-request agent state. It is both the reasoner and
// the owner of the tools' results.
type draftSession struct {
	pipeline *Pipeline
	novelID  string
	chapter  int
	opts     assembler.Options
	minWords int

	context    *story.WritingContext
	contextErr error
	draft      *narrative.Draft
}

func (s *draftSession) Think(ctx context.Context, trace *story.AgentTrace) (agent.Decision, error) {
	switch {
	case s.context == nil:
		reason := "No writing context yet; assemble it first."
		if s.contextErr != nil {
			// budget failures will not go away on retry
			if errors.Is(s.contextErr, assembler.ErrBudgetExceeded) {
				return agent.Decision{}, s.contextErr
			}
			reason = "Assembling the context failed; retrying."
		}
		return agent.Decision{Reasoning: reason, Action: ToolBuildContext}, nil

	case s.draft == nil:
		return agent.Decision{
			Reasoning: fmt.Sprintf("Context holds %d tokens; write the chapter.", s.context.TotalTokens()),
			Action:    ToolWriteDraft,
		}, nil
	}

	return agent.Decision{
		Reasoning: fmt.Sprintf("The draft has %d words, below the %d-word minimum; ask for a longer chapter.", s.draft.Words, s.minWords),
		Action:    ToolWriteDraft,
		Args:      map[string]string{"min_words": strconv.Itoa(s.minWords)},
	}, nil
}

func (s *draftSession) Reflect(ctx context.Context, step story.TraceStep) (string, bool, error) {
	if strings.HasPrefix(step.Observation, "error:") {
		return "The action failed; the next step must recover.", false, nil
	}
	switch step.Action {
	case ToolBuildContext:
		return "Context is ready.", false, nil
	case ToolWriteDraft:
		if s.draft.Words >= s.minWords {
			return fmt.Sprintf("Draft of %d words meets the minimum.", s.draft.Words), true, nil
		}
		return fmt.Sprintf("Draft of %d words is too short.", s.draft.Words), false, nil
	}
	return "", false, nil
}

func (s *draftSession) buildContext(ctx context.Context, _ map[string]string) (string, error) {
	w, err := s.pipeline.BuildContext(ctx, s.novelID, s.chapter, s.opts)
	if err != nil {
		s.contextErr = err
		return "", err
	}
	s.context, s.contextErr = w, nil
	return fmt.Sprintf("assembled %d tokens across %d sections (%d trimmed)",
		w.TotalTokens(), len(w.Usage), len(w.Trimmed)), nil
}

func (s *draftSession) writeDraft(ctx context.Context, args map[string]string) (string, error) {
	if s.context == nil {
		return "", errors.New("no writing context; call build_context first")
	}

	w := s.context
	if n := args["min_words"]; n != "" {
		// The note is budgeted like any other author guidance. The rebuild is
		// served from the cache and s.context keeps the original.
		note := fmt.Sprintf("The previous draft was too short. Write at least %s words.", n)
		opts := s.opts
		opts.UserAdjustments = strings.TrimSpace(opts.UserAdjustments + "\n" + note)

		retry, err := s.pipeline.BuildContext(ctx, s.novelID, s.chapter, opts)
		if err != nil {
			return "", err
		}
		w = retry
	}

	prompt, err := narrative.AssemblePrompt(w)
	if err != nil {
		return "", err
	}
	draft, err := s.pipeline.generator.Generate(ctx, fmt.Sprintf("%s#%d", s.novelID, s.chapter), prompt)
	if err != nil {
		return "", err
	}
	s.draft = draft
	return fmt.Sprintf("draft %q with %d words", draft.Title, draft.Words), nil
}
