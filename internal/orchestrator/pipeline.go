// Package orchestrator wires configuration, the query cache, the graph and
// manuscript backends, the assembler and the generator into one pipeline.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Yates-Labs/storyloom/internal/assembler"
	"github.com/Yates-Labs/storyloom/internal/budget"
	"github.com/Yates-Labs/storyloom/internal/cache"
	"github.com/Yates-Labs/storyloom/internal/clock"
	"github.com/Yates-Labs/storyloom/internal/config"
	"github.com/Yates-Labs/storyloom/internal/graph"
	"github.com/Yates-Labs/storyloom/internal/manuscript"
	"github.com/Yates-Labs/storyloom/internal/narrative"
	"github.com/Yates-Labs/storyloom/internal/story"
)

// Deps overrides collaborators that New would otherwise build from the
// configuration. Zero fields are built from config.
type Deps struct {
	Graph  graph.Querier
	Store  manuscript.Store
	LLM    narrative.LLM
	Clock  clock.Clock
	Logger *slog.Logger
}

// Pipeline orchestrates context assembly and chapter generation.
type Pipeline struct {
	config     *config.Config
	logger     *slog.Logger
	clock      clock.Clock
	cache      *cache.Cache
	assembler  *assembler.Assembler
	generator  *narrative.Generator
	summarizer *narrative.Summarizer
	store      manuscript.Store
	backends   *backends
}

// New creates a pipeline and starts the cache sweeper. Close releases it.
func New(ctx context.Context, cfg *config.Config, deps Deps) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", config.ErrInvalidConfig)
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	logger := deps.Logger.With("component", "pipeline")

	b := &backends{cfg: cfg, logger: deps.Logger}
	p, err := build(ctx, cfg, deps, b)
	if err != nil {
		_ = b.close()
		return nil, err
	}
	p.logger = logger

	p.cache.Start(context.WithoutCancel(ctx))
	logger.Debug("pipeline ready",
		"graph", cfg.Graph.Backend, "manuscript", cfg.Manuscript.Backend,
		"llm", cfg.LLM.Provider, "ttl", p.cache.TTL())
	return p, nil
}

func build(ctx context.Context, cfg *config.Config, deps Deps, b *backends) (*Pipeline, error) {
	var err error

	q := deps.Graph
	if q == nil {
		if q, err = b.graph(ctx); err != nil {
			return nil, fmt.Errorf("failed to create graph backend: %w", err)
		}
	}
	store := deps.Store
	if store == nil {
		if store, err = b.store(ctx); err != nil {
			return nil, fmt.Errorf("failed to create manuscript backend: %w", err)
		}
	}
	llm := deps.LLM
	if llm == nil {
		if llm, err = narrative.NewLLM(ctx, cfg.LLM); err != nil {
			return nil, fmt.Errorf("failed to create LLM: %w", err)
		}
	}

	opts := cfg.CacheOptions()
	opts.Clock = deps.Clock
	opts.Logger = deps.Logger
	c := cache.New(opts)

	asm, err := assembler.New(assembler.Config{
		Graph:  q,
		Store:  store,
		Cache:  c,
		Policy: cfg.Budget,
		Logger: deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create assembler: %w", err)
	}

	return &Pipeline{
		config:     cfg,
		clock:      deps.Clock,
		cache:      c,
		assembler:  asm,
		generator:  narrative.NewGenerator(llm, cfg.LLM),
		summarizer: narrative.NewSummarizer(llm, 0),
		store:      store,
		backends:   b,
	}, nil
}

// BuildContext assembles the writing context for one chapter.
func (p *Pipeline) BuildContext(ctx context.Context, novelID string, chapter int, opts assembler.Options) (*story.WritingContext, error) {
	w, err := p.assembler.Build(ctx, novelID, chapter, opts)
	if err != nil {
		return nil, err
	}
	p.logger.Info("context assembled",
		"novel", novelID, "chapter", chapter,
		"tokens", w.TotalTokens(), "trimmed", len(w.Trimmed))
	return w, nil
}

// ChapterCommitted drops every cached entry computed for chapter or later.
// Call it after a chapter is written, rewritten or inserted.
func (p *Pipeline) ChapterCommitted(novelID string, chapter int) int {
	n := p.assembler.Invalidate(novelID, &chapter)
	p.logger.Debug("chapter committed", "novel", novelID, "chapter", chapter, "invalidated", n)
	return n
}

// SettingsChanged drops every cached entry for the novel.
func (p *Pipeline) SettingsChanged(novelID string) int {
	n := p.assembler.Invalidate(novelID, nil)
	p.logger.Debug("settings changed", "novel", novelID, "invalidated", n)
	return n
}

// SummarizeChapter condenses a committed chapter. The manuscript is read
// directly so the result reflects the latest commit.
func (p *Pipeline) SummarizeChapter(ctx context.Context, novelID string, chapter int) (story.ChapterSummary, error) {
	chapters, err := p.store.Chapters(ctx, novelID, chapter, chapter)
	if err != nil {
		return story.ChapterSummary{}, err
	}
	if len(chapters) == 0 {
		return story.ChapterSummary{}, fmt.Errorf("%w: %s chapter %d", manuscript.ErrNotFound, novelID, chapter)
	}
	return p.summarizer.Summarize(ctx, chapters[0])
}

// Policy returns the configured budget policy.
func (p *Pipeline) Policy() budget.Policy {
	return p.assembler.Policy()
}

// CacheStats reports the query cache counters.
func (p *Pipeline) CacheStats() cache.Stats {
	return p.cache.Stats()
}

// Close stops the sweeper and releases backend connections.
func (p *Pipeline) Close() error {
	p.cache.Close()
	return p.backends.close()
}
