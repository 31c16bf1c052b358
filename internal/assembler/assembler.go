// Package assembler builds the bounded writing context for one chapter: it
// fetches graph entities and manuscript text through the query cache, ranks
// and trims them per section and enforces the total input budget.
package assembler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Yates-Labs/storyloom/internal/budget"
	"github.com/Yates-Labs/storyloom/internal/cache"
	"github.com/Yates-Labs/storyloom/internal/graph"
	"github.com/Yates-Labs/storyloom/internal/manuscript"
	"github.com/Yates-Labs/storyloom/internal/story"
)

// Cache categories for manuscript reads.
const (
	categorySettings  = "settings"
	categoryPlan      = "plan"
	categoryChapters  = "chapters"
	categorySummaries = "summaries"
)

// Config wires the assembler's collaborators.
type Config struct {
	Graph  graph.Querier
	Store  manuscript.Store
	Cache  *cache.Cache
	Policy budget.Policy
	Logger *slog.Logger
}

// Options tune a single Build.
type Options struct {
	// POV and Focus narrow graph queries and become part of the cache key.
	POV   string
	Focus string
	// UserAdjustments is free-form author guidance, truncated to its ceiling.
	UserAdjustments string
	// Policy overrides the configured policy for this call.
	Policy *budget.Policy
}

// Assembler is safe for concurrent use.
type Assembler struct {
	graph  graph.Querier
	store  manuscript.Store
	cache  *cache.Cache
	policy budget.Policy
	logger *slog.Logger
	flight singleflight.Group
}

// New validates the configuration and returns an assembler.
func New(cfg Config) (*Assembler, error) {
	if cfg.Graph == nil || cfg.Store == nil || cfg.Cache == nil {
		return nil, fmt.Errorf("assembler requires a graph, a store and a cache")
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	return &Assembler{
		graph:  cfg.Graph,
		store:  cfg.Store,
		cache:  cfg.Cache,
		policy: cfg.Policy,
		logger: cfg.Logger.With("component", "assembler"),
	}, nil
}

// Policy returns the configured budget policy.
func (a *Assembler) Policy() budget.Policy { return a.policy }

// Invalidate drops cached state for a novel: everything when fromChapter is
// nil, otherwise every chapter-scoped entry at or after *fromChapter.
func (a *Assembler) Invalidate(novelID string, fromChapter *int) int {
	if fromChapter == nil {
		return a.cache.InvalidateNovel(novelID)
	}
	return a.cache.InvalidateFromChapter(novelID, *fromChapter)
}

// Build assembles the writing context for chapter of novelID.
func (a *Assembler) Build(ctx context.Context, novelID string, chapter int, opts Options) (*story.WritingContext, error) {
	if novelID == "" {
		return nil, fmt.Errorf("%w: empty novel id", ErrInvalidRequest)
	}
	if chapter < 1 {
		return nil, fmt.Errorf("%w: chapter %d", ErrInvalidRequest, chapter)
	}
	policy := a.policy
	if opts.Policy != nil {
		if err := opts.Policy.Validate(); err != nil {
			return nil, err
		}
		policy = *opts.Policy
	}

	w := &story.WritingContext{NovelID: novelID, Chapter: chapter}
	extras := discriminators(opts)

	fullFrom := chapter - policy.Counts.FullChapters
	summaryFrom := fullFrom - policy.Counts.SummaryChapters

	var (
		settings  string
		plan      story.Plan
		chapters  []story.Chapter
		summaries []story.ChapterSummary
		sections  = make([][]story.Entity, len(graph.Categories))
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		settings, err = load(gctx, a, cache.NovelKey(categorySettings, novelID),
			func(ctx context.Context) (string, error) { return a.store.CoreSettings(ctx, novelID) })
		return wrap(err, "core settings")
	})
	g.Go(func() (err error) {
		plan, err = load(gctx, a, cache.NewKey(categoryPlan, novelID, chapter),
			func(ctx context.Context) (story.Plan, error) { return a.store.Plan(ctx, novelID, chapter) })
		return wrap(err, "plan")
	})
	g.Go(func() (err error) {
		if policy.Counts.FullChapters == 0 {
			return nil
		}
		chapters, err = load(gctx, a, cache.NewKey(categoryChapters, novelID, chapter, span(fullFrom, chapter-1)),
			func(ctx context.Context) ([]story.Chapter, error) {
				return a.store.Chapters(ctx, novelID, fullFrom, chapter-1)
			})
		return wrap(err, "chapters")
	})
	g.Go(func() (err error) {
		if policy.Counts.SummaryChapters == 0 {
			return nil
		}
		summaries, err = load(gctx, a, cache.NewKey(categorySummaries, novelID, chapter, span(summaryFrom, fullFrom-1)),
			func(ctx context.Context) ([]story.ChapterSummary, error) {
				return a.store.Summaries(ctx, novelID, summaryFrom, fullFrom-1)
			})
		return wrap(err, "summaries")
	})

	for i, category := range graph.Categories {
		g.Go(func() error {
			entities, err := a.entities(gctx, novelID, chapter, category, opts, extras)
			if err != nil {
				return fmt.Errorf("query %s: %w", category, err)
			}
			sections[i] = entities
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	a.fillText(w, policy, settings, plan, opts.UserAdjustments)
	a.fillChapters(w, policy, chapters, summaries)
	for i, category := range graph.Categories {
		s := category.Section()
		kept, trimmed := trimEntities(rank(sections[i]), policy.Counts.For(s), policy.Tokens.For(s))
		w.SetEntities(s, kept)
		if trimmed {
			w.MarkTrimmed(s)
		}
	}

	measure(w)
	total, shed := enforceTotal(w, policy.Tokens.TotalInput)
	if shed > 0 {
		a.logger.Info("shed context items to fit budget",
			"novel", novelID, "chapter", chapter, "shed", shed, "total", total,
			"limit", policy.Tokens.TotalInput)
	}
	if total > policy.Tokens.TotalInput {
		return nil, &BudgetExceededError{
			NovelID:  novelID,
			Chapter:  chapter,
			Required: total,
			Limit:    policy.Tokens.TotalInput,
		}
	}

	return w, nil
}

// entities returns the unbudgeted entity list for one category.
func (a *Assembler) entities(ctx context.Context, novelID string, chapter int, category graph.Category, opts Options, extras []string) ([]story.Entity, error) {
	filters := graph.Filters{
		POV:      opts.POV,
		Focus:    opts.Focus,
		OpenOnly: category == graph.CategoryForeshadows,
	}
	key := cache.NewKey(string(category), novelID, chapter, extras...)

	return load(ctx, a, key, func(ctx context.Context) ([]story.Entity, error) {
		return a.graph.QueryEntities(ctx, novelID, chapter, category, filters)
	})
}

func (a *Assembler) fillText(w *story.WritingContext, policy budget.Policy, settings string, plan story.Plan, adjustments string) {
	truncate := func(s story.Section, text string, ceiling int) string {
		out := policy.Truncate(text, ceiling)
		if out != text {
			w.MarkTrimmed(s)
		}
		return out
	}

	w.CoreSettings = truncate(story.SectionCoreSettings, settings, policy.Tokens.CoreSettings)
	w.Plan = story.Plan{
		Volume:  truncate(story.SectionVolumePlan, plan.Volume, policy.Tokens.VolumePlan),
		Chapter: truncate(story.SectionChapterPlan, plan.Chapter, policy.Tokens.ChapterPlan),
	}
	w.UserAdjustments = truncate(story.SectionUserAdjustments, adjustments, policy.Tokens.UserAdjustments)
}

// fillChapters keeps full chapters verbatim, dropping the oldest while the
// section is over its ceiling, and truncates each summary to an equal share
// of the summaries ceiling.
func (a *Assembler) fillChapters(w *story.WritingContext, policy budget.Policy, chapters []story.Chapter, summaries []story.ChapterSummary) {
	recent := slices.Clone(chapters)
	if n := policy.Counts.FullChapters; len(recent) > n {
		recent = recent[len(recent)-n:]
		w.MarkTrimmed(story.SectionFullChapters)
	}
	w.RecentChapters = recent
	for len(w.RecentChapters) > 1 && sectionTokens(w, story.SectionFullChapters) > policy.Tokens.FullChapters {
		w.RecentChapters = w.RecentChapters[1:]
		w.MarkTrimmed(story.SectionFullChapters)
	}

	if len(summaries) > policy.Counts.SummaryChapters {
		summaries = summaries[len(summaries)-policy.Counts.SummaryChapters:]
		w.MarkTrimmed(story.SectionSummaries)
	}
	if len(summaries) == 0 {
		return
	}
	share := policy.Tokens.Summaries / len(summaries)
	w.Summaries = make([]story.ChapterSummary, len(summaries))
	for i, sum := range summaries {
		text := policy.Truncate(sum.Text, share)
		if text != sum.Text {
			w.MarkTrimmed(story.SectionSummaries)
		}
		w.Summaries[i] = story.ChapterSummary{Number: sum.Number, Text: text}
	}
}

// load serves key from the cache or computes it with fetch. Concurrent
// misses on the same key share one fetch; no cache lock is held while it
// runs. A cached payload of the wrong type counts as a miss.
//
// The shared fetch runs detached from any one caller, so a caller that gives
// up only stops waiting. The flight is keyed by the novel's cache generation:
// builds that start after an invalidation never join an older fetch, and an
// older fetch never writes its result back.
func load[T any](ctx context.Context, a *Assembler, key cache.Key, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	if v, ok := a.cache.Get(key); ok {
		if typed, ok := v.(T); ok {
			a.logger.Debug("cache hit", "key", key.String())
			return typed, nil
		}
		a.logger.Warn("ignoring cached payload of unexpected type",
			"key", key.String(), "type", fmt.Sprintf("%T", v))
	}
	a.logger.Debug("cache miss", "key", key.String())

	gen := a.cache.Generation(key.NovelID)
	detached := context.WithoutCancel(ctx)
	flight := key.String() + "@" + strconv.FormatUint(gen, 10)

	ch := a.flight.DoChan(flight, func() (any, error) {
		res, err := fetch(detached)
		if err != nil {
			return nil, err
		}
		if !a.cache.PutAt(key, res, gen) {
			a.logger.Debug("discarding result fetched before invalidation", "key", key.String())
		}
		return res, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return zero, r.Err
		}
		return r.Val.(T), nil
	}
}

// discriminators turns request options into cache key extras.
func discriminators(opts Options) []string {
	var extras []string
	if opts.POV != "" {
		extras = append(extras, "pov="+sanitize(opts.POV))
	}
	if opts.Focus != "" {
		extras = append(extras, "focus="+sanitize(opts.Focus))
	}
	return extras
}

func sanitize(s string) string {
	return strings.ReplaceAll(s, cache.Delimiter, "/")
}

func span(from, to int) string {
	return strconv.Itoa(max(from, 1)) + "-" + strconv.Itoa(to)
}

func wrap(err error, what string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("load %s: %w", what, err)
}
