package assembler

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/Yates-Labs/storyloom/internal/budget"
	"github.com/Yates-Labs/storyloom/internal/cache"
	"github.com/Yates-Labs/storyloom/internal/clock"
	"github.com/Yates-Labs/storyloom/internal/graph"
	"github.com/Yates-Labs/storyloom/internal/manuscript"
	"github.com/Yates-Labs/storyloom/internal/story"
)

func words(n int, w string) string {
	return strings.TrimSpace(strings.Repeat(w+" ", n))
}

// testPolicy sets every section ceiling to ceiling.
func testPolicy(ceiling, total int) budget.Policy {
	p := budget.DefaultPolicy()
	p.Counts.FullChapters = 2
	p.Counts.SummaryChapters = 2
	p.Tokens = budget.TokenPolicy{
		CoreSettings:    ceiling,
		VolumePlan:      ceiling,
		ChapterPlan:     ceiling,
		Events:          ceiling,
		Foreshadows:     ceiling,
		Plotlines:       ceiling,
		WorldRules:      ceiling,
		Characters:      ceiling,
		Locations:       ceiling,
		FullChapters:    ceiling,
		Summaries:       ceiling,
		UserAdjustments: ceiling,
		TotalInput:      total,
	}
	return p
}

type testWorld struct {
	graph *graph.MemoryGraph
	store *manuscript.MemoryStore
	cache *cache.Cache
	clock *clock.FakeClock
}

func newTestWorld(t *testing.T) *testWorld {
	t.Helper()

	store := manuscript.NewMemoryStore()
	store.AddNovel("n1", words(30, "setting"))
	must(t, store.SetVolumePlan("n1", "The flood rises."))
	must(t, store.SetChapterPlan("n1", 4, "Lin reaches the spire."))
	for n := 1; n <= 3; n++ {
		must(t, store.PutChapter("n1", story.Chapter{Number: n, Text: words(100, "tide")}))
		must(t, store.PutSummary("n1", story.ChapterSummary{Number: n, Text: words(5, "summary")}))
	}

	g := graph.NewMemoryGraph()
	g.Add("n1",
		entity("ev-1", story.EventProps{Title: "The ambush", Participants: []string{"Lin"}}, story.IntPtr(1), 0.7),
		entity("ev-2", story.EventProps{Title: "The letter", Participants: []string{"Mei"}}, story.IntPtr(2), 0.6),
		entity("fs-1", story.ForeshadowProps{Title: "Black wax", Content: "Only the spire uses it"}, story.IntPtr(2), 0.8),
		entity("fs-2", story.ForeshadowProps{Title: "Bells", Content: "Silent", Status: story.ForeshadowResolved}, nil, 0.9),
		entity("pl-1", story.PlotlineProps{Name: "War", Summary: "The priests move"}, nil, 0.5),
		entity("wr-1", story.WorldRuleProps{Name: "Tides", Rule: "Low water breaks spells"}, nil, 1.0),
		entity("wr-2", story.WorldRuleProps{Name: "Wax", Rule: "Black wax is reserved"}, nil, 0.4),
		entity("ch-1", story.CharacterProps{Name: "Lin", Role: "protagonist"}, nil, 0.9),
		entity("loc-1", story.LocationProps{Name: "Harbor", Region: "Lower City"}, nil, 0.6),
	)

	fc := clock.Fake(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	return &testWorld{
		graph: g,
		store: store,
		cache: cache.New(cache.Options{TTL: time.Minute, Clock: fc}),
		clock: fc,
	}
}

func (w *testWorld) assembler(t *testing.T, policy budget.Policy) *Assembler {
	t.Helper()

	a, err := New(Config{Graph: w.graph, Store: w.store, Cache: w.cache, Policy: policy})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return a
}

func entity(id string, props story.Properties, chapter *int, relevance float64) story.Entity {
	return story.MustEntity(story.EntityInput{ID: id, Props: props, Chapter: chapter, Relevance: relevance})
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func entityIDs(entities []story.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.ID()
	}
	return out
}

func TestNew_RequiresCollaborators(t *testing.T) {
	w := newTestWorld(t)

	if _, err := New(Config{Graph: w.graph, Store: w.store, Policy: budget.DefaultPolicy()}); err == nil {
		t.Error("expected error without a cache")
	}

	bad := budget.DefaultPolicy()
	bad.Tokens.TotalInput = 0
	if _, err := New(Config{Graph: w.graph, Store: w.store, Cache: w.cache, Policy: bad}); !errors.Is(err, budget.ErrInvalidPolicy) {
		t.Errorf("expected ErrInvalidPolicy, got %v", err)
	}
}

func TestBuild_PopulatesSections(t *testing.T) {
	w := newTestWorld(t)
	a := w.assembler(t, testPolicy(300, 5000))

	wc, err := a.Build(context.Background(), "n1", 4, Options{UserAdjustments: "Keep it tense."})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if wc.CoreSettings == "" || wc.Plan.Chapter != "Lin reaches the spire." || wc.Plan.Volume == "" {
		t.Errorf("text sections missing: %+v", wc.Plan)
	}
	if len(wc.RecentChapters) != 2 || wc.RecentChapters[0].Number != 2 || wc.RecentChapters[1].Number != 3 {
		t.Errorf("expected chapters 2 and 3 verbatim, got %+v", wc.RecentChapters)
	}
	if wc.RecentChapters[1].Text != words(100, "tide") {
		t.Error("full chapters must not be altered")
	}
	if len(wc.Summaries) != 1 || wc.Summaries[0].Number != 1 {
		t.Errorf("expected summary of chapter 1, got %+v", wc.Summaries)
	}
	if got := entityIDs(wc.Foreshadows); !slices.Equal(got, []string{"fs-1"}) {
		t.Errorf("resolved foreshadows must be filtered, got %v", got)
	}
	if got := entityIDs(wc.WorldRules); !slices.Equal(got, []string{"wr-1", "wr-2"}) {
		t.Errorf("world rules out of order: %v", got)
	}
	if wc.UserAdjustments != "Keep it tense." {
		t.Errorf("unexpected adjustments %q", wc.UserAdjustments)
	}
	if wc.TotalTokens() > 5000 || wc.Usage[story.SectionFullChapters] != 260 {
		t.Errorf("unexpected usage %v", wc.Usage)
	}
}

// TestBuild_EventCapKeepsHighestRanked covers the two-event cap: relevance
// wins, and between equal relevance the more recent chapter wins.
func TestBuild_EventCapKeepsHighestRanked(t *testing.T) {
	w := newTestWorld(t)
	w.graph.Add("n2",
		entity("old", story.EventProps{Title: "old"}, story.IntPtr(4), 0.9),
		entity("top", story.EventProps{Title: "top"}, story.IntPtr(9), 0.95),
		entity("low", story.EventProps{Title: "low"}, story.IntPtr(2), 0.3),
		entity("recent", story.EventProps{Title: "recent"}, story.IntPtr(10), 0.9),
	)
	w.store.AddNovel("n2", "settings")

	policy := testPolicy(300, 5000)
	policy.Counts.Events = 2
	a := w.assembler(t, policy)

	wc, err := a.Build(context.Background(), "n2", 11, Options{})
	if err != nil {
		t.Fatal(err)
	}

	if got := entityIDs(wc.Events); !slices.Equal(got, []string{"top", "recent"}) {
		t.Errorf("expected [top recent], got %v", got)
	}
	if !slices.Contains(wc.Trimmed, story.SectionEvents) {
		t.Error("events should be reported as trimmed")
	}
}

func TestBuild_WarmCacheMakesNoGraphCalls(t *testing.T) {
	w := newTestWorld(t)
	a := w.assembler(t, testPolicy(300, 5000))
	ctx := context.Background()

	first, err := a.Build(ctx, "n1", 4, Options{})
	if err != nil {
		t.Fatal(err)
	}
	calls, reads := w.graph.TotalCalls(), w.store.Reads()
	if calls != len(graph.Categories) {
		t.Errorf("expected one graph call per category, got %d", calls)
	}

	second, err := a.Build(ctx, "n1", 4, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if w.graph.TotalCalls() != calls {
		t.Errorf("warm build queried the graph: %d -> %d", calls, w.graph.TotalCalls())
	}
	if w.store.Reads() != reads {
		t.Errorf("warm build read the store: %d -> %d", reads, w.store.Reads())
	}
	if first.TotalTokens() != second.TotalTokens() {
		t.Error("warm and cold builds should produce the same context")
	}
}

func TestBuild_ExpiredCacheRequeries(t *testing.T) {
	w := newTestWorld(t)
	a := w.assembler(t, testPolicy(300, 5000))
	ctx := context.Background()

	_, err := a.Build(ctx, "n1", 4, Options{})
	must(t, err)
	w.clock.Advance(2 * time.Minute)
	_, err = a.Build(ctx, "n1", 4, Options{})
	must(t, err)

	if got := w.graph.Calls(graph.CategoryEvents, "n1", 4); got != 2 {
		t.Errorf("expected a second query after expiry, got %d", got)
	}
}

func TestBuild_GraphUnavailablePropagates(t *testing.T) {
	w := newTestWorld(t)
	a := w.assembler(t, testPolicy(300, 5000))
	ctx := context.Background()

	_, err := a.Build(ctx, "n1", 4, Options{})
	must(t, err)

	w.graph.SetOffline(true)
	a.Invalidate("n1", nil)

	_, err = a.Build(ctx, "n1", 4, Options{})
	if !errors.Is(err, graph.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestBuild_MissingNovel(t *testing.T) {
	w := newTestWorld(t)
	a := w.assembler(t, testPolicy(300, 5000))

	_, err := a.Build(context.Background(), "nobody", 2, Options{})
	if !errors.Is(err, manuscript.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestBuild_InvalidRequest(t *testing.T) {
	w := newTestWorld(t)
	a := w.assembler(t, testPolicy(300, 5000))

	if _, err := a.Build(context.Background(), "n1", 0, Options{}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}

	bad := testPolicy(300, 100)
	if _, err := a.Build(context.Background(), "n1", 2, Options{Policy: &bad}); !errors.Is(err, budget.ErrInvalidPolicy) {
		t.Errorf("expected ErrInvalidPolicy for override, got %v", err)
	}
}

func TestBuild_POVIsPartOfCacheKey(t *testing.T) {
	w := newTestWorld(t)
	a := w.assembler(t, testPolicy(300, 5000))
	ctx := context.Background()

	lin, err := a.Build(ctx, "n1", 4, Options{POV: "Lin"})
	must(t, err)
	mei, err := a.Build(ctx, "n1", 4, Options{POV: "Mei"})
	must(t, err)
	_, err = a.Build(ctx, "n1", 4, Options{POV: "Lin"})
	must(t, err)

	if got := w.graph.Calls(graph.CategoryEvents, "n1", 4); got != 2 {
		t.Errorf("expected one query per POV, got %d", got)
	}
	if !slices.Equal(entityIDs(lin.Events), []string{"ev-1"}) || !slices.Equal(entityIDs(mei.Events), []string{"ev-2"}) {
		t.Errorf("POV filter not applied: %v / %v", entityIDs(lin.Events), entityIDs(mei.Events))
	}
}

func TestInvalidate_FromChapterKeepsSettings(t *testing.T) {
	w := newTestWorld(t)
	a := w.assembler(t, testPolicy(300, 5000))
	ctx := context.Background()

	_, err := a.Build(ctx, "n1", 4, Options{})
	must(t, err)
	reads := w.store.Reads()

	if removed := a.Invalidate("n1", story.IntPtr(3)); removed == 0 {
		t.Fatal("expected chapter-scoped entries to be removed")
	}
	_, err = a.Build(ctx, "n1", 4, Options{})
	must(t, err)

	if got := w.graph.Calls(graph.CategoryEvents, "n1", 4); got != 2 {
		t.Errorf("expected a fresh graph query, got %d", got)
	}
	// plan, chapters and summaries are reloaded; settings stay cached
	if got := w.store.Reads() - reads; got != 3 {
		t.Errorf("expected 3 store reads after invalidation, got %d", got)
	}
}

func TestBuild_WrongTypeCachedPayloadIsMiss(t *testing.T) {
	w := newTestWorld(t)
	a := w.assembler(t, testPolicy(300, 5000))
	w.cache.Put(cache.NewKey(string(graph.CategoryEvents), "n1", 4), "not entities")

	wc, err := a.Build(context.Background(), "n1", 4, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(wc.Events) != 2 {
		t.Errorf("expected events from the graph, got %v", entityIDs(wc.Events))
	}
	if got := w.graph.Calls(graph.CategoryEvents, "n1", 4); got != 1 {
		t.Errorf("expected the graph to be queried, got %d calls", got)
	}
}

// TestBuild_CoreSettingsTruncatedToCeiling covers 1200 tokens of settings
// under a 1000 token budget.
func TestBuild_CoreSettingsTruncatedToCeiling(t *testing.T) {
	w := newTestWorld(t)
	w.store.AddNovel("cjk", strings.Repeat("设", 800))
	a := w.assembler(t, testPolicy(1000, 1000))

	wc, err := a.Build(context.Background(), "cjk", 1, Options{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if got := budget.EstimateTokens(wc.CoreSettings); got > 1001 {
		t.Errorf("expected at most 1000 (+1) tokens, got %d", got)
	}
	if !strings.HasSuffix(wc.CoreSettings, budget.TruncationMarker) {
		t.Error("expected truncation marker")
	}
	if !slices.Contains(wc.Trimmed, story.SectionCoreSettings) {
		t.Error("core settings should be reported as trimmed")
	}
}

func TestBuild_ShedsSummariesThenWorldRules(t *testing.T) {
	w := newTestWorld(t)
	ctx := context.Background()

	full, err := w.assembler(t, testPolicy(300, 5000)).Build(ctx, "n1", 4, Options{})
	must(t, err)
	limit := full.TotalTokens() - full.Usage[story.SectionSummaries] - full.Usage[story.SectionWorldRules]

	tight := testPolicy(300, limit)
	wc, err := w.assembler(t, tight).Build(ctx, "n1", 4, Options{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if len(wc.Summaries) != 0 || len(wc.WorldRules) != 0 {
		t.Errorf("expected summaries and world rules shed, got %d / %d", len(wc.Summaries), len(wc.WorldRules))
	}
	if len(wc.Locations) != 1 || len(wc.Events) != 2 || len(wc.RecentChapters) != 2 {
		t.Error("later sections must be untouched")
	}
	if wc.TotalTokens() > limit {
		t.Errorf("total %d exceeds limit %d", wc.TotalTokens(), limit)
	}
	for _, s := range []story.Section{story.SectionSummaries, story.SectionWorldRules} {
		if !slices.Contains(wc.Trimmed, s) {
			t.Errorf("%s should be reported as trimmed", s)
		}
	}
}

func TestBuild_BudgetExceeded(t *testing.T) {
	w := newTestWorld(t)
	w.store.AddNovel("long", words(30, "setting"))
	must(t, w.store.PutChapter("long", story.Chapter{Number: 1, Text: words(200, "wave")}))
	a := w.assembler(t, testPolicy(250, 250))

	_, err := a.Build(context.Background(), "long", 2, Options{})
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
	var be *BudgetExceededError
	if !errors.As(err, &be) {
		t.Fatalf("expected *BudgetExceededError, got %T", err)
	}
	if be.Required != 39+260 || be.Limit != 250 {
		t.Errorf("unexpected budget report %+v", be)
	}
}

func TestBuild_KeepsMostRecentChapterWhenShedding(t *testing.T) {
	w := newTestWorld(t)
	a := w.assembler(t, testPolicy(280, 280))

	wc, err := a.Build(context.Background(), "n1", 4, Options{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(wc.RecentChapters) != 1 || wc.RecentChapters[0].Number != 3 {
		t.Errorf("expected only chapter 3 kept, got %+v", wc.RecentChapters)
	}
	if wc.CoreSettings == "" {
		t.Error("core settings must never be shed")
	}
}

func TestRank_TieBreaks(t *testing.T) {
	in := []story.Entity{
		entity("b", story.LocationProps{Name: "b"}, nil, 0.5),
		entity("a", story.LocationProps{Name: "a"}, nil, 0.5),
		entity("c", story.LocationProps{Name: "c"}, story.IntPtr(1), 0.5),
		entity("d", story.LocationProps{Name: "d"}, story.IntPtr(7), 0.5),
		entity("e", story.LocationProps{Name: "e"}, nil, 0.8),
	}

	got := entityIDs(rank(in))
	want := []string{"e", "d", "c", "a", "b"}
	if !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if in[0].ID() != "b" {
		t.Error("rank must not reorder its input")
	}
}

func TestTrimEntities(t *testing.T) {
	ranked := []story.Entity{
		entity("a", story.LocationProps{Name: words(10, "x")}, nil, 0.9),
		entity("b", story.LocationProps{Name: words(10, "x")}, nil, 0.8),
		entity("c", story.LocationProps{Name: words(10, "x")}, nil, 0.7),
	}

	kept, trimmed := trimEntities(ranked, -1, 1000)
	if len(kept) != 3 || trimmed {
		t.Errorf("nothing should be trimmed, got %d", len(kept))
	}
	kept, _ = trimEntities(ranked, 2, 1000)
	if !slices.Equal(entityIDs(kept), []string{"a", "b"}) {
		t.Errorf("count cap: got %v", entityIDs(kept))
	}
	kept, _ = trimEntities(ranked, 5, 13)
	if !slices.Equal(entityIDs(kept), []string{"a"}) {
		t.Errorf("token ceiling: got %v", entityIDs(kept))
	}
}
