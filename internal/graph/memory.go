package graph

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/Yates-Labs/storyloom/internal/story"
)

type callKey struct {
	category Category
	novelID  string
	chapter  int
}

// MemoryGraph is an in-process Querier. It records how often each
// (category, novel, chapter) was queried and can be switched offline to
// simulate an unreachable graph.
type MemoryGraph struct {
	mu       sync.RWMutex
	entities map[string][]story.Entity
	calls    map[callKey]int
	offline  bool
}

// NewMemoryGraph returns an empty graph.
func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{
		entities: make(map[string][]story.Entity),
		calls:    make(map[callKey]int),
	}
}

// Add stores entities for a novel.
func (g *MemoryGraph) Add(novelID string, entities ...story.Entity) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entities[novelID] = append(g.entities[novelID], entities...)
}

// Entities returns every stored entity of the novel.
func (g *MemoryGraph) Entities(novelID string) []story.Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.entities[novelID])
}

// Novels returns the ids of every novel with entities, sorted.
func (g *MemoryGraph) Novels() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := make([]string, 0, len(g.entities))
	for id := range g.entities {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// SetOffline makes subsequent queries fail with ErrUnavailable.
func (g *MemoryGraph) SetOffline(offline bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.offline = offline
}

// Calls returns how many queries were made for the given key.
func (g *MemoryGraph) Calls(category Category, novelID string, chapter int) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.calls[callKey{category, novelID, chapter}]
}

// TotalCalls returns the number of queries made so far.
func (g *MemoryGraph) TotalCalls() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	total := 0
	for _, n := range g.calls {
		total += n
	}
	return total
}

// QueryEntities implements Querier. Results are ordered by relevance,
// highest first, keeping insertion order between ties.
func (g *MemoryGraph) QueryEntities(ctx context.Context, novelID string, chapter int, category Category, filters Filters) ([]story.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want, err := category.EntityType()
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.calls[callKey{category, novelID, chapter}]++
	offline := g.offline
	all := g.entities[novelID]
	g.mu.Unlock()

	if offline {
		return nil, fmt.Errorf("%w: memory graph is offline", ErrUnavailable)
	}

	var out []story.Entity
	for _, e := range all {
		if e.Type() != want || !Visible(e, chapter, filters) || !MatchesFocus(e, filters.Focus) {
			continue
		}
		out = append(out, e)
	}

	slices.SortStableFunc(out, func(a, b story.Entity) int {
		return cmp.Compare(b.Relevance(), a.Relevance())
	})
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}
