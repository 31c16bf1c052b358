// Package graph provides the story-state graph collaborator queried by the
// context assembler, with an in-memory implementation for fixtures and tests
// and a Milvus-backed implementation for deployed novels.
package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Yates-Labs/storyloom/internal/story"
)

var (
	// ErrUnavailable wraps every connectivity failure. Callers must surface it;
	// there is no stale fallback.
	ErrUnavailable     = errors.New("graph query service unavailable")
	ErrUnknownCategory = errors.New("unknown graph category")
)

// Category is a context section backed by graph entities.
type Category string

const (
	CategoryEvents      Category = "events"
	CategoryForeshadows Category = "foreshadows"
	CategoryPlotlines   Category = "plotlines"
	CategoryWorldRules  Category = "world_rules"
	CategoryCharacters  Category = "character_arcs"
	CategoryLocations   Category = "locations"
)

// Categories lists every graph-backed category in assembly order.
var Categories = []Category{
	CategoryEvents,
	CategoryForeshadows,
	CategoryPlotlines,
	CategoryWorldRules,
	CategoryCharacters,
	CategoryLocations,
}

var categoryTypes = map[Category]story.EntityType{
	CategoryEvents:      story.EntityEvent,
	CategoryForeshadows: story.EntityForeshadow,
	CategoryPlotlines:   story.EntityPlotline,
	CategoryWorldRules:  story.EntityWorldRule,
	CategoryCharacters:  story.EntityCharacter,
	CategoryLocations:   story.EntityLocation,
}

// EntityType returns the entity type stored under the category.
func (c Category) EntityType() (story.EntityType, error) {
	t, ok := categoryTypes[c]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, c)
	}
	return t, nil
}

// Section returns the writing-context section the category fills.
func (c Category) Section() story.Section { return story.Section(c) }

// CategoryFor returns the category holding entities of type t.
func CategoryFor(t story.EntityType) (Category, error) {
	for c, ct := range categoryTypes {
		if ct == t {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: no category for entity type %q", ErrUnknownCategory, t)
}

// Filters narrows a query. Zero values disable each filter.
type Filters struct {
	// POV keeps only events the point-of-view character takes part in.
	POV string
	// Focus is free text; the memory graph matches it as a substring and the
	// Milvus graph ranks by embedding similarity.
	Focus string
	// OpenOnly drops resolved foreshadows.
	OpenOnly bool
	// Limit caps the result size when positive.
	Limit int
}

// Querier is the graph query collaborator. Implementations return entities
// visible before chapter, ordered by the backend's own notion of relevance.
type Querier interface {
	QueryEntities(ctx context.Context, novelID string, chapter int, category Category, filters Filters) ([]story.Entity, error)
}

// Visible reports whether e was known before chapter and passes the
// structural filters. Focus is left to the backend.
func Visible(e story.Entity, chapter int, f Filters) bool {
	if ch, ok := e.Chapter(); ok && ch >= chapter {
		return false
	}

	switch p := e.Properties().(type) {
	case story.EventProps:
		if f.POV != "" && !slices.ContainsFunc(p.Participants, func(name string) bool {
			return strings.EqualFold(name, f.POV)
		}) {
			return false
		}
	case story.ForeshadowProps:
		if f.OpenOnly && !p.Open() {
			return false
		}
	}
	return true
}

// MatchesFocus reports whether the rendered entity mentions focus.
func MatchesFocus(e story.Entity, focus string) bool {
	if focus == "" {
		return true
	}
	return strings.Contains(strings.ToLower(e.Text()), strings.ToLower(focus))
}
