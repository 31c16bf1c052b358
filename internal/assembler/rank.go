package assembler

import (
	"cmp"
	"slices"

	"github.com/Yates-Labs/storyloom/internal/budget"
	"github.com/Yates-Labs/storyloom/internal/story"
)

// rank orders entities by relevance (highest first), then by chapter (most
// recent first, entities without a chapter last), then by id. The input is
// not modified.
func rank(entities []story.Entity) []story.Entity {
	out := slices.Clone(entities)
	slices.SortStableFunc(out, func(a, b story.Entity) int {
		if c := cmp.Compare(b.Relevance(), a.Relevance()); c != 0 {
			return c
		}
		ac, aok := a.Chapter()
		bc, bok := b.Chapter()
		switch {
		case aok && !bok:
			return -1
		case !aok && bok:
			return 1
		case aok && bok && ac != bc:
			return cmp.Compare(bc, ac)
		}
		return cmp.Compare(a.ID(), b.ID())
	})
	return out
}

func entityTokens(entities []story.Entity) int {
	total := 0
	for _, e := range entities {
		total += budget.EstimateTokens(e.Text())
	}
	return total
}

// trimEntities applies the count cap, then drops the lowest ranked entities
// while the section is over its token ceiling. trimmed reports whether
// anything was removed.
func trimEntities(ranked []story.Entity, maxCount, maxTokens int) (kept []story.Entity, trimmed bool) {
	kept = ranked
	if maxCount >= 0 && len(kept) > maxCount {
		kept = kept[:maxCount]
		trimmed = true
	}
	total := entityTokens(kept)
	for len(kept) > 0 && total > maxTokens {
		last := kept[len(kept)-1]
		total -= budget.EstimateTokens(last.Text())
		kept = kept[:len(kept)-1]
		trimmed = true
	}
	return kept, trimmed
}
