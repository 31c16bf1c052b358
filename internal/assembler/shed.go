package assembler

import (
	"github.com/Yates-Labs/storyloom/internal/budget"
	"github.com/Yates-Labs/storyloom/internal/story"
)

// shedOrder lists sections from first to last shed. Core settings and the
// most recent full chapter never appear here.
var shedOrder = []story.Section{
	story.SectionSummaries,
	story.SectionWorldRules,
	story.SectionLocations,
	story.SectionPlotlines,
	story.SectionForeshadows,
	story.SectionCharacters,
	story.SectionEvents,
	story.SectionUserAdjustments,
	story.SectionVolumePlan,
	story.SectionChapterPlan,
	story.SectionFullChapters,
}

// sectionTokens estimates the current size of one section.
func sectionTokens(w *story.WritingContext, s story.Section) int {
	switch s {
	case story.SectionCoreSettings:
		return budget.EstimateTokens(w.CoreSettings)
	case story.SectionVolumePlan:
		return budget.EstimateTokens(w.Plan.Volume)
	case story.SectionChapterPlan:
		return budget.EstimateTokens(w.Plan.Chapter)
	case story.SectionUserAdjustments:
		return budget.EstimateTokens(w.UserAdjustments)
	case story.SectionFullChapters:
		n := 0
		for _, ch := range w.RecentChapters {
			n += budget.EstimateTokens(ch.Text)
		}
		return n
	case story.SectionSummaries:
		n := 0
		for _, sum := range w.Summaries {
			n += budget.EstimateTokens(sum.Text)
		}
		return n
	}
	return entityTokens(w.EntitiesFor(s))
}

var allSections = append([]story.Section{story.SectionCoreSettings}, shedOrder...)

// measure records the usage of every populated section.
func measure(w *story.WritingContext) {
	w.Usage = make(map[story.Section]int)
	for _, s := range allSections {
		setUsage(w, s)
	}
}

func setUsage(w *story.WritingContext, s story.Section) {
	if n := sectionTokens(w, s); n > 0 {
		w.Usage[s] = n
	} else {
		delete(w.Usage, s)
	}
}

// shedOne removes the least valuable item of s. It reports false when the
// section has nothing left that may be shed.
func shedOne(w *story.WritingContext, s story.Section) bool {
	switch s {
	case story.SectionSummaries:
		// oldest summary first
		if len(w.Summaries) == 0 {
			return false
		}
		w.Summaries = w.Summaries[1:]
	case story.SectionUserAdjustments:
		if w.UserAdjustments == "" {
			return false
		}
		w.UserAdjustments = ""
	case story.SectionVolumePlan:
		if w.Plan.Volume == "" {
			return false
		}
		w.Plan.Volume = ""
	case story.SectionChapterPlan:
		if w.Plan.Chapter == "" {
			return false
		}
		w.Plan.Chapter = ""
	case story.SectionFullChapters:
		// the most recent chapter is kept
		if len(w.RecentChapters) <= 1 {
			return false
		}
		w.RecentChapters = w.RecentChapters[1:]
	default:
		entities := w.EntitiesFor(s)
		if len(entities) == 0 {
			return false
		}
		w.SetEntities(s, entities[:len(entities)-1])
	}
	return true
}

// enforceTotal sheds items in shedOrder until the context fits limit.
// It returns the remaining total and the number of items shed.
func enforceTotal(w *story.WritingContext, limit int) (total, shed int) {
	total = w.TotalTokens()
	for _, s := range shedOrder {
		for total > limit && shedOne(w, s) {
			shed++
			w.MarkTrimmed(s)
			setUsage(w, s)
			total = w.TotalTokens()
		}
		if total <= limit {
			break
		}
	}
	return total, shed
}
