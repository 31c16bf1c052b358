package story

// Chapter is a committed chapter, returned verbatim by the manuscript store.
type Chapter struct {
	Number int    `json:"number" yaml:"number" bson:"number"`
	Title  string `json:"title,omitempty" yaml:"title" bson:"title"`
	Text   string `json:"text" yaml:"text" bson:"text"`
}

// ChapterSummary is the condensed form of an older chapter.
type ChapterSummary struct {
	Number int    `json:"number" yaml:"number" bson:"number"`
	Text   string `json:"text" yaml:"text" bson:"summary"`
}

// Plan holds the outline text for the current volume and chapter.
type Plan struct {
	Volume  string `json:"volume,omitempty" yaml:"volume"`
	Chapter string `json:"chapter,omitempty" yaml:"chapter"`
}

// Section names one part of the writing context. Section names double as
// the budget section identifiers.
type Section string

const (
	SectionCoreSettings    Section = "core_settings"
	SectionVolumePlan      Section = "volume_plan"
	SectionChapterPlan     Section = "chapter_plan"
	SectionEvents          Section = "events"
	SectionForeshadows     Section = "foreshadows"
	SectionPlotlines       Section = "plotlines"
	SectionWorldRules      Section = "world_rules"
	SectionCharacters      Section = "character_arcs"
	SectionLocations       Section = "locations"
	SectionFullChapters    Section = "full_chapters"
	SectionSummaries       Section = "summaries"
	SectionUserAdjustments Section = "user_adjustments"
)

// WritingContext is the aggregate handed to generation. It is built fresh for
// every request and owned by that request alone.
type WritingContext struct {
	NovelID string `json:"novel_id"`
	Chapter int    `json:"chapter"`

	CoreSettings string `json:"core_settings"`
	Plan         Plan   `json:"plan"`

	Events      []Entity `json:"-"`
	Foreshadows []Entity `json:"-"`
	Plotlines   []Entity `json:"-"`
	WorldRules  []Entity `json:"-"`
	Characters  []Entity `json:"-"`
	Locations   []Entity `json:"-"`

	// RecentChapters are never truncated; they may only be shed whole,
	// oldest first, and the most recent one is always kept.
	RecentChapters []Chapter        `json:"recent_chapters"`
	Summaries      []ChapterSummary `json:"summaries"`

	UserAdjustments string `json:"user_adjustments,omitempty"`

	Trace *AgentTrace `json:"-"`

	// Usage holds the estimated tokens per populated section after budgeting.
	Usage map[Section]int `json:"usage"`
	// Trimmed lists sections that were truncated or had items shed.
	Trimmed []Section `json:"trimmed,omitempty"`
}

// EntitiesFor returns the entity list backing a section, or nil for text
// sections.
func (w *WritingContext) EntitiesFor(s Section) []Entity {
	switch s {
	case SectionEvents:
		return w.Events
	case SectionForeshadows:
		return w.Foreshadows
	case SectionPlotlines:
		return w.Plotlines
	case SectionWorldRules:
		return w.WorldRules
	case SectionCharacters:
		return w.Characters
	case SectionLocations:
		return w.Locations
	}
	return nil
}

// SetEntities replaces the entity list backing a section.
func (w *WritingContext) SetEntities(s Section, entities []Entity) {
	switch s {
	case SectionEvents:
		w.Events = entities
	case SectionForeshadows:
		w.Foreshadows = entities
	case SectionPlotlines:
		w.Plotlines = entities
	case SectionWorldRules:
		w.WorldRules = entities
	case SectionCharacters:
		w.Characters = entities
	case SectionLocations:
		w.Locations = entities
	}
}

// TotalTokens sums the recorded per-section usage.
func (w *WritingContext) TotalTokens() int {
	total := 0
	for _, n := range w.Usage {
		total += n
	}
	return total
}

// MarkTrimmed records s once in Trimmed.
func (w *WritingContext) MarkTrimmed(s Section) {
	for _, existing := range w.Trimmed {
		if existing == s {
			return
		}
	}
	w.Trimmed = append(w.Trimmed, s)
}
