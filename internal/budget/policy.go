// Package budget defines how much story context may go into one generation
// prompt: item caps per section, token ceilings per section plus a total
// input ceiling, and the token estimation and truncation those limits rely on.
package budget

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Yates-Labs/storyloom/internal/story"
)

var ErrInvalidPolicy = errors.New("invalid budget policy")

// CountPolicy caps the number of items per section. Zero disables a section.
type CountPolicy struct {
	Events          int `mapstructure:"events" yaml:"events"`
	Foreshadows     int `mapstructure:"foreshadows" yaml:"foreshadows"`
	Plotlines       int `mapstructure:"plotlines" yaml:"plotlines"`
	WorldRules      int `mapstructure:"world_rules" yaml:"world_rules"`
	Characters      int `mapstructure:"characters" yaml:"characters"`
	Locations       int `mapstructure:"locations" yaml:"locations"`
	FullChapters    int `mapstructure:"full_chapters" yaml:"full_chapters"`
	SummaryChapters int `mapstructure:"summary_chapters" yaml:"summary_chapters"`
}

// For returns the item cap for an entity section, or -1 if s is not counted.
func (c CountPolicy) For(s story.Section) int {
	switch s {
	case story.SectionEvents:
		return c.Events
	case story.SectionForeshadows:
		return c.Foreshadows
	case story.SectionPlotlines:
		return c.Plotlines
	case story.SectionWorldRules:
		return c.WorldRules
	case story.SectionCharacters:
		return c.Characters
	case story.SectionLocations:
		return c.Locations
	case story.SectionFullChapters:
		return c.FullChapters
	case story.SectionSummaries:
		return c.SummaryChapters
	}
	return -1
}

// TokenPolicy holds the token ceiling per prompt section and the ceiling for
// the whole prompt input.
type TokenPolicy struct {
	CoreSettings    int `mapstructure:"core_settings" yaml:"core_settings"`
	VolumePlan      int `mapstructure:"volume_plan" yaml:"volume_plan"`
	ChapterPlan     int `mapstructure:"chapter_plan" yaml:"chapter_plan"`
	Events          int `mapstructure:"events" yaml:"events"`
	Foreshadows     int `mapstructure:"foreshadows" yaml:"foreshadows"`
	Plotlines       int `mapstructure:"plotlines" yaml:"plotlines"`
	WorldRules      int `mapstructure:"world_rules" yaml:"world_rules"`
	Characters      int `mapstructure:"characters" yaml:"characters"`
	Locations       int `mapstructure:"locations" yaml:"locations"`
	FullChapters    int `mapstructure:"full_chapters" yaml:"full_chapters"`
	Summaries       int `mapstructure:"summaries" yaml:"summaries"`
	UserAdjustments int `mapstructure:"user_adjustments" yaml:"user_adjustments"`
	TotalInput      int `mapstructure:"total_input" yaml:"total_input"`
}

// For returns the ceiling for section s, or 0 for unknown sections.
func (t TokenPolicy) For(s story.Section) int {
	switch s {
	case story.SectionCoreSettings:
		return t.CoreSettings
	case story.SectionVolumePlan:
		return t.VolumePlan
	case story.SectionChapterPlan:
		return t.ChapterPlan
	case story.SectionEvents:
		return t.Events
	case story.SectionForeshadows:
		return t.Foreshadows
	case story.SectionPlotlines:
		return t.Plotlines
	case story.SectionWorldRules:
		return t.WorldRules
	case story.SectionCharacters:
		return t.Characters
	case story.SectionLocations:
		return t.Locations
	case story.SectionFullChapters:
		return t.FullChapters
	case story.SectionSummaries:
		return t.Summaries
	case story.SectionUserAdjustments:
		return t.UserAdjustments
	}
	return 0
}

// sections lists every ceiling-bearing section.
var sections = []story.Section{
	story.SectionCoreSettings,
	story.SectionVolumePlan,
	story.SectionChapterPlan,
	story.SectionEvents,
	story.SectionForeshadows,
	story.SectionPlotlines,
	story.SectionWorldRules,
	story.SectionCharacters,
	story.SectionLocations,
	story.SectionFullChapters,
	story.SectionSummaries,
	story.SectionUserAdjustments,
}

// SectionSum adds up every per-section ceiling.
func (t TokenPolicy) SectionSum() int {
	sum := 0
	for _, s := range sections {
		sum += t.For(s)
	}
	return sum
}

// Policy is the complete two-tier budget.
type Policy struct {
	Counts          CountPolicy `mapstructure:"counts" yaml:"counts"`
	Tokens          TokenPolicy `mapstructure:"tokens" yaml:"tokens"`
	SmartTruncation bool        `mapstructure:"smart_truncation" yaml:"smart_truncation"`
}

// DefaultPolicy returns limits sized for a 16k-token prompt input.
func DefaultPolicy() Policy {
	return Policy{
		Counts: CountPolicy{
			Events:          10,
			Foreshadows:     5,
			Plotlines:       5,
			WorldRules:      8,
			Characters:      6,
			Locations:       4,
			FullChapters:    2,
			SummaryChapters: 5,
		},
		Tokens: TokenPolicy{
			CoreSettings:    2000,
			VolumePlan:      600,
			ChapterPlan:     800,
			Events:          1500,
			Foreshadows:     800,
			Plotlines:       800,
			WorldRules:      800,
			Characters:      1200,
			Locations:       400,
			FullChapters:    8000,
			Summaries:       2000,
			UserAdjustments: 500,
			TotalInput:      16000,
		},
		SmartTruncation: true,
	}
}

// Overcommitted reports whether the section ceilings add up to more than the
// total input ceiling. That is allowed; the assembler enforces the total.
func (p Policy) Overcommitted() bool {
	return p.Tokens.SectionSum() > p.Tokens.TotalInput
}

// Validate reports every invalid limit at once.
func (p Policy) Validate() error {
	var errs []string

	counts := []struct {
		name string
		v    int
	}{
		{"counts.events", p.Counts.Events},
		{"counts.foreshadows", p.Counts.Foreshadows},
		{"counts.plotlines", p.Counts.Plotlines},
		{"counts.world_rules", p.Counts.WorldRules},
		{"counts.characters", p.Counts.Characters},
		{"counts.locations", p.Counts.Locations},
		{"counts.full_chapters", p.Counts.FullChapters},
		{"counts.summary_chapters", p.Counts.SummaryChapters},
	}
	for _, c := range counts {
		if c.v < 0 {
			errs = append(errs, fmt.Sprintf("%s must be non-negative, got %d", c.name, c.v))
		}
	}

	if p.Tokens.TotalInput <= 0 {
		errs = append(errs, fmt.Sprintf("tokens.total_input must be positive, got %d", p.Tokens.TotalInput))
	}
	for _, s := range sections {
		v := p.Tokens.For(s)
		if v < 0 {
			errs = append(errs, fmt.Sprintf("tokens.%s must be non-negative, got %d", s, v))
		}
		if p.Tokens.TotalInput > 0 && v > p.Tokens.TotalInput {
			errs = append(errs, fmt.Sprintf("tokens.%s (%d) exceeds tokens.total_input (%d)", s, v, p.Tokens.TotalInput))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidPolicy, strings.Join(errs, "\n  - "))
	}
	return nil
}
