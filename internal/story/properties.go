package story

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Properties is the typed payload of an entity. Each entity type has its own
// record shape.
type Properties interface {
	Type() EntityType
	// Text renders the record as a single prompt line.
	Text() string
}

// EventProps describes something that happened in the story.
type EventProps struct {
	Title        string   `json:"title" yaml:"title"`
	Description  string   `json:"description" yaml:"description"`
	Participants []string `json:"participants,omitempty" yaml:"participants"`
	Location     string   `json:"location,omitempty" yaml:"location"`
}

func (EventProps) Type() EntityType { return EntityEvent }

func (p EventProps) Text() string {
	var b strings.Builder
	b.WriteString(p.Title)
	if p.Description != "" {
		b.WriteString(": " + p.Description)
	}
	if len(p.Participants) > 0 {
		b.WriteString(" (with " + strings.Join(p.Participants, ", ") + ")")
	}
	if p.Location != "" {
		b.WriteString(" at " + p.Location)
	}
	return b.String()
}

// CharacterProps describes a character and where their arc currently stands.
type CharacterProps struct {
	Name        string   `json:"name" yaml:"name"`
	Role        string   `json:"role,omitempty" yaml:"role"`
	Description string   `json:"description,omitempty" yaml:"description"`
	ArcStage    string   `json:"arc_stage,omitempty" yaml:"arc_stage"`
	Traits      []string `json:"traits,omitempty" yaml:"traits"`
}

func (CharacterProps) Type() EntityType { return EntityCharacter }

func (p CharacterProps) Text() string {
	var b strings.Builder
	b.WriteString(p.Name)
	if p.Role != "" {
		b.WriteString(" [" + p.Role + "]")
	}
	if p.Description != "" {
		b.WriteString(": " + p.Description)
	}
	if p.ArcStage != "" {
		b.WriteString("; arc: " + p.ArcStage)
	}
	if len(p.Traits) > 0 {
		b.WriteString("; traits: " + strings.Join(p.Traits, ", "))
	}
	return b.String()
}

// LocationProps describes a place.
type LocationProps struct {
	Name        string `json:"name" yaml:"name"`
	Region      string `json:"region,omitempty" yaml:"region"`
	Description string `json:"description,omitempty" yaml:"description"`
}

func (LocationProps) Type() EntityType { return EntityLocation }

func (p LocationProps) Text() string {
	text := p.Name
	if p.Region != "" {
		text += " (" + p.Region + ")"
	}
	if p.Description != "" {
		text += ": " + p.Description
	}
	return text
}

// ForeshadowStatus tracks whether a planted element has paid off.
type ForeshadowStatus string

const (
	ForeshadowOpen     ForeshadowStatus = "open"
	ForeshadowResolved ForeshadowStatus = "resolved"
)

// ForeshadowProps describes a planted narrative element.
type ForeshadowProps struct {
	Title      string           `json:"title" yaml:"title"`
	Content    string           `json:"content" yaml:"content"`
	Status     ForeshadowStatus `json:"status" yaml:"status"`
	PlantedIn  int              `json:"planted_in,omitempty" yaml:"planted_in"`
	PayoffHint string           `json:"payoff_hint,omitempty" yaml:"payoff_hint"`
}

func (ForeshadowProps) Type() EntityType { return EntityForeshadow }

// Open reports whether the foreshadow is still waiting for its payoff.
func (p ForeshadowProps) Open() bool {
	return p.Status == "" || p.Status == ForeshadowOpen
}

func (p ForeshadowProps) Text() string {
	text := p.Title + ": " + p.Content
	if p.PlantedIn > 0 {
		text += fmt.Sprintf(" (planted in chapter %d)", p.PlantedIn)
	}
	if p.PayoffHint != "" {
		text += "; payoff: " + p.PayoffHint
	}
	return text
}

// PlotlineProps describes an ongoing narrative thread.
type PlotlineProps struct {
	Name     string  `json:"name" yaml:"name"`
	Summary  string  `json:"summary" yaml:"summary"`
	Status   string  `json:"status,omitempty" yaml:"status"`
	Progress float64 `json:"progress,omitempty" yaml:"progress"`
}

func (PlotlineProps) Type() EntityType { return EntityPlotline }

func (p PlotlineProps) Text() string {
	text := p.Name + ": " + p.Summary
	if p.Status != "" {
		text += " [" + p.Status + "]"
	}
	if p.Progress > 0 {
		text += fmt.Sprintf(" %.0f%%", p.Progress*100)
	}
	return text
}

// WorldRuleProps describes a setting constraint the text must not violate.
type WorldRuleProps struct {
	Name     string `json:"name" yaml:"name"`
	Rule     string `json:"rule" yaml:"rule"`
	Category string `json:"category,omitempty" yaml:"category"`
}

func (WorldRuleProps) Type() EntityType { return EntityWorldRule }

func (p WorldRuleProps) Text() string {
	if p.Category != "" {
		return fmt.Sprintf("%s (%s): %s", p.Name, p.Category, p.Rule)
	}
	return p.Name + ": " + p.Rule
}

// EncodeProperties serializes a properties record for storage backends.
func EncodeProperties(p Properties) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("properties are nil")
	}
	return json.Marshal(p)
}

// DecodeProperties rebuilds the typed record for t from its JSON form.
func DecodeProperties(t EntityType, data []byte) (Properties, error) {
	var (
		p   Properties
		err error
	)
	switch t {
	case EntityEvent:
		var v EventProps
		err = json.Unmarshal(data, &v)
		p = v
	case EntityCharacter:
		var v CharacterProps
		err = json.Unmarshal(data, &v)
		p = v
	case EntityLocation:
		var v LocationProps
		err = json.Unmarshal(data, &v)
		p = v
	case EntityForeshadow:
		var v ForeshadowProps
		err = json.Unmarshal(data, &v)
		p = v
	case EntityPlotline:
		var v PlotlineProps
		err = json.Unmarshal(data, &v)
		p = v
	case EntityWorldRule:
		var v WorldRuleProps
		err = json.Unmarshal(data, &v)
		p = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, t)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s properties: %w", t, err)
	}
	return p, nil
}
