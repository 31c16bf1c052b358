// Package fixture loads YAML novel descriptions into the in-memory manuscript
// store and graph. Fixtures back the offline CLI mode, seed Milvus and Mongo,
// and drive tests.
package fixture

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Yates-Labs/storyloom/internal/graph"
	"github.com/Yates-Labs/storyloom/internal/manuscript"
	"github.com/Yates-Labs/storyloom/internal/story"
)

var ErrInvalidFixture = errors.New("invalid fixture")

type fileFormat struct {
	Novels []novelFormat `yaml:"novels"`
}

type novelFormat struct {
	ID           string                 `yaml:"id"`
	Settings     string                 `yaml:"settings"`
	VolumePlan   string                 `yaml:"volume_plan"`
	ChapterPlans map[int]string         `yaml:"chapter_plans"`
	Chapters     []story.Chapter        `yaml:"chapters"`
	Summaries    []story.ChapterSummary `yaml:"summaries"`
	Entities     []entityFormat         `yaml:"entities"`
}

type entityFormat struct {
	ID         string        `yaml:"id"`
	Type       string        `yaml:"type"`
	Chapter    *int          `yaml:"chapter"`
	Relevance  float64       `yaml:"relevance"`
	Source     string        `yaml:"source"`
	Properties yaml.Node     `yaml:"properties"`
	Extra      []story.Field `yaml:"extra"`
}

// Novel summarizes one loaded novel.
type Novel struct {
	ID string
	// LastChapter is the highest committed chapter number.
	LastChapter int
}

// Fixture is the loaded content.
type Fixture struct {
	Novels []Novel
	Store  *manuscript.MemoryStore
	Graph  *graph.MemoryGraph
}

// Load reads and parses the fixture at path.
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse builds a fixture from YAML.
func Parse(data []byte) (*Fixture, error) {
	var file fileFormat
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFixture, err)
	}

	f := &Fixture{
		Store: manuscript.NewMemoryStore(),
		Graph: graph.NewMemoryGraph(),
	}

	seen := make(map[string]bool)
	for _, n := range file.Novels {
		if n.ID == "" {
			return nil, fmt.Errorf("%w: novel without id", ErrInvalidFixture)
		}
		if seen[n.ID] {
			return nil, fmt.Errorf("%w: duplicate novel %s", ErrInvalidFixture, n.ID)
		}
		seen[n.ID] = true

		novel, err := f.addNovel(n)
		if err != nil {
			return nil, fmt.Errorf("novel %s: %w", n.ID, err)
		}
		f.Novels = append(f.Novels, novel)
	}
	return f, nil
}

// Novel looks up a loaded novel by id.
func (f *Fixture) Novel(id string) (Novel, bool) {
	for _, n := range f.Novels {
		if n.ID == id {
			return n, true
		}
	}
	return Novel{}, false
}

func (f *Fixture) addNovel(n novelFormat) (Novel, error) {
	out := Novel{ID: n.ID}
	s := f.Store

	s.AddNovel(n.ID, n.Settings)
	if err := s.SetVolumePlan(n.ID, n.VolumePlan); err != nil {
		return out, err
	}
	for ch, plan := range n.ChapterPlans {
		if err := s.SetChapterPlan(n.ID, ch, plan); err != nil {
			return out, err
		}
	}
	for _, ch := range n.Chapters {
		if ch.Number < 1 {
			return out, fmt.Errorf("%w: chapter number %d", ErrInvalidFixture, ch.Number)
		}
		if err := s.PutChapter(n.ID, ch); err != nil {
			return out, err
		}
		out.LastChapter = max(out.LastChapter, ch.Number)
	}
	for _, sum := range n.Summaries {
		if err := s.PutSummary(n.ID, sum); err != nil {
			return out, err
		}
	}

	entities := make([]story.Entity, 0, len(n.Entities))
	for _, ef := range n.Entities {
		e, err := ef.entity()
		if err != nil {
			return out, err
		}
		entities = append(entities, e)
	}
	f.Graph.Add(n.ID, entities...)
	return out, nil
}

func (ef entityFormat) entity() (story.Entity, error) {
	t := story.EntityType(ef.Type)
	if !t.Valid() {
		return story.Entity{}, fmt.Errorf("entity %s: %w: %q", ef.ID, story.ErrUnknownEntityType, ef.Type)
	}

	props, err := decodeProperties(t, &ef.Properties)
	if err != nil {
		return story.Entity{}, fmt.Errorf("entity %s: %w", ef.ID, err)
	}

	return story.NewEntity(story.EntityInput{
		ID:        ef.ID,
		Props:     props,
		Extra:     ef.Extra,
		Chapter:   ef.Chapter,
		Relevance: ef.Relevance,
		Source:    ef.Source,
	})
}

func decodeProperties(t story.EntityType, node *yaml.Node) (story.Properties, error) {
	decode := func(v any) error {
		if node.Kind == 0 {
			return nil
		}
		if err := node.Decode(v); err != nil {
			return fmt.Errorf("%w: properties: %v", ErrInvalidFixture, err)
		}
		return nil
	}

	switch t {
	case story.EntityEvent:
		var p story.EventProps
		err := decode(&p)
		return p, err
	case story.EntityCharacter:
		var p story.CharacterProps
		err := decode(&p)
		return p, err
	case story.EntityLocation:
		var p story.LocationProps
		err := decode(&p)
		return p, err
	case story.EntityForeshadow:
		var p story.ForeshadowProps
		err := decode(&p)
		return p, err
	case story.EntityPlotline:
		var p story.PlotlineProps
		err := decode(&p)
		return p, err
	case story.EntityWorldRule:
		var p story.WorldRuleProps
		err := decode(&p)
		return p, err
	}
	return nil, fmt.Errorf("%w: %q", story.ErrUnknownEntityType, t)
}
