// Package story defines the story-state model shared by retrieval, budgeting
// and generation: graph entities, manuscript views, the assembled writing
// context and the agent reasoning trace.
package story

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownEntityType = errors.New("unknown entity type")
	ErrPropertyMismatch  = errors.New("properties do not match entity type")
)

// EntityType identifies the kind of story knowledge an entity carries.
type EntityType string

const (
	EntityEvent      EntityType = "event"
	EntityCharacter  EntityType = "character"
	EntityLocation   EntityType = "location"
	EntityForeshadow EntityType = "foreshadow"
	EntityPlotline   EntityType = "plotline"
	EntityWorldRule  EntityType = "world_rule"
)

// EntityTypes lists every known entity type in a stable order.
var EntityTypes = []EntityType{
	EntityEvent,
	EntityCharacter,
	EntityLocation,
	EntityForeshadow,
	EntityPlotline,
	EntityWorldRule,
}

// Valid reports whether t is one of the known entity types.
func (t EntityType) Valid() bool {
	for _, known := range EntityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Field is a schema-less extension property. Fields keep their insertion order.
type Field struct {
	Key   string `json:"key" yaml:"key"`
	Value any    `json:"value" yaml:"value"`
}

// Entity is one unit of retrieved story knowledge. Entities are values:
// every accessor returns a copy and nothing mutates an entity after
// NewEntity returns.
type Entity struct {
	kind       EntityType
	id         string
	props      Properties
	extra      []Field
	chapter    int
	hasChapter bool
	relevance  float64
	source     string
}

// EntityInput carries the constructor arguments for NewEntity.
type EntityInput struct {
	ID        string
	Props     Properties
	Extra     []Field
	Chapter   *int
	Relevance float64
	Source    string
}

// NewEntity validates in and returns an immutable entity. The entity type is
// taken from the properties record.
func NewEntity(in EntityInput) (Entity, error) {
	if in.ID == "" {
		return Entity{}, fmt.Errorf("entity id is required")
	}
	if in.Props == nil {
		return Entity{}, fmt.Errorf("entity %s: properties are required", in.ID)
	}
	kind := in.Props.Type()
	if !kind.Valid() {
		return Entity{}, fmt.Errorf("%w: %q", ErrUnknownEntityType, kind)
	}

	e := Entity{
		kind:      kind,
		id:        in.ID,
		props:     in.Props,
		relevance: in.Relevance,
		source:    in.Source,
	}
	if in.Chapter != nil {
		e.chapter = *in.Chapter
		e.hasChapter = true
	}
	if len(in.Extra) > 0 {
		e.extra = make([]Field, len(in.Extra))
		copy(e.extra, in.Extra)
	}
	return e, nil
}

// MustEntity is NewEntity for fixtures and tests; it panics on invalid input.
func MustEntity(in EntityInput) Entity {
	e, err := NewEntity(in)
	if err != nil {
		panic(err)
	}
	return e
}

func (e Entity) Type() EntityType       { return e.kind }
func (e Entity) ID() string             { return e.id }
func (e Entity) Relevance() float64     { return e.relevance }
func (e Entity) Source() string         { return e.source }
func (e Entity) Properties() Properties { return e.props }

// Chapter returns the chapter the entity is anchored to, if any.
func (e Entity) Chapter() (int, bool) {
	return e.chapter, e.hasChapter
}

// Extra returns a copy of the extension fields.
func (e Entity) Extra() []Field {
	if len(e.extra) == 0 {
		return nil
	}
	out := make([]Field, len(e.extra))
	copy(out, e.extra)
	return out
}

// Text renders the entity for inclusion in a prompt.
func (e Entity) Text() string {
	if e.props == nil {
		return ""
	}
	text := e.props.Text()
	for _, f := range e.extra {
		text += fmt.Sprintf("; %s: %v", f.Key, f.Value)
	}
	return text
}

// IntPtr is a small helper for optional chapter numbers.
func IntPtr(n int) *int { return &n }
