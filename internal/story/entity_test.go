package story

import (
	"errors"
	"strings"
	"testing"
)

func TestNewEntity_TypeFromProperties(t *testing.T) {
	e, err := NewEntity(EntityInput{
		ID:        "ev-1",
		Props:     EventProps{Title: "The duel", Description: "Lin loses her sword"},
		Chapter:   IntPtr(7),
		Relevance: 0.8,
		Source:    "graph",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if e.Type() != EntityEvent {
		t.Errorf("expected type %s, got %s", EntityEvent, e.Type())
	}
	ch, ok := e.Chapter()
	if !ok || ch != 7 {
		t.Errorf("expected chapter 7, got %d (ok=%v)", ch, ok)
	}
	if e.Relevance() != 0.8 {
		t.Errorf("expected relevance 0.8, got %f", e.Relevance())
	}
	if !strings.Contains(e.Text(), "The duel") {
		t.Errorf("text should contain the title, got %q", e.Text())
	}
}

func TestNewEntity_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   EntityInput
	}{
		{name: "missing id", in: EntityInput{Props: EventProps{Title: "x"}}},
		{name: "missing properties", in: EntityInput{ID: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewEntity(tt.in); err == nil {
				t.Error("expected error but got none")
			}
		})
	}
}

func TestEntity_WithoutChapter(t *testing.T) {
	e := MustEntity(EntityInput{ID: "rule-1", Props: WorldRuleProps{Name: "Mana", Rule: "Spells cost blood"}})

	if _, ok := e.Chapter(); ok {
		t.Error("expected entity without chapter")
	}
}

func TestEntity_ExtraIsCopied(t *testing.T) {
	extra := []Field{{Key: "mood", Value: "grim"}}
	e := MustEntity(EntityInput{ID: "ev-2", Props: EventProps{Title: "Storm"}, Extra: extra})

	extra[0].Value = "cheerful"
	got := e.Extra()
	if got[0].Value != "grim" {
		t.Errorf("entity changed after input mutation: %v", got[0].Value)
	}

	got[0].Value = "calm"
	if e.Extra()[0].Value != "grim" {
		t.Error("entity changed after accessor result mutation")
	}
	if !strings.Contains(e.Text(), "mood: grim") {
		t.Errorf("extension fields missing from text: %q", e.Text())
	}
}

func TestDecodeProperties_TaggedUnion(t *testing.T) {
	data, err := EncodeProperties(ForeshadowProps{Title: "Locket", Content: "A locket with no picture", Status: ForeshadowOpen, PlantedIn: 3})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	p, err := DecodeProperties(EntityForeshadow, data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	fs, ok := p.(ForeshadowProps)
	if !ok {
		t.Fatalf("expected ForeshadowProps, got %T", p)
	}
	if !fs.Open() || fs.PlantedIn != 3 {
		t.Errorf("unexpected decoded record: %+v", fs)
	}

	if _, err := DecodeProperties(EntityType("spell"), data); !errors.Is(err, ErrUnknownEntityType) {
		t.Errorf("expected ErrUnknownEntityType, got %v", err)
	}
}
