package graph

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/Yates-Labs/storyloom/internal/story"
)

// TestDefaultMilvusConfig tests default configuration
func TestDefaultMilvusConfig(t *testing.T) {
	config := DefaultMilvusConfig()

	if config.Address == "" {
		t.Error("Expected non-empty address")
	}
	if config.Dimension != 1536 {
		t.Errorf("Expected dimension 1536, got %d", config.Dimension)
	}
	if config.TopK <= 0 {
		t.Errorf("Expected positive TopK, got %d", config.TopK)
	}
}

func TestQueryExpr(t *testing.T) {
	got := queryExpr(`n"1`, story.EntityEvent, 12)
	want := `novel_id == "n\"1" && entity_type == "event" && chapter < 12`

	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

// TestEntityColumns_RoundTrip encodes a batch the way IndexEntities inserts
// it and decodes it the way a scalar query returns it.
func TestEntityColumns_RoundTrip(t *testing.T) {
	batch := []story.Entity{
		story.MustEntity(story.EntityInput{
			ID:        "ev-1",
			Props:     story.EventProps{Title: "Ambush", Participants: []string{"Lin"}},
			Chapter:   story.IntPtr(4),
			Relevance: 0.75,
			Source:    "chapter-4",
		}),
		story.MustEntity(story.EntityInput{
			ID:        "rule-1",
			Props:     story.WorldRuleProps{Name: "Tides", Rule: "Magic fails at low tide"},
			Relevance: 0.5,
		}),
	}
	vectors := [][]float32{{0.1, 0.2}, {0.3, 0.4}}

	columns, err := entityColumns("n1", batch, vectors, 2)
	if err != nil {
		t.Fatalf("entityColumns failed: %v", err)
	}

	got, err := entitiesFromColumns(columns, nil)
	if err != nil {
		t.Fatalf("entitiesFromColumns failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(got))
	}

	if ch, ok := got[0].Chapter(); !ok || ch != 4 {
		t.Errorf("expected chapter 4, got %d (%v)", ch, ok)
	}
	if got[0].Relevance() != 0.75 || got[0].Source() != "chapter-4" {
		t.Errorf("metadata lost: %v %q", got[0].Relevance(), got[0].Source())
	}
	if _, ok := got[1].Chapter(); ok {
		t.Error("entity without chapter must decode without one")
	}
	if got[1].Text() != batch[1].Text() {
		t.Errorf("properties lost: %q", got[1].Text())
	}
}

func TestEntitiesFromColumns_ScoresReplaceRelevance(t *testing.T) {
	batch := []story.Entity{story.MustEntity(story.EntityInput{
		ID:        "loc-1",
		Props:     story.LocationProps{Name: "Harbor"},
		Relevance: 0.1,
	})}
	columns, err := entityColumns("n1", batch, [][]float32{{1}}, 1)
	if err != nil {
		t.Fatal(err)
	}

	got, err := entitiesFromColumns(columns, []float32{0.5})
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Relevance() != 0.5 {
		t.Errorf("expected similarity 0.5 as relevance, got %v", got[0].Relevance())
	}
}

func TestEntityColumns_DimensionMismatch(t *testing.T) {
	batch := []story.Entity{story.MustEntity(story.EntityInput{
		ID:    "loc-1",
		Props: story.LocationProps{Name: "Harbor"},
	})}

	_, err := entityColumns("n1", batch, [][]float32{{1, 2, 3}}, 2)
	if !errors.Is(err, ErrInvalidDimension) {
		t.Errorf("expected ErrInvalidDimension, got %v", err)
	}
}

// Integration test: index entities and query them back
func TestMilvusGraph_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	address := os.Getenv("MILVUS_ADDRESS")
	apiKey := os.Getenv("OPENAI_API_KEY")
	if address == "" || apiKey == "" {
		t.Skip("MILVUS_ADDRESS and OPENAI_API_KEY are required")
	}

	ctx := context.Background()
	config := DefaultMilvusConfig()
	config.Address = address
	config.CollectionName = "storyloom_test_integration"

	embedder, err := NewOpenAIEmbedder(apiKey, "text-embedding-3-small", config.Dimension)
	if err != nil {
		t.Fatalf("failed to create embedder: %v", err)
	}
	g, err := NewMilvusGraph(ctx, config, embedder, nil)
	if err != nil {
		t.Fatalf("failed to create graph: %v", err)
	}
	defer g.Close()

	entities := []story.Entity{
		story.MustEntity(story.EntityInput{
			ID:        "ev-duel",
			Props:     story.EventProps{Title: "Duel on the bridge", Participants: []string{"Lin"}},
			Chapter:   story.IntPtr(2),
			Relevance: 0.9,
		}),
		story.MustEntity(story.EntityInput{
			ID:        "ev-later",
			Props:     story.EventProps{Title: "Coronation"},
			Chapter:   story.IntPtr(9),
			Relevance: 0.8,
		}),
	}
	if err := g.IndexEntities(ctx, "integration-novel", entities, DefaultIndexOptions()); err != nil {
		t.Fatalf("failed to index: %v", err)
	}

	got, err := g.QueryEntities(ctx, "integration-novel", 5, CategoryEvents, Filters{})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(got) != 1 || got[0].ID() != "ev-duel" {
		t.Errorf("expected only ev-duel before chapter 5, got %v", ids(got))
	}
}
