package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Yates-Labs/storyloom/internal/config"
	"github.com/Yates-Labs/storyloom/internal/fixture"
	"github.com/Yates-Labs/storyloom/internal/graph"
	"github.com/Yates-Labs/storyloom/internal/manuscript"
	"github.com/Yates-Labs/storyloom/internal/story"
)

// EntityIndexer writes a novel's entities to a searchable graph backend.
type EntityIndexer interface {
	IndexEntities(ctx context.Context, novelID string, entities []story.Entity, opts graph.IndexOptions) error
}

// NovelImporter copies a novel's manuscript from another store.
type NovelImporter interface {
	Import(ctx context.Context, novelID string, src manuscript.Store, chapters int) error
}

// IndexReport counts what IndexFixture wrote.
type IndexReport struct {
	Novels   int
	Entities int
	Imported int
}

// IndexFixture loads every novel of fx into the given backends. Either
// backend may be nil.
func IndexFixture(ctx context.Context, fx *fixture.Fixture, indexer EntityIndexer, importer NovelImporter, opts graph.IndexOptions, logger *slog.Logger) (IndexReport, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	var report IndexReport

	for _, novel := range fx.Novels {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Novels++

		if indexer != nil {
			entities := fx.Graph.Entities(novel.ID)
			if err := indexer.IndexEntities(ctx, novel.ID, entities, opts); err != nil {
				return report, fmt.Errorf("failed to index %s: %w", novel.ID, err)
			}
			report.Entities += len(entities)
		}

		if importer != nil {
			// one past the last chapter so the next chapter's plan is kept
			if err := importer.Import(ctx, novel.ID, fx.Store, novel.LastChapter+1); err != nil {
				return report, fmt.Errorf("failed to import %s: %w", novel.ID, err)
			}
			report.Imported++
		}

		logger.Info("indexed novel", "novel", novel.ID, "last_chapter", novel.LastChapter)
	}
	return report, nil
}

// Index loads cfg.Fixture into Milvus and, when withMongo is set, MongoDB.
func Index(ctx context.Context, cfg *config.Config, withMongo bool, opts graph.IndexOptions, logger *slog.Logger) (IndexReport, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	b := &backends{cfg: cfg, logger: logger}
	defer b.close()

	fx, err := b.loadFixture()
	if err != nil {
		return IndexReport{}, err
	}
	indexer, err := b.milvus(ctx)
	if err != nil {
		return IndexReport{}, err
	}

	var importer NovelImporter
	if withMongo {
		s, err := b.mongo(ctx)
		if err != nil {
			return IndexReport{}, err
		}
		if err := s.EnsureIndexes(ctx); err != nil {
			return IndexReport{}, err
		}
		importer = s
	}

	return IndexFixture(ctx, fx, indexer, importer, opts, logger)
}
