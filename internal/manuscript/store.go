// Package manuscript reads the committed text of a novel: core settings,
// outlines, full chapters and chapter summaries.
package manuscript

import (
	"context"
	"errors"

	"github.com/Yates-Labs/storyloom/internal/story"
)

var (
	// ErrNotFound is returned when the novel itself does not exist. Missing
	// plans, chapters or summaries of an existing novel are empty results.
	ErrNotFound = errors.New("novel not found")
)

// Store is the read side of a manuscript backend.
type Store interface {
	CoreSettings(ctx context.Context, novelID string) (string, error)
	// Plan returns the volume outline and the outline for chapter.
	Plan(ctx context.Context, novelID string, chapter int) (story.Plan, error)
	// Chapters returns committed chapters in [from, to], ascending.
	Chapters(ctx context.Context, novelID string, from, to int) ([]story.Chapter, error)
	// Summaries returns chapter summaries in [from, to], ascending.
	Summaries(ctx context.Context, novelID string, from, to int) ([]story.ChapterSummary, error)
}

// clampRange normalizes an inclusive chapter range. ok is false when the
// range is empty.
func clampRange(from, to int) (int, int, bool) {
	if from < 1 {
		from = 1
	}
	return from, to, from <= to
}
