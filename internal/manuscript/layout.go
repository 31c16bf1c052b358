package manuscript

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/Yates-Labs/storyloom/internal/story"
)

// Repository layout shared by the git and GitHub backends:
//
//	<novel>/settings.md
//	<novel>/plans/volume.md
//	<novel>/plans/NNNN.md
//	<novel>/chapters/NNNN.md
//	<novel>/summaries/NNNN.md

func SettingsPath(novelID string) string   { return path.Join(novelID, "settings.md") }
func VolumePlanPath(novelID string) string { return path.Join(novelID, "plans", "volume.md") }

func ChapterPlanPath(novelID string, n int) string {
	return path.Join(novelID, "plans", fmt.Sprintf("%04d.md", n))
}

func ChapterPath(novelID string, n int) string {
	return path.Join(novelID, "chapters", fmt.Sprintf("%04d.md", n))
}

func SummaryPath(novelID string, n int) string {
	return path.Join(novelID, "summaries", fmt.Sprintf("%04d.md", n))
}

// fileSource reads one file of the layout. found is false when the file
// does not exist.
type fileSource interface {
	readFile(ctx context.Context, p string) (content string, found bool, err error)
}

// layoutStore implements Store on top of a fileSource.
type layoutStore struct {
	src fileSource
}

func (l layoutStore) CoreSettings(ctx context.Context, novelID string) (string, error) {
	text, found, err := l.src.readFile(ctx, SettingsPath(novelID))
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("%w: %s", ErrNotFound, novelID)
	}
	return strings.TrimSpace(text), nil
}

func (l layoutStore) requireNovel(ctx context.Context, novelID string) error {
	_, err := l.CoreSettings(ctx, novelID)
	return err
}

func (l layoutStore) Plan(ctx context.Context, novelID string, chapter int) (story.Plan, error) {
	if err := l.requireNovel(ctx, novelID); err != nil {
		return story.Plan{}, err
	}

	volume, _, err := l.src.readFile(ctx, VolumePlanPath(novelID))
	if err != nil {
		return story.Plan{}, err
	}
	chapterPlan, _, err := l.src.readFile(ctx, ChapterPlanPath(novelID, chapter))
	if err != nil {
		return story.Plan{}, err
	}

	return story.Plan{
		Volume:  strings.TrimSpace(volume),
		Chapter: strings.TrimSpace(chapterPlan),
	}, nil
}

func (l layoutStore) Chapters(ctx context.Context, novelID string, from, to int) ([]story.Chapter, error) {
	if err := l.requireNovel(ctx, novelID); err != nil {
		return nil, err
	}
	from, to, ok := clampRange(from, to)
	if !ok {
		return nil, nil
	}

	var out []story.Chapter
	for n := from; n <= to; n++ {
		text, found, err := l.src.readFile(ctx, ChapterPath(novelID, n))
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		out = append(out, ParseChapter(n, text))
	}
	return out, nil
}

func (l layoutStore) Summaries(ctx context.Context, novelID string, from, to int) ([]story.ChapterSummary, error) {
	if err := l.requireNovel(ctx, novelID); err != nil {
		return nil, err
	}
	from, to, ok := clampRange(from, to)
	if !ok {
		return nil, nil
	}

	var out []story.ChapterSummary
	for n := from; n <= to; n++ {
		text, found, err := l.src.readFile(ctx, SummaryPath(novelID, n))
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		out = append(out, story.ChapterSummary{Number: n, Text: strings.TrimSpace(text)})
	}
	return out, nil
}

// ParseChapter splits an optional leading "# Title" line from the body.
func ParseChapter(n int, raw string) story.Chapter {
	raw = strings.TrimSpace(raw)
	ch := story.Chapter{Number: n, Text: raw}

	if title, ok := strings.CutPrefix(raw, "# "); ok {
		title, body, _ := strings.Cut(title, "\n")
		ch.Title = strings.TrimSpace(title)
		ch.Text = strings.TrimSpace(body)
	}
	return ch
}
