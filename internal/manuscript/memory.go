package manuscript

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Yates-Labs/storyloom/internal/story"
)

type memoryNovel struct {
	settings     string
	volumePlan   string
	chapterPlans map[int]string
	chapters     map[int]story.Chapter
	summaries    map[int]story.ChapterSummary
}

// MemoryStore keeps manuscripts in process memory. It counts reads so tests
// can observe caching.
type MemoryStore struct {
	mu     sync.RWMutex
	novels map[string]*memoryNovel
	reads  atomic.Int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{novels: make(map[string]*memoryNovel)}
}

// AddNovel creates the novel or replaces its settings.
func (s *MemoryStore) AddNovel(novelID, settings string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.novels[novelID]; ok {
		n.settings = settings
		return
	}
	s.novels[novelID] = &memoryNovel{
		settings:     settings,
		chapterPlans: make(map[int]string),
		chapters:     make(map[int]story.Chapter),
		summaries:    make(map[int]story.ChapterSummary),
	}
}

func (s *MemoryStore) novel(novelID string) (*memoryNovel, error) {
	n, ok := s.novels[novelID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, novelID)
	}
	return n, nil
}

// SetVolumePlan stores the volume outline.
func (s *MemoryStore) SetVolumePlan(novelID, plan string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.novel(novelID)
	if err != nil {
		return err
	}
	n.volumePlan = plan
	return nil
}

// SetChapterPlan stores the outline for one chapter.
func (s *MemoryStore) SetChapterPlan(novelID string, chapter int, plan string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.novel(novelID)
	if err != nil {
		return err
	}
	n.chapterPlans[chapter] = plan
	return nil
}

// PutChapter stores or replaces a committed chapter.
func (s *MemoryStore) PutChapter(novelID string, ch story.Chapter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.novel(novelID)
	if err != nil {
		return err
	}
	n.chapters[ch.Number] = ch
	return nil
}

// PutSummary stores or replaces a chapter summary.
func (s *MemoryStore) PutSummary(novelID string, sum story.ChapterSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.novel(novelID)
	if err != nil {
		return err
	}
	n.summaries[sum.Number] = sum
	return nil
}

// Reads returns how many Store calls were served.
func (s *MemoryStore) Reads() int64 { return s.reads.Load() }

func (s *MemoryStore) CoreSettings(ctx context.Context, novelID string) (string, error) {
	s.reads.Add(1)
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.novel(novelID)
	if err != nil {
		return "", err
	}
	return n.settings, nil
}

func (s *MemoryStore) Plan(ctx context.Context, novelID string, chapter int) (story.Plan, error) {
	s.reads.Add(1)
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.novel(novelID)
	if err != nil {
		return story.Plan{}, err
	}
	return story.Plan{Volume: n.volumePlan, Chapter: n.chapterPlans[chapter]}, nil
}

func (s *MemoryStore) Chapters(ctx context.Context, novelID string, from, to int) ([]story.Chapter, error) {
	s.reads.Add(1)
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.novel(novelID)
	if err != nil {
		return nil, err
	}
	from, to, ok := clampRange(from, to)
	if !ok {
		return nil, nil
	}

	var out []story.Chapter
	for i := from; i <= to; i++ {
		if ch, ok := n.chapters[i]; ok {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (s *MemoryStore) Summaries(ctx context.Context, novelID string, from, to int) ([]story.ChapterSummary, error) {
	s.reads.Add(1)
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.novel(novelID)
	if err != nil {
		return nil, err
	}
	from, to, ok := clampRange(from, to)
	if !ok {
		return nil, nil
	}

	var out []story.ChapterSummary
	for i := from; i <= to; i++ {
		if sum, ok := n.summaries[i]; ok {
			out = append(out, sum)
		}
	}
	return out, nil
}
