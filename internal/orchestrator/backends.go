package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Yates-Labs/storyloom/internal/config"
	"github.com/Yates-Labs/storyloom/internal/fixture"
	"github.com/Yates-Labs/storyloom/internal/graph"
	"github.com/Yates-Labs/storyloom/internal/manuscript"
)

// backends lazily loads the fixture at most once, since both the graph and
// the manuscript fixture backends read from it.
type backends struct {
	cfg     *config.Config
	logger  *slog.Logger
	fixture *fixture.Fixture
	closers []func() error
}

func (b *backends) loadFixture() (*fixture.Fixture, error) {
	if b.fixture != nil {
		return b.fixture, nil
	}
	fx, err := fixture.Load(b.cfg.Fixture)
	if err != nil {
		return nil, err
	}
	b.fixture = fx
	return fx, nil
}

func (b *backends) graph(ctx context.Context) (graph.Querier, error) {
	switch strings.ToLower(b.cfg.Graph.Backend) {
	case config.BackendFixture:
		fx, err := b.loadFixture()
		if err != nil {
			return nil, err
		}
		return fx.Graph, nil
	case config.BackendMilvus:
		g, err := b.milvus(ctx)
		if err != nil {
			return nil, err
		}
		return g, nil
	}
	return nil, fmt.Errorf("%w: graph backend %q", config.ErrInvalidConfig, b.cfg.Graph.Backend)
}

// milvus connects to the configured collection with an OpenAI embedder for
// focus searches.
func (b *backends) milvus(ctx context.Context) (*graph.MilvusGraph, error) {
	embedder, err := graph.NewOpenAIEmbedder(os.Getenv("OPENAI_API_KEY"), b.cfg.Graph.EmbeddingModel, b.cfg.Milvus.Dimension)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	g, err := graph.NewMilvusGraph(ctx, b.cfg.Milvus, embedder, b.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}
	b.closers = append(b.closers, g.Close)
	return g, nil
}

func (b *backends) store(ctx context.Context) (manuscript.Store, error) {
	switch strings.ToLower(b.cfg.Manuscript.Backend) {
	case config.BackendFixture:
		fx, err := b.loadFixture()
		if err != nil {
			return nil, err
		}
		return fx.Store, nil
	case config.BackendMongo:
		s, err := b.mongo(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendGit:
		s, err := manuscript.OpenGitStore(b.cfg.Git.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open manuscript repository: %w", err)
		}
		return s, nil
	case config.BackendGitHub:
		gh := b.cfg.GitHub
		if gh.Token == "" {
			gh.Token = os.Getenv("GITHUB_TOKEN")
		}
		return manuscript.NewGitHubStore(manuscript.NewGitHubClient(gh.Token), gh)
	}
	return nil, fmt.Errorf("%w: manuscript backend %q", config.ErrInvalidConfig, b.cfg.Manuscript.Backend)
}

func (b *backends) mongo(ctx context.Context) (*manuscript.MongoStore, error) {
	s, err := manuscript.NewMongoStore(ctx, b.cfg.Mongo)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	b.closers = append(b.closers, s.Close)
	return s, nil
}

// close releases every connection opened so far, newest first.
func (b *backends) close() error {
	var firstErr error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	b.closers = nil
	return firstErr
}
