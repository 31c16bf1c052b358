package graph

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/Yates-Labs/storyloom/internal/story"
)

var (
	ErrInvalidDimension = errors.New("invalid vector dimension")
	ErrInsertFailed     = errors.New("failed to insert entities")
	ErrMalformedRow     = errors.New("malformed entity row")
)

// Field names of the entity collection.
const (
	fieldNovelID    = "novel_id"
	fieldEntityType = "entity_type"
	fieldEntityID   = "entity_id"
	fieldChapter    = "chapter"
	fieldRelevance  = "relevance"
	fieldSource     = "source"
	fieldProperties = "properties"
	fieldEmbedding  = "embedding"
)

var outputFields = []string{
	fieldNovelID, fieldEntityType, fieldEntityID, fieldChapter,
	fieldRelevance, fieldSource, fieldProperties,
}

// MilvusConfig holds connection and collection settings.
type MilvusConfig struct {
	Address        string `mapstructure:"address"`
	CollectionName string `mapstructure:"collection"`
	Dimension      int    `mapstructure:"dimension"`

	// HNSW index parameters
	M              int `mapstructure:"m"`
	EfConstruction int `mapstructure:"ef_construction"`
	SearchEf       int `mapstructure:"search_ef"`

	// TopK bounds similarity searches and scalar queries without a limit.
	TopK int `mapstructure:"top_k"`
}

// DefaultMilvusConfig returns settings for a local Milvus and
// text-embedding-3-small vectors.
func DefaultMilvusConfig() MilvusConfig {
	return MilvusConfig{
		Address:        "localhost:19530",
		CollectionName: "storyloom_entities",
		Dimension:      1536,
		M:              16,
		EfConstruction: 256,
		SearchEf:       64,
		TopK:           50,
	}
}

// MilvusGraph implements Querier over a Milvus collection of embedded
// entities.
type MilvusGraph struct {
	client   client.Client
	config   MilvusConfig
	embedder Embedder
	logger   *slog.Logger
}

// NewMilvusGraph connects to Milvus and ensures the entity collection exists.
// The embedder is only used for focus queries and indexing and may be nil.
func NewMilvusGraph(ctx context.Context, config MilvusConfig, embedder Embedder, logger *slog.Logger) (*MilvusGraph, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDimension, config.Dimension)
	}
	if embedder != nil && embedder.Dimension() != config.Dimension {
		return nil, fmt.Errorf("%w: embedder produces %d, collection expects %d",
			ErrInvalidDimension, embedder.Dimension(), config.Dimension)
	}
	if config.TopK <= 0 {
		config.TopK = DefaultMilvusConfig().TopK
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c, err := client.NewGrpcClient(ctx, config.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: connect %s: %v", ErrUnavailable, config.Address, err)
	}

	g := &MilvusGraph{
		client:   c,
		config:   config,
		embedder: embedder,
		logger:   logger.With("component", "milvus"),
	}
	if err := g.ensureCollection(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return g, nil
}

func (g *MilvusGraph) ensureCollection(ctx context.Context) error {
	has, err := g.client.HasCollection(ctx, g.config.CollectionName)
	if err != nil {
		return fmt.Errorf("%w: check collection: %v", ErrUnavailable, err)
	}
	if has {
		return g.client.LoadCollection(ctx, g.config.CollectionName, false)
	}

	varchar := func(name string, max int) *entity.Field {
		return &entity.Field{
			Name:       name,
			DataType:   entity.FieldTypeVarChar,
			TypeParams: map[string]string{"max_length": strconv.Itoa(max)},
		}
	}

	schema := &entity.Schema{
		CollectionName: g.config.CollectionName,
		AutoID:         true,
		Fields: []*entity.Field{
			{Name: "id", DataType: entity.FieldTypeInt64, PrimaryKey: true, AutoID: true},
			varchar(fieldNovelID, 128),
			varchar(fieldEntityType, 32),
			varchar(fieldEntityID, 128),
			{Name: fieldChapter, DataType: entity.FieldTypeInt64},
			{Name: fieldRelevance, DataType: entity.FieldTypeFloat},
			varchar(fieldSource, 256),
			varchar(fieldProperties, 65535),
			{
				Name:       fieldEmbedding,
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": strconv.Itoa(g.config.Dimension)},
			},
		},
	}

	if err := g.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexHNSW(entity.COSINE, g.config.M, g.config.EfConstruction)
	if err != nil {
		return fmt.Errorf("failed to create index config: %w", err)
	}
	if err := g.client.CreateIndex(ctx, g.config.CollectionName, fieldEmbedding, idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return g.client.LoadCollection(ctx, g.config.CollectionName, false)
}

// QueryEntities implements Querier. With a focus the results are ordered by
// embedding similarity, which also becomes each entity's relevance; otherwise
// by stored relevance.
func (g *MilvusGraph) QueryEntities(ctx context.Context, novelID string, chapter int, category Category, filters Filters) ([]story.Entity, error) {
	t, err := category.EntityType()
	if err != nil {
		return nil, err
	}
	expr := queryExpr(novelID, t, chapter)

	limit := g.config.TopK
	if filters.Limit > 0 {
		limit = filters.Limit
	}

	var entities []story.Entity
	if filters.Focus != "" && g.embedder != nil {
		entities, err = g.search(ctx, expr, filters.Focus, limit)
	} else {
		entities, err = g.scan(ctx, expr)
	}
	if err != nil {
		return nil, err
	}

	out := entities[:0]
	for _, e := range entities {
		if Visible(e, chapter, filters) {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b story.Entity) int {
		return cmp.Compare(b.Relevance(), a.Relevance())
	})
	if len(out) > limit {
		out = out[:limit]
	}

	g.logger.Debug("queried entities", "novel", novelID, "chapter", chapter,
		"category", category, "count", len(out))
	return out, nil
}

func (g *MilvusGraph) scan(ctx context.Context, expr string) ([]story.Entity, error) {
	columns, err := g.client.Query(ctx, g.config.CollectionName, nil, expr, outputFields)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrUnavailable, err)
	}
	return entitiesFromColumns(columns, nil)
}

func (g *MilvusGraph) search(ctx context.Context, expr, focus string, topK int) ([]story.Entity, error) {
	vectors, err := g.embedder.Embed(ctx, []string{focus})
	if err != nil {
		return nil, fmt.Errorf("%w: embed focus: %v", ErrUnavailable, err)
	}

	sp, err := entity.NewIndexHNSWSearchParam(g.config.SearchEf)
	if err != nil {
		return nil, fmt.Errorf("failed to create search params: %w", err)
	}

	results, err := g.client.Search(
		ctx,
		g.config.CollectionName,
		nil,
		expr,
		outputFields,
		[]entity.Vector{entity.FloatVector(vectors[0])},
		fieldEmbedding,
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", ErrUnavailable, err)
	}
	if len(results) == 0 || results[0].ResultCount == 0 {
		return nil, nil
	}
	return entitiesFromColumns(results[0].Fields, results[0].Scores)
}

// IndexOptions controls IndexEntities.
type IndexOptions struct {
	BatchSize int
	// Replace deletes the novel's existing rows first.
	Replace bool
}

// DefaultIndexOptions returns batch settings sized for the embeddings API.
func DefaultIndexOptions() IndexOptions {
	return IndexOptions{BatchSize: 32, Replace: true}
}

// IndexEntities embeds entity text in batches and inserts the rows.
func (g *MilvusGraph) IndexEntities(ctx context.Context, novelID string, entities []story.Entity, opts IndexOptions) error {
	if len(entities) == 0 {
		return nil
	}
	if g.embedder == nil {
		return fmt.Errorf("embedder cannot be nil")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultIndexOptions().BatchSize
	}

	if opts.Replace {
		if err := g.client.Delete(ctx, g.config.CollectionName, "", fieldNovelID+" == "+quote(novelID)); err != nil {
			return fmt.Errorf("failed to delete existing entities: %w", err)
		}
	}

	for start := 0; start < len(entities); start += opts.BatchSize {
		batch := entities[start:min(start+opts.BatchSize, len(entities))]

		texts := make([]string, len(batch))
		for i, e := range batch {
			texts[i] = e.Text()
		}
		vectors, err := g.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed batch starting at %d: %w", start, err)
		}

		columns, err := entityColumns(novelID, batch, vectors, g.config.Dimension)
		if err != nil {
			return err
		}
		if _, err := g.client.Insert(ctx, g.config.CollectionName, "", columns...); err != nil {
			return fmt.Errorf("%w: %v", ErrInsertFailed, err)
		}
	}

	if err := g.client.Flush(ctx, g.config.CollectionName, false); err != nil {
		return fmt.Errorf("failed to flush entities: %w", err)
	}

	g.logger.Info("indexed entities", "novel", novelID, "count", len(entities))
	return nil
}

// Close releases the Milvus connection.
func (g *MilvusGraph) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func quote(s string) string { return strconv.Quote(s) }

// queryExpr selects a novel's entities of one type anchored before chapter.
// Entities without a chapter are stored as -1 and always match.
func queryExpr(novelID string, t story.EntityType, chapter int) string {
	return fmt.Sprintf("%s == %s && %s == %s && %s < %d",
		fieldNovelID, quote(novelID),
		fieldEntityType, quote(string(t)),
		fieldChapter, chapter)
}

func entityColumns(novelID string, batch []story.Entity, vectors [][]float32, dim int) ([]entity.Column, error) {
	if len(vectors) != len(batch) {
		return nil, fmt.Errorf("%w: %d vectors for %d entities", ErrInsertFailed, len(vectors), len(batch))
	}

	n := len(batch)
	novels := make([]string, n)
	types := make([]string, n)
	ids := make([]string, n)
	chapters := make([]int64, n)
	relevance := make([]float32, n)
	sources := make([]string, n)
	props := make([]string, n)

	for i, e := range batch {
		data, err := story.EncodeProperties(e.Properties())
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", e.ID(), err)
		}
		if len(vectors[i]) != dim {
			return nil, fmt.Errorf("%w: entity %s has %d", ErrInvalidDimension, e.ID(), len(vectors[i]))
		}

		novels[i] = novelID
		types[i] = string(e.Type())
		ids[i] = e.ID()
		chapters[i] = -1
		if ch, ok := e.Chapter(); ok {
			chapters[i] = int64(ch)
		}
		relevance[i] = float32(e.Relevance())
		sources[i] = e.Source()
		props[i] = string(data)
	}

	return []entity.Column{
		entity.NewColumnVarChar(fieldNovelID, novels),
		entity.NewColumnVarChar(fieldEntityType, types),
		entity.NewColumnVarChar(fieldEntityID, ids),
		entity.NewColumnInt64(fieldChapter, chapters),
		entity.NewColumnFloat(fieldRelevance, relevance),
		entity.NewColumnVarChar(fieldSource, sources),
		entity.NewColumnVarChar(fieldProperties, props),
		entity.NewColumnFloatVector(fieldEmbedding, dim, vectors),
	}, nil
}

// entitiesFromColumns rebuilds entities from a column-oriented result.
// When scores is non-nil it replaces the stored relevance.
func entitiesFromColumns(columns []entity.Column, scores []float32) ([]story.Entity, error) {
	var (
		types, ids, sources, props []string
		chapters                   []int64
		relevance                  []float32
	)
	for _, col := range columns {
		switch c := col.(type) {
		case *entity.ColumnVarChar:
			switch c.Name() {
			case fieldEntityType:
				types = c.Data()
			case fieldEntityID:
				ids = c.Data()
			case fieldSource:
				sources = c.Data()
			case fieldProperties:
				props = c.Data()
			}
		case *entity.ColumnInt64:
			if c.Name() == fieldChapter {
				chapters = c.Data()
			}
		case *entity.ColumnFloat:
			if c.Name() == fieldRelevance {
				relevance = c.Data()
			}
		}
	}

	n := len(ids)
	if len(types) != n || len(props) != n || len(chapters) != n {
		return nil, fmt.Errorf("%w: column lengths differ", ErrMalformedRow)
	}

	out := make([]story.Entity, 0, n)
	for i := 0; i < n; i++ {
		t := story.EntityType(types[i])
		p, err := story.DecodeProperties(t, []byte(props[i]))
		if err != nil {
			return nil, fmt.Errorf("%w: entity %s: %v", ErrMalformedRow, ids[i], err)
		}

		in := story.EntityInput{ID: ids[i], Props: p}
		if chapters[i] >= 0 {
			in.Chapter = story.IntPtr(int(chapters[i]))
		}
		if i < len(sources) {
			in.Source = sources[i]
		}
		switch {
		case scores != nil && i < len(scores):
			in.Relevance = float64(scores[i])
		case i < len(relevance):
			in.Relevance = float64(relevance[i])
		}

		e, err := story.NewEntity(in)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRow, err)
		}
		out = append(out, e)
	}
	return out, nil
}
