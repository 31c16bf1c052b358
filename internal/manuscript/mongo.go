package manuscript

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Yates-Labs/storyloom/internal/story"
)

const (
	novelsCollection   = "novels"
	chaptersCollection = "chapters"
)

// MongoConfig holds connection settings.
type MongoConfig struct {
	URI      string        `mapstructure:"uri"`
	Database string        `mapstructure:"database"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// DefaultMongoConfig returns settings for a local MongoDB.
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:      "mongodb://localhost:27017",
		Database: "storyloom",
		Timeout:  10 * time.Second,
	}
}

type novelDocument struct {
	ID           string `bson:"_id"`
	CoreSettings string `bson:"core_settings"`
	VolumePlan   string `bson:"volume_plan,omitempty"`
}

// chapterDocument holds everything known about one chapter number. A
// chapter that is planned but not yet written has an empty Text.
type chapterDocument struct {
	NovelID string `bson:"novel_id"`
	Number  int    `bson:"number"`
	Title   string `bson:"title,omitempty"`
	Text    string `bson:"text,omitempty"`
	Summary string `bson:"summary,omitempty"`
	Plan    string `bson:"plan,omitempty"`
}

// MongoStore reads manuscripts from the novels and chapters collections.
type MongoStore struct {
	client   *mongo.Client
	database *mongo.Database
	timeout  time.Duration
}

// NewMongoStore connects and verifies the connection with a ping.
func NewMongoStore(ctx context.Context, config MongoConfig) (*MongoStore, error) {
	if config.Timeout <= 0 {
		config.Timeout = DefaultMongoConfig().Timeout
	}

	connectCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &MongoStore{
		client:   client,
		database: client.Database(config.Database),
		timeout:  config.Timeout,
	}, nil
}

// EnsureIndexes creates the chapter lookup index.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.database.Collection(chaptersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "novel_id", Value: 1}, {Key: "number", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create chapter index: %w", err)
	}
	return nil
}

func (s *MongoStore) novel(ctx context.Context, novelID string) (novelDocument, error) {
	var doc novelDocument
	err := s.database.Collection(novelsCollection).FindOne(ctx, bson.M{"_id": novelID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return doc, fmt.Errorf("%w: %s", ErrNotFound, novelID)
	}
	if err != nil {
		return doc, fmt.Errorf("failed to load novel %s: %w", novelID, err)
	}
	return doc, nil
}

func (s *MongoStore) CoreSettings(ctx context.Context, novelID string) (string, error) {
	doc, err := s.novel(ctx, novelID)
	if err != nil {
		return "", err
	}
	return doc.CoreSettings, nil
}

func (s *MongoStore) Plan(ctx context.Context, novelID string, chapter int) (story.Plan, error) {
	doc, err := s.novel(ctx, novelID)
	if err != nil {
		return story.Plan{}, err
	}
	plan := story.Plan{Volume: doc.VolumePlan}

	var ch chapterDocument
	err = s.database.Collection(chaptersCollection).
		FindOne(ctx, bson.M{"novel_id": novelID, "number": chapter}).
		Decode(&ch)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
	case err != nil:
		return story.Plan{}, fmt.Errorf("failed to load plan for chapter %d: %w", chapter, err)
	default:
		plan.Chapter = ch.Plan
	}
	return plan, nil
}

// findChapters returns chapter documents in [from, to] that carry field.
func (s *MongoStore) findChapters(ctx context.Context, novelID string, from, to int, field string) ([]chapterDocument, error) {
	if _, err := s.novel(ctx, novelID); err != nil {
		return nil, err
	}
	from, to, ok := clampRange(from, to)
	if !ok {
		return nil, nil
	}

	filter := bson.M{
		"novel_id": novelID,
		"number":   bson.M{"$gte": from, "$lte": to},
		field:      bson.M{"$exists": true, "$ne": ""},
	}
	opts := options.Find().SetSort(bson.D{{Key: "number", Value: 1}})

	cursor, err := s.database.Collection(chaptersCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query chapters: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []chapterDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode chapters: %w", err)
	}
	return docs, nil
}

func (s *MongoStore) Chapters(ctx context.Context, novelID string, from, to int) ([]story.Chapter, error) {
	docs, err := s.findChapters(ctx, novelID, from, to, "text")
	if err != nil {
		return nil, err
	}
	out := make([]story.Chapter, len(docs))
	for i, d := range docs {
		out[i] = story.Chapter{Number: d.Number, Title: d.Title, Text: d.Text}
	}
	return out, nil
}

func (s *MongoStore) Summaries(ctx context.Context, novelID string, from, to int) ([]story.ChapterSummary, error) {
	docs, err := s.findChapters(ctx, novelID, from, to, "summary")
	if err != nil {
		return nil, err
	}
	out := make([]story.ChapterSummary, len(docs))
	for i, d := range docs {
		out[i] = story.ChapterSummary{Number: d.Number, Text: d.Summary}
	}
	return out, nil
}

// Import upserts a whole novel, typically loaded from a fixture.
func (s *MongoStore) Import(ctx context.Context, novelID string, src Store, chapters int) error {
	settings, err := src.CoreSettings(ctx, novelID)
	if err != nil {
		return err
	}

	docs := make(map[int]*chapterDocument)
	doc := func(n int) *chapterDocument {
		if d, ok := docs[n]; ok {
			return d
		}
		d := &chapterDocument{NovelID: novelID, Number: n}
		docs[n] = d
		return d
	}

	var volume string
	for n := 1; n <= chapters+1; n++ {
		plan, err := src.Plan(ctx, novelID, n)
		if err != nil {
			return err
		}
		volume = plan.Volume
		if plan.Chapter != "" {
			doc(n).Plan = plan.Chapter
		}
	}

	written, err := src.Chapters(ctx, novelID, 1, chapters)
	if err != nil {
		return err
	}
	for _, ch := range written {
		d := doc(ch.Number)
		d.Title, d.Text = ch.Title, ch.Text
	}

	summaries, err := src.Summaries(ctx, novelID, 1, chapters)
	if err != nil {
		return err
	}
	for _, sum := range summaries {
		doc(sum.Number).Summary = sum.Text
	}

	upsert := options.Update().SetUpsert(true)
	_, err = s.database.Collection(novelsCollection).UpdateOne(ctx,
		bson.M{"_id": novelID},
		bson.M{"$set": bson.M{"core_settings": settings, "volume_plan": volume}},
		upsert)
	if err != nil {
		return fmt.Errorf("failed to upsert novel %s: %w", novelID, err)
	}

	chaptersColl := s.database.Collection(chaptersCollection)
	for n, d := range docs {
		_, err := chaptersColl.ReplaceOne(ctx,
			bson.M{"novel_id": novelID, "number": n},
			d,
			options.Replace().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("failed to upsert chapter %d: %w", n, err)
		}
	}
	return nil
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}
