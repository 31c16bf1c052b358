// Package config loads storyloom settings from .storyloom.yaml, STORYLOOM_*
// environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Yates-Labs/storyloom/internal/budget"
	"github.com/Yates-Labs/storyloom/internal/cache"
	"github.com/Yates-Labs/storyloom/internal/graph"
	"github.com/Yates-Labs/storyloom/internal/manuscript"
	"github.com/Yates-Labs/storyloom/internal/narrative"
)

var ErrInvalidConfig = errors.New("invalid configuration")

const (
	FileName  = ".storyloom"
	EnvPrefix = "STORYLOOM"
)

// Backend names.
const (
	BackendFixture = "fixture"
	BackendMilvus  = "milvus"
	BackendMongo   = "mongo"
	BackendGit     = "git"
	BackendGitHub  = "github"
)

var (
	graphBackends      = []string{BackendFixture, BackendMilvus}
	manuscriptBackends = []string{BackendFixture, BackendMongo, BackendGit, BackendGitHub}
	llmProviders       = []string{narrative.ProviderOpenAI, narrative.ProviderGemini, narrative.ProviderMock}
	logLevels          = []string{"debug", "info", "warn", "error"}
	logFormats         = []string{"text", "json"}
)

type CacheConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type GraphConfig struct {
	Backend        string `mapstructure:"backend"`
	EmbeddingModel string `mapstructure:"embedding_model"`
}

type ManuscriptConfig struct {
	Backend string `mapstructure:"backend"`
}

type GitConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type AgentConfig struct {
	MaxSteps int `mapstructure:"max_steps"`
	// MinWords is the shortest draft the agent accepts.
	MinWords int `mapstructure:"min_words"`
}

// Config is the full application configuration.
type Config struct {
	Budget     budget.Policy           `mapstructure:"budget"`
	Cache      CacheConfig             `mapstructure:"cache"`
	Graph      GraphConfig             `mapstructure:"graph"`
	Milvus     graph.MilvusConfig      `mapstructure:"milvus"`
	Manuscript ManuscriptConfig        `mapstructure:"manuscript"`
	Mongo      manuscript.MongoConfig  `mapstructure:"mongo"`
	Git        GitConfig               `mapstructure:"git"`
	GitHub     manuscript.GitHubConfig `mapstructure:"github"`
	LLM        narrative.LLMConfig     `mapstructure:"llm"`
	Log        LogConfig               `mapstructure:"log"`
	Agent      AgentConfig             `mapstructure:"agent"`

	// Fixture is a YAML novel fixture backing the fixture backends.
	Fixture string `mapstructure:"fixture"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Budget: budget.DefaultPolicy(),
		Cache: CacheConfig{
			TTL:           cache.DefaultTTL,
			SweepInterval: 2 * cache.DefaultTTL,
		},
		Graph: GraphConfig{
			Backend:        BackendFixture,
			EmbeddingModel: "text-embedding-3-small",
		},
		Milvus:     graph.DefaultMilvusConfig(),
		Manuscript: ManuscriptConfig{Backend: BackendFixture},
		Mongo:      manuscript.DefaultMongoConfig(),
		Git:        GitConfig{Path: "."},
		LLM:        narrative.DefaultLLMConfig(),
		Log:        LogConfig{Level: "info", Format: "text"},
		Agent:      AgentConfig{MaxSteps: 4, MinWords: 200},
		Fixture:    "fixtures/tides.yaml",
	}
}

// NewViper returns a viper instance seeded with defaults, the config file
// and the environment. An explicit path must exist; otherwise a missing
// .storyloom.yaml in the working or home directory is not an error.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "storyloom"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	return v, nil
}

// Decode unmarshals v and validates the result.
func Decode(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load is NewViper followed by Decode.
func Load(path string) (*Config, error) {
	v, err := NewViper(path)
	if err != nil {
		return nil, err
	}
	return Decode(v)
}

// setDefaults registers every key so that environment variables can
// override keys absent from the config file.
func setDefaults(v *viper.Viper) {
	d := Default()
	p := d.Budget

	v.SetDefault("budget.counts.events", p.Counts.Events)
	v.SetDefault("budget.counts.foreshadows", p.Counts.Foreshadows)
	v.SetDefault("budget.counts.plotlines", p.Counts.Plotlines)
	v.SetDefault("budget.counts.world_rules", p.Counts.WorldRules)
	v.SetDefault("budget.counts.characters", p.Counts.Characters)
	v.SetDefault("budget.counts.locations", p.Counts.Locations)
	v.SetDefault("budget.counts.full_chapters", p.Counts.FullChapters)
	v.SetDefault("budget.counts.summary_chapters", p.Counts.SummaryChapters)

	v.SetDefault("budget.tokens.core_settings", p.Tokens.CoreSettings)
	v.SetDefault("budget.tokens.volume_plan", p.Tokens.VolumePlan)
	v.SetDefault("budget.tokens.chapter_plan", p.Tokens.ChapterPlan)
	v.SetDefault("budget.tokens.events", p.Tokens.Events)
	v.SetDefault("budget.tokens.foreshadows", p.Tokens.Foreshadows)
	v.SetDefault("budget.tokens.plotlines", p.Tokens.Plotlines)
	v.SetDefault("budget.tokens.world_rules", p.Tokens.WorldRules)
	v.SetDefault("budget.tokens.characters", p.Tokens.Characters)
	v.SetDefault("budget.tokens.locations", p.Tokens.Locations)
	v.SetDefault("budget.tokens.full_chapters", p.Tokens.FullChapters)
	v.SetDefault("budget.tokens.summaries", p.Tokens.Summaries)
	v.SetDefault("budget.tokens.user_adjustments", p.Tokens.UserAdjustments)
	v.SetDefault("budget.tokens.total_input", p.Tokens.TotalInput)
	v.SetDefault("budget.smart_truncation", p.SmartTruncation)

	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.sweep_interval", d.Cache.SweepInterval)

	v.SetDefault("graph.backend", d.Graph.Backend)
	v.SetDefault("graph.embedding_model", d.Graph.EmbeddingModel)

	v.SetDefault("milvus.address", d.Milvus.Address)
	v.SetDefault("milvus.collection", d.Milvus.CollectionName)
	v.SetDefault("milvus.dimension", d.Milvus.Dimension)
	v.SetDefault("milvus.m", d.Milvus.M)
	v.SetDefault("milvus.ef_construction", d.Milvus.EfConstruction)
	v.SetDefault("milvus.search_ef", d.Milvus.SearchEf)
	v.SetDefault("milvus.top_k", d.Milvus.TopK)

	v.SetDefault("manuscript.backend", d.Manuscript.Backend)
	v.SetDefault("mongo.uri", d.Mongo.URI)
	v.SetDefault("mongo.database", d.Mongo.Database)
	v.SetDefault("mongo.timeout", d.Mongo.Timeout)
	v.SetDefault("git.path", d.Git.Path)
	v.SetDefault("github.owner", "")
	v.SetDefault("github.repo", "")
	v.SetDefault("github.ref", "")
	v.SetDefault("github.token", "")

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.api_key", "")

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("agent.max_steps", d.Agent.MaxSteps)
	v.SetDefault("agent.min_words", d.Agent.MinWords)
	v.SetDefault("fixture", d.Fixture)
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []string
	oneOf := func(key, value string, allowed []string) {
		if !slices.Contains(allowed, strings.ToLower(value)) {
			errs = append(errs, fmt.Sprintf("%s must be one of %s, got %q", key, strings.Join(allowed, "|"), value))
		}
	}

	if err := c.Budget.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	if c.Cache.TTL <= 0 {
		errs = append(errs, fmt.Sprintf("cache.ttl must be positive, got %s", c.Cache.TTL))
	}
	if c.Cache.SweepInterval < 0 {
		errs = append(errs, fmt.Sprintf("cache.sweep_interval must not be negative, got %s", c.Cache.SweepInterval))
	}

	oneOf("graph.backend", c.Graph.Backend, graphBackends)
	oneOf("manuscript.backend", c.Manuscript.Backend, manuscriptBackends)
	oneOf("llm.provider", c.LLM.Provider, llmProviders)
	oneOf("log.level", c.Log.Level, logLevels)
	oneOf("log.format", c.Log.Format, logFormats)

	if c.usesFixture() && c.Fixture == "" {
		errs = append(errs, "fixture is required by the fixture backend")
	}
	if strings.EqualFold(c.Graph.Backend, BackendMilvus) {
		if c.Milvus.Address == "" {
			errs = append(errs, "milvus.address is required by the milvus backend")
		}
		if c.Milvus.Dimension <= 0 {
			errs = append(errs, fmt.Sprintf("milvus.dimension must be positive, got %d", c.Milvus.Dimension))
		}
	}
	switch strings.ToLower(c.Manuscript.Backend) {
	case BackendMongo:
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			errs = append(errs, "mongo.uri and mongo.database are required by the mongo backend")
		}
	case BackendGit:
		if c.Git.Path == "" {
			errs = append(errs, "git.path is required by the git backend")
		}
	case BackendGitHub:
		if c.GitHub.Owner == "" || c.GitHub.Repo == "" {
			errs = append(errs, "github.owner and github.repo are required by the github backend")
		}
	}

	if c.LLM.Model == "" && !strings.EqualFold(c.LLM.Provider, narrative.ProviderMock) {
		errs = append(errs, "llm.model is required")
	}
	if c.Agent.MaxSteps <= 0 {
		errs = append(errs, fmt.Sprintf("agent.max_steps must be positive, got %d", c.Agent.MaxSteps))
	}
	if c.Agent.MinWords < 0 {
		errs = append(errs, fmt.Sprintf("agent.min_words must not be negative, got %d", c.Agent.MinWords))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c Config) usesFixture() bool {
	return strings.EqualFold(c.Graph.Backend, BackendFixture) ||
		strings.EqualFold(c.Manuscript.Backend, BackendFixture)
}

// CacheOptions converts the cache section for cache.New.
func (c Config) CacheOptions() cache.Options {
	return cache.Options{TTL: c.Cache.TTL, SweepInterval: c.Cache.SweepInterval}
}
