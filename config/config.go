package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the synthesis pipeline
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Index     IndexConfig     `mapstructure:"index"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Partition PartitionConfig `mapstructure:"partition"`
	Generate  GenerateConfig  `mapstructure:"generate"`
	Review    ReviewConfig    `mapstructure:"review"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug        bool          `mapstructure:"debug"`
	LogLevel     string        `mapstructure:"log_level"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// LLMConfig describes the external text-generation service
type LLMConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// IndexConfig controls term-index construction and persistence.
type IndexConfig struct {
	Path            string              `mapstructure:"path"`
	MinDocFrequency int                 `mapstructure:"min_doc_frequency"`
	Acronyms        map[string]string   `mapstructure:"acronyms"` // acronym -> expansion
	Keywords        []string            `mapstructure:"keywords"`
	SynonymGroups   map[string][]string `mapstructure:"synonym_groups"` // canonical -> variants
}

func (c IndexConfig) Validate() error {
	if c.MinDocFrequency < 1 {
		return fmt.Errorf("index.min_doc_frequency must be >= 1")
	}
	return nil
}

// RetrievalConfig controls query planning.
type RetrievalConfig struct {
	GenericTerms     []string `mapstructure:"generic_terms"`
	FulltextFallback bool     `mapstructure:"fulltext_fallback"`
	FallbackTopK     int      `mapstructure:"fallback_top_k"`
	EventKeywords    []string `mapstructure:"event_keywords"`
	MarketKeywords   []string `mapstructure:"market_keywords"`
	IdeologyKeywords []string `mapstructure:"ideology_keywords"`
}

// EraBucket is a predefined time period for temporal partitioning.
type EraBucket struct {
	Label string `mapstructure:"label"`
	From  int    `mapstructure:"from"`
	To    int    `mapstructure:"to"`
}

// RegionPattern matches chunk text against a geographic region.
// Patterns are tried in order; the first match wins.
type RegionPattern struct {
	Label   string `mapstructure:"label"`
	Pattern string `mapstructure:"pattern"`
}

// PartitionConfig controls how oversized retrievals are split.
type PartitionConfig struct {
	MaxWordsPerPartition int             `mapstructure:"max_words_per_partition"`
	PromptOverheadWords  int             `mapstructure:"prompt_overhead_words"`
	Eras                 []EraBucket     `mapstructure:"eras"`
	Regions              []RegionPattern `mapstructure:"regions"`
}

func (c PartitionConfig) Validate() error {
	if c.MaxWordsPerPartition <= c.PromptOverheadWords {
		return fmt.Errorf("partition.max_words_per_partition must exceed prompt_overhead_words")
	}
	for i, e := range c.Eras {
		if e.From > e.To {
			return fmt.Errorf("partition.eras[%d]: from %d after to %d", i, e.From, e.To)
		}
	}
	return nil
}

// Budget returns the usable word budget per partition.
func (c PartitionConfig) Budget() int {
	return c.MaxWordsPerPartition - c.PromptOverheadWords
}

// GenerateConfig controls the generation orchestrator.
type GenerateConfig struct {
	MaxConcurrent        int           `mapstructure:"max_concurrent"`
	MaxRetries           int           `mapstructure:"max_retries"`
	RetryBaseDelay       time.Duration `mapstructure:"retry_base_delay"`
	TokensPerMinute      int           `mapstructure:"tokens_per_minute"`
	TokenWordMultiplier  float64       `mapstructure:"token_word_multiplier"`
	ExpectedOutputTokens int           `mapstructure:"expected_output_tokens"`
	TruncationRatio      float64       `mapstructure:"truncation_ratio"`
}

func (c GenerateConfig) Validate() error {
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("generate.max_concurrent must be > 0")
	}
	if c.TokensPerMinute <= 0 {
		return fmt.Errorf("generate.tokens_per_minute must be > 0")
	}
	if c.TokenWordMultiplier <= 0 {
		return fmt.Errorf("generate.token_word_multiplier must be > 0")
	}
	return nil
}

// ReviewConfig controls answer validation and repair.
type ReviewConfig struct {
	MaxIterations         int                 `mapstructure:"max_iterations"`
	MaxParagraphSentences int                 `mapstructure:"max_paragraph_sentences"`
	ChronologyJumpYears   int                 `mapstructure:"chronology_jump_years"`
	CoverageGapYears      int                 `mapstructure:"coverage_gap_years"`
	MustMention           map[string][]string `mapstructure:"must_mention"` // signal term -> synonyms
}

func (c ReviewConfig) Validate() error {
	if c.MaxIterations < 0 {
		return fmt.Errorf("review.max_iterations cannot be negative")
	}
	if c.MaxParagraphSentences <= 0 {
		return fmt.Errorf("review.max_paragraph_sentences must be > 0")
	}
	return nil
}

// StorageConfig contains chunk store settings
type StorageConfig struct {
	Backend string      `mapstructure:"backend"` // redis or memory
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

func (s StorageConfig) Validate() error {
	switch s.Backend {
	case "memory":
		return nil
	case "redis":
		return s.Redis.Validate()
	default:
		return fmt.Errorf("storage.backend must be redis or memory, got %q", s.Backend)
	}
}

// TelemetryConfig contains metrics settings
type TelemetryConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MetricsPort int  `mapstructure:"metrics_port"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && t.MetricsPort <= 0 {
		return fmt.Errorf("telemetry.metrics_port must be > 0 when telemetry is enabled")
	}
	return nil
}

// LoadConfig loads config from file
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		v.AddConfigPath(exeDir)
		v.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("CHRONICLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Defaults plus env are a complete configuration; a missing file is fine.
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Index.Validate(); err != nil {
		return err
	}
	if err := c.Partition.Validate(); err != nil {
		return err
	}
	if err := c.Generate.Validate(); err != nil {
		return err
	}
	if err := c.Review.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	return c.Telemetry.Validate()
}
