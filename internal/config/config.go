// Package config handles streamcore configuration.
//
// Values resolve in three layers: compiled defaults, then an optional TOML
// file pointed at by STREAMCORE_CONFIG, then environment variables. Every
// policy threshold the pipeline consults lives here so tuning never requires
// a code change.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	apperrors "github.com/meetwise/streamcore/internal/errors"
)

// Config holds all tunable settings.
type Config struct {
	HTTPAddr string `toml:"http_addr"`

	// Provider models
	EmbedModel   string `toml:"embed_model"`
	ExtractModel string `toml:"extract_model"`

	// Batching policy
	MinWordCount         int     `toml:"min_word_count"`
	MaxBatchSize         int     `toml:"max_batch_size"`
	MinMeaningfulWords   int     `toml:"min_meaningful_words"`
	MeaningfulWordFloor  int     `toml:"meaningful_word_floor"`
	MinTopicChunks       int     `toml:"min_topic_chunks"`
	TopicChangeThreshold float64 `toml:"topic_change_threshold"`
	UniqueWordRatioMin   float64 `toml:"unique_word_ratio_min"`
	FillerRatioMax       float64 `toml:"filler_ratio_max"`

	// Required accumulated chunks per priority tier
	RequiredChunksImmediate int `toml:"required_chunks_immediate"`
	RequiredChunksHigh      int `toml:"required_chunks_high"`
	RequiredChunksMedium    int `toml:"required_chunks_medium"`
	RequiredChunksLow       int `toml:"required_chunks_low"`

	// Matching thresholds
	DuplicateThreshold float64 `toml:"duplicate_threshold"`
	ResolveThreshold   float64 `toml:"resolve_threshold"`

	// Evolution thresholds
	EvolutionRelatedThreshold   float64 `toml:"evolution_related_threshold"`
	EvolutionDuplicateThreshold float64 `toml:"evolution_duplicate_threshold"`
	ExpansionGrowthRatio        float64 `toml:"expansion_growth_ratio"`
	ExpansionMinExtraWords      int     `toml:"expansion_min_extra_words"`
	RefinementLengthBand        float64 `toml:"refinement_length_band"`

	// Session
	ActiveContextLimit int `toml:"active_context_limit"`
	EventBuffer        int `toml:"event_buffer"`
}

// Default returns the compiled defaults.
func Default() *Config {
	return &Config{
		HTTPAddr:     ":8000",
		EmbedModel:   "text-embedding-3-small",
		ExtractModel: "gpt-4o-mini",

		MinWordCount:         5,
		MaxBatchSize:         5,
		MinMeaningfulWords:   25,
		MeaningfulWordFloor:  15,
		MinTopicChunks:       2,
		TopicChangeThreshold: 0.6,
		UniqueWordRatioMin:   0.3,
		FillerRatioMax:       0.6,

		RequiredChunksImmediate: 0,
		RequiredChunksHigh:      2,
		RequiredChunksMedium:    3,
		RequiredChunksLow:       4,

		DuplicateThreshold: 0.80,
		ResolveThreshold:   0.70,

		EvolutionRelatedThreshold:   0.75,
		EvolutionDuplicateThreshold: 0.85,
		ExpansionGrowthRatio:        0.30,
		ExpansionMinExtraWords:      5,
		RefinementLengthBand:        0.20,

		ActiveContextLimit: 10,
		EventBuffer:        100,
	}
}

// Load resolves configuration from defaults, optional TOML file, and environment.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("STREAMCORE_CONFIG"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, apperrors.Wrapf(err, apperrors.CodeConfigInvalid, "parsing config file %s", path)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.EmbedModel = getEnv("EMBED_MODEL", c.EmbedModel)
	c.ExtractModel = getEnv("EXTRACT_MODEL", c.ExtractModel)

	c.MinWordCount = getEnvInt("MIN_WORD_COUNT", c.MinWordCount)
	c.MaxBatchSize = getEnvInt("MAX_BATCH_SIZE", c.MaxBatchSize)
	c.MinMeaningfulWords = getEnvInt("MIN_MEANINGFUL_WORDS", c.MinMeaningfulWords)
	c.MeaningfulWordFloor = getEnvInt("MEANINGFUL_WORD_FLOOR", c.MeaningfulWordFloor)
	c.MinTopicChunks = getEnvInt("MIN_TOPIC_CHUNKS", c.MinTopicChunks)
	c.TopicChangeThreshold = getEnvFloat("TOPIC_CHANGE_THRESHOLD", c.TopicChangeThreshold)
	c.UniqueWordRatioMin = getEnvFloat("UNIQUE_WORD_RATIO_MIN", c.UniqueWordRatioMin)
	c.FillerRatioMax = getEnvFloat("FILLER_RATIO_MAX", c.FillerRatioMax)

	c.RequiredChunksImmediate = getEnvInt("REQUIRED_CHUNKS_IMMEDIATE", c.RequiredChunksImmediate)
	c.RequiredChunksHigh = getEnvInt("REQUIRED_CHUNKS_HIGH", c.RequiredChunksHigh)
	c.RequiredChunksMedium = getEnvInt("REQUIRED_CHUNKS_MEDIUM", c.RequiredChunksMedium)
	c.RequiredChunksLow = getEnvInt("REQUIRED_CHUNKS_LOW", c.RequiredChunksLow)

	c.DuplicateThreshold = getEnvFloat("DUPLICATE_THRESHOLD", c.DuplicateThreshold)
	c.ResolveThreshold = getEnvFloat("RESOLVE_THRESHOLD", c.ResolveThreshold)

	c.EvolutionRelatedThreshold = getEnvFloat("EVOLUTION_RELATED_THRESHOLD", c.EvolutionRelatedThreshold)
	c.EvolutionDuplicateThreshold = getEnvFloat("EVOLUTION_DUPLICATE_THRESHOLD", c.EvolutionDuplicateThreshold)
	c.ExpansionGrowthRatio = getEnvFloat("EXPANSION_GROWTH_RATIO", c.ExpansionGrowthRatio)
	c.ExpansionMinExtraWords = getEnvInt("EXPANSION_MIN_EXTRA_WORDS", c.ExpansionMinExtraWords)
	c.RefinementLengthBand = getEnvFloat("REFINEMENT_LENGTH_BAND", c.RefinementLengthBand)

	c.ActiveContextLimit = getEnvInt("ACTIVE_CONTEXT_LIMIT", c.ActiveContextLimit)
	c.EventBuffer = getEnvInt("EVENT_BUFFER", c.EventBuffer)
}

func (c *Config) validate() error {
	if c.MinWordCount < 1 {
		return apperrors.New(apperrors.CodeConfigInvalid, "min_word_count must be >= 1")
	}
	if c.MaxBatchSize < 1 {
		return apperrors.New(apperrors.CodeConfigInvalid, "max_batch_size must be >= 1")
	}
	if c.MeaningfulWordFloor > c.MinMeaningfulWords {
		return apperrors.New(apperrors.CodeConfigInvalid, "meaningful_word_floor must not exceed min_meaningful_words")
	}
	for name, v := range map[string]float64{
		"duplicate_threshold":           c.DuplicateThreshold,
		"resolve_threshold":             c.ResolveThreshold,
		"evolution_related_threshold":   c.EvolutionRelatedThreshold,
		"evolution_duplicate_threshold": c.EvolutionDuplicateThreshold,
		"topic_change_threshold":        c.TopicChangeThreshold,
	} {
		if v < 0 || v > 1 {
			return apperrors.Newf(apperrors.CodeConfigInvalid, "%s must be in [0, 1]", name)
		}
	}
	if c.ResolveThreshold > c.DuplicateThreshold {
		return apperrors.New(apperrors.CodeConfigInvalid, "resolve_threshold must not exceed duplicate_threshold")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}
