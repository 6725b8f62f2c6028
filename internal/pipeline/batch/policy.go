package batch

import (
	"fmt"

	"github.com/meetwise/streamcore/internal/config"
)

// ChunkPriority orders chunks by urgency. Recomputed per chunk, never stored.
type ChunkPriority int

const (
	PriorityImmediate ChunkPriority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
	PrioritySkip
)

func (p ChunkPriority) String() string {
	return [...]string{"immediate", "high", "medium", "low", "skip"}[p]
}

// Trigger reasons reported by ShouldProcessNow.
const (
	ReasonSkipped         = "skipped_unintelligible"
	ReasonMeaningfulWords = "meaningful_word_threshold"
	ReasonMaxBatch        = "max_batch_size_reached"
	ReasonInsufficient    = "insufficient_content"
	ReasonWaiting         = "waiting_for_context"
)

// TopicSignal carries the external boundary detector's verdict for the
// current chunk.
type TopicSignal struct {
	Changed    bool
	Similarity float64
}

// Config holds every tunable of the batching policy. Zero values fall back
// to the compiled defaults so tests can set only what they exercise.
type Config struct {
	MinWordCount         int
	MaxBatchSize         int
	MinMeaningfulWords   int
	MeaningfulWordFloor  int
	MinTopicChunks       int
	TopicChangeThreshold float64
	UniqueWordRatioMin   float64
	FillerRatioMax       float64
	RequiredChunks       map[ChunkPriority]int
}

// FromConfig maps the application config onto policy settings.
func FromConfig(c *config.Config) Config {
	return Config{
		MinWordCount:         c.MinWordCount,
		MaxBatchSize:         c.MaxBatchSize,
		MinMeaningfulWords:   c.MinMeaningfulWords,
		MeaningfulWordFloor:  c.MeaningfulWordFloor,
		MinTopicChunks:       c.MinTopicChunks,
		TopicChangeThreshold: c.TopicChangeThreshold,
		UniqueWordRatioMin:   c.UniqueWordRatioMin,
		FillerRatioMax:       c.FillerRatioMax,
		RequiredChunks: map[ChunkPriority]int{
			PriorityImmediate: c.RequiredChunksImmediate,
			PriorityHigh:      c.RequiredChunksHigh,
			PriorityMedium:    c.RequiredChunksMedium,
			PriorityLow:       c.RequiredChunksLow,
		},
	}
}

func (c Config) withDefaults() Config {
	if c.MinWordCount <= 0 {
		c.MinWordCount = 5
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 5
	}
	if c.MinMeaningfulWords <= 0 {
		c.MinMeaningfulWords = 25
	}
	if c.MeaningfulWordFloor <= 0 {
		c.MeaningfulWordFloor = 15
	}
	if c.MinTopicChunks <= 0 {
		c.MinTopicChunks = 2
	}
	if c.TopicChangeThreshold <= 0 {
		c.TopicChangeThreshold = 0.6
	}
	if c.UniqueWordRatioMin <= 0 {
		c.UniqueWordRatioMin = 0.3
	}
	if c.FillerRatioMax <= 0 {
		c.FillerRatioMax = 0.6
	}
	if c.RequiredChunks == nil {
		c.RequiredChunks = map[ChunkPriority]int{
			PriorityImmediate: 0,
			PriorityHigh:      2,
			PriorityMedium:    3,
			PriorityLow:       4,
		}
	}
	return c
}

// Policy decides when accumulated context justifies an extraction call.
// Stateless: all accumulation state is owned by the caller.
type Policy struct {
	cfg Config
}

// NewPolicy creates a batching policy.
func NewPolicy(cfg Config) *Policy {
	return &Policy{cfg: cfg.withDefaults()}
}

// Classify derives the chunk's priority from its semantic signals.
//
// The low tier is reserved but unreached from here: any chunk passing the
// minimum word count classifies medium first. The tier stays in the enum and
// the required-chunks table so reordering the checks is a local change.
func (p *Policy) Classify(text string) ChunkPriority {
	signals := Analyze(text)

	if signals.WordCount < p.cfg.MinWordCount {
		return PrioritySkip
	}
	if IsGibberish(text, p.cfg.UniqueWordRatioMin, p.cfg.FillerRatioMax) {
		return PrioritySkip
	}
	if (signals.HasActionVerbs && signals.HasTimeRefs) || signals.HasDecisions || signals.HasRisks {
		return PriorityImmediate
	}
	if signals.HasActionVerbs || signals.HasQuestions {
		return PriorityHigh
	}
	if signals.WordCount >= p.cfg.MinWordCount {
		return PriorityMedium
	}
	return PriorityLow
}

// ShouldProcessNow decides whether to trigger extraction for the incoming
// chunk. accumulated is the not-yet-processed context excluding current;
// sinceLast counts chunks accumulated since the last trigger, including the
// current one. topic may be nil when no boundary signal exists.
func (p *Policy) ShouldProcessNow(current string, chunkIndex, sinceLast int, accumulated []string, topic *TopicSignal) (bool, string) {
	priority := p.Classify(current)
	if priority == PrioritySkip {
		return false, ReasonSkipped
	}

	// Topic changes override normal thresholds once minimal context exists.
	if topic != nil && topic.Changed &&
		len(accumulated) >= p.cfg.MinTopicChunks &&
		topic.Similarity < p.cfg.TopicChangeThreshold {
		return true, fmt.Sprintf("topic_change (similarity: %.2f)", topic.Similarity)
	}

	required := p.cfg.RequiredChunks[priority]
	if sinceLast >= required {
		return true, fmt.Sprintf("%s_priority_threshold (required: %d)", priority, required)
	}

	window := make([]string, 0, len(accumulated)+1)
	window = append(window, accumulated...)
	window = append(window, current)
	meaningful := MeaningfulWords(window)

	if meaningful >= p.cfg.MinMeaningfulWords {
		return true, ReasonMeaningfulWords
	}

	// At the hard batch cap, a lower quality floor decides between forcing
	// the call and refusing to pay for a filler-only batch.
	if sinceLast >= p.cfg.MaxBatchSize {
		if meaningful >= p.cfg.MeaningfulWordFloor {
			return true, ReasonMaxBatch
		}
		return false, ReasonInsufficient
	}

	return false, ReasonWaiting
}

// MeaningfulWordFloor exposes the quality floor for orchestrator flush decisions.
func (p *Policy) MeaningfulWordFloor() int {
	return p.cfg.MeaningfulWordFloor
}
