package batch

import (
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	p := NewPolicy(Config{})

	tests := []struct {
		name string
		text string
		want ChunkPriority
	}{
		{"too short", "um yeah ok", PrioritySkip},
		{"gibberish", "the the the the the the", PrioritySkip},
		{"decision", "We decided to go with the phased rollout plan", PriorityImmediate},
		{"risk", "The migration is behind schedule and that is a blocker", PriorityImmediate},
		{"action with deadline", "Dana will send the summary by Friday morning", PriorityImmediate},
		{"action only", "Someone needs to review the onboarding flow", PriorityHigh},
		{"question", "What happens if the cache falls over entirely?", PriorityHigh},
		{"plain statement", "customers reported slower page loads during peak periods", PriorityMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Classify(tt.text); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestImmediateTriggersOnFirstChunk(t *testing.T) {
	p := NewPolicy(Config{})

	process, reason := p.ShouldProcessNow("We decided to go with the phased rollout plan", 1, 1, nil, nil)
	if !process {
		t.Fatalf("immediate chunk should trigger on first chunk, got reason %q", reason)
	}
	if reason != "immediate_priority_threshold (required: 0)" {
		t.Errorf("reason = %q", reason)
	}
}

func TestHighPriorityWaitsForContext(t *testing.T) {
	p := NewPolicy(Config{})
	question := "What happens if the cache falls over entirely?"

	process, reason := p.ShouldProcessNow(question, 1, 1, nil, nil)
	if process {
		t.Fatalf("first high chunk should wait, got reason %q", reason)
	}
	if reason != ReasonWaiting {
		t.Errorf("reason = %q, want %q", reason, ReasonWaiting)
	}

	process, reason = p.ShouldProcessNow(question, 2, 2, []string{question}, nil)
	if !process {
		t.Fatalf("second high chunk should trigger, got reason %q", reason)
	}
	if reason != "high_priority_threshold (required: 2)" {
		t.Errorf("reason = %q", reason)
	}
}

func TestMediumPriorityThreshold(t *testing.T) {
	p := NewPolicy(Config{})
	text := "customers reported slower page loads"

	var accumulated []string
	for since := 1; since <= 2; since++ {
		process, reason := p.ShouldProcessNow(text, since, since, accumulated, nil)
		if process {
			t.Fatalf("chunk %d should wait, got reason %q", since, reason)
		}
		accumulated = append(accumulated, text)
	}

	process, reason := p.ShouldProcessNow(text, 3, 3, accumulated, nil)
	if !process {
		t.Fatalf("third medium chunk should trigger, got reason %q", reason)
	}
	if reason != "medium_priority_threshold (required: 3)" {
		t.Errorf("reason = %q", reason)
	}
}

func TestUnintelligibleChunkSkipped(t *testing.T) {
	p := NewPolicy(Config{})

	process, reason := p.ShouldProcessNow("um uh yeah", 1, 1, nil, nil)
	if process {
		t.Fatal("unintelligible chunk should never trigger")
	}
	if reason != ReasonSkipped {
		t.Errorf("reason = %q, want %q", reason, ReasonSkipped)
	}
}

func TestTopicChangeOverridesThresholds(t *testing.T) {
	p := NewPolicy(Config{})
	text := "customers reported slower page loads"
	accumulated := []string{text, text}

	process, reason := p.ShouldProcessNow(text, 3, 1, accumulated, &TopicSignal{Changed: true, Similarity: 0.3})
	if !process {
		t.Fatalf("topic change should force processing, got reason %q", reason)
	}
	if reason != "topic_change (similarity: 0.30)" {
		t.Errorf("reason = %q", reason)
	}
}

func TestTopicChangeNeedsMinimumContext(t *testing.T) {
	p := NewPolicy(Config{})
	text := "customers reported slower page loads"

	process, _ := p.ShouldProcessNow(text, 1, 1, nil, &TopicSignal{Changed: true, Similarity: 0.3})
	if process {
		t.Error("topic change with no accumulated context should not trigger")
	}
}

func TestTopicChangeAboveSimilarityIgnored(t *testing.T) {
	p := NewPolicy(Config{})
	text := "customers reported slower page loads"
	accumulated := []string{text, text}

	process, _ := p.ShouldProcessNow(text, 3, 1, accumulated, &TopicSignal{Changed: true, Similarity: 0.9})
	if process {
		t.Error("high-similarity boundary signal should not trigger")
	}
}

// deep tier requirements so word-count rules decide instead of chunk counts
func slowTiers() map[ChunkPriority]int {
	return map[ChunkPriority]int{
		PriorityImmediate: 10,
		PriorityHigh:      10,
		PriorityMedium:    10,
		PriorityLow:       10,
	}
}

func TestMeaningfulWordThreshold(t *testing.T) {
	p := NewPolicy(Config{RequiredChunks: slowTiers()})

	dense1 := "customers reported slower dashboard loading during peak hours last month across several regions"
	dense2 := "engineering traced latency spikes toward database connection pooling limits under heavy concurrent traffic volume"

	process, reason := p.ShouldProcessNow(dense1, 1, 1, nil, nil)
	if process {
		t.Fatalf("first dense chunk should wait, got reason %q", reason)
	}

	process, reason = p.ShouldProcessNow(dense2, 2, 2, []string{dense1}, nil)
	if !process {
		t.Fatalf("dense batch should trigger on accumulated word count, got reason %q", reason)
	}
	if reason != ReasonMeaningfulWords {
		t.Errorf("reason = %q, want %q", reason, ReasonMeaningfulWords)
	}
}

func TestMaxBatchSizeForcesProcessing(t *testing.T) {
	p := NewPolicy(Config{MaxBatchSize: 3, RequiredChunks: slowTiers()})

	small := "customers reported slower page loads"
	dense := "customers reported slower dashboard loading during peak hours last month across several regions"

	process, reason := p.ShouldProcessNow(dense, 3, 3, []string{small, small}, nil)
	if !process {
		t.Fatalf("full batch above the quality floor should trigger, got reason %q", reason)
	}
	if reason != ReasonMaxBatch {
		t.Errorf("reason = %q, want %q", reason, ReasonMaxBatch)
	}
}

func TestFullBatchBelowFloorRefused(t *testing.T) {
	p := NewPolicy(Config{MaxBatchSize: 3, RequiredChunks: slowTiers()})

	thin := "yeah we can try that maybe"

	process, reason := p.ShouldProcessNow(thin, 3, 3, []string{thin, thin}, nil)
	if process {
		t.Fatal("filler-heavy full batch should be refused")
	}
	if reason != ReasonInsufficient {
		t.Errorf("reason = %q, want %q", reason, ReasonInsufficient)
	}
}

func TestInterleavedPrioritiesUseCurrentChunk(t *testing.T) {
	p := NewPolicy(Config{})

	// Two quiet chunks then a decision: the decision fires immediately even
	// though the mediums were still waiting.
	quiet := "customers reported slower page loads"
	process, _ := p.ShouldProcessNow(quiet, 2, 2, []string{quiet}, nil)
	if process {
		t.Fatal("quiet chunks should still wait")
	}

	process, reason := p.ShouldProcessNow("We decided to go with the phased rollout plan", 3, 3, []string{quiet, quiet}, nil)
	if !process {
		t.Fatalf("decision chunk should trigger, got reason %q", reason)
	}
	if !strings.HasPrefix(reason, "immediate_priority_threshold") {
		t.Errorf("reason = %q", reason)
	}
}

func TestMeaningfulWordFloorAccessor(t *testing.T) {
	if got := NewPolicy(Config{}).MeaningfulWordFloor(); got != 15 {
		t.Errorf("MeaningfulWordFloor() = %d, want default 15", got)
	}
	if got := NewPolicy(Config{MeaningfulWordFloor: 7}).MeaningfulWordFloor(); got != 7 {
		t.Errorf("MeaningfulWordFloor() = %d, want 7", got)
	}
}
