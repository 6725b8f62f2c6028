// Package batch implements the adaptive batching policy: per-chunk semantic
// classification plus trigger decisions that balance latency against the cost
// of an LLM extraction call.
package batch

import "strings"

// Signals holds per-chunk semantic facts computed by pattern matching.
// Pure function of the text; nothing here is stateful or persisted.
type Signals struct {
	HasActionVerbs bool
	HasTimeRefs    bool
	HasDecisions   bool
	HasRisks       bool
	HasQuestions   bool
	WordCount      int
}

var actionVerbs = []string{
	"will", "need to", "needs to", "must", "should", "have to", "has to",
	"take care", "follow up", "send", "create", "build", "fix", "ship",
	"update", "schedule", "review", "complete", "deliver", "assign",
	"implement", "prepare", "finish", "handle", "draft", "deploy",
}

var timeRefs = []string{
	"today", "tomorrow", "tonight", "monday", "tuesday", "wednesday",
	"thursday", "friday", "saturday", "sunday", "next week", "this week",
	"next month", "by ", "deadline", "due", "eod", "eow", "asap",
	"end of day", "end of week", "end of month", "o'clock", "morning",
	"afternoon", "quarter",
}

var decisionMarkers = []string{
	"decided", "we'll go with", "we will go with", "agreed", "agree to",
	"conclusion", "final call", "settled on", "signing off", "approved",
	"let's go with", "go ahead with",
}

var riskMarkers = []string{
	"risk", "blocker", "blocked", "blocking", "concern", "worried",
	"problem", "issue", "critical", "urgent", "slipping", "behind schedule",
	"at risk", "escalate", "failure", "broken",
}

var questionStarters = []string{
	"what", "how", "why", "when", "who", "where", "which",
	"should", "could", "can", "would", "is", "are", "do", "does", "did",
}

// Filler words excluded from the meaningful-word count and used by the
// gibberish filler-ratio check.
var fillerWords = map[string]struct{}{
	"um": {}, "uh": {}, "uhm": {}, "er": {}, "ah": {}, "hmm": {}, "mm": {},
	"like": {}, "you": {}, "know": {}, "yeah": {}, "yes": {}, "no": {},
	"okay": {}, "ok": {}, "so": {}, "well": {}, "just": {}, "actually": {},
	"basically": {}, "literally": {}, "right": {}, "i": {}, "mean": {},
	"kind": {}, "of": {}, "sort": {}, "a": {}, "an": {}, "the": {},
	"and": {}, "or": {}, "but": {}, "to": {}, "it": {}, "that": {},
	"this": {}, "is": {}, "was": {}, "are": {}, "be": {},
}

// Analyze computes semantic signals for one chunk of text.
func Analyze(text string) Signals {
	lower := strings.ToLower(text)
	words := strings.Fields(lower)

	s := Signals{WordCount: len(words)}
	s.HasActionVerbs = containsAny(lower, actionVerbs)
	s.HasTimeRefs = containsAny(lower, timeRefs)
	s.HasDecisions = containsAny(lower, decisionMarkers)
	s.HasRisks = containsAny(lower, riskMarkers)
	s.HasQuestions = looksLikeQuestion(lower, words)
	return s
}

func containsAny(text string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

func looksLikeQuestion(lower string, words []string) bool {
	if strings.Contains(lower, "?") {
		return true
	}
	if len(words) == 0 {
		return false
	}
	first := strings.Trim(words[0], ".,!")
	for _, q := range questionStarters {
		if first == q {
			return true
		}
	}
	return false
}

// MeaningfulWords counts words that are not filler and are at least two
// characters long, across all given texts. Used as an information-density
// proxy for trigger decisions.
func MeaningfulWords(texts []string) int {
	count := 0
	for _, t := range texts {
		for _, w := range strings.Fields(strings.ToLower(t)) {
			w = strings.Trim(w, ".,!?;:\"'()")
			if len(w) < 2 {
				continue
			}
			if _, filler := fillerWords[w]; filler {
				continue
			}
			count++
		}
	}
	return count
}

// IsGibberish reports whether a chunk is unintelligible: low unique-word
// ratio, filler-dominated, stuttered repeats, or no content words at all.
func IsGibberish(text string, uniqueRatioMin, fillerRatioMax float64) bool {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return true
	}

	unique := make(map[string]struct{}, len(words))
	fillers := 0
	repeats := 1
	content := 0
	prev := ""

	for _, w := range words {
		w = strings.Trim(w, ".,!?;:\"'()")
		if w == "" {
			continue
		}
		unique[w] = struct{}{}

		if _, filler := fillerWords[w]; filler {
			fillers++
		} else if len(w) >= 2 {
			content++
		}

		if w == prev {
			repeats++
			if repeats >= 3 {
				return true
			}
		} else {
			repeats = 1
		}
		prev = w
	}

	if float64(len(unique))/float64(len(words)) < uniqueRatioMin {
		return true
	}
	if float64(fillers)/float64(len(words)) > fillerRatioMax {
		return true
	}
	return content == 0
}
