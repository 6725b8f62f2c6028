// Package insight defines the data model shared by the streaming pipeline:
// candidate objects emitted by the language model, insight priorities, and
// the records the evolution tracker maintains.
package insight

import "strings"

// Priority ranks insight urgency. The order is fixed: low < medium < high < critical.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

var priorityNames = [...]string{"low", "medium", "high", "critical"}

// String returns the wire name of the priority.
func (p Priority) String() string {
	if p < PriorityLow || p > PriorityCritical {
		return "medium"
	}
	return priorityNames[p]
}

// ParsePriority maps a wire string to a Priority. Unknown or empty values
// default to medium; model output is untrusted.
func ParsePriority(s string) Priority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow
	case "high":
		return PriorityHigh
	case "critical", "urgent":
		return PriorityCritical
	default:
		return PriorityMedium
	}
}

// Max returns the higher of two priorities.
func (p Priority) Max(other Priority) Priority {
	if other > p {
		return other
	}
	return p
}
