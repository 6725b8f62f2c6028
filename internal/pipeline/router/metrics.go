package router

import (
	"sync"
	"time"
)

// Metrics counts routing outcomes for one session. Mutated only by the
// owning router; Snapshot is safe to call from other goroutines.
type Metrics struct {
	mu sync.Mutex

	Processed     int64
	Questions     int64
	Actions       int64
	ActionUpdates int64
	Answers       int64

	Malformed        int64
	RoutingErrors    int64
	DuplicateDrops   int64
	NotMeaningful    int64
	UnmatchedSkipped int64

	totalLatency time.Duration
}

func (m *Metrics) recordProcessed(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Processed++
	m.totalLatency += latency
}

func (m *Metrics) recordDispatch(kind dispatchKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch kind {
	case dispatchQuestion:
		m.Questions++
	case dispatchAction:
		m.Actions++
	case dispatchActionUpdate:
		m.ActionUpdates++
	case dispatchAnswer:
		m.Answers++
	}
}

func (m *Metrics) recordMalformed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Malformed++
}

func (m *Metrics) recordRoutingError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RoutingErrors++
}

func (m *Metrics) recordDuplicateDrop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DuplicateDrops++
}

func (m *Metrics) recordNotMeaningful() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NotMeaningful++
}

func (m *Metrics) recordUnmatchedSkip() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UnmatchedSkipped++
}

type dispatchKind int

const (
	dispatchQuestion dispatchKind = iota
	dispatchAction
	dispatchActionUpdate
	dispatchAnswer
)

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Processed     int64
	Questions     int64
	Actions       int64
	ActionUpdates int64
	Answers       int64

	Malformed        int64
	RoutingErrors    int64
	DuplicateDrops   int64
	NotMeaningful    int64
	UnmatchedSkipped int64

	AvgLatency time.Duration
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		Processed:        m.Processed,
		Questions:        m.Questions,
		Actions:          m.Actions,
		ActionUpdates:    m.ActionUpdates,
		Answers:          m.Answers,
		Malformed:        m.Malformed,
		RoutingErrors:    m.RoutingErrors,
		DuplicateDrops:   m.DuplicateDrops,
		NotMeaningful:    m.NotMeaningful,
		UnmatchedSkipped: m.UnmatchedSkipped,
	}
	if m.Processed > 0 {
		s.AvgLatency = m.totalLatency / time.Duration(m.Processed)
	}
	return s
}
