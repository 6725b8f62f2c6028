// Package session wires the streaming pipeline together per meeting session:
// chunk ingestion, batching decisions, extraction calls, routing, evolution
// tracking, and lifecycle cleanup.
package session

import (
	"context"
	"encoding/json"
	"sync"

	apperrors "github.com/meetwise/streamcore/internal/errors"
	"github.com/meetwise/streamcore/internal/insight"
	"github.com/meetwise/streamcore/internal/pipeline/batch"
	"github.com/meetwise/streamcore/internal/pipeline/evolve"
	"github.com/meetwise/streamcore/internal/pipeline/match"
	"github.com/meetwise/streamcore/internal/pipeline/router"
	"github.com/meetwise/streamcore/internal/provider"
	"github.com/meetwise/streamcore/internal/trace"
)

// Event is one downstream-visible pipeline output.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Summary aggregates a session's outcome at teardown.
type Summary struct {
	SessionID       string `json:"session_id"`
	Chunks          int64  `json:"chunks"`
	Triggers        int64  `json:"triggers"`
	SkippedLowValue int64  `json:"skipped_low_value"`
	Questions       int64  `json:"questions"`
	Actions         int64  `json:"actions"`
	ActionUpdates   int64  `json:"action_updates"`
	Answers         int64  `json:"answers"`
	Evolutions      int64  `json:"evolutions"`
	Malformed       int64  `json:"malformed"`
}

// Orchestrator drives one session. Chunk processing for a session is
// logically sequential; only End may race with it, guarded by the closed
// flag so results landing after teardown are discarded.
type Orchestrator struct {
	id        string
	policy    *batch.Policy
	router    *router.Router
	tracker   *evolve.Tracker
	extractor provider.Extractor

	activeLimit int

	mu            sync.Mutex
	accumulated   []string
	sinceLast     int
	chunkIndex    int
	pendingTopic  *batch.TopicSignal
	latestPartial string
	closed        bool
	summary       *Summary

	chunks     int64
	triggers   int64
	skipped    int64
	evolutions int64

	events chan Event
}

// Options configures a session orchestrator.
type Options struct {
	Policy      batch.Config
	Router      router.Config
	Embedder    provider.Embedder
	Extractor   provider.Extractor
	Validator   provider.Validator // optional
	Tracker     *evolve.Tracker
	ActiveLimit int // max active items sent as extraction side context
	EventBuffer int
}

// New creates a session orchestrator with fresh per-session state.
func New(id string, opts Options) *Orchestrator {
	if opts.ActiveLimit <= 0 {
		opts.ActiveLimit = 10
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 100
	}

	o := &Orchestrator{
		id:          id,
		policy:      batch.NewPolicy(opts.Policy),
		tracker:     opts.Tracker,
		extractor:   opts.Extractor,
		activeLimit: opts.ActiveLimit,
		events:      make(chan Event, opts.EventBuffer),
	}

	matcher := match.NewMatcher(opts.Embedder)
	o.router = router.New(matcher, opts.Validator, router.Handlers{
		Question:     o.handleQuestion,
		Action:       o.handleAction,
		ActionUpdate: o.handleActionUpdate,
		Answer:       o.handleAnswer,
	}, opts.Router)

	return o
}

// ID returns the session identifier.
func (o *Orchestrator) ID() string { return o.id }

// Events returns the downstream event channel. Closed on End.
func (o *Orchestrator) Events() <-chan Event { return o.events }

// ProcessChunk ingests one transcript chunk. Interim chunks update the
// partial-text state but never trigger processing; final chunks accumulate
// and may fire an extraction call.
func (o *Orchestrator) ProcessChunk(ctx context.Context, text string, isFinal bool) error {
	ctx, span := trace.StartSpan(ctx, "process_chunk")
	defer span.End()
	span.SetAttr("session", o.id)
	span.SetAttr("final", isFinal)

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return apperrors.New(apperrors.CodeSessionClosed, "session already ended")
	}
	if !isFinal {
		o.latestPartial = text
		o.mu.Unlock()
		return nil
	}
	o.latestPartial = ""
	o.chunks++
	o.chunkIndex++
	o.sinceLast++
	chunkIndex := o.chunkIndex
	sinceLast := o.sinceLast
	topic := o.pendingTopic
	accumulated := make([]string, len(o.accumulated))
	copy(accumulated, o.accumulated)
	o.mu.Unlock()

	// Pure in-memory decision; no suspension between read and verdict.
	process, reason := o.policy.ShouldProcessNow(text, chunkIndex, sinceLast, accumulated, topic)

	log := trace.Logger(ctx)
	log.Debug("batching decision", "session", o.id, "chunk", chunkIndex, "process", process, "reason", reason)
	span.SetAttr("reason", reason)

	o.mu.Lock()
	o.accumulated = append(o.accumulated, text)
	if !process {
		if reason == batch.ReasonInsufficient {
			// Deliberate policy skip, not a waiting state: the batch is full
			// of filler and not worth an extraction call.
			o.skipped++
			log.Info("skipping low-value batch", "session", o.id, "chunk", chunkIndex)
		}
		o.mu.Unlock()
		return nil
	}
	contextChunks := o.accumulated
	o.accumulated = nil
	o.sinceLast = 0
	o.pendingTopic = nil
	o.triggers++
	o.mu.Unlock()

	log.Info("processing triggered", "session", o.id, "chunk", chunkIndex, "reason", reason, "context_chunks", len(contextChunks))
	return o.extract(ctx, contextChunks, chunkIndex)
}

// TopicBoundary records the external boundary detector's verdict; it takes
// effect on the next chunk's batching decision.
func (o *Orchestrator) TopicBoundary(similarity float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.pendingTopic = &batch.TopicSignal{Changed: true, Similarity: similarity}
}

// LatestPartial returns the most recent interim transcript, if any.
func (o *Orchestrator) LatestPartial() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.latestPartial
}

func (o *Orchestrator) extract(ctx context.Context, chunks []string, chunkIndex int) error {
	req := provider.ExtractRequest{
		Context:         chunks,
		ActiveQuestions: o.router.ActiveQuestions(o.activeLimit),
		ActiveActions:   o.router.ActiveActions(o.activeLimit),
	}

	err := o.extractor.Extract(ctx, req, func(raw json.RawMessage) error {
		// A result arriving after teardown is discarded, not applied.
		if o.isClosed() {
			return apperrors.New(apperrors.CodeSessionClosed, "discarding result for ended session")
		}
		return o.routeWithIndex(ctx, raw, chunkIndex)
	})

	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeSessionClosed) {
			trace.Logger(ctx).Debug("extraction results discarded after session end", "session", o.id)
			return nil
		}
		if apperrors.IsCode(err, apperrors.CodeHandlerFault) {
			// Handler faults indicate a programming error and surface to the
			// caller; the session survives, other sessions are unaffected.
			return err
		}
		trace.Logger(ctx).Warn("extraction failed, skipping batch", "session", o.id, "error", err)
		return nil
	}
	return nil
}

// routeWithIndex carries the triggering chunk index to evolution checks.
func (o *Orchestrator) routeWithIndex(ctx context.Context, raw json.RawMessage, chunkIndex int) error {
	return o.router.Route(withChunkIndex(ctx, chunkIndex), raw)
}

type chunkIndexKey struct{}

func withChunkIndex(ctx context.Context, idx int) context.Context {
	return context.WithValue(ctx, chunkIndexKey{}, idx)
}

func chunkIndexFrom(ctx context.Context) int {
	if idx, ok := ctx.Value(chunkIndexKey{}).(int); ok {
		return idx
	}
	return 0
}

func (o *Orchestrator) handleQuestion(ctx context.Context, q *insight.Question) error {
	res := o.tracker.CheckEvolution(ctx, o.id, insight.Insight{
		ID:       q.ID,
		Type:     insight.TypeOpenQuestion,
		Content:  q.Text,
		Priority: q.Priority,
	}, chunkIndexFrom(ctx))

	o.emitEvolved(ctx, res, Event{Type: "question", Payload: q})
	return nil
}

func (o *Orchestrator) handleAction(ctx context.Context, a *insight.Action) error {
	res := o.tracker.CheckEvolution(ctx, o.id, insight.Insight{
		ID:         a.ID,
		Type:       insight.TypeActionItem,
		Content:    a.Description,
		Priority:   a.Priority,
		AssignedTo: a.Owner,
		DueDate:    a.DueDate,
	}, chunkIndexFrom(ctx))

	o.emitEvolved(ctx, res, Event{Type: "action", Payload: a})
	return nil
}

func (o *Orchestrator) handleActionUpdate(ctx context.Context, u *insight.ActionUpdate) error {
	o.emit(ctx, Event{Type: "action_update", Payload: u})
	return nil
}

func (o *Orchestrator) handleAnswer(ctx context.Context, a *insight.Answer) error {
	o.emit(ctx, Event{Type: "answer", Payload: a})
	return nil
}

// emitEvolved forwards an insight according to its evolution verdict:
// duplicates never reach downstream, evolutions go out as an update to the
// same item identity, new insights go out as themselves.
func (o *Orchestrator) emitEvolved(ctx context.Context, res evolve.Result, fresh Event) {
	switch {
	case res.Type == evolve.Duplicate:
		trace.Logger(ctx).Debug("suppressing duplicate insight", "session", o.id, "original_id", res.OriginalID, "similarity", res.Similarity)
	case res.IsEvolution:
		o.mu.Lock()
		o.evolutions++
		o.mu.Unlock()
		o.emit(ctx, Event{Type: "insight_evolved", Payload: res.Merged})
	default:
		o.emit(ctx, fresh)
	}
}

// emit sends an event without blocking; a full buffer drops the event.
func (o *Orchestrator) emit(ctx context.Context, evt Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	select {
	case o.events <- evt:
	default:
		trace.Logger(ctx).Debug("event buffer full, dropping", "session", o.id, "type", evt.Type)
	}
}

func (o *Orchestrator) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// End flushes worthwhile pending context, tears down all per-session state,
// and returns the aggregate summary. Idempotent: later calls return the
// summary from the first.
func (o *Orchestrator) End(ctx context.Context) Summary {
	o.mu.Lock()
	if o.closed {
		sum := *o.summary
		o.mu.Unlock()
		return sum
	}
	pending := o.accumulated
	o.accumulated = nil
	chunkIndex := o.chunkIndex
	o.mu.Unlock()

	// Final flush only when the leftover context clears the quality floor.
	if len(pending) > 0 && batch.MeaningfulWords(pending) >= o.policy.MeaningfulWordFloor() {
		if err := o.extract(ctx, pending, chunkIndex); err != nil {
			trace.Logger(ctx).Warn("final flush failed", "session", o.id, "error", err)
		}
	}

	rm := o.router.Metrics().Snapshot()

	o.mu.Lock()
	if o.closed {
		sum := *o.summary
		o.mu.Unlock()
		return sum
	}
	o.closed = true
	sum := Summary{
		SessionID:       o.id,
		Chunks:          o.chunks,
		Triggers:        o.triggers,
		SkippedLowValue: o.skipped,
		Questions:       rm.Questions,
		Actions:         rm.Actions,
		ActionUpdates:   rm.ActionUpdates,
		Answers:         rm.Answers,
		Evolutions:      o.evolutions,
		Malformed:       rm.Malformed,
	}
	o.summary = &sum
	close(o.events)
	o.mu.Unlock()

	o.router.ClearState()
	o.tracker.CleanupSession(o.id)

	trace.Logger(ctx).Info("session ended", "session", o.id, "chunks", sum.Chunks, "triggers", sum.Triggers)
	return sum
}

// RouterMetrics exposes the routing counters for observability endpoints.
func (o *Orchestrator) RouterMetrics() router.Snapshot {
	return o.router.Metrics().Snapshot()
}

// StateCounts exposes orchestration counters for observability endpoints.
func (o *Orchestrator) StateCounts() (chunks, triggers, skipped int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.chunks, o.triggers, o.skipped
}
