// Package router consumes structured candidate objects from the model output
// stream one at a time: validates, resolves identity through the semantic
// matcher, and dispatches to typed handlers.
//
// Item state is implicit in index membership: unseen, then tracked (server
// UUID plus cached embedding), then optionally updated. Malformed objects are
// counted and dropped so one bad object never stalls the stream; handler
// faults surface to the caller.
package router

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/meetwise/streamcore/internal/errors"
	"github.com/meetwise/streamcore/internal/insight"
	"github.com/meetwise/streamcore/internal/pipeline/match"
	"github.com/meetwise/streamcore/internal/provider"
	"github.com/meetwise/streamcore/internal/trace"
)

// Handlers receive fully resolved objects: server id, server timestamp,
// resolved references. Each is invoked at most once per routed object;
// returned errors propagate as routing errors.
type Handlers struct {
	Question     func(ctx context.Context, q *insight.Question) error
	Action       func(ctx context.Context, a *insight.Action) error
	ActionUpdate func(ctx context.Context, u *insight.ActionUpdate) error
	Answer       func(ctx context.Context, a *insight.Answer) error
}

// Config holds the two threshold regimes: strict for new-item dedup, loose
// for resolving updates/answers to existing items (paraphrases, not repeats).
type Config struct {
	DuplicateThreshold float64
	ResolveThreshold   float64
}

func (c Config) withDefaults() Config {
	if c.DuplicateThreshold <= 0 {
		c.DuplicateThreshold = 0.80
	}
	if c.ResolveThreshold <= 0 {
		c.ResolveThreshold = 0.70
	}
	return c
}

// Router routes one session's candidate stream.
type Router struct {
	matcher   *match.Matcher
	validator provider.Validator // nil means absent; fail open to accept
	handlers  Handlers
	cfg       Config

	questions *match.Index
	actions   *match.Index
	metrics   Metrics
}

// New creates a router. validator may be nil.
func New(matcher *match.Matcher, validator provider.Validator, handlers Handlers, cfg Config) *Router {
	return &Router{
		matcher:   matcher,
		validator: validator,
		handlers:  handlers,
		cfg:       cfg.withDefaults(),
		questions: match.NewIndex(),
		actions:   match.NewIndex(),
	}
}

// Route processes one raw candidate object. Malformed objects are absorbed
// (counted, logged, nil returned); handler and programming faults are
// counted and returned.
func (r *Router) Route(ctx context.Context, raw json.RawMessage) error {
	start := time.Now()
	log := trace.Logger(ctx)

	cand, err := insight.Parse(raw)
	if err != nil {
		r.metrics.recordMalformed()
		log.Warn("dropping malformed candidate", "error", err)
		return nil
	}
	defer func() { r.metrics.recordProcessed(time.Since(start)) }()

	switch c := cand.(type) {
	case *insight.Question:
		err = r.routeQuestion(ctx, c)
	case *insight.Action:
		err = r.routeAction(ctx, c)
	case *insight.ActionUpdate:
		err = r.routeActionUpdate(ctx, c)
	case *insight.Answer:
		err = r.routeAnswer(ctx, c)
	}

	if err != nil {
		r.metrics.recordRoutingError()
		return err
	}
	return nil
}

// isMeaningful applies the optional external validator, failing open on
// absence or error.
func (r *Router) isMeaningful(ctx context.Context, text string) bool {
	if r.validator == nil {
		return true
	}
	ok, confidence, err := r.validator.Validate(ctx, text)
	if err != nil {
		trace.Logger(ctx).Warn("meaningfulness validator failed, accepting", "error", err)
		return true
	}
	if !ok {
		trace.Logger(ctx).Debug("candidate judged not meaningful", "confidence", confidence)
	}
	return ok
}

func (r *Router) routeQuestion(ctx context.Context, q *insight.Question) error {
	log := trace.Logger(ctx)

	if !r.isMeaningful(ctx, q.Text) {
		r.metrics.recordNotMeaningful()
		return nil
	}

	res, err := r.matcher.FindMatch(ctx, q.Text, r.questions, r.cfg.DuplicateThreshold)
	if err != nil {
		// Fail open: a missed dedup costs a duplicate item, a stall costs
		// the whole stream.
		log.Warn("embedding failed, treating question as new", "error", err)
	} else if res.Found {
		r.metrics.recordDuplicateDrop()
		log.Debug("dropping duplicate question", "matched_id", res.ID, "similarity", res.Similarity)
		return nil
	}

	q.Stamp(uuid.NewString(), time.Now())
	r.matcher.Register(r.questions, q.Text, q.ID, res.Vector)

	if err := r.dispatchQuestion(ctx, q); err != nil {
		return err
	}
	r.metrics.recordDispatch(dispatchQuestion)
	return nil
}

func (r *Router) routeAction(ctx context.Context, a *insight.Action) error {
	log := trace.Logger(ctx)

	if !r.isMeaningful(ctx, a.Description) {
		r.metrics.recordNotMeaningful()
		return nil
	}

	res, err := r.matcher.FindMatch(ctx, a.Description, r.actions, r.cfg.DuplicateThreshold)
	if err != nil {
		log.Warn("embedding failed, treating action as new", "error", err)
	} else if res.Found {
		// A near-duplicate action is not dropped: re-route as an update so
		// new details (owner, deadline) merge into the existing item.
		upd := &insight.ActionUpdate{
			ActionText: a.Description,
			Owner:      a.Owner,
			DueDate:    a.DueDate,
		}
		upd.Stamp(res.ID, time.Now())
		log.Debug("re-routing duplicate action as update", "matched_id", res.ID, "similarity", res.Similarity)

		if err := r.dispatchActionUpdate(ctx, upd); err != nil {
			return err
		}
		r.metrics.recordDispatch(dispatchActionUpdate)
		return nil
	}

	a.Stamp(uuid.NewString(), time.Now())
	r.matcher.Register(r.actions, a.Description, a.ID, res.Vector)

	if err := r.dispatchAction(ctx, a); err != nil {
		return err
	}
	r.metrics.recordDispatch(dispatchAction)
	return nil
}

func (r *Router) routeActionUpdate(ctx context.Context, u *insight.ActionUpdate) error {
	id, ok := r.resolve(ctx, u.ActionText, r.actions)
	if !ok {
		// Expected when an update streams in before its action has been
		// detected this cycle; a later batch usually resolves it.
		r.metrics.recordUnmatchedSkip()
		trace.Logger(ctx).Debug("skipping action_update with no resolvable target", "action_text", u.ActionText)
		return nil
	}

	u.Stamp(id, time.Now())
	if err := r.dispatchActionUpdate(ctx, u); err != nil {
		return err
	}
	r.metrics.recordDispatch(dispatchActionUpdate)
	return nil
}

func (r *Router) routeAnswer(ctx context.Context, a *insight.Answer) error {
	id, ok := r.resolve(ctx, a.QuestionText, r.questions)
	if !ok {
		r.metrics.recordUnmatchedSkip()
		trace.Logger(ctx).Debug("skipping answer with no resolvable question", "question_text", a.QuestionText)
		return nil
	}

	a.QuestionID = id
	a.Stamp(uuid.NewString(), time.Now())
	if err := r.dispatchAnswer(ctx, a); err != nil {
		return err
	}
	r.metrics.recordDispatch(dispatchAnswer)
	return nil
}

// resolve finds the tracked item an update/answer refers to: exact text
// match first, then similarity at the looser threshold. Embedding failure
// counts as unmatched (fail-open).
func (r *Router) resolve(ctx context.Context, text string, ix *match.Index) (string, bool) {
	if t, ok := ix.Exact(text); ok {
		return t.ID, true
	}
	res, err := r.matcher.FindMatch(ctx, text, ix, r.cfg.ResolveThreshold)
	if err != nil {
		trace.Logger(ctx).Warn("embedding failed while resolving reference", "error", err)
		return "", false
	}
	if !res.Found {
		return "", false
	}
	return res.ID, true
}

func (r *Router) dispatchQuestion(ctx context.Context, q *insight.Question) error {
	if r.handlers.Question == nil {
		return nil
	}
	if err := r.handlers.Question(ctx, q); err != nil {
		return apperrors.Wrap(err, apperrors.CodeHandlerFault, "question handler failed")
	}
	return nil
}

func (r *Router) dispatchAction(ctx context.Context, a *insight.Action) error {
	if r.handlers.Action == nil {
		return nil
	}
	if err := r.handlers.Action(ctx, a); err != nil {
		return apperrors.Wrap(err, apperrors.CodeHandlerFault, "action handler failed")
	}
	return nil
}

func (r *Router) dispatchActionUpdate(ctx context.Context, u *insight.ActionUpdate) error {
	if r.handlers.ActionUpdate == nil {
		return nil
	}
	if err := r.handlers.ActionUpdate(ctx, u); err != nil {
		return apperrors.Wrap(err, apperrors.CodeHandlerFault, "action_update handler failed")
	}
	return nil
}

func (r *Router) dispatchAnswer(ctx context.Context, a *insight.Answer) error {
	if r.handlers.Answer == nil {
		return nil
	}
	if err := r.handlers.Answer(ctx, a); err != nil {
		return apperrors.Wrap(err, apperrors.CodeHandlerFault, "answer handler failed")
	}
	return nil
}

// ActiveQuestions returns up to limit most recent tracked question texts.
func (r *Router) ActiveQuestions(limit int) []string {
	return tail(r.questions.Texts(), limit)
}

// ActiveActions returns up to limit most recent tracked action texts.
func (r *Router) ActiveActions(limit int) []string {
	return tail(r.actions.Texts(), limit)
}

func tail(texts []string, limit int) []string {
	if limit > 0 && len(texts) > limit {
		return texts[len(texts)-limit:]
	}
	return texts
}

// Metrics returns the router's counters for snapshotting.
func (r *Router) Metrics() *Metrics {
	return &r.metrics
}

// ClearState empties all tracked-item state. Safe to call repeatedly.
func (r *Router) ClearState() {
	r.questions.Clear()
	r.actions.Clear()
}
