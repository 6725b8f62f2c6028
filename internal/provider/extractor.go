package provider

import (
	"context"
	"encoding/json"
)

// ExtractRequest carries accumulated transcript context plus the session's
// active items, so the model can emit answer/action_update objects that
// reference them.
type ExtractRequest struct {
	Context         []string
	ActiveQuestions []string
	ActiveActions   []string
}

// Extractor runs the expensive LLM call over accumulated context and yields
// candidate objects in model output order. Cancelling ctx cancels the call.
// emit returning an error aborts the stream and surfaces that error.
type Extractor interface {
	Extract(ctx context.Context, req ExtractRequest, emit func(json.RawMessage) error) error
}

// Validator is the optional meaningfulness check applied to questions and
// actions before tracking. Absence and failure both fail open to "accept".
type Validator interface {
	Validate(ctx context.Context, text string) (meaningful bool, confidence float64, err error)
}
