package insight

import (
	"encoding/json"
	"strings"
	"time"

	apperrors "github.com/meetwise/streamcore/internal/errors"
)

// Kind tags a candidate object from the model stream.
type Kind string

const (
	KindQuestion     Kind = "question"
	KindAction       Kind = "action"
	KindActionUpdate Kind = "action_update"
	KindAnswer       Kind = "answer"
)

// Candidate is one structured object from the model output stream. Model-
// supplied id/timestamp fields are discarded at parse time; the router stamps
// server-generated values before dispatch.
type Candidate interface {
	CandidateKind() Kind
	// Stamp overwrites identity and timestamp with server-generated values.
	Stamp(id string, ts time.Time)
}

// Question asked during the meeting.
type Question struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Priority  Priority  `json:"priority"`
	Timestamp time.Time `json:"timestamp"`
}

func (q *Question) CandidateKind() Kind { return KindQuestion }
func (q *Question) Stamp(id string, ts time.Time) {
	q.ID = id
	q.Timestamp = ts
}

// Action item detected in the conversation.
type Action struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Owner       string    `json:"owner,omitempty"`
	DueDate     string    `json:"due_date,omitempty"`
	Priority    Priority  `json:"priority"`
	Timestamp   time.Time `json:"timestamp"`
}

func (a *Action) CandidateKind() Kind { return KindAction }
func (a *Action) Stamp(id string, ts time.Time) {
	a.ID = id
	a.Timestamp = ts
}

// ActionUpdate carries new details (owner, deadline) for an existing action,
// referenced by the action's original text.
type ActionUpdate struct {
	ID         string    `json:"id"`
	ActionText string    `json:"action_text"`
	Owner      string    `json:"owner,omitempty"`
	DueDate    string    `json:"due_date,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func (u *ActionUpdate) CandidateKind() Kind { return KindActionUpdate }
func (u *ActionUpdate) Stamp(id string, ts time.Time) {
	u.ID = id
	u.Timestamp = ts
}

// Answer resolves a previously tracked question, referenced by its text.
type Answer struct {
	ID           string    `json:"id"`
	QuestionID   string    `json:"question_id"`
	QuestionText string    `json:"question_text"`
	AnswerText   string    `json:"answer_text"`
	Timestamp    time.Time `json:"timestamp"`
}

func (a *Answer) CandidateKind() Kind { return KindAnswer }
func (a *Answer) Stamp(id string, ts time.Time) {
	a.ID = id
	a.Timestamp = ts
}

// wire is the untrusted superset shape the model emits.
type wire struct {
	Type         string `json:"type"`
	Text         string `json:"text"`
	Description  string `json:"description"`
	ActionText   string `json:"action_text"`
	QuestionText string `json:"question_text"`
	AnswerText   string `json:"answer_text"`
	Owner        string `json:"owner"`
	DueDate      string `json:"due_date"`
	Priority     string `json:"priority"`
}

// Parse validates one raw candidate object and returns the typed form.
// All violations return a CodeMalformedCandidate error; callers count and
// drop these without stopping the stream.
func Parse(raw json.RawMessage) (Candidate, error) {
	var w wire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeMalformedCandidate, "candidate is not a JSON object")
	}
	if strings.TrimSpace(w.Type) == "" {
		return nil, apperrors.New(apperrors.CodeMalformedCandidate, "candidate missing type field")
	}

	switch Kind(w.Type) {
	case KindQuestion:
		if strings.TrimSpace(w.Text) == "" {
			return nil, apperrors.New(apperrors.CodeMalformedCandidate, "question missing text")
		}
		return &Question{Text: w.Text, Priority: ParsePriority(w.Priority)}, nil

	case KindAction:
		if strings.TrimSpace(w.Description) == "" {
			return nil, apperrors.New(apperrors.CodeMalformedCandidate, "action missing description")
		}
		return &Action{
			Description: w.Description,
			Owner:       strings.TrimSpace(w.Owner),
			DueDate:     strings.TrimSpace(w.DueDate),
			Priority:    ParsePriority(w.Priority),
		}, nil

	case KindActionUpdate:
		if strings.TrimSpace(w.ActionText) == "" {
			return nil, apperrors.New(apperrors.CodeMalformedCandidate, "action_update missing action_text")
		}
		return &ActionUpdate{
			ActionText: w.ActionText,
			Owner:      strings.TrimSpace(w.Owner),
			DueDate:    strings.TrimSpace(w.DueDate),
		}, nil

	case KindAnswer:
		if strings.TrimSpace(w.QuestionText) == "" || strings.TrimSpace(w.AnswerText) == "" {
			return nil, apperrors.New(apperrors.CodeMalformedCandidate, "answer missing question_text or answer_text")
		}
		return &Answer{QuestionText: w.QuestionText, AnswerText: w.AnswerText}, nil

	default:
		return nil, apperrors.Newf(apperrors.CodeMalformedCandidate, "unsupported candidate type %q", w.Type)
	}
}
