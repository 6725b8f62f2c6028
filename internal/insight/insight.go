package insight

// Insight is a resolved item handed to the evolution tracker after routing.
// Type is the semantic kind ("open_question", "action_item"); evolution only
// ever compares insights of the same Type.
type Insight struct {
	ID         string   `json:"id"`
	Type       string   `json:"type"`
	Content    string   `json:"content"`
	Priority   Priority `json:"priority"`
	AssignedTo string   `json:"assigned_to,omitempty"`
	DueDate    string   `json:"due_date,omitempty"`
}

// Semantic insight types.
const (
	TypeOpenQuestion = "open_question"
	TypeActionItem   = "action_item"
)
