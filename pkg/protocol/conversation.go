package protocol

import "time"

// TurnRole identifies who produced a conversation turn.
type TurnRole string

const (
	RoleUser      TurnRole = "user"
	RoleAssistant TurnRole = "assistant"
	// RoleError marks a failed exchange shown to the user. Error turns are
	// never sent back to the model as history.
	RoleError TurnRole = "error"
)

// Turn is one entry of a conversation as seen by the user.
type Turn struct {
	Role      TurnRole  `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// Reply is the outcome of asking the assistant: exactly one of Text or Error is set.
type Reply struct {
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// Failed reports whether the reply carries an error.
func (r Reply) Failed() bool {
	return r.Error != ""
}

// Turn converts the reply into the conversation turn that records it.
func (r Reply) Turn() Turn {
	if r.Failed() {
		return Turn{Role: RoleError, Content: r.Error, CreatedAt: time.Now().UTC()}
	}
	return Turn{Role: RoleAssistant, Content: r.Text, CreatedAt: time.Now().UTC()}
}
