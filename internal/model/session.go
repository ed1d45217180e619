package model

import "time"

// Session state constants, mirroring loader states that are visible
// between calls.
const (
	StateStarted  = "started"
	StatePartial  = "partial"
	StateFull     = "full"
	StateCanceled = "canceled"
	StateFaulted  = "faulted"
)

// validTransitions maps each state to the set of states it may transition to.
var validTransitions = map[string]map[string]bool{
	StateStarted: {
		StatePartial:  true,
		StateFull:     true,
		StateCanceled: true,
		StateFaulted:  true,
	},
	StatePartial: {
		StatePartial:  true,
		StateFull:     true,
		StateCanceled: true,
		StateFaulted:  true,
	},
}

// ValidTransition reports whether transitioning from one state to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal reports whether a session in this state accepts no more calls.
func IsTerminal(state string) bool {
	return state == StateFull || state == StateCanceled || state == StateFaulted
}

// Session is the ledger record of one partial loading session.
type Session struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	State      string     `json:"state"`
	Count      int        `json:"count"`
	DelayMS    int        `json:"delay_ms"`
	TimeoutMS  int        `json:"timeout_ms"`
	Paging     int        `json:"paging"`
	Calls      int        `json:"calls"`
	Items      int        `json:"items"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Chunk records a single call made against a session.
type Chunk struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Seq        int       `json:"seq"`
	Size       int       `json:"size"`
	State      string    `json:"state"`
	DurationMS int       `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
