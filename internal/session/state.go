package session

// State is a step of the session state machine:
//
//	Idle -> Assembling -> AwaitingEngine -> (ToolPhase -> AwaitingEngine)* -> Streaming -> Persisted
//
// Any step may end in Failed or Cancelled instead.
type State int

const (
	Idle State = iota
	Assembling
	AwaitingEngine
	ToolPhase
	Streaming
	Persisted
	Failed
	Cancelled
)

var stateNames = [...]string{
	Idle:           "idle",
	Assembling:     "assembling",
	AwaitingEngine: "awaiting_engine",
	ToolPhase:      "tool_phase",
	Streaming:      "streaming",
	Persisted:      "persisted",
	Failed:         "failed",
	Cancelled:      "cancelled",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == Persisted || s == Failed || s == Cancelled
}
