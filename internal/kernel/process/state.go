package process

// State represents a process lifecycle state.
type State string

const (
	StateNew        State = "NEW"
	StateReady      State = "READY"
	StateRunning    State = "RUNNING"
	StateWaiting    State = "WAITING"
	StateTerminated State = "TERMINATED"
)

// transitions is the full state table. Anything not listed here is
// rejected with ErrInvalidTransition and leaves the PCB unchanged.
var transitions = map[State][]State{
	StateNew:     {StateReady, StateTerminated},
	StateReady:   {StateRunning, StateTerminated},
	StateRunning: {StateReady, StateWaiting, StateTerminated},
	StateWaiting: {StateReady, StateTerminated},
	// TERMINATED is terminal.
	StateTerminated: {},
}

// canTransition reports whether from -> to is in the state table.
func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
