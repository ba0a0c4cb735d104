package firebox

import "github.com/jiandong01/firebox/ferrors"

// State is a Sandbox's lifecycle phase, per spec.md §3/§4.C.
type State string

const (
	StateCreated  State = "CREATED"
	StateRunning  State = "RUNNING"
	StateClosed   State = "CLOSED"
	StateReleased State = "RELEASED"
)

// transitions encodes the state table from spec.md §4.C. RELEASED has no
// outgoing edges: it is terminal.
var transitions = map[State]map[State]bool{
	StateCreated: {StateRunning: true},
	StateRunning: {StateClosed: true, StateReleased: true},
	StateClosed:  {StateRunning: true, StateReleased: true},
}

// checkTransition rejects an illegal state change with InvalidState,
// matching spec.md §4.C: "RELEASED | any | — | rejected with InvalidState".
func checkTransition(from, to State) error {
	if from == StateReleased {
		return ferrors.New(ferrors.KindInvalidState, "Sandbox.transition",
			"sandbox is released, no further operations are permitted", nil)
	}
	if transitions[from][to] {
		return nil
	}
	return ferrors.New(ferrors.KindInvalidState, "Sandbox.transition",
		"illegal transition from "+string(from)+" to "+string(to), nil)
}
