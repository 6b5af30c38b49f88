package task

import "fmt"

// State is the execution state of a Task.
type State int32

const (
	Pending State = iota
	Ready
	Running
	Completed
	Failed
	Skipped
	Cancelled
)

var stateNames = [...]string{"Pending", "Ready", "Running", "Completed", "Failed", "Skipped", "Cancelled"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int32(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s >= Completed
}

// transitions lists the legal moves. Running -> Ready is a retry after the
// rank running the task became unreachable.
var transitions = map[State][]State{
	Pending: {Ready, Skipped, Cancelled},
	Ready:   {Running, Failed, Cancelled},
	Running: {Completed, Failed, Cancelled, Ready},
}

// CanTransition reports whether s may move to next.
func (s State) CanTransition(next State) bool {
	for _, to := range transitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// MarshalText renders the state name, so reports print "Completed" rather
// than a number.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown task state %q", string(b))
}
