package engine

import "fmt"

// State is the orchestrator's position in a run.
type State int

const (
	StateIdle State = iota
	StateResolvingCheckpoint
	StateStreaming
	StateSimulating
	StateReconciling
	StateWriting
	StateCollectionDone
	StateRunDone
	StateAborted
)

var stateNames = [...]string{
	StateIdle:                "Idle",
	StateResolvingCheckpoint: "ResolvingCheckpoint",
	StateStreaming:           "Streaming",
	StateSimulating:          "Simulating",
	StateReconciling:         "Reconciling",
	StateWriting:             "Writing",
	StateCollectionDone:      "CollectionDone",
	StateRunDone:             "RunDone",
	StateAborted:             "Aborted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// transitions lists the legal successors of each state.
var transitions = map[State][]State{
	StateIdle:                {StateResolvingCheckpoint, StateStreaming, StateCollectionDone, StateAborted},
	StateResolvingCheckpoint: {StateStreaming, StateCollectionDone, StateAborted},
	StateStreaming:           {StateSimulating, StateReconciling, StateWriting, StateCollectionDone, StateAborted},
	StateSimulating:          {StateStreaming, StateAborted},
	StateReconciling:         {StateStreaming, StateAborted},
	StateWriting:             {StateStreaming, StateAborted},
	StateCollectionDone:      {StateIdle, StateRunDone, StateAborted},
}

// canTransition reports whether from → to is legal.
func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateRunDone || s == StateAborted
}
