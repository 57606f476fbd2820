package engine

import (
	"fmt"
	"slices"
)

// State is the phase of one pipeline run.
type State int

const (
	Idle State = iota
	Extracting
	ParsingOutput
	Correlating
	Emitted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Extracting:
		return "Extracting"
	case ParsingOutput:
		return "ParsingOutput"
	case Correlating:
		return "Correlating"
	case Emitted:
		return "Emitted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Extracting may go straight to Emitted when there is no transcript.
var transitions = map[State][]State{
	Idle:          {Extracting},
	Extracting:    {ParsingOutput, Emitted},
	ParsingOutput: {Correlating},
	Correlating:   {Emitted},
	Emitted:       {Idle},
}

// run tracks the state of a single pipeline invocation. It is owned by one
// goroutine and never shared.
type run struct {
	state State
}

func (r *run) advance(to State) error {
	if !slices.Contains(transitions[r.state], to) {
		return fmt.Errorf("invalid pipeline transition %s -> %s", r.state, to)
	}
	r.state = to
	return nil
}
