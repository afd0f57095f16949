package pipeline

import (
	"fmt"
	"slices"
	"time"
)

// State is a step of a pipeline run.
type State int

const (
	Idle State = iota
	Ingesting
	Transcribing
	Extracting
	Parsing
	Succeeded
	Failed
)

var stateNames = [...]string{"idle", "ingesting", "transcribing", "extracting", "parsing", "succeeded", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transitions are allowed.
func (s State) Terminal() bool { return s == Succeeded || s == Failed }

// Every non-terminal state may fail.
var transitions = map[State][]State{
	Idle:         {Ingesting, Failed},
	Ingesting:    {Transcribing, Failed},
	Transcribing: {Extracting, Failed},
	Extracting:   {Parsing, Failed},
	Parsing:      {Succeeded, Failed},
}

// CanTransition reports whether to directly follows s.
func (s State) CanTransition(to State) bool {
	return slices.Contains(transitions[s], to)
}

// Run is one pass of a clip through the pipeline.
type Run struct {
	ID      string
	Started time.Time

	state   State
	history []State
}

func newRun(id string, now time.Time) *Run {
	return &Run{ID: id, Started: now, state: Idle, history: []State{Idle}}
}

// State returns the current state.
func (r *Run) State() State { return r.state }

// History returns every state the run has been in, in order.
func (r *Run) History() []State { return slices.Clone(r.history) }

func (r *Run) advance(to State) error {
	if !r.state.CanTransition(to) {
		return fmt.Errorf("invalid transition %s -> %s", r.state, to)
	}
	r.state = to
	r.history = append(r.history, to)
	return nil
}
