package pool

import (
	"errors"
	"fmt"
	"slices"
)

var ErrInvalidTransition = errors.New("invalid runner state transition")

type State string

const (
	StateStarting State = "starting"
	StateIdle     State = "idle"
	StateBusy     State = "busy"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
	StateFailed   State = "failed"
)

var transitions = map[State][]State{
	StateStarting: {StateIdle, StateFailed, StateStopping},
	StateIdle:     {StateBusy, StateStopping, StateStopped, StateFailed},
	StateBusy:     {StateStopping, StateStopped, StateFailed},
	StateStopping: {StateStopped, StateFailed},
}

// IsTerminal reports whether the runner is gone for good. Terminal runners
// are pruned on the next tick.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

// IsActive reports whether the runner has a booted instance that can take
// a job.
func (s State) IsActive() bool {
	return s == StateIdle || s == StateBusy
}

func (s State) CanTransitionTo(next State) bool {
	return slices.Contains(transitions[s], next)
}

func checkTransition(from, to State) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	return nil
}
