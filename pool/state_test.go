//go:build !integration

package pool

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStates = []State{StateStarting, StateIdle, StateBusy, StateStopping, StateStopped, StateFailed}

func stateGenerator() gopter.Gen {
	return gen.IntRange(0, len(allStates)-1).Map(func(i int) State {
		return allStates[i]
	})
}

// stateRank orders states along starting, idle, busy, stopping, terminal.
var stateRank = map[State]int{
	StateStarting: 0,
	StateIdle:     1,
	StateBusy:     2,
	StateStopping: 3,
	StateStopped:  4,
	StateFailed:   4,
}

func TestStateTransitionProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("terminal states are never left", prop.ForAll(
		func(from, to State) bool {
			return !from.IsTerminal() || !from.CanTransitionTo(to)
		},
		stateGenerator(),
		stateGenerator(),
	))

	properties.Property("transitions only move forward", prop.ForAll(
		func(from, to State) bool {
			return !from.CanTransitionTo(to) || stateRank[to] > stateRank[from]
		},
		stateGenerator(),
		stateGenerator(),
	))

	properties.Property("no state transitions to itself", prop.ForAll(
		func(s State) bool {
			return !s.CanTransitionTo(s)
		},
		stateGenerator(),
	))

	properties.Property("invalid transitions return ErrInvalidTransition", prop.ForAll(
		func(from, to State) bool {
			err := checkTransition(from, to)
			if from.CanTransitionTo(to) {
				return err == nil
			}
			return assert.ErrorIs(t, err, ErrInvalidTransition)
		},
		stateGenerator(),
		stateGenerator(),
	))

	properties.TestingRun(t)
}

func TestStateClassification(t *testing.T) {
	tests := map[State]struct {
		terminal bool
		active   bool
	}{
		StateStarting: {},
		StateIdle:     {active: true},
		StateBusy:     {active: true},
		StateStopping: {},
		StateStopped:  {terminal: true},
		StateFailed:   {terminal: true},
	}

	require.Len(t, tests, len(allStates))

	for state, tc := range tests {
		t.Run(string(state), func(t *testing.T) {
			assert.Equal(t, tc.terminal, state.IsTerminal())
			assert.Equal(t, tc.active, state.IsActive())
		})
	}
}

func TestCheckTransition(t *testing.T) {
	assert.NoError(t, checkTransition(StateStarting, StateIdle))
	assert.NoError(t, checkTransition(StateBusy, StateStopping))

	err := checkTransition(StateStopped, StateIdle)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.EqualError(t, err, "invalid runner state transition: stopped -> idle")
}

func TestTargetSizeProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	bounds := gopter.CombineGens(gen.IntRange(0, 20), gen.IntRange(0, 20))

	properties.Property("target stays within min and max", prop.ForAll(
		func(b []interface{}, depth int) bool {
			lo, hi := b[0].(int), b[1].(int)
			if lo > hi {
				lo, hi = hi, lo
			}

			target := targetSize(lo, hi, depth)
			return target >= lo && target <= hi
		},
		bounds,
		gen.IntRange(-10, 100),
	))

	properties.Property("no demand converges to min", prop.ForAll(
		func(b []interface{}, depth int) bool {
			lo, hi := b[0].(int), b[1].(int)
			if lo > hi {
				lo, hi = hi, lo
			}

			return targetSize(lo, hi, depth) == lo
		},
		bounds,
		gen.IntRange(-10, 0),
	))

	properties.Property("target grows with demand", prop.ForAll(
		func(depth, extra int) bool {
			return targetSize(1, 10, depth) <= targetSize(1, 10, depth+extra)
		},
		gen.IntRange(0, 50),
		gen.IntRange(0, 50),
	))

	properties.TestingRun(t)
}

func TestTargetSize(t *testing.T) {
	tests := map[string]struct {
		min, max, depth int
		expected        int
	}{
		"no demand":          {min: 1, max: 3, depth: 0, expected: 1},
		"demand within max":  {min: 1, max: 10, depth: 3, expected: 4},
		"demand above max":   {min: 1, max: 3, depth: 5, expected: 3},
		"negative demand":    {min: 2, max: 3, depth: -4, expected: 2},
		"zero sized pool":    {min: 0, max: 0, depth: 7, expected: 0},
		"scale from nothing": {min: 0, max: 5, depth: 2, expected: 2},
	}

	for tn, tc := range tests {
		t.Run(tn, func(t *testing.T) {
			assert.Equal(t, tc.expected, targetSize(tc.min, tc.max, tc.depth))
		})
	}
}
