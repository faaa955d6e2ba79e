//go:build !integration

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_Run(t *testing.T) {
	runErr := errors.New("runErr")

	tests := map[string]struct {
		calls         []error
		shouldRetry   bool
		expectedErr   error
		expectedCalls int
	}{
		"no error should succeed": {
			calls:         []error{nil},
			shouldRetry:   false,
			expectedErr:   nil,
			expectedCalls: 1,
		},
		"one error succeed on second call": {
			calls:         []error{runErr, nil},
			shouldRetry:   true,
			expectedErr:   nil,
			expectedCalls: 2,
		},
		"on error should not retry": {
			calls:         []error{runErr, nil},
			shouldRetry:   false,
			expectedErr:   runErr,
			expectedCalls: 1,
		},
	}

	for tn, tt := range tests {
		t.Run(tn, func(t *testing.T) {
			calls := 0
			run := func(_ context.Context) (int, error) {
				err := tt.calls[calls]
				calls++
				return calls, err
			}

			_, err := NewWithValue(run).
				WithBackoff(time.Millisecond, time.Millisecond).
				WithCheck(func(_ int, _ error) bool { return tt.shouldRetry }).
				RunValue(context.Background())

			assert.Equal(t, tt.expectedErr, err)
			assert.Equal(t, tt.expectedCalls, calls)
		})
	}
}

func TestRetry_WithMaxTries(t *testing.T) {
	runErr := errors.New("runErr")

	calls := 0
	_, err := NewWithValue(func(_ context.Context) (struct{}, error) {
		calls++
		return struct{}{}, runErr
	}).
		WithBackoff(time.Millisecond, time.Millisecond).
		WithMaxTries(3).
		RunValue(context.Background())

	assert.ErrorIs(t, err, runErr)
	assert.Equal(t, 3, calls)
}

func TestRetry_RunValue(t *testing.T) {
	calls := 0
	value, err := NewWithValue(func(_ context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("not yet")
		}
		return "done", nil
	}).
		WithFixedInterval(time.Millisecond).
		RunValue(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "done", value)
	assert.Equal(t, 2, calls)
}

func TestRetry_ContextCancelled(t *testing.T) {
	runErr := errors.New("runErr")
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := NewWithValue(func(_ context.Context) (struct{}, error) {
		calls++
		cancel()
		return struct{}{}, runErr
	}).
		WithFixedInterval(time.Hour).
		RunValue(ctx)

	assert.ErrorIs(t, err, runErr)
	assert.Equal(t, 1, calls)
}

func TestRetry_WithLogrus(t *testing.T) {
	logger, hook := test.NewNullLogger()

	calls := 0
	_, err := NewWithValue(func(_ context.Context) (struct{}, error) {
		calls++
		if calls == 1 {
			return struct{}{}, errors.New("flaky")
		}
		return struct{}{}, nil
	}).
		WithBackoff(time.Millisecond, time.Millisecond).
		WithLogrus(logrus.NewEntry(logger)).
		RunValue(context.Background())

	require.NoError(t, err)
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, "Retrying...", hook.LastEntry().Message)
	assert.Equal(t, 1, hook.LastEntry().Data["tries"])
}
