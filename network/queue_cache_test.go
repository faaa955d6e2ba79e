//go:build !integration

package network

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueDepthCache(t *testing.T) {
	cache := newQueueDepthCache(time.Minute)

	calls := 0
	fetch := func() (int, error) {
		calls++
		return 3, nil
	}

	depth, err := cache.get([]string{"linux", "docker"}, fetch)
	require.NoError(t, err)
	assert.Equal(t, 3, depth)

	depth, err = cache.get([]string{"docker", "linux"}, fetch)
	require.NoError(t, err)
	assert.Equal(t, 3, depth)
	assert.Equal(t, 1, calls, "label order must not matter")

	_, err = cache.get([]string{"arm64"}, fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestQueueDepthCacheDoesNotStoreErrors(t *testing.T) {
	cache := newQueueDepthCache(time.Minute)

	_, err := cache.get([]string{"linux"}, func() (int, error) {
		return 0, errors.New("boom")
	})
	assert.Error(t, err)

	depth, err := cache.get([]string{"linux"}, func() (int, error) {
		return 1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, depth)
}

func TestQueueDepthCacheExpires(t *testing.T) {
	cache := newQueueDepthCache(10 * time.Millisecond)

	calls := 0
	fetch := func() (int, error) {
		calls++
		return calls, nil
	}

	_, _ = cache.get(nil, fetch)
	time.Sleep(30 * time.Millisecond)

	depth, err := cache.get(nil, fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, depth)
}

func TestLabelsMatch(t *testing.T) {
	tests := map[string]struct {
		required []string
		offered  []string
		expected bool
	}{
		"untagged job": {
			offered:  []string{"linux"},
			expected: true,
		},
		"subset": {
			required: []string{"linux"},
			offered:  []string{"linux", "docker"},
			expected: true,
		},
		"missing label": {
			required: []string{"linux", "gpu"},
			offered:  []string{"linux", "docker"},
			expected: false,
		},
		"case insensitive": {
			required: []string{"Self-Hosted", "Linux"},
			offered:  []string{"self-hosted", "linux"},
			expected: true,
		},
		"act runner image suffix": {
			required: []string{"ubuntu-latest"},
			offered:  []string{"ubuntu-latest:docker://node:20-bookworm"},
			expected: true,
		},
	}

	for tn, tc := range tests {
		t.Run(tn, func(t *testing.T) {
			assert.Equal(t, tc.expected, labelsMatch(tc.required, tc.offered))
		})
	}
}

func TestQueueDepthCacheDisabled(t *testing.T) {
	cache := newQueueDepthCache(0)

	calls := 0
	for i := 0; i < 3; i++ {
		_, err := cache.get([]string{"linux"}, func() (int, error) {
			calls++
			return 0, nil
		})
		require.NoError(t, err)
	}

	assert.Equal(t, 3, calls)
}
