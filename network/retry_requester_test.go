//go:build !integration

package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jpillora/backoff"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestRetryRequester(client requester) *retryRequester {
	rr := newRetryRequester(client, NewAPIRequestsCollector())
	rr.maxAttempts = 3
	rr.platform = "test"
	logger, _ := test.NewNullLogger()
	rr.logger = logger
	return rr
}

func tooManyRequests(header, value string) *http.Response {
	res := &http.Response{
		StatusCode: http.StatusTooManyRequests,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader("")),
	}
	if header != "" {
		res.Header.Set(header, value)
	}
	return res
}

func TestNewRetryRequester(t *testing.T) {
	collector := NewAPIRequestsCollector()
	rr := newRetryRequester(http.DefaultClient, collector)

	assert.Equal(t, collector, rr.apiRequestCollector)
	assert.Equal(t, http.DefaultClient, rr.client)
	assert.Equal(t, defaultRateLimitMaxAttempts, rr.maxAttempts)
	assert.NotNil(t, rr.logger)
}

func TestRetryRequester_Do(t *testing.T) {
	cancelledCtx, cancel := context.WithCancel(context.Background())
	cancel()

	bodyIs := func(expected string) func(*http.Request) bool {
		return func(req *http.Request) bool {
			raw, _ := io.ReadAll(req.Body)
			return string(raw) == expected
		}
	}

	tests := map[string]struct {
		request          func() *http.Request
		setup            func(t *testing.T, mr *mockRequester)
		expectedErr      string
		expectedStatus   int
		expectedDuration time.Duration
	}{
		"success": {
			request: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "http://gitlab.example.com", nil)
			},
			setup: func(t *testing.T, mr *mockRequester) {
				mr.On("Do", mock.Anything).Once().Return(&http.Response{StatusCode: http.StatusOK}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		"client error": {
			request: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "http://gitlab.example.com", nil)
			},
			setup: func(t *testing.T, mr *mockRequester) {
				mr.On("Do", mock.Anything).Once().Return(nil, errors.New("connection refused"))
			},
			expectedErr: "couldn't execute GET against http://gitlab.example.com: connection refused",
		},
		"non retry-able status code": {
			request: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "http://gitlab.example.com", nil)
			},
			setup: func(t *testing.T, mr *mockRequester) {
				mr.On("Do", mock.Anything).Once().Return(&http.Response{StatusCode: http.StatusForbidden}, nil)
			},
			expectedStatus: http.StatusForbidden,
		},
		"retry-able status code resends the body": {
			request: func() *http.Request {
				return httptest.NewRequest(http.MethodPost, "http://gitlab.example.com", strings.NewReader("payload"))
			},
			setup: func(t *testing.T, mr *mockRequester) {
				res := &http.Response{StatusCode: http.StatusBadGateway, Body: io.NopCloser(strings.NewReader(""))}
				first := mr.On("Do", mock.Anything).Once().Return(res, nil)
				mr.On("Do", mock.MatchedBy(bodyIs("payload"))).Once().
					Return(&http.Response{StatusCode: http.StatusCreated}, nil).
					NotBefore(first)
			},
			expectedStatus:   http.StatusCreated,
			expectedDuration: backOffMinDelay,
		},
		"retry after header": {
			request: func() *http.Request {
				return httptest.NewRequest(http.MethodPost, "http://gitea.example.com", strings.NewReader("payload"))
			},
			setup: func(t *testing.T, mr *mockRequester) {
				first := mr.On("Do", mock.Anything).Once().Return(tooManyRequests(retryAfterHeader, "1"), nil)
				mr.On("Do", mock.MatchedBy(bodyIs("payload"))).Once().
					Return(&http.Response{StatusCode: http.StatusOK}, nil).
					NotBefore(first)
			},
			expectedStatus:   http.StatusOK,
			expectedDuration: time.Second,
		},
		"reset time header": {
			request: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "http://gitlab.example.com", nil)
			},
			setup: func(t *testing.T, mr *mockRequester) {
				reset := time.Now().Add(2 * time.Second).Format(time.RFC1123)
				first := mr.On("Do", mock.Anything).Once().Return(tooManyRequests(rateLimitResetTimeHeader, reset), nil)
				mr.On("Do", mock.Anything).Once().
					Return(&http.Response{StatusCode: http.StatusOK}, nil).
					NotBefore(first)
			},
			expectedStatus:   http.StatusOK,
			expectedDuration: 2 * time.Second,
		},
		"request ctx cancellation": {
			request: func() *http.Request {
				return httptest.NewRequestWithContext(cancelledCtx, http.MethodGet, "http://gitlab.example.com", nil)
			},
			setup: func(t *testing.T, mr *mockRequester) {
				mr.On("Do", mock.Anything).Once().Return(tooManyRequests("", ""), nil)
			},
			expectedErr: context.Canceled.Error(),
		},
		"retries exhausted": {
			request: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "http://gitlab.example.com", nil)
			},
			setup: func(t *testing.T, mr *mockRequester) {
				mr.On("Do", mock.Anything).Times(3).Return(func(*http.Request) *http.Response {
					return tooManyRequests("", "")
				}, nil)
			},
			expectedStatus: http.StatusTooManyRequests,
		},
	}

	for tn, tc := range tests {
		t.Run(tn, func(t *testing.T) {
			mr := newMockRequester(t)
			tc.setup(t, mr)

			start := time.Now()
			res, err := newTestRetryRequester(mr).Do(tc.request())
			elapsed := time.Since(start)

			if tc.expectedDuration > 0 {
				assert.InDelta(t, tc.expectedDuration, elapsed, float64(time.Second))
			}

			if tc.expectedErr != "" {
				assert.ErrorContains(t, err, tc.expectedErr)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, res)
			assert.Equal(t, tc.expectedStatus, res.StatusCode)
		})
	}
}

type trackingReadCloser struct {
	io.Reader
	closed bool
}

func (t *trackingReadCloser) Close() error {
	t.closed = true
	return nil
}

func TestRetryRequester_Do_ResponseBodyClosedOnRetry(t *testing.T) {
	var bodies []*trackingReadCloser

	mr := newMockRequester(t)
	mr.On("Do", mock.Anything).Times(3).Return(func(*http.Request) *http.Response {
		body := &trackingReadCloser{Reader: strings.NewReader("rate limited")}
		bodies = append(bodies, body)
		return &http.Response{StatusCode: http.StatusTooManyRequests, Body: body}
	}, nil)

	res, err := newTestRetryRequester(mr).Do(httptest.NewRequest(http.MethodGet, "http://example.com", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, res.StatusCode)
	require.Len(t, bodies, 3)

	for i, body := range bodies[:2] {
		assert.True(t, body.closed, "response body %d should be closed before retrying", i)
	}
	assert.False(t, bodies[2].closed, "the returned body belongs to the caller")
}

func TestRetryRequester_Do_AgainstServer(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write(body)
	}))
	defer server.Close()

	rr := newTestRetryRequester(http.DefaultClient)
	rr.maxAttempts = 5

	req, err := http.NewRequest(http.MethodPost, server.URL, strings.NewReader("payload"))
	require.NoError(t, err)

	res, err := rr.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(body))
	assert.Equal(t, 3, requests)
}

func TestRetryRequester_calculateWaitTime(t *testing.T) {
	tests := map[string]struct {
		headers  map[string]string
		expected time.Duration
	}{
		"reset time": {
			headers:  map[string]string{rateLimitResetTimeHeader: time.Now().Add(2 * time.Minute).Format(time.RFC1123)},
			expected: 2 * time.Minute,
		},
		"invalid reset time falls back to retry after": {
			headers: map[string]string{
				rateLimitResetTimeHeader: "soon",
				retryAfterHeader:         "120",
			},
			expected: 2 * time.Minute,
		},
		"retry after": {
			headers:  map[string]string{retryAfterHeader: "30"},
			expected: 30 * time.Second,
		},
		"invalid headers fall back to backoff": {
			headers: map[string]string{
				rateLimitResetTimeHeader: "soon",
				retryAfterHeader:         "later",
			},
			expected: 100 * time.Millisecond,
		},
	}

	for tn, tc := range tests {
		t.Run(tn, func(t *testing.T) {
			res := &http.Response{Header: http.Header{}}
			for k, v := range tc.headers {
				res.Header.Set(k, v)
			}

			rr := newTestRetryRequester(nil)
			duration := rr.calculateWaitTime(res, &backoff.Backoff{})

			assert.InDelta(t, tc.expected, duration, float64(time.Second))
		})
	}
}

func TestShouldRetryRequest(t *testing.T) {
	for status, shouldRetry := range map[int]bool{
		http.StatusRequestTimeout:      true,
		http.StatusTooManyRequests:     true,
		http.StatusInternalServerError: true,
		http.StatusBadGateway:          true,
		http.StatusServiceUnavailable:  true,
		http.StatusGatewayTimeout:      true,
		515:                            true,
		http.StatusOK:                  false,
		http.StatusNotFound:            false,
		http.StatusPermanentRedirect:   false,
	} {
		t.Run(fmt.Sprintf("status %d", status), func(t *testing.T) {
			assert.Equal(t, shouldRetry, shouldRetryRequest(&http.Response{StatusCode: status}))
		})
	}
}

func TestNormalizedURI(t *testing.T) {
	tests := map[string]string{
		"/":                                        "/",
		"/api/v4/user/runners":                     "/api/v4/user/runners",
		"/api/v4/runners/12345":                    "/api/v4/runners/{id}",
		"/api/v4/projects/7/jobs":                  "/api/v4/projects/{id}/jobs",
		"/api/v1/orgs/acme/actions/runners":        "/api/v1/orgs/{org}/actions/runners",
		"/repos/acme/widgets/actions/runners/42":   "/repos/{owner}/{repo}/actions/runners/{id}",
		"/api/v1/admin/runners/registration-token": "/api/v1/admin/runners/registration-token",
		"/1/":                                      "/{id}/",
	}

	for path, expected := range tests {
		t.Run(path, func(t *testing.T) {
			assert.Equal(t, expected, normalizedURI(path))
		})
	}
}
