package network

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"github.com/sirupsen/logrus"
)

const (
	backOffMinDelay             = 100 * time.Millisecond
	backOffMaxDelay             = 60 * time.Second
	backOffDelayFactor          = 2.0
	backOffDelayJitter          = true
	defaultRateLimitMaxAttempts = 5
	// RateLimit-ResetTime: Wed, 21 Oct 2015 07:28:00 GMT
	rateLimitResetTimeHeader = "RateLimit-ResetTime"
	retryAfterHeader         = "Retry-After"
)

var retryStatuses = map[int]struct{}{
	http.StatusRequestTimeout:      {},
	http.StatusTooManyRequests:     {},
	http.StatusInternalServerError: {},
	http.StatusBadGateway:          {},
	http.StatusServiceUnavailable:  {},
	http.StatusGatewayTimeout:      {},
}

// retryRequester retries rate limited and transient server failures. GitLab,
// Gitea and GitHub all answer 429 with either RateLimit-ResetTime or
// Retry-After, so the same policy serves every platform client.
type retryRequester struct {
	apiRequestCollector *APIRequestsCollector
	client              requester
	platform            string
	maxAttempts         int
	logger              logrus.FieldLogger
}

func newRetryRequester(client requester, apiRequestCollector *APIRequestsCollector) *retryRequester {
	return &retryRequester{
		apiRequestCollector: apiRequestCollector,
		client:              client,
		maxAttempts:         defaultRateLimitMaxAttempts,
		logger:              logrus.StandardLogger(),
	}
}

func (r *retryRequester) Do(req *http.Request) (*http.Response, error) {
	logger := r.logger.
		WithFields(logrus.Fields{
			"context":  "retry-requester",
			"platform": r.platform,
			"url":      req.URL.Redacted(),
			"method":   req.Method,
		})

	bo := &backoff.Backoff{
		Min:    backOffMinDelay,
		Max:    backOffMaxDelay,
		Factor: backOffDelayFactor,
		Jitter: backOffDelayJitter,
	}

	res, attempts, err := r.executeRequestWithRetries(req, bo, logger)

	r.apiRequestCollector.AddRetries(logger, r.platform, normalizedURI(req.URL.Path), req.Method, float64(attempts-1))
	return res, err
}

func (r *retryRequester) executeRequestWithRetries(req *http.Request, bo *backoff.Backoff, logger logrus.FieldLogger) (*http.Response, int, error) {
	var attempts int

	for {
		resp, err := r.client.Do(req)
		attempts++
		if err != nil {
			return nil, attempts, fmt.Errorf("couldn't execute %s against %s: %w", req.Method, req.URL.Redacted(), err)
		}

		if !shouldRetryRequest(resp) || attempts >= r.maxAttempts {
			return resp, attempts, nil
		}

		closeResponseBody(resp)

		if err := r.waitForRetry(req, resp, bo, logger); err != nil {
			return nil, attempts, err
		}

		if err := regenerateRequestBody(req); err != nil {
			return nil, attempts, err
		}
	}
}

func (r *retryRequester) waitForRetry(req *http.Request, resp *http.Response, bo *backoff.Backoff, logger logrus.FieldLogger) error {
	waitTime := r.calculateWaitTime(resp, bo)
	logger.
		WithFields(logrus.Fields{
			"status":   resp.StatusCode,
			"duration": waitTime,
		}).
		Infoln("Waiting before making the next call")

	timer := time.NewTimer(waitTime)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-req.Context().Done():
		return req.Context().Err()
	}
}

func regenerateRequestBody(req *http.Request) error {
	if req.GetBody == nil {
		return nil
	}

	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("failed to get body: %w", err)
	}

	req.Body = body
	return nil
}

func closeResponseBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func shouldRetryRequest(res *http.Response) bool {
	_, ok := retryStatuses[res.StatusCode]
	return ok || res.StatusCode >= 512
}

func (r *retryRequester) calculateWaitTime(resp *http.Response, bo *backoff.Backoff) time.Duration {
	if waitTime := parseResetTime(resp, r.logger); waitTime > 0 {
		return waitTime
	}

	if waitTime := parseRetryAfter(resp, r.logger); waitTime > 0 {
		return waitTime
	}

	return bo.Duration()
}

func parseResetTime(resp *http.Response, logger logrus.FieldLogger) time.Duration {
	resetTimeStr := resp.Header.Get(rateLimitResetTimeHeader)
	if resetTimeStr == "" {
		return 0
	}

	resetTime, err := time.Parse(time.RFC1123, resetTimeStr)
	if err != nil {
		logger.
			WithError(err).
			WithFields(logrus.Fields{
				"header":      rateLimitResetTimeHeader,
				"headerValue": resetTimeStr,
			}).
			Warnln("Couldn't parse rate limit header")
		return 0
	}

	return time.Until(resetTime)
}

func parseRetryAfter(resp *http.Response, logger logrus.FieldLogger) time.Duration {
	retryAfter := resp.Header.Get(retryAfterHeader)
	if retryAfter == "" {
		return 0
	}

	retrySeconds, err := strconv.Atoi(retryAfter)
	if err != nil {
		logger.
			WithError(err).
			WithFields(logrus.Fields{
				"header":      retryAfterHeader,
				"headerValue": retryAfter,
			}).
			Warnln("Couldn't parse retry after header")
		return 0
	}

	return time.Duration(retrySeconds) * time.Second
}

// normalizedURI replaces numeric ids and the owner/repo segments of Gitea and
// GitHub paths so the metric cardinality stays bounded.
func normalizedURI(path string) string {
	if path == "" || path == "/" {
		return path
	}

	segments := strings.Split(path, "/")

	for i, segment := range segments {
		if segment == "" {
			continue
		}
		if _, err := strconv.ParseInt(segment, 10, 64); err == nil {
			segments[i] = "{id}"
			continue
		}
		if i >= 1 {
			switch segments[i-1] {
			case "orgs":
				segments[i] = "{org}"
			case "repos":
				segments[i] = "{owner}"
				if i+1 < len(segments) && segments[i+1] != "" {
					segments[i+1] = "{repo}"
				}
			}
		}
	}

	return strings.Join(segments, "/")
}
