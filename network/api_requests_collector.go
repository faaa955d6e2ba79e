package network

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type apiEndpoint string

const (
	apiEndpointCreateRunner      apiEndpoint = "create_runner"
	apiEndpointDeleteRunner      apiEndpoint = "delete_runner"
	apiEndpointListRunners       apiEndpoint = "list_runners"
	apiEndpointRegistrationToken apiEndpoint = "registration_token"
	apiEndpointJITConfig         apiEndpoint = "jit_config"
	apiEndpointListJobs          apiEndpoint = "list_jobs"
	apiEndpointVersion           apiEndpoint = "version"
)

// clientError marks a request that never produced an HTTP status.
const clientError = -100

var (
	_ prometheus.Collector = new(APIRequestsCollector)

	requestDurationBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
)

type APIRequestsCollector struct {
	lock sync.RWMutex

	statuses  *prometheus.CounterVec
	durations *prometheus.HistogramVec
	retries   *prometheus.CounterVec
}

func NewAPIRequestsCollector() *APIRequestsCollector {
	return newAPIRequestCollectorWithBuckets(requestDurationBuckets)
}

func newAPIRequestCollectorWithBuckets(buckets []float64) *APIRequestsCollector {
	return &APIRequestsCollector{
		statuses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runner_pool_api_request_statuses_total",
				Help: "The total number of CI platform API requests, partitioned by platform, endpoint, status and method.",
			},
			[]string{"platform", "endpoint", "status", "method"},
		),
		durations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "runner_pool_api_request_duration_seconds",
				Help:    "Latency histogram of CI platform API requests, partitioned by platform, endpoint, status_class and method.",
				Buckets: buckets,
			},
			[]string{"platform", "endpoint", "status_class", "method"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runner_pool_api_request_retries_total",
				Help: "The total number of retries made while completing CI platform API requests, partitioned by platform, path and method.",
			},
			[]string{"platform", "path", "method"},
		),
	}
}

// Observe times fn and records the status and method it returns. Requests
// that failed before a response was received are not recorded.
func (rc *APIRequestsCollector) Observe(
	logger logrus.FieldLogger,
	platform string,
	endpoint apiEndpoint,
	fn func() (int, string),
) {
	requestStart := time.Now()
	status, method := fn()

	if status == clientError {
		return
	}

	err := rc.observe(platform, endpoint, status, method, time.Since(requestStart).Seconds())
	if err != nil {
		logger.WithError(err).Warning("Updating apiRequestsCollector")
	}
}

func (rc *APIRequestsCollector) observe(
	platform string,
	endpoint apiEndpoint,
	status int,
	method string,
	duration float64,
) error {
	rc.lock.Lock()
	defer rc.lock.Unlock()

	ep := string(endpoint)
	md := strings.ToLower(method)

	statusCounter, err := rc.statuses.GetMetricWith(prometheus.Labels{
		"platform": platform,
		"endpoint": ep,
		"status":   strconv.Itoa(status),
		"method":   md,
	})
	if err != nil {
		return fmt.Errorf("requesting status counter: %w", err)
	}
	statusCounter.Inc()

	durationHist, err := rc.durations.GetMetricWith(prometheus.Labels{
		"platform":     platform,
		"endpoint":     ep,
		"status_class": statusClass(status),
		"method":       md,
	})
	if err != nil {
		return fmt.Errorf("requesting durations histogram: %w", err)
	}

	durationHist.Observe(duration)

	return nil
}

// AddRetries adds val to the retries counter of the given platform, path
// and method.
func (rc *APIRequestsCollector) AddRetries(logger logrus.FieldLogger, platform string, path string, method string, val float64) {
	if val <= 0 {
		return
	}

	rc.lock.Lock()
	defer rc.lock.Unlock()

	retriesCounter, err := rc.retries.GetMetricWith(prometheus.Labels{
		"platform": platform,
		"path":     path,
		"method":   strings.ToLower(method),
	})
	if err != nil {
		logger.WithError(err).Warning("Updating apiRequestsCollector")
		return
	}
	retriesCounter.Add(val)
}

// Describe implements prometheus.Collector.
func (rc *APIRequestsCollector) Describe(ch chan<- *prometheus.Desc) {
	rc.statuses.Describe(ch)
	rc.durations.Describe(ch)
	rc.retries.Describe(ch)
}

// Collect implements prometheus.Collector.
func (rc *APIRequestsCollector) Collect(ch chan<- prometheus.Metric) {
	rc.lock.RLock()
	defer rc.lock.RUnlock()

	rc.statuses.Collect(ch)
	rc.durations.Collect(ch)
	rc.retries.Collect(ch)
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	case status >= 100:
		return "1xx"
	default:
		return "unknown"
	}
}
