package pool

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	prometheus_helper "gitlab.com/gitlab-org/runner-pool/helpers/prometheus"
)

const (
	FailureReasonProvisionTimeout = "provision_timeout"
	FailureReasonCreateFailed     = "create_failed"
	FailureReasonCredentialFailed = "credential_failed"
	FailureReasonRunnerFailed     = "runner_failed"
)

// MetricsSink receives the pool's observations. It is injected per pool so
// the pool itself doesn't depend on any metrics backend.
//
//go:generate mockery --name=MetricsSink --inpackage
type MetricsSink interface {
	PoolConfigured(pool string, minRunners, maxRunners int)
	PoolStatus(pool string, active bool)
	RunnerCounts(pool string, counts Counts)
	ScaleRequested(pool string)
	ScaleSucceeded(pool string, creation time.Duration)
	ScaleFailed(pool string, platform string, reason string)
	StateTransition(pool string, from, to State)
	InstanceExited(pool string, lifetime time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) PoolConfigured(string, int, int)      {}
func (noopMetrics) PoolStatus(string, bool)              {}
func (noopMetrics) RunnerCounts(string, Counts)          {}
func (noopMetrics) ScaleRequested(string)                {}
func (noopMetrics) ScaleSucceeded(string, time.Duration) {}
func (noopMetrics) ScaleFailed(string, string, string)   {}
func (noopMetrics) StateTransition(string, State, State) {}
func (noopMetrics) InstanceExited(string, time.Duration) {}

const (
	metricsNamespace = "runner_pool"
	metricsSubsystem = "pool"
)

var instanceLifetimeBuckets = []float64{60, 300, 600, 1800, 3600, 7200, 14400}

// PrometheusMetrics is the MetricsSink shared by all pools of an
// orchestrator. It is registered once as a prometheus.Collector.
type PrometheusMetrics struct {
	lock  sync.Mutex
	pools map[string]struct{}

	maxRunners      *prometheus.GaugeVec
	minRunners      *prometheus.GaugeVec
	currentRunners  *prometheus.GaugeVec
	idleRunners     *prometheus.GaugeVec
	busyRunners     *prometheus.GaugeVec
	startingRunners *prometheus.GaugeVec
	status          *prometheus.GaugeVec
	totalPools      prometheus.Gauge

	scaleRequests  *prometheus.CounterVec
	scaleFailures  *prometheus.CounterVec
	scaleSuccesses *prometheus.CounterVec
	transitions    *prometheus.CounterVec

	creationDuration *prometheus.HistogramVec
	instanceLifetime *prometheus.HistogramVec

	failures *prometheus_helper.FailuresCollector
}

func newGaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newCounterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		pools: make(map[string]struct{}),

		maxRunners:      newGaugeVec("max_runners", "Configured maximum number of runners", "pool"),
		minRunners:      newGaugeVec("min_runners", "Configured minimum number of runners", "pool"),
		currentRunners:  newGaugeVec("current_runners", "Number of active (idle or busy) runners", "pool"),
		idleRunners:     newGaugeVec("idle_runners", "Number of idle runners", "pool"),
		busyRunners:     newGaugeVec("busy_runners", "Number of busy runners", "pool"),
		startingRunners: newGaugeVec("starting_runners", "Number of runners being provisioned", "pool"),
		status:          newGaugeVec("status", "Pool status, 1 when scaling and 0 when paused", "pool"),
		totalPools: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "total",
			Help:      "Number of configured pools",
		}),

		scaleRequests:  newCounterVec("scale_requests_total", "Number of runner spawns requested", "pool"),
		scaleFailures:  newCounterVec("scale_failures_total", "Number of runner spawns that failed", "pool", "reason"),
		scaleSuccesses: newCounterVec("scale_successes_total", "Number of runner spawns that succeeded", "pool"),
		transitions: newCounterVec(
			"runner_state_transitions_total",
			"Number of runner state transitions",
			"pool", "from", "to",
		),

		creationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "instance_creation_duration_seconds",
				Help:      "Time from spawn request until the instance reported an address",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"pool"},
		),
		instanceLifetime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "instance_lifetime_seconds",
				Help:      "Lifetime of instances from creation until exit",
				Buckets:   instanceLifetimeBuckets,
			},
			[]string{"pool"},
		),

		failures: prometheus_helper.NewFailuresCollector(),
	}
}

func (m *PrometheusMetrics) PoolConfigured(pool string, minRunners, maxRunners int) {
	m.lock.Lock()
	m.pools[pool] = struct{}{}
	m.totalPools.Set(float64(len(m.pools)))
	m.lock.Unlock()

	m.minRunners.WithLabelValues(pool).Set(float64(minRunners))
	m.maxRunners.WithLabelValues(pool).Set(float64(maxRunners))
}

func (m *PrometheusMetrics) PoolStatus(pool string, active bool) {
	value := 0.0
	if active {
		value = 1
	}

	m.status.WithLabelValues(pool).Set(value)
}

func (m *PrometheusMetrics) RunnerCounts(pool string, counts Counts) {
	m.currentRunners.WithLabelValues(pool).Set(float64(counts.Active()))
	m.idleRunners.WithLabelValues(pool).Set(float64(counts.Idle))
	m.busyRunners.WithLabelValues(pool).Set(float64(counts.Busy))
	m.startingRunners.WithLabelValues(pool).Set(float64(counts.Starting))
}

func (m *PrometheusMetrics) ScaleRequested(pool string) {
	m.scaleRequests.WithLabelValues(pool).Inc()
}

func (m *PrometheusMetrics) ScaleSucceeded(pool string, creation time.Duration) {
	m.scaleSuccesses.WithLabelValues(pool).Inc()
	m.creationDuration.WithLabelValues(pool).Observe(creation.Seconds())
}

func (m *PrometheusMetrics) ScaleFailed(pool string, platform string, reason string) {
	m.scaleFailures.WithLabelValues(pool, reason).Inc()
	m.failures.RecordFailure(pool, platform, reason)
}

func (m *PrometheusMetrics) StateTransition(pool string, from, to State) {
	m.transitions.WithLabelValues(pool, string(from), string(to)).Inc()
}

func (m *PrometheusMetrics) InstanceExited(pool string, lifetime time.Duration) {
	m.instanceLifetime.WithLabelValues(pool).Observe(lifetime.Seconds())
}

func (m *PrometheusMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.maxRunners,
		m.minRunners,
		m.currentRunners,
		m.idleRunners,
		m.busyRunners,
		m.startingRunners,
		m.status,
		m.totalPools,
		m.scaleRequests,
		m.scaleFailures,
		m.scaleSuccesses,
		m.transitions,
		m.creationDuration,
		m.instanceLifetime,
		m.failures,
	}
}

// Describe implements prometheus.Collector.
func (m *PrometheusMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (m *PrometheusMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}
