package prometheus

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var numRunnerFailuresDesc = prometheus.NewDesc(
	"runner_pool_runner_failures_total",
	"Total number of runners that ended in the failed state",
	[]string{"pool", "platform", "reason"},
	nil,
)

type failurePermutation struct {
	pool     string
	platform string
	reason   string
}

// FailuresCollector counts failed runners grouped by pool, platform and
// failure reason.
type FailuresCollector struct {
	lock sync.RWMutex

	failures map[failurePermutation]int64
}

func (fc *FailuresCollector) RecordFailure(pool string, platform string, reason string) {
	failure := failurePermutation{
		pool:     pool,
		platform: platform,
		reason:   reason,
	}

	fc.lock.Lock()
	defer fc.lock.Unlock()

	fc.failures[failure]++
}

func (fc *FailuresCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- numRunnerFailuresDesc
}

func (fc *FailuresCollector) Collect(ch chan<- prometheus.Metric) {
	fc.lock.RLock()
	defer fc.lock.RUnlock()

	for failure, number := range fc.failures {
		ch <- prometheus.MustNewConstMetric(
			numRunnerFailuresDesc,
			prometheus.CounterValue,
			float64(number),
			failure.pool,
			failure.platform,
			failure.reason,
		)
	}
}

func NewFailuresCollector() *FailuresCollector {
	return &FailuresCollector{
		failures: make(map[failurePermutation]int64),
	}
}
