package pool

import "github.com/prometheus/client_golang/prometheus"

// StatsSource is anything that can report pool statistics.
type StatsSource interface {
	Stats() Stats
}

// Collector exposes the statistics of a pool as prometheus metrics.
type Collector struct {
	src StatsSource

	size        *prometheus.Desc
	idle        *prometheus.Desc
	inUse       *prometheus.Desc
	claims      *prometheus.Desc
	timeouts    *prometheus.Desc
	allocated   *prometheus.Desc
	allocFailed *prometheus.Desc
	invalidated *prometheus.Desc
	expired     *prometheus.Desc
}

// NewCollector describes the pool metrics under the graphout_pool_ prefix,
// with labels constant for this pool (eg: the destination address).
func NewCollector(src StatsSource, labels prometheus.Labels) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("graphout", "pool", name), help, nil, labels)
	}
	return &Collector{
		src:         src,
		size:        desc("size", "Maximum number of pooled connections."),
		idle:        desc("idle", "Connections waiting in the pool."),
		inUse:       desc("in_use", "Connections currently claimed."),
		claims:      desc("claims_total", "Successful claims."),
		timeouts:    desc("claim_timeouts_total", "Claims that gave up waiting."),
		allocated:   desc("allocations_total", "Connections opened."),
		allocFailed: desc("allocation_failures_total", "Connections that could not be opened."),
		invalidated: desc("invalidations_total", "Connections discarded after a failed write."),
		expired:     desc("expirations_total", "Idle connections found dead on reuse."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.size
	ch <- c.idle
	ch <- c.inUse
	ch <- c.claims
	ch <- c.timeouts
	ch <- c.allocated
	ch <- c.allocFailed
	ch <- c.invalidated
	ch <- c.expired
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(s.Size))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.Idle))
	ch <- prometheus.MustNewConstMetric(c.inUse, prometheus.GaugeValue, float64(s.InUse))
	ch <- prometheus.MustNewConstMetric(c.claims, prometheus.CounterValue, float64(s.Claims))
	ch <- prometheus.MustNewConstMetric(c.timeouts, prometheus.CounterValue, float64(s.Timeouts))
	ch <- prometheus.MustNewConstMetric(c.allocated, prometheus.CounterValue, float64(s.Allocated))
	ch <- prometheus.MustNewConstMetric(c.allocFailed, prometheus.CounterValue, float64(s.AllocationFailures))
	ch <- prometheus.MustNewConstMetric(c.invalidated, prometheus.CounterValue, float64(s.Invalidated))
	ch <- prometheus.MustNewConstMetric(c.expired, prometheus.CounterValue, float64(s.Expired))
}
