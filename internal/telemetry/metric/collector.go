package metric

import "github.com/prometheus/client_golang/prometheus"

// StateCounter reports the number of live sessions per state name.
type StateCounter interface {
	StateCounts() map[string]int
}

// Collector reports wamesh_sessions{state} at scrape time.
type Collector struct {
	source StateCounter
	desc   *prometheus.Desc
}

// NewCollector creates a collector reading from source.
func NewCollector(source StateCounter) *Collector {
	return &Collector{
		source: source,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sessions"),
			"Live sessions by state",
			[]string{"state"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for state, n := range c.source.StateCounts() {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(n), state)
	}
}
