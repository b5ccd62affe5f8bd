/*
2021 © Postgres.ai
*/

package sqlexec

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "chegar_sql"

// Collector exposes the client metrics snapshot to Prometheus.
type Collector struct {
	client *Client

	totalRequests       *prometheus.Desc
	successfulRequests  *prometheus.Desc
	failedRequests      *prometheus.Desc
	totalRetries        *prometheus.Desc
	averageResponseTime *prometheus.Desc
	activeRequests      *prometheus.Desc
	queuedRequests      *prometheus.Desc
}

// NewCollector creates a collector reading the client metrics on every scrape.
func NewCollector(client *Client) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "", name), help, nil, nil)
	}

	return &Collector{
		client:              client,
		totalRequests:       desc("requests_total", "Top-level statement calls."),
		successfulRequests:  desc("requests_successful_total", "Calls that returned a result."),
		failedRequests:      desc("requests_failed_total", "Calls that returned an error."),
		totalRetries:        desc("retries_total", "Repeated attempts across all calls."),
		averageResponseTime: desc("response_time_average_milliseconds", "Exponential moving average of call latency."),
		activeRequests:      desc("requests_active", "Calls holding an execution slot."),
		queuedRequests:      desc("requests_queued", "Calls waiting for an execution slot."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalRequests
	ch <- c.successfulRequests
	ch <- c.failedRequests
	ch <- c.totalRetries
	ch <- c.averageResponseTime
	ch <- c.activeRequests
	ch <- c.queuedRequests
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.client.Metrics()

	ch <- prometheus.MustNewConstMetric(c.totalRequests, prometheus.CounterValue, float64(s.TotalRequests))
	ch <- prometheus.MustNewConstMetric(c.successfulRequests, prometheus.CounterValue, float64(s.SuccessfulRequests))
	ch <- prometheus.MustNewConstMetric(c.failedRequests, prometheus.CounterValue, float64(s.FailedRequests))
	ch <- prometheus.MustNewConstMetric(c.totalRetries, prometheus.CounterValue, float64(s.TotalRetries))
	ch <- prometheus.MustNewConstMetric(c.averageResponseTime, prometheus.GaugeValue, s.AverageResponseTime)
	ch <- prometheus.MustNewConstMetric(c.activeRequests, prometheus.GaugeValue, float64(s.ActiveRequests))
	ch <- prometheus.MustNewConstMetric(c.queuedRequests, prometheus.GaugeValue, float64(s.QueuedRequests))
}
