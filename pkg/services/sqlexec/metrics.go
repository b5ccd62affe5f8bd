/*
2021 © Postgres.ai
*/

package sqlexec

import (
	"fmt"
	"sync"
	"time"
)

// responseTimeSmoothing is the weight of the latest sample in the average response time.
const responseTimeSmoothing = 0.1

// Snapshot represents aggregate counters of the SQL Execution Client.
type Snapshot struct {
	TotalRequests       uint64  `json:"totalRequests"`
	SuccessfulRequests  uint64  `json:"successfulRequests"`
	FailedRequests      uint64  `json:"failedRequests"`
	TotalRetries        uint64  `json:"totalRetries"`
	AverageResponseTime float64 `json:"averageResponseTime"`
	ActiveRequests      int     `json:"activeRequests"`
	QueuedRequests      int     `json:"queuedRequests"`
	SuccessRate         string  `json:"successRate"`
}

// Metrics accumulates counters of top-level calls.
type Metrics struct {
	mu                  sync.Mutex
	totalRequests       uint64
	successfulRequests  uint64
	failedRequests      uint64
	totalRetries        uint64
	averageResponseTime float64 // milliseconds
}

// NewMetrics creates an empty metrics set.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Observe records the outcome of one top-level call.
func (m *Metrics) Observe(elapsed time.Duration, retries uint, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalRequests++
	m.totalRetries += uint64(retries)

	if err != nil {
		m.failedRequests++
	} else {
		m.successfulRequests++
	}

	sample := float64(elapsed) / float64(time.Millisecond)

	if m.totalRequests == 1 {
		m.averageResponseTime = sample
		return
	}

	m.averageResponseTime = responseTimeSmoothing*sample + (1-responseTimeSmoothing)*m.averageResponseTime
}

// Snapshot returns a copy of the counters. Gate figures are filled in by the client.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		TotalRequests:       m.totalRequests,
		SuccessfulRequests:  m.successfulRequests,
		FailedRequests:      m.failedRequests,
		TotalRetries:        m.totalRetries,
		AverageResponseTime: m.averageResponseTime,
		SuccessRate:         "0%",
	}

	if m.totalRequests > 0 {
		s.SuccessRate = fmt.Sprintf("%.2f%%", float64(m.successfulRequests)/float64(m.totalRequests)*100)
	}

	return s
}
