/*
2021 © Postgres.ai
*/

// Package health checks the database availability in the background.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hako/durafmt"
	"github.com/pkg/errors"

	"gitlab.com/postgres-ai/database-lab/v2/pkg/log"

	"gitlab.com/postgres-ai/chegar/pkg/services/sqlexec"
)

// DefaultInterval defines the default period of background checks.
const DefaultInterval = 60 * time.Second

const (
	checkSQL    = "SELECT 1 AS health_check"
	checkColumn = "health_check"
)

// Status describes the result of a health check.
type Status struct {
	Healthy   bool      `json:"healthy"`
	Detail    string    `json:"detail"`
	CheckedAt time.Time `json:"checkedAt"`
}

// Executor runs statements against the database.
type Executor interface {
	Execute(ctx context.Context, sql string, params ...interface{}) (*sqlexec.Result, error)
}

// Alerter reports a lost database connection.
type Alerter interface {
	Alert(ctx context.Context, status Status) error
}

// Reporter runs health checks and keeps the last status.
type Reporter struct {
	executor  Executor
	alerter   Alerter
	interval  time.Duration
	startedAt time.Time

	mu   sync.RWMutex
	last *Status
}

// NewReporter creates a new reporter. The alerter may be nil.
func NewReporter(executor Executor, interval time.Duration, alerter Alerter) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Reporter{
		executor:  executor,
		alerter:   alerter,
		interval:  interval,
		startedAt: time.Now(),
	}
}

// Check runs the check statement and records the status.
func (r *Reporter) Check(ctx context.Context) Status {
	status := Status{Healthy: true, Detail: "connected", CheckedAt: time.Now()}

	if err := r.probe(ctx); err != nil {
		status.Healthy = false
		status.Detail = err.Error()
	}

	r.record(ctx, status)

	return status
}

func (r *Reporter) probe(ctx context.Context) error {
	res, err := r.executor.Execute(ctx, checkSQL)
	if err != nil {
		return err
	}

	if !isOne(res.First()[checkColumn]) {
		return errors.New("unexpected health check result")
	}

	return nil
}

func (r *Reporter) record(ctx context.Context, status Status) {
	r.mu.Lock()
	previous := r.last
	r.last = &status
	r.mu.Unlock()

	wasHealthy := previous == nil || previous.Healthy

	if status.Healthy || !wasHealthy || r.alerter == nil {
		return
	}

	if err := r.alerter.Alert(ctx, status); err != nil {
		log.Err("Failed to send health alert:", err)
	}
}

// Run checks the database every interval until the context is done.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if status := r.Check(ctx); !status.Healthy && ctx.Err() == nil {
			log.Msg("Database health check failed:", status.String())
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Last returns the status of the latest check.
func (r *Reporter) Last() (Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.last == nil {
		return Status{}, false
	}

	return *r.last, true
}

// Ready reports an error while the last check is missing or failed.
func (r *Reporter) Ready() error {
	status, ok := r.Last()
	if !ok {
		return errors.New("database has not been checked yet")
	}

	if !status.Healthy {
		return errors.Errorf("database is unavailable: %s", status.Detail)
	}

	return nil
}

// Uptime returns the time since the reporter was created in a human-readable form.
func (r *Reporter) Uptime() string {
	return durafmt.Parse(time.Since(r.startedAt).Truncate(time.Second)).String()
}

// isOne accepts the sentinel decoded by any transport.
func isOne(v interface{}) bool {
	switch n := v.(type) {
	case int:
		return n == 1
	case int32:
		return n == 1
	case int64:
		return n == 1
	case float64:
		return n == 1
	case json.Number:
		return n.String() == "1"
	case string:
		return n == "1"
	}

	return false
}

// String describes the status.
func (s Status) String() string {
	state := "healthy"
	if !s.Healthy {
		state = "unhealthy"
	}

	return fmt.Sprintf("%s (%s)", state, s.Detail)
}
