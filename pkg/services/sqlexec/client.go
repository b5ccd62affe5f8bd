/*
2021 © Postgres.ai
*/

// Package sqlexec provides a resilient SQL Execution Client: statement validation,
// a per-attempt timeout, retries with linear backoff, admission control and metrics.
package sqlexec

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"gitlab.com/postgres-ai/database-lab/v2/pkg/log"

	"gitlab.com/postgres-ai/chegar/pkg/config"
	"gitlab.com/postgres-ai/chegar/pkg/services/admission"
)

// DefaultTimeout defines the default time budget of one attempt.
const DefaultTimeout = 30 * time.Second

// Options configures a Client.
type Options struct {
	Timeout               time.Duration
	MaxAttempts           uint
	RetryDelay            time.Duration
	MaxConcurrentRequests int
}

// Client executes statements through a Transport.
type Client struct {
	transport Transport
	gate      *admission.Gate
	policy    Policy
	timeout   time.Duration
	metrics   *Metrics
}

// NewClient creates a new client on top of the transport.
func NewClient(transport Transport, opts Options) *Client {
	policy := DefaultPolicy()

	if opts.MaxAttempts > 0 {
		policy.MaxAttempts = opts.MaxAttempts
	}

	if opts.RetryDelay > 0 {
		policy.BaseDelay = opts.RetryDelay
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		transport: transport,
		gate:      admission.NewGate(opts.MaxConcurrentRequests),
		policy:    policy,
		timeout:   timeout,
		metrics:   NewMetrics(),
	}
}

// Open creates the configured transport and a client on top of it.
func Open(ctx context.Context, cfg config.SQL) (*Client, error) {
	var (
		transport Transport
		err       error
	)

	switch cfg.Transport {
	case config.TransportHTTP, "":
		transport, err = NewHTTPTransport(cfg.EndpointURL)

	case config.TransportPostgres:
		transport, err = NewPostgresTransport(ctx, cfg.DSN, cfg.MaxConns)

	default:
		return nil, errors.Errorf("unknown SQL transport given: %q", cfg.Transport)
	}

	if err != nil {
		return nil, errors.Wrapf(err, "failed to create the %q transport", cfg.Transport)
	}

	return NewClient(transport, Options{
		Timeout:               cfg.Timeout,
		MaxAttempts:           cfg.MaxAttempts,
		RetryDelay:            cfg.RetryDelay,
		MaxConcurrentRequests: cfg.MaxConcurrentRequests,
	}), nil
}

// Close releases the transport.
func (c *Client) Close() error {
	return c.transport.Close()
}

// Execute runs a statement and returns its rows.
func (c *Client) Execute(ctx context.Context, sql string, params ...interface{}) (*Result, error) {
	stmt := NewStatement(sql, params...)

	results, err := c.run(ctx, "query", []Statement{stmt}, func(attemptCtx context.Context) ([]*Result, error) {
		res, err := c.transport.Exec(attemptCtx, stmt)
		if err != nil {
			return nil, err
		}

		return []*Result{res}, nil
	})
	if err != nil {
		return nil, err
	}

	return results[0], nil
}

// ExecuteTransaction runs statements in order as one atomic unit.
// A failure of any statement aborts the rest and nothing is applied.
func (c *Client) ExecuteTransaction(ctx context.Context, stmts []Statement) ([]*Result, error) {
	return c.run(ctx, "transaction", stmts, func(attemptCtx context.Context) ([]*Result, error) {
		return c.transport.ExecBatch(attemptCtx, stmts)
	})
}

// Metrics returns the current metrics snapshot.
func (c *Client) Metrics() Snapshot {
	s := c.metrics.Snapshot()
	s.ActiveRequests = c.gate.Active()
	s.QueuedRequests = c.gate.Queued()

	return s
}

type call func(ctx context.Context) ([]*Result, error)

// run validates statements, takes a gate slot and retries the call. Metrics are recorded once per run.
func (c *Client) run(ctx context.Context, kind string, stmts []Statement, fn call) (results []*Result, err error) {
	started := time.Now()

	var retries uint

	defer func() {
		c.metrics.Observe(time.Since(started), retries, err)

		if err != nil {
			log.Err(fmt.Sprintf("SQL %s error (%dms):", kind, time.Since(started).Milliseconds()), err)
		}
	}()

	if len(stmts) == 0 {
		return nil, &ValidationError{Reason: "transaction must contain at least one statement"}
	}

	for _, stmt := range stmts {
		if err := stmt.Validate(); err != nil {
			return nil, err
		}
	}

	release, err := c.gate.Acquire(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to acquire an execution slot")
	}

	defer release()

	attempts, err := Retry(ctx, c.policy, func(ctx context.Context) error {
		res, err := c.withTimeout(ctx, fn)
		if err != nil {
			return err
		}

		results = res

		return nil
	}, func(a Attempt) {
		retries++
		log.Msg(fmt.Sprintf("SQL %s attempt %d/%d failed, retrying in %s: %v", kind, a.Index, c.policy.MaxAttempts, a.Delay, a.Err))
	})
	if err != nil {
		return nil, err
	}

	if attempts > 1 {
		log.Msg(fmt.Sprintf("SQL %s succeeded on attempt %d", kind, attempts))
	}

	return results, nil
}

type callResult struct {
	results []*Result
	err     error
}

// withTimeout races the call against the attempt timer and cancels the call when the timer fires.
func (c *Client) withTimeout(ctx context.Context, fn call) ([]*Result, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan callResult, 1)

	go func() {
		res, err := fn(attemptCtx)
		done <- callResult{results: res, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &TimeoutError{Timeout: c.timeout}
		}

		return r.results, r.err

	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, &TimeoutError{Timeout: c.timeout}
	}
}
