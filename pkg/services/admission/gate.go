/*
2021 © Postgres.ai
*/

// Package admission provides a FIFO concurrency gate bounding in-flight statements.
package admission

import (
	"container/list"
	"context"
	"sync"
)

// DefaultMaxConcurrentRequests defines the default number of slots.
const DefaultMaxConcurrentRequests = 10

// Gate admits at most limit holders at a time and queues the rest in arrival order.
type Gate struct {
	mu      sync.Mutex
	limit   int
	active  int
	waiters *list.List // of chan struct{}
}

// NewGate creates a new gate with the given number of slots.
func NewGate(limit int) *Gate {
	if limit <= 0 {
		limit = DefaultMaxConcurrentRequests
	}

	return &Gate{
		limit:   limit,
		waiters: list.New(),
	}
}

// Acquire takes a slot or waits for one in FIFO order.
// The returned release function must be called once the protected section is over;
// calling it more than once has no effect.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	g.mu.Lock()

	if g.active < g.limit && g.waiters.Len() == 0 {
		g.active++
		g.mu.Unlock()

		return g.releaseOnce(), nil
	}

	ready := make(chan struct{})
	elem := g.waiters.PushBack(ready)
	g.mu.Unlock()

	select {
	case <-ready:
		return g.releaseOnce(), nil

	case <-ctx.Done():
		g.mu.Lock()

		select {
		case <-ready:
			// The slot was handed over while the context was being canceled.
			g.mu.Unlock()
			g.release()

		default:
			g.waiters.Remove(elem)
			g.mu.Unlock()
		}

		return nil, ctx.Err()
	}
}

// Active returns the number of holders.
func (g *Gate) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.active
}

// Queued returns the number of waiting callers.
func (g *Gate) Queued() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.waiters.Len()
}

func (g *Gate) releaseOnce() func() {
	var once sync.Once

	return func() {
		once.Do(g.release)
	}
}

// release hands the slot to the oldest waiter, keeping it counted as active.
func (g *Gate) release() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if front := g.waiters.Front(); front != nil {
		g.waiters.Remove(front)
		close(front.Value.(chan struct{}))

		return
	}

	g.active--
}
