/*
2021 © Postgres.ai
*/

package solicitation

import (
	"sync"
	"time"
)

const protocolLayout = "20060102150405"

// ProtocolGenerator issues tracking protocols from the local time in YYYYMMDDHHMMSS form.
// A protocol is never equal to or older than the previous one: a second request
// within the same second gets the next second.
type ProtocolGenerator struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

// NewProtocolGenerator creates a generator based on the wall clock.
func NewProtocolGenerator() *ProtocolGenerator {
	return &ProtocolGenerator{now: time.Now}
}

// Next returns a new protocol.
func (g *ProtocolGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := g.now().Truncate(time.Second)

	if !g.last.IsZero() && !ts.After(g.last) {
		ts = g.last.Add(time.Second)
	}

	g.last = ts

	return ts.Format(protocolLayout)
}
