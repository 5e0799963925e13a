package relay

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// connLimiter throttles new connection attempts per source IP (spec §4.2's
// "the relay must bound the rate of handshake attempts per source
// address"), the same per-key token-bucket-map shape as the teacher's
// bandwidth.go RateLimiter, repurposed here for connection counts instead
// of byte throughput.
type connLimiter struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*entry
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newConnLimiter constructs a limiter allowing rps handshake attempts per
// second per source IP, with burst allowed immediately.
func newConnLimiter(rps float64, burst int) *connLimiter {
	return &connLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*entry),
	}
}

// Allow reports whether a new connection attempt from addr should proceed.
func (c *connLimiter) Allow(addr string) bool {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}

	c.mu.Lock()
	e, ok := c.limiters[host]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(c.rps, c.burst)}
		c.limiters[host] = e
	}
	e.lastSeen = time.Now()
	c.mu.Unlock()

	return e.limiter.Allow()
}

// sweep drops entries idle longer than maxIdle, so the map doesn't grow
// unbounded with one-shot clients.
func (c *connLimiter) sweep(maxIdle time.Duration) {
	cutoff := time.Now().Add(-maxIdle)
	c.mu.Lock()
	defer c.mu.Unlock()
	for host, e := range c.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(c.limiters, host)
		}
	}
}
