// Package server implements a token bucket limiter that throttles the inbound
// message rate of a single session.
package server

import (
	"sync"
	"time"
)

type limiter struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	refill   float64 // tokens per second
	last     time.Time
}

func newLimiter(burst int, interval time.Duration) *limiter {
	if burst <= 0 {
		burst = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	refill := float64(burst) / interval.Seconds()
	if refill <= 0 {
		refill = float64(burst)
	}

	return &limiter{
		tokens:   float64(burst),
		capacity: float64(burst),
		refill:   refill,
		last:     time.Now(),
	}
}

func (l *limiter) allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(l.last).Seconds()
	l.last = now

	if elapsed > 0 {
		l.tokens += elapsed * l.refill
		if l.tokens > l.capacity {
			l.tokens = l.capacity
		}
	}

	if l.tokens < 1 {
		return false
	}

	l.tokens--
	return true
}
