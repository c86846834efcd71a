// Package rate throttles requests to the search service.
package rate

import (
	"context"
	"sync"
	"time"
)

// Gate is a requests-per-minute token bucket shared by all workers.
// A nil *Gate never blocks.
type Gate struct {
	mu    sync.Mutex
	clk   func() time.Time
	cap   float64
	level float64
	rate  float64 // tokens per second
	last  time.Time
}

// NewGate returns a gate admitting rpm requests per minute, with a burst of
// rpm. rpm <= 0 returns nil (unlimited). clk defaults to time.Now.
func NewGate(rpm int, clk func() time.Time) *Gate {
	if rpm <= 0 {
		return nil
	}
	if clk == nil {
		clk = time.Now
	}
	return &Gate{
		clk:   clk,
		cap:   float64(rpm),
		level: float64(rpm),
		rate:  float64(rpm) / 60.0,
		last:  clk(),
	}
}

func (g *Gate) refill(now time.Time) {
	if now.Before(g.last) {
		// clock went backwards; treat as no elapsed time
		return
	}
	g.level += now.Sub(g.last).Seconds() * g.rate
	if g.level > g.cap {
		g.level = g.cap
	}
	g.last = now
}

// Try takes a token without blocking.
func (g *Gate) Try() bool {
	if g == nil {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refill(g.clk())
	if g.level >= 1 {
		g.level--
		return true
	}
	return false
}

// Wait blocks until a token is available or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	if g == nil {
		return ctx.Err()
	}
	const minSleep = 10 * time.Millisecond
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		g.mu.Lock()
		g.refill(g.clk())
		if g.level >= 1 {
			g.level--
			g.mu.Unlock()
			return nil
		}
		d := time.Duration((1-g.level)/g.rate*float64(time.Second)) + minSleep
		g.mu.Unlock()

		if err := Sleep(ctx, d); err != nil {
			return err
		}
	}
}

// available reports the whole tokens currently in the bucket.
func (g *Gate) available() int {
	if g == nil {
		return -1
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refill(g.clk())
	return int(g.level)
}

// Sleep waits for d in slices of at most 200ms so cancellation is prompt.
func Sleep(ctx context.Context, d time.Duration) error {
	const step = 200 * time.Millisecond
	for d > 0 {
		s := d
		if s > step {
			s = step
		}
		t := time.NewTimer(s)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		d -= s
	}
	return ctx.Err()
}
