package rate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestNewGate_DisabledIsNil(t *testing.T) {
	var g *Gate = NewGate(0, nil)
	assert.Nil(t, g)
	assert.True(t, g.Try())
	assert.NoError(t, g.Wait(context.Background()))
	assert.Equal(t, -1, g.available())
}

func TestGate_BurstThenRefill(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	g := NewGate(6, clk.Now) // one token every 10s

	for i := 0; i < 6; i++ {
		require.True(t, g.Try(), "burst token %d", i)
	}
	assert.False(t, g.Try())

	clk.Advance(9 * time.Second)
	assert.False(t, g.Try())
	clk.Advance(time.Second)
	assert.True(t, g.Try())
}

func TestGate_RefillCapped(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	g := NewGate(3, clk.Now)
	clk.Advance(time.Hour)
	assert.Equal(t, 3, g.available())
}

func TestGate_ClockBackwardsIgnored(t *testing.T) {
	clk := &fakeClock{now: time.Unix(100, 0)}
	g := NewGate(1, clk.Now)
	require.True(t, g.Try())
	clk.Advance(-time.Minute)
	assert.False(t, g.Try())
}

func TestGate_WaitHonoursCancel(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	g := NewGate(1, clk.Now)
	require.True(t, g.Try())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := g.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGate_WaitReturnsOnceRefilled(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	g := NewGate(60, clk.Now)
	for g.Try() {
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		clk.Advance(2 * time.Second)
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, g.Wait(ctx))
}

func TestSleep_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
