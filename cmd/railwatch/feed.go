package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/railstack/railwatch/internal/conn"
	"github.com/railstack/railwatch/internal/models"
)

var feedEntities = []string{"train-101", "train-205", "train-316"}

// simulatedFeed fabricates a train position feed for local runs: jittered
// sample latency, occasional duplicates, out-of-order timestamps, invalid
// coordinates, dial failures, and heartbeat drops.
type simulatedFeed struct {
	interval time.Duration
	handler  func(sample models.PositionSample, receivedAt time.Time)
	invalid  func()
	logger   *slog.Logger
}

// Dial hands back a connection that emits samples until closed. Roughly one
// dial in ten fails to exercise the retry path.
func (f *simulatedFeed) Dial(ctx context.Context, endpoint string) (conn.Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if rand.Intn(10) == 0 {
		f.logger.Debug("synthetic dial failure", slog.String("endpoint", endpoint))
		return nil, fmt.Errorf("dial %s: upstream unavailable", endpoint)
	}
	c := &feedConn{
		feed: f,
		stop: make(chan struct{}),
		last: make(map[string]models.PositionSample),
	}
	go c.emit()
	return c, nil
}

type feedConn struct {
	feed      *simulatedFeed
	stop      chan struct{}
	closeOnce sync.Once
	last      map[string]models.PositionSample
}

func (c *feedConn) emit() {
	ticker := time.NewTicker(c.feed.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			for _, entity := range feedEntities {
				c.emitSample(entity)
			}
		}
	}
}

func (c *feedConn) emitSample(entity string) {
	receivedAt := time.Now()
	latency := 50*time.Millisecond + time.Duration(rand.Int63n(int64(400*time.Millisecond)))
	timestamp := receivedAt.Add(-latency)

	stale := false
	roll := rand.Intn(100)
	switch {
	case roll < 4:
		// Resend the previous sample unchanged.
		if prev, ok := c.last[entity]; ok {
			c.feed.handler(prev, receivedAt)
			return
		}
	case roll < 8:
		// Deliver a reading from before the previous sample.
		if prev, ok := c.last[entity]; ok {
			timestamp = prev.Timestamp.Add(-5 * time.Second)
			stale = true
		}
	case roll < 10:
		// Corrupt coordinates; validation rejects these upstream of the
		// collector, which only sees the failure count.
		if c.feed.invalid != nil {
			c.feed.invalid()
		}
		return
	}

	sample, err := models.NewPositionSample(
		entity,
		51.5+rand.Float64()*0.2,
		-0.2+rand.Float64()*0.3,
		rand.Float64()*200,
		rand.Float64()*360,
		timestamp,
		"sim",
	)
	if err != nil {
		if c.feed.invalid != nil {
			c.feed.invalid()
		}
		return
	}
	if !stale {
		c.last[entity] = sample
	}
	c.feed.handler(sample, receivedAt)
}

// Ping fails roughly once in twenty-five calls to exercise the heartbeat
// failure path.
func (c *feedConn) Ping(ctx context.Context) error {
	select {
	case <-c.stop:
		return fmt.Errorf("ping: connection closed")
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if rand.Intn(25) == 0 {
		return fmt.Errorf("ping: heartbeat timeout")
	}
	return nil
}

func (c *feedConn) Close() error {
	c.closeOnce.Do(func() { close(c.stop) })
	return nil
}

// alwaysUpNetwork reports the local network as permanently available with a
// mildly fluctuating link quality.
type alwaysUpNetwork struct{}

func (alwaysUpNetwork) IsAvailable() bool { return true }

func (alwaysUpNetwork) Quality() float64 { return 0.7 + rand.Float64()*0.3 }
