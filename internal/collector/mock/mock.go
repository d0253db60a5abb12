// Package mock implements a deterministic, scripted collector.Collector
// used by engine/runtime tests and local demos in place of a real
// browser or portal connection: it replays a fixed sequence of events
// on a ticker rather than observing anything live.
package mock

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jholdgaard/subastamon/internal/clock"
	"github.com/jholdgaard/subastamon/internal/collector"
	"github.com/jholdgaard/subastamon/internal/event"
)

var _ collector.Collector = (*Collector)(nil)

// Collector replays Script, one event per tick, onto its Bus.
type Collector struct {
	script []event.Event
	clk    clock.Clock
	logger *slog.Logger

	mu        sync.Mutex
	cadence   time.Duration
	intensive bool
	running   bool
	done      chan struct{}
	wg        sync.WaitGroup
	bus       *collector.Bus
}

// New creates a mock collector that will replay script in order,
// sleeping cadence between each event once started.
func New(script []event.Event, cadence time.Duration, clk clock.Clock, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		script:  script,
		clk:     clk,
		logger:  logger,
		cadence: cadence,
		bus:     collector.NewBus(),
	}
}

// Bus returns the event bus this collector publishes onto.
func (c *Collector) Bus() *collector.Bus { return c.bus }

// SetCadence changes the inter-event sleep duration.
func (c *Collector) SetCadence(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cadence = d
}

// SetIntensive records the intensive flag; the mock collector does not
// change its replay behavior based on it, since there is no concurrent
// polling to bound, but it is exposed so runtime wiring is uniform
// across collector implementations.
func (c *Collector) SetIntensive(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.intensive = on
}

// Start begins replaying the script in a background goroutine. It
// returns as soon as replay has started (after publishing the first
// event, if the script is non-empty).
func (c *Collector) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.done = make(chan struct{})
	c.mu.Unlock()

	started := make(chan struct{})
	c.wg.Add(1)
	go c.loop(ctx, started)
	<-started
	return nil
}

// Stop halts replay. Idempotent.
func (c *Collector) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	close(c.done)
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}

func (c *Collector) loop(ctx context.Context, started chan struct{}) {
	defer c.wg.Done()

	c.bus.Publish(event.Event{Kind: event.KindStart, Level: event.LevelInfo, Message: "mock collector started", CreatedAt: c.clk.Now()})

	for i, e := range c.script {
		if e.CreatedAt.IsZero() {
			e.CreatedAt = c.clk.Now()
		}
		c.bus.Publish(e)
		if i == 0 {
			close(started)
		}

		c.mu.Lock()
		cadence := c.cadence
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-time.After(cadence):
		}
	}
	if len(c.script) == 0 {
		close(started)
	}

	c.logger.Info("mock collector finished replaying script")
	c.bus.Publish(event.Event{Kind: event.KindStop, Level: event.LevelInfo, Message: "mock collector script exhausted", CreatedAt: c.clk.Now()})
}
