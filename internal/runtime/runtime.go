// Package runtime wires a collector, the engine, and the control-action
// channel the engine uses to steer that collector's cadence, into one
// supervised process lifecycle. Grounded on the teacher's
// cmd/dkpbot/main.go run() shape (signal-driven context, deferred
// shutdown), generalized from "start one Discord session" to "start
// one collector and drain its derived event/control streams".
package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jholdgaard/subastamon/internal/collector"
	"github.com/jholdgaard/subastamon/internal/engine"
	"github.com/jholdgaard/subastamon/internal/event"
)

// busBufferSize is how many collector events the runtime will buffer
// between the collector's bus and the engine; once it is full, the
// bus's non-blocking publish drops each further event for this
// subscriber.
const busBufferSize = 256

// Runtime supervises one active collector feeding one Engine. The
// engine's own input channel (in) is owned by the caller that
// constructed the Engine; Runtime only forwards the active collector's
// bus events into it, which is why engine.New takes that channel
// directly rather than Runtime subscribing on the Engine's behalf.
type Runtime struct {
	eng     *engine.Engine
	in      chan<- event.Event
	control chan engine.ControlAction
	logger  *slog.Logger

	mu              sync.Mutex
	collector       collector.Collector
	collectorEvents <-chan event.Event

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Runtime. in must be the same channel passed as the
// Engine's in parameter at construction; control must be the same
// channel passed as the Engine's control parameter.
func New(eng *engine.Engine, in chan<- event.Event, control chan engine.ControlAction, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{eng: eng, in: in, control: control, logger: logger}
}

// SwitchCollector stops any currently active collector and starts c in
// its place, subscribing the engine to its bus. Used by opctl's
// start_collector/set_direct_http_mode operations.
func (r *Runtime) SwitchCollector(ctx context.Context, c collector.Collector) error {
	r.mu.Lock()
	prev := r.collector
	prevEvents := r.collectorEvents
	r.mu.Unlock()

	if prev != nil {
		if err := prev.Stop(); err != nil {
			r.logger.ErrorContext(ctx, "stopping previous collector", slog.Any("error", err))
		}
		prev.Bus().Unsubscribe(prevEvents)
	}

	events := c.Bus().Subscribe(busBufferSize)
	if err := c.Start(ctx); err != nil {
		c.Bus().Unsubscribe(events)
		return err
	}

	r.mu.Lock()
	r.collector = c
	r.collectorEvents = events
	r.mu.Unlock()

	r.wg.Add(1)
	go r.pumpCollectorEvents(ctx, events)
	return nil
}

// pumpCollectorEvents relays every event the active collector publishes
// into the engine's input channel, until ctx is cancelled or the bus
// subscription is torn down (SwitchCollector/Stop). The engine's own
// Run loop does the actual Handle dispatch and aggregate-window
// ticking; this goroutine only bridges the collector bus to it.
func (r *Runtime) pumpCollectorEvents(ctx context.Context, events <-chan event.Event) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			select {
			case r.in <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Start runs the engine loop and the control-action router in the
// background. It does not itself start a collector: call
// SwitchCollector once a collector is selected (opctl's
// start_collector).
func (r *Runtime) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		r.eng.Run(runCtx)
	}()
	go func() {
		defer r.wg.Done()
		r.routeControl(runCtx)
	}()
}

// routeControl relays engine control actions to the active collector.
func (r *Runtime) routeControl(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case a, ok := <-r.control:
			if !ok {
				return
			}
			r.applyControl(ctx, a)
		}
	}
}

func (r *Runtime) applyControl(ctx context.Context, a engine.ControlAction) {
	r.mu.Lock()
	c := r.collector
	r.mu.Unlock()
	if c == nil {
		return
	}

	switch a.Kind {
	case engine.ControlBackoff:
		c.SetCadence(time.Duration(a.Seconds * float64(time.Second)))
	case engine.ControlStop:
		r.logger.WarnContext(ctx, "security policy requested stop", slog.String("reason", a.Reason))
		if err := c.Stop(); err != nil {
			r.logger.ErrorContext(ctx, "stopping collector on STOP control action", slog.Any("error", err))
		}
	}
}

// SetCadence forwards to the active collector, if any.
func (r *Runtime) SetCadence(d time.Duration) {
	r.mu.Lock()
	c := r.collector
	r.mu.Unlock()
	if c != nil {
		c.SetCadence(d)
	}
}

// SetIntensive forwards to the active collector, if any.
func (r *Runtime) SetIntensive(on bool) {
	r.mu.Lock()
	c := r.collector
	r.mu.Unlock()
	if c != nil {
		c.SetIntensive(on)
	}
}

// Stop halts the active collector and the engine/control loops.
func (r *Runtime) Stop() error {
	r.mu.Lock()
	c := r.collector
	events := r.collectorEvents
	r.mu.Unlock()

	var stopErr error
	if c != nil {
		stopErr = c.Stop()
		c.Bus().Unsubscribe(events)
	}

	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	return stopErr
}
