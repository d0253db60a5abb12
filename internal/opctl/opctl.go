// Package opctl is the thin, in-process control surface an operator UI
// (or CLI) drives: the named methods spec.md §6 lists
// (start_collector, stop_collector, capture_current, set_cadence,
// set_intensive, set_direct_http_mode, set_mi_id_proveedor,
// get_mi_id_proveedor, cleanup) as Go methods over a runtime.Runtime and
// the store. Adapted from the teacher's internal/bot: same "thin front
// door over the managers, no business logic of its own" shape, with the
// Discord session and slash commands replaced by direct method calls.
package opctl

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jholdgaard/subastamon/internal/clock"
	"github.com/jholdgaard/subastamon/internal/collector"
	"github.com/jholdgaard/subastamon/internal/runtime"
	"github.com/jholdgaard/subastamon/internal/store"
)

// CollectorMode selects which collector implementation start_collector
// activates.
type CollectorMode string

const (
	ModeBrowser    CollectorMode = "browser"
	ModeDirectHTTP CollectorMode = "direct-http"
	ModeMock       CollectorMode = "mock"
)

// Factory builds a fresh collector for the given mode. cmd/subastamon
// supplies the concrete constructors (browser.New, directhttp.New,
// mock.New) so this package never imports them directly, avoiding a
// dependency from the control surface onto every collector backend.
type Factory func(ctx context.Context, mode CollectorMode) (collector.Collector, error)

// Controller exposes the operator surface over one Runtime.
type Controller struct {
	rt      *runtime.Runtime
	repos   *store.Repositories
	build   Factory
	logger  *slog.Logger
	clk     clock.Clock

	mu   sync.Mutex
	mode CollectorMode
}

// New creates a Controller. build is consulted by StartCollector, and
// through it by CaptureCurrent and by SetDirectHTTPMode, which falls
// back to the browser collector when the direct-HTTP start fails.
func New(rt *runtime.Runtime, repos *store.Repositories, build Factory, logger *slog.Logger, clk clock.Clock) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Controller{rt: rt, repos: repos, build: build, logger: logger, clk: clk}
}

// StartCollector activates the collector for mode, replacing whatever
// is currently running.
func (c *Controller) StartCollector(ctx context.Context, mode CollectorMode) error {
	col, err := c.build(ctx, mode)
	if err != nil {
		return fmt.Errorf("building %s collector: %w", mode, err)
	}
	if err := c.rt.SwitchCollector(ctx, col); err != nil {
		return fmt.Errorf("switching to %s collector: %w", mode, err)
	}
	c.mu.Lock()
	c.mode = mode
	c.mu.Unlock()
	return nil
}

// StopCollector halts whatever collector is currently running.
func (c *Controller) StopCollector() error {
	return c.rt.Stop()
}

// CaptureCurrent re-runs the browser collector's capture phase against
// the currently watched auction. Only meaningful while the browser
// collector is active: direct-http and mock have no separate capture
// phase to re-run.
func (c *Controller) CaptureCurrent(ctx context.Context) error {
	c.mu.Lock()
	mode := c.mode
	c.mu.Unlock()
	if mode != ModeBrowser {
		return fmt.Errorf("opctl: capture_current requires the browser collector, active mode is %q", mode)
	}
	return c.StartCollector(ctx, ModeBrowser)
}

// SetCadence changes the active collector's pause between polling
// cycles.
func (c *Controller) SetCadence(seconds float64) {
	c.rt.SetCadence(time.Duration(seconds * float64(time.Second)))
}

// SetIntensive toggles the active collector's intensive polling mode.
func (c *Controller) SetIntensive(on bool) {
	c.rt.SetIntensive(on)
}

// SetDirectHTTPMode switches the active collector to (or from) the
// direct-HTTP backend, falling back to the browser collector on
// failure so the operator is never left without a collector.
func (c *Controller) SetDirectHTTPMode(ctx context.Context, on bool) error {
	if on {
		if err := c.StartCollector(ctx, ModeDirectHTTP); err != nil {
			c.logger.WarnContext(ctx, "direct-http start failed, falling back to browser", slog.Any("error", err))
			return c.StartCollector(ctx, ModeBrowser)
		}
		return nil
	}
	return c.StartCollector(ctx, ModeBrowser)
}

// SetMiIDProveedor records the operator's own provider id against the
// currently watched auction, used by the engine to auto-attribute a
// captured best offer as the operator's own.
func (c *Controller) SetMiIDProveedor(ctx context.Context, providerID string) error {
	a, err := c.repos.Auctions.Current(ctx)
	if err != nil {
		return fmt.Errorf("opctl: looking up current auction: %w", err)
	}
	if a == nil {
		return fmt.Errorf("opctl: no auction is currently running")
	}
	a.ProviderID = &providerID
	if err := c.repos.Auctions.Upsert(ctx, a); err != nil {
		return fmt.Errorf("opctl: persisting mi_id_proveedor: %w", err)
	}
	return nil
}

// GetMiIDProveedor returns the operator's provider id for the currently
// watched auction, if one has been set.
func (c *Controller) GetMiIDProveedor(ctx context.Context) (string, bool, error) {
	a, err := c.repos.Auctions.Current(ctx)
	if err != nil {
		return "", false, fmt.Errorf("opctl: looking up current auction: %w", err)
	}
	if a == nil || a.ProviderID == nil {
		return "", false, nil
	}
	return *a.ProviderID, true, nil
}

// Cleanup wipes persisted data per mode ("logs", "states", or "all").
func (c *Controller) Cleanup(ctx context.Context, mode string) error {
	switch mode {
	case "logs", "states", "all":
	default:
		return fmt.Errorf("opctl: unknown cleanup mode %q, want logs|states|all", mode)
	}
	return c.repos.Purge(ctx, mode)
}
