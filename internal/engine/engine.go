// Package engine is the runtime core (C7): it consumes the typed event
// stream a collector publishes, maintains the caches and derived
// commercial figures described in the data model, persists state to
// the configured store, and emits a processed event stream plus
// control actions back to the runtime.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jholdgaard/subastamon/internal/clock"
	"github.com/jholdgaard/subastamon/internal/event"
	"github.com/jholdgaard/subastamon/internal/security"
	"github.com/jholdgaard/subastamon/internal/store"
)

// Config holds engine-level tunables (spec.md §4.6 Configuration).
type Config struct {
	DefaultMinMarginPct       float64
	DefaultHideBelowThreshold bool
	AggWindowSeconds          float64
	BaseCadenceSeconds        float64
}

// ControlKind identifies the action a ControlAction asks the runtime
// to relay to the active collector.
type ControlKind string

const (
	ControlBackoff ControlKind = "BACKOFF"
	ControlStop    ControlKind = "STOP"
)

// ControlAction is sent engine → runtime → collector. CorrelationID
// lets a BACKOFF/STOP be traced back to the event log entry (and, via
// its ID, the HTTP_ERROR/auth-failure streak) that triggered it.
type ControlAction struct {
	Kind          ControlKind
	Seconds       float64
	Reason        string
	CorrelationID string
}

type itemKey struct {
	auctionExtID string
	localID      string
}

type aggCounts struct {
	updates   int
	changed   int
	httpError int
	end       int
}

func (c aggCounts) total() int {
	return c.updates + c.changed + c.httpError + c.end
}

// Engine is the single consumer of the collector_out queue. It is not
// safe for concurrent use: Run owns it for the lifetime of the
// process, and Handle (exported for tests) assumes single-goroutine
// access to its caches, matching spec.md §5's "no locks needed on the
// event path".
type Engine struct {
	repos   *store.Repositories
	in      <-chan event.Event
	out     chan<- event.Event
	control chan<- ControlAction

	cfg         Config
	securityCfg security.Config

	logger *slog.Logger
	clock  clock.Clock

	currentCadence float64

	knownAuctions map[string]struct{}
	errStreak     map[string]int
	lastOKAt      map[string]*time.Time
	lastErrorAt   map[string]time.Time
	stopSent      map[string]bool
	providerIDs   map[string]*string

	lastSignature          map[itemKey]string
	prevOperatorIsBestAuto map[itemKey]bool
	endedKeys              map[itemKey]bool

	agg         aggCounts
	aggLastEmit *time.Time
}

// New creates an Engine. in is the collector_out queue; out is the
// engine_out queue consumers read processed events from; control may
// be nil if nothing downstream acts on BACKOFF/STOP (e.g. a one-shot
// replay).
func New(repos *store.Repositories, in <-chan event.Event, out chan<- event.Event, control chan<- ControlAction, cfg Config, securityCfg security.Config, logger *slog.Logger, clk clock.Clock) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Engine{
		repos:                  repos,
		in:                     in,
		out:                    out,
		control:                control,
		cfg:                    cfg,
		securityCfg:            securityCfg,
		logger:                 logger,
		clock:                  clk,
		currentCadence:         cfg.BaseCadenceSeconds,
		knownAuctions:          make(map[string]struct{}),
		errStreak:              make(map[string]int),
		lastOKAt:               make(map[string]*time.Time),
		lastErrorAt:            make(map[string]time.Time),
		stopSent:               make(map[string]bool),
		providerIDs:            make(map[string]*string),
		lastSignature:          make(map[itemKey]string),
		prevOperatorIsBestAuto: make(map[itemKey]bool),
		endedKeys:              make(map[itemKey]bool),
	}
}

// Run consumes events until ctx is cancelled or in is closed. It polls
// with a small timeout between reads so the aggregate-telemetry window
// still advances during quiet periods, mirroring the Python
// implementation's run_once(timeout=0.05).
func (e *Engine) Run(ctx context.Context) {
	const pollTimeout = 50 * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-e.in:
			if !ok {
				return
			}
			e.Handle(ctx, ev)
			e.maybeEmitAggregatedLog(ctx)
		case <-time.After(pollTimeout):
			e.maybeEmitAggregatedLog(ctx)
		}
	}
}

// Handle dispatches a single event by kind. Exported so tests and a
// synchronous replay mode can drive the engine without a running Run
// loop.
func (e *Engine) Handle(ctx context.Context, ev event.Event) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	e.persistEvent(ctx, ev)

	switch ev.Kind {
	case event.KindSnapshot:
		e.handleSnapshot(ctx, ev)
		e.emit(ev)
	case event.KindUpdate:
		e.handleUpdate(ctx, ev)
	case event.KindHTTPError:
		e.handleHTTPError(ctx, ev)
	case event.KindEnd:
		e.handleEnd(ctx, ev)
	default:
		e.emit(ev)
	}
}

// persistEvent appends ev to the event log. Failures are logged and
// swallowed: the event log is an observability aid, not a path the
// rest of the engine depends on.
func (e *Engine) persistEvent(ctx context.Context, ev event.Event) {
	if e.repos == nil || e.repos.Events == nil {
		return
	}
	if err := e.repos.Events.Append(ctx, ev); err != nil {
		e.logger.ErrorContext(ctx, "persisting event", slog.Any("error", err))
	}
}

func (e *Engine) emit(ev event.Event) {
	if e.out == nil {
		return
	}
	e.out <- ev
}

func (e *Engine) sendControl(a ControlAction) {
	if e.control == nil {
		return
	}
	if a.CorrelationID == "" {
		a.CorrelationID = uuid.New().String()
	}
	e.control <- a
}

func (e *Engine) warn(ctx context.Context, kind event.Kind, msg string) {
	e.logger.WarnContext(ctx, msg, slog.String("kind", string(kind)))
	e.emit(event.Event{Level: event.LevelWarn, Kind: kind, Message: msg, CreatedAt: e.clock.Now()})
}

func (e *Engine) info(kind event.Kind, msg string) event.Event {
	return event.Event{Level: event.LevelInfo, Kind: kind, Message: msg, CreatedAt: e.clock.Now()}
}

// resolveAuctionExtID returns extID unchanged when it is already
// known, or falls back to the one auction the engine has seen via
// SNAPSHOT when extID is empty and exactly one is known (mirrors
// original_source/app/core/engine.py's id_cot resolution, which tolerates
// a collector that hasn't echoed the auction id on every event).
func (e *Engine) resolveAuctionExtID(extID string) string {
	if extID != "" {
		return extID
	}
	if len(e.knownAuctions) == 1 {
		for k := range e.knownAuctions {
			return k
		}
	}
	return ""
}

// updateAuctionState loads the current Auction row (or starts a fresh
// one), applies mutate, and persists it, avoiding a blind overwrite of
// fields the caller isn't touching (URL, ProviderID, CreatedAt, ...).
func (e *Engine) updateAuctionState(ctx context.Context, extID string, mutate func(*store.Auction)) (*store.Auction, error) {
	a, err := e.repos.Auctions.GetByExtID(ctx, extID)
	if err != nil || a == nil {
		a = &store.Auction{ExtID: extID, CreatedAt: e.clock.Now()}
	}
	mutate(a)
	if err := e.repos.Auctions.Upsert(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// providerID returns the operator's cached mi_id_proveedor for an
// auction, loading it from the store on first use.
func (e *Engine) providerID(ctx context.Context, extID string) *string {
	if id, ok := e.providerIDs[extID]; ok {
		return id
	}
	a, err := e.repos.Auctions.GetByExtID(ctx, extID)
	var id *string
	if err == nil && a != nil {
		id = a.ProviderID
	}
	e.providerIDs[extID] = id
	return id
}

// RefreshProviderID invalidates the cached mi_id_proveedor for an
// auction so the next tick reloads it from the store.
func (e *Engine) RefreshProviderID(extID string) {
	delete(e.providerIDs, extID)
}

// itemConfigOrDefault loads an item's operator config, substituting
// engine-level defaults for an override that was never set.
func (e *Engine) itemConfigOrDefault(ctx context.Context, extID, localID string) store.ItemConfig {
	cfg, err := e.repos.ItemConfigs.Get(ctx, extID, localID)
	if err != nil || cfg == nil {
		return store.ItemConfig{AuctionExtID: extID, LocalID: localID, HideBelowThreshold: e.cfg.DefaultHideBelowThreshold}
	}
	return *cfg
}
