package engine

import (
	"context"
	"testing"
	"time"

	"github.com/jholdgaard/subastamon/internal/config"
	"github.com/jholdgaard/subastamon/internal/event"
	"github.com/jholdgaard/subastamon/internal/security"
	"github.com/jholdgaard/subastamon/internal/store"
	_ "github.com/jholdgaard/subastamon/internal/store/memstore"
)

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time        { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func drain(out chan event.Event) []event.Event {
	var got []event.Event
	for {
		select {
		case ev := <-out:
			got = append(got, ev)
		default:
			return got
		}
	}
}

// The first window after activity only arms the timer; nothing is
// emitted until a full AggWindowSeconds has elapsed.
func TestMaybeEmitAggregatedLog_WarmUpThenEmit(t *testing.T) {
	clk := &testClock{t: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)}
	repos, err := store.Open(context.Background(), config.DatabaseConfig{Driver: "memory"}, clk)
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	cfg := Config{DefaultMinMarginPct: 10, AggWindowSeconds: 10, BaseCadenceSeconds: 1.0}
	secCfg := security.Config{MaxErrorStreak: 10, MaxMinutesWithoutOK: 5, BackoffMultiplier: 2.0, MaxPollSeconds: 30.0, MinErrorStreakForBackoff: 1}
	out := make(chan event.Event, 256)
	e := New(repos, nil, out, nil, cfg, secCfg, nil, clk)
	ctx := context.Background()

	e.Handle(ctx, event.Event{Kind: event.KindUpdate, Update: &event.UpdatePayload{AuctionExtID: "A1", LocalID: "R1", TransportStatus: 200}})
	// Handle emits its own change-detected HEARTBEAT for this first
	// UPDATE; discard it so only the aggregate window is checked below.
	drain(out)
	e.maybeEmitAggregatedLog(ctx)

	for _, ev := range drain(out) {
		if ev.Kind == event.KindHeartbeat {
			t.Error("first aggregate window emitted a HEARTBEAT; want warm-up only")
		}
	}

	clk.advance(11 * time.Second)
	e.maybeEmitAggregatedLog(ctx)

	sawHeartbeat := false
	for _, ev := range drain(out) {
		if ev.Kind == event.KindHeartbeat {
			sawHeartbeat = true
		}
	}
	if !sawHeartbeat {
		t.Error("past the window, expected an aggregated HEARTBEAT")
	}

	if e.agg.total() != 0 {
		t.Errorf("agg counters not reset after emission: %+v", e.agg)
	}
}

// Calling maybeEmitAggregatedLog with no recorded activity is a no-op.
func TestMaybeEmitAggregatedLog_NoActivity(t *testing.T) {
	clk := &testClock{t: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)}
	repos, err := store.Open(context.Background(), config.DatabaseConfig{Driver: "memory"}, clk)
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	cfg := Config{DefaultMinMarginPct: 10, AggWindowSeconds: 10, BaseCadenceSeconds: 1.0}
	out := make(chan event.Event, 8)
	e := New(repos, nil, out, nil, cfg, security.DefaultConfig(), nil, clk)

	e.maybeEmitAggregatedLog(context.Background())
	if e.aggLastEmit != nil {
		t.Error("aggLastEmit armed despite no activity")
	}
	if len(drain(out)) != 0 {
		t.Error("expected no events emitted with no activity")
	}
}
