package sqlitestore_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jholdgaard/subastamon/internal/clock"
	"github.com/jholdgaard/subastamon/internal/config"
	"github.com/jholdgaard/subastamon/internal/event"
	"github.com/jholdgaard/subastamon/internal/store"
	_ "github.com/jholdgaard/subastamon/internal/store/sqlitestore"
)

func eventForTest(id string) event.Event {
	return event.Event{ID: id, Level: event.LevelInfo, Kind: "TEST", CreatedAt: time.Now().UTC()}
}

func openTestDB(t *testing.T) *store.Repositories {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	repos, err := store.Open(context.Background(), config.DatabaseConfig{Driver: "sqlite", Path: path}, clock.Real{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { repos.Closer.Close() })
	return repos
}

func TestAuctionRoundTrip(t *testing.T) {
	repos := openTestDB(t)
	ctx := context.Background()

	a := &store.Auction{
		ExtID:     "ID-1",
		URL:       "https://portal.example/ID-1",
		State:     store.AuctionRunning,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := repos.Auctions.Upsert(ctx, a); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := repos.Auctions.GetByExtID(ctx, "ID-1")
	if err != nil {
		t.Fatalf("GetByExtID() error = %v", err)
	}
	if got.State != store.AuctionRunning {
		t.Errorf("State = %v, want %v", got.State, store.AuctionRunning)
	}

	if err := repos.Auctions.End(ctx, "ID-1"); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	got, err = repos.Auctions.GetByExtID(ctx, "ID-1")
	if err != nil {
		t.Fatalf("GetByExtID() after End error = %v", err)
	}
	if got.State != store.AuctionEnded {
		t.Errorf("State after End = %v, want %v", got.State, store.AuctionEnded)
	}

	// END is idempotent.
	if err := repos.Auctions.End(ctx, "ID-1"); err != nil {
		t.Errorf("second End() error = %v, want nil", err)
	}
}

func TestItemAndStateRoundTrip(t *testing.T) {
	repos := openTestDB(t)
	ctx := context.Background()

	auction := &store.Auction{ExtID: "ID-2", CreatedAt: time.Now().UTC()}
	if err := repos.Auctions.Upsert(ctx, auction); err != nil {
		t.Fatalf("Upsert(auction) error = %v", err)
	}

	item := &store.Item{AuctionExtID: "ID-2", LocalID: "1", Description: "widget", CreatedAt: time.Now().UTC()}
	if err := repos.Items.Upsert(ctx, item); err != nil {
		t.Fatalf("Upsert(item) error = %v", err)
	}

	bestVal := 123.45
	state := &store.ItemState{AuctionExtID: "ID-2", LocalID: "1", BestOfferText: "$ 123,45", BestOfferValue: &bestVal}
	if err := repos.ItemStates.Upsert(ctx, state); err != nil {
		t.Fatalf("Upsert(state) error = %v", err)
	}

	got, err := repos.ItemStates.Get(ctx, "ID-2", "1")
	if err != nil {
		t.Fatalf("Get(state) error = %v", err)
	}
	if got.BestOfferValue == nil || *got.BestOfferValue != 123.45 {
		t.Errorf("BestOfferValue = %v, want 123.45", got.BestOfferValue)
	}
}

func TestCommercial_TotalCostTakesPriorityOverUnit(t *testing.T) {
	repos := openTestDB(t)
	ctx := context.Background()

	auction := &store.Auction{ExtID: "ID-3", CreatedAt: time.Now().UTC()}
	_ = repos.Auctions.Upsert(ctx, auction)
	item := &store.Item{AuctionExtID: "ID-3", LocalID: "1", CreatedAt: time.Now().UTC()}
	_ = repos.Items.Upsert(ctx, item)

	qty := 10.0
	total := 1000.0
	c := &store.ItemCommercial{AuctionExtID: "ID-3", LocalID: "1", Quantity: &qty, TotalCostARS: &total, MinMargin: 0.1}
	if err := repos.Commercial.Upsert(ctx, c); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := repos.Commercial.Get(ctx, "ID-3", "1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.UnitCostARS == nil || *got.UnitCostARS != 100.0 {
		t.Errorf("UnitCostARS = %v, want 100", got.UnitCostARS)
	}
}

func TestCommercial_RejectsMarginOutOfRange(t *testing.T) {
	repos := openTestDB(t)
	ctx := context.Background()

	auction := &store.Auction{ExtID: "ID-4", CreatedAt: time.Now().UTC()}
	_ = repos.Auctions.Upsert(ctx, auction)
	item := &store.Item{AuctionExtID: "ID-4", LocalID: "1", CreatedAt: time.Now().UTC()}
	_ = repos.Items.Upsert(ctx, item)

	c := &store.ItemCommercial{AuctionExtID: "ID-4", LocalID: "1", MinMargin: 1.5}
	if err := repos.Commercial.Upsert(ctx, c); err == nil {
		t.Fatal("Upsert() error = nil, want ErrMarginOutOfRange")
	}
}

func TestPurge_Logs(t *testing.T) {
	repos := openTestDB(t)
	ctx := context.Background()

	if err := repos.Events.Append(ctx, eventForTest("e1")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := repos.Purge(ctx, "logs"); err != nil {
		t.Fatalf("Purge(logs) error = %v", err)
	}

	remaining, err := repos.Events.ForKind(ctx, "TEST")
	if err != nil {
		t.Fatalf("ForKind() error = %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("len(remaining) = %d, want 0", len(remaining))
	}
}
