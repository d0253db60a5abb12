package memstore_test

import (
	"context"
	"testing"

	"github.com/jholdgaard/subastamon/internal/clock"
	"github.com/jholdgaard/subastamon/internal/config"
	"github.com/jholdgaard/subastamon/internal/store"
	_ "github.com/jholdgaard/subastamon/internal/store/memstore"
)

func TestMemstore_AuctionLifecycle(t *testing.T) {
	repos, err := store.Open(context.Background(), config.DatabaseConfig{Driver: "memory"}, clock.Real{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	ctx := context.Background()

	a := &store.Auction{ExtID: "A1", State: store.AuctionRunning}
	if err := repos.Auctions.Upsert(ctx, a); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	current, err := repos.Auctions.Current(ctx)
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if current == nil || current.ExtID != "A1" {
		t.Fatalf("Current() = %v, want A1", current)
	}

	if err := repos.Auctions.End(ctx, "A1"); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	current, err = repos.Auctions.Current(ctx)
	if err != nil {
		t.Fatalf("Current() after End error = %v", err)
	}
	if current != nil {
		t.Errorf("Current() after End = %v, want nil", current)
	}
}

func TestMemstore_Purge(t *testing.T) {
	repos, _ := store.Open(context.Background(), config.DatabaseConfig{Driver: "memory"}, clock.Real{})
	ctx := context.Background()

	_ = repos.Auctions.Upsert(ctx, &store.Auction{ExtID: "A1"})
	if err := repos.Purge(ctx, "all"); err != nil {
		t.Fatalf("Purge(all) error = %v", err)
	}
	got, err := repos.Auctions.GetByExtID(ctx, "A1")
	if err == nil {
		t.Errorf("GetByExtID() after purge all = %v, want error", got)
	}
}
