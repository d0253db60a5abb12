// Package memstore is an in-memory store.Driver registered under
// "memory", used by engine/runtime unit tests that need a real
// store.Repositories without a SQLite file on disk (mirrors the
// teacher's provider_test.go fakeDriver pattern, but implements the
// full repository set rather than stubbing it out).
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/jholdgaard/subastamon/internal/clock"
	"github.com/jholdgaard/subastamon/internal/config"
	"github.com/jholdgaard/subastamon/internal/event"
	"github.com/jholdgaard/subastamon/internal/store"
)

func init() {
	store.Register("memory", Open)
}

type key struct{ auctionExtID, localID string }

// Open returns an in-memory store.Repositories. cfg is accepted for
// signature compatibility with store.Driver but otherwise ignored.
func Open(_ context.Context, _ config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
	m := &memStore{
		clk:        clk,
		auctions:   map[string]store.Auction{},
		items:      map[key]store.Item{},
		states:     map[key]store.ItemState{},
		commercial: map[key]store.ItemCommercial{},
		configs:    map[key]store.ItemConfig{},
		prefs:      map[string]string{},
	}
	return &store.Repositories{
		Auctions:    (*auctionRepo)(m),
		Items:       (*itemRepo)(m),
		ItemStates:  (*itemStateRepo)(m),
		Commercial:  (*commercialRepo)(m),
		ItemConfigs: (*itemConfigRepo)(m),
		Preferences: (*preferenceRepo)(m),
		Events:      (*eventStore)(m),
		Purge:       m.purge,
		Closer:      nopCloser{},
		Ping:        func(context.Context) error { return nil },
	}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type memStore struct {
	mu sync.RWMutex
	clk clock.Clock

	auctions   map[string]store.Auction
	items      map[key]store.Item
	states     map[key]store.ItemState
	commercial map[key]store.ItemCommercial
	configs    map[key]store.ItemConfig
	prefs      map[string]string
	events     []event.Event
}

func (m *memStore) purge(_ context.Context, mode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch mode {
	case "logs":
		m.events = nil
	case "states":
		m.states = map[key]store.ItemState{}
		m.commercial = map[key]store.ItemCommercial{}
		m.configs = map[key]store.ItemConfig{}
	case "all":
		m.auctions = map[string]store.Auction{}
		m.items = map[key]store.Item{}
		m.states = map[key]store.ItemState{}
		m.commercial = map[key]store.ItemCommercial{}
		m.configs = map[key]store.ItemConfig{}
		m.prefs = map[string]string{}
		m.events = nil
	default:
		return fmt.Errorf("memstore: unknown purge mode %q", mode)
	}
	return nil
}
