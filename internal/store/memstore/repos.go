package memstore

import (
	"context"
	"fmt"

	"github.com/jholdgaard/subastamon/internal/event"
	"github.com/jholdgaard/subastamon/internal/store"
)

type auctionRepo memStore

func (r *auctionRepo) Upsert(_ context.Context, a *store.Auction) error {
	m := (*memStore)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auctions[a.ExtID] = *a
	return nil
}

func (r *auctionRepo) GetByExtID(_ context.Context, extID string) (*store.Auction, error) {
	m := (*memStore)(r)
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.auctions[extID]
	if !ok {
		return nil, fmt.Errorf("memstore: auction %s not found", extID)
	}
	return &a, nil
}

func (r *auctionRepo) Current(_ context.Context) (*store.Auction, error) {
	m := (*memStore)(r)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.auctions {
		if a.State == store.AuctionRunning {
			cp := a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *auctionRepo) ListRunning(_ context.Context) ([]store.Auction, error) {
	m := (*memStore)(r)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []store.Auction
	for _, a := range m.auctions {
		if a.State == store.AuctionRunning {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *auctionRepo) End(_ context.Context, extID string) error {
	m := (*memStore)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[extID]
	if !ok || a.State == store.AuctionEnded {
		return nil
	}
	a.State = store.AuctionEnded
	m.auctions[extID] = a
	return nil
}

type itemRepo memStore

func (r *itemRepo) Upsert(_ context.Context, i *store.Item) error {
	m := (*memStore)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key{i.AuctionExtID, i.LocalID}] = *i
	return nil
}

func (r *itemRepo) Get(_ context.Context, auctionExtID, localID string) (*store.Item, error) {
	m := (*memStore)(r)
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.items[key{auctionExtID, localID}]
	if !ok {
		return nil, fmt.Errorf("memstore: item %s/%s not found", auctionExtID, localID)
	}
	return &i, nil
}

func (r *itemRepo) ListForAuction(_ context.Context, auctionExtID string) ([]store.Item, error) {
	m := (*memStore)(r)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []store.Item
	for k, i := range m.items {
		if k.auctionExtID == auctionExtID {
			out = append(out, i)
		}
	}
	return out, nil
}

type itemStateRepo memStore

func (r *itemStateRepo) Upsert(_ context.Context, s *store.ItemState) error {
	m := (*memStore)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	s.UpdatedAt = m.clk.Now()
	m.states[key{s.AuctionExtID, s.LocalID}] = *s
	return nil
}

func (r *itemStateRepo) Get(_ context.Context, auctionExtID, localID string) (*store.ItemState, error) {
	m := (*memStore)(r)
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[key{auctionExtID, localID}]
	if !ok {
		return nil, fmt.Errorf("memstore: item state %s/%s not found", auctionExtID, localID)
	}
	return &s, nil
}

type commercialRepo memStore

func (r *commercialRepo) Upsert(_ context.Context, c *store.ItemCommercial) error {
	if c.MinMargin < 0 || c.MinMargin > 1 {
		return fmt.Errorf("memstore: min_margin must be a fraction in [0,1], got %v", c.MinMargin)
	}
	if c.TotalCostARS != nil && c.Quantity != nil && *c.Quantity != 0 {
		unit := *c.TotalCostARS / *c.Quantity
		c.UnitCostARS = &unit
	} else if c.UnitCostARS != nil && c.Quantity != nil {
		total := *c.UnitCostARS * *c.Quantity
		c.TotalCostARS = &total
	}

	m := (*memStore)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commercial[key{c.AuctionExtID, c.LocalID}] = *c
	return nil
}

func (r *commercialRepo) Get(_ context.Context, auctionExtID, localID string) (*store.ItemCommercial, error) {
	m := (*memStore)(r)
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.commercial[key{auctionExtID, localID}]
	if !ok {
		return nil, fmt.Errorf("memstore: commercial data %s/%s not found", auctionExtID, localID)
	}
	return &c, nil
}

func (r *commercialRepo) ListForAuction(_ context.Context, auctionExtID string) ([]store.ItemCommercial, error) {
	m := (*memStore)(r)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []store.ItemCommercial
	for k, c := range m.commercial {
		if k.auctionExtID == auctionExtID {
			out = append(out, c)
		}
	}
	return out, nil
}

type itemConfigRepo memStore

func (r *itemConfigRepo) Upsert(_ context.Context, c *store.ItemConfig) error {
	m := (*memStore)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[key{c.AuctionExtID, c.LocalID}] = *c
	return nil
}

func (r *itemConfigRepo) Get(_ context.Context, auctionExtID, localID string) (*store.ItemConfig, error) {
	m := (*memStore)(r)
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.configs[key{auctionExtID, localID}]
	if !ok {
		// Items start with the config zero value until the operator
		// (or a default-applying engine step) sets one explicitly.
		return &store.ItemConfig{AuctionExtID: auctionExtID, LocalID: localID}, nil
	}
	return &c, nil
}

type preferenceRepo memStore

func (r *preferenceRepo) Set(_ context.Context, k, v string) error {
	m := (*memStore)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[k] = v
	return nil
}

func (r *preferenceRepo) Get(_ context.Context, k string) (string, bool, error) {
	m := (*memStore)(r)
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.prefs[k]
	return v, ok, nil
}

type eventStore memStore

func (s *eventStore) Append(_ context.Context, events ...event.Event) error {
	m := (*memStore)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (s *eventStore) ForAuction(_ context.Context, auctionExtID string) ([]event.Event, error) {
	m := (*memStore)(s)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []event.Event
	for _, e := range m.events {
		if e.AuctionID != nil && *e.AuctionID == auctionExtID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *eventStore) ForKind(_ context.Context, kind event.Kind) ([]event.Event, error) {
	m := (*memStore)(s)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []event.Event
	for _, e := range m.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *eventStore) Purge(ctx context.Context, mode string) error {
	return (*memStore)(s).purge(ctx, mode)
}
