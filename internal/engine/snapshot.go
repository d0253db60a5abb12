package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jholdgaard/subastamon/internal/event"
	"github.com/jholdgaard/subastamon/internal/store"
)

// handleSnapshot applies a full-capture SNAPSHOT: upserts the auction
// as RUNNING with its error streak reset, then upserts every item and,
// for items that carry a quantity, reference or budget figure, its
// commercial row, preserving any operator-supplied fields the event
// did not carry.
func (e *Engine) handleSnapshot(ctx context.Context, ev event.Event) {
	p := ev.Snapshot
	if p == nil || p.AuctionExtID == "" {
		e.warn(ctx, event.KindException, "SNAPSHOT missing auction_ext_id")
		return
	}

	if _, err := e.updateAuctionState(ctx, p.AuctionExtID, func(a *store.Auction) {
		a.URL = p.URL
		a.State = store.AuctionRunning
		a.ErrorStreak = 0
	}); err != nil {
		e.logger.ErrorContext(ctx, "upserting auction on snapshot", slog.Any("error", err))
		return
	}
	e.knownAuctions[p.AuctionExtID] = struct{}{}
	e.errStreak[p.AuctionExtID] = 0
	delete(e.lastOKAt, p.AuctionExtID)
	delete(e.lastErrorAt, p.AuctionExtID)

	for _, it := range p.Items {
		if it.LocalID == "" {
			continue
		}
		desc := strings.TrimSpace(it.Text)
		if desc == "" {
			desc = "item without description"
		}
		item := &store.Item{
			AuctionExtID: p.AuctionExtID,
			LocalID:      it.LocalID,
			Description:  desc,
			MarginString: p.MarginString,
			CreatedAt:    e.clock.Now(),
		}
		if err := e.repos.Items.Upsert(ctx, item); err != nil {
			e.logger.ErrorContext(ctx, "upserting item on snapshot", slog.Any("error", err))
			continue
		}

		if it.Quantity == nil && it.ReferenceTotal == nil && it.ReferenceUnit == nil && it.Budget == nil {
			continue
		}

		existing, err := e.repos.Commercial.Get(ctx, p.AuctionExtID, it.LocalID)
		if err != nil || existing == nil {
			existing = &store.ItemCommercial{
				AuctionExtID: p.AuctionExtID,
				LocalID:      it.LocalID,
				MinMargin:    e.cfg.DefaultMinMarginPct / 100.0,
			}
		}

		existing.Quantity = firstNonNil(it.Quantity, existing.Quantity)

		// The official budget reference is the TOTAL figure; "Budget"
		// on the snapshot item is the legacy/compat field used when a
		// dedicated reference_total is absent.
		refTotal := it.ReferenceTotal
		if refTotal == nil {
			refTotal = it.Budget
		}
		if refTotal != nil {
			existing.BudgetReference = refTotal
		}

		refUnit := resolveReferenceUnitPrice(existing.Quantity, it.ReferenceUnit, refTotal)
		if refUnit == nil {
			refUnit = firstNonNil(it.ReferenceUnit, existing.ReferenceUnitCost)
		}
		existing.ReferenceUnitCost = refUnit

		if err := e.repos.Commercial.Upsert(ctx, existing); err != nil {
			e.logger.ErrorContext(ctx, "upserting commercial data on snapshot", slog.Any("error", err))
		}
	}

	e.emit(e.info(event.KindHeartbeat, fmt.Sprintf("SNAPSHOT applied (auction=%s, items=%d)", p.AuctionExtID, len(p.Items))))
}
