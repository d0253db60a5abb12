package engine

import (
	"context"
	"log/slog"

	"github.com/jholdgaard/subastamon/internal/event"
	"github.com/jholdgaard/subastamon/internal/store"
)

// handleEnd marks an auction ENDED. It is idempotent per (auction, item)
// key: a repeated END for the same pair is acknowledged but produces no
// further state transition or emitted HEARTBEAT.
func (e *Engine) handleEnd(ctx context.Context, ev event.Event) {
	p := ev.End
	if p == nil || p.AuctionExtID == "" {
		e.emit(ev)
		return
	}

	key := itemKey{auctionExtID: p.AuctionExtID, localID: p.LocalID}
	if e.endedKeys[key] {
		return
	}
	e.endedKeys[key] = true
	e.agg.end++

	now := e.clock.Now()
	if _, err := e.updateAuctionState(ctx, p.AuctionExtID, func(a *store.Auction) {
		a.State = store.AuctionEnded
		a.EndedAt = &now
	}); err != nil {
		e.logger.ErrorContext(ctx, "marking auction ended", slog.Any("error", err))
	}

	e.emit(e.info(event.KindHeartbeat, "auction marked ENDED (ext_id="+p.AuctionExtID+")"))
	e.emit(ev)
}
