package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jholdgaard/subastamon/internal/event"
	"github.com/jholdgaard/subastamon/internal/security"
	"github.com/jholdgaard/subastamon/internal/store"
)

// errorBurstWindow is the minimum gap between two HTTP_ERROR events
// before they count as distinct error streak steps, so one bad batch
// of near-simultaneous requests doesn't inflate the streak.
const errorBurstWindow = 1500 * time.Millisecond

// handleHTTPError applies the security policy to a collector-reported
// transport failure: it coalesces bursts into a single streak step,
// persists the ERROR state, and, depending on the policy's decision,
// raises the cadence or transitions the auction to ENDED.
func (e *Engine) handleHTTPError(ctx context.Context, ev event.Event) {
	p := ev.HTTPError
	httpStatus := 500
	var extIDHint string
	if p != nil {
		httpStatus = p.TransportStatus
		extIDHint = p.AuctionExtID
	}

	e.agg.httpError++

	auctionExtID := e.resolveAuctionExtID(extIDHint)
	if auctionExtID == "" {
		e.emit(ev)
		return
	}

	now := e.clock.Now()
	prevStreak := e.errStreak[auctionExtID]
	lastErr, hadLastErr := e.lastErrorAt[auctionExtID]

	streak := prevStreak
	if !hadLastErr || now.Sub(lastErr) >= errorBurstWindow {
		streak = prevStreak + 1
		e.lastErrorAt[auctionExtID] = now
	}
	e.errStreak[auctionExtID] = streak

	lastOKAt := e.lastOKAt[auctionExtID]

	if _, err := e.updateAuctionState(ctx, auctionExtID, func(a *store.Auction) {
		a.State = store.AuctionError
		a.ErrorStreak = streak
		a.LastStatus = httpStatus
		a.LastSuccessAt = lastOKAt
	}); err != nil {
		e.logger.ErrorContext(ctx, "persisting auction error state", slog.Any("error", err))
	}

	message := ""
	if p != nil {
		message = p.Message
	}
	decision := security.Evaluate(e.securityCfg, security.Input{
		CurrentPollSeconds: e.currentCadence,
		ErrStreak:          streak,
		LastOKAt:           lastOKAt,
		HTTPStatus:         httpStatus,
		Message:            message,
		Now:                now,
	})

	detail := fmt.Sprintf("HTTP=%d streak=%d -> %s (%s)", httpStatus, streak, decision.Action, decision.Message)
	e.emit(event.Event{
		Level:     event.LevelWarn,
		Kind:      event.KindHTTPError,
		Message:   detail,
		AuctionID: &auctionExtID,
		CreatedAt: e.clock.Now(),
		HTTPError: p,
	})

	if decision.Action == security.ActionBackoff && decision.NewPollSeconds != nil {
		if *decision.NewPollSeconds > e.currentCadence {
			e.currentCadence = *decision.NewPollSeconds
			e.sendControl(ControlAction{Kind: ControlBackoff, Seconds: *decision.NewPollSeconds})
		}
	}

	if decision.Action == security.ActionStop {
		endedAt := e.clock.Now()
		if _, err := e.updateAuctionState(ctx, auctionExtID, func(a *store.Auction) {
			a.State = store.AuctionEnded
			a.EndedAt = &endedAt
		}); err != nil {
			e.logger.ErrorContext(ctx, "transitioning auction to ended on security stop", slog.Any("error", err))
		}

		e.emit(event.Event{
			Level:     event.LevelInfo,
			Kind:      event.KindEnd,
			Message:   "stopped by security policy",
			AuctionID: &auctionExtID,
			CreatedAt: e.clock.Now(),
			End:       &event.EndPayload{AuctionExtID: auctionExtID, Reason: decision.Message},
		})

		if !e.stopSent[auctionExtID] {
			e.stopSent[auctionExtID] = true
			e.sendControl(ControlAction{Kind: ControlStop, Reason: decision.Message})
		}
	}
}
