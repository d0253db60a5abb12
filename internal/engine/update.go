package engine

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jholdgaard/subastamon/internal/alert"
	"github.com/jholdgaard/subastamon/internal/event"
	"github.com/jholdgaard/subastamon/internal/store"
)

// handleUpdate applies one best-offer poll result: it resolves (or
// creates) the item, records the raw/parsed state, recovers the base
// cadence if the engine had backed off, derives the full set of
// commercial figures, runs auto-attribution/outbid detection, invokes
// the alert engine, and emits a derived UPDATE event carrying
// everything downstream consumers need.
func (e *Engine) handleUpdate(ctx context.Context, ev event.Event) {
	p := ev.Update
	if p == nil || p.LocalID == "" {
		e.warn(ctx, event.KindException, "UPDATE missing local_id")
		return
	}
	localID := p.LocalID

	auctionExtID := e.resolveAuctionExtID(p.AuctionExtID)
	if auctionExtID == "" {
		e.agg.updates++
		return
	}

	// Once (auction, item) has been ENDed, later UPDATEs for the same
	// pair are logged (persistEvent already ran in Handle) but must not
	// revive the auction's state or rewrite item_state.
	if e.endedKeys[itemKey{auctionExtID, p.LocalID}] {
		e.agg.updates++
		return
	}

	if _, err := e.repos.Items.Get(ctx, auctionExtID, p.LocalID); err != nil {
		desc := strings.TrimSpace(p.Description)
		if desc == "" {
			desc = "item without description"
		}
		item := &store.Item{AuctionExtID: auctionExtID, LocalID: p.LocalID, Description: desc, CreatedAt: e.clock.Now()}
		if err := e.repos.Items.Upsert(ctx, item); err != nil {
			e.logger.ErrorContext(ctx, "creating item on update", slog.Any("error", err))
			return
		}
	}

	httpStatus := p.TransportStatus
	if httpStatus == 0 {
		httpStatus = 200
	}

	state := &store.ItemState{
		AuctionExtID:     auctionExtID,
		LocalID:          p.LocalID,
		BestOfferText:    p.BestOfferText,
		BestOfferValue:   p.BestOfferValue,
		OfferToBeatText:  p.OfferToBeatText,
		OfferToBeatValue: p.OfferToBeatValue,
		BudgetText:       p.BudgetText,
		BudgetValue:      p.BudgetValue,
		PortalMessage:    p.PortalMessage,
	}
	if err := e.repos.ItemStates.Upsert(ctx, state); err != nil {
		e.logger.ErrorContext(ctx, "upserting item state", slog.Any("error", err))
	}

	now := e.clock.Now()
	if _, err := e.updateAuctionState(ctx, auctionExtID, func(a *store.Auction) {
		a.State = store.AuctionRunning
		a.LastSuccessAt = &now
		a.ErrorStreak = 0
		a.LastStatus = httpStatus
	}); err != nil {
		e.logger.ErrorContext(ctx, "marking auction running", slog.Any("error", err))
	}
	e.errStreak[auctionExtID] = 0
	e.lastOKAt[auctionExtID] = &now
	delete(e.lastErrorAt, auctionExtID)

	// Auto-recovery: a valid reply means the collector is healthy
	// again, so drop any accumulated backoff back to the base cadence.
	if e.currentCadence > e.cfg.BaseCadenceSeconds {
		e.currentCadence = e.cfg.BaseCadenceSeconds
		e.sendControl(ControlAction{Kind: ControlBackoff, Seconds: e.cfg.BaseCadenceSeconds})
	}

	key := itemKey{auctionExtID, p.LocalID}
	sig := p.BestOfferText + "|" + p.OfferToBeatText + "|" + p.PortalMessage
	changed := e.lastSignature[key] != sig
	e.lastSignature[key] = sig

	e.agg.updates++
	if changed {
		e.agg.changed++
	}

	commercial, err := e.repos.Commercial.Get(ctx, auctionExtID, p.LocalID)
	if err != nil || commercial == nil {
		commercial = &store.ItemCommercial{AuctionExtID: auctionExtID, LocalID: p.LocalID, MinMargin: e.cfg.DefaultMinMarginPct / 100.0}
	}

	commercial.UnitCostARS, commercial.TotalCostARS = resolveFinalCost(commercial.UnitCostARS, commercial.TotalCostARS, commercial.Quantity)

	if commercial.USDConversion != nil && *commercial.USDConversion > 0 {
		conv := *commercial.USDConversion
		commercial.UnitCostUSD = safeDiv(commercial.UnitCostARS, &conv)
		commercial.TotalCostUSD = safeDiv(commercial.TotalCostARS, &conv)
	}

	minMarginFraction := commercial.MinMargin
	acceptableUnit := safeMul(ratioPlusOne(minMarginFraction), commercial.UnitCostARS)
	acceptableTotal := safeMul(ratioPlusOne(minMarginFraction), commercial.TotalCostARS)
	commercial.AcceptableUnitPrice = acceptableUnit
	commercial.AcceptableTotalPrice = acceptableTotal

	if commercial.ReferenceUnitCost == nil && commercial.BudgetReference != nil {
		commercial.ReferenceUnitCost = safeDiv(commercial.BudgetReference, commercial.Quantity)
	}

	commercial.ReferenceMargin = resolveMargin(commercial.BudgetReference, commercial.TotalCostARS, commercial.ReferenceUnitCost, commercial.UnitCostARS)

	unitImprovementPrice := safeDiv(p.OfferToBeatValue, commercial.Quantity)
	commercial.UnitImprovementPrice = unitImprovementPrice

	improvementMargin := resolveMargin(nil, nil, unitImprovementPrice, commercial.UnitCostARS)

	// margin_pct feeds the alert decision directly; prefer the
	// improvement margin, else fall back to offer_to_beat vs. the
	// item's base cost (total preferred, unit otherwise).
	var marginPct *float64
	if improvementMargin != nil {
		v := *improvementMargin * 100.0
		marginPct = &v
	} else {
		baseCost := commercial.TotalCostARS
		if baseCost == nil {
			baseCost = commercial.UnitCostARS
		}
		if baseCost != nil && *baseCost > 0 && p.OfferToBeatValue != nil {
			v := ((*p.OfferToBeatValue - *baseCost) / *baseCost) * 100.0
			marginPct = &v
		}
	}
	commercial.MarginToBeat = marginPct
	commercial.BestOfferSnapshot = p.BestOfferText

	changeNote := commercial.ChangeNote
	switch {
	case p.LastOfferTime != "":
		changeNote = "last offer: " + p.LastOfferTime
	case p.PortalMessage != "":
		changeNote = p.PortalMessage
	}
	commercial.ChangeNote = changeNote

	cfg := e.itemConfigOrDefault(ctx, auctionExtID, p.LocalID)
	tracked := cfg.Follow || (commercial.TotalCostARS != nil || commercial.UnitCostARS != nil)
	offerIsMine := cfg.MyBid

	// Auto-attribution and outbid detection.
	myProviderID := e.providerID(ctx, auctionExtID)
	offerIsMineAuto := p.BestProviderID != "" && myProviderID != nil &&
		strings.TrimSpace(p.BestProviderID) == strings.TrimSpace(*myProviderID)
	if offerIsMineAuto {
		offerIsMine = true
	}

	prevAuto := e.prevOperatorIsBestAuto[key]
	outbid := prevAuto && !offerIsMineAuto && changed && myProviderID != nil
	e.prevOperatorIsBestAuto[key] = offerIsMineAuto

	if outbid {
		e.emit(event.Event{
			Level:     event.LevelWarn,
			Kind:      event.KindOutbid,
			Message:   "your offer was outbid on item " + localID,
			AuctionID: &auctionExtID,
			ItemID:    &localID,
			CreatedAt: e.clock.Now(),
		})
	}

	if err := e.repos.Commercial.Upsert(ctx, commercial); err != nil {
		e.logger.ErrorContext(ctx, "upserting commercial data on update", slog.Any("error", err))
	}

	decision := alert.Decide(alert.Input{
		Tracked:            tracked,
		OfferIsMine:        offerIsMine,
		OfferIsMineAuto:    offerIsMineAuto,
		Outbid:             outbid,
		MarginPct:          marginPct,
		MinMarginPct:       minMarginPct(cfg, minMarginFraction, e.cfg.DefaultMinMarginPct),
		HideBelowThreshold: hideBelowThreshold(cfg, e.cfg.DefaultHideBelowThreshold),
		Changed:            changed,
		HTTPStatus:         httpStatus,
		Message:            p.PortalMessage,
	})

	if changed {
		e.emit(e.info(event.KindHeartbeat, "change detected on item "+localID+": best="+p.BestOfferText+" to-beat="+p.OfferToBeatText))
	}

	e.emit(event.Event{
		Level:     event.LevelInfo,
		Kind:      event.KindUpdate,
		Message:   ev.Message,
		AuctionID: &auctionExtID,
		ItemID:    &localID,
		CreatedAt: e.clock.Now(),
		Update: &event.UpdatePayload{
			AuctionExtID:       auctionExtID,
			LocalID:            localID,
			Description:        p.Description,
			BestOfferText:      p.BestOfferText,
			BestOfferValue:     p.BestOfferValue,
			OfferToBeatText:    p.OfferToBeatText,
			OfferToBeatValue:   p.OfferToBeatValue,
			BudgetText:         p.BudgetText,
			BudgetValue:        p.BudgetValue,
			PortalMessage:      p.PortalMessage,
			LastOfferTime:      p.LastOfferTime,
			BestProviderID:     p.BestProviderID,
			TransportStatus:    httpStatus,
			Changed:            changed,
			MarginPct:          marginPct,
			OperatorIsBest:     offerIsMine,
			OperatorIsBestAuto: offerIsMineAuto,
			Outbid:             outbid,
			AlertStyle:         string(decision.Style),
			Sound:              string(decision.Sound),
			Highlight:          decision.Highlight,
			Hide:               decision.Hide,
			DecisionMessage:    decision.Message,
		},
	})

	if strings.Contains(strings.ToLower(p.PortalMessage), "finalizada") {
		e.handleEnd(ctx, event.Event{
			Level:   event.LevelInfo,
			Kind:    event.KindEnd,
			Message: "auction end detected from portal message",
			End: &event.EndPayload{
				AuctionExtID: auctionExtID,
				LocalID:      localID,
				Reason:       "portal message contained end-of-auction marker",
			},
		})
	}
}

// ratioPlusOne returns (1 + fraction) as a pointer for use with
// safeMul; min_margin is always defined (defaults to the engine
// config's default), so this never needs to express "absent".
func ratioPlusOne(fraction float64) *float64 {
	v := 1.0 + fraction
	return &v
}

func minMarginPct(cfg store.ItemConfig, commercialFraction, defaultPct float64) float64 {
	if cfg.MinMarginOverride != nil {
		return *cfg.MinMarginOverride
	}
	if commercialFraction > 0 {
		return commercialFraction * 100.0
	}
	return defaultPct
}

func hideBelowThreshold(cfg store.ItemConfig, defaultVal bool) bool {
	if cfg.HideBelowThreshold {
		return true
	}
	return defaultVal
}
