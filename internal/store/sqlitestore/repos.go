package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jholdgaard/subastamon/internal/clock"
	"github.com/jholdgaard/subastamon/internal/store"
)

type auctionRepo struct{ db *sqlx.DB }

func (r *auctionRepo) Upsert(ctx context.Context, a *store.Auction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO auctions (ext_id, url, state, provider_id, error_streak, last_success_at, last_status, created_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ext_id) DO UPDATE SET
			url = excluded.url,
			state = excluded.state,
			provider_id = excluded.provider_id,
			error_streak = excluded.error_streak,
			last_success_at = excluded.last_success_at,
			last_status = excluded.last_status,
			ended_at = excluded.ended_at`,
		a.ExtID, a.URL, a.State, a.ProviderID, a.ErrorStreak, a.LastSuccessAt, a.LastStatus, a.CreatedAt, a.EndedAt)
	if err != nil {
		return fmt.Errorf("upserting auction %s: %w", a.ExtID, err)
	}
	return nil
}

func (r *auctionRepo) GetByExtID(ctx context.Context, extID string) (*store.Auction, error) {
	var a store.Auction
	err := r.db.GetContext(ctx, &a, `SELECT * FROM auctions WHERE ext_id = ?`, extID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("auction %s: %w", extID, sql.ErrNoRows)
	}
	if err != nil {
		return nil, fmt.Errorf("getting auction %s: %w", extID, err)
	}
	return &a, nil
}

func (r *auctionRepo) Current(ctx context.Context) (*store.Auction, error) {
	var a store.Auction
	err := r.db.GetContext(ctx, &a, `SELECT * FROM auctions WHERE state = ? ORDER BY created_at DESC LIMIT 1`, store.AuctionRunning)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting current auction: %w", err)
	}
	return &a, nil
}

func (r *auctionRepo) ListRunning(ctx context.Context) ([]store.Auction, error) {
	var auctions []store.Auction
	err := r.db.SelectContext(ctx, &auctions, `SELECT * FROM auctions WHERE state = ? ORDER BY created_at ASC`, store.AuctionRunning)
	if err != nil {
		return nil, fmt.Errorf("listing running auctions: %w", err)
	}
	return auctions, nil
}

func (r *auctionRepo) End(ctx context.Context, extID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE auctions SET state = ?, ended_at = CURRENT_TIMESTAMP WHERE ext_id = ? AND state != ?`,
		store.AuctionEnded, extID, store.AuctionEnded)
	if err != nil {
		return fmt.Errorf("ending auction %s: %w", extID, err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		// Already ended: END is idempotent per spec, not an error.
		return nil
	}
	return nil
}

type itemRepo struct{ db *sqlx.DB }

func (r *itemRepo) Upsert(ctx context.Context, i *store.Item) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO items (auction_ext_id, local_id, description, margin_string, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(auction_ext_id, local_id) DO UPDATE SET
			description = excluded.description,
			margin_string = excluded.margin_string`,
		i.AuctionExtID, i.LocalID, i.Description, i.MarginString, i.CreatedAt)
	if err != nil {
		return fmt.Errorf("upserting item %s/%s: %w", i.AuctionExtID, i.LocalID, err)
	}
	return nil
}

func (r *itemRepo) Get(ctx context.Context, auctionExtID, localID string) (*store.Item, error) {
	var i store.Item
	err := r.db.GetContext(ctx, &i, `SELECT * FROM items WHERE auction_ext_id = ? AND local_id = ?`, auctionExtID, localID)
	if err != nil {
		return nil, fmt.Errorf("getting item %s/%s: %w", auctionExtID, localID, err)
	}
	return &i, nil
}

func (r *itemRepo) ListForAuction(ctx context.Context, auctionExtID string) ([]store.Item, error) {
	var items []store.Item
	err := r.db.SelectContext(ctx, &items, `SELECT * FROM items WHERE auction_ext_id = ? ORDER BY local_id ASC`, auctionExtID)
	if err != nil {
		return nil, fmt.Errorf("listing items for auction %s: %w", auctionExtID, err)
	}
	return items, nil
}

type itemStateRepo struct {
	db  *sqlx.DB
	clk clock.Clock
}

func (r *itemStateRepo) Upsert(ctx context.Context, s *store.ItemState) error {
	s.UpdatedAt = r.clk.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO item_states (auction_ext_id, local_id, best_offer_text, best_offer_value,
			offer_to_beat_text, offer_to_beat_value, budget_text, budget_value, portal_message, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(auction_ext_id, local_id) DO UPDATE SET
			best_offer_text = excluded.best_offer_text,
			best_offer_value = excluded.best_offer_value,
			offer_to_beat_text = excluded.offer_to_beat_text,
			offer_to_beat_value = excluded.offer_to_beat_value,
			budget_text = excluded.budget_text,
			budget_value = excluded.budget_value,
			portal_message = excluded.portal_message,
			updated_at = excluded.updated_at`,
		s.AuctionExtID, s.LocalID, s.BestOfferText, s.BestOfferValue,
		s.OfferToBeatText, s.OfferToBeatValue, s.BudgetText, s.BudgetValue, s.PortalMessage, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting item state %s/%s: %w", s.AuctionExtID, s.LocalID, err)
	}
	return nil
}

func (r *itemStateRepo) Get(ctx context.Context, auctionExtID, localID string) (*store.ItemState, error) {
	var s store.ItemState
	err := r.db.GetContext(ctx, &s, `SELECT * FROM item_states WHERE auction_ext_id = ? AND local_id = ?`, auctionExtID, localID)
	if err != nil {
		return nil, fmt.Errorf("getting item state %s/%s: %w", auctionExtID, localID, err)
	}
	return &s, nil
}

type commercialRepo struct{ db *sqlx.DB }

func (r *commercialRepo) Upsert(ctx context.Context, c *store.ItemCommercial) error {
	if c.MinMargin < 0 || c.MinMargin > 1 {
		return fmt.Errorf("%w: got %v", ErrMarginOutOfRange, c.MinMargin)
	}

	// TOTAL given priority over UNIT when both cost fields are supplied,
	// per spec.md §3's atomic-write invariant.
	if c.TotalCostARS != nil && c.Quantity != nil && *c.Quantity != 0 {
		unit := *c.TotalCostARS / *c.Quantity
		c.UnitCostARS = &unit
	} else if c.UnitCostARS != nil && c.Quantity != nil {
		total := *c.UnitCostARS * *c.Quantity
		c.TotalCostARS = &total
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO item_commercial (auction_ext_id, local_id, unit, brand, notes, usd_conversion,
			unit_cost_ars, total_cost_ars, unit_cost_usd, total_cost_usd, min_margin, quantity,
			budget_reference, reference_unit_cost,
			acceptable_unit_price, acceptable_total_price, reference_margin, unit_improvement_price,
			margin_to_beat, best_offer_snapshot, change_note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(auction_ext_id, local_id) DO UPDATE SET
			unit = excluded.unit,
			brand = excluded.brand,
			notes = excluded.notes,
			usd_conversion = excluded.usd_conversion,
			unit_cost_ars = excluded.unit_cost_ars,
			total_cost_ars = excluded.total_cost_ars,
			unit_cost_usd = excluded.unit_cost_usd,
			total_cost_usd = excluded.total_cost_usd,
			min_margin = excluded.min_margin,
			quantity = excluded.quantity,
			budget_reference = excluded.budget_reference,
			reference_unit_cost = excluded.reference_unit_cost,
			acceptable_unit_price = excluded.acceptable_unit_price,
			acceptable_total_price = excluded.acceptable_total_price,
			reference_margin = excluded.reference_margin,
			unit_improvement_price = excluded.unit_improvement_price,
			margin_to_beat = excluded.margin_to_beat,
			best_offer_snapshot = excluded.best_offer_snapshot,
			change_note = excluded.change_note`,
		c.AuctionExtID, c.LocalID, c.Unit, c.Brand, c.Notes, c.USDConversion,
		c.UnitCostARS, c.TotalCostARS, c.UnitCostUSD, c.TotalCostUSD, c.MinMargin, c.Quantity,
		c.BudgetReference, c.ReferenceUnitCost,
		c.AcceptableUnitPrice, c.AcceptableTotalPrice, c.ReferenceMargin, c.UnitImprovementPrice,
		c.MarginToBeat, c.BestOfferSnapshot, c.ChangeNote)
	if err != nil {
		return fmt.Errorf("upserting commercial data %s/%s: %w", c.AuctionExtID, c.LocalID, err)
	}
	return nil
}

func (r *commercialRepo) Get(ctx context.Context, auctionExtID, localID string) (*store.ItemCommercial, error) {
	var c store.ItemCommercial
	err := r.db.GetContext(ctx, &c, `SELECT * FROM item_commercial WHERE auction_ext_id = ? AND local_id = ?`, auctionExtID, localID)
	if err != nil {
		return nil, fmt.Errorf("getting commercial data %s/%s: %w", auctionExtID, localID, err)
	}
	return &c, nil
}

func (r *commercialRepo) ListForAuction(ctx context.Context, auctionExtID string) ([]store.ItemCommercial, error) {
	var rows []store.ItemCommercial
	err := r.db.SelectContext(ctx, &rows, `SELECT * FROM item_commercial WHERE auction_ext_id = ? ORDER BY local_id ASC`, auctionExtID)
	if err != nil {
		return nil, fmt.Errorf("listing commercial data for auction %s: %w", auctionExtID, err)
	}
	return rows, nil
}

type itemConfigRepo struct{ db *sqlx.DB }

func (r *itemConfigRepo) Upsert(ctx context.Context, c *store.ItemConfig) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO item_config (auction_ext_id, local_id, follow, my_bid, min_margin_override, hide_below_threshold)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(auction_ext_id, local_id) DO UPDATE SET
			follow = excluded.follow,
			my_bid = excluded.my_bid,
			min_margin_override = excluded.min_margin_override,
			hide_below_threshold = excluded.hide_below_threshold`,
		c.AuctionExtID, c.LocalID, c.Follow, c.MyBid, c.MinMarginOverride, c.HideBelowThreshold)
	if err != nil {
		return fmt.Errorf("upserting item config %s/%s: %w", c.AuctionExtID, c.LocalID, err)
	}
	return nil
}

func (r *itemConfigRepo) Get(ctx context.Context, auctionExtID, localID string) (*store.ItemConfig, error) {
	var c store.ItemConfig
	err := r.db.GetContext(ctx, &c, `SELECT * FROM item_config WHERE auction_ext_id = ? AND local_id = ?`, auctionExtID, localID)
	if err != nil {
		return nil, fmt.Errorf("getting item config %s/%s: %w", auctionExtID, localID, err)
	}
	return &c, nil
}

type preferenceRepo struct{ db *sqlx.DB }

func (r *preferenceRepo) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ui_preferences (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("setting preference %s: %w", key, err)
	}
	return nil
}

func (r *preferenceRepo) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.GetContext(ctx, &value, `SELECT value FROM ui_preferences WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("getting preference %s: %w", key, err)
	}
	return value, true, nil
}
