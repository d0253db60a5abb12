package sqlitestore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jholdgaard/subastamon/internal/event"
)

type eventStore struct{ db *sqlx.DB }

func (s *eventStore) Append(ctx context.Context, events ...event.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("appending events: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, e := range events {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO events (id, level, kind, message, auction_id, item_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.Level, e.Kind, e.Message, e.AuctionID, e.ItemID, e.CreatedAt)
		if err != nil {
			return fmt.Errorf("appending event %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

func (s *eventStore) ForAuction(ctx context.Context, auctionExtID string) ([]event.Event, error) {
	var events []event.Event
	err := s.db.SelectContext(ctx, &events,
		`SELECT * FROM events WHERE auction_id = ? ORDER BY created_at ASC`, auctionExtID)
	if err != nil {
		return nil, fmt.Errorf("listing events for auction %s: %w", auctionExtID, err)
	}
	return events, nil
}

func (s *eventStore) ForKind(ctx context.Context, kind event.Kind) ([]event.Event, error) {
	var events []event.Event
	err := s.db.SelectContext(ctx, &events,
		`SELECT * FROM events WHERE kind = ? ORDER BY created_at ASC`, kind)
	if err != nil {
		return nil, fmt.Errorf("listing events of kind %s: %w", kind, err)
	}
	return events, nil
}

func (s *eventStore) Purge(ctx context.Context, mode string) error {
	return purge(ctx, s.db, mode)
}
