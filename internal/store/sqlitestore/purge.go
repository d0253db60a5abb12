package sqlitestore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// purge implements the "logs" / "states" / "all" purge modes from
// spec.md §4.2. "states" (and "all") run with foreign_keys temporarily
// disabled for the duration of the cascade, per spec's explicit
// allowance, then re-enable it.
func purge(ctx context.Context, db *sqlx.DB, mode string) error {
	switch mode {
	case "logs":
		if _, err := db.ExecContext(ctx, `DELETE FROM events`); err != nil {
			return fmt.Errorf("purging logs: %w", err)
		}
		return nil
	case "states", "all":
		return purgeWithFKDisabled(ctx, db, mode)
	default:
		return fmt.Errorf("sqlitestore: unknown purge mode %q", mode)
	}
}

func purgeWithFKDisabled(ctx context.Context, db *sqlx.DB, mode string) error {
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys=OFF`); err != nil {
		return fmt.Errorf("disabling foreign keys for purge: %w", err)
	}
	defer db.ExecContext(ctx, `PRAGMA foreign_keys=ON`)

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning purge transaction: %w", err)
	}
	defer tx.Rollback()

	tables := []string{"item_config", "item_commercial", "item_states"}
	if mode == "all" {
		tables = append(tables, "items", "auctions", "events", "ui_preferences")
	}

	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("purging table %s: %w", table, err)
		}
	}

	return tx.Commit()
}
