// Package sqlitestore implements internal/store's repository
// interfaces against a single SQLite file via jmoiron/sqlx and
// mattn/go-sqlite3, registering itself under the "sqlite" driver name.
package sqlitestore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/jholdgaard/subastamon/internal/clock"
	"github.com/jholdgaard/subastamon/internal/config"
	"github.com/jholdgaard/subastamon/internal/store"
)

//go:embed migrations/001_initial.sql
var initialSchema string

// ErrMarginOutOfRange is returned when a minimum-margin value outside
// [0,1] reaches the store boundary (spec's minimum_margin invariant;
// legacy "percent as multiplier" values are rejected, not silently
// divided by 100).
var ErrMarginOutOfRange = errors.New("sqlitestore: min_margin must be a fraction in [0,1]")

func init() {
	store.Register("sqlite", Open)
}

// additiveColumn describes one column this binary's schema expects
// that may be missing from an older database file.
type additiveColumn struct {
	table  string
	column string
	ddl    string
}

// additiveColumns is walked on every Open; any column absent from
// PRAGMA table_info(table) is added via ALTER TABLE. Columns are never
// dropped or renamed here — only appended.
var additiveColumns = []additiveColumn{
	// Reserved for future schema growth. Intentionally empty at v1;
	// entries are appended here, never removed, as the schema grows.
}

// Open connects to the SQLite file at cfg.Path, applies the initial
// schema and any additive column migrations, and sets the PRAGMAs
// spec.md §4.2 requires.
func Open(ctx context.Context, cfg config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlitestore: database.path is empty")
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", cfg.Path)
	db, err := sqlx.ConnectContext(ctx, "sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: opening %q: %w", cfg.Path, err)
	}

	if _, err := db.ExecContext(ctx, initialSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: applying initial schema: %w", err)
	}

	if err := migrateAdditiveColumns(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: additive migration: %w", err)
	}

	return &store.Repositories{
		Auctions:    &auctionRepo{db: db},
		Items:       &itemRepo{db: db},
		ItemStates:  &itemStateRepo{db: db, clk: clk},
		Commercial:  &commercialRepo{db: db},
		ItemConfigs: &itemConfigRepo{db: db},
		Preferences: &preferenceRepo{db: db},
		Events:      &eventStore{db: db},
		Purge:       func(ctx context.Context, mode string) error { return purge(ctx, db, mode) },
		Closer:      db,
		Ping:        db.PingContext,
	}, nil
}

func migrateAdditiveColumns(ctx context.Context, db *sqlx.DB) error {
	tableCols := map[string]map[string]bool{}

	for _, c := range additiveColumns {
		cols, ok := tableCols[c.table]
		if !ok {
			cols = map[string]bool{}
			rows, err := db.QueryxContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", c.table))
			if err != nil {
				return fmt.Errorf("inspecting table %s: %w", c.table, err)
			}
			for rows.Next() {
				row := map[string]any{}
				if err := rows.MapScan(row); err != nil {
					rows.Close()
					return err
				}
				if name, ok := row["name"].(string); ok {
					cols[name] = true
				}
			}
			rows.Close()
			tableCols[c.table] = cols
		}

		if cols[c.column] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", c.table, c.ddl)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("adding column %s.%s: %w", c.table, c.column, err)
		}
		cols[c.column] = true
	}

	return nil
}
