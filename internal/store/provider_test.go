package store_test

import (
	"context"
	"strings"
	"testing"

	"github.com/jholdgaard/subastamon/internal/clock"
	"github.com/jholdgaard/subastamon/internal/config"
	"github.com/jholdgaard/subastamon/internal/store"

	// Import drivers so their init() functions register them.
	_ "github.com/jholdgaard/subastamon/internal/store/memstore"
	_ "github.com/jholdgaard/subastamon/internal/store/sqlitestore"
)

// fakeDriver is a store.Driver that always succeeds without connecting to a DB.
func fakeDriver(_ context.Context, _ config.DatabaseConfig, _ clock.Clock) (*store.Repositories, error) {
	return &store.Repositories{}, nil
}

func TestOpen(t *testing.T) {
	// Register a test driver.
	store.Register("test-driver", fakeDriver)

	tests := []struct {
		name    string
		driver  string
		wantErr bool
	}{
		{
			name:    "registered driver succeeds",
			driver:  "test-driver",
			wantErr: false,
		},
		{
			name:    "unknown driver fails",
			driver:  "nonexistent",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DatabaseConfig{Driver: tt.driver}
			_, err := store.Open(context.Background(), cfg, clock.Real{})
			if (err != nil) != tt.wantErr {
				t.Errorf("Open(driver=%q) error = %v, wantErr %v", tt.driver, err, tt.wantErr)
			}
		})
	}
}

func TestRegister(t *testing.T) {
	// Registering "sqlite" and "memory" should already be done via init()
	// imports. "memory" opens successfully with no file on disk; "sqlite"
	// with an empty path is expected to fail opening the database file,
	// but NOT with an "unknown driver" error.

	t.Run("memory", func(t *testing.T) {
		cfg := config.DatabaseConfig{Driver: "memory"}
		_, err := store.Open(context.Background(), cfg, clock.Real{})
		if err != nil {
			t.Fatalf("Open(memory) error = %v, want nil", err)
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := config.DatabaseConfig{Driver: "sqlite", Path: ""}
		_, err := store.Open(context.Background(), cfg, clock.Real{})
		if err == nil {
			t.Fatal("expected error opening sqlite with empty path, got nil")
		}
		if strings.Contains(err.Error(), "unknown store driver") {
			t.Errorf("expected a connection/path error, got unknown driver error: %v", err)
		}
	})
}
