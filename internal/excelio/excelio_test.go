package excelio_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/jholdgaard/subastamon/internal/clock"
	"github.com/jholdgaard/subastamon/internal/config"
	"github.com/jholdgaard/subastamon/internal/excelio"
	"github.com/jholdgaard/subastamon/internal/store"
	_ "github.com/jholdgaard/subastamon/internal/store/memstore"
)

// sheetFrom builds a minimal "Subastas" workbook with the given header
// row and data rows, for tests that don't need a full Export round trip.
func sheetFrom(t *testing.T, header []string, data [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), "Subastas"); err != nil {
		t.Fatalf("SetSheetName: %v", err)
	}
	if err := f.SetSheetRow("Subastas", "A1", &header); err != nil {
		t.Fatalf("SetSheetRow header: %v", err)
	}
	for i, row := range data {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow("Subastas", cell, &row); err != nil {
			t.Fatalf("SetSheetRow data: %v", err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return buf.Bytes()
}

func ptr(v float64) *float64 { return &v }

func seedAuction(t *testing.T, ctx context.Context) *store.Repositories {
	t.Helper()
	repos, err := store.Open(ctx, config.DatabaseConfig{Driver: "memory"}, clock.Real{})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	if err := repos.Auctions.Upsert(ctx, &store.Auction{ExtID: "AUC-1", State: store.AuctionRunning}); err != nil {
		t.Fatalf("seeding auction: %v", err)
	}
	if err := repos.Items.Upsert(ctx, &store.Item{AuctionExtID: "AUC-1", LocalID: "1", Description: "widget"}); err != nil {
		t.Fatalf("seeding item: %v", err)
	}
	if err := repos.Commercial.Upsert(ctx, &store.ItemCommercial{
		AuctionExtID: "AUC-1", LocalID: "1",
		Unit: "UN", Brand: "ACME", USDConversion: ptr(1000), UnitCostARS: ptr(1000), MinMargin: 0.1,
	}); err != nil {
		t.Fatalf("seeding commercial: %v", err)
	}
	return repos
}

func TestExport_WritesHeaderAndTable(t *testing.T) {
	ctx := context.Background()
	repos := seedAuction(t, ctx)

	var buf bytes.Buffer
	if err := excelio.Export(ctx, repos, "AUC-1", &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("Export produced an empty workbook")
	}
}

func TestImport_RoundTripsUserFields(t *testing.T) {
	ctx := context.Background()
	repos := seedAuction(t, ctx)

	var buf bytes.Buffer
	if err := excelio.Export(ctx, repos, "AUC-1", &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}

	rows, err := excelio.Import(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	row := rows[0]
	if row.AuctionExtID != "AUC-1" || row.LocalID != "1" {
		t.Errorf("got identifiers (%q, %q), want (AUC-1, 1)", row.AuctionExtID, row.LocalID)
	}
	if row.Unit != "UN" || row.Brand != "ACME" {
		t.Errorf("got (unit=%q, brand=%q), want (UN, ACME)", row.Unit, row.Brand)
	}
	if row.MinMargin != 0.1 {
		t.Errorf("got MinMargin=%v, want 0.1", row.MinMargin)
	}
}

func TestImport_RejectsOutOfRangeMargin(t *testing.T) {
	header := []string{"ID SUBASTA", "ITEM", "UNIDAD DE MEDIDA", "MARCA", "OBS USUARIO", "CONVERSION USD", "COSTO TOTAL ARS", "RENTA MINIMA %"}
	data := [][]any{{"AUC-1", "1", "UN", "ACME", "", 1000, 1000, 1.5}}
	raw := sheetFrom(t, header, data)

	_, err := excelio.Import(bytes.NewReader(raw))
	if err == nil {
		t.Fatal("expected an error for RENTA MINIMA % outside [0,1]")
	}
}

func TestImport_RejectsMissingRequiredColumns(t *testing.T) {
	raw := sheetFrom(t, []string{"ID SUBASTA", "ITEM"}, [][]any{{"AUC-1", "1"}})

	_, err := excelio.Import(bytes.NewReader(raw))
	if err == nil {
		t.Fatal("expected an error for missing required columns")
	}
}
