package portalwire_test

import (
	"testing"

	"github.com/jholdgaard/subastamon/internal/collector/portalwire"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name          string
		raw           string
		wantOffers    int
		wantBudget    string
		wantOfferBeat string
		wantMessage   string
	}{
		{
			name:          "full record",
			raw:           `[{"monto_a_mostrar":"$ 100,00","monto":"100.00","hora":"10:00","id_proveedor":"P1"}]@@$ 50,00@@$ 90,00@@OK`,
			wantOffers:    1,
			wantBudget:    "$ 50,00",
			wantOfferBeat: "$ 90,00",
			wantMessage:   "OK",
		},
		{
			name:       "empty array",
			raw:        `[]@@@@@@`,
			wantOffers: 0,
		},
		{
			name:       "literal null offers",
			raw:        `null@@@@@@Subasta Finalizada`,
			wantOffers: 0,
			wantMessage: "Subasta Finalizada",
		},
		{
			name:       "malformed json array tolerated",
			raw:        `not-json@@@@@@`,
			wantOffers: 0,
		},
		{
			name:       "only first part present",
			raw:        `[]`,
			wantOffers: 0,
			wantBudget: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := portalwire.Parse(tt.raw)
			if len(got.Offers) != tt.wantOffers {
				t.Errorf("len(Offers) = %d, want %d", len(got.Offers), tt.wantOffers)
			}
			if got.BudgetText != tt.wantBudget {
				t.Errorf("BudgetText = %q, want %q", got.BudgetText, tt.wantBudget)
			}
			if tt.wantOfferBeat != "" && got.OfferToBeatText != tt.wantOfferBeat {
				t.Errorf("OfferToBeatText = %q, want %q", got.OfferToBeatText, tt.wantOfferBeat)
			}
			if tt.wantMessage != "" && got.PortalMessage != tt.wantMessage {
				t.Errorf("PortalMessage = %q, want %q", got.PortalMessage, tt.wantMessage)
			}
		})
	}
}

func TestResult_BestOfferValue(t *testing.T) {
	r := portalwire.Parse(`[{"monto_a_mostrar":"$ 1.234,56","monto":"1234.56","hora":"10:00","id_proveedor":"P1"}]@@@@@@`)
	v, ok := r.BestOfferValue()
	if !ok {
		t.Fatal("BestOfferValue() ok = false, want true")
	}
	if v != 1234.56 {
		t.Errorf("BestOfferValue() = %v, want 1234.56", v)
	}
}

func TestResult_BestOfferValue_NoOffers(t *testing.T) {
	r := portalwire.Parse(`[]@@@@@@`)
	if _, ok := r.BestOfferValue(); ok {
		t.Error("BestOfferValue() ok = true, want false with no offers")
	}
}
