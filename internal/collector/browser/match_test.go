package browser

import "testing"

func f(v float64) *float64 { return &v }

func TestMatchItems_ExactDescriptionMatch(t *testing.T) {
	options := []Option{{Value: "1", Text: "Insumos de oficina"}}
	rows := []DetailRow{{Description: "Insumos de oficina", Quantity: f(10), ReferenceUnit: f(5)}}

	got := MatchItems(options, rows)
	if len(got) != 1 {
		t.Fatalf("got %d items, want 1", len(got))
	}
	if got[0].Quantity == nil || *got[0].Quantity != 10 {
		t.Errorf("Quantity = %v, want 10", got[0].Quantity)
	}
}

func TestMatchItems_SummaryKeyMatchIgnoresRenglonPrefix(t *testing.T) {
	options := []Option{{Value: "1", Text: "Renglon 1 - Insumos de oficina"}}
	rows := []DetailRow{{Description: "RENGLON INSUMOS DE OFICINA", IsSummary: true, Quantity: f(20)}}

	got := MatchItems(options, rows)
	if len(got) != 1 {
		t.Fatalf("got %d items, want 1", len(got))
	}
	if got[0].Quantity == nil || *got[0].Quantity != 20 {
		t.Errorf("Quantity = %v, want 20", got[0].Quantity)
	}
}

func TestMatchItems_TokenOverlapFallback(t *testing.T) {
	options := []Option{{Value: "1", Text: "Renglon 1 - Cables electricos varios"}}
	rows := []DetailRow{{Description: "RENGLON MATERIALES ELECTRICOS CABLES", IsSummary: true, Quantity: f(5)}}

	got := MatchItems(options, rows)
	if len(got) != 1 {
		t.Fatalf("got %d items, want 1", len(got))
	}
	if got[0].Quantity == nil || *got[0].Quantity != 5 {
		t.Errorf("Quantity = %v, want 5", got[0].Quantity)
	}
}

func TestMatchItems_PositionalFallbackWhenCountsMatch(t *testing.T) {
	options := []Option{{Value: "1", Text: "Alpha"}, {Value: "2", Text: "Beta"}}
	rows := []DetailRow{
		{Description: "RENGLON completely different text A", IsSummary: true, Quantity: f(1)},
		{Description: "RENGLON completely different text B", IsSummary: true, Quantity: f(2)},
	}

	got := MatchItems(options, rows)
	if len(got) != 2 {
		t.Fatalf("got %d items, want 2", len(got))
	}
	if *got[0].Quantity != 1 || *got[1].Quantity != 2 {
		t.Errorf("positional fallback mismatched rows: %v, %v", got[0].Quantity, got[1].Quantity)
	}
}

func TestMatchItems_PhantomOptionDiscardedWhenSummaryRowsDontCoverIt(t *testing.T) {
	options := []Option{
		{Value: "1", Text: "Renglon 1 - Insumos de oficina"},
		{Value: "2", Text: "Renglon 2 - Una cosa totalmente distinta sin relacion"},
		{Value: "3", Text: "Renglon 3 - Otra cosa mas sin relacion alguna"},
	}
	rows := []DetailRow{{Description: "RENGLON INSUMOS DE OFICINA", IsSummary: true, Quantity: f(10)}}

	got := MatchItems(options, rows)
	if len(got) != 1 {
		t.Fatalf("got %d items, want 1 (phantom options discarded), got %+v", len(got), got)
	}
	if got[0].Option.Value != "1" {
		t.Errorf("kept option %q, want the one matching the only summary row", got[0].Option.Value)
	}
}

func TestMatchItems_NoDetailRowsKeepsEveryOptionUnenriched(t *testing.T) {
	options := []Option{{Value: "1", Text: "Anything"}, {Value: "2", Text: "Something else"}}

	got := MatchItems(options, nil)
	if len(got) != 2 {
		t.Fatalf("got %d items, want 2", len(got))
	}
	for _, mi := range got {
		if mi.Quantity != nil {
			t.Errorf("expected nil Quantity with no detail rows, got %v", mi.Quantity)
		}
	}
}
