package engine

import "testing"

func ptr(v float64) *float64 { return &v }

func TestSafeMul(t *testing.T) {
	if got := safeMul(nil, ptr(2)); got != nil {
		t.Errorf("safeMul(nil, 2) = %v, want nil", *got)
	}
	got := safeMul(ptr(3), ptr(4))
	if got == nil || *got != 12 {
		t.Errorf("safeMul(3, 4) = %v, want 12", got)
	}
}

func TestSafeDiv(t *testing.T) {
	if got := safeDiv(ptr(10), ptr(0)); got != nil {
		t.Errorf("safeDiv(10, 0) = %v, want nil", *got)
	}
	if got := safeDiv(ptr(10), nil); got != nil {
		t.Errorf("safeDiv(10, nil) = %v, want nil", *got)
	}
	got := safeDiv(ptr(10), ptr(4))
	if got == nil || *got != 2.5 {
		t.Errorf("safeDiv(10, 4) = %v, want 2.5", got)
	}
}

func TestFirstNonNil(t *testing.T) {
	if got := firstNonNil(nil, nil, ptr(5), ptr(6)); got == nil || *got != 5 {
		t.Errorf("firstNonNil = %v, want 5", got)
	}
	if got := firstNonNil(nil, nil); got != nil {
		t.Errorf("firstNonNil(all nil) = %v, want nil", got)
	}
}

func TestResolveReferenceUnitPrice(t *testing.T) {
	if got := resolveReferenceUnitPrice(ptr(4), ptr(99), ptr(400)); got == nil || *got != 100 {
		t.Errorf("resolveReferenceUnitPrice = %v, want 100 (total/quantity preferred)", got)
	}
	if got := resolveReferenceUnitPrice(nil, ptr(99), ptr(400)); got == nil || *got != 99 {
		t.Errorf("resolveReferenceUnitPrice without quantity = %v, want 99 (fallback to unit)", got)
	}
}

func TestResolveFinalCost(t *testing.T) {
	unit, total := resolveFinalCost(ptr(90), ptr(1000), ptr(10))
	if unit == nil || *unit != 100 {
		t.Errorf("resolveFinalCost unit = %v, want 100 (total reconciles unit)", unit)
	}
	if total == nil || *total != 1000 {
		t.Errorf("resolveFinalCost total = %v, want 1000", total)
	}

	unit, total = resolveFinalCost(ptr(50), nil, ptr(10))
	if total == nil || *total != 500 {
		t.Errorf("resolveFinalCost total from unit = %v, want 500", total)
	}
	if unit == nil || *unit != 50 {
		t.Errorf("resolveFinalCost unit unchanged = %v, want 50", unit)
	}

	unit, total = resolveFinalCost(nil, nil, ptr(10))
	if unit != nil || total != nil {
		t.Errorf("resolveFinalCost with no cost = (%v, %v), want (nil, nil)", unit, total)
	}
}

func TestResolveMargin(t *testing.T) {
	// Total pair preferred: 1300/1000 - 1 = 0.3
	if got := resolveMargin(ptr(1300), ptr(1000), ptr(999), ptr(111)); got == nil || *got != 0.3 {
		t.Errorf("resolveMargin (total pair) = %v, want 0.3", got)
	}
	// Falls back to unit pair when total is absent.
	if got := resolveMargin(nil, nil, ptr(130), ptr(100)); got == nil || *got != 0.3 {
		t.Errorf("resolveMargin (unit pair) = %v, want 0.3", got)
	}
	if got := resolveMargin(nil, nil, nil, nil); got != nil {
		t.Errorf("resolveMargin with nothing known = %v, want nil", got)
	}
}
