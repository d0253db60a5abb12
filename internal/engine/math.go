package engine

// safeMul multiplies two optional values, returning nil if either is
// absent rather than treating a missing operand as zero.
func safeMul(a, b *float64) *float64 {
	if a == nil || b == nil {
		return nil
	}
	v := *a * *b
	return &v
}

// safeDiv divides a by b, returning nil if either operand is absent or
// b is zero.
func safeDiv(a, b *float64) *float64 {
	if a == nil || b == nil || *b == 0 {
		return nil
	}
	v := *a / *b
	return &v
}

func firstNonNil(candidates ...*float64) *float64 {
	for _, c := range candidates {
		if c != nil {
			return c
		}
	}
	return nil
}

// resolveReferenceUnitPrice implements the SNAPSHOT reference-unit rule:
// prefer total/quantity when both are known, else fall back to the
// unit figure the portal reported verbatim.
func resolveReferenceUnitPrice(quantity, referenceUnit, total *float64) *float64 {
	if v := safeDiv(total, quantity); v != nil {
		return v
	}
	return referenceUnit
}

// resolveFinalCost reconciles unit vs. total ARS cost against quantity.
// When both are supplied in the same write, TOTAL is authoritative and
// UNIT is recomputed from it; otherwise whichever side is present
// derives the other.
func resolveFinalCost(unitARS, totalARS, quantity *float64) (unit, total *float64) {
	switch {
	case totalARS != nil && unitARS != nil:
		if v := safeDiv(totalARS, quantity); v != nil {
			return v, totalARS
		}
		return unitARS, totalARS
	case totalARS != nil:
		return safeDiv(totalARS, quantity), totalARS
	case unitARS != nil:
		return unitARS, safeMul(unitARS, quantity)
	default:
		return nil, nil
	}
}

// resolveMargin computes a fractional margin a/b - 1, evaluated as
// (a - b) / b so that e.g. 1300 over 1000 gives exactly 0.3, preferring
// the TOTAL pair and falling back to the UNIT pair when the total one
// is unavailable.
func resolveMargin(totalA, totalB, unitA, unitB *float64) *float64 {
	if totalA != nil && totalB != nil && *totalB != 0 {
		v := (*totalA - *totalB) / *totalB
		return &v
	}
	if unitA != nil && unitB != nil && *unitB != 0 {
		v := (*unitA - *unitB) / *unitB
		return &v
	}
	return nil
}
