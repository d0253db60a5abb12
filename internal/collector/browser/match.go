// Package browser implements the chromedp-driven collector: capture
// (phase 1, reading the auction page the operator has navigated to) and
// monitor (phase 2, polling BuscarOfertas from inside that same page
// context before a direct-HTTP collector takes the handoff). Grounded
// on original_source/app/collector/playwright_collector.py.
package browser

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Option is one <option> of the #ddlItemRenglon select: the portal's
// own identifier for an auction row and its display label.
type Option struct {
	Value string
	Text  string
}

// DetailRow is one row of the #gvDetalleCotizacion grid: either a
// per-offer detail row or a "RENGLON ..." summary row aggregating one
// or more detail rows.
type DetailRow struct {
	Description    string
	IsSummary      bool
	Quantity       *float64
	ReferenceUnit  *float64
	ReferenceTotal *float64
}

// MatchedItem is one captured auction row: the select option enriched
// with whatever reference quantity/price the detail grid carried for
// it, or left unenriched (nil fields) if no grid row could be matched.
type MatchedItem struct {
	Option
	Quantity       *float64
	ReferenceUnit  *float64
	ReferenceTotal *float64
}

var renglonPrefixRe = regexp.MustCompile(`^renglon\s*`)
var leadingOrdinalRe = regexp.MustCompile(`^\d+\s*[-:.]?\s*`)
var wordRe = regexp.MustCompile(`[a-z0-9]+`)

// MatchItems pairs each select option with the detail-grid row it most
// likely refers to, via the same cascade as
// PlaywrightCollector._capture_current/_match_resumen_row:
//
//  1. exact match on the full normalized description (against every
//     detail row, summary or not), consumed in order for duplicates
//  2. match against summary rows only, by the renglon key with any
//     "renglon N" prefix stripped (exact, or one containing the other)
//  3. best token-overlap score against summary rows
//  4. positional fallback when option count equals summary-row count,
//     or (absent any summary rows) detail-row count
//
// If summary rows exist at all and an option still has no match, it is
// discarded as a "phantom" row the portal exposes as a select option
// without a corresponding grid entry.
func MatchItems(options []Option, rows []DetailRow) []MatchedItem {
	var summaryRows, plainRows []DetailRow
	for _, r := range rows {
		if r.IsSummary {
			summaryRows = append(summaryRows, r)
		} else {
			plainRows = append(plainRows, r)
		}
	}

	byDesc := map[string][]DetailRow{}
	for _, r := range rows {
		k := normalizeDesc(r.Description)
		byDesc[k] = append(byDesc[k], r)
	}
	descCursor := map[string]int{}
	usedSummary := map[int]bool{}

	var out []MatchedItem
	for idx, opt := range options {
		optNorm := normalizeDesc(opt.Text)

		var det *DetailRow
		if candidates := byDesc[optNorm]; len(candidates) > 0 {
			i := descCursor[optNorm]
			if i >= len(candidates) {
				i = len(candidates) - 1
			} else {
				descCursor[optNorm] = i + 1
			}
			d := candidates[i]
			det = &d
		}

		if det == nil {
			det = matchSummaryRow(opt.Text, summaryRows, usedSummary)
		}

		if det == nil && len(summaryRows) > 0 && len(summaryRows) == len(options) && !usedSummary[idx] {
			d := summaryRows[idx]
			det = &d
			usedSummary[idx] = true
		}

		if det == nil && len(summaryRows) == 0 && len(plainRows) == len(options) && idx < len(plainRows) {
			d := plainRows[idx]
			det = &d
		}

		if det == nil && len(summaryRows) > 0 {
			continue
		}

		mi := MatchedItem{Option: opt}
		if det != nil {
			mi.Quantity = det.Quantity
			mi.ReferenceUnit = det.ReferenceUnit
			mi.ReferenceTotal = det.ReferenceTotal
		}
		out = append(out, mi)
	}
	return out
}

func matchSummaryRow(optText string, rows []DetailRow, used map[int]bool) *DetailRow {
	if len(rows) == 0 {
		return nil
	}
	optKey := normalizeRenglonKey(optText)
	for i, r := range rows {
		if used[i] || optKey == "" {
			continue
		}
		rowKey := normalizeRenglonKey(r.Description)
		if rowKey == "" {
			continue
		}
		if rowKey == optKey || strings.Contains(optKey, rowKey) || strings.Contains(rowKey, optKey) {
			used[i] = true
			d := r
			return &d
		}
	}

	bestIdx, bestScore := -1, 0
	for i, r := range rows {
		if used[i] {
			continue
		}
		if score := tokenOverlapScore(optText, r.Description); score > bestScore {
			bestScore, bestIdx = score, i
		}
	}
	if bestIdx < 0 {
		return nil
	}
	used[bestIdx] = true
	d := rows[bestIdx]
	return &d
}

// normalizeDesc lower-cases, collapses whitespace, and strips combining
// diacritics, mirroring _normalize_desc.
func normalizeDesc(s string) string {
	raw := strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
	decomposed := norm.NFKD.String(raw)
	var b strings.Builder
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// normalizeRenglonKey strips a leading "renglon" word and a leading
// ordinal ("1 - ", "2: ", ...) from the normalized description,
// mirroring _normalize_renglon_key.
func normalizeRenglonKey(s string) string {
	key := normalizeDesc(s)
	key = strings.TrimSpace(renglonPrefixRe.ReplaceAllString(key, ""))
	key = strings.TrimSpace(leadingOrdinalRe.ReplaceAllString(key, ""))
	return key
}

// tokenOverlapScore counts words of length >= 3 shared between a and
// b's renglon keys, mirroring _token_overlap_score.
func tokenOverlapScore(a, b string) int {
	ta := wordSet(normalizeRenglonKey(a))
	tb := wordSet(normalizeRenglonKey(b))
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	count := 0
	for w := range ta {
		if tb[w] {
			count++
		}
	}
	return count
}

func wordSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range wordRe.FindAllString(s, -1) {
		if len(w) >= 3 {
			out[w] = true
		}
	}
	return out
}
